package source

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/spaolacci/murmur3"

	rlerrors "github.com/roverlog/roverlog/internal/errors"
	"github.com/roverlog/roverlog/internal/mcap"
	"github.com/roverlog/roverlog/internal/msgplan"
	"github.com/roverlog/roverlog/pkg/types"
)

// channelInfo is one successfully registered channel with its memoized
// decoding plan.
type channelInfo struct {
	channel    *mcap.Channel
	schemaName string
	plan       msgplan.Plan
}

// ingestState is the schema/channel registry plus every accumulator the
// single ingestion pass mutates. It is owned by Initialize and threaded
// through the decode loop explicitly; nothing here is shared.
type ingestState struct {
	plans *msgplan.Registry

	profile string

	schemas   map[uint16]*mcap.Schema
	schemaFPs map[uint16]uint64

	channels   map[uint16]*channelInfo
	channelFPs map[uint16]uint64
	errored    map[uint16]struct{}

	// buckets hold message events per channel in file order. A bucket,
	// once allocated, only grows.
	buckets map[uint16][]*types.MessageEvent

	hasMessages  bool
	start        types.Time
	end          types.Time
	messageCount int64

	datatypes map[string]types.Datatype
	alerts    []types.Alert
	metadata  []types.Metadata
}

func newIngestState(plans *msgplan.Registry) *ingestState {
	return &ingestState{
		plans:      plans,
		schemas:    make(map[uint16]*mcap.Schema),
		schemaFPs:  make(map[uint16]uint64),
		channels:   make(map[uint16]*channelInfo),
		channelFPs: make(map[uint16]uint64),
		errored:    make(map[uint16]struct{}),
		buckets:    make(map[uint16][]*types.MessageEvent),
		datatypes:  make(map[string]types.Datatype),
	}
}

// apply routes one decoded record through the registry rules. Returned
// errors are structural and abort the whole ingestion.
func (st *ingestState) apply(rec mcap.Record) error {
	switch r := rec.(type) {
	case *mcap.Header:
		// last one wins if repeated
		st.profile = r.Profile
		return nil
	case *mcap.Schema:
		return st.applySchema(r)
	case *mcap.Channel:
		return st.applyChannel(r)
	case *mcap.Message:
		return st.applyMessage(r)
	case *mcap.MetadataRecord:
		st.metadata = append(st.metadata, types.Metadata{Name: r.Name, Values: r.Metadata})
		return nil
	case *mcap.Footer, *mcap.DataEnd, *mcap.Skipped:
		return nil
	default:
		return rlerrors.NewInternalError(fmt.Sprintf("unhandled record kind %s", rec.Opcode()), nil)
	}
}

func (st *ingestState) applySchema(s *mcap.Schema) error {
	if s.ID == 0 {
		return rlerrors.NewRegistryError(rlerrors.CodeReservedID,
			"schema id 0 is reserved for schemaless channels")
	}
	fp := schemaFingerprint(s)
	if prev, ok := st.schemas[s.ID]; ok {
		if st.schemaFPs[s.ID] != fp || !schemasEqual(prev, s) {
			return rlerrors.NewRegistryError(rlerrors.CodeSchemaConflict,
				fmt.Sprintf("schema id %d redefined with different content (%q)", s.ID, s.Name))
		}
		return nil
	}
	st.schemas[s.ID] = s
	st.schemaFPs[s.ID] = fp
	return nil
}

func (st *ingestState) applyChannel(c *mcap.Channel) error {
	fp := channelFingerprint(c)
	if prev, ok := st.channels[c.ID]; ok {
		if st.channelFPs[c.ID] != fp || !channelsEqual(prev.channel, c) {
			return rlerrors.NewRegistryError(rlerrors.CodeChannelConflict,
				fmt.Sprintf("channel id %d redefined with different content (topic %q)", c.ID, c.Topic))
		}
		return nil
	}
	if _, bad := st.errored[c.ID]; bad {
		// already reported once at first encounter
		return nil
	}

	var schemaInfo *msgplan.SchemaInfo
	var schemaName string
	if c.SchemaID != 0 {
		schema, ok := st.schemas[c.SchemaID]
		if !ok {
			return rlerrors.NewRegistryError(rlerrors.CodeSchemaNotFound,
				fmt.Sprintf("channel %d (topic %q) references unresolved schema %d; schemas must precede the channels that use them",
					c.ID, c.Topic, c.SchemaID))
		}
		schemaName = schema.Name
		schemaInfo = &msgplan.SchemaInfo{
			Name:     schema.Name,
			Encoding: schema.Encoding,
			Data:     schema.Data,
		}
	}

	plan, err := st.plans.BuildPlan(c.MessageEncoding, schemaInfo)
	if err != nil {
		st.errored[c.ID] = struct{}{}
		st.alerts = append(st.alerts, types.Alert{
			Severity: types.SeverityError,
			Message:  fmt.Sprintf("failed to build decoding plan for channel %d (topic %q)", c.ID, c.Topic),
			Detail:   err.Error(),
		})
		return nil
	}

	st.channels[c.ID] = &channelInfo{channel: c, schemaName: schemaName, plan: plan}
	st.channelFPs[c.ID] = fp
	st.buckets[c.ID] = []*types.MessageEvent{}

	// unholy union: later channels silently overwrite same-named entries
	for name, dt := range plan.Datatypes() {
		st.datatypes[name] = dt
	}
	return nil
}

func (st *ingestState) applyMessage(m *mcap.Message) error {
	info, ok := st.channels[m.ChannelID]
	if !ok {
		if _, bad := st.errored[m.ChannelID]; bad {
			// channel failed plan construction; drop silently
			return nil
		}
		return rlerrors.NewRegistryError(rlerrors.CodeChannelNotFound,
			fmt.Sprintf("message references channel %d before its channel record", m.ChannelID))
	}

	ev := &types.MessageEvent{
		Topic:       info.channel.Topic,
		ReceiveTime: types.FromNanoseconds(m.LogTime),
		PublishTime: types.FromNanoseconds(m.PublishTime),
		Data:        m.Data,
		SizeBytes:   int64(len(m.Data)),
		SchemaName:  info.schemaName,
	}
	st.buckets[m.ChannelID] = append(st.buckets[m.ChannelID], ev)
	st.messageCount++

	if !st.hasMessages {
		st.hasMessages = true
		st.start = ev.ReceiveTime
		st.end = ev.ReceiveTime
		return nil
	}
	if ev.ReceiveTime.Before(st.start) {
		st.start = ev.ReceiveTime
	}
	if ev.ReceiveTime.After(st.end) {
		st.end = ev.ReceiveTime
	}
	return nil
}

// sortedChannelIDs returns the registered channel ids in ascending order,
// the fixed bucket scan order for queries.
func (st *ingestState) sortedChannelIDs() []uint16 {
	ids := make([]uint16, 0, len(st.channels))
	for id := range st.channels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// schemaFingerprint hashes a schema record for the redefinition fast path.
// Equal fingerprints are confirmed with a full structural compare.
func schemaFingerprint(s *mcap.Schema) uint64 {
	h := murmur3.New64()
	writeField(h.Write, []byte(s.Name))
	writeField(h.Write, []byte(s.Encoding))
	writeField(h.Write, s.Data)
	return h.Sum64()
}

// channelFingerprint hashes a channel record for the redefinition fast path.
func channelFingerprint(c *mcap.Channel) uint64 {
	h := murmur3.New64()
	var sid [2]byte
	binary.LittleEndian.PutUint16(sid[:], c.SchemaID)
	writeField(h.Write, sid[:])
	writeField(h.Write, []byte(c.Topic))
	writeField(h.Write, []byte(c.MessageEncoding))

	keys := make([]string, 0, len(c.Metadata))
	for k := range c.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(h.Write, []byte(k))
		writeField(h.Write, []byte(c.Metadata[k]))
	}
	return h.Sum64()
}

// writeField length-prefixes each field so adjacent fields cannot collide.
func writeField(write func([]byte) (int, error), p []byte) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(p)))
	write(n[:])
	write(p)
}

func schemasEqual(a, b *mcap.Schema) bool {
	return a.ID == b.ID && a.Name == b.Name && a.Encoding == b.Encoding &&
		bytes.Equal(a.Data, b.Data)
}

func channelsEqual(a, b *mcap.Channel) bool {
	if a.ID != b.ID || a.SchemaID != b.SchemaID || a.Topic != b.Topic ||
		a.MessageEncoding != b.MessageEncoding || len(a.Metadata) != len(b.Metadata) {
		return false
	}
	for k, v := range a.Metadata {
		if bv, ok := b.Metadata[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
