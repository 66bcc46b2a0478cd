// Package source implements the unindexed ingestion engine: a single
// streaming pass over an MCAP blob that materializes every message into
// per-channel in-memory buckets and serves time-ordered iteration and
// backfill queries from them. This engine is the small-file, linear-scan
// strategy; it refuses files above a fixed size ceiling and always reports
// a performance warning when messages are present.
package source

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/roverlog/roverlog/internal/decompress"
	rlerrors "github.com/roverlog/roverlog/internal/errors"
	"github.com/roverlog/roverlog/internal/mcap"
	"github.com/roverlog/roverlog/internal/msgplan"
	"github.com/roverlog/roverlog/internal/observability"
	"github.com/roverlog/roverlog/internal/storage"
	"github.com/roverlog/roverlog/pkg/types"
)

// SourceType tags this engine as operating on raw serialized payloads, as
// opposed to a pre-decoded-message engine variant.
const SourceType = "mcap-unindexed"

// DefaultSizeLimit is the fixed ceiling on declared blob size. The whole
// file is held in memory, so larger files must use an indexed strategy.
const DefaultSizeLimit int64 = 1 << 30 // 1 GiB

// defaultReadChunkSize is how much is pulled from the blob per read.
const defaultReadChunkSize = 4 << 20

// longFileDuration is the bound above which the file duration is reported
// as implausible.
const longFileDuration = 365 * 24 * time.Hour

// publisherMetadataKey is the conventional channel-metadata key carrying a
// publisher identity.
const publisherMetadataKey = "callerid"

// Options configures an UnindexedSource. Zero values get defaults.
type Options struct {
	// SizeLimit overrides the size ceiling; zero means DefaultSizeLimit.
	SizeLimit int64

	// ReadChunkSize overrides how much is pulled from the blob per read.
	ReadChunkSize int

	// DecompressProvider supplies the compression-scheme lookup. The
	// default provider returns the built-in registry. Provider failure
	// fails Initialize before any bytes are read.
	DecompressProvider func(ctx context.Context) (*decompress.Registry, error)

	// Plans supplies the per-encoding decoding-plan builders. Defaults to
	// the built-in json and protobuf builders.
	Plans *msgplan.Registry
}

// UnindexedSource reads one MCAP blob. A single instance serves one
// playback session sequentially: Initialize once, then any number of
// iterator and backfill calls. It does not defend against concurrent use.
type UnindexedSource struct {
	blob      storage.Blob
	opts      Options
	sessionID string
	stats     *observability.ReadStats

	initialized bool
	st          *ingestState
	init        *types.Initialization
	scanOrder   []uint16
}

// NewUnindexedSource creates a source over a blob.
func NewUnindexedSource(blob storage.Blob, opts Options) *UnindexedSource {
	if opts.SizeLimit <= 0 {
		opts.SizeLimit = DefaultSizeLimit
	}
	if opts.ReadChunkSize <= 0 {
		opts.ReadChunkSize = defaultReadChunkSize
	}
	if opts.DecompressProvider == nil {
		opts.DecompressProvider = func(ctx context.Context) (*decompress.Registry, error) {
			return decompress.DefaultRegistry(), nil
		}
	}
	if opts.Plans == nil {
		opts.Plans = msgplan.DefaultRegistry()
	}
	return &UnindexedSource{
		blob:      blob,
		opts:      opts,
		sessionID: uuid.NewString(),
		stats:     observability.NewReadStats(),
	}
}

// SourceType returns the engine's constant type tag.
func (s *UnindexedSource) SourceType() string {
	return SourceType
}

// SessionID returns the identifier for this source instance.
func (s *UnindexedSource) SessionID() string {
	return s.sessionID
}

// ReadStats returns a snapshot of the ingestion pass counters.
func (s *UnindexedSource) ReadStats() observability.Snapshot {
	return s.stats.Snapshot()
}

// Initialize performs the single cold read of the whole blob and returns
// the aggregate metadata. Callable once; structural failures return an
// error and no partial result.
func (s *UnindexedSource) Initialize(ctx context.Context) (*types.Initialization, error) {
	if s.initialized {
		return nil, rlerrors.NewUsageError(rlerrors.CodeAlreadyInitialized,
			"initialize already completed for this source")
	}

	size, err := s.blob.Size(ctx)
	if err != nil {
		return nil, err
	}
	if size > s.opts.SizeLimit {
		return nil, rlerrors.NewSourceError(rlerrors.CodeSizeLimitExceeded,
			fmt.Sprintf("%s is %d bytes, above the 1 GiB limit for unindexed reading", s.blob.Name(), size))
	}

	registry, err := s.opts.DecompressProvider(ctx)
	if err != nil {
		return nil, rlerrors.NewInternalError("decompression capability discovery failed", err)
	}

	reader, err := s.blob.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	st := newIngestState(s.opts.Plans)
	dec := mcap.NewDecoder(registry)
	s.stats.MarkDecodeStart()

	buf := make([]byte, s.opts.ReadChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, readErr := reader.Read(buf)
		if n > 0 {
			dec.Append(buf[:n])
			s.stats.AddBytesRead(int64(n))
			if err := s.drain(dec, st); err != nil {
				return nil, err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, rlerrors.NewStorageError(rlerrors.CodeReadFailed,
				"failed to read "+s.blob.Name(), readErr)
		}
	}
	if err := dec.Finish(); err != nil {
		return nil, err
	}
	s.stats.MarkDecodeEnd()
	if n := dec.ChunksInflated(); n > 0 {
		s.stats.RecordChunksInflated(n, dec.InflatedBytes())
	}

	if dec.CorruptTrailer() {
		st.alerts = append(st.alerts, types.Alert{
			Severity: types.SeverityWarn,
			Message:  "trailing magic is corrupt or missing; the file may be partially written",
		})
	}

	s.st = st
	s.scanOrder = st.sortedChannelIDs()
	s.init = s.buildInitialization(st)
	s.initialized = true
	return s.init, nil
}

// drain pulls every complete record out of the decoder and routes it
// through the registry.
func (s *UnindexedSource) drain(dec *mcap.Decoder, st *ingestState) error {
	for {
		rec, err := dec.Next()
		if err == mcap.ErrMoreData {
			return nil
		}
		if err != nil {
			return err
		}
		s.stats.RecordKind(rec.Opcode().String())
		if err := st.apply(rec); err != nil {
			return err
		}
	}
}

// buildInitialization assembles the immutable result from the exhausted
// ingest state. Summary statistics come from the same pass that populated
// the buckets; nothing is rescanned.
func (s *UnindexedSource) buildInitialization(st *ingestState) *types.Initialization {
	init := &types.Initialization{
		SessionID:         s.sessionID,
		Profile:           st.profile,
		Start:             st.start,
		End:               st.end,
		TopicStats:        make(map[string]types.TopicStats),
		Datatypes:         st.datatypes,
		PublishersByTopic: make(map[string][]string),
		Metadata:          st.metadata,
	}

	publisherSets := make(map[string]map[string]struct{})
	for _, id := range s.scanOrder {
		info := st.channels[id]
		c := info.channel

		var schemaEncoding string
		var schemaData []byte
		if c.SchemaID != 0 {
			schema := st.schemas[c.SchemaID]
			schemaEncoding = schema.Encoding
			schemaData = schema.Data
		}
		init.Topics = append(init.Topics, types.Topic{
			Name:            c.Topic,
			SchemaName:      info.schemaName,
			SchemaEncoding:  schemaEncoding,
			SchemaData:      schemaData,
			MessageEncoding: c.MessageEncoding,
		})

		stats := init.TopicStats[c.Topic]
		stats.NumMessages += int64(len(st.buckets[id]))
		init.TopicStats[c.Topic] = stats

		// publisher identity from channel metadata, falling back to the
		// channel id as a stable-within-file token
		publisher := c.Metadata[publisherMetadataKey]
		if publisher == "" {
			publisher = fmt.Sprintf("channel-%d", c.ID)
		}
		set, ok := publisherSets[c.Topic]
		if !ok {
			set = make(map[string]struct{})
			publisherSets[c.Topic] = set
		}
		set[publisher] = struct{}{}
	}
	for topic, set := range publisherSets {
		init.PublishersByTopic[topic] = sortedSet(set)
	}

	init.Alerts = append(init.Alerts, st.alerts...)
	if st.hasMessages && st.end.Sub(st.start) > longFileDuration {
		init.Alerts = append(init.Alerts, types.Alert{
			Severity: types.SeverityWarn,
			Message:  "file duration exceeds one year; timestamps may be wrong",
			Detail: fmt.Sprintf("first message %s, last message %s",
				st.start.Std().Format(time.RFC1123), st.end.Std().Format(time.RFC1123)),
		})
	}
	if st.messageCount == 0 {
		init.Alerts = append(init.Alerts, types.Alert{
			Severity: types.SeverityWarn,
			Message:  "this file contains no messages",
		})
	} else {
		init.Alerts = append(init.Alerts, types.Alert{
			Severity: types.SeverityWarn,
			Message:  "this file is unindexed and was loaded fully into memory; expect degraded performance",
		})
	}
	return init
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
