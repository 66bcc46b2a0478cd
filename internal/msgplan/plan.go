// Package msgplan builds per-channel decoding plans: given a channel's
// message encoding and its optional schema, a plan knows how to turn raw
// payload bytes into a structured message and exposes the named types the
// schema defines. Plan construction happens once per channel; the source
// engine memoizes the result for the lifetime of the channel.
package msgplan

import (
	"sort"
	"sync"

	rlerrors "github.com/roverlog/roverlog/internal/errors"
	"github.com/roverlog/roverlog/pkg/types"
)

// sortFields orders fields by name for stable datatype tables where the
// schema format has no declaration order of its own.
func sortFields(fields []types.Field) {
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
}

// SchemaInfo describes the schema referenced by a channel. Nil means the
// channel is schemaless.
type SchemaInfo struct {
	Name     string
	Encoding string
	Data     []byte
}

// Plan is a built decoding plan for one channel.
type Plan interface {
	// Datatypes returns the named types the channel's schema defines,
	// keyed by fully qualified name
	Datatypes() map[string]types.Datatype

	// Decode turns one raw payload into a structured message
	Decode(data []byte) (interface{}, error)
}

// Builder constructs plans for one message encoding.
type Builder interface {
	// Encoding returns the message encoding this builder handles
	Encoding() string

	// Build constructs a plan from the channel's schema, or fails with a
	// descriptive error
	Build(schema *SchemaInfo) (Plan, error)
}

// Registry maps message encodings to plan builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry creates an empty builder registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// DefaultRegistry returns a registry with the built-in json and protobuf
// builders registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&JSONBuilder{})
	r.Register(&ProtobufBuilder{})
	return r
}

// Register adds or replaces the builder for its encoding.
func (r *Registry) Register(b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[b.Encoding()] = b
}

// BuildPlan constructs a plan for a message encoding and optional schema.
// An encoding with no registered builder fails plan construction, which
// the source engine treats as a per-channel recoverable condition.
func (r *Registry) BuildPlan(messageEncoding string, schema *SchemaInfo) (Plan, error) {
	r.mu.RLock()
	b, ok := r.builders[messageEncoding]
	r.mu.RUnlock()
	if !ok {
		return nil, rlerrors.NewPlanError(rlerrors.CodeUnsupportedEncoding,
			"no plan builder for message encoding "+messageEncoding, nil)
	}
	return b.Build(schema)
}
