// Package decompress provides the pluggable compression-scheme registry the
// record decoder consults when it encounters a compressed segment. Handlers
// are looked up by the scheme name embedded in the record; a lookup miss is
// a structural failure for the segment that needed it.
package decompress

import (
	"sort"
	"sync"

	rlerrors "github.com/roverlog/roverlog/internal/errors"
)

// Handler inflates and deflates one named compression scheme's byte ranges.
type Handler interface {
	// Name returns the scheme name as it appears in the container
	Name() string

	// Decompress inflates src. sizeHint is the declared uncompressed size
	// and may be used to presize the destination; zero means unknown.
	Decompress(src []byte, sizeHint uint64) ([]byte, error)

	// Compress deflates src. Used by the writer side for chunked output.
	Compress(src []byte) ([]byte, error)
}

// Registry maps scheme names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry containing only the identity
// handler for the empty scheme name (uncompressed segments).
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.Register(identityHandler{})
	return r
}

// DefaultRegistry returns a registry with all built-in handlers registered:
// identity, snappy, lz4 and zstd.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(snappyHandler{})
	r.Register(lz4Handler{})
	r.Register(zstdHandler{})
	return r
}

// Register adds or replaces the handler for its scheme name.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Name()] = h
}

// Lookup returns the handler for the scheme name, or an error naming the
// missing scheme.
func (r *Registry) Lookup(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, rlerrors.NewDecompressError(rlerrors.CodeUnknownCompression,
			"no handler registered for compression scheme "+name, nil)
	}
	return h, nil
}

// Schemes returns the registered scheme names in sorted order. The empty
// identity scheme is included.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// identityHandler passes bytes through unchanged for uncompressed segments.
type identityHandler struct{}

func (identityHandler) Name() string { return "" }

func (identityHandler) Decompress(src []byte, sizeHint uint64) ([]byte, error) {
	return src, nil
}

func (identityHandler) Compress(src []byte) ([]byte, error) {
	return src, nil
}
