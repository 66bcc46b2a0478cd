// Package observability provides read statistics tracking for the ingestion
// pass: record counts by kind, bytes consumed, and chunk decompression
// totals, surfaced by the CLI tools after initialization.
package observability

import (
	"sort"
	"sync"
	"time"
)

// ReadStats tracks counters for one ingestion pass.
type ReadStats struct {
	mu                sync.RWMutex
	recordsByKind     map[string]int64
	bytesRead         int64
	chunksInflated    int64
	inflatedBytes     int64
	decodeStarted     time.Time
	decodeElapsed     time.Duration
}

// NewReadStats creates a new read statistics tracker.
func NewReadStats() *ReadStats {
	return &ReadStats{
		recordsByKind: make(map[string]int64),
	}
}

// RecordKind counts one decoded record of the given kind.
// This method is O(1) and thread-safe.
func (s *ReadStats) RecordKind(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordsByKind[kind]++
}

// AddBytesRead counts raw bytes consumed from the blob.
func (s *ReadStats) AddBytesRead(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesRead += n
}

// RecordChunksInflated counts n decompressed chunks and their combined
// inflated size.
func (s *ReadStats) RecordChunksInflated(n, inflatedBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunksInflated += n
	s.inflatedBytes += inflatedBytes
}

// MarkDecodeStart records the beginning of the ingestion pass.
func (s *ReadStats) MarkDecodeStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decodeStarted = time.Now()
}

// MarkDecodeEnd records the end of the ingestion pass.
func (s *ReadStats) MarkDecodeEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.decodeStarted.IsZero() {
		s.decodeElapsed = time.Since(s.decodeStarted)
	}
}

// KindCount is one record-kind counter in a snapshot.
type KindCount struct {
	Kind  string
	Count int64
}

// Snapshot is an immutable copy of the counters.
type Snapshot struct {
	RecordsByKind  []KindCount
	TotalRecords   int64
	BytesRead      int64
	ChunksInflated int64
	InflatedBytes  int64
	DecodeElapsed  time.Duration
}

// Snapshot returns a copy of the current counters, record kinds sorted by
// descending count then name.
func (s *ReadStats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		BytesRead:      s.bytesRead,
		ChunksInflated: s.chunksInflated,
		InflatedBytes:  s.inflatedBytes,
		DecodeElapsed:  s.decodeElapsed,
	}
	for kind, count := range s.recordsByKind {
		snap.RecordsByKind = append(snap.RecordsByKind, KindCount{Kind: kind, Count: count})
		snap.TotalRecords += count
	}
	sort.Slice(snap.RecordsByKind, func(i, j int) bool {
		a, b := snap.RecordsByKind[i], snap.RecordsByKind[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Kind < b.Kind
	})
	return snap
}
