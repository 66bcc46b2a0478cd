package observability

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadStats_SnapshotOrdering(t *testing.T) {
	s := NewReadStats()
	for i := 0; i < 5; i++ {
		s.RecordKind("Message")
	}
	s.RecordKind("Schema")
	s.RecordKind("Channel")
	s.AddBytesRead(1024)
	s.RecordChunksInflated(3, 4096)

	snap := s.Snapshot()
	assert.Equal(t, int64(7), snap.TotalRecords)
	assert.Equal(t, int64(1024), snap.BytesRead)
	assert.Equal(t, int64(3), snap.ChunksInflated)
	assert.Equal(t, int64(4096), snap.InflatedBytes)

	// descending count, ties broken by name
	assert.Equal(t, []KindCount{
		{Kind: "Message", Count: 5},
		{Kind: "Channel", Count: 1},
		{Kind: "Schema", Count: 1},
	}, snap.RecordsByKind)
}

func TestReadStats_DecodeElapsed(t *testing.T) {
	s := NewReadStats()
	assert.Zero(t, s.Snapshot().DecodeElapsed)

	// end without start stays zero
	s.MarkDecodeEnd()
	assert.Zero(t, s.Snapshot().DecodeElapsed)

	s.MarkDecodeStart()
	s.MarkDecodeEnd()
	assert.NotZero(t, s.Snapshot().DecodeElapsed)
}

func TestReadStats_ConcurrentUpdates(t *testing.T) {
	s := NewReadStats()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.RecordKind("Message")
				s.AddBytesRead(1)
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, int64(800), snap.TotalRecords)
	assert.Equal(t, int64(800), snap.BytesRead)
}
