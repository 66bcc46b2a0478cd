package source

import (
	"bytes"
	"context"
	"io"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/roverlog/roverlog/internal/mcap"
	"github.com/roverlog/roverlog/pkg/types"
)

// memBlob keeps property-test fixtures off the filesystem.
type memBlob struct{ data []byte }

func (b *memBlob) Name() string                             { return "mem.mcap" }
func (b *memBlob) Size(ctx context.Context) (int64, error) { return int64(len(b.data)), nil }
func (b *memBlob) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// sourceWithTimes builds a one-channel file whose messages carry the given
// receive times in the given file order, then initializes a source over it.
func sourceWithTimes(times []uint64) (*UnindexedSource, error) {
	var buf bytes.Buffer
	w := mcap.NewWriter(&buf, nil)
	if err := w.WriteSchema(&mcap.Schema{
		ID: 1, Name: "test/Number", Encoding: "jsonschema", Data: []byte(numberSchema),
	}); err != nil {
		return nil, err
	}
	if err := w.WriteChannel(&mcap.Channel{
		ID: 1, SchemaID: 1, Topic: "/a", MessageEncoding: "json",
	}); err != nil {
		return nil, err
	}
	for _, ns := range times {
		if err := w.WriteMessage(&mcap.Message{
			ChannelID: 1, LogTime: ns, PublishTime: ns, Data: []byte(`{"v":1}`),
		}); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	src := NewUnindexedSource(&memBlob{data: buf.Bytes()}, Options{})
	if _, err := src.Initialize(context.Background()); err != nil {
		return nil, err
	}
	return src, nil
}

func drainTimes(it *MessageIterator) []uint64 {
	var out []uint64
	for {
		res, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, res.Event.ReceiveTime.Nanoseconds())
	}
}

// TestProperty_IteratorOrdering validates that a full read yields every
// message exactly once in non-decreasing receive-time order, whatever
// order the file stored them in.
func TestProperty_IteratorOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genTimes := gen.SliceOf(gen.UInt64Range(0, 1_000_000))

	properties.Property("full read is a sorted permutation of the input", prop.ForAll(
		func(times []uint64) bool {
			src, err := sourceWithTimes(times)
			if err != nil {
				return false
			}
			it, err := src.MessageIterator(IteratorOptions{Topics: []string{"/a"}})
			if err != nil {
				return false
			}
			got := drainTimes(it)
			want := append([]uint64(nil), times...)
			sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
			if len(got) != len(want) {
				return false
			}
			for i := range got {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		genTimes,
	))

	properties.Property("repeated reads return identical sequences", prop.ForAll(
		func(times []uint64) bool {
			src, err := sourceWithTimes(times)
			if err != nil {
				return false
			}
			first, err := src.MessageIterator(IteratorOptions{Topics: []string{"/a"}})
			if err != nil {
				return false
			}
			second, err := src.MessageIterator(IteratorOptions{Topics: []string{"/a"}})
			if err != nil {
				return false
			}
			a, b := drainTimes(first), drainTimes(second)
			if len(a) != len(b) {
				return false
			}
			for i := range a {
				if a[i] != b[i] {
					return false
				}
			}
			return true
		},
		genTimes,
	))

	properties.TestingRun(t)
}

// TestProperty_RangeAndBackfill validates the inclusive range filter and
// the at-or-before backfill contract against a brute-force model.
func TestProperty_RangeAndBackfill(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	genTimes := gen.SliceOf(gen.UInt64Range(0, 10_000))

	properties.Property("range read returns exactly the messages inside the bounds", prop.ForAll(
		func(times []uint64, lo, hi uint64) bool {
			if lo > hi {
				lo, hi = hi, lo
			}
			src, err := sourceWithTimes(times)
			if err != nil {
				return false
			}
			start, end := types.FromNanoseconds(lo), types.FromNanoseconds(hi)
			it, err := src.MessageIterator(IteratorOptions{
				Topics: []string{"/a"}, Start: &start, End: &end,
			})
			if err != nil {
				return false
			}
			got := drainTimes(it)

			var want []uint64
			for _, ns := range times {
				if ns >= lo && ns <= hi {
					want = append(want, ns)
				}
			}
			sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
			if len(got) != len(want) {
				return false
			}
			for i := range got {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		genTimes,
		gen.UInt64Range(0, 10_000),
		gen.UInt64Range(0, 10_000),
	))

	properties.Property("backfill returns the latest message at or before the seek time", prop.ForAll(
		func(times []uint64, seek uint64) bool {
			src, err := sourceWithTimes(times)
			if err != nil {
				return false
			}
			out, err := src.GetBackfillMessages(BackfillOptions{
				Topics: []string{"/a"}, Time: types.FromNanoseconds(seek),
			})
			if err != nil {
				return false
			}

			var want uint64
			var found bool
			for _, ns := range times {
				if ns <= seek && (!found || ns > want) {
					want, found = ns, true
				}
			}
			if !found {
				return len(out) == 0
			}
			return len(out) == 1 && out[0].ReceiveTime.Nanoseconds() == want
		},
		genTimes,
		gen.UInt64Range(0, 10_000),
	))

	properties.TestingRun(t)
}
