package source

import (
	"sort"

	rlerrors "github.com/roverlog/roverlog/internal/errors"
	"github.com/roverlog/roverlog/pkg/types"
)

// IteratorOptions selects the topics and inclusive receive-time range for
// a full read. Nil bounds default to the file's global bounds.
type IteratorOptions struct {
	Topics []string
	Start  *types.Time
	End    *types.Time
}

// IteratorResult is one yielded message with its channel attribution.
type IteratorResult struct {
	ChannelID uint16
	Event     *types.MessageEvent
}

// MessageIterator is a finite, single-use sequence of messages in
// ascending receive-time order. The engine hands out a fresh iterator per
// call; each does its own independent scan and sort.
type MessageIterator struct {
	items []IteratorResult
	pos   int
}

// Next returns the next message, deep-copied for the consumer, or false
// when the sequence is exhausted.
func (it *MessageIterator) Next() (IteratorResult, bool) {
	if it.pos >= len(it.items) {
		return IteratorResult{}, false
	}
	item := it.items[it.pos]
	it.pos++
	return IteratorResult{ChannelID: item.ChannelID, Event: item.Event.Clone()}, true
}

// MessageIterator answers a full-read query over the materialized buckets.
// Calling before Initialize completed is caller misuse.
func (s *UnindexedSource) MessageIterator(opts IteratorOptions) (*MessageIterator, error) {
	if !s.initialized {
		return nil, rlerrors.NewUsageError(rlerrors.CodeNotInitialized,
			"message iterator requested before initialization completed")
	}
	if len(opts.Topics) == 0 || !s.st.hasMessages {
		return &MessageIterator{}, nil
	}

	start := s.init.Start
	if opts.Start != nil {
		start = *opts.Start
	}
	end := s.init.End
	if opts.End != nil {
		end = *opts.End
	}

	topicSet := make(map[string]struct{}, len(opts.Topics))
	for _, t := range opts.Topics {
		topicSet[t] = struct{}{}
	}

	// bucket scan order is channel-id order, which is not time order, so
	// a final stable sort by receive time is mandatory
	var items []IteratorResult
	for _, id := range s.scanOrder {
		for _, ev := range s.st.buckets[id] {
			if _, ok := topicSet[ev.Topic]; !ok {
				continue
			}
			if ev.ReceiveTime.Before(start) || ev.ReceiveTime.After(end) {
				continue
			}
			items = append(items, IteratorResult{ChannelID: id, Event: ev})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Event.ReceiveTime.Before(items[j].Event.ReceiveTime)
	})
	return &MessageIterator{items: items}, nil
}

// BackfillOptions selects the topics and seek time for a backfill query.
type BackfillOptions struct {
	Topics []string
	Time   types.Time
}

// GetBackfillMessages returns, per requested topic, the message with the
// latest receive time at or before the seek time. Ties on receive time go
// to the highest channel id, a deterministic stand-in for the scan-order
// tie-break. Topics with no qualifying message are omitted. Deep copies
// are returned.
func (s *UnindexedSource) GetBackfillMessages(opts BackfillOptions) ([]*types.MessageEvent, error) {
	if !s.initialized {
		return nil, rlerrors.NewUsageError(rlerrors.CodeNotInitialized,
			"backfill requested before initialization completed")
	}

	topicSet := make(map[string]struct{}, len(opts.Topics))
	for _, t := range opts.Topics {
		topicSet[t] = struct{}{}
	}

	best := make(map[string]*types.MessageEvent)
	for _, id := range s.scanOrder {
		for _, ev := range s.st.buckets[id] {
			if _, ok := topicSet[ev.Topic]; !ok {
				continue
			}
			if ev.ReceiveTime.After(opts.Time) {
				continue
			}
			// >= replaces on equal receive time, so the last qualifying
			// event in scan order wins
			if cur, ok := best[ev.Topic]; !ok || ev.ReceiveTime.Compare(cur.ReceiveTime) >= 0 {
				best[ev.Topic] = ev
			}
		}
	}

	out := make([]*types.MessageEvent, 0, len(best))
	for _, topic := range opts.Topics {
		if ev, ok := best[topic]; ok {
			out = append(out, ev.Clone())
			delete(best, topic)
		}
	}
	return out, nil
}
