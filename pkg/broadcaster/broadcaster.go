// Package broadcaster assigns monotonic sequence ids to change events and
// fans them out to subscribers, with a bounded replay history and lossy
// delivery to subscribers that fall behind. It generalizes the teacher's
// events.Broker (a fire-and-forget pub/sub broker with no sequence id or
// history) with the sequencing and bounded-replay-window contract.
package broadcaster

import (
	"sync"
	"time"

	"github.com/graphkeep/graphkeep/pkg/log"
	"github.com/graphkeep/graphkeep/pkg/metrics"
	"github.com/graphkeep/graphkeep/pkg/types"
)

// DefaultHistorySize is the default bounded-history-ring capacity.
const DefaultHistorySize = 1000

// DefaultSubscriberCapacity is the default per-subscriber channel buffer.
const DefaultSubscriberCapacity = 1024

// Message wraps a published event with the sequence id and wall-clock time
// it was assigned at publication.
type Message struct {
	Event      types.Event `json:"event"`
	SequenceID uint64      `json:"sequence_id"`
	Timestamp  int64       `json:"timestamp"`
}

// Subscriber is the channel a caller reads published messages from.
type Subscriber chan Message

// Broadcaster owns the sequence counter and history ring exclusively; no
// other component may assign sequence ids or read history directly.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	history     []Message
	historyCap  int
	subCap      int
	nextSeq     uint64
}

// New creates a Broadcaster. historyCap and subCap default to
// DefaultHistorySize and DefaultSubscriberCapacity when <= 0.
func New(historyCap, subCap int) *Broadcaster {
	if historyCap <= 0 {
		historyCap = DefaultHistorySize
	}
	if subCap <= 0 {
		subCap = DefaultSubscriberCapacity
	}
	return &Broadcaster{
		subscribers: make(map[Subscriber]struct{}),
		history:     make([]Message, 0, historyCap),
		historyCap:  historyCap,
		subCap:      subCap,
	}
}

// Publish allocates the next sequence id, records the message in history,
// and fans it out to every subscriber. A subscriber whose channel is full
// is skipped rather than blocking the publisher — it observes a gap on its
// next receive and must call GetEventsSince or refresh from a snapshot.
func (b *Broadcaster) Publish(event types.Event) Message {
	b.mu.Lock()
	seq := b.nextSeq
	b.nextSeq++

	msg := Message{Event: event, SequenceID: seq, Timestamp: time.Now().Unix()}

	if len(b.history) == b.historyCap {
		copy(b.history, b.history[1:])
		b.history = b.history[:len(b.history)-1]
	}
	b.history = append(b.history, msg)

	subs := make([]Subscriber, 0, len(b.subscribers))
	for s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s <- msg:
		default:
			metrics.BroadcastDroppedTotal.Inc()
			log.Logger.Warn().Uint64("sequence_id", seq).Msg("broadcaster: dropped message for lagged subscriber")
		}
	}

	metrics.BroadcastSequenceID.Set(float64(b.nextSeq))
	return msg
}

// Subscribe returns a fresh channel that receives messages published after
// this call. It never receives history; callers that need a replay window
// call GetEventsSince first.
func (b *Broadcaster) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, b.subCap)
	b.subscribers[sub] = struct{}{}
	metrics.BroadcastSubscribersTotal.Set(float64(len(b.subscribers)))
	return sub
}

// Unsubscribe removes and closes a subscriber channel. Safe to call more
// than once for the same subscriber.
func (b *Broadcaster) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
		metrics.BroadcastSubscribersTotal.Set(float64(len(b.subscribers)))
	}
}

// GetEventsSince returns messages with sequence_id > sinceSeq in order,
// along with true. It returns (nil, false) when sinceSeq predates the
// oldest id retained in history — the caller must fall back to a full
// refresh rather than trust a partial replay.
func (b *Broadcaster) GetEventsSince(sinceSeq uint64) ([]Message, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.history) == 0 {
		return []Message{}, true
	}

	oldest := b.history[0].SequenceID
	if sinceSeq < oldest {
		return nil, false
	}

	out := make([]Message, 0)
	for _, m := range b.history {
		if m.SequenceID > sinceSeq {
			out = append(out, m)
		}
	}
	return out, true
}

// OldestSequenceID returns the sequence id of the oldest message retained
// in history, and false if history is empty.
func (b *Broadcaster) OldestSequenceID() (uint64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.history) == 0 {
		return 0, false
	}
	return b.history[0].SequenceID, true
}

// CurrentSequenceID returns the number of sequence ids assigned so far,
// i.e. the id the next Publish call will assign.
func (b *Broadcaster) CurrentSequenceID() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}

// SubscriberCount returns the number of currently attached subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
