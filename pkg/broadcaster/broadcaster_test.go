package broadcaster

import (
	"testing"

	"github.com/graphkeep/graphkeep/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent(id uint64) types.Event {
	return types.Event{EventID: id, EventType: types.EventEntityCreated}
}

func TestPublish_FirstEventGetsSequenceZero(t *testing.T) {
	b := New(10, 10)
	msg := b.Publish(newEvent(1))
	assert.Equal(t, uint64(0), msg.SequenceID)
}

func TestPublish_SequenceIDsAreStrictlyIncreasing(t *testing.T) {
	b := New(10, 10)
	var last uint64
	for i := 0; i < 20; i++ {
		msg := b.Publish(newEvent(uint64(i)))
		if i > 0 {
			assert.Greater(t, msg.SequenceID, last)
		}
		last = msg.SequenceID
	}
}

func TestSubscribe_DoesNotReceiveHistory(t *testing.T) {
	b := New(10, 10)
	b.Publish(newEvent(1))
	b.Publish(newEvent(2))

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	select {
	case msg := <-sub:
		t.Fatalf("subscriber should not receive pre-existing history, got %+v", msg)
	default:
	}
}

func TestSubscribe_ReceivesSubsequentPublishes(t *testing.T) {
	b := New(10, 10)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(newEvent(1))

	msg := <-sub
	assert.Equal(t, uint64(0), msg.SequenceID)
}

func TestPublish_SlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	b := New(10, 1)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(newEvent(uint64(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-sub:
	}
}

func TestBroadcastReplayWindow(t *testing.T) {
	// spec scenario: publish 1005 events into a history of size 1000.
	b := New(1000, 10)

	var last Message
	for i := 0; i < 1005; i++ {
		last = b.Publish(newEvent(uint64(i)))
	}

	_, ok := b.GetEventsSince(0)
	assert.False(t, ok, "GetEventsSince(0) must require a full refresh once history has rotated past id 0")

	msgs, ok := b.GetEventsSince(1003)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, uint64(1004), msgs[0].SequenceID)

	assert.Equal(t, uint64(1005), b.CurrentSequenceID())
	assert.Equal(t, uint64(1004), last.SequenceID)
}

func TestGetEventsSince_WithinWindowReturnsOrderedTail(t *testing.T) {
	b := New(100, 10)
	for i := 0; i < 10; i++ {
		b.Publish(newEvent(uint64(i)))
	}

	msgs, ok := b.GetEventsSince(5)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		assert.Equal(t, uint64(6+i), m.SequenceID)
	}
}

func TestGetEventsSince_EmptyHistoryReturnsEmptyNotNone(t *testing.T) {
	b := New(10, 10)
	msgs, ok := b.GetEventsSince(0)
	require.True(t, ok)
	assert.Empty(t, msgs)
}

func TestOldestSequenceID(t *testing.T) {
	b := New(3, 10)
	_, ok := b.OldestSequenceID()
	assert.False(t, ok)

	for i := 0; i < 5; i++ {
		b.Publish(newEvent(uint64(i)))
	}

	oldest, ok := b.OldestSequenceID()
	require.True(t, ok)
	assert.Equal(t, uint64(2), oldest)
}

func TestSubscriberCount(t *testing.T) {
	b := New(10, 10)
	assert.Equal(t, 0, b.SubscriberCount())

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Unsubscribe(sub1)
	assert.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub2)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	b := New(10, 10)
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	assert.NotPanics(t, func() { b.Unsubscribe(sub) })
}
