// ABOUTME: Tests for StateBroadcaster snapshot fan-out
// ABOUTME: Covers subscribe, publish, conflation, unsubscribe, context cancellation, concurrency

package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateWithResponse(text string) State {
	return State{Phase: PhaseProcessing, IsProcessing: true, CurrentResponse: text}
}

func TestBroadcaster_SingleSubscriberReceivesState(t *testing.T) {
	b := NewStateBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context())

	b.Publish(stateWithResponse("Hi"))

	select {
	case received := <-ch:
		assert.Equal(t, "Hi", received.CurrentResponse)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state")
	}
}

func TestBroadcaster_MultipleSubscribersReceiveSameState(t *testing.T) {
	b := NewStateBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()
	ch1, _ := b.Subscribe(ctx)
	ch2, _ := b.Subscribe(ctx)
	ch3, _ := b.Subscribe(ctx)

	b.Publish(stateWithResponse("same"))

	for i, ch := range []<-chan State{ch1, ch2, ch3} {
		select {
		case received := <-ch:
			assert.Equal(t, "same", received.CurrentResponse, "subscriber %d got wrong state", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBroadcaster_SlowSubscriberSeesLatestState(t *testing.T) {
	b := NewStateBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context())

	// Overflow the buffer without reading.
	var last string
	for i := range subscriberBufferSize * 4 {
		last = string(rune('a' + i%26))
		b.Publish(stateWithResponse(last))
	}

	var drained []State
	for {
		select {
		case s := <-ch:
			drained = append(drained, s)
			continue
		default:
		}
		break
	}

	require.NotEmpty(t, drained)
	assert.LessOrEqual(t, len(drained), subscriberBufferSize)
	assert.Equal(t, last, drained[len(drained)-1].CurrentResponse)
}

func TestBroadcaster_SlowConsumerDoesNotBlockPublisher(t *testing.T) {
	b := NewStateBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()

	// Never read from the first subscriber.
	_, _ = b.Subscribe(ctx)
	ch2, _ := b.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		for range 100 {
			b.Publish(stateWithResponse("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}

	select {
	case <-ch2:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber received nothing")
	}
}

func TestBroadcaster_ContextCancellationCleansUp(t *testing.T) {
	b := NewStateBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)
	assert.Equal(t, 1, b.Subscribers())

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after context cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}
	assert.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_ManualUnsubscribe(t *testing.T) {
	b := NewStateBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(t.Context())

	b.Unsubscribe(subID)

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after unsubscribe")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// Publishing and double unsubscribe should not panic
	b.Publish(stateWithResponse("after"))
	b.Unsubscribe(subID)
}

func TestBroadcaster_CloseClosesAllSubscriptions(t *testing.T) {
	b := NewStateBroadcaster(nil)

	ch1, _ := b.Subscribe(t.Context())
	ch2, _ := b.Subscribe(t.Context())

	b.Close()

	for i, ch := range []<-chan State{ch1, ch2} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "channel %d should be closed after Close()", i)
		case <-time.After(time.Second):
			t.Fatalf("channel %d not closed after Close()", i)
		}
	}
}

func TestBroadcaster_SubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	b := NewStateBroadcaster(nil)
	b.Close()

	ch, _ := b.Subscribe(t.Context())

	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroadcaster_ConcurrentPublishSubscribe(t *testing.T) {
	b := NewStateBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	ctx := t.Context()

	for range 10 {
		wg.Go(func() {
			subCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			ch, _ := b.Subscribe(subCtx)
			for range 5 {
				select {
				case <-ch:
				case <-time.After(500 * time.Millisecond):
					return
				}
			}
		})
	}

	for range 10 {
		wg.Go(func() {
			for range 10 {
				b.Publish(stateWithResponse("concurrent"))
			}
		})
	}

	wg.Wait()
}

func TestBroadcaster_SubscribeReturnsUniqueIDs(t *testing.T) {
	b := NewStateBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()
	_, id1 := b.Subscribe(ctx)
	_, id2 := b.Subscribe(ctx)

	require.NotEqual(t, id1, id2)
}
