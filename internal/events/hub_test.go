package events

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/codebot/internal/domain"
)

func TestHubDeliversToConversationSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewHub(4)
	defer hub.Close()

	a1, err := hub.Subscribe(1)
	require.NoError(t, err)
	a2, err := hub.Subscribe(1)
	require.NoError(t, err)
	b, err := hub.Subscribe(2)
	require.NoError(t, err)

	hub.Publish(1, Progress("Compiling"))

	for _, sub := range []*Subscription{a1, a2} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, EventProgress, ev.Name)
		default:
			t.Fatalf("subscriber %s did not receive event", sub.ID)
		}
	}
	select {
	case ev := <-b.Events():
		t.Fatalf("other conversation received %v", ev)
	default:
	}
}

func TestHubDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	hub := NewHub(1)
	defer hub.Close()

	sub, err := hub.Subscribe(1)
	require.NoError(t, err)

	hub.Publish(1, Progress("first"))
	hub.Publish(1, Progress("second"))

	ev := <-sub.Events()
	assert.Equal(t, "first", ev.Data.(Notification).Content)
	select {
	case ev := <-sub.Events():
		t.Fatalf("expected dropped event, got %v", ev)
	default:
	}
}

func TestHubNoReplayForLateSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewHub(4)
	defer hub.Close()

	hub.Publish(1, Progress("early"))
	sub, err := hub.Subscribe(1)
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		t.Fatalf("late subscriber received %v", ev)
	default:
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	hub := NewHub(4)
	sub, err := hub.Subscribe(3)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.Subscribers(3))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Subscribers(3))

	_, ok := <-sub.Events()
	assert.False(t, ok)

	hub.Publish(3, Progress("after close"))
	hub.Close()
	sub.Close()
}

func TestHubCloseEndsSubscriptions(t *testing.T) {
	t.Parallel()

	hub := NewHub(4)
	sub, err := hub.Subscribe(1)
	require.NoError(t, err)

	hub.Close()
	hub.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)

	_, err = hub.Subscribe(1)
	assert.ErrorIs(t, err, ErrHubClosed)

	hub.Publish(1, Progress("ignored"))
}

func TestHubConcurrentPublishAndUnsubscribe(t *testing.T) {
	t.Parallel()

	hub := NewHub(8)
	defer hub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub, err := hub.Subscribe(1)
			if err != nil {
				return
			}
			sub.Close()
		}()
		go func() {
			defer wg.Done()
			hub.Publish(1, Progress("tick"))
		}()
	}
	wg.Wait()
}

func TestEventWireShape(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Answer("done", domain.VariantSuccess, false))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"server:return:question:answer","data":{"role":"assistant","content":"done","variant":"success"}}`, string(data))

	data, err = json.Marshal(Answer("code", domain.VariantInfo, true))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"server:return:question:answer","data":{"role":"assistant","content":"code","variant":"info","isPending":true}}`, string(data))

	data, err = json.Marshal(Welcome())
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"welcome","data":{"role":"assistant","content":"Welcome","variant":"info"}}`, string(data))
}
