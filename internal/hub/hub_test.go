package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestHub(t *testing.T, buffer int) *Hub {
	return New(buffer, zaptest.NewLogger(t).Sugar())
}

func drain(ch *Channel) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPublishReachesEveryChannelOfOwner(t *testing.T) {
	h := newTestHub(t, 8)
	a := h.Subscribe("owner-x")
	b := h.Subscribe("owner-x")
	other := h.Subscribe("owner-y")

	sent := h.Publish("owner-x", "location-update", map[string]float64{"lat": 41.0})
	assert.Equal(t, 2, sent)

	for _, ch := range []*Channel{a, b} {
		events := drain(ch)
		require.Len(t, events, 1)
		assert.Equal(t, "location-update", events[0].Name)
		assert.JSONEq(t, `{"lat":41}`, string(events[0].Data))
	}
	assert.Empty(t, drain(other))
}

func TestFailedChannelIsPrunedWithoutAffectingSiblings(t *testing.T) {
	h := newTestHub(t, 8)
	alive := h.Subscribe("owner-x")
	dead := h.Subscribe("owner-x")
	dead.Close()

	sent := h.Publish("owner-x", "geofence-breach", map[string]string{"zone_id": "z1"})
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, h.ChannelCount("owner-x"))
	require.Len(t, drain(alive), 1)

	sent = h.Publish("owner-x", "geofence-breach", map[string]string{"zone_id": "z2"})
	assert.Equal(t, 1, sent)
	events := drain(alive)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"zone_id":"z2"}`, string(events[0].Data))
	assert.Empty(t, drain(dead))
}

func TestFullBufferIsTerminal(t *testing.T) {
	h := newTestHub(t, 1)
	slow := h.Subscribe("owner-x")

	assert.Equal(t, 1, h.Publish("owner-x", "location-update", 1))
	assert.Equal(t, 0, h.Publish("owner-x", "location-update", 2))
	assert.Equal(t, 0, h.ChannelCount("owner-x"))

	select {
	case <-slow.Done():
	default:
		t.Fatal("pruned channel should be closed")
	}
}

func TestPublishToUnknownOwner(t *testing.T) {
	h := newTestHub(t, 4)
	assert.Equal(t, 0, h.Publish("nobody", "location-update", 1))
	assert.Equal(t, 0, h.OwnerCount())
}

func TestPublishUnencodablePayload(t *testing.T) {
	h := newTestHub(t, 4)
	ch := h.Subscribe("owner-x")
	assert.Equal(t, 0, h.Publish("owner-x", "location-update", make(chan int)))
	assert.Empty(t, drain(ch))
	assert.Equal(t, 1, h.ChannelCount("owner-x"))
}

func TestUnsubscribeRemovesOwnerKey(t *testing.T) {
	h := newTestHub(t, 4)
	a := h.Subscribe("owner-x")
	b := h.Subscribe("owner-x")
	assert.Equal(t, 1, h.OwnerCount())

	h.Unsubscribe(a)
	assert.Equal(t, 1, h.ChannelCount("owner-x"))
	h.Unsubscribe(a)
	assert.Equal(t, 1, h.ChannelCount("owner-x"), "second unsubscribe is a no-op")

	h.Unsubscribe(b)
	assert.Equal(t, 0, h.OwnerCount())
}

func TestHeartbeat(t *testing.T) {
	h := newTestHub(t, 4)
	x := h.Subscribe("owner-x")
	y := h.Subscribe("owner-y")
	dead := h.Subscribe("owner-y")
	dead.Close()

	assert.Equal(t, 2, h.Heartbeat())
	assert.Equal(t, 1, h.ChannelCount("owner-y"))

	for _, ch := range []*Channel{x, y} {
		events := drain(ch)
		require.Len(t, events, 1)
		assert.True(t, events[0].IsKeepAlive())
		assert.Equal(t, "keepalive", events[0].Comment)
	}
}

func TestOrderingWithinChannel(t *testing.T) {
	h := newTestHub(t, 100)
	ch := h.Subscribe("owner-x")

	for i := 0; i < 50; i++ {
		h.Publish("owner-x", "location-update", i)
	}

	events := drain(ch)
	require.Len(t, events, 50)
	for i, ev := range events {
		var n int
		require.NoError(t, json.Unmarshal(ev.Data, &n))
		assert.Equal(t, i, n)
	}
}

func TestConcurrentSubscribePublishUnsubscribe(t *testing.T) {
	h := newTestHub(t, 16)

	var wg sync.WaitGroup
	for o := 0; o < 8; o++ {
		owner := fmt.Sprintf("owner-%d", o)
		for c := 0; c < 4; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ch := h.Subscribe(owner)
				for i := 0; i < 20; i++ {
					h.Publish(owner, "location-update", i)
					drain(ch)
				}
				if c%2 == 0 {
					ch.Close()
					h.Publish(owner, "location-update", -1)
				}
				h.Unsubscribe(ch)
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				h.Heartbeat()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, h.OwnerCount())
}

func TestRunHeartbeatStopsAndClosesChannels(t *testing.T) {
	h := newTestHub(t, 4)
	ch := h.Subscribe("owner-x")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.RunHeartbeat(ctx, 10*time.Millisecond)
		close(done)
	}()

	select {
	case ev := <-ch.Events():
		assert.True(t, ev.IsKeepAlive())
	case <-time.After(2 * time.Second):
		t.Fatal("no keep-alive received")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat loop did not stop")
	}
	select {
	case <-ch.Done():
	default:
		t.Fatal("channel should be closed on shutdown")
	}
	assert.Equal(t, 0, h.OwnerCount())
}
