// Package hub is the per-owner broadcast registry. Each owner maps to the set
// of subscriber channels currently attached for it; publishing fans an event
// out to that set and drops every channel that cannot take it.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fleet-monitor/locintel/internal/metrics"
)

const (
	DefaultBuffer            = 64
	DefaultHeartbeatInterval = 25 * time.Second

	keepAliveComment = "keepalive"
)

type Hub struct {
	mu     sync.RWMutex
	owners map[string]map[*Channel]struct{}

	buffer int
	nextID atomic.Uint64
	logger *zap.SugaredLogger
}

func New(buffer int, logger *zap.SugaredLogger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		owners: make(map[string]map[*Channel]struct{}),
		buffer: buffer,
		logger: logger.Named("hub"),
	}
}

// Subscribe registers a new channel for ownerID.
func (h *Hub) Subscribe(ownerID string) *Channel {
	ch := newChannel(h.nextID.Add(1), ownerID, h.buffer)

	h.mu.Lock()
	set, ok := h.owners[ownerID]
	if !ok {
		set = make(map[*Channel]struct{})
		h.owners[ownerID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	metrics.HubChannels.Inc()
	h.logger.Debugw("Channel subscribed", "owner_id", ownerID, "channel_id", ch.id)
	return ch
}

// Unsubscribe removes exactly ch and closes it. Removing a channel that is
// already gone is a no-op.
func (h *Hub) Unsubscribe(ch *Channel) {
	if h.remove(ch) {
		h.logger.Debugw("Channel unsubscribed", "owner_id", ch.ownerID, "channel_id", ch.id)
	}
	ch.Close()
}

// remove reports whether ch was still registered.
func (h *Hub) remove(ch *Channel) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.owners[ch.ownerID]
	if !ok {
		return false
	}
	if _, ok := set[ch]; !ok {
		return false
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(h.owners, ch.ownerID)
	}
	metrics.HubChannels.Dec()
	return true
}

// Publish sends an event to every channel of ownerID and returns how many
// accepted it. Channels that fail are pruned; the failure is not reported.
func (h *Hub) Publish(ownerID, eventName string, payload interface{}) int {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Errorw("Failed to encode event", "owner_id", ownerID, "event", eventName, "error", err)
		return 0
	}
	return h.deliver(h.snapshot(ownerID), Event{Name: eventName, Data: data})
}

// Heartbeat sends a keep-alive to every channel of every owner.
func (h *Hub) Heartbeat() int {
	return h.deliver(h.snapshot(""), Event{Comment: keepAliveComment})
}

// RunHeartbeat calls Heartbeat every interval until ctx is done.
func (h *Hub) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Heartbeat()
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// ChannelCount is the number of channels registered for ownerID.
func (h *Hub) ChannelCount(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners[ownerID])
}

// OwnerCount is the number of owners with at least one channel.
func (h *Hub) OwnerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners)
}

// snapshot copies the channel set of ownerID, or of every owner when ownerID
// is empty, so sends happen outside the lock.
func (h *Hub) snapshot(ownerID string) []*Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if ownerID != "" {
		set := h.owners[ownerID]
		out := make([]*Channel, 0, len(set))
		for ch := range set {
			out = append(out, ch)
		}
		return out
	}

	var out []*Channel
	for _, set := range h.owners {
		for ch := range set {
			out = append(out, ch)
		}
	}
	return out
}

func (h *Hub) deliver(channels []*Channel, ev Event) int {
	sent := 0
	for _, ch := range channels {
		if err := ch.send(ev); err != nil {
			if h.remove(ch) {
				metrics.HubChannelsPruned.Inc()
				h.logger.Debugw("Pruned channel", "owner_id", ch.ownerID, "channel_id", ch.id, "reason", err.Error())
			}
			ch.Close()
			continue
		}
		sent++
	}
	metrics.HubEventsSent.Add(float64(sent))
	return sent
}

func (h *Hub) closeAll() {
	for _, ch := range h.snapshot("") {
		h.Unsubscribe(ch)
	}
}
