package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shinyyama/bookloop-backend/internal/metrics"
)

var ErrHubClosed = errors.New("realtime hub closed")

const defaultBuffer = 64

// Hub is the process-local subscriber table. Each conversation maps to the
// set of its open subscriptions. Fan-out never blocks: a subscription whose
// buffer is full is closed and removed, and its reader must resync from the
// message history.
type Hub struct {
	mu        sync.Mutex
	subs      map[uint64]map[uuid.UUID]*Subscription
	listeners []Listener
	buffer    int
	closed    bool
	log       zerolog.Logger
}

func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[uint64]map[uuid.UUID]*Subscription),
		buffer: buffer,
		log:    logger.With().Str("component", "hub").Logger(),
	}
}

// AddListener registers fn for every event published through this hub.
// Events delivered from other instances are not passed to listeners.
func (h *Hub) AddListener(fn Listener) {
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

// Subscribe opens a subscription on a conversation. Authorization is the
// caller's job.
func (h *Hub) Subscribe(requestID uint64, actorUID string) (*Subscription, error) {
	sub := &Subscription{
		ID:        uuid.New(),
		RequestID: requestID,
		ActorUID:  actorUID,
		events:    make(chan Event, h.buffer),
		hub:       h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	set, ok := h.subs[requestID]
	if !ok {
		set = make(map[uuid.UUID]*Subscription)
		h.subs[requestID] = set
	}
	set[sub.ID] = sub
	metrics.Subscribers.Inc()

	h.log.Debug().
		Str("sub_id", sub.ID.String()).
		Uint64("request_id", requestID).
		Str("uid", actorUID).
		Msg("subscribed")
	return sub, nil
}

// Publish stamps ev, fans it out to the conversation's subscribers and then
// runs the listeners. It never fails.
func (h *Hub) Publish(ctx context.Context, requestID uint64, ev Event) error {
	ev.RequestID = requestID
	stamp(&ev)
	h.fanOut(ev, "local")

	h.mu.Lock()
	listeners := h.listeners
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(ctx, ev)
	}
	return nil
}

// Deliver fans out an event that was already published on another instance.
func (h *Hub) Deliver(ev Event) {
	stamp(&ev)
	h.fanOut(ev, "relay")
}

func (h *Hub) fanOut(ev Event, origin string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for id, sub := range h.subs[ev.RequestID] {
		select {
		case sub.events <- ev:
		default:
			h.removeLocked(ev.RequestID, id)
			metrics.SubscribersDropped.Inc()
			h.log.Warn().
				Str("sub_id", id.String()).
				Uint64("request_id", ev.RequestID).
				Msg("subscriber too slow, dropped")
		}
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Type), origin).Inc()
}

// Unsubscribe closes sub. Calling it more than once is harmless.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	h.removeLocked(sub.RequestID, sub.ID)
	h.mu.Unlock()
}

// removeLocked must be called with h.mu held. Channels are only closed here,
// under the same lock fan-out sends under.
func (h *Hub) removeLocked(requestID uint64, id uuid.UUID) {
	set, ok := h.subs[requestID]
	if !ok {
		return
	}
	sub, ok := set[id]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(h.subs, requestID)
	}
	close(sub.events)
	metrics.Subscribers.Dec()
}

// SubscriberCount returns the number of open subscriptions on a
// conversation.
func (h *Hub) SubscriberCount(requestID uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[requestID])
}

// Close ends every open subscription. Later Subscribe calls fail.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for requestID, set := range h.subs {
		for id := range set {
			h.removeLocked(requestID, id)
		}
	}
	h.closed = true
}
