package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription binds one connection to one conversation. Its event stream
// starts at the moment of subscribing; earlier history has to be read from
// the message log.
type Subscription struct {
	ID        uuid.UUID
	RequestID uint64
	ActorUID  string

	events chan Event
	hub    *Hub
	once   sync.Once
}

// Events yields events in publish order until the subscription is closed,
// dropped for being slow, or the hub shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.Unsubscribe(s)
	})
}
