package service

import (
	"context"

	"github.com/shinyyama/bookloop-backend/internal/guard"
	"github.com/shinyyama/bookloop-backend/internal/realtime"
	"github.com/shinyyama/bookloop-backend/internal/repository"
)

// Subscriber opens live subscriptions; *realtime.Hub implements it.
type Subscriber interface {
	Subscribe(requestID uint64, actorUID string) (*realtime.Subscription, error)
}

type StreamService interface {
	// Subscribe opens a live feed of a conversation for a participant. The
	// feed carries only events published after this call returns.
	Subscribe(ctx context.Context, requestID uint64, actorUID string) (*realtime.Subscription, error)
}

type streamService struct {
	requests repository.RequestRepository
	hub      Subscriber
}

func NewStreamService(requests repository.RequestRepository, hub Subscriber) StreamService {
	return &streamService{requests: requests, hub: hub}
}

func (s *streamService) Subscribe(ctx context.Context, requestID uint64, actorUID string) (*realtime.Subscription, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, lookupErr(err)
	}
	if !guard.IsParticipant(actorUID, req) {
		return nil, ErrForbidden
	}
	sub, err := s.hub.Subscribe(requestID, actorUID)
	if err != nil {
		return nil, unavailable(err)
	}
	return sub, nil
}
