package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shinyyama/bookloop-backend/internal/model"
	"github.com/shinyyama/bookloop-backend/internal/realtime"
	"github.com/shinyyama/bookloop-backend/internal/repository"
)

type NotificationService interface {
	Notify(ctx context.Context, userUID, typ, title, body string, requestID, messageID *uint64)
	List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error)
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByRequest(ctx context.Context, userUID string, requestID uint64) error
	// HandleEvent turns a published event into notifications. It is
	// registered as a hub listener.
	HandleEvent(ctx context.Context, ev realtime.Event)
}

type notificationService struct {
	repo repository.NotificationRepository
	log  zerolog.Logger
}

func NewNotificationService(repo repository.NotificationRepository, logger zerolog.Logger) NotificationService {
	return &notificationService{repo: repo, log: logger.With().Str("component", "notifications").Logger()}
}

// Notify is best-effort; it logs errors but does not return them to avoid breaking main flows.
func (s *notificationService) Notify(ctx context.Context, userUID, typ, title, body string, requestID, messageID *uint64) {
	if userUID == "" || typ == "" {
		return
	}
	n := &model.Notification{
		UserUID:   userUID,
		Type:      typ,
		Title:     title,
		Body:      body,
		RequestID: requestID,
		MessageID: messageID,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("uid", userUID).Str("type", typ).Msg("notify failed")
	}
}

func (s *notificationService) List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error) {
	if userUID == "" {
		return nil, 0, nil
	}
	list, err := s.repo.ListByUser(ctx, userUID, unreadOnly, limit)
	if err != nil {
		return nil, 0, unavailable(err)
	}
	cnt, err := s.repo.CountUnread(ctx, userUID)
	if err != nil {
		return list, 0, unavailable(err)
	}
	return list, cnt, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userUID string) error {
	if userUID == "" {
		return nil
	}
	if err := s.repo.MarkAllRead(ctx, userUID); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *notificationService) MarkByRequest(ctx context.Context, userUID string, requestID uint64) error {
	if userUID == "" || requestID == 0 {
		return nil
	}
	if err := s.repo.MarkByRequest(ctx, userUID, requestID); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *notificationService) HandleEvent(ctx context.Context, ev realtime.Event) {
	// Detach from the caller's deadline; the mutation has already committed.
	ctx, cancel := withShortDeadline(context.WithoutCancel(ctx))
	defer cancel()

	switch ev.Type {
	case realtime.EventMessageAppended:
		if ev.Message == nil {
			return
		}
		s.Notify(ctx, ev.Message.ReceiverUID, model.NotificationMessageReceived,
			"New message", preview(ev.Message.Body), uint64Ptr(ev.RequestID), uint64Ptr(ev.Message.ID))
	case realtime.EventRequestTransitioned:
		if ev.Request == nil || ev.Transition == nil {
			return
		}
		req := ev.Request
		switch ev.Transition.To {
		case model.RequestStatusPending:
			s.Notify(ctx, req.OwnerUID, model.NotificationRequestCreated,
				"New "+string(req.Kind)+" request", preview(req.Note), uint64Ptr(req.ID), nil)
		case model.RequestStatusAccepted:
			s.Notify(ctx, req.RequesterUID, model.NotificationRequestAccepted,
				"Your request was accepted", "", uint64Ptr(req.ID), nil)
		case model.RequestStatusRejected:
			s.Notify(ctx, req.RequesterUID, model.NotificationRequestRejected,
				"Your request was declined", "", uint64Ptr(req.ID), nil)
		case model.RequestStatusCompleted:
			other := req.OwnerUID
			if ev.Transition.ActorUID == req.OwnerUID {
				other = req.RequesterUID
			}
			s.Notify(ctx, other, model.NotificationRequestCompleted,
				"Transaction completed", "", uint64Ptr(req.ID), nil)
		}
	}
}

func preview(body string) string {
	r := []rune(body)
	if len(r) > 80 {
		return string(r[:80]) + "…"
	}
	return body
}

// helper to return pointer
func uint64Ptr(v uint64) *uint64 {
	return &v
}

// withShortDeadline wraps context with a short deadline to avoid blocking main flow.
func withShortDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 2*time.Second)
}
