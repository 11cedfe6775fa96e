package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shinyyama/bookloop-backend/internal/guard"
	"github.com/shinyyama/bookloop-backend/internal/metrics"
	"github.com/shinyyama/bookloop-backend/internal/model"
	"github.com/shinyyama/bookloop-backend/internal/realtime"
	"github.com/shinyyama/bookloop-backend/internal/repository"
)

type ConversationService interface {
	AppendMessage(ctx context.Context, requestID uint64, senderUID, body string) (*model.Message, error)
	// ListMessages returns messages with Seq > afterSeq, oldest first.
	// afterSeq 0 returns the whole history.
	ListMessages(ctx context.Context, requestID uint64, actorUID string, afterSeq uint64) ([]model.Message, error)
	MarkRead(ctx context.Context, requestID uint64, actorUID string) (int64, error)
}

type conversationService struct {
	requests      repository.RequestRepository
	messages      repository.MessageRepository
	notifications NotificationService
	pub           realtime.Publisher
	locks         *KeyedLock
	log           zerolog.Logger
}

func NewConversationService(
	requests repository.RequestRepository,
	messages repository.MessageRepository,
	notifications NotificationService,
	pub realtime.Publisher,
	locks *KeyedLock,
	logger zerolog.Logger,
) ConversationService {
	return &conversationService{
		requests:      requests,
		messages:      messages,
		notifications: notifications,
		pub:           pub,
		locks:         locks,
		log:           logger.With().Str("component", "conversations").Logger(),
	}
}

func (s *conversationService) AppendMessage(ctx context.Context, requestID uint64, senderUID, body string) (*model.Message, error) {
	unlock, err := s.locks.Lock(ctx, requestID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer unlock()

	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, lookupErr(err)
	}
	if !guard.CanMessage(senderUID, req) {
		return nil, ErrForbidden
	}
	body = strings.TrimSpace(body)
	if err := validateBody(body); err != nil {
		return nil, err
	}
	receiver, err := guard.OtherParticipant(senderUID, req)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		RequestID:   requestID,
		SenderUID:   senderUID,
		ReceiverUID: receiver,
		Body:        body,
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		// The request left accepted after we loaded it.
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, ErrForbidden
		}
		return nil, unavailable(err)
	}

	metrics.MessagesAppended.Inc()
	// Still under the request lock, so live order follows Seq.
	if s.pub != nil {
		if err := s.pub.Publish(ctx, requestID, realtime.MessageAppended(msg)); err != nil {
			s.log.Warn().Err(err).Uint64("request_id", requestID).Uint64("seq", msg.Seq).Msg("publish failed")
		}
	}
	return msg, nil
}

func (s *conversationService) ListMessages(ctx context.Context, requestID uint64, actorUID string, afterSeq uint64) ([]model.Message, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, lookupErr(err)
	}
	if !guard.IsParticipant(actorUID, req) {
		return nil, ErrForbidden
	}
	msgs, err := s.messages.List(ctx, requestID, afterSeq)
	if err != nil {
		return nil, unavailable(err)
	}
	return msgs, nil
}

func (s *conversationService) MarkRead(ctx context.Context, requestID uint64, actorUID string) (int64, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return 0, lookupErr(err)
	}
	if !guard.IsParticipant(actorUID, req) {
		return 0, ErrForbidden
	}
	n, err := s.messages.MarkRead(ctx, requestID, actorUID)
	if err != nil {
		return 0, unavailable(err)
	}
	if s.notifications != nil {
		if err := s.notifications.MarkByRequest(ctx, actorUID, requestID); err != nil {
			s.log.Warn().Err(err).Uint64("request_id", requestID).Msg("mark notifications read failed")
		}
	}
	return n, nil
}
