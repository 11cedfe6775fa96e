package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shinyyama/bookloop-backend/internal/guard"
	"github.com/shinyyama/bookloop-backend/internal/metrics"
	"github.com/shinyyama/bookloop-backend/internal/model"
	"github.com/shinyyama/bookloop-backend/internal/realtime"
	"github.com/shinyyama/bookloop-backend/internal/repository"
	"gorm.io/gorm"
)

type CreateRequestInput struct {
	BookID       uint64
	RequesterUID string
	// OwnerUID is optional; when set it must match the book's owner.
	OwnerUID string
	Kind     model.RequestKind
	Note     string
}

type ListFilter struct {
	Role   string // all, incoming, outgoing
	Status model.RequestStatus
	Limit  int
}

// RequestView is a request as seen by one participant.
type RequestView struct {
	model.Request
	UnreadCount int64 `json:"unreadCount"`
}

type RequestService interface {
	CreateRequest(ctx context.Context, in CreateRequestInput) (*model.Request, error)
	Accept(ctx context.Context, requestID uint64, actorUID string) (*model.Request, error)
	Reject(ctx context.Context, requestID uint64, actorUID string) (*model.Request, error)
	Complete(ctx context.Context, requestID uint64, actorUID string) (*model.Request, error)
	Get(ctx context.Context, requestID uint64, actorUID string) (*model.Request, error)
	ListForUser(ctx context.Context, actorUID string, f ListFilter) ([]RequestView, error)
}

type requestService struct {
	requests repository.RequestRepository
	messages repository.MessageRepository
	books    repository.BookRepository
	pub      realtime.Publisher
	locks    *KeyedLock
	log      zerolog.Logger
}

func NewRequestService(
	requests repository.RequestRepository,
	messages repository.MessageRepository,
	books repository.BookRepository,
	pub realtime.Publisher,
	locks *KeyedLock,
	logger zerolog.Logger,
) RequestService {
	return &requestService{
		requests: requests,
		messages: messages,
		books:    books,
		pub:      pub,
		locks:    locks,
		log:      logger.With().Str("component", "requests").Logger(),
	}
}

func (s *requestService) CreateRequest(ctx context.Context, in CreateRequestInput) (*model.Request, error) {
	if !in.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	if in.RequesterUID == "" {
		return nil, ErrInvalidActor
	}
	book, err := s.books.FindByID(ctx, in.BookID)
	if err != nil {
		return nil, lookupErr(err)
	}
	owner := book.OwnerUID
	if in.OwnerUID != "" && in.OwnerUID != owner {
		return nil, ErrInvalidActor
	}
	if in.RequesterUID == owner {
		return nil, ErrInvalidActor
	}
	if !book.Offers(in.Kind) {
		return nil, ErrInvalidKind
	}

	if _, err := s.requests.FindPending(ctx, book.ID, in.RequesterUID); err == nil {
		return nil, ErrDuplicatePending
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, unavailable(err)
	}

	req := &model.Request{
		BookID:       book.ID,
		RequesterUID: in.RequesterUID,
		OwnerUID:     owner,
		Kind:         in.Kind,
		Status:       model.RequestStatusPending,
		Note:         in.Note,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		// Lost a race with a concurrent create for the same pair.
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicatePending
		}
		return nil, unavailable(err)
	}

	metrics.RequestsCreated.WithLabelValues(string(req.Kind)).Inc()
	s.log.Info().
		Uint64("request_id", req.ID).
		Uint64("book_id", req.BookID).
		Str("requester", req.RequesterUID).
		Str("kind", string(req.Kind)).
		Msg("request created")
	s.publish(ctx, realtime.RequestTransitioned(req, "", req.RequesterUID))
	return req, nil
}

func (s *requestService) Accept(ctx context.Context, requestID uint64, actorUID string) (*model.Request, error) {
	return s.transition(ctx, requestID, actorUID, model.RequestStatusPending, model.RequestStatusAccepted, guard.CanRespond)
}

func (s *requestService) Reject(ctx context.Context, requestID uint64, actorUID string) (*model.Request, error) {
	return s.transition(ctx, requestID, actorUID, model.RequestStatusPending, model.RequestStatusRejected, guard.CanRespond)
}

func (s *requestService) Complete(ctx context.Context, requestID uint64, actorUID string) (*model.Request, error) {
	return s.transition(ctx, requestID, actorUID, model.RequestStatusAccepted, model.RequestStatusCompleted, guard.CanComplete)
}

// transition applies one edge of the state machine. The actor check runs
// before the status check, so an outsider always gets ErrForbidden.
func (s *requestService) transition(
	ctx context.Context,
	requestID uint64,
	actorUID string,
	from, to model.RequestStatus,
	allowed func(string, *model.Request) bool,
) (*model.Request, error) {
	unlock, err := s.locks.Lock(ctx, requestID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer unlock()

	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, lookupErr(err)
	}
	if !allowed(actorUID, req) {
		return nil, ErrForbidden
	}
	if req.Status != from {
		return nil, ErrInvalidTransition
	}

	out, err := s.requests.Transition(ctx, repository.Transition{
		ID:       requestID,
		From:     from,
		To:       to,
		ActorUID: actorUID,
		At:       time.Now().UTC(),
	})
	if err != nil {
		// Another instance moved the request first.
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, ErrInvalidTransition
		}
		return nil, unavailable(err)
	}

	metrics.RequestTransitions.WithLabelValues(string(to)).Inc()
	s.log.Info().
		Uint64("request_id", requestID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", actorUID).
		Msg("request transitioned")
	s.publish(ctx, realtime.RequestTransitioned(out, from, actorUID))
	return out, nil
}

func (s *requestService) Get(ctx context.Context, requestID uint64, actorUID string) (*model.Request, error) {
	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, lookupErr(err)
	}
	if !guard.IsParticipant(actorUID, req) {
		return nil, ErrForbidden
	}
	return req, nil
}

func (s *requestService) ListForUser(ctx context.Context, actorUID string, f ListFilter) ([]RequestView, error) {
	if actorUID == "" {
		return nil, ErrInvalidActor
	}
	list, err := s.requests.ListForUser(ctx, actorUID, repository.RequestFilter{
		Role:   f.Role,
		Status: f.Status,
		Limit:  f.Limit,
	})
	if err != nil {
		return nil, unavailable(err)
	}
	ids := make([]uint64, 0, len(list))
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	unread, err := s.messages.UnreadCounts(ctx, actorUID, ids)
	if err != nil {
		return nil, unavailable(err)
	}
	views := make([]RequestView, 0, len(list))
	for _, r := range list {
		views = append(views, RequestView{Request: r, UnreadCount: unread[r.ID]})
	}
	return views, nil
}

// publish is best-effort: the change is already committed, so a broker
// failure is logged and never turned into an error for the caller.
func (s *requestService) publish(ctx context.Context, ev realtime.Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, ev.RequestID, ev); err != nil {
		s.log.Warn().Err(err).Uint64("request_id", ev.RequestID).Str("type", string(ev.Type)).Msg("publish failed")
	}
}
