package repository

import (
	"context"
	"time"

	"github.com/shinyyama/bookloop-backend/internal/model"
	"gorm.io/gorm"
)

type RequestFilter struct {
	Role   string // all, incoming (owner), outgoing (requester)
	Status model.RequestStatus
	Limit  int
}

type Transition struct {
	ID       uint64
	From     model.RequestStatus
	To       model.RequestStatus
	ActorUID string
	At       time.Time
}

type RequestRepository interface {
	Create(ctx context.Context, req *model.Request) error
	FindByID(ctx context.Context, id uint64) (*model.Request, error)
	FindPending(ctx context.Context, bookID uint64, requesterUID string) (*model.Request, error)
	Transition(ctx context.Context, t Transition) (*model.Request, error)
	ListForUser(ctx context.Context, uid string, filter RequestFilter) ([]model.Request, error)
	ListByBook(ctx context.Context, bookID uint64) ([]model.Request, error)
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *model.Request) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	if req.Status == model.RequestStatusPending {
		key := model.PendingKeyFor(req.BookID, req.RequesterUID)
		req.PendingKey = &key
	}
	return translate(r.db.WithContext(ctx).Create(req).Error)
}

func (r *requestRepository) FindByID(ctx context.Context, id uint64) (*model.Request, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var req model.Request
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindPending(ctx context.Context, bookID uint64, requesterUID string) (*model.Request, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var req model.Request
	if err := r.db.WithContext(ctx).
		Where("pending_key = ?", model.PendingKeyFor(bookID, requesterUID)).
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// Transition moves a request from t.From to t.To with a conditional update,
// then re-derives the listing status of its book in the same transaction.
// ErrStaleStatus is returned when the request was not in t.From.
func (r *requestRepository) Transition(ctx context.Context, t Transition) (*model.Request, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	updates := map[string]interface{}{
		"status":     t.To,
		"updated_at": t.At,
	}
	if t.From == model.RequestStatusPending {
		updates["pending_key"] = nil
		updates["responded_at"] = t.At
	}
	if t.To == model.RequestStatusCompleted {
		updates["completed_at"] = t.At
		updates["completed_by"] = t.ActorUID
	}

	var out model.Request
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Request{}).
			Where("id = ? AND status = ?", t.ID, t.From).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleStatus
		}
		if err := tx.First(&out, t.ID).Error; err != nil {
			return err
		}
		var siblings []model.Request
		if err := tx.Where("book_id = ?", out.BookID).Find(&siblings).Error; err != nil {
			return err
		}
		return tx.Model(&model.Book{}).
			Where("id = ?", out.BookID).
			Update("status", model.DeriveBookStatus(siblings)).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *requestRepository) ListForUser(ctx context.Context, uid string, filter RequestFilter) ([]model.Request, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	q := r.db.WithContext(ctx).Model(&model.Request{})
	switch filter.Role {
	case "incoming":
		q = q.Where("owner_uid = ?", uid)
	case "outgoing":
		q = q.Where("requester_uid = ?", uid)
	default:
		q = q.Where("(owner_uid = ? OR requester_uid = ?)", uid, uid)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	limit := clampLimit(filter.Limit, 50, 100)
	var list []model.Request
	if err := q.Order("updated_at DESC").Order("id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *requestRepository) ListByBook(ctx context.Context, bookID uint64) ([]model.Request, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Request
	if err := r.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// clampLimit returns def for a missing limit and caps the rest at ceiling.
func clampLimit(limit, def, ceiling int) int {
	if limit <= 0 {
		return def
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}
