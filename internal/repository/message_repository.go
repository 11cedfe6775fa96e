package repository

import (
	"context"

	"github.com/shinyyama/bookloop-backend/internal/model"
	"gorm.io/gorm"
)

type MessageRepository interface {
	Append(ctx context.Context, msg *model.Message) error
	List(ctx context.Context, requestID, afterSeq uint64) ([]model.Message, error)
	MarkRead(ctx context.Context, requestID uint64, receiverUID string) (int64, error)
	UnreadCounts(ctx context.Context, receiverUID string, requestIDs []uint64) (map[uint64]int64, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Append allocates the next sequence number of the conversation and inserts
// msg in one transaction. The counter lives on the request row and is only
// bumped while the request is accepted, so an append racing with a
// completion either lands before it or fails with ErrStaleStatus.
func (r *messageRepository) Append(ctx context.Context, msg *model.Message) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Request{}).
			Where("id = ? AND status = ?", msg.RequestID, model.RequestStatusAccepted).
			Updates(map[string]interface{}{
				"message_seq": gorm.Expr("message_seq + ?", 1),
				"updated_at":  tx.NowFunc(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStaleStatus
		}
		var cur model.Request
		if err := tx.Select("id", "message_seq").First(&cur, msg.RequestID).Error; err != nil {
			return err
		}
		msg.Seq = cur.MessageSeq
		return translate(tx.Create(msg).Error)
	})
}

func (r *messageRepository) List(ctx context.Context, requestID, afterSeq uint64) ([]model.Message, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	msgs := make([]model.Message, 0)
	if err := r.db.WithContext(ctx).
		Where("request_id = ? AND seq > ?", requestID, afterSeq).
		Order("seq ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *messageRepository) MarkRead(ctx context.Context, requestID uint64, receiverUID string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("request_id = ? AND receiver_uid = ? AND is_read = ?", requestID, receiverUID, false).
		Update("is_read", true)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *messageRepository) UnreadCounts(ctx context.Context, receiverUID string, requestIDs []uint64) (map[uint64]int64, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	counts := make(map[uint64]int64, len(requestIDs))
	if len(requestIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		RequestID uint64
		Unread    int64
	}
	if err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Select("request_id, COUNT(*) AS unread").
		Where("receiver_uid = ? AND is_read = ? AND request_id IN ?", receiverUID, false, requestIDs).
		Group("request_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.RequestID] = row.Unread
	}
	return counts, nil
}
