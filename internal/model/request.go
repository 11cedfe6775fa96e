package model

import (
	"fmt"
	"time"
)

type RequestKind string

const (
	RequestKindRent     RequestKind = "rent"
	RequestKindExchange RequestKind = "exchange"
	RequestKindBuy      RequestKind = "buy"
)

func (k RequestKind) Valid() bool {
	switch k {
	case RequestKindRent, RequestKindExchange, RequestKindBuy:
		return true
	}
	return false
}

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusAccepted  RequestStatus = "accepted"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCompleted RequestStatus = "completed"
)

// Terminal reports whether no further transition leaves this status.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusRejected || s == RequestStatusCompleted
}

type Request struct {
	ID           uint64        `gorm:"primaryKey;autoIncrement" json:"id"`
	BookID       uint64        `gorm:"column:book_id;index;not null" json:"bookId"`
	RequesterUID string        `gorm:"column:requester_uid;size:128;index;not null" json:"requesterUid"`
	OwnerUID     string        `gorm:"column:owner_uid;size:128;index;not null" json:"ownerUid"`
	Kind         RequestKind   `gorm:"column:kind;size:16;not null" json:"kind"`
	Status       RequestStatus `gorm:"column:status;size:16;index;not null" json:"status"`
	Note         string        `gorm:"column:note;type:text" json:"note,omitempty"`
	// PendingKey is set only while the request is pending; the unique index
	// allows one pending request per (book, requester).
	PendingKey  *string    `gorm:"column:pending_key;size:191;uniqueIndex:uk_requests_pending_key" json:"-"`
	MessageSeq  uint64     `gorm:"column:message_seq;not null;default:0" json:"-"`
	RespondedAt *time.Time `gorm:"column:responded_at" json:"respondedAt,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completedAt,omitempty"`
	CompletedBy string     `gorm:"column:completed_by;size:128" json:"completedBy,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Request) TableName() string {
	return "requests"
}

func PendingKeyFor(bookID uint64, requesterUID string) string {
	return fmt.Sprintf("%d:%s", bookID, requesterUID)
}
