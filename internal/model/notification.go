package model

import "time"

const (
	NotificationRequestCreated   = "request_created"
	NotificationRequestAccepted  = "request_accepted"
	NotificationRequestRejected  = "request_rejected"
	NotificationRequestCompleted = "request_completed"
	NotificationMessageReceived  = "message_received"
)

type Notification struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement"`
	UserUID   string     `gorm:"column:user_uid;size:128;index;not null"`
	Type      string     `gorm:"column:type;size:64;not null"`
	Title     string     `gorm:"column:title;size:255"`
	Body      string     `gorm:"column:body;type:text"`
	RequestID *uint64    `gorm:"column:request_id;index"`
	MessageID *uint64    `gorm:"column:message_id"`
	ReadAt    *time.Time `gorm:"column:read_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
}

func (Notification) TableName() string {
	return "notifications"
}
