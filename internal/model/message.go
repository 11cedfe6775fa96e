package model

import "time"

type Message struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID   uint64    `gorm:"column:request_id;not null;uniqueIndex:uk_messages_request_seq,priority:1" json:"requestId"`
	Seq         uint64    `gorm:"column:seq;not null;uniqueIndex:uk_messages_request_seq,priority:2" json:"seq"`
	SenderUID   string    `gorm:"column:sender_uid;size:128;index;not null" json:"senderUid"`
	ReceiverUID string    `gorm:"column:receiver_uid;size:128;index;not null" json:"receiverUid"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	IsRead      bool      `gorm:"column:is_read;not null;default:false" json:"isRead"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}
