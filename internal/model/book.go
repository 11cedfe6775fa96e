package model

import "time"

type BookStatus string

const (
	BookStatusAvailable BookStatus = "available"
	BookStatusRequested BookStatus = "requested"
	BookStatusRented    BookStatus = "rented"
	BookStatusExchanged BookStatus = "exchanged"
	BookStatusSold      BookStatus = "sold"
)

// Book is the listing collaborator's catalog row. The core only reads it,
// except for Status which is derived from the book's requests.
type Book struct {
	ID                   uint64     `gorm:"primaryKey;autoIncrement"`
	OwnerUID             string     `gorm:"column:owner_uid;size:128;index;not null"`
	Title                string     `gorm:"size:200;not null"`
	Author               string     `gorm:"size:200"`
	AvailableForRent     bool       `gorm:"column:available_for_rent"`
	AvailableForExchange bool       `gorm:"column:available_for_exchange"`
	AvailableForSale     bool       `gorm:"column:available_for_sale"`
	Status               BookStatus `gorm:"column:status;size:32;not null;default:'available'"`
	CreatedAt            time.Time  `gorm:"autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime"`
}

func (Book) TableName() string {
	return "books"
}

// Offers reports whether the owner listed the book for the given kind.
func (b *Book) Offers(kind RequestKind) bool {
	switch kind {
	case RequestKindRent:
		return b.AvailableForRent
	case RequestKindExchange:
		return b.AvailableForExchange
	case RequestKindBuy:
		return b.AvailableForSale
	}
	return false
}

// DeriveBookStatus computes a listing status from the book's requests: the
// most recently completed request decides the outcome, otherwise an accepted
// request marks the book as requested.
func DeriveBookStatus(reqs []Request) BookStatus {
	var latest *Request
	accepted := false
	for i := range reqs {
		r := &reqs[i]
		switch r.Status {
		case RequestStatusCompleted:
			if latest == nil || completedAfter(r, latest) {
				latest = r
			}
		case RequestStatusAccepted:
			accepted = true
		}
	}
	if latest != nil {
		switch latest.Kind {
		case RequestKindRent:
			return BookStatusRented
		case RequestKindExchange:
			return BookStatusExchanged
		case RequestKindBuy:
			return BookStatusSold
		}
	}
	if accepted {
		return BookStatusRequested
	}
	return BookStatusAvailable
}

func completedAfter(a, b *Request) bool {
	if a.CompletedAt != nil && b.CompletedAt != nil && !a.CompletedAt.Equal(*b.CompletedAt) {
		return a.CompletedAt.After(*b.CompletedAt)
	}
	return a.ID > b.ID
}
