package service

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/shinyyama/bookloop-backend/internal/guard"
	"gorm.io/gorm"
)

var (
	ErrInvalidActor      = guard.ErrInvalidActor
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not_found")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrDuplicatePending  = errors.New("duplicate_pending")
	ErrEmptyBody         = errors.New("empty_body")
	ErrBodyTooLong       = errors.New("body_too_long")
	ErrInvalidKind       = errors.New("invalid_kind")
	// ErrUnavailable wraps storage and broker failures. It is the only kind
	// a caller may retry.
	ErrUnavailable = errors.New("unavailable")
)

const MaxBodyRunes = 2000

// unavailable hides a storage error behind ErrUnavailable while keeping the
// cause for logs.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// lookupErr maps a repository read error to the service taxonomy.
func lookupErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return unavailable(err)
}

func validateBody(body string) error {
	if body == "" {
		return ErrEmptyBody
	}
	if utf8.RuneCountInString(body) > MaxBodyRunes {
		return ErrBodyTooLong
	}
	return nil
}
