package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrDBNotReady = errors.New("database not initialized")
	// ErrStaleStatus means a conditional update matched no row because the
	// request was no longer in the expected status.
	ErrStaleStatus = errors.New("request status changed")
	ErrDuplicate   = errors.New("duplicate key")
)

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	// Not every driver version translates constraint errors.
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry") {
		return ErrDuplicate
	}
	return err
}
