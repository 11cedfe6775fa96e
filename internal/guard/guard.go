// Package guard holds the authorization predicates for request transitions
// and conversation access. Every function is pure: the actor is always
// passed in explicitly and nothing is read from ambient session state.
package guard

import (
	"errors"

	"github.com/shinyyama/bookloop-backend/internal/model"
)

var ErrInvalidActor = errors.New("invalid_actor")

func IsParticipant(actor string, r *model.Request) bool {
	if r == nil || actor == "" {
		return false
	}
	return actor == r.OwnerUID || actor == r.RequesterUID
}

// CanRespond reports whether actor may accept or reject r.
func CanRespond(actor string, r *model.Request) bool {
	return r != nil && actor != "" && actor == r.OwnerUID
}

func CanComplete(actor string, r *model.Request) bool {
	return IsParticipant(actor, r)
}

// CanMessage requires an accepted request; conversations open only after
// the owner agreed and close once the request is completed.
func CanMessage(actor string, r *model.Request) bool {
	return IsParticipant(actor, r) && r.Status == model.RequestStatusAccepted
}

func OtherParticipant(actor string, r *model.Request) (string, error) {
	if !IsParticipant(actor, r) {
		return "", ErrInvalidActor
	}
	if actor == r.OwnerUID {
		return r.RequesterUID, nil
	}
	return r.OwnerUID, nil
}
