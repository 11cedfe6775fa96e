package realtime

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shinyyama/bookloop-backend/internal/model"
)

type EventType string

const (
	EventMessageAppended     EventType = "message_appended"
	EventRequestTransitioned EventType = "request_transitioned"
)

// Transition describes a lifecycle edge. From is empty for a newly created
// request.
type Transition struct {
	From     model.RequestStatus `json:"from,omitempty"`
	To       model.RequestStatus `json:"to"`
	ActorUID string              `json:"actorUid"`
}

type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	RequestID  uint64         `json:"requestId"`
	Message    *model.Message `json:"message,omitempty"`
	Request    *model.Request `json:"request,omitempty"`
	Transition *Transition    `json:"transition,omitempty"`
	At         time.Time      `json:"at"`
}

func MessageAppended(msg *model.Message) Event {
	return Event{Type: EventMessageAppended, RequestID: msg.RequestID, Message: msg}
}

func RequestTransitioned(req *model.Request, from model.RequestStatus, actorUID string) Event {
	return Event{
		Type:       EventRequestTransitioned,
		RequestID:  req.ID,
		Request:    req,
		Transition: &Transition{From: from, To: req.Status, ActorUID: actorUID},
	}
}

// stamp fills in the id and timestamp of an event that has not been
// published yet. Relayed events keep the values set by their origin.
func stamp(ev *Event) {
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
}

// Publisher delivers an event to every live subscription of a conversation.
type Publisher interface {
	Publish(ctx context.Context, requestID uint64, ev Event) error
}

// Listener observes every event published on this instance, after it has
// been fanned out. Listeners run on the publishing goroutine and must not
// block for long.
type Listener func(ctx context.Context, ev Event)
