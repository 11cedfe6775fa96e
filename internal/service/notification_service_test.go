package service

import (
	"context"
	"testing"

	"github.com/shinyyama/bookloop-backend/internal/model"
)

func TestNotificationsFollowLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := env.create(t, requester, model.RequestKindBuy)
	if _, err := env.requests.Accept(ctx, req.ID, owner); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := env.requests.Complete(ctx, req.ID, requester); err != nil {
		t.Fatalf("complete: %v", err)
	}

	tests := []struct {
		uid   string
		types []string // newest first
	}{
		{owner, []string{model.NotificationRequestCompleted, model.NotificationRequestCreated}},
		{requester, []string{model.NotificationRequestAccepted}},
		{stranger, nil},
	}
	for _, tt := range tests {
		t.Run(tt.uid, func(t *testing.T) {
			list, unread, err := env.notes.List(ctx, tt.uid, false, 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if int(unread) != len(tt.types) || len(list) != len(tt.types) {
				t.Fatalf("got %d (unread %d) want %d", len(list), unread, len(tt.types))
			}
			for i, n := range list {
				if n.Type != tt.types[i] {
					t.Errorf("list[%d].Type=%s want %s", i, n.Type, tt.types[i])
				}
				if n.RequestID == nil || *n.RequestID != req.ID {
					t.Errorf("list[%d] request id not set", i)
				}
			}
		})
	}

	if err := env.notes.MarkAllRead(ctx, owner); err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if _, unread, _ := env.notes.List(ctx, owner, true, 0); unread != 0 {
		t.Fatalf("unread=%d after mark all", unread)
	}
}

func TestPreviewTruncatesRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"short", "hello", 5},
		{"exact", string(make([]rune, 80)), 80},
		{"long", string(make([]rune, 120)), 81},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len([]rune(preview(tt.in))); got != tt.want {
				t.Fatalf("got=%d want=%d", got, tt.want)
			}
		})
	}
}
