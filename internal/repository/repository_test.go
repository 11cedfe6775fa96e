package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shinyyama/bookloop-backend/internal/db"
	"github.com/shinyyama/bookloop-backend/internal/model"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func seedBook(t *testing.T, gdb *gorm.DB, owner string) *model.Book {
	t.Helper()
	b := &model.Book{OwnerUID: owner, Title: "Dune", AvailableForRent: true, AvailableForSale: true}
	if err := NewBookRepository(gdb).Create(context.Background(), b); err != nil {
		t.Fatalf("create book: %v", err)
	}
	return b
}

func TestRequestCreateRejectsSecondPending(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	book := seedBook(t, gdb, "owner")
	repo := NewRequestRepository(gdb)

	first := &model.Request{BookID: book.ID, RequesterUID: "alice", OwnerUID: "owner", Kind: model.RequestKindRent, Status: model.RequestStatusPending}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &model.Request{BookID: book.ID, RequesterUID: "alice", OwnerUID: "owner", Kind: model.RequestKindBuy, Status: model.RequestStatusPending}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err=%v want ErrDuplicate", err)
	}

	// A different requester is unaffected.
	other := &model.Request{BookID: book.ID, RequesterUID: "bob", OwnerUID: "owner", Kind: model.RequestKindRent, Status: model.RequestStatusPending}
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("create other: %v", err)
	}

	// Once the first leaves pending, alice may ask again.
	if _, err := repo.Transition(ctx, Transition{ID: first.ID, From: model.RequestStatusPending, To: model.RequestStatusRejected, ActorUID: "owner", At: time.Now().UTC()}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	again := &model.Request{BookID: book.ID, RequesterUID: "alice", OwnerUID: "owner", Kind: model.RequestKindBuy, Status: model.RequestStatusPending}
	if err := repo.Create(ctx, again); err != nil {
		t.Fatalf("create after reject: %v", err)
	}
	got, err := repo.FindPending(ctx, book.ID, "alice")
	if err != nil {
		t.Fatalf("find pending: %v", err)
	}
	if got.ID != again.ID {
		t.Fatalf("pending id=%d want %d", got.ID, again.ID)
	}
}

func TestRequestTransition(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	book := seedBook(t, gdb, "owner")
	repo := NewRequestRepository(gdb)

	req := &model.Request{BookID: book.ID, RequesterUID: "alice", OwnerUID: "owner", Kind: model.RequestKindRent, Status: model.RequestStatusPending}
	if err := repo.Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now().UTC()
	got, err := repo.Transition(ctx, Transition{ID: req.ID, From: model.RequestStatusPending, To: model.RequestStatusAccepted, ActorUID: "owner", At: now})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != model.RequestStatusAccepted || got.PendingKey != nil || got.RespondedAt == nil {
		t.Fatalf("unexpected request after accept: %+v", got)
	}
	b, _ := NewBookRepository(gdb).FindByID(ctx, book.ID)
	if b.Status != model.BookStatusRequested {
		t.Fatalf("book status=%s want requested", b.Status)
	}

	// Stale source status matches nothing.
	if _, err := repo.Transition(ctx, Transition{ID: req.ID, From: model.RequestStatusPending, To: model.RequestStatusRejected, ActorUID: "owner", At: now}); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("err=%v want ErrStaleStatus", err)
	}

	got, err = repo.Transition(ctx, Transition{ID: req.ID, From: model.RequestStatusAccepted, To: model.RequestStatusCompleted, ActorUID: "alice", At: now})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.CompletedAt == nil || got.CompletedBy != "alice" {
		t.Fatalf("completion not recorded: %+v", got)
	}
	b, _ = NewBookRepository(gdb).FindByID(ctx, book.ID)
	if b.Status != model.BookStatusRented {
		t.Fatalf("book status=%s want rented", b.Status)
	}
}

func TestRequestTransitionConcurrentSingleWinner(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	book := seedBook(t, gdb, "owner")
	repo := NewRequestRepository(gdb)

	req := &model.Request{BookID: book.ID, RequesterUID: "alice", OwnerUID: "owner", Kind: model.RequestKindRent, Status: model.RequestStatusPending}
	if err := repo.Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}

	targets := []model.RequestStatus{model.RequestStatusAccepted, model.RequestStatusRejected, model.RequestStatusAccepted, model.RequestStatusRejected}
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, to := range targets {
		wg.Add(1)
		go func(to model.RequestStatus) {
			defer wg.Done()
			_, err := repo.Transition(ctx, Transition{ID: req.ID, From: model.RequestStatusPending, To: to, ActorUID: "owner", At: time.Now().UTC()})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrStaleStatus) {
				t.Errorf("unexpected err: %v", err)
			}
		}(to)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins=%d want 1", wins)
	}
}

func TestRequestListForUser(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	book := seedBook(t, gdb, "owner")
	other := seedBook(t, gdb, "alice")
	repo := NewRequestRepository(gdb)

	for _, r := range []*model.Request{
		{BookID: book.ID, RequesterUID: "alice", OwnerUID: "owner", Kind: model.RequestKindRent, Status: model.RequestStatusPending},
		{BookID: book.ID, RequesterUID: "bob", OwnerUID: "owner", Kind: model.RequestKindBuy, Status: model.RequestStatusPending},
		{BookID: other.ID, RequesterUID: "owner", OwnerUID: "alice", Kind: model.RequestKindExchange, Status: model.RequestStatusPending},
	} {
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	tests := []struct {
		name   string
		uid    string
		filter RequestFilter
		want   int
	}{
		{"owner all", "owner", RequestFilter{}, 3},
		{"owner incoming", "owner", RequestFilter{Role: "incoming"}, 2},
		{"owner outgoing", "owner", RequestFilter{Role: "outgoing"}, 1},
		{"alice all", "alice", RequestFilter{}, 2},
		{"alice accepted", "alice", RequestFilter{Status: model.RequestStatusAccepted}, 0},
		{"stranger", "carol", RequestFilter{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListForUser(ctx, tt.uid, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got=%d want=%d", len(got), tt.want)
			}
		})
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"missing", 0, 50},
		{"negative", -3, 50},
		{"within", 30, 30},
		{"at ceiling", 100, 100},
		{"above ceiling", 500, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampLimit(tt.limit, 50, 100); got != tt.want {
				t.Fatalf("clampLimit(%d)=%d want %d", tt.limit, got, tt.want)
			}
		})
	}
}

func TestRequestListForUserCapsLargeLimit(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	book := seedBook(t, gdb, "owner")
	repo := NewRequestRepository(gdb)

	for i := 0; i < 120; i++ {
		r := &model.Request{
			BookID:       book.ID,
			RequesterUID: fmt.Sprintf("reader-%03d", i),
			OwnerUID:     "owner",
			Kind:         model.RequestKindRent,
			Status:       model.RequestStatusPending,
		}
		if err := repo.Create(ctx, r); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	got, err := repo.ListForUser(ctx, "owner", RequestFilter{Limit: 500})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("got=%d want 100", len(got))
	}
}

func acceptedRequest(t *testing.T, gdb *gorm.DB) *model.Request {
	t.Helper()
	ctx := context.Background()
	book := seedBook(t, gdb, "owner")
	repo := NewRequestRepository(gdb)
	req := &model.Request{BookID: book.ID, RequesterUID: "alice", OwnerUID: "owner", Kind: model.RequestKindRent, Status: model.RequestStatusPending}
	if err := repo.Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := repo.Transition(ctx, Transition{ID: req.ID, From: model.RequestStatusPending, To: model.RequestStatusAccepted, ActorUID: "owner", At: time.Now().UTC()})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return got
}

func TestMessageAppendAllocatesSeq(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	req := acceptedRequest(t, gdb)
	repo := NewMessageRepository(gdb)

	for i := 1; i <= 3; i++ {
		m := &model.Message{RequestID: req.ID, SenderUID: "alice", ReceiverUID: "owner", Body: fmt.Sprintf("m%d", i)}
		if err := repo.Append(ctx, m); err != nil {
			t.Fatalf("append: %v", err)
		}
		if m.Seq != uint64(i) {
			t.Fatalf("seq=%d want %d", m.Seq, i)
		}
	}

	all, err := repo.List(ctx, req.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Body != "m1" || all[2].Body != "m3" {
		t.Fatalf("unexpected list: %+v", all)
	}
	tail, err := repo.List(ctx, req.ID, 2)
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if len(tail) != 1 || tail[0].Seq != 3 {
		t.Fatalf("unexpected tail: %+v", tail)
	}
}

func TestMessageAppendConcurrentSeqsUnique(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	req := acceptedRequest(t, gdb)
	repo := NewMessageRepository(gdb)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := &model.Message{RequestID: req.ID, SenderUID: "owner", ReceiverUID: "alice", Body: fmt.Sprintf("m%d", i)}
			if err := repo.Append(ctx, m); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	all, err := repo.List(ctx, req.ID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != n {
		t.Fatalf("len=%d want %d", len(all), n)
	}
	for i, m := range all {
		if m.Seq != uint64(i+1) {
			t.Fatalf("seq[%d]=%d want %d", i, m.Seq, i+1)
		}
	}
}

func TestMessageAppendRequiresAccepted(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	book := seedBook(t, gdb, "owner")
	req := &model.Request{BookID: book.ID, RequesterUID: "alice", OwnerUID: "owner", Kind: model.RequestKindRent, Status: model.RequestStatusPending}
	if err := NewRequestRepository(gdb).Create(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}
	m := &model.Message{RequestID: req.ID, SenderUID: "alice", ReceiverUID: "owner", Body: "hi"}
	if err := NewMessageRepository(gdb).Append(ctx, m); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("err=%v want ErrStaleStatus", err)
	}
}

func TestMessageMarkReadAndUnreadCounts(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	req := acceptedRequest(t, gdb)
	repo := NewMessageRepository(gdb)

	for _, sender := range []string{"alice", "alice", "owner"} {
		receiver := "owner"
		if sender == "owner" {
			receiver = "alice"
		}
		if err := repo.Append(ctx, &model.Message{RequestID: req.ID, SenderUID: sender, ReceiverUID: receiver, Body: "x"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	counts, err := repo.UnreadCounts(ctx, "owner", []uint64{req.ID})
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[req.ID] != 2 {
		t.Fatalf("owner unread=%d want 2", counts[req.ID])
	}

	n, err := repo.MarkRead(ctx, req.ID, "owner")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n != 2 {
		t.Fatalf("marked=%d want 2", n)
	}
	n, err = repo.MarkRead(ctx, req.ID, "owner")
	if err != nil || n != 0 {
		t.Fatalf("second mark: n=%d err=%v", n, err)
	}

	counts, _ = repo.UnreadCounts(ctx, "alice", []uint64{req.ID})
	if counts[req.ID] != 1 {
		t.Fatalf("alice unread=%d want 1", counts[req.ID])
	}
}

func TestNotificationMarkByRequest(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()
	repo := NewNotificationRepository(gdb)

	r1, r2 := uint64(1), uint64(2)
	for _, n := range []*model.Notification{
		{UserUID: "alice", Type: model.NotificationMessageReceived, RequestID: &r1},
		{UserUID: "alice", Type: model.NotificationMessageReceived, RequestID: &r1},
		{UserUID: "alice", Type: model.NotificationRequestAccepted, RequestID: &r2},
	} {
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := repo.MarkByRequest(ctx, "alice", r1); err != nil {
		t.Fatalf("mark: %v", err)
	}
	cnt, err := repo.CountUnread(ctx, "alice")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if cnt != 1 {
		t.Fatalf("unread=%d want 1", cnt)
	}
	list, err := repo.ListByUser(ctx, "alice", true, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || *list[0].RequestID != r2 {
		t.Fatalf("unexpected unread list: %+v", list)
	}
}

func TestNilDBReturnsNotReady(t *testing.T) {
	ctx := context.Background()
	if _, err := NewRequestRepository(nil).FindByID(ctx, 1); !errors.Is(err, ErrDBNotReady) {
		t.Fatalf("requests: err=%v", err)
	}
	if err := NewMessageRepository(nil).Append(ctx, &model.Message{}); !errors.Is(err, ErrDBNotReady) {
		t.Fatalf("messages: err=%v", err)
	}
	if _, err := NewNotificationRepository(nil).CountUnread(ctx, "x"); !errors.Is(err, ErrDBNotReady) {
		t.Fatalf("notifications: err=%v", err)
	}
	if _, err := NewBookRepository(nil).FindByID(ctx, 1); !errors.Is(err, ErrDBNotReady) {
		t.Fatalf("books: err=%v", err)
	}
}
