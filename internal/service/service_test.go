package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shinyyama/bookloop-backend/internal/db"
	"github.com/shinyyama/bookloop-backend/internal/model"
	"github.com/shinyyama/bookloop-backend/internal/realtime"
	"github.com/shinyyama/bookloop-backend/internal/repository"
	"gorm.io/gorm"
)

const (
	owner     = "owner"
	requester = "reader"
	stranger  = "stranger"
)

type testEnv struct {
	db       *gorm.DB
	hub      *realtime.Hub
	requests RequestService
	convs    ConversationService
	stream   StreamService
	notes    NotificationService
	book     *model.Book
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.OpenSQLite(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name), nil)
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

	logger := zerolog.Nop()
	hub := realtime.NewHub(64, logger)
	t.Cleanup(hub.Close)

	requestRepo := repository.NewRequestRepository(gdb)
	messageRepo := repository.NewMessageRepository(gdb)
	bookRepo := repository.NewBookRepository(gdb)
	notes := NewNotificationService(repository.NewNotificationRepository(gdb), logger)
	hub.AddListener(notes.HandleEvent)

	locks := NewKeyedLock()
	env := &testEnv{
		db:       gdb,
		hub:      hub,
		requests: NewRequestService(requestRepo, messageRepo, bookRepo, hub, locks, logger),
		convs:    NewConversationService(requestRepo, messageRepo, notes, hub, locks, logger),
		stream:   NewStreamService(requestRepo, hub),
		notes:    notes,
	}
	env.book = env.addBook(t, owner, true, true, true)
	return env
}

func (e *testEnv) addBook(t *testing.T, ownerUID string, rent, exchange, sale bool) *model.Book {
	t.Helper()
	b := &model.Book{
		OwnerUID:             ownerUID,
		Title:                "The Left Hand of Darkness",
		AvailableForRent:     rent,
		AvailableForExchange: exchange,
		AvailableForSale:     sale,
	}
	if err := repository.NewBookRepository(e.db).Create(context.Background(), b); err != nil {
		t.Fatalf("create book: %v", err)
	}
	return b
}

func (e *testEnv) create(t *testing.T, requesterUID string, kind model.RequestKind) *model.Request {
	t.Helper()
	req, err := e.requests.CreateRequest(context.Background(), CreateRequestInput{
		BookID:       e.book.ID,
		RequesterUID: requesterUID,
		Kind:         kind,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

// requestIn returns a request by requesterUID that has been driven to status.
func (e *testEnv) requestIn(t *testing.T, requesterUID string, status model.RequestStatus) *model.Request {
	t.Helper()
	ctx := context.Background()
	req := e.create(t, requesterUID, model.RequestKindRent)
	var err error
	switch status {
	case model.RequestStatusAccepted:
		req, err = e.requests.Accept(ctx, req.ID, owner)
	case model.RequestStatusRejected:
		req, err = e.requests.Reject(ctx, req.ID, owner)
	case model.RequestStatusCompleted:
		if req, err = e.requests.Accept(ctx, req.ID, owner); err == nil {
			req, err = e.requests.Complete(ctx, req.ID, requesterUID)
		}
	}
	if err != nil {
		t.Fatalf("drive to %s: %v", status, err)
	}
	if req.Status != status {
		t.Fatalf("status=%s want %s", req.Status, status)
	}
	return req
}

func recvEvent(t *testing.T, sub *realtime.Subscription) realtime.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return realtime.Event{}
}

func noEvent(t *testing.T, sub *realtime.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
