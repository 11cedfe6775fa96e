package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeyedLockSerializesSameKey(t *testing.T) {
	k := NewKeyedLock()
	unlock, err := k.Lock(context.Background(), 1)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// A different key is independent.
	other, err := k.Lock(context.Background(), 2)
	if err != nil {
		t.Fatalf("lock other: %v", err)
	}
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v want deadline exceeded", err)
	}

	unlock()
	again, err := k.Lock(context.Background(), 1)
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()

	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.slots) != 0 {
		t.Fatalf("slots leaked: %d", len(k.slots))
	}
}
