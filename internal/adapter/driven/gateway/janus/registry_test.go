package janus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Wyydra/yajanus/internal/core/domain"
)

func TestRegistry_ResolveCompletesOnlyMatchingTransaction(t *testing.T) {
	r := NewRegistry(0)
	p1 := r.Register("t1")
	p2 := r.Register("t2")

	if !r.Resolve("t1", &Frame{Janus: FrameSuccess, Transaction: "t1"}) {
		t.Fatalf("expected t1 to resolve")
	}
	if r.Has("t1") {
		t.Fatalf("resolved transaction should be removed")
	}
	if !r.Has("t2") {
		t.Fatalf("t2 must still be pending")
	}

	f, err := r.Wait(context.Background(), p1)
	if err != nil {
		t.Fatalf("wait t1: %v", err)
	}
	if f.Transaction != "t1" {
		t.Fatalf("got frame for %q, want t1", f.Transaction)
	}

	select {
	case res := <-p2.ch:
		t.Fatalf("t2 completed unexpectedly: %+v", res)
	default:
	}
}

func TestRegistry_ResolveIsSingleFire(t *testing.T) {
	r := NewRegistry(0)
	r.Register("t1")
	if !r.Resolve("t1", &Frame{Janus: FrameAck}) {
		t.Fatalf("first resolve should succeed")
	}
	if r.Resolve("t1", &Frame{Janus: FrameAck}) {
		t.Fatalf("second resolve should find nothing")
	}
	if r.Resolve("", &Frame{Janus: FrameAck}) {
		t.Fatalf("empty transaction must never resolve")
	}
}

func TestRegistry_WaitTimesOut(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)
	p := r.Register("t1")

	_, err := r.Wait(context.Background(), p)
	if !errors.Is(err, domain.ErrTransactionTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("timed out transaction should be forgotten")
	}
}

func TestRegistry_WaitHonorsContext(t *testing.T) {
	r := NewRegistry(0)
	p := r.Register("t1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Wait(ctx, p); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if r.Has("t1") {
		t.Fatalf("abandoned transaction should be forgotten")
	}
}

func TestRegistry_FailAll(t *testing.T) {
	r := NewRegistry(0)
	p1 := r.Register("a")
	p2 := r.Register("b")

	r.FailAll(domain.ErrClosed)

	for _, p := range []*Pending{p1, p2} {
		if _, err := r.Wait(context.Background(), p); !errors.Is(err, domain.ErrClosed) {
			t.Fatalf("%s: expected ErrClosed, got %v", p.ID, err)
		}
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}
