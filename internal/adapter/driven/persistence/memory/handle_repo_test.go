package memory

import (
	"testing"

	"github.com/Wyydra/yajanus/internal/core/domain"
)

func TestHandleRepository_RejectsDuplicateID(t *testing.T) {
	r := NewHandleRepository()
	h := domain.Handle{ID: "handle-1", SessionID: "sess-1", Plugin: "janus.plugin.videocall"}
	if err := r.Save(h); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := r.Save(h); err == nil {
		t.Fatalf("expected duplicate handle id to be rejected")
	}
}

func TestHandleRepository_ListDeleteClear(t *testing.T) {
	r := NewHandleRepository()
	for _, id := range []domain.HandleID{"b", "a", "c"} {
		if err := r.Save(domain.Handle{ID: id, SessionID: "s"}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	got := r.List()
	if len(got) != 3 || got[0].ID != "a" || got[2].ID != "c" {
		t.Fatalf("unexpected list order: %+v", got)
	}

	r.Delete("b")
	if _, ok := r.Get("b"); ok {
		t.Fatalf("expected b to be deleted")
	}
	if h, ok := r.Get("a"); !ok || h.SessionID != "s" {
		t.Fatalf("expected a to remain, got %+v ok=%v", h, ok)
	}

	r.Clear()
	if n := len(r.List()); n != 0 {
		t.Fatalf("expected empty repository after clear, got %d", n)
	}
}
