package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Wyydra/yajanus/internal/core/domain"
)

type HandleRepository struct {
	mu      sync.Mutex
	handles map[domain.HandleID]domain.Handle
}

func NewHandleRepository() *HandleRepository {
	return &HandleRepository{
		handles: make(map[domain.HandleID]domain.Handle),
	}
}

func (r *HandleRepository) Save(h domain.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handles[h.ID]; ok {
		return fmt.Errorf("handle %s already attached", h.ID)
	}
	r.handles[h.ID] = h
	return nil
}

func (r *HandleRepository) Get(id domain.HandleID) (domain.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

func (r *HandleRepository) Delete(id domain.HandleID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

// List returns the handles ordered by id so teardown is deterministic.
func (r *HandleRepository) List() []domain.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *HandleRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = make(map[domain.HandleID]domain.Handle)
}
