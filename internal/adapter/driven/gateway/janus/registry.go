package janus

import (
	"context"
	"sync"
	"time"

	"github.com/Wyydra/yajanus/internal/core/domain"
	"github.com/Wyydra/yajanus/internal/metrics"
)

type result struct {
	frame *Frame
	err   error
}

// Pending is a registered transaction waiting for its reply.
type Pending struct {
	ID string
	ch chan result
}

// Registry correlates outstanding requests with their replies. Each entry is
// completed at most once and removed when it is.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*Pending
	timeout time.Duration
}

// NewRegistry returns a registry whose Wait gives up after timeout. A zero
// timeout waits for as long as the caller's context allows.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		pending: make(map[string]*Pending),
		timeout: timeout,
	}
}

func (r *Registry) Register(id string) *Pending {
	p := &Pending{ID: id, ch: make(chan result, 1)}
	r.mu.Lock()
	r.pending[id] = p
	r.mu.Unlock()
	metrics.TransactionOpened()
	return p
}

func (r *Registry) take(id string) (*Pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
		metrics.TransactionClosed()
	}
	return p, ok
}

// Resolve completes the transaction id with f. It reports false when nothing
// was waiting for id.
func (r *Registry) Resolve(id string, f *Frame) bool {
	if id == "" {
		return false
	}
	p, ok := r.take(id)
	if !ok {
		return false
	}
	p.ch <- result{frame: f}
	return true
}

func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[id]
	return ok
}

func (r *Registry) Forget(id string) {
	r.take(id)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// FailAll completes every outstanding transaction with err.
func (r *Registry) FailAll(err error) {
	r.mu.Lock()
	all := r.pending
	r.pending = make(map[string]*Pending)
	r.mu.Unlock()

	for _, p := range all {
		metrics.TransactionClosed()
		p.ch <- result{err: err}
	}
}

// Wait blocks until p is resolved, ctx is done or the registry timeout
// elapses. An abandoned transaction is forgotten.
func (r *Registry) Wait(ctx context.Context, p *Pending) (*Frame, error) {
	var timeout <-chan time.Time
	if r.timeout > 0 {
		t := time.NewTimer(r.timeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case res := <-p.ch:
		return res.frame, res.err
	case <-ctx.Done():
		r.Forget(p.ID)
		return nil, ctx.Err()
	case <-timeout:
		r.Forget(p.ID)
		return nil, domain.ErrTransactionTimeout
	}
}
