package janus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Keepalive calls beat once per interval until stopped. A failing beat is
// logged and the schedule continues.
type Keepalive struct {
	interval time.Duration
	beat     func(ctx context.Context) error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewKeepalive(interval time.Duration, beat func(ctx context.Context) error) *Keepalive {
	return &Keepalive{
		interval: interval,
		beat:     beat,
	}
}

func (k *Keepalive) Start(parent context.Context) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cancel != nil || k.interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	k.cancel = cancel
	k.done = make(chan struct{})
	go k.run(ctx, k.done)
}

func (k *Keepalive) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
		beatCtx, cancel := context.WithTimeout(ctx, k.interval)
		err := k.beat(beatCtx)
		cancel()
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("Keepalive failed")
		}
	}
}

// Stop cancels the schedule and waits until no beat is running. Calling it
// more than once, or before Start, is a no-op.
func (k *Keepalive) Stop() {
	k.mu.Lock()
	cancel, done := k.cancel, k.done
	k.cancel = nil
	k.done = nil
	k.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
