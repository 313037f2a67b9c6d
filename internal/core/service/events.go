package service

import (
	"sync"

	"github.com/Wyydra/yajanus/internal/core/domain"
	"github.com/rs/zerolog/log"
)

type Listener func(ev domain.Event)

type subscription struct {
	id   uint64
	kind domain.EventKind
	fn   Listener
}

// EventHub fans events out to listeners from a single run loop. Emit never
// blocks: events are queued and delivered in emission order, so a listener
// may call back into a transport without stalling the reader that produced
// the event.
type EventHub struct {
	mu      sync.Mutex
	subs    []subscription
	nextID  uint64
	queue   []domain.Event
	stopped bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func NewEventHub() *EventHub {
	return &EventHub{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Subscribe registers fn for one kind, or for every kind with EventAny.
// The returned func removes it.
func (h *EventHub) Subscribe(kind domain.EventKind, fn Listener) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscription{id: id, kind: kind, fn: fn})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, s := range h.subs {
			if s.id == id {
				h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

func (h *EventHub) SubscribeAll(fn Listener) func() {
	return h.Subscribe(domain.EventAny, fn)
}

func (h *EventHub) Emit(ev domain.Event) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		log.Debug().Str("kind", string(ev.Kind)).Msg("Event dropped, hub stopped")
		return
	}
	h.queue = append(h.queue, ev)
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Stop delivers what is already queued, then ends Run. Safe to call more
// than once.
func (h *EventHub) Stop() {
	h.once.Do(func() {
		h.mu.Lock()
		h.stopped = true
		h.mu.Unlock()
		close(h.quit)
	})
}

// Done is closed once Run has returned.
func (h *EventHub) Done() <-chan struct{} {
	return h.done
}

func (h *EventHub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			h.drain()
			log.Debug().Msg("Event hub stopped")
			return
		case <-h.wake:
			h.drain()
		}
	}
}

func (h *EventHub) drain() {
	for {
		h.mu.Lock()
		if len(h.queue) == 0 {
			h.mu.Unlock()
			return
		}
		ev := h.queue[0]
		h.queue[0] = domain.Event{}
		h.queue = h.queue[1:]
		targets := make([]subscription, 0, len(h.subs))
		for _, s := range h.subs {
			if s.kind == ev.Kind || s.kind == domain.EventAny {
				targets = append(targets, s)
			}
		}
		h.mu.Unlock()

		for _, s := range targets {
			h.deliver(s, ev)
		}
	}
}

func (h *EventHub) deliver(s subscription, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("kind", string(ev.Kind)).Msg("Event listener panicked")
		}
	}()
	s.fn(ev)
}
