package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yajanus/internal/core/domain"
	"github.com/Wyydra/yajanus/internal/core/port"
	"github.com/rs/zerolog/log"
)

const teardownTimeout = 10 * time.Second

// attempt ties events to the transport that produced them, so late events
// from an abandoned or replaced transport can be told apart.
type attempt struct {
	mode      domain.TransportMode
	transport port.Transport
}

// ConnectionManager owns at most one active transport and its session. It
// picks the transport by trying modes in order and forwards the active
// transport's events to listeners.
type ConnectionManager struct {
	factory port.TransportFactory
	modes   []domain.TransportMode
	hub     *EventHub

	mu         sync.Mutex
	current    *attempt
	connecting *attempt
	session    domain.Session

	// set while Connect runs; Disconnect cancels through abort and waits
	// for settled.
	abort   context.CancelFunc
	settled chan struct{}
	aborted bool
}

func NewConnectionManager(factory port.TransportFactory, modes []domain.TransportMode) *ConnectionManager {
	if len(modes) == 0 {
		modes = domain.DefaultModeOrder
	}
	m := &ConnectionManager{
		factory: factory,
		modes:   append([]domain.TransportMode(nil), modes...),
		hub:     NewEventHub(),
	}
	go m.hub.Run()
	return m
}

// Connect tries the given modes, or the configured order when none are
// given, and keeps the first transport that creates a session. Every failed
// attempt is torn down before the next one starts. A Disconnect issued
// meanwhile aborts the attempt and Connect returns domain.ErrClosed.
func (m *ConnectionManager) Connect(ctx context.Context, modes ...domain.TransportMode) (domain.Session, error) {
	if len(modes) == 0 {
		modes = m.modes
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	settled := make(chan struct{})
	defer close(settled)

	m.mu.Lock()
	if m.current != nil || m.connecting != nil {
		m.mu.Unlock()
		return domain.Session{}, domain.ErrAlreadyConnected
	}
	m.connecting = &attempt{}
	m.abort = cancel
	m.settled = settled
	m.aborted = false
	m.mu.Unlock()

	var lastErr error
	for _, mode := range modes {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		s, att, err := m.try(ctx, mode)
		if err != nil {
			log.Warn().Err(err).Str("mode", mode.String()).Msg("Transport failed, trying next")
			lastErr = fmt.Errorf("%s: %w", mode, err)
			continue
		}

		m.mu.Lock()
		if m.aborted {
			m.connecting = nil
			m.abort = nil
			m.mu.Unlock()
			teardown(ctx, att)
			log.Info().Str("session_id", s.ID.String()).Str("mode", mode.String()).Msg("Connect aborted, session torn down")
			return domain.Session{}, fmt.Errorf("connect: %w", domain.ErrClosed)
		}
		m.current = att
		m.connecting = nil
		m.abort = nil
		m.session = s
		m.mu.Unlock()

		log.Info().Str("session_id", s.ID.String()).Str("mode", mode.String()).Msg("Connected")
		return s, nil
	}

	m.mu.Lock()
	m.connecting = nil
	m.abort = nil
	aborted := m.aborted
	m.mu.Unlock()

	if aborted {
		return domain.Session{}, fmt.Errorf("connect: %w", domain.ErrClosed)
	}
	if lastErr == nil {
		lastErr = errors.New("no transport modes given")
	}
	return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrAllTransportsFailed, lastErr)
}

func (m *ConnectionManager) try(ctx context.Context, mode domain.TransportMode) (domain.Session, *attempt, error) {
	att := &attempt{mode: mode}
	tr, err := m.factory.New(mode, port.EventSinkFunc(func(ev domain.Event) {
		m.forward(att, ev)
	}))
	if err != nil {
		return domain.Session{}, nil, err
	}
	att.transport = tr

	m.mu.Lock()
	m.connecting = att
	m.mu.Unlock()

	s, err := tr.CreateSession(ctx)
	if err != nil {
		m.mu.Lock()
		m.connecting = &attempt{}
		m.mu.Unlock()
		teardown(ctx, att)
		return domain.Session{}, nil, err
	}
	return s, att, nil
}

// teardown destroys an abandoned attempt. It outlives the cancellation of
// ctx so an aborted Connect still releases the gateway session.
func teardown(ctx context.Context, att *attempt) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	if err := att.transport.Destroy(ctx); err != nil {
		log.Debug().Err(err).Str("mode", att.mode.String()).Msg("Abandoned transport teardown failed")
	}
}

// forward passes events from the active transport through. A disconnect of
// the active transport clears the session and tears the transport down in
// the background.
func (m *ConnectionManager) forward(att *attempt, ev domain.Event) {
	m.mu.Lock()
	switch {
	case att == m.current:
	case att == m.connecting && ev.Kind != domain.EventDisconnected && ev.Kind != domain.EventError:
		m.mu.Unlock()
		m.hub.Emit(ev)
		return
	default:
		m.mu.Unlock()
		log.Debug().Str("kind", string(ev.Kind)).Str("mode", att.mode.String()).Msg("Dropping event from inactive transport")
		return
	}

	if ev.Kind != domain.EventDisconnected {
		m.mu.Unlock()
		m.hub.Emit(ev)
		return
	}

	m.current = nil
	session := m.session
	m.session = domain.Session{}
	m.mu.Unlock()

	log.Warn().Str("session_id", session.ID.String()).Str("mode", att.mode.String()).Str("reason", ev.Reason).Msg("Transport lost the session")
	m.hub.Emit(ev)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if err := att.transport.Destroy(ctx); err != nil {
			log.Debug().Err(err).Str("mode", att.mode.String()).Msg("Teardown after session loss failed")
		}
	}()
}

// Disconnect destroys the active session. A Connect still in progress is
// aborted and waited for. Calling it with nothing active is a no-op.
func (m *ConnectionManager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	att := m.current
	session := m.session
	m.current = nil
	m.session = domain.Session{}
	abort, settled := m.abort, m.settled
	if att == nil && abort != nil {
		m.aborted = true
	}
	m.mu.Unlock()

	if att == nil {
		if abort == nil {
			return nil
		}
		abort()
		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
		log.Info().Msg("Disconnected while connecting")
		return nil
	}

	if err := att.transport.Destroy(ctx); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID.String()).Msg("Session teardown failed")
	}
	log.Info().Str("session_id", session.ID.String()).Str("mode", att.mode.String()).Msg("Disconnected")

	m.hub.Emit(domain.Event{
		Kind:   domain.EventDisconnected,
		Reason: "disconnected by client",
	})
	return nil
}

// Close disconnects and stops event delivery.
func (m *ConnectionManager) Close(ctx context.Context) error {
	err := m.Disconnect(ctx)
	m.hub.Stop()
	<-m.hub.Done()
	return err
}

func (m *ConnectionManager) Session() (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.current != nil
}

func (m *ConnectionManager) On(kind domain.EventKind, fn Listener) func() {
	return m.hub.Subscribe(kind, fn)
}

func (m *ConnectionManager) OnAny(fn Listener) func() {
	return m.hub.SubscribeAll(fn)
}

func (m *ConnectionManager) active() (*attempt, domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, domain.Session{}, domain.ErrNoSession
	}
	return m.current, m.session, nil
}

func (m *ConnectionManager) AttachPlugin(ctx context.Context, plugin string) (*PluginHandle, error) {
	att, s, err := m.active()
	if err != nil {
		return nil, err
	}
	h, err := att.transport.Attach(ctx, plugin)
	if err != nil {
		return nil, err
	}
	return &PluginHandle{
		manager: m,
		owner:   att,
		session: s,
		handle:  h,
	}, nil
}
