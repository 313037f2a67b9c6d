package janus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yajanus/internal/core/domain"
	"github.com/Wyydra/yajanus/internal/core/port"
	"github.com/Wyydra/yajanus/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Deliverer puts one request on the wire. Replies come back through
// Engine.Dispatch, from whichever path the transport receives them on.
type Deliverer interface {
	Deliver(ctx context.Context, req *Request) error
}

type Options struct {
	Mode               domain.TransportMode
	APISecret          string
	TransactionTimeout time.Duration
	Handles            port.HandleRepository
	Sink               port.EventSink
}

// Engine holds the session and handle state shared by every transport and
// implements the request/reply side of the protocol on top of a Deliverer.
type Engine struct {
	mode     domain.TransportMode
	secret   string
	out      Deliverer
	txns     *Registry
	handles  port.HandleRepository
	dispatch *Dispatcher

	mu        sync.RWMutex
	session   domain.Session
	active    bool
	stringIDs bool
}

func NewEngine(opts Options, out Deliverer) *Engine {
	txns := NewRegistry(opts.TransactionTimeout)
	return &Engine{
		mode:     opts.Mode,
		secret:   opts.APISecret,
		out:      out,
		txns:     txns,
		handles:  opts.Handles,
		dispatch: NewDispatcher(opts.Mode, txns, opts.Handles, opts.Sink),
	}
}

func (e *Engine) Mode() domain.TransportMode {
	return e.mode
}

func (e *Engine) Registry() *Registry {
	return e.txns
}

func (e *Engine) Session() (domain.Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session, e.active
}

func (e *Engine) Dispatch(f *Frame) {
	e.dispatch.Dispatch(f)
}

func (e *Engine) Emit(ev domain.Event) {
	e.dispatch.Emit(ev)
}

func (e *Engine) current() (domain.Session, error) {
	s, ok := e.Session()
	if !ok {
		return domain.Session{}, domain.ErrNoSession
	}
	return s, nil
}

func (e *Engine) stamp(req *Request) {
	req.Transaction = domain.NewTransactionID().String()
	req.APISecret = e.secret
	e.mu.RLock()
	req.StringIDs = e.stringIDs
	e.mu.RUnlock()
}

// do sends req and waits for the reply correlated by its transaction.
func (e *Engine) do(ctx context.Context, req *Request) (*Frame, error) {
	e.stamp(req)
	p := e.txns.Register(req.Transaction)

	if err := e.out.Deliver(ctx, req); err != nil {
		e.txns.Forget(p.ID)
		metrics.RecordRequest(e.mode.String(), req.Janus, err)
		return nil, fmt.Errorf("%s: %w", req.Janus, err)
	}

	f, err := e.txns.Wait(ctx, p)
	if err == nil && f.Janus == FrameError {
		err = gatewayError(f)
	}
	metrics.RecordRequest(e.mode.String(), req.Janus, err)
	if err != nil {
		return f, fmt.Errorf("%s: %w", req.Janus, err)
	}
	return f, nil
}

// notify sends req without waiting for any reply.
func (e *Engine) notify(ctx context.Context, req *Request) error {
	e.stamp(req)
	err := e.out.Deliver(ctx, req)
	metrics.RecordRequest(e.mode.String(), req.Janus, err)
	return err
}

func (e *Engine) CreateSession(ctx context.Context) (domain.Session, error) {
	if _, ok := e.Session(); ok {
		return domain.Session{}, domain.ErrAlreadyConnected
	}

	f, err := e.do(ctx, &Request{Janus: KindCreate})
	if err != nil {
		return domain.Session{}, err
	}
	id := f.DataID()
	if id == "" {
		return domain.Session{}, fmt.Errorf("create: reply carries no session id")
	}

	s := domain.NewSession(domain.SessionID(id), e.mode)
	e.mu.Lock()
	e.session = s
	e.active = true
	e.stringIDs = f.Data.Quoted
	e.mu.Unlock()

	log.Info().Str("session_id", s.ID.String()).Str("mode", e.mode.String()).Msg("Session created")
	return s, nil
}

func (e *Engine) Attach(ctx context.Context, plugin string) (domain.Handle, error) {
	s, err := e.current()
	if err != nil {
		return domain.Handle{}, err
	}

	f, err := e.do(ctx, &Request{
		Janus:     KindAttach,
		SessionID: ID(s.ID),
		Plugin:    plugin,
	})
	if err != nil {
		return domain.Handle{}, err
	}
	id := f.DataID()
	if id == "" {
		return domain.Handle{}, fmt.Errorf("attach: reply carries no handle id")
	}

	h := domain.Handle{
		ID:        domain.HandleID(id),
		SessionID: s.ID,
		Plugin:    plugin,
	}
	if err := e.handles.Save(h); err != nil {
		return domain.Handle{}, fmt.Errorf("attach: %w", err)
	}

	log.Info().Str("session_id", s.ID.String()).Str("handle_id", h.ID.String()).Str("plugin", plugin).Msg("Plugin attached")
	return h, nil
}

func (e *Engine) handle(id domain.HandleID) (domain.Session, domain.Handle, error) {
	s, err := e.current()
	if err != nil {
		return domain.Session{}, domain.Handle{}, err
	}
	h, ok := e.handles.Get(id)
	if !ok {
		return domain.Session{}, domain.Handle{}, fmt.Errorf("%w: %s", domain.ErrUnknownHandle, id)
	}
	return s, h, nil
}

func (e *Engine) Send(ctx context.Context, id domain.HandleID, msg domain.Message) (domain.Reply, error) {
	s, h, err := e.handle(id)
	if err != nil {
		return domain.Reply{}, err
	}

	body := msg.Body
	if body == nil {
		body = struct{}{}
	}
	f, err := e.do(ctx, &Request{
		Janus:     KindMessage,
		SessionID: ID(s.ID),
		HandleID:  ID(h.ID),
		Body:      body,
		JSEP:      msg.JSEP,
	})
	if err != nil {
		return domain.Reply{}, err
	}

	reply := domain.Reply{
		Ack:    f.Janus == FrameAck,
		Plugin: h.Plugin,
		JSEP:   f.JSEP,
	}
	if f.PluginData != nil {
		reply.Plugin = f.PluginData.Plugin
		reply.Data = f.PluginData.Data
	}
	return reply, nil
}

func (e *Engine) Trickle(ctx context.Context, id domain.HandleID, candidate json.RawMessage) error {
	s, h, err := e.handle(id)
	if err != nil {
		return err
	}
	_, err = e.do(ctx, &Request{
		Janus:     KindTrickle,
		SessionID: ID(s.ID),
		HandleID:  ID(h.ID),
		Candidate: candidate,
	})
	return err
}

func (e *Engine) Hangup(ctx context.Context, id domain.HandleID) error {
	s, h, err := e.handle(id)
	if err != nil {
		return err
	}
	_, err = e.do(ctx, &Request{
		Janus:     KindHangup,
		SessionID: ID(s.ID),
		HandleID:  ID(h.ID),
	})
	return err
}

// Detach releases the handle. It is forgotten locally even when the gateway
// request fails.
func (e *Engine) Detach(ctx context.Context, id domain.HandleID) error {
	s, h, err := e.handle(id)
	if err != nil {
		return err
	}
	defer e.handles.Delete(h.ID)

	_, err = e.do(ctx, &Request{
		Janus:     KindDetach,
		SessionID: ID(s.ID),
		HandleID:  ID(h.ID),
	})
	return err
}

// DetachAll detaches every handle one after the other. Failures are logged.
func (e *Engine) DetachAll(ctx context.Context) {
	for _, h := range e.handles.List() {
		if err := e.Detach(ctx, h.ID); err != nil {
			log.Warn().Err(err).Str("handle_id", h.ID.String()).Msg("Detach during teardown failed")
		}
	}
}

func (e *Engine) Keepalive(ctx context.Context) error {
	s, err := e.current()
	if err != nil {
		return err
	}
	err = e.notify(ctx, &Request{
		Janus:     KindKeepalive,
		SessionID: ID(s.ID),
	})
	metrics.RecordKeepalive(e.mode.String(), err)
	return err
}

// DestroySession asks the gateway to drop the session, then resets local
// state whatever the outcome.
func (e *Engine) DestroySession(ctx context.Context) error {
	s, err := e.current()
	if err != nil {
		return err
	}
	defer e.Reset(domain.ErrClosed)

	_, err = e.do(ctx, &Request{
		Janus:     KindDestroy,
		SessionID: ID(s.ID),
	})
	if err == nil {
		log.Info().Str("session_id", s.ID.String()).Str("mode", e.mode.String()).Msg("Session destroyed")
	}
	return err
}

// Reset drops the session, every handle and every pending transaction.
func (e *Engine) Reset(cause error) {
	e.mu.Lock()
	e.active = false
	e.mu.Unlock()

	e.handles.Clear()
	e.txns.FailAll(cause)
}
