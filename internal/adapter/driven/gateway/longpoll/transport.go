package longpoll

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wyydra/yajanus/internal/adapter/driven/gateway/janus"
	"github.com/Wyydra/yajanus/internal/core/domain"
	"github.com/Wyydra/yajanus/internal/core/port"
	"github.com/Wyydra/yajanus/internal/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const maxBodySize = 4 << 20

var (
	errSessionGone     = errors.New("gateway no longer knows the session")
	errSessionTimedOut = errors.New("session timed out")
	errNoReply         = errors.New("response carries no reply for the transaction")
)

type Config struct {
	BaseURL            string
	APISecret          string
	KeepaliveInterval  time.Duration
	TransactionTimeout time.Duration
	RequestTimeout     time.Duration
	// RetryDelay is the pause after a failed poll. MaxRetries bounds
	// consecutive failures; zero retries forever.
	RetryDelay time.Duration
	MaxRetries int
	MaxEvents  int
	Client     *http.Client
}

// Transport sends commands as HTTP POSTs and receives pushed events through
// a single long-poll GET that is reissued as soon as it returns.
type Transport struct {
	mode      domain.TransportMode
	cfg       Config
	router    Router
	client    *http.Client
	engine    *janus.Engine
	keepalive *janus.Keepalive

	mu         sync.Mutex
	pollCancel context.CancelFunc
	pollDone   chan struct{}
	inFlight   atomic.Int32
}

func NewDirect(cfg Config, sink port.EventSink, handles port.HandleRepository) *Transport {
	return newTransport(domain.ModeDirectPoll, DirectRouter{Base: cfg.BaseURL}, cfg, sink, handles)
}

func NewProxied(cfg Config, sink port.EventSink, handles port.HandleRepository) *Transport {
	return newTransport(domain.ModeProxiedPoll, ProxiedRouter{Base: cfg.BaseURL}, cfg, sink, handles)
}

func newTransport(mode domain.TransportMode, router Router, cfg Config, sink port.EventSink, handles port.HandleRepository) *Transport {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 1
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}

	t := &Transport{
		mode:   mode,
		cfg:    cfg,
		router: router,
		client: client,
	}
	t.engine = janus.NewEngine(janus.Options{
		Mode:               mode,
		APISecret:          cfg.APISecret,
		TransactionTimeout: cfg.TransactionTimeout,
		Handles:            handles,
		Sink:               sink,
	}, t)
	t.keepalive = janus.NewKeepalive(cfg.KeepaliveInterval, t.engine.Keepalive)
	return t
}

func (t *Transport) Mode() domain.TransportMode {
	return t.mode
}

// Deliver POSTs one request. The reply in the response body goes through the
// dispatcher exactly like a polled frame would.
func (t *Transport) Deliver(ctx context.Context, req *janus.Request) error {
	if t.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.RequestTimeout)
		defer cancel()
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	u := t.router.CommandURL(domain.SessionID(req.SessionID), domain.HandleID(req.HandleID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	frames, err := t.roundTrip(httpReq)
	if err != nil {
		return err
	}
	for _, f := range frames {
		t.engine.Dispatch(f)
	}
	if t.engine.Registry().Has(req.Transaction) {
		return errNoReply
	}
	return nil
}

func (t *Transport) roundTrip(req *http.Request) ([]*janus.Frame, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return janus.DecodeFrames(body)
}

func (t *Transport) CreateSession(ctx context.Context) (domain.Session, error) {
	s, err := t.engine.CreateSession(ctx)
	if err != nil {
		return domain.Session{}, err
	}
	t.startPolling(s.ID)
	t.keepalive.Start(context.Background())
	return s, nil
}

func (t *Transport) Attach(ctx context.Context, plugin string) (domain.Handle, error) {
	return t.engine.Attach(ctx, plugin)
}

func (t *Transport) Send(ctx context.Context, handle domain.HandleID, msg domain.Message) (domain.Reply, error) {
	return t.engine.Send(ctx, handle, msg)
}

func (t *Transport) Trickle(ctx context.Context, handle domain.HandleID, candidate json.RawMessage) error {
	return t.engine.Trickle(ctx, handle, candidate)
}

func (t *Transport) Hangup(ctx context.Context, handle domain.HandleID) error {
	return t.engine.Hangup(ctx, handle)
}

func (t *Transport) Detach(ctx context.Context, handle domain.HandleID) error {
	return t.engine.Detach(ctx, handle)
}

// Destroy stops the keepalive, aborts the poll and waits for it, detaches
// every handle and destroys the session best-effort.
func (t *Transport) Destroy(ctx context.Context) error {
	t.keepalive.Stop()
	t.stopPolling()

	t.engine.DetachAll(ctx)
	err := t.engine.DestroySession(ctx)
	if errors.Is(err, domain.ErrNoSession) {
		err = nil
	}
	if err != nil {
		log.Warn().Err(err).Str("mode", t.mode.String()).Msg("Session destroy failed")
	}
	t.engine.Reset(domain.ErrClosed)
	return err
}

func (t *Transport) startPolling(session domain.SessionID) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	if t.pollCancel != nil {
		t.mu.Unlock()
		cancel()
		return
	}
	t.pollCancel = cancel
	t.pollDone = done
	t.mu.Unlock()

	go t.pollLoop(ctx, session, done)
}

func (t *Transport) stopPolling() {
	t.mu.Lock()
	cancel, done := t.pollCancel, t.pollDone
	t.pollCancel = nil
	t.pollDone = nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Transport) retryPolicy() backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(t.cfg.RetryDelay)
	if t.cfg.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(t.cfg.MaxRetries))
	}
	return b
}

// pollLoop keeps exactly one long-poll outstanding for the session until ctx
// is cancelled or the session is lost.
func (t *Transport) pollLoop(ctx context.Context, session domain.SessionID, done chan struct{}) {
	defer close(done)

	l := log.With().Str("mode", t.mode.String()).Str("session_id", session.String()).Logger()
	retry := t.retryPolicy()

	for {
		if ctx.Err() != nil {
			return
		}

		frames, err := t.poll(ctx, session)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = t.dispatchPolled(frames)
		}

		switch {
		case err == nil:
			retry.Reset()
			continue
		case errors.Is(err, errSessionTimedOut):
			l.Warn().Msg("Gateway timed the session out")
			t.lost(nil)
			return
		case errors.Is(err, errSessionGone):
			l.Warn().Msg("Gateway lost the session")
			t.lost(err)
			return
		}

		delay := retry.NextBackOff()
		if delay == backoff.Stop {
			l.Error().Err(err).Msg("Long-poll retries exhausted")
			t.lost(fmt.Errorf("long-poll retries exhausted: %w", err))
			return
		}
		l.Warn().Err(err).Dur("retry_in", delay).Msg("Long-poll failed")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (t *Transport) poll(ctx context.Context, session domain.SessionID) ([]*janus.Frame, error) {
	if n := t.inFlight.Add(1); n > 1 {
		log.Error().Int32("in_flight", n).Str("session_id", session.String()).Msg("Concurrent long-poll detected")
	}
	defer t.inFlight.Add(-1)

	metrics.PollStarted(t.mode.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.router.PollURL(session, t.cfg.MaxEvents, t.cfg.APISecret), nil)
	if err != nil {
		metrics.PollFinished(t.mode.String(), err)
		return nil, err
	}
	frames, err := t.roundTrip(req)
	metrics.PollFinished(t.mode.String(), err)
	return frames, err
}

func (t *Transport) dispatchPolled(frames []*janus.Frame) error {
	var err error
	for _, f := range frames {
		t.engine.Dispatch(f)

		switch {
		case f.Janus == janus.FrameTimeout:
			return errSessionTimedOut
		case f.Janus == janus.FrameError && f.Transaction == "":
			if f.Error != nil && f.Error.Code == domain.CodeSessionNotFound {
				return errSessionGone
			}
			err = fmt.Errorf("long-poll: gateway error")
		}
	}
	return err
}

// lost is called from the poll loop when the session can no longer be
// served. A nil cause means the dispatcher already told listeners.
func (t *Transport) lost(cause error) {
	t.keepalive.Stop()
	t.engine.Reset(domain.ErrClosed)
	if cause == nil {
		return
	}
	t.engine.Emit(domain.Event{
		Kind:   domain.EventDisconnected,
		Reason: cause.Error(),
		Err:    cause,
	})
}
