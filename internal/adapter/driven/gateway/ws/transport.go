package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wyydra/yajanus/internal/adapter/driven/gateway/janus"
	"github.com/Wyydra/yajanus/internal/core/domain"
	"github.com/Wyydra/yajanus/internal/core/port"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Subprotocol is the websocket subprotocol Janus expects.
const Subprotocol = "janus-protocol"

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type Config struct {
	URL                string
	APISecret          string
	KeepaliveInterval  time.Duration
	TransactionTimeout time.Duration
	DialTimeout        time.Duration
	WriteTimeout       time.Duration
}

// Transport multiplexes every request, reply and pushed event over one
// websocket connection.
type Transport struct {
	cfg       Config
	dialer    *websocket.Dialer
	engine    *janus.Engine
	keepalive *janus.Keepalive

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	done    chan struct{}
	closing atomic.Bool

	writeMu sync.Mutex
}

func New(cfg Config, sink port.EventSink, handles port.HandleRepository) *Transport {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	t := &Transport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
			Subprotocols:     []string{Subprotocol},
		},
	}
	t.engine = janus.NewEngine(janus.Options{
		Mode:               domain.ModePersistent,
		APISecret:          cfg.APISecret,
		TransactionTimeout: cfg.TransactionTimeout,
		Handles:            handles,
		Sink:               sink,
	}, t)
	t.keepalive = janus.NewKeepalive(cfg.KeepaliveInterval, t.engine.Keepalive)
	return t
}

func (t *Transport) Mode() domain.TransportMode {
	return domain.ModePersistent
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Transport) connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateIdle {
		s := t.state
		t.mu.Unlock()
		return fmt.Errorf("connect in state %s", s)
	}
	t.state = StateConnecting
	t.mu.Unlock()

	conn, _, err := t.dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		t.setState(StateError)
		return fmt.Errorf("websocket dial: %w", err)
	}

	done := make(chan struct{})
	t.mu.Lock()
	t.conn = conn
	t.done = done
	t.state = StateConnected
	t.mu.Unlock()

	go t.readLoop(conn, done)
	log.Debug().Str("url", t.cfg.URL).Msg("Websocket connected")
	return nil
}

func (t *Transport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if t.closing.Load() {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("Unexpected close error")
			}
			t.fail(err)
			return
		}

		frames, err := janus.DecodeFrames(data)
		if err != nil {
			log.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}
		for _, f := range frames {
			if f.Janus == janus.FrameTimeout {
				t.expired()
			}
			t.engine.Dispatch(f)
		}
	}
}

// fail handles a connection lost outside teardown: every waiter is released
// and listeners learn that the session is gone.
func (t *Transport) fail(cause error) {
	t.setState(StateError)
	t.keepalive.Stop()
	t.engine.Reset(fmt.Errorf("%w: %v", domain.ErrClosed, cause))
	t.engine.Emit(domain.Event{
		Kind:   domain.EventError,
		Reason: cause.Error(),
		Err:    cause,
	})
	t.engine.Emit(domain.Event{
		Kind:   domain.EventDisconnected,
		Reason: "connection lost",
		Err:    cause,
	})
}

// expired handles a session the gateway timed out. The socket stays open
// until Destroy; the dispatcher reports the disconnect.
func (t *Transport) expired() {
	log.Warn().Msg("Session timed out on the gateway")
	t.setState(StateError)
	t.keepalive.Stop()
	t.engine.Reset(domain.ErrNoSession)
}

// Deliver writes one request on the socket.
func (t *Transport) Deliver(ctx context.Context, req *janus.Request) error {
	t.mu.Lock()
	conn, state := t.conn, t.state
	t.mu.Unlock()
	if conn == nil || state != StateConnected {
		return domain.ErrNotConnected
	}

	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(t.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (t *Transport) CreateSession(ctx context.Context) (domain.Session, error) {
	if err := t.connect(ctx); err != nil {
		return domain.Session{}, err
	}
	s, err := t.engine.CreateSession(ctx)
	if err != nil {
		t.closeConn()
		return domain.Session{}, err
	}
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

// Destroy stops the keepalive, detaches every handle, destroys the session
// while the socket is still usable and closes the connection.
func (t *Transport) Destroy(ctx context.Context) error {
	t.keepalive.Stop()

	var err error
	if t.State() == StateConnected {
		t.engine.DetachAll(ctx)
		err = t.engine.DestroySession(ctx)
		if errors.Is(err, domain.ErrNoSession) {
			err = nil
		}
	} else {
		t.engine.Reset(domain.ErrClosed)
	}

	t.closeConn()
	return err
}

func (t *Transport) closeConn() {
	t.closing.Store(true)

	t.mu.Lock()
	conn, done := t.conn, t.done
	t.conn = nil
	t.state = StateClosed
	t.mu.Unlock()

	if conn == nil {
		return
	}

	t.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		log.Debug().Err(err).Msg("Close frame not sent")
	}
	t.writeMu.Unlock()

	if err := conn.Close(); err != nil {
		log.Debug().Err(err).Msg("Error closing websocket")
	}
	<-done
}
