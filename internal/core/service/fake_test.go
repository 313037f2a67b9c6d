package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/yajanus/internal/core/domain"
	"github.com/Wyydra/yajanus/internal/core/port"
)

// fakeTransport records calls and lets tests push events through the sink
// it was built with.
type fakeTransport struct {
	mode      domain.TransportMode
	sink      port.EventSink
	createErr error
	reply     domain.Reply
	// entered, when set, makes CreateSession wait for ctx to end and then
	// succeed anyway, like a gateway whose reply was already in flight.
	entered chan struct{}

	mu        sync.Mutex
	calls     []string
	session   domain.SessionID
	active    bool
	nextID    int
	destroyed int
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) Mode() domain.TransportMode { return f.mode }

func (f *fakeTransport) CreateSession(ctx context.Context) (domain.Session, error) {
	f.record("create")
	if f.entered != nil {
		close(f.entered)
		<-ctx.Done()
	}
	if f.createErr != nil {
		return domain.Session{}, f.createErr
	}
	f.mu.Lock()
	f.session = domain.SessionID(fmt.Sprintf("%s-session", f.mode))
	f.active = true
	f.mu.Unlock()
	return domain.NewSession(f.session, f.mode), nil
}

func (f *fakeTransport) Attach(ctx context.Context, plugin string) (domain.Handle, error) {
	f.record("attach " + plugin)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return domain.Handle{}, domain.ErrNoSession
	}
	f.nextID++
	return domain.Handle{ID: domain.HandleID(fmt.Sprintf("h%d", f.nextID)), SessionID: f.session, Plugin: plugin}, nil
}

func (f *fakeTransport) Send(ctx context.Context, handle domain.HandleID, msg domain.Message) (domain.Reply, error) {
	body, _ := json.Marshal(msg.Body)
	f.record(fmt.Sprintf("send %s %s jsep=%t", handle, body, len(msg.JSEP) > 0))
	return f.reply, nil
}

func (f *fakeTransport) Trickle(ctx context.Context, handle domain.HandleID, candidate json.RawMessage) error {
	f.record(fmt.Sprintf("trickle %s %s", handle, candidate))
	return nil
}

func (f *fakeTransport) Hangup(ctx context.Context, handle domain.HandleID) error {
	f.record("hangup " + handle.String())
	return nil
}

func (f *fakeTransport) Detach(ctx context.Context, handle domain.HandleID) error {
	f.record("detach " + handle.String())
	return nil
}

func (f *fakeTransport) Destroy(ctx context.Context) error {
	f.record("destroy")
	f.mu.Lock()
	f.active = false
	f.destroyed++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) emit(ev domain.Event) {
	f.sink.Emit(ev)
}

type fakeFactory struct {
	fail    map[domain.TransportMode]error
	reply   domain.Reply
	entered chan struct{}

	mu    sync.Mutex
	built []*fakeTransport
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{fail: make(map[domain.TransportMode]error)}
}

func (f *fakeFactory) New(mode domain.TransportMode, sink port.EventSink) (port.Transport, error) {
	t := &fakeTransport{mode: mode, sink: sink, createErr: f.fail[mode], reply: f.reply}
	f.mu.Lock()
	t.entered, f.entered = f.entered, nil
	f.built = append(f.built, t)
	f.mu.Unlock()
	return t, nil
}

func (f *fakeFactory) transports() []*fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeTransport(nil), f.built...)
}

func (f *fakeFactory) last() *fakeTransport {
	ts := f.transports()
	return ts[len(ts)-1]
}

var errRefused = errors.New("connection refused")

type eventLog chan domain.Event

func (e eventLog) listener(ev domain.Event) {
	e <- ev
}

func (e eventLog) next(t *testing.T) domain.Event {
	t.Helper()
	select {
	case ev := <-e:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for event")
	}
	return domain.Event{}
}

func (e eventLog) none(t *testing.T) {
	t.Helper()
	select {
	case ev := <-e:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
