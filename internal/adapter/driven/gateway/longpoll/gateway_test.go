package longpoll

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Wyydra/yajanus/internal/core/domain"
)

const proxyPath = "/proxy"

type recorded struct {
	Method string
	Path   string
	Query  string
	Kind   string
}

// fakeGateway answers both the gateway REST layout and the proxy layout so
// the same fixtures can drive both transport variants.
type fakeGateway struct {
	t   *testing.T
	srv *httptest.Server

	events chan string
	idle   time.Duration

	mu        sync.Mutex
	requests  []recorded
	failKinds map[string]int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	polls       atomic.Int32
	failPolls   atomic.Int32
	pollStatus  atomic.Int32
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{
		t:         t,
		events:    make(chan string, 16),
		idle:      50 * time.Millisecond,
		failKinds: make(map[string]int),
	}
	g.srv = httptest.NewServer(g)
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) directURL() string {
	return g.srv.URL + "/janus"
}

func (g *fakeGateway) proxiedURL() string {
	return g.srv.URL + proxyPath
}

func (g *fakeGateway) failKind(kind string, status int) {
	g.mu.Lock()
	g.failKinds[kind] = status
	g.mu.Unlock()
}

func (g *fakeGateway) ids(r *http.Request) (string, string) {
	if r.URL.Path == proxyPath {
		return r.URL.Query().Get("sessionId"), r.URL.Query().Get("handleId")
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/janus"), "/"), "/")
	var sid, hid string
	if len(parts) > 0 {
		sid = parts[0]
	}
	if len(parts) > 1 {
		hid = parts[1]
	}
	return sid, hid
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sid, hid := g.ids(r)
	if r.Method == http.MethodGet {
		g.record(recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Kind: "poll"})
		g.poll(w, r)
		return
	}

	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind := fmt.Sprint(req["janus"])
	g.record(recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Kind: kind})

	g.mu.Lock()
	status := g.failKinds[kind]
	g.mu.Unlock()
	if status != 0 {
		http.Error(w, "injected failure", status)
		return
	}

	txn := req["transaction"]
	var reply map[string]any
	switch kind {
	case "create":
		reply = map[string]any{"janus": "success", "transaction": txn, "data": map[string]any{"id": "sess-1"}}
	case "attach":
		reply = map[string]any{"janus": "success", "transaction": txn, "session_id": sid, "data": map[string]any{"id": "handle-" + fmt.Sprint(g.count("attach"))}}
	case "message":
		body, _ := req["body"].(map[string]any)
		if body["request"] == "sync-event" {
			reply = map[string]any{
				"janus":       "event",
				"transaction": txn,
				"sender":      hid,
				"plugindata":  map[string]any{"plugin": "janus.plugin.videocall", "data": map[string]any{"result": "sync"}},
				"jsep":        map[string]any{"type": "answer", "sdp": "v=0"},
			}
		} else {
			reply = map[string]any{"janus": "ack", "transaction": txn}
		}
	case "keepalive", "trickle":
		reply = map[string]any{"janus": "ack", "transaction": txn}
	default:
		reply = map[string]any{"janus": "success", "transaction": txn}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}

func (g *fakeGateway) poll(w http.ResponseWriter, r *http.Request) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		m := g.maxInFlight.Load()
		if n <= m || g.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	g.polls.Add(1)

	if g.failPolls.Load() > 0 {
		g.failPolls.Add(-1)
		http.Error(w, "poll failure", http.StatusBadGateway)
		return
	}
	if code := g.pollStatus.Load(); code != 0 {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"janus":"error","session_id":"sess-1","error":{"code":%d,"reason":"No such session"}}`, code)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	select {
	case ev := <-g.events:
		fmt.Fprint(w, ev)
	case <-time.After(g.idle):
		fmt.Fprint(w, `{"janus":"keepalive"}`)
	case <-r.Context().Done():
	}
}

func (g *fakeGateway) record(rec recorded) {
	g.mu.Lock()
	g.requests = append(g.requests, rec)
	g.mu.Unlock()
}

func (g *fakeGateway) recorded() []recorded {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]recorded(nil), g.requests...)
}

func (g *fakeGateway) count(kind string) int {
	n := 0
	for _, r := range g.recorded() {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// commands returns the non-poll request kinds in order.
func (g *fakeGateway) commands() []string {
	var out []string
	for _, r := range g.recorded() {
		if r.Kind != "poll" {
			out = append(out, r.Kind)
		}
	}
	return out
}

type chanSink chan domain.Event

func (c chanSink) Emit(ev domain.Event) {
	c <- ev
}

func waitEvent(t *testing.T, events chanSink, kind domain.EventKind) domain.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s event", kind)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
