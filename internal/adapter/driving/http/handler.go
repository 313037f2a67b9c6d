package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Wyydra/yajanus/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yajanus/internal/metrics"
)

type Options struct {
	// Upstream is the gateway REST base, e.g. http://janus:8088/janus.
	Upstream string
	// WebSocketUpstream enables the /janus/ws relay when set.
	WebSocketUpstream string
	// AllowedOrigins lists browser origins the relay accepts besides the
	// proxy's own; "*" accepts any.
	AllowedOrigins []string
	Client         *http.Client
}

// Handler is the application-server side of the proxied long-poll
// transport: it maps query-addressed requests onto the gateway's REST paths.
type Handler struct {
	upstream   string
	wsUpstream string
	client     *http.Client
	dialer     *websocket.Dialer
	upgrader   websocket.Upgrader
}

func NewHandler(opts Options) *Handler {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Handler{
		upstream:   opts.Upstream,
		wsUpstream: opts.WebSocketUpstream,
		client:     client,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{ws.Subprotocol},
		},
		upgrader: newUpgrader(opts.AllowedOrigins),
	}
}

func (h *Handler) NewRouter() http.Handler {
	metrics.RegisterMetrics()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/janus", h.Command)
	r.Get("/janus", h.Poll)
	if h.wsUpstream != "" {
		r.Get("/janus/ws", h.ServeWS)
	}
	r.Handle("/metrics", promhttp.Handler())

	return r
}
