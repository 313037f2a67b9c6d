package http

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Wyydra/yajanus/internal/adapter/driven/gateway/ws"
)

func newUpgrader(allowed []string) websocket.Upgrader {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[strings.ToLower(strings.TrimSuffix(strings.TrimSpace(o), "/"))] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		Subprotocols:    []string{ws.Subprotocol},
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, origins)
		},
	}
}

// originAllowed accepts requests without an Origin header (non-browser
// clients), same-origin requests, and origins listed in the config. "*"
// accepts every origin.
func originAllowed(r *http.Request, origins map[string]bool) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origins["*"] {
		return true
	}
	if origins[strings.ToLower(origin)] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// ServeWS relays a client websocket to the gateway one frame by frame.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if !h.upgrader.CheckOrigin(r) {
		log.Warn().Str("origin", r.Header.Get("Origin")).Msg("Rejected websocket origin")
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	upstream, _, err := h.dialer.DialContext(r.Context(), h.wsUpstream, nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		upstream.Close()
		return
	}

	l := log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
	l.Info().Msg("Relay client connected")

	var once sync.Once
	closeBoth := func() {
		once.Do(func() {
			conn.Close()
			upstream.Close()
		})
	}
	defer func() {
		closeBoth()
		l.Info().Msg("Relay client disconnected")
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		relay(upstream, conn, l.With().Str("direction", "client->gateway").Logger())
		closeBoth()
	}()
	relay(conn, upstream, l.With().Str("direction", "gateway->client").Logger())
	closeBoth()
	<-done
}

func relay(dst, src *websocket.Conn, l zerolog.Logger) {
	for {
		kind, data, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}
		if err := dst.WriteMessage(kind, data); err != nil {
			l.Debug().Err(err).Msg("Relay write failed")
			return
		}
	}
}
