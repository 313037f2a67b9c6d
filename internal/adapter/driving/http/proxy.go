package http

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Wyydra/yajanus/internal/metrics"
)

const maxBodySize = 4 << 20

// Command forwards POST /janus?sessionId=&handleId= to the matching gateway
// path. The body is passed through untouched.
func (h *Handler) Command(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sid, hid := q.Get("sessionId"), q.Get("handleId")
	if hid != "" && sid == "" {
		h.reject(w, r, "handleId requires sessionId")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.reject(w, r, "unreadable body")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.upstreamURL(sid, hid, nil), bytes.NewReader(body))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	h.forward(w, r, req)
}

// Poll forwards GET /janus?sessionId=&maxev= as the gateway long-poll. It
// stays open for as long as the gateway holds it.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sid := q.Get("sessionId")
	if sid == "" {
		h.reject(w, r, "sessionId is required")
		return
	}

	fwd := url.Values{}
	for _, key := range []string{"maxev", "apisecret", "rid"} {
		if v := q.Get(key); v != "" {
			fwd.Set(key, v)
		}
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, h.upstreamURL(sid, "", fwd), nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.forward(w, r, req)
}

func (h *Handler) upstreamURL(sid, hid string, q url.Values) string {
	u := strings.TrimRight(h.upstream, "/")
	if sid != "" {
		u += "/" + url.PathEscape(sid)
	}
	if hid != "" {
		u += "/" + url.PathEscape(hid)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request, req *http.Request) {
	resp, err := h.client.Do(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, io.LimitReader(resp.Body, maxBodySize)); err != nil {
		log.Debug().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("Client went away mid-response")
	}
	metrics.RecordProxyRequest(r.Method, strconv.Itoa(resp.StatusCode))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, reason string) {
	metrics.RecordProxyRequest(r.Method, strconv.Itoa(http.StatusBadRequest))
	http.Error(w, reason, http.StatusBadRequest)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		log.Debug().Str("request_id", middleware.GetReqID(r.Context())).Msg("Client cancelled proxied request")
		return
	}
	log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Str("path", r.URL.RequestURI()).Msg("Upstream request failed")
	metrics.RecordProxyRequest(r.Method, strconv.Itoa(http.StatusBadGateway))
	http.Error(w, "upstream unavailable", http.StatusBadGateway)
}
