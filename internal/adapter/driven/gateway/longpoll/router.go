package longpoll

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/Wyydra/yajanus/internal/core/domain"
)

// Router decides where each request goes. The direct and proxied variants
// differ only here.
type Router interface {
	CommandURL(session domain.SessionID, handle domain.HandleID) string
	PollURL(session domain.SessionID, maxEvents int, apiSecret string) string
}

// DirectRouter addresses the gateway's REST endpoints:
// {base}, {base}/{session} and {base}/{session}/{handle}.
type DirectRouter struct {
	Base string
}

func (r DirectRouter) base() string {
	return strings.TrimRight(r.Base, "/")
}

func (r DirectRouter) CommandURL(session domain.SessionID, handle domain.HandleID) string {
	u := r.base()
	if session == "" {
		return u
	}
	u += "/" + url.PathEscape(session.String())
	if handle != "" {
		u += "/" + url.PathEscape(handle.String())
	}
	return u
}

func (r DirectRouter) PollURL(session domain.SessionID, maxEvents int, apiSecret string) string {
	q := url.Values{}
	q.Set("maxev", strconv.Itoa(maxEvents))
	if apiSecret != "" {
		q.Set("apisecret", apiSecret)
	}
	return r.base() + "/" + url.PathEscape(session.String()) + "?" + q.Encode()
}

// ProxiedRouter sends everything to one application-server endpoint and
// names the session and handle in the query string.
type ProxiedRouter struct {
	Base string
}

func (r ProxiedRouter) with(q url.Values) string {
	u, err := url.Parse(r.Base)
	if err != nil {
		return r.Base + "?" + q.Encode()
	}
	merged := u.Query()
	for k, vs := range q {
		merged[k] = vs
	}
	u.RawQuery = merged.Encode()
	return u.String()
}

func (r ProxiedRouter) CommandURL(session domain.SessionID, handle domain.HandleID) string {
	q := url.Values{}
	if session != "" {
		q.Set("sessionId", session.String())
	}
	if handle != "" {
		q.Set("handleId", handle.String())
	}
	if len(q) == 0 {
		return r.Base
	}
	return r.with(q)
}

func (r ProxiedRouter) PollURL(session domain.SessionID, maxEvents int, apiSecret string) string {
	q := url.Values{}
	q.Set("sessionId", session.String())
	q.Set("maxev", strconv.Itoa(maxEvents))
	if apiSecret != "" {
		q.Set("apisecret", apiSecret)
	}
	return r.with(q)
}
