package domain

import (
	"fmt"
	"strings"
	"time"
)

type TransportMode string

const (
	ModePersistent  TransportMode = "websocket"
	ModeDirectPoll  TransportMode = "direct"
	ModeProxiedPoll TransportMode = "proxied"
)

// DefaultModeOrder is the order transports are tried in when the caller does
// not force one.
var DefaultModeOrder = []TransportMode{ModeProxiedPoll, ModePersistent, ModeDirectPoll}

func (m TransportMode) String() string {
	return string(m)
}

func ParseTransportMode(s string) (TransportMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "websocket", "ws", "persistent":
		return ModePersistent, nil
	case "direct", "http":
		return ModeDirectPoll, nil
	case "proxied", "proxy":
		return ModeProxiedPoll, nil
	}
	return "", fmt.Errorf("unknown transport mode %q", s)
}

type Session struct {
	ID        SessionID
	Mode      TransportMode
	CreatedAt time.Time
}

func NewSession(id SessionID, mode TransportMode) Session {
	return Session{
		ID:        id,
		Mode:      mode,
		CreatedAt: time.Now(),
	}
}

// Handle is one plugin attached inside a session. SessionID is a lookup
// reference only; the session does not keep handles alive.
type Handle struct {
	ID        HandleID
	SessionID SessionID
	Plugin    string
}
