package domain

import "encoding/json"

type EventKind string

const (
	EventPlugin       EventKind = "plugin-event"
	EventWebRTCUp     EventKind = "webrtcup"
	EventMedia        EventKind = "media"
	EventSlowLink     EventKind = "slowlink"
	EventHangup       EventKind = "hangup"
	EventError        EventKind = "error"
	EventDisconnected EventKind = "disconnected"
	EventDetached     EventKind = "detached"
	EventTrickle      EventKind = "trickle"

	// EventAny subscribes to every kind.
	EventAny EventKind = "*"
)

// Event is one inbound notification, built per received frame.
type Event struct {
	Kind   EventKind
	Handle HandleID
	Plugin string
	Data   json.RawMessage
	JSEP   json.RawMessage
	Reason string
	Err    error
	// Raw is the full frame as received, when there was one.
	Raw json.RawMessage
}
