package janus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Request kinds.
const (
	KindCreate    = "create"
	KindAttach    = "attach"
	KindMessage   = "message"
	KindTrickle   = "trickle"
	KindKeepalive = "keepalive"
	KindHangup    = "hangup"
	KindDetach    = "detach"
	KindDestroy   = "destroy"
)

// Frame kinds.
const (
	FrameAck       = "ack"
	FrameSuccess   = "success"
	FrameError     = "error"
	FrameEvent     = "event"
	FrameWebRTCUp  = "webrtcup"
	FrameMedia     = "media"
	FrameSlowLink  = "slowlink"
	FrameHangup    = "hangup"
	FrameDetached  = "detached"
	FrameTrickle   = "trickle"
	FrameTimeout   = "timeout"
	FrameKeepalive = "keepalive"
)

// ID is a gateway identifier. Janus sends 64-bit integers, other gateways
// strings; both decode to the same opaque text. Canonical digits go back out
// as a JSON number unless the request asks for string ids.
type ID string

func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if v, err := strconv.ParseUint(string(id), 10, 64); err == nil && strconv.FormatUint(v, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*id = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("id: %w", err)
		}
		*id = ID(n.String())
	}
	return nil
}

type Request struct {
	Janus       string          `json:"janus"`
	Transaction string          `json:"transaction"`
	SessionID   ID              `json:"session_id,omitempty"`
	HandleID    ID              `json:"handle_id,omitempty"`
	Plugin      string          `json:"plugin,omitempty"`
	Body        any             `json:"body,omitempty"`
	JSEP        json.RawMessage `json:"jsep,omitempty"`
	Candidate   json.RawMessage `json:"candidate,omitempty"`
	APISecret   string          `json:"apisecret,omitempty"`

	// StringIDs writes SessionID and HandleID as JSON strings, for gateways
	// that hand out string ids.
	StringIDs bool `json:"-"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	type plain Request
	if !r.StringIDs {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		plain
		SessionID string `json:"session_id,omitempty"`
		HandleID  string `json:"handle_id,omitempty"`
	}{plain(r), string(r.SessionID), string(r.HandleID)})
}

type PluginData struct {
	Plugin string          `json:"plugin"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type ErrorInfo struct {
	Code   int    `json:"code,omitempty"`
	Reason string `json:"reason"`
}

type Frame struct {
	Janus       string          `json:"janus"`
	Transaction string          `json:"transaction,omitempty"`
	SessionID   ID              `json:"session_id,omitempty"`
	Sender      ID              `json:"sender,omitempty"`
	Data        *FrameData      `json:"data,omitempty"`
	PluginData *PluginData     `json:"plugindata,omitempty"`
	JSEP       json.RawMessage `json:"jsep,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
	Error      *ErrorInfo      `json:"error,omitempty"`
	Reason     string          `json:"reason,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// FrameData is the data object of a create or attach success. Quoted
// records whether the id arrived as a JSON string.
type FrameData struct {
	ID     ID
	Quoted bool
}

func (d *FrameData) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.ID) == 0 {
		*d = FrameData{}
		return nil
	}
	if err := d.ID.UnmarshalJSON(raw.ID); err != nil {
		return err
	}
	d.Quoted = bytes.TrimSpace(raw.ID)[0] == '"'
	return nil
}

// DataID is the id carried by a create or attach success.
func (f *Frame) DataID() ID {
	if f.Data == nil {
		return ""
	}
	return f.Data.ID
}

var errEmptyPayload = errors.New("empty payload")

// DecodeFrames accepts a single frame object or an array of them, as
// returned by long-polls with maxev > 1.
func DecodeFrames(data []byte) ([]*Frame, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errEmptyPayload
	}
	if data[0] != '[' {
		f, err := decodeFrame(data)
		if err != nil {
			return nil, err
		}
		return []*Frame{f}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode frames: %w", err)
	}
	out := make([]*Frame, 0, len(raws))
	for _, raw := range raws {
		f, err := decodeFrame(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func decodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Janus == "" {
		return nil, fmt.Errorf("decode frame: missing janus field")
	}
	f.Raw = append(json.RawMessage(nil), data...)
	return &f, nil
}
