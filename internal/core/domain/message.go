package domain

import "encoding/json"

// Message is what a caller sends to a plugin handle. JSEP is opaque SDP data
// and is forwarded without being looked at.
type Message struct {
	Body any
	JSEP json.RawMessage
}

// Reply is the synchronous outcome of a send. Ack is set when the gateway
// only acknowledged the request and the plugin will answer asynchronously.
type Reply struct {
	Ack    bool
	Plugin string
	Data   json.RawMessage
	JSEP   json.RawMessage
}
