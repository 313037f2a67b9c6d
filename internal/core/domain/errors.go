package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoSession           = errors.New("no active session")
	ErrAlreadyConnected    = errors.New("session already active")
	ErrAllTransportsFailed = errors.New("all transports failed")
	ErrUnknownHandle       = errors.New("unknown plugin handle")
	ErrTransactionTimeout  = errors.New("transaction timed out")
	ErrClosed              = errors.New("transport closed")
	ErrNotConnected        = errors.New("transport not connected")
)

// GatewayError is a "janus": "error" reply.
type GatewayError struct {
	Code   int
	Reason string
}

func (e *GatewayError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("gateway error: %s", e.Reason)
	}
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Reason)
}

// Janus error codes the client reacts to.
const (
	CodeSessionNotFound = 458
	CodeHandleNotFound  = 459
)
