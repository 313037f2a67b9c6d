package port

import (
	"context"
	"encoding/json"

	"github.com/Wyydra/yajanus/internal/core/domain"
)

// Transport is one way of reaching the gateway. Every variant owns its
// session, handles and pending transactions; asynchronous events go to the
// EventSink it was built with.
type Transport interface {
	Mode() domain.TransportMode
	CreateSession(ctx context.Context) (domain.Session, error)
	Attach(ctx context.Context, plugin string) (domain.Handle, error)
	Send(ctx context.Context, handle domain.HandleID, msg domain.Message) (domain.Reply, error)
	Trickle(ctx context.Context, handle domain.HandleID, candidate json.RawMessage) error
	Hangup(ctx context.Context, handle domain.HandleID) error
	Detach(ctx context.Context, handle domain.HandleID) error
	// Destroy tears the session down. Errors are informational only.
	Destroy(ctx context.Context) error
}

type TransportFactory interface {
	New(mode domain.TransportMode, sink EventSink) (Transport, error)
}
