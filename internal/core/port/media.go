package port

import (
	"context"
	"encoding/json"
)

// MediaEngine is the peer connection that consumes negotiated JSEP and ICE.
type MediaEngine interface {
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	ApplyRemote(jsep json.RawMessage) error
	AddRemoteCandidate(candidate json.RawMessage) error
	OnLocalCandidate(cb func(candidate json.RawMessage))
	Close() error
}
