package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/yajanus/internal/core/domain"
	"github.com/Wyydra/yajanus/internal/core/port"
	"github.com/rs/zerolog/log"
)

const trickleTimeout = 10 * time.Second

// MediaFactory builds the peer connection for one call.
type MediaFactory func() (port.MediaEngine, error)

// CallService negotiates media through a plugin handle: the local offer
// goes out with the first message and the answer comes back either in the
// reply or as a plugin event.
type CallService struct {
	conn     *ConnectionManager
	newMedia MediaFactory
}

func NewCallService(conn *ConnectionManager, newMedia MediaFactory) *CallService {
	return &CallService{
		conn:     conn,
		newMedia: newMedia,
	}
}

type Call struct {
	handle *PluginHandle
	media  port.MediaEngine
	unsubs []func()

	answerOnce sync.Once
	answered   chan struct{}
	hangupOnce sync.Once
	hungUp     chan struct{}
}

func (c *Call) Handle() *PluginHandle {
	return c.handle
}

// Answered is closed once the remote answer has been applied.
func (c *Call) Answered() <-chan struct{} {
	return c.answered
}

// HungUp is closed when the gateway reports the peer connection as gone.
func (c *Call) HungUp() <-chan struct{} {
	return c.hungUp
}

// Start attaches plugin, sends body together with a fresh offer and wires
// ICE both ways.
func (s *CallService) Start(ctx context.Context, plugin string, body any) (*Call, error) {
	h, err := s.conn.AttachPlugin(ctx, plugin)
	if err != nil {
		return nil, err
	}
	l := log.With().Str("handle_id", h.ID().String()).Str("plugin", plugin).Logger()

	media, err := s.newMedia()
	if err != nil {
		if derr := h.Detach(ctx); derr != nil {
			l.Warn().Err(derr).Msg("Detach after media failure failed")
		}
		return nil, fmt.Errorf("media: %w", err)
	}

	c := &Call{
		handle:   h,
		media:    media,
		answered: make(chan struct{}),
		hungUp:   make(chan struct{}),
	}

	c.unsubs = append(c.unsubs,
		h.On(domain.EventPlugin, func(ev domain.Event) {
			if len(ev.JSEP) > 0 {
				c.applyAnswer(ev.JSEP)
			}
		}),
		h.On(domain.EventTrickle, func(ev domain.Event) {
			if err := media.AddRemoteCandidate(ev.Data); err != nil {
				l.Warn().Err(err).Msg("Remote candidate rejected")
			}
		}),
		h.On(domain.EventWebRTCUp, func(domain.Event) {
			l.Info().Msg("PeerConnection is up")
		}),
		h.On(domain.EventHangup, func(ev domain.Event) {
			l.Info().Str("reason", ev.Reason).Msg("Gateway hung up")
			c.hangupOnce.Do(func() { close(c.hungUp) })
		}),
	)

	media.OnLocalCandidate(func(candidate json.RawMessage) {
		tctx, cancel := context.WithTimeout(context.Background(), trickleTimeout)
		defer cancel()
		if err := h.Trickle(tctx, candidate); err != nil && !errors.Is(err, domain.ErrNoSession) {
			l.Warn().Err(err).Msg("Trickle failed")
		}
	})

	offer, err := media.CreateOffer(ctx)
	if err != nil {
		c.release(ctx)
		return nil, fmt.Errorf("create offer: %w", err)
	}

	reply, err := h.Send(ctx, domain.Message{Body: body, JSEP: offer})
	if err != nil {
		c.release(ctx)
		return nil, err
	}
	if len(reply.JSEP) > 0 {
		c.applyAnswer(reply.JSEP)
	}

	l.Info().Bool("ack", reply.Ack).Msg("Offer sent")
	return c, nil
}

func (c *Call) applyAnswer(jsep json.RawMessage) {
	var kind struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(jsep, &kind); err != nil || kind.Type != "answer" {
		log.Debug().Str("handle_id", c.handle.ID().String()).Str("type", kind.Type).Msg("Ignoring non-answer JSEP")
		return
	}
	c.answerOnce.Do(func() {
		if err := c.media.ApplyRemote(jsep); err != nil {
			log.Error().Err(err).Str("handle_id", c.handle.ID().String()).Msg("Failed to apply answer")
			return
		}
		close(c.answered)
	})
}

func (c *Call) release(ctx context.Context) {
	for _, unsub := range c.unsubs {
		unsub()
	}
	if err := c.handle.Detach(ctx); err != nil && !errors.Is(err, domain.ErrNoSession) {
		log.Warn().Err(err).Str("handle_id", c.handle.ID().String()).Msg("Detach failed")
	}
	if err := c.media.Close(); err != nil {
		log.Warn().Err(err).Msg("Media close failed")
	}
}

// Hangup ends the call: hangup and detach on the gateway, then the local
// peer connection is closed.
func (c *Call) Hangup(ctx context.Context) error {
	err := c.handle.Hangup(ctx)
	if errors.Is(err, domain.ErrNoSession) {
		err = nil
	}
	c.release(ctx)
	return err
}
