package service

import (
	"context"
	"encoding/json"

	"github.com/Wyydra/yajanus/internal/core/domain"
	"github.com/Wyydra/yajanus/internal/core/port"
)

// PluginHandle is a caller's view of one attached plugin. It stops working
// as soon as the session it was attached in is gone.
type PluginHandle struct {
	manager *ConnectionManager
	owner   *attempt
	session domain.Session
	handle  domain.Handle
}

func (h *PluginHandle) ID() domain.HandleID {
	return h.handle.ID
}

func (h *PluginHandle) Plugin() string {
	return h.handle.Plugin
}

func (h *PluginHandle) SessionID() domain.SessionID {
	return h.session.ID
}

func (h *PluginHandle) transport() (port.Transport, error) {
	att, s, err := h.manager.active()
	if err != nil {
		return nil, err
	}
	if att != h.owner || s.ID != h.session.ID {
		return nil, domain.ErrNoSession
	}
	return att.transport, nil
}

// Send delivers a plugin message. JSEP is forwarded as is.
func (h *PluginHandle) Send(ctx context.Context, msg domain.Message) (domain.Reply, error) {
	tr, err := h.transport()
	if err != nil {
		return domain.Reply{}, err
	}
	return tr.Send(ctx, h.handle.ID, msg)
}

func (h *PluginHandle) Trickle(ctx context.Context, candidate json.RawMessage) error {
	tr, err := h.transport()
	if err != nil {
		return err
	}
	return tr.Trickle(ctx, h.handle.ID, candidate)
}

func (h *PluginHandle) Hangup(ctx context.Context) error {
	tr, err := h.transport()
	if err != nil {
		return err
	}
	return tr.Hangup(ctx, h.handle.ID)
}

func (h *PluginHandle) Detach(ctx context.Context) error {
	tr, err := h.transport()
	if err != nil {
		return err
	}
	return tr.Detach(ctx, h.handle.ID)
}

// On subscribes to events of one kind sent by this handle.
func (h *PluginHandle) On(kind domain.EventKind, fn Listener) func() {
	id := h.handle.ID
	return h.manager.On(kind, func(ev domain.Event) {
		if ev.Handle == id {
			fn(ev)
		}
	})
}
