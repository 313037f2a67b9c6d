package janus

import (
	"github.com/Wyydra/yajanus/internal/core/domain"
	"github.com/Wyydra/yajanus/internal/core/port"
	"github.com/Wyydra/yajanus/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Dispatcher routes decoded frames: replies to their pending transaction,
// everything else to the sink as named events keyed by sender handle.
type Dispatcher struct {
	mode    domain.TransportMode
	txns    *Registry
	handles port.HandleRepository
	sink    port.EventSink
}

func NewDispatcher(mode domain.TransportMode, txns *Registry, handles port.HandleRepository, sink port.EventSink) *Dispatcher {
	return &Dispatcher{
		mode:    mode,
		txns:    txns,
		handles: handles,
		sink:    sink,
	}
}

func (d *Dispatcher) Dispatch(f *Frame) {
	switch f.Janus {
	case FrameAck, FrameSuccess:
		if !d.txns.Resolve(f.Transaction, f) && f.Janus == FrameSuccess {
			log.Debug().Str("transaction", f.Transaction).Str("mode", d.mode.String()).Msg("Success for unknown transaction")
		}

	case FrameError:
		d.txns.Resolve(f.Transaction, f)
		reason := "unknown error"
		if f.Error != nil {
			reason = f.Error.Reason
		}
		d.emit(domain.Event{
			Kind:   domain.EventError,
			Handle: domain.HandleID(f.Sender),
			Reason: reason,
			Err:    gatewayError(f),
			Raw:    f.Raw,
		})

	case FrameEvent:
		ev := domain.Event{
			Kind:   domain.EventPlugin,
			Handle: domain.HandleID(f.Sender),
			JSEP:   f.JSEP,
			Raw:    f.Raw,
		}
		if f.PluginData != nil {
			ev.Plugin = f.PluginData.Plugin
			ev.Data = f.PluginData.Data
		}
		if ev.Plugin == "" {
			ev.Plugin = d.pluginOf(ev.Handle)
		}
		// A gateway may answer a message with the event itself instead of an
		// ack; the caller and the listeners both see it.
		d.txns.Resolve(f.Transaction, f)
		d.emit(ev)

	case FrameWebRTCUp:
		d.emitHandle(domain.EventWebRTCUp, f)
	case FrameMedia:
		d.emitHandle(domain.EventMedia, f)
	case FrameSlowLink:
		d.emitHandle(domain.EventSlowLink, f)
	case FrameHangup:
		d.emitHandle(domain.EventHangup, f)

	case FrameTrickle:
		ev := d.handleEvent(domain.EventTrickle, f)
		ev.Data = f.Candidate
		d.emit(ev)

	case FrameDetached:
		ev := d.handleEvent(domain.EventDetached, f)
		d.handles.Delete(ev.Handle)
		d.emit(ev)

	case FrameTimeout:
		d.emit(domain.Event{
			Kind:   domain.EventDisconnected,
			Reason: "session timeout",
			Err:    domain.ErrNoSession,
			Raw:    f.Raw,
		})

	case FrameKeepalive:
		// idle long-poll

	default:
		log.Debug().Str("janus", f.Janus).Str("mode", d.mode.String()).Msg("Ignoring unknown frame")
	}
}

func (d *Dispatcher) handleEvent(kind domain.EventKind, f *Frame) domain.Event {
	h := domain.HandleID(f.Sender)
	return domain.Event{
		Kind:   kind,
		Handle: h,
		Plugin: d.pluginOf(h),
		Reason: f.Reason,
		Data:   f.Raw,
		Raw:    f.Raw,
	}
}

func (d *Dispatcher) emitHandle(kind domain.EventKind, f *Frame) {
	d.emit(d.handleEvent(kind, f))
}

func (d *Dispatcher) pluginOf(id domain.HandleID) string {
	if id == "" {
		return ""
	}
	if h, ok := d.handles.Get(id); ok {
		return h.Plugin
	}
	return ""
}

// Emit sends a locally produced event through the same path as gateway ones.
func (d *Dispatcher) Emit(ev domain.Event) {
	d.emit(ev)
}

func (d *Dispatcher) emit(ev domain.Event) {
	metrics.RecordEvent(d.mode.String(), string(ev.Kind))
	if d.sink == nil {
		return
	}
	d.sink.Emit(ev)
}

func gatewayError(f *Frame) error {
	if f.Error == nil {
		return &domain.GatewayError{Reason: "unknown error"}
	}
	return &domain.GatewayError{Code: f.Error.Code, Reason: f.Error.Reason}
}
