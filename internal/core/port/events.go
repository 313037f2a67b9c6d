package port

import "github.com/Wyydra/yajanus/internal/core/domain"

type EventSink interface {
	Emit(ev domain.Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ev domain.Event)

func (f EventSinkFunc) Emit(ev domain.Event) {
	f(ev)
}
