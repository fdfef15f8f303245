package types

import (
	"reflect"
	"sync"
)

type (
	// EventName is just a type of string, it's the event name.
	EventName string
	// EventListener receives the arguments emitted for an event.
	EventListener func(...any)
	// EventEmitter is the fixed-topology publish/subscribe manager shared by
	// the engine, calls, and tunnel streams. Unlike a dynamic pub/sub bus,
	// callers using it are expected to only emit/listen on the event names
	// each component documents.
	EventEmitter interface {
		// On registers a listener for an event; returns a disposer that
		// removes just this listener.
		On(EventName, EventListener) (off func())
		// Once registers a listener that fires at most once.
		Once(EventName, EventListener) (off func())
		// Emit synchronously calls each listener registered for evt, in
		// registration order, passing args to each.
		Emit(evt EventName, args ...any)
		// RemoveListener removes a specific listener from evt.
		RemoveListener(evt EventName, listener EventListener) bool
		// RemoveAllListeners removes every listener for evt.
		RemoveAllListeners(evt EventName) bool
		// ListenerCount returns the number of listeners currently
		// registered for evt.
		ListenerCount(evt EventName) int
		// Clear removes every event and every listener.
		Clear()
	}

	eventEntry struct {
		fn  EventListener
		ptr uintptr
	}

	emitter struct {
		listeners Map[EventName, *Slice[*eventEntry]]
	}
)

// NewEventEmitter returns a new, empty EventEmitter.
func NewEventEmitter() EventEmitter {
	return &emitter{}
}

func (e *emitter) On(evt EventName, listener EventListener) func() {
	if listener == nil {
		return func() {}
	}
	entry := &eventEntry{fn: listener, ptr: reflect.ValueOf(listener).Pointer()}
	bucket, _ := e.listeners.LoadOrStore(evt, NewSlice[*eventEntry]())
	bucket.Push(entry)

	return func() {
		bucket.RangeAndSplice(func(candidate *eventEntry, i int) (bool, int, int, []*eventEntry) {
			return candidate == entry, i, 1, nil
		})
	}
}

func (e *emitter) Once(evt EventName, listener EventListener) func() {
	if listener == nil {
		return func() {}
	}

	var off func()
	fired := &sync.Once{}
	wrapped := func(args ...any) {
		fired.Do(func() {
			defer off()
			listener(args...)
		})
	}
	off = e.On(evt, wrapped)
	return off
}

func (e *emitter) Emit(evt EventName, args ...any) {
	bucket, ok := e.listeners.Load(evt)
	if !ok {
		return
	}
	for _, entry := range bucket.All() {
		entry.fn(args...)
	}
}

func (e *emitter) RemoveListener(evt EventName, listener EventListener) bool {
	if listener == nil {
		return false
	}
	bucket, ok := e.listeners.Load(evt)
	if !ok {
		return false
	}
	targetPtr := reflect.ValueOf(listener).Pointer()
	removed, _ := bucket.RangeAndSplice(func(entry *eventEntry, i int) (bool, int, int, []*eventEntry) {
		return entry.ptr == targetPtr, i, 1, nil
	})
	return len(removed) > 0
}

func (e *emitter) RemoveAllListeners(evt EventName) bool {
	_, loaded := e.listeners.LoadAndDelete(evt)
	return loaded
}

func (e *emitter) ListenerCount(evt EventName) int {
	bucket, ok := e.listeners.Load(evt)
	if !ok {
		return 0
	}
	return bucket.Len()
}

func (e *emitter) Clear() {
	e.listeners.Clear()
}
