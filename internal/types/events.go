package types

import (
	"reflect"
	"sync"
)

type (
	// EventName identifies an event on an EventEmitter.
	EventName string
	// EventListener receives the arguments passed to Emit.
	EventListener func(...any)

	// EventEmitter is the observer-registration surface used by the
	// connection (open/close), the reconnect supervisor
	// (close/reconnect/reconnect_attempt/reconnect_error/
	// reconnect_failed), and the client, which re-emits the
	// supervisor's reconnect events.
	EventEmitter interface {
		On(EventName, EventListener) error
		Once(EventName, EventListener) error
		Emit(EventName, ...any)
		RemoveListener(EventName, EventListener) bool
		RemoveAllListeners(EventName) bool
		ListenerCount(EventName) int
		Clear()
	}

	listenerEntry struct {
		fn  EventListener
		ptr uintptr
	}

	emitter struct {
		listeners Map[EventName, *Slice[*listenerEntry]]
	}
)

// NewEventEmitter returns a new, empty EventEmitter.
func NewEventEmitter() EventEmitter {
	return &emitter{}
}

func (e *emitter) On(evt EventName, fn EventListener) error {
	if fn == nil {
		return nil
	}
	entry := &listenerEntry{fn: fn, ptr: reflect.ValueOf(fn).Pointer()}
	bucket, _ := e.listeners.LoadOrStore(evt, NewSlice[*listenerEntry]())
	bucket.Push(entry)
	return nil
}

func (e *emitter) Once(evt EventName, fn EventListener) error {
	if fn == nil {
		return nil
	}
	var once sync.Once
	var wrapped EventListener
	wrapped = func(args ...any) {
		once.Do(func() {
			defer e.RemoveListener(evt, wrapped)
			fn(args...)
		})
	}
	entry := &listenerEntry{fn: wrapped, ptr: reflect.ValueOf(fn).Pointer()}
	bucket, _ := e.listeners.LoadOrStore(evt, NewSlice[*listenerEntry]())
	bucket.Push(entry)
	return nil
}

func (e *emitter) Emit(evt EventName, data ...any) {
	bucket, ok := e.listeners.Load(evt)
	if !ok {
		return
	}
	for _, entry := range bucket.All() {
		entry.fn(data...)
	}
}

func (e *emitter) RemoveListener(evt EventName, fn EventListener) bool {
	bucket, ok := e.listeners.Load(evt)
	if !ok {
		return false
	}
	target := reflect.ValueOf(fn).Pointer()
	removed := false
	bucket.Remove(func(entry *listenerEntry) bool {
		if entry.ptr == target {
			removed = true
			return true
		}
		return false
	})
	return removed
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
