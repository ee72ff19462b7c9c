package engine

import (
	"reflect"
	"slices"
	"sync"
)

// EventKind identifies an engine-level event
type EventKind string

const (
	EventHandlerAdded     EventKind = "handler_added"
	EventHandlerRemoved   EventKind = "handler_removed"
	EventSessionCreated   EventKind = "session_created"
	EventSessionDestroyed EventKind = "session_destroyed"
)

// Event is delivered to engine event listeners
type Event struct {
	Kind EventKind
	// Name is the handler registration name or the session id
	Name string
	// Alias is set for handler events
	Alias string
}

// EventListener observes handler and session events of a running engine.
// Listeners must be comparable (typically pointers) so they can be removed.
type EventListener interface {
	EngineEvent(e Event)
}

type dispatcher struct {
	mu        sync.RWMutex
	listeners []EventListener
}

// add registers l and reports whether it is usable. Nil and
// non-comparable listeners are refused.
func (d *dispatcher) add(l EventListener) bool {
	if l == nil || !reflect.ValueOf(l).Comparable() {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !slices.Contains(d.listeners, l) {
		d.listeners = append(d.listeners, l)
	}
	return true
}

func (d *dispatcher) remove(l EventListener) {
	if l == nil || !reflect.ValueOf(l).Comparable() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = slices.DeleteFunc(d.listeners, func(x EventListener) bool { return x == l })
}

// fire calls listeners outside the lock so they may add or remove listeners
func (d *dispatcher) fire(e Event) {
	d.mu.RLock()
	listeners := slices.Clone(d.listeners)
	d.mu.RUnlock()

	for _, l := range listeners {
		l.EngineEvent(e)
	}
}
