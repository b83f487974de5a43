// Package events carries domain events over the broker.
//
// An event is identified by its Kind: the channel it belongs to and its type
// name. The routing key of every message is "<channel>.<typeName>" and the
// body is a JSON envelope {"typeName": ..., "payload": ...}. The Dispatcher
// publishes events; the Listener runs handlers for the kinds they registered.
//
// OTel trace context travels in message headers: Dispatch injects it and the
// Listener restores it before calling a handler.
package events

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidEvent is returned for events whose kind lacks a channel or type name.
	ErrInvalidEvent = errors.New("events: invalid event")
	// ErrMalformedMessage is returned when a body cannot be decoded into an event.
	ErrMalformedMessage = errors.New("events: malformed message")
	// ErrDuplicateHandler is returned when a handler is registered twice for one kind.
	ErrDuplicateHandler = errors.New("events: handler already registered")
	// ErrUnknownKind is returned when decoding a kind that was never registered.
	ErrUnknownKind = errors.New("events: unknown event kind")
)

// Kind identifies an event type on the wire.
type Kind struct {
	Channel  string
	TypeName string
}

// RoutingKey returns "<channel>.<typeName>".
func (k Kind) RoutingKey() string {
	return k.Channel + "." + k.TypeName
}

func (k Kind) Valid() bool {
	return k.Channel != "" && k.TypeName != ""
}

func (k Kind) String() string { return k.RoutingKey() }

// Event is anything that can be dispatched. The value itself is the payload
// and is serialized with encoding/json.
type Event interface {
	Kind() Kind
}

// Correlated is implemented by events that belong to a request/response
// conversation.
type Correlated interface {
	CorrelationID() string
}

// Registry maps kinds to constructors for their payload types. It is built at
// startup and shared by reference.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]func() Event
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]func() Event)}
}

// Register adds the payload constructor for kind. factory must return a
// pointer so the decoder can fill it.
func (r *Registry) Register(kind Kind, factory func() Event) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidEvent, kind.RoutingKey())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[kind]; ok {
		return fmt.Errorf("events: kind %s already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

func (r *Registry) lookup(kind Kind) (func() Event, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[kind]
	return f, ok
}

// Recorder collects events raised by an aggregate until they are pulled by a
// unit of work. Embed it in aggregate structs.
type Recorder struct {
	pending []Event
}

// Record appends e to the pending list.
func (r *Recorder) Record(e Event) {
	r.pending = append(r.pending, e)
}

// PullEvents returns the pending events in order and clears the list.
func (r *Recorder) PullEvents() []Event {
	out := r.pending
	r.pending = nil
	return out
}
