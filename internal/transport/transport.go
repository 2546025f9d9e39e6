// Package transport defines the duplex event channel between the client
// and the SSH proxy, with a Socket.IO implementation over WebSocket and an
// in-memory implementation for tests.
package transport

import (
	"encoding/json"
	"errors"
)

// Events emitted locally by every Transport implementation.
const (
	EventConnect      = "connect"
	EventConnectError = "connect_error"
	EventDisconnect   = "disconnect"
)

// Disconnect reasons reported with EventDisconnect.
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonClientDisconnect = "io client disconnect"
	ReasonPingTimeout      = "ping timeout"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
)

// ErrNotConnected is returned by Emit before the transport has connected.
var ErrNotConnected = errors.New("transport not connected")

// Handler receives the first argument of an event as raw JSON. Events with
// no argument deliver a nil slice.
type Handler func(data json.RawMessage)

// Transport is an event-emitting duplex channel. Handlers for one transport
// are invoked serially in arrival order. Emit never blocks on a reply.
type Transport interface {
	// On registers h for event. Multiple handlers run in registration order.
	On(event string, h Handler)
	// Emit sends event with payload marshalled as JSON.
	Emit(event string, payload any) error
	// Connect starts connecting in the background. The outcome arrives as
	// EventConnect or EventConnectError.
	Connect()
	// Disconnect closes the channel.
	Disconnect()
	// RemoveAllListeners drops every registered handler.
	RemoveAllListeners()
}

// Dialer creates a fresh, unconnected Transport.
type Dialer func() Transport

// Message is one event with its JSON payload.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is the payload of EventConnectError.
type ErrorPayload struct {
	Message string `json:"message"`
}

// listeners is the handler registry shared by implementations.
type listeners struct {
	byEvent map[string][]Handler
}

func (l *listeners) add(event string, h Handler) {
	if l.byEvent == nil {
		l.byEvent = make(map[string][]Handler)
	}
	l.byEvent[event] = append(l.byEvent[event], h)
}

// snapshot returns a copy of the handlers for event, safe to call after the
// registry lock is released.
func (l *listeners) snapshot(event string) []Handler {
	hs := l.byEvent[event]
	if len(hs) == 0 {
		return nil
	}
	out := make([]Handler, len(hs))
	copy(out, hs)
	return out
}

func (l *listeners) clear() {
	l.byEvent = nil
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
