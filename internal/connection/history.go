package connection

import (
	"time"

	"github.com/gluk-w/claworc/webssh/internal/session"
)

const (
	// transitionBufferSize is the number of status transitions kept for debugging.
	transitionBufferSize = 50
	// eventBufferSize is the number of connection events kept for debugging.
	eventBufferSize = 100
)

// StateTransition records a single status change.
type StateTransition struct {
	From      session.Status `json:"from"`
	To        session.Status `json:"to"`
	Timestamp time.Time      `json:"timestamp"`
	Reason    string         `json:"reason"`
}

// EventType identifies a connection lifecycle event.
type EventType string

const (
	EventConnecting          EventType = "connecting"
	EventConnected           EventType = "connected"
	EventConnectError        EventType = "connect_error"
	EventDisconnected        EventType = "disconnected"
	EventAuthRequested       EventType = "auth_requested"
	EventAuthSent            EventType = "auth_sent"
	EventAuthRequired        EventType = "auth_required"
	EventAuthSucceeded       EventType = "auth_succeeded"
	EventAuthFailed          EventType = "auth_failed"
	EventReauthRequested     EventType = "reauth_requested"
	EventPermissions         EventType = "permissions"
	EventSSHError            EventType = "ssh_error"
	EventSSHErrorSuppressed  EventType = "ssh_error_suppressed"
	EventError               EventType = "error"
	EventControlSent         EventType = "control_sent"
	EventControlDenied       EventType = "control_denied"
	EventUIUpdateRejected    EventType = "ui_update_rejected"
	EventKeyboardInteractive EventType = "keyboard_interactive"
)

// ConnectionEvent is one entry of the event log. Details never hold secrets.
type ConnectionEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	AttemptID string    `json:"attemptId,omitempty"`
	Details   string    `json:"details"`
}

// ring is a fixed-size ring buffer returning entries oldest first.
type ring[T any] struct {
	entries []T
	head    int // next write position
	count   int // entries written, capped at len(entries)
}

func newRing[T any](size int) *ring[T] {
	return &ring[T]{entries: make([]T, size)}
}

func (r *ring[T]) record(v T) {
	r.entries[r.head] = v
	r.head = (r.head + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

func (r *ring[T]) history() []T {
	if r.count == 0 {
		return nil
	}
	out := make([]T, r.count)
	if r.count < len(r.entries) {
		copy(out, r.entries[:r.count])
	} else {
		// full: head is the oldest entry
		n := copy(out, r.entries[r.head:])
		copy(out[n:], r.entries[:r.head])
	}
	return out
}
