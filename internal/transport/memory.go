package transport

import (
	"encoding/json"
	"sync"
)

// Memory is an in-process Transport. Deliver plays the server side; every
// Emit is recorded for inspection.
type Memory struct {
	mu          sync.Mutex
	handlers    listeners
	emitted     []Message
	connected   bool
	connects    int
	disconnects int
	emitErr     error
}

// NewMemory returns a disconnected in-memory transport.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) On(event string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers.add(event, h)
}

func (m *Memory) RemoveAllListeners() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers.clear()
}

func (m *Memory) Emit(event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emitErr != nil {
		return m.emitErr
	}
	m.emitted = append(m.emitted, Message{Event: event, Data: b})
	return nil
}

// Connect only counts the call; use Deliver(EventConnect, nil) to complete it.
func (m *Memory) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
}

// Disconnect reports EventDisconnect with ReasonClientDisconnect when the
// transport was connected, like Client does.
func (m *Memory) Disconnect() {
	m.mu.Lock()
	m.disconnects++
	wasConnected := m.connected
	m.connected = false
	var hs []Handler
	if wasConnected {
		hs = m.handlers.snapshot(EventDisconnect)
	}
	m.mu.Unlock()

	data := mustJSON(ReasonClientDisconnect)
	for _, h := range hs {
		h(data)
	}
}

// Deliver invokes the handlers for event with payload marshalled as JSON.
// A nil payload delivers no argument.
func (m *Memory) Deliver(event string, payload any) {
	var data json.RawMessage
	if payload != nil {
		data = mustJSON(payload)
	}
	m.mu.Lock()
	if event == EventConnect {
		m.connected = true
	}
	hs := m.handlers.snapshot(event)
	m.mu.Unlock()

	for _, h := range hs {
		h(data)
	}
}

// SetEmitError makes subsequent Emit calls fail with err.
func (m *Memory) SetEmitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitErr = err
}

// Emitted returns every emitted message in order.
func (m *Memory) Emitted() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.emitted))
	copy(out, m.emitted)
	return out
}

// EmittedNamed returns emitted messages for one event.
func (m *Memory) EmittedNamed(event string) []Message {
	var out []Message
	for _, msg := range m.Emitted() {
		if msg.Event == event {
			out = append(out, msg)
		}
	}
	return out
}

// ClearEmitted forgets recorded messages.
func (m *Memory) ClearEmitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitted = nil
}

// HasListeners reports whether any handler is registered for event.
func (m *Memory) HasListeners(event string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers.byEvent[event]) > 0
}

func (m *Memory) ConnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

func (m *Memory) DisconnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

func (m *Memory) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}
