package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gluk-w/claworc/webssh/internal/logging"
	"github.com/gluk-w/claworc/webssh/internal/logutil"
	"github.com/gluk-w/claworc/webssh/internal/store"
	"github.com/gluk-w/claworc/webssh/internal/transport"
)

const (
	// EventPrompt carries a Payload from the server.
	EventPrompt = "prompt"
	// EventResponse carries a Response to the server.
	EventResponse = "prompt-response"

	maxQueue  = 3
	maxToasts = 5

	// ForceCloseDelay is how long a modal must be active before it can be
	// force-closed.
	ForceCloseDelay = 5 * time.Second
)

var (
	// ErrUnknownPrompt is returned when a response names no active prompt.
	ErrUnknownPrompt = errors.New("no such active prompt")
	// ErrForceCloseNotReady is returned by ForceClose before ForceCloseDelay.
	ErrForceCloseNotReady = errors.New("force close not yet available")
	// ErrNotDelivered wraps a transport failure while sending a response.
	// The prompt stays active.
	ErrNotDelivered = errors.New("prompt response not delivered")
)

// Timer is the subset of *time.Timer the engine uses.
type Timer interface {
	Stop() bool
}

// Clock provides time and deferred execution.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Stats counts admission outcomes since the last Reset.
type Stats struct {
	Admitted       int `json:"admitted"`
	RateLimited    int `json:"rateLimited"`
	CircuitDropped int `json:"circuitDropped"`
	Invalid        int `json:"invalid"`
	QueueDropped   int `json:"queueDropped"`
	ToastsEvicted  int `json:"toastsEvicted"`
}

// Snapshot is the read-only projection of the engine's state. Payload
// strings are raw; render them through View, RenderHTML or ConsoleText.
type Snapshot struct {
	Active              *Payload  `json:"active"`
	ActiveSince         time.Time `json:"activeSince,omitempty"`
	ForceCloseAvailable bool      `json:"forceCloseAvailable"`
	Queue               []Payload `json:"queue"`
	Toasts              []Payload `json:"toasts"`
	CircuitTripped      bool      `json:"circuitTripped"`
	Stats               Stats     `json:"stats"`
}

type entry struct {
	p     Payload
	since time.Time
	timer Timer
}

func (e *entry) stop() {
	if e != nil && e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Engine owns the prompt queue, toasts and rate window.
type Engine struct {
	clock Clock
	view  *store.Value[Snapshot]

	mu           sync.Mutex
	t            transport.Transport
	gen          uint64
	window       window
	disconnected bool
	active       *entry
	queue        []*entry
	toasts       []*entry
	stats        Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// NewEngine returns an empty, detached engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{clock: realClock{}}
	for _, o := range opts {
		o(e)
	}
	e.view = store.NewValue("prompts", Snapshot{Queue: []Payload{}, Toasts: []Payload{}})
	return e
}

// Attach resets the engine and starts consuming prompts from t. It is meant
// to run for every new transport.
func (e *Engine) Attach(t transport.Transport) {
	e.mu.Lock()
	e.resetLocked()
	e.t = t
	gen := e.gen
	e.publishLocked()
	e.mu.Unlock()

	t.On(EventPrompt, func(data json.RawMessage) {
		if err := e.handle(gen, data); err != nil {
			logging.Debugf("[prompt] %v", err)
		}
	})
}

// Reset drops every prompt and toast, stops timers and clears the breaker.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
	e.publishLocked()
}

func (e *Engine) resetLocked() {
	e.gen++
	e.active.stop()
	for _, q := range e.queue {
		q.stop()
	}
	for _, ts := range e.toasts {
		ts.stop()
	}
	e.active = nil
	e.queue = nil
	e.toasts = nil
	e.window.reset()
	e.disconnected = false
	e.stats = Stats{}
}

// Handle admits one prompt payload received on the attached transport.
func (e *Engine) Handle(data json.RawMessage) error {
	e.mu.Lock()
	gen := e.gen
	e.mu.Unlock()
	return e.handle(gen, data)
}

func (e *Engine) handle(gen uint64, data json.RawMessage) error {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return &RejectError{Reason: RejectDetached}
	}

	trippedNow, reason := e.window.admit(e.clock.Now())
	var disconnect transport.Transport
	if trippedNow && !e.disconnected && e.t != nil {
		e.disconnected = true
		disconnect = e.t
	}
	if reason != "" {
		if reason == RejectCircuitOpen {
			e.stats.CircuitDropped++
		} else {
			e.stats.RateLimited++
		}
		if trippedNow {
			log.Printf("[prompt] circuit breaker tripped: %d prompts within %s, disconnecting", circuitThreshold, rateWindow)
		}
		e.publishLocked()
		e.mu.Unlock()
		if disconnect != nil {
			disconnect.Disconnect()
		}
		return &RejectError{Reason: reason}
	}

	p, err := decodePayload(data)
	if err != nil {
		e.stats.Invalid++
		e.publishLocked()
		e.mu.Unlock()
		return &RejectError{ID: logutil.SanitizeForLog(p.ID), Reason: RejectInvalid, Detail: err.Error()}
	}
	if e.knownLocked(p.ID) {
		e.stats.Invalid++
		e.publishLocked()
		e.mu.Unlock()
		return &RejectError{ID: p.ID, Reason: RejectDuplicate}
	}

	defer e.mu.Unlock()
	if p.Type == TypeToast {
		e.addToastLocked(p)
		e.stats.Admitted++
		e.publishLocked()
		return nil
	}
	if e.active == nil {
		e.activateLocked(&entry{p: p})
		e.stats.Admitted++
		e.publishLocked()
		return nil
	}
	if len(e.queue) >= maxQueue {
		e.stats.QueueDropped++
		e.publishLocked()
		return &RejectError{ID: p.ID, Reason: RejectQueueFull}
	}
	e.queue = append(e.queue, &entry{p: p})
	e.stats.Admitted++
	e.publishLocked()
	return nil
}

func (e *Engine) knownLocked(id string) bool {
	if e.active != nil && e.active.p.ID == id {
		return true
	}
	for _, q := range e.queue {
		if q.p.ID == id {
			return true
		}
	}
	for _, ts := range e.toasts {
		if ts.p.ID == id {
			return true
		}
	}
	return false
}

func (e *Engine) addToastLocked(p Payload) {
	if len(e.toasts) >= maxToasts {
		e.toasts[0].stop()
		e.toasts = e.toasts[1:]
		e.stats.ToastsEvicted++
	}
	en := &entry{p: p, since: e.clock.Now()}
	if p.Timeout > 0 {
		gen, id := e.gen, p.ID
		en.timer = e.clock.AfterFunc(time.Duration(p.Timeout)*time.Millisecond, func() {
			e.expireToast(gen, id)
		})
	}
	e.toasts = append(e.toasts, en)
}

func (e *Engine) expireToast(gen uint64, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return
	}
	if e.removeToastLocked(id) {
		e.publishLocked()
	}
}

// DismissToast removes a toast before its timeout, e.g. on swipe.
func (e *Engine) DismissToast(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.removeToastLocked(id) {
		return ErrUnknownPrompt
	}
	e.publishLocked()
	return nil
}

func (e *Engine) removeToastLocked(id string) bool {
	for i, ts := range e.toasts {
		if ts.p.ID == id {
			ts.stop()
			e.toasts = append(e.toasts[:i], e.toasts[i+1:]...)
			return true
		}
	}
	return false
}

// activateLocked makes en the active modal and schedules the refresh that
// exposes ForceClose.
func (e *Engine) activateLocked(en *entry) {
	en.since = e.clock.Now()
	gen := e.gen
	en.timer = e.clock.AfterFunc(ForceCloseDelay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if gen == e.gen && e.active == en {
			e.publishLocked()
		}
	})
	e.active = en
}

// promoteLocked resolves the active prompt and activates the next queued.
func (e *Engine) promoteLocked() {
	e.active.stop()
	e.active = nil
	if len(e.queue) > 0 {
		next := e.queue[0]
		e.queue = e.queue[1:]
		e.activateLocked(next)
	}
}

// Respond answers the active prompt and promotes the next one. Nothing
// changes when the response cannot be sent.
func (e *Engine) Respond(id, action string, inputs map[string]string) error {
	e.mu.Lock()
	if e.active == nil || e.active.p.ID != id {
		e.mu.Unlock()
		return ErrUnknownPrompt
	}
	if !e.active.p.allows(action) {
		e.mu.Unlock()
		return fmt.Errorf("action %q not offered by prompt %q", logutil.SanitizeForLog(action), id)
	}
	in, err := e.active.p.checkInputs(inputs)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	resp := Response{ID: id, Action: action, Inputs: in}
	defer e.mu.Unlock()
	if err := send(e.t, resp); err != nil {
		return err
	}
	e.promoteLocked()
	e.publishLocked()
	return nil
}

// DismissAll sends a dismissed response for the active prompt and every
// queued prompt, in that order, and clears all toasts. The responses are
// returned in the order sent.
func (e *Engine) DismissAll() []Response {
	e.mu.Lock()
	var out []Response
	if e.active != nil {
		out = append(out, Response{ID: e.active.p.ID, Action: ActionDismissed})
		e.active.stop()
		e.active = nil
	}
	for _, q := range e.queue {
		out = append(out, Response{ID: q.p.ID, Action: ActionDismissed})
	}
	e.queue = nil
	for _, ts := range e.toasts {
		ts.stop()
	}
	e.toasts = nil
	t := e.t
	e.publishLocked()
	e.mu.Unlock()

	for _, r := range out {
		if err := send(t, r); err != nil {
			log.Printf("[prompt] dismiss %s: %v", r.ID, err)
		}
	}
	return out
}

// ForceClose dismisses the active modal once it has been active for
// ForceCloseDelay.
func (e *Engine) ForceClose() (Response, error) {
	e.mu.Lock()
	if e.active == nil {
		e.mu.Unlock()
		return Response{}, ErrUnknownPrompt
	}
	if e.clock.Now().Sub(e.active.since) < ForceCloseDelay {
		e.mu.Unlock()
		return Response{}, ErrForceCloseNotReady
	}
	resp := Response{ID: e.active.p.ID, Action: ActionDismissed}
	defer e.mu.Unlock()
	if err := send(e.t, resp); err != nil {
		return Response{}, err
	}
	e.promoteLocked()
	e.publishLocked()
	return resp, nil
}

func send(t transport.Transport, r Response) error {
	if t == nil {
		return nil
	}
	if err := t.Emit(EventResponse, r); err != nil {
		return fmt.Errorf("%w: %w", ErrNotDelivered, err)
	}
	return nil
}

// Snapshot returns the current projection.
func (e *Engine) Snapshot() Snapshot {
	return e.view.Get()
}

// Subscribe calls fn with every new snapshot. fn runs with the engine locked
// and must not call back into the engine.
func (e *Engine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return e.view.Subscribe(func(_, s Snapshot) { fn(s) })
}

// Blocked reports whether a modal prompt currently claims input.
func (e *Engine) Blocked() bool {
	return e.view.Get().Active != nil
}

func (e *Engine) publishLocked() {
	now := e.clock.Now()
	s := Snapshot{
		Queue:          make([]Payload, 0, len(e.queue)),
		Toasts:         make([]Payload, 0, len(e.toasts)),
		CircuitTripped: e.window.tripped,
		Stats:          e.stats,
	}
	if e.active != nil {
		p := e.active.p
		s.Active = &p
		s.ActiveSince = e.active.since
		s.ForceCloseAvailable = now.Sub(e.active.since) >= ForceCloseDelay
	}
	for _, q := range e.queue {
		s.Queue = append(s.Queue, q.p)
	}
	for _, ts := range e.toasts {
		s.Toasts = append(s.Toasts, ts.p)
	}
	e.view.Set(s)
}
