package connection

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gluk-w/claworc/webssh/internal/credentials"
	"github.com/gluk-w/claworc/webssh/internal/crypto"
	"github.com/gluk-w/claworc/webssh/internal/logging"
	"github.com/gluk-w/claworc/webssh/internal/session"
	"github.com/gluk-w/claworc/webssh/internal/transport"
)

// Events emitted to the server.
const (
	emitAuthenticate   = "authenticate"
	emitTerminal       = "terminal"
	emitData           = "data"
	emitResize         = "resize"
	emitControl        = "control"
	emitAuthentication = "authentication"
)

var (
	// ErrNotPermitted is returned by Reauth and ReplayCredentials when the
	// server has not granted the permission.
	ErrNotPermitted = errors.New("operation not permitted by server")
	// ErrNotConnected is returned by operations that need a live transport.
	ErrNotConnected = errors.New("not connected")
)

// LoginReason says why the login form is shown.
type LoginReason string

const (
	LoginAuthRequired LoginReason = "auth_required"
	LoginReauth       LoginReason = "reauth_required"
	LoginAuthFailed   LoginReason = "auth_failed"
)

// LoginRequest asks the UI to show the login form. Prefill never carries a
// password.
type LoginRequest struct {
	Reason  LoginReason
	Prefill credentials.Credentials
	Message string
	Errors  credentials.ValidationErrors
}

// KeyboardPrompt is one keyboard-interactive question.
type KeyboardPrompt struct {
	Prompt string `json:"prompt"`
	Echo   bool   `json:"echo"`
}

// KeyboardInteractive is a keyboard-interactive challenge the UI must answer
// through Machine.RespondKeyboardInteractive.
type KeyboardInteractive struct {
	Name         string           `json:"name"`
	Instructions string           `json:"instructions"`
	Prompts      []KeyboardPrompt `json:"prompts"`
}

// UI receives the machine's requests for user interaction.
type UI interface {
	OpenLogin(req LoginRequest)
	ShowError(view session.ErrorView)
	FocusTerminal()
	ClearPassword()
	UpdateElement(element, value string)
	RequestKeyboardInteractive(req KeyboardInteractive)
}

// Terminal is the opaque terminal emulator.
type Terminal interface {
	Size() (cols, rows int)
	Write(p []byte) (int, error)
}

// SessionLog receives terminal output while session logging is on.
type SessionLog interface {
	Append(data string)
}

// Config wires a Machine.
type Config struct {
	Dial     transport.Dialer
	State    *session.State
	UI       UI
	Terminal Terminal
	Log      SessionLog

	// Defaults are lower-precedence credential sources, highest first,
	// e.g. URL parameters then the stored profile.
	Defaults []credentials.Source
	// BasicAuth is the stored basic-auth credential, used last. Its
	// presence also turns a server reauth request into a full reconnect.
	BasicAuth *credentials.Source

	Term               string
	AllowedAuthMethods []credentials.AuthMethod
}

// Machine is the connection state machine. It is safe for concurrent use.
type Machine struct {
	cfg   Config
	state *session.State
	now   func() time.Time

	mu          sync.Mutex
	t           transport.Transport
	gen         uint64
	live        bool
	form        *credentials.Source
	lastCreds   credentials.Credentials
	authPending bool
	attempts    int
	attemptID   string
	logging     bool
	hooks       []func(transport.Transport)
	transitions *ring[StateTransition]
	events      *ring[ConnectionEvent]
	effects     []func()
}

// New creates an idle Machine. cfg.State is created when nil.
func New(cfg Config) *Machine {
	if cfg.State == nil {
		cfg.State = session.New()
	}
	if cfg.Term == "" {
		cfg.Term = "xterm-256color"
	}
	if cfg.UI == nil {
		cfg.UI = nopUI{}
	}
	return &Machine{
		cfg:         cfg,
		state:       cfg.State,
		now:         time.Now,
		transitions: newRing[StateTransition](transitionBufferSize),
		events:      newRing[ConnectionEvent](eventBufferSize),
	}
}

// State returns the shared state container.
func (m *Machine) State() *session.State { return m.state }

// Status returns the current connection status.
func (m *Machine) Status() session.Status { return m.state.Status.Get() }

// Transitions returns recent status changes, oldest first.
func (m *Machine) Transitions() []StateTransition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitions.history()
}

// Events returns recent connection events, oldest first.
func (m *Machine) Events() []ConnectionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events.history()
}

// ConnectAttempts returns the number of transports created since the last
// successful transport connect.
func (m *Machine) ConnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Logging reports whether terminal output is copied to the session log.
func (m *Machine) Logging() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logging
}

// SetLogging turns session logging on or off.
func (m *Machine) SetLogging(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logging = on
}

// OnTransport registers hook to run for every new transport, after the
// machine's own listeners are installed and before it connects.
func (m *Machine) OnTransport(hook func(transport.Transport)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Connect opens a new transport unless a connection is already in flight
// or established, in which case it returns false. A non-nil form becomes
// the highest-precedence credential source.
func (m *Machine) Connect(form *credentials.Source) bool {
	m.mu.Lock()
	if m.state.Status.Get().Active() {
		m.mu.Unlock()
		return false
	}
	if form != nil {
		f := *form
		m.form = &f
	}
	m.startLocked("connect")
	m.unlock()
	return true
}

// Reconnect discards the current transport and opens a new one. It is a
// user action and needs no server permission.
func (m *Machine) Reconnect() {
	m.mu.Lock()
	m.startLocked("reconnect")
	m.unlock()
}

// Disconnect closes the transport and returns to idle.
func (m *Machine) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	m.authPending = false
	m.logging = false
	m.recordEventLocked(EventDisconnected, "client disconnect")
	m.state.ResetConnection()
	m.state.LastError.Set(nil)
	m.setStatusLocked(session.StatusIdle, "client disconnect")
	m.unlock()
}

// SubmitForm stores form as the explicit credential source. When the
// transport is live the credentials are sent at once; otherwise a new
// connection is opened and sent on the server's request. Invalid
// credentials are returned as credentials.ValidationErrors and never sent.
func (m *Machine) SubmitForm(form credentials.Source) error {
	m.mu.Lock()
	defer m.unlock()

	m.form = &form
	creds, err := m.resolveLocked()
	if err != nil {
		return err
	}
	if !m.live {
		m.startLocked("form submitted")
		return nil
	}
	if m.state.Status.Get() == session.StatusConnected {
		return nil
	}
	return m.authenticateLocked(creds)
}

// Reauth asks the server to restart authentication.
func (m *Machine) Reauth() error {
	return m.control("reauth", func(p session.Permissions) bool { return p.AllowReauth })
}

// ReplayCredentials asks the server to resend the accepted credentials.
func (m *Machine) ReplayCredentials() error {
	return m.control("replayCredentials", func(p session.Permissions) bool { return p.AllowReplay })
}

func (m *Machine) control(action string, allowed func(session.Permissions) bool) error {
	m.mu.Lock()
	defer m.unlock()

	if !allowed(m.state.Permissions.Get()) {
		m.recordEventLocked(EventControlDenied, action)
		view := session.ErrorView{
			Kind:    KindError.String(),
			Title:   "Not permitted",
			Message: fmt.Sprintf("The server does not allow %s on this connection.", action),
			At:      m.now(),
		}
		m.after(func() { m.cfg.UI.ShowError(view) })
		return ErrNotPermitted
	}
	if !m.live {
		return ErrNotConnected
	}
	if err := m.t.Emit(emitControl, action); err != nil {
		return fmt.Errorf("emit control %s: %w", action, err)
	}
	m.recordEventLocked(EventControlSent, action)
	return nil
}

// SendData forwards terminal input to the server.
func (m *Machine) SendData(data string) error {
	m.mu.Lock()
	defer m.unlock()
	if !m.live {
		return ErrNotConnected
	}
	return m.t.Emit(emitData, data)
}

// Resize reports new terminal dimensions, clamped to the accepted range.
func (m *Machine) Resize(cols, rows int) error {
	m.mu.Lock()
	defer m.unlock()
	if !m.live {
		return ErrNotConnected
	}
	cols, rows = credentials.ClampDimensions(cols, rows)
	return m.t.Emit(emitResize, map[string]int{"cols": cols, "rows": rows})
}

// RespondKeyboardInteractive answers the pending keyboard-interactive
// challenge.
func (m *Machine) RespondKeyboardInteractive(responses []string) error {
	m.mu.Lock()
	defer m.unlock()
	if !m.live {
		return ErrNotConnected
	}
	return m.emitKeyboardInteractiveLocked(responses)
}

func (m *Machine) emitKeyboardInteractiveLocked(responses []string) error {
	if responses == nil {
		responses = []string{}
	}
	payload := map[string]any{"action": "keyboard-interactive", "responses": responses}
	if err := m.t.Emit(emitAuthentication, payload); err != nil {
		return fmt.Errorf("emit keyboard-interactive: %w", err)
	}
	m.recordEventLocked(EventKeyboardInteractive, fmt.Sprintf("%d responses", len(responses)))
	return nil
}

// startLocked replaces the transport with a fresh one and begins
// connecting. Hooks and the dial itself run after the lock is released.
func (m *Machine) startLocked(reason string) {
	m.teardownLocked()
	m.authPending = false
	m.logging = false
	m.state.ResetConnection()
	m.state.LastError.Set(nil)

	t := m.cfg.Dial()
	m.t = t
	m.attempts++
	m.attemptID = uuid.NewString()
	m.installLocked(t, m.gen)
	m.recordEventLocked(EventConnecting, reason)
	m.setStatusLocked(session.StatusConnecting, reason)

	hooks := make([]func(transport.Transport), len(m.hooks))
	copy(hooks, m.hooks)
	m.after(func() {
		for _, h := range hooks {
			h(t)
		}
		t.Connect()
	})
}

// teardownLocked drops the current transport. Listeners are removed before
// disconnecting so the transport's own disconnect event is not observed.
func (m *Machine) teardownLocked() {
	m.gen++
	m.live = false
	if m.t == nil {
		return
	}
	m.t.RemoveAllListeners()
	m.t.Disconnect()
	m.t = nil
}

func (m *Machine) resolveLocked() (credentials.Credentials, error) {
	sources := make([]credentials.Source, 0, len(m.cfg.Defaults)+2)
	if m.form != nil {
		sources = append(sources, *m.form)
	}
	sources = append(sources, m.cfg.Defaults...)
	if m.cfg.BasicAuth != nil {
		sources = append(sources, *m.cfg.BasicAuth)
	}
	c := credentials.Resolve(sources...)
	if c.Term == "" {
		c.Term = m.cfg.Term
	}
	if m.cfg.Terminal != nil {
		c.Cols, c.Rows = credentials.ClampDimensions(m.cfg.Terminal.Size())
	}
	if !c.Resolvable() {
		return c, errUnresolvable
	}
	// Stripped material is never sent, so it is not validated either.
	c = credentials.Sanitize(c, m.cfg.AllowedAuthMethods)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

var errUnresolvable = errors.New("host and username are required")

func (m *Machine) authenticateLocked(creds credentials.Credentials) error {
	if err := m.t.Emit(emitAuthenticate, creds); err != nil {
		return fmt.Errorf("emit authenticate: %w", err)
	}
	m.authPending = false
	m.lastCreds = creds
	m.recordEventLocked(EventAuthSent, authSummary(creds))
	m.setStatusLocked(session.StatusAuthenticating, "credentials sent")
	return nil
}

// authSummary describes an authenticate request for the event log. The
// username is masked and secrets are reduced to the method they enable.
func authSummary(c credentials.Credentials) string {
	method := credentials.AuthKeyboardInteractive
	switch {
	case c.PrivateKey != "":
		method = credentials.AuthPublicKey
	case c.Password != "":
		method = credentials.AuthPassword
	}
	return fmt.Sprintf("%s@%s:%d (%s)", crypto.Mask(c.Username), c.Host, c.Port, method)
}

// prefillLocked returns what the login form should show: the best known
// values without any password.
func (m *Machine) prefillLocked() credentials.Credentials {
	c, _ := m.resolveLocked()
	if c.Host == "" {
		c.Host = m.lastCreds.Host
	}
	if c.Username == "" {
		c.Username = m.lastCreds.Username
	}
	c.Password = ""
	c.Passphrase = ""
	return c
}

func (m *Machine) setStatusLocked(to session.Status, reason string) {
	from := m.state.Status.Get()
	if from == to {
		return
	}
	m.transitions.record(StateTransition{From: from, To: to, Timestamp: m.now(), Reason: reason})
	m.state.Status.Set(to)
	log.Printf("[connection] %s -> %s (%s)", from, to, reason)
}

func (m *Machine) recordEventLocked(typ EventType, details string) {
	m.events.record(ConnectionEvent{Type: typ, Timestamp: m.now(), AttemptID: m.attemptID, Details: details})
	logging.Debugf("[connection] event %s: %s", typ, details)
}

// after queues fn to run once the lock is released.
func (m *Machine) after(fn func()) {
	m.effects = append(m.effects, fn)
}

// unlock releases the lock and runs queued effects in order.
func (m *Machine) unlock() {
	fx := m.effects
	m.effects = nil
	m.mu.Unlock()
	for _, fn := range fx {
		fn()
	}
}

type nopUI struct{}

func (nopUI) OpenLogin(LoginRequest)                         {}
func (nopUI) ShowError(session.ErrorView)                    {}
func (nopUI) FocusTerminal()                                 {}
func (nopUI) ClearPassword()                                 {}
func (nopUI) UpdateElement(string, string)                   {}
func (nopUI) RequestKeyboardInteractive(KeyboardInteractive) {}
