package connection

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/gluk-w/claworc/webssh/internal/credentials"
	"github.com/gluk-w/claworc/webssh/internal/logging"
	"github.com/gluk-w/claworc/webssh/internal/logutil"
	"github.com/gluk-w/claworc/webssh/internal/session"
	"github.com/gluk-w/claworc/webssh/internal/transport"
)

// authPayload is the server's "authentication" event.
type authPayload struct {
	Action       string           `json:"action"`
	Success      bool             `json:"success"`
	Message      string           `json:"message"`
	Cols         int              `json:"cols"`
	Rows         int              `json:"rows"`
	Name         string           `json:"name"`
	Instructions string           `json:"instructions"`
	Prompts      []KeyboardPrompt `json:"prompts"`
}

// uiUpdate is the server's "updateUI" event.
type uiUpdate struct {
	Element string `json:"element"`
	Value   string `json:"value"`
}

// uiElements maps server-updatable elements to their value validators.
var uiElements = map[string]func(string) error{
	"header":           credentials.ValidateBannerText,
	"headerBackground": credentials.ValidateColor,
	"footer":           credentials.ValidateBannerText,
	"status":           credentials.ValidateBannerText,
	"statusBackground": credentials.ValidateColor,
}

var passwordPrompt = regexp.MustCompile(`(?i)pass(word|phrase)?`)

// installLocked registers the machine's handlers on t. Each handler drops
// events once gen is superseded.
func (m *Machine) installLocked(t transport.Transport, gen uint64) {
	on := func(event string, fn func(data json.RawMessage)) {
		t.On(event, func(data json.RawMessage) {
			m.mu.Lock()
			defer m.unlock()
			if gen != m.gen {
				return
			}
			fn(data)
		})
	}

	on(transport.EventConnect, func(json.RawMessage) { m.onConnectLocked() })
	on(transport.EventConnectError, func(data json.RawMessage) {
		m.live = false
		m.routeLocked(Classify("connect_error", data))
	})
	on(transport.EventDisconnect, m.onDisconnectLocked)
	on("data", m.onDataLocked)
	on("authentication", m.onAuthenticationLocked)
	on("permissions", m.onPermissionsLocked)
	on("ssherror", func(data json.RawMessage) { m.routeLocked(Classify("ssherror", data)) })
	on("error", func(data json.RawMessage) { m.routeLocked(Classify("error", data)) })
	on("updateUI", m.onUpdateUILocked)
}

func (m *Machine) onConnectLocked() {
	m.live = true
	m.attempts = 0
	m.recordEventLocked(EventConnected, "transport connected")
	if m.state.Authenticated.Get() {
		m.setStatusLocked(session.StatusConnected, "transport connected")
	} else {
		m.setStatusLocked(session.StatusAuthenticating, "transport connected")
	}
	if m.cfg.Terminal != nil {
		if err := m.t.Emit(emitResize, m.sizeLocked()); err != nil {
			log.Printf("[connection] emit resize: %v", err)
		}
	}
}

func (m *Machine) sizeLocked() map[string]int {
	cols, rows := credentials.ClampDimensions(m.cfg.Terminal.Size())
	return map[string]int{"cols": cols, "rows": rows}
}

func (m *Machine) onDisconnectLocked(data json.RawMessage) {
	m.live = false
	d := Classify("disconnect", data)
	m.recordEventLocked(EventDisconnected, d.Reason)
	if d.Reason == transport.ReasonClientDisconnect {
		// Closed from this side, e.g. by the prompt circuit breaker.
		m.gen++
		m.t.RemoveAllListeners()
		m.t = nil
		m.authPending = false
		m.logging = false
		m.state.ResetConnection()
		m.setStatusLocked(session.StatusIdle, d.Reason)
		return
	}
	m.routeLocked(d)
	m.logging = false
	m.state.ResetPermissions()
}

func (m *Machine) onDataLocked(data json.RawMessage) {
	var chunk string
	if err := json.Unmarshal(data, &chunk); err != nil {
		return
	}
	term, sink := m.cfg.Terminal, m.cfg.Log
	logOn := m.logging && sink != nil
	m.after(func() {
		if term != nil {
			term.Write([]byte(chunk))
		}
		if logOn {
			sink.Append(chunk)
		}
	})
}

func (m *Machine) onPermissionsLocked(data json.RawMessage) {
	var p session.Permissions
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("[connection] bad permissions payload: %v", err)
		return
	}
	if !m.state.ApplyPermissions(p) {
		logging.Debugf("[connection] ignoring repeated permissions event")
		return
	}
	if p.AutoLog {
		m.logging = true
	}
	m.recordEventLocked(EventPermissions, fmt.Sprintf("reauth=%t replay=%t reconnect=%t autolog=%t",
		p.AllowReauth, p.AllowReplay, p.AllowReconnect, p.AutoLog))
}

func (m *Machine) onUpdateUILocked(data json.RawMessage) {
	var u uiUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return
	}
	validate, ok := uiElements[u.Element]
	if !ok {
		m.recordEventLocked(EventUIUpdateRejected, "unknown element "+logutil.SanitizeForLog(u.Element))
		return
	}
	if err := validate(u.Value); err != nil {
		m.recordEventLocked(EventUIUpdateRejected, u.Element+": "+err.Error())
		return
	}
	ui := m.cfg.UI
	m.after(func() { ui.UpdateElement(u.Element, u.Value) })
}

func (m *Machine) onAuthenticationLocked(data json.RawMessage) {
	var p authPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("[connection] bad authentication payload: %v", err)
		return
	}

	switch p.Action {
	case "request_auth":
		m.authPending = true
		m.recordEventLocked(EventAuthRequested, "server requested credentials")
		creds, err := m.resolveLocked()
		if err != nil {
			m.openLoginLocked(LoginAuthRequired, "", err)
			return
		}
		if err := m.authenticateLocked(creds); err != nil {
			log.Printf("[connection] %v", err)
		}

	case "auth_result":
		if p.Success {
			m.state.Authenticated.Set(true)
			m.state.ReauthRequired.Set(false)
			m.recordEventLocked(EventAuthSucceeded, "authenticated")
			m.setStatusLocked(session.StatusConnected, "authenticated")
			ui := m.cfg.UI
			m.after(ui.FocusTerminal)
			return
		}
		msg := clip(p.Message)
		if msg == "" {
			msg = "Authentication failed"
		}
		m.routeLocked(Disconnect{Kind: KindAuthFailed, Reason: KindAuthFailed.String(), Message: msg})

	case "reauth":
		m.recordEventLocked(EventReauthRequested, "server requested reauthentication")
		if m.cfg.BasicAuth != nil {
			// Basic-auth credentials cannot be replaced in-session.
			m.state.Authenticated.Set(false)
			m.startLocked("reauth with basic auth")
			return
		}
		m.routeLocked(Disconnect{Kind: KindReauthRequired, Reason: KindReauthRequired.String()})

	case "dimensions":
		cols, rows := p.Cols, p.Rows
		if cols == 0 || rows == 0 {
			if m.cfg.Terminal != nil {
				cols, rows = m.cfg.Terminal.Size()
			}
		}
		cols, rows = credentials.ClampDimensions(cols, rows)
		term := m.lastCreds.Term
		if term == "" {
			term = m.cfg.Term
		}
		if err := m.t.Emit(emitTerminal, map[string]any{"cols": cols, "rows": rows, "term": term}); err != nil {
			log.Printf("[connection] emit terminal: %v", err)
		}

	case "keyboard-interactive":
		m.onKeyboardInteractiveLocked(p)

	default:
		log.Printf("[connection] ignoring authentication action %q", logutil.SanitizeForLog(p.Action))
	}
}

// onKeyboardInteractiveLocked answers a lone password prompt from the
// credentials already sent; anything else goes to the UI.
func (m *Machine) onKeyboardInteractiveLocked(p authPayload) {
	if len(p.Prompts) == 1 && !p.Prompts[0].Echo &&
		passwordPrompt.MatchString(p.Prompts[0].Prompt) && m.lastCreds.Password != "" {
		if err := m.emitKeyboardInteractiveLocked([]string{m.lastCreds.Password}); err != nil {
			log.Printf("[connection] %v", err)
		}
		return
	}
	req := KeyboardInteractive{
		Name:         clip(p.Name),
		Instructions: clip(p.Instructions),
		Prompts:      make([]KeyboardPrompt, len(p.Prompts)),
	}
	for i, pr := range p.Prompts {
		req.Prompts[i] = KeyboardPrompt{Prompt: clip(pr.Prompt), Echo: pr.Echo}
	}
	ui := m.cfg.UI
	m.after(func() { ui.RequestKeyboardInteractive(req) })
}

func (m *Machine) openLoginLocked(reason LoginReason, message string, err error) {
	req := LoginRequest{Reason: reason, Prefill: m.prefillLocked(), Message: message}
	if ve, ok := err.(credentials.ValidationErrors); ok {
		req.Errors = ve
	}
	if reason == LoginAuthRequired {
		m.recordEventLocked(EventAuthRequired, "login form opened")
	}
	ui := m.cfg.UI
	m.after(func() { ui.OpenLogin(req) })
}

// routeLocked sends a classified failure to its single UI action.
func (m *Machine) routeLocked(d Disconnect) {
	switch d.Kind {
	case KindAuthRequired:
		if m.live {
			m.setStatusLocked(session.StatusAuthenticating, d.Reason)
		} else {
			m.setStatusLocked(session.StatusIdle, d.Reason)
		}
		m.openLoginLocked(LoginAuthRequired, d.Message, nil)

	case KindReauthRequired:
		m.state.ReauthRequired.Set(true)
		m.state.Authenticated.Set(false)
		m.setStatusLocked(session.StatusReauthRequired, d.Reason)
		m.openLoginLocked(LoginReauth, "", nil)

	case KindAuthFailed:
		if m.form != nil {
			m.form.Password = ""
		}
		m.lastCreds.Password = ""
		m.recordEventLocked(EventAuthFailed, d.Message)
		m.setStatusLocked(session.StatusError, d.Reason)
		m.state.LastError.Set(m.errorViewLocked(d))
		ui := m.cfg.UI
		m.after(ui.ClearPassword)
		m.openLoginLocked(LoginAuthFailed, d.Message, nil)

	case KindSSHError:
		if m.state.ReauthRequired.Get() {
			m.state.ReauthRequired.Set(false)
			m.recordEventLocked(EventSSHErrorSuppressed, d.Message)
			return
		}
		m.recordEventLocked(EventSSHError, d.Message)
		m.showErrorLocked(d)

	case KindError, KindConnectError, KindOther:
		if d.Kind == KindConnectError {
			m.recordEventLocked(EventConnectError, d.Message)
		} else {
			m.recordEventLocked(EventError, d.Reason+": "+d.Message)
		}
		m.showErrorLocked(d)

	default:
		panic(fmt.Sprintf("connection: unrouted disconnect kind %d", d.Kind))
	}
}

func (m *Machine) errorViewLocked(d Disconnect) *session.ErrorView {
	msg := d.Message
	if msg == "" {
		msg = strings.ReplaceAll(d.Reason, "_", " ")
	}
	return &session.ErrorView{
		Kind:           d.Kind.String(),
		Title:          errorTitle(d.Kind),
		Message:        msg,
		Detail:         d.Detail,
		AllowReconnect: m.state.Permissions.Get().AllowReconnect,
		At:             m.now(),
	}
}

func (m *Machine) showErrorLocked(d Disconnect) {
	view := m.errorViewLocked(d)
	m.state.LastError.Set(view)
	m.setStatusLocked(session.StatusError, d.Kind.String())
	ui, v := m.cfg.UI, *view
	m.after(func() { ui.ShowError(v) })
}
