package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Type is the prompt kind.
type Type string

const (
	TypeInput   Type = "input"
	TypeConfirm Type = "confirm"
	TypeNotice  Type = "notice"
	TypeToast   Type = "toast"
)

// Modal reports whether the type claims focus and blocks the terminal.
func (t Type) Modal() bool {
	return t == TypeInput || t == TypeConfirm || t == TypeNotice
}

// Severity drives the default icon and styling.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Input is one field of an input prompt.
type Input struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Type        string `json:"type,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Value       string `json:"value,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Button is one action of a prompt.
type Button struct {
	Label   string `json:"label"`
	Action  string `json:"action"`
	Variant string `json:"variant,omitempty"`
}

// Payload is a server-issued prompt.
type Payload struct {
	ID              string   `json:"id"`
	Type            Type     `json:"type"`
	Title           string   `json:"title"`
	Message         string   `json:"message,omitempty"`
	Inputs          []Input  `json:"inputs,omitempty"`
	Buttons         []Button `json:"buttons,omitempty"`
	Severity        Severity `json:"severity"`
	Icon            string   `json:"icon,omitempty"`
	Timeout         int      `json:"timeout,omitempty"` // milliseconds
	CloseOnBackdrop bool     `json:"closeOnBackdrop,omitempty"`
}

const (
	maxPayloadSize  = 16 << 10
	maxIDLength     = 128
	maxTitleLength  = 200
	maxMessageLen   = 2000
	maxLabelLength  = 200
	maxInputs       = 10
	maxButtons      = 5
	maxInputValue   = 4096
	maxTimeout      = 60000
	defaultToastTTL = 5000
)

var (
	idRe     = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)
	nameRe   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)
	actionRe = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,31}$`)

	inputTypes = map[string]bool{"": true, "text": true, "password": true, "number": true, "email": true}
	variants   = map[string]bool{"": true, "primary": true, "secondary": true, "danger": true}
)

// decodePayload parses and validates a prompt event body.
func decodePayload(data json.RawMessage) (Payload, error) {
	var p Payload
	if len(data) > maxPayloadSize {
		return p, fmt.Errorf("payload too large (%d bytes)", len(data))
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	if err := p.validate(); err != nil {
		return p, err
	}
	if p.Severity == "" {
		p.Severity = SeverityInfo
	}
	if p.Type == TypeToast && p.Timeout == 0 {
		p.Timeout = defaultToastTTL
	}
	return p, nil
}

func (p *Payload) validate() error {
	if p.ID == "" || len(p.ID) > maxIDLength || !idRe.MatchString(p.ID) {
		return fmt.Errorf("invalid id")
	}
	switch p.Type {
	case TypeInput, TypeConfirm, TypeNotice, TypeToast:
	default:
		return fmt.Errorf("unknown type")
	}
	switch p.Severity {
	case "", SeverityInfo, SeveritySuccess, SeverityWarning, SeverityError:
	default:
		return fmt.Errorf("unknown severity")
	}
	if err := checkText("title", p.Title, maxTitleLength); err != nil {
		return err
	}
	if err := checkText("message", p.Message, maxMessageLen); err != nil {
		return err
	}
	if len(p.Icon) > 64 {
		return fmt.Errorf("icon name too long")
	}
	if p.Timeout < 0 || p.Timeout > maxTimeout {
		return fmt.Errorf("timeout out of range")
	}
	if len(p.Inputs) > maxInputs {
		return fmt.Errorf("too many inputs (%d)", len(p.Inputs))
	}
	if len(p.Inputs) > 0 && p.Type != TypeInput {
		return fmt.Errorf("inputs on a %s prompt", p.Type)
	}
	seen := make(map[string]bool, len(p.Inputs))
	for _, in := range p.Inputs {
		if !nameRe.MatchString(in.Name) || seen[in.Name] {
			return fmt.Errorf("invalid or duplicate input name")
		}
		seen[in.Name] = true
		if !inputTypes[in.Type] {
			return fmt.Errorf("unknown input type")
		}
		if err := checkText("label", in.Label, maxLabelLength); err != nil {
			return err
		}
		if err := checkText("placeholder", in.Placeholder, maxLabelLength); err != nil {
			return err
		}
		if err := checkText("value", in.Value, maxInputValue); err != nil {
			return err
		}
	}
	if len(p.Buttons) > maxButtons {
		return fmt.Errorf("too many buttons (%d)", len(p.Buttons))
	}
	for _, b := range p.Buttons {
		if !actionRe.MatchString(b.Action) {
			return fmt.Errorf("invalid button action")
		}
		if !variants[b.Variant] {
			return fmt.Errorf("unknown button variant")
		}
		if err := checkText("button label", b.Label, maxLabelLength); err != nil {
			return err
		}
	}
	return nil
}

func checkText(field, s string, max int) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s is not valid UTF-8", field)
	}
	if utf8.RuneCountInString(s) > max {
		return fmt.Errorf("%s longer than %d characters", field, max)
	}
	return nil
}

// Response is sent to the server as "prompt-response".
type Response struct {
	ID     string            `json:"id"`
	Action string            `json:"action"`
	Inputs map[string]string `json:"inputs,omitempty"`
}

// Actions every modal accepts in addition to its buttons.
const (
	ActionOK        = "ok"
	ActionSubmit    = "submit"
	ActionCancel    = "cancel"
	ActionDismissed = "dismissed"
)

// allows reports whether action is a valid answer to p.
func (p *Payload) allows(action string) bool {
	switch action {
	case ActionOK, ActionSubmit, ActionCancel, ActionDismissed:
		return true
	}
	for _, b := range p.Buttons {
		if b.Action == action {
			return true
		}
	}
	return false
}

// checkInputs keeps only declared inputs and bounds their values.
func (p *Payload) checkInputs(inputs map[string]string) (map[string]string, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	declared := make(map[string]bool, len(p.Inputs))
	for _, in := range p.Inputs {
		declared[in.Name] = true
	}
	out := make(map[string]string, len(inputs))
	for k, v := range inputs {
		if !declared[k] {
			return nil, fmt.Errorf("undeclared input %q", k)
		}
		if len(v) > maxInputValue {
			return nil, fmt.Errorf("input %q too long", k)
		}
		out[k] = v
	}
	return out, nil
}
