package prompt

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/gluk-w/claworc/webssh/internal/logutil"
	"github.com/gluk-w/claworc/webssh/internal/session"
)

// InputView is an Input with every string HTML-escaped.
type InputView struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Placeholder string `json:"placeholder,omitempty"`
	Value       string `json:"value,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ButtonView is a Button with every string HTML-escaped.
type ButtonView struct {
	Label   string `json:"label"`
	Action  string `json:"action"`
	Variant string `json:"variant,omitempty"`
}

// PromptView is a Payload with every string HTML-escaped and the icon
// resolved.
type PromptView struct {
	ID              string       `json:"id"`
	Type            string       `json:"type"`
	Severity        string       `json:"severity"`
	Icon            Icon         `json:"icon"`
	Title           string       `json:"title"`
	Message         string       `json:"message,omitempty"`
	Inputs          []InputView  `json:"inputs,omitempty"`
	Buttons         []ButtonView `json:"buttons,omitempty"`
	CloseOnBackdrop bool         `json:"closeOnBackdrop,omitempty"`
}

// View is the escaped form of a Snapshot, safe to place into markup.
type View struct {
	Active              *PromptView  `json:"active"`
	ForceCloseAvailable bool         `json:"forceCloseAvailable"`
	Queue               []PromptView `json:"queue"`
	Toasts              []PromptView `json:"toasts"`
	CircuitTripped      bool         `json:"circuitTripped"`
}

// EscapePayload returns the escaped view of p.
func EscapePayload(p Payload) PromptView {
	e := html.EscapeString
	v := PromptView{
		ID:              e(p.ID),
		Type:            e(string(p.Type)),
		Severity:        e(string(p.Severity)),
		Icon:            ResolveIcon(p.Icon, p.Severity),
		Title:           e(p.Title),
		Message:         e(p.Message),
		CloseOnBackdrop: p.CloseOnBackdrop,
	}
	for _, in := range p.Inputs {
		typ := in.Type
		if typ == "" {
			typ = "text"
		}
		v.Inputs = append(v.Inputs, InputView{
			Name: e(in.Name), Label: e(in.Label), Type: e(typ),
			Placeholder: e(in.Placeholder), Value: e(in.Value), Required: in.Required,
		})
	}
	for _, b := range p.Buttons {
		v.Buttons = append(v.Buttons, ButtonView{Label: e(b.Label), Action: e(b.Action), Variant: e(b.Variant)})
	}
	return v
}

// View returns the escaped projection of s.
func (s Snapshot) View() View {
	v := View{
		ForceCloseAvailable: s.ForceCloseAvailable,
		CircuitTripped:      s.CircuitTripped,
		Queue:               make([]PromptView, 0, len(s.Queue)),
		Toasts:              make([]PromptView, 0, len(s.Toasts)),
	}
	if s.Active != nil {
		a := EscapePayload(*s.Active)
		v.Active = &a
	}
	for _, p := range s.Queue {
		v.Queue = append(v.Queue, EscapePayload(p))
	}
	for _, p := range s.Toasts {
		v.Toasts = append(v.Toasts, EscapePayload(p))
	}
	return v
}

func element(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// withText appends a text child and returns n.
func withText(n *html.Node, s string) *html.Node {
	n.AppendChild(textNode(s))
	return n
}

func promptNode(p Payload, role string) *html.Node {
	icon := ResolveIcon(p.Icon, p.Severity)
	sec := element(atom.Section, "class", "prompt prompt-"+string(p.Severity), "data-id", p.ID, "data-role", role)
	sec.AppendChild(withText(element(atom.Span, "class", "icon", "data-icon", icon.Name), icon.Glyph))
	sec.AppendChild(withText(element(atom.H2), p.Title))
	if p.Message != "" {
		sec.AppendChild(withText(element(atom.P), p.Message))
	}
	if len(p.Inputs) > 0 {
		form := element(atom.Form, "data-id", p.ID)
		for _, in := range p.Inputs {
			typ := in.Type
			if typ == "" {
				typ = "text"
			}
			label := withText(element(atom.Label), in.Label)
			input := element(atom.Input, "name", in.Name, "type", typ, "placeholder", in.Placeholder)
			if typ != "password" && in.Value != "" {
				input.Attr = append(input.Attr, html.Attribute{Key: "value", Val: in.Value})
			}
			label.AppendChild(input)
			form.AppendChild(label)
		}
		sec.AppendChild(form)
	}
	for _, b := range p.Buttons {
		sec.AppendChild(withText(element(atom.Button, "data-action", b.Action, "class", b.Variant), b.Label))
	}
	return sec
}

// RenderHTML writes s as an HTML fragment. Every server-supplied string is
// emitted as a text node or attribute value and therefore escaped.
func RenderHTML(w io.Writer, s Snapshot) error {
	root := element(atom.Div, "class", "prompts")
	if s.CircuitTripped {
		root.Attr = append(root.Attr, html.Attribute{Key: "data-circuit", Val: "open"})
	}
	if s.Active != nil {
		n := promptNode(*s.Active, "active")
		if s.ForceCloseAvailable {
			n.AppendChild(withText(element(atom.Button, "data-action", "force-close"), "Force close"))
		}
		root.AppendChild(n)
	}
	for _, p := range s.Queue {
		root.AppendChild(promptNode(p, "queued"))
	}
	for _, p := range s.Toasts {
		root.AppendChild(promptNode(p, "toast"))
	}
	return html.Render(w, root)
}

// RenderErrorHTML writes the connection error view, including the side by
// side algorithm comparison when present.
func RenderErrorHTML(w io.Writer, v session.ErrorView) error {
	root := element(atom.Section, "class", "error-view", "data-kind", v.Kind)
	root.AppendChild(withText(element(atom.H2), v.Title))
	root.AppendChild(withText(element(atom.P), v.Message))
	if d := v.Detail; d != nil {
		table := element(atom.Table, "class", "algorithms")
		head := element(atom.Tr)
		for _, h := range []string{"", "Client", "Server"} {
			head.AppendChild(withText(element(atom.Th), h))
		}
		table.AppendChild(head)
		rows := []struct {
			name           string
			client, server []string
		}{
			{"Key exchange", d.Client.Kex, d.Server.Kex},
			{"Host key", d.Client.HostKey, d.Server.HostKey},
			{"Cipher", d.Client.Cipher, d.Server.Cipher},
			{"MAC", d.Client.MAC, d.Server.MAC},
			{"Compression", d.Client.Compression, d.Server.Compression},
		}
		for _, r := range rows {
			if len(r.client) == 0 && len(r.server) == 0 {
				continue
			}
			tr := element(atom.Tr)
			tr.AppendChild(withText(element(atom.Th), r.name))
			tr.AppendChild(withText(element(atom.Td), strings.Join(r.client, ", ")))
			tr.AppendChild(withText(element(atom.Td), strings.Join(r.server, ", ")))
			table.AppendChild(tr)
		}
		root.AppendChild(table)
	}
	if v.AllowReconnect {
		root.AppendChild(withText(element(atom.Button, "data-action", "reconnect"), "Reconnect"))
	}
	return html.Render(w, root)
}

// ConsoleText renders p for a text terminal with control sequences removed.
func ConsoleText(p Payload) string {
	strip := logutil.StripTerminalControls
	var b strings.Builder
	icon := ResolveIcon(p.Icon, p.Severity)
	fmt.Fprintf(&b, "%s %s\n", icon.Glyph, strip(p.Title))
	if p.Message != "" {
		b.WriteString(strip(p.Message))
		b.WriteByte('\n')
	}
	for _, in := range p.Inputs {
		fmt.Fprintf(&b, "  [%s] %s\n", in.Name, strip(in.Label))
	}
	if len(p.Buttons) > 0 {
		parts := make([]string, len(p.Buttons))
		for i, bt := range p.Buttons {
			parts[i] = fmt.Sprintf("%s=%s", bt.Action, strip(bt.Label))
		}
		b.WriteString("  " + strings.Join(parts, "  ") + "\n")
	}
	return b.String()
}
