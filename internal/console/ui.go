package console

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gluk-w/claworc/webssh/internal/connection"
	"github.com/gluk-w/claworc/webssh/internal/credentials"
	"github.com/gluk-w/claworc/webssh/internal/logutil"
	"github.com/gluk-w/claworc/webssh/internal/prompt"
	"github.com/gluk-w/claworc/webssh/internal/session"
)

const (
	formLogin    = "login"
	formKeyboard = "keyboard-interactive"
	formPrompt   = "prompt"
)

var _ connection.UI = (*Console)(nil)

// OpenLogin asks for credentials, prefilled from req. A password is never
// prefilled.
func (c *Console) OpenLogin(req connection.LoginRequest) {
	c.post(func() { c.openLogin(req) })
}

func (c *Console) openLogin(req connection.LoginRequest) {
	c.dropForms(formLogin)

	var head strings.Builder
	switch req.Reason {
	case connection.LoginReauth:
		head.WriteString("[webssh] the server asked to authenticate again")
	case connection.LoginAuthFailed:
		head.WriteString("[webssh] authentication failed")
	default:
		head.WriteString("[webssh] login")
	}
	if req.Message != "" {
		head.WriteString(": " + logutil.StripTerminalControls(req.Message))
	}
	for _, fe := range req.Errors {
		head.WriteString("\n  " + logutil.StripTerminalControls(fe.Error()))
	}

	p := req.Prefill
	port := ""
	if p.Port != 0 {
		port = strconv.Itoa(p.Port)
	}
	c.startForm(&form{
		kind:  formLogin,
		title: head.String(),
		questions: []question{
			{key: "host", label: "host", def: p.Host, echo: true},
			{key: "port", label: "port", def: port, echo: true},
			{key: "username", label: "username", def: p.Username, echo: true},
			{key: "password", label: "password (blank for key)"},
			{key: "key", label: "private key file", echo: true},
			{key: "passphrase", label: "key passphrase", skip: func(a map[string]string) bool { return a["key"] == "" }},
		},
		done: func(a map[string]string) { c.submitLogin(req, a) },
	})
}

func (c *Console) submitLogin(req connection.LoginRequest, a map[string]string) {
	retry := func(msg string, errs credentials.ValidationErrors) {
		next := req
		next.Message = msg
		next.Errors = errs
		next.Prefill.Host = a["host"]
		next.Prefill.Username = a["username"]
		c.openLogin(next)
	}

	port, err := parsePortAnswer(a["port"])
	if err != nil {
		retry(err.Error(), nil)
		return
	}
	key, err := readKeyFile(a["key"])
	if err != nil {
		retry(err.Error(), nil)
		return
	}
	src := credentials.Source{
		Name:       "form",
		Host:       a["host"],
		Port:       port,
		Username:   a["username"],
		Password:   a["password"],
		PrivateKey: key,
		Passphrase: a["passphrase"],
	}
	if err := c.session.SubmitForm(src); err != nil {
		var ve credentials.ValidationErrors
		if errors.As(err, &ve) {
			retry("please correct the highlighted fields", ve)
			return
		}
		retry(err.Error(), nil)
	}
}

// ShowError prints the error view. Only sanitized text reaches the screen.
func (c *Console) ShowError(v session.ErrorView) {
	var b strings.Builder
	b.WriteString("\n[webssh] " + logutil.StripTerminalControls(v.Title))
	if v.Message != "" {
		b.WriteString(": " + logutil.StripTerminalControls(v.Message))
	}
	b.WriteString("\n")
	if d := v.Detail; d != nil {
		writeAlgorithms(&b, "client", d.Client)
		writeAlgorithms(&b, "server", d.Server)
	}
	if v.AllowReconnect {
		b.WriteString("press Ctrl-] r to reconnect\n")
	}
	c.printf("%s", b.String())
}

func writeAlgorithms(b *strings.Builder, side string, a session.AlgorithmSet) {
	if a.Empty() {
		return
	}
	rows := []struct {
		name string
		v    []string
	}{
		{"kex", a.Kex},
		{"hostkey", a.HostKey},
		{"cipher", a.Cipher},
		{"mac", a.MAC},
		{"compress", a.Compression},
	}
	for _, r := range rows {
		if len(r.v) == 0 {
			continue
		}
		b.WriteString("  " + side + " " + r.name + ": " + logutil.StripTerminalControls(strings.Join(r.v, ", ")) + "\n")
	}
}

// FocusTerminal returns keyboard input to the remote session.
func (c *Console) FocusTerminal() {
	c.post(func() {
		c.dropForms(formLogin)
		c.mode = modeSession
	})
}

// ClearPassword forgets any typed but unsent password.
func (c *Console) ClearPassword() {
	c.post(func() {
		for _, f := range c.forms {
			if f.kind == formLogin {
				delete(f.answers, "password")
				delete(f.answers, "passphrase")
			}
		}
	})
}

// UpdateElement shows server banner text. Colours have no console
// rendering.
func (c *Console) UpdateElement(element, value string) {
	switch element {
	case "header", "footer", "status":
		c.printf("[%s] %s\n", element, logutil.StripTerminalControls(value))
	}
}

// RequestKeyboardInteractive asks each challenge question in turn.
func (c *Console) RequestKeyboardInteractive(req connection.KeyboardInteractive) {
	c.post(func() {
		title := "[webssh] " + logutil.StripTerminalControls(req.Name)
		if req.Instructions != "" {
			title += "\n" + logutil.StripTerminalControls(req.Instructions)
		}
		qs := make([]question, len(req.Prompts))
		for i, p := range req.Prompts {
			qs[i] = question{
				key:   strconv.Itoa(i),
				label: strings.TrimRight(logutil.StripTerminalControls(p.Prompt), ": "),
				echo:  p.Echo,
			}
		}
		respond := func(responses []string) {
			if err := c.session.RespondKeyboardInteractive(responses); err != nil {
				c.printf("[webssh] keyboard-interactive: %v\n", err)
			}
		}
		n := len(qs)
		c.startForm(&form{
			kind:      formKeyboard,
			title:     title,
			questions: qs,
			done: func(a map[string]string) {
				responses := make([]string, n)
				for i := range responses {
					responses[i] = a[strconv.Itoa(i)]
				}
				respond(responses)
			},
			// Ctrl-C answers with no responses.
			cancel: func() { respond([]string{}) },
		})
	})
}

// syncPrompts reconciles the screen with the engine: new toasts are printed
// once and a newly active modal starts a prompt form.
func (c *Console) syncPrompts() {
	if c.prompts == nil {
		return
	}
	s := c.prompts.Snapshot()

	live := make(map[string]bool, len(s.Toasts))
	for _, t := range s.Toasts {
		live[t.ID] = true
		if !c.seenToasts[t.ID] {
			c.seenToasts[t.ID] = true
			c.printf("\n%s", prompt.ConsoleText(t))
		}
	}
	for id := range c.seenToasts {
		if !live[id] {
			delete(c.seenToasts, id)
		}
	}

	if s.Active == nil {
		c.abortPromptForm()
		return
	}
	if s.Active.ID == c.promptID {
		return
	}
	c.abortPromptForm()
	c.promptID = s.Active.ID
	c.startForm(promptForm(*s.Active, c.answerPrompt, c.cancelPrompt))
}

func (c *Console) abortPromptForm() {
	c.promptID = ""
	c.dropForms(formPrompt)
}

func (c *Console) answerPrompt(id, action string, inputs map[string]string) {
	if err := c.prompts.Respond(id, action, inputs); err != nil {
		c.printf("[webssh] prompt: %v\n", err)
		// Still active: ask again.
		c.promptID = ""
		c.syncPrompts()
	}
}

func (c *Console) cancelPrompt(id string) {
	if err := c.prompts.Respond(id, prompt.ActionCancel, nil); err != nil {
		c.printf("[webssh] prompt: %v\n", err)
	}
}

// promptForm turns a modal payload into questions: one per input, then the
// action when the prompt offers a choice.
func promptForm(p prompt.Payload, answer func(id, action string, inputs map[string]string), cancel func(id string)) *form {
	var qs []question
	for _, in := range p.Inputs {
		qs = append(qs, question{
			key:   "in:" + in.Name,
			label: logutil.StripTerminalControls(in.Label),
			def:   in.Value,
			echo:  in.Type != "password",
		})
	}

	def := prompt.ActionOK
	if p.Type == prompt.TypeInput {
		def = prompt.ActionSubmit
	}
	actions := make([]string, 0, len(p.Buttons))
	for _, b := range p.Buttons {
		actions = append(actions, b.Action)
	}
	if len(actions) > 0 {
		def = actions[0]
	}
	if len(actions) > 1 || p.Type == prompt.TypeConfirm {
		if len(actions) == 0 {
			actions = []string{prompt.ActionOK, prompt.ActionCancel}
		}
		qs = append(qs, question{
			key:   "action",
			label: "action (" + strings.Join(actions, "/") + ")",
			def:   def,
			echo:  true,
		})
	} else if len(qs) == 0 {
		qs = append(qs, question{key: "action", label: "press enter", def: def})
	}

	id := p.ID
	return &form{
		kind:      formPrompt,
		title:     strings.TrimRight(prompt.ConsoleText(p), "\n"),
		questions: qs,
		done: func(a map[string]string) {
			action := a["action"]
			if action == "" {
				action = def
			}
			var inputs map[string]string
			for k, v := range a {
				if name, ok := strings.CutPrefix(k, "in:"); ok {
					if inputs == nil {
						inputs = make(map[string]string)
					}
					inputs[name] = v
				}
			}
			answer(id, action, inputs)
		},
		cancel: func() { cancel(id) },
	}
}
