// Package console is the text-terminal shell around the connection machine
// and the prompt engine. It owns keyboard input: bytes go to the remote
// session unless a login form, a modal prompt or command mode claims them.
package console

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/gluk-w/claworc/webssh/internal/credentials"
	"github.com/gluk-w/claworc/webssh/internal/logutil"
	"github.com/gluk-w/claworc/webssh/internal/prompt"
	"github.com/gluk-w/claworc/webssh/internal/settings"
)

// CommandKey (Ctrl-]) switches from the remote session to command mode.
const CommandKey = 0x1d

const (
	keyCtrlC     = 0x03
	keyBackspace = 0x08
	keyDelete    = 0x7f
)

// Session is the part of the connection machine the console drives.
type Session interface {
	SubmitForm(form credentials.Source) error
	SendData(data string) error
	Reconnect()
	Reauth() error
	ReplayCredentials() error
	RespondKeyboardInteractive(responses []string) error
	Logging() bool
	SetLogging(on bool)
}

// Prompts is the part of the prompt engine the console drives.
type Prompts interface {
	Snapshot() prompt.Snapshot
	Respond(id, action string, inputs map[string]string) error
	DismissAll() []prompt.Response
	ForceClose() (prompt.Response, error)
	DismissToast(id string) error
	Subscribe(fn func(prompt.Snapshot)) (unsubscribe func())
}

// Screen is the local terminal.
type Screen interface {
	Size() (cols, rows int)
	Write(p []byte) (int, error)
}

type mode int

const (
	modeSession mode = iota
	modeCommand
)

// Console implements connection.UI and connection.Terminal.
type Console struct {
	screen  Screen
	session Session
	prompts Prompts
	prefs   func() settings.Preferences

	outMu sync.Mutex

	pendMu  sync.Mutex
	pending []func()
	wake    chan struct{}

	// Loop state, touched only by Run's goroutine.
	mode       mode
	forms      []*form
	promptID   string
	seenToasts map[string]bool
	quit       bool
}

// Config wires a Console. Prefs may be nil.
type Config struct {
	Screen  Screen
	Session Session
	Prompts Prompts
	Prefs   func() settings.Preferences
}

// New returns a Console. SetSession must be called before Run when
// cfg.Session is nil.
func New(cfg Config) *Console {
	prefs := cfg.Prefs
	if prefs == nil {
		prefs = settings.Defaults
	}
	return &Console{
		screen:     cfg.Screen,
		session:    cfg.Session,
		prompts:    cfg.Prompts,
		prefs:      prefs,
		wake:       make(chan struct{}, 1),
		seenToasts: make(map[string]bool),
	}
}

// SetSession sets the session. The machine needs the console as its UI, so
// the two are wired in two steps.
func (c *Console) SetSession(s Session) { c.session = s }

// Size implements connection.Terminal.
func (c *Console) Size() (cols, rows int) { return c.screen.Size() }

// Write implements connection.Terminal. Remote output passes through
// unchanged apart from the bell filter.
func (c *Console) Write(p []byte) (int, error) {
	s := c.prefs().FilterBell(string(p))
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if _, err := io.WriteString(c.screen, s); err != nil {
		return 0, err
	}
	return len(p), nil
}

// printf writes a local message. Local text never carries terminal controls.
func (c *Console) printf(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	s = strings.ReplaceAll(s, "\n", "\r\n")
	c.outMu.Lock()
	defer c.outMu.Unlock()
	io.WriteString(c.screen, s)
}

// post queues fn for the Run loop. It never blocks.
func (c *Console) post(fn func()) {
	c.pendMu.Lock()
	c.pending = append(c.pending, fn)
	c.pendMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Console) drain() {
	c.pendMu.Lock()
	fns := c.pending
	c.pending = nil
	c.pendMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Run processes keyboard input from in until ctx is done, input ends or the
// user quits.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	if c.prompts != nil {
		unsub := c.prompts.Subscribe(func(prompt.Snapshot) {
			c.post(c.syncPrompts)
		})
		defer unsub()
	}

	input := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case input <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	c.drain()
	c.syncPrompts()
	for !c.quit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
			c.drain()
		case chunk := <-input:
			c.drain()
			c.handleInput(chunk)
		case err := <-readErr:
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return nil
}

func (c *Console) handleInput(chunk []byte) {
	for len(chunk) > 0 && !c.quit {
		switch {
		case c.mode == modeCommand:
			c.command(chunk[0])
			chunk = chunk[1:]
		case len(c.forms) > 0:
			c.formKey(chunk[0])
			chunk = chunk[1:]
		default:
			i := strings.IndexByte(string(chunk), CommandKey)
			if i < 0 {
				c.send(chunk)
				return
			}
			if i > 0 {
				c.send(chunk[:i])
			}
			c.enterCommandMode()
			chunk = chunk[i+1:]
		}
	}
}

func (c *Console) send(b []byte) {
	if c.session == nil {
		return
	}
	if err := c.session.SendData(string(b)); err != nil {
		log.Printf("[console] send: %v", err)
	}
}

func (c *Console) enterCommandMode() {
	c.mode = modeCommand
	c.printf("\n[webssh] command: (d)ismiss prompts, (f)orce close, (r)econnect, re(a)uth, re(p)lay credentials, (l)og on/off, (q)uit\n")
}

func (c *Console) command(key byte) {
	c.mode = modeSession
	switch key {
	case 'd':
		if c.prompts == nil {
			return
		}
		rs := c.prompts.DismissAll()
		c.abortPromptForm()
		c.printf("[webssh] dismissed %d prompt(s)\n", len(rs))
	case 'f':
		if c.prompts == nil {
			return
		}
		if _, err := c.prompts.ForceClose(); err != nil {
			c.printf("[webssh] force close: %v\n", err)
			return
		}
		c.abortPromptForm()
	case 'r':
		c.printf("[webssh] reconnecting\n")
		c.session.Reconnect()
	case 'a':
		if err := c.session.Reauth(); err != nil {
			c.printf("[webssh] reauth: %v\n", err)
		}
	case 'p':
		if err := c.session.ReplayCredentials(); err != nil {
			c.printf("[webssh] replay credentials: %v\n", err)
		}
	case 'l':
		on := !c.session.Logging()
		c.session.SetLogging(on)
		c.printf("[webssh] session log %s\n", onOff(on))
	case 'q':
		c.quit = true
	case CommandKey:
		c.send([]byte{CommandKey})
	default:
		c.printf("[webssh] unknown command %q\n", logutil.SanitizeForLog(string(rune(key))))
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
