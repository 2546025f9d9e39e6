package console

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gluk-w/claworc/webssh/internal/logutil"
)

type question struct {
	key   string
	label string
	def   string
	echo  bool
	skip  func(answers map[string]string) bool
}

// form asks questions one line at a time.
type form struct {
	kind      string
	title     string
	questions []question
	answers   map[string]string
	i         int
	buf       []byte
	done      func(answers map[string]string)
	cancel    func()
}

func (c *Console) startForm(f *form) {
	f.answers = make(map[string]string, len(f.questions))
	c.forms = append(c.forms, f)
	if len(c.forms) == 1 {
		c.showForm(f)
	}
}

func (c *Console) showForm(f *form) {
	if f.title != "" {
		c.printf("\n%s\n", f.title)
	}
	c.ask(f)
}

// ask prints the next unanswered question or completes the form.
func (c *Console) ask(f *form) {
	for f.i < len(f.questions) {
		q := f.questions[f.i]
		if q.skip != nil && q.skip(f.answers) {
			f.i++
			continue
		}
		if q.def != "" {
			c.printf("%s [%s]: ", q.label, logutil.StripTerminalControls(q.def))
		} else {
			c.printf("%s: ", q.label)
		}
		return
	}
	c.finishForm(f)
}

func (c *Console) finishForm(f *form) {
	c.popForm(f)
	if f.done != nil {
		f.done(f.answers)
	}
}

func (c *Console) popForm(f *form) {
	for i, g := range c.forms {
		if g == f {
			c.forms = append(c.forms[:i], c.forms[i+1:]...)
			if i == 0 && len(c.forms) > 0 {
				c.showForm(c.forms[0])
			}
			return
		}
	}
}

// dropForms removes queued forms of kind without running their callbacks.
func (c *Console) dropForms(kind string) {
	head := len(c.forms) > 0 && c.forms[0].kind == kind
	kept := c.forms[:0]
	for i, f := range c.forms {
		if f.kind == kind {
			if i == 0 {
				c.printf("\n")
			}
			continue
		}
		kept = append(kept, f)
	}
	c.forms = kept
	if head && len(c.forms) > 0 {
		c.showForm(c.forms[0])
	}
}

func (c *Console) formKey(b byte) {
	f := c.forms[0]
	switch b {
	case '\r', '\n':
		q := f.questions[f.i]
		v := string(f.buf)
		if v == "" {
			v = q.def
		}
		f.answers[q.key] = v
		f.buf = f.buf[:0]
		f.i++
		c.printf("\n")
		c.ask(f)
	case keyBackspace, keyDelete:
		if n := len(f.buf); n > 0 {
			f.buf = f.buf[:n-1]
			if f.questions[f.i].echo {
				c.printf("\b \b")
			}
		}
	case keyCtrlC:
		c.printf("^C\n")
		c.popForm(f)
		if f.cancel != nil {
			f.cancel()
		}
	case CommandKey:
		c.enterCommandMode()
	default:
		if b < 0x20 {
			return
		}
		f.buf = append(f.buf, b)
		if f.questions[f.i].echo {
			c.outMu.Lock()
			c.screen.Write([]byte{b})
			c.outMu.Unlock()
		}
	}
}

func parsePortAnswer(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("port %q is not a number", logutil.SanitizeForLog(s))
	}
	return p, nil
}

func readKeyFile(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read private key: %w", err)
	}
	return string(b), nil
}
