package terminal

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// Default dimensions when the output is not a TTY.
const (
	DefaultCols = 80
	DefaultRows = 24
)

// Terminal is a local TTY. Output is written as-is; rendering escape
// sequences is the job of the user's terminal emulator.
type Terminal struct {
	in  *os.File
	out io.Writer
	fd  int
	tty bool

	mu       sync.Mutex
	oldState *term.State
}

// New wraps in and out. Size and raw mode use in when it is a TTY.
func New(in *os.File, out io.Writer) *Terminal {
	fd := int(in.Fd())
	return &Terminal{in: in, out: out, fd: fd, tty: term.IsTerminal(fd)}
}

// IsTTY reports whether input is an interactive terminal.
func (t *Terminal) IsTTY() bool { return t.tty }

// Size returns the current window size, or 80x24 when unknown.
func (t *Terminal) Size() (cols, rows int) {
	if !t.tty {
		return DefaultCols, DefaultRows
	}
	cols, rows, err := term.GetSize(t.fd)
	if err != nil || cols <= 0 || rows <= 0 {
		return DefaultCols, DefaultRows
	}
	return cols, rows
}

func (t *Terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out.Write(p)
}

// MakeRaw puts the TTY into raw mode. Restore undoes it.
func (t *Terminal) MakeRaw() error {
	if !t.tty {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.oldState != nil {
		return nil
	}
	st, err := term.MakeRaw(t.fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	t.oldState = st
	return nil
}

// Restore leaves raw mode. It is safe to call when not in raw mode.
func (t *Terminal) Restore() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.oldState == nil {
		return nil
	}
	err := term.Restore(t.fd, t.oldState)
	t.oldState = nil
	return err
}

// Raw reports whether the TTY is in raw mode.
func (t *Terminal) Raw() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.oldState != nil
}

// ReadPassword reads a line without echo.
func (t *Terminal) ReadPassword() (string, error) {
	if !t.tty {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	b, err := term.ReadPassword(t.fd)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
