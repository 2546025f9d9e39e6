package terminal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/gluk-w/claworc/webssh/internal/crypto"
	"github.com/gluk-w/claworc/webssh/internal/database"
	"github.com/gluk-w/claworc/webssh/internal/logutil"
)

// LogEntry is one timestamped chunk of terminal output. The layout follows
// asciinema v2 event lines.
type LogEntry struct {
	// Elapsed is seconds since the log started.
	Elapsed float64 `json:"elapsed"`
	// Type is "o" for output.
	Type string `json:"type"`
	Data string `json:"data"`
}

// ErrNoSessionLog is returned when nothing has been logged.
var ErrNoSessionLog = errors.New("no session log")

// SessionLog captures terminal output while logging is on and persists it
// encrypted. It is safe for concurrent use.
type SessionLog struct {
	mu         sync.Mutex
	id         string
	host       string
	started    time.Time
	entries    []LogEntry
	maxEntries int
	dirty      bool
	now        func() time.Time
}

// NewSessionLog starts an empty log. When maxEntries > 0 the oldest entries
// are dropped beyond it.
func NewSessionLog(host string, maxEntries int) *SessionLog {
	l := &SessionLog{maxEntries: maxEntries, now: time.Now}
	l.start(host)
	return l
}

func (l *SessionLog) start(host string) {
	l.id = uuid.NewString()
	l.host = host
	l.started = l.now()
	l.entries = nil
	l.dirty = false
}

// Append records an output chunk.
func (l *SessionLog) Append(data string) {
	if data == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxEntries > 0 && len(l.entries) >= l.maxEntries {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, LogEntry{
		Elapsed: l.now().Sub(l.started).Seconds(),
		Type:    "o",
		Data:    data,
	})
	l.dirty = true
}

// SetHost labels the log with the remote host.
func (l *SessionLog) SetHost(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.host = host
	l.dirty = true
}

// Entries returns a copy of the recorded entries.
func (l *SessionLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// StartedAt returns when the current log started.
func (l *SessionLog) StartedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

// Flush stores the log, encrypted, if it changed since the last flush.
func (l *SessionLog) Flush() error {
	l.mu.Lock()
	if !l.dirty {
		l.mu.Unlock()
		return nil
	}
	row := &database.SessionLog{ID: l.id, Host: l.host, StartedAt: l.started, Entries: len(l.entries)}
	data, err := json.Marshal(l.entries)
	l.dirty = false
	l.mu.Unlock()

	if err != nil {
		return fmt.Errorf("encode session log: %w", err)
	}
	enc, err := crypto.Encrypt(data)
	if err != nil {
		return fmt.Errorf("encrypt session log: %w", err)
	}
	row.Data = enc
	if err := database.SaveSessionLog(row); err != nil {
		l.mu.Lock()
		l.dirty = true
		l.mu.Unlock()
		return fmt.Errorf("save session log: %w", err)
	}
	return nil
}

// Clear forgets the in-memory log and deletes every stored one.
func (l *SessionLog) Clear() error {
	l.mu.Lock()
	l.start(l.host)
	l.mu.Unlock()

	if err := database.DeleteSessionLogs(); err != nil {
		return fmt.Errorf("delete session logs: %w", err)
	}
	return nil
}

// StoredLog is a decrypted session log read back from storage.
type StoredLog struct {
	ID        string     `json:"id"`
	Host      string     `json:"host"`
	StartedAt time.Time  `json:"startedAt"`
	Entries   []LogEntry `json:"entries"`
}

// Text returns the logged output with terminal control sequences removed.
func (s *StoredLog) Text() string {
	var b strings.Builder
	for _, e := range s.Entries {
		b.WriteString(e.Data)
	}
	return logutil.StripTerminalControls(strings.ReplaceAll(b.String(), "\r\n", "\n"))
}

// LoadLatest reads the most recent stored log.
func LoadLatest() (*StoredLog, error) {
	row, err := database.GetLatestSessionLog()
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNoSessionLog
		}
		return nil, err
	}
	plain, err := crypto.Decrypt(row.Data)
	if err != nil {
		return nil, fmt.Errorf("decrypt session log: %w", err)
	}
	s := &StoredLog{ID: row.ID, Host: row.Host, StartedAt: row.StartedAt}
	if len(plain) > 0 {
		if err := json.Unmarshal(plain, &s.Entries); err != nil {
			return nil, fmt.Errorf("decode session log: %w", err)
		}
	}
	return s, nil
}

// Download flushes l, writes the latest stored log as plain text to w and
// then clears the log.
func (l *SessionLog) Download(w io.Writer) (*StoredLog, error) {
	if err := l.Flush(); err != nil {
		return nil, err
	}
	s, err := LoadLatest()
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, s.Text()); err != nil {
		return nil, fmt.Errorf("write session log: %w", err)
	}
	if err := l.Clear(); err != nil {
		return s, err
	}
	return s, nil
}

// StartFlusher flushes l on the cron schedule spec until the returned stop
// function is called. Stop performs a final flush.
func StartFlusher(l *SessionLog, spec string) (stop func(), err error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := l.Flush(); err != nil {
			log.Printf("[terminal] session log flush: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule session log flush %q: %w", spec, err)
	}
	c.Start()
	return func() {
		<-c.Stop().Done()
		if err := l.Flush(); err != nil {
			log.Printf("[terminal] final session log flush: %v", err)
		}
	}, nil
}
