// Package session holds the per-connection state shared by the connection
// state machine, the prompt engine and the UI. A State is created once and
// passed by reference; it is never a package-level global.
package session

import (
	"sync"
	"time"

	"github.com/gluk-w/claworc/webssh/internal/store"
)

// Status is the connection status shown to the user.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusConnecting     Status = "connecting"
	StatusAuthenticating Status = "authenticating"
	StatusConnected      Status = "connected"
	StatusReauthRequired Status = "reauth_required"
	StatusError          Status = "error"
)

// Active reports whether a connection attempt is in flight or established.
func (s Status) Active() bool {
	switch s {
	case StatusConnecting, StatusAuthenticating, StatusConnected:
		return true
	}
	return false
}

// Permissions are asserted by the server once per connection.
type Permissions struct {
	AllowReauth    bool `json:"allowReauth"`
	AllowReplay    bool `json:"allowReplay"`
	AllowReconnect bool `json:"allowReconnect"`
	AutoLog        bool `json:"autoLog"`
}

// AlgorithmSet lists the SSH algorithms one side offered during negotiation.
type AlgorithmSet struct {
	Kex         []string `json:"kex,omitempty"`
	HostKey     []string `json:"serverHostKey,omitempty"`
	Cipher      []string `json:"cipher,omitempty"`
	MAC         []string `json:"mac,omitempty"`
	Compression []string `json:"compress,omitempty"`
}

// Empty reports whether no algorithms are listed.
func (a AlgorithmSet) Empty() bool {
	return len(a.Kex)+len(a.HostKey)+len(a.Cipher)+len(a.MAC)+len(a.Compression) == 0
}

// ErrorDetail is optional diagnostic data attached to an SSH error, such as
// the client and server algorithm lists of a failed negotiation.
type ErrorDetail struct {
	Client AlgorithmSet `json:"client"`
	Server AlgorithmSet `json:"server"`
}

// ErrorView is what the error modal renders. Strings are raw; escaping
// happens in the rendering path.
type ErrorView struct {
	Kind           string       `json:"kind"`
	Title          string       `json:"title"`
	Message        string       `json:"message"`
	Detail         *ErrorDetail `json:"detail,omitempty"`
	AllowReconnect bool         `json:"allowReconnect"`
	At             time.Time    `json:"at"`
}

// State is the injectable connection state container.
type State struct {
	Status         *store.Value[Status]
	Permissions    *store.Value[Permissions]
	ReauthRequired *store.Value[bool]
	Authenticated  *store.Value[bool]
	LastError      *store.Value[*ErrorView]

	mu             sync.Mutex
	permissionsSet bool
}

// New returns a State in its initial idle configuration.
func New() *State {
	return &State{
		Status:         store.NewValue("status", StatusIdle),
		Permissions:    store.NewValue("permissions", Permissions{}),
		ReauthRequired: store.NewValue("reauthRequired", false),
		Authenticated:  store.NewValue("authenticated", false),
		LastError:      store.NewValue[*ErrorView]("lastError", nil),
	}
}

// ApplyPermissions stores p if no permissions have been set for the current
// connection. Later calls are ignored and return false.
func (s *State) ApplyPermissions(p Permissions) bool {
	s.mu.Lock()
	if s.permissionsSet {
		s.mu.Unlock()
		return false
	}
	s.permissionsSet = true
	s.mu.Unlock()

	s.Permissions.Set(p)
	return true
}

// PermissionsSet reports whether the server has asserted permissions for
// the current connection.
func (s *State) PermissionsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permissionsSet
}

// ResetPermissions drops the server-asserted permissions so the next
// permissions event is accepted.
func (s *State) ResetPermissions() {
	s.mu.Lock()
	s.permissionsSet = false
	s.mu.Unlock()

	s.Permissions.Set(Permissions{})
}

// ResetConnection returns every per-connection value to its conservative
// default. Status and the last error are left alone.
func (s *State) ResetConnection() {
	s.ResetPermissions()
	s.ReauthRequired.Set(false)
	s.Authenticated.Set(false)
}

// Reset returns the container to the state New produces.
func (s *State) Reset() {
	s.ResetConnection()
	s.LastError.Set(nil)
	s.Status.Set(StatusIdle)
}
