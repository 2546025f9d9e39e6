package settings

import (
	"log"
	"sync"

	"github.com/gluk-w/claworc/webssh/internal/config"
	"github.com/gluk-w/claworc/webssh/internal/store"
)

// Manager holds the effective preferences: the stored ones with the current
// profile's overrides applied on top.
type Manager struct {
	mu        sync.Mutex
	stored    Preferences
	overrides map[string]any
	current   *store.Value[Preferences]
}

// NewManager loads the stored preferences.
func NewManager() *Manager {
	p := Load()
	return &Manager{
		stored:  p,
		current: store.NewValue("preferences", p),
	}
}

// Get returns the effective preferences.
func (m *Manager) Get() Preferences { return m.current.Get() }

// Stored returns the preferences as persisted, without profile overrides.
func (m *Manager) Stored() Preferences {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stored
}

// Subscribe registers fn for changes of the effective preferences.
func (m *Manager) Subscribe(fn func(old, new Preferences)) func() {
	return m.current.Subscribe(fn)
}

// Update persists p and recomputes the effective preferences.
func (m *Manager) Update(p Preferences) error {
	if err := Save(p); err != nil {
		return err
	}
	m.mu.Lock()
	m.stored = p
	eff := m.effectiveLocked()
	m.mu.Unlock()
	m.current.Set(eff)
	return nil
}

// ApplyProfile replaces the profile overrides. Invalid overrides are logged
// and dropped as a whole.
func (m *Manager) ApplyProfile(p *config.Profile) {
	m.mu.Lock()
	m.overrides = nil
	if p != nil && len(p.Preferences) > 0 {
		if _, err := Merge(m.stored, p.Preferences); err != nil {
			log.Printf("[settings] profile preferences ignored: %v", err)
		} else {
			m.overrides = p.Preferences
		}
	}
	eff := m.effectiveLocked()
	m.mu.Unlock()
	m.current.Set(eff)
}

func (m *Manager) effectiveLocked() Preferences {
	eff, err := Merge(m.stored, m.overrides)
	if err != nil {
		return m.stored
	}
	return eff
}
