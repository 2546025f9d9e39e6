package database

import "time"

// Setting is a single key-value entry in the local store.
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// SessionLog holds the captured terminal output of one logging run.
// Data is fernet-encrypted; StartedAt is when capture began.
type SessionLog struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Host      string    `gorm:"not null;default:''" json:"host"`
	StartedAt time.Time `gorm:"not null;index" json:"started_at"`
	Data      string    `gorm:"type:text;not null;default:''" json:"-"`
	Entries   int       `gorm:"not null;default:0" json:"entries"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
