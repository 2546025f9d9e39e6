package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is a saved connection description. It never carries secrets:
// passwords and private keys are always supplied interactively.
type Profile struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Term     string `yaml:"term"`

	Header struct {
		Text       string `yaml:"text"`
		Background string `yaml:"background"`
	} `yaml:"header"`

	// Preferences overrides individual terminal preferences. Keys match the
	// JSON names of settings.Preferences.
	Preferences map[string]any `yaml:"preferences"`
}

// LoadProfile reads a YAML profile. A missing path yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return &Profile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes profile YAML, rejecting unknown keys.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return &p, nil
		}
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return &p, nil
}
