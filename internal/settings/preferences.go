// Package settings holds the user's terminal preferences. They are stored as
// one JSON entry in the settings table and can be overridden per connection
// profile.
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/gluk-w/claworc/webssh/internal/database"
	"github.com/gluk-w/claworc/webssh/internal/logutil"
)

// Key is the settings-table key holding the preferences entry.
const Key = "terminal_preferences"

type BellStyle string

const (
	BellSound BellStyle = "sound"
	BellNone  BellStyle = "none"
)

type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// Preferences are the persisted terminal options.
type Preferences struct {
	FontFamily                      string    `json:"fontFamily"`
	FontSize                        int       `json:"fontSize"`
	CursorBlink                     bool      `json:"cursorBlink"`
	Scrollback                      int       `json:"scrollback"`
	TabStopWidth                    int       `json:"tabStopWidth"`
	BellStyle                       BellStyle `json:"bellStyle"`
	ClipboardAutoSelectToCopy       bool      `json:"clipboardAutoSelectToCopy"`
	ClipboardEnableMiddleClickPaste bool      `json:"clipboardEnableMiddleClickPaste"`
	KeyboardCaptureEnabled          bool      `json:"keyboardCaptureEnabled"`
	LogLevel                        LogLevel  `json:"logLevel"`
}

// Defaults returns the preferences used when nothing is stored.
func Defaults() Preferences {
	return Preferences{
		FontFamily:                      "courier-new, courier, monospace",
		FontSize:                        14,
		CursorBlink:                     true,
		Scrollback:                      10000,
		TabStopWidth:                    8,
		BellStyle:                       BellSound,
		ClipboardAutoSelectToCopy:       true,
		ClipboardEnableMiddleClickPaste: true,
		KeyboardCaptureEnabled:          false,
		LogLevel:                        LogInfo,
	}
}

// Bounds
const (
	MinFontSize     = 6
	MaxFontSize     = 72
	MaxScrollback   = 100000
	MaxTabStopWidth = 16
	maxFontFamily   = 256
)

var fontFamilyRe = regexp.MustCompile(`^[A-Za-z0-9 ,\-_"']+$`)

// Validate checks every field against its bounds.
func (p Preferences) Validate() error {
	var errs []error
	if p.FontFamily == "" || len(p.FontFamily) > maxFontFamily || !fontFamilyRe.MatchString(p.FontFamily) {
		errs = append(errs, fmt.Errorf("fontFamily: invalid value"))
	}
	if p.FontSize < MinFontSize || p.FontSize > MaxFontSize {
		errs = append(errs, fmt.Errorf("fontSize: must be between %d and %d", MinFontSize, MaxFontSize))
	}
	if p.Scrollback < 0 || p.Scrollback > MaxScrollback {
		errs = append(errs, fmt.Errorf("scrollback: must be between 0 and %d", MaxScrollback))
	}
	if p.TabStopWidth < 1 || p.TabStopWidth > MaxTabStopWidth {
		errs = append(errs, fmt.Errorf("tabStopWidth: must be between 1 and %d", MaxTabStopWidth))
	}
	switch p.BellStyle {
	case BellSound, BellNone:
	default:
		errs = append(errs, fmt.Errorf("bellStyle: must be %q or %q", BellSound, BellNone))
	}
	switch p.LogLevel {
	case LogDebug, LogInfo, LogWarn, LogError:
	default:
		errs = append(errs, fmt.Errorf("logLevel: unknown level %q", logutil.SanitizeForLog(string(p.LogLevel))))
	}
	return errors.Join(errs...)
}

// Decode parses a preferences document. Missing fields keep their value in
// base; unknown fields are rejected.
func Decode(base Preferences, data []byte) (Preferences, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	p := base
	if err := dec.Decode(&p); err != nil {
		return base, fmt.Errorf("decode preferences: %w", err)
	}
	if err := p.Validate(); err != nil {
		return base, err
	}
	return p, nil
}

// Merge applies overrides keyed by JSON field name on top of p.
func Merge(p Preferences, overrides map[string]any) (Preferences, error) {
	if len(overrides) == 0 {
		return p, nil
	}
	data, err := json.Marshal(overrides)
	if err != nil {
		return p, fmt.Errorf("encode overrides: %w", err)
	}
	return Decode(p, data)
}

// Load reads the stored preferences. Missing or corrupt entries yield the
// defaults.
func Load() Preferences {
	raw, err := database.GetSetting(Key)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.Printf("[settings] read preferences: %v", err)
		}
		return Defaults()
	}
	p, err := Decode(Defaults(), []byte(raw))
	if err != nil {
		log.Printf("[settings] stored preferences ignored: %s", logutil.SanitizeForLog(err.Error()))
		return Defaults()
	}
	return p
}

// Save validates and stores p.
func Save(p Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := database.SetSetting(Key, string(data)); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// FilterBell removes BEL characters when the bell is off.
func (p Preferences) FilterBell(s string) string {
	if p.BellStyle != BellNone {
		return s
	}
	return strings.ReplaceAll(s, "\a", "")
}
