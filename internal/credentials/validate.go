package credentials

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Field length bounds.
const (
	MaxHostLength       = 253
	MaxUsernameLength   = 256
	MaxPasswordLength   = 4096
	MaxPassphraseLength = 1024
	MaxBannerLength     = 256
	MaxTermLength       = 64

	// MaxCols and MaxRows bound terminal dimensions sent to the server.
	MaxCols = 500
	MaxRows = 500
)

// FieldError describes why a single input field was rejected. It is meant to
// be shown inline next to the offending field and is never sent to the server.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func fieldErr(field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var (
	hostLabelRe = regexp.MustCompile(`^[A-Za-z0-9_]([A-Za-z0-9_-]{0,61}[A-Za-z0-9_])?$`)
	termRe      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)
	hexColorRe  = regexp.MustCompile(`^#([0-9A-Fa-f]{3}|[0-9A-Fa-f]{6})$`)
)

// namedColors is the allow-list of CSS colour keywords accepted for banners.
var namedColors = map[string]bool{
	"black": true, "white": true, "red": true, "green": true, "blue": true,
	"yellow": true, "orange": true, "purple": true, "gray": true, "grey": true,
	"cyan": true, "magenta": true, "maroon": true, "navy": true, "teal": true,
	"olive": true, "lime": true, "silver": true, "transparent": true,
}

// ValidateHost accepts DNS names, IPv4 and IPv6 literals (optionally bracketed).
func ValidateHost(host string) error {
	if host == "" {
		return fieldErr("host", "is required")
	}
	if len(host) > MaxHostLength {
		return fieldErr("host", "must be at most %d characters", MaxHostLength)
	}

	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		if ip := net.ParseIP(host[1 : len(host)-1]); ip != nil && ip.To4() == nil {
			return nil
		}
		return fieldErr("host", "invalid IPv6 literal")
	}
	if net.ParseIP(host) != nil {
		return nil
	}

	name := strings.TrimSuffix(host, ".")
	if name == "" {
		return fieldErr("host", "invalid hostname")
	}
	for _, label := range strings.Split(name, ".") {
		if !hostLabelRe.MatchString(label) {
			return fieldErr("host", "invalid hostname")
		}
	}
	return nil
}

// ValidatePort checks that port is in [1,65535].
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fieldErr("port", "must be between 1 and 65535")
	}
	return nil
}

// ParsePort parses and validates a decimal port string.
func ParsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fieldErr("port", "must be a number")
	}
	if err := ValidatePort(p); err != nil {
		return 0, err
	}
	return p, nil
}

// ValidateUsername requires a non-blank printable name. Domain and realm
// forms (DOMAIN\user, user@realm) are allowed.
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return fieldErr("username", "is required")
	}
	if len(username) > MaxUsernameLength {
		return fieldErr("username", "must be at most %d characters", MaxUsernameLength)
	}
	if !utf8.ValidString(username) {
		return fieldErr("username", "must be valid UTF-8")
	}
	for _, r := range username {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return fieldErr("username", "must not contain whitespace or control characters")
		}
	}
	return nil
}

// ValidatePassword bounds an optional password.
func ValidatePassword(password string) error {
	return validateSecret("password", password, MaxPasswordLength)
}

// ValidatePassphrase bounds an optional private key passphrase.
func ValidatePassphrase(passphrase string) error {
	return validateSecret("passphrase", passphrase, MaxPassphraseLength)
}

func validateSecret(field, v string, max int) error {
	if len(v) > max {
		return fieldErr(field, "must be at most %d bytes", max)
	}
	if strings.ContainsRune(v, 0) {
		return fieldErr(field, "must not contain NUL bytes")
	}
	return nil
}

// ValidateTerm checks a terminal type name such as "xterm-256color".
func ValidateTerm(term string) error {
	if term == "" {
		return nil
	}
	if len(term) > MaxTermLength || !termRe.MatchString(term) {
		return fieldErr("term", "invalid terminal type")
	}
	return nil
}

// ValidateDimensions checks terminal size bounds.
func ValidateDimensions(cols, rows int) error {
	if cols < 1 || cols > MaxCols {
		return fieldErr("cols", "must be between 1 and %d", MaxCols)
	}
	if rows < 1 || rows > MaxRows {
		return fieldErr("rows", "must be between 1 and %d", MaxRows)
	}
	return nil
}

// ClampDimensions forces cols and rows into the accepted range.
func ClampDimensions(cols, rows int) (int, int) {
	return clamp(cols, 1, MaxCols), clamp(rows, 1, MaxRows)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ValidateBannerText bounds header/footer text shown around the terminal.
func ValidateBannerText(text string) error {
	if !utf8.ValidString(text) {
		return fieldErr("banner", "must be valid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxBannerLength {
		return fieldErr("banner", "must be at most %d characters", MaxBannerLength)
	}
	for _, r := range text {
		if unicode.IsControl(r) {
			return fieldErr("banner", "must not contain control characters")
		}
	}
	return nil
}

// ValidateColor accepts a named colour from a fixed list or a #rgb/#rrggbb value.
func ValidateColor(color string) error {
	if color == "" {
		return nil
	}
	if namedColors[strings.ToLower(color)] || hexColorRe.MatchString(color) {
		return nil
	}
	return fieldErr("color", "unsupported colour %q", truncate(color, 32))
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
