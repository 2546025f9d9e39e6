package credentials

import (
	"errors"
	"net/url"
	"strings"
)

// DefaultPort is used when no source supplies a port.
const DefaultPort = 22

// Credentials is the payload of the "authenticate" event. It is built right
// before sending and never stored.
type Credentials struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	Term       string `json:"term,omitempty"`
	Cols       int    `json:"cols,omitempty"`
	Rows       int    `json:"rows,omitempty"`
}

// Resolvable reports whether host and username are known, i.e. whether an
// authenticate request can be attempted without asking the user.
func (c Credentials) Resolvable() bool {
	return c.Host != "" && c.Username != ""
}

// ValidationErrors collects every rejected field.
type ValidationErrors []*FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Field returns the error for the named field, or nil.
func (v ValidationErrors) Field(name string) *FieldError {
	for _, e := range v {
		if e.Field == name {
			return e
		}
	}
	return nil
}

// Validate checks every field. A present private key must pass both
// validation phases. The returned error is ValidationErrors.
func (c Credentials) Validate() error {
	var errs ValidationErrors
	add := func(err error) {
		if err == nil {
			return
		}
		var fe *FieldError
		if errors.As(err, &fe) {
			errs = append(errs, fe)
			return
		}
		var ke *KeyError
		if errors.As(err, &ke) {
			errs = append(errs, &FieldError{Field: "privateKey", Message: ke.Error()})
		}
	}

	add(ValidateHost(c.Host))
	add(ValidatePort(c.Port))
	add(ValidateUsername(c.Username))
	add(ValidatePassword(c.Password))
	add(ValidatePassphrase(c.Passphrase))
	add(ValidateTerm(c.Term))
	if c.Cols != 0 || c.Rows != 0 {
		add(ValidateDimensions(c.Cols, c.Rows))
	}
	if c.PrivateKey != "" {
		_, err := ValidatePrivateKeyDeep(c.PrivateKey)
		add(err)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// AuthMethod names an SSH user authentication method.
type AuthMethod string

const (
	AuthPassword            AuthMethod = "password"
	AuthPublicKey           AuthMethod = "publickey"
	AuthKeyboardInteractive AuthMethod = "keyboard-interactive"
)

// ParseAuthMethods converts configured names, dropping unknown entries.
func ParseAuthMethods(names []string) []AuthMethod {
	var out []AuthMethod
	for _, n := range names {
		switch m := AuthMethod(strings.TrimSpace(strings.ToLower(n))); m {
		case AuthPassword, AuthPublicKey, AuthKeyboardInteractive:
			out = append(out, m)
		}
	}
	return out
}

func hasMethod(methods []AuthMethod, m AuthMethod) bool {
	for _, x := range methods {
		if x == m {
			return true
		}
	}
	return false
}

// Sanitize removes material for methods that are not allowed. A nil list
// allows everything. The password is kept when either password or
// keyboard-interactive authentication is allowed.
func Sanitize(c Credentials, allowed []AuthMethod) Credentials {
	if allowed == nil {
		return c
	}
	if !hasMethod(allowed, AuthPublicKey) {
		c.PrivateKey = ""
		c.Passphrase = ""
	}
	if !hasMethod(allowed, AuthPassword) && !hasMethod(allowed, AuthKeyboardInteractive) {
		c.Password = ""
	}
	return c
}

// Source is one origin of credential fields. Empty fields mean "not provided".
type Source struct {
	Name       string
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey string
	Passphrase string
	Term       string
}

// Resolve merges sources field by field: each field takes the first
// non-empty value in the order the sources are given.
func Resolve(sources ...Source) Credentials {
	var c Credentials
	for _, s := range sources {
		if c.Host == "" {
			c.Host = strings.TrimSpace(s.Host)
		}
		if c.Port == 0 {
			c.Port = s.Port
		}
		if c.Username == "" {
			c.Username = strings.TrimSpace(s.Username)
		}
		if c.Password == "" {
			c.Password = s.Password
		}
		if c.PrivateKey == "" {
			c.PrivateKey = s.PrivateKey
		}
		if c.Passphrase == "" {
			c.Passphrase = s.Passphrase
		}
		if c.Term == "" {
			c.Term = s.Term
		}
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	return c
}

// Banner is the optional header shown above the terminal.
type Banner struct {
	Text       string
	Background string
}

// Validate bounds banner text and colour.
func (b Banner) Validate() error {
	if err := ValidateBannerText(b.Text); err != nil {
		return err
	}
	return ValidateColor(b.Background)
}

// FromURL extracts a credential source and banner from a proxy page URL such
// as https://proxy/ssh/host/10.0.0.5?port=2222&username=bob&header=prod.
// Passwords are never taken from a URL. Invalid values are dropped rather
// than failing the whole URL.
func FromURL(u *url.URL) (Source, Banner) {
	src := Source{Name: "url"}
	q := u.Query()

	host := q.Get("host")
	if host == "" {
		if i := strings.Index(u.Path, "/host/"); i >= 0 {
			host, _, _ = strings.Cut(u.Path[i+len("/host/"):], "/")
		}
	}
	if ValidateHost(host) == nil {
		src.Host = host
	}
	if p := q.Get("port"); p != "" {
		if port, err := ParsePort(p); err == nil {
			src.Port = port
		}
	}
	user := q.Get("username")
	if user == "" {
		user = q.Get("user")
	}
	if ValidateUsername(user) == nil {
		src.Username = user
	}
	if t := q.Get("sshterm"); ValidateTerm(t) == nil {
		src.Term = t
	}

	var banner Banner
	if h := q.Get("header"); ValidateBannerText(h) == nil {
		banner.Text = h
	}
	if bg := q.Get("headerBackground"); ValidateColor(bg) == nil {
		banner.Background = bg
	}
	return src, banner
}
