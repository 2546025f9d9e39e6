package config

import (
	"log"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	// Server is the page URL of the SSH proxy, e.g. https://proxy.example/ssh/host/10.0.0.5?port=2222.
	// Its query string is one of the credential sources.
	ServerURL  string `envconfig:"SERVER_URL" default:"http://localhost:2222/ssh"`
	SocketPath string `envconfig:"SOCKET_PATH" default:"/ssh/socket.io/"`
	Insecure   bool   `envconfig:"INSECURE" default:"false"`

	// HTTP basic auth presented on the handshake. When set, the proxy holds
	// the SSH credentials for the session and in-session reauth is impossible.
	BasicAuthUser     string `envconfig:"BASIC_AUTH_USER" default:""`
	BasicAuthPassword string `envconfig:"BASIC_AUTH_PASSWORD" default:""`

	Term               string   `envconfig:"TERM_TYPE" default:"xterm-256color"`
	AllowedAuthMethods []string `envconfig:"ALLOWED_AUTH_METHODS" default:"password,publickey,keyboard-interactive"`
	ProfilePath        string   `envconfig:"PROFILE" default:""`

	DataPath     string `envconfig:"DATA_PATH" default:".webssh"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:""`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	Debug        bool   `envconfig:"DEBUG" default:"false"`

	// Local control API; empty disables it.
	StatusAddr string `envconfig:"STATUS_ADDR" default:"127.0.0.1:7681"`

	// Session log persistence
	LogFlushSchedule string `envconfig:"LOG_FLUSH_SCHEDULE" default:"@every 30s"`
	SessionLogLimit  int    `envconfig:"SESSION_LOG_LIMIT" default:"10000"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("WEBSSH", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if Cfg.DatabasePath == "" {
		Cfg.DatabasePath = filepath.Join(Cfg.DataPath, "webssh.db")
	}
	if Cfg.LogPath == "" {
		Cfg.LogPath = filepath.Join(Cfg.DataPath, "webssh.log")
	}
}

// HasBasicAuth reports whether the handshake carries basic-auth credentials.
func (s Settings) HasBasicAuth() bool {
	return s.BasicAuthUser != ""
}
