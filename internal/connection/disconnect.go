package connection

import (
	"encoding/json"
	"strings"

	"github.com/gluk-w/claworc/webssh/internal/logutil"
	"github.com/gluk-w/claworc/webssh/internal/session"
)

// DisconnectKind is the closed set of reasons a session can stop or need
// user action. Every kind has exactly one route in Machine.route.
type DisconnectKind int

const (
	KindAuthRequired DisconnectKind = iota
	KindAuthFailed
	KindReauthRequired
	KindError
	KindSSHError
	KindConnectError
	KindOther
)

// kindCount is the number of DisconnectKind values.
const kindCount = int(KindOther) + 1

func (k DisconnectKind) String() string {
	switch k {
	case KindAuthRequired:
		return "auth_required"
	case KindAuthFailed:
		return "auth_failed"
	case KindReauthRequired:
		return "reauth_required"
	case KindError:
		return "error"
	case KindSSHError:
		return "ssh_error"
	case KindConnectError:
		return "connect_error"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Disconnect is a classified disconnect or failure.
type Disconnect struct {
	Kind DisconnectKind
	// Reason is the raw reason string for KindOther, the wire name otherwise.
	Reason  string
	Message string
	Detail  *session.ErrorDetail
}

// errorPayload is the object form of ssherror/error/connect_error payloads.
type errorPayload struct {
	Message string               `json:"message"`
	Reason  string               `json:"reason"`
	Detail  *session.ErrorDetail `json:"detail"`
}

const maxMessageLength = 1024

// Classify maps a transport event and its payload onto a Disconnect.
// Unknown disconnect reasons become KindOther carrying the reason.
func Classify(event string, data json.RawMessage) Disconnect {
	msg, detail := decodeErrorPayload(data)

	switch event {
	case "ssherror":
		return Disconnect{Kind: KindSSHError, Reason: KindSSHError.String(), Message: msg, Detail: detail}
	case "error":
		return Disconnect{Kind: KindError, Reason: KindError.String(), Message: msg}
	case "connect_error":
		return Disconnect{Kind: KindConnectError, Reason: KindConnectError.String(), Message: msg}
	}

	// disconnect(reason)
	reason := strings.TrimSpace(msg)
	for k := 0; k < kindCount; k++ {
		kind := DisconnectKind(k)
		if kind != KindOther && reason == kind.String() {
			return Disconnect{Kind: kind, Reason: reason, Message: reason, Detail: detail}
		}
	}
	return Disconnect{Kind: KindOther, Reason: reason, Message: reason}
}

// decodeErrorPayload accepts either a JSON string or an errorPayload object.
func decodeErrorPayload(data json.RawMessage) (string, *session.ErrorDetail) {
	if len(data) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return clip(s), nil
	}
	var p errorPayload
	if err := json.Unmarshal(data, &p); err == nil {
		msg := p.Message
		if msg == "" {
			msg = p.Reason
		}
		if p.Detail != nil && p.Detail.Client.Empty() && p.Detail.Server.Empty() {
			p.Detail = nil
		}
		return clip(msg), p.Detail
	}
	return clip(string(data)), nil
}

func clip(s string) string {
	s = logutil.StripTerminalControls(s)
	if r := []rune(s); len(r) > maxMessageLength {
		return string(r[:maxMessageLength]) + "..."
	}
	return s
}

// errorTitle is the heading of the error view for kind.
func errorTitle(kind DisconnectKind) string {
	switch kind {
	case KindSSHError:
		return "SSH error"
	case KindConnectError:
		return "Connection failed"
	case KindAuthFailed:
		return "Authentication failed"
	case KindOther:
		return "Disconnected"
	default:
		return "Error"
	}
}
