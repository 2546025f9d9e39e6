package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Engine.IO v4 packet types, the first byte of every text frame.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioUpgrade = '5'
	eioNoop    = '6'
)

// Socket.IO v5 packet types carried inside an Engine.IO message.
const (
	sioConnect      = 0
	sioDisconnect   = 1
	sioEvent        = 2
	sioAck          = 3
	sioConnectError = 4
	sioBinaryEvent  = 5
	sioBinaryAck    = 6
)

// maxAttachments bounds the binary attachment count a server may announce.
const maxAttachments = 16

var errMalformedPacket = errors.New("malformed socket.io packet")

// handshake is the Engine.IO open packet payload.
type handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// packet is a decoded Socket.IO packet.
type packet struct {
	Type        int
	Namespace   string
	Attachments int
	ID          int // -1 when absent
	Data        json.RawMessage
}

// decodePacket parses the Socket.IO packet following the Engine.IO "4" prefix:
// <type>[<attachments>-][<namespace>,][<ack id>][JSON].
func decodePacket(s string) (packet, error) {
	p := packet{Namespace: "/", ID: -1}
	if s == "" || s[0] < '0' || s[0] > '6' {
		return p, errMalformedPacket
	}
	p.Type = int(s[0] - '0')
	rest := s[1:]

	if p.Type == sioBinaryEvent || p.Type == sioBinaryAck {
		dash := strings.IndexByte(rest, '-')
		if dash <= 0 {
			return p, fmt.Errorf("%w: missing attachment count", errMalformedPacket)
		}
		n, err := strconv.Atoi(rest[:dash])
		if err != nil || n < 0 || n > maxAttachments {
			return p, fmt.Errorf("%w: bad attachment count %q", errMalformedPacket, rest[:dash])
		}
		p.Attachments = n
		rest = rest[dash+1:]
	}

	if strings.HasPrefix(rest, "/") {
		comma := strings.IndexByte(rest, ',')
		if comma < 0 {
			p.Namespace = rest
			rest = ""
		} else {
			p.Namespace = rest[:comma]
			rest = rest[comma+1:]
		}
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > 0 {
		id, err := strconv.Atoi(rest[:i])
		if err != nil {
			return p, fmt.Errorf("%w: bad ack id", errMalformedPacket)
		}
		p.ID = id
		rest = rest[i:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return p, fmt.Errorf("%w: invalid JSON body", errMalformedPacket)
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// eventArgs splits an EVENT body ["name", arg0, ...] into name and args.
func eventArgs(data json.RawMessage) (string, []json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: event body is not a non-empty array", errMalformedPacket)
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil || name == "" {
		return "", nil, fmt.Errorf("%w: event name is not a string", errMalformedPacket)
	}
	return name, parts[1:], nil
}

// encodeEvent returns the text frame for an EVENT on the default namespace.
func encodeEvent(event string, payload any) (string, error) {
	body, err := json.Marshal([]any{event, payload})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", event, err)
	}
	return string([]byte{eioMessage, '0' + sioEvent}) + string(body), nil
}

// connectFrame asks the server to join the default namespace.
func connectFrame() string {
	return string([]byte{eioMessage, '0' + sioConnect})
}

func disconnectFrame() string {
	return string([]byte{eioMessage, '0' + sioDisconnect})
}

// fillPlaceholders replaces {"_placeholder":true,"num":n} objects in data with
// the n-th attachment as a JSON string.
func fillPlaceholders(data json.RawMessage, attachments [][]byte) (json.RawMessage, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	v, err := replacePlaceholders(v, attachments)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func replacePlaceholders(v any, attachments [][]byte) (any, error) {
	switch t := v.(type) {
	case []any:
		for i := range t {
			r, err := replacePlaceholders(t[i], attachments)
			if err != nil {
				return nil, err
			}
			t[i] = r
		}
		return t, nil
	case map[string]any:
		if ph, _ := t["_placeholder"].(bool); ph {
			num, ok := t["num"].(float64)
			if !ok || num < 0 || int(num) >= len(attachments) {
				return nil, fmt.Errorf("%w: placeholder out of range", errMalformedPacket)
			}
			return string(attachments[int(num)]), nil
		}
		for k, e := range t {
			r, err := replacePlaceholders(e, attachments)
			if err != nil {
				return nil, err
			}
			t[k] = r
		}
		return t, nil
	default:
		return v, nil
	}
}
