package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/gluk-w/claworc/webssh/internal/logging"
	"github.com/gluk-w/claworc/webssh/internal/logutil"
)

const (
	defaultPath        = "/socket.io/"
	defaultDialTimeout = 15 * time.Second
	writeTimeout       = 10 * time.Second
	maxFrameSize       = 1 << 20
)

// Options configures a Socket.IO client.
type Options struct {
	// URL is the server origin, e.g. "https://example.com:2222". Any path
	// component is ignored in favour of Path.
	URL string
	// Path is the Socket.IO endpoint path, "/socket.io/" when empty.
	Path string

	BasicAuthUser     string
	BasicAuthPassword string
	Header            http.Header

	// Insecure skips TLS certificate verification.
	Insecure    bool
	DialTimeout time.Duration
}

// Endpoint returns the WebSocket URL the client dials.
func (o Options) Endpoint() (string, error) {
	u, err := url.Parse(o.URL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("server url has no host")
	}
	path := o.Path
	if path == "" {
		path = defaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.Path = path
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()
	u.Fragment = ""
	u.User = nil
	return u.String(), nil
}

// Client is a Socket.IO v5 / Engine.IO v4 client over a single WebSocket.
// It implements Transport.
type Client struct {
	opts Options

	mu        sync.Mutex
	handlers  listeners
	conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	started   bool
	connected bool
	finished  bool
	pingTimer *time.Timer
	pingLimit time.Duration

	// pending binary event awaiting attachments; touched only by the read loop
	pending     *packet
	attachments [][]byte
}

// NewClient returns an unconnected client.
func NewClient(opts Options) *Client {
	return &Client{opts: opts}
}

// Dial returns a Dialer producing clients with opts.
func Dial(opts Options) Dialer {
	return func() Transport { return NewClient(opts) }
}

func (c *Client) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers.add(event, h)
}

func (c *Client) RemoveAllListeners() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers.clear()
}

// Connect dials in the background. Calling it twice has no effect.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(context.Background())
	ctx := c.ctx
	c.mu.Unlock()

	go c.run(ctx)
}

func (c *Client) Emit(event string, payload any) error {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn, ctx, ok := c.conn, c.ctx, c.connected && !c.finished
	c.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	return c.write(ctx, conn, frame)
}

// Disconnect leaves the namespace and closes the socket. A connected client
// reports EventDisconnect with ReasonClientDisconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn, ctx, connected := c.conn, c.ctx, c.connected && !c.finished
	c.mu.Unlock()

	if connected {
		_ = c.write(ctx, conn, disconnectFrame())
	}
	c.finish(ReasonClientDisconnect, nil)
}

func (c *Client) write(ctx context.Context, conn *websocket.Conn, frame string) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, []byte(frame)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (c *Client) dialOptions() *websocket.DialOptions {
	h := http.Header{}
	for k, vs := range c.opts.Header {
		h[k] = append([]string(nil), vs...)
	}
	if c.opts.BasicAuthUser != "" {
		cred := c.opts.BasicAuthUser + ":" + c.opts.BasicAuthPassword
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(cred)))
	}
	opts := &websocket.DialOptions{HTTPHeader: h}
	if c.opts.Insecure {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12},
			},
		}
	}
	return opts
}

func (c *Client) run(ctx context.Context) {
	endpoint, err := c.opts.Endpoint()
	if err != nil {
		c.finish("", err)
		return
	}

	timeout := c.opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	conn, _, err := websocket.Dial(dctx, endpoint, c.dialOptions())
	cancel()
	if err != nil {
		c.finish("", fmt.Errorf("websocket dial: %w", err))
		return
	}
	conn.SetReadLimit(maxFrameSize)

	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		conn.CloseNow()
		return
	}
	c.conn = conn
	c.mu.Unlock()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			reason := ReasonTransportClose
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				reason = ReasonTransportError
			}
			c.finish(reason, err)
			return
		}
		if typ == websocket.MessageBinary {
			c.handleAttachment(data)
			continue
		}
		if stop := c.handleFrame(ctx, conn, string(data)); stop {
			return
		}
	}
}

// handleFrame processes one Engine.IO text frame and reports whether the
// read loop should stop.
func (c *Client) handleFrame(ctx context.Context, conn *websocket.Conn, frame string) bool {
	if frame == "" {
		return false
	}
	switch frame[0] {
	case eioOpen:
		var hs handshake
		if err := json.Unmarshal([]byte(frame[1:]), &hs); err != nil {
			c.finish("", fmt.Errorf("bad handshake: %w", err))
			return true
		}
		c.armPing(time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond)
		if err := c.write(ctx, conn, connectFrame()); err != nil {
			c.finish("", err)
			return true
		}
	case eioPing:
		c.resetPing()
		_ = c.write(ctx, conn, string(eioPong))
	case eioClose:
		c.finish(ReasonTransportClose, nil)
		return true
	case eioMessage:
		return c.handlePacket(frame[1:])
	default:
		// pong, upgrade, noop
	}
	return false
}

func (c *Client) handlePacket(s string) bool {
	p, err := decodePacket(s)
	if err != nil {
		log.Printf("[transport] dropping packet: %v", err)
		return false
	}
	if p.Namespace != "/" {
		return false
	}

	switch p.Type {
	case sioConnect:
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		c.dispatch(EventConnect, p.Data)
	case sioConnectError:
		c.dispatch(EventConnectError, p.Data)
		c.mu.Lock()
		c.finished = true
		c.mu.Unlock()
		c.closeConn()
		return true
	case sioDisconnect:
		c.finish(ReasonServerDisconnect, nil)
		return true
	case sioEvent:
		c.dispatchEvent(p.Data)
	case sioBinaryEvent:
		if p.Attachments == 0 {
			c.dispatchEvent(p.Data)
			return false
		}
		c.pending = &p
		c.attachments = c.attachments[:0]
	default:
		// acks are not requested by this client
	}
	return false
}

func (c *Client) handleAttachment(b []byte) {
	if c.pending == nil {
		return
	}
	c.attachments = append(c.attachments, b)
	if len(c.attachments) < c.pending.Attachments {
		return
	}
	p := c.pending
	c.pending = nil
	data, err := fillPlaceholders(p.Data, c.attachments)
	c.attachments = nil
	if err != nil {
		log.Printf("[transport] dropping binary event: %v", err)
		return
	}
	c.dispatchEvent(data)
}

func (c *Client) dispatchEvent(body json.RawMessage) {
	name, args, err := eventArgs(body)
	if err != nil {
		log.Printf("[transport] dropping event: %v", err)
		return
	}
	var first json.RawMessage
	if len(args) > 0 {
		first = args[0]
	}
	c.dispatch(name, first)
}

func (c *Client) dispatch(event string, data json.RawMessage) {
	c.mu.Lock()
	hs := c.handlers.snapshot(event)
	c.mu.Unlock()

	if event != "data" {
		logging.Debugf("[transport] <- %s %s", event, logutil.SanitizeForLog(string(data)))
	}
	for _, h := range hs {
		h(data)
	}
}

func (c *Client) armPing(limit time.Duration) {
	if limit <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingLimit = limit
	if c.pingTimer != nil {
		c.pingTimer.Stop()
	}
	c.pingTimer = time.AfterFunc(limit, func() {
		c.finish(ReasonPingTimeout, nil)
	})
}

func (c *Client) resetPing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingTimer != nil && c.pingLimit > 0 {
		c.pingTimer.Reset(c.pingLimit)
	}
}

// finish tears the client down once. A client that reached the namespace
// reports EventDisconnect with reason; one that never did reports
// EventConnectError with cause.
func (c *Client) finish(reason string, cause error) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	wasConnected := c.connected
	c.connected = false
	if c.pingTimer != nil {
		c.pingTimer.Stop()
	}
	c.mu.Unlock()

	c.closeConn()

	if wasConnected {
		c.dispatch(EventDisconnect, mustJSON(reason))
		return
	}
	msg := reason
	if cause != nil {
		msg = cause.Error()
	}
	if msg == "" || msg == ReasonClientDisconnect {
		return
	}
	c.dispatch(EventConnectError, mustJSON(ErrorPayload{Message: msg}))
}

func (c *Client) closeConn() {
	c.mu.Lock()
	conn, cancel := c.conn, c.cancel
	c.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
	if cancel != nil {
		cancel()
	}
}
