package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// fakeServer speaks just enough Engine.IO/Socket.IO to drive a Client.
type fakeServer struct {
	t        *testing.T
	received chan string
	auth     chan string
	script   func(ctx context.Context, c *websocket.Conn)
}

func newFakeServer(t *testing.T, script func(ctx context.Context, c *websocket.Conn)) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{t: t, received: make(chan string, 16), auth: make(chan string, 1), script: script}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.auth <- r.Header.Get("Authorization")
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer c.CloseNow()
		ctx := r.Context()

		open := `0{"sid":"s1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`
		if err := c.Write(ctx, websocket.MessageText, []byte(open)); err != nil {
			return
		}
		_, msg, err := c.Read(ctx)
		if err != nil {
			return
		}
		fs.received <- string(msg)
		if err := c.Write(ctx, websocket.MessageText, []byte(`40{"sid":"n1"}`)); err != nil {
			return
		}
		fs.script(ctx, c)
	}))
	t.Cleanup(srv.Close)
	return fs, srv
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func TestClient_ConnectEventsAndEmit(t *testing.T) {
	emitted := make(chan string, 1)
	fs, srv := newFakeServer(t, func(ctx context.Context, c *websocket.Conn) {
		c.Write(ctx, websocket.MessageText, []byte(`42["data","hello"]`))
		c.Write(ctx, websocket.MessageText, []byte(`451-["data",{"_placeholder":true,"num":0}]`))
		c.Write(ctx, websocket.MessageBinary, []byte("bin"))
		_, msg, err := c.Read(ctx)
		if err != nil {
			return
		}
		emitted <- string(msg)
		c.Read(ctx)
	})

	client := NewClient(Options{URL: srv.URL, BasicAuthUser: "alice", BasicAuthPassword: "pw"})
	connected := make(chan struct{}, 1)
	data := make(chan string, 4)
	client.On(EventConnect, func(json.RawMessage) { connected <- struct{}{} })
	client.On("data", func(raw json.RawMessage) {
		var s string
		json.Unmarshal(raw, &s)
		data <- s
	})

	if err := client.Emit("early", nil); err != ErrNotConnected {
		t.Errorf("Emit before connect = %v, want ErrNotConnected", err)
	}

	client.Connect()
	defer client.Disconnect()

	if got := waitFor(t, fs.auth, "auth header"); got != "Basic YWxpY2U6cHc=" {
		t.Errorf("Authorization = %q", got)
	}
	if got := waitFor(t, fs.received, "namespace connect"); got != "40" {
		t.Errorf("first client frame = %q, want 40", got)
	}
	waitFor(t, connected, "connect event")

	if got := waitFor(t, data, "text data"); got != "hello" {
		t.Errorf("data = %q, want hello", got)
	}
	if got := waitFor(t, data, "binary data"); got != "bin" {
		t.Errorf("binary data = %q, want bin", got)
	}

	if err := client.Emit("resize", map[string]int{"cols": 80, "rows": 24}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if got := waitFor(t, emitted, "emitted frame"); got != `42["resize",{"cols":80,"rows":24}]` {
		t.Errorf("emitted frame = %s", got)
	}
}

func TestClient_ServerDisconnect(t *testing.T) {
	_, srv := newFakeServer(t, func(ctx context.Context, c *websocket.Conn) {
		c.Write(ctx, websocket.MessageText, []byte(`41`))
		c.Read(ctx)
	})

	client := NewClient(Options{URL: srv.URL})
	reasons := make(chan string, 2)
	client.On(EventDisconnect, func(raw json.RawMessage) {
		var s string
		json.Unmarshal(raw, &s)
		reasons <- s
	})
	client.Connect()

	if got := waitFor(t, reasons, "disconnect"); got != ReasonServerDisconnect {
		t.Errorf("reason = %q, want %q", got, ReasonServerDisconnect)
	}
	client.Disconnect()
	select {
	case r := <-reasons:
		t.Errorf("second disconnect reported: %q", r)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClient_PingPong(t *testing.T) {
	pong := make(chan string, 1)
	_, srv := newFakeServer(t, func(ctx context.Context, c *websocket.Conn) {
		c.Write(ctx, websocket.MessageText, []byte(`2`))
		_, msg, err := c.Read(ctx)
		if err == nil {
			pong <- string(msg)
		}
		c.Read(ctx)
	})

	client := NewClient(Options{URL: srv.URL})
	client.Connect()
	defer client.Disconnect()

	if got := waitFor(t, pong, "pong"); got != "3" {
		t.Errorf("pong frame = %q, want 3", got)
	}
}

func TestClient_ConnectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(Options{URL: srv.URL, DialTimeout: time.Second})
	errs := make(chan ErrorPayload, 1)
	client.On(EventConnectError, func(raw json.RawMessage) {
		var p ErrorPayload
		json.Unmarshal(raw, &p)
		errs <- p
	})
	client.Connect()

	if p := waitFor(t, errs, "connect_error"); p.Message == "" {
		t.Error("connect_error payload has no message")
	}
}

func TestClient_RemoveAllListeners(t *testing.T) {
	c := NewClient(Options{URL: "http://localhost"})
	called := false
	c.On("data", func(json.RawMessage) { called = true })
	c.RemoveAllListeners()
	c.dispatch("data", nil)
	if called {
		t.Error("handler ran after RemoveAllListeners")
	}
}
