package transport

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodePacket(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  packet
		empty bool
	}{
		{name: "connect", in: `0{"sid":"abc"}`, want: packet{Type: sioConnect, Namespace: "/", ID: -1, Data: json.RawMessage(`{"sid":"abc"}`)}},
		{name: "disconnect", in: `1`, want: packet{Type: sioDisconnect, Namespace: "/", ID: -1}, empty: true},
		{name: "event", in: `2["data","hi"]`, want: packet{Type: sioEvent, Namespace: "/", ID: -1, Data: json.RawMessage(`["data","hi"]`)}},
		{name: "event with ack id", in: `212["x"]`, want: packet{Type: sioEvent, Namespace: "/", ID: 12, Data: json.RawMessage(`["x"]`)}},
		{name: "namespace", in: `2/admin,["x"]`, want: packet{Type: sioEvent, Namespace: "/admin", ID: -1, Data: json.RawMessage(`["x"]`)}},
		{name: "binary", in: `51-["data",{"_placeholder":true,"num":0}]`, want: packet{Type: sioBinaryEvent, Namespace: "/", ID: -1, Attachments: 1, Data: json.RawMessage(`["data",{"_placeholder":true,"num":0}]`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodePacket(tt.in)
			if err != nil {
				t.Fatalf("decodePacket(%q): %v", tt.in, err)
			}
			if got.Type != tt.want.Type || got.Namespace != tt.want.Namespace || got.ID != tt.want.ID || got.Attachments != tt.want.Attachments {
				t.Errorf("decodePacket(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
			if string(got.Data) != string(tt.want.Data) {
				t.Errorf("Data = %s, want %s", got.Data, tt.want.Data)
			}
			if tt.empty && got.Data != nil {
				t.Errorf("Data = %s, want nil", got.Data)
			}
		})
	}
}

func TestDecodePacket_Malformed(t *testing.T) {
	for _, in := range []string{"", "9", "2{not json", "5-[]", "5x-[]", "599-[]"} {
		if _, err := decodePacket(in); !errors.Is(err, errMalformedPacket) {
			t.Errorf("decodePacket(%q) error = %v, want errMalformedPacket", in, err)
		}
	}
}

func TestEventArgs(t *testing.T) {
	name, args, err := eventArgs(json.RawMessage(`["authentication",{"action":"request_auth"}]`))
	if err != nil {
		t.Fatal(err)
	}
	if name != "authentication" || len(args) != 1 {
		t.Fatalf("got %q %v", name, args)
	}

	for _, bad := range []string{`[]`, `{}`, `[1,2]`, `[""]`} {
		if _, _, err := eventArgs(json.RawMessage(bad)); err == nil {
			t.Errorf("eventArgs(%s) should fail", bad)
		}
	}
}

func TestEncodeEvent(t *testing.T) {
	got, err := encodeEvent("resize", map[string]int{"cols": 80, "rows": 24})
	if err != nil {
		t.Fatal(err)
	}
	want := `42["resize",{"cols":80,"rows":24}]`
	if got != want {
		t.Errorf("encodeEvent = %s, want %s", got, want)
	}
	if connectFrame() != "40" || disconnectFrame() != "41" {
		t.Errorf("frames = %q %q", connectFrame(), disconnectFrame())
	}
}

func TestFillPlaceholders(t *testing.T) {
	data := json.RawMessage(`["data",{"_placeholder":true,"num":0}]`)
	got, err := fillPlaceholders(data, [][]byte{[]byte("hello")})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `["data","hello"]` {
		t.Errorf("fillPlaceholders = %s", got)
	}

	if _, err := fillPlaceholders(json.RawMessage(`[{"_placeholder":true,"num":3}]`), nil); err == nil {
		t.Error("out-of-range placeholder should fail")
	}
}

func TestOptionsEndpoint(t *testing.T) {
	tests := []struct {
		opts Options
		want string
	}{
		{Options{URL: "http://localhost:2222/ssh", Path: "/ssh/socket.io/"}, "ws://localhost:2222/ssh/socket.io/?EIO=4&transport=websocket"},
		{Options{URL: "https://u:p@example.com"}, "wss://example.com/socket.io/?EIO=4&transport=websocket"},
		{Options{URL: "https://example.com", Path: "ssh/socket.io"}, "wss://example.com/ssh/socket.io/?EIO=4&transport=websocket"},
	}
	for _, tt := range tests {
		got, err := tt.opts.Endpoint()
		if err != nil {
			t.Fatalf("Endpoint(%+v): %v", tt.opts, err)
		}
		if got != tt.want {
			t.Errorf("Endpoint(%+v) = %s, want %s", tt.opts, got, tt.want)
		}
	}

	for _, bad := range []string{"ftp://x", "http://", "::"} {
		if _, err := (Options{URL: bad}).Endpoint(); err == nil {
			t.Errorf("Endpoint(%q) should fail", bad)
		}
	}
}
