package transport

import (
	"bytes"
	"testing"
)

func TestFrameEncodeParseRoundTrip(t *testing.T) {
	frame := NewFrame(CommandSend, []byte(`{"content":"hello"}`))
	frame.Headers[HeaderDestination] = "/app/groups/Avondeten/send"
	frame.Headers[HeaderContentType] = "application/json"

	parsed, err := Parse(Encode(frame))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.Command != CommandSend {
		t.Fatalf("expected SEND, got %s", parsed.Command)
	}
	if got := parsed.Headers[HeaderDestination]; got != "/app/groups/Avondeten/send" {
		t.Fatalf("unexpected destination: %q", got)
	}
	if !bytes.Equal(parsed.Body, frame.Body) {
		t.Fatalf("body mismatch: %q", parsed.Body)
	}
}

func TestFrameParseBrokerMessage(t *testing.T) {
	raw := []byte("MESSAGE\ndestination:/topic/groups/Avondeten\nsubscription:sub-1\nmessage-id:7\n\n{\"id\":\"42\"}\x00")

	frame, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if frame.Command != CommandMessage {
		t.Fatalf("expected MESSAGE, got %s", frame.Command)
	}
	if got := frame.Headers[HeaderSubscription]; got != "sub-1" {
		t.Fatalf("unexpected subscription: %q", got)
	}
	if string(frame.Body) != `{"id":"42"}` {
		t.Fatalf("unexpected body: %q", frame.Body)
	}
}

func TestFrameParseCRLF(t *testing.T) {
	raw := []byte("CONNECTED\r\nversion:1.2\r\nheart-beat:4000,4000\r\n\r\n\x00")

	frame, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if frame.Command != CommandConnected {
		t.Fatalf("expected CONNECTED, got %s", frame.Command)
	}
	if got := frame.Headers["version"]; got != "1.2" {
		t.Fatalf("unexpected version header: %q", got)
	}
}

func TestFrameHeaderEscaping(t *testing.T) {
	frame := NewFrame(CommandSend, nil)
	frame.Headers["x-note"] = "a:b\nc"

	parsed, err := Parse(Encode(frame))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := parsed.Headers["x-note"]; got != "a:b\nc" {
		t.Fatalf("escaping round trip failed: %q", got)
	}
}

func TestFrameRepeatedHeaderFirstWins(t *testing.T) {
	raw := []byte("MESSAGE\nfoo:first\nfoo:second\n\n\x00")

	frame, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got := frame.Headers["foo"]; got != "first" {
		t.Fatalf("expected first occurrence to win, got %q", got)
	}
}

func TestIsHeartbeat(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want bool
	}{
		{name: "lf", raw: []byte("\n"), want: true},
		{name: "crlf", raw: []byte("\r\n"), want: true},
		{name: "frame", raw: []byte("MESSAGE\n\n\x00"), want: false},
		{name: "empty", raw: nil, want: false},
	}

	for _, tc := range tests {
		if got := IsHeartbeat(tc.raw); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestFrameParseMalformed(t *testing.T) {
	if _, err := Parse([]byte("garbage")); err == nil {
		t.Fatalf("expected error for frame without header terminator")
	}
	if _, err := Parse([]byte("MESSAGE\nbroken header\n\n\x00")); err == nil {
		t.Fatalf("expected error for header line without separator")
	}
}
