package transport

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// STOMP 1.2 frame codec. The EatUp backend is a Spring simple broker, so
// only the client-side subset of the protocol is implemented here.

type Command string

const (
	CommandConnect     Command = "CONNECT"
	CommandConnected   Command = "CONNECTED"
	CommandSend        Command = "SEND"
	CommandSubscribe   Command = "SUBSCRIBE"
	CommandUnsubscribe Command = "UNSUBSCRIBE"
	CommandDisconnect  Command = "DISCONNECT"
	CommandMessage     Command = "MESSAGE"
	CommandError       Command = "ERROR"
	CommandReceipt     Command = "RECEIPT"
)

const (
	HeaderAcceptVersion = "accept-version"
	HeaderHost          = "host"
	HeaderHeartBeat     = "heart-beat"
	HeaderAuthorization = "Authorization"
	HeaderDestination   = "destination"
	HeaderSubscription  = "subscription"
	HeaderID            = "id"
	HeaderContentType   = "content-type"
	HeaderContentLength = "content-length"
	HeaderMessage       = "message"
)

// Frame is one decoded STOMP frame.
type Frame struct {
	Command Command
	Headers map[string]string
	Body    []byte
}

func NewFrame(command Command, body []byte) Frame {
	return Frame{Command: command, Headers: make(map[string]string), Body: body}
}

// Heartbeat is the wire form of a STOMP heart-beat: a bare end-of-line.
var Heartbeat = []byte("\n")

// IsHeartbeat reports whether raw is a heart-beat rather than a frame.
func IsHeartbeat(raw []byte) bool {
	trimmed := bytes.TrimRight(raw, "\r\n")

	return len(trimmed) == 0 && len(raw) > 0
}

// Encode serializes the frame: command line, sorted headers, blank line,
// body, NUL terminator. Headers are sorted to keep output deterministic.
func Encode(f Frame) []byte {
	var buf bytes.Buffer
	buf.WriteString(string(f.Command))
	buf.WriteByte('\n')

	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteString(escapeHeader(f.Command, k))
		buf.WriteByte(':')
		buf.WriteString(escapeHeader(f.Command, f.Headers[k]))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)

	return buf.Bytes()
}

// Parse decodes a single frame from raw bytes. Heart-beats must be filtered
// out by the caller first.
func Parse(raw []byte) (Frame, error) {
	raw = bytes.TrimSuffix(raw, []byte{0})
	raw = bytes.TrimPrefix(raw, []byte("\r\n"))
	raw = bytes.TrimPrefix(raw, []byte("\n"))

	head, body, found := bytes.Cut(raw, []byte("\n\n"))
	if !found {
		// Tolerate CRLF line endings from the broker.
		head, body, found = bytes.Cut(raw, []byte("\r\n\r\n"))
		if !found {
			return Frame{}, fmt.Errorf("malformed frame: missing header terminator")
		}
	}

	lines := strings.Split(strings.ReplaceAll(string(head), "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return Frame{}, fmt.Errorf("malformed frame: empty command line")
	}

	f := Frame{
		Command: Command(strings.TrimSpace(lines[0])),
		Headers: make(map[string]string, len(lines)-1),
	}
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return Frame{}, fmt.Errorf("malformed header line: %q", line)
		}
		key = unescapeHeader(f.Command, key)
		// First occurrence wins per the STOMP spec.
		if _, exists := f.Headers[key]; exists {
			continue
		}
		f.Headers[key] = unescapeHeader(f.Command, value)
	}
	f.Body = body

	return f, nil
}

// CONNECT and CONNECTED frames are exempt from header escaping in STOMP 1.2.
func headerEscapingExempt(cmd Command) bool {
	return cmd == CommandConnect || cmd == CommandConnected
}

func escapeHeader(cmd Command, v string) string {
	if headerEscapingExempt(cmd) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`, ":", `\c`)

	return r.Replace(v)
}

func unescapeHeader(cmd Command, v string) string {
	if headerEscapingExempt(cmd) || !strings.Contains(v, `\`) {
		return v
	}
	r := strings.NewReplacer(`\r`, "\r", `\n`, "\n", `\c`, ":", `\\`, `\`)

	return r.Replace(v)
}
