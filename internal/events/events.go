package events

import "time"

// ConnectionState describes the lifecycle of a broker connection.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
)

// ConnectionStatus is a bus event snapshot of a transport client's status.
type ConnectionStatus struct {
	State     ConnectionState
	Err       string
	Session   string
	Target    string
	Timestamp time.Time
}
