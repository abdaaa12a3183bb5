package notifications

// Payload is a user-facing unread-activity notification.
type Payload struct {
	Title   string
	Content string
}

// Sender delivers notifications through a platform-specific backend.
type Sender interface {
	Send(payload Payload)
}

// Discard is a Sender that drops every notification. Used when desktop
// notifications are disabled in config.
type Discard struct{}

func (Discard) Send(Payload) {}
