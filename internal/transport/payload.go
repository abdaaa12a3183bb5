package transport

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Channel addressing is by human-readable group name, not id: one broadcast
// topic per group, with join and send destinations scoped under it. STOMP
// destinations are opaque strings, so the name goes in verbatim; the broker
// matches the exact bytes it broadcast to, spaces included.

func GroupTopic(groupName string) string {
	return "/topic/groups/" + groupName
}

func GroupSendDestination(groupName string) string {
	return "/app/groups/" + groupName + "/send"
}

func GroupJoinDestination(groupName string) string {
	return "/app/groups/" + groupName + "/join"
}

// GroupEvent is a validated message-created broadcast payload. Author
// identity arrives only as an opaque reference; older backend builds used
// the senderId key for it.
type GroupEvent struct {
	ID        string
	Content   string
	Timestamp time.Time
	AuthorRef string
	GroupID   string
}

// flexID accepts both JSON strings and numbers: the backend serialized ids
// as numbers originally and as strings after the DTO rework.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""

		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)

		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", data)
	}
	*f = flexID(n.String())

	return nil
}

func (f flexID) String() string {
	return string(f)
}

type rawGroupEvent struct {
	ID        flexID `json:"id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	AuthorID  flexID `json:"authorId"`
	SenderID  flexID `json:"senderId"`
	GroupID   flexID `json:"groupId"`
}

// ParseGroupEvent validates a broadcast body once at the transport boundary
// so everything downstream works with typed data.
func ParseGroupEvent(body []byte) (GroupEvent, error) {
	var raw rawGroupEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return GroupEvent{}, fmt.Errorf("decode group event: %w", err)
	}
	if raw.ID.String() == "" && strings.TrimSpace(raw.Content) == "" {
		return GroupEvent{}, fmt.Errorf("group event carries neither id nor content")
	}

	authorRef := raw.AuthorID.String()
	if authorRef == "" {
		authorRef = raw.SenderID.String()
	}

	return GroupEvent{
		ID:        raw.ID.String(),
		Content:   raw.Content,
		Timestamp: parseEventTimestamp(raw.Timestamp),
		AuthorRef: authorRef,
		GroupID:   raw.GroupID.String(),
	}, nil
}

// SendPayload is the outgoing message body for the send destination.
type SendPayload struct {
	Content     string `json:"content"`
	SenderEmail string `json:"senderEmail"`
	GroupID     string `json:"groupId"`
}

func parseEventTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}

	return time.Now()
}
