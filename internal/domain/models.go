package domain

import (
	"strings"
	"time"
)

// Group is the client-side cached view of a backend group.
type Group struct {
	ID             string
	Name           string
	MissedMessages int
	MemberNames    []string
}

// Author is a partial identity record. A broadcast event carries only an
// opaque author identifier, so any subset of these fields may be empty.
type Author struct {
	ID        string
	Name      string
	FirstName string
	Email     string
}

// Matches reports whether ref identifies this author by id or email.
func (a Author) Matches(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}

	return a.ID == ref || a.Email == ref
}

// IsZero reports whether no identity field is set.
func (a Author) IsZero() bool {
	return a.ID == "" && a.Name == "" && a.FirstName == "" && a.Email == ""
}

// DisplayName picks the most human-readable field available.
func (a Author) DisplayName() string {
	switch {
	case a.FirstName != "" && a.Name != "":
		return a.FirstName + " " + a.Name
	case a.FirstName != "":
		return a.FirstName
	case a.Name != "":
		return a.Name
	case a.Email != "":
		return a.Email
	default:
		return "unknown"
	}
}

// UnknownAuthor is the placeholder used when an incoming event's author
// cannot be resolved against the current log. A follow-up history reload
// replaces it with authoritative data.
func UnknownAuthor() Author {
	return Author{Email: "unknown@user.com", FirstName: "Unknown", Name: "User"}
}

// PendingIDPrefix marks client-generated message ids that were never
// persisted server-side.
const PendingIDPrefix = "optimistic-"

// Message is one entry in a group's ordered log.
type Message struct {
	ID      string
	GroupID string
	Content string
	SentAt  time.Time
	Author  Author
	Edited  bool

	// Pending is set on locally-originated messages until the broker
	// broadcasts the server-confirmed copy.
	Pending bool
}

// IsPendingID reports whether id was generated client-side.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, PendingIDPrefix)
}

// HistorySnapshot is published on the bus after a full history reload.
type HistorySnapshot struct {
	GroupID  string
	Messages []Message
}

// UnreadEvent is published on the bus when the notification watcher sees
// activity in a group the current user did not author.
type UnreadEvent struct {
	GroupID  string
	AuthorID string
	Content  string
}
