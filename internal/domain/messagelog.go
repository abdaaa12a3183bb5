package domain

import (
	"strings"
	"sync"
	"time"
)

// IncomingMessage is a parsed broadcast event for one group. Author identity
// arrives only as an opaque reference (user id or email).
type IncomingMessage struct {
	ID        string
	GroupID   string
	Content   string
	SentAt    time.Time
	AuthorRef string
}

// MessageLog holds the ordered message list for one open group chat and
// reconciles locally-originated pending entries with broker-confirmed ones.
//
// Pending entries are matched by content, not id: the broker does not echo
// the client-generated pending id, so identical text is the only correlation
// key available (see ReconcileResult.NeedsReload for the recovery path when
// author identity cannot be resolved either).
type MessageLog struct {
	mu      sync.RWMutex
	groupID string
	entries []Message
	changes chan struct{}
}

// ReconcileResult describes the outcome of merging one incoming event.
type ReconcileResult struct {
	Message Message

	// Replaced is set when a pending entry was confirmed in place.
	Replaced bool

	// NeedsReload is set when the author could not be resolved and the
	// caller should schedule a one-time history re-fetch.
	NeedsReload bool
}

func NewMessageLog(groupID string) *MessageLog {
	return &MessageLog{
		groupID: groupID,
		changes: make(chan struct{}, 1),
	}
}

func (l *MessageLog) GroupID() string {
	return l.groupID
}

// Replace installs a full history snapshot, dropping everything held so far.
// The snapshot is authoritative, so pending entries are discarded too: a
// pending message whose confirmation was silently lost is recovered (or
// forgotten) by exactly this path.
func (l *MessageLog) Replace(msgs []Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make([]Message, len(msgs))
	copy(l.entries, msgs)
	l.notify()
}

// Messages returns a copy of the current ordered list.
func (l *MessageLog) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, len(l.entries))
	copy(out, l.entries)

	return out
}

func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.entries)
}

// AppendPending inserts a locally-created message before the transport send
// is attempted, so the caller's view reflects the send immediately.
func (l *MessageLog) AppendPending(msg Message) {
	msg.Pending = true
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, msg)
	l.notify()
}

// RemovePending rolls back a pending entry after a failed publish. It only
// touches pending entries, never confirmed ones.
func (l *MessageLog) RemovePending(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, entry := range l.entries {
		if !entry.Pending || entry.ID != id {
			continue
		}
		l.entries = append(l.entries[:i], l.entries[i+1:]...)
		l.notify()

		return true
	}

	return false
}

// Reconcile merges one confirmed broadcast event into the log:
//
//  1. an existing pending entry with identical content is confirmed in
//     place, keeping its list position and its (partial) author;
//  2. otherwise the author reference is resolved against any prior entry
//     with the same id or email;
//  3. otherwise the placeholder author is substituted and NeedsReload is
//     raised so a history re-fetch can self-heal the placeholder;
//  4. the entry is appended when step 1 found no match.
//
// An event whose id is already present confirms nothing and is dropped, so
// redelivery never duplicates a message.
func (l *MessageLog) Reconcile(in IncomingMessage) ReconcileResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	if in.ID != "" {
		for _, entry := range l.entries {
			if !entry.Pending && entry.ID == in.ID {
				return ReconcileResult{Message: entry}
			}
		}
	}

	confirmed := Message{
		ID:      in.ID,
		GroupID: l.groupID,
		Content: in.Content,
		SentAt:  in.SentAt,
		Pending: false,
	}

	if idx := l.findPendingByContent(in.Content); idx >= 0 {
		confirmed.Author = l.entries[idx].Author
		l.entries[idx] = confirmed
		l.notify()

		return ReconcileResult{Message: confirmed, Replaced: true}
	}

	author, ok := l.resolveAuthor(in.AuthorRef)
	needsReload := false
	if !ok {
		author = UnknownAuthor()
		needsReload = true
	}
	confirmed.Author = author

	l.entries = append(l.entries, confirmed)
	l.notify()

	return ReconcileResult{Message: confirmed, NeedsReload: needsReload}
}

// Changes signals that the list content changed. The channel is coalescing:
// a slow consumer sees at least one signal, not one per mutation.
func (l *MessageLog) Changes() <-chan struct{} {
	return l.changes
}

func (l *MessageLog) findPendingByContent(content string) int {
	for i, entry := range l.entries {
		if entry.Pending && entry.Content == content {
			return i
		}
	}

	return -1
}

func (l *MessageLog) resolveAuthor(ref string) (Author, bool) {
	if strings.TrimSpace(ref) == "" {
		return Author{}, false
	}
	for _, entry := range l.entries {
		if entry.Author.Matches(ref) {
			return entry.Author, true
		}
	}

	return Author{}, false
}

func (l *MessageLog) notify() {
	select {
	case l.changes <- struct{}{}:
	default:
	}
}
