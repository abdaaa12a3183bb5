// Package notify keeps one broker connection alive for the whole signed-in
// session and fans every group's channel into unread signals.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"eatup/internal/bus"
	"eatup/internal/domain"
	"eatup/internal/events"
	"eatup/internal/transport"
)

// Broker is the slice of the transport client the watcher needs.
type Broker interface {
	Connect(ctx context.Context) error
	Subscribe(destination string, handler transport.Handler)
	Disconnect()
}

// Callback receives the id of a group with fresh unread activity.
type Callback func(groupID string)

// Config wires a watcher's collaborators.
type Config struct {
	// UserID is the current user's opaque identifier; events it authored
	// never produce a signal. Leaving it empty turns the suppression off.
	UserID   string
	Broker   Broker
	Bus      bus.MessageBus
	Logger   *slog.Logger
	OnUnread Callback
}

// Watcher owns the shared notification connection. It holds one subscription
// per watched group and survives group-list changes without reconnecting.
// External code feeds it group lists and receives callbacks; the subscription
// map is private.
type Watcher struct {
	userID   string
	broker   Broker
	bus      bus.MessageBus
	logger   *slog.Logger
	onUnread Callback

	mu      sync.Mutex
	watched map[string]string // group id -> topic
	started bool

	closeOnce sync.Once
}

func NewWatcher(cfg Config) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "notify")
	}
	if cfg.UserID == "" {
		logger.Warn("no user id configured, own messages will also signal unread")
	}

	return &Watcher{
		userID:   cfg.UserID,
		broker:   cfg.Broker,
		bus:      cfg.Bus,
		logger:   logger,
		onUnread: cfg.OnUnread,
		watched:  make(map[string]string),
	}
}

// Start subscribes to the initial group list and brings the shared connection
// up. Calling it again is a no-op; use Resync for later list changes.
func (w *Watcher) Start(ctx context.Context, groups []domain.Group) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		w.logger.Debug("watcher already started")

		return
	}
	w.started = true
	w.mu.Unlock()

	w.Resync(groups)
	if err := w.broker.Connect(ctx); err != nil {
		w.logger.Warn("watcher connect refused", "error", err)
	}
}

// Resync adds subscriptions for groups that appeared since the last call.
// Groups that vanished keep their stale subscriptions: once the backend
// removes the user from a group its channel goes quiet, so the leak is
// bounded and harmless.
func (w *Watcher) Resync(groups []domain.Group) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, group := range groups {
		if group.ID == "" || group.Name == "" {
			continue
		}
		if _, ok := w.watched[group.ID]; ok {
			continue
		}
		topic := transport.GroupTopic(group.Name)
		w.watched[group.ID] = topic

		groupID := group.ID
		w.broker.Subscribe(topic, func(body []byte) {
			w.handleEvent(groupID, body)
		})
		w.logger.Debug("watching group", "group_id", group.ID, "group", group.Name)
	}
}

// Watched reports how many groups currently have a live subscription.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.watched)
}

// Close tears the shared connection and every subscription down. Exactly-once.
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		w.broker.Disconnect()
		w.logger.Info("notification watcher closed")
	})
}

func (w *Watcher) handleEvent(groupID string, body []byte) {
	event, err := transport.ParseGroupEvent(body)
	if err != nil {
		w.logger.Warn("drop unparseable notification event", "error", err, "group_id", groupID)

		return
	}
	if w.userID != "" && event.AuthorRef == w.userID {
		// Own messages never count as unread for their sender.
		return
	}

	if w.onUnread != nil {
		w.onUnread(groupID)
	}
	if w.bus != nil {
		w.bus.Publish(events.TopicUnread, domain.UnreadEvent{
			GroupID:  groupID,
			AuthorID: event.AuthorRef,
			Content:  event.Content,
		})
	}
}
