// Package chat owns the per-screen realtime session: history backfill, the
// live broker subscription, optimistic sends, and reconciliation of the two.
package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"eatup/internal/bus"
	"eatup/internal/domain"
	"eatup/internal/events"
	"eatup/internal/transport"
)

// DefaultReloadDelay bounds how soon after an unresolvable author the
// self-healing history re-fetch runs.
const DefaultReloadDelay = 500 * time.Millisecond

// HistoryLoader is the request/response boundary for message snapshots.
type HistoryLoader interface {
	FetchMessages(ctx context.Context, group domain.Group) ([]domain.Message, error)
}

// Broker is the slice of the transport client a session needs.
type Broker interface {
	SetOnConnect(fn func())
	Connect(ctx context.Context) error
	Subscribe(destination string, handler transport.Handler)
	Publish(destination string, payload any) error
	Disconnect()
}

// Config wires a session's collaborators.
type Config struct {
	Group       domain.Group
	UserEmail   string
	Broker      Broker
	History     HistoryLoader
	Bus         bus.MessageBus
	Logger      *slog.Logger
	ReloadDelay time.Duration
}

// Session drives one open group chat. Its message log is the authoritative
// in-memory view; the session keeps it consistent while confirmations and
// sends race each other.
type Session struct {
	group   domain.Group
	email   string
	broker  Broker
	history HistoryLoader
	bus     bus.MessageBus
	logger  *slog.Logger
	log     *domain.MessageLog

	reloadDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	reloadMu        sync.Mutex
	reloadScheduled bool
}

func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "chat")
	}
	reloadDelay := cfg.ReloadDelay
	if reloadDelay <= 0 {
		reloadDelay = DefaultReloadDelay
	}

	return &Session{
		group:       cfg.Group,
		email:       cfg.UserEmail,
		broker:      cfg.Broker,
		history:     cfg.History,
		bus:         cfg.Bus,
		logger:      logger.With("group", cfg.Group.Name),
		log:         domain.NewMessageLog(cfg.Group.ID),
		reloadDelay: reloadDelay,
	}
}

// Start backfills history, then brings the live subscription up. The join
// signal goes out after every successful (re)connect so the backend clears
// this user's unread counter for the group.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.loadHistory(); err != nil {
		// Keep whatever is already visible; the next reload recovers.
		s.logger.Warn("initial history load failed", "error", err)
	}

	s.broker.SetOnConnect(s.join)
	s.broker.Subscribe(transport.GroupTopic(s.group.Name), s.handleEvent)
	if err := s.broker.Connect(s.ctx); err != nil {
		s.logger.Warn("broker connect refused", "error", err)
	}
}

// Send constructs a pending message and inserts it into the log before the
// wire send is attempted, so callers see it immediately. A synchronous
// publish failure rolls the entry back; nothing is surfaced as an error,
// per the session's failure policy.
func (s *Session) Send(text string) {
	if isBlank(text) {
		return
	}
	if s.closed() {
		return
	}

	pending := domain.Message{
		ID:      domain.PendingIDPrefix + uuid.NewString(),
		GroupID: s.group.ID,
		Content: text,
		SentAt:  time.Now(),
		Author:  domain.Author{Email: s.email},
	}
	s.log.AppendPending(pending)

	payload := transport.SendPayload{
		Content:     text,
		SenderEmail: s.email,
		GroupID:     s.group.ID,
	}
	if err := s.broker.Publish(transport.GroupSendDestination(s.group.Name), payload); err != nil {
		s.log.RemovePending(pending.ID)
		s.logger.Warn("send failed, rolled back pending message", "error", err)
	}
}

// Messages returns the current ordered list.
func (s *Session) Messages() []domain.Message {
	return s.log.Messages()
}

// Changes signals list updates to the owning screen.
func (s *Session) Changes() <-chan struct{} {
	return s.log.Changes()
}

// Refresh forces a full history reload, e.g. on tab refocus.
func (s *Session) Refresh() {
	if s.closed() {
		return
	}
	if err := s.loadHistory(); err != nil {
		s.logger.Warn("refresh failed", "error", err)
	}
}

// Close releases the connection and all its subscriptions. Exactly-once by
// construction; later calls are no-ops.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.broker.Disconnect()
		s.logger.Info("chat session closed")
	})
}

func (s *Session) handleEvent(body []byte) {
	// The subscription may still fire while teardown is in flight.
	if s.closed() {
		return
	}

	event, err := transport.ParseGroupEvent(body)
	if err != nil {
		s.logger.Warn("drop unparseable group event", "error", err)

		return
	}

	res := s.log.Reconcile(domain.IncomingMessage{
		ID:        event.ID,
		GroupID:   s.group.ID,
		Content:   event.Content,
		SentAt:    event.Timestamp,
		AuthorRef: event.AuthorRef,
	})
	if s.bus != nil {
		s.bus.Publish(events.TopicMessageConfirmed, res.Message)
	}
	if res.NeedsReload {
		s.scheduleReload()
	}
}

func (s *Session) join() {
	if s.closed() {
		return
	}
	if err := s.broker.Publish(transport.GroupJoinDestination(s.group.Name), struct{}{}); err != nil {
		s.logger.Warn("join signal failed", "error", err)
	}
}

// scheduleReload arms a single delayed re-fetch. Bursts of unresolvable
// events collapse into one reload.
func (s *Session) scheduleReload() {
	s.reloadMu.Lock()
	if s.reloadScheduled {
		s.reloadMu.Unlock()

		return
	}
	s.reloadScheduled = true
	s.reloadMu.Unlock()

	time.AfterFunc(s.reloadDelay, func() {
		s.reloadMu.Lock()
		s.reloadScheduled = false
		s.reloadMu.Unlock()

		if s.closed() {
			return
		}
		if err := s.loadHistory(); err != nil {
			s.logger.Warn("self-healing reload failed", "error", err)
		}
	})
}

func (s *Session) loadHistory() error {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	msgs, err := s.history.FetchMessages(ctx, s.group)
	if err != nil {
		return err
	}

	// The snapshot is authoritative: replace, never merge.
	s.log.Replace(msgs)
	if s.bus != nil {
		s.bus.Publish(events.TopicHistoryLoaded, domain.HistorySnapshot{GroupID: s.group.ID, Messages: msgs})
	}

	return nil
}

func (s *Session) closed() bool {
	return s.ctx != nil && s.ctx.Err() != nil
}

func isBlank(text string) bool {
	for _, r := range text {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}

	return true
}
