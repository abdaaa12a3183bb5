package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"eatup/internal/bus"
	"eatup/internal/config"
	"eatup/internal/domain"
	"eatup/internal/events"
	"eatup/internal/notifications"
)

// NotificationService listens to bus events and emits desktop notifications.
type NotificationService struct {
	bus           bus.MessageBus
	groups        *domain.GroupStore
	currentConfig func() config.AppConfig
	sender        notifications.Sender
	logger        *slog.Logger

	connStatusMu     sync.Mutex
	lastConnState    events.ConnectionState
	lastConnStateSet bool
}

func NewNotificationService(
	messageBus bus.MessageBus,
	groups *domain.GroupStore,
	currentConfig func() config.AppConfig,
	sender notifications.Sender,
	logger *slog.Logger,
) *NotificationService {
	if logger == nil {
		logger = slog.Default().With("component", "app.notifications")
	}

	return &NotificationService{
		bus:           messageBus,
		groups:        groups,
		currentConfig: currentConfig,
		sender:        sender,
		logger:        logger,
	}
}

func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || s.bus == nil || s.sender == nil {
		return
	}

	unreadSub := s.bus.Subscribe(events.TopicUnread)
	connSub := s.bus.Subscribe(events.TopicConnStatus)

	go func() {
		defer s.bus.Unsubscribe(unreadSub, events.TopicUnread)
		defer s.bus.Unsubscribe(connSub, events.TopicConnStatus)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-unreadSub:
				if !ok {
					return
				}
				event, ok := raw.(domain.UnreadEvent)
				if !ok {
					continue
				}
				s.handleUnread(event)
			case raw, ok := <-connSub:
				if !ok {
					return
				}
				status, ok := raw.(events.ConnectionStatus)
				if !ok {
					continue
				}
				s.handleConnectionStatus(status)
			}
		}
	}()
}

func (s *NotificationService) handleUnread(event domain.UnreadEvent) {
	if !s.enabled() {
		return
	}

	title := "#" + s.groupTitle(event.GroupID)
	body := strings.TrimSpace(event.Content)
	if body == "" {
		body = "New message"
	}

	s.send(notifications.Payload{
		Title:   title,
		Content: body,
	})
}

// handleConnectionStatus notifies on state flips only; per-retry repeats of
// the same state stay quiet.
func (s *NotificationService) handleConnectionStatus(status events.ConnectionStatus) {
	if status.State == "" {
		return
	}

	s.connStatusMu.Lock()
	if s.lastConnStateSet && s.lastConnState == status.State {
		s.connStatusMu.Unlock()

		return
	}
	s.lastConnState = status.State
	s.lastConnStateSet = true
	s.connStatusMu.Unlock()

	if status.State != events.ConnectionStateConnected &&
		status.State != events.ConnectionStateDisconnected {
		return
	}
	if !s.enabled() {
		return
	}

	details := strings.TrimSpace(status.Target)
	if details == "" {
		details = "No connection details"
	}
	if status.State == events.ConnectionStateDisconnected {
		if errText := strings.TrimSpace(status.Err); errText != "" {
			details = fmt.Sprintf("%s (error: %s)", details, errText)
		}
	}

	s.send(notifications.Payload{
		Title:   fmt.Sprintf("EatUp - %s", status.State),
		Content: details,
	})
}

func (s *NotificationService) enabled() bool {
	cfg := config.Default()
	if s.currentConfig != nil {
		cfg = s.currentConfig()
	}

	return cfg.Notifications.Enabled
}

func (s *NotificationService) groupTitle(groupID string) string {
	if s.groups != nil {
		if group, ok := s.groups.Get(groupID); ok && strings.TrimSpace(group.Name) != "" {
			return group.Name
		}
	}

	return groupID
}

func (s *NotificationService) send(notification notifications.Payload) {
	title := strings.TrimSpace(notification.Title)
	content := strings.TrimSpace(notification.Content)
	if title == "" && content == "" {
		return
	}
	s.logger.Debug("sending notification", "title", title)
	s.sender.Send(notifications.Payload{
		Title:   title,
		Content: content,
	})
}
