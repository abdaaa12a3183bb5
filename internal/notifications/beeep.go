package notifications

import (
	"log/slog"
	"strings"

	"github.com/gen2brain/beeep"
)

// BeeepSender delivers desktop notifications via the beeep library.
type BeeepSender struct {
	appName string
	logger  *slog.Logger
}

func NewBeeepSender(appName string, logger *slog.Logger) *BeeepSender {
	if logger == nil {
		logger = slog.Default().With("component", "notifications")
	}

	return &BeeepSender{appName: appName, logger: logger}
}

func (s *BeeepSender) Send(notification Payload) {
	if s == nil {
		return
	}

	title := strings.TrimSpace(notification.Title)
	content := strings.TrimSpace(notification.Content)
	if title == "" && content == "" {
		return
	}
	if title == "" {
		title = s.appName
	}

	if err := beeep.Notify(title, content, ""); err != nil {
		s.logger.Warn("send desktop notification failed", "error", err)
	}
}
