package app

import (
	"context"
	"log/slog"

	"eatup/internal/chat"
	"eatup/internal/domain"
)

// cacheBackedHistory answers from the REST backend first and falls back to
// the sqlite snapshot when the fetch fails, so an offline or tokenless
// runtime still shows the last known messages for a group.
type cacheBackedHistory struct {
	remote chat.HistoryLoader
	cache  domain.MessageRepository
	limit  int
	logger *slog.Logger
}

func (h *cacheBackedHistory) FetchMessages(ctx context.Context, group domain.Group) ([]domain.Message, error) {
	msgs, err := h.remote.FetchMessages(ctx, group)
	if err == nil {
		return msgs, nil
	}

	cached, cacheErr := h.cache.ListRecentByGroup(ctx, group.ID, h.limit)
	if cacheErr != nil {
		h.logger.Warn("cached history read failed", "error", cacheErr)

		return nil, err
	}
	if len(cached) == 0 {
		return nil, err
	}
	h.logger.Warn("history fetch failed, serving cached messages", "error", err, "cached", len(cached))

	return cached, nil
}
