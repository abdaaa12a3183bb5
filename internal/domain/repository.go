package domain

import "context"

type GroupRepository interface {
	Upsert(ctx context.Context, g Group) error
	ResetMissed(ctx context.Context, groupID string) error
	ListSortedByName(ctx context.Context) ([]Group, error)
}

type MessageRepository interface {
	InsertConfirmed(ctx context.Context, m Message) error
	ReplaceGroupSnapshot(ctx context.Context, groupID string, msgs []Message) error
	ListRecentByGroup(ctx context.Context, groupID string, limit int) ([]Message, error)
}
