package domain

import (
	"context"

	"eatup/internal/bus"
	"eatup/internal/events"
)

// WriteQueue serializes cache writes coming from async domain events.
type WriteQueue interface {
	Enqueue(name string, fn func(context.Context) error)
}

// StartPersistenceProjection mirrors confirmed messages, history snapshots and
// group-list updates from the bus into the local cache. Pending messages never
// reach the bus topics it consumes, so the cache only ever holds server truth.
func StartPersistenceProjection(ctx context.Context, b bus.MessageBus, queue WriteQueue, groupRepo GroupRepository, msgRepo MessageRepository) {
	confirmedSub := b.Subscribe(events.TopicMessageConfirmed)
	historySub := b.Subscribe(events.TopicHistoryLoaded)
	groupsSub := b.Subscribe(events.TopicGroupsChanged)

	go func() {
		defer b.Unsubscribe(confirmedSub, events.TopicMessageConfirmed)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-confirmedSub:
				if !ok {
					return
				}
				msg, ok := raw.(Message)
				if !ok {
					continue
				}
				queue.Enqueue("insert_message", func(writeCtx context.Context) error {
					return msgRepo.InsertConfirmed(writeCtx, msg)
				})
			}
		}
	}()

	go func() {
		defer b.Unsubscribe(historySub, events.TopicHistoryLoaded)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-historySub:
				if !ok {
					return
				}
				snapshot, ok := raw.(HistorySnapshot)
				if !ok {
					continue
				}
				queue.Enqueue("replace_group_snapshot", func(writeCtx context.Context) error {
					return msgRepo.ReplaceGroupSnapshot(writeCtx, snapshot.GroupID, snapshot.Messages)
				})
			}
		}
	}()

	go func() {
		defer b.Unsubscribe(groupsSub, events.TopicGroupsChanged)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-groupsSub:
				if !ok {
					return
				}
				groups, ok := raw.([]Group)
				if !ok {
					continue
				}
				for _, g := range groups {
					group := g
					queue.Enqueue("upsert_group", func(writeCtx context.Context) error {
						return groupRepo.Upsert(writeCtx, group)
					})
				}
			}
		}
	}()
}
