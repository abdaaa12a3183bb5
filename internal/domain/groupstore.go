package domain

import (
	"context"
	"sort"
	"sync"

	"eatup/internal/bus"
)

// GroupStore caches the session's group list and tracks per-group
// missed-message counters. It is the read-mostly client copy of backend
// state; the backend stays the owner.
type GroupStore struct {
	mu      sync.RWMutex
	groups  map[string]Group
	changes chan struct{}
}

func NewGroupStore() *GroupStore {
	return &GroupStore{
		groups:  make(map[string]Group),
		changes: make(chan struct{}, 1),
	}
}

// Load replaces the cached group list with a backend snapshot, keeping
// locally-accumulated missed counters for groups that are still present.
func (s *GroupStore) Load(groups []Group) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]Group, len(groups))
	for _, g := range groups {
		if existing, ok := s.groups[g.ID]; ok && g.MissedMessages < existing.MissedMessages {
			g.MissedMessages = existing.MissedMessages
		}
		next[g.ID] = g
	}
	s.groups = next
	s.notify()
}

func (s *GroupStore) Upsert(group Group) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.groups[group.ID] = group
	s.notify()
}

func (s *GroupStore) Get(groupID string) (Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]

	return g, ok
}

// IncrementMissed bumps the unread counter for a group. Unknown group ids
// are ignored; the watcher may still hold stale subscriptions for groups
// the user already left.
func (s *GroupStore) IncrementMissed(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return
	}
	g.MissedMessages++
	s.groups[groupID] = g
	s.notify()
}

// ResetMissed clears the unread counter, typically after the group's chat
// screen emitted its join signal.
func (s *GroupStore) ResetMissed(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok || g.MissedMessages == 0 {
		return
	}
	g.MissedMessages = 0
	s.groups[groupID] = g
	s.notify()
}

// ListSorted returns groups ordered by name for stable presentation.
func (s *GroupStore) ListSorted() []Group {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}

		return out[i].Name < out[j].Name
	})

	return out
}

func (s *GroupStore) Changes() <-chan struct{} {
	return s.changes
}

func (s *GroupStore) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Start consumes unread and group-list events from the bus until ctx ends.
func (s *GroupStore) Start(ctx context.Context, b bus.MessageBus, topicUnread, topicGroups string) {
	unreadSub := b.Subscribe(topicUnread)
	groupsSub := b.Subscribe(topicGroups)

	go func() {
		defer b.Unsubscribe(unreadSub, topicUnread)
		defer b.Unsubscribe(groupsSub, topicGroups)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-unreadSub:
				if !ok {
					return
				}
				if ev, ok := raw.(UnreadEvent); ok {
					s.IncrementMissed(ev.GroupID)
				}
			case raw, ok := <-groupsSub:
				if !ok {
					return
				}
				if groups, ok := raw.([]Group); ok {
					s.Load(groups)
				}
			}
		}
	}()
}
