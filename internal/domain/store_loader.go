package domain

import (
	"context"
	"fmt"
)

// LoadGroupStoreFromCache seeds the in-memory group list from the local cache
// so the app has something to show before the backend answers.
func LoadGroupStoreFromCache(ctx context.Context, groups *GroupStore, groupRepo GroupRepository) error {
	items, err := groupRepo.ListSortedByName(ctx)
	if err != nil {
		return fmt.Errorf("load groups from cache: %w", err)
	}

	groups.Load(items)

	return nil
}
