package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"eatup/internal/domain"
)

type GroupRepo struct {
	db *sql.DB
}

func NewGroupRepo(db *sql.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// Upsert caches a group row. The missed counter only ever grows here; resets
// go through ResetMissed so a stale snapshot cannot resurrect cleared badges.
func (r *GroupRepo) Upsert(ctx context.Context, g domain.Group) error {
	membersJSON, err := encodeMembers(g.MemberNames)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO groups(id, name, missed, members_json, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			members_json = excluded.members_json,
			missed = CASE
				WHEN excluded.missed > groups.missed THEN excluded.missed
				ELSE groups.missed
			END,
			updated_at = excluded.updated_at
	`, g.ID, g.Name, g.MissedMessages, membersJSON, timeToUnixMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}

	return nil
}

func (r *GroupRepo) ResetMissed(ctx context.Context, groupID string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE groups SET missed = 0 WHERE id = ?
	`, groupID); err != nil {
		return fmt.Errorf("reset group missed counter: %w", err)
	}

	return nil
}

func (r *GroupRepo) ListSortedByName(ctx context.Context) ([]domain.Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, missed, members_json
		FROM groups
		ORDER BY name COLLATE NOCASE ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make([]domain.Group, 0)
	for rows.Next() {
		var (
			group      domain.Group
			membersRaw sql.NullString
		)
		if err := rows.Scan(&group.ID, &group.Name, &group.MissedMessages, &membersRaw); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		if membersRaw.Valid {
			group.MemberNames, err = decodeMembers(membersRaw.String)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}

	return out, nil
}

func encodeMembers(names []string) (any, error) {
	if len(names) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return nil, fmt.Errorf("encode group members: %w", err)
	}

	return string(raw), nil
}

func decodeMembers(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("decode group members: %w", err)
	}

	return names, nil
}
