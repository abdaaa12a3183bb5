package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"eatup/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// InsertConfirmed caches one server-confirmed message. Pending entries carry
// client-only ids and are never written.
func (r *MessageRepo) InsertConfirmed(ctx context.Context, m domain.Message) error {
	if m.Pending || domain.IsPendingID(m.ID) {
		return nil
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO messages(id, group_id, content, sent_at, author_id, author_email, author_first_name, author_name, edited)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			author_id = excluded.author_id,
			author_email = excluded.author_email,
			author_first_name = excluded.author_first_name,
			author_name = excluded.author_name,
			edited = excluded.edited
	`, m.ID, m.GroupID, m.Content, timeToUnixMillis(m.SentAt),
		nullableString(m.Author.ID), nullableString(m.Author.Email),
		nullableString(m.Author.FirstName), nullableString(m.Author.Name),
		boolToInt(m.Edited)); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

// ReplaceGroupSnapshot swaps a group's cached rows for a fresh history
// snapshot. The snapshot is authoritative, so stale rows are dropped.
func (r *MessageRepo) ReplaceGroupSnapshot(ctx context.Context, groupID string, msgs []domain.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("clear group messages: %w", err)
	}
	for _, m := range msgs {
		if m.Pending || domain.IsPendingID(m.ID) {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO messages(id, group_id, content, sent_at, author_id, author_email, author_first_name, author_name, edited)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, m.ID, groupID, m.Content, timeToUnixMillis(m.SentAt),
			nullableString(m.Author.ID), nullableString(m.Author.Email),
			nullableString(m.Author.FirstName), nullableString(m.Author.Name),
			boolToInt(m.Edited)); err != nil {
			return fmt.Errorf("insert snapshot message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}

	return nil
}

// ListRecentByGroup returns up to limit cached messages in chronological
// order.
func (r *MessageRepo) ListRecentByGroup(ctx context.Context, groupID string, limit int) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, group_id, content, sent_at, author_id, author_email, author_first_name, author_name, edited
		FROM messages
		WHERE group_id = ?
		ORDER BY sent_at DESC, id DESC
		LIMIT ?
	`, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages by group: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages by group: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out, nil
}

func scanMessage(scanner interface {
	Scan(dest ...any) error
}) (domain.Message, error) {
	var (
		m         domain.Message
		sentAtMs  int64
		edited    int
		authorID  sql.NullString
		email     sql.NullString
		firstName sql.NullString
		name      sql.NullString
	)
	if err := scanner.Scan(&m.ID, &m.GroupID, &m.Content, &sentAtMs, &authorID, &email, &firstName, &name, &edited); err != nil {
		return domain.Message{}, fmt.Errorf("scan message: %w", err)
	}
	m.SentAt = unixMillisToTime(sentAtMs)
	m.Edited = edited != 0
	m.Author = domain.Author{
		ID:        authorID.String,
		Email:     email.String,
		FirstName: firstName.String,
		Name:      name.String,
	}

	return m, nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}

	return v
}

func boolToInt(v bool) int {
	if v {
		return 1
	}

	return 0
}
