package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// DraftRepository persists unsent compose text per chat, so switching chats
// or restarting the client does not lose a half-written message.
type DraftRepository struct {
	db *DB
}

// NewDraftRepository creates a DraftRepository.
func NewDraftRepository(db *DB) *DraftRepository {
	return &DraftRepository{db: db}
}

// Save stores the draft for a chat. An empty draft deletes the row.
func (r *DraftRepository) Save(ctx context.Context, chatID int64, content string) error {
	if content == "" {
		return r.Delete(ctx, chatID)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO drafts (chat_id, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at
	`, chatID, content, time.Now().UTC().Format(time.RFC3339))
	return err
}

// Load retrieves the draft for a chat, or "" when none is stored.
func (r *DraftRepository) Load(ctx context.Context, chatID int64) (string, error) {
	var content string
	err := r.db.QueryRowContext(ctx, `
		SELECT content FROM drafts WHERE chat_id = ?
	`, chatID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return content, nil
}

// Delete removes the draft for a chat. No-op when absent.
func (r *DraftRepository) Delete(ctx context.Context, chatID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM drafts WHERE chat_id = ?`, chatID)
	return err
}
