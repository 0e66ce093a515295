package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoSession means no session row is stored.
var ErrNoSession = errors.New("no stored session")

// StoredSession is the persisted credential: the single token value the core
// reads, written only by the auth boundary (login/logout/401).
type StoredSession struct {
	Username  string
	Token     string
	DeviceID  string
	UpdatedAt time.Time
}

// SessionRepository handles the single-row session table.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a SessionRepository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Save stores the session, replacing any previous one. The device id is
// minted once and survives token rotation.
func (r *SessionRepository) Save(ctx context.Context, username, token string) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		deviceID := ""
		err := tx.QueryRowContext(ctx, `SELECT device_id FROM session WHERE id = 1`).Scan(&deviceID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if deviceID == "" {
			deviceID = uuid.New().String()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO session (id, username, token, device_id, updated_at)
			VALUES (1, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				username = excluded.username,
				token = excluded.token,
				device_id = excluded.device_id,
				updated_at = excluded.updated_at
		`, username, token, deviceID, time.Now().UTC().Format(time.RFC3339))
		return err
	})
}

// Load retrieves the stored session, or ErrNoSession.
func (r *SessionRepository) Load(ctx context.Context) (*StoredSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT username, token, device_id, updated_at FROM session WHERE id = 1
	`)

	var s StoredSession
	var updatedAt string
	if err := row.Scan(&s.Username, &s.Token, &s.DeviceID, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &s, nil
}

// Clear removes the stored session. No-op when none is stored.
func (r *SessionRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM session WHERE id = 1`)
	return err
}
