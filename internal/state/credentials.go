package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	sqlGetCredential = `SELECT record FROM credentials WHERE user_id = ?`
	sqlPutCredential = `INSERT INTO credentials (user_id, record, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`
	sqlDeleteCredential = `DELETE FROM credentials WHERE user_id = ?`
	sqlListCredentials  = `SELECT user_id FROM credentials ORDER BY user_id`
)

// Credentials is a credential backend storing one row per user. Each
// upsert is a single statement, so records are replaced atomically.
type Credentials struct {
	db *DB
}

// Credentials returns the credential table accessor.
func (d *DB) Credentials() *Credentials {
	return &Credentials{db: d}
}

// Get returns the raw record for userID, or nil if none exists.
func (c *Credentials) Get(ctx context.Context, userID string) ([]byte, error) {
	var blob []byte

	err := c.db.db.QueryRowContext(ctx, sqlGetCredential, userID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("state: reading credential: %w", err)
	}

	return blob, nil
}

// Put inserts or replaces the record for userID.
func (c *Credentials) Put(ctx context.Context, userID string, blob []byte) error {
	if _, err := c.db.db.ExecContext(ctx, sqlPutCredential, userID, blob, c.db.nowFunc().Unix()); err != nil {
		return fmt.Errorf("state: writing credential: %w", err)
	}

	return nil
}

// Delete removes the record for userID and reports whether it existed.
func (c *Credentials) Delete(ctx context.Context, userID string) (bool, error) {
	res, err := c.db.db.ExecContext(ctx, sqlDeleteCredential, userID)
	if err != nil {
		return false, fmt.Errorf("state: deleting credential: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("state: deleting credential: %w", err)
	}

	return n > 0, nil
}

// List returns every stored user ID in sorted order.
func (c *Credentials) List(ctx context.Context) ([]string, error) {
	rows, err := c.db.db.QueryContext(ctx, sqlListCredentials)
	if err != nil {
		return nil, fmt.Errorf("state: listing credentials: %w", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("state: scanning credential row: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("state: iterating credential rows: %w", err)
	}

	return ids, nil
}
