package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DebtanChowdhury1/QuantoraAI/internal/model"
)

// GetRecipient returns one recipient by email, or (nil, nil) when unknown.
func (s *Store) GetRecipient(email string) (*model.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT email, preferences, last_sent, created_at, updated_at
		FROM recipients WHERE email = ?`, email)
	r, err := scanRecipient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListRecipients returns every recipient.
func (s *Store) ListRecipients() ([]model.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT email, preferences, last_sent, created_at, updated_at
		FROM recipients ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var out []model.Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpsertRecipient writes a recipient's full state keyed by email.
func (s *Store) UpsertRecipient(r *model.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertRecipientLocked(r)
}

// UpsertRecipientThrottles persists a batch of recipients' throttle state.
// Per-recipient failures are collected and returned together so a partial
// batch failure never blocks the rest of the batch.
func (s *Store) UpsertRecipientThrottles(recipients []*model.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, r := range recipients {
		if err := s.upsertRecipientLocked(r); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("upsert throttle for %s: %w", r.Email, err)
		}
	}
	return firstErr
}

func (s *Store) upsertRecipientLocked(r *model.Recipient) error {
	prefs, err := json.Marshal(r.Preferences)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	lastSent := make(map[string]int64, len(r.LastSent))
	for asset, t := range r.LastSent {
		lastSent[asset] = t.Unix()
	}
	throttle, err := json.Marshal(lastSent)
	if err != nil {
		return fmt.Errorf("marshal throttle: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.Exec(`INSERT INTO recipients (email, preferences, last_sent, created_at, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(email) DO UPDATE SET
			preferences=excluded.preferences, last_sent=excluded.last_sent,
			updated_at=excluded.updated_at`,
		r.Email, string(prefs), string(throttle), now, now)
	return err
}

func scanRecipient(row rowScanner) (*model.Recipient, error) {
	var (
		r         model.Recipient
		prefs     string
		lastSent  string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&r.Email, &prefs, &lastSent, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(prefs), &r.Preferences); err != nil {
		return nil, fmt.Errorf("unmarshal preferences: %w", err)
	}
	var throttle map[string]int64
	if err := json.Unmarshal([]byte(lastSent), &throttle); err != nil {
		return nil, fmt.Errorf("unmarshal throttle: %w", err)
	}
	r.LastSent = make(map[string]time.Time, len(throttle))
	for asset, ts := range throttle {
		r.LastSent[asset] = time.Unix(ts, 0).UTC()
	}
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	r.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &r, nil
}
