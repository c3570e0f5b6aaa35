package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akatsune/yotei/internal/yotei/intent"
)

// PendingJournal persists outstanding confirmation requests so they survive a
// restart. It implements pending.Journal; the in-memory store remains the
// source of truth and treats journal failures as non-fatal.
type PendingJournal struct {
	store *Store
}

// PendingJournal returns the journal view over this store.
func (s *Store) PendingJournal() *PendingJournal {
	return &PendingJournal{store: s}
}

// Put upserts the journal row for userID. Upsert rather than insert: the
// in-memory store already enforces the single-slot invariant, and replaying a
// duplicate Put after a partial failure must not error.
func (j *PendingJournal) Put(ctx context.Context, userID string, in intent.ParsedIntent) error {
	period, err := encodePeriod(in.DatePeriod)
	if err != nil {
		return err
	}
	_, err = j.store.db.ExecContext(ctx, `
		INSERT INTO pending_requests (user_mxid, intent_kind, subject, time_of_day, date, date_period, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_mxid) DO UPDATE SET
			intent_kind = excluded.intent_kind,
			subject = excluded.subject,
			time_of_day = excluded.time_of_day,
			date = excluded.date,
			date_period = excluded.date_period,
			created_at = excluded.created_at
	`, userID, string(in.Kind), in.Subject, in.Time, in.Date, period, time.Now())
	if err != nil {
		return fmt.Errorf("failed to journal pending request: %w", err)
	}
	return nil
}

// Delete removes the journal row for userID. Missing rows are not an error.
func (j *PendingJournal) Delete(ctx context.Context, userID string) error {
	if _, err := j.store.db.ExecContext(ctx,
		"DELETE FROM pending_requests WHERE user_mxid = ?", userID); err != nil {
		return fmt.Errorf("failed to delete journaled pending request: %w", err)
	}
	return nil
}

// All returns every journaled pending request, keyed by user. Rows whose
// intent kind no longer round-trips through the constructor are dropped with
// a log line rather than poisoning startup.
func (j *PendingJournal) All(ctx context.Context) (map[string]intent.ParsedIntent, error) {
	rows, err := j.store.db.QueryContext(ctx, `
		SELECT user_mxid, intent_kind, subject, time_of_day, date, date_period
		FROM pending_requests
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending journal: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]intent.ParsedIntent)
	for rows.Next() {
		var userID, kind, subject, timeOfDay, date, periodJSON string
		if err := rows.Scan(&userID, &kind, &subject, &timeOfDay, &date, &periodJSON); err != nil {
			return nil, fmt.Errorf("failed to scan pending journal row: %w", err)
		}
		period, err := decodePeriod(periodJSON)
		if err != nil {
			return nil, err
		}
		in, err := intent.New(intent.Kind(kind), subject, timeOfDay, date, period)
		if err != nil {
			// Kind written by an older or newer build; skip the row.
			continue
		}
		entries[userID] = in
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending journal: %w", err)
	}
	return entries, nil
}

func encodePeriod(period []string) (string, error) {
	if len(period) == 0 {
		return "", nil
	}
	data, err := json.Marshal(period)
	if err != nil {
		return "", fmt.Errorf("failed to encode date period: %w", err)
	}
	return string(data), nil
}

func decodePeriod(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var period []string
	if err := json.Unmarshal([]byte(s), &period); err != nil {
		return nil, fmt.Errorf("failed to decode date period: %w", err)
	}
	return period, nil
}
