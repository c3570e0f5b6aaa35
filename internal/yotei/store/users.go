package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// DefaultMeetingLength is the meeting duration assumed when the user never
// configured one.
const DefaultMeetingLength = 30 * time.Minute

// User is one chat participant known to Yotei.
type User struct {
	// MXID is the user's Matrix ID (e.g. "@alice:example.com").
	MXID        string
	DisplayName string
	Email       string
	// GoogleTokens holds the calendar OAuth token bundle; nil until the user
	// completes the authorization flow.
	GoogleTokens *oauth2.Token
	// MeetingLength is the user's default meeting duration.
	MeetingLength time.Duration
	CreatedAt     time.Time
}

// FindOrCreateUser returns the user record for mxid, inserting a fresh one
// with defaults when none exists.
func (s *Store) FindOrCreateUser(ctx context.Context, mxid string) (*User, error) {
	u, err := s.GetUser(ctx, mxid)
	if err == nil {
		return u, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (mxid, created_at) VALUES (?, ?)
	`, mxid, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", mxid, err)
	}
	return &User{
		MXID:          mxid,
		MeetingLength: DefaultMeetingLength,
		CreatedAt:     now,
	}, nil
}

// GetUser returns the user record for mxid. Returns sql.ErrNoRows when the
// user is unknown.
func (s *Store) GetUser(ctx context.Context, mxid string) (*User, error) {
	u := &User{MXID: mxid}
	var tokensJSON string
	var lengthMinutes int

	err := s.db.QueryRowContext(ctx, `
		SELECT display_name, email, google_tokens, default_meeting_length_minutes, created_at
		FROM users WHERE mxid = ?
	`, mxid).Scan(&u.DisplayName, &u.Email, &tokensJSON, &lengthMinutes, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", mxid, err)
	}

	u.MeetingLength = time.Duration(lengthMinutes) * time.Minute
	if tokensJSON != "" {
		var tok oauth2.Token
		if err := json.Unmarshal([]byte(tokensJSON), &tok); err != nil {
			return nil, fmt.Errorf("failed to decode google tokens for %s: %w", mxid, err)
		}
		u.GoogleTokens = &tok
	}
	return u, nil
}

// SetGoogleTokens stores the OAuth token bundle obtained from the calendar
// authorization callback.
func (s *Store) SetGoogleTokens(ctx context.Context, mxid string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode google tokens: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET google_tokens = ? WHERE mxid = ?
	`, string(data), mxid)
	if err != nil {
		return fmt.Errorf("failed to store google tokens for %s: %w", mxid, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("unknown user: %s", mxid)
	}
	return nil
}

// UserCount returns the number of known users. Used by the HTTP status
// endpoint.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
