package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MeetingStatus is the lifecycle state of a meeting document.
type MeetingStatus string

const (
	MeetingPending   MeetingStatus = "pending"
	MeetingScheduled MeetingStatus = "scheduled"
)

// Reminder is a persisted reminder record.
type Reminder struct {
	ID       string
	UserMXID string
	Subject  string
	// Day is the reminder date in YYYY-MM-DD form, kept opaque as delivered
	// by the NLU service.
	Day       string
	EventID   string
	CreatedAt time.Time
}

// Meeting is a persisted meeting record.
type Meeting struct {
	ID            string
	RequesterMXID string
	Subject       string
	Location      string
	StartAt       time.Time
	EndAt         time.Time
	Invitees      []string
	Status        MeetingStatus
	CreatedAt     time.Time
}

// Invite links an invitee to a calendar event.
type Invite struct {
	ID            string
	EventID       string
	InviteeMXID   string
	RequesterMXID string
	Status        string
	CreatedAt     time.Time
}

// CreateReminder persists a reminder and returns it with a generated ID.
func (s *Store) CreateReminder(ctx context.Context, userMXID, subject, day string) (*Reminder, error) {
	r := &Reminder{
		ID:        uuid.NewString(),
		UserMXID:  userMXID,
		Subject:   subject,
		Day:       day,
		CreatedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, user_mxid, subject, day, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.UserMXID, r.Subject, r.Day, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}
	return r, nil
}

// RemindersFor returns all reminders for a user, newest first.
func (s *Store) RemindersFor(ctx context.Context, userMXID string) ([]*Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_mxid, subject, day, event_id, created_at
		FROM reminders WHERE user_mxid = ?
		ORDER BY created_at DESC
	`, userMXID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []*Reminder
	for rows.Next() {
		r := &Reminder{}
		if err := rows.Scan(&r.ID, &r.UserMXID, &r.Subject, &r.Day, &r.EventID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminders: %w", err)
	}
	return reminders, nil
}

// CreateMeeting persists a meeting in pending status and returns it with a
// generated ID.
func (s *Store) CreateMeeting(ctx context.Context, m *Meeting) (*Meeting, error) {
	invitees, err := json.Marshal(m.Invitees)
	if err != nil {
		return nil, fmt.Errorf("failed to encode invitees: %w", err)
	}

	created := *m
	created.ID = uuid.NewString()
	created.Status = MeetingPending
	created.CreatedAt = time.Now()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO meetings (id, requester_mxid, subject, location, start_at, end_at, invitees, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, created.ID, created.RequesterMXID, created.Subject, created.Location,
		created.StartAt, created.EndAt, string(invitees), string(created.Status), created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create meeting: %w", err)
	}
	return &created, nil
}

// MarkMeetingScheduled transitions a meeting from pending to scheduled.
func (s *Store) MarkMeetingScheduled(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE meetings SET status = ? WHERE id = ? AND status = ?
	`, string(MeetingScheduled), id, string(MeetingPending))
	if err != nil {
		return fmt.Errorf("failed to mark meeting scheduled: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("meeting %s not found or not pending", id)
	}
	return nil
}

// CreateInvite persists an invite linking an invitee to a calendar event.
func (s *Store) CreateInvite(ctx context.Context, eventID, inviteeMXID, requesterMXID string) (*Invite, error) {
	inv := &Invite{
		ID:            uuid.NewString(),
		EventID:       eventID,
		InviteeMXID:   inviteeMXID,
		RequesterMXID: requesterMXID,
		Status:        "pending",
		CreatedAt:     time.Now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invites (id, event_id, invitee_mxid, requester_mxid, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.EventID, inv.InviteeMXID, inv.RequesterMXID, inv.Status, inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}
	return inv, nil
}
