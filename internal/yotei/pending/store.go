// Package pending implements the per-user pending-request store.
//
// Each chat user has at most one outstanding ParsedIntent awaiting a
// confirm/cancel decision. The store is the single source of truth for the
// conversation state machine: an entry present means the user is blocked in
// AwaitingConfirmation, absence means Idle.
package pending

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/akatsune/yotei/internal/yotei/intent"
)

// ErrNoPending is returned by Resolve when the user has no outstanding
// request. A confirm/cancel action reaching this state is a transport or
// client bug and must be reported, not silently ignored.
var ErrNoPending = errors.New("pending: no outstanding request for user")

// Journal persists pending entries so confirmations survive a restart.
// Implementations must tolerate Delete for keys they never saw.
// The production implementation is store.PendingJournal.
type Journal interface {
	Put(ctx context.Context, userID string, in intent.ParsedIntent) error
	Delete(ctx context.Context, userID string) error
	All(ctx context.Context) (map[string]intent.ParsedIntent, error)
}

// Store maps user IDs to at most one outstanding ParsedIntent each.
//
// TryBegin/Resolve are atomic with respect to concurrent events for the same
// user: the mutex is held only around the map check/mutation, never across
// network calls, so one slow classification does not serialize everyone.
type Store struct {
	mu      sync.Mutex
	entries map[string]intent.ParsedIntent
	journal Journal
}

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{entries: make(map[string]intent.ParsedIntent)}
}

// NewWithJournal creates a Store backed by a persistence journal and replays
// any entries that survived a previous run. Journal write failures later on
// are logged and do not block the in-memory transition: durability is an
// upgrade, not a gate.
func NewWithJournal(ctx context.Context, j Journal) (*Store, error) {
	entries, err := j.All(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = make(map[string]intent.ParsedIntent)
	}
	if n := len(entries); n > 0 {
		slog.Info("pending: replayed journal entries", "count", n)
	}
	return &Store{entries: entries, journal: j}, nil
}

// TryBegin inserts the intent for userID unless the user already has an
// outstanding request. Returns true when the insert happened. The existing
// entry is never overwritten; the caller must tell the user to resolve the
// outstanding request first.
func (s *Store) TryBegin(ctx context.Context, userID string, in intent.ParsedIntent) bool {
	s.mu.Lock()
	if _, exists := s.entries[userID]; exists {
		s.mu.Unlock()
		return false
	}
	s.entries[userID] = in
	s.mu.Unlock()

	if s.journal != nil {
		if err := s.journal.Put(ctx, userID, in); err != nil {
			slog.Warn("pending: journal put failed", "user", userID, "err", err)
		}
	}
	return true
}

// Resolve removes and returns the entry for userID. The entry is removed
// unconditionally — which button the user pressed is the caller's concern.
func (s *Store) Resolve(ctx context.Context, userID string) (intent.ParsedIntent, error) {
	s.mu.Lock()
	in, exists := s.entries[userID]
	if exists {
		delete(s.entries, userID)
	}
	s.mu.Unlock()

	if !exists {
		return intent.ParsedIntent{}, ErrNoPending
	}

	if s.journal != nil {
		if err := s.journal.Delete(ctx, userID); err != nil {
			slog.Warn("pending: journal delete failed", "user", userID, "err", err)
		}
	}
	return in, nil
}

// Has reports whether userID has an outstanding request.
func (s *Store) Has(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.entries[userID]
	return exists
}

// Len returns the number of outstanding requests across all users.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
