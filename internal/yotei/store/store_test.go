package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/akatsune/yotei/internal/yotei/intent"
	"github.com/akatsune/yotei/internal/yotei/pending"
	"github.com/akatsune/yotei/internal/yotei/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "yotei.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFindOrCreateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.FindOrCreateUser(ctx, "@alice:example.com")
	if err != nil {
		t.Fatalf("FindOrCreateUser: %v", err)
	}
	if u.MXID != "@alice:example.com" {
		t.Errorf("mxid = %q", u.MXID)
	}
	if u.MeetingLength != store.DefaultMeetingLength {
		t.Errorf("meeting length = %v, want %v", u.MeetingLength, store.DefaultMeetingLength)
	}
	if u.GoogleTokens != nil {
		t.Error("new user should have no tokens")
	}

	// Second call returns the existing record instead of inserting.
	again, err := s.FindOrCreateUser(ctx, "@alice:example.com")
	if err != nil {
		t.Fatalf("second FindOrCreateUser: %v", err)
	}
	if again.MXID != u.MXID {
		t.Errorf("mxid = %q", again.MXID)
	}

	n, err := s.UserCount(ctx)
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if n != 1 {
		t.Errorf("user count = %d, want 1", n)
	}
}

func TestGetUser_Unknown(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetUser(context.Background(), "@nobody:example.com")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestSetGoogleTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.FindOrCreateUser(ctx, "@alice:example.com"); err != nil {
		t.Fatalf("FindOrCreateUser: %v", err)
	}

	tok := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).UTC(),
	}
	if err := s.SetGoogleTokens(ctx, "@alice:example.com", tok); err != nil {
		t.Fatalf("SetGoogleTokens: %v", err)
	}

	u, err := s.GetUser(ctx, "@alice:example.com")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.GoogleTokens == nil {
		t.Fatal("tokens should round-trip")
	}
	if u.GoogleTokens.AccessToken != "access" || u.GoogleTokens.RefreshToken != "refresh" {
		t.Errorf("tokens corrupted: %+v", u.GoogleTokens)
	}
}

func TestSetGoogleTokens_UnknownUser(t *testing.T) {
	s := newTestStore(t)

	err := s.SetGoogleTokens(context.Background(), "@nobody:example.com", &oauth2.Token{AccessToken: "x"})
	if err == nil {
		t.Fatal("expected an error for an unknown user")
	}
}

func TestReminders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.FindOrCreateUser(ctx, "@alice:example.com"); err != nil {
		t.Fatalf("FindOrCreateUser: %v", err)
	}

	r, err := s.CreateReminder(ctx, "@alice:example.com", "water the plants", "2024-05-01")
	if err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}
	if r.ID == "" {
		t.Error("reminder should get a generated ID")
	}

	list, err := s.RemindersFor(ctx, "@alice:example.com")
	if err != nil {
		t.Fatalf("RemindersFor: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 reminder, got %d", len(list))
	}
	if list[0].Subject != "water the plants" || list[0].Day != "2024-05-01" {
		t.Errorf("reminder fields corrupted: %+v", list[0])
	}

	other, err := s.RemindersFor(ctx, "@bob:example.com")
	if err != nil {
		t.Fatalf("RemindersFor other user: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("reminders must be scoped per user, got %d", len(other))
	}
}

func TestMeetingLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.FindOrCreateUser(ctx, "@alice:example.com"); err != nil {
		t.Fatalf("FindOrCreateUser: %v", err)
	}

	start := time.Now().Add(time.Hour).Truncate(time.Second)
	m, err := s.CreateMeeting(ctx, &store.Meeting{
		RequesterMXID: "@alice:example.com",
		Subject:       "Budget Review",
		StartAt:       start,
		EndAt:         start.Add(30 * time.Minute),
		Invitees:      []string{"@bob:example.com"},
	})
	if err != nil {
		t.Fatalf("CreateMeeting: %v", err)
	}
	if m.ID == "" {
		t.Error("meeting should get a generated ID")
	}
	if m.Status != store.MeetingPending {
		t.Errorf("new meeting status = %q, want pending", m.Status)
	}

	if err := s.MarkMeetingScheduled(ctx, m.ID); err != nil {
		t.Fatalf("MarkMeetingScheduled: %v", err)
	}
	// Second transition must fail: the meeting is no longer pending.
	if err := s.MarkMeetingScheduled(ctx, m.ID); err == nil {
		t.Error("scheduling an already scheduled meeting should fail")
	}
}

func TestCreateInvite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv, err := s.CreateInvite(ctx, "event-1", "@bob:example.com", "@alice:example.com")
	if err != nil {
		t.Fatalf("CreateInvite: %v", err)
	}
	if inv.ID == "" || inv.Status != "pending" {
		t.Errorf("unexpected invite: %+v", inv)
	}
}

func TestPendingJournal_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	j := s.PendingJournal()

	in, err := intent.New(intent.KindMeetingAdd, "Budget Review", "14:00:00", "2024-05-01",
		[]string{"2024-05-01", "2024-05-03"})
	if err != nil {
		t.Fatalf("intent.New: %v", err)
	}

	if err := j.Put(ctx, "@alice:example.com", in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	all, err := j.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	got, ok := all["@alice:example.com"]
	if !ok {
		t.Fatal("journaled entry missing")
	}
	if got.Kind != intent.KindMeetingAdd || got.Subject != "Budget Review" ||
		got.Time != "14:00:00" || got.Date != "2024-05-01" {
		t.Errorf("entry corrupted: %+v", got)
	}
	if len(got.DatePeriod) != 2 || got.DatePeriod[1] != "2024-05-03" {
		t.Errorf("date period corrupted: %v", got.DatePeriod)
	}

	if err := j.Delete(ctx, "@alice:example.com"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	all, err = j.All(ctx)
	if err != nil {
		t.Fatalf("All after delete: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("journal should be empty, got %d entries", len(all))
	}
}

func TestPendingJournal_PutUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	j := s.PendingJournal()

	first, _ := intent.New(intent.KindReminderAdd, "old", "", "", nil)
	second, _ := intent.New(intent.KindMeetingAdd, "new", "", "", nil)

	if err := j.Put(ctx, "@alice:example.com", first); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := j.Put(ctx, "@alice:example.com", second); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	all, err := j.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(all))
	}
	if all["@alice:example.com"].Subject != "new" {
		t.Errorf("Put should replace, got %+v", all["@alice:example.com"])
	}
}

func TestPendingJournal_DeleteMissing(t *testing.T) {
	s := newTestStore(t)

	if err := s.PendingJournal().Delete(context.Background(), "@nobody:example.com"); err != nil {
		t.Fatalf("deleting a missing row should be a no-op, got %v", err)
	}
}

func TestPendingJournal_ReplayIntoStore(t *testing.T) {
	// Entries journaled before a restart must be visible in a fresh
	// pending store built over the same database.
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := store.New(filepath.Join(dir, "yotei.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	in, _ := intent.New(intent.KindReminderAdd, "water plants", "09:00:00", "2024-05-01", nil)
	if err := s1.PendingJournal().Put(ctx, "@alice:example.com", in); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s1.Close()

	s2, err := store.New(filepath.Join(dir, "yotei.db"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	ps, err := pending.NewWithJournal(ctx, s2.PendingJournal())
	if err != nil {
		t.Fatalf("pending.NewWithJournal: %v", err)
	}
	if !ps.Has("@alice:example.com") {
		t.Fatal("journaled entry should be replayed on startup")
	}
	got, err := ps.Resolve(ctx, "@alice:example.com")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Subject != "water plants" {
		t.Errorf("replayed entry corrupted: %+v", got)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "yotei.db")

	s1, err := store.New(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s1.Close()

	// Reopening must not re-apply migrations or fail on existing tables.
	s2, err := store.New(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	s2.Close()
}
