// Package intent defines the scheduling intents Yotei understands.
//
// A ParsedIntent is the structured outcome of classifying one user message.
// It is immutable once constructed: the pending-request store replaces or
// deletes entries, it never edits them in place.
package intent

import "fmt"

// Kind is the closed set of scheduling intents.
type Kind string

const (
	// KindReminderAdd is a request to create a reminder.
	KindReminderAdd Kind = "reminder.add"
	// KindMeetingAdd is a request to create a meeting.
	KindMeetingAdd Kind = "meeting.add"
)

// Label returns the human-readable noun for the kind, used in confirmation
// summaries ("Reminder", "Meeting").
func (k Kind) Label() string {
	switch k {
	case KindReminderAdd:
		return "Reminder"
	case KindMeetingAdd:
		return "Meeting"
	}
	return string(k)
}

// valid reports whether k is one of the closed intent kinds.
func (k Kind) valid() bool {
	return k == KindReminderAdd || k == KindMeetingAdd
}

// ParsedIntent is a classified, not-yet-confirmed scheduling request.
//
// All fields other than Kind are optional; absence is the empty string
// (or nil for DatePeriod). Time is an opaque "HH:MM:SS" string and Date an
// opaque date string as returned by the NLU service — no parsing happens
// until the eventual commit step.
type ParsedIntent struct {
	Kind    Kind
	Subject string
	Time    string
	Date    string
	// DatePeriod holds an optional [start, end] pair. It round-trips through
	// the store and journal but is ignored by summarization.
	DatePeriod []string
}

// New constructs a ParsedIntent, rejecting kinds outside the closed set.
// This is the only way a ParsedIntent should be created; it keeps an
// unmapped NLU intent name from ever reaching the pending store.
func New(kind Kind, subject, timeOfDay, date string, datePeriod []string) (ParsedIntent, error) {
	if !kind.valid() {
		return ParsedIntent{}, fmt.Errorf("intent: unknown kind %q", kind)
	}
	return ParsedIntent{
		Kind:       kind,
		Subject:    subject,
		Time:       timeOfDay,
		Date:       date,
		DatePeriod: datePeriod,
	}, nil
}

// Clarification is a non-committing turn: the NLU service needs more input
// (or the user merely greeted the assistant). The speech text is relayed to
// the user verbatim and nothing is stored.
type Clarification struct {
	Speech string
}
