package conversation

import (
	"strings"

	"github.com/akatsune/yotei/internal/yotei/intent"
)

// Decision is the user's answer to a confirmation prompt.
type Decision string

const (
	DecisionConfirm Decision = "confirm"
	DecisionCancel  Decision = "cancel"
)

// Summarize renders a resolved request as a human-readable sentence, e.g.
//
//	Confirmed Meeting to "Budget Review" at 14:00:00.
//	Cancelled Reminder on 2024-05-01.
//
// The field order (subject, time, date) is fixed and part of the contract:
// downstream consumers and the transport callback both echo this string.
// Pure and deterministic; absent fields are simply skipped.
func Summarize(kind intent.Kind, decision Decision, subject, timeOfDay, date string) string {
	var b strings.Builder
	if decision == DecisionConfirm {
		b.WriteString("Confirmed ")
	} else {
		b.WriteString("Cancelled ")
	}
	b.WriteString(kind.Label())
	if subject != "" {
		b.WriteString(` to "`)
		b.WriteString(subject)
		b.WriteString(`"`)
	}
	if timeOfDay != "" {
		b.WriteString(" at ")
		b.WriteString(timeOfDay)
	}
	if date != "" {
		b.WriteString(" on ")
		b.WriteString(date)
	}
	b.WriteString(".")
	return b.String()
}
