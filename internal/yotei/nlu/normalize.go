package nlu

import (
	"fmt"
	"strings"

	"github.com/akatsune/yotei/internal/yotei/intent"
)

// Welcome-intent markers. A welcome turn is conversational noise ("hi") and
// must never produce a committable intent, whatever else the response says.
const (
	welcomeAction     = "input.welcome"
	welcomeIntentName = "Default Welcome Intent"
)

// intentKinds is the closed mapping from service-side intent names to Yotei
// intent kinds. Names outside this table fail with ErrUnsupportedIntent.
var intentKinds = map[string]intent.Kind{
	"reminderme:add": intent.KindReminderAdd,
	"meeting:add":    intent.KindMeetingAdd,
}

// Normalized is the outcome of normalizing one raw response: exactly one of
// Intent or Clarification is set.
type Normalized struct {
	Intent        *intent.ParsedIntent
	Clarification *intent.Clarification
}

// Normalize converts a raw classification response into either a ParsedIntent
// or a Clarification. It is a pure function of its input; in particular it
// runs before any pending-store mutation, so a failure here leaves the
// conversation state untouched.
func Normalize(raw *RawResponse) (*Normalized, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: nil response", ErrMalformedClassification)
	}
	res := raw.Result

	// Slot-filling in progress, or a greeting: relay the service's speech
	// verbatim and commit nothing.
	if res.ActionIncomplete || res.Action == welcomeAction || res.Metadata.IntentName == welcomeIntentName {
		return &Normalized{Clarification: &intent.Clarification{Speech: res.Fulfillment.Speech}}, nil
	}

	name := res.Metadata.IntentName
	if name == "" {
		return nil, fmt.Errorf("%w: complete turn without an intent name", ErrMalformedClassification)
	}

	kind, ok := intentKinds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedIntent, name)
	}

	parsed, err := intent.New(kind,
		joinSubject(res.Parameters.Subject),
		res.Parameters.Time,
		res.Parameters.Date,
		res.Parameters.DatePeriod,
	)
	if err != nil {
		return nil, err
	}
	return &Normalized{Intent: &parsed}, nil
}

// joinSubject joins the subject token list with single spaces.
// An empty or absent list yields an absent subject.
func joinSubject(tokens []string) string {
	return strings.Join(tokens, " ")
}
