// Package nlu provides the natural-language classification layer for Yotei.
//
// The NLU layer sits between the raw chat message and the conversation state
// machine. Its sole responsibility is translation: send the user's sentence
// to the external classification service and normalize the raw response into
// either a ParsedIntent (a committable scheduling request) or a Clarification
// (a prompt to relay verbatim, changing no state).
//
// The service itself is a black box behind the Provider interface; the
// production implementation speaks the Dialogflow v1 query protocol.
package nlu

import (
	"context"
	"errors"
)

// ErrUpstreamUnavailable is returned when the classification service cannot
// be reached or answers with a non-2xx status. The user's turn was not
// classified; callers must surface a failure reply rather than stay silent.
var ErrUpstreamUnavailable = errors.New("nlu: classification service unavailable")

// ErrUpstreamTimeout is returned when the classification call exceeds its
// deadline. Distinct from ErrUpstreamUnavailable so operators can tell a
// slow service from a dead one.
var ErrUpstreamTimeout = errors.New("nlu: classification service timed out")

// ErrUnsupportedIntent is returned by Normalize when the service resolves an
// intent name outside the closed mapping table. Failing closed here keeps an
// unmapped intent string from silently propagating into the pending store.
var ErrUnsupportedIntent = errors.New("nlu: unsupported intent")

// ErrMalformedClassification is returned by Normalize when a complete turn is
// missing a required field (no intent name). This indicates a service-side
// contract violation, not normal flow.
var ErrMalformedClassification = errors.New("nlu: malformed classification response")

// RawResponse is the wire shape of a Dialogflow v1 query response, reduced to
// the fields Yotei consumes.
type RawResponse struct {
	Result RawResult `json:"result"`
	Status RawStatus `json:"status"`
}

// RawResult carries the classification outcome for one query.
type RawResult struct {
	// Action is the machine-readable action key (e.g. "input.welcome").
	Action string `json:"action"`
	// ActionIncomplete is true while the service is still slot-filling;
	// the fulfillment speech then asks the user for the missing piece.
	ActionIncomplete bool          `json:"actionIncomplete"`
	Metadata         RawMetadata   `json:"metadata"`
	Fulfillment      RawFulfill    `json:"fulfillment"`
	Parameters       RawParameters `json:"parameters"`
}

// RawMetadata names the matched intent.
type RawMetadata struct {
	IntentName string `json:"intentName"`
}

// RawFulfill carries the speech the service composed for this turn.
type RawFulfill struct {
	Speech string `json:"speech"`
}

// RawParameters is the loosely-typed slot bag. Fields are conditionally
// meaningful depending on the matched intent; Normalize turns them into a
// kind-checked ParsedIntent.
type RawParameters struct {
	Subject    []string `json:"subject"`
	Time       string   `json:"time"`
	Date       string   `json:"date"`
	DatePeriod []string `json:"date-period"`
}

// RawStatus is the v1 protocol status envelope.
type RawStatus struct {
	Code      int    `json:"code"`
	ErrorType string `json:"errorType"`
}

// Query is a single classification request.
type Query struct {
	// Text is the raw message sent by the user.
	Text string
	// SessionID scopes slot-filling context on the service side. Yotei uses
	// one session per chat user so partially-filled intents do not bleed
	// between users.
	SessionID string
	// Language is the BCP-47 language tag, e.g. "en".
	Language string
}

// Provider classifies free-form user messages.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must honour ctx cancellation; the state machine never holds a per-user
// lock across a Classify call.
type Provider interface {
	Classify(ctx context.Context, q Query) (*RawResponse, error)
}
