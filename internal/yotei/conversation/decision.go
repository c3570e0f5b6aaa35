package conversation

import (
	"errors"
	"strings"
)

// ErrNotADecision is returned by ParseDecision when the message is not a
// confirm/cancel reply. Callers fall through to normal message handling.
var ErrNotADecision = errors.New("conversation: not a confirm/cancel decision")

// decisionWords maps accepted reply words to decisions. The "yes"/"no"
// aliases match the values carried by the HTTP action callback buttons, so a
// user typing what the button would have sent still resolves their request.
var decisionWords = map[string]Decision{
	"confirm": DecisionConfirm,
	"yes":     DecisionConfirm,
	"cancel":  DecisionCancel,
	"no":      DecisionCancel,
}

// ParseDecision parses a plain chat message into a confirmation decision.
// Matching is case-insensitive and ignores surrounding whitespace; anything
// longer than the single decision word is ErrNotADecision, because "cancel
// the meeting tomorrow" is a new request, not an answer.
func ParseDecision(text string) (Decision, error) {
	word := strings.ToLower(strings.TrimSpace(text))
	if d, ok := decisionWords[word]; ok {
		return d, nil
	}
	return "", ErrNotADecision
}
