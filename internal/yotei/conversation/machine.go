// Package conversation implements the per-user conversation state machine
// and confirmation protocol.
//
// Each user is in one of two states, encoded by pending-store membership:
//
//	Idle                  — no entry; a message is classified and, when it
//	                        yields a committable intent, proposed for
//	                        confirmation.
//	AwaitingConfirmation  — entry present; further messages are blocked with
//	                        a notice until a confirm/cancel decision arrives.
//
// Decisions resolve the pending entry unconditionally and reply with a
// deterministic summary of what was confirmed or cancelled.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/akatsune/yotei/internal/yotei/nlu"
	"github.com/akatsune/yotei/internal/yotei/pending"
)

// User-facing texts. BlockedMessage keeps the original bot's wording.
const (
	// BlockedMessage is sent when a message arrives while a request is pending.
	BlockedMessage = "Looks like you have a response to answer, please Confirm or Cancel."
	// FailureMessage is the best-effort generic reply when classification
	// fails. The turn is never silently dropped when a reply is possible.
	FailureMessage = "Sorry, I couldn't process that right now. Please try again."
	// RateLimitedMessage is sent when the user exceeds the classification
	// call limit; no upstream call is made.
	RateLimitedMessage = "You're sending requests faster than I can schedule them. Give me a moment and try again."
)

// InboundMessage is one free-text chat message delivered by the transport.
type InboundMessage struct {
	UserID    string
	ChannelID string
	Text      string
}

// ConfirmAction is one confirm/cancel decision, produced by the transport
// from either a button callback or a typed reply. Consumed exactly once.
type ConfirmAction struct {
	UserID    string
	ChannelID string
	Decision  Decision
}

// Choice is one option of a mutually exclusive confirm/cancel affordance.
type Choice struct {
	Name  string
	Value string
	Label string
}

// Reply is an outbound message. Choices, when present, carry the
// confirm/cancel affordance for transports that can render buttons; text
// transports describe the options in the message body instead.
type Reply struct {
	ChannelID string
	Text      string
	Choices   []Choice
}

// Sender delivers outbound replies. The production implementation is the
// Matrix transport adapter in the app package.
type Sender interface {
	Send(ctx context.Context, r Reply) error
}

// confirmChoices is the fixed two-option affordance attached to proposals.
var confirmChoices = []Choice{
	{Name: "select", Value: "yes", Label: "Confirm"},
	{Name: "select", Value: "no", Label: "Cancel"},
}

// Machine orchestrates the conversation protocol. It owns no transport or
// NLU details: the provider classifies, the pending store holds state, the
// sender delivers replies.
type Machine struct {
	pending  *pending.Store
	provider nlu.Provider
	sender   Sender
	limiter  *nlu.RateLimiter
	language string
}

// Config assembles a Machine.
type Config struct {
	Pending  *pending.Store
	Provider nlu.Provider
	Sender   Sender
	// Limiter is optional; when nil, no per-user classification limit applies.
	Limiter *nlu.RateLimiter
	// Language is the NLU query language tag. Defaults to "en".
	Language string
}

// NewMachine creates a Machine from its collaborators.
func NewMachine(cfg Config) *Machine {
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	return &Machine{
		pending:  cfg.Pending,
		provider: cfg.Provider,
		sender:   cfg.Sender,
		limiter:  cfg.Limiter,
		language: lang,
	}
}

// HandleMessage processes one inbound free-text message.
//
// The pending-store lock is only ever held inside Has/TryBegin; the
// classification round-trip runs lock-free, so TryBegin is re-checked after
// it returns in case a racing message for the same user got there first.
func (m *Machine) HandleMessage(ctx context.Context, msg InboundMessage) error {
	if m.pending.Has(msg.UserID) {
		return m.reply(ctx, msg.ChannelID, BlockedMessage)
	}

	if m.limiter != nil && !m.limiter.Allow(msg.UserID) {
		slog.Warn("conversation: classification rate limit hit", "user", msg.UserID)
		return m.reply(ctx, msg.ChannelID, RateLimitedMessage)
	}

	raw, err := m.provider.Classify(ctx, nlu.Query{
		Text:      msg.Text,
		SessionID: sessionFor(msg.UserID),
		Language:  m.language,
	})
	if err != nil {
		slog.Error("conversation: classification failed", "user", msg.UserID, "err", err)
		return m.reply(ctx, msg.ChannelID, FailureMessage)
	}

	// Normalization runs before any store mutation: a malformed or
	// unsupported classification must not transition state.
	norm, err := nlu.Normalize(raw)
	if err != nil {
		slog.Error("conversation: normalize failed", "user", msg.UserID, "err", err)
		return m.reply(ctx, msg.ChannelID, FailureMessage)
	}

	if norm.Clarification != nil {
		return m.reply(ctx, msg.ChannelID, norm.Clarification.Speech)
	}

	if !m.pending.TryBegin(ctx, msg.UserID, *norm.Intent) {
		// A concurrent message from the same user won the slot while we were
		// waiting on the classifier.
		return m.reply(ctx, msg.ChannelID, BlockedMessage)
	}

	return m.sender.Send(ctx, Reply{
		ChannelID: msg.ChannelID,
		Text:      raw.Result.Fulfillment.Speech,
		Choices:   confirmChoices,
	})
}

// HandleAction processes one confirm/cancel decision and returns the summary
// sentence. When the user has no outstanding request it returns
// pending.ErrNoPending: a protocol violation the caller logs and surfaces,
// with the store left unchanged.
func (m *Machine) HandleAction(ctx context.Context, act ConfirmAction) (string, error) {
	in, err := m.pending.Resolve(ctx, act.UserID)
	if err != nil {
		if errors.Is(err, pending.ErrNoPending) {
			slog.Warn("conversation: decision with no pending request", "user", act.UserID)
		}
		return "", err
	}

	return Summarize(in.Kind, act.Decision, in.Subject, in.Time, in.Date), nil
}

// HasPending reports whether the user is awaiting a confirmation. Used by the
// transport layer to decide whether a bare "confirm"/"cancel" reply should be
// treated as a decision at all.
func (m *Machine) HasPending(userID string) bool {
	return m.pending.Has(userID)
}

func (m *Machine) reply(ctx context.Context, channelID, text string) error {
	if err := m.sender.Send(ctx, Reply{ChannelID: channelID, Text: text}); err != nil {
		return fmt.Errorf("conversation: send reply: %w", err)
	}
	return nil
}

// sessionFor derives a stable NLU session ID from the user ID, so the
// service's slot-filling context is scoped per user and survives restarts.
func sessionFor(userID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(userID)).String()
}
