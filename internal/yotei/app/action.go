package app

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/akatsune/yotei/internal/yotei/conversation"
)

//go:embed action_payload.schema.json
var actionPayloadSchema string

// payloadSchema validates the action callback payload before it is decoded.
// Schema validation keeps malformed client payloads from turning into
// half-decoded zero values further down.
var payloadSchema = jsonschema.MustCompileString("action_payload.schema.json", actionPayloadSchema)

// actionPayload mirrors the interactive-message callback wire format: the
// client posts a form whose "payload" field holds this JSON document.
type actionPayload struct {
	CallbackID string `json:"callback_id"`
	User       struct {
		ID string `json:"id"`
	} `json:"user"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Actions []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"actions"`
}

// decodeActionPayload validates and decodes the form-encoded JSON payload of
// an action callback into a ConfirmAction.
func decodeActionPayload(payload string) (*conversation.ConfirmAction, error) {
	if payload == "" {
		return nil, fmt.Errorf("missing payload field")
	}

	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if err := payloadSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("payload failed validation: %w", err)
	}

	var p actionPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	decision := conversation.DecisionCancel
	if p.Actions[0].Value == "yes" {
		decision = conversation.DecisionConfirm
	}

	return &conversation.ConfirmAction{
		UserID:    p.User.ID,
		ChannelID: p.Channel.ID,
		Decision:  decision,
	}, nil
}
