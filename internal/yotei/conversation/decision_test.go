package conversation_test

import (
	"errors"
	"testing"

	"github.com/akatsune/yotei/internal/yotei/conversation"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		text    string
		want    conversation.Decision
		wantErr bool
	}{
		{text: "confirm", want: conversation.DecisionConfirm},
		{text: "Confirm", want: conversation.DecisionConfirm},
		{text: "  CONFIRM  ", want: conversation.DecisionConfirm},
		{text: "yes", want: conversation.DecisionConfirm},
		{text: "cancel", want: conversation.DecisionCancel},
		{text: "no", want: conversation.DecisionCancel},
		{text: "", wantErr: true},
		{text: "maybe", wantErr: true},
		// A sentence containing a decision word is a new request, not an answer.
		{text: "cancel the meeting tomorrow", wantErr: true},
		{text: "yes please schedule it", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := conversation.ParseDecision(tt.text)
			if tt.wantErr {
				if !errors.Is(err, conversation.ErrNotADecision) {
					t.Fatalf("expected ErrNotADecision, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecision(%q): %v", tt.text, err)
			}
			if got != tt.want {
				t.Errorf("ParseDecision(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
