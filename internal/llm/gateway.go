// Package llm talks to the language-model backend. The rest of the service
// only sees the Gateway interface and the strictly-parsed Analysis type —
// nothing downstream handles loose JSON maps.
package llm

import (
	"context"
	"errors"

	"github.com/psds-microservice/chat-orchestrator/internal/model"
)

// Turn is one prior message of conversation history sent to the model.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// ToolCall is a structured request from the model to execute a lookup.
type ToolCall struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

// Analysis is the validated result of one classification call.
type Analysis struct {
	Intent          model.Intent
	Confidence      float64
	Reply           string
	HandoffRequired bool
	ToolCalls       []ToolCall
}

// ErrUnparseable is returned when the model output carries no valid analysis
// object. Callers treat it like any other gateway failure.
var ErrUnparseable = errors.New("llm: response is not a valid analysis")

// Gateway is the language-model backend.
type Gateway interface {
	// Complete returns plain prose for a system prompt + user content.
	Complete(ctx context.Context, system, user string) (string, error)
	// Analyze classifies the new customer message given recent history and
	// returns a parsed analysis, or an error on transport/parse failure.
	Analyze(ctx context.Context, system string, history []Turn, userMessage string) (*Analysis, error)
}
