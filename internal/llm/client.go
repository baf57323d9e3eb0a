package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/psds-microservice/chat-orchestrator/internal/model"
)

const completionTimeout = 20 * time.Second

// retryDelays is the backoff schedule between attempts. Transient backend
// errors get len(retryDelays) retries after the first try, then the caller
// degrades to its fallback.
var retryDelays = [...]time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 900 * time.Millisecond}

// Client is an OpenAI-compatible chat-completions client.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: completionTimeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) call(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}
	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// callWithRetry runs call with the fixed backoff schedule.
func (c *Client) callWithRetry(ctx context.Context, messages []chatMessage) (string, error) {
	out, err := c.call(ctx, messages)
	if err == nil {
		return out, nil
	}
	for i, delay := range retryDelays {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		out, err = c.call(ctx, messages)
		if err == nil {
			return out, nil
		}
		log.Printf("llm: attempt %d failed: %v", i+2, err)
	}
	return "", err
}

func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	return c.callWithRetry(ctx, []chatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
}

func (c *Client) Analyze(ctx context.Context, system string, history []Turn, userMessage string) (*Analysis, error) {
	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: system})
	for _, t := range history {
		messages = append(messages, chatMessage{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userMessage})

	raw, err := c.callWithRetry(ctx, messages)
	if err != nil {
		return nil, err
	}
	return ParseAnalysis(raw)
}

// analysisJSONRe tolerates prose around the JSON object the prompt asks for.
var analysisJSONRe = regexp.MustCompile(`(?s)\{.*\}`)

type analysisWire struct {
	Intent          string     `json:"intent"`
	Confidence      float64    `json:"confidence"`
	Reply           string     `json:"reply"`
	HandoffRequired bool       `json:"handoff_required"`
	Tools           []ToolCall `json:"tools,omitempty"`
}

// ParseAnalysis validates raw model output into an Analysis. Unknown intents
// degrade to "other"; a missing JSON object is an error, never a guess.
func ParseAnalysis(raw string) (*Analysis, error) {
	blob := analysisJSONRe.FindString(raw)
	if blob == "" {
		return nil, ErrUnparseable
	}
	var w analysisWire
	if err := json.Unmarshal([]byte(blob), &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	intent := strings.ToLower(strings.TrimSpace(w.Intent))
	if !model.ValidIntent(intent) {
		intent = string(model.IntentOther)
	}
	conf := w.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return &Analysis{
		Intent:          model.Intent(intent),
		Confidence:      conf,
		Reply:           strings.TrimSpace(w.Reply),
		HandoffRequired: w.HandoffRequired,
		ToolCalls:       w.Tools,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
