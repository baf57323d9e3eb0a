package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/psds-microservice/chat-orchestrator/internal/model"
)

func completionBody(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func TestParseAnalysis(t *testing.T) {
	raw := `Here is the result:
{"intent":"payment","confidence":0.91,"reply":"Dạ để em kiểm tra ạ","handoff_required":true,"tools":[{"name":"promotion_lookup"}]}`
	a, err := ParseAnalysis(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Intent != model.IntentPayment {
		t.Errorf("intent = %s, want payment", a.Intent)
	}
	if a.Confidence != 0.91 {
		t.Errorf("confidence = %v, want 0.91", a.Confidence)
	}
	if !a.HandoffRequired {
		t.Error("expected handoff_required")
	}
	if len(a.ToolCalls) != 1 || a.ToolCalls[0].Name != "promotion_lookup" {
		t.Errorf("tool calls = %+v", a.ToolCalls)
	}
}

func TestParseAnalysisUnknownIntentDegrades(t *testing.T) {
	a, err := ParseAnalysis(`{"intent":"weather","confidence":1.7,"reply":"ok"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Intent != model.IntentOther {
		t.Errorf("intent = %s, want other", a.Intent)
	}
	if a.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", a.Confidence)
	}
}

func TestParseAnalysisNoJSON(t *testing.T) {
	if _, err := ParseAnalysis("xin chào quý khách"); err == nil {
		t.Fatal("expected error for prose without JSON")
	}
}

func TestClientRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "upstream overloaded", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionBody("xin chào")))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Model: "test"})
	out, err := c.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "xin chào" {
		t.Errorf("out = %q", out)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestClientGivesUpAfterSchedule(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Model: "test"})
	if _, err := c.Complete(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if n := atomic.LoadInt32(&calls); n != int32(len(retryDelays))+1 {
		t.Errorf("calls = %d, want %d", n, len(retryDelays)+1)
	}
}

func TestClientAnalyzeSendsHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 4 { // system + 2 history + user
			t.Errorf("messages = %d, want 4", len(req.Messages))
		}
		w.Write([]byte(completionBody(`{"intent":"sales","confidence":0.95,"reply":"Dạ còn hàng ạ"}`)))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Model: "test"})
	history := []Turn{
		{Role: "user", Content: "áo này còn không"},
		{Role: "assistant", Content: "Dạ shop còn ạ"},
	}
	a, err := c.Analyze(context.Background(), "system", history, "lấy size M nhé")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Intent != model.IntentSales {
		t.Errorf("intent = %s, want sales", a.Intent)
	}
}
