package routing

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/psds-microservice/chat-orchestrator/internal/llm"
	"github.com/psds-microservice/chat-orchestrator/internal/model"
)

type fakeGateway struct {
	analysis     *llm.Analysis
	analyzeErr   error
	completeOut  string
	completeErr  error
	analyzeCalls int
	panicMsg     string
	gotHistory   []llm.Turn
}

func (f *fakeGateway) Complete(_ context.Context, _, _ string) (string, error) {
	return f.completeOut, f.completeErr
}

func (f *fakeGateway) Analyze(_ context.Context, _ string, history []llm.Turn, _ string) (*llm.Analysis, error) {
	f.analyzeCalls++
	f.gotHistory = history
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return f.analysis, nil
}

type fakeTools struct {
	block string
	used  []string
}

func (f *fakeTools) RunAll(_ context.Context, _ []llm.ToolCall) (string, []string) {
	return f.block, f.used
}

type fakeRecorder struct {
	decisions []*model.RoutingDecision
}

func (f *fakeRecorder) SaveDecision(_ context.Context, d *model.RoutingDecision) error {
	f.decisions = append(f.decisions, d)
	return nil
}

type fakeHistory struct {
	msgs     []model.Message
	gotLimit int
}

func (f *fakeHistory) RecentMessages(_ context.Context, _ uint64, limit int) ([]model.Message, error) {
	f.gotLimit = limit
	if len(f.msgs) > limit {
		return f.msgs[len(f.msgs)-limit:], nil
	}
	return f.msgs, nil
}

func newTestRouter(gw *fakeGateway, tr ToolRunner, rec *fakeRecorder) *Router {
	return NewRouter(Config{Enabled: true}, gw, tr, &fakeHistory{}, rec)
}

func TestRoutePIIShortCircuitsBeforeModel(t *testing.T) {
	gw := &fakeGateway{}
	rec := &fakeRecorder{}
	r := newTestRouter(gw, nil, rec)

	out := r.Route(context.Background(), 1, "sdt của em là 0912345678")
	if !out.Handoff || out.Reason != model.ReasonPIIDetected {
		t.Fatalf("outcome = %+v, want handoff pii_detected", out)
	}
	if gw.analyzeCalls != 0 {
		t.Errorf("model was called %d times, want 0", gw.analyzeCalls)
	}
	if len(rec.decisions) != 1 {
		t.Fatalf("decisions = %d, want 1", len(rec.decisions))
	}
	if rec.decisions[0].Reason != model.ReasonPIIDetected {
		t.Errorf("recorded reason = %s", rec.decisions[0].Reason)
	}
}

func TestRouteDisabledHandsOff(t *testing.T) {
	gw := &fakeGateway{}
	r := NewRouter(Config{Enabled: false}, gw, nil, nil, nil)

	out := r.Route(context.Background(), 1, "áo này còn size M không")
	if !out.Handoff || out.Reason != model.ReasonExplicitRequest {
		t.Fatalf("outcome = %+v, want handoff explicit_request", out)
	}
	if gw.analyzeCalls != 0 {
		t.Errorf("model was called while disabled")
	}
}

func TestRouteGatewayErrorYieldsApology(t *testing.T) {
	gw := &fakeGateway{analyzeErr: errors.New("backend down")}
	rec := &fakeRecorder{}
	r := newTestRouter(gw, nil, rec)

	out := r.Route(context.Background(), 1, "cho em hỏi với")
	if !out.Handoff || out.Reason != model.ReasonAIError {
		t.Fatalf("outcome = %+v, want handoff ai_error", out)
	}
	if out.Reply == "" {
		t.Error("customer must always get some reply")
	}
}

func TestRouteAutoHandle(t *testing.T) {
	gw := &fakeGateway{analysis: &llm.Analysis{
		Intent: model.IntentSales, Confidence: 0.92, Reply: "Dạ còn hàng ạ",
	}}
	rec := &fakeRecorder{}
	r := newTestRouter(gw, nil, rec)

	out := r.Route(context.Background(), 7, "áo này còn không")
	if out.Handoff {
		t.Fatalf("outcome = %+v, want AI handled", out)
	}
	if out.Reply != "Dạ còn hàng ạ" {
		t.Errorf("reply = %q", out.Reply)
	}
	if out.Suggested {
		t.Error("no suggestion expected at high confidence")
	}
}

func TestRouteSuggestionTierAppendsOffer(t *testing.T) {
	gw := &fakeGateway{analysis: &llm.Analysis{
		Intent: model.IntentShipping, Confidence: 0.70, Reply: "Dạ khoảng 2 ngày ạ",
	}}
	r := newTestRouter(gw, nil, &fakeRecorder{})

	out := r.Route(context.Background(), 7, "bao lâu thì tới")
	if out.Handoff || !out.Suggested {
		t.Fatalf("outcome = %+v, want suggestion tier", out)
	}
	if !strings.Contains(out.Reply, "gặp nhân viên") {
		t.Errorf("reply missing soft human-help offer: %q", out.Reply)
	}
}

func TestRouteReasonMapping(t *testing.T) {
	cases := []struct {
		name     string
		analysis llm.Analysis
		want     model.HandoffReason
	}{
		{"payment always payment_issue", llm.Analysis{Intent: model.IntentPayment, Confidence: 0.95, HandoffRequired: true}, model.ReasonPaymentIssue},
		{"order support", llm.Analysis{Intent: model.IntentOrderSupport, Confidence: 0.9, HandoffRequired: true}, model.ReasonOrderInquiry},
		{"low confidence", llm.Analysis{Intent: model.IntentOther, Confidence: 0.2}, model.ReasonLowConfidence},
		{"complex query", llm.Analysis{Intent: model.IntentChitchat, Confidence: 0.7, HandoffRequired: true}, model.ReasonComplexQuery},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a := c.analysis
			r := newTestRouter(&fakeGateway{analysis: &a}, nil, &fakeRecorder{})
			out := r.Route(context.Background(), 1, "tôi muốn hoàn tiền đơn hàng")
			if !out.Handoff {
				t.Fatalf("outcome = %+v, want handoff", out)
			}
			if out.Reason != c.want {
				t.Errorf("reason = %s, want %s", out.Reason, c.want)
			}
		})
	}
}

func TestRoutePanicRecordsDecision(t *testing.T) {
	gw := &fakeGateway{panicMsg: "nil map write"}
	rec := &fakeRecorder{}
	r := newTestRouter(gw, nil, rec)

	out := r.Route(context.Background(), 9, "cho em hỏi với")
	if !out.Handoff || out.Reason != model.ReasonAIError {
		t.Fatalf("outcome = %+v, want handoff ai_error", out)
	}
	if out.Reply == "" {
		t.Error("customer must always get some reply")
	}
	if len(rec.decisions) != 1 {
		t.Fatalf("decisions = %d, want 1 even on a recovered panic", len(rec.decisions))
	}
	if rec.decisions[0].Reason != model.ReasonAIError {
		t.Errorf("recorded reason = %s", rec.decisions[0].Reason)
	}
}

func TestRouteHistoryExcludesInboundMessage(t *testing.T) {
	current := "áo này còn size M không"
	gw := &fakeGateway{analysis: &llm.Analysis{
		Intent: model.IntentSales, Confidence: 0.9, Reply: "Dạ còn ạ",
	}}
	history := &fakeHistory{msgs: []model.Message{
		{Sender: model.SenderCustomer, Content: "shop ơi"},
		{Sender: model.SenderAI, Content: "Dạ em nghe ạ"},
		// The message being routed is already persisted, so the store
		// returns it as the newest row.
		{Sender: model.SenderCustomer, Content: current},
	}}
	r := NewRouter(Config{Enabled: true}, gw, nil, history, &fakeRecorder{})

	out := r.Route(context.Background(), 4, current)
	if out.Handoff {
		t.Fatalf("outcome = %+v, want AI handled", out)
	}
	if history.gotLimit != 11 {
		t.Errorf("store queried with limit %d, want window+1 = 11", history.gotLimit)
	}
	if len(gw.gotHistory) != 2 {
		t.Fatalf("history sent to model = %d turns, want 2: %+v", len(gw.gotHistory), gw.gotHistory)
	}
	for _, turn := range gw.gotHistory {
		if turn.Role == "user" && turn.Content == current {
			t.Errorf("inbound message duplicated into history: %+v", gw.gotHistory)
		}
	}
}

func TestRouteHistoryKeepsEarlierIdenticalMessage(t *testing.T) {
	// Only the newest row is the in-flight message; an older identical
	// customer message stays in the window.
	current := "ship bao nhiêu"
	gw := &fakeGateway{analysis: &llm.Analysis{
		Intent: model.IntentShipping, Confidence: 0.9, Reply: "Dạ 30k ạ",
	}}
	history := &fakeHistory{msgs: []model.Message{
		{Sender: model.SenderCustomer, Content: current},
		{Sender: model.SenderAI, Content: "Dạ khu vực nào ạ?"},
		{Sender: model.SenderCustomer, Content: current},
	}}
	r := NewRouter(Config{Enabled: true}, gw, nil, history, &fakeRecorder{})

	r.Route(context.Background(), 4, current)
	if len(gw.gotHistory) != 2 {
		t.Fatalf("history sent to model = %d turns, want 2: %+v", len(gw.gotHistory), gw.gotHistory)
	}
	if gw.gotHistory[0].Content != current {
		t.Errorf("earlier identical message should survive: %+v", gw.gotHistory)
	}
}

func TestRouteToolMergeSecondCall(t *testing.T) {
	gw := &fakeGateway{
		analysis: &llm.Analysis{
			Intent: model.IntentPromotion, Confidence: 0.9, Reply: "Dạ có khuyến mãi ạ",
			ToolCalls: []llm.ToolCall{{Name: "promotion_lookup"}},
		},
		completeOut: "Dạ shop đang giảm 10% với mã SALE10 ạ.",
	}
	tr := &fakeTools{block: "[promotion_lookup]\n- SALE10: giảm 10%", used: []string{"promotion_lookup"}}
	rec := &fakeRecorder{}
	r := newTestRouter(gw, tr, rec)

	out := r.Route(context.Background(), 3, "có mã giảm giá không shop")
	if out.Reply != "Dạ shop đang giảm 10% với mã SALE10 ạ." {
		t.Errorf("reply = %q, want composed prose", out.Reply)
	}
	if len(out.ToolsUsed) != 1 {
		t.Errorf("tools used = %v", out.ToolsUsed)
	}
	if len(rec.decisions) != 1 || len(rec.decisions[0].ToolsUsed) != 1 {
		t.Errorf("decision should record invoked tools: %+v", rec.decisions)
	}
}

func TestRouteToolMergeFallbackOnSecondCallFailure(t *testing.T) {
	gw := &fakeGateway{
		analysis: &llm.Analysis{
			Intent: model.IntentPromotion, Confidence: 0.9, Reply: "Dạ có khuyến mãi ạ",
			ToolCalls: []llm.ToolCall{{Name: "promotion_lookup"}},
		},
		completeErr: errors.New("backend down"),
	}
	tr := &fakeTools{block: "[promotion_lookup]\n- SALE10: giảm 10%", used: []string{"promotion_lookup"}}
	r := newTestRouter(gw, tr, &fakeRecorder{})

	out := r.Route(context.Background(), 3, "có mã giảm giá không shop")
	if out.Handoff {
		t.Fatalf("tool-merge failure must not fail the turn: %+v", out)
	}
	if !strings.Contains(out.Reply, "Dạ có khuyến mãi ạ") || !strings.Contains(out.Reply, "SALE10") {
		t.Errorf("fallback should concatenate draft and lookup block, got %q", out.Reply)
	}
}
