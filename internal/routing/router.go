// Package routing classifies inbound customer messages into a routing
// decision: AI answers, AI answers with a human-help suggestion, or the
// conversation is handed off to staff.
package routing

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/psds-microservice/chat-orchestrator/internal/llm"
	"github.com/psds-microservice/chat-orchestrator/internal/model"
	"github.com/psds-microservice/chat-orchestrator/internal/pii"
	"github.com/psds-microservice/chat-orchestrator/internal/policy"
)

// Outcome is the result of routing one inbound message. Route never fails:
// worst case the outcome is a hand-off with reason ai_error and a scripted
// apology.
type Outcome struct {
	Handoff    bool
	Suggested  bool
	Reason     model.HandoffReason
	Intent     model.Intent
	Confidence float64
	Reply      string
	ToolsUsed  []string
}

// AIContext is the free-text snapshot handed to staff with a queue entry.
func (o Outcome) AIContext() string {
	return fmt.Sprintf("intent=%s confidence=%.2f reason=%s reply=%s", o.Intent, o.Confidence, o.Reason, o.Reply)
}

type HistoryProvider interface {
	RecentMessages(ctx context.Context, conversationID uint64, limit int) ([]model.Message, error)
}

type DecisionRecorder interface {
	SaveDecision(ctx context.Context, d *model.RoutingDecision) error
}

type ToolRunner interface {
	RunAll(ctx context.Context, calls []llm.ToolCall) (string, []string)
}

type Config struct {
	// Enabled gates the whole AI path; when false every message is handed
	// off with reason explicit_request.
	Enabled       bool
	Thresholds    policy.Thresholds
	HistoryLimit  int
	MaxReplyWords int
	// StoreContext is injected into the system prompt (policies, hours,
	// hotline) so store_info answers stay grounded.
	StoreContext string
}

type Router struct {
	cfg       Config
	gateway   llm.Gateway
	tools     ToolRunner
	history   HistoryProvider
	decisions DecisionRecorder
	now       func() time.Time
}

func NewRouter(cfg Config, gateway llm.Gateway, tools ToolRunner, history HistoryProvider, decisions DecisionRecorder) *Router {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.MaxReplyWords <= 0 {
		cfg.MaxReplyWords = 120
	}
	if cfg.Thresholds == (policy.Thresholds{}) {
		cfg.Thresholds = policy.DefaultThresholds()
	}
	return &Router{
		cfg:       cfg,
		gateway:   gateway,
		tools:     tools,
		history:   history,
		decisions: decisions,
		now:       time.Now,
	}
}

// Scripted customer-facing texts. The customer never sees a raw error.
const (
	apologyReply = "Xin lỗi quý khách, trợ lý của shop đang gặp chút trục trặc. Nhân viên sẽ hỗ trợ quý khách ngay ạ."
	handoffReply = "Dạ em đã chuyển cuộc trò chuyện tới nhân viên hỗ trợ, quý khách chờ shop một chút ạ."
	piiReply     = "Dạ để bảo mật thông tin cá nhân của quý khách, nhân viên của shop sẽ hỗ trợ trực tiếp ạ."

	suggestionSuffix = "\n\nNếu quý khách muốn gặp nhân viên hỗ trợ trực tiếp, nhắn \"gặp nhân viên\" giúp em nhé."
)

// Route classifies one inbound customer message. It is the error boundary
// for the whole customer-facing turn: nothing below it may escape.
func (r *Router) Route(ctx context.Context, conversationID uint64, text string) (out Outcome) {
	start := r.now()
	defer func() {
		if p := recover(); p != nil {
			log.Printf("router: recovered panic for conversation %d: %v", conversationID, p)
			out = Outcome{Handoff: true, Reason: model.ReasonAIError, Intent: model.IntentOther, Reply: apologyReply}
			r.record(ctx, conversationID, out, start)
		}
	}()

	out = r.route(ctx, conversationID, text)
	r.record(ctx, conversationID, out, start)
	return out
}

func (r *Router) route(ctx context.Context, conversationID uint64, text string) Outcome {
	// PII short-circuits before any model call so personal data is never
	// sent to the completion backend.
	if scan := pii.Scan(text); scan.HasPII {
		log.Printf("router: pii detected in conversation %d: %s", conversationID, pii.Mask(text))
		return Outcome{Handoff: true, Reason: model.ReasonPIIDetected, Intent: model.IntentOther, Reply: piiReply}
	}

	if !r.cfg.Enabled {
		return Outcome{Handoff: true, Reason: model.ReasonExplicitRequest, Intent: model.IntentOther, Reply: handoffReply}
	}

	history, err := r.recentTurns(ctx, conversationID, text)
	if err != nil {
		// Degraded but not fatal: classify without history.
		log.Printf("router: history for conversation %d: %v", conversationID, err)
	}
	analysis, err := r.gateway.Analyze(ctx, r.systemPrompt(), history, text)
	if err != nil {
		log.Printf("router: analyze conversation %d: %v", conversationID, err)
		return Outcome{Handoff: true, Reason: model.ReasonAIError, Intent: model.IntentOther, Reply: apologyReply}
	}

	tier := policy.Decide(analysis.Confidence, analysis.HandoffRequired, r.cfg.Thresholds)
	if tier == policy.MustHandoff {
		return Outcome{
			Handoff:    true,
			Reason:     handoffReason(analysis, r.cfg.Thresholds),
			Intent:     analysis.Intent,
			Confidence: analysis.Confidence,
			Reply:      handoffReply,
		}
	}

	reply, used := r.composeReply(ctx, text, analysis)
	if tier == policy.HandleWithSuggestion {
		reply += suggestionSuffix
	}
	return Outcome{
		Suggested:  tier == policy.HandleWithSuggestion,
		Intent:     analysis.Intent,
		Confidence: analysis.Confidence,
		Reply:      reply,
		ToolsUsed:  used,
	}
}

// handoffReason maps a must-handoff analysis to its queue reason.
func handoffReason(a *llm.Analysis, t policy.Thresholds) model.HandoffReason {
	switch {
	case a.Intent == model.IntentOrderSupport:
		return model.ReasonOrderInquiry
	case a.Intent == model.IntentPayment:
		return model.ReasonPaymentIssue
	case a.Confidence < t.Suggest:
		return model.ReasonLowConfidence
	default:
		return model.ReasonComplexQuery
	}
}

// composeReply merges tool results into a second completion for the final
// customer-facing prose. Both the tool run and the second call degrade
// without failing the turn.
func (r *Router) composeReply(ctx context.Context, question string, a *llm.Analysis) (string, []string) {
	if len(a.ToolCalls) == 0 || r.tools == nil {
		return a.Reply, nil
	}
	block, used := r.tools.RunAll(ctx, a.ToolCalls)
	if block == "" {
		return a.Reply, used
	}
	final, err := r.gateway.Complete(ctx, r.composePrompt(), fmt.Sprintf(
		"Câu hỏi của khách: %s\n\nTrả lời nháp: %s\n\nKết quả tra cứu:\n%s", question, a.Reply, block))
	if err != nil || strings.TrimSpace(final) == "" {
		// Fall back to the draft reply plus the raw lookup block.
		if a.Reply == "" {
			return block, used
		}
		return a.Reply + "\n\n" + block, used
	}
	return strings.TrimSpace(final), used
}

func (r *Router) recentTurns(ctx context.Context, conversationID uint64, current string) ([]llm.Turn, error) {
	if r.history == nil {
		return nil, nil
	}
	msgs, err := r.history.RecentMessages(ctx, conversationID, r.cfg.HistoryLimit+1)
	if err != nil {
		return nil, err
	}
	// The inbound message is persisted before routing, so the newest history
	// row is the message being classified; drop it or the model sees it twice.
	if n := len(msgs); n > 0 && msgs[n-1].Sender == model.SenderCustomer && msgs[n-1].Content == current {
		msgs = msgs[:n-1]
	}
	if len(msgs) > r.cfg.HistoryLimit {
		msgs = msgs[len(msgs)-r.cfg.HistoryLimit:]
	}
	turns := make([]llm.Turn, 0, len(msgs))
	for _, m := range msgs {
		switch m.Sender {
		case model.SenderCustomer:
			turns = append(turns, llm.Turn{Role: "user", Content: m.Content})
		case model.SenderAI, model.SenderStaff:
			turns = append(turns, llm.Turn{Role: "assistant", Content: m.Content})
		}
		// System messages carry no classification signal.
	}
	return turns, nil
}

func (r *Router) systemPrompt() string {
	var b strings.Builder
	b.WriteString(`Bạn là trợ lý bán hàng của một cửa hàng thương mại điện tử Việt Nam. Phân loại tin nhắn mới nhất của khách và soạn câu trả lời ngắn gọn, lịch sự.

`)
	if r.cfg.StoreContext != "" {
		b.WriteString("Thông tin cửa hàng:\n")
		b.WriteString(r.cfg.StoreContext)
		b.WriteString("\n\n")
	}
	b.WriteString(`Công cụ tra cứu (liệt kê trong "tools" khi cần số liệu thật):
- product_search (args: query) — tìm sản phẩm theo tên
- shipping_fee (args: region) — phí giao hàng theo khu vực
- promotion_lookup — khuyến mãi đang chạy
- store_info — địa chỉ, hotline, giờ mở cửa

Chỉ trả về đúng MỘT đối tượng JSON, không thêm văn bản nào khác:
{"intent":"sales|shipping|promotion|order_support|payment|store_info|chitchat|other","confidence":0.0-1.0,"reply":"câu trả lời tiếng Việt","handoff_required":true|false,"tools":[{"name":"...","args":{}}]}

Đặt handoff_required=true khi khách cần tra cứu đơn hàng cụ thể, khiếu nại thanh toán/hoàn tiền, hoặc yêu cầu gặp nhân viên.`)
	return b.String()
}

func (r *Router) composePrompt() string {
	return fmt.Sprintf(`Bạn là trợ lý bán hàng. Viết câu trả lời cuối cùng cho khách dựa trên câu trả lời nháp và kết quả tra cứu.
Yêu cầu: tiếng Việt tự nhiên, tối đa %d từ, tuyệt đối không xuất JSON hay dữ liệu thô.`, r.cfg.MaxReplyWords)
}

func (r *Router) record(ctx context.Context, conversationID uint64, out Outcome, start time.Time) {
	if r.decisions == nil {
		return
	}
	d := &model.RoutingDecision{
		ConversationID:  conversationID,
		Intent:          out.Intent,
		Confidence:      out.Confidence,
		HandoffRequired: out.Handoff,
		HandoffSuggest:  out.Suggested,
		Reason:          out.Reason,
		Reply:           out.Reply,
		ToolsUsed:       out.ToolsUsed,
		LatencyMS:       r.now().Sub(start).Milliseconds(),
	}
	if err := r.decisions.SaveDecision(ctx, d); err != nil {
		log.Printf("router: save decision for conversation %d: %v", conversationID, err)
	}
}
