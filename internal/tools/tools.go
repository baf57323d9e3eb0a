// Package tools executes the deterministic lookups the model may request.
// Tool failures are soft: a failed tool is logged and omitted from the result
// block, never surfaced to the customer.
package tools

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/psds-microservice/chat-orchestrator/internal/llm"
	"github.com/psds-microservice/chat-orchestrator/internal/model"
)

const (
	ToolProductSearch   = "product_search"
	ToolShippingFee     = "shipping_fee"
	ToolPromotionLookup = "promotion_lookup"
	ToolStoreInfo       = "store_info"
)

// maxResults bounds every catalog lookup a tool can make.
const maxResults = 5

type ProductFinder interface {
	SearchProducts(ctx context.Context, query string, limit int) ([]model.Product, error)
}

type ShippingRater interface {
	ShippingFee(ctx context.Context, region string) (*model.ShippingZone, error)
}

type PromotionFinder interface {
	ActivePromotions(ctx context.Context, limit int) ([]model.Promotion, error)
}

// StoreInfo answers store_info lookups from configuration.
type StoreInfo struct {
	Name    string
	Address string
	Hotline string
	Hours   string
}

type Executor struct {
	products   ProductFinder
	shipping   ShippingRater
	promotions PromotionFinder
	store      StoreInfo
}

func NewExecutor(products ProductFinder, shipping ShippingRater, promotions PromotionFinder, store StoreInfo) *Executor {
	return &Executor{products: products, shipping: shipping, promotions: promotions, store: store}
}

// RunAll executes each requested tool synchronously and concatenates the
// results into a structured text block. Returns the block and the names of
// the tools that actually produced output.
func (e *Executor) RunAll(ctx context.Context, calls []llm.ToolCall) (string, []string) {
	var sections []string
	var used []string
	for _, call := range calls {
		out, err := e.run(ctx, call)
		if err != nil {
			log.Printf("tools: %s: %v", call.Name, err)
			continue
		}
		if out == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("[%s]\n%s", call.Name, out))
		used = append(used, call.Name)
	}
	return strings.Join(sections, "\n\n"), used
}

func (e *Executor) run(ctx context.Context, call llm.ToolCall) (string, error) {
	switch call.Name {
	case ToolProductSearch:
		return e.productSearch(ctx, call.Args["query"])
	case ToolShippingFee:
		return e.shippingFee(ctx, call.Args["region"])
	case ToolPromotionLookup:
		return e.promotionLookup(ctx)
	case ToolStoreInfo:
		return e.storeInfo(), nil
	default:
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
}

func (e *Executor) productSearch(ctx context.Context, query string) (string, error) {
	if e.products == nil {
		return "", fmt.Errorf("product lookup not configured")
	}
	items, err := e.products.SearchProducts(ctx, query, maxResults)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "Không tìm thấy sản phẩm phù hợp.", nil
	}
	var b strings.Builder
	for _, p := range items {
		fmt.Fprintf(&b, "- %s: %sđ", p.Name, formatPrice(p.Price))
		if p.Stock <= 0 {
			b.WriteString(" (hết hàng)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (e *Executor) shippingFee(ctx context.Context, region string) (string, error) {
	if e.shipping == nil {
		return "", fmt.Errorf("shipping lookup not configured")
	}
	zone, err := e.shipping.ShippingFee(ctx, region)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Phí giao hàng khu vực %s: %sđ, dự kiến %d ngày.", zone.Region, formatPrice(zone.Fee), zone.EtaDays), nil
}

func (e *Executor) promotionLookup(ctx context.Context) (string, error) {
	if e.promotions == nil {
		return "", fmt.Errorf("promotion lookup not configured")
	}
	promos, err := e.promotions.ActivePromotions(ctx, maxResults)
	if err != nil {
		return "", err
	}
	if len(promos) == 0 {
		return "Hiện chưa có khuyến mãi nào.", nil
	}
	var b strings.Builder
	for _, p := range promos {
		fmt.Fprintf(&b, "- %s: giảm %d%% (%s)\n", p.Code, p.DiscountPercent, p.Description)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (e *Executor) storeInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cửa hàng: %s\n", e.store.Name)
	if e.store.Address != "" {
		fmt.Fprintf(&b, "Địa chỉ: %s\n", e.store.Address)
	}
	if e.store.Hotline != "" {
		fmt.Fprintf(&b, "Hotline: %s\n", e.store.Hotline)
	}
	fmt.Fprintf(&b, "Giờ mở cửa: %s", e.store.Hours)
	return b.String()
}

// formatPrice groups thousands with dots, the local convention.
func formatPrice(v int64) string {
	s := fmt.Sprintf("%d", v)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ".")
}
