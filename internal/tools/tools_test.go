package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/psds-microservice/chat-orchestrator/internal/llm"
	"github.com/psds-microservice/chat-orchestrator/internal/model"
)

type fakeCatalog struct {
	products []model.Product
	promos   []model.Promotion
	zone     *model.ShippingZone
	err      error
}

func (f *fakeCatalog) SearchProducts(_ context.Context, _ string, _ int) ([]model.Product, error) {
	return f.products, f.err
}

func (f *fakeCatalog) ShippingFee(_ context.Context, _ string) (*model.ShippingZone, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.zone, nil
}

func (f *fakeCatalog) ActivePromotions(_ context.Context, _ int) ([]model.Promotion, error) {
	return f.promos, f.err
}

func TestRunAllConcatenatesSections(t *testing.T) {
	cat := &fakeCatalog{
		products: []model.Product{{Name: "Áo thun trắng", Price: 199000, Stock: 3}},
		promos:   []model.Promotion{{Code: "SALE10", DiscountPercent: 10, Description: "toàn bộ đơn"}},
	}
	e := NewExecutor(cat, cat, cat, StoreInfo{Name: "PSDS Shop", Hours: "8:00-21:00"})

	block, used := e.RunAll(context.Background(), []llm.ToolCall{
		{Name: ToolProductSearch, Args: map[string]string{"query": "áo thun"}},
		{Name: ToolPromotionLookup},
		{Name: ToolStoreInfo},
	})
	if len(used) != 3 {
		t.Fatalf("used = %v, want 3 tools", used)
	}
	for _, want := range []string{"[product_search]", "Áo thun trắng", "199.000đ", "[promotion_lookup]", "SALE10", "[store_info]", "PSDS Shop"} {
		if !strings.Contains(block, want) {
			t.Errorf("block missing %q:\n%s", want, block)
		}
	}
}

func TestRunAllFailuresAreSoft(t *testing.T) {
	broken := &fakeCatalog{err: errors.New("db down")}
	ok := &fakeCatalog{zone: &model.ShippingZone{Region: "Hà Nội", Fee: 30000, EtaDays: 2}}
	e := NewExecutor(broken, ok, broken, StoreInfo{Name: "PSDS Shop", Hours: "8:00-21:00"})

	block, used := e.RunAll(context.Background(), []llm.ToolCall{
		{Name: ToolProductSearch, Args: map[string]string{"query": "áo"}},
		{Name: ToolShippingFee, Args: map[string]string{"region": "Hà Nội"}},
		{Name: "made_up_tool"},
	})
	if len(used) != 1 || used[0] != ToolShippingFee {
		t.Fatalf("used = %v, want only shipping_fee", used)
	}
	if !strings.Contains(block, "30.000đ") {
		t.Errorf("block missing shipping fee:\n%s", block)
	}
	if strings.Contains(block, "product_search") {
		t.Errorf("failed tool should be omitted:\n%s", block)
	}
}

func TestFormatPrice(t *testing.T) {
	cases := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1.000",
		199000:   "199.000",
		1250000:  "1.250.000",
		12500000: "12.500.000",
	}
	for in, want := range cases {
		if got := formatPrice(in); got != want {
			t.Errorf("formatPrice(%d) = %q, want %q", in, got, want)
		}
	}
}
