package pii

import (
	"strings"
	"testing"
)

func TestScanPhone(t *testing.T) {
	res := Scan("gọi 0901234567 giúp tôi")
	if !res.HasPII {
		t.Fatal("expected PII for a raw phone number")
	}
	if !res.Has(TypePhone) {
		t.Errorf("expected phone type, got %v", res.Types)
	}
}

func TestScanPhoneInsideLongerNumber(t *testing.T) {
	// 11+ digit runs are order codes, not phone numbers.
	res := Scan("mã đơn của em là 090123456789012")
	if res.Has(TypePhone) {
		t.Errorf("did not expect phone type in %v", res.Types)
	}
}

func TestScanEmail(t *testing.T) {
	res := Scan("email của mình là lan.nguyen@example.com nhé")
	if !res.Has(TypeEmail) {
		t.Errorf("expected email type, got %v", res.Types)
	}
}

func TestScanStoreInquiryPrecedence(t *testing.T) {
	// Store-info questions must never be flagged, even with phone-like text.
	cases := []string{
		"cửa hàng ở đâu, hotline là gì",
		"cho mình xin hotline 0901234567 của shop",
		"giờ mở cửa của cửa hàng là mấy giờ",
	}
	for _, c := range cases {
		if res := Scan(c); res.HasPII {
			t.Errorf("Scan(%q) flagged PII %v, want none", c, res.Types)
		}
	}
}

func TestScanAddressNeedsDeliveryIntent(t *testing.T) {
	res := Scan("giao đến số 12 đường Láng")
	if !res.Has(TypeAddress) {
		t.Fatalf("expected address type, got %v", res.Types)
	}
	// A street-number token alone is not an address.
	res = Scan("số 12 đường Láng có gần đây không")
	if res.Has(TypeAddress) {
		t.Errorf("did not expect address type without delivery intent, got %v", res.Types)
	}
}

func TestScanClean(t *testing.T) {
	res := Scan("áo này còn size M không shop")
	if res.HasPII || len(res.Types) != 0 {
		t.Errorf("expected clean result, got %+v", res)
	}
}

func TestMaskPhone(t *testing.T) {
	got := Mask("sdt của em là 0912345678")
	if strings.Contains(got, "0912345678") {
		t.Fatalf("phone not masked: %q", got)
	}
	if !strings.Contains(got, "09******78") {
		t.Errorf("expected partial reveal, got %q", got)
	}
}

func TestMaskEmail(t *testing.T) {
	got := Mask("mail: lan.nguyen@example.com")
	if strings.Contains(got, "lan.nguyen@") {
		t.Fatalf("email local part not masked: %q", got)
	}
	if !strings.Contains(got, "@example.com") {
		t.Errorf("domain should stay readable, got %q", got)
	}
	if !strings.Contains(got, "la******en@example.com") {
		t.Errorf("expected partial reveal, got %q", got)
	}
}

func TestMaskLeavesCleanTextAlone(t *testing.T) {
	in := "đơn hàng của em đang ở đâu rồi"
	if got := Mask(in); got != in {
		t.Errorf("Mask(%q) = %q, want unchanged", in, got)
	}
}
