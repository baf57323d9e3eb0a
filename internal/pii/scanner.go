// Package pii inspects free customer text for personally-identifying content
// before it is allowed anywhere near the language model.
package pii

import (
	"regexp"
	"strings"
)

type Type string

const (
	TypePhone   Type = "phone"
	TypeEmail   Type = "email"
	TypeAddress Type = "address"
)

type Result struct {
	HasPII bool
	Types  []Type
}

func (r Result) Has(t Type) bool {
	for _, x := range r.Types {
		if x == t {
			return true
		}
	}
	return false
}

var (
	phoneRe = regexp.MustCompile(`\b0\d{9}\b`)
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// Street-number-like token: "số 12", "12 đường Láng", "45/3 ngõ ...".
	streetNumberRe = regexp.MustCompile(`số\s*\d+|\d+(/\d+)?\s+(đường|phố|ngõ|hẻm|quốc lộ)`)
)

// storeInquiryKeywords short-circuit the scanner to "no PII". A customer
// asking for the shop's hotline or opening hours legitimately mentions
// phone-like tokens, and handing those off would be a false positive.
// Note the precedence: store-inquiry wins over a phone-looking substring,
// not the other way around.
var storeInquiryKeywords = []string{
	"cửa hàng",
	"shop ở đâu",
	"hotline",
	"giờ mở cửa",
	"giờ đóng cửa",
	"chi nhánh",
	"địa chỉ shop",
	"địa chỉ cửa hàng",
}

// deliveryIntentPhrases mark a first-person delivery intent. An address is
// only PII when the customer is giving us *their* address, not when asking
// about ours.
var deliveryIntentPhrases = []string{
	"giao đến",
	"giao tới",
	"giao hàng đến",
	"ship đến",
	"ship tới",
	"ship về",
	"địa chỉ của tôi",
	"địa chỉ của em",
	"địa chỉ của mình",
	"nhà tôi ở",
	"nhà em ở",
}

// Scan flags phone numbers, emails and self-reported delivery addresses.
// Pure function, no side effects.
func Scan(text string) Result {
	low := strings.ToLower(text)
	for _, kw := range storeInquiryKeywords {
		if strings.Contains(low, kw) {
			return Result{}
		}
	}

	var types []Type
	if phoneRe.MatchString(low) {
		types = append(types, TypePhone)
	}
	if emailRe.MatchString(text) {
		types = append(types, TypeEmail)
	}
	if hasDeliveryIntent(low) && streetNumberRe.MatchString(low) {
		types = append(types, TypeAddress)
	}
	return Result{HasPII: len(types) > 0, Types: types}
}

func hasDeliveryIntent(low string) bool {
	for _, p := range deliveryIntentPhrases {
		if strings.Contains(low, p) {
			return true
		}
	}
	return false
}

// Mask redacts phone and email substrings for safe logging: first two
// characters, asterisks, last two characters.
func Mask(text string) string {
	out := phoneRe.ReplaceAllStringFunc(text, partialMask)
	out = emailRe.ReplaceAllStringFunc(out, func(m string) string {
		at := strings.Index(m, "@")
		return partialMask(m[:at]) + m[at:]
	})
	return out
}

func partialMask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
