package model

import (
	"time"

	"github.com/lib/pq"
)

type ConversationStatus string

const (
	ConversationStatusOpen     ConversationStatus = "open"
	ConversationStatusAssigned ConversationStatus = "assigned"
	ConversationStatusClosed   ConversationStatus = "closed"
)

type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderStaff    Sender = "staff"
	SenderAI       Sender = "ai"
	SenderSystem   Sender = "system"
)

// Intent is the coarse category of customer need produced by the language model.
type Intent string

const (
	IntentSales        Intent = "sales"
	IntentShipping     Intent = "shipping"
	IntentPromotion    Intent = "promotion"
	IntentOrderSupport Intent = "order_support"
	IntentPayment      Intent = "payment"
	IntentStoreInfo    Intent = "store_info"
	IntentChitchat     Intent = "chitchat"
	IntentOther        Intent = "other"
)

// ValidIntent reports whether s is one of the known intent values.
func ValidIntent(s string) bool {
	switch Intent(s) {
	case IntentSales, IntentShipping, IntentPromotion, IntentOrderSupport,
		IntentPayment, IntentStoreInfo, IntentChitchat, IntentOther:
		return true
	}
	return false
}

// HandoffReason explains why a conversation was routed to a human.
type HandoffReason string

const (
	ReasonPIIDetected     HandoffReason = "pii_detected"
	ReasonLowConfidence   HandoffReason = "low_confidence"
	ReasonOrderInquiry    HandoffReason = "order_inquiry"
	ReasonPaymentIssue    HandoffReason = "payment_issue"
	ReasonComplexQuery    HandoffReason = "complex_query"
	ReasonExplicitRequest HandoffReason = "explicit_request"
	ReasonAIError         HandoffReason = "ai_error"
)

type StaffStatus string

const (
	StaffStatusOffline   StaffStatus = "offline"
	StaffStatusAvailable StaffStatus = "available"
	StaffStatusBusy      StaffStatus = "busy"
)

type Conversation struct {
	ID              uint64             `gorm:"primaryKey" json:"id"`
	CustomerID      string             `gorm:"type:varchar(64);index;not null" json:"customer_id"`
	Status          ConversationStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	AssignedStaffID string             `gorm:"type:varchar(64);index" json:"assigned_staff_id,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

type Message struct {
	ID             string `gorm:"type:varchar(36);primaryKey" json:"id"`
	ConversationID uint64 `gorm:"index;not null" json:"conversation_id"`
	Sender         Sender `gorm:"type:varchar(16);not null" json:"sender"`
	SenderID       string `gorm:"type:varchar(64)" json:"sender_id,omitempty"`
	Content        string `gorm:"type:text;not null" json:"content"`

	CreatedAt time.Time `json:"created_at"`
}

// RoutingDecision is the immutable record of one classification event.
// Owned by analytics; never mutated after creation.
type RoutingDecision struct {
	ID              uint64         `gorm:"primaryKey" json:"id"`
	ConversationID  uint64         `gorm:"index;not null" json:"conversation_id"`
	Intent          Intent         `gorm:"type:varchar(32);index" json:"intent"`
	Confidence      float64        `json:"confidence"`
	HandoffRequired bool           `json:"handoff_required"`
	HandoffSuggest  bool           `json:"handoff_suggested"`
	Reason          HandoffReason  `gorm:"type:varchar(32)" json:"reason,omitempty"`
	Reply           string         `gorm:"type:text" json:"reply,omitempty"`
	ToolsUsed       pq.StringArray `gorm:"type:text[]" json:"tools_used,omitempty"`
	LatencyMS       int64          `json:"latency_ms"`

	CreatedAt time.Time `json:"created_at"`
}

// HandoffQueueEntry is one conversation waiting for or assigned to a human.
// At most one unresolved entry may exist per conversation (partial unique
// index in the migration). Entries are never hard-deleted.
type HandoffQueueEntry struct {
	ID              uint64         `gorm:"primaryKey" json:"id"`
	ConversationID  uint64         `gorm:"index;not null" json:"conversation_id"`
	Reason          HandoffReason  `gorm:"type:varchar(32);not null" json:"reason"`
	Priority        int            `gorm:"index" json:"priority"`
	Tags            pq.StringArray `gorm:"type:text[]" json:"tags,omitempty"`
	CustomerMessage string         `gorm:"type:text" json:"customer_message,omitempty"`
	AIContext       string         `gorm:"type:text" json:"ai_context,omitempty"`
	EnqueuedAt      time.Time      `gorm:"index;not null" json:"enqueued_at"`
	AssignedStaffID string         `gorm:"type:varchar(64);index" json:"assigned_staff_id,omitempty"`
	AssignedAt      *time.Time     `json:"assigned_at,omitempty"`
	ResolvedAt      *time.Time     `gorm:"index" json:"resolved_at,omitempty"`
}

// Open reports whether the entry is still unresolved.
func (e *HandoffQueueEntry) Open() bool { return e.ResolvedAt == nil }

// StaffPresence is one row per staff account, created lazily on the first
// presence-affecting call and kept for the system's lifetime.
type StaffPresence struct {
	StaffID       string      `gorm:"type:varchar(64);primaryKey" json:"staff_id"`
	Online        bool        `gorm:"index" json:"online"`
	Status        StaffStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	StatusMessage string      `gorm:"type:varchar(255)" json:"status_message,omitempty"`
	Workload      int         `json:"workload"`
	MaxWorkload   int         `json:"max_workload"`

	LastSeenAt     time.Time `json:"last_seen_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Product, Promotion and ShippingZone back the AI tool lookups only; the
// commerce CRUD around them lives in other services.

type Product struct {
	ID          uint64 `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"type:varchar(255);index;not null" json:"name"`
	Category    string `gorm:"type:varchar(64);index" json:"category,omitempty"`
	Price       int64  `json:"price"`
	Stock       int    `json:"stock"`
	Description string `gorm:"type:text" json:"description,omitempty"`
}

type Promotion struct {
	ID              uint64     `gorm:"primaryKey" json:"id"`
	Code            string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Description     string     `gorm:"type:varchar(255)" json:"description,omitempty"`
	DiscountPercent int        `json:"discount_percent"`
	Active          bool       `gorm:"index" json:"active"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

type ShippingZone struct {
	ID      uint64 `gorm:"primaryKey" json:"id"`
	Region  string `gorm:"type:varchar(64);uniqueIndex;not null" json:"region"`
	Fee     int64  `json:"fee"`
	EtaDays int    `json:"eta_days"`
}
