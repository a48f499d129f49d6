package domain

import (
	"strings"
	"time"
)

// Provider identifies the external system a payment event came from.
type Provider string

const (
	ProviderStripe   Provider = "Stripe"
	ProviderGlofox   Provider = "Glofox"
	ProviderStarling Provider = "Starling"
	ProviderManual   Provider = "Manual"
)

// Status is the closed status taxonomy every provider vocabulary collapses into.
type Status string

const (
	StatusCompleted   Status = "Completed"
	StatusFailed      Status = "Failed"
	StatusNeedsReview Status = "Needs Review"
)

// Confidence labels how strongly a transaction is attributed to a person.
type Confidence string

const (
	ConfidenceHigh        Confidence = "High"
	ConfidenceMedium      Confidence = "Medium"
	ConfidenceMatched     Confidence = "Matched"
	ConfidenceNeedsReview Confidence = "Needs Review"
)

// Metadata keys the Identity Matcher reads as hints. Normalizers that know
// these values must store them under exactly these keys.
const (
	HintEmail      = "email"
	HintPhone      = "phone"
	HintMemberID   = "memberId"
	HintCustomerID = "customerId"
)

// NormalizedTransaction is the canonical, provider-agnostic form of one
// payment event. Normalizers produce it; the Reconciler consumes it. It is
// ephemeral; the persisted form is Transaction.
type NormalizedTransaction struct {
	// ExternalID is provider-prefixed (e.g. "stripe_ch_123") and is the
	// idempotence key. The prefixing scheme must never change: historical
	// rows would silently duplicate on the next import.
	ExternalID  string         `json:"external_id"`
	Provider    Provider       `json:"provider"`
	AmountMinor int64          `json:"amount_minor"`
	Currency    string         `json:"currency"`
	OccurredAt  time.Time      `json:"occurred_at"`
	PersonName  string         `json:"person_name,omitempty"`
	ProductType string         `json:"product_type,omitempty"`
	Status      Status         `json:"status"`
	Confidence  Confidence     `json:"confidence"`
	Description string         `json:"description,omitempty"`
	Reference   string         `json:"reference,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Raw         map[string]any `json:"raw,omitempty"`

	// PersonID is filled in by matching; empty until then.
	PersonID string `json:"person_id,omitempty"`
}

// Transaction is the durable row form of a NormalizedTransaction, unique on
// ExternalID. OccurredAt is business time (when money moved); CreatedAt is
// ingest time. Human-facing filtering and sorting must use OccurredAt.
type Transaction struct {
	ID          string         `json:"id"`
	ExternalID  string         `json:"external_id"`
	Provider    Provider       `json:"provider"`
	AmountMinor int64          `json:"amount_minor"`
	Currency    string         `json:"currency"`
	OccurredAt  time.Time      `json:"occurred_at"`
	PersonName  string         `json:"person_name,omitempty"`
	ProductType string         `json:"product_type,omitempty"`
	Status      Status         `json:"status"`
	Confidence  Confidence     `json:"confidence"`
	Description string         `json:"description,omitempty"`
	Reference   string         `json:"reference,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Raw         map[string]any `json:"raw,omitempty"`
	PersonID    string         `json:"person_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// revenueQualifying is the closed list of statuses that count toward LTV.
// Compared case-insensitively; anything else contributes zero.
var revenueQualifying = map[string]bool{
	"completed": true,
	"paid":      true,
	"succeeded": true,
	"settled":   true,
	"success":   true,
}

// IsRevenueQualifying reports whether a transaction status counts as revenue.
func IsRevenueQualifying(status Status) bool {
	return revenueQualifying[strings.ToLower(string(status))]
}
