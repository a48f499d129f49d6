package domain

import (
	"strings"
	"time"
)

// Stage is a person's lifecycle stage. There is a single Person entity; the
// prospect/client split is a stage, not a separate record.
type Stage string

const (
	StageProspect Stage = "prospect"
	StageClient   Stage = "client"
)

// Category is the fixed product taxonomy LTV breakdowns are bucketed into.
type Category string

const (
	CategoryPT             Category = "pt"
	CategoryClasses        Category = "classes"
	CategorySixWeek        Category = "six_week"
	CategoryOnlineCoaching Category = "online_coaching"
	CategoryCommunity      Category = "community"
	CategoryCorporate      Category = "corporate"
	CategoryUnknown        Category = "unknown"
)

// LTVTotals are derived values: each field always equals a sum over the
// person's revenue-qualifying transactions. They are never entered directly.
type LTVTotals struct {
	AllMinor            int64 `json:"all_minor"`
	AdsMinor            int64 `json:"ads_minor"`
	PTMinor             int64 `json:"pt_minor"`
	ClassesMinor        int64 `json:"classes_minor"`
	SixWeekMinor        int64 `json:"six_week_minor"`
	OnlineCoachingMinor int64 `json:"online_coaching_minor"`
	CommunityMinor      int64 `json:"community_minor"`
	CorporateMinor      int64 `json:"corporate_minor"`
}

// Person is one known individual in the directory: a prospect or a paying
// client. MemberID and CustomerID are provider-issued ids and act as strong
// match keys.
type Person struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"first_name,omitempty"`
	LastName   string    `json:"last_name,omitempty"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	MemberID   string    `json:"member_id,omitempty"`   // studio platform
	CustomerID string    `json:"customer_id,omitempty"` // card processor
	Source     string    `json:"source,omitempty"`      // acquisition channel
	Tags       []string  `json:"tags,omitempty"`
	Stage      Stage     `json:"stage"`
	LTV        LTVTotals `json:"ltv"`
	CreatedAt  time.Time `json:"created_at"`
}

// FullName joins first and last name, tolerating either being empty.
func (p *Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// paidChannelKeywords mark an acquisition source as paid marketing.
var paidChannelKeywords = []string{"ads", "facebook", "instagram", "meta", "tiktok"}

// FromPaidChannel reports whether the person was acquired through a paid
// marketing channel, from their source string or tags. Once true, the
// aggregator attributes the person's entire LTV to the paid channel
// (cohort attribution).
func (p *Person) FromPaidChannel() bool {
	src := strings.ToLower(p.Source)
	if src == "ghl_ads" {
		return true
	}
	for _, kw := range paidChannelKeywords {
		if src != "" && strings.Contains(src, kw) {
			return true
		}
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), "ads") {
			return true
		}
	}
	return false
}
