// Package analytics exports reconciled transactions and person snapshots to
// BigQuery for reporting.
package analytics

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/rcallanan/studio-ledger/internal/domain"
)

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	ExternalID    string `bigquery:"external_id"`    // REQUIRED
	Provider      string `bigquery:"provider"`       // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED in schema

	AmountMinor int64  `bigquery:"amount_minor"` // REQUIRED INTEGER
	Currency    string `bigquery:"currency"`     // REQUIRED STRING

	Status     string `bigquery:"status"`     // REQUIRED
	Confidence string `bigquery:"confidence"` // REQUIRED

	PersonID    bigquery.NullString `bigquery:"person_id"`    // NULLABLE
	PersonName  bigquery.NullString `bigquery:"person_name"`  // NULLABLE
	ProductType bigquery.NullString `bigquery:"product_type"` // NULLABLE
	Description bigquery.NullString `bigquery:"description"`  // NULLABLE
	Reference   bigquery.NullString `bigquery:"reference"`    // NULLABLE

	IngestedTS time.Time `bigquery:"ingested_ts"` // REQUIRED
}

type PersonRow struct {
	PersonID string `bigquery:"person_id"` // REQUIRED

	FullName bigquery.NullString `bigquery:"full_name"` // NULLABLE
	Email    bigquery.NullString `bigquery:"email"`     // NULLABLE
	Source   bigquery.NullString `bigquery:"source"`    // NULLABLE
	Stage    string              `bigquery:"stage"`     // REQUIRED

	LTVAllMinor            int64 `bigquery:"ltv_all_minor"`
	LTVAdsMinor            int64 `bigquery:"ltv_ads_minor"`
	LTVPTMinor             int64 `bigquery:"ltv_pt_minor"`
	LTVClassesMinor        int64 `bigquery:"ltv_classes_minor"`
	LTVSixWeekMinor        int64 `bigquery:"ltv_six_week_minor"`
	LTVOnlineCoachingMinor int64 `bigquery:"ltv_online_coaching_minor"`
	LTVCommunityMinor      int64 `bigquery:"ltv_community_minor"`
	LTVCorporateMinor      int64 `bigquery:"ltv_corporate_minor"`

	SnapshotTS time.Time `bigquery:"snapshot_ts"` // REQUIRED
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

// RowFromTransaction converts a persisted transaction to its warehouse row.
func RowFromTransaction(tx *domain.Transaction) *TransactionRow {
	return &TransactionRow{
		TransactionID:   tx.ID,
		ExternalID:      tx.ExternalID,
		Provider:        string(tx.Provider),
		TransactionDate: civil.DateOf(tx.OccurredAt),
		AmountMinor:     tx.AmountMinor,
		Currency:        tx.Currency,
		Status:          string(tx.Status),
		Confidence:      string(tx.Confidence),
		PersonID:        nullString(tx.PersonID),
		PersonName:      nullString(tx.PersonName),
		ProductType:     nullString(tx.ProductType),
		Description:     nullString(tx.Description),
		Reference:       nullString(tx.Reference),
		IngestedTS:      tx.CreatedAt,
	}
}

// RowFromPerson converts a person to a point-in-time LTV snapshot row.
func RowFromPerson(p *domain.Person, at time.Time) *PersonRow {
	return &PersonRow{
		PersonID:               p.ID,
		FullName:               nullString(p.FullName()),
		Email:                  nullString(p.Email),
		Source:                 nullString(p.Source),
		Stage:                  string(p.Stage),
		LTVAllMinor:            p.LTV.AllMinor,
		LTVAdsMinor:            p.LTV.AdsMinor,
		LTVPTMinor:             p.LTV.PTMinor,
		LTVClassesMinor:        p.LTV.ClassesMinor,
		LTVSixWeekMinor:        p.LTV.SixWeekMinor,
		LTVOnlineCoachingMinor: p.LTV.OnlineCoachingMinor,
		LTVCommunityMinor:      p.LTV.CommunityMinor,
		LTVCorporateMinor:      p.LTV.CorporateMinor,
		SnapshotTS:             at,
	}
}
