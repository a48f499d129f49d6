package normalize

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rcallanan/studio-ledger/internal/domain"
)

const manualDefaultCurrency = "GBP"

// MapManualEntry normalizes a manually entered or CSV-imported row. Column
// headers vary between spreadsheets, so each field tries the common
// spellings. Rows without any id get a generated UUID external id.
func MapManualEntry(row map[string]any) domain.NormalizedTransaction {
	externalID := getID(row, "ID", "id", "Reference", "reference")
	if externalID == "" {
		externalID = uuid.New().String()
	}

	occurredAt := getTime(row, "Date", "date", "occurredAt", "occurred_at")
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	statusValue := strings.ToLower(getString(row, "Status", "status"))
	var status domain.Status
	switch statusValue {
	case "completed", "paid", "succeeded", "settled", "success":
		status = domain.StatusCompleted
	case "failed", "declined", "refunded":
		status = domain.StatusFailed
	default:
		status = domain.StatusNeedsReview
	}

	amount, ok := row["Amount"]
	if !ok || amount == nil {
		amount = row["amount"]
	}
	amountMinor := ToMinorUnits(amount)

	productType := getString(row, "Product", "product", "Product type", "productType")
	if productType == "" {
		productType = "Manual Entry"
	}

	return domain.NormalizedTransaction{
		ExternalID:  "manual_" + externalID,
		Provider:    domain.ProviderManual,
		AmountMinor: amountMinor,
		Currency:    currencyOr(row, manualDefaultCurrency, "Currency", "currency"),
		OccurredAt:  occurredAt,
		PersonName:  getString(row, "Full name", "Full Name", "Name", "name"),
		ProductType: productType,
		Status:      status,
		Confidence:  domain.ConfidenceMedium,
		Description: getString(row, "Description", "description", "Notes", "notes"),
		Reference:   getString(row, "Reference", "reference"),
		Metadata: map[string]any{
			domain.HintEmail:    getString(row, "Email", "email"),
			domain.HintPhone:    getString(row, "Phone", "phone"),
			domain.HintMemberID: getID(row, "Member ID", "member_id"),
		},
		Raw: row,
	}
}
