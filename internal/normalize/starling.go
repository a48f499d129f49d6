package normalize

import (
	"time"

	"github.com/google/uuid"

	"github.com/rcallanan/studio-ledger/internal/domain"
)

const starlingDefaultCurrency = "GBP"

// MapStarlingFeedItem normalizes a bank-feed item. The feed supplies amounts
// in minor units already. There is no email or phone on a bank row: matching
// runs on the counterparty name, or on a stored counterparty mapping during
// bulk retry.
func MapStarlingFeedItem(item map[string]any) domain.NormalizedTransaction {
	feedItemUID := getString(item, "feedItemUid")
	if feedItemUID == "" {
		feedItemUID = uuid.New().String()
	}

	// The amount block moves around between API versions.
	amountBlock := getMap(item, "amount")
	if amountBlock == nil {
		amountBlock = getMap(item, "totalAmount")
	}
	if amountBlock == nil {
		amountBlock = getMap(item, "sourceAmount")
	}

	var amountMinor int64
	currency := starlingDefaultCurrency
	if amountBlock != nil {
		amountMinor = getMinorUnits(amountBlock, "minorUnits")
		currency = currencyOr(amountBlock, starlingDefaultCurrency, "currency")
	}

	occurredAt := getTime(item, "transactionTime", "updatedAt", "spendUntil")
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var status domain.Status
	switch getString(item, "status") {
	case "SETTLED":
		status = domain.StatusCompleted
	case "DECLINED":
		status = domain.StatusFailed
	default:
		status = domain.StatusNeedsReview
	}

	counterparty := getString(item, "counterPartyName")
	personName := counterparty
	if personName == "" {
		personName = getString(item, "reference")
	}

	productType := getString(item, "spendingCategory")
	if productType == "" {
		productType = "Bank Transfer"
	}

	confidence := domain.ConfidenceNeedsReview
	if counterparty != "" {
		confidence = domain.ConfidenceHigh
	}

	reference := getString(item, "reference")
	if reference == "" {
		reference = feedItemUID
	}

	return domain.NormalizedTransaction{
		ExternalID:  "starling_" + feedItemUID,
		Provider:    domain.ProviderStarling,
		AmountMinor: amountMinor,
		Currency:    currency,
		OccurredAt:  occurredAt,
		PersonName:  personName,
		ProductType: productType,
		Status:      status,
		Confidence:  confidence,
		Description: getString(item, "reference", "description"),
		Reference:   reference,
		Metadata: map[string]any{
			"direction":        getString(item, "direction"),
			"spendingCategory": getString(item, "spendingCategory"),
		},
		Raw: item,
	}
}
