package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rcallanan/studio-ledger/internal/domain"
)

const glofoxDefaultCurrency = "EUR"

// getID reads an identifier that the studio platform emits as either a
// string or a number, depending on the export.
func getID(m map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		switch id := v.(type) {
		case string:
			if trimmed := strings.TrimSpace(id); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatInt(int64(id), 10)
		}
	}
	return ""
}

// MapGlofoxPayment normalizes a studio platform payment. Amounts arrive as
// major-unit decimal strings or numbers and go through ToMinorUnits.
func MapGlofoxPayment(payload map[string]any) domain.NormalizedTransaction {
	externalID := getID(payload, "payment_id", "id", "sale_id")
	if externalID == "" {
		externalID = uuid.New().String()
	}

	occurredAt := getTime(payload, "transaction_time", "processed_at", "created_at")
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	statusValue := strings.ToLower(getString(payload, "payment_status", "status"))
	var status domain.Status
	switch statusValue {
	case "paid", "completed":
		status = domain.StatusCompleted
	case "failed":
		status = domain.StatusFailed
	default:
		status = domain.StatusNeedsReview
	}

	amount, ok := payload["amount"]
	if !ok || amount == nil {
		amount = payload["total"]
	}
	amountMinor := ToMinorUnits(amount)

	productType := getString(payload, "membership_name", "plan_name", "product_name", "payment_type")
	if productType == "" {
		productType = "Glofox Sale"
	}

	// Member details may be flat or nested under "user".
	user := getMap(payload, "user")
	personName := getString(payload, "member_name")
	if personName == "" && user != nil {
		personName = strings.TrimSpace(getString(user, "first_name") + " " + getString(user, "last_name"))
	}
	email := getString(payload, "member_email")
	if email == "" {
		email = getString(user, "email")
	}
	phone := getString(payload, "member_phone")
	if phone == "" {
		phone = getString(user, "phone", "mobile")
	}
	memberID := getID(payload, "member_id")
	if memberID == "" && user != nil {
		memberID = getID(user, "id")
	}

	reference := getString(payload, "reference")
	if reference == "" {
		reference = externalID
	}

	confidence := domain.ConfidenceNeedsReview
	if amountMinor > 0 {
		confidence = domain.ConfidenceHigh
	}

	return domain.NormalizedTransaction{
		ExternalID:  "glofox_" + externalID,
		Provider:    domain.ProviderGlofox,
		AmountMinor: amountMinor,
		Currency:    currencyOr(payload, glofoxDefaultCurrency, "currency"),
		OccurredAt:  occurredAt,
		PersonName:  personName,
		ProductType: productType,
		Status:      status,
		Confidence:  confidence,
		Description: getString(payload, "description", "reference"),
		Reference:   reference,
		Metadata: map[string]any{
			domain.HintEmail:    email,
			domain.HintPhone:    phone,
			domain.HintMemberID: memberID,
		},
		Raw: payload,
	}
}
