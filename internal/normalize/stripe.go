package normalize

import (
	"time"

	"github.com/google/uuid"

	"github.com/rcallanan/studio-ledger/internal/domain"
)

// The card processor emits several object types for the same economic event
// (charge, payment intent, invoice, checkout session). Each gets a distinct
// external id prefix so ids stay stable per object type, and a payment
// intent carrying an embedded charge normalizes as that charge so importing
// both never produces two rows.

const stripeDefaultCurrency = "EUR"

// resolveStripeStatus collapses the processor's status vocabulary into the
// closed taxonomy. Anything unrecognized is Needs Review, never Completed.
func resolveStripeStatus(status string, paid bool) domain.Status {
	switch status {
	case "succeeded", "paid":
		return domain.StatusCompleted
	case "failed", "canceled":
		return domain.StatusFailed
	}
	if paid {
		return domain.StatusCompleted
	}
	return domain.StatusNeedsReview
}

// MapStripeCharge normalizes a charge payload.
func MapStripeCharge(charge map[string]any) domain.NormalizedTransaction {
	occurredAt := getUnixTime(charge, "created")
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	amountMinor := getMinorUnits(charge, "amount")
	meta := getMap(charge, "metadata")
	billing := getMap(charge, "billing_details")
	paid := getBool(charge, "paid")

	externalID := getString(charge, "id")
	if externalID == "" {
		externalID = uuid.New().String()
	}

	personName := getString(billing, "name")
	if personName == "" {
		personName = getString(meta, "member_name")
	}
	if personName == "" {
		personName = getString(charge, "customer")
	}

	productType := getString(meta, "product_type")
	if productType == "" {
		productType = getString(charge, "description")
	}
	if productType == "" {
		productType = "Stripe Charge"
	}

	email := getString(billing, "email")
	if email == "" {
		email = getString(charge, "receipt_email")
	}

	confidence := domain.ConfidenceNeedsReview
	if paid {
		confidence = domain.ConfidenceHigh
	}

	return domain.NormalizedTransaction{
		ExternalID:  "stripe_" + externalID,
		Provider:    domain.ProviderStripe,
		AmountMinor: amountMinor,
		Currency:    currencyOr(charge, stripeDefaultCurrency, "currency"),
		OccurredAt:  occurredAt,
		PersonName:  personName,
		ProductType: productType,
		Status:      resolveStripeStatus(getString(charge, "status"), paid),
		Confidence:  confidence,
		Description: getString(charge, "description", "statement_descriptor"),
		Reference:   getString(charge, "id"),
		Metadata: map[string]any{
			domain.HintCustomerID: getString(charge, "customer"),
			domain.HintEmail:      email,
			domain.HintPhone:      getString(billing, "phone"),
			"invoice":             getString(charge, "invoice"),
			"rawMetadata":         meta,
		},
		Raw: charge,
	}
}

// MapStripePaymentIntent normalizes a payment intent. When the intent embeds
// its underlying charge, the charge is normalized instead: the charge id is
// the higher-fidelity identity for the economic event.
func MapStripePaymentIntent(intent map[string]any) domain.NormalizedTransaction {
	if charges := getMap(intent, "charges"); charges != nil {
		if data := getList(charges, "data"); len(data) > 0 {
			if charge, ok := data[0].(map[string]any); ok {
				merged := make(map[string]any, len(charge)+4)
				// Intent fields fill gaps the charge leaves empty.
				for _, key := range []string{"amount", "currency", "status"} {
					if v, ok := intent[key]; ok {
						merged[key] = v
					}
				}
				for k, v := range charge {
					merged[k] = v
				}
				mergedMeta := make(map[string]any)
				for k, v := range getMap(intent, "metadata") {
					mergedMeta[k] = v
				}
				for k, v := range getMap(charge, "metadata") {
					mergedMeta[k] = v
				}
				merged["metadata"] = mergedMeta
				return MapStripeCharge(merged)
			}
		}
	}

	occurredAt := getUnixTime(intent, "created")
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	amountMinor := getMinorUnits(intent, "amount_received")
	if amountMinor == 0 {
		amountMinor = getMinorUnits(intent, "amount")
	}

	externalID := getString(intent, "id")
	if externalID == "" {
		externalID = uuid.New().String()
	}

	meta := getMap(intent, "metadata")
	billing := getMap(intent, "billing_details")

	personName := getString(billing, "name")
	if personName == "" {
		personName = getString(meta, "member_name")
	}
	if personName == "" {
		personName = getString(intent, "customer")
	}

	productType := getString(meta, "product_type")
	if productType == "" {
		productType = "Stripe Payment Intent"
	}

	email := getString(billing, "email")
	if email == "" {
		email = getString(meta, "email")
	}

	confidence := domain.ConfidenceNeedsReview
	if amountMinor > 0 {
		confidence = domain.ConfidenceHigh
	}

	return domain.NormalizedTransaction{
		ExternalID:  "stripe_pi_" + externalID,
		Provider:    domain.ProviderStripe,
		AmountMinor: amountMinor,
		Currency:    currencyOr(intent, stripeDefaultCurrency, "currency"),
		OccurredAt:  occurredAt,
		PersonName:  personName,
		ProductType: productType,
		Status:      resolveStripeStatus(getString(intent, "status"), amountMinor > 0),
		Confidence:  confidence,
		Description: getString(intent, "description"),
		Reference:   getString(intent, "id"),
		Metadata: map[string]any{
			domain.HintCustomerID: getString(intent, "customer"),
			domain.HintEmail:      email,
			domain.HintPhone:      getString(billing, "phone"),
			"rawMetadata":         meta,
		},
		Raw: intent,
	}
}

// MapStripeInvoice normalizes an invoice payload.
func MapStripeInvoice(invoice map[string]any) domain.NormalizedTransaction {
	occurredAt := getUnixTime(invoice, "created")
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	amountMinor := getMinorUnits(invoice, "amount_paid")

	externalID := getString(invoice, "id")
	if externalID == "" {
		externalID = uuid.New().String()
	}

	meta := getMap(invoice, "metadata")

	personName := getString(invoice, "customer_name")
	if personName == "" {
		personName = getString(invoice, "customer")
	}

	productType := getString(meta, "product_type")
	if productType == "" {
		productType = "Stripe Invoice"
	}

	confidence := domain.ConfidenceNeedsReview
	if amountMinor > 0 {
		confidence = domain.ConfidenceHigh
	}

	return domain.NormalizedTransaction{
		ExternalID:  "stripe_inv_" + externalID,
		Provider:    domain.ProviderStripe,
		AmountMinor: amountMinor,
		Currency:    currencyOr(invoice, stripeDefaultCurrency, "currency"),
		OccurredAt:  occurredAt,
		PersonName:  personName,
		ProductType: productType,
		Status:      resolveStripeStatus(getString(invoice, "status"), amountMinor > 0),
		Confidence:  confidence,
		Description: getString(invoice, "number", "hosted_invoice_url"),
		Reference:   getString(invoice, "id"),
		Metadata: map[string]any{
			domain.HintCustomerID: getString(invoice, "customer"),
			domain.HintEmail:      getString(invoice, "customer_email"),
			"rawMetadata":         meta,
		},
		Raw: invoice,
	}
}

// MapStripeCheckoutSession normalizes a checkout session payload.
func MapStripeCheckoutSession(session map[string]any) domain.NormalizedTransaction {
	occurredAt := getUnixTime(session, "created")
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	amountMinor := getMinorUnits(session, "amount_total")

	externalID := getString(session, "id")
	if externalID == "" {
		externalID = uuid.New().String()
	}

	details := getMap(session, "customer_details")

	personName := getString(details, "name")
	if personName == "" {
		personName = getString(session, "customer")
	}

	productType := getString(session, "mode")
	if productType == "" {
		productType = "Checkout Session"
	}

	status := getString(session, "payment_status")
	if status == "" {
		status = getString(session, "status")
	}

	// A session references its payment intent either by id or inline.
	reference := getString(session, "payment_intent")
	if reference == "" {
		if pi := getMap(session, "payment_intent"); pi != nil {
			reference = getString(pi, "id")
		}
	}
	if reference == "" {
		reference = getString(session, "id")
	}

	confidence := domain.ConfidenceNeedsReview
	if amountMinor > 0 {
		confidence = domain.ConfidenceHigh
	}

	description := getString(session, "id")
	if description == "" {
		description = "Checkout Session"
	}

	return domain.NormalizedTransaction{
		ExternalID:  "stripe_cs_" + externalID,
		Provider:    domain.ProviderStripe,
		AmountMinor: amountMinor,
		Currency:    currencyOr(session, stripeDefaultCurrency, "currency"),
		OccurredAt:  occurredAt,
		PersonName:  personName,
		ProductType: productType,
		Status:      resolveStripeStatus(status, amountMinor > 0),
		Confidence:  confidence,
		Description: description,
		Reference:   reference,
		Metadata: map[string]any{
			domain.HintCustomerID: getString(session, "customer"),
			domain.HintEmail:      getString(details, "email"),
			"rawMetadata":         getMap(session, "metadata"),
		},
		Raw: session,
	}
}
