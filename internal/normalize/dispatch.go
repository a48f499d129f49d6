package normalize

import "github.com/rcallanan/studio-ledger/internal/domain"

// MapStripeObject normalizes any supported card-processor payload. Webhook
// event envelopes ({"type": ..., "data": {"object": ...}}) are unwrapped
// first; the inner object's "object" field then selects the mapper. Unknown
// object types fall back to the charge mapper, which degrades to Needs Review
// rather than dropping the event.
func MapStripeObject(payload map[string]any) domain.NormalizedTransaction {
	if data := getMap(payload, "data"); data != nil {
		if obj := getMap(data, "object"); obj != nil {
			payload = obj
		}
	}

	switch getString(payload, "object") {
	case "payment_intent":
		return MapStripePaymentIntent(payload)
	case "invoice":
		return MapStripeInvoice(payload)
	case "checkout.session":
		return MapStripeCheckoutSession(payload)
	default:
		return MapStripeCharge(payload)
	}
}

// MapProviderPayload normalizes one payload for the named provider. It is the
// single entry point the generic import path uses.
func MapProviderPayload(provider domain.Provider, payload map[string]any) domain.NormalizedTransaction {
	switch provider {
	case domain.ProviderStripe:
		return MapStripeObject(payload)
	case domain.ProviderGlofox:
		return MapGlofoxPayment(payload)
	case domain.ProviderStarling:
		return MapStarlingFeedItem(payload)
	default:
		return MapManualEntry(payload)
	}
}
