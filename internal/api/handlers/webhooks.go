// Package handlers implements the HTTP API: provider webhooks, batch import,
// transaction and person listings, and the manual match queue.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/rcallanan/studio-ledger/internal/api/middleware"
	"github.com/rcallanan/studio-ledger/internal/domain"
	"github.com/rcallanan/studio-ledger/internal/jobs"
	"github.com/rcallanan/studio-ledger/internal/normalize"
)

const maxWebhookBody = 4 << 20

// WebhooksHandler accepts provider payloads and enqueues them for
// reconciliation. Acceptance is decoupled from processing so provider
// retries see fast 202s regardless of pipeline load.
type WebhooksHandler struct {
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewWebhooksHandler creates a new webhooks handler.
func NewWebhooksHandler(publisher jobs.Publisher, log zerolog.Logger) *WebhooksHandler {
	return &WebhooksHandler{publisher: publisher, log: log}
}

// HandleStripe handles POST /api/webhooks/stripe
func (h *WebhooksHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, domain.ProviderStripe)
}

// HandleGlofox handles POST /api/webhooks/glofox
func (h *WebhooksHandler) HandleGlofox(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, domain.ProviderGlofox)
}

// HandleStarling handles POST /api/webhooks/starling
func (h *WebhooksHandler) HandleStarling(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, domain.ProviderStarling)
}

func (h *WebhooksHandler) handle(w http.ResponseWriter, r *http.Request, provider domain.Provider) {
	payloads, err := decodePayloads(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(payloads) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Empty payload")
		return
	}

	batch := make([]*domain.NormalizedTransaction, 0, len(payloads))
	for _, payload := range payloads {
		normalized := normalize.MapProviderPayload(provider, payload)
		batch = append(batch, &normalized)
	}

	job := &jobs.ReconcileBatchJob{Provider: provider, Batch: batch}
	if err := h.publisher.PublishReconcileBatch(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("provider", string(provider)).Msg("Failed to enqueue webhook batch")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue batch")
		return
	}

	h.log.Info().
		Str("provider", string(provider)).
		Str("job_id", job.JobID).
		Int("events", len(batch)).
		Msg("Webhook batch accepted")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":   job.JobID,
		"accepted": len(batch),
	})
}

// decodePayloads reads the request body as either one JSON object, a JSON
// array of objects, or an envelope with an "events" list.
func decodePayloads(r *http.Request) ([]map[string]any, error) {
	var raw json.RawMessage
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxWebhookBody))
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON body")
	}

	var single map[string]any
	if err := json.Unmarshal(raw, &single); err == nil {
		if events, ok := single["events"].([]any); ok {
			return toObjectList(events), nil
		}
		return []map[string]any{single}, nil
	}

	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		return toObjectList(list), nil
	}
	return nil, fmt.Errorf("body must be a JSON object or array")
}

func toObjectList(items []any) []map[string]any {
	result := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			result = append(result, obj)
		}
	}
	return result
}
