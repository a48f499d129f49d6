package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rcallanan/studio-ledger/internal/api/middleware"
	"github.com/rcallanan/studio-ledger/internal/domain"
	"github.com/rcallanan/studio-ledger/internal/matchqueue"
	"github.com/rcallanan/studio-ledger/internal/store"
)

// QueueHandler handles the manual match-queue endpoints.
type QueueHandler struct {
	service *matchqueue.Service
	log     zerolog.Logger
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(service *matchqueue.Service, log zerolog.Logger) *QueueHandler {
	return &QueueHandler{service: service, log: log}
}

// ListEntries handles GET /api/match-queue
func (h *QueueHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list queue entries")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list queue entries")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// Attach handles POST /api/match-queue/{id}/attach
func (h *QueueHandler) Attach(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "id")

	var req struct {
		PersonID string `json:"person_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PersonID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "person_id is required")
		return
	}

	tx, err := h.service.Attach(r.Context(), entryID, req.PersonID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Queue entry or person not found")
			return
		}
		h.log.Error().Err(err).Str("entry_id", entryID).Msg("Failed to attach queue entry")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to attach queue entry")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// BulkAttach handles POST /api/match-queue/bulk
func (h *QueueHandler) BulkAttach(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Attachments []matchqueue.Attachment `json:"attachments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Attachments) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Attachments are required")
		return
	}

	attached, err := h.service.BulkAttach(r.Context(), req.Attachments)
	if err != nil {
		h.log.Warn().Err(err).Int("attached", attached).Msg("Bulk attach finished with failures")
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"attached": attached,
		"failed":   len(req.Attachments) - attached,
	})
}

// CreateAndAttach handles POST /api/match-queue/{id}/create
func (h *QueueHandler) CreateAndAttach(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "id")

	var person domain.Person
	if err := json.NewDecoder(r.Body).Decode(&person); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	person.ID = ""
	tx, err := h.service.CreateAndAttach(r.Context(), entryID, &person)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Queue entry not found")
			return
		}
		h.log.Error().Err(err).Str("entry_id", entryID).Msg("Failed to create person for queue entry")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to resolve queue entry")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction": tx,
		"person_id":   tx.PersonID,
	})
}

// RetryBulk handles POST /api/match-queue/retry/{provider}
func (h *QueueHandler) RetryBulk(w http.ResponseWriter, r *http.Request) {
	provider := parseProvider(chi.URLParam(r, "provider"))

	outcome, err := h.service.RetryBulk(r.Context(), provider)
	if err != nil {
		h.log.Error().Err(err).Str("provider", string(provider)).Msg("Bulk retry failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to retry queue entries")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, outcome)
}
