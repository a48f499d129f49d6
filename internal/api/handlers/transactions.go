package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rcallanan/studio-ledger/internal/api/middleware"
	"github.com/rcallanan/studio-ledger/internal/domain"
	"github.com/rcallanan/studio-ledger/internal/normalize"
	"github.com/rcallanan/studio-ledger/internal/reconcile"
	"github.com/rcallanan/studio-ledger/internal/store"
)

// TransactionsHandler handles transaction-related endpoints.
type TransactionsHandler struct {
	store      store.Store
	reconciler *reconcile.Reconciler
	log        zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(s store.Store, reconciler *reconcile.Reconciler, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{store: s, reconciler: reconciler, log: log}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	transactions, err := h.store.ListTransactions(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	if provider := r.URL.Query().Get("provider"); provider != "" {
		filtered := transactions[:0]
		for _, tx := range transactions {
			if strings.EqualFold(string(tx.Provider), provider) {
				filtered = append(filtered, tx)
			}
		}
		transactions = filtered
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tx, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		h.log.Error().Err(err).Str("id", id).Msg("Failed to load transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// ImportTransactions handles POST /api/transactions/import
// The batch is reconciled synchronously so the caller sees the outcome.
func (h *TransactionsHandler) ImportTransactions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string           `json:"provider"`
		Records  []map[string]any `json:"records"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Records) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Records are required")
		return
	}

	provider := parseProvider(req.Provider)

	batch := make([]*domain.NormalizedTransaction, 0, len(req.Records))
	for _, record := range req.Records {
		normalized := normalize.MapProviderPayload(provider, record)
		batch = append(batch, &normalized)
	}

	summary, err := h.reconciler.Reconcile(r.Context(), batch)
	if err != nil {
		h.log.Error().Err(err).Str("provider", string(provider)).Msg("Import reconcile failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to import transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, summary)
}

func parseProvider(name string) domain.Provider {
	switch strings.ToLower(name) {
	case "stripe":
		return domain.ProviderStripe
	case "glofox":
		return domain.ProviderGlofox
	case "starling":
		return domain.ProviderStarling
	default:
		return domain.ProviderManual
	}
}
