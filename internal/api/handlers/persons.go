package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rcallanan/studio-ledger/internal/api/middleware"
	"github.com/rcallanan/studio-ledger/internal/domain"
	"github.com/rcallanan/studio-ledger/internal/store"
)

// PersonsHandler handles person directory endpoints.
type PersonsHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewPersonsHandler creates a new persons handler.
func NewPersonsHandler(s store.Store, log zerolog.Logger) *PersonsHandler {
	return &PersonsHandler{store: s, log: log}
}

// ListPersons handles GET /api/persons
func (h *PersonsHandler) ListPersons(w http.ResponseWriter, r *http.Request) {
	persons, err := h.store.ListPersons(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list persons")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list persons")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"persons": persons,
		"count":   len(persons),
	})
}

// GetPerson handles GET /api/persons/{id}
func (h *PersonsHandler) GetPerson(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	person, err := h.store.GetPerson(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Person not found")
			return
		}
		h.log.Error().Err(err).Str("id", id).Msg("Failed to load person")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load person")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, person)
}

// GetPersonTransactions handles GET /api/persons/{id}/transactions
func (h *PersonsHandler) GetPersonTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.store.GetPerson(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Person not found")
			return
		}
		h.log.Error().Err(err).Str("id", id).Msg("Failed to load person")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load person")
		return
	}

	transactions, err := h.store.ListTransactionsByPerson(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to list person transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// CreatePerson handles POST /api/persons
func (h *PersonsHandler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var person domain.Person
	if err := json.NewDecoder(r.Body).Decode(&person); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if person.FullName() == "" && person.Email == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Name or email is required")
		return
	}

	person.ID = ""
	if err := h.store.CreatePerson(r.Context(), &person); err != nil {
		h.log.Error().Err(err).Msg("Failed to create person")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create person")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, person)
}
