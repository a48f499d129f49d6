package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rcallanan/studio-ledger/internal/api/middleware"
)

// Router wires every handler into a chi router behind the shared middleware
// chain.
func Router(
	webhooks *WebhooksHandler,
	transactions *TransactionsHandler,
	persons *PersonsHandler,
	queue *QueueHandler,
	jobsHandler *JobsHandler,
	log zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/stripe", webhooks.HandleStripe)
			r.Post("/glofox", webhooks.HandleGlofox)
			r.Post("/starling", webhooks.HandleStarling)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", transactions.ListTransactions)
			r.Post("/import", transactions.ImportTransactions)
			r.Get("/{id}", transactions.GetTransaction)
		})

		r.Route("/persons", func(r chi.Router) {
			r.Get("/", persons.ListPersons)
			r.Post("/", persons.CreatePerson)
			r.Get("/{id}", persons.GetPerson)
			r.Get("/{id}/transactions", persons.GetPersonTransactions)
		})

		r.Route("/match-queue", func(r chi.Router) {
			r.Get("/", queue.ListEntries)
			r.Post("/bulk", queue.BulkAttach)
			r.Post("/retry/{provider}", queue.RetryBulk)
			r.Post("/{id}/attach", queue.Attach)
			r.Post("/{id}/create", queue.CreateAndAttach)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", jobsHandler.ListJobs)
			r.Get("/{id}", jobsHandler.GetJob)
		})
	})

	return r
}
