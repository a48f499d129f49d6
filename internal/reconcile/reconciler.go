// Package reconcile runs the ingestion pipeline: identity matching, idempotent
// persistence, review queueing, and lifetime-value recomputation for each
// batch of normalized transactions.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rcallanan/studio-ledger/internal/domain"
	"github.com/rcallanan/studio-ledger/internal/match"
	"github.com/rcallanan/studio-ledger/internal/store"
)

// Matcher resolves identity hints to a verdict.
type Matcher interface {
	Match(ctx context.Context, hints match.Hints) (match.Verdict, error)
}

// Aggregator recomputes lifetime values after attribution changes.
type Aggregator interface {
	RecomputeMany(ctx context.Context, personIDs []string) int
}

// Archiver persists raw provider payloads for audit. Archive failures must
// never fail ingestion.
type Archiver interface {
	Archive(ctx context.Context, tx *domain.Transaction) error
}

// Exporter ships reconciled transactions to the analytics warehouse.
type Exporter interface {
	Export(ctx context.Context, txs []*domain.Transaction) error
}

// Summary reports the outcome of one reconciled batch. Total is the
// store-wide transaction count after the batch, not the batch size.
type Summary struct {
	Added   int `json:"added"`
	Total   int `json:"total"`
	Matched int `json:"matched"`
	Queued  int `json:"queued"`
}

// Reconciler wires the pipeline stages together. Archiver and Exporter are
// optional; nil disables them.
type Reconciler struct {
	store      store.Store
	matcher    Matcher
	aggregator Aggregator
	archiver   Archiver
	exporter   Exporter
	logger     zerolog.Logger
}

// New creates a Reconciler.
func New(s store.Store, matcher Matcher, aggregator Aggregator, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:      s,
		matcher:    matcher,
		aggregator: aggregator,
		logger:     logger,
	}
}

// WithArchiver enables raw-payload archiving.
func (r *Reconciler) WithArchiver(a Archiver) *Reconciler {
	r.archiver = a
	return r
}

// WithExporter enables analytics export.
func (r *Reconciler) WithExporter(e Exporter) *Reconciler {
	r.exporter = e
	return r
}

// Reconcile processes a batch. Records are isolated: one bad record is logged
// and skipped, the rest of the batch proceeds. LTV recomputation runs once
// per distinct touched person at the end of the batch.
func (r *Reconciler) Reconcile(ctx context.Context, batch []*domain.NormalizedTransaction) (Summary, error) {
	var summary Summary
	var touched []string
	var persisted []*domain.Transaction

	for _, normalized := range batch {
		tx, matched, queued, err := r.reconcileOne(ctx, normalized)
		if err != nil {
			r.logger.Error().Err(err).
				Str("external_id", normalized.ExternalID).
				Str("provider", string(normalized.Provider)).
				Msg("transaction reconcile failed")
			continue
		}
		if tx.CreatedNow {
			summary.Added++
		}
		if matched {
			summary.Matched++
			touched = append(touched, tx.Transaction.PersonID)
		}
		if queued {
			summary.Queued++
		}
		persisted = append(persisted, tx.Transaction)
	}

	r.aggregator.RecomputeMany(ctx, touched)

	if r.exporter != nil && len(persisted) > 0 {
		if err := r.exporter.Export(ctx, persisted); err != nil {
			r.logger.Error().Err(err).Int("count", len(persisted)).Msg("analytics export failed")
		}
	}

	total, err := r.store.CountTransactions(ctx)
	if err != nil {
		return summary, fmt.Errorf("Reconcile: count transactions: %w", err)
	}
	summary.Total = total
	return summary, nil
}

// reconcileResult pairs the persisted row with whether this batch created it.
type reconcileResult struct {
	Transaction *domain.Transaction
	CreatedNow  bool
}

func (r *Reconciler) reconcileOne(ctx context.Context, normalized *domain.NormalizedTransaction) (reconcileResult, bool, bool, error) {
	if normalized.ExternalID == "" {
		return reconcileResult{}, false, false, fmt.Errorf("reconcileOne: missing external id")
	}

	tx := toTransaction(normalized)

	// Re-deliveries of an already-attributed transaction keep their person.
	existing, err := r.store.GetTransactionByExternalID(ctx, tx.ExternalID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return reconcileResult{}, false, false, fmt.Errorf("reconcileOne: lookup %s: %w", tx.ExternalID, err)
	}
	alreadyAttributed := existing != nil && existing.PersonID != ""

	matched := false
	var candidateIDs []string
	reason := domain.ReasonNoMatch

	if alreadyAttributed {
		tx.PersonID = existing.PersonID
		matched = true
		tx.Confidence = domain.ConfidenceMatched
		if tx.Status != domain.StatusFailed {
			tx.Status = domain.StatusCompleted
		}
	} else {
		verdict, err := r.resolve(ctx, normalized)
		if err != nil {
			// A directory outage must not drop the payment. Store it
			// unmatched and let the review queue hold it until a human
			// or a bulk retry resolves it.
			r.logger.Error().Err(err).
				Str("external_id", tx.ExternalID).
				Str("provider", string(tx.Provider)).
				Msg("identity match unavailable, queueing for review")
			verdict = match.Verdict{Kind: match.KindNoMatch}
		}
		switch verdict.Kind {
		case match.KindSingleConfident:
			tx.PersonID = verdict.PersonID
			matched = true
			tx.Confidence = domain.ConfidenceMatched
			// Matching settles the row unless the provider said it failed.
			if tx.Status != domain.StatusFailed {
				tx.Status = domain.StatusCompleted
			}
		case match.KindMultipleCandidates:
			reason = domain.ReasonAmbiguousMatch
			candidateIDs = verdict.CandidateIDs
		case match.KindNoMatch:
			if !hasIdentityHints(normalized) {
				reason = domain.ReasonUnmatched
			}
		}
	}

	created, err := r.store.UpsertTransaction(ctx, tx)
	if err != nil {
		return reconcileResult{}, false, false, fmt.Errorf("reconcileOne: upsert %s: %w", tx.ExternalID, err)
	}
	if tx.ID == "" && existing != nil {
		tx.ID = existing.ID
	}
	if tx.ID == "" {
		stored, err := r.store.GetTransactionByExternalID(ctx, tx.ExternalID)
		if err != nil {
			return reconcileResult{}, false, false, fmt.Errorf("reconcileOne: reload %s: %w", tx.ExternalID, err)
		}
		tx = stored
	}

	queued := false
	if matched {
		// A transaction is attributed or queued, never both.
		if entry, err := r.store.FindQueueEntryByTransaction(ctx, tx.ID); err == nil && entry != nil {
			if err := r.store.DeleteQueueEntry(ctx, entry.ID); err != nil {
				r.logger.Warn().Err(err).Str("transaction_id", tx.ID).Msg("stale queue entry not removed")
			}
		}
	} else if tx.Status != domain.StatusFailed {
		entryCreated, err := r.store.CreateQueueEntry(ctx, &domain.QueueEntry{
			TransactionID: tx.ID,
			Reason:        reason,
			CandidateIDs:  candidateIDs,
		})
		if err != nil {
			return reconcileResult{}, false, false, fmt.Errorf("reconcileOne: queue %s: %w", tx.ExternalID, err)
		}
		queued = entryCreated
	}

	if r.archiver != nil && created {
		if err := r.archiver.Archive(ctx, tx); err != nil {
			r.logger.Warn().Err(err).Str("external_id", tx.ExternalID).Msg("raw payload archive failed")
		}
	}

	return reconcileResult{Transaction: tx, CreatedNow: created}, matched, queued, nil
}

// resolve runs counterparty mappings (bank feeds carry a payer name, not
// identity hints) before the hint-driven matcher.
func (r *Reconciler) resolve(ctx context.Context, normalized *domain.NormalizedTransaction) (match.Verdict, error) {
	if normalized.PersonName != "" {
		mapping, err := r.store.FindCounterpartyMapping(ctx, normalized.Provider, normalized.PersonName)
		if err != nil {
			return match.Verdict{}, fmt.Errorf("resolve: counterparty lookup: %w", err)
		}
		if mapping != nil {
			return match.Verdict{Kind: match.KindSingleConfident, PersonID: mapping.PersonID}, nil
		}
	}
	return r.matcher.Match(ctx, match.HintsFromTransaction(normalized))
}

func hasIdentityHints(normalized *domain.NormalizedTransaction) bool {
	hints := match.HintsFromTransaction(normalized)
	return hints.Email != "" || hints.Phone != "" || hints.MemberID != "" ||
		hints.CustomerID != "" || hints.FullName != ""
}

func toTransaction(normalized *domain.NormalizedTransaction) *domain.Transaction {
	return &domain.Transaction{
		ExternalID:  normalized.ExternalID,
		Provider:    normalized.Provider,
		AmountMinor: normalized.AmountMinor,
		Currency:    normalized.Currency,
		OccurredAt:  normalized.OccurredAt,
		PersonName:  normalized.PersonName,
		ProductType: normalized.ProductType,
		Status:      normalized.Status,
		Confidence:  normalized.Confidence,
		Description: normalized.Description,
		Reference:   normalized.Reference,
		Metadata:    normalized.Metadata,
		Raw:         normalized.Raw,
		PersonID:    normalized.PersonID,
	}
}
