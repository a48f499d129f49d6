// Package ltv derives lifetime-value totals for persons from their attached
// transactions. Totals are always recomputed from scratch; nothing in this
// package does incremental arithmetic on stored values.
package ltv

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rcallanan/studio-ledger/internal/domain"
)

// PersonReader is the subset of the person store the aggregator reads from.
type PersonReader interface {
	GetPerson(ctx context.Context, id string) (*domain.Person, error)
}

// PersonWriter persists recomputed totals and stage.
type PersonWriter interface {
	UpdatePersonLTV(ctx context.Context, personID string, ltv domain.LTVTotals, stage domain.Stage) error
}

// TransactionReader lists a person's transactions.
type TransactionReader interface {
	ListTransactionsByPerson(ctx context.Context, personID string) ([]*domain.Transaction, error)
}

// Aggregator recomputes a person's LTV totals and lifecycle stage from their
// full transaction history.
type Aggregator struct {
	persons      PersonReader
	writer       PersonWriter
	transactions TransactionReader
	classifier   *Classifier
	logger       zerolog.Logger
}

// NewAggregator creates an Aggregator. A nil classifier falls back to the
// built-in keyword sets.
func NewAggregator(persons PersonReader, writer PersonWriter, transactions TransactionReader, classifier *Classifier, logger zerolog.Logger) *Aggregator {
	if classifier == nil {
		classifier = NewClassifier()
	}
	return &Aggregator{
		persons:      persons,
		writer:       writer,
		transactions: transactions,
		classifier:   classifier,
		logger:       logger,
	}
}

// Compute derives totals from a transaction history without touching storage.
// Only revenue-qualifying transactions contribute; ads attribution is
// all-or-nothing based on the person's acquisition channel.
func (a *Aggregator) Compute(person *domain.Person, transactions []*domain.Transaction) domain.LTVTotals {
	var totals domain.LTVTotals
	for _, tx := range transactions {
		if !domain.IsRevenueQualifying(tx.Status) {
			continue
		}
		totals.AllMinor += tx.AmountMinor

		switch a.classifier.Classify(tx) {
		case domain.CategoryPT:
			totals.PTMinor += tx.AmountMinor
		case domain.CategoryClasses:
			totals.ClassesMinor += tx.AmountMinor
		case domain.CategorySixWeek:
			totals.SixWeekMinor += tx.AmountMinor
		case domain.CategoryOnlineCoaching:
			totals.OnlineCoachingMinor += tx.AmountMinor
		case domain.CategoryCommunity:
			totals.CommunityMinor += tx.AmountMinor
		case domain.CategoryCorporate:
			totals.CorporateMinor += tx.AmountMinor
		}
	}
	if person.FromPaidChannel() {
		totals.AdsMinor = totals.AllMinor
	}
	return totals
}

// Recompute re-reads a person's transactions, derives fresh totals, and
// persists them. A person with any revenue becomes a client; the stage never
// reverts to prospect even if totals later drop to zero.
func (a *Aggregator) Recompute(ctx context.Context, personID string) (domain.LTVTotals, error) {
	person, err := a.persons.GetPerson(ctx, personID)
	if err != nil {
		return domain.LTVTotals{}, fmt.Errorf("Recompute: load person: %w", err)
	}

	transactions, err := a.transactions.ListTransactionsByPerson(ctx, personID)
	if err != nil {
		return domain.LTVTotals{}, fmt.Errorf("Recompute: list transactions: %w", err)
	}

	totals := a.Compute(person, transactions)

	stage := person.Stage
	if totals.AllMinor > 0 {
		stage = domain.StageClient
	}

	if err := a.writer.UpdatePersonLTV(ctx, personID, totals, stage); err != nil {
		return domain.LTVTotals{}, fmt.Errorf("Recompute: persist totals: %w", err)
	}

	a.logger.Debug().
		Str("person_id", personID).
		Int64("ltv_all_minor", totals.AllMinor).
		Str("stage", string(stage)).
		Msg("recomputed lifetime value")

	return totals, nil
}

// RecomputeMany recomputes each distinct person id once, skipping empties and
// duplicates. Failures are logged and counted, not fatal: one bad person must
// not block the rest of a batch.
func (a *Aggregator) RecomputeMany(ctx context.Context, personIDs []string) int {
	seen := make(map[string]bool, len(personIDs))
	failures := 0
	for _, id := range personIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, err := a.Recompute(ctx, id); err != nil {
			failures++
			a.logger.Error().Err(err).Str("person_id", id).Msg("ltv recompute failed")
		}
	}
	return failures
}
