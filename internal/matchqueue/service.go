// Package matchqueue implements the manual review workflow: listing open
// queue entries, attaching them to persons, and bulk retry after counterparty
// mappings or directory data improve.
package matchqueue

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rcallanan/studio-ledger/internal/domain"
	"github.com/rcallanan/studio-ledger/internal/match"
	"github.com/rcallanan/studio-ledger/internal/store"
)

// Matcher re-resolves identity hints during bulk retry.
type Matcher interface {
	Match(ctx context.Context, hints match.Hints) (match.Verdict, error)
}

// Aggregator recomputes lifetime values after an attachment.
type Aggregator interface {
	Recompute(ctx context.Context, personID string) (domain.LTVTotals, error)
}

// Entry is a queue entry hydrated with its transaction and any candidate
// persons, the shape review tooling needs to render a decision.
type Entry struct {
	Queue       *domain.QueueEntry  `json:"queue"`
	Transaction *domain.Transaction `json:"transaction"`
	Candidates  []*domain.Person    `json:"candidates,omitempty"`
}

// Attachment names one manual resolution in a bulk request.
type Attachment struct {
	EntryID  string `json:"entry_id"`
	PersonID string `json:"person_id"`
}

// RetryOutcome summarizes a bulk retry pass.
type RetryOutcome struct {
	Scanned  int `json:"scanned"`
	Attached int `json:"attached"`
	Skipped  int `json:"skipped"`
}

// Service coordinates queue resolution against the store.
type Service struct {
	store      store.Store
	matcher    Matcher
	aggregator Aggregator
	logger     zerolog.Logger
}

// NewService creates a Service.
func NewService(s store.Store, matcher Matcher, aggregator Aggregator, logger zerolog.Logger) *Service {
	return &Service{store: s, matcher: matcher, aggregator: aggregator, logger: logger}
}

// List returns open queue entries oldest first, hydrated with their
// transactions and ranked candidates. Entries whose transaction has vanished
// are skipped rather than failing the whole listing.
func (s *Service) List(ctx context.Context) ([]*Entry, error) {
	entries, err := s.store.ListQueueEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	result := make([]*Entry, 0, len(entries))
	for _, entry := range entries {
		tx, err := s.store.GetTransaction(ctx, entry.TransactionID)
		if err != nil {
			s.logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("queue entry has no transaction")
			continue
		}
		hydrated := &Entry{Queue: entry, Transaction: tx}
		for _, id := range entry.CandidateIDs {
			person, err := s.store.GetPerson(ctx, id)
			if err != nil {
				continue
			}
			hydrated.Candidates = append(hydrated.Candidates, person)
		}
		result = append(result, hydrated)
	}
	return result, nil
}

// Attach resolves one queue entry to an existing person: the transaction is
// attributed, the entry deleted, the person's lifetime value recomputed. For
// bank-feed transactions the counterparty name is remembered so future feed
// items auto-attach.
func (s *Service) Attach(ctx context.Context, entryID, personID string) (*domain.Transaction, error) {
	entry, err := s.store.GetQueueEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("Attach: %w", err)
	}
	person, err := s.store.GetPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("Attach: %w", err)
	}
	tx, err := s.store.GetTransaction(ctx, entry.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("Attach: %w", err)
	}

	status := tx.Status
	if status != domain.StatusFailed {
		status = domain.StatusCompleted
	}
	if err := s.store.AttachTransactionPerson(ctx, tx.ID, person.ID, status, domain.ConfidenceMatched); err != nil {
		return nil, fmt.Errorf("Attach: %w", err)
	}
	if err := s.store.DeleteQueueEntry(ctx, entry.ID); err != nil {
		return nil, fmt.Errorf("Attach: remove queue entry: %w", err)
	}

	if tx.Provider == domain.ProviderStarling && tx.PersonName != "" {
		err := s.store.PutCounterpartyMapping(ctx, &domain.CounterpartyMapping{
			Provider: tx.Provider,
			Key:      tx.PersonName,
			PersonID: person.ID,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("counterparty", tx.PersonName).Msg("counterparty mapping not saved")
		}
	}

	if _, err := s.aggregator.Recompute(ctx, person.ID); err != nil {
		s.logger.Error().Err(err).Str("person_id", person.ID).Msg("ltv recompute after attach failed")
	}

	s.logger.Info().
		Str("entry_id", entry.ID).
		Str("transaction_id", tx.ID).
		Str("person_id", person.ID).
		Msg("queue entry resolved")

	return s.store.GetTransaction(ctx, tx.ID)
}

// BulkAttach applies many attachments, isolating failures per entry.
// It returns how many succeeded and the first error encountered, if any.
func (s *Service) BulkAttach(ctx context.Context, attachments []Attachment) (int, error) {
	attached := 0
	var firstErr error
	for _, a := range attachments {
		if _, err := s.Attach(ctx, a.EntryID, a.PersonID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Error().Err(err).Str("entry_id", a.EntryID).Msg("bulk attach entry failed")
			continue
		}
		attached++
	}
	return attached, firstErr
}

// CreateAndAttach creates a new person from the given details and resolves
// the queue entry against them, for payers the directory has never seen.
func (s *Service) CreateAndAttach(ctx context.Context, entryID string, person *domain.Person) (*domain.Transaction, error) {
	if person.FullName() == "" && person.Email == "" {
		return nil, fmt.Errorf("CreateAndAttach: person needs a name or an email")
	}
	if err := s.store.CreatePerson(ctx, person); err != nil {
		return nil, fmt.Errorf("CreateAndAttach: %w", err)
	}
	return s.Attach(ctx, entryID, person.ID)
}

// RetryBulk re-runs matching for every open entry of one provider. Entries
// that now resolve to a single confident person are attached; the rest stay
// queued. Counterparty mappings are consulted first, so attaching one bank
// payment via Attach unlocks all of that payer's other feed items here.
func (s *Service) RetryBulk(ctx context.Context, provider domain.Provider) (RetryOutcome, error) {
	entries, err := s.store.ListQueueEntries(ctx)
	if err != nil {
		return RetryOutcome{}, fmt.Errorf("RetryBulk: %w", err)
	}

	var outcome RetryOutcome
	for _, entry := range entries {
		tx, err := s.store.GetTransaction(ctx, entry.TransactionID)
		if err != nil || tx.Provider != provider {
			continue
		}
		outcome.Scanned++

		personID, err := s.resolveRetry(ctx, tx)
		if err != nil {
			s.logger.Error().Err(err).Str("entry_id", entry.ID).Msg("bulk retry match failed")
			outcome.Skipped++
			continue
		}
		if personID == "" {
			outcome.Skipped++
			continue
		}
		if _, err := s.Attach(ctx, entry.ID, personID); err != nil {
			s.logger.Error().Err(err).Str("entry_id", entry.ID).Msg("bulk retry attach failed")
			outcome.Skipped++
			continue
		}
		outcome.Attached++
	}
	return outcome, nil
}

func (s *Service) resolveRetry(ctx context.Context, tx *domain.Transaction) (string, error) {
	if tx.PersonName != "" {
		mapping, err := s.store.FindCounterpartyMapping(ctx, tx.Provider, tx.PersonName)
		if err != nil {
			return "", err
		}
		if mapping != nil {
			return mapping.PersonID, nil
		}
	}

	normalized := &domain.NormalizedTransaction{
		PersonName: tx.PersonName,
		Metadata:   tx.Metadata,
	}
	verdict, err := s.matcher.Match(ctx, match.HintsFromTransaction(normalized))
	if err != nil {
		return "", err
	}
	if verdict.Kind == match.KindSingleConfident {
		return verdict.PersonID, nil
	}
	return "", nil
}
