// Package store defines the persistence operations the reconciliation core
// runs against. The store is the only shared mutable state in the system:
// matching reads and all transaction/person writes go through it, with no
// in-process caching of directory data between calls.
package store

import (
	"context"
	"errors"

	"github.com/rcallanan/studio-ledger/internal/domain"
)

// ErrNotFound is returned by Get operations for missing rows. Find
// operations return (nil, nil) instead, since absence is an ordinary
// matching outcome rather than a failure.
var ErrNotFound = errors.New("store: not found")

// TransactionStore persists transactions keyed by their external id.
type TransactionStore interface {
	// UpsertTransaction inserts or updates by ExternalID and reports
	// whether a new row was created. Updates never clear an existing
	// person attribution unless the incoming record carries one.
	UpsertTransaction(ctx context.Context, tx *domain.Transaction) (created bool, err error)

	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetTransactionByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error)

	// ListTransactions returns all transactions ordered by OccurredAt
	// descending (business time, not ingest time).
	ListTransactions(ctx context.Context) ([]*domain.Transaction, error)
	ListTransactionsByPerson(ctx context.Context, personID string) ([]*domain.Transaction, error)
	CountTransactions(ctx context.Context) (int, error)

	// AttachTransactionPerson sets the person attribution together with
	// the caller-resolved status and confidence.
	AttachTransactionPerson(ctx context.Context, txID, personID string, status domain.Status, confidence domain.Confidence) error
}

// PersonStore is the person directory. The Find methods back the Identity
// Matcher's exact-lookup chain and return (nil, nil) on no match.
type PersonStore interface {
	CreatePerson(ctx context.Context, person *domain.Person) error
	GetPerson(ctx context.Context, id string) (*domain.Person, error)
	ListPersons(ctx context.Context) ([]*domain.Person, error)

	FindPersonByMemberID(ctx context.Context, memberID string) (*domain.Person, error)
	FindPersonByCustomerID(ctx context.Context, customerID string) (*domain.Person, error)
	FindPersonByEmail(ctx context.Context, email string) (*domain.Person, error)
	FindPersonByPhoneTail(ctx context.Context, tail string) (*domain.Person, error)
	ListPersonCandidates(ctx context.Context, limit int) ([]*domain.Person, error)

	// UpdatePersonLTV overwrites the derived LTV totals and lifecycle
	// stage. Totals are always whole recomputed values, never deltas, so
	// repeated calls converge.
	UpdatePersonLTV(ctx context.Context, personID string, ltv domain.LTVTotals, stage domain.Stage) error
}

// QueueStore holds open manual match queue entries. Resolution deletes.
type QueueStore interface {
	// CreateQueueEntry adds an entry unless an open entry already
	// references the same transaction; it reports whether one was created.
	CreateQueueEntry(ctx context.Context, entry *domain.QueueEntry) (created bool, err error)

	GetQueueEntry(ctx context.Context, id string) (*domain.QueueEntry, error)
	FindQueueEntryByTransaction(ctx context.Context, txID string) (*domain.QueueEntry, error)

	// ListQueueEntries returns open entries oldest first.
	ListQueueEntries(ctx context.Context) ([]*domain.QueueEntry, error)
	DeleteQueueEntry(ctx context.Context, id string) error
}

// CounterpartyStore maps bank-feed counterparty names to people. Keys are
// matched lower-cased.
type CounterpartyStore interface {
	FindCounterpartyMapping(ctx context.Context, provider domain.Provider, key string) (*domain.CounterpartyMapping, error)
	PutCounterpartyMapping(ctx context.Context, mapping *domain.CounterpartyMapping) error
}

// Store is the full persistence surface.
type Store interface {
	TransactionStore
	PersonStore
	QueueStore
	CounterpartyStore
}
