// Package inmemory implements the store interfaces with mutex-guarded maps.
// It is safe for concurrent use and is what tests and single-process
// development runs use; data is lost on restart.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rcallanan/studio-ledger/internal/domain"
	"github.com/rcallanan/studio-ledger/internal/match"
	"github.com/rcallanan/studio-ledger/internal/store"
)

// Store holds everything in memory.
type Store struct {
	mu           sync.RWMutex
	transactions map[string]*domain.Transaction // by internal id
	byExternalID map[string]string              // external id -> internal id
	persons      map[string]*domain.Person
	queue        map[string]*domain.QueueEntry
	mappings     map[string]*domain.CounterpartyMapping // provider "\x00" key
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		transactions: make(map[string]*domain.Transaction),
		byExternalID: make(map[string]string),
		persons:      make(map[string]*domain.Person),
		queue:        make(map[string]*domain.QueueEntry),
		mappings:     make(map[string]*domain.CounterpartyMapping),
	}
}

var _ store.Store = (*Store)(nil)

func copyTransaction(tx *domain.Transaction) *domain.Transaction {
	dup := *tx
	return &dup
}

func copyPerson(p *domain.Person) *domain.Person {
	dup := *p
	dup.Tags = append([]string(nil), p.Tags...)
	return &dup
}

func copyEntry(e *domain.QueueEntry) *domain.QueueEntry {
	dup := *e
	dup.CandidateIDs = append([]string(nil), e.CandidateIDs...)
	return &dup
}

// UpsertTransaction implements store.TransactionStore.
func (s *Store) UpsertTransaction(ctx context.Context, tx *domain.Transaction) (bool, error) {
	if tx.ExternalID == "" {
		return false, fmt.Errorf("UpsertTransaction: external id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byExternalID[tx.ExternalID]; ok {
		existing := s.transactions[id]
		updated := copyTransaction(tx)
		updated.ID = existing.ID
		updated.CreatedAt = existing.CreatedAt
		// Re-delivery of an already-attributed event keeps the attribution.
		if updated.PersonID == "" {
			updated.PersonID = existing.PersonID
		}
		s.transactions[id] = updated
		return false, nil
	}

	created := copyTransaction(tx)
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	s.transactions[created.ID] = created
	s.byExternalID[created.ExternalID] = created.ID
	return true, nil
}

// GetTransaction implements store.TransactionStore.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("GetTransaction %s: %w", id, store.ErrNotFound)
	}
	return copyTransaction(tx), nil
}

// GetTransactionByExternalID implements store.TransactionStore.
func (s *Store) GetTransactionByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExternalID[externalID]
	if !ok {
		return nil, fmt.Errorf("GetTransactionByExternalID %s: %w", externalID, store.ErrNotFound)
	}
	return copyTransaction(s.transactions[id]), nil
}

// ListTransactions implements store.TransactionStore.
func (s *Store) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		result = append(result, copyTransaction(tx))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OccurredAt.After(result[j].OccurredAt)
	})
	return result, nil
}

// ListTransactionsByPerson implements store.TransactionStore.
func (s *Store) ListTransactionsByPerson(ctx context.Context, personID string) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range s.transactions {
		if tx.PersonID == personID {
			result = append(result, copyTransaction(tx))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].OccurredAt.After(result[j].OccurredAt)
	})
	return result, nil
}

// CountTransactions implements store.TransactionStore.
func (s *Store) CountTransactions(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transactions), nil
}

// AttachTransactionPerson implements store.TransactionStore.
func (s *Store) AttachTransactionPerson(ctx context.Context, txID, personID string, status domain.Status, confidence domain.Confidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok {
		return fmt.Errorf("AttachTransactionPerson %s: %w", txID, store.ErrNotFound)
	}
	tx.PersonID = personID
	tx.Status = status
	tx.Confidence = confidence
	return nil
}

// CreatePerson implements store.PersonStore.
func (s *Store) CreatePerson(ctx context.Context, person *domain.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if person.ID == "" {
		person.ID = uuid.New().String()
	}
	if person.Stage == "" {
		person.Stage = domain.StageProspect
	}
	if person.CreatedAt.IsZero() {
		person.CreatedAt = time.Now().UTC()
	}
	s.persons[person.ID] = copyPerson(person)
	return nil
}

// GetPerson implements store.PersonStore.
func (s *Store) GetPerson(ctx context.Context, id string) (*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	person, ok := s.persons[id]
	if !ok {
		return nil, fmt.Errorf("GetPerson %s: %w", id, store.ErrNotFound)
	}
	return copyPerson(person), nil
}

// ListPersons implements store.PersonStore.
func (s *Store) ListPersons(ctx context.Context) ([]*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Person, 0, len(s.persons))
	for _, person := range s.persons {
		result = append(result, copyPerson(person))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) findPerson(pred func(*domain.Person) bool) *domain.Person {
	// Deterministic order so repeated lookups with colliding keys agree.
	ids := make([]string, 0, len(s.persons))
	for id := range s.persons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if pred(s.persons[id]) {
			return copyPerson(s.persons[id])
		}
	}
	return nil
}

// FindPersonByMemberID implements match.Directory.
func (s *Store) FindPersonByMemberID(ctx context.Context, memberID string) (*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findPerson(func(p *domain.Person) bool {
		return p.MemberID != "" && p.MemberID == memberID
	}), nil
}

// FindPersonByCustomerID implements match.Directory.
func (s *Store) FindPersonByCustomerID(ctx context.Context, customerID string) (*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findPerson(func(p *domain.Person) bool {
		return p.CustomerID != "" && p.CustomerID == customerID
	}), nil
}

// FindPersonByEmail implements match.Directory.
func (s *Store) FindPersonByEmail(ctx context.Context, email string) (*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findPerson(func(p *domain.Person) bool {
		return p.Email != "" && match.NormalizeEmail(p.Email) == email
	}), nil
}

// FindPersonByPhoneTail implements match.Directory.
func (s *Store) FindPersonByPhoneTail(ctx context.Context, tail string) (*domain.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findPerson(func(p *domain.Person) bool {
		digits := match.NormalizePhone(p.Phone)
		return digits != "" && strings.HasSuffix(digits, tail)
	}), nil
}

// ListPersonCandidates implements match.Directory.
func (s *Store) ListPersonCandidates(ctx context.Context, limit int) ([]*domain.Person, error) {
	all, err := s.ListPersons(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// UpdatePersonLTV implements store.PersonStore.
func (s *Store) UpdatePersonLTV(ctx context.Context, personID string, ltv domain.LTVTotals, stage domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	person, ok := s.persons[personID]
	if !ok {
		return fmt.Errorf("UpdatePersonLTV %s: %w", personID, store.ErrNotFound)
	}
	person.LTV = ltv
	person.Stage = stage
	return nil
}

// CreateQueueEntry implements store.QueueStore.
func (s *Store) CreateQueueEntry(ctx context.Context, entry *domain.QueueEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.queue {
		if existing.TransactionID == entry.TransactionID {
			return false, nil
		}
	}

	created := copyEntry(entry)
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	s.queue[created.ID] = created
	entry.ID = created.ID
	return true, nil
}

// GetQueueEntry implements store.QueueStore.
func (s *Store) GetQueueEntry(ctx context.Context, id string) (*domain.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.queue[id]
	if !ok {
		return nil, fmt.Errorf("GetQueueEntry %s: %w", id, store.ErrNotFound)
	}
	return copyEntry(entry), nil
}

// FindQueueEntryByTransaction implements store.QueueStore.
func (s *Store) FindQueueEntryByTransaction(ctx context.Context, txID string) (*domain.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.queue {
		if entry.TransactionID == txID {
			return copyEntry(entry), nil
		}
	}
	return nil, nil
}

// ListQueueEntries implements store.QueueStore.
func (s *Store) ListQueueEntries(ctx context.Context) ([]*domain.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.QueueEntry, 0, len(s.queue))
	for _, entry := range s.queue {
		result = append(result, copyEntry(entry))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteQueueEntry implements store.QueueStore.
func (s *Store) DeleteQueueEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queue[id]; !ok {
		return fmt.Errorf("DeleteQueueEntry %s: %w", id, store.ErrNotFound)
	}
	delete(s.queue, id)
	return nil
}

func mappingKey(provider domain.Provider, key string) string {
	return string(provider) + "\x00" + strings.ToLower(key)
}

// FindCounterpartyMapping implements store.CounterpartyStore.
func (s *Store) FindCounterpartyMapping(ctx context.Context, provider domain.Provider, key string) (*domain.CounterpartyMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mapping, ok := s.mappings[mappingKey(provider, key)]
	if !ok {
		return nil, nil
	}
	dup := *mapping
	return &dup, nil
}

// PutCounterpartyMapping implements store.CounterpartyStore.
func (s *Store) PutCounterpartyMapping(ctx context.Context, mapping *domain.CounterpartyMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dup := *mapping
	dup.Key = strings.ToLower(dup.Key)
	s.mappings[mappingKey(dup.Provider, dup.Key)] = &dup
	return nil
}
