// Package sqlite implements the store interfaces on SQLite. It is the
// production system of record; the ON CONFLICT upsert on external_id gives
// the engine its idempotence guarantee at the storage layer.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rcallanan/studio-ledger/internal/domain"
	"github.com/rcallanan/studio-ledger/internal/match"
	"github.com/rcallanan/studio-ledger/internal/store"
)

const timeFormat = time.RFC3339Nano

// Store wraps a SQLite database handle.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies
// migrations. Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("Open: open database %q: %w", path, err)
	}
	// Concurrent batches share this handle; SQLite serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies all schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range Migrations() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("Migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func marshalJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalMap(s sql.NullString) map[string]any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil
	}
	return m
}

func unmarshalStrings(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(s.String), &list); err != nil {
		return nil
	}
	return list
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

// UpsertTransaction implements store.TransactionStore.
func (s *Store) UpsertTransaction(ctx context.Context, tx *domain.Transaction) (bool, error) {
	if tx.ExternalID == "" {
		return false, fmt.Errorf("UpsertTransaction: external id is required")
	}

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE external_id = ?)`, tx.ExternalID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("UpsertTransaction: existence check: %w", err)
	}

	id := tx.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	metadata, err := marshalJSON(tx.Metadata)
	if err != nil {
		return false, fmt.Errorf("UpsertTransaction: encode metadata: %w", err)
	}
	raw, err := marshalJSON(tx.Raw)
	if err != nil {
		return false, fmt.Errorf("UpsertTransaction: encode raw: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, external_id, provider, amount_minor, currency, occurred_at,
			person_name, product_type, status, confidence, description,
			reference, metadata, raw, person_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			provider     = excluded.provider,
			amount_minor = excluded.amount_minor,
			currency     = excluded.currency,
			occurred_at  = excluded.occurred_at,
			person_name  = excluded.person_name,
			product_type = excluded.product_type,
			status       = excluded.status,
			confidence   = excluded.confidence,
			description  = excluded.description,
			reference    = excluded.reference,
			metadata     = excluded.metadata,
			raw          = excluded.raw,
			person_id    = CASE WHEN excluded.person_id != ''
			               THEN excluded.person_id ELSE transactions.person_id END`,
		id, tx.ExternalID, string(tx.Provider), tx.AmountMinor, tx.Currency,
		tx.OccurredAt.UTC().Format(timeFormat), tx.PersonName, tx.ProductType,
		string(tx.Status), string(tx.Confidence), tx.Description, tx.Reference,
		metadata, raw, tx.PersonID, createdAt.Format(timeFormat),
	)
	if err != nil {
		return false, fmt.Errorf("UpsertTransaction %s: %w", tx.ExternalID, err)
	}
	return !exists, nil
}

const transactionColumns = `id, external_id, provider, amount_minor, currency,
	occurred_at, person_name, product_type, status, confidence, description,
	reference, metadata, raw, person_id, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var (
		tx                   domain.Transaction
		provider             string
		status, confidence   string
		occurredAt, created  string
		metadata, raw        sql.NullString
	)
	err := row.Scan(&tx.ID, &tx.ExternalID, &provider, &tx.AmountMinor,
		&tx.Currency, &occurredAt, &tx.PersonName, &tx.ProductType, &status,
		&confidence, &tx.Description, &tx.Reference, &metadata, &raw,
		&tx.PersonID, &created)
	if err != nil {
		return nil, err
	}
	tx.Provider = domain.Provider(provider)
	tx.Status = domain.Status(status)
	tx.Confidence = domain.Confidence(confidence)
	tx.OccurredAt = parseTime(occurredAt)
	tx.CreatedAt = parseTime(created)
	tx.Metadata = unmarshalMap(metadata)
	tx.Raw = unmarshalMap(raw)
	return &tx, nil
}

// GetTransaction implements store.TransactionStore.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("GetTransaction %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction %s: %w", id, err)
	}
	return tx, nil
}

// GetTransactionByExternalID implements store.TransactionStore.
func (s *Store) GetTransactionByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE external_id = ?`, externalID)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("GetTransactionByExternalID %s: %w", externalID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransactionByExternalID %s: %w", externalID, err)
	}
	return tx, nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

// ListTransactions implements store.TransactionStore.
func (s *Store) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	// Business time ordering, not ingest time.
	result, err := s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions ORDER BY occurred_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return result, nil
}

// ListTransactionsByPerson implements store.TransactionStore.
func (s *Store) ListTransactionsByPerson(ctx context.Context, personID string) ([]*domain.Transaction, error) {
	result, err := s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE person_id = ? ORDER BY occurred_at DESC`,
		personID)
	if err != nil {
		return nil, fmt.Errorf("ListTransactionsByPerson %s: %w", personID, err)
	}
	return result, nil
}

// CountTransactions implements store.TransactionStore.
func (s *Store) CountTransactions(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("CountTransactions: %w", err)
	}
	return count, nil
}

// AttachTransactionPerson implements store.TransactionStore.
func (s *Store) AttachTransactionPerson(ctx context.Context, txID, personID string, status domain.Status, confidence domain.Confidence) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET person_id = ?, status = ?, confidence = ? WHERE id = ?`,
		personID, string(status), string(confidence), txID)
	if err != nil {
		return fmt.Errorf("AttachTransactionPerson %s: %w", txID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("AttachTransactionPerson %s: %w", txID, err)
	}
	if affected == 0 {
		return fmt.Errorf("AttachTransactionPerson %s: %w", txID, store.ErrNotFound)
	}
	return nil
}

// CreatePerson implements store.PersonStore.
func (s *Store) CreatePerson(ctx context.Context, person *domain.Person) error {
	if person.ID == "" {
		person.ID = uuid.New().String()
	}
	if person.Stage == "" {
		person.Stage = domain.StageProspect
	}
	if person.CreatedAt.IsZero() {
		person.CreatedAt = time.Now().UTC()
	}

	tags, err := marshalJSON(person.Tags)
	if err != nil {
		return fmt.Errorf("CreatePerson: encode tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO persons (
			id, first_name, last_name, email, phone, phone_digits, member_id,
			customer_id, source, tags, stage,
			ltv_all_minor, ltv_ads_minor, ltv_pt_minor, ltv_classes_minor,
			ltv_six_week_minor, ltv_online_coaching_minor, ltv_community_minor,
			ltv_corporate_minor, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		person.ID, person.FirstName, person.LastName,
		match.NormalizeEmail(person.Email), person.Phone,
		match.NormalizePhone(person.Phone), person.MemberID, person.CustomerID,
		person.Source, tags, string(person.Stage),
		person.LTV.AllMinor, person.LTV.AdsMinor, person.LTV.PTMinor,
		person.LTV.ClassesMinor, person.LTV.SixWeekMinor,
		person.LTV.OnlineCoachingMinor, person.LTV.CommunityMinor,
		person.LTV.CorporateMinor, person.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("CreatePerson %s: %w", person.ID, err)
	}
	return nil
}

const personColumns = `id, first_name, last_name, email, phone, member_id,
	customer_id, source, tags, stage,
	ltv_all_minor, ltv_ads_minor, ltv_pt_minor, ltv_classes_minor,
	ltv_six_week_minor, ltv_online_coaching_minor, ltv_community_minor,
	ltv_corporate_minor, created_at`

func scanPerson(row interface{ Scan(...any) error }) (*domain.Person, error) {
	var (
		p       domain.Person
		stage   string
		tags    sql.NullString
		created string
	)
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone,
		&p.MemberID, &p.CustomerID, &p.Source, &tags, &stage,
		&p.LTV.AllMinor, &p.LTV.AdsMinor, &p.LTV.PTMinor, &p.LTV.ClassesMinor,
		&p.LTV.SixWeekMinor, &p.LTV.OnlineCoachingMinor, &p.LTV.CommunityMinor,
		&p.LTV.CorporateMinor, &created)
	if err != nil {
		return nil, err
	}
	p.Stage = domain.Stage(stage)
	p.Tags = unmarshalStrings(tags)
	p.CreatedAt = parseTime(created)
	return &p, nil
}

func (s *Store) findPersonWhere(ctx context.Context, where string, args ...any) (*domain.Person, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM persons WHERE `+where+` ORDER BY id LIMIT 1`, args...)
	person, err := scanPerson(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return person, nil
}

// GetPerson implements store.PersonStore.
func (s *Store) GetPerson(ctx context.Context, id string) (*domain.Person, error) {
	person, err := s.findPersonWhere(ctx, `id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("GetPerson %s: %w", id, err)
	}
	if person == nil {
		return nil, fmt.Errorf("GetPerson %s: %w", id, store.ErrNotFound)
	}
	return person, nil
}

// ListPersons implements store.PersonStore.
func (s *Store) ListPersons(ctx context.Context) ([]*domain.Person, error) {
	return s.listPersons(ctx, 0)
}

func (s *Store) listPersons(ctx context.Context, limit int) ([]*domain.Person, error) {
	query := `SELECT ` + personColumns + ` FROM persons ORDER BY id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListPersons: %w", err)
	}
	defer rows.Close()

	var result []*domain.Person
	for rows.Next() {
		person, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("ListPersons: %w", err)
		}
		result = append(result, person)
	}
	return result, rows.Err()
}

// FindPersonByMemberID implements match.Directory.
func (s *Store) FindPersonByMemberID(ctx context.Context, memberID string) (*domain.Person, error) {
	return s.findPersonWhere(ctx, `member_id != '' AND member_id = ?`, memberID)
}

// FindPersonByCustomerID implements match.Directory.
func (s *Store) FindPersonByCustomerID(ctx context.Context, customerID string) (*domain.Person, error) {
	return s.findPersonWhere(ctx, `customer_id != '' AND customer_id = ?`, customerID)
}

// FindPersonByEmail implements match.Directory. Emails are stored normalized.
func (s *Store) FindPersonByEmail(ctx context.Context, email string) (*domain.Person, error) {
	return s.findPersonWhere(ctx, `email != '' AND email = ?`, match.NormalizeEmail(email))
}

// FindPersonByPhoneTail implements match.Directory: suffix match against the
// digits-only phone column.
func (s *Store) FindPersonByPhoneTail(ctx context.Context, tail string) (*domain.Person, error) {
	if tail == "" {
		return nil, nil
	}
	return s.findPersonWhere(ctx, `phone_digits != '' AND phone_digits LIKE ?`,
		"%"+strings.ReplaceAll(strings.ReplaceAll(tail, "%", ""), "_", ""))
}

// ListPersonCandidates implements match.Directory.
func (s *Store) ListPersonCandidates(ctx context.Context, limit int) ([]*domain.Person, error) {
	return s.listPersons(ctx, limit)
}

// UpdatePersonLTV implements store.PersonStore.
func (s *Store) UpdatePersonLTV(ctx context.Context, personID string, ltv domain.LTVTotals, stage domain.Stage) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE persons SET
			ltv_all_minor = ?, ltv_ads_minor = ?, ltv_pt_minor = ?,
			ltv_classes_minor = ?, ltv_six_week_minor = ?,
			ltv_online_coaching_minor = ?, ltv_community_minor = ?,
			ltv_corporate_minor = ?, stage = ?
		WHERE id = ?`,
		ltv.AllMinor, ltv.AdsMinor, ltv.PTMinor, ltv.ClassesMinor,
		ltv.SixWeekMinor, ltv.OnlineCoachingMinor, ltv.CommunityMinor,
		ltv.CorporateMinor, string(stage), personID)
	if err != nil {
		return fmt.Errorf("UpdatePersonLTV %s: %w", personID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdatePersonLTV %s: %w", personID, err)
	}
	if affected == 0 {
		return fmt.Errorf("UpdatePersonLTV %s: %w", personID, store.ErrNotFound)
	}
	return nil
}

// CreateQueueEntry implements store.QueueStore. The UNIQUE constraint on
// transaction_id backs the one-open-entry-per-transaction invariant.
func (s *Store) CreateQueueEntry(ctx context.Context, entry *domain.QueueEntry) (bool, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	candidates, err := marshalJSON(entry.CandidateIDs)
	if err != nil {
		return false, fmt.Errorf("CreateQueueEntry: encode candidates: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO match_queue (id, transaction_id, reason, candidate_ids, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO NOTHING`,
		entry.ID, entry.TransactionID, string(entry.Reason), candidates,
		entry.CreatedAt.Format(timeFormat))
	if err != nil {
		return false, fmt.Errorf("CreateQueueEntry %s: %w", entry.TransactionID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("CreateQueueEntry %s: %w", entry.TransactionID, err)
	}
	return affected > 0, nil
}

func scanQueueEntry(row interface{ Scan(...any) error }) (*domain.QueueEntry, error) {
	var (
		entry      domain.QueueEntry
		reason     string
		candidates sql.NullString
		created    string
	)
	if err := row.Scan(&entry.ID, &entry.TransactionID, &reason, &candidates, &created); err != nil {
		return nil, err
	}
	entry.Reason = domain.QueueReason(reason)
	entry.CandidateIDs = unmarshalStrings(candidates)
	entry.CreatedAt = parseTime(created)
	return &entry, nil
}

// GetQueueEntry implements store.QueueStore.
func (s *Store) GetQueueEntry(ctx context.Context, id string) (*domain.QueueEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, transaction_id, reason, candidate_ids, created_at FROM match_queue WHERE id = ?`, id)
	entry, err := scanQueueEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("GetQueueEntry %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetQueueEntry %s: %w", id, err)
	}
	return entry, nil
}

// FindQueueEntryByTransaction implements store.QueueStore.
func (s *Store) FindQueueEntryByTransaction(ctx context.Context, txID string) (*domain.QueueEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, transaction_id, reason, candidate_ids, created_at FROM match_queue WHERE transaction_id = ?`, txID)
	entry, err := scanQueueEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindQueueEntryByTransaction %s: %w", txID, err)
	}
	return entry, nil
}

// ListQueueEntries implements store.QueueStore.
func (s *Store) ListQueueEntries(ctx context.Context) ([]*domain.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, transaction_id, reason, candidate_ids, created_at FROM match_queue ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("ListQueueEntries: %w", err)
	}
	defer rows.Close()

	var result []*domain.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("ListQueueEntries: %w", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// DeleteQueueEntry implements store.QueueStore.
func (s *Store) DeleteQueueEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM match_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("DeleteQueueEntry %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("DeleteQueueEntry %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("DeleteQueueEntry %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// FindCounterpartyMapping implements store.CounterpartyStore.
func (s *Store) FindCounterpartyMapping(ctx context.Context, provider domain.Provider, key string) (*domain.CounterpartyMapping, error) {
	var mapping domain.CounterpartyMapping
	var prov string
	err := s.db.QueryRowContext(ctx,
		`SELECT provider, key, person_id FROM counterparty_mappings WHERE provider = ? AND key = ?`,
		string(provider), strings.ToLower(key),
	).Scan(&prov, &mapping.Key, &mapping.PersonID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindCounterpartyMapping: %w", err)
	}
	mapping.Provider = domain.Provider(prov)
	return &mapping, nil
}

// PutCounterpartyMapping implements store.CounterpartyStore.
func (s *Store) PutCounterpartyMapping(ctx context.Context, mapping *domain.CounterpartyMapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO counterparty_mappings (provider, key, person_id)
		VALUES (?, ?, ?)
		ON CONFLICT(provider, key) DO UPDATE SET person_id = excluded.person_id`,
		string(mapping.Provider), strings.ToLower(mapping.Key), mapping.PersonID)
	if err != nil {
		return fmt.Errorf("PutCounterpartyMapping: %w", err)
	}
	return nil
}
