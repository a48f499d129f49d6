package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcallanan/studio-ledger/internal/domain"
	"github.com/rcallanan/studio-ledger/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTransaction(externalID string) *domain.Transaction {
	return &domain.Transaction{
		ExternalID:  externalID,
		Provider:    domain.ProviderStripe,
		AmountMinor: 4500,
		Currency:    "EUR",
		OccurredAt:  time.Date(2026, 1, 15, 12, 30, 0, 0, time.UTC),
		PersonName:  "Aoife Byrne",
		ProductType: "Unlimited Classes",
		Status:      domain.StatusCompleted,
		Confidence:  domain.ConfidenceHigh,
		Description: "Monthly membership",
		Metadata:    map[string]any{"email": "aoife@example.com"},
		Raw:         map[string]any{"id": "ch_1", "amount": float64(4500)},
	}
}

func TestUpsertTransactionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.UpsertTransaction(ctx, sampleTransaction("stripe_ch_1"))
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if !created {
		t.Error("first upsert should create")
	}

	got, err := s.GetTransactionByExternalID(ctx, "stripe_ch_1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.ID == "" {
		t.Error("stored transaction has no id")
	}
	if got.AmountMinor != 4500 || got.Currency != "EUR" {
		t.Errorf("amount = %d %s", got.AmountMinor, got.Currency)
	}
	if !got.OccurredAt.Equal(time.Date(2026, 1, 15, 12, 30, 0, 0, time.UTC)) {
		t.Errorf("OccurredAt = %v", got.OccurredAt)
	}
	if got.Metadata["email"] != "aoife@example.com" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
	if got.Raw["id"] != "ch_1" {
		t.Errorf("Raw = %v", got.Raw)
	}
}

func TestUpsertTransactionIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertTransaction(ctx, sampleTransaction("stripe_ch_1")); err != nil {
		t.Fatal(err)
	}
	created, err := s.UpsertTransaction(ctx, sampleTransaction("stripe_ch_1"))
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("re-delivery must not create a second row")
	}

	count, err := s.CountTransactions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestUpsertKeepsAttribution(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	person := &domain.Person{FirstName: "Aoife", LastName: "Byrne"}
	if err := s.CreatePerson(ctx, person); err != nil {
		t.Fatal(err)
	}

	first := sampleTransaction("stripe_ch_1")
	first.PersonID = person.ID
	if _, err := s.UpsertTransaction(ctx, first); err != nil {
		t.Fatal(err)
	}

	// Provider retries never carry our person id.
	if _, err := s.UpsertTransaction(ctx, sampleTransaction("stripe_ch_1")); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetTransactionByExternalID(ctx, "stripe_ch_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.PersonID != person.ID {
		t.Errorf("PersonID = %q, re-delivery dropped the attribution", got.PersonID)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetTransaction(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPersonLookups(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	person := &domain.Person{
		FirstName:  "Aoife",
		LastName:   "Byrne",
		Email:      "Aoife.Byrne@Example.com",
		Phone:      "+353 86 123 4567",
		MemberID:   "m_42",
		CustomerID: "cus_42",
	}
	if err := s.CreatePerson(ctx, person); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		lookup func() (*domain.Person, error)
		want   bool
	}{
		{"by member id", func() (*domain.Person, error) { return s.FindPersonByMemberID(ctx, "m_42") }, true},
		{"by customer id", func() (*domain.Person, error) { return s.FindPersonByCustomerID(ctx, "cus_42") }, true},
		{"by normalized email", func() (*domain.Person, error) { return s.FindPersonByEmail(ctx, "aoife.byrne@example.com") }, true},
		{"by phone tail", func() (*domain.Person, error) { return s.FindPersonByPhoneTail(ctx, "4567") }, true},
		{"miss is nil not error", func() (*domain.Person, error) { return s.FindPersonByEmail(ctx, "other@example.com") }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.lookup()
			if err != nil {
				t.Fatalf("lookup error: %v", err)
			}
			if tt.want && (got == nil || got.ID != person.ID) {
				t.Errorf("got = %+v, want person %s", got, person.ID)
			}
			if !tt.want && got != nil {
				t.Errorf("got = %+v, want nil", got)
			}
		})
	}
}

func TestQueueEntryLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertTransaction(ctx, sampleTransaction("stripe_ch_1")); err != nil {
		t.Fatal(err)
	}
	tx, err := s.GetTransactionByExternalID(ctx, "stripe_ch_1")
	if err != nil {
		t.Fatal(err)
	}

	entry := &domain.QueueEntry{
		TransactionID: tx.ID,
		Reason:        domain.ReasonAmbiguousMatch,
		CandidateIDs:  []string{"p-1", "p-2"},
	}
	created, err := s.CreateQueueEntry(ctx, entry)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("first entry should be created")
	}

	// One open entry per transaction.
	dup, err := s.CreateQueueEntry(ctx, &domain.QueueEntry{TransactionID: tx.ID, Reason: domain.ReasonNoMatch})
	if err != nil {
		t.Fatal(err)
	}
	if dup {
		t.Error("duplicate entry for the same transaction was created")
	}

	found, err := s.FindQueueEntryByTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.Reason != domain.ReasonAmbiguousMatch {
		t.Fatalf("found = %+v", found)
	}
	if len(found.CandidateIDs) != 2 {
		t.Errorf("CandidateIDs = %v", found.CandidateIDs)
	}

	if err := s.DeleteQueueEntry(ctx, found.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteQueueEntry(ctx, found.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestCounterpartyMappings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.PutCounterpartyMapping(ctx, &domain.CounterpartyMapping{
		Provider: domain.ProviderStarling,
		Key:      "S MURPHY",
		PersonID: "p-1",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Lookups are case-insensitive on the counterparty name.
	mapping, err := s.FindCounterpartyMapping(ctx, domain.ProviderStarling, "s murphy")
	if err != nil {
		t.Fatal(err)
	}
	if mapping == nil || mapping.PersonID != "p-1" {
		t.Fatalf("mapping = %+v", mapping)
	}

	// Re-pointing a key overwrites.
	err = s.PutCounterpartyMapping(ctx, &domain.CounterpartyMapping{
		Provider: domain.ProviderStarling,
		Key:      "S MURPHY",
		PersonID: "p-2",
	})
	if err != nil {
		t.Fatal(err)
	}
	mapping, err = s.FindCounterpartyMapping(ctx, domain.ProviderStarling, "S MURPHY")
	if err != nil {
		t.Fatal(err)
	}
	if mapping.PersonID != "p-2" {
		t.Errorf("PersonID = %q, want p-2", mapping.PersonID)
	}

	// Provider scopes the key space.
	other, err := s.FindCounterpartyMapping(ctx, domain.ProviderManual, "S MURPHY")
	if err != nil {
		t.Fatal(err)
	}
	if other != nil {
		t.Errorf("other = %+v, want nil", other)
	}
}

func TestUpdatePersonLTV(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	person := &domain.Person{FirstName: "Aoife"}
	if err := s.CreatePerson(ctx, person); err != nil {
		t.Fatal(err)
	}

	totals := domain.LTVTotals{AllMinor: 9000, ClassesMinor: 9000}
	if err := s.UpdatePersonLTV(ctx, person.ID, totals, domain.StageClient); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPerson(ctx, person.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LTV.AllMinor != 9000 || got.LTV.ClassesMinor != 9000 {
		t.Errorf("LTV = %+v", got.LTV)
	}
	if got.Stage != domain.StageClient {
		t.Errorf("Stage = %q", got.Stage)
	}

	if err := s.UpdatePersonLTV(ctx, "nope", totals, domain.StageClient); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListTransactionsOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := sampleTransaction("stripe_ch_old")
	older.OccurredAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := sampleTransaction("stripe_ch_new")
	newer.OccurredAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for _, tx := range []*domain.Transaction{older, newer} {
		if _, err := s.UpsertTransaction(ctx, tx); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListTransactions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d", len(list))
	}
	if list[0].ExternalID != "stripe_ch_new" {
		t.Errorf("first = %s, want newest first", list[0].ExternalID)
	}
}
