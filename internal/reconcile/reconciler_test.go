package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcallanan/studio-ledger/internal/domain"
	"github.com/rcallanan/studio-ledger/internal/ltv"
	"github.com/rcallanan/studio-ledger/internal/match"
	"github.com/rcallanan/studio-ledger/internal/store/inmemory"
)

func newTestReconciler(t *testing.T) (*Reconciler, *inmemory.Store) {
	t.Helper()
	st := inmemory.New()
	aggregator := ltv.NewAggregator(st, st, st, nil, zerolog.Nop())
	return New(st, match.NewMatcher(st), aggregator, zerolog.Nop()), st
}

func normalized(externalID string, amount int64, status domain.Status) *domain.NormalizedTransaction {
	return &domain.NormalizedTransaction{
		ExternalID:  externalID,
		Provider:    domain.ProviderManual,
		AmountMinor: amount,
		Currency:    "GBP",
		OccurredAt:  time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
		Status:      status,
		Confidence:  domain.ConfidenceMedium,
	}
}

func TestReconcile_AddsAndCounts(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()

	summary, err := r.Reconcile(ctx, []*domain.NormalizedTransaction{
		normalized("manual_1", 1000, domain.StatusCompleted),
		normalized("manual_2", 2000, domain.StatusCompleted),
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if summary.Added != 2 {
		t.Errorf("Added = %d, want 2", summary.Added)
	}
	if summary.Total != 2 {
		t.Errorf("Total = %d, want 2", summary.Total)
	}
}

func TestReconcile_RedeliveryAddsNothing(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()

	batch := []*domain.NormalizedTransaction{normalized("manual_1", 1000, domain.StatusCompleted)}
	if _, err := r.Reconcile(ctx, batch); err != nil {
		t.Fatal(err)
	}

	summary, err := r.Reconcile(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Added != 0 {
		t.Errorf("Added = %d, re-delivery must add nothing", summary.Added)
	}
	// Total is the store-wide count, not the batch size.
	if summary.Total != 1 {
		t.Errorf("Total = %d, want 1", summary.Total)
	}
}

func TestReconcile_MatchAttachesAndRecomputesLTV(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	person := &domain.Person{FirstName: "Aoife", LastName: "Byrne", Email: "aoife@example.com"}
	if err := st.CreatePerson(ctx, person); err != nil {
		t.Fatal(err)
	}

	tx := normalized("manual_1", 4500, domain.StatusCompleted)
	tx.ProductType = "Unlimited Classes"
	tx.Metadata = map[string]any{domain.HintEmail: "aoife@example.com"}

	summary, err := r.Reconcile(ctx, []*domain.NormalizedTransaction{tx})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Matched != 1 {
		t.Errorf("Matched = %d, want 1", summary.Matched)
	}
	if summary.Queued != 0 {
		t.Errorf("Queued = %d, want 0", summary.Queued)
	}

	stored, err := st.GetTransactionByExternalID(ctx, "manual_1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.PersonID != person.ID {
		t.Errorf("PersonID = %q, want %q", stored.PersonID, person.ID)
	}
	if stored.Confidence != domain.ConfidenceMatched {
		t.Errorf("Confidence = %q, want Matched", stored.Confidence)
	}

	updated, err := st.GetPerson(ctx, person.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.LTV.AllMinor != 4500 {
		t.Errorf("LTV AllMinor = %d, want 4500", updated.LTV.AllMinor)
	}
	if updated.Stage != domain.StageClient {
		t.Errorf("Stage = %q, want client", updated.Stage)
	}
}

func TestReconcile_NoMatchQueuesOnce(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	tx := normalized("manual_1", 1000, domain.StatusCompleted)
	tx.PersonName = "Complete Stranger"

	if _, err := r.Reconcile(ctx, []*domain.NormalizedTransaction{tx}); err != nil {
		t.Fatal(err)
	}

	// Same transaction again: still exactly one open entry.
	summary, err := r.Reconcile(ctx, []*domain.NormalizedTransaction{tx})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Queued != 0 {
		t.Errorf("Queued = %d on re-delivery, want 0", summary.Queued)
	}

	entries, err := st.ListQueueEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Reason != domain.ReasonNoMatch {
		t.Errorf("Reason = %q, want no_match", entries[0].Reason)
	}
}

func TestReconcile_NoHintsIsUnmatched(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	// A bank row with no counterparty carries no identity at all.
	tx := normalized("starling_1", 1000, domain.StatusCompleted)
	tx.Provider = domain.ProviderStarling

	if _, err := r.Reconcile(ctx, []*domain.NormalizedTransaction{tx}); err != nil {
		t.Fatal(err)
	}

	entries, err := st.ListQueueEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Reason != domain.ReasonUnmatched {
		t.Errorf("Reason = %q, want unmatched_transaction", entries[0].Reason)
	}
}

func TestReconcile_AmbiguousQueuesWithCandidates(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	for _, last := range []string{"Smith", "Smyth"} {
		if err := st.CreatePerson(ctx, &domain.Person{FirstName: "John", LastName: last}); err != nil {
			t.Fatal(err)
		}
	}

	tx := normalized("manual_1", 1000, domain.StatusCompleted)
	tx.PersonName = "John Smith"

	summary, err := r.Reconcile(ctx, []*domain.NormalizedTransaction{tx})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Queued != 1 || summary.Matched != 0 {
		t.Errorf("summary = %+v, want queued unmatched", summary)
	}

	entries, err := st.ListQueueEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Reason != domain.ReasonAmbiguousMatch {
		t.Errorf("Reason = %q", entries[0].Reason)
	}
	if len(entries[0].CandidateIDs) != 2 {
		t.Errorf("CandidateIDs = %v, want both candidates", entries[0].CandidateIDs)
	}
}

func TestReconcile_FailedTransactionNeverQueued(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	tx := normalized("manual_1", 1000, domain.StatusFailed)
	tx.PersonName = "Complete Stranger"

	summary, err := r.Reconcile(ctx, []*domain.NormalizedTransaction{tx})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Queued != 0 {
		t.Errorf("Queued = %d, failed payments are not reviewable", summary.Queued)
	}

	entries, err := st.ListQueueEntries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

func TestReconcile_MatchNeverOverridesFailed(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	person := &domain.Person{FirstName: "Aoife", Email: "aoife@example.com"}
	if err := st.CreatePerson(ctx, person); err != nil {
		t.Fatal(err)
	}

	tx := normalized("manual_1", 1000, domain.StatusFailed)
	tx.Metadata = map[string]any{domain.HintEmail: "aoife@example.com"}

	if _, err := r.Reconcile(ctx, []*domain.NormalizedTransaction{tx}); err != nil {
		t.Fatal(err)
	}

	stored, err := st.GetTransactionByExternalID(ctx, "manual_1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.StatusFailed {
		t.Errorf("Status = %q, a failed payment must stay failed", stored.Status)
	}
	if stored.PersonID != person.ID {
		t.Errorf("PersonID = %q, attribution still applies", stored.PersonID)
	}

	// And it contributes nothing to lifetime value.
	updated, err := st.GetPerson(ctx, person.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.LTV.AllMinor != 0 {
		t.Errorf("LTV AllMinor = %d, want 0", updated.LTV.AllMinor)
	}
}

func TestReconcile_CounterpartyMappingAutoAttaches(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	person := &domain.Person{FirstName: "John", LastName: "Smith"}
	if err := st.CreatePerson(ctx, person); err != nil {
		t.Fatal(err)
	}
	err := st.PutCounterpartyMapping(ctx, &domain.CounterpartyMapping{
		Provider: domain.ProviderStarling,
		Key:      "JOHN SMITH",
		PersonID: person.ID,
	})
	if err != nil {
		t.Fatal(err)
	}

	tx := normalized("starling_1", 2500, domain.StatusCompleted)
	tx.Provider = domain.ProviderStarling
	tx.PersonName = "JOHN SMITH"

	summary, err := r.Reconcile(ctx, []*domain.NormalizedTransaction{tx})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Matched != 1 {
		t.Errorf("Matched = %d, mapping should auto-attach", summary.Matched)
	}

	stored, err := st.GetTransactionByExternalID(ctx, "starling_1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.PersonID != person.ID {
		t.Errorf("PersonID = %q, want %q", stored.PersonID, person.ID)
	}
}

// failingMatcher simulates a person-directory outage.
type failingMatcher struct{}

func (failingMatcher) Match(ctx context.Context, hints match.Hints) (match.Verdict, error) {
	return match.Verdict{}, errors.New("directory unavailable")
}

func TestReconcile_MatchOutageStillStoresAndQueues(t *testing.T) {
	st := inmemory.New()
	aggregator := ltv.NewAggregator(st, st, st, nil, zerolog.Nop())
	r := New(st, failingMatcher{}, aggregator, zerolog.Nop())
	ctx := context.Background()

	tx := normalized("manual_1", 1000, domain.StatusCompleted)
	tx.Metadata = map[string]any{domain.HintEmail: "aoife@example.com"}

	summary, err := r.Reconcile(ctx, []*domain.NormalizedTransaction{tx})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if summary.Added != 1 {
		t.Errorf("Added = %d, a match outage must not drop the payment", summary.Added)
	}
	if summary.Queued != 1 {
		t.Errorf("Queued = %d, want 1", summary.Queued)
	}

	stored, err := st.GetTransactionByExternalID(ctx, "manual_1")
	if err != nil {
		t.Fatalf("transaction not stored: %v", err)
	}

	entry, err := st.FindQueueEntryByTransaction(ctx, stored.ID)
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("no queue entry for the unresolved transaction")
	}
	if entry.Reason != domain.ReasonNoMatch {
		t.Errorf("Reason = %q, want no_match", entry.Reason)
	}
}

func TestReconcile_RedeliveryKeepsUpgradedStatus(t *testing.T) {
	r, st := newTestReconciler(t)
	ctx := context.Background()

	person := &domain.Person{FirstName: "Aoife", Email: "aoife@example.com"}
	if err := st.CreatePerson(ctx, person); err != nil {
		t.Fatal(err)
	}

	deliver := func() *domain.NormalizedTransaction {
		tx := normalized("manual_1", 1000, domain.StatusNeedsReview)
		tx.Metadata = map[string]any{domain.HintEmail: "aoife@example.com"}
		return tx
	}

	if _, err := r.Reconcile(ctx, []*domain.NormalizedTransaction{deliver()}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Reconcile(ctx, []*domain.NormalizedTransaction{deliver()}); err != nil {
		t.Fatal(err)
	}

	stored, err := st.GetTransactionByExternalID(ctx, "manual_1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.StatusCompleted {
		t.Errorf("Status = %q, re-delivery reverted the match upgrade", stored.Status)
	}
	if stored.Confidence != domain.ConfidenceMatched {
		t.Errorf("Confidence = %q, want matched", stored.Confidence)
	}

	updated, err := st.GetPerson(ctx, person.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.LTV.AllMinor != 1000 {
		t.Errorf("LTV AllMinor = %d after re-delivery, want 1000", updated.LTV.AllMinor)
	}
}

func TestReconcile_RecordErrorsAreIsolated(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()

	summary, err := r.Reconcile(ctx, []*domain.NormalizedTransaction{
		{Provider: domain.ProviderManual, Status: domain.StatusCompleted}, // missing external id
		normalized("manual_ok", 1000, domain.StatusCompleted),
	})
	if err != nil {
		t.Fatalf("batch must not fail on one bad record: %v", err)
	}
	if summary.Added != 1 {
		t.Errorf("Added = %d, the good record must land", summary.Added)
	}
}
