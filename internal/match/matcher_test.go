package match

import (
	"context"
	"errors"
	"testing"

	"github.com/rcallanan/studio-ledger/internal/domain"
)

// mockDirectory is a mock Directory with overridable behavior per method.
type mockDirectory struct {
	FindPersonByMemberIDFunc   func(ctx context.Context, memberID string) (*domain.Person, error)
	FindPersonByCustomerIDFunc func(ctx context.Context, customerID string) (*domain.Person, error)
	FindPersonByEmailFunc      func(ctx context.Context, email string) (*domain.Person, error)
	FindPersonByPhoneTailFunc  func(ctx context.Context, tail string) (*domain.Person, error)
	ListPersonCandidatesFunc   func(ctx context.Context, limit int) ([]*domain.Person, error)
}

func (m *mockDirectory) FindPersonByMemberID(ctx context.Context, memberID string) (*domain.Person, error) {
	if m.FindPersonByMemberIDFunc != nil {
		return m.FindPersonByMemberIDFunc(ctx, memberID)
	}
	return nil, nil
}

func (m *mockDirectory) FindPersonByCustomerID(ctx context.Context, customerID string) (*domain.Person, error) {
	if m.FindPersonByCustomerIDFunc != nil {
		return m.FindPersonByCustomerIDFunc(ctx, customerID)
	}
	return nil, nil
}

func (m *mockDirectory) FindPersonByEmail(ctx context.Context, email string) (*domain.Person, error) {
	if m.FindPersonByEmailFunc != nil {
		return m.FindPersonByEmailFunc(ctx, email)
	}
	return nil, nil
}

func (m *mockDirectory) FindPersonByPhoneTail(ctx context.Context, tail string) (*domain.Person, error) {
	if m.FindPersonByPhoneTailFunc != nil {
		return m.FindPersonByPhoneTailFunc(ctx, tail)
	}
	return nil, nil
}

func (m *mockDirectory) ListPersonCandidates(ctx context.Context, limit int) ([]*domain.Person, error) {
	if m.ListPersonCandidatesFunc != nil {
		return m.ListPersonCandidatesFunc(ctx, limit)
	}
	return nil, nil
}

func person(id, first, last string) *domain.Person {
	return &domain.Person{ID: id, FirstName: first, LastName: last}
}

func TestMatcher_PriorityOrder(t *testing.T) {
	// Every lookup would hit; the member id must win.
	dir := &mockDirectory{
		FindPersonByMemberIDFunc: func(ctx context.Context, memberID string) (*domain.Person, error) {
			return person("by-member", "A", "B"), nil
		},
		FindPersonByCustomerIDFunc: func(ctx context.Context, customerID string) (*domain.Person, error) {
			return person("by-customer", "A", "B"), nil
		},
		FindPersonByEmailFunc: func(ctx context.Context, email string) (*domain.Person, error) {
			return person("by-email", "A", "B"), nil
		},
	}

	verdict, err := NewMatcher(dir).Match(context.Background(), Hints{
		MemberID:   "m1",
		CustomerID: "c1",
		Email:      "a@example.com",
	})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if verdict.Kind != KindSingleConfident || verdict.PersonID != "by-member" {
		t.Errorf("verdict = %+v, member id must outrank other keys", verdict)
	}
}

func TestMatcher_FallsThroughToCustomerID(t *testing.T) {
	dir := &mockDirectory{
		FindPersonByCustomerIDFunc: func(ctx context.Context, customerID string) (*domain.Person, error) {
			if customerID == "cus_42" {
				return person("p2", "A", "B"), nil
			}
			return nil, nil
		},
	}

	verdict, err := NewMatcher(dir).Match(context.Background(), Hints{
		MemberID:   "missing",
		CustomerID: "cus_42",
	})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if verdict.PersonID != "p2" {
		t.Errorf("PersonID = %q, want p2", verdict.PersonID)
	}
}

func TestMatcher_EmailIsNormalized(t *testing.T) {
	var seen string
	dir := &mockDirectory{
		FindPersonByEmailFunc: func(ctx context.Context, email string) (*domain.Person, error) {
			seen = email
			return person("p3", "A", "B"), nil
		},
	}

	if _, err := NewMatcher(dir).Match(context.Background(), Hints{Email: "  Sean@Example.COM "}); err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if seen != "sean@example.com" {
		t.Errorf("email passed to directory = %q, want normalized", seen)
	}
}

func TestMatcher_PhoneTailIsConfident(t *testing.T) {
	dir := &mockDirectory{
		FindPersonByPhoneTailFunc: func(ctx context.Context, tail string) (*domain.Person, error) {
			if tail == "4567" {
				return person("p4", "A", "B"), nil
			}
			return nil, nil
		},
	}

	verdict, err := NewMatcher(dir).Match(context.Background(), Hints{Phone: "+353 86 123 4567"})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	// Tail collisions are accepted: a hit is still a confident match.
	if verdict.Kind != KindSingleConfident || verdict.PersonID != "p4" {
		t.Errorf("verdict = %+v", verdict)
	}
}

func TestMatcher_FuzzyName(t *testing.T) {
	candidates := []*domain.Person{
		person("p-sarah", "Sarah", "Jones"),
		person("p-john", "John", "Smith"),
		person("p-ciara", "Ciara", "Doyle"),
	}
	dir := &mockDirectory{
		ListPersonCandidatesFunc: func(ctx context.Context, limit int) ([]*domain.Person, error) {
			return candidates, nil
		},
	}
	matcher := NewMatcher(dir)

	t.Run("unique strong match", func(t *testing.T) {
		verdict, err := matcher.Match(context.Background(), Hints{FullName: "Sara Jones"})
		if err != nil {
			t.Fatalf("Match failed: %v", err)
		}
		if verdict.Kind != KindSingleConfident || verdict.PersonID != "p-sarah" {
			t.Errorf("verdict = %+v, want confident p-sarah", verdict)
		}
	})

	t.Run("no plausible candidate", func(t *testing.T) {
		verdict, err := matcher.Match(context.Background(), Hints{FullName: "Zbigniew Kowalczyk"})
		if err != nil {
			t.Fatalf("Match failed: %v", err)
		}
		if verdict.Kind != KindNoMatch {
			t.Errorf("verdict = %+v, want no match", verdict)
		}
	})

	t.Run("empty name", func(t *testing.T) {
		verdict, err := matcher.Match(context.Background(), Hints{})
		if err != nil {
			t.Fatalf("Match failed: %v", err)
		}
		if verdict.Kind != KindNoMatch {
			t.Errorf("verdict = %+v, want no match", verdict)
		}
	})
}

func TestMatcher_FuzzyAmbiguous(t *testing.T) {
	// Two near-identical names: neither may win outright.
	dir := &mockDirectory{
		ListPersonCandidatesFunc: func(ctx context.Context, limit int) ([]*domain.Person, error) {
			return []*domain.Person{
				person("p-a", "John", "Smith"),
				person("p-b", "John", "Smyth"),
			}, nil
		},
	}

	verdict, err := NewMatcher(dir).Match(context.Background(), Hints{FullName: "John Smith"})
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if verdict.Kind != KindMultipleCandidates {
		t.Fatalf("verdict kind = %v, want multiple candidates", verdict.Kind)
	}
	if len(verdict.CandidateIDs) != 2 || verdict.CandidateIDs[0] != "p-a" {
		t.Errorf("CandidateIDs = %v, want exact match ranked first", verdict.CandidateIDs)
	}
}

func TestMatcher_LookupErrorPropagates(t *testing.T) {
	boom := errors.New("directory down")
	dir := &mockDirectory{
		FindPersonByMemberIDFunc: func(ctx context.Context, memberID string) (*domain.Person, error) {
			return nil, boom
		},
	}

	_, err := NewMatcher(dir).Match(context.Background(), Hints{MemberID: "m1"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped directory error", err)
	}
}
