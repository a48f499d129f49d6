// Package match resolves contact hints from a payment event against the
// directory of known people. Matching is read-only: it never mutates the
// directory, and every call re-reads candidates so it always sees people
// created earlier in the same batch.
package match

import (
	"context"
	"fmt"
	"sort"

	"github.com/rcallanan/studio-ledger/internal/domain"
)

const (
	// strongThreshold and weakThreshold bound the fuzzy name step. One
	// unique strong candidate is a confident match; anything in the weak
	// band is only ever a suggestion for the manual queue.
	strongThreshold = 0.90
	weakThreshold   = 0.75

	// candidateLimit caps the number of directory entries scored per call.
	candidateLimit = 50
)

// Kind discriminates match verdicts.
type Kind int

const (
	KindNoMatch Kind = iota
	KindSingleConfident
	KindMultipleCandidates
)

// Verdict is the outcome of one match call. CandidateIDs are ordered by
// descending score and only set for KindMultipleCandidates.
type Verdict struct {
	Kind         Kind
	PersonID     string
	CandidateIDs []string
}

// Hints carries whatever identifying fragments a normalized transaction has.
type Hints struct {
	Email      string
	Phone      string
	MemberID   string
	CustomerID string
	FullName   string
}

// HintsFromTransaction extracts match hints from a normalized transaction's
// metadata and person name.
func HintsFromTransaction(tx *domain.NormalizedTransaction) Hints {
	h := Hints{FullName: tx.PersonName}
	if tx.Metadata == nil {
		return h
	}
	if v, ok := tx.Metadata[domain.HintEmail].(string); ok {
		h.Email = v
	}
	if v, ok := tx.Metadata[domain.HintPhone].(string); ok {
		h.Phone = v
	}
	if v, ok := tx.Metadata[domain.HintMemberID].(string); ok {
		h.MemberID = v
	}
	if v, ok := tx.Metadata[domain.HintCustomerID].(string); ok {
		h.CustomerID = v
	}
	return h
}

// Directory is the read-only view of the person store the matcher needs.
// Find methods return (nil, nil) when nothing matches.
type Directory interface {
	FindPersonByMemberID(ctx context.Context, memberID string) (*domain.Person, error)
	FindPersonByCustomerID(ctx context.Context, customerID string) (*domain.Person, error)
	FindPersonByEmail(ctx context.Context, email string) (*domain.Person, error)
	FindPersonByPhoneTail(ctx context.Context, tail string) (*domain.Person, error)
	ListPersonCandidates(ctx context.Context, limit int) ([]*domain.Person, error)
}

// Matcher runs the identity resolution priority chain.
type Matcher struct {
	dir Directory
}

// NewMatcher creates a matcher over the given directory.
func NewMatcher(dir Directory) *Matcher {
	return &Matcher{dir: dir}
}

// Match resolves hints to a verdict. The priority order is strict and
// deterministic: each exact lookup wins outright before any fuzzy scoring.
//
//  1. studio platform member id
//  2. card processor customer id
//  3. normalized email
//  4. phone, compared on the last four digits
//  5. Jaro–Winkler fuzzy name over at most candidateLimit people
//
// The phone-tail comparison is a deliberate loose match: collisions are
// possible and accepted, and a hit still returns SingleConfident.
func (m *Matcher) Match(ctx context.Context, hints Hints) (Verdict, error) {
	if hints.MemberID != "" {
		person, err := m.dir.FindPersonByMemberID(ctx, hints.MemberID)
		if err != nil {
			return Verdict{}, fmt.Errorf("Match: member id lookup: %w", err)
		}
		if person != nil {
			return Verdict{Kind: KindSingleConfident, PersonID: person.ID}, nil
		}
	}

	if hints.CustomerID != "" {
		person, err := m.dir.FindPersonByCustomerID(ctx, hints.CustomerID)
		if err != nil {
			return Verdict{}, fmt.Errorf("Match: customer id lookup: %w", err)
		}
		if person != nil {
			return Verdict{Kind: KindSingleConfident, PersonID: person.ID}, nil
		}
	}

	if email := NormalizeEmail(hints.Email); email != "" {
		person, err := m.dir.FindPersonByEmail(ctx, email)
		if err != nil {
			return Verdict{}, fmt.Errorf("Match: email lookup: %w", err)
		}
		if person != nil {
			return Verdict{Kind: KindSingleConfident, PersonID: person.ID}, nil
		}
	}

	if tail := PhoneTail(hints.Phone); tail != "" {
		person, err := m.dir.FindPersonByPhoneTail(ctx, tail)
		if err != nil {
			return Verdict{}, fmt.Errorf("Match: phone lookup: %w", err)
		}
		if person != nil {
			return Verdict{Kind: KindSingleConfident, PersonID: person.ID}, nil
		}
	}

	fullName := NormalizeName(hints.FullName)
	if fullName == "" {
		return Verdict{Kind: KindNoMatch}, nil
	}

	candidates, err := m.dir.ListPersonCandidates(ctx, candidateLimit)
	if err != nil {
		return Verdict{}, fmt.Errorf("Match: list candidates: %w", err)
	}

	type scored struct {
		id    string
		score float64
	}
	var scores []scored
	for _, person := range candidates {
		candidateName := NormalizeName(person.FullName())
		if candidateName == "" {
			continue
		}
		score := jaroWinkler(fullName, candidateName)
		if score >= weakThreshold {
			scores = append(scores, scored{id: person.ID, score: score})
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].id < scores[j].id
	})

	strong := 0
	for _, s := range scores {
		if s.score >= strongThreshold {
			strong++
		}
	}
	if strong == 1 {
		return Verdict{Kind: KindSingleConfident, PersonID: scores[0].id}, nil
	}
	if len(scores) > 0 {
		ids := make([]string, len(scores))
		for i, s := range scores {
			ids[i] = s.id
		}
		return Verdict{Kind: KindMultipleCandidates, CandidateIDs: ids}, nil
	}

	return Verdict{Kind: KindNoMatch}, nil
}
