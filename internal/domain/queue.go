package domain

import "time"

// QueueReason explains why a transaction landed in the manual match queue.
type QueueReason string

const (
	ReasonNoMatch        QueueReason = "no_match"
	ReasonAmbiguousMatch QueueReason = "ambiguous_match"
	ReasonUnmatched      QueueReason = "unmatched_transaction"
)

// QueueEntry holds one transaction awaiting human attribution. At most one
// open entry may exist per transaction, and a transaction with a person id
// must have no open entry. Entries are deleted on resolution, never archived.
type QueueEntry struct {
	ID            string      `json:"id"`
	TransactionID string      `json:"transaction_id"`
	Reason        QueueReason `json:"reason"`

	// CandidateIDs are person ids ordered by descending match confidence,
	// present when the reason is ambiguous_match.
	CandidateIDs []string  `json:"candidate_ids,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CounterpartyMapping maps a bank-feed counterparty name to a person. Keys
// are stored lower-cased. Bulk retry consults these before re-matching.
type CounterpartyMapping struct {
	Provider Provider `json:"provider"`
	Key      string   `json:"key"`
	PersonID string   `json:"person_id"`
}
