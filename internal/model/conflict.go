package model

import "time"

// ConflictReason tags a file routed out of the pipeline for manual review.
type ConflictReason string

const (
	ConflictUnregisteredEntity ConflictReason = "unregistered_entity"
	ConflictUnsupportedType    ConflictReason = "unsupported_document_type"
	ConflictProcessingError    ConflictReason = "processing_error"
	ConflictDuplicate          ConflictReason = "duplicate"
)

// ConflictEntry describes a file relocated to the conflict area.
type ConflictEntry struct {
	ID           string         `json:"id"`
	Reason       ConflictReason `json:"reason"`
	OriginalPath string         `json:"original_path"`
	Path         string         `json:"path"`
	TaxID        string         `json:"tax_id,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// State is a step of the per-file pipeline state machine.
type State string

const (
	StateReceived             State = "received"
	StateClassified           State = "classified"
	StateEntityResolved       State = "entity_resolved"
	StateResolverDecided      State = "resolver_decided"
	StateStored               State = "stored"
	StateConflictUnregistered State = "conflict_unregistered"
	StateConflictUnsupported  State = "conflict_unsupported_type"
	StateConflictDuplicate    State = "conflict_duplicate"
	StateConflictError        State = "conflict_error"
	StateSkipped              State = "skipped" // left in the inbox for a later run
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateStored, StateConflictUnregistered, StateConflictUnsupported,
		StateConflictDuplicate, StateConflictError, StateSkipped:
		return true
	}
	return false
}

// ConflictState maps a conflict reason to its terminal state.
func ConflictState(r ConflictReason) State {
	switch r {
	case ConflictUnregisteredEntity:
		return StateConflictUnregistered
	case ConflictUnsupportedType:
		return StateConflictUnsupported
	case ConflictDuplicate:
		return StateConflictDuplicate
	default:
		return StateConflictError
	}
}
