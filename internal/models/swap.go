package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// SwapStatus tracks the swap lifecycle:
// PROPOSED -> VALIDATED -> EXECUTED -> (ROLLED_BACK | final past the deadline).
type SwapStatus string

const (
	SwapStatusProposed   SwapStatus = "PROPOSED"
	SwapStatusValidated  SwapStatus = "VALIDATED"
	SwapStatusExecuted   SwapStatus = "EXECUTED"
	SwapStatusRolledBack SwapStatus = "ROLLED_BACK"
)

// SwapRecord pairs two assignments proposed for exchange. The versions
// observed at validation time gate execution: if either assignment moved in
// between, execution fails with CONFLICT. The rollback deadline is a business
// rule checked at rollback time, not a TTL.
type SwapRecord struct {
	ID                 string         `db:"id" json:"id"`
	SourceAssignmentID string         `db:"source_assignment_id" json:"source_assignment_id"`
	TargetAssignmentID string         `db:"target_assignment_id" json:"target_assignment_id"`
	SourceVersion      int            `db:"source_version" json:"source_version"`
	TargetVersion      int            `db:"target_version" json:"target_version"`
	Status             SwapStatus     `db:"status" json:"status"`
	ProposedBy         string         `db:"proposed_by" json:"proposed_by"`
	ProposedAt         time.Time      `db:"proposed_at" json:"proposed_at"`
	ValidatedAt        *time.Time     `db:"validated_at" json:"validated_at,omitempty"`
	Validation         types.JSONText `db:"validation" json:"validation,omitempty"`
	OverrideReason     *string        `db:"override_reason" json:"override_reason,omitempty"`
	ExecutedAt         *time.Time     `db:"executed_at" json:"executed_at,omitempty"`
	RollbackDeadline   *time.Time     `db:"rollback_deadline" json:"rollback_deadline,omitempty"`
	RolledBackAt       *time.Time     `db:"rolled_back_at" json:"rolled_back_at,omitempty"`
	RollbackReason     *string        `db:"rollback_reason" json:"rollback_reason,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// RollbackOpen reports whether the record can still be rolled back at t.
func (s SwapRecord) RollbackOpen(t time.Time) bool {
	return s.Status == SwapStatusExecuted && s.RollbackDeadline != nil && !t.After(*s.RollbackDeadline)
}

// SwapValidation is the stored outcome of a validation pass.
type SwapValidation struct {
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
	Conflicts  []Conflict  `json:"conflicts,omitempty"`
	CheckedAt  time.Time   `json:"checked_at"`
}

// SwapCandidate is one ranked auto-match suggestion.
type SwapCandidate struct {
	Assignment     Assignment `json:"assignment"`
	Violations     int        `json:"violations"`
	FairnessDelta  float64    `json:"fairness_delta"`
	LastSwapAt     *time.Time `json:"last_swap_at,omitempty"`
	CounterpartyID string     `json:"counterparty_id"`
}
