package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AssignmentRole distinguishes who actually covers the slot from supporting
// roles that may overlap other duties.
type AssignmentRole string

const (
	AssignmentRolePrimary     AssignmentRole = "PRIMARY"
	AssignmentRoleSupervising AssignmentRole = "SUPERVISING"
	AssignmentRoleBackup      AssignmentRole = "BACKUP"
)

// Assignment binds a person to a half-day slot under a rotation template.
// All mutation is guarded by the Version stamp: updates and deletes carry the
// version the caller last read and fail with CONFLICT when it has moved.
type Assignment struct {
	ID                    string         `db:"id" json:"id"`
	PersonID              string         `db:"person_id" json:"person_id"`
	TemplateID            string         `db:"template_id" json:"template_id"`
	BlockID               string         `db:"block_id" json:"block_id"`
	SlotDate              time.Time      `db:"slot_date" json:"slot_date"`
	SlotPeriod            SlotPeriod     `db:"slot_period" json:"slot_period"`
	Role                  AssignmentRole `db:"role" json:"role"`
	Locked                bool           `db:"locked" json:"locked"`
	Version               int            `db:"version" json:"version"`
	OverrideJustification *string        `db:"override_justification" json:"override_justification,omitempty"`
	Provenance            types.JSONText `db:"provenance" json:"provenance,omitempty"`
	CreatedBy             string         `db:"created_by" json:"created_by"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
}

// Slot returns the half-day this assignment occupies.
func (a Assignment) Slot() SlotRef {
	return SlotRef{Date: a.SlotDate, Period: a.SlotPeriod}
}

// Overlaps reports whether two assignments occupy the same half-day.
func (a Assignment) Overlaps(b Assignment) bool {
	return a.Slot().Equal(b.Slot())
}

// SolverProvenance captures how an automatically produced assignment came to
// be, stored in the Provenance JSON column.
type SolverProvenance struct {
	Solver       string   `json:"solver"`
	Algorithm    string   `json:"algorithm"`
	Confidence   float64  `json:"confidence"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// AssignmentFilter constrains assignment listing queries.
type AssignmentFilter struct {
	PersonID   string
	TemplateID string
	BlockID    string
	From       *time.Time
	To         *time.Time
	Role       AssignmentRole
	Page       int
	PageSize   int
}
