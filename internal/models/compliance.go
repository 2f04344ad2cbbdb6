package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ViolationSeverity grades how far past a limit a violation lands.
type ViolationSeverity string

const (
	SeverityLow    ViolationSeverity = "LOW"
	SeverityMedium ViolationSeverity = "MEDIUM"
	SeverityHigh   ViolationSeverity = "HIGH"
)

// Weight maps severity onto the score penalty scale.
func (s ViolationSeverity) Weight() float64 {
	switch s {
	case SeverityHigh:
		return 5
	case SeverityMedium:
		return 3
	default:
		return 1
	}
}

// Violation records one rule breach. The same shape serves solver output,
// post-hoc validation and persisted audit rows; acknowledged overrides carry
// a mandatory justification and are counted separately in all reporting.
type Violation struct {
	ID            string            `db:"id" json:"id,omitempty"`
	Rule          string            `db:"rule" json:"rule"`
	PersonID      string            `db:"person_id" json:"person_id,omitempty"`
	Date          time.Time         `db:"slot_date" json:"date"`
	Period        SlotPeriod        `db:"slot_period" json:"period,omitempty"`
	Severity      ViolationSeverity `db:"severity" json:"severity"`
	Message       string            `db:"message" json:"message"`
	Detail        types.JSONText    `db:"detail" json:"detail,omitempty"`
	Acknowledged  bool              `db:"acknowledged" json:"acknowledged"`
	Justification *string           `db:"justification" json:"justification,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at,omitempty"`
}

// ComplianceResult is the outcome of validating one person over a range.
type ComplianceResult struct {
	PersonID     string      `json:"person_id"`
	Range        DateRange   `json:"range"`
	IsCompliant  bool        `json:"is_compliant"`
	Violations   []Violation `json:"violations"`
	Acknowledged []Violation `json:"acknowledged,omitempty"`
	Score        float64     `json:"score"`
}

// PopulationComplianceResult aggregates per-person results for a sweep.
// Failed lists people whose validation errored; one bad record must not
// abort the rest of the population.
type PopulationComplianceResult struct {
	Results []ComplianceResult `json:"results"`
	Failed  map[string]string  `json:"failed,omitempty"`
}
