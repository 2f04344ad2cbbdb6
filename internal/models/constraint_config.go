package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ConstraintKind identifies the rule a configuration row instantiates.
type ConstraintKind string

const (
	ConstraintSlotCapacity     ConstraintKind = "SLOT_CAPACITY"
	ConstraintAvailability     ConstraintKind = "AVAILABILITY"
	ConstraintOnePrimary       ConstraintKind = "ONE_PRIMARY_PER_SLOT"
	ConstraintDutyHourCeiling  ConstraintKind = "DUTY_HOUR_CEILING"
	ConstraintRestDay          ConstraintKind = "REST_DAY"
	ConstraintSupervisionRatio ConstraintKind = "SUPERVISION_RATIO"
	ConstraintPostCallRest     ConstraintKind = "POST_CALL_REST"
	ConstraintWeekendInclusion ConstraintKind = "WEEKEND_INCLUSION"
	ConstraintWorkloadBalance  ConstraintKind = "WORKLOAD_BALANCE"
	ConstraintContinuity       ConstraintKind = "CONTINUITY"
)

// ConstraintConfig is population-wide rule configuration. Enable/disable
// toggles solver visibility without deleting the row, so a disabled rule
// keeps its parameters. Name is unique.
type ConstraintConfig struct {
	ID        string         `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	Kind      ConstraintKind `db:"kind" json:"kind"`
	Hard      bool           `db:"hard" json:"hard"`
	Priority  int            `db:"priority" json:"priority"`
	Enabled   bool           `db:"enabled" json:"enabled"`
	Params    types.JSONText `db:"params" json:"params"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// ConstraintScope narrows where a rule applies. Zero values mean unbounded.
type ConstraintScope struct {
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`
	Period     SlotPeriod     `json:"period,omitempty"`
	From       *time.Time     `json:"from,omitempty"`
	To         *time.Time     `json:"to,omitempty"`
}

// AppliesTo reports whether the scope covers a slot.
func (s ConstraintScope) AppliesTo(slot SlotRef) bool {
	if s.Period != "" && s.Period != slot.Period {
		return false
	}
	if s.From != nil && slot.Date.Before(*s.From) {
		return false
	}
	if s.To != nil && slot.Date.After(*s.To) {
		return false
	}
	if len(s.DaysOfWeek) > 0 {
		ok := false
		for _, wd := range s.DaysOfWeek {
			if slot.Date.Weekday() == wd {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
