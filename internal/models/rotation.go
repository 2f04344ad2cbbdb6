package models

import "time"

// ActivityKind categorises what a rotation template schedules.
type ActivityKind string

const (
	ActivityClinical ActivityKind = "CLINICAL"
	ActivityCall     ActivityKind = "CALL"
	ActivityClinic   ActivityKind = "CLINIC"
	ActivityElective ActivityKind = "ELECTIVE"
	ActivityAdmin    ActivityKind = "ADMIN"
)

// RotationTemplate is a reusable activity pattern: capacity bounds per slot,
// supervision policy and eligibility flags. Templates referenced by
// assignments cannot be deleted.
type RotationTemplate struct {
	ID                string       `db:"id" json:"id"`
	Name              string       `db:"name" json:"name"`
	Kind              ActivityKind `db:"kind" json:"kind"`
	MinPerSlot        int          `db:"min_per_slot" json:"min_per_slot"`
	MaxPerSlot        int          `db:"max_per_slot" json:"max_per_slot"`
	RequiredSpecialty *string      `db:"required_specialty" json:"required_specialty,omitempty"`
	SupervisionRatio  int          `db:"supervision_ratio" json:"supervision_ratio"`
	SeniorityFloor    int          `db:"seniority_floor" json:"seniority_floor"`
	LeaveEligible     bool         `db:"leave_eligible" json:"leave_eligible"`
	IncludesWeekends  bool         `db:"includes_weekends" json:"includes_weekends"`
	HoursPerSlot      float64      `db:"hours_per_slot" json:"hours_per_slot"`
	PostCallRestHours float64      `db:"post_call_rest_hours" json:"post_call_rest_hours"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

// CountsAsClinical reports whether hours on this template count against
// duty-hour ceilings.
func (t RotationTemplate) CountsAsClinical() bool {
	return t.Kind != ActivityAdmin
}

// SlotHours returns the clinical hours one slot on this template represents.
func (t RotationTemplate) SlotHours() float64 {
	if t.HoursPerSlot > 0 {
		return t.HoursPerSlot
	}
	return 5
}

// RequiresSupervision reports whether the template enforces a ratio of
// trainees to supervisors.
func (t RotationTemplate) RequiresSupervision() bool {
	return t.SupervisionRatio > 0
}
