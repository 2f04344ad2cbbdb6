package models

import "time"

// AbsenceKind categorises time away.
type AbsenceKind string

const (
	AbsenceVacation   AbsenceKind = "VACATION"
	AbsenceSick       AbsenceKind = "SICK"
	AbsenceConference AbsenceKind = "CONFERENCE"
	AbsenceLeave      AbsenceKind = "LOA"
)

// Absence is an interval during which a person may be unavailable. Approved
// blocking absences remove the person's slots from solver domains; a
// non-blocking absence merely informs conflict reporting.
type Absence struct {
	ID        string      `db:"id" json:"id"`
	PersonID  string      `db:"person_id" json:"person_id"`
	StartDate time.Time   `db:"start_date" json:"start_date"`
	EndDate   time.Time   `db:"end_date" json:"end_date"`
	Kind      AbsenceKind `db:"kind" json:"kind"`
	Blocking  bool        `db:"blocking" json:"blocking"`
	Approved  bool        `db:"approved" json:"approved"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// Covers reports whether the absence spans the given date.
func (a Absence) Covers(date time.Time) bool {
	return DateRange{Start: a.StartDate, End: a.EndDate}.Contains(date)
}

// BlocksScheduling reports whether the absence removes availability.
func (a Absence) BlocksScheduling() bool {
	return a.Blocking && a.Approved
}
