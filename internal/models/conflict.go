package models

import "time"

// ConflictKind enumerates the cross-cutting checks shared by the solver
// pre-check, manual assignment path and swap validation.
type ConflictKind string

const (
	ConflictDoubleBooking    ConflictKind = "DOUBLE_BOOKING"
	ConflictLeaveOverlap     ConflictKind = "LEAVE_OVERLAP"
	ConflictSupervisionRatio ConflictKind = "SUPERVISION_RATIO"
	ConflictCallCascade      ConflictKind = "CALL_CASCADE"
)

// Conflict describes one detected scheduling collision with enough structure
// to resolve it without re-derivation.
type Conflict struct {
	Kind                ConflictKind      `json:"kind"`
	Severity            ViolationSeverity `json:"severity"`
	PersonID            string            `json:"person_id"`
	AssignmentIDs       []string          `json:"assignment_ids,omitempty"`
	AbsenceID           string            `json:"absence_id,omitempty"`
	Date                time.Time         `json:"date"`
	Period              SlotPeriod        `json:"period,omitempty"`
	Message             string            `json:"message"`
	SuggestedResolution string            `json:"suggested_resolution,omitempty"`
}
