package conflict

import (
	"fmt"
	"sort"

	"github.com/clinrota/rota-api/internal/compliance"
	"github.com/clinrota/rota-api/internal/models"
)

// Scope is the slice of the schedule a detection pass examines. Detection is
// pure: the same scope always yields the same conflicts.
type Scope struct {
	Assignments []models.Assignment
	Absences    []models.Absence
	People      map[string]models.Person
	Templates   map[string]models.RotationTemplate
	Range       models.DateRange
}

// Detector performs the cross-cutting checks shared by the solver pre-check,
// manual assignment creation and swap validation.
type Detector struct {
	compliance *compliance.Engine
}

// NewDetector builds a detector delegating ratio checks to the compliance
// engine.
func NewDetector(engine *compliance.Engine) *Detector {
	if engine == nil {
		engine = compliance.NewEngine(compliance.DefaultThresholds())
	}
	return &Detector{compliance: engine}
}

// Detect runs every conflict kind over the scope and returns findings in a
// deterministic order.
func (d *Detector) Detect(scope Scope) []models.Conflict {
	var out []models.Conflict
	out = append(out, d.doubleBookings(scope)...)
	out = append(out, d.leaveOverlaps(scope)...)
	out = append(out, d.supervisionViolations(scope)...)
	out = append(out, d.callCascades(scope)...)

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].PersonID < out[j].PersonID
	})
	return out
}

func (d *Detector) doubleBookings(scope Scope) []models.Conflict {
	type key struct {
		person string
		slot   string
	}
	primaries := make(map[key]models.Assignment)
	var out []models.Conflict
	for _, a := range scope.Assignments {
		if a.Role != models.AssignmentRolePrimary {
			continue
		}
		k := key{person: a.PersonID, slot: a.Slot().Key()}
		if prev, dup := primaries[k]; dup {
			out = append(out, models.Conflict{
				Kind:                models.ConflictDoubleBooking,
				Severity:            models.SeverityHigh,
				PersonID:            a.PersonID,
				AssignmentIDs:       []string{prev.ID, a.ID},
				Date:                a.SlotDate,
				Period:              a.SlotPeriod,
				Message:             fmt.Sprintf("person %s double-booked on %s", a.PersonID, a.Slot().Key()),
				SuggestedResolution: "demote one assignment to backup or reassign the slot",
			})
			continue
		}
		primaries[k] = a
	}
	return out
}

func (d *Detector) leaveOverlaps(scope Scope) []models.Conflict {
	var out []models.Conflict
	for _, a := range scope.Assignments {
		if !a.Locked {
			continue
		}
		for _, ab := range scope.Absences {
			if ab.PersonID != a.PersonID || !ab.BlocksScheduling() || !ab.Covers(a.SlotDate) {
				continue
			}
			out = append(out, models.Conflict{
				Kind:                models.ConflictLeaveOverlap,
				Severity:            models.SeverityHigh,
				PersonID:            a.PersonID,
				AssignmentIDs:       []string{a.ID},
				AbsenceID:           ab.ID,
				Date:                a.SlotDate,
				Period:              a.SlotPeriod,
				Message:             fmt.Sprintf("approved %s absence overlaps locked assignment %s", ab.Kind, a.ID),
				SuggestedResolution: "unlock and reassign the rotation, or revoke the absence approval",
			})
		}
	}
	return out
}

func (d *Detector) supervisionViolations(scope Scope) []models.Conflict {
	violations := d.compliance.ValidateSupervision(scope.Assignments, scope.Templates, scope.People)
	out := make([]models.Conflict, 0, len(violations))
	for _, v := range violations {
		out = append(out, models.Conflict{
			Kind:                models.ConflictSupervisionRatio,
			Severity:            v.Severity,
			PersonID:            v.PersonID,
			Date:                v.Date,
			Period:              v.Period,
			Message:             v.Message,
			SuggestedResolution: "add a supervising assignment to the slot",
		})
	}
	return out
}

func (d *Detector) callCascades(scope Scope) []models.Conflict {
	byPerson := make(map[string][]models.Assignment)
	for _, a := range scope.Assignments {
		byPerson[a.PersonID] = append(byPerson[a.PersonID], a)
	}
	ids := make([]string, 0, len(byPerson))
	for id := range byPerson {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []models.Conflict
	for _, pid := range ids {
		list := byPerson[pid]
		for _, call := range list {
			tpl, ok := scope.Templates[call.TemplateID]
			if !ok || tpl.Kind != models.ActivityCall || tpl.PostCallRestHours <= 0 {
				continue
			}
			nextDay := call.SlotDate.AddDate(0, 0, 1)
			for _, next := range list {
				if !next.SlotDate.Equal(nextDay) || !next.Locked || next.Role == models.AssignmentRoleBackup {
					continue
				}
				if tpl.PostCallRestHours < 24 && next.SlotPeriod == models.SlotPeriodPM {
					continue
				}
				out = append(out, models.Conflict{
					Kind:                models.ConflictCallCascade,
					Severity:            models.SeverityHigh,
					PersonID:            pid,
					AssignmentIDs:       []string{call.ID, next.ID},
					Date:                next.SlotDate,
					Period:              next.SlotPeriod,
					Message:             fmt.Sprintf("call on %s requires %.0fh rest colliding with pinned duty %s", call.Slot().Key(), tpl.PostCallRestHours, next.ID),
					SuggestedResolution: "move the pinned rotation or reassign the call shift",
				})
			}
		}
	}
	return out
}
