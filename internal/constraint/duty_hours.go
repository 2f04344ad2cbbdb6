package constraint

import (
	"time"

	"github.com/clinrota/rota-api/internal/compliance"
	"github.com/clinrota/rota-api/internal/models"
)

// DutyHourCeiling delegates the weekly and rolling-average hour ceilings to
// the compliance engine, so solving and post-hoc validation enforce the
// exact same rule.
type DutyHourCeiling struct {
	base
}

func (c *DutyHourCeiling) Apply(m *Model, sctx *Context) error {
	m.Checks = append(m.Checks, c.check(sctx))
	return nil
}

func (c *DutyHourCeiling) ApplyHeuristic(h *HeuristicModel, sctx *Context) error {
	h.Checks = append(h.Checks, c.check(sctx))
	return nil
}

func (c *DutyHourCeiling) check(sctx *Context) CheckFunc {
	return func(partial []models.Assignment, cand models.Assignment) (bool, string) {
		person, ok := sctx.People[cand.PersonID]
		if !ok || !person.IsTrainee() {
			return true, ""
		}
		ceiling := sctx.Compliance.Thresholds().WeeklyHourCeiling
		if person.MaxWeeklyHours > 0 && person.MaxWeeklyHours < ceiling {
			ceiling = person.MaxWeeklyHours
		}
		tpl, ok := sctx.Templates[cand.TemplateID]
		if !ok || !tpl.CountsAsClinical() || cand.Role == models.AssignmentRoleBackup {
			return true, ""
		}
		// Any 7-day window containing the candidate slot must stay under the
		// ceiling after adding it.
		total := tpl.SlotHours()
		for _, a := range partial {
			if a.PersonID != cand.PersonID || a.Role == models.AssignmentRoleBackup {
				continue
			}
			atpl, ok := sctx.Templates[a.TemplateID]
			if !ok || !atpl.CountsAsClinical() {
				continue
			}
			diff := a.SlotDate.Sub(cand.SlotDate)
			if diff < 0 {
				diff = -diff
			}
			if diff < 7*24*time.Hour {
				total += atpl.SlotHours()
			}
		}
		if total > ceiling {
			return false, c.Name()
		}
		return true, ""
	}
}

func (c *DutyHourCeiling) Validate(sctx *Context, assignments []models.Assignment) []models.Violation {
	return c.delegate(sctx, assignments, func(rule string) bool {
		return rule == compliance.RuleWeeklyHours || rule == compliance.RuleRollingAverage
	})
}

func (c *DutyHourCeiling) delegate(sctx *Context, assignments []models.Assignment, keep func(string) bool) []models.Violation {
	byPerson := groupByPerson(assignments)
	var out []models.Violation
	for _, personID := range sortedKeys(byPerson) {
		person, ok := sctx.People[personID]
		if !ok {
			continue
		}
		res := sctx.Compliance.ValidatePerson(compliance.Input{
			Person:      person,
			Assignments: byPerson[personID],
			Templates:   sctx.Templates,
			Range:       sctx.Range,
		})
		for _, v := range res.Violations {
			if keep(v.Rule) {
				v.Rule = c.Name()
				out = append(out, v)
			}
		}
	}
	return out
}

// RestDay delegates the mandatory weekly rest-day rule to the compliance
// engine and vetoes placements that would fill a person's seventh
// consecutive working day.
type RestDay struct {
	base
}

func (c *RestDay) Apply(m *Model, sctx *Context) error {
	m.Checks = append(m.Checks, c.check(sctx))
	return nil
}

func (c *RestDay) ApplyHeuristic(h *HeuristicModel, sctx *Context) error {
	h.Checks = append(h.Checks, c.check(sctx))
	return nil
}

func (c *RestDay) check(sctx *Context) CheckFunc {
	return func(partial []models.Assignment, cand models.Assignment) (bool, string) {
		person, ok := sctx.People[cand.PersonID]
		if !ok || !person.IsTrainee() {
			return true, ""
		}
		tpl, ok := sctx.Templates[cand.TemplateID]
		if !ok || !tpl.CountsAsClinical() || cand.Role == models.AssignmentRoleBackup {
			return true, ""
		}
		working := make(map[string]bool)
		working[cand.SlotDate.Format("2006-01-02")] = true
		for _, a := range partial {
			if a.PersonID != cand.PersonID || a.Role == models.AssignmentRoleBackup {
				continue
			}
			atpl, ok := sctx.Templates[a.TemplateID]
			if ok && atpl.CountsAsClinical() {
				working[a.SlotDate.Format("2006-01-02")] = true
			}
		}
		// Check every 7-day window containing the candidate date.
		for offset := -6; offset <= 0; offset++ {
			full := true
			for i := 0; i < 7; i++ {
				d := cand.SlotDate.AddDate(0, 0, offset+i)
				if !working[d.Format("2006-01-02")] {
					full = false
					break
				}
			}
			if full {
				return false, c.Name()
			}
		}
		return true, ""
	}
}

func (c *RestDay) Validate(sctx *Context, assignments []models.Assignment) []models.Violation {
	d := DutyHourCeiling{base: c.base}
	return d.delegate(sctx, assignments, func(rule string) bool {
		return rule == compliance.RuleRestDay
	})
}

// SupervisionRatio enforces template supervision policy via the compliance
// engine and steers the heuristic toward adding supervisors where trainees
// are uncovered.
type SupervisionRatio struct {
	base
}

func (c *SupervisionRatio) Apply(m *Model, sctx *Context) error {
	m.Checks = append(m.Checks, c.check(sctx))
	return nil
}

func (c *SupervisionRatio) ApplyHeuristic(h *HeuristicModel, sctx *Context) error {
	h.Checks = append(h.Checks, c.check(sctx))
	h.Preferences = append(h.Preferences, func(unit DemandUnit, person models.Person, partial []models.Assignment) float64 {
		tpl, ok := sctx.Templates[unit.TemplateID]
		if !ok || !tpl.RequiresSupervision() || person.IsTrainee() {
			return 0
		}
		// Prefer placing faculty on supervised slots that already hold trainees.
		trainees := 0
		for _, a := range partial {
			if a.TemplateID == unit.TemplateID && a.Slot().Equal(unit.Slot) {
				if p, known := sctx.People[a.PersonID]; known && p.IsTrainee() {
					trainees++
				}
			}
		}
		return float64(trainees)
	})
	return nil
}

func (c *SupervisionRatio) check(sctx *Context) CheckFunc {
	return func(partial []models.Assignment, cand models.Assignment) (bool, string) {
		person, ok := sctx.People[cand.PersonID]
		if !ok || !person.IsTrainee() {
			return true, ""
		}
		tpl, ok := sctx.Templates[cand.TemplateID]
		if !ok || !tpl.RequiresSupervision() || person.Seniority >= tpl.SeniorityFloor {
			return true, ""
		}
		trainees := 1
		supervisors := 0
		for _, a := range partial {
			if a.TemplateID != cand.TemplateID || !a.Overlaps(cand) {
				continue
			}
			p, known := sctx.People[a.PersonID]
			switch {
			case a.Role == models.AssignmentRoleSupervising || (known && !p.IsTrainee()):
				supervisors++
			case known && p.Seniority >= tpl.SeniorityFloor:
			default:
				trainees++
			}
		}
		if supervisors == 0 || trainees > tpl.SupervisionRatio*supervisors {
			return false, c.Name()
		}
		return true, ""
	}
}

func (c *SupervisionRatio) Validate(sctx *Context, assignments []models.Assignment) []models.Violation {
	out := sctx.Compliance.ValidateSupervision(assignments, sctx.Templates, sctx.People)
	for i := range out {
		out[i].Rule = c.Name()
	}
	return out
}
