package constraint

import (
	"encoding/json"
	"fmt"

	"github.com/clinrota/rota-api/internal/models"
)

// SlotCapacity enforces the per-slot headcount bounds a rotation template
// declares. Over-capacity yields one violation per slot, not one per extra
// assignment.
type SlotCapacity struct {
	base
}

func (c *SlotCapacity) Apply(m *Model, sctx *Context) error {
	m.Checks = append(m.Checks, c.check(sctx))
	return nil
}

func (c *SlotCapacity) ApplyHeuristic(h *HeuristicModel, sctx *Context) error {
	h.Checks = append(h.Checks, c.check(sctx))
	return nil
}

func (c *SlotCapacity) check(sctx *Context) CheckFunc {
	return func(partial []models.Assignment, cand models.Assignment) (bool, string) {
		tpl, ok := sctx.Templates[cand.TemplateID]
		if !ok || tpl.MaxPerSlot <= 0 {
			return true, ""
		}
		count := 1
		for _, a := range partial {
			if a.TemplateID == cand.TemplateID && a.Overlaps(cand) && a.Role != models.AssignmentRoleBackup {
				count++
			}
		}
		if count > tpl.MaxPerSlot {
			return false, c.Name()
		}
		return true, ""
	}
}

func (c *SlotCapacity) Validate(sctx *Context, assignments []models.Assignment) []models.Violation {
	type slotCount struct {
		count int
		first models.Assignment
	}
	counts := make(map[string]*slotCount)
	var order []string
	for _, a := range assignments {
		if a.Role == models.AssignmentRoleBackup {
			continue
		}
		key := a.TemplateID + "|" + a.Slot().Key()
		sc, ok := counts[key]
		if !ok {
			sc = &slotCount{first: a}
			counts[key] = sc
			order = append(order, key)
		}
		sc.count++
	}
	var out []models.Violation
	for _, key := range order {
		sc := counts[key]
		tpl, ok := sctx.Templates[sc.first.TemplateID]
		if !ok || tpl.MaxPerSlot <= 0 || sc.count <= tpl.MaxPerSlot {
			continue
		}
		detail, _ := json.Marshal(map[string]interface{}{
			"template_id": sc.first.TemplateID,
			"assigned":    sc.count,
			"max":         tpl.MaxPerSlot,
		})
		out = append(out, models.Violation{
			Rule:     c.Name(),
			Date:     sc.first.SlotDate,
			Period:   sc.first.SlotPeriod,
			Severity: models.SeverityMedium,
			Message:  fmt.Sprintf("%d assigned to %s on %s exceeds capacity %d", sc.count, tpl.Name, sc.first.Slot().Key(), tpl.MaxPerSlot),
			Detail:   detail,
		})
	}
	return out
}

// Availability removes people with approved blocking absences from slot
// domains and flags assignments placed over such absences.
type Availability struct {
	base
}

func (c *Availability) Apply(m *Model, sctx *Context) error {
	m.Filters = append(m.Filters, c.filter(sctx))
	m.Checks = append(m.Checks, c.check(sctx))
	return nil
}

func (c *Availability) ApplyHeuristic(h *HeuristicModel, sctx *Context) error {
	h.Filters = append(h.Filters, c.filter(sctx))
	h.Checks = append(h.Checks, c.check(sctx))
	return nil
}

func (c *Availability) filter(sctx *Context) DomainFilter {
	return func(unit DemandUnit, person models.Person) (bool, string) {
		if c.blocked(sctx, person.ID, unit.Slot) {
			return false, c.Name()
		}
		return true, ""
	}
}

func (c *Availability) check(sctx *Context) CheckFunc {
	return func(_ []models.Assignment, cand models.Assignment) (bool, string) {
		if c.blocked(sctx, cand.PersonID, cand.Slot()) {
			return false, c.Name()
		}
		return true, ""
	}
}

func (c *Availability) blocked(sctx *Context, personID string, slot models.SlotRef) bool {
	for _, ab := range sctx.AbsencesFor(personID) {
		if ab.BlocksScheduling() && ab.Covers(slot.Date) {
			return true
		}
	}
	return false
}

func (c *Availability) Validate(sctx *Context, assignments []models.Assignment) []models.Violation {
	var out []models.Violation
	for _, a := range assignments {
		if !c.blocked(sctx, a.PersonID, a.Slot()) {
			continue
		}
		out = append(out, models.Violation{
			Rule:     c.Name(),
			PersonID: a.PersonID,
			Date:     a.SlotDate,
			Period:   a.SlotPeriod,
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("assignment %s overlaps an approved blocking absence", a.ID),
		})
	}
	return out
}

// OnePrimaryPerSlot enforces the core double-booking invariant: a person
// holds at most one primary assignment per half-day, and overlapping duties
// are allowed only when at most one of them is primary.
type OnePrimaryPerSlot struct {
	base
}

func (c *OnePrimaryPerSlot) Apply(m *Model, sctx *Context) error {
	m.Checks = append(m.Checks, c.check())
	return nil
}

func (c *OnePrimaryPerSlot) ApplyHeuristic(h *HeuristicModel, sctx *Context) error {
	h.Checks = append(h.Checks, c.check())
	return nil
}

func (c *OnePrimaryPerSlot) check() CheckFunc {
	return func(partial []models.Assignment, cand models.Assignment) (bool, string) {
		for _, a := range partial {
			if a.PersonID != cand.PersonID || !a.Overlaps(cand) {
				continue
			}
			if a.Role == models.AssignmentRolePrimary && cand.Role == models.AssignmentRolePrimary {
				return false, c.Name()
			}
		}
		return true, ""
	}
}

func (c *OnePrimaryPerSlot) Validate(sctx *Context, assignments []models.Assignment) []models.Violation {
	seen := make(map[string]models.Assignment)
	var out []models.Violation
	for _, a := range assignments {
		if a.Role != models.AssignmentRolePrimary {
			continue
		}
		key := a.PersonID + "|" + a.Slot().Key()
		if prev, dup := seen[key]; dup {
			detail, _ := json.Marshal(map[string]interface{}{
				"assignment_ids": []string{prev.ID, a.ID},
			})
			out = append(out, models.Violation{
				Rule:     c.Name(),
				PersonID: a.PersonID,
				Date:     a.SlotDate,
				Period:   a.SlotPeriod,
				Severity: models.SeverityHigh,
				Message:  fmt.Sprintf("person %s holds two primary assignments on %s", a.PersonID, a.Slot().Key()),
				Detail:   detail,
			})
			continue
		}
		seen[key] = a
	}
	return out
}

// WeekendInclusion keeps weekend slots off templates that exclude weekends.
type WeekendInclusion struct {
	base
}

func (c *WeekendInclusion) Apply(m *Model, sctx *Context) error {
	m.Filters = append(m.Filters, c.filter(sctx))
	return nil
}

func (c *WeekendInclusion) ApplyHeuristic(h *HeuristicModel, sctx *Context) error {
	h.Filters = append(h.Filters, c.filter(sctx))
	return nil
}

func (c *WeekendInclusion) filter(sctx *Context) DomainFilter {
	return func(unit DemandUnit, _ models.Person) (bool, string) {
		tpl, ok := sctx.Templates[unit.TemplateID]
		if ok && !tpl.IncludesWeekends && unit.Slot.IsWeekend() {
			return false, c.Name()
		}
		return true, ""
	}
}

func (c *WeekendInclusion) Validate(sctx *Context, assignments []models.Assignment) []models.Violation {
	var out []models.Violation
	for _, a := range assignments {
		tpl, ok := sctx.Templates[a.TemplateID]
		if !ok || tpl.IncludesWeekends || !a.Slot().IsWeekend() {
			continue
		}
		out = append(out, models.Violation{
			Rule:     c.Name(),
			PersonID: a.PersonID,
			Date:     a.SlotDate,
			Period:   a.SlotPeriod,
			Severity: models.SeverityLow,
			Message:  fmt.Sprintf("%s does not include weekends", tpl.Name),
		})
	}
	return out
}
