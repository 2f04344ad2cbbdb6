package constraint

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/clinrota/rota-api/internal/models"
)

// PostCallRest keeps the day after a call shift clear until the template's
// required rest has elapsed. A call slot cascading into a next-day duty is
// the classic manual-edit mistake this rule catches.
type PostCallRest struct {
	base
}

func (c *PostCallRest) Apply(m *Model, sctx *Context) error {
	m.Checks = append(m.Checks, c.check(sctx))
	return nil
}

func (c *PostCallRest) ApplyHeuristic(h *HeuristicModel, sctx *Context) error {
	h.Checks = append(h.Checks, c.check(sctx))
	return nil
}

func (c *PostCallRest) check(sctx *Context) CheckFunc {
	return func(partial []models.Assignment, cand models.Assignment) (bool, string) {
		all := append(append([]models.Assignment(nil), partial...), cand)
		if len(c.cascades(sctx, all, cand.PersonID)) > 0 {
			return false, c.Name()
		}
		return true, ""
	}
}

// cascades returns post-call collisions for one person (or all people when
// personID is empty).
func (c *PostCallRest) cascades(sctx *Context, assignments []models.Assignment, personID string) []models.Violation {
	byPerson := groupByPerson(assignments)
	var out []models.Violation
	for _, pid := range sortedKeys(byPerson) {
		if personID != "" && pid != personID {
			continue
		}
		list := byPerson[pid]
		sort.Slice(list, func(i, j int) bool { return list[i].Slot().Before(list[j].Slot()) })
		for _, call := range list {
			tpl, ok := sctx.Templates[call.TemplateID]
			if !ok || tpl.Kind != models.ActivityCall || tpl.PostCallRestHours <= 0 {
				continue
			}
			nextDay := call.SlotDate.AddDate(0, 0, 1)
			for _, next := range list {
				if next.ID == call.ID && next.Slot().Equal(call.Slot()) {
					continue
				}
				if !next.SlotDate.Equal(nextDay) || next.Role == models.AssignmentRoleBackup {
					continue
				}
				// Rest under 24h only clears the morning after call.
				if tpl.PostCallRestHours < 24 && next.SlotPeriod == models.SlotPeriodPM {
					continue
				}
				detail, _ := json.Marshal(map[string]interface{}{
					"call_assignment_id": call.ID,
					"next_assignment_id": next.ID,
					"rest_hours":         tpl.PostCallRestHours,
				})
				out = append(out, models.Violation{
					Rule:     c.Name(),
					PersonID: pid,
					Date:     next.SlotDate,
					Period:   next.SlotPeriod,
					Severity: models.SeverityHigh,
					Message:  fmt.Sprintf("duty on %s collides with required %.0fh post-call rest", next.Slot().Key(), tpl.PostCallRestHours),
					Detail:   detail,
				})
			}
		}
	}
	return out
}

func (c *PostCallRest) Validate(sctx *Context, assignments []models.Assignment) []models.Violation {
	return c.cascades(sctx, assignments, "")
}

func groupByPerson(assignments []models.Assignment) map[string][]models.Assignment {
	byPerson := make(map[string][]models.Assignment)
	for _, a := range assignments {
		byPerson[a.PersonID] = append(byPerson[a.PersonID], a)
	}
	return byPerson
}

func sortedKeys(m map[string][]models.Assignment) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
