package constraint

import (
	"encoding/json"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/clinrota/rota-api/internal/models"
)

type balanceParams struct {
	MaxVariance float64 `json:"max_variance"`
}

// WorkloadBalance is a soft preference for spreading clinical hours evenly
// across the population. The objective feeds the solver; validation only
// flags when configured variance is exceeded.
type WorkloadBalance struct {
	base
	params balanceParams
}

func (c *WorkloadBalance) Apply(m *Model, sctx *Context) error {
	m.Objectives = append(m.Objectives, func(assignments []models.Assignment) float64 {
		return WorkloadVariance(assignments, sctx.Templates)
	})
	return nil
}

func (c *WorkloadBalance) ApplyHeuristic(h *HeuristicModel, sctx *Context) error {
	h.Preferences = append(h.Preferences, func(_ DemandUnit, person models.Person, partial []models.Assignment) float64 {
		// Prefer the least-loaded candidate.
		var hours float64
		for _, a := range partial {
			if a.PersonID != person.ID {
				continue
			}
			if tpl, ok := sctx.Templates[a.TemplateID]; ok {
				hours += tpl.SlotHours()
			}
		}
		return -hours
	})
	return nil
}

func (c *WorkloadBalance) Validate(sctx *Context, assignments []models.Assignment) []models.Violation {
	if c.params.MaxVariance <= 0 {
		return nil
	}
	v := WorkloadVariance(assignments, sctx.Templates)
	if v <= c.params.MaxVariance {
		return nil
	}
	var date = sctx.Range.Start
	detail, _ := json.Marshal(map[string]interface{}{
		"variance": v,
		"max":      c.params.MaxVariance,
	})
	return []models.Violation{{
		Rule:     c.Name(),
		Date:     date,
		Severity: models.SeverityLow,
		Message:  fmt.Sprintf("workload variance %.2f exceeds configured %.2f", v, c.params.MaxVariance),
		Detail:   detail,
	}}
}

// WorkloadVariance computes the population variance of per-person clinical
// hours; the swap matcher uses the same measure for its fairness delta.
func WorkloadVariance(assignments []models.Assignment, templates map[string]models.RotationTemplate) float64 {
	byPerson := make(map[string]float64)
	for _, a := range assignments {
		if a.Role == models.AssignmentRoleBackup {
			continue
		}
		tpl, ok := templates[a.TemplateID]
		if !ok || !tpl.CountsAsClinical() {
			continue
		}
		byPerson[a.PersonID] += tpl.SlotHours()
	}
	if len(byPerson) < 2 {
		return 0
	}
	ids := make([]string, 0, len(byPerson))
	for id := range byPerson {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	hours := make([]float64, len(ids))
	for i, id := range ids {
		hours[i] = byPerson[id]
	}
	return stat.Variance(hours, nil)
}

// Continuity is a soft preference for keeping a person on the same rotation
// across consecutive days instead of ping-ponging between templates.
type Continuity struct {
	base
}

func (c *Continuity) Apply(m *Model, sctx *Context) error {
	m.Objectives = append(m.Objectives, func(assignments []models.Assignment) float64 {
		return float64(templateSwitches(assignments))
	})
	return nil
}

func (c *Continuity) ApplyHeuristic(h *HeuristicModel, sctx *Context) error {
	h.Preferences = append(h.Preferences, func(unit DemandUnit, person models.Person, partial []models.Assignment) float64 {
		prev := unit.Slot.Date.AddDate(0, 0, -1)
		for _, a := range partial {
			if a.PersonID == person.ID && a.SlotDate.Equal(prev) && a.TemplateID == unit.TemplateID {
				return 1
			}
		}
		return 0
	})
	return nil
}

func (c *Continuity) Validate(_ *Context, _ []models.Assignment) []models.Violation {
	// Preference only; never a violation.
	return nil
}

func templateSwitches(assignments []models.Assignment) int {
	byPerson := groupByPerson(assignments)
	switches := 0
	for _, pid := range sortedKeys(byPerson) {
		list := byPerson[pid]
		sort.Slice(list, func(i, j int) bool { return list[i].Slot().Before(list[j].Slot()) })
		for i := 1; i < len(list); i++ {
			prevDay := list[i].SlotDate.AddDate(0, 0, -1)
			if list[i-1].SlotDate.Equal(prevDay) && list[i-1].TemplateID != list[i].TemplateID {
				switches++
			}
		}
	}
	return switches
}
