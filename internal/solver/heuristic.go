package solver

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/clinrota/rota-api/internal/constraint"
	"github.com/clinrota/rota-api/internal/models"
)

// solveHeuristic fills demand units greedily in one deterministic pass.
// Units are visited by descending priority; candidates are ranked by
// constraint preference, then scarcity of the person's remaining options,
// then lexicographic id, so identical inputs always produce identical
// output. Units that cannot be filled are left open rather than forcing a
// hard-rule breach.
func (e *Engine) solveHeuristic(
	ctx context.Context,
	sctx *constraint.Context,
	inst Instance,
	units []constraint.DemandUnit,
	domains map[int][]string,
) (*Result, error) {
	model := &constraint.HeuristicModel{}
	for _, c := range inst.Constraints {
		if err := c.ApplyHeuristic(model, sctx); err != nil {
			return nil, err
		}
	}

	// A person appearing in few domains has few chances elsewhere; prefer
	// placing them when the scores tie.
	optionCount := make(map[string]int)
	for _, candidates := range domains {
		for _, id := range candidates {
			optionCount[id]++
		}
	}

	assigned := make([]models.Assignment, 0, len(units))
	vetoRules := make(map[int]map[string]bool)
	interrupted := false

	for _, unit := range units {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		full := append(append([]models.Assignment(nil), inst.Locked...), assigned...)

		best := ""
		bestScore := 0.0
		for _, personID := range domains[unit.Index] {
			cand := buildAssignment(unit, personID)
			ok := true
			for _, check := range model.Checks {
				if pass, rule := check(full, cand); !pass {
					recordVeto(vetoRules, unit.Index, rule)
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			score := 0.0
			for _, pref := range model.Preferences {
				score += pref(unit, sctx.People[personID], full)
			}
			if best == "" || better(score, personID, bestScore, best, optionCount) {
				best, bestScore = personID, score
			}
		}
		if best != "" {
			assigned = append(assigned, buildAssignment(unit, best))
		}
	}

	res := &Result{
		Assignments:   assigned,
		NodesExplored: len(units),
	}
	switch {
	case interrupted:
		res.Status = StatusTimeoutPartial
		res.Partial = true
	case len(assigned) == len(units):
		// Greedy never proves optimality.
		res.Status = StatusFeasible
	default:
		res.Status = StatusInfeasible
		res.Blocking = heuristicBlocking(units, assigned, vetoRules)
		res.Assignments = nil
	}
	return res, nil
}

func buildAssignment(unit constraint.DemandUnit, personID string) models.Assignment {
	return models.Assignment{
		ID:         uuid.NewString(),
		PersonID:   personID,
		TemplateID: unit.TemplateID,
		BlockID:    unit.BlockID,
		SlotDate:   unit.Slot.Date,
		SlotPeriod: unit.Slot.Period,
		Role:       unit.Role,
		Version:    1,
	}
}

// better applies the candidate tie-break order: higher preference score,
// then the person with fewer options overall, then the smaller id.
func better(score float64, id string, bestScore float64, bestID string, options map[string]int) bool {
	if score != bestScore {
		return score > bestScore
	}
	if options[id] != options[bestID] {
		return options[id] < options[bestID]
	}
	return id < bestID
}

func recordVeto(vetoes map[int]map[string]bool, unitIndex int, rule string) {
	if rule == "" {
		return
	}
	m, ok := vetoes[unitIndex]
	if !ok {
		m = make(map[string]bool)
		vetoes[unitIndex] = m
	}
	m[rule] = true
}

func heuristicBlocking(units []constraint.DemandUnit, assigned []models.Assignment, vetoes map[int]map[string]bool) []BlockingConstraint {
	filled := make(map[string]int)
	for _, a := range assigned {
		filled[demandKey(a.TemplateID, a.Slot(), a.Role)]++
	}
	var out []BlockingConstraint
	for _, unit := range units {
		key := demandKey(unit.TemplateID, unit.Slot, unit.Role)
		if filled[key] > 0 {
			filled[key]--
			continue
		}
		rules := make([]string, 0, len(vetoes[unit.Index]))
		for rule := range vetoes[unit.Index] {
			rules = append(rules, rule)
		}
		sort.Strings(rules)
		for _, rule := range rules {
			out = append(out, BlockingConstraint{
				Rule:       rule,
				TemplateID: unit.TemplateID,
				Slot:       unit.Slot,
				Detail:     "no admissible candidate in greedy pass",
			})
		}
	}
	return out
}
