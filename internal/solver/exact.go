package solver

import (
	"context"
	"sort"

	"github.com/clinrota/rota-api/internal/constraint"
	"github.com/clinrota/rota-api/internal/models"
)

// incumbent tracks the best complete-or-partial assignment set found so far.
type incumbent struct {
	assignments []models.Assignment
	filled      int
	penalty     float64
}

type exactSearch struct {
	units   []constraint.DemandUnit
	domains map[int][]string
	model   *constraint.Model
	sctx    *constraint.Context
	locked  []models.Assignment

	best       incumbent
	nodes      int
	nodeBudget int
	ctx        context.Context
	stopped    bool
	done       bool

	// vetoRules records, per unit, which rules vetoed every candidate at a
	// dead end. Feeds the blocking set when the search proves infeasibility.
	vetoRules map[int]map[string]bool
}

// solveExact runs a depth-first branch and bound over the demand units.
// Units are expanded in priority order with supervising roles ahead of
// primaries so ratio checks observe supervisors first. The incumbent is
// updated whenever more units are filled, or as many with lower soft
// penalty; the search is exact when it runs to completion within budget.
func (e *Engine) solveExact(
	ctx context.Context,
	sctx *constraint.Context,
	inst Instance,
	units []constraint.DemandUnit,
	domains map[int][]string,
	opts Options,
) (*Result, error) {
	model := &constraint.Model{}
	for _, c := range inst.Constraints {
		if err := c.Apply(model, sctx); err != nil {
			return nil, err
		}
	}

	s := &exactSearch{
		units:      units,
		domains:    domains,
		model:      model,
		sctx:       sctx,
		locked:     inst.Locked,
		nodeBudget: opts.NodeBudget,
		ctx:        ctx,
		vetoRules:  make(map[int]map[string]bool),
		best:       incumbent{filled: -1},
	}

	partial := make([]models.Assignment, 0, len(units))
	s.descend(0, partial)

	res := &Result{
		Assignments:   s.best.assignments,
		NodesExplored: s.nodes,
	}
	switch {
	case s.best.filled == len(units) && !s.stopped:
		res.Status = StatusOptimal
	case s.best.filled == len(units):
		// Complete before interruption but optimality unproven.
		res.Status = StatusFeasible
	case s.stopped:
		res.Status = StatusTimeoutPartial
		res.Partial = true
	default:
		res.Status = StatusInfeasible
		res.Blocking = s.blocking()
		res.Assignments = nil
	}
	return res, nil
}

func (s *exactSearch) descend(depth int, partial []models.Assignment) {
	s.nodes++
	if s.nodes > s.nodeBudget || s.ctx.Err() != nil {
		s.stopped = true
	}
	if s.stopped {
		s.record(partial)
		return
	}
	if s.done {
		return
	}
	if depth == len(s.units) {
		s.record(partial)
		return
	}
	// Bound: even filling every remaining unit cannot beat the incumbent.
	if len(partial)+(len(s.units)-depth) < s.best.filled {
		return
	}

	unit := s.units[depth]
	extended := false
	for _, personID := range s.domains[unit.Index] {
		cand := buildAssignment(unit, personID)
		if rule, ok := s.admissible(partial, cand); !ok {
			s.veto(unit.Index, rule)
			continue
		}
		extended = true
		s.descend(depth+1, append(partial, cand))
		if s.stopped || s.done {
			return
		}
	}
	if !extended {
		// Dead end at this unit; the best we can do below is skip it.
		s.record(partial)
		s.descend(depth+1, partial)
	}
}

func (s *exactSearch) admissible(partial []models.Assignment, cand models.Assignment) (string, bool) {
	full := partial
	if len(s.locked) > 0 {
		full = append(append([]models.Assignment(nil), s.locked...), partial...)
	}
	for _, check := range s.model.Checks {
		if ok, rule := check(full, cand); !ok {
			return rule, false
		}
	}
	return "", true
}

func (s *exactSearch) record(partial []models.Assignment) {
	filled := len(partial)
	if filled < s.best.filled {
		return
	}
	penalty := s.penalty(partial)
	if filled == s.best.filled && penalty >= s.best.penalty {
		return
	}
	s.best = incumbent{
		assignments: append([]models.Assignment(nil), partial...),
		filled:      filled,
		penalty:     penalty,
	}
	// A complete zero-penalty set cannot be improved on.
	if filled == len(s.units) && penalty == 0 {
		s.done = true
	}
}

func (s *exactSearch) penalty(partial []models.Assignment) float64 {
	if len(s.model.Objectives) == 0 {
		return 0
	}
	full := append(append([]models.Assignment(nil), s.locked...), partial...)
	var total float64
	for _, obj := range s.model.Objectives {
		total += obj(full)
	}
	return total
}

func (s *exactSearch) veto(unitIndex int, rule string) {
	if rule == "" {
		return
	}
	m, ok := s.vetoRules[unitIndex]
	if !ok {
		m = make(map[string]bool)
		s.vetoRules[unitIndex] = m
	}
	m[rule] = true
}

// blocking reports the rules that vetoed every candidate of the units the
// incumbent could not fill.
func (s *exactSearch) blocking() []BlockingConstraint {
	covered := make(map[string]bool)
	for _, a := range s.best.assignments {
		covered[demandKey(a.TemplateID, a.Slot(), a.Role)] = true
	}
	var out []BlockingConstraint
	seen := make(map[string]bool)
	for _, unit := range s.units {
		key := demandKey(unit.TemplateID, unit.Slot, unit.Role)
		if covered[key] {
			continue
		}
		rules := make([]string, 0, len(s.vetoRules[unit.Index]))
		for rule := range s.vetoRules[unit.Index] {
			rules = append(rules, rule)
		}
		sort.Strings(rules)
		for _, rule := range rules {
			dedupe := rule + "|" + key
			if seen[dedupe] {
				continue
			}
			seen[dedupe] = true
			out = append(out, BlockingConstraint{
				Rule:       rule,
				TemplateID: unit.TemplateID,
				Slot:       unit.Slot,
				Detail:     "every candidate vetoed during search",
			})
		}
	}
	return out
}
