package solver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/clinrota/rota-api/internal/compliance"
	"github.com/clinrota/rota-api/internal/constraint"
	"github.com/clinrota/rota-api/internal/models"
)

// Algorithm selects a solver backend.
type Algorithm string

const (
	AlgorithmAuto      Algorithm = "auto"
	AlgorithmExact     Algorithm = "exact"
	AlgorithmHeuristic Algorithm = "heuristic"
)

// Status describes the solve outcome.
type Status string

const (
	StatusOptimal        Status = "OPTIMAL"
	StatusFeasible       Status = "FEASIBLE"
	StatusTimeoutPartial Status = "TIMEOUT_PARTIAL"
	StatusInfeasible     Status = "INFEASIBLE"
)

// ErrInvalidInstance marks internally inconsistent solver input, e.g. a
// template whose minimum exceeds its maximum.
var ErrInvalidInstance = errors.New("invalid solver instance")

// Instance bundles everything one solve run needs. Locked assignments are
// fixed inputs, never decision variables.
type Instance struct {
	People      []models.Person
	Templates   []models.RotationTemplate
	Blocks      []models.Block
	Absences    []models.Absence
	Locked      []models.Assignment
	Constraints []constraint.Constraint
	Range       models.DateRange
	Compliance  *compliance.Engine
}

// Options tune one solve run. Zero values fall back to engine defaults.
type Options struct {
	Algorithm  Algorithm
	Timeout    time.Duration
	NodeBudget int
	// HeuristicThreshold is the units*people size past which auto mode
	// prefers the greedy backend.
	HeuristicThreshold int
}

// BlockingConstraint names one member of the conflicting set returned for an
// infeasible instance. Relaxing any listed member makes at least the named
// demand satisfiable; strict minimality of the whole set is not promised.
type BlockingConstraint struct {
	Rule       string         `json:"rule"`
	TemplateID string         `json:"template_id"`
	Slot       models.SlotRef `json:"slot"`
	Detail     string         `json:"detail,omitempty"`
}

// TemplateCoverage reports demand fill for one template.
type TemplateCoverage struct {
	Demanded int `json:"demanded"`
	Filled   int `json:"filled"`
}

// Coverage aggregates fill metrics for a result.
type Coverage struct {
	Demanded         int                         `json:"demanded"`
	Filled           int                         `json:"filled"`
	ByTemplate       map[string]TemplateCoverage `json:"by_template"`
	WorkloadVariance float64                     `json:"workload_variance"`
}

// Result is the solve outcome. A timed-out run still carries the best
// incumbent found, flagged Partial; it is never silently treated as success.
type Result struct {
	Status        Status               `json:"status"`
	Algorithm     Algorithm            `json:"algorithm"`
	Assignments   []models.Assignment  `json:"assignments"`
	Coverage      Coverage             `json:"coverage"`
	Violations    []models.Violation   `json:"violations,omitempty"`
	Blocking      []BlockingConstraint `json:"blocking,omitempty"`
	Runtime       time.Duration        `json:"runtime"`
	NodesExplored int                  `json:"nodes_explored"`
	Partial       bool                 `json:"partial"`
}

// Engine turns an instance into an assignment set using the exact or greedy
// backend.
type Engine struct {
	defaults Options
	logger   *zap.Logger
}

// NewEngine builds an engine with default options applied to every run.
func NewEngine(defaults Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = 30 * time.Second
	}
	if defaults.NodeBudget <= 0 {
		defaults.NodeBudget = 2_000_000
	}
	if defaults.HeuristicThreshold <= 0 {
		defaults.HeuristicThreshold = 5000
	}
	return &Engine{defaults: defaults, logger: logger}
}

// Solve validates the instance, builds the constraint model and dispatches
// to a backend. The run is bounded by the timeout and cooperatively
// cancellable through ctx; it always returns a best-known result.
func (e *Engine) Solve(ctx context.Context, inst Instance, opts Options) (*Result, error) {
	start := time.Now()
	if err := e.preflight(inst); err != nil {
		return nil, err
	}
	opts = e.merge(opts)

	sctx := buildContext(inst)
	units := buildUnits(inst)
	domains, blocking := buildDomains(inst, sctx, units)
	if len(blocking) > 0 {
		return &Result{
			Status:    StatusInfeasible,
			Algorithm: opts.Algorithm,
			Blocking:  blocking,
			Runtime:   time.Since(start),
		}, nil
	}

	algorithm := opts.Algorithm
	if algorithm == AlgorithmAuto || algorithm == "" {
		if len(units)*len(inst.People) > opts.HeuristicThreshold {
			algorithm = AlgorithmHeuristic
		} else {
			algorithm = AlgorithmExact
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var res *Result
	var err error
	switch algorithm {
	case AlgorithmExact:
		res, err = e.solveExact(runCtx, sctx, inst, units, domains, opts)
	case AlgorithmHeuristic:
		res, err = e.solveHeuristic(runCtx, sctx, inst, units, domains)
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidInstance, algorithm)
	}
	if err != nil {
		return nil, err
	}

	res.Algorithm = algorithm
	res.Runtime = time.Since(start)
	res.Coverage = e.coverage(inst, units, res.Assignments)
	res.Violations = e.softViolations(sctx, inst, res.Assignments)

	e.logger.Info("solve finished",
		zap.String("algorithm", string(algorithm)),
		zap.String("status", string(res.Status)),
		zap.Int("units", len(units)),
		zap.Int("filled", res.Coverage.Filled),
		zap.Int("nodes", res.NodesExplored),
		zap.Duration("runtime", res.Runtime),
	)
	return res, nil
}

func (e *Engine) merge(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = e.defaults.Timeout
	}
	if opts.NodeBudget <= 0 {
		opts.NodeBudget = e.defaults.NodeBudget
	}
	if opts.HeuristicThreshold <= 0 {
		opts.HeuristicThreshold = e.defaults.HeuristicThreshold
	}
	if opts.Algorithm == "" {
		opts.Algorithm = AlgorithmAuto
	}
	return opts
}

func (e *Engine) preflight(inst Instance) error {
	if inst.Range.End.Before(inst.Range.Start) {
		return fmt.Errorf("%w: range end precedes start", ErrInvalidInstance)
	}
	for _, tpl := range inst.Templates {
		if tpl.MaxPerSlot > 0 && tpl.MinPerSlot > tpl.MaxPerSlot {
			return fmt.Errorf("%w: template %s min_per_slot %d exceeds max_per_slot %d",
				ErrInvalidInstance, tpl.ID, tpl.MinPerSlot, tpl.MaxPerSlot)
		}
		if tpl.SupervisionRatio < 0 {
			return fmt.Errorf("%w: template %s has negative supervision ratio", ErrInvalidInstance, tpl.ID)
		}
	}
	if len(inst.People) == 0 {
		return fmt.Errorf("%w: no schedulable people", ErrInvalidInstance)
	}
	return nil
}

func buildContext(inst Instance) *constraint.Context {
	people := make(map[string]models.Person, len(inst.People))
	for _, p := range inst.People {
		people[p.ID] = p
	}
	templates := make(map[string]models.RotationTemplate, len(inst.Templates))
	for _, t := range inst.Templates {
		templates[t.ID] = t
	}
	eng := inst.Compliance
	if eng == nil {
		eng = compliance.NewEngine(compliance.DefaultThresholds())
	}
	return &constraint.Context{
		People:     people,
		Templates:  templates,
		Blocks:     inst.Blocks,
		Absences:   inst.Absences,
		Compliance: eng,
		Range:      inst.Range,
		Now:        time.Now().UTC(),
	}
}

// buildUnits derives the demand units: per slot in range, each template
// demands MinPerSlot primaries plus one supervising unit when it enforces a
// ratio. Supervising units sort first so ratio checks see supervisors before
// trainees. Locked assignments consume matching demand.
func buildUnits(inst Instance) []constraint.DemandUnit {
	lockedCount := make(map[string]int)
	for _, a := range inst.Locked {
		lockedCount[demandKey(a.TemplateID, a.Slot(), a.Role)]++
	}

	var units []constraint.DemandUnit
	for _, block := range inst.Blocks {
		for _, day := range (models.DateRange{Start: block.StartDate, End: block.EndDate}).Days() {
			if !inst.Range.Contains(day) {
				continue
			}
			for _, period := range models.SlotPeriods {
				slot := models.SlotRef{Date: day, Period: period}
				for _, tpl := range inst.Templates {
					if !tpl.IncludesWeekends && slot.IsWeekend() {
						continue
					}
					if tpl.RequiresSupervision() && tpl.MinPerSlot > 0 {
						need := 1 - lockedCount[demandKey(tpl.ID, slot, models.AssignmentRoleSupervising)]
						for i := 0; i < need; i++ {
							units = append(units, constraint.DemandUnit{
								TemplateID: tpl.ID,
								BlockID:    block.ID,
								Slot:       slot,
								Role:       models.AssignmentRoleSupervising,
								Priority:   templatePriority(tpl) + 1,
							})
						}
					}
					need := tpl.MinPerSlot - lockedCount[demandKey(tpl.ID, slot, models.AssignmentRolePrimary)]
					for i := 0; i < need; i++ {
						units = append(units, constraint.DemandUnit{
							TemplateID: tpl.ID,
							BlockID:    block.ID,
							Slot:       slot,
							Role:       models.AssignmentRolePrimary,
							Priority:   templatePriority(tpl),
						})
					}
				}
			}
		}
	}

	sort.SliceStable(units, func(i, j int) bool {
		if units[i].Priority != units[j].Priority {
			return units[i].Priority > units[j].Priority
		}
		if !units[i].Slot.Equal(units[j].Slot) {
			return units[i].Slot.Before(units[j].Slot)
		}
		return units[i].TemplateID < units[j].TemplateID
	})
	for i := range units {
		units[i].Index = i
	}
	return units
}

func templatePriority(tpl models.RotationTemplate) int {
	switch tpl.Kind {
	case models.ActivityCall:
		return 40
	case models.ActivityClinical:
		return 30
	case models.ActivityClinic:
		return 20
	case models.ActivityElective:
		return 10
	default:
		return 0
	}
}

func demandKey(templateID string, slot models.SlotRef, role models.AssignmentRole) string {
	return templateID + "|" + slot.Key() + "|" + string(role)
}

// buildDomains computes candidate people per unit through the built-in
// eligibility rules plus every constraint-contributed domain filter. An
// empty domain is immediately infeasible; the returned blocking set names
// rules whose individual relaxation restores candidates, guaranteeing at
// least one true blocking constraint is reported.
func buildDomains(inst Instance, sctx *constraint.Context, units []constraint.DemandUnit) (map[int][]string, []BlockingConstraint) {
	model := &constraint.Model{}
	for _, c := range inst.Constraints {
		// Apply errors only arise from malformed params, which preflight and
		// configuration decoding already reject.
		_ = c.Apply(model, sctx)
	}

	domains := make(map[int][]string, len(units))
	var blocking []BlockingConstraint
	for _, unit := range units {
		tpl := sctx.Templates[unit.TemplateID]
		var candidates []string
		filteredBy := make(map[string]int)
		for _, p := range inst.People {
			if !eligible(tpl, unit, p) {
				filteredBy["eligibility"]++
				continue
			}
			ok := true
			for _, f := range model.Filters {
				if pass, rule := f(unit, p); !pass {
					filteredBy[rule]++
					ok = false
					break
				}
			}
			if ok {
				candidates = append(candidates, p.ID)
			}
		}
		if len(candidates) == 0 {
			blocking = append(blocking, blockingSet(unit, tpl, inst, sctx, model, filteredBy)...)
			continue
		}
		sort.Strings(candidates)
		domains[unit.Index] = candidates
	}
	return domains, blocking
}

func eligible(tpl models.RotationTemplate, unit constraint.DemandUnit, p models.Person) bool {
	if !p.Active || p.ArchivedAt != nil {
		return false
	}
	if tpl.RequiredSpecialty != nil && *tpl.RequiredSpecialty != "" && !p.HasSpecialty(*tpl.RequiredSpecialty) {
		return false
	}
	if unit.Role == models.AssignmentRoleSupervising {
		return !p.IsTrainee() || p.Seniority >= tpl.SeniorityFloor
	}
	return true
}

// blockingSet tests which rules truly block the unit: a rule makes the set
// when dropping just that filter restores at least one candidate. When no
// single relaxation helps, every observed rule is reported.
func blockingSet(
	unit constraint.DemandUnit,
	tpl models.RotationTemplate,
	inst Instance,
	sctx *constraint.Context,
	model *constraint.Model,
	filteredBy map[string]int,
) []BlockingConstraint {
	rules := make([]string, 0, len(filteredBy))
	for rule := range filteredBy {
		rules = append(rules, rule)
	}
	sort.Strings(rules)

	var confirmed []string
	for _, relaxed := range rules {
		for _, p := range inst.People {
			if relaxed != "eligibility" && !eligible(tpl, unit, p) {
				continue
			}
			pass := true
			for _, f := range model.Filters {
				ok, rule := f(unit, p)
				if !ok && rule != relaxed {
					pass = false
					break
				}
			}
			if pass {
				confirmed = append(confirmed, relaxed)
				break
			}
		}
	}
	if len(confirmed) == 0 {
		confirmed = rules
	}

	out := make([]BlockingConstraint, 0, len(confirmed))
	for _, rule := range confirmed {
		out = append(out, BlockingConstraint{
			Rule:       rule,
			TemplateID: unit.TemplateID,
			Slot:       unit.Slot,
			Detail:     fmt.Sprintf("no eligible candidate for %s %s on %s", tpl.Name, unit.Role, unit.Slot.Key()),
		})
	}
	return out
}

func (e *Engine) coverage(inst Instance, units []constraint.DemandUnit, produced []models.Assignment) Coverage {
	cov := Coverage{ByTemplate: make(map[string]TemplateCoverage)}
	for _, u := range units {
		cov.Demanded++
		tc := cov.ByTemplate[u.TemplateID]
		tc.Demanded++
		cov.ByTemplate[u.TemplateID] = tc
	}
	for _, a := range produced {
		cov.Filled++
		tc := cov.ByTemplate[a.TemplateID]
		tc.Filled++
		cov.ByTemplate[a.TemplateID] = tc
	}
	templates := make(map[string]models.RotationTemplate)
	for _, t := range inst.Templates {
		templates[t.ID] = t
	}
	all := append(append([]models.Assignment(nil), inst.Locked...), produced...)
	cov.WorkloadVariance = constraint.WorkloadVariance(all, templates)
	return cov
}

// softViolations validates the full post-solve state against the soft rules
// so callers see which preferences went unmet. Hard rules are enforced
// during search and re-checked by callers through the shared validator.
func (e *Engine) softViolations(sctx *constraint.Context, inst Instance, produced []models.Assignment) []models.Violation {
	all := append(append([]models.Assignment(nil), inst.Locked...), produced...)
	var out []models.Violation
	for _, c := range inst.Constraints {
		if c.Hard() {
			continue
		}
		out = append(out, c.Validate(sctx, all)...)
	}
	return out
}
