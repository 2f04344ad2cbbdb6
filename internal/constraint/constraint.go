package constraint

import (
	"time"

	"github.com/clinrota/rota-api/internal/compliance"
	"github.com/clinrota/rota-api/internal/models"
)

// Context bundles the population a constraint evaluates against. It is built
// per request, immutable during one solve, and shared between the solver and
// post-hoc validation so the enforced and validated rule sets never diverge.
type Context struct {
	People     map[string]models.Person
	Templates  map[string]models.RotationTemplate
	Blocks     []models.Block
	Absences   []models.Absence
	Compliance *compliance.Engine
	Range      models.DateRange
	Now        time.Time
}

// AbsencesFor returns the person's absences, in input order.
func (c *Context) AbsencesFor(personID string) []models.Absence {
	var out []models.Absence
	for _, a := range c.Absences {
		if a.PersonID == personID {
			out = append(out, a)
		}
	}
	return out
}

// DemandUnit is one coverage requirement the solver must fill: a slot on a
// template needing one person in a role.
type DemandUnit struct {
	Index      int
	TemplateID string
	BlockID    string
	Slot       models.SlotRef
	Role       models.AssignmentRole
	Priority   int
}

// DomainFilter prunes candidate persons for a demand unit before search.
// The rule name feeds infeasibility reporting.
type DomainFilter func(unit DemandUnit, person models.Person) (ok bool, rule string)

// CheckFunc vetoes extending a partial assignment set with cand.
type CheckFunc func(partial []models.Assignment, cand models.Assignment) (ok bool, rule string)

// ObjectiveFunc scores a complete assignment set; lower is better.
type ObjectiveFunc func(assignments []models.Assignment) float64

// Model collects the exact-solver fragments contributed by constraints.
type Model struct {
	Filters    []DomainFilter
	Checks     []CheckFunc
	Objectives []ObjectiveFunc
}

// HeuristicModel collects fragments for the greedy backend. It shares the
// filter and check shapes with the exact model but adds candidate-preference
// scoring used by deterministic tie-breaking.
type HeuristicModel struct {
	Filters     []DomainFilter
	Checks      []CheckFunc
	Preferences []PreferenceFunc
}

// PreferenceFunc scores placing person on unit; higher is preferred.
type PreferenceFunc func(unit DemandUnit, person models.Person, partial []models.Assignment) float64

// Constraint is the fixed capability set every rule implements. One object
// participates both in solving (model fragments) and in validation.
type Constraint interface {
	Name() string
	Hard() bool
	Priority() int
	Apply(m *Model, sctx *Context) error
	ApplyHeuristic(h *HeuristicModel, sctx *Context) error
	Validate(sctx *Context, assignments []models.Assignment) []models.Violation
}

// base carries the configuration identity shared by all rule kinds.
type base struct {
	name     string
	hard     bool
	priority int
}

func (b base) Name() string  { return b.name }
func (b base) Hard() bool    { return b.hard }
func (b base) Priority() int { return b.priority }
