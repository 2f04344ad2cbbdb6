package solver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinrota/rota-api/internal/constraint"
	"github.com/clinrota/rota-api/internal/models"
)

func day(d int) time.Time {
	return time.Date(2026, time.July, d, 0, 0, 0, 0, time.UTC)
}

func defaultConstraints(t *testing.T) []constraint.Constraint {
	t.Helper()
	reg, err := constraint.FromConfigs(constraint.Defaults())
	require.NoError(t, err)
	return reg.Enabled()
}

func wardTemplate() models.RotationTemplate {
	return models.RotationTemplate{
		ID:         "tpl-ward",
		Name:       "Ward",
		Kind:       models.ActivityClinical,
		MinPerSlot: 1,
		MaxPerSlot: 2,
	}
}

func testBlock() models.Block {
	return models.Block{
		ID:           "blk-1",
		AcademicYear: 2026,
		Sequence:     1,
		StartDate:    day(2),
		EndDate:      day(29),
	}
}

func testInstance(t *testing.T) Instance {
	return Instance{
		People: []models.Person{
			{ID: "p-alice", Name: "Alice", Role: models.PersonRoleResident, Seniority: 2, Active: true},
			{ID: "p-bob", Name: "Bob", Role: models.PersonRoleResident, Seniority: 3, Active: true},
		},
		Templates:   []models.RotationTemplate{wardTemplate()},
		Blocks:      []models.Block{testBlock()},
		Constraints: defaultConstraints(t),
		Range:       models.DateRange{Start: day(6), End: day(7)},
	}
}

func TestSolveExactFillsAllDemand(t *testing.T) {
	eng := NewEngine(Options{}, nil)
	inst := testInstance(t)

	res, err := eng.Solve(context.Background(), inst, Options{Algorithm: AlgorithmExact})
	require.NoError(t, err)

	assert.Equal(t, StatusOptimal, res.Status)
	assert.False(t, res.Partial)
	// Two weekdays, two periods each, one primary demanded per slot.
	assert.Equal(t, 4, res.Coverage.Demanded)
	assert.Equal(t, 4, res.Coverage.Filled)
	require.Len(t, res.Assignments, 4)

	seen := make(map[string]string)
	for _, a := range res.Assignments {
		assert.Equal(t, models.AssignmentRolePrimary, a.Role)
		assert.Equal(t, "tpl-ward", a.TemplateID)
		key := a.Slot().Key()
		assert.Empty(t, seen[key], "slot %s filled twice", key)
		seen[key] = a.PersonID
	}
}

func TestSolveInfeasibleNamesBlockingConstraint(t *testing.T) {
	eng := NewEngine(Options{}, nil)
	inst := testInstance(t)
	inst.People = inst.People[:1]
	inst.Absences = []models.Absence{{
		ID:        "abs-1",
		PersonID:  "p-alice",
		StartDate: day(1),
		EndDate:   day(31),
		Kind:      models.AbsenceVacation,
		Blocking:  true,
		Approved:  true,
	}}

	res, err := eng.Solve(context.Background(), inst, Options{Algorithm: AlgorithmExact})
	require.NoError(t, err)

	assert.Equal(t, StatusInfeasible, res.Status)
	assert.Empty(t, res.Assignments)
	require.NotEmpty(t, res.Blocking)
	rules := make(map[string]bool)
	for _, b := range res.Blocking {
		rules[b.Rule] = true
	}
	assert.True(t, rules["availability"], "expected availability among blocking rules, got %v", rules)

	// Relaxing the reported constraint restores feasibility.
	inst.Absences = nil
	res, err = eng.Solve(context.Background(), inst, Options{Algorithm: AlgorithmExact})
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, res.Status)
}

func TestSolveExactBlockingSetIsDeterministic(t *testing.T) {
	eng := NewEngine(Options{}, nil)
	inst := testInstance(t)
	inst.People = inst.People[:1]
	inst.Absences = []models.Absence{{
		ID:        "abs-1",
		PersonID:  "p-alice",
		StartDate: day(1),
		EndDate:   day(31),
		Kind:      models.AbsenceVacation,
		Blocking:  true,
		Approved:  true,
	}}

	first, err := eng.Solve(context.Background(), inst, Options{Algorithm: AlgorithmExact})
	require.NoError(t, err)
	require.Equal(t, StatusInfeasible, first.Status)

	second, err := eng.Solve(context.Background(), inst, Options{Algorithm: AlgorithmExact})
	require.NoError(t, err)
	assert.Equal(t, first.Blocking, second.Blocking)
}

func TestSolveHeuristicIsDeterministic(t *testing.T) {
	eng := NewEngine(Options{}, nil)
	inst := testInstance(t)
	inst.People = append(inst.People, models.Person{
		ID: "p-carol", Name: "Carol", Role: models.PersonRoleResident, Seniority: 1, Active: true,
	})

	type placement struct {
		Person string
		Slot   string
	}
	run := func() []placement {
		res, err := eng.Solve(context.Background(), inst, Options{Algorithm: AlgorithmHeuristic})
		require.NoError(t, err)
		require.Equal(t, StatusFeasible, res.Status)
		out := make([]placement, 0, len(res.Assignments))
		for _, a := range res.Assignments {
			out = append(out, placement{Person: a.PersonID, Slot: a.Slot().Key()})
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestSolveSupervisionFillsSupervisorFirst(t *testing.T) {
	eng := NewEngine(Options{}, nil)
	inst := testInstance(t)
	tpl := wardTemplate()
	tpl.SupervisionRatio = 2
	tpl.SeniorityFloor = 5
	inst.Templates = []models.RotationTemplate{tpl}
	inst.People = append(inst.People, models.Person{
		ID: "p-dana", Name: "Dana", Role: models.PersonRoleFaculty, Active: true,
	})

	res, err := eng.Solve(context.Background(), inst, Options{Algorithm: AlgorithmExact})
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, res.Status)

	supervisors := 0
	for _, a := range res.Assignments {
		if a.Role == models.AssignmentRoleSupervising {
			supervisors++
			person := inst.People[2]
			assert.Equal(t, person.ID, a.PersonID, "supervising unit should go to faculty")
		}
	}
	assert.Equal(t, 4, supervisors, "one supervising assignment per slot")
}

func TestSolveLockedAssignmentsConsumeDemand(t *testing.T) {
	eng := NewEngine(Options{}, nil)
	inst := testInstance(t)
	inst.Locked = []models.Assignment{{
		ID:         "asg-locked",
		PersonID:   "p-alice",
		TemplateID: "tpl-ward",
		BlockID:    "blk-1",
		SlotDate:   day(6),
		SlotPeriod: models.SlotPeriodAM,
		Role:       models.AssignmentRolePrimary,
		Locked:     true,
		Version:    1,
	}}

	res, err := eng.Solve(context.Background(), inst, Options{Algorithm: AlgorithmExact})
	require.NoError(t, err)

	assert.Equal(t, StatusOptimal, res.Status)
	assert.Equal(t, 3, res.Coverage.Demanded)
	for _, a := range res.Assignments {
		assert.False(t, a.Slot().Equal(models.SlotRef{Date: day(6), Period: models.SlotPeriodAM}),
			"locked slot must not be refilled")
	}
}

func TestSolveRejectsInvalidTemplateBounds(t *testing.T) {
	eng := NewEngine(Options{}, nil)
	inst := testInstance(t)
	inst.Templates[0].MinPerSlot = 3
	inst.Templates[0].MaxPerSlot = 2

	_, err := eng.Solve(context.Background(), inst, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInstance))
}

func TestSolveCancelledContextReturnsPartial(t *testing.T) {
	eng := NewEngine(Options{}, nil)
	inst := testInstance(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := eng.Solve(ctx, inst, Options{Algorithm: AlgorithmExact})
	require.NoError(t, err)
	assert.Equal(t, StatusTimeoutPartial, res.Status)
	assert.True(t, res.Partial)
}

func TestSolveAutoPrefersHeuristicPastThreshold(t *testing.T) {
	eng := NewEngine(Options{}, nil)
	inst := testInstance(t)

	res, err := eng.Solve(context.Background(), inst, Options{HeuristicThreshold: 1})
	require.NoError(t, err)
	assert.Equal(t, AlgorithmHeuristic, res.Algorithm)
}
