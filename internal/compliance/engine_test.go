package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinrota/rota-api/internal/models"
)

func callWeekInput() Input {
	start := time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)
	var assignments []models.Assignment
	for day := 0; day < 7; day++ {
		for _, period := range []models.SlotPeriod{models.SlotPeriodAM, models.SlotPeriodPM} {
			assignments = append(assignments, models.Assignment{
				ID:         "asg-" + string(rune('a'+day)) + string(period),
				PersonID:   "p-alice",
				TemplateID: "tpl-call",
				SlotDate:   start.AddDate(0, 0, day),
				SlotPeriod: period,
				Role:       models.AssignmentRolePrimary,
			})
		}
	}
	return Input{
		Person:      models.Person{ID: "p-alice", Name: "Alice", Role: models.PersonRoleResident, Active: true},
		Assignments: assignments,
		Templates: map[string]models.RotationTemplate{
			"tpl-call": {ID: "tpl-call", Name: "Call", Kind: models.ActivityCall, HoursPerSlot: 12},
		},
		Range: models.DateRange{Start: start, End: start.AddDate(0, 0, 6)},
	}
}

func TestValidatePersonFlagsCeilingBreach(t *testing.T) {
	engine := NewEngine(Thresholds{WeeklyHourCeiling: 80, AveragingWeeks: 4})
	result := engine.ValidatePerson(callWeekInput())

	assert.False(t, result.IsCompliant)
	require.NotEmpty(t, result.Violations)
	assert.Less(t, result.Score, 100.0)
	for _, v := range result.Violations {
		assert.Equal(t, "p-alice", v.PersonID)
	}
}

func TestValidatePersonIsIdempotent(t *testing.T) {
	engine := NewEngine(Thresholds{WeeklyHourCeiling: 80, AveragingWeeks: 4})
	in := callWeekInput()

	first := engine.ValidatePerson(in)
	second := engine.ValidatePerson(in)

	// validation reads, never writes: identical outcome on every run
	assert.Equal(t, first, second)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, len(first.Violations), len(second.Violations))
}

func TestValidatePersonExemptsFaculty(t *testing.T) {
	engine := NewEngine(DefaultThresholds())
	in := callWeekInput()
	in.Person.Role = models.PersonRoleFaculty

	result := engine.ValidatePerson(in)
	assert.True(t, result.IsCompliant)
	assert.Equal(t, 100.0, result.Score)
	assert.Empty(t, result.Violations)
}
