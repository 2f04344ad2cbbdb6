package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinrota/rota-api/internal/compliance"
	"github.com/clinrota/rota-api/internal/models"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
)

type stubComplianceAssignments struct {
	byPerson map[string][]models.Assignment
}

func (m *stubComplianceAssignments) ListForPerson(ctx context.Context, personID string, dr models.DateRange) ([]models.Assignment, error) {
	return m.byPerson[personID], nil
}

func complianceWeek() models.DateRange {
	return models.DateRange{
		Start: time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 7, 12, 0, 0, 0, 0, time.UTC),
	}
}

// overworked returns a resident whose single assignment alone exceeds a
// 5-hour weekly ceiling.
func overworkedFixture() (*stubPeopleRepo, *stubComplianceAssignments, *stubTemplateRepo) {
	people := &stubPeopleRepo{people: map[string]models.Person{
		"p-alice": {ID: "p-alice", Name: "Alice", Role: models.PersonRoleResident, Seniority: 2, Active: true},
	}}
	assignments := &stubComplianceAssignments{byPerson: map[string][]models.Assignment{
		"p-alice": {
			{
				ID:         "asg-1",
				PersonID:   "p-alice",
				TemplateID: "tpl-call",
				SlotDate:   time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
				SlotPeriod: models.SlotPeriodAM,
				Role:       models.AssignmentRolePrimary,
			},
		},
	}}
	templates := &stubTemplateRepo{templates: []models.RotationTemplate{
		{ID: "tpl-call", Name: "Call", Kind: models.ActivityCall, MinPerSlot: 1, MaxPerSlot: 1, HoursPerSlot: 12},
	}}
	return people, assignments, templates
}

func TestComplianceServiceReportsViolation(t *testing.T) {
	people, assignments, templates := overworkedFixture()
	engine := compliance.NewEngine(compliance.Thresholds{WeeklyHourCeiling: 5, AveragingWeeks: 1})
	svc := NewComplianceService(engine, people, assignments, templates, &stubViolationRepo{}, nil, 0, 1, nil, nil, nil)

	result, err := svc.ValidatePerson(context.Background(), "p-alice", complianceWeek())
	require.NoError(t, err)
	assert.False(t, result.IsCompliant)
	assert.NotEmpty(t, result.Violations)
	assert.Empty(t, result.Acknowledged)
	assert.Less(t, result.Score, 100.0)
}

func TestComplianceServiceAcknowledgedViolationsDoNotCount(t *testing.T) {
	people, assignments, templates := overworkedFixture()
	engine := compliance.NewEngine(compliance.Thresholds{WeeklyHourCeiling: 5, AveragingWeeks: 1})
	violations := &stubViolationRepo{}
	svc := NewComplianceService(engine, people, assignments, templates, violations, nil, 0, 1, nil, nil, nil)

	first, err := svc.ValidatePerson(context.Background(), "p-alice", complianceWeek())
	require.NoError(t, err)
	require.NotEmpty(t, first.Violations)

	for _, v := range first.Violations {
		_, err := svc.Acknowledge(context.Background(), AcknowledgeViolationRequest{
			Violation:     v,
			Justification: "staffing emergency, chief approved",
		})
		require.NoError(t, err)
	}

	second, err := svc.ValidatePerson(context.Background(), "p-alice", complianceWeek())
	require.NoError(t, err)
	assert.True(t, second.IsCompliant)
	assert.Empty(t, second.Violations)
	assert.Len(t, second.Acknowledged, len(first.Violations))
	assert.Equal(t, 100.0, second.Score)
}

func TestComplianceServiceAcknowledgeRequiresJustification(t *testing.T) {
	people, assignments, templates := overworkedFixture()
	svc := NewComplianceService(nil, people, assignments, templates, &stubViolationRepo{}, nil, 0, 1, nil, nil, nil)

	_, err := svc.Acknowledge(context.Background(), AcknowledgeViolationRequest{
		Violation: models.Violation{Rule: compliance.RuleWeeklyHours, PersonID: "p-alice"},
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestComplianceServiceUnknownPerson(t *testing.T) {
	people, assignments, templates := overworkedFixture()
	svc := NewComplianceService(nil, people, assignments, templates, &stubViolationRepo{}, nil, 0, 1, nil, nil, nil)

	_, err := svc.ValidatePerson(context.Background(), "p-ghost", complianceWeek())
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestComplianceServiceFacultyExempt(t *testing.T) {
	people := &stubPeopleRepo{people: map[string]models.Person{
		"p-dana": {ID: "p-dana", Name: "Dana", Role: models.PersonRoleFaculty, Seniority: 10, Active: true},
	}}
	svc := NewComplianceService(nil, people, &stubComplianceAssignments{}, &stubTemplateRepo{}, &stubViolationRepo{}, nil, 0, 1, nil, nil, nil)

	result, err := svc.ValidatePerson(context.Background(), "p-dana", complianceWeek())
	require.NoError(t, err)
	assert.True(t, result.IsCompliant)
	assert.Equal(t, 100.0, result.Score)
}

func TestComplianceServicePopulationSortsResults(t *testing.T) {
	people, assignments, templates := overworkedFixture()
	people.people["p-bob"] = models.Person{ID: "p-bob", Name: "Bob", Role: models.PersonRoleResident, Seniority: 3, Active: true}
	svc := NewComplianceService(nil, people, assignments, templates, &stubViolationRepo{}, nil, 0, 2, nil, nil, nil)

	population, err := svc.ValidatePopulation(context.Background(), complianceWeek())
	require.NoError(t, err)
	assert.Len(t, population.Results, 2)
	assert.Empty(t, population.Failed)
	// sorted by person id
	assert.Equal(t, "p-alice", population.Results[0].PersonID)
	assert.Equal(t, "p-bob", population.Results[1].PersonID)
}

func TestComplianceServiceValidatePersonUsesCache(t *testing.T) {
	people, assignments, templates := overworkedFixture()
	cache := &memoryCache{}
	svc := NewComplianceService(nil, people, assignments, templates, &stubViolationRepo{}, cache, 0, 1, nil, nil, nil)

	_, err := svc.ValidatePerson(context.Background(), "p-alice", complianceWeek())
	require.NoError(t, err)
	require.NotEmpty(t, cache.entries)

	// drop the person; the cached result still answers
	delete(people.people, "p-alice")
	result, err := svc.ValidatePerson(context.Background(), "p-alice", complianceWeek())
	require.NoError(t, err)
	assert.Equal(t, "p-alice", result.PersonID)
}
