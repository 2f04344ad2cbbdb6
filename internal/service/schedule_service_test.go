package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinrota/rota-api/internal/constraint"
	"github.com/clinrota/rota-api/internal/models"
	"github.com/clinrota/rota-api/internal/solver"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
)

func defaultConstraintSource(t *testing.T) *stubConstraintSource {
	t.Helper()
	reg, err := constraint.FromConfigs(constraint.Defaults())
	require.NoError(t, err)
	return &stubConstraintSource{set: reg.Enabled()}
}

func newScheduleService(t *testing.T, repo *mockAssignmentWriteRepo) *ScheduleService {
	t.Helper()
	if repo.db == nil {
		repo.db = txBackedDB(t)
	}
	people := &stubPeopleRepo{people: map[string]models.Person{
		"p-alice": {ID: "p-alice", Name: "Alice", Role: models.PersonRoleResident, Seniority: 2, Active: true},
		"p-bob":   {ID: "p-bob", Name: "Bob", Role: models.PersonRoleResident, Seniority: 3, Active: true},
	}}
	templates := &stubTemplateRepo{templates: []models.RotationTemplate{
		{ID: "tpl-ward", Name: "Ward", Kind: models.ActivityClinical, MinPerSlot: 1, MaxPerSlot: 2},
	}}
	return NewScheduleService(
		repo,
		people,
		templates,
		&stubBlockRepo{blocks: []models.Block{julyBlock()}},
		&stubAbsenceRepo{},
		defaultConstraintSource(t),
		nil, nil, nil, nil, nil, nil,
	)
}

func TestScheduleServiceSolveDryRun(t *testing.T) {
	repo := &mockAssignmentWriteRepo{}
	svc := newScheduleService(t, repo)

	result, err := svc.Solve(context.Background(), "chief", SolveRequest{
		Start: time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 7, 7, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, solver.StatusOptimal, result.Status)
	assert.NotEmpty(t, result.Assignments)
	// dry run writes nothing
	assert.Empty(t, repo.bulk)
}

func TestScheduleServiceSolveCommitStampsProvenance(t *testing.T) {
	repo := &mockAssignmentWriteRepo{}
	svc := newScheduleService(t, repo)

	result, err := svc.Solve(context.Background(), "chief", SolveRequest{
		Start:  time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2026, 7, 7, 0, 0, 0, 0, time.UTC),
		Commit: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, repo.bulk)
	assert.Len(t, repo.bulk, len(result.Assignments))

	var prov models.SolverProvenance
	require.NoError(t, json.Unmarshal(repo.bulk[0].Provenance, &prov))
	assert.Equal(t, string(result.Algorithm), prov.Algorithm)
	assert.Equal(t, 1.0, prov.Confidence)
	assert.Equal(t, "chief", repo.bulk[0].CreatedBy)
}

func TestScheduleServiceSolveRejectsInvertedRange(t *testing.T) {
	svc := newScheduleService(t, &mockAssignmentWriteRepo{})

	_, err := svc.Solve(context.Background(), "chief", SolveRequest{
		Start: time.Date(2026, 7, 7, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestScheduleServiceSolveKeepsLockedAssignments(t *testing.T) {
	locked := models.Assignment{
		ID:         "asg-locked",
		PersonID:   "p-alice",
		TemplateID: "tpl-ward",
		BlockID:    "blk-1",
		SlotDate:   time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
		SlotPeriod: models.SlotPeriodAM,
		Role:       models.AssignmentRolePrimary,
		Locked:     true,
		Version:    1,
	}
	repo := &mockAssignmentWriteRepo{assignments: map[string]models.Assignment{"asg-locked": locked}}
	svc := newScheduleService(t, repo)

	result, err := svc.Solve(context.Background(), "chief", SolveRequest{
		Start: time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 7, 7, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	for _, a := range result.Assignments {
		assert.NotEqual(t, "asg-locked", a.ID)
	}
}
