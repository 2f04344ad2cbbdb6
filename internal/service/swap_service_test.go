package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinrota/rota-api/internal/constraint"
	"github.com/clinrota/rota-api/internal/models"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
)

type mockSwapRepo struct {
	swaps        map[string]models.SwapRecord
	lastExecuted map[string]*time.Time
	updateMiss   bool
	lastExec     sqlx.ExtContext
}

func (m *mockSwapRepo) Create(ctx context.Context, swap *models.SwapRecord) error {
	if m.swaps == nil {
		m.swaps = make(map[string]models.SwapRecord)
	}
	if swap.ID == "" {
		swap.ID = "swap-1"
	}
	if swap.Status == "" {
		swap.Status = models.SwapStatusProposed
	}
	m.swaps[swap.ID] = *swap
	return nil
}

func (m *mockSwapRepo) FindByID(ctx context.Context, id string) (*models.SwapRecord, error) {
	if s, ok := m.swaps[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSwapRepo) ListByStatus(ctx context.Context, status models.SwapStatus) ([]models.SwapRecord, error) {
	var list []models.SwapRecord
	for _, s := range m.swaps {
		if s.Status == status {
			list = append(list, s)
		}
	}
	return list, nil
}

func (m *mockSwapRepo) ListForAssignment(ctx context.Context, assignmentID string) ([]models.SwapRecord, error) {
	return nil, nil
}

func (m *mockSwapRepo) LastExecutedForPerson(ctx context.Context, personID string) (*time.Time, error) {
	return m.lastExecuted[personID], nil
}

func (m *mockSwapRepo) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, swap *models.SwapRecord, expected models.SwapStatus) error {
	m.lastExec = exec
	if m.updateMiss {
		return sql.ErrNoRows
	}
	current, ok := m.swaps[swap.ID]
	if !ok || current.Status != expected {
		return sql.ErrNoRows
	}
	m.swaps[swap.ID] = *swap
	return nil
}

func swapAssignments() map[string]models.Assignment {
	return map[string]models.Assignment{
		"asg-a": {
			ID:         "asg-a",
			PersonID:   "p-alice",
			TemplateID: "tpl-ward",
			BlockID:    "blk-1",
			SlotDate:   time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
			SlotPeriod: models.SlotPeriodAM,
			Role:       models.AssignmentRolePrimary,
			Version:    1,
		},
		"asg-b": {
			ID:         "asg-b",
			PersonID:   "p-bob",
			TemplateID: "tpl-ward",
			BlockID:    "blk-1",
			SlotDate:   time.Date(2026, 7, 7, 0, 0, 0, 0, time.UTC),
			SlotPeriod: models.SlotPeriodAM,
			Role:       models.AssignmentRolePrimary,
			Version:    1,
		},
	}
}

func newSwapService(t *testing.T, swaps *mockSwapRepo, assignments *mockAssignmentWriteRepo) *SwapService {
	t.Helper()
	if assignments.db == nil {
		assignments.db = txBackedDB(t)
	}
	people := &stubPeopleRepo{people: map[string]models.Person{
		"p-alice": {ID: "p-alice", Name: "Alice", Role: models.PersonRoleResident, Seniority: 2, Active: true},
		"p-bob":   {ID: "p-bob", Name: "Bob", Role: models.PersonRoleResident, Seniority: 3, Active: true},
	}}
	templates := &stubTemplateRepo{templates: []models.RotationTemplate{
		{ID: "tpl-ward", Name: "Ward", Kind: models.ActivityClinical, MinPerSlot: 1, MaxPerSlot: 3},
	}}
	return NewSwapService(
		swaps,
		assignments,
		people,
		templates,
		&stubAbsenceRepo{},
		&stubConstraintSource{},
		nil, nil, nil, nil,
		0, 0, nil, nil,
	)
}

func TestSwapServiceProposePinsVersions(t *testing.T) {
	swaps := &mockSwapRepo{}
	assignments := &mockAssignmentWriteRepo{assignments: swapAssignments()}
	svc := newSwapService(t, swaps, assignments)

	swap, err := svc.Propose(context.Background(), "p-alice", ProposeSwapRequest{
		SourceAssignmentID: "asg-a",
		TargetAssignmentID: "asg-b",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusProposed, swap.Status)
	assert.Equal(t, 1, swap.SourceVersion)
	assert.Equal(t, 1, swap.TargetVersion)
	assert.Equal(t, "p-alice", swap.ProposedBy)
}

func TestSwapServiceProposeRejectsLocked(t *testing.T) {
	assignments := &mockAssignmentWriteRepo{assignments: swapAssignments()}
	locked := assignments.assignments["asg-a"]
	locked.Locked = true
	assignments.assignments["asg-a"] = locked
	svc := newSwapService(t, &mockSwapRepo{}, assignments)

	_, err := svc.Propose(context.Background(), "p-alice", ProposeSwapRequest{
		SourceAssignmentID: "asg-a",
		TargetAssignmentID: "asg-b",
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
}

func TestSwapServiceProposeRejectsSelfSwap(t *testing.T) {
	assignments := &mockAssignmentWriteRepo{assignments: swapAssignments()}
	svc := newSwapService(t, &mockSwapRepo{}, assignments)

	_, err := svc.Propose(context.Background(), "p-alice", ProposeSwapRequest{
		SourceAssignmentID: "asg-a",
		TargetAssignmentID: "asg-a",
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestSwapServiceValidateMarksValidated(t *testing.T) {
	swaps := &mockSwapRepo{swaps: map[string]models.SwapRecord{
		"swap-1": {
			ID:                 "swap-1",
			SourceAssignmentID: "asg-a",
			TargetAssignmentID: "asg-b",
			SourceVersion:      1,
			TargetVersion:      1,
			Status:             models.SwapStatusProposed,
		},
	}}
	assignments := &mockAssignmentWriteRepo{assignments: swapAssignments()}
	svc := newSwapService(t, swaps, assignments)

	swap, err := svc.Validate(context.Background(), "chief", "swap-1", ValidateSwapRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusValidated, swap.Status)
	require.NotNil(t, swap.ValidatedAt)
	assert.NotEmpty(t, swap.Validation)
}

func TestSwapServiceExecuteRejectsVersionDrift(t *testing.T) {
	swaps := &mockSwapRepo{swaps: map[string]models.SwapRecord{
		"swap-1": {
			ID:                 "swap-1",
			SourceAssignmentID: "asg-a",
			TargetAssignmentID: "asg-b",
			SourceVersion:      1,
			TargetVersion:      1,
			Status:             models.SwapStatusValidated,
		},
	}}
	assignments := &mockAssignmentWriteRepo{assignments: swapAssignments()}
	drifted := assignments.assignments["asg-b"]
	drifted.Version = 2
	assignments.assignments["asg-b"] = drifted
	svc := newSwapService(t, swaps, assignments)

	_, err := svc.Execute(context.Background(), "chief", "swap-1")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
	// nothing moved
	assert.Equal(t, "p-alice", assignments.assignments["asg-a"].PersonID)
}

func TestSwapServiceExecuteExchangesPersons(t *testing.T) {
	swaps := &mockSwapRepo{swaps: map[string]models.SwapRecord{
		"swap-1": {
			ID:                 "swap-1",
			SourceAssignmentID: "asg-a",
			TargetAssignmentID: "asg-b",
			SourceVersion:      1,
			TargetVersion:      1,
			Status:             models.SwapStatusValidated,
		},
	}}
	assignments := &mockAssignmentWriteRepo{assignments: swapAssignments()}
	svc := newSwapService(t, swaps, assignments)

	swap, err := svc.Execute(context.Background(), "chief", "swap-1")
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusExecuted, swap.Status)
	require.NotNil(t, swap.ExecutedAt)
	require.NotNil(t, swap.RollbackDeadline)
	assert.True(t, swap.RollbackDeadline.After(*swap.ExecutedAt))

	assert.Equal(t, "p-bob", assignments.assignments["asg-a"].PersonID)
	assert.Equal(t, "p-alice", assignments.assignments["asg-b"].PersonID)
	// versions advanced, invalidating any other swap pinned to them
	assert.Equal(t, 2, swap.SourceVersion)
	assert.Equal(t, 2, swap.TargetVersion)
	// the lifecycle transition rode the exchange transaction
	assert.NotNil(t, swaps.lastExec)
}

func TestSwapServiceValidatePersistsFailedOutcome(t *testing.T) {
	swaps := &mockSwapRepo{swaps: map[string]models.SwapRecord{
		"swap-1": {
			ID:                 "swap-1",
			SourceAssignmentID: "asg-a",
			TargetAssignmentID: "asg-b",
			SourceVersion:      1,
			TargetVersion:      1,
			Status:             models.SwapStatusProposed,
		},
	}}
	assignments := &mockAssignmentWriteRepo{assignments: swapAssignments()}
	svc := newSwapService(t, swaps, assignments)
	svc.constraints = &stubConstraintSource{set: []constraint.Constraint{alwaysBreach{personID: "p-alice"}}}

	swap, err := svc.Validate(context.Background(), "chief", "swap-1", ValidateSwapRequest{})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrCompliance.Code))
	require.NotNil(t, swap)
	assert.Contains(t, string(swap.Validation), `"passed":false`)

	stored := swaps.swaps["swap-1"]
	assert.Equal(t, models.SwapStatusProposed, stored.Status)
	assert.Contains(t, string(stored.Validation), `"passed":false`)
}

func TestSwapServiceRollbackRestoresAssignments(t *testing.T) {
	executed := time.Now().UTC().Add(-time.Hour)
	deadline := executed.Add(24 * time.Hour)
	swaps := &mockSwapRepo{swaps: map[string]models.SwapRecord{
		"swap-1": {
			ID:                 "swap-1",
			SourceAssignmentID: "asg-a",
			TargetAssignmentID: "asg-b",
			SourceVersion:      2,
			TargetVersion:      2,
			Status:             models.SwapStatusExecuted,
			ExecutedAt:         &executed,
			RollbackDeadline:   &deadline,
		},
	}}
	assignments := &mockAssignmentWriteRepo{assignments: swapAssignments()}
	swapped := assignments.assignments["asg-a"]
	swapped.PersonID = "p-bob"
	swapped.Version = 2
	assignments.assignments["asg-a"] = swapped
	swapped = assignments.assignments["asg-b"]
	swapped.PersonID = "p-alice"
	swapped.Version = 2
	assignments.assignments["asg-b"] = swapped
	svc := newSwapService(t, swaps, assignments)

	swap, err := svc.Rollback(context.Background(), "chief", "swap-1", RollbackSwapRequest{Reason: "coverage fell through"})
	require.NoError(t, err)
	assert.Equal(t, models.SwapStatusRolledBack, swap.Status)
	require.NotNil(t, swap.RolledBackAt)
	assert.Equal(t, "p-alice", assignments.assignments["asg-a"].PersonID)
	assert.Equal(t, "p-bob", assignments.assignments["asg-b"].PersonID)
}

func TestSwapServiceRollbackRejectsExpiredWindow(t *testing.T) {
	executed := time.Now().UTC().Add(-48 * time.Hour)
	deadline := executed.Add(24 * time.Hour)
	swaps := &mockSwapRepo{swaps: map[string]models.SwapRecord{
		"swap-1": {
			ID:                 "swap-1",
			SourceAssignmentID: "asg-a",
			TargetAssignmentID: "asg-b",
			Status:             models.SwapStatusExecuted,
			ExecutedAt:         &executed,
			RollbackDeadline:   &deadline,
		},
	}}
	assignments := &mockAssignmentWriteRepo{assignments: swapAssignments()}
	svc := newSwapService(t, swaps, assignments)

	_, err := svc.Rollback(context.Background(), "chief", "swap-1", RollbackSwapRequest{Reason: "late regret"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
	assert.ErrorContains(t, err, "window expired")
}

func TestSwapServiceRollbackRejectsUnexecutedSwap(t *testing.T) {
	swaps := &mockSwapRepo{swaps: map[string]models.SwapRecord{
		"swap-1": {
			ID:                 "swap-1",
			SourceAssignmentID: "asg-a",
			TargetAssignmentID: "asg-b",
			Status:             models.SwapStatusProposed,
		},
	}}
	assignments := &mockAssignmentWriteRepo{assignments: swapAssignments()}
	svc := newSwapService(t, swaps, assignments)

	_, err := svc.Rollback(context.Background(), "chief", "swap-1", RollbackSwapRequest{Reason: "mistake"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
	assert.ErrorContains(t, err, "not been executed")
}

func TestSwapServiceRollbackRejectsUnrelatedModification(t *testing.T) {
	executed := time.Now().UTC().Add(-time.Hour)
	deadline := executed.Add(24 * time.Hour)
	swaps := &mockSwapRepo{swaps: map[string]models.SwapRecord{
		"swap-1": {
			ID:                 "swap-1",
			SourceAssignmentID: "asg-a",
			TargetAssignmentID: "asg-b",
			SourceVersion:      2,
			TargetVersion:      2,
			Status:             models.SwapStatusExecuted,
			ExecutedAt:         &executed,
			RollbackDeadline:   &deadline,
		},
	}}
	assignments := &mockAssignmentWriteRepo{assignments: swapAssignments()}
	edited := assignments.assignments["asg-a"]
	edited.PersonID = "p-bob"
	edited.Version = 7
	assignments.assignments["asg-a"] = edited
	svc := newSwapService(t, swaps, assignments)

	_, err := svc.Rollback(context.Background(), "chief", "swap-1", RollbackSwapRequest{Reason: "undo"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
	assert.ErrorContains(t, err, "modified since execution")
	// the edited row stays put
	assert.Equal(t, 7, assignments.assignments["asg-a"].Version)
	assert.Equal(t, "p-bob", assignments.assignments["asg-a"].PersonID)
}

func TestSwapServiceRollbackRevalidatesExchange(t *testing.T) {
	executed := time.Now().UTC().Add(-time.Hour)
	deadline := executed.Add(24 * time.Hour)
	swaps := &mockSwapRepo{swaps: map[string]models.SwapRecord{
		"swap-1": {
			ID:                 "swap-1",
			SourceAssignmentID: "asg-a",
			TargetAssignmentID: "asg-b",
			SourceVersion:      2,
			TargetVersion:      2,
			Status:             models.SwapStatusExecuted,
			ExecutedAt:         &executed,
			RollbackDeadline:   &deadline,
		},
	}}
	assignments := &mockAssignmentWriteRepo{assignments: swapAssignments()}
	swapped := assignments.assignments["asg-a"]
	swapped.PersonID = "p-bob"
	swapped.Version = 2
	assignments.assignments["asg-a"] = swapped
	swapped = assignments.assignments["asg-b"]
	swapped.PersonID = "p-alice"
	swapped.Version = 2
	assignments.assignments["asg-b"] = swapped
	svc := newSwapService(t, swaps, assignments)
	// restoring p-alice onto asg-a would break a hard rule now
	svc.constraints = &stubConstraintSource{set: []constraint.Constraint{alwaysBreach{personID: "p-alice"}}}

	_, err := svc.Rollback(context.Background(), "chief", "swap-1", RollbackSwapRequest{Reason: "undo"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrCompliance.Code))
	// nothing restored, swap still executed
	assert.Equal(t, "p-bob", assignments.assignments["asg-a"].PersonID)
	assert.Equal(t, "p-alice", assignments.assignments["asg-b"].PersonID)
	assert.Equal(t, models.SwapStatusExecuted, swaps.swaps["swap-1"].Status)
}

func TestSwapServiceSecondRollbackRejected(t *testing.T) {
	executed := time.Now().UTC().Add(-time.Hour)
	deadline := executed.Add(24 * time.Hour)
	swaps := &mockSwapRepo{swaps: map[string]models.SwapRecord{
		"swap-1": {
			ID:                 "swap-1",
			SourceAssignmentID: "asg-a",
			TargetAssignmentID: "asg-b",
			SourceVersion:      2,
			TargetVersion:      2,
			Status:             models.SwapStatusExecuted,
			ExecutedAt:         &executed,
			RollbackDeadline:   &deadline,
		},
	}}
	assignments := &mockAssignmentWriteRepo{assignments: swapAssignments()}
	swapped := assignments.assignments["asg-a"]
	swapped.PersonID = "p-bob"
	swapped.Version = 2
	assignments.assignments["asg-a"] = swapped
	swapped = assignments.assignments["asg-b"]
	swapped.PersonID = "p-alice"
	swapped.Version = 2
	assignments.assignments["asg-b"] = swapped
	svc := newSwapService(t, swaps, assignments)

	_, err := svc.Rollback(context.Background(), "chief", "swap-1", RollbackSwapRequest{Reason: "undo"})
	require.NoError(t, err)
	assert.Equal(t, "p-alice", assignments.assignments["asg-a"].PersonID)
	assert.Equal(t, "p-bob", assignments.assignments["asg-b"].PersonID)

	_, err = svc.Rollback(context.Background(), "chief", "swap-1", RollbackSwapRequest{Reason: "again"})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
	assert.ErrorContains(t, err, "already rolled back")
	// records untouched by the second attempt
	assert.Equal(t, "p-alice", assignments.assignments["asg-a"].PersonID)
	assert.Equal(t, "p-bob", assignments.assignments["asg-b"].PersonID)
}

func TestSwapServiceMatchRanksByViolations(t *testing.T) {
	assignments := &mockAssignmentWriteRepo{assignments: swapAssignments()}
	extra := models.Assignment{
		ID:         "asg-c",
		PersonID:   "p-carol",
		TemplateID: "tpl-ward",
		BlockID:    "blk-1",
		SlotDate:   time.Date(2026, 7, 8, 0, 0, 0, 0, time.UTC),
		SlotPeriod: models.SlotPeriodAM,
		Role:       models.AssignmentRolePrimary,
		Version:    1,
	}
	assignments.assignments["asg-c"] = extra
	lastWeek := time.Now().UTC().Add(-7 * 24 * time.Hour)
	swaps := &mockSwapRepo{lastExecuted: map[string]*time.Time{"p-bob": &lastWeek}}
	svc := newSwapService(t, swaps, assignments)

	candidates, err := svc.Match(context.Background(), "asg-a")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	for _, c := range candidates {
		assert.NotEqual(t, "asg-a", c.Assignment.ID)
		assert.NotEqual(t, "p-alice", c.CounterpartyID)
	}
	// p-carol never swapped, so with equal violations they sort first
	assert.Equal(t, "p-carol", candidates[0].CounterpartyID)
}
