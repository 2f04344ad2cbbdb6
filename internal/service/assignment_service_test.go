package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinrota/rota-api/internal/constraint"
	"github.com/clinrota/rota-api/internal/models"
	"github.com/clinrota/rota-api/internal/repository"
	appErrors "github.com/clinrota/rota-api/pkg/errors"
)

type stubPeopleRepo struct {
	people map[string]models.Person
}

func (m *stubPeopleRepo) FindByID(ctx context.Context, id string) (*models.Person, error) {
	if p, ok := m.people[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *stubPeopleRepo) ListActive(ctx context.Context) ([]models.Person, error) {
	var list []models.Person
	for _, p := range m.people {
		if p.Active {
			list = append(list, p)
		}
	}
	return list, nil
}

type stubTemplateRepo struct {
	templates []models.RotationTemplate
}

func (m *stubTemplateRepo) List(ctx context.Context) ([]models.RotationTemplate, error) {
	return m.templates, nil
}

type stubBlockRepo struct {
	blocks []models.Block
}

func (m *stubBlockRepo) ListOverlapping(ctx context.Context, dr models.DateRange) ([]models.Block, error) {
	var out []models.Block
	for _, b := range m.blocks {
		if !b.StartDate.After(dr.End) && !b.EndDate.Before(dr.Start) {
			out = append(out, b)
		}
	}
	return out, nil
}

type stubAbsenceRepo struct {
	absences []models.Absence
}

func (m *stubAbsenceRepo) ListInRange(ctx context.Context, dr models.DateRange) ([]models.Absence, error) {
	return m.absences, nil
}

type stubConstraintSource struct {
	set []constraint.Constraint
}

func (m *stubConstraintSource) ActiveSet(ctx context.Context) ([]constraint.Constraint, error) {
	return m.set, nil
}

type stubViolationRepo struct {
	recorded []models.Violation
}

func (m *stubViolationRepo) Record(ctx context.Context, v *models.Violation) error {
	m.recorded = append(m.recorded, *v)
	return nil
}

func (m *stubViolationRepo) FindByID(ctx context.Context, id string) (*models.Violation, error) {
	return nil, sql.ErrNoRows
}

func (m *stubViolationRepo) ListForPerson(ctx context.Context, personID string, dr models.DateRange) ([]models.Violation, error) {
	var out []models.Violation
	for _, v := range m.recorded {
		if v.PersonID == personID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *stubViolationRepo) Acknowledge(ctx context.Context, id, justification string) error {
	return nil
}

// alwaysBreach is a hard rule that flags every assignment of one person.
type alwaysBreach struct {
	personID string
}

func (c alwaysBreach) Name() string  { return "always-breach" }
func (c alwaysBreach) Hard() bool    { return true }
func (c alwaysBreach) Priority() int { return 100 }

func (c alwaysBreach) Apply(m *constraint.Model, sctx *constraint.Context) error { return nil }

func (c alwaysBreach) ApplyHeuristic(h *constraint.HeuristicModel, sctx *constraint.Context) error {
	return nil
}

func (c alwaysBreach) Validate(sctx *constraint.Context, assignments []models.Assignment) []models.Violation {
	var out []models.Violation
	for _, a := range assignments {
		if a.PersonID == c.personID {
			out = append(out, models.Violation{
				Rule:     c.Name(),
				PersonID: a.PersonID,
				Date:     a.SlotDate,
				Period:   a.SlotPeriod,
				Severity: models.SeverityHigh,
				Message:  "flagged",
			})
		}
	}
	return out
}

type mockAssignmentWriteRepo struct {
	db          *sqlx.DB
	assignments map[string]models.Assignment
	created     []models.Assignment
	updateErr   error
	deleteErr   error
	lockErr     error
	bulk        []models.Assignment
}

func (m *mockAssignmentWriteRepo) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	var list []models.Assignment
	for _, a := range m.assignments {
		list = append(list, a)
	}
	return list, len(list), nil
}

func (m *mockAssignmentWriteRepo) ListInRange(ctx context.Context, dr models.DateRange) ([]models.Assignment, error) {
	var list []models.Assignment
	for _, a := range m.assignments {
		if !a.SlotDate.Before(dr.Start) && !a.SlotDate.After(dr.End) {
			list = append(list, a)
		}
	}
	return list, nil
}

func (m *mockAssignmentWriteRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if a, ok := m.assignments[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAssignmentWriteRepo) Create(ctx context.Context, a *models.Assignment) error {
	if m.assignments == nil {
		m.assignments = make(map[string]models.Assignment)
	}
	if a.ID == "" {
		a.ID = "new-assignment"
	}
	if a.Version == 0 {
		a.Version = 1
	}
	m.assignments[a.ID] = *a
	m.created = append(m.created, *a)
	return nil
}

func (m *mockAssignmentWriteRepo) BulkCreateWithTx(ctx context.Context, tx *sqlx.Tx, assignments []models.Assignment) error {
	m.bulk = append(m.bulk, assignments...)
	return nil
}

func (m *mockAssignmentWriteRepo) UpdateVersioned(ctx context.Context, exec sqlx.ExtContext, a *models.Assignment) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	a.Version++
	m.assignments[a.ID] = *a
	return nil
}

func (m *mockAssignmentWriteRepo) DeleteVersioned(ctx context.Context, exec sqlx.ExtContext, id string, version int) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.assignments, id)
	return nil
}

func (m *mockAssignmentWriteRepo) SetLocked(ctx context.Context, id string, version int, locked bool) error {
	if m.lockErr != nil {
		return m.lockErr
	}
	a := m.assignments[id]
	a.Locked = locked
	a.Version++
	m.assignments[id] = a
	return nil
}

func (m *mockAssignmentWriteRepo) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return m.db.Beginx()
}

func txBackedDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectRollback()
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock")
}

func julyBlock() models.Block {
	return models.Block{
		ID:           "blk-1",
		AcademicYear: 2026,
		Sequence:     1,
		StartDate:    time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC),
	}
}

func newAssignmentService(repo *mockAssignmentWriteRepo, source *stubConstraintSource, violations *stubViolationRepo) *AssignmentService {
	people := &stubPeopleRepo{people: map[string]models.Person{
		"p-alice": {ID: "p-alice", Name: "Alice", Role: models.PersonRoleResident, Seniority: 2, Active: true},
	}}
	templates := &stubTemplateRepo{templates: []models.RotationTemplate{
		{ID: "tpl-ward", Name: "Ward", Kind: models.ActivityClinical, MinPerSlot: 1, MaxPerSlot: 3},
	}}
	return NewAssignmentService(
		repo,
		people,
		templates,
		&stubBlockRepo{blocks: []models.Block{julyBlock()}},
		&stubAbsenceRepo{},
		source,
		violations,
		nil, nil, nil, 0, nil, nil,
	)
}

func createRequest() CreateAssignmentRequest {
	return CreateAssignmentRequest{
		PersonID:   "p-alice",
		TemplateID: "tpl-ward",
		SlotDate:   time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
		SlotPeriod: models.SlotPeriodAM,
	}
}

func TestAssignmentServiceCreatePlacesAssignment(t *testing.T) {
	repo := &mockAssignmentWriteRepo{}
	svc := newAssignmentService(repo, &stubConstraintSource{}, &stubViolationRepo{})

	created, violations, err := svc.Create(context.Background(), "chief", createRequest())
	require.NoError(t, err)
	assert.Empty(t, violations)
	assert.Equal(t, "blk-1", created.BlockID)
	assert.Equal(t, models.AssignmentRolePrimary, created.Role)
	assert.Equal(t, "chief", created.CreatedBy)
	require.Len(t, repo.created, 1)
}

func TestAssignmentServiceCreateRejectsUnknownPerson(t *testing.T) {
	svc := newAssignmentService(&mockAssignmentWriteRepo{}, &stubConstraintSource{}, &stubViolationRepo{})

	req := createRequest()
	req.PersonID = "p-ghost"
	_, _, err := svc.Create(context.Background(), "chief", req)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}

func TestAssignmentServiceCreateRejectsUncoveredDate(t *testing.T) {
	svc := newAssignmentService(&mockAssignmentWriteRepo{}, &stubConstraintSource{}, &stubViolationRepo{})

	req := createRequest()
	req.SlotDate = time.Date(2027, 1, 4, 0, 0, 0, 0, time.UTC)
	_, _, err := svc.Create(context.Background(), "chief", req)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestAssignmentServiceCreateRejectsHardBreach(t *testing.T) {
	repo := &mockAssignmentWriteRepo{}
	source := &stubConstraintSource{set: []constraint.Constraint{alwaysBreach{personID: "p-alice"}}}
	svc := newAssignmentService(repo, source, &stubViolationRepo{})

	_, violations, err := svc.Create(context.Background(), "chief", createRequest())
	assert.True(t, appErrors.HasCode(err, appErrors.ErrCompliance.Code))
	assert.NotEmpty(t, violations)
	assert.Empty(t, repo.created)
}

func TestAssignmentServiceCreateOverrideRecordsAcknowledged(t *testing.T) {
	repo := &mockAssignmentWriteRepo{}
	source := &stubConstraintSource{set: []constraint.Constraint{alwaysBreach{personID: "p-alice"}}}
	violations := &stubViolationRepo{}
	svc := newAssignmentService(repo, source, violations)

	reason := "attending coverage emergency"
	req := createRequest()
	req.OverrideJustification = &reason

	created, reported, err := svc.Create(context.Background(), "chief", req)
	require.NoError(t, err)
	assert.NotEmpty(t, reported)
	require.NotNil(t, created.OverrideJustification)
	assert.Equal(t, reason, *created.OverrideJustification)

	require.NotEmpty(t, violations.recorded)
	assert.True(t, violations.recorded[0].Acknowledged)
	require.NotNil(t, violations.recorded[0].Justification)
	assert.Equal(t, reason, *violations.recorded[0].Justification)
}

func TestAssignmentServiceUpdateMapsVersionConflict(t *testing.T) {
	repo := &mockAssignmentWriteRepo{
		assignments: map[string]models.Assignment{
			"asg-1": {
				ID:         "asg-1",
				PersonID:   "p-alice",
				TemplateID: "tpl-ward",
				BlockID:    "blk-1",
				SlotDate:   time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
				SlotPeriod: models.SlotPeriodAM,
				Role:       models.AssignmentRolePrimary,
				Version:    2,
			},
		},
		updateErr: repository.ErrVersionConflict,
	}
	svc := newAssignmentService(repo, &stubConstraintSource{}, &stubViolationRepo{})

	_, _, err := svc.Update(context.Background(), "chief", "asg-1", UpdateAssignmentRequest{
		PersonID:   "p-alice",
		TemplateID: "tpl-ward",
		SlotDate:   time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
		SlotPeriod: models.SlotPeriodPM,
		Version:    1,
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
}

func TestAssignmentServiceBulkRejectsOversizedBatch(t *testing.T) {
	repo := &mockAssignmentWriteRepo{}
	svc := newAssignmentService(repo, &stubConstraintSource{}, &stubViolationRepo{})
	svc.maxBatch = 2

	req := BulkCreateRequest{Items: []CreateAssignmentRequest{createRequest(), createRequest(), createRequest()}}
	_, err := svc.BulkCreate(context.Background(), "chief", req)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestAssignmentServiceBulkAtomicInsertsAll(t *testing.T) {
	repo := &mockAssignmentWriteRepo{db: txBackedDB(t)}
	svc := newAssignmentService(repo, &stubConstraintSource{}, &stubViolationRepo{})

	second := createRequest()
	second.SlotPeriod = models.SlotPeriodPM
	results, err := svc.BulkCreate(context.Background(), "chief", BulkCreateRequest{
		Items:  []CreateAssignmentRequest{createRequest(), second},
		Atomic: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Len(t, repo.bulk, 2)
	for _, r := range results {
		require.NotNil(t, r.Assignment)
		assert.Empty(t, r.Error)
	}
}

func TestAssignmentServiceBulkNonAtomicReportsPerItem(t *testing.T) {
	repo := &mockAssignmentWriteRepo{}
	source := &stubConstraintSource{set: []constraint.Constraint{alwaysBreach{personID: "p-alice"}}}
	svc := newAssignmentService(repo, source, &stubViolationRepo{})

	results, err := svc.BulkCreate(context.Background(), "chief", BulkCreateRequest{
		Items: []CreateAssignmentRequest{createRequest()},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Error)
	assert.Nil(t, results[0].Assignment)
}

func julyAssignments() map[string]models.Assignment {
	mk := func(id string, day int, period models.SlotPeriod, locked bool) models.Assignment {
		return models.Assignment{
			ID:         id,
			PersonID:   "p-alice",
			TemplateID: "tpl-ward",
			BlockID:    "blk-1",
			SlotDate:   time.Date(2026, 7, day, 0, 0, 0, 0, time.UTC),
			SlotPeriod: period,
			Role:       models.AssignmentRolePrimary,
			Locked:     locked,
			Version:    1,
		}
	}
	return map[string]models.Assignment{
		"asg-1": mk("asg-1", 6, models.SlotPeriodAM, false),
		"asg-2": mk("asg-2", 7, models.SlotPeriodAM, false),
		"asg-3": mk("asg-3", 20, models.SlotPeriodAM, true),
	}
}

func updateItem(id string, period models.SlotPeriod) BulkUpdateItem {
	return BulkUpdateItem{
		ID: id,
		UpdateAssignmentRequest: UpdateAssignmentRequest{
			PersonID:   "p-alice",
			TemplateID: "tpl-ward",
			SlotDate:   time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
			SlotPeriod: period,
			Version:    1,
		},
	}
}

func TestAssignmentServiceBulkUpdateAppliesAll(t *testing.T) {
	repo := &mockAssignmentWriteRepo{db: txBackedDB(t), assignments: julyAssignments()}
	svc := newAssignmentService(repo, &stubConstraintSource{}, &stubViolationRepo{})

	results, err := svc.BulkUpdate(context.Background(), "chief", BulkUpdateRequest{
		Items:  []BulkUpdateItem{updateItem("asg-1", models.SlotPeriodPM), updateItem("asg-2", models.SlotPeriodAM)},
		Atomic: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NotNil(t, r.Assignment)
		assert.Empty(t, r.Error)
		assert.Equal(t, 2, r.Assignment.Version)
	}
	assert.Equal(t, models.SlotPeriodPM, repo.assignments["asg-1"].SlotPeriod)
}

func TestAssignmentServiceBulkUpdateRejectsOversizedBatch(t *testing.T) {
	repo := &mockAssignmentWriteRepo{assignments: julyAssignments()}
	svc := newAssignmentService(repo, &stubConstraintSource{}, &stubViolationRepo{})
	svc.maxBatch = 1

	_, err := svc.BulkUpdate(context.Background(), "chief", BulkUpdateRequest{
		Items: []BulkUpdateItem{updateItem("asg-1", models.SlotPeriodPM), updateItem("asg-2", models.SlotPeriodAM)},
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestAssignmentServiceBulkDeleteSkipsLockedRows(t *testing.T) {
	repo := &mockAssignmentWriteRepo{assignments: julyAssignments()}
	svc := newAssignmentService(repo, &stubConstraintSource{}, &stubViolationRepo{})

	results, err := svc.BulkDelete(context.Background(), "chief", BulkDeleteRequest{
		Start: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	var skipped int
	for _, r := range results {
		if r.Error != "" {
			skipped++
			assert.Contains(t, r.Error, "locked")
		}
	}
	assert.Equal(t, 1, skipped)
	// the locked assignment survives, the rest are gone
	_, kept := repo.assignments["asg-3"]
	assert.True(t, kept)
	assert.Len(t, repo.assignments, 1)
}

func TestAssignmentServiceBulkDeleteAtomicRefusesLocked(t *testing.T) {
	repo := &mockAssignmentWriteRepo{db: txBackedDB(t), assignments: julyAssignments()}
	svc := newAssignmentService(repo, &stubConstraintSource{}, &stubViolationRepo{})

	_, err := svc.BulkDelete(context.Background(), "chief", BulkDeleteRequest{
		Start:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC),
		Atomic: true,
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConflict.Code))
	assert.Len(t, repo.assignments, 3)
}

func TestAssignmentServiceBulkDeleteRejectsInvertedRange(t *testing.T) {
	repo := &mockAssignmentWriteRepo{assignments: julyAssignments()}
	svc := newAssignmentService(repo, &stubConstraintSource{}, &stubViolationRepo{})

	_, err := svc.BulkDelete(context.Background(), "chief", BulkDeleteRequest{
		Start: time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}
