package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinrota/rota-api/internal/models"
)

// PersonRepository manages persistence for schedulable people.
type PersonRepository struct {
	db *sqlx.DB
}

// NewPersonRepository constructs a PersonRepository.
func NewPersonRepository(db *sqlx.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

// List returns people matching the provided filters.
func (r *PersonRepository) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if !filter.IncludeArchived {
		conditions = append(conditions, "archived_at IS NULL")
	}
	if filter.Role != "" {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, filter.Role)
	}
	if filter.Specialty != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(specialties)", len(args)+1))
		args = append(args, filter.Specialty)
	}

	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, name, role, seniority, specialties, max_weekly_hours, required_rest_hours, active, archived_at, created_at, updated_at
        FROM people WHERE %s ORDER BY name, id LIMIT %d OFFSET %d`, where, size, offset)

	var people []models.Person
	if err := r.db.SelectContext(ctx, &people, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list people: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM people WHERE %s", where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count people: %w", err)
	}
	return people, total, nil
}

// FindByID fetches a person by ID, archived or not.
func (r *PersonRepository) FindByID(ctx context.Context, id string) (*models.Person, error) {
	const query = `SELECT id, name, role, seniority, specialties, max_weekly_hours, required_rest_hours, active, archived_at, created_at, updated_at
        FROM people WHERE id = $1`
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, id); err != nil {
		return nil, err
	}
	return &person, nil
}

// ListActive returns every non-archived active person, the solver population.
func (r *PersonRepository) ListActive(ctx context.Context) ([]models.Person, error) {
	const query = `SELECT id, name, role, seniority, specialties, max_weekly_hours, required_rest_hours, active, archived_at, created_at, updated_at
        FROM people WHERE active = true AND archived_at IS NULL ORDER BY id`
	var people []models.Person
	if err := r.db.SelectContext(ctx, &people, query); err != nil {
		return nil, fmt.Errorf("list active people: %w", err)
	}
	return people, nil
}

// Create inserts a new person record.
func (r *PersonRepository) Create(ctx context.Context, person *models.Person) error {
	if person.ID == "" {
		person.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if person.CreatedAt.IsZero() {
		person.CreatedAt = now
	}
	person.UpdatedAt = now
	const query = `INSERT INTO people (id, name, role, seniority, specialties, max_weekly_hours, required_rest_hours, active, created_at, updated_at)
        VALUES (:id, :name, :role, :seniority, :specialties, :max_weekly_hours, :required_rest_hours, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, person); err != nil {
		return fmt.Errorf("create person: %w", err)
	}
	return nil
}

// Update modifies an existing person.
func (r *PersonRepository) Update(ctx context.Context, person *models.Person) error {
	person.UpdatedAt = time.Now().UTC()
	const query = `UPDATE people SET name = :name, role = :role, seniority = :seniority, specialties = :specialties,
        max_weekly_hours = :max_weekly_hours, required_rest_hours = :required_rest_hours, active = :active, updated_at = :updated_at
        WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, person)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Archive soft-deletes a person. Historical assignments keep referencing the
// row, so people are never hard-deleted.
func (r *PersonRepository) Archive(ctx context.Context, id string) error {
	const query = `UPDATE people SET active = false, archived_at = $2, updated_at = $2 WHERE id = $1 AND archived_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("archive person: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// HasFutureAssignments reports whether the person holds assignments on or
// after the given date.
func (r *PersonRepository) HasFutureAssignments(ctx context.Context, id string, from time.Time) (bool, error) {
	const query = `SELECT 1 FROM assignments WHERE person_id = $1 AND slot_date >= $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, id, from); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check future assignments: %w", err)
	}
	return true, nil
}
