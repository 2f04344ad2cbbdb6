package models

import (
	"time"

	"github.com/lib/pq"
)

// PersonRole distinguishes trainees from supervising staff.
type PersonRole string

const (
	PersonRoleResident PersonRole = "RESIDENT"
	PersonRoleFaculty  PersonRole = "FACULTY"
)

// Person is a schedulable individual. People are archived, never hard-deleted,
// because historical assignments keep referencing them.
type Person struct {
	ID                string         `db:"id" json:"id"`
	Name              string         `db:"name" json:"name"`
	Role              PersonRole     `db:"role" json:"role"`
	Seniority         int            `db:"seniority" json:"seniority"`
	Specialties       pq.StringArray `db:"specialties" json:"specialties"`
	MaxWeeklyHours    float64        `db:"max_weekly_hours" json:"max_weekly_hours"`
	RequiredRestHours float64        `db:"required_rest_hours" json:"required_rest_hours"`
	Active            bool           `db:"active" json:"active"`
	ArchivedAt        *time.Time     `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// IsTrainee reports whether the person counts against supervision ratios.
func (p Person) IsTrainee() bool {
	return p.Role == PersonRoleResident
}

// HasSpecialty reports whether the person carries the named specialty flag.
func (p Person) HasSpecialty(name string) bool {
	for _, s := range p.Specialties {
		if s == name {
			return true
		}
	}
	return false
}

// PersonFilter constrains person listing queries.
type PersonFilter struct {
	Role            PersonRole
	Specialty       string
	IncludeArchived bool
	Page            int
	PageSize        int
}
