package constraint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinrota/rota-api/internal/models"
)

func capacityRule(t *testing.T) Constraint {
	t.Helper()
	c, err := FromConfig(models.ConstraintConfig{
		Name:     "slot-capacity",
		Kind:     models.ConstraintSlotCapacity,
		Hard:     true,
		Priority: 80,
		Enabled:  true,
	})
	require.NoError(t, err)
	return c
}

func wardContext(maxPerSlot int) *Context {
	return &Context{
		Templates: map[string]models.RotationTemplate{
			"tpl-ward": {
				ID:         "tpl-ward",
				Name:       "Ward",
				Kind:       models.ActivityClinical,
				MinPerSlot: 1,
				MaxPerSlot: maxPerSlot,
			},
		},
	}
}

func wardAssignment(id, personID string, role models.AssignmentRole) models.Assignment {
	return models.Assignment{
		ID:         id,
		PersonID:   personID,
		TemplateID: "tpl-ward",
		SlotDate:   time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
		SlotPeriod: models.SlotPeriodAM,
		Role:       role,
	}
}

func TestSlotCapacityFlagsOverfilledSlot(t *testing.T) {
	rule := capacityRule(t)
	set := []models.Assignment{
		wardAssignment("asg-1", "p-alice", models.AssignmentRolePrimary),
		wardAssignment("asg-2", "p-bob", models.AssignmentRoleSupervising),
		wardAssignment("asg-3", "p-carol", models.AssignmentRolePrimary),
	}

	violations := rule.Validate(wardContext(2), set)
	// one violation per overfilled slot, not one per extra assignment
	require.Len(t, violations, 1)
	v := violations[0]
	assert.Equal(t, "slot-capacity", v.Rule)
	assert.True(t, v.Date.Equal(set[0].SlotDate))
	assert.Equal(t, models.SlotPeriodAM, v.Period)
	assert.Contains(t, v.Message, "exceeds capacity 2")
}

func TestSlotCapacityAllowsFullSlot(t *testing.T) {
	rule := capacityRule(t)
	set := []models.Assignment{
		wardAssignment("asg-1", "p-alice", models.AssignmentRolePrimary),
		wardAssignment("asg-2", "p-bob", models.AssignmentRoleSupervising),
	}
	assert.Empty(t, rule.Validate(wardContext(2), set))
}

func TestSlotCapacityIgnoresBackups(t *testing.T) {
	rule := capacityRule(t)
	set := []models.Assignment{
		wardAssignment("asg-1", "p-alice", models.AssignmentRolePrimary),
		wardAssignment("asg-2", "p-bob", models.AssignmentRoleSupervising),
		wardAssignment("asg-3", "p-carol", models.AssignmentRoleBackup),
	}
	assert.Empty(t, rule.Validate(wardContext(2), set))
}
