package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinrota/rota-api/internal/models"
)

func mondaySlot(id, personID, templateID string) models.Assignment {
	return models.Assignment{
		ID:         id,
		PersonID:   personID,
		TemplateID: templateID,
		SlotDate:   time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
		SlotPeriod: models.SlotPeriodAM,
		Role:       models.AssignmentRolePrimary,
	}
}

func detectorScope(assignments ...models.Assignment) Scope {
	return Scope{
		Assignments: assignments,
		People: map[string]models.Person{
			"p-alice": {ID: "p-alice", Name: "Alice", Role: models.PersonRoleResident, Active: true},
		},
		Templates: map[string]models.RotationTemplate{
			"tpl-ward":   {ID: "tpl-ward", Name: "Ward", Kind: models.ActivityClinical, HoursPerSlot: 5},
			"tpl-clinic": {ID: "tpl-clinic", Name: "Clinic", Kind: models.ActivityClinic, HoursPerSlot: 4},
		},
		Range: models.DateRange{
			Start: time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 7, 12, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestDetectorFlagsDoubleBooking(t *testing.T) {
	d := NewDetector(nil)
	scope := detectorScope(
		mondaySlot("asg-1", "p-alice", "tpl-ward"),
		mondaySlot("asg-2", "p-alice", "tpl-clinic"),
	)

	conflicts := d.Detect(scope)
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, models.ConflictDoubleBooking, c.Kind)
	assert.Equal(t, models.SeverityHigh, c.Severity)
	assert.Equal(t, "p-alice", c.PersonID)
	assert.ElementsMatch(t, []string{"asg-1", "asg-2"}, c.AssignmentIDs)
}

func TestDetectorAcceptsDistinctSlots(t *testing.T) {
	d := NewDetector(nil)
	second := mondaySlot("asg-2", "p-alice", "tpl-clinic")
	second.SlotPeriod = models.SlotPeriodPM
	scope := detectorScope(mondaySlot("asg-1", "p-alice", "tpl-ward"), second)

	assert.Empty(t, d.Detect(scope))
}
