package compliance

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/clinrota/rota-api/internal/models"
)

// Rule names reported in violations.
const (
	RuleWeeklyHours      = "duty_hour_ceiling"
	RuleRollingAverage   = "duty_hour_rolling_average"
	RuleRestDay          = "mandatory_rest_day"
	RuleSupervisionRatio = "supervision_ratio"
)

// Thresholds are the duty-hour limits the engine enforces. They are loaded
// from configuration data at request time and hot-swappable between
// requests; the engine itself is stateless.
type Thresholds struct {
	WeeklyHourCeiling float64 `json:"weekly_hour_ceiling"`
	AveragingWeeks    int     `json:"averaging_weeks"`
}

// DefaultThresholds mirror the ACGME limits used when no configuration row
// overrides them.
func DefaultThresholds() Thresholds {
	return Thresholds{WeeklyHourCeiling: 80, AveragingWeeks: 4}
}

// Engine checks assignment sets against duty-hour law. All methods are pure
// and idempotent over their inputs; the same engine instance may be shared
// across goroutines.
type Engine struct {
	thresholds Thresholds
}

// NewEngine builds an engine with the provided thresholds, falling back to
// defaults for zero values.
func NewEngine(t Thresholds) *Engine {
	if t.WeeklyHourCeiling <= 0 {
		t.WeeklyHourCeiling = DefaultThresholds().WeeklyHourCeiling
	}
	if t.AveragingWeeks <= 0 {
		t.AveragingWeeks = DefaultThresholds().AveragingWeeks
	}
	return &Engine{thresholds: t}
}

// Thresholds returns the limits the engine was built with.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// Input bundles everything needed to validate one person.
type Input struct {
	Person      models.Person
	Assignments []models.Assignment
	Templates   map[string]models.RotationTemplate
	Range       models.DateRange
}

// ValidatePerson evaluates the rolling-window duty-hour rules for one person.
// Faculty are exempt from trainee duty-hour ceilings but still appear in
// supervision checks elsewhere.
func (e *Engine) ValidatePerson(in Input) models.ComplianceResult {
	result := models.ComplianceResult{
		PersonID:    in.Person.ID,
		Range:       in.Range,
		IsCompliant: true,
	}
	if !in.Person.IsTrainee() {
		result.Score = 100
		return result
	}

	hoursByDay := e.clinicalHoursByDay(in.Assignments, in.Templates)

	ceiling := e.thresholds.WeeklyHourCeiling
	if in.Person.MaxWeeklyHours > 0 && in.Person.MaxWeeklyHours < ceiling {
		ceiling = in.Person.MaxWeeklyHours
	}

	var violations []models.Violation
	violations = append(violations, e.checkWeeklyCeiling(in.Person.ID, in.Range, hoursByDay, ceiling)...)
	violations = append(violations, e.checkRollingAverage(in.Person.ID, in.Range, hoursByDay, ceiling)...)
	violations = append(violations, e.checkRestDays(in.Person.ID, in.Range, hoursByDay)...)

	sort.SliceStable(violations, func(i, j int) bool {
		if !violations[i].Date.Equal(violations[j].Date) {
			return violations[i].Date.Before(violations[j].Date)
		}
		return violations[i].Rule < violations[j].Rule
	})

	result.Violations = violations
	result.IsCompliant = len(violations) == 0
	result.Score = score(violations)
	return result
}

// ValidateSupervision checks trainee-to-supervisor ratios for every slot that
// requires supervision. It needs the whole slot population, so it runs apart
// from per-person validation.
func (e *Engine) ValidateSupervision(
	assignments []models.Assignment,
	templates map[string]models.RotationTemplate,
	people map[string]models.Person,
) []models.Violation {
	type slotGroup struct {
		trainees    []models.Assignment
		supervisors int
	}
	groups := make(map[string]*slotGroup)
	keys := make([]string, 0)

	for _, a := range assignments {
		tpl, ok := templates[a.TemplateID]
		if !ok || !tpl.RequiresSupervision() {
			continue
		}
		key := a.TemplateID + "|" + a.Slot().Key()
		g, ok := groups[key]
		if !ok {
			g = &slotGroup{}
			groups[key] = g
			keys = append(keys, key)
		}
		p, known := people[a.PersonID]
		switch {
		case a.Role == models.AssignmentRoleSupervising || (known && !p.IsTrainee()):
			g.supervisors++
		case known && p.Seniority >= tpl.SeniorityFloor:
			// Senior trainees supervise themselves for ratio purposes.
		default:
			g.trainees = append(g.trainees, a)
		}
	}

	sort.Strings(keys)
	var violations []models.Violation
	for _, key := range keys {
		g := groups[key]
		if len(g.trainees) == 0 {
			continue
		}
		first := g.trainees[0]
		tpl := templates[first.TemplateID]
		allowed := tpl.SupervisionRatio * g.supervisors
		if len(g.trainees) <= allowed {
			continue
		}
		detail, _ := json.Marshal(map[string]interface{}{
			"template_id": first.TemplateID,
			"supervisors": g.supervisors,
			"trainees":    len(g.trainees),
			"ratio":       tpl.SupervisionRatio,
		})
		violations = append(violations, models.Violation{
			Rule:     RuleSupervisionRatio,
			PersonID: first.PersonID,
			Date:     first.SlotDate,
			Period:   first.SlotPeriod,
			Severity: models.SeverityHigh,
			Message: fmt.Sprintf("%d unsupervised trainees on %s exceed ratio %d:%d",
				len(g.trainees), tpl.Name, tpl.SupervisionRatio, 1),
			Detail: detail,
		})
	}
	return violations
}

func (e *Engine) clinicalHoursByDay(
	assignments []models.Assignment,
	templates map[string]models.RotationTemplate,
) map[string]float64 {
	byDay := make(map[string]float64)
	for _, a := range assignments {
		tpl, ok := templates[a.TemplateID]
		if !ok || !tpl.CountsAsClinical() {
			continue
		}
		if a.Role == models.AssignmentRoleBackup {
			continue
		}
		byDay[dayKey(a.SlotDate)] += tpl.SlotHours()
	}
	return byDay
}

func (e *Engine) checkWeeklyCeiling(personID string, r models.DateRange, hoursByDay map[string]float64, ceiling float64) []models.Violation {
	var out []models.Violation
	for _, day := range r.Days() {
		total := windowHours(hoursByDay, day, 7)
		if total <= ceiling {
			continue
		}
		overage := total - ceiling
		detail, _ := json.Marshal(map[string]interface{}{
			"window_end":   day.Format("2006-01-02"),
			"window_hours": total,
			"ceiling":      ceiling,
		})
		out = append(out, models.Violation{
			Rule:     RuleWeeklyHours,
			PersonID: personID,
			Date:     day,
			Severity: overageSeverity(overage, ceiling),
			Message:  fmt.Sprintf("%.1f clinical hours in the 7 days ending %s exceed the %.0fh ceiling", total, day.Format("2006-01-02"), ceiling),
			Detail:   detail,
		})
	}
	return out
}

func (e *Engine) checkRollingAverage(personID string, r models.DateRange, hoursByDay map[string]float64, ceiling float64) []models.Violation {
	days := e.thresholds.AveragingWeeks * 7
	var out []models.Violation
	for _, day := range r.Days() {
		total := windowHours(hoursByDay, day, days)
		weeks := float64(e.thresholds.AveragingWeeks)
		avg := total / weeks
		if avg <= ceiling {
			continue
		}
		detail, _ := json.Marshal(map[string]interface{}{
			"window_end":   day.Format("2006-01-02"),
			"average":      avg,
			"ceiling":      ceiling,
			"window_weeks": e.thresholds.AveragingWeeks,
		})
		out = append(out, models.Violation{
			Rule:     RuleRollingAverage,
			PersonID: personID,
			Date:     day,
			Severity: overageSeverity(avg-ceiling, ceiling),
			Message:  fmt.Sprintf("%.1fh/week average over %d weeks ending %s exceeds the %.0fh ceiling", avg, e.thresholds.AveragingWeeks, day.Format("2006-01-02"), ceiling),
			Detail:   detail,
		})
	}
	return out
}

func (e *Engine) checkRestDays(personID string, r models.DateRange, hoursByDay map[string]float64) []models.Violation {
	var out []models.Violation
	for _, day := range r.Days() {
		rested := false
		for i := 0; i < 7; i++ {
			d := day.AddDate(0, 0, -i)
			if hoursByDay[dayKey(d)] == 0 {
				rested = true
				break
			}
		}
		if rested {
			continue
		}
		out = append(out, models.Violation{
			Rule:     RuleRestDay,
			PersonID: personID,
			Date:     day,
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("no full rest day in the 7 days ending %s", day.Format("2006-01-02")),
		})
	}
	return out
}

func windowHours(hoursByDay map[string]float64, end time.Time, days int) float64 {
	var total float64
	for i := 0; i < days; i++ {
		total += hoursByDay[dayKey(end.AddDate(0, 0, -i))]
	}
	return total
}

func overageSeverity(overage, ceiling float64) models.ViolationSeverity {
	switch {
	case overage > ceiling*0.25:
		return models.SeverityHigh
	case overage > ceiling*0.10:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func score(violations []models.Violation) float64 {
	s := 100.0
	for _, v := range violations {
		s -= v.Severity.Weight()
	}
	if s < 0 {
		return 0
	}
	return s
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
