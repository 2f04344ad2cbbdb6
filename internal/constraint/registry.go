package constraint

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/clinrota/rota-api/internal/models"
)

// Registry holds the configured constraint set. A registry snapshot is built
// per request from configuration rows and is immutable during one solve;
// Enable/Disable toggle solver visibility without dropping configuration.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Constraint
	enabled map[string]bool
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]Constraint),
		enabled: make(map[string]bool),
	}
}

// Register adds a constraint. Registering a duplicate name fails.
func (r *Registry) Register(c Constraint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[c.Name()]; exists {
		return fmt.Errorf("constraint %q already registered", c.Name())
	}
	r.byName[c.Name()] = c
	r.enabled[c.Name()] = true
	r.order = append(r.order, c.Name())
	return nil
}

// Enable makes the named constraint visible to the solver.
func (r *Registry) Enable(name string) error {
	return r.setEnabled(name, true)
}

// Disable hides the named constraint from the solver without deleting it.
func (r *Registry) Disable(name string) error {
	return r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, v bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; !exists {
		return fmt.Errorf("constraint %q not registered", name)
	}
	r.enabled[name] = v
	return nil
}

// Get returns the named constraint.
func (r *Registry) Get(name string) (Constraint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// Enabled returns the active constraints ordered hard-before-soft, then by
// declared priority descending, then by name. Hard constraints always
// precede soft ones regardless of priority.
func (r *Registry) Enabled() []Constraint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Constraint, 0, len(r.order))
	for _, name := range r.order {
		if r.enabled[name] {
			out = append(out, r.byName[name])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Hard() != out[j].Hard() {
			return out[i].Hard()
		}
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() > out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// FromConfigs builds a registry from configuration rows, instantiating each
// enabled or disabled rule by kind.
func FromConfigs(configs []models.ConstraintConfig) (*Registry, error) {
	reg := NewRegistry()
	for _, cfg := range configs {
		c, err := FromConfig(cfg)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(c); err != nil {
			return nil, err
		}
		if !cfg.Enabled {
			if err := reg.Disable(cfg.Name); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}

// FromConfig instantiates one rule from its configuration row.
func FromConfig(cfg models.ConstraintConfig) (Constraint, error) {
	b := base{name: cfg.Name, hard: cfg.Hard, priority: cfg.Priority}
	switch cfg.Kind {
	case models.ConstraintSlotCapacity:
		return &SlotCapacity{base: b}, nil
	case models.ConstraintAvailability:
		return &Availability{base: b}, nil
	case models.ConstraintOnePrimary:
		return &OnePrimaryPerSlot{base: b}, nil
	case models.ConstraintDutyHourCeiling:
		return &DutyHourCeiling{base: b}, nil
	case models.ConstraintRestDay:
		return &RestDay{base: b}, nil
	case models.ConstraintSupervisionRatio:
		return &SupervisionRatio{base: b}, nil
	case models.ConstraintPostCallRest:
		return &PostCallRest{base: b}, nil
	case models.ConstraintWeekendInclusion:
		return &WeekendInclusion{base: b}, nil
	case models.ConstraintWorkloadBalance:
		var p balanceParams
		if len(cfg.Params) > 0 {
			if err := json.Unmarshal(cfg.Params, &p); err != nil {
				return nil, fmt.Errorf("constraint %s params: %w", cfg.Name, err)
			}
		}
		return &WorkloadBalance{base: b, params: p}, nil
	case models.ConstraintContinuity:
		return &Continuity{base: b}, nil
	default:
		return nil, fmt.Errorf("unknown constraint kind %q", cfg.Kind)
	}
}

// Defaults returns the built-in constraint configuration seeded at first
// start; operators tune or disable rows afterwards.
func Defaults() []models.ConstraintConfig {
	mk := func(name string, kind models.ConstraintKind, hard bool, priority int) models.ConstraintConfig {
		return models.ConstraintConfig{Name: name, Kind: kind, Hard: hard, Priority: priority, Enabled: true}
	}
	return []models.ConstraintConfig{
		mk("one-primary-per-slot", models.ConstraintOnePrimary, true, 100),
		mk("availability", models.ConstraintAvailability, true, 90),
		mk("slot-capacity", models.ConstraintSlotCapacity, true, 80),
		mk("duty-hour-ceiling", models.ConstraintDutyHourCeiling, true, 70),
		mk("mandatory-rest-day", models.ConstraintRestDay, true, 60),
		mk("supervision-ratio", models.ConstraintSupervisionRatio, true, 50),
		mk("post-call-rest", models.ConstraintPostCallRest, true, 40),
		mk("weekend-inclusion", models.ConstraintWeekendInclusion, true, 30),
		mk("workload-balance", models.ConstraintWorkloadBalance, false, 20),
		mk("continuity", models.ConstraintContinuity, false, 10),
	}
}
