// Package filter evaluates symptom predicates against cached meals.
// Filtering is a pure in-memory operation over whatever the cache holds;
// it never triggers a fetch.
package filter

import (
	"fmt"

	"github.com/mealjournal/mealsync/internal/journal"
)

// Op is a comparison operator applied to a symptom value.
type Op string

const (
	OpLE Op = "<="
	OpEQ Op = "=="
	OpGE Op = ">="
)

// Mode determines how multiple predicates combine.
type Mode string

const (
	// ModeAnd keeps meals matching every active predicate. With no active
	// predicates every meal matches.
	ModeAnd Mode = "AND"
	// ModeOr keeps meals matching at least one active predicate. With no
	// active predicates no meal matches.
	ModeOr Mode = "OR"
)

// Predicate is one symptom comparison. Inactive predicates are ignored
// entirely, in both modes.
type Predicate struct {
	Symptom string
	Op      Op
	Value   int64
	Active  bool
}

// Validate checks the predicate's shape. Value bounds follow the symptom
// intensity scale.
func (p Predicate) Validate() error {
	if p.Symptom == "" {
		return fmt.Errorf("predicate symptom name is required")
	}
	switch p.Op {
	case OpLE, OpEQ, OpGE:
	default:
		return fmt.Errorf("invalid operator %q (must be <=, == or >=)", p.Op)
	}
	if p.Value < journal.MinSymptomValue || p.Value > journal.MaxSymptomValue {
		return fmt.Errorf("predicate value %d out of range [%d, %d]",
			p.Value, journal.MinSymptomValue, journal.MaxSymptomValue)
	}
	return nil
}

// Matches reports whether a single meal satisfies the predicate. A meal
// that doesn't record the symptom at all fails the predicate, regardless
// of operator: absence of a recording is not a zero reading.
func (p Predicate) Matches(meal *journal.Meal) bool {
	value, ok := meal.MealSymptoms[p.Symptom]
	if !ok {
		return false
	}
	switch p.Op {
	case OpLE:
		return value <= p.Value
	case OpEQ:
		return value == p.Value
	case OpGE:
		return value >= p.Value
	}
	return false
}

// Query is a set of predicates plus a combining mode.
type Query struct {
	Mode       Mode
	Predicates []Predicate
}

// Validate checks the query's mode and every predicate, active or not.
func (q Query) Validate() error {
	if q.Mode != ModeAnd && q.Mode != ModeOr {
		return fmt.Errorf("invalid filter mode %q (must be AND or OR)", q.Mode)
	}
	for i, p := range q.Predicates {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("predicate %d: %w", i, err)
		}
	}
	return nil
}

// active returns only the predicates that participate in evaluation.
func (q Query) active() []Predicate {
	var out []Predicate
	for _, p := range q.Predicates {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// Apply returns the meals matching the query, preserving input order.
// The input slice is never modified.
func (q Query) Apply(meals []*journal.Meal) ([]*journal.Meal, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	active := q.active()
	if len(active) == 0 {
		if q.Mode == ModeAnd {
			// Vacuous conjunction: nothing restricts the result.
			out := make([]*journal.Meal, len(meals))
			copy(out, meals)
			return out, nil
		}
		// Vacuous disjunction: nothing admits anything.
		return []*journal.Meal{}, nil
	}

	out := []*journal.Meal{}
	for _, meal := range meals {
		if q.matches(meal, active) {
			out = append(out, meal)
		}
	}
	return out, nil
}

func (q Query) matches(meal *journal.Meal, active []Predicate) bool {
	if q.Mode == ModeAnd {
		for _, p := range active {
			if !p.Matches(meal) {
				return false
			}
		}
		return true
	}
	for _, p := range active {
		if p.Matches(meal) {
			return true
		}
	}
	return false
}
