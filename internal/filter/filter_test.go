package filter

import (
	"testing"

	"github.com/mealjournal/mealsync/internal/journal"
)

func mealWith(id string, symptoms map[string]int64) *journal.Meal {
	return &journal.Meal{
		UserID:       "user-1",
		MealID:       id,
		MealStarted:  1000,
		MealSymptoms: symptoms,
	}
}

func ids(meals []*journal.Meal) []string {
	out := make([]string, len(meals))
	for i, m := range meals {
		out[i] = m.MealID
	}
	return out
}

func assertIDs(t *testing.T, got []*journal.Meal, want ...string) {
	t.Helper()
	gotIDs := ids(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("expected %d meals %v, got %d %v", len(want), want, len(gotIDs), gotIDs)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], gotIDs[i])
		}
	}
}

func TestApplyAndMode(t *testing.T) {
	meals := []*journal.Meal{
		mealWith("m1", map[string]int64{"Bloating": 8, "Pain": 2}),
		mealWith("m2", map[string]int64{"Bloating": 8, "Pain": 9}),
		mealWith("m3", map[string]int64{"Bloating": 1, "Pain": 9}),
	}

	q := Query{
		Mode: ModeAnd,
		Predicates: []Predicate{
			{Symptom: "Bloating", Op: OpGE, Value: 5, Active: true},
			{Symptom: "Pain", Op: OpLE, Value: 3, Active: true},
		},
	}

	got, err := q.Apply(meals)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	assertIDs(t, got, "m1")
}

func TestApplyOrMode(t *testing.T) {
	meals := []*journal.Meal{
		mealWith("m1", map[string]int64{"Bloating": 8, "Pain": 2}),
		mealWith("m2", map[string]int64{"Bloating": 1, "Pain": 9}),
		mealWith("m3", map[string]int64{"Bloating": 1, "Pain": 1}),
	}

	q := Query{
		Mode: ModeOr,
		Predicates: []Predicate{
			{Symptom: "Bloating", Op: OpGE, Value: 5, Active: true},
			{Symptom: "Pain", Op: OpGE, Value: 5, Active: true},
		},
	}

	got, err := q.Apply(meals)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	assertIDs(t, got, "m1", "m2")
}

func TestApplyNoActivePredicates(t *testing.T) {
	meals := []*journal.Meal{
		mealWith("m1", map[string]int64{"Pain": 3}),
		mealWith("m2", map[string]int64{"Pain": 7}),
	}
	inactive := []Predicate{{Symptom: "Pain", Op: OpGE, Value: 5}}

	got, err := Query{Mode: ModeAnd, Predicates: inactive}.Apply(meals)
	if err != nil {
		t.Fatalf("Apply (AND) failed: %v", err)
	}
	assertIDs(t, got, "m1", "m2")

	got, err = Query{Mode: ModeOr, Predicates: inactive}.Apply(meals)
	if err != nil {
		t.Fatalf("Apply (OR) failed: %v", err)
	}
	assertIDs(t, got)
}

func TestMissingSymptomFailsPredicate(t *testing.T) {
	meals := []*journal.Meal{
		mealWith("m1", map[string]int64{"Pain": 0}),
		mealWith("m2", map[string]int64{"Nausea": 3}),
	}
	pred := Predicate{Symptom: "Pain", Op: OpLE, Value: 10, Active: true}

	// m2 never recorded Pain, so even "Pain <= 10" must not admit it,
	// in either mode.
	got, err := Query{Mode: ModeAnd, Predicates: []Predicate{pred}}.Apply(meals)
	if err != nil {
		t.Fatalf("Apply (AND) failed: %v", err)
	}
	assertIDs(t, got, "m1")

	got, err = Query{Mode: ModeOr, Predicates: []Predicate{pred}}.Apply(meals)
	if err != nil {
		t.Fatalf("Apply (OR) failed: %v", err)
	}
	assertIDs(t, got, "m1")
}

func TestPredicateOperators(t *testing.T) {
	meal := mealWith("m1", map[string]int64{"Pain": 5})

	tests := []struct {
		op    Op
		value int64
		want  bool
	}{
		{OpLE, 5, true},
		{OpLE, 4, false},
		{OpEQ, 5, true},
		{OpEQ, 6, false},
		{OpGE, 5, true},
		{OpGE, 6, false},
	}

	for _, tt := range tests {
		p := Predicate{Symptom: "Pain", Op: tt.op, Value: tt.value, Active: true}
		if got := p.Matches(meal); got != tt.want {
			t.Errorf("Pain %s %d: expected %v, got %v", tt.op, tt.value, tt.want, got)
		}
	}
}

func TestApplyPreservesOrder(t *testing.T) {
	meals := []*journal.Meal{
		mealWith("newest", map[string]int64{"Pain": 9}),
		mealWith("middle", map[string]int64{"Pain": 1}),
		mealWith("oldest", map[string]int64{"Pain": 8}),
	}

	q := Query{
		Mode:       ModeOr,
		Predicates: []Predicate{{Symptom: "Pain", Op: OpGE, Value: 5, Active: true}},
	}
	got, err := q.Apply(meals)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	assertIDs(t, got, "newest", "oldest")
}

func TestQueryValidation(t *testing.T) {
	meals := []*journal.Meal{mealWith("m1", nil)}

	bad := []Query{
		{Mode: "NOR", Predicates: nil},
		{Mode: ModeAnd, Predicates: []Predicate{{Symptom: "", Op: OpEQ, Value: 1}}},
		{Mode: ModeAnd, Predicates: []Predicate{{Symptom: "Pain", Op: "<", Value: 1}}},
		{Mode: ModeAnd, Predicates: []Predicate{{Symptom: "Pain", Op: OpEQ, Value: 11}}},
		{Mode: ModeAnd, Predicates: []Predicate{{Symptom: "Pain", Op: OpEQ, Value: -1}}},
	}
	for i, q := range bad {
		if _, err := q.Apply(meals); err == nil {
			t.Errorf("query %d: expected validation error, got none", i)
		}
	}

	// Inactive predicates are still validated: a broken saved filter should
	// surface immediately, not when toggled on.
	q := Query{Mode: ModeOr, Predicates: []Predicate{{Symptom: "Pain", Op: "!=", Value: 1}}}
	if _, err := q.Apply(meals); err == nil {
		t.Error("expected validation error for inactive predicate with bad operator")
	}
}
