package journal

import (
	"bytes"
	"strings"
	"testing"
)

func validMeal() *Meal {
	return &Meal{
		UserID:      "user-1",
		MealID:      "m1",
		MealStarted: 1700000000000,
		MealSymptoms: map[string]int64{
			"Pain":    4,
			"Itching": 0,
		},
		LastUpdated: 1700000001000,
	}
}

func TestMealValidate(t *testing.T) {
	if err := validMeal().Validate(); err != nil {
		t.Fatalf("valid meal rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Meal)
	}{
		{"missing user id", func(m *Meal) { m.UserID = "" }},
		{"missing meal id", func(m *Meal) { m.MealID = "" }},
		{"zero start time", func(m *Meal) { m.MealStarted = 0 }},
		{"negative start time", func(m *Meal) { m.MealStarted = -5 }},
		{"nil symptom map", func(m *Meal) { m.MealSymptoms = nil }},
		{"empty symptom name", func(m *Meal) { m.MealSymptoms[""] = 1 }},
		{"intensity too high", func(m *Meal) { m.MealSymptoms["Pain"] = 11 }},
		{"intensity negative", func(m *Meal) { m.MealSymptoms["Pain"] = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meal := validMeal()
			tt.mutate(meal)
			if err := meal.Validate(); err == nil {
				t.Error("expected validation error, got none")
			}
		})
	}
}

func TestMealClone(t *testing.T) {
	original := validMeal()
	copied := original.Clone()

	copied.MealSymptoms["Pain"] = 9
	copied.SymptomNotes = "changed"

	if original.MealSymptoms["Pain"] != 4 {
		t.Error("clone shares the symptom map with the original")
	}
	if original.SymptomNotes == "changed" {
		t.Error("clone shares scalar fields with the original")
	}
}

func TestNewSymptomMap(t *testing.T) {
	m := NewSymptomMap([]string{"Pain", "", "Nausea"})
	if len(m) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(m))
	}
	for name, value := range m {
		if value != 0 {
			t.Errorf("expected zero for %s, got %d", name, value)
		}
	}
}

func TestTombstoneValidate(t *testing.T) {
	ts := &Tombstone{MealID: "m1", LastUpdated: 100}
	if err := ts.Validate(); err != nil {
		t.Fatalf("valid tombstone rejected: %v", err)
	}
	if err := (&Tombstone{LastUpdated: 100}).Validate(); err == nil {
		t.Error("expected missing meal id to be rejected")
	}
	if err := (&Tombstone{MealID: "m1"}).Validate(); err == nil {
		t.Error("expected missing stamp to be rejected")
	}
}

func TestJSONLRoundTrip(t *testing.T) {
	meals := []*Meal{validMeal(), validMeal()}
	meals[1].MealID = "m2"
	meals[1].MealSymptoms = map[string]int64{}

	var buf bytes.Buffer
	if err := WriteJSONL(&buf, meals); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got, err := ReadJSONL(&buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 meals, got %d", len(got))
	}
	if got[0].MealID != "m1" || got[1].MealID != "m2" {
		t.Errorf("ids lost in round trip: %s, %s", got[0].MealID, got[1].MealID)
	}
	if got[0].MealSymptoms["Pain"] != 4 {
		t.Errorf("symptoms lost in round trip: %+v", got[0].MealSymptoms)
	}
	if got[1].MealSymptoms == nil {
		t.Error("expected empty symptom map to be normalized, got nil")
	}
}

func TestReadJSONLRejectsMalformedLine(t *testing.T) {
	input := `{"meal_id":"m1","meal_started":1000}
not json at all
`
	_, err := ReadJSONL(strings.NewReader(input))
	if err == nil {
		t.Fatal("expected error for malformed line")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line number in error, got: %v", err)
	}
}
