package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// WriteJSONL writes meals as one JSON object per line. Used by journal
// export; the format round-trips through ReadJSONL.
func WriteJSONL(w io.Writer, meals []*Meal) error {
	enc := json.NewEncoder(w)
	for _, meal := range meals {
		if err := enc.Encode(meal); err != nil {
			return fmt.Errorf("failed to encode meal %s: %w", meal.MealID, err)
		}
	}
	return nil
}

// ReadJSONL reads a JSONL stream of meals. Malformed JSON fails the read
// with its line number; an import should be all-or-nothing rather than
// silently dropping part of a backup.
//
// Records are only normalized here, not validated: a backup may omit ids
// that the importer assigns afterwards. Callers validate once ids are in
// place.
func ReadJSONL(r io.Reader) ([]*Meal, error) {
	dec := json.NewDecoder(r)
	var meals []*Meal
	line := 0

	for {
		var meal Meal
		if err := dec.Decode(&meal); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", line+1, err)
		}
		line++

		if meal.MealSymptoms == nil {
			meal.MealSymptoms = map[string]int64{}
		}
		meals = append(meals, &meal)
	}

	return meals, nil
}
