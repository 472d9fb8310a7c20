// Package journal defines the entities of the meal diary: meals with their
// dynamic symptom maps, deletion tombstones, reminders, and per-user sync
// metadata.
//
// Timestamps are epoch milliseconds throughout. A meal's LastUpdated stamp is
// assigned by the remote store at mutation time and is the sole input to
// last-write-wins conflict resolution; client clocks never participate.
package journal

import (
	"fmt"
	"time"
)

// Symptom intensity bounds. Symptom names themselves are open-ended: any
// string key can appear at any time, system-wide.
const (
	MinSymptomValue = 0
	MaxSymptomValue = 10
)

// Meal represents one eating event owned by a single user.
//
// MealSymptoms maps symptom name to intensity. The map has no fixed key set;
// new symptom names registered after a meal was created simply never appear
// in that meal's map.
type Meal struct {
	UserID       string           `json:"user_id"`
	MealID       string           `json:"meal_id"`
	MealStarted  int64            `json:"meal_started"`
	SymptomNotes string           `json:"symptom_notes,omitempty"`
	MealSymptoms map[string]int64 `json:"meal_symptoms"`
	LastUpdated  int64            `json:"last_updated"`
}

// Validate checks that the meal is well-formed enough to cache.
//
// A meal failing validation is skipped by the sync applier rather than
// aborting the pass, so validation errors carry the offending field.
func (m *Meal) Validate() error {
	if m.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if m.MealID == "" {
		return fmt.Errorf("meal id is required")
	}
	if m.MealStarted <= 0 {
		return fmt.Errorf("meal started must be a positive epoch-ms timestamp (got %d)", m.MealStarted)
	}
	if m.MealSymptoms == nil {
		return fmt.Errorf("meal symptoms map is missing")
	}
	for name, value := range m.MealSymptoms {
		if name == "" {
			return fmt.Errorf("empty symptom name")
		}
		if value < MinSymptomValue || value > MaxSymptomValue {
			return fmt.Errorf("symptom %q intensity must be between %d and %d (got %d)",
				name, MinSymptomValue, MaxSymptomValue, value)
		}
	}
	return nil
}

// Clone returns a deep copy, including the symptom map.
func (m *Meal) Clone() *Meal {
	out := *m
	out.MealSymptoms = make(map[string]int64, len(m.MealSymptoms))
	for name, value := range m.MealSymptoms {
		out.MealSymptoms[name] = value
	}
	return &out
}

// Started returns MealStarted as a time.Time.
func (m *Meal) Started() time.Time {
	return time.UnixMilli(m.MealStarted)
}

// NewSymptomMap builds the initial symptom map for a freshly created meal:
// every registered symptom name starts at intensity zero.
func NewSymptomMap(names []string) map[string]int64 {
	symptoms := make(map[string]int64, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		symptoms[name] = 0
	}
	return symptoms
}

// Tombstone is an append-only deletion record. The remote document store
// keeps no history of removed documents, so deletions are published as
// tombstones in a side collection; delta sync reads them by stamp exactly
// like meal updates.
type Tombstone struct {
	MealID      string `json:"meal_id"`
	LastUpdated int64  `json:"last_updated"`
}

// Validate checks that the tombstone is applicable.
func (t *Tombstone) Validate() error {
	if t.MealID == "" {
		return fmt.Errorf("meal id is required")
	}
	if t.LastUpdated <= 0 {
		return fmt.Errorf("last updated must be a positive epoch-ms timestamp (got %d)", t.LastUpdated)
	}
	return nil
}

// MealItem is one photographed item belonging to a meal. Items are fetched
// live per meal and are not mirrored into the local cache; the sync core
// only writes them on the append path and never inspects image bytes.
type MealItem struct {
	ItemID          string `json:"item_id"`
	MealID          string `json:"meal_id"`
	PicID           string `json:"pic_id"`
	Notes           string `json:"notes,omitempty"`
	TimeStamp       int64  `json:"time_stamp"`
	IsAndroid       bool   `json:"is_android"`
	FromFavorites   bool   `json:"from_favorites"`
	UploadedToCloud bool   `json:"uploaded_to_cloud"`
}

// Reminder mirrors a small remote record. IsScheduled is local-only state
// used to avoid re-registering the same local notification; it never syncs
// back to the remote store.
type Reminder struct {
	ReminderID  string `json:"reminder_id"`
	IsScheduled bool   `json:"is_scheduled"`
}

// UserMeta is the local-only sync metadata row for one user.
//
// LastFetched is the cursor: the highest update/tombstone stamp known to be
// fully applied locally. It only moves forward, and only after both halves
// of a delta pass (updates, then deletions) have been applied.
type UserMeta struct {
	UserID      string `json:"user_id"`
	IsFirstTime bool   `json:"is_first_time"`
	LastFetched int64  `json:"last_fetched"`
}

// Profile is the remote per-user document: the meal counter used as a
// staleness heuristic, the combine window for the append path, and the
// account tier.
type Profile struct {
	MealNum        int64  `json:"meal_num"`
	CombineMinutes int64  `json:"combine_minutes"`
	AccountType    string `json:"account_type"`
}

// DefaultCombineMinutes is the combine window applied to new profiles: a
// meal item captured within this many minutes of the most recent meal's
// start joins that meal instead of creating a new one.
const DefaultCombineMinutes = 30

// DefaultSymptoms seeds the available-symptom registry for new users.
var DefaultSymptoms = []string{"Bloating", "Pain", "Irritation", "Nausea"}
