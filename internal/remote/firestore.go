package remote

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mealjournal/mealsync/internal/journal"
)

// Firestore document layout, one tree per user:
//
//	users/{uid}                       profile: mealNum, combineMeals, accType
//	users/{uid}/meals/{mealId}        meal documents
//	users/{uid}/meals/{id}/mealItems  photographed items (not cached locally)
//	users/{uid}/deletedMeals/{auto}   tombstones: mealID, lastUpdated
//	users/{uid}/symptoms/userSymptoms availableSymptoms: [...]
//	users/{uid}/reminders/{id}        reminder documents
const (
	usersCollection     = "users"
	mealsCollection     = "meals"
	mealItemsCollection = "mealItems"
	deletionsCollection = "deletedMeals"
	symptomsCollection  = "symptoms"
	symptomsDocument    = "userSymptoms"
	remindersCollection = "reminders"
	defaultAccountType  = "FREE"
)

type mealDoc struct {
	MealStarted  int64            `firestore:"mealStarted"`
	SymptomNotes string           `firestore:"symptomNotes"`
	MealSymptoms map[string]int64 `firestore:"mealSymptoms"`
	LastUpdated  int64            `firestore:"lastUpdated"`
}

type tombstoneDoc struct {
	MealID      string `firestore:"mealID"`
	LastUpdated int64  `firestore:"lastUpdated"`
}

type profileDoc struct {
	MealNum      int64  `firestore:"mealNum"`
	CombineMeals int64  `firestore:"combineMeals"`
	AccType      string `firestore:"accType"`
}

type itemDoc struct {
	UserID          string `firestore:"userID"`
	PicID           string `firestore:"picID"`
	Notes           string `firestore:"notes"`
	TimeStamp       int64  `firestore:"timeStamp"`
	IsAndroid       bool   `firestore:"isAndroid"`
	FromFavorites   bool   `firestore:"fromFavorites"`
	UploadedToCloud bool   `firestore:"uploadedToCloud"`
}

// Firestore implements Store over Cloud Firestore.
type Firestore struct {
	client *firestore.Client
	log    *log.Logger
	now    func() int64
}

var _ Store = (*Firestore)(nil)

// NewFirestore wraps an existing Firestore client.
//
// If logger is nil, a default logger writing to stderr is used.
func NewFirestore(client *firestore.Client, logger *log.Logger) *Firestore {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Firestore{
		client: client,
		log:    logger,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Dial creates a Firestore client for the project and wraps it. If
// credentialsFile is empty, application default credentials are used.
func Dial(ctx context.Context, projectID, credentialsFile string, logger *log.Logger) (*Firestore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return NewFirestore(client, logger), nil
}

// Close releases the underlying client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) userRef(userID string) *firestore.DocumentRef {
	return f.client.Collection(usersCollection).Doc(userID)
}

// EnsureUser implements Store.EnsureUser.
func (f *Firestore) EnsureUser(ctx context.Context, userID string) (*journal.Profile, error) {
	ref := f.userRef(userID)

	snap, err := ref.Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return nil, fmt.Errorf("failed to read profile for %s: %w", userID, err)
	}

	if err == nil && snap.Exists() {
		var doc profileDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("malformed profile for %s: %w", userID, err)
		}
		return &journal.Profile{
			MealNum:        doc.MealNum,
			CombineMinutes: doc.CombineMeals,
			AccountType:    doc.AccType,
		}, nil
	}

	// First contact: create the profile and seed the symptom registry.
	init := profileDoc{
		MealNum:      0,
		CombineMeals: journal.DefaultCombineMinutes,
		AccType:      defaultAccountType,
	}
	if _, err := ref.Set(ctx, init); err != nil {
		return nil, fmt.Errorf("failed to create profile for %s: %w", userID, err)
	}
	if _, err := ref.Collection(symptomsCollection).Doc(symptomsDocument).Set(ctx, map[string]interface{}{
		"availableSymptoms": journal.DefaultSymptoms,
	}); err != nil {
		return nil, fmt.Errorf("failed to seed symptom registry for %s: %w", userID, err)
	}

	f.log.Printf("Created remote profile for user %s", userID)

	return &journal.Profile{
		MealNum:        init.MealNum,
		CombineMinutes: init.CombineMeals,
		AccountType:    init.AccType,
	}, nil
}

// FetchUpdatesSince implements Store.FetchUpdatesSince.
func (f *Firestore) FetchUpdatesSince(ctx context.Context, userID string, cursor int64) ([]*journal.Meal, error) {
	query := f.userRef(userID).Collection(mealsCollection).
		Where("lastUpdated", ">", cursor)
	return f.collectMeals(ctx, userID, query.Documents(ctx))
}

// FetchAllMeals implements Store.FetchAllMeals.
func (f *Firestore) FetchAllMeals(ctx context.Context, userID string) ([]*journal.Meal, error) {
	iter := f.userRef(userID).Collection(mealsCollection).Documents(ctx)
	return f.collectMeals(ctx, userID, iter)
}

// collectMeals drains a meal query. Documents that don't decode or fail
// validation are skipped with a warning: one malformed meal must not block
// sync of the rest.
func (f *Firestore) collectMeals(ctx context.Context, userID string, iter *firestore.DocumentIterator) ([]*journal.Meal, error) {
	defer iter.Stop()

	var meals []*journal.Meal
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch meals for %s: %w", userID, err)
		}

		var doc mealDoc
		if err := snap.DataTo(&doc); err != nil {
			f.log.Printf("Warning: skipping malformed meal %s: %v", snap.Ref.ID, err)
			continue
		}

		meal := &journal.Meal{
			UserID:       userID,
			MealID:       snap.Ref.ID,
			MealStarted:  doc.MealStarted,
			SymptomNotes: doc.SymptomNotes,
			MealSymptoms: doc.MealSymptoms,
			LastUpdated:  doc.LastUpdated,
		}
		if err := meal.Validate(); err != nil {
			f.log.Printf("Warning: skipping invalid meal %s: %v", snap.Ref.ID, err)
			continue
		}

		meals = append(meals, meal)
	}

	return meals, nil
}

// FetchDeletionsSince implements Store.FetchDeletionsSince.
func (f *Firestore) FetchDeletionsSince(ctx context.Context, userID string, cursor int64) ([]*journal.Tombstone, error) {
	iter := f.userRef(userID).Collection(deletionsCollection).
		Where("lastUpdated", ">", cursor).
		Documents(ctx)
	defer iter.Stop()

	var tombstones []*journal.Tombstone
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch deletions for %s: %w", userID, err)
		}

		var doc tombstoneDoc
		if err := snap.DataTo(&doc); err != nil {
			f.log.Printf("Warning: skipping malformed tombstone %s: %v", snap.Ref.ID, err)
			continue
		}

		ts := &journal.Tombstone{MealID: doc.MealID, LastUpdated: doc.LastUpdated}
		if err := ts.Validate(); err != nil {
			f.log.Printf("Warning: skipping invalid tombstone %s: %v", snap.Ref.ID, err)
			continue
		}

		tombstones = append(tombstones, ts)
	}

	return tombstones, nil
}

// CreateMeal implements Store.CreateMeal.
func (f *Firestore) CreateMeal(ctx context.Context, userID string, meal *journal.Meal) (int64, error) {
	stamp := f.now()
	doc := mealDoc{
		MealStarted:  meal.MealStarted,
		SymptomNotes: meal.SymptomNotes,
		MealSymptoms: meal.MealSymptoms,
		LastUpdated:  stamp,
	}
	if doc.MealSymptoms == nil {
		doc.MealSymptoms = map[string]int64{}
	}

	ref := f.userRef(userID).Collection(mealsCollection).Doc(meal.MealID)
	if _, err := ref.Set(ctx, doc); err != nil {
		return 0, fmt.Errorf("failed to write meal %s: %w", meal.MealID, err)
	}

	if err := f.adjustMealCount(ctx, userID, 1); err != nil {
		return 0, err
	}

	return stamp, nil
}

// ImportMeals implements Store.ImportMeals.
func (f *Firestore) ImportMeals(ctx context.Context, userID string, meals []*journal.Meal) (int64, error) {
	if len(meals) == 0 {
		return 0, nil
	}

	stamp := f.now()
	bw := f.client.BulkWriter(ctx)

	var jobs []*firestore.BulkWriterJob
	for _, meal := range meals {
		doc := mealDoc{
			MealStarted:  meal.MealStarted,
			SymptomNotes: meal.SymptomNotes,
			MealSymptoms: meal.MealSymptoms,
			LastUpdated:  stamp,
		}
		ref := f.userRef(userID).Collection(mealsCollection).Doc(meal.MealID)
		job, err := bw.Set(ref, doc)
		if err != nil {
			return 0, fmt.Errorf("failed to enqueue meal %s: %w", meal.MealID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return 0, fmt.Errorf("failed to import meal %s: %w", meals[i].MealID, err)
		}
	}

	if err := f.adjustMealCount(ctx, userID, int64(len(meals))); err != nil {
		return 0, err
	}

	f.log.Printf("Imported %d meals for user %s", len(meals), userID)
	return stamp, nil
}

// UpdateMeal implements Store.UpdateMeal.
func (f *Firestore) UpdateMeal(ctx context.Context, userID, mealID string, patch MealPatch) (int64, error) {
	if patch.IsEmpty() {
		return 0, fmt.Errorf("empty patch for meal %s", mealID)
	}

	stamp := f.now()
	updates := []firestore.Update{{Path: "lastUpdated", Value: stamp}}
	if patch.SymptomNotes != nil {
		updates = append(updates, firestore.Update{Path: "symptomNotes", Value: *patch.SymptomNotes})
	}
	for name, value := range patch.Symptoms {
		updates = append(updates, firestore.Update{
			Path:  "mealSymptoms." + name,
			Value: value,
		})
	}

	ref := f.userRef(userID).Collection(mealsCollection).Doc(mealID)
	if _, err := ref.Update(ctx, updates); err != nil {
		return 0, fmt.Errorf("failed to update meal %s: %w", mealID, err)
	}

	return stamp, nil
}

// DeleteMeal implements Store.DeleteMeal.
//
// Tombstone first, document second: if the call fails in between, the meal
// resurfaces on no device (the tombstone already outranks it) and a retried
// delete is idempotent.
func (f *Firestore) DeleteMeal(ctx context.Context, userID, mealID string) (int64, error) {
	stamp := f.now()
	userRef := f.userRef(userID)

	if _, _, err := userRef.Collection(deletionsCollection).Add(ctx, tombstoneDoc{
		MealID:      mealID,
		LastUpdated: stamp,
	}); err != nil {
		return 0, fmt.Errorf("failed to append tombstone for meal %s: %w", mealID, err)
	}

	if _, err := userRef.Collection(mealsCollection).Doc(mealID).Delete(ctx); err != nil {
		return 0, fmt.Errorf("failed to delete meal %s: %w", mealID, err)
	}

	if err := f.adjustMealCount(ctx, userID, -1); err != nil {
		return 0, err
	}

	return stamp, nil
}

// MostRecentMeal implements Store.MostRecentMeal.
func (f *Firestore) MostRecentMeal(ctx context.Context, userID string) (*journal.Meal, error) {
	iter := f.userRef(userID).Collection(mealsCollection).
		OrderBy("mealStarted", firestore.Desc).
		Limit(1).
		Documents(ctx)

	meals, err := f.collectMeals(ctx, userID, iter)
	if err != nil {
		return nil, err
	}
	if len(meals) == 0 {
		return nil, ErrNoMeals
	}
	return meals[0], nil
}

// AddMealItem implements Store.AddMealItem.
func (f *Firestore) AddMealItem(ctx context.Context, userID, mealID string, item *journal.MealItem) (string, error) {
	ref, _, err := f.userRef(userID).
		Collection(mealsCollection).Doc(mealID).
		Collection(mealItemsCollection).
		Add(ctx, itemDoc{
			UserID:          userID,
			PicID:           item.PicID,
			Notes:           item.Notes,
			TimeStamp:       item.TimeStamp,
			IsAndroid:       item.IsAndroid,
			FromFavorites:   item.FromFavorites,
			UploadedToCloud: item.UploadedToCloud,
		})
	if err != nil {
		return "", fmt.Errorf("failed to add meal item to %s: %w", mealID, err)
	}
	return ref.ID, nil
}

// FetchSymptoms implements Store.FetchSymptoms.
func (f *Firestore) FetchSymptoms(ctx context.Context, userID string) ([]string, error) {
	snap, err := f.userRef(userID).Collection(symptomsCollection).Doc(symptomsDocument).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read symptom registry for %s: %w", userID, err)
	}

	var doc struct {
		AvailableSymptoms []string `firestore:"availableSymptoms"`
	}
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("malformed symptom registry for %s: %w", userID, err)
	}

	return doc.AvailableSymptoms, nil
}

// RegisterSymptom implements Store.RegisterSymptom.
func (f *Firestore) RegisterSymptom(ctx context.Context, userID, name string) error {
	if name == "" {
		return fmt.Errorf("symptom name is required")
	}

	reg := f.userRef(userID).Collection(symptomsCollection).Doc(symptomsDocument)
	if _, err := reg.Update(ctx, []firestore.Update{
		{Path: "availableSymptoms", Value: firestore.ArrayUnion(name)},
	}); err != nil {
		return fmt.Errorf("failed to register symptom %q: %w", name, err)
	}

	// Push a zero entry onto the latest meal so the new symptom is
	// immediately editable there.
	recent, err := f.MostRecentMeal(ctx, userID)
	if err == ErrNoMeals {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := f.UpdateMeal(ctx, userID, recent.MealID, MealPatch{
		Symptoms: map[string]int64{name: 0},
	}); err != nil {
		return fmt.Errorf("failed to seed symptom %q on meal %s: %w", name, recent.MealID, err)
	}

	return nil
}

// ListReminders implements Store.ListReminders.
func (f *Firestore) ListReminders(ctx context.Context, userID string) ([]string, error) {
	iter := f.userRef(userID).Collection(remindersCollection).DocumentRefs(ctx)

	var ids []string
	for {
		ref, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list reminders for %s: %w", userID, err)
		}
		ids = append(ids, ref.ID)
	}

	return ids, nil
}

// SetCombineWindow implements Store.SetCombineWindow.
func (f *Firestore) SetCombineWindow(ctx context.Context, userID string, minutes int64) error {
	if minutes <= 0 {
		return fmt.Errorf("combine window must be positive (got %d)", minutes)
	}
	if _, err := f.userRef(userID).Update(ctx, []firestore.Update{
		{Path: "combineMeals", Value: minutes},
	}); err != nil {
		return fmt.Errorf("failed to set combine window for %s: %w", userID, err)
	}
	return nil
}

// PruneTombstones implements Store.PruneTombstones.
func (f *Firestore) PruneTombstones(ctx context.Context, userID string, olderThan int64) (int, error) {
	iter := f.userRef(userID).Collection(deletionsCollection).
		Where("lastUpdated", "<", olderThan).
		Documents(ctx)
	defer iter.Stop()

	pruned := 0
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return pruned, fmt.Errorf("failed to scan tombstones for %s: %w", userID, err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return pruned, fmt.Errorf("failed to prune tombstone %s: %w", snap.Ref.ID, err)
		}
		pruned++
	}

	if pruned > 0 {
		f.log.Printf("Pruned %d tombstones for user %s", pruned, userID)
	}
	return pruned, nil
}

// adjustMealCount moves the staleness counter. The counter is a heuristic
// full-fetch trigger, not a correctness mechanism, so drift here is
// tolerable; cursor-based delta sync self-heals regardless.
func (f *Firestore) adjustMealCount(ctx context.Context, userID string, delta int64) error {
	if _, err := f.userRef(userID).Update(ctx, []firestore.Update{
		{Path: "mealNum", Value: firestore.Increment(delta)},
	}); err != nil {
		return fmt.Errorf("failed to adjust meal counter for %s: %w", userID, err)
	}
	return nil
}
