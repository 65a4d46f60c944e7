package category

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/wote-dev/simplr-sub001/domain"
	"github.com/wote-dev/simplr-sub001/storage"
)

// syncWriter runs scheduled writes immediately so tests observe durable
// state without waiting out the coalescing window.
type syncWriter struct{ lastErr error }

func (w *syncWriter) Schedule(key string, fn func() error) { w.lastErr = fn() }

func newTestIndex(t *testing.T, opts Options) (*Index, *storage.Storage) {
	t.Helper()
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	return NewIndex(store, &syncWriter{}, opts, logger), store
}

func findPredefined(t *testing.T, name string) domain.Category {
	t.Helper()
	for _, c := range Predefined() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no predefined category named %s", name)
	return domain.Category{}
}

func TestReloadSeedsPredefinedCatalog(t *testing.T) {
	ix, store := newTestIndex(t, Options{})
	ix.Reload("personal")

	cats := ix.Categories()
	require.Len(t, cats, len(Predefined()))
	require.Equal(t, "Urgent", cats[0].Name)
	for _, c := range cats {
		require.False(t, c.Custom)
	}

	// The seeded catalog is persisted.
	persisted, err := store.LoadCategories("personal")
	require.NoError(t, err)
	require.Len(t, persisted, len(Predefined()))
}

func TestReloadIsIdempotent(t *testing.T) {
	ix, _ := newTestIndex(t, Options{})
	ix.Reload("personal")

	custom, err := ix.AddCategory("Errands", "#FFCC00")
	require.NoError(t, err)

	first := ix.Categories()
	ix.Reload("personal")
	second := ix.Categories()

	require.Equal(t, first, second)
	got, ok := ix.Lookup(custom.ID)
	require.True(t, ok)
	require.Equal(t, "Errands", got.Name)
}

func TestReloadMigratesStalePredefinedID(t *testing.T) {
	staleID := uuid.New()
	work := findPredefined(t, "Work")

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SaveCategories("personal", []domain.Category{
		{ID: staleID, Name: "Work", Color: "#007AFF"},
		{ID: uuid.New(), Name: "Errands", Color: "#FFCC00", Custom: true},
	}))
	require.NoError(t, store.SaveUIState("personal", domain.UIState{SelectedFilter: &staleID}))

	var gotRemap map[uuid.UUID]uuid.UUID
	logger, _ := test.NewNullLogger()
	ix := NewIndex(store, &syncWriter{}, Options{
		RemapTasks: func(remap map[uuid.UUID]uuid.UUID) int {
			gotRemap = remap
			return 2
		},
	}, logger)
	ix.Reload("personal")

	require.Equal(t, map[uuid.UUID]uuid.UUID{staleID: work.ID}, gotRemap)

	// The selected filter follows the migration.
	sel := ix.SelectedFilter()
	require.NotNil(t, sel)
	require.Equal(t, work.ID, *sel)

	// The stale ID is gone from the persisted catalog.
	persisted, err := store.LoadCategories("personal")
	require.NoError(t, err)
	for _, c := range persisted {
		require.NotEqual(t, staleID, c.ID)
	}

	// Running the merge again has nothing left to do.
	called := false
	ix.opts.RemapTasks = func(map[uuid.UUID]uuid.UUID) int { called = true; return 0 }
	ix.Reload("personal")
	require.False(t, called)
}

func TestReloadKeepsCustomCategoriesAndDropsStaleSelection(t *testing.T) {
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)

	gone := uuid.New()
	errands := domain.Category{ID: uuid.New(), Name: "Errands", Color: "#FFCC00", Custom: true}
	require.NoError(t, store.SaveCategories("personal", []domain.Category{errands}))
	require.NoError(t, store.SaveUIState("personal", domain.UIState{
		SelectedFilter: &gone,
		Collapsed:      []string{"Errands", "Vanished", "Uncategorized"},
	}))

	logger, _ := test.NewNullLogger()
	ix := NewIndex(store, &syncWriter{}, Options{}, logger)
	ix.Reload("personal")

	got, ok := ix.Lookup(errands.ID)
	require.True(t, ok)
	require.Equal(t, errands, got)

	require.Nil(t, ix.SelectedFilter())
	require.True(t, ix.IsCollapsed("Errands"))
	require.True(t, ix.IsCollapsed("Uncategorized"))
	require.False(t, ix.IsCollapsed("Vanished"))
}

func TestAddCategoryValidation(t *testing.T) {
	ix, _ := newTestIndex(t, Options{})
	ix.Reload("personal")

	_, err := ix.AddCategory("   ", "#FFFFFF")
	require.ErrorIs(t, err, domain.ErrInvalidCategoryName)

	_, err = ix.AddCategory("work", "#FFFFFF")
	require.ErrorIs(t, err, domain.ErrDuplicateCategoryName)

	cat, err := ix.AddCategory(" Errands ", "#FFCC00")
	require.NoError(t, err)
	require.Equal(t, "Errands", cat.Name)
	require.True(t, cat.Custom)

	_, err = ix.AddCategory("ERRANDS", "#000000")
	require.ErrorIs(t, err, domain.ErrDuplicateCategoryName)
}

func TestRenameCategory(t *testing.T) {
	ix, _ := newTestIndex(t, Options{})
	ix.Reload("personal")

	work := findPredefined(t, "Work")
	require.ErrorIs(t, ix.RenameCategory(work.ID, "Job"), domain.ErrPredefinedCategory)

	cat, err := ix.AddCategory("Errands", "#FFCC00")
	require.NoError(t, err)

	// Collapse state follows the rename.
	ix.ToggleCollapsed("Errands")
	require.NoError(t, ix.RenameCategory(cat.ID, "Chores"))
	require.True(t, ix.IsCollapsed("Chores"))
	require.False(t, ix.IsCollapsed("Errands"))

	require.ErrorIs(t, ix.RenameCategory(cat.ID, "health"), domain.ErrDuplicateCategoryName)

	// Renaming a vanished category is a harmless no-op.
	require.NoError(t, ix.RenameCategory(uuid.New(), "Ghost"))
}

func TestDeleteCategoryClearsSelectionAndCollapse(t *testing.T) {
	ix, _ := newTestIndex(t, Options{})
	ix.Reload("personal")

	work := findPredefined(t, "Work")
	require.ErrorIs(t, ix.DeleteCategory(work.ID), domain.ErrPredefinedCategory)

	cat, err := ix.AddCategory("Errands", "#FFCC00")
	require.NoError(t, err)
	id := cat.ID
	ix.SetSelectedFilter(&id)
	ix.ToggleCollapsed("Errands")

	require.NoError(t, ix.DeleteCategory(cat.ID))
	require.Nil(t, ix.SelectedFilter())
	require.False(t, ix.IsCollapsed("Errands"))
	_, ok := ix.Lookup(cat.ID)
	require.False(t, ok)

	require.NoError(t, ix.DeleteCategory(cat.ID)) // already gone
}

func TestToggleCollapsedTwiceRestoresState(t *testing.T) {
	ix, store := newTestIndex(t, Options{})
	ix.Reload("personal")

	require.False(t, ix.IsCollapsed("Work"))
	require.True(t, ix.ToggleCollapsed("Work"))
	require.True(t, ix.IsCollapsed("work")) // name match ignores case
	require.False(t, ix.ToggleCollapsed("Work"))
	require.False(t, ix.IsCollapsed("Work"))

	// Each flip persisted; final state on disk is expanded.
	st, err := store.LoadUIState("personal")
	require.NoError(t, err)
	require.Empty(t, st.Collapsed)
}

func TestValidateCollapsedStatePrunesStaleNames(t *testing.T) {
	ix, _ := newTestIndex(t, Options{})
	ix.Reload("personal")

	cat, err := ix.AddCategory("Errands", "#FFCC00")
	require.NoError(t, err)
	ix.ToggleCollapsed("Errands")
	ix.ToggleCollapsed("Uncategorized")

	require.NoError(t, ix.DeleteCategory(cat.ID))
	require.Zero(t, ix.ValidateCollapsedState()) // delete already pruned

	// Uncategorized survives pruning even though it is not a category.
	require.True(t, ix.IsCollapsed("Uncategorized"))
}

func TestLookupServesFromCacheAndRepairsOnMiss(t *testing.T) {
	ix, _ := newTestIndex(t, Options{CacheTTL: 20 * time.Millisecond})
	ix.Reload("personal")

	work := findPredefined(t, "Work")
	got, ok := ix.Lookup(work.ID)
	require.True(t, ok)
	require.Equal(t, work, got)

	// Unknown IDs miss without error.
	_, ok = ix.Lookup(uuid.New())
	require.False(t, ok)

	// A mutation is visible through the cache immediately.
	cat, err := ix.AddCategory("Errands", "#FFCC00")
	require.NoError(t, err)
	got, ok = ix.Lookup(cat.ID)
	require.True(t, ok)
	require.Equal(t, cat, got)

	// After the TTL expires the cache rebuilds transparently.
	time.Sleep(30 * time.Millisecond)
	got, ok = ix.Lookup(cat.ID)
	require.True(t, ok)
	require.Equal(t, cat, got)
}

func TestNameOfResolvesOrphansToUncategorized(t *testing.T) {
	ix, _ := newTestIndex(t, Options{})
	ix.Reload("personal")

	work := findPredefined(t, "Work")
	require.Equal(t, "Work", ix.NameOf(&work.ID))
	require.Equal(t, domain.UncategorizedName, ix.NameOf(nil))

	orphan := uuid.New()
	require.Equal(t, domain.UncategorizedName, ix.NameOf(&orphan))
}

func TestGroupByCategoryOrdersByPriorityAndKeepsTaskOrder(t *testing.T) {
	ix, _ := newTestIndex(t, Options{})
	ix.Reload("personal")

	urgent := findPredefined(t, "Urgent")
	work := findPredefined(t, "Work")
	errands, err := ix.AddCategory("Errands", "#FFCC00")
	require.NoError(t, err)
	orphan := uuid.New()

	tasks := []domain.Task{
		{ID: uuid.New(), Title: "w1", CategoryID: &work.ID},
		{ID: uuid.New(), Title: "e1", CategoryID: &errands.ID},
		{ID: uuid.New(), Title: "u1", CategoryID: &urgent.ID},
		{ID: uuid.New(), Title: "lost", CategoryID: &orphan},
		{ID: uuid.New(), Title: "w2", CategoryID: &work.ID},
		{ID: uuid.New(), Title: "none"},
	}

	groups := ix.GroupByCategory(tasks)
	require.Len(t, groups, 4)

	require.Equal(t, "Urgent", groups[0].Category.Name)
	require.Equal(t, "Work", groups[1].Category.Name)
	require.Equal(t, "Errands", groups[2].Category.Name)
	require.Nil(t, groups[3].Category)

	// Input order is preserved inside a group.
	require.Equal(t, "w1", groups[1].Tasks[0].Title)
	require.Equal(t, "w2", groups[1].Tasks[1].Title)

	// Orphans and nil references share the uncategorized bucket.
	require.Len(t, groups[3].Tasks, 2)
	require.Equal(t, "lost", groups[3].Tasks[0].Title)
	require.Equal(t, "none", groups[3].Tasks[1].Title)
}

func TestPriorityHierarchy(t *testing.T) {
	urgent := findPredefined(t, "Urgent")
	important := findPredefined(t, "Important")
	work := findPredefined(t, "Work")
	health := findPredefined(t, "Health")
	custom := domain.Category{ID: uuid.New(), Name: "Errands", Custom: true}

	require.Less(t, Priority(&urgent), Priority(&important))
	require.Less(t, Priority(&important), Priority(&work))
	require.Less(t, Priority(&work), Priority(&health))
	require.Less(t, Priority(&health), Priority(&custom))
	require.Less(t, Priority(&custom), Priority(nil))
}

func TestMutationsPublishCategoriesChanged(t *testing.T) {
	var events []domain.Event
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	ix := NewIndex(store, &syncWriter{}, Options{
		Publish: func(ev domain.Event) { events = append(events, ev) },
	}, logger)
	ix.Reload("personal")

	cat, err := ix.AddCategory("Errands", "#FFCC00")
	require.NoError(t, err)
	require.NoError(t, ix.RenameCategory(cat.ID, "Chores"))
	require.NoError(t, ix.DeleteCategory(cat.ID))

	require.Len(t, events, 3)
	for _, ev := range events {
		require.Equal(t, domain.CategoriesChanged, ev.Type)
		require.Equal(t, "personal", ev.Profile)
		require.NotNil(t, ev.Category)
	}
	require.Equal(t, "Chores", events[1].Category.Name)
}

func TestReloadSurvivesCorruptCategoryFile(t *testing.T) {
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	logger, hook := test.NewNullLogger()
	ix := NewIndex(store, &syncWriter{}, Options{}, logger)

	// Simulate a decode failure by wiring a persistence stub that errors.
	ix.store = &failingLoads{Persistence: store, err: errors.New("decode exploded")}
	ix.Reload("personal")

	require.Len(t, ix.Categories(), len(Predefined()))
	require.NotNil(t, hook.LastEntry())
}

type failingLoads struct {
	Persistence
	err error
}

func (f *failingLoads) LoadCategories(profile string) ([]domain.Category, error) {
	return nil, f.err
}

func (f *failingLoads) LoadUIState(profile string) (domain.UIState, error) {
	return domain.UIState{}, f.err
}
