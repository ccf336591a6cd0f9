package viewmodel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e-tracker/tasktrack/internal/clock"
	"github.com/e-tracker/tasktrack/internal/db"
	"github.com/e-tracker/tasktrack/internal/model"
	"github.com/e-tracker/tasktrack/internal/repository"
)

var testNow = time.UnixMilli(1_700_000_000_000)

func newTestVM(t *testing.T, now clock.Clock) (*TaskViewModel, *db.Store) {
	t.Helper()

	sqlDB, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := db.NewStore(sqlDB, zerolog.Nop(), now)
	vm := New(repository.New(store), zerolog.Nop(), now)
	vm.Start(context.Background())
	t.Cleanup(vm.Close)

	return vm, store
}

func waitForKind(t *testing.T, vm *TaskViewModel, kind UIStateKind) UIState {
	t.Helper()
	require.Eventually(t, func() bool {
		return vm.UIState().Get().Kind == kind
	}, time.Second, 5*time.Millisecond, "waiting for UI state %s, have %s", kind, vm.UIState().Get().Kind)
	return vm.UIState().Get()
}

func mustInsert(t *testing.T, store *db.Store, task model.Task) int64 {
	t.Helper()
	id, err := store.Insert(context.Background(), task)
	require.NoError(t, err)
	return id
}

func titles(tasks []model.Task) []string {
	result := make([]string, 0, len(tasks))
	for _, task := range tasks {
		result = append(result, task.Title)
	}
	return result
}

// scriptedRepo hand-feeds snapshots to the pipeline, standing in for
// the store when a test needs to control exactly what arrives.
type scriptedRepo struct {
	snapshots chan db.Snapshot
}

func (r *scriptedRepo) ObserveAll(ctx context.Context) (<-chan db.Snapshot, func()) {
	return r.snapshots, func() { close(r.snapshots) }
}

func (r *scriptedRepo) GetByID(ctx context.Context, id int64) (model.Task, error) {
	return model.Task{}, db.ErrNotFound
}

func (r *scriptedRepo) Insert(ctx context.Context, t model.Task) (int64, error) { return 0, nil }
func (r *scriptedRepo) Update(ctx context.Context, t model.Task) error          { return nil }
func (r *scriptedRepo) DeleteByID(ctx context.Context, id int64) error          { return nil }

func TestPipelineStartsEmpty(t *testing.T) {
	vm, _ := newTestVM(t, clock.Fixed(testNow))
	waitForKind(t, vm, UIEmpty)
}

func TestSnapshotErrorSetsErrorState(t *testing.T) {
	repo := &scriptedRepo{snapshots: make(chan db.Snapshot, 4)}
	vm := New(repo, zerolog.Nop(), clock.Fixed(testNow))
	vm.Start(context.Background())
	t.Cleanup(vm.Close)

	repo.snapshots <- db.Snapshot{Err: errors.New("database is locked")}

	state := waitForKind(t, vm, UIError)
	assert.Contains(t, state.Message, "Failed to load tasks")
	assert.Contains(t, state.Message, "database is locked")

	// A later healthy snapshot recovers the pipeline.
	repo.snapshots <- db.Snapshot{Tasks: []model.Task{{Title: "Back again"}}}
	state = waitForKind(t, vm, UISuccess)
	assert.Equal(t, []string{"Back again"}, titles(state.Tasks))

	repo.snapshots <- db.Snapshot{}
	waitForKind(t, vm, UIEmpty)
}

func TestDeriveFiltersAreConjunctive(t *testing.T) {
	status := model.StatusToDo
	priority := model.PriorityHigh

	tasks := []model.Task{
		{Title: "File taxes", Status: model.StatusToDo, Priority: model.PriorityHigh},
		{Title: "File cabinet", Status: model.StatusDone, Priority: model.PriorityHigh},
		{Title: "File claim", Status: model.StatusToDo, Priority: model.PriorityLow},
		{Title: "Buy milk", Status: model.StatusToDo, Priority: model.PriorityHigh},
	}

	derived := Derive(tasks, model.Criteria{
		Search:   "file",
		Status:   &status,
		Priority: &priority,
		Sort:     model.SortCreatedDateDesc,
	})

	// Only the task matching all three predicates survives.
	require.Len(t, derived, 1)
	assert.Equal(t, "File taxes", derived[0].Title)
}

func TestDeriveSearchIsCaseInsensitiveSubstring(t *testing.T) {
	tasks := []model.Task{
		{Title: "File TAXES"},
		{Title: "Buy milk"},
	}

	derived := Derive(tasks, model.Criteria{Search: "tax", Sort: model.SortCreatedDateDesc})
	assert.Equal(t, []string{"File TAXES"}, titles(derived))
}

func TestDeriveSearchKeepsSurroundingWhitespace(t *testing.T) {
	tasks := []model.Task{
		{Title: "File taxes"},
		{Title: "Syntax"},
	}

	// The query is matched as typed; only an all-blank query disables
	// the search.
	derived := Derive(tasks, model.Criteria{Search: " tax", Sort: model.SortCreatedDateDesc})
	assert.Equal(t, []string{"File taxes"}, titles(derived))

	derived = Derive(tasks, model.Criteria{Search: "tax", Sort: model.SortCreatedDateDesc})
	assert.Equal(t, []string{"File taxes", "Syntax"}, titles(derived))

	derived = Derive(tasks, model.Criteria{Search: "   ", Sort: model.SortCreatedDateDesc})
	assert.Len(t, derived, 2)
}

func TestDeriveSortOrders(t *testing.T) {
	due1 := time.UnixMilli(1_000)
	due2 := time.UnixMilli(2_000)

	tasks := []model.Task{
		{Title: "high no due", Priority: model.PriorityHigh, Status: model.StatusDone, CreatedAt: time.UnixMilli(10)},
		{Title: "low due2", Priority: model.PriorityLow, Status: model.StatusToDo, DueDate: &due2, CreatedAt: time.UnixMilli(20)},
		{Title: "medium due1", Priority: model.PriorityMedium, Status: model.StatusInProgress, DueDate: &due1, CreatedAt: time.UnixMilli(30)},
	}

	tests := []struct {
		name  string
		sort  model.SortOrder
		order []string
	}{
		{"priority asc", model.SortPriorityAsc, []string{"low due2", "medium due1", "high no due"}},
		{"priority desc", model.SortPriorityDesc, []string{"high no due", "medium due1", "low due2"}},
		{"due date asc puts absent last", model.SortDueDateAsc, []string{"medium due1", "low due2", "high no due"}},
		{"due date desc puts absent first", model.SortDueDateDesc, []string{"high no due", "low due2", "medium due1"}},
		{"status", model.SortStatus, []string{"low due2", "medium due1", "high no due"}},
		{"created asc", model.SortCreatedDateAsc, []string{"high no due", "low due2", "medium due1"}},
		{"created desc", model.SortCreatedDateDesc, []string{"medium due1", "low due2", "high no due"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			derived := Derive(tasks, model.Criteria{Sort: tt.sort})
			assert.Equal(t, tt.order, titles(derived))
		})
	}
}

func TestDeriveSortIsStable(t *testing.T) {
	tasks := []model.Task{
		{Title: "first", Priority: model.PriorityMedium},
		{Title: "second", Priority: model.PriorityMedium},
		{Title: "third", Priority: model.PriorityMedium},
	}

	derived := Derive(tasks, model.Criteria{Sort: model.SortPriorityAsc})
	assert.Equal(t, []string{"first", "second", "third"}, titles(derived))
}

func TestOverdueAndDefaultOrder(t *testing.T) {
	vm, store := newTestVM(t, clock.Fixed(testNow))

	yesterday := testNow.Add(-24 * time.Hour)
	mustInsert(t, store, model.Task{Title: "Buy milk", Status: model.StatusToDo, Priority: model.PriorityMedium})
	mustInsert(t, store, model.Task{Title: "File taxes", Status: model.StatusToDo, Priority: model.PriorityHigh, DueDate: &yesterday})

	waitForKind(t, vm, UISuccess)
	require.Eventually(t, func() bool {
		return len(vm.UIState().Get().Tasks) == 2
	}, time.Second, 5*time.Millisecond)
	state := vm.UIState().Get()

	// Most recently created first.
	assert.Equal(t, []string{"File taxes", "Buy milk"}, titles(state.Tasks))
	assert.True(t, state.Tasks[0].IsOverdue(testNow))
	assert.False(t, state.Tasks[1].IsOverdue(testNow))
}

func TestSearchNarrowsDerivedList(t *testing.T) {
	vm, store := newTestVM(t, clock.Fixed(testNow))

	mustInsert(t, store, model.Task{Title: "Buy milk", Status: model.StatusToDo, Priority: model.PriorityMedium})
	mustInsert(t, store, model.Task{Title: "File taxes", Status: model.StatusToDo, Priority: model.PriorityHigh})

	require.Eventually(t, func() bool {
		state := vm.UIState().Get()
		return state.Kind == UISuccess && len(state.Tasks) == 2
	}, time.Second, 5*time.Millisecond)

	vm.UpdateSearchQuery("tax")

	state := vm.UIState().Get()
	require.Equal(t, UISuccess, state.Kind)
	assert.Equal(t, []string{"File taxes"}, titles(state.Tasks))

	vm.UpdateSearchQuery("no such task")
	assert.Equal(t, UIEmpty, vm.UIState().Get().Kind)

	vm.UpdateSearchQuery("")
	assert.Len(t, vm.UIState().Get().Tasks, 2)
}

func TestFormTitleValidationIsIncremental(t *testing.T) {
	vm, _ := newTestVM(t, clock.Fixed(testNow))

	vm.UpdateFormTitle("ab")

	form := vm.FormState().Get()
	assert.Equal(t, "Title must be at least 3 characters", form.TitleError)
	assert.False(t, form.IsValid())

	vm.UpdateFormTitle("abc")
	form = vm.FormState().Get()
	assert.Empty(t, form.TitleError)
	assert.True(t, form.IsValid())
}

func TestFormDueDateValidationIsIncremental(t *testing.T) {
	vm, _ := newTestVM(t, clock.Fixed(testNow))

	past := testNow.Add(-time.Hour)
	vm.UpdateFormDueDate(&past)
	assert.Equal(t, "Due date cannot be in the past", vm.FormState().Get().DueDateError)

	future := testNow.Add(time.Hour)
	vm.UpdateFormDueDate(&future)
	assert.Empty(t, vm.FormState().Get().DueDateError)
}

func TestSaveTaskCreatesAndResetsForm(t *testing.T) {
	vm, store := newTestVM(t, clock.Fixed(testNow))

	actions, cancel := vm.Actions().Subscribe()
	defer cancel()

	vm.UpdateFormTitle("Buy milk")
	vm.UpdateFormDescription("Half a gallon")
	vm.UpdateFormPriority(model.PriorityLow)

	require.NoError(t, vm.SaveTask(context.Background()))

	action := <-actions
	assert.Equal(t, ActionTaskCreated, action.Kind)
	select {
	case extra := <-actions:
		t.Fatalf("unexpected extra action %v", extra)
	default:
	}

	// Exactly one row reached the store.
	counts, err := store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.StatusToDo])

	form := vm.FormState().Get()
	assert.Zero(t, form.ID)
	assert.Empty(t, form.Title)
	assert.Equal(t, model.PriorityMedium, form.Priority)
	assert.Equal(t, model.StatusToDo, form.Status)
}

func TestSaveTaskRejectsInvalidForm(t *testing.T) {
	vm, store := newTestVM(t, clock.Fixed(testNow))

	actions, cancel := vm.Actions().Subscribe()
	defer cancel()

	vm.UpdateFormTitle("ab")

	err := vm.SaveTask(context.Background())
	require.ErrorIs(t, err, ErrInvalidForm)

	action := <-actions
	assert.Equal(t, ActionShowError, action.Kind)
	assert.Equal(t, "Title must be at least 3 characters", action.Message)

	counts, err := store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)

	// The form keeps the rejected input.
	assert.Equal(t, "ab", vm.FormState().Get().Title)
}

func TestSaveTaskUpdatesExisting(t *testing.T) {
	vm, store := newTestVM(t, clock.Fixed(testNow))

	id := mustInsert(t, store, model.Task{Title: "Old title", Status: model.StatusToDo, Priority: model.PriorityLow})

	actions, cancel := vm.Actions().Subscribe()
	defer cancel()

	require.NoError(t, vm.LoadTaskForEditing(context.Background(), id))
	form := vm.FormState().Get()
	assert.Equal(t, id, form.ID)
	assert.Equal(t, "Old title", form.Title)

	vm.UpdateFormTitle("New title")
	vm.UpdateFormStatus(model.StatusDone)
	require.NoError(t, vm.SaveTask(context.Background()))

	action := <-actions
	assert.Equal(t, ActionTaskUpdated, action.Kind)

	got, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "New title", got.Title)
	assert.Equal(t, model.StatusDone, got.Status)

	// Form resets after a successful update.
	assert.Zero(t, vm.FormState().Get().ID)
}

func TestSaveTaskSurfacesMissingRowAsShowError(t *testing.T) {
	vm, store := newTestVM(t, clock.Fixed(testNow))

	id := mustInsert(t, store, model.Task{Title: "Doomed", Status: model.StatusToDo, Priority: model.PriorityLow})
	require.NoError(t, vm.LoadTaskForEditing(context.Background(), id))

	// The row disappears between load and save.
	require.NoError(t, store.DeleteByID(context.Background(), id))

	actions, cancel := vm.Actions().Subscribe()
	defer cancel()

	err := vm.SaveTask(context.Background())
	require.ErrorIs(t, err, db.ErrNotFound)

	action := <-actions
	assert.Equal(t, ActionShowError, action.Kind)
	assert.Contains(t, action.Message, "Failed to save task")

	// The form is kept for retry.
	assert.Equal(t, id, vm.FormState().Get().ID)
}

func TestLoadTaskForEditingMissingEmitsShowError(t *testing.T) {
	vm, _ := newTestVM(t, clock.Fixed(testNow))

	vm.UpdateFormTitle("Untouched")

	actions, cancel := vm.Actions().Subscribe()
	defer cancel()

	err := vm.LoadTaskForEditing(context.Background(), 424242)
	require.ErrorIs(t, err, db.ErrNotFound)

	action := <-actions
	assert.Equal(t, ActionShowError, action.Kind)
	assert.Contains(t, action.Message, "Failed to load task")

	// Form state is left unchanged.
	assert.Equal(t, "Untouched", vm.FormState().Get().Title)
}

func TestDeleteTaskEmitsAndUpdatesList(t *testing.T) {
	vm, store := newTestVM(t, clock.Fixed(testNow))

	id := mustInsert(t, store, model.Task{Title: "Ephemeral", Status: model.StatusToDo, Priority: model.PriorityLow})
	waitForKind(t, vm, UISuccess)

	actions, cancel := vm.Actions().Subscribe()
	defer cancel()

	require.NoError(t, vm.DeleteTask(context.Background(), id))

	action := <-actions
	assert.Equal(t, ActionTaskDeleted, action.Kind)

	waitForKind(t, vm, UIEmpty)
}

func TestActionsAreNotReplayed(t *testing.T) {
	vm, _ := newTestVM(t, clock.Fixed(testNow))

	vm.UpdateFormTitle("Buy milk")
	require.NoError(t, vm.SaveTask(context.Background()))

	// Subscribing after the save must not deliver the TaskCreated.
	actions, cancel := vm.Actions().Subscribe()
	defer cancel()

	select {
	case action := <-actions:
		t.Fatalf("unexpected replayed action %v", action)
	default:
	}
}
