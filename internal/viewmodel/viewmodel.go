// Package viewmodel is the stateful orchestrator between storage and
// any UI. It combines the live task list with the current search,
// filter and sort criteria into a derived UI state, owns the transient
// form-edit buffer, and funnels all mutations through the repository.
package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/e-tracker/tasktrack/internal/clock"
	"github.com/e-tracker/tasktrack/internal/db"
	"github.com/e-tracker/tasktrack/internal/model"
	"github.com/e-tracker/tasktrack/internal/reactive"
	"github.com/e-tracker/tasktrack/internal/validation"
)

// ErrInvalidForm marks save failures caused by form validation rather
// than storage.
var ErrInvalidForm = errors.New("invalid task data")

type UIStateKind string

const (
	UILoading UIStateKind = "loading"
	UIEmpty   UIStateKind = "empty"
	UIError   UIStateKind = "error"
	UISuccess UIStateKind = "success"
)

// UIState is the derived list state. Tasks is set for UISuccess,
// Message for UIError.
type UIState struct {
	Kind    UIStateKind
	Message string
	Tasks   []model.Task
}

// FormState is the transient edit buffer. ID 0 means "creating new",
// ID > 0 means "editing that record". Field errors are refreshed on
// every field update, not only at save time.
type FormState struct {
	ID               int64
	Title            string
	Description      string
	Priority         model.Priority
	Status           model.Status
	DueDate          *time.Time
	TitleError       string
	DescriptionError string
	DueDateError     string
}

func (f FormState) IsValid() bool {
	return f.TitleError == "" && f.DescriptionError == "" && f.DueDateError == "" &&
		strings.TrimSpace(f.Title) != ""
}

func emptyForm() FormState {
	return FormState{Priority: model.PriorityMedium, Status: model.StatusToDo}
}

type ActionKind string

const (
	ActionTaskCreated ActionKind = "task_created"
	ActionTaskUpdated ActionKind = "task_updated"
	ActionTaskDeleted ActionKind = "task_deleted"
	ActionShowError   ActionKind = "show_error"
)

// Action is a one-shot notification delivered to active observers only.
type Action struct {
	Kind    ActionKind
	Message string
}

// Repository is the slice of the repository surface the view-model
// consumes.
type Repository interface {
	ObserveAll(ctx context.Context) (<-chan db.Snapshot, func())
	GetByID(ctx context.Context, id int64) (model.Task, error)
	Insert(ctx context.Context, t model.Task) (int64, error)
	Update(ctx context.Context, t model.Task) error
	DeleteByID(ctx context.Context, id int64) error
}

type TaskViewModel struct {
	repo   Repository
	logger zerolog.Logger
	now    clock.Clock

	mu       sync.Mutex
	criteria model.Criteria
	tasks    []model.Task
	loaded   bool

	uiState   *reactive.State[UIState]
	formState *reactive.State[FormState]
	actions   *reactive.Stream[Action]

	cancelObserve func()
	done          chan struct{}
}

func New(repo Repository, logger zerolog.Logger, now clock.Clock) *TaskViewModel {
	if now == nil {
		now = clock.System
	}
	return &TaskViewModel{
		repo:      repo,
		logger:    logger,
		now:       now,
		criteria:  model.DefaultCriteria(),
		uiState:   reactive.NewState(UIState{Kind: UILoading}),
		formState: reactive.NewState(emptyForm()),
		actions:   reactive.NewStream[Action](),
	}
}

// Start subscribes to the repository's live query. The UI state stays
// Loading until the first snapshot arrives.
func (vm *TaskViewModel) Start(ctx context.Context) {
	snapshots, cancel := vm.repo.ObserveAll(ctx)
	vm.cancelObserve = cancel
	vm.done = make(chan struct{})

	go func() {
		defer close(vm.done)
		for snap := range snapshots {
			vm.onSnapshot(snap)
		}
	}()
}

// Close releases the storage subscription and waits for the pipeline
// goroutine to drain.
func (vm *TaskViewModel) Close() {
	if vm.cancelObserve != nil {
		vm.cancelObserve()
		<-vm.done
	}
}

func (vm *TaskViewModel) UIState() *reactive.State[UIState]     { return vm.uiState }
func (vm *TaskViewModel) FormState() *reactive.State[FormState] { return vm.formState }
func (vm *TaskViewModel) Actions() *reactive.Stream[Action]     { return vm.actions }

func (vm *TaskViewModel) onSnapshot(snap db.Snapshot) {
	if snap.Err != nil {
		vm.logger.Error().Err(snap.Err).Msg("task list read failed")
		vm.uiState.Set(UIState{Kind: UIError, Message: fmt.Sprintf("Failed to load tasks: %v", snap.Err)})
		return
	}

	vm.mu.Lock()
	vm.tasks = snap.Tasks
	vm.loaded = true
	state := vm.deriveLocked()
	vm.mu.Unlock()

	vm.uiState.Set(state)
}

// deriveLocked recomputes the displayed list from the cached full list
// and the current criteria. Callers hold vm.mu.
func (vm *TaskViewModel) deriveLocked() UIState {
	derived := Derive(vm.tasks, vm.criteria)
	if len(derived) == 0 {
		return UIState{Kind: UIEmpty}
	}
	return UIState{Kind: UISuccess, Tasks: derived}
}

func (vm *TaskViewModel) republish() {
	vm.mu.Lock()
	if !vm.loaded {
		vm.mu.Unlock()
		return
	}
	state := vm.deriveLocked()
	vm.mu.Unlock()
	vm.uiState.Set(state)
}

// Derive applies search, filters and sort to a task list. Filters
// compose as a conjunction; the sort is stable so ties keep the
// relative order of the previous step's output.
func Derive(tasks []model.Task, criteria model.Criteria) []model.Task {
	result := make([]model.Task, 0, len(tasks))
	// A blank query disables the search; a non-blank one matches the
	// raw text, whitespace included.
	search := strings.ToLower(criteria.Search)
	searching := strings.TrimSpace(search) != ""
	for _, task := range tasks {
		if searching && !strings.Contains(strings.ToLower(task.Title), search) {
			continue
		}
		if criteria.Status != nil && task.Status != *criteria.Status {
			continue
		}
		if criteria.Priority != nil && task.Priority != *criteria.Priority {
			continue
		}
		result = append(result, task)
	}

	less := lessFunc(criteria.Sort)
	if less != nil {
		sort.SliceStable(result, func(i, j int) bool { return less(result[i], result[j]) })
	}
	return result
}

func lessFunc(order model.SortOrder) func(a, b model.Task) bool {
	switch order {
	case model.SortPriorityAsc:
		return func(a, b model.Task) bool { return a.Priority.Rank() < b.Priority.Rank() }
	case model.SortPriorityDesc:
		return func(a, b model.Task) bool { return a.Priority.Rank() > b.Priority.Rank() }
	case model.SortDueDateAsc:
		// Absent due dates sort last.
		return func(a, b model.Task) bool { return dueMillisOr(a, maxMillis) < dueMillisOr(b, maxMillis) }
	case model.SortDueDateDesc:
		// Absent due dates sort first, ahead of every dated task.
		return func(a, b model.Task) bool {
			if (a.DueDate == nil) != (b.DueDate == nil) {
				return a.DueDate == nil
			}
			if a.DueDate == nil {
				return false
			}
			return a.DueDate.UnixMilli() > b.DueDate.UnixMilli()
		}
	case model.SortStatus:
		return func(a, b model.Task) bool { return a.Status.Rank() < b.Status.Rank() }
	case model.SortCreatedDateAsc:
		return func(a, b model.Task) bool { return a.CreatedAt.UnixMilli() < b.CreatedAt.UnixMilli() }
	case model.SortCreatedDateDesc:
		return func(a, b model.Task) bool { return a.CreatedAt.UnixMilli() > b.CreatedAt.UnixMilli() }
	default:
		return nil
	}
}

const maxMillis = int64(1<<63 - 1)

func dueMillisOr(t model.Task, absent int64) int64 {
	if t.DueDate == nil {
		return absent
	}
	return t.DueDate.UnixMilli()
}

// Criteria setters. Each one triggers a synchronous re-derivation over
// the cached list.

func (vm *TaskViewModel) UpdateSearchQuery(query string) {
	vm.mu.Lock()
	vm.criteria.Search = query
	vm.mu.Unlock()
	vm.republish()
}

func (vm *TaskViewModel) UpdateFilterStatus(status *model.Status) {
	vm.mu.Lock()
	vm.criteria.Status = status
	vm.mu.Unlock()
	vm.republish()
}

func (vm *TaskViewModel) UpdateFilterPriority(priority *model.Priority) {
	vm.mu.Lock()
	vm.criteria.Priority = priority
	vm.mu.Unlock()
	vm.republish()
}

func (vm *TaskViewModel) UpdateSortOrder(order model.SortOrder) {
	vm.mu.Lock()
	vm.criteria.Sort = order
	vm.mu.Unlock()
	vm.republish()
}

func (vm *TaskViewModel) Criteria() model.Criteria {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.criteria
}

// Form operations. Field updates re-run the matching single-field check
// and store the error message next to the new value.

func (vm *TaskViewModel) UpdateFormTitle(title string) {
	form := vm.formState.Get()
	form.Title = title
	form.TitleError = validation.Title(title).Message
	vm.formState.Set(form)
}

func (vm *TaskViewModel) UpdateFormDescription(description string) {
	form := vm.formState.Get()
	form.Description = description
	form.DescriptionError = validation.Description(description).Message
	vm.formState.Set(form)
}

func (vm *TaskViewModel) UpdateFormDueDate(due *time.Time) {
	form := vm.formState.Get()
	form.DueDate = due
	form.DueDateError = validation.DueDate(due, vm.now()).Message
	vm.formState.Set(form)
}

// Enum fields need no validation.

func (vm *TaskViewModel) UpdateFormPriority(priority model.Priority) {
	form := vm.formState.Get()
	form.Priority = priority
	vm.formState.Set(form)
}

func (vm *TaskViewModel) UpdateFormStatus(status model.Status) {
	form := vm.formState.Get()
	form.Status = status
	vm.formState.Set(form)
}

// LoadTaskForEditing replaces the form wholesale with the stored task's
// fields. On failure the form is left untouched and a ShowError action
// is emitted.
func (vm *TaskViewModel) LoadTaskForEditing(ctx context.Context, id int64) error {
	task, err := vm.repo.GetByID(ctx, id)
	if err != nil {
		vm.emitError(fmt.Sprintf("Failed to load task: %v", err))
		return err
	}

	vm.formState.Set(FormState{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Priority:    task.Priority,
		Status:      task.Status,
		DueDate:     task.DueDate,
	})
	return nil
}

func (vm *TaskViewModel) ResetForm() {
	vm.formState.Set(emptyForm())
}

// SaveTask validates the whole form and performs the insert or update.
// The form resets only after the mutation succeeds.
func (vm *TaskViewModel) SaveTask(ctx context.Context) error {
	form := vm.formState.Get()

	result := validation.Task(form.Title, form.Description, form.DueDate, vm.now())
	if !result.Valid {
		message := result.Message
		if message == "" {
			message = "Invalid task data"
		}
		vm.emitError(message)
		return fmt.Errorf("%w: %s", ErrInvalidForm, message)
	}

	task := model.Task{
		ID:          form.ID,
		Title:       form.Title,
		Description: form.Description,
		Priority:    form.Priority,
		Status:      form.Status,
		DueDate:     form.DueDate,
	}

	if form.ID > 0 {
		if err := vm.repo.Update(ctx, task); err != nil {
			vm.emitError(fmt.Sprintf("Failed to save task: %v", err))
			return err
		}
		vm.actions.Emit(Action{Kind: ActionTaskUpdated})
	} else {
		if _, err := vm.repo.Insert(ctx, task); err != nil {
			vm.emitError(fmt.Sprintf("Failed to save task: %v", err))
			return err
		}
		vm.actions.Emit(Action{Kind: ActionTaskCreated})
	}

	vm.ResetForm()
	return nil
}

func (vm *TaskViewModel) DeleteTask(ctx context.Context, id int64) error {
	if err := vm.repo.DeleteByID(ctx, id); err != nil {
		vm.emitError(fmt.Sprintf("Failed to delete task: %v", err))
		return err
	}
	vm.actions.Emit(Action{Kind: ActionTaskDeleted})
	return nil
}

func (vm *TaskViewModel) emitError(message string) {
	vm.logger.Warn().Str("message", message).Msg("action error")
	vm.actions.Emit(Action{Kind: ActionShowError, Message: message})
}
