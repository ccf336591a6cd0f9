package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/e-tracker/tasktrack/internal/clock"
	"github.com/e-tracker/tasktrack/internal/model"
)

// ErrNotFound is returned when a read or update targets a missing row.
var ErrNotFound = errors.New("task not found")

// Snapshot is one emission of the live task list. Err is set when the
// re-read after a mutation failed; Tasks is nil in that case.
type Snapshot struct {
	Tasks []model.Task
	Err   error
}

// Store wraps the tasks table and fans out a fresh snapshot to all
// observers after every mutation.
type Store struct {
	db     *sqlx.DB
	logger zerolog.Logger
	now    clock.Clock

	mu   sync.RWMutex
	subs map[chan Snapshot]struct{}
}

func NewStore(db *sqlx.DB, logger zerolog.Logger, now clock.Clock) *Store {
	if now == nil {
		now = clock.System
	}
	return &Store{
		db:     db,
		logger: logger,
		now:    now,
		subs:   make(map[chan Snapshot]struct{}),
	}
}

type taskRow struct {
	ID               int64         `db:"id"`
	Title            string        `db:"title"`
	Description      string        `db:"description"`
	Priority         string        `db:"priority"`
	Status           string        `db:"status"`
	DueDate          sql.NullInt64 `db:"due_date"`
	CreatedTimestamp int64         `db:"created_timestamp"`
}

const selectColumns = `id, title, description, priority, status, due_date, created_timestamp`

// ObserveAll subscribes to the live task list. The current list is
// delivered immediately, then again after every mutation. The returned
// cancel func releases the subscription and closes the channel.
func (s *Store) ObserveAll(ctx context.Context) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)

	// Registration and the initial replay happen under the lock so a
	// concurrent mutation cannot slip an older snapshot in afterwards.
	s.mu.Lock()
	tasks, err := s.list(ctx)
	ch <- Snapshot{Tasks: tasks, Err: err}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (s *Store) GetByID(ctx context.Context, id int64) (model.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT `+selectColumns+` FROM tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, ErrNotFound
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("get task: %w", err)
	}
	return mapTask(row), nil
}

// Insert persists a new task and returns the assigned id. The id field
// of the input is ignored; CreatedAt defaults to the current time when
// zero.
func (s *Store) Insert(ctx context.Context, t model.Task) (int64, error) {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO tasks (title, description, priority, status, due_date, created_timestamp)
		VALUES (:title, :description, :priority, :status, :due_date, :created_timestamp)`,
		map[string]any{
			"title":             t.Title,
			"description":       t.Description,
			"priority":          string(t.Priority),
			"status":            string(t.Status),
			"due_date":          dueDateValue(t.DueDate),
			"created_timestamp": createdAt.UnixMilli(),
		})
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("task id: %w", err)
	}

	s.logger.Debug().Int64("id", id).Str("title", t.Title).Msg("task inserted")
	s.notify(ctx)
	return id, nil
}

// Update replaces the row matching t.ID. The created timestamp is
// immutable and left untouched. A missing row fails with ErrNotFound.
func (s *Store) Update(ctx context.Context, t model.Task) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, priority = ?, status = ?, due_date = ?
		WHERE id = ?`,
		t.Title, t.Description, string(t.Priority), string(t.Status), dueDateValue(t.DueDate), t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug().Int64("id", t.ID).Msg("task updated")
	s.notify(ctx)
	return nil
}

// DeleteByID removes the row if present; deleting a missing id is a
// no-op, not an error.
func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return nil
	}

	s.logger.Debug().Int64("id", id).Msg("task deleted")
	s.notify(ctx)
	return nil
}

// ListOverdue returns unfinished tasks whose due date has passed.
func (s *Store) ListOverdue(ctx context.Context, now time.Time) ([]model.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+selectColumns+` FROM tasks
		WHERE due_date IS NOT NULL AND due_date < ? AND status != 'DONE'
		ORDER BY due_date ASC`, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list overdue tasks: %w", err)
	}
	return mapTasks(rows), nil
}

// CountByStatus returns the number of tasks per status.
func (s *Store) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[model.Status(status)] = count
	}
	return counts, rows.Err()
}

func (s *Store) list(ctx context.Context) ([]model.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+selectColumns+` FROM tasks
		ORDER BY created_timestamp DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return mapTasks(rows), nil
}

// notify re-reads the full list and fans it out. Sends never block: a
// subscriber that falls behind misses intermediate snapshots and picks
// up the next full one (latest wins).
func (s *Store) notify(ctx context.Context) {
	tasks, err := s.list(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("re-read after mutation failed")
	}
	snap := Snapshot{Tasks: tasks, Err: err}

	s.mu.RLock()
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	s.mu.RUnlock()
}

func mapTask(row taskRow) model.Task {
	task := model.Task{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Priority:    model.Priority(row.Priority),
		Status:      model.Status(row.Status),
		CreatedAt:   time.UnixMilli(row.CreatedTimestamp),
	}
	if row.DueDate.Valid {
		due := time.UnixMilli(row.DueDate.Int64)
		task.DueDate = &due
	}
	return task
}

func mapTasks(rows []taskRow) []model.Task {
	result := make([]model.Task, 0, len(rows))
	for _, row := range rows {
		result = append(result, mapTask(row))
	}
	return result
}

func dueDateValue(due *time.Time) any {
	if due == nil {
		return nil
	}
	return due.UnixMilli()
}
