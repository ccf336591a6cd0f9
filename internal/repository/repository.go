// Package repository is the seam between the view-model and storage.
// It adds no logic of its own: every method is an identity passthrough
// with the store's exact contract, so the backend can be substituted in
// tests.
package repository

import (
	"context"
	"time"

	"github.com/e-tracker/tasktrack/internal/db"
	"github.com/e-tracker/tasktrack/internal/model"
)

// TaskStore is the storage contract consumed by the view-model.
// *db.Store satisfies it.
type TaskStore interface {
	ObserveAll(ctx context.Context) (<-chan db.Snapshot, func())
	GetByID(ctx context.Context, id int64) (model.Task, error)
	Insert(ctx context.Context, t model.Task) (int64, error)
	Update(ctx context.Context, t model.Task) error
	DeleteByID(ctx context.Context, id int64) error
	ListOverdue(ctx context.Context, now time.Time) ([]model.Task, error)
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
}

type TaskRepository struct {
	store TaskStore
}

func New(store TaskStore) *TaskRepository {
	return &TaskRepository{store: store}
}

func (r *TaskRepository) ObserveAll(ctx context.Context) (<-chan db.Snapshot, func()) {
	return r.store.ObserveAll(ctx)
}

func (r *TaskRepository) GetByID(ctx context.Context, id int64) (model.Task, error) {
	return r.store.GetByID(ctx, id)
}

func (r *TaskRepository) Insert(ctx context.Context, t model.Task) (int64, error) {
	return r.store.Insert(ctx, t)
}

func (r *TaskRepository) Update(ctx context.Context, t model.Task) error {
	return r.store.Update(ctx, t)
}

func (r *TaskRepository) DeleteByID(ctx context.Context, id int64) error {
	return r.store.DeleteByID(ctx, id)
}

func (r *TaskRepository) ListOverdue(ctx context.Context, now time.Time) ([]model.Task, error) {
	return r.store.ListOverdue(ctx, now)
}

func (r *TaskRepository) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	return r.store.CountByStatus(ctx)
}
