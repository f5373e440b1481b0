package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"
	"gorm.io/gorm"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
	"crm-planner/internal/recurrence"
)

// TaskRepository handles CRUD for tasks and is the recurrence.TaskStore
// of the application.
type TaskRepository struct {
	db *gorm.DB
}

var _ recurrence.TaskStore = (*TaskRepository)(nil)

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// Insert creates a generated series instance. A second instance for the
// same series and due date violates idx_series_due.
func (r *TaskRepository) Insert(ctx context.Context, task *model.Task) (uint, error) {
	err := r.db.WithContext(ctx).Create(task).Error
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return 0, fmt.Errorf("insert task: %w", recurrence.ErrDuplicateInstance)
	case err != nil:
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return task.ID, nil
}

func (r *TaskRepository) FindDuplicate(ctx context.Context, seriesID uint, due date.Date) (mo.Option[model.Task], error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Where("parent_recurring_task_id = ? AND due_date = ?", seriesID, due).
		First(&task).Error
	switch {
	case err == nil:
		return mo.Some(task), nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return mo.None[model.Task](), nil
	default:
		return mo.None[model.Task](), fmt.Errorf("find duplicate: %w", err)
	}
}

func (r *TaskRepository) CountSiblings(ctx context.Context, seriesID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("parent_recurring_task_id = ?", seriesID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count siblings: %w", err)
	}
	return count, nil
}

// ListOpen returns the assignee's unfinished tasks plus every recurring
// task, ordered by due date.
func (r *TaskRepository) ListOpen(ctx context.Context, assigneeID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("assignee_id = ? AND (status <> ? OR is_recurring = ?)", assigneeID, model.StatusDone, true).
		Order("due_date NULLS LAST, created_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListByAssignee returns every task of the assignee.
func (r *TaskRepository) ListByAssignee(ctx context.Context, assigneeID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("assignee_id = ?", assigneeID).
		Order("due_date NULLS LAST, id").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListRecurring returns all recurring tasks for the batch advancement job.
func (r *TaskRepository) ListRecurring(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("is_recurring = ?", true).
		Order("id").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, assigneeID, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("assignee_id = ? AND id = ?", assigneeID, taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) MarkCompleted(ctx context.Context, task *model.Task, completedAt time.Time, comment string) error {
	task.Status = model.StatusDone
	task.ProgressPercent = 100
	task.CompletedAt = &completedAt
	task.CompletionComment = comment
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

// Delete removes a task for the given assignee. Generated instances of a
// deleted root keep their series id.
func (r *TaskRepository) Delete(ctx context.Context, assigneeID, taskID uint) error {
	if err := r.db.WithContext(ctx).Where("assignee_id = ? AND id = ?", assigneeID, taskID).
		Delete(&model.Task{}).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
