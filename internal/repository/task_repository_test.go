package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
	"crm-planner/internal/recurrence"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := open(":memory:", logger.Silent)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedRoot(t *testing.T, repo *TaskRepository) *model.Task {
	t.Helper()
	assignee := uint(1)
	completedAt := time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)
	root := &model.Task{
		AssigneeID:               &assignee,
		Title:                    "Call supplier",
		Status:                   model.StatusDone,
		CompletedAt:              &completedAt,
		DueDate:                  date.MustParse("2025-01-01"),
		IsRecurring:              true,
		RecurringPattern:         model.PatternWeekly,
		RecurringInterval:        2,
		RecurringEndType:         model.EndNever,
		RecurringOccurrenceCount: 1,
	}
	require.NoError(t, repo.Create(context.Background(), root))
	require.NotZero(t, root.ID)
	return root
}

func TestTaskRepository_DateRoundTrip(t *testing.T) {
	repo := NewTaskRepository(setupTestDB(t))
	root := seedRoot(t, repo)

	found, err := repo.FindByID(context.Background(), 1, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", found.DueDate.String())
	assert.True(t, found.RecurringEndDate.IsZero())
	assert.Equal(t, model.PatternWeekly, found.RecurringPattern)
}

func TestTaskRepository_FindDuplicateAndCount(t *testing.T) {
	repo := NewTaskRepository(setupTestDB(t))
	ctx := context.Background()
	root := seedRoot(t, repo)

	dup, err := repo.FindDuplicate(ctx, root.ID, date.MustParse("2025-01-15"))
	require.NoError(t, err)
	assert.False(t, dup.IsPresent())

	count, err := repo.CountSiblings(ctx, root.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	seriesID := root.ID
	child := &model.Task{Title: root.Title, DueDate: date.MustParse("2025-01-15"), IsRecurring: true, ParentRecurringTaskID: &seriesID}
	id, err := repo.Insert(ctx, child)
	require.NoError(t, err)
	assert.Equal(t, child.ID, id)

	dup, err = repo.FindDuplicate(ctx, root.ID, date.MustParse("2025-01-15"))
	require.NoError(t, err)
	require.True(t, dup.IsPresent())
	assert.Equal(t, id, dup.MustGet().ID)

	count, err = repo.CountSiblings(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestTaskRepository_InsertConflict(t *testing.T) {
	repo := NewTaskRepository(setupTestDB(t))
	ctx := context.Background()
	root := seedRoot(t, repo)

	seriesID := root.ID
	first := &model.Task{DueDate: date.MustParse("2025-01-15"), IsRecurring: true, ParentRecurringTaskID: &seriesID}
	_, err := repo.Insert(ctx, first)
	require.NoError(t, err)

	second := &model.Task{DueDate: date.MustParse("2025-01-15"), IsRecurring: true, ParentRecurringTaskID: &seriesID}
	_, err = repo.Insert(ctx, second)
	assert.ErrorIs(t, err, recurrence.ErrDuplicateInstance)

	// Non-recurring tasks share the NULL series and never conflict.
	for i := 0; i < 2; i++ {
		require.NoError(t, repo.Create(ctx, &model.Task{Title: "one-off", DueDate: date.MustParse("2025-01-15")}))
	}
}

func TestTaskRepository_FactoryEndToEnd(t *testing.T) {
	repo := NewTaskRepository(setupTestDB(t))
	ctx := context.Background()
	root := seedRoot(t, repo)

	factory := recurrence.NewFactory(repo)
	first, err := factory.CreateNext(ctx, *root)
	require.NoError(t, err)
	require.True(t, first.IsPresent())

	second, err := factory.CreateNext(ctx, *root)
	require.NoError(t, err)
	assert.False(t, second.IsPresent())

	created, err := repo.FindByID(ctx, 1, first.MustGet())
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15", created.DueDate.String())
	assert.Equal(t, model.StatusToDo, created.Status)
	assert.Equal(t, 2, created.RecurringOccurrenceCount)
	require.NotNil(t, created.ParentRecurringTaskID)
	assert.Equal(t, root.ID, *created.ParentRecurringTaskID)
}

func TestTaskRepository_ListsAndComplete(t *testing.T) {
	repo := NewTaskRepository(setupTestDB(t))
	ctx := context.Background()
	root := seedRoot(t, repo)

	assignee := uint(1)
	open := &model.Task{AssigneeID: &assignee, Title: "Draft proposal", Status: model.StatusToDo, DueDate: date.MustParse("2025-02-01")}
	require.NoError(t, repo.Create(ctx, open))

	tasks, err := repo.ListOpen(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	recurring, err := repo.ListRecurring(ctx)
	require.NoError(t, err)
	require.Len(t, recurring, 1)
	assert.Equal(t, root.ID, recurring[0].ID)

	require.NoError(t, repo.MarkCompleted(ctx, open, time.Now(), "done early"))
	tasks, err = repo.ListOpen(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	all, err := repo.ListByAssignee(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repo.Delete(ctx, 1, open.ID))
	_, err = repo.FindByID(ctx, 1, open.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
