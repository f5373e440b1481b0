package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
	"crm-planner/internal/recurrence"
	"crm-planner/internal/repository"
)

var fixedNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	tasks    *repository.TaskRepository
	projects *repository.ProjectRepository
	advancer *Advancer
	svc      *TaskService
	user     *model.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := repository.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	taskRepo := repository.NewTaskRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	user, err := repository.NewUserRepository(db).UpsertFromTelegram(context.Background(), 42, "Ada", "Lovelace", "ada")
	require.NoError(t, err)

	factory := recurrence.NewFactory(taskRepo,
		recurrence.WithLocker(&recurrence.KeyedMutex{}),
		recurrence.WithClock(func() time.Time { return fixedNow }, time.UTC),
	)
	advancer := NewAdvancer(factory, recurrence.NewGate(taskRepo))

	return &testEnv{
		tasks:    taskRepo,
		projects: projectRepo,
		advancer: advancer,
		svc:      NewTaskService(taskRepo, projectRepo, advancer, time.UTC),
		user:     user,
	}
}

func biweekly(due string) TaskInput {
	return TaskInput{
		Title:       "Call supplier",
		Project:     "Procurement",
		DueDate:     date.MustParse(due),
		IsRecurring: true,
		Pattern:     model.PatternWeekly,
		Interval:    2,
	}
}

func TestCreateTaskRecurringDefaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, err := env.svc.CreateTask(ctx, env.user, biweekly("2025-01-01"))
	require.NoError(t, err)

	assert.NotZero(t, task.ID)
	assert.Equal(t, model.PriorityMedium, task.Priority)
	assert.Equal(t, model.StatusToDo, task.Status)
	assert.Equal(t, model.EndNever, task.RecurringEndType)
	assert.Equal(t, 1, task.RecurringOccurrenceCount)
	assert.Nil(t, task.ParentRecurringTaskID)
	require.NotNil(t, task.ProjectID)

	names, err := env.projects.Names(ctx, env.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Procurement", names[*task.ProjectID])
}

func TestCreateTaskKeepsWeekdaySelection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Monday 2025-01-06, repeating Mon, Wed and Fri.
	input := TaskInput{
		Title:       "Pipeline review",
		DueDate:     date.MustParse("2025-01-06"),
		IsRecurring: true,
		Pattern:     model.PatternDaily,
		Interval:    1,
		Weekdays:    model.NewWeekdaySet(time.Monday, time.Wednesday, time.Friday),
	}
	task, err := env.svc.CreateTask(ctx, env.user, input)
	require.NoError(t, err)

	stored, err := env.svc.GetTask(ctx, env.user, task.ID)
	require.NoError(t, err)
	assert.Equal(t, input.Weekdays, stored.SelectedWeekDays)

	got, err := env.svc.Occurrences(ctx, env.user, task.ID, date.MustParse("2025-01-06"), date.MustParse("2025-01-12"))
	require.NoError(t, err)
	assert.Equal(t, []date.Date{
		date.MustParse("2025-01-06"),
		date.MustParse("2025-01-08"),
		date.MustParse("2025-01-10"),
	}, got)

	completion, err := env.svc.CompleteTask(ctx, env.user, task.ID, fixedNow, "")
	require.NoError(t, err)
	next, err := env.svc.GetTask(ctx, env.user, completion.NextInstance.MustGet())
	require.NoError(t, err)
	assert.Equal(t, input.Weekdays, next.SelectedWeekDays)
}

func TestCreateTaskRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateTask(ctx, env.user, TaskInput{Title: "  ", DueDate: date.MustParse("2025-01-01")})
	assert.Error(t, err)

	_, err = env.svc.CreateTask(ctx, env.user, TaskInput{Title: "No date"})
	assert.Error(t, err)

	input := biweekly("2025-01-01")
	input.Interval = 0
	_, err = env.svc.CreateTask(ctx, env.user, input)
	assert.ErrorIs(t, err, recurrence.ErrInvalidConfig)

	input = biweekly("2025-01-01")
	input.EndType = model.EndDate
	_, err = env.svc.CreateTask(ctx, env.user, input)
	assert.ErrorIs(t, err, recurrence.ErrInvalidConfig)
}

func TestCompleteTaskCreatesNextInstance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root, err := env.svc.CreateTask(ctx, env.user, biweekly("2025-01-01"))
	require.NoError(t, err)

	result, err := env.svc.CompleteTask(ctx, env.user, root.ID, fixedNow, " called ")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, result.Task.Status)
	assert.Equal(t, 100, result.Task.ProgressPercent)
	assert.Equal(t, "called", result.Task.CompletionComment)

	nextID, ok := result.NextInstance.Get()
	require.True(t, ok)

	next, err := env.svc.GetTask(ctx, env.user, nextID)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15", next.DueDate.String())
	assert.Equal(t, "2025-01-10", next.AssignedDate.String())
	assert.Equal(t, model.StatusToDo, next.Status)
	assert.Equal(t, root.ProjectID, next.ProjectID)
	assert.Equal(t, 2, next.RecurringOccurrenceCount)
	require.NotNil(t, next.ParentRecurringTaskID)
	assert.Equal(t, root.ID, *next.ParentRecurringTaskID)

	_, err = env.svc.CompleteTask(ctx, env.user, root.ID, fixedNow, "")
	assert.ErrorIs(t, err, ErrAlreadyDone)
}

func TestCompleteTaskOneOff(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, err := env.svc.CreateTask(ctx, env.user, TaskInput{Title: "Send invoice", DueDate: date.MustParse("2025-01-09")})
	require.NoError(t, err)

	result, err := env.svc.CompleteTask(ctx, env.user, task.ID, fixedNow, "")
	require.NoError(t, err)
	assert.True(t, result.NextInstance.IsAbsent())

	open, err := env.svc.ListActive(ctx, env.user)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestCompleteTaskStopsAfterOccurrenceLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	input := biweekly("2025-01-01")
	input.EndType = model.EndAfterCount
	input.EndAfter = 2
	root, err := env.svc.CreateTask(ctx, env.user, input)
	require.NoError(t, err)

	first, err := env.svc.CompleteTask(ctx, env.user, root.ID, fixedNow, "")
	require.NoError(t, err)
	secondID, ok := first.NextInstance.Get()
	require.True(t, ok)

	second, err := env.svc.CompleteTask(ctx, env.user, secondID, fixedNow, "")
	require.NoError(t, err)
	assert.True(t, second.NextInstance.IsAbsent())

	count, err := env.tasks.CountSiblings(ctx, root.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

type failingInsertStore struct {
	*repository.TaskRepository
}

func (failingInsertStore) Insert(context.Context, *model.Task) (uint, error) {
	return 0, errors.New("disk full")
}

func TestCompleteTaskKeepsCompletionWhenAdvanceFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	advancer := NewAdvancer(recurrence.NewFactory(failingInsertStore{env.tasks}), nil)
	svc := NewTaskService(env.tasks, env.projects, advancer, time.UTC)

	root, err := svc.CreateTask(ctx, env.user, biweekly("2025-01-01"))
	require.NoError(t, err)

	result, err := svc.CompleteTask(ctx, env.user, root.ID, fixedNow, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAdvanceFailed)
	assert.ErrorIs(t, err, recurrence.ErrPersistence)
	require.NotNil(t, result)
	assert.True(t, result.NextInstance.IsAbsent())

	stored, err := svc.GetTask(ctx, env.user, root.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDone, stored.Status)
}

func TestOccurrences(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root, err := env.svc.CreateTask(ctx, env.user, biweekly("2025-01-01"))
	require.NoError(t, err)

	got, err := env.svc.Occurrences(ctx, env.user, root.ID, date.MustParse("2025-01-01"), date.MustParse("2025-01-31"))
	require.NoError(t, err)
	assert.Equal(t, []date.Date{
		date.MustParse("2025-01-01"),
		date.MustParse("2025-01-15"),
		date.MustParse("2025-01-29"),
	}, got)
}

func TestRangeValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		from, to date.Date
		wantErr  bool
	}{
		{"single day", date.MustParse("2025-01-01"), date.MustParse("2025-01-01"), false},
		{"full leap year", date.MustParse("2024-01-01"), date.MustParse("2024-12-31"), false},
		{"reversed", date.MustParse("2025-02-01"), date.MustParse("2025-01-01"), true},
		{"too long", date.MustParse("2025-01-01"), date.MustParse("2026-01-02"), true},
		{"missing end", date.MustParse("2025-01-01"), date.Date{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Calendar(ctx, env.user, tt.from, tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRange)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCalendarMergesSeries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	root, err := env.svc.CreateTask(ctx, env.user, biweekly("2025-01-01"))
	require.NoError(t, err)
	result, err := env.svc.CompleteTask(ctx, env.user, root.ID, fixedNow, "")
	require.NoError(t, err)
	childID := result.NextInstance.MustGet()

	oneOff, err := env.svc.CreateTask(ctx, env.user, TaskInput{Title: "Quarterly review", DueDate: date.MustParse("2025-01-20")})
	require.NoError(t, err)

	entries, err := env.svc.Calendar(ctx, env.user, date.MustParse("2025-01-01"), date.MustParse("2025-01-31"))
	require.NoError(t, err)
	require.Len(t, entries, 4)

	type row struct {
		day     string
		id      uint
		virtual bool
	}
	var got []row
	for _, e := range entries {
		got = append(got, row{e.Date.String(), e.Task.ID, e.Virtual})
	}
	assert.Equal(t, []row{
		{"2025-01-01", root.ID, false},
		{"2025-01-15", childID, false},
		{"2025-01-20", oneOff.ID, false},
		{"2025-01-29", root.ID, true},
	}, got)
}

func TestLayoutCalendarKeepsOffRuleInstances(t *testing.T) {
	rootID := uint(1)
	root := model.Task{
		ID:                1,
		DueDate:           date.MustParse("2025-03-03"),
		IsRecurring:       true,
		RecurringPattern:  model.PatternWeekly,
		RecurringInterval: 1,
	}
	moved := root
	moved.ID = 2
	moved.ParentRecurringTaskID = &rootID
	moved.DueDate = date.MustParse("2025-03-12")

	entries := layoutCalendar([]model.Task{moved, root}, date.MustParse("2025-03-01"), date.MustParse("2025-03-14"))
	require.Len(t, entries, 3)
	assert.Equal(t, "2025-03-03", entries[0].Date.String())
	assert.Equal(t, "2025-03-10", entries[1].Date.String())
	assert.True(t, entries[1].Virtual)
	assert.Equal(t, "2025-03-12", entries[2].Date.String())
	assert.Equal(t, uint(2), entries[2].Task.ID)
}

func TestDeleteTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, err := env.svc.CreateTask(ctx, env.user, TaskInput{Title: "Old lead", DueDate: date.MustParse("2025-01-02")})
	require.NoError(t, err)
	require.NoError(t, env.svc.DeleteTask(ctx, env.user, task.ID))

	_, err = env.svc.GetTask(ctx, env.user, task.ID)
	assert.Error(t, err)
}
