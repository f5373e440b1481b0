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
)

func seedSeries(t *testing.T, env *testEnv, due string, status model.TaskStatus, endAfter int) *model.Task {
	t.Helper()
	assignee := env.user.ID
	task := &model.Task{
		AssigneeID:               &assignee,
		Title:                    "Check pipeline " + due,
		Status:                   status,
		DueDate:                  date.MustParse(due),
		IsRecurring:              true,
		RecurringPattern:         model.PatternWeekly,
		RecurringInterval:        1,
		RecurringEndType:         model.EndNever,
		RecurringOccurrenceCount: 1,
	}
	if endAfter > 0 {
		task.RecurringEndType = model.EndAfterCount
		task.RecurringEndAfter = endAfter
	}
	if status == model.StatusDone {
		completedAt := fixedNow.Add(-24 * time.Hour)
		task.CompletedAt = &completedAt
	}
	require.NoError(t, env.tasks.Create(context.Background(), task))
	return task
}

func newTestJob(env *testEnv, advanceOverdue bool) *RecurrenceJob {
	job := NewRecurrenceJob(env.tasks, env.advancer, 3, advanceOverdue, time.UTC)
	job.now = func() time.Time { return fixedNow }
	return job
}

func TestRecurrenceJobRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seedSeries(t, env, "2025-01-01", model.StatusDone, 0)
	seedSeries(t, env, "2025-01-06", model.StatusToDo, 0)
	seedSeries(t, env, "2025-01-20", model.StatusToDo, 0)
	seedSeries(t, env, "2025-01-02", model.StatusDone, 1)

	report, err := newTestJob(env, true).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, JobReport{Scanned: 4, Created: 2, Skipped: 2}, report)

	recurring, err := env.tasks.ListRecurring(ctx)
	require.NoError(t, err)
	var dues []string
	for _, task := range recurring[4:] {
		dues = append(dues, task.DueDate.String())
	}
	assert.ElementsMatch(t, []string{"2025-01-08", "2025-01-13"}, dues)
}

func TestRecurrenceJobIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seedSeries(t, env, "2025-01-08", model.StatusDone, 0)
	job := newTestJob(env, false)

	first, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, JobReport{Scanned: 2, Duplicates: 1, Skipped: 1}, second)
}

func TestRecurrenceJobWithoutOverdue(t *testing.T) {
	env := newTestEnv(t)

	seedSeries(t, env, "2025-01-06", model.StatusToDo, 0)

	report, err := newTestJob(env, false).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, JobReport{Scanned: 1, Skipped: 1}, report)
}

type brokenLister struct{}

func (brokenLister) ListRecurring(context.Context) ([]model.Task, error) {
	return nil, errors.New("database is locked")
}

func TestRecurrenceJobListFailure(t *testing.T) {
	env := newTestEnv(t)
	job := NewRecurrenceJob(brokenLister{}, env.advancer, 0, true, nil)

	_, err := job.Run(context.Background())
	assert.ErrorContains(t, err, "list recurring tasks")
}

func TestJobReportString(t *testing.T) {
	r := JobReport{Scanned: 5, Created: 2, Duplicates: 1, Skipped: 1, Failed: 1}
	assert.Equal(t, "scanned=5 created=2 duplicates=1 skipped=1 failed=1", r.String())
}
