package recurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/mo"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
)

// Factory creates the next instance of a recurring series.
type Factory struct {
	store  TaskStore
	locker SeriesLocker
	now    func() time.Time
	loc    *time.Location
}

// FactoryOption customizes a Factory.
type FactoryOption func(*Factory)

// WithLocker serializes CreateNext per series through l.
func WithLocker(l SeriesLocker) FactoryOption {
	return func(f *Factory) {
		f.locker = l
	}
}

// WithClock sets the clock and zone used for the assigned date.
func WithClock(now func() time.Time, loc *time.Location) FactoryOption {
	return func(f *Factory) {
		if now != nil {
			f.now = now
		}
		if loc != nil {
			f.loc = loc
		}
	}
}

func NewFactory(store TaskStore, opts ...FactoryOption) *Factory {
	f := &Factory{
		store: store,
		now:   time.Now,
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateNext persists the instance that follows task and returns its ID.
// It returns mo.None when the series already has an instance on the next
// due date. Store failures come back as *PersistenceError and are not
// retried.
//
// Without a locker, two concurrent calls for one series can both pass the
// duplicate lookup; the store's unique index on (series, due date) then
// rejects the second insert and CreateNext reports it as a duplicate.
func (f *Factory) CreateNext(ctx context.Context, task model.Task) (mo.Option[uint], error) {
	if !task.IsRecurring {
		return mo.None[uint](), fmt.Errorf("%w: task %d is not recurring", ErrInvalidConfig, task.ID)
	}
	if err := Validate(task); err != nil {
		return mo.None[uint](), err
	}
	seriesID := RoleOf(task).SeriesID()
	if seriesID == 0 {
		return mo.None[uint](), fmt.Errorf("%w: task has no series id", ErrInvalidConfig)
	}

	if f.locker != nil {
		unlock, err := f.locker.LockSeries(ctx, seriesID)
		if err != nil {
			return mo.None[uint](), fmt.Errorf("lock series %d: %w", seriesID, err)
		}
		defer unlock()
	}

	nextDue := NextDueDate(task)
	existing, err := f.store.FindDuplicate(ctx, seriesID, nextDue)
	if err != nil {
		return mo.None[uint](), persistenceError("find duplicate", err)
	}
	if existing.IsPresent() {
		return mo.None[uint](), nil
	}

	next := f.nextInstance(task, seriesID, nextDue)
	id, err := f.store.Insert(ctx, &next)
	switch {
	case errors.Is(err, ErrDuplicateInstance):
		return mo.None[uint](), nil
	case err != nil:
		return mo.None[uint](), persistenceError("insert instance", err)
	}
	return mo.Some(id), nil
}

func (f *Factory) nextInstance(task model.Task, seriesID uint, due date.Date) model.Task {
	return model.Task{
		AssigneeID:  copyID(task.AssigneeID),
		ProjectID:   copyID(task.ProjectID),
		Title:       task.Title,
		Description: task.Description,
		Priority:    task.Priority,

		Status:          model.StatusToDo,
		ProgressPercent: 0,
		AssignedDate:    date.FromTime(f.now().In(f.loc)),
		DueDate:         due,
		CompletedAt:     nil,

		IsRecurring:              true,
		RecurringPattern:         task.RecurringPattern,
		RecurringInterval:        task.RecurringInterval,
		RecurringEndType:         task.RecurringEndType,
		RecurringEndDate:         task.RecurringEndDate,
		RecurringEndAfter:        task.RecurringEndAfter,
		RecurringOccurrenceCount: task.RecurringOccurrenceCount + 1,
		ParentRecurringTaskID:    &seriesID,
		SkipWeekends:             task.SkipWeekends,
		SelectedWeekDays:         task.SelectedWeekDays,
	}
}

func copyID(id *uint) *uint {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
