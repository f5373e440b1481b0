package recurrence

import (
	"context"

	"crm-planner/internal/model"
)

// FastEligibility decides from the task record alone, trusting the
// denormalized occurrence counter. It may be wrong when the counter drifts.
type FastEligibility interface {
	EligibleFast(task model.Task) bool
}

// AuthoritativeEligibility counts the series in the store before deciding.
type AuthoritativeEligibility interface {
	EligibleAuthoritative(ctx context.Context, task model.Task) (bool, error)
}

// LocalGate implements FastEligibility.
type LocalGate struct{}

func (LocalGate) EligibleFast(task model.Task) bool {
	return EligibleFast(task)
}

// EligibleFast reports whether completing task should create the next
// instance, using task.RecurringOccurrenceCount for "after N" series.
func EligibleFast(task model.Task) bool {
	return completed(task) && SeriesOpenFast(task)
}

// SeriesOpenFast applies only the end conditions, without requiring the
// task to be done.
func SeriesOpenFast(task model.Task) bool {
	if !task.IsRecurring || Validate(task) != nil {
		return false
	}
	switch endType(task) {
	case model.EndDate:
		return task.DueDate.Before(task.RecurringEndDate)
	case model.EndAfterCount:
		return task.RecurringOccurrenceCount < task.RecurringEndAfter
	default:
		return true
	}
}

// Gate implements AuthoritativeEligibility on top of a sibling count.
type Gate struct {
	counter SiblingCounter
}

func NewGate(counter SiblingCounter) *Gate {
	return &Gate{counter: counter}
}

// EligibleAuthoritative is EligibleFast with the occurrence counter
// replaced by a store count of the whole series, root included.
func (g *Gate) EligibleAuthoritative(ctx context.Context, task model.Task) (bool, error) {
	if !completed(task) {
		return false, nil
	}
	return g.SeriesOpen(ctx, task)
}

// SeriesOpen applies only the end conditions, counting the series in the
// store for "after N" series.
func (g *Gate) SeriesOpen(ctx context.Context, task model.Task) (bool, error) {
	if !task.IsRecurring || Validate(task) != nil {
		return false, nil
	}
	switch endType(task) {
	case model.EndDate:
		return task.DueDate.Before(task.RecurringEndDate), nil
	case model.EndAfterCount:
		seriesID := RoleOf(task).SeriesID()
		if seriesID == 0 {
			return false, nil
		}
		siblings, err := g.counter.CountSiblings(ctx, seriesID)
		if err != nil {
			return false, persistenceError("count siblings", err)
		}
		return siblings+1 < int64(task.RecurringEndAfter), nil
	default:
		return true, nil
	}
}

func completed(task model.Task) bool {
	return task.IsRecurring && task.IsDone() && task.CompletedAt != nil
}
