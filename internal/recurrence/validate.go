package recurrence

import (
	"fmt"

	"crm-planner/internal/model"
)

// Validate checks that a recurring task carries a usable configuration.
// Non-recurring tasks are always valid.
func Validate(task model.Task) error {
	if !task.IsRecurring {
		return nil
	}
	if task.DueDate.IsZero() {
		return fmt.Errorf("%w: due date is required", ErrInvalidConfig)
	}
	if task.RecurringInterval < 1 {
		return fmt.Errorf("%w: interval %d must be at least 1", ErrInvalidConfig, task.RecurringInterval)
	}
	if task.SelectedWeekDays&^model.AllWeekdays != 0 {
		return fmt.Errorf("%w: weekday mask %#x out of range", ErrInvalidConfig, uint8(task.SelectedWeekDays))
	}
	switch task.RecurringPattern {
	case model.PatternDaily, model.PatternWeekly, model.PatternMonthly, model.PatternYearly:
	default:
		return fmt.Errorf("%w: unknown pattern %q", ErrInvalidConfig, task.RecurringPattern)
	}
	switch endType(task) {
	case model.EndNever:
	case model.EndDate:
		if task.RecurringEndDate.IsZero() {
			return fmt.Errorf("%w: end date is required", ErrInvalidConfig)
		}
	case model.EndAfterCount:
		if task.RecurringEndAfter < 1 {
			return fmt.Errorf("%w: occurrence limit %d must be at least 1", ErrInvalidConfig, task.RecurringEndAfter)
		}
	default:
		return fmt.Errorf("%w: unknown end type %q", ErrInvalidConfig, task.RecurringEndType)
	}
	return nil
}

// endType treats an unset end type as "never".
func endType(task model.Task) model.RecurringEndType {
	if task.RecurringEndType == "" {
		return model.EndNever
	}
	return task.RecurringEndType
}
