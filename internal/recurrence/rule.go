package recurrence

import (
	"crm-planner/internal/date"
	"crm-planner/internal/model"
)

// Fires reports whether task has an occurrence on day. Days outside the
// task's weekday set never fire, and neither do invalid configurations. The occurrence limit of an "after N" series
// is not applied here; it only gates instance creation.
func Fires(task model.Task, day date.Date) bool {
	anchor := task.DueDate
	if anchor.IsZero() || day.IsZero() {
		return false
	}
	if !task.Weekdays().Has(day.Weekday()) {
		return false
	}
	if !task.IsRecurring {
		return day.Equal(anchor)
	}
	if Validate(task) != nil {
		return false
	}
	if endType(task) == model.EndDate && day.After(task.RecurringEndDate) {
		return false
	}

	diff := date.DaysBetween(anchor, day)
	if diff < 0 {
		return false
	}

	n := task.RecurringInterval
	switch task.RecurringPattern {
	case model.PatternDaily:
		return diff%n == 0
	case model.PatternWeekly:
		return day.Weekday() == anchor.Weekday() && (diff/7)%n == 0
	case model.PatternMonthly:
		return day.Day == anchor.Day && date.MonthsBetween(anchor, day)%n == 0
	case model.PatternYearly:
		return day.Month == anchor.Month && day.Day == anchor.Day && (day.Year-anchor.Year)%n == 0
	default:
		return false
	}
}
