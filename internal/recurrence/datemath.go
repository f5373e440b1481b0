package recurrence

import (
	"crm-planner/internal/date"
	"crm-planner/internal/model"
)

// AddInterval moves d forward by n units of pattern. Months and years
// keep the day of month and roll over natively when it does not exist.
func AddInterval(d date.Date, pattern model.RecurringPattern, n int) date.Date {
	switch pattern {
	case model.PatternWeekly:
		return d.AddDays(7 * n)
	case model.PatternMonthly:
		return d.AddMonths(n)
	case model.PatternYearly:
		return d.AddYears(n)
	default:
		return d.AddDays(n)
	}
}

// NextDueDate is the due date of the instance that follows task.
func NextDueDate(task model.Task) date.Date {
	return AddInterval(task.DueDate, task.RecurringPattern, task.RecurringInterval)
}
