package recurrence

import (
	"iter"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
)

// Expand yields every day in [from, to] on which task fires, in order.
// The sequence is restartable: ranging over it twice gives the same dates.
func Expand(task model.Task, from, to date.Date) iter.Seq[date.Date] {
	return func(yield func(date.Date) bool) {
		if from.IsZero() || to.IsZero() {
			return
		}
		for d := from; !d.After(to); d = d.AddDays(1) {
			if Fires(task, d) && !yield(d) {
				return
			}
		}
	}
}

// Occurrences collects Expand into a slice. It never returns nil.
func Occurrences(task model.Task, from, to date.Date) []date.Date {
	out := make([]date.Date, 0)
	for d := range Expand(task, from, to) {
		out = append(out, d)
	}
	return out
}
