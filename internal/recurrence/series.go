package recurrence

import "crm-planner/internal/model"

// SeriesRole tells whether a task is the root of its series or a later
// instance. It is either Root or Child.
type SeriesRole interface {
	SeriesID() uint
	isSeriesRole()
}

// Root is the first task of a series; its own ID identifies the series.
type Root struct {
	Series uint
}

// Child is a generated instance pointing back at the series root.
type Child struct {
	Series uint
	Parent uint
}

func (r Root) SeriesID() uint  { return r.Series }
func (c Child) SeriesID() uint { return c.Series }

func (Root) isSeriesRole()  {}
func (Child) isSeriesRole() {}

// RoleOf computes the series role of a loaded task.
func RoleOf(task model.Task) SeriesRole {
	if task.ParentRecurringTaskID != nil && *task.ParentRecurringTaskID != 0 {
		parent := *task.ParentRecurringTaskID
		return Child{Series: parent, Parent: parent}
	}
	return Root{Series: task.ID}
}
