package model

import (
	"time"

	"crm-planner/internal/date"
)

// TaskStatus is the workflow state of a task.
type TaskStatus string

const (
	StatusToDo       TaskStatus = "To-Do"
	StatusInProgress TaskStatus = "In Progress"
	StatusDone       TaskStatus = "Done"
)

// RecurringPattern is the unit a recurring task repeats in.
type RecurringPattern string

const (
	PatternDaily   RecurringPattern = "daily"
	PatternWeekly  RecurringPattern = "weekly"
	PatternMonthly RecurringPattern = "monthly"
	PatternYearly  RecurringPattern = "yearly"
)

// RecurringEndType says when a series stops producing instances.
type RecurringEndType string

const (
	EndNever      RecurringEndType = "never"
	EndDate       RecurringEndType = "date"
	EndAfterCount RecurringEndType = "after"
)

// Priority of a task; copied onto every instance of a series.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Task is a single work item. Recurring tasks form a series: the root has
// no ParentRecurringTaskID, every later instance points at the root.
type Task struct {
	ID                uint  `gorm:"primaryKey"`
	AssigneeID        *uint `gorm:"index"`
	ProjectID         *uint `gorm:"index"`
	Title             string
	Description       string
	Priority          Priority
	Status            TaskStatus `gorm:"index"`
	ProgressPercent   int
	AssignedDate      date.Date
	DueDate           date.Date `gorm:"uniqueIndex:idx_series_due,priority:2"`
	CompletedAt       *time.Time
	CompletionComment string

	IsRecurring              bool `gorm:"index;default:false"`
	RecurringPattern         RecurringPattern
	RecurringInterval        int
	RecurringEndType         RecurringEndType
	RecurringEndDate         date.Date
	RecurringEndAfter        int
	RecurringOccurrenceCount int
	ParentRecurringTaskID    *uint `gorm:"uniqueIndex:idx_series_due,priority:1"`
	SkipWeekends             bool
	SelectedWeekDays         WeekdaySet

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsDone reports whether the task reached the Done status.
func (t Task) IsDone() bool {
	return t.Status == StatusDone
}

// Weekdays is the set of days the task may fire on. An explicit selection
// wins over SkipWeekends.
func (t Task) Weekdays() WeekdaySet {
	switch {
	case !t.SelectedWeekDays.IsEmpty():
		return t.SelectedWeekDays & AllWeekdays
	case t.SkipWeekends:
		return WorkWeek
	default:
		return AllWeekdays
	}
}
