package api

import (
	"time"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// TaskResponse is the wire form of a task.
type TaskResponse struct {
	ID                uint                `json:"id"`
	Title             string              `json:"title"`
	Description       string              `json:"description,omitempty"`
	ProjectID         *uint               `json:"project_id,omitempty"`
	Priority          model.Priority      `json:"priority"`
	Status            model.TaskStatus    `json:"status"`
	ProgressPercent   int                 `json:"progress_percent"`
	AssignedDate      date.Date           `json:"assigned_date"`
	DueDate           date.Date           `json:"due_date"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
	CompletionComment string              `json:"completion_comment,omitempty"`
	Recurrence        *RecurrenceResponse `json:"recurrence,omitempty"`
}

// RecurrenceResponse describes the series a task belongs to.
type RecurrenceResponse struct {
	SeriesID        uint                   `json:"series_id"`
	Pattern         model.RecurringPattern `json:"pattern"`
	Interval        int                    `json:"interval"`
	EndType         model.RecurringEndType `json:"end_type"`
	EndDate         date.Date              `json:"end_date"`
	EndAfter        int                    `json:"end_after,omitempty"`
	OccurrenceCount int                    `json:"occurrence_count"`
	SkipWeekends    bool                   `json:"skip_weekends"`
	// Weekdays lists the days the series may fire on, e.g. "Mon,Wed,Fri".
	Weekdays string `json:"weekdays"`
}

// OccurrencesResponse is returned by GET /api/v1/tasks/:id/occurrences.
type OccurrencesResponse struct {
	TaskID uint        `json:"task_id"`
	From   date.Date   `json:"from"`
	To     date.Date   `json:"to"`
	Dates  []date.Date `json:"dates"`
}

// CompleteRequest is the body of POST /api/v1/tasks/:id/complete.
type CompleteRequest struct {
	Comment string `json:"comment"`
}

// CompleteResponse reports the completed task and the instance created
// after it, if any.
type CompleteResponse struct {
	Task           TaskResponse `json:"task"`
	NextInstanceID *uint        `json:"next_instance_id"`
}

// CalendarEntryResponse is one day of GET /api/v1/calendar.
type CalendarEntryResponse struct {
	Date    date.Date    `json:"date"`
	Virtual bool         `json:"virtual"`
	Task    TaskResponse `json:"task"`
}
