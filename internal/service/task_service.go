package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/samber/mo"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
	"crm-planner/internal/recurrence"
	"crm-planner/internal/repository"
)

// MaxRangeDays bounds calendar and occurrence queries.
const MaxRangeDays = 366

var (
	// ErrAlreadyDone is returned when completing a task that is done.
	ErrAlreadyDone = errors.New("task is already done")

	// ErrAdvanceFailed means the task was completed but its series could
	// not be advanced. The completion itself is kept.
	ErrAdvanceFailed = errors.New("task completed but next instance was not created")

	// ErrInvalidRange rejects reversed, empty or oversized date windows.
	ErrInvalidRange = errors.New("invalid date range")
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title        string
	Description  string
	Project      string
	Priority     model.Priority
	DueDate      date.Date
	IsRecurring  bool
	Pattern      model.RecurringPattern
	Interval     int
	EndType      model.RecurringEndType
	EndDate      date.Date
	EndAfter     int
	SkipWeekends bool
	// Weekdays restricts the series to these days; empty means no
	// restriction beyond SkipWeekends.
	Weekdays model.WeekdaySet
}

// Completion is the outcome of completing a task.
type Completion struct {
	Task         *model.Task
	NextInstance mo.Option[uint]
}

// CalendarEntry is one task on one calendar day. Virtual entries are
// occurrences implied by the recurrence rule that have no record yet.
type CalendarEntry struct {
	Date    date.Date
	Task    model.Task
	Virtual bool
}

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo    *repository.TaskRepository
	projectRepo *repository.ProjectRepository
	advancer    *Advancer
	loc         *time.Location
}

func NewTaskService(taskRepo *repository.TaskRepository, projectRepo *repository.ProjectRepository, advancer *Advancer, loc *time.Location) *TaskService {
	if loc == nil {
		loc = time.Local
	}
	return &TaskService{taskRepo: taskRepo, projectRepo: projectRepo, advancer: advancer, loc: loc}
}

func (s *TaskService) CreateTask(ctx context.Context, user *model.User, input TaskInput) (*model.Task, error) {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if input.DueDate.IsZero() {
		return nil, fmt.Errorf("due date is required")
	}

	var projectID *uint
	if input.Project != "" {
		project, err := s.projectRepo.GetOrCreate(ctx, user.ID, input.Project)
		if err != nil {
			return nil, err
		}
		if project != nil {
			projectID = &project.ID
		}
	}

	priority := input.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}

	assignee := user.ID
	task := model.Task{
		AssigneeID:   &assignee,
		ProjectID:    projectID,
		Title:        input.Title,
		Description:  input.Description,
		Priority:     priority,
		Status:       model.StatusToDo,
		AssignedDate: date.Today(s.loc),
		DueDate:      input.DueDate,
		IsRecurring:  input.IsRecurring,
		SkipWeekends: input.SkipWeekends,
	}
	if input.IsRecurring {
		task.SelectedWeekDays = input.Weekdays
	}

	if input.IsRecurring {
		task.RecurringPattern = input.Pattern
		task.RecurringInterval = input.Interval
		task.RecurringEndType = input.EndType
		if task.RecurringEndType == "" {
			task.RecurringEndType = model.EndNever
		}
		task.RecurringEndDate = input.EndDate
		task.RecurringEndAfter = input.EndAfter
		// The root is the first occurrence of its series.
		task.RecurringOccurrenceCount = 1
		if err := recurrence.Validate(task); err != nil {
			return nil, err
		}
	}

	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}

	log.Printf("[info] task created id=%d user=%d recurring=%t due=%s", task.ID, user.ID, task.IsRecurring, task.DueDate)
	return &task, nil
}

func (s *TaskService) ListActive(ctx context.Context, user *model.User) ([]model.Task, error) {
	return s.taskRepo.ListOpen(ctx, user.ID)
}

func (s *TaskService) GetTask(ctx context.Context, user *model.User, taskID uint) (*model.Task, error) {
	return s.taskRepo.FindByID(ctx, user.ID, taskID)
}

// CompleteTask marks a task as done and, for recurring tasks, appends the
// next instance to its series. When advancing fails the returned
// Completion is still valid and the error wraps ErrAdvanceFailed.
func (s *TaskService) CompleteTask(ctx context.Context, user *model.User, taskID uint, completedAt time.Time, comment string) (*Completion, error) {
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}
	if task.IsDone() {
		return nil, ErrAlreadyDone
	}

	if err := s.taskRepo.MarkCompleted(ctx, task, completedAt, strings.TrimSpace(comment)); err != nil {
		return nil, err
	}

	result := &Completion{Task: task, NextInstance: mo.None[uint]()}
	if !task.IsRecurring {
		logCompletion(task, user, result.NextInstance)
		return result, nil
	}

	next, err := s.AdvanceSeries(ctx, *task)
	if err != nil {
		logCompletion(task, user, result.NextInstance)
		return result, fmt.Errorf("%w: %w", ErrAdvanceFailed, err)
	}
	result.NextInstance = next
	logCompletion(task, user, next)
	return result, nil
}

// AdvanceSeries creates the next instance of task's series if the gate
// allows it.
func (s *TaskService) AdvanceSeries(ctx context.Context, task model.Task) (mo.Option[uint], error) {
	if !task.IsRecurring {
		return mo.None[uint](), nil
	}
	return s.advancer.Advance(ctx, task)
}

// DeleteTask removes a single task record.
func (s *TaskService) DeleteTask(ctx context.Context, user *model.User, taskID uint) error {
	return s.taskRepo.Delete(ctx, user.ID, taskID)
}

// Occurrences lists the days in [from, to] on which the task fires.
func (s *TaskService) Occurrences(ctx context.Context, user *model.User, taskID uint, from, to date.Date) ([]date.Date, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	task, err := s.taskRepo.FindByID(ctx, user.ID, taskID)
	if err != nil {
		return nil, err
	}
	return recurrence.Occurrences(*task, from, to), nil
}

// Calendar lays the user's tasks out over [from, to]. Each series is
// expanded once from its earliest known member; days that already have a
// record show that record instead of a virtual occurrence.
func (s *TaskService) Calendar(ctx context.Context, user *model.User, from, to date.Date) ([]CalendarEntry, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	tasks, err := s.taskRepo.ListByAssignee(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return layoutCalendar(tasks, from, to), nil
}

func layoutCalendar(tasks []model.Task, from, to date.Date) []CalendarEntry {
	var entries []CalendarEntry
	series := make(map[uint][]model.Task)
	var order []uint

	for _, task := range tasks {
		if !task.IsRecurring {
			for d := range recurrence.Expand(task, from, to) {
				entries = append(entries, CalendarEntry{Date: d, Task: task})
			}
			continue
		}
		id := recurrence.RoleOf(task).SeriesID()
		if _, ok := series[id]; !ok {
			order = append(order, id)
		}
		series[id] = append(series[id], task)
	}

	for _, id := range order {
		members := series[id]
		anchor := members[0]
		byDate := make(map[date.Date]model.Task, len(members))
		for _, m := range members {
			if m.DueDate.Before(anchor.DueDate) {
				anchor = m
			}
			byDate[m.DueDate] = m
		}

		seen := make(map[date.Date]bool)
		for d := range recurrence.Expand(anchor, from, to) {
			seen[d] = true
			if m, ok := byDate[d]; ok {
				entries = append(entries, CalendarEntry{Date: d, Task: m})
				continue
			}
			entries = append(entries, CalendarEntry{Date: d, Task: anchor, Virtual: true})
		}
		// Records moved off the rule still belong on the calendar.
		for _, m := range members {
			if seen[m.DueDate] || m.DueDate.Before(from) || m.DueDate.After(to) {
				continue
			}
			entries = append(entries, CalendarEntry{Date: m.DueDate, Task: m})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if c := entries[i].Date.Compare(entries[j].Date); c != 0 {
			return c < 0
		}
		return entries[i].Task.ID < entries[j].Task.ID
	})
	return entries
}

func checkRange(from, to date.Date) error {
	switch {
	case from.IsZero() || to.IsZero():
		return fmt.Errorf("%w: both ends are required", ErrInvalidRange)
	case to.Before(from):
		return fmt.Errorf("%w: %s is before %s", ErrInvalidRange, to, from)
	case date.DaysBetween(from, to) >= MaxRangeDays:
		return fmt.Errorf("%w: more than %d days", ErrInvalidRange, MaxRangeDays)
	}
	return nil
}

func logCompletion(task *model.Task, user *model.User, next mo.Option[uint]) {
	if id, ok := next.Get(); ok {
		log.Printf("[info] task completed id=%d user=%d next=%d", task.ID, user.ID, id)
		return
	}
	log.Printf("[info] task completed id=%d user=%d recurring=%t", task.ID, user.ID, task.IsRecurring)
}
