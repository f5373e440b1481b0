package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"crm-planner/internal/calendar"
	"crm-planner/internal/date"
	"crm-planner/internal/model"
	"crm-planner/internal/recurrence"
	"crm-planner/internal/service"
)

// defaultWindow is used when a range query omits "to".
const defaultWindow = 30

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Time:   s.now().Format(time.RFC3339),
	})
}

// occurrences handles GET /api/v1/tasks/:id/occurrences.
func (s *Server) occurrences(c *fiber.Ctx) error {
	taskID, err := taskIDParam(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "validation_error", err.Error())
	}
	from, to, err := s.rangeQuery(c)
	if err != nil {
		return s.serviceError(c, err)
	}

	dates, err := s.tasks.Occurrences(c.UserContext(), currentUser(c), taskID, from, to)
	if err != nil {
		return s.serviceError(c, err)
	}
	return c.JSON(OccurrencesResponse{TaskID: taskID, From: from, To: to, Dates: dates})
}

// complete handles POST /api/v1/tasks/:id/complete.
func (s *Server) complete(c *fiber.Ctx) error {
	taskID, err := taskIDParam(c)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "validation_error", err.Error())
	}
	var req CompleteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fiber.StatusBadRequest, "invalid_request", "Invalid request body")
		}
	}

	result, err := s.tasks.CompleteTask(c.UserContext(), currentUser(c), taskID, s.now(), req.Comment)
	if errors.Is(err, service.ErrAdvanceFailed) {
		// The task is done; only the follow-up instance is missing.
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "advance_failed",
			"message": err.Error(),
			"task":    toTaskResponse(*result.Task),
		})
	}
	if err != nil {
		return s.serviceError(c, err)
	}

	resp := CompleteResponse{Task: toTaskResponse(*result.Task)}
	if id, ok := result.NextInstance.Get(); ok {
		resp.NextInstanceID = &id
	}
	return c.JSON(resp)
}

// calendarJSON handles GET /api/v1/calendar.
func (s *Server) calendarJSON(c *fiber.Ctx) error {
	entries, err := s.calendarEntries(c)
	if err != nil {
		return s.serviceError(c, err)
	}
	out := make([]CalendarEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, CalendarEntryResponse{Date: e.Date, Virtual: e.Virtual, Task: toTaskResponse(e.Task)})
	}
	return c.JSON(out)
}

// calendarICS handles GET /api/v1/calendar.ics.
func (s *Server) calendarICS(c *fiber.Ctx) error {
	entries, err := s.calendarEntries(c)
	if err != nil {
		return s.serviceError(c, err)
	}
	body, err := calendar.Encode(calendar.Feed(entries, s.now()))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/calendar; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="tasks.ics"`)
	return c.Send(body)
}

func (s *Server) calendarEntries(c *fiber.Ctx) ([]service.CalendarEntry, error) {
	from, to, err := s.rangeQuery(c)
	if err != nil {
		return nil, err
	}
	return s.tasks.Calendar(c.UserContext(), currentUser(c), from, to)
}

func (s *Server) serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fail(c, fiber.StatusNotFound, "not_found", "Task not found")
	case errors.Is(err, service.ErrInvalidRange):
		return fail(c, fiber.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, service.ErrAlreadyDone):
		return fail(c, fiber.StatusConflict, "conflict", err.Error())
	case errors.Is(err, recurrence.ErrInvalidConfig):
		return fail(c, fiber.StatusUnprocessableEntity, "invalid_recurrence", err.Error())
	default:
		return err
	}
}

// rangeQuery reads ?from and ?to. from defaults to today, to to thirty
// days after from.
func (s *Server) rangeQuery(c *fiber.Ctx) (date.Date, date.Date, error) {
	from := date.FromTime(s.now().In(s.loc))
	if raw := c.Query("from"); raw != "" {
		d, err := date.Parse(raw)
		if err != nil {
			return date.Date{}, date.Date{}, fmt.Errorf("%w: from must be YYYY-MM-DD", service.ErrInvalidRange)
		}
		from = d
	}
	to := from.AddDays(defaultWindow)
	if raw := c.Query("to"); raw != "" {
		d, err := date.Parse(raw)
		if err != nil {
			return date.Date{}, date.Date{}, fmt.Errorf("%w: to must be YYYY-MM-DD", service.ErrInvalidRange)
		}
		to = d
	}
	return from, to, nil
}

func taskIDParam(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, errors.New("task id must be a positive integer")
	}
	return uint(id), nil
}

func toTaskResponse(t model.Task) TaskResponse {
	resp := TaskResponse{
		ID:                t.ID,
		Title:             t.Title,
		Description:       t.Description,
		ProjectID:         t.ProjectID,
		Priority:          t.Priority,
		Status:            t.Status,
		ProgressPercent:   t.ProgressPercent,
		AssignedDate:      t.AssignedDate,
		DueDate:           t.DueDate,
		CompletedAt:       t.CompletedAt,
		CompletionComment: t.CompletionComment,
	}
	if t.IsRecurring {
		resp.Recurrence = &RecurrenceResponse{
			SeriesID:        recurrence.RoleOf(t).SeriesID(),
			Pattern:         t.RecurringPattern,
			Interval:        t.RecurringInterval,
			EndType:         t.RecurringEndType,
			EndDate:         t.RecurringEndDate,
			EndAfter:        t.RecurringEndAfter,
			OccurrenceCount: t.RecurringOccurrenceCount,
			SkipWeekends:    t.SkipWeekends,
			Weekdays:        t.Weekdays().String(),
		}
	}
	return resp
}
