package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
	"crm-planner/internal/repository"
)

// AgendaService builds the daily agenda users receive in chat.
type AgendaService struct {
	taskRepo    *repository.TaskRepository
	projectRepo *repository.ProjectRepository
}

func NewAgendaService(taskRepo *repository.TaskRepository, projectRepo *repository.ProjectRepository) *AgendaService {
	return &AgendaService{taskRepo: taskRepo, projectRepo: projectRepo}
}

// DailySummary lists what is due on the day of now and what is overdue.
func (s *AgendaService) DailySummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	tasks, err := s.taskRepo.ListByAssignee(ctx, user.ID)
	if err != nil {
		return "", err
	}
	projects, err := s.projectRepo.Names(ctx, user.ID)
	if err != nil {
		return "", err
	}

	today := date.FromTime(now)
	due, overdue := splitAgenda(tasks, today)

	var builder strings.Builder
	builder.WriteString("📋 <b>Daily agenda</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", today))

	builder.WriteString("🔥 <b>Due today</b>\n")
	if len(due) == 0 {
		builder.WriteString("— nothing due\n")
	} else {
		for _, task := range due {
			builder.WriteString(formatAgendaTask(task, projects, today))
		}
	}

	builder.WriteString("\n⚠️ <b>Overdue</b>\n")
	if len(overdue) == 0 {
		builder.WriteString("— all caught up\n")
	} else {
		for _, task := range overdue {
			builder.WriteString(formatAgendaTask(task, projects, today))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

// splitAgenda picks open tasks due today and open tasks whose due date has
// passed. A series shows up once, through its open instance. A stored
// instance is due on its own date even when the rule would skip that day.
func splitAgenda(tasks []model.Task, today date.Date) (due, overdue []model.Task) {
	for _, task := range tasks {
		if task.IsDone() {
			continue
		}
		switch {
		case task.DueDate.Before(today):
			overdue = append(overdue, task)
		case task.DueDate.Equal(today):
			due = append(due, task)
		}
	}
	sort.SliceStable(overdue, func(i, j int) bool {
		return overdue[i].DueDate.Before(overdue[j].DueDate)
	})
	return due, overdue
}

func formatAgendaTask(task model.Task, projects map[uint]string, today date.Date) string {
	var sb strings.Builder

	icon := "🟢"
	switch task.Priority {
	case model.PriorityHigh:
		icon = "🔴"
	case model.PriorityLow:
		icon = "⚪"
	}
	if task.IsRecurring {
		icon = "♻️"
	}

	sb.WriteString(fmt.Sprintf("%s #%d %s", icon, task.ID, html.EscapeString(strings.TrimSpace(task.Title))))

	if task.ProjectID != nil {
		if name := strings.TrimSpace(projects[*task.ProjectID]); name != "" {
			sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(name)))
		}
	}

	if days := date.DaysBetween(task.DueDate, today); days > 0 {
		sb.WriteString(fmt.Sprintf("\n   ⏰ due %s · %d d. late", task.DueDate, days))
	}
	if task.IsRecurring {
		sb.WriteString(fmt.Sprintf("\n   🔁 %s", describeRule(task)))
	}
	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}

// describeRule renders a recurrence rule for people, e.g.
// "every 2 weeks, weekdays only, until 2025-06-30".
func describeRule(task model.Task) string {
	unit := map[model.RecurringPattern]string{
		model.PatternDaily:   "day",
		model.PatternWeekly:  "week",
		model.PatternMonthly: "month",
		model.PatternYearly:  "year",
	}[task.RecurringPattern]
	if unit == "" {
		unit = string(task.RecurringPattern)
	}

	var sb strings.Builder
	if task.RecurringInterval == 1 {
		sb.WriteString("every " + unit)
	} else {
		sb.WriteString(fmt.Sprintf("every %d %ss", task.RecurringInterval, unit))
	}
	switch days := task.Weekdays(); days {
	case model.AllWeekdays:
	case model.WorkWeek:
		sb.WriteString(", weekdays only")
	default:
		sb.WriteString(", on " + days.String())
	}
	switch task.RecurringEndType {
	case model.EndDate:
		sb.WriteString(fmt.Sprintf(", until %s", task.RecurringEndDate))
	case model.EndAfterCount:
		sb.WriteString(fmt.Sprintf(", %d of %d", task.RecurringOccurrenceCount, task.RecurringEndAfter))
	}
	return sb.String()
}
