// Package calendar exports planner calendars in iCalendar format.
package calendar

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
	"crm-planner/internal/recurrence"
	"crm-planner/internal/service"
)

const (
	productID = "-//crm-planner//tasks//EN"

	// PropRule carries the series rule on every occurrence. It is not
	// RRULE because every occurrence is already listed.
	PropRule = "X-CRM-RRULE"
	// PropRuleStart is the PropRule parameter holding the series anchor.
	PropRuleStart = "X-CRM-DTSTART"
	// PropSeries links every occurrence to its series.
	PropSeries = "X-CRM-SERIES"

	dateFormat = "20060102"
)

var uidSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://crm-planner/tasks"))

// Feed builds a VCALENDAR with one VTODO per calendar entry.
func Feed(entries []service.CalendarEntry, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	anchors := seriesAnchors(entries)
	for _, entry := range entries {
		todo := todoFor(entry, now.UTC())
		if entry.Task.IsRecurring {
			seriesID := recurrence.RoleOf(entry.Task).SeriesID()
			todo.Props.SetText(PropSeries, strconv.FormatUint(uint64(seriesID), 10))
			anchor := anchors[seriesID]
			if rule, ok := RuleFor(anchor); ok {
				// RRULE syntax, not TEXT: no escaping of ';' and ','.
				prop := ical.NewProp(PropRule)
				prop.Value = rule
				prop.Params.Set(PropRuleStart, anchor.DueDate.Time().Format(dateFormat))
				todo.Props.Set(prop)
			}
		}
		cal.Children = append(cal.Children, todo)
	}
	return cal
}

// seriesAnchors picks the task each series' rule is derived from: the root
// when it is among the entries, otherwise the earliest member. Stored
// children may sit off the rule, so the first entry in date order is not
// a safe choice.
func seriesAnchors(entries []service.CalendarEntry) map[uint]model.Task {
	anchors := make(map[uint]model.Task)
	for _, entry := range entries {
		task := entry.Task
		if !task.IsRecurring {
			continue
		}
		seriesID := recurrence.RoleOf(task).SeriesID()
		current, seen := anchors[seriesID]
		switch {
		case !seen:
			anchors[seriesID] = task
		case current.ParentRecurringTaskID == nil:
		case task.ParentRecurringTaskID == nil, task.DueDate.Before(current.DueDate):
			anchors[seriesID] = task
		}
	}
	return anchors
}

// Encode serializes cal.
func Encode(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func todoFor(entry service.CalendarEntry, now time.Time) *ical.Component {
	task := entry.Task
	todo := ical.NewComponent(ical.CompToDo)
	todo.Props.SetText(ical.PropUID, UID(task, entry.Date))
	todo.Props.SetDateTime(ical.PropDateTimeStamp, now)
	todo.Props.SetText(ical.PropSummary, task.Title)
	if task.Description != "" {
		todo.Props.SetText(ical.PropDescription, task.Description)
	}
	todo.Props.SetDate(ical.PropDue, entry.Date.Time())
	todo.Props.SetText(ical.PropPriority, priorityOf(task.Priority))

	if entry.Virtual {
		todo.Props.SetText(ical.PropStatus, "NEEDS-ACTION")
		return todo
	}
	todo.Props.SetText(ical.PropStatus, statusOf(task.Status))
	todo.Props.SetText(ical.PropPercentComplete, strconv.Itoa(task.ProgressPercent))
	if task.CompletedAt != nil {
		todo.Props.SetDateTime(ical.PropCompleted, task.CompletedAt.UTC())
	}
	return todo
}

// UID is stable per series and day, so an occurrence keeps its UID once
// it is materialized as a task.
func UID(task model.Task, day date.Date) string {
	key := fmt.Sprintf("task/%d/%s", task.ID, day)
	if task.IsRecurring {
		key = fmt.Sprintf("series/%d/%s", recurrence.RoleOf(task).SeriesID(), day)
	}
	return uuid.NewSHA1(uidSpace, []byte(key)).String()
}

func statusOf(status model.TaskStatus) string {
	switch status {
	case model.StatusDone:
		return "COMPLETED"
	case model.StatusInProgress:
		return "IN-PROCESS"
	default:
		return "NEEDS-ACTION"
	}
}

func priorityOf(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "1"
	case model.PriorityLow:
		return "9"
	default:
		return "5"
	}
}
