package bot

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"unicode"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
	"crm-planner/internal/service"
)

const (
	iconDefault   = "🟢"
	iconDue       = "⏳"
	iconOverdue   = "⚠️"
	iconRecurring = "♻️"
	noProject     = "No project"
)

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func shortTitle(title string, maxLen int) string {
	clean := normalizeTitle(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

// projectGroup is a section of the task list.
type projectGroup struct {
	Name  string
	Tasks []model.Task
}

// groupByProject sorts tasks into project sections, named projects first
// in alphabetical order. Tasks within a section are ordered by due date.
func groupByProject(tasks []model.Task, projects map[uint]string) []projectGroup {
	groups := make(map[string]*projectGroup)
	var order []string
	for _, task := range tasks {
		name := noProject
		if task.ProjectID != nil {
			if n := strings.TrimSpace(projects[*task.ProjectID]); n != "" {
				name = n
			}
		}
		key := strings.ToLower(name)
		if _, ok := groups[key]; !ok {
			groups[key] = &projectGroup{Name: name}
			order = append(order, key)
		}
		groups[key].Tasks = append(groups[key].Tasks, task)
	}

	noKey := strings.ToLower(noProject)
	sort.Slice(order, func(i, j int) bool {
		if order[i] == noKey {
			return false
		}
		if order[j] == noKey {
			return true
		}
		return order[i] < order[j]
	})

	out := make([]projectGroup, 0, len(order))
	for _, key := range order {
		g := groups[key]
		sort.SliceStable(g.Tasks, func(i, j int) bool {
			if c := g.Tasks[i].DueDate.Compare(g.Tasks[j].DueDate); c != 0 {
				return c < 0
			}
			return g.Tasks[i].ID < g.Tasks[j].ID
		})
		out = append(out, *g)
	}
	return out
}

func formatTask(task model.Task, today date.Date) string {
	var b strings.Builder

	icon := iconDefault
	days := date.DaysBetween(today, task.DueDate)
	switch {
	case task.IsRecurring:
		icon = iconRecurring
	case days < 0:
		icon = iconOverdue
	case days <= 2:
		icon = iconDue
	}
	b.WriteString(fmt.Sprintf("%s <b>#%d</b> %s\n", icon, task.ID, escape(normalizeTitle(task.Title))))

	switch {
	case days < 0:
		b.WriteString(fmt.Sprintf("   ⏰ Due %s · <b>%d d. overdue</b>\n", task.DueDate, -days))
	case days == 0:
		b.WriteString(fmt.Sprintf("   ⏰ Due today (%s)\n", task.DueDate))
	default:
		b.WriteString(fmt.Sprintf("   ⏰ Due %s · in %d d.\n", task.DueDate, days))
	}
	if task.IsRecurring {
		b.WriteString(fmt.Sprintf("   🔁 %s\n", describeRecurrence(task)))
	}
	if task.Status == model.StatusInProgress {
		b.WriteString(fmt.Sprintf("   🚧 In progress · %d%%\n", task.ProgressPercent))
	}
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("   📝 %s\n", escape(task.Description)))
	}
	b.WriteByte('\n')
	return b.String()
}

func describeRecurrence(task model.Task) string {
	unit := unitName(task.RecurringPattern)
	var b strings.Builder
	if task.RecurringInterval == 1 {
		b.WriteString("every " + unit)
	} else {
		b.WriteString(fmt.Sprintf("every %d %ss", task.RecurringInterval, unit))
	}
	switch days := task.Weekdays(); days {
	case model.AllWeekdays:
	case model.WorkWeek:
		b.WriteString(", weekdays only")
	default:
		b.WriteString(", on " + days.String())
	}
	switch task.RecurringEndType {
	case model.EndDate:
		b.WriteString(fmt.Sprintf(", until %s", task.RecurringEndDate))
	case model.EndAfterCount:
		b.WriteString(fmt.Sprintf(", occurrence %d of %d", task.RecurringOccurrenceCount, task.RecurringEndAfter))
	}
	return b.String()
}

// formatCalendar renders entries grouped by day.
func formatCalendar(entries []service.CalendarEntry, from, to date.Date) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗓 <b>Calendar %s – %s</b>\n", from, to))
	if len(entries) == 0 {
		b.WriteString("\nNothing scheduled.")
		return b.String()
	}

	var current date.Date
	for _, e := range entries {
		if !e.Date.Equal(current) {
			current = e.Date
			b.WriteString(fmt.Sprintf("\n<b>%s, %s</b>\n", e.Date.Weekday().String()[:3], e.Date))
		}
		mark := "•"
		switch {
		case e.Virtual:
			mark = "◦"
		case e.Task.IsDone():
			mark = "✓"
		}
		ref := fmt.Sprintf("#%d", e.Task.ID)
		if e.Virtual {
			ref = "planned"
		}
		b.WriteString(fmt.Sprintf("%s %s <i>(%s)</i>\n", mark, escape(normalizeTitle(e.Task.Title)), ref))
	}
	return strings.TrimSpace(b.String())
}

func formatCreated(task *model.Task) string {
	var b strings.Builder
	b.WriteString("✅ <b>Task saved</b>\n")
	b.WriteString(fmt.Sprintf("• <b>ID:</b> %d\n", task.ID))
	b.WriteString(fmt.Sprintf("• <b>Title:</b> %s\n", escape(normalizeTitle(task.Title))))
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("• <b>Description:</b> %s\n", escape(task.Description)))
	}
	b.WriteString(fmt.Sprintf("• <b>Due:</b> %s\n", task.DueDate))
	if task.IsRecurring {
		b.WriteString(fmt.Sprintf("• <b>Repeats:</b> %s\n", describeRecurrence(*task)))
	}
	return strings.TrimSpace(b.String())
}

func formatCompletion(task *model.Task, next *model.Task) string {
	title := escape(normalizeTitle(task.Title))
	switch {
	case next != nil:
		return fmt.Sprintf("✅ «%s» done.\n♻️ Next one is #%d, due %s.", title, next.ID, next.DueDate)
	case task.IsRecurring:
		return fmt.Sprintf("✅ «%s» done.\n🏁 The series has no further occurrences.", title)
	default:
		return fmt.Sprintf("✅ «%s» done.", title)
	}
}
