package calendar

import (
	"bytes"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
	"crm-planner/internal/service"
)

func TestFeedEncodesOccurrences(t *testing.T) {
	root := series("2025-01-01", model.PatternWeekly, 2)
	root.Status = model.StatusDone
	completedAt := time.Date(2025, 1, 1, 17, 0, 0, 0, time.UTC)
	root.CompletedAt = &completedAt
	root.ProgressPercent = 100

	child := root
	child.ID = 8
	child.Status = model.StatusToDo
	child.CompletedAt = nil
	child.ProgressPercent = 0
	child.DueDate = date.MustParse("2025-01-15")
	child.ParentRecurringTaskID = &root.ID

	oneOff := model.Task{ID: 9, Title: "Sign NDA", Priority: model.PriorityHigh, DueDate: date.MustParse("2025-01-20")}

	entries := []service.CalendarEntry{
		{Date: root.DueDate, Task: root},
		{Date: child.DueDate, Task: child},
		{Date: oneOff.DueDate, Task: oneOff},
		{Date: date.MustParse("2025-01-29"), Task: root, Virtual: true},
	}

	raw, err := Encode(Feed(entries, time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	cal, err := ical.NewDecoder(bytes.NewReader(raw)).Decode()
	require.NoError(t, err)

	todos := cal.Children
	require.Len(t, todos, 4)
	for _, todo := range todos {
		assert.Equal(t, ical.CompToDo, todo.Name)
	}

	status, err := todos[0].Props.Text(ical.PropStatus)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", status)

	due := todos[1].Props.Get(ical.PropDue)
	require.NotNil(t, due)
	assert.Equal(t, "20250115", due.Value)

	seriesID, err := todos[1].Props.Text(PropSeries)
	require.NoError(t, err)
	assert.Equal(t, "7", seriesID)

	rule := todos[1].Props.Get(PropRule)
	require.NotNil(t, rule)
	assert.Contains(t, rule.Value, "FREQ=WEEKLY")
	assert.Contains(t, rule.Value, "INTERVAL=2")
	assert.NotContains(t, rule.Value, `\;`)
	assert.Equal(t, "20250101", rule.Params.Get(PropRuleStart))

	assert.Nil(t, todos[2].Props.Get(PropRule))
	priority, err := todos[2].Props.Text(ical.PropPriority)
	require.NoError(t, err)
	assert.Equal(t, "1", priority)

	status, err = todos[3].Props.Text(ical.PropStatus)
	require.NoError(t, err)
	assert.Equal(t, "NEEDS-ACTION", status)
}

func TestUIDStableAcrossMaterialization(t *testing.T) {
	root := series("2025-01-01", model.PatternWeekly, 2)
	child := root
	child.ID = 8
	child.ParentRecurringTaskID = &root.ID

	day := date.MustParse("2025-01-15")
	assert.Equal(t, UID(root, day), UID(child, day))
	assert.NotEqual(t, UID(root, day), UID(root, day.AddDays(14)))

	oneOff := model.Task{ID: 7, DueDate: day}
	assert.NotEqual(t, UID(root, day), UID(oneOff, day))
}

func TestFeedTakesRuleFromSeriesRoot(t *testing.T) {
	root := series("2025-01-31", model.PatternMonthly, 1)

	// The February instance rolled over to March 3 and sorts first.
	child := root
	child.ID = 8
	child.DueDate = date.MustParse("2025-03-03")
	child.ParentRecurringTaskID = &root.ID

	entries := []service.CalendarEntry{
		{Date: child.DueDate, Task: child},
		{Date: date.MustParse("2025-03-31"), Task: root, Virtual: true},
	}
	cal := Feed(entries, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	require.Len(t, cal.Children, 2)

	for _, todo := range cal.Children {
		rule := todo.Props.Get(PropRule)
		require.NotNil(t, rule)
		assert.Contains(t, rule.Value, "BYMONTHDAY=31")
		assert.NotRegexp(t, `BYMONTHDAY=3(;|$)`, rule.Value)
		assert.Equal(t, "20250131", rule.Params.Get(PropRuleStart))
	}
}

func TestFeedAnchorsOnEarliestMemberWithoutRoot(t *testing.T) {
	root := series("2025-01-01", model.PatternWeekly, 2)
	late := root
	late.ID = 9
	late.DueDate = date.MustParse("2025-01-29")
	late.ParentRecurringTaskID = &root.ID
	early := late
	early.ID = 8
	early.DueDate = date.MustParse("2025-01-15")

	entries := []service.CalendarEntry{
		{Date: late.DueDate, Task: late},
		{Date: early.DueDate, Task: early},
	}
	cal := Feed(entries, time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))
	for _, todo := range cal.Children {
		rule := todo.Props.Get(PropRule)
		require.NotNil(t, rule)
		assert.Equal(t, "20250115", rule.Params.Get(PropRuleStart))
	}
}
