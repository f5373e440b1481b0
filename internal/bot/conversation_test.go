package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
)

func TestConversationRecurringTask(t *testing.T) {
	today := date.MustParse("2025-01-10")
	state := newConversation([]string{"Sales"})
	state.start()

	steps := []string{"call the client", btnSkip, "Sales", "tomorrow", btnYes, "weekly", "2", btnEndAfter, "5", btnNo}
	var r reply
	for i, text := range steps {
		r = state.step(text, today)
		if i < len(steps)-1 {
			require.False(t, r.done, "step %d (%q) finished early", i, text)
		}
	}
	require.True(t, r.done)

	in := state.input
	assert.Equal(t, "call the client", in.Title)
	assert.Empty(t, in.Description)
	assert.Equal(t, "Sales", in.Project)
	assert.Equal(t, "2025-01-11", in.DueDate.String())
	assert.True(t, in.IsRecurring)
	assert.Equal(t, model.PatternWeekly, in.Pattern)
	assert.Equal(t, 2, in.Interval)
	assert.Equal(t, model.EndAfterCount, in.EndType)
	assert.Equal(t, 5, in.EndAfter)
	assert.False(t, in.SkipWeekends)
}

func TestConversationOneOffFinishesEarly(t *testing.T) {
	today := date.MustParse("2025-01-10")
	state := newConversation(nil)

	for _, text := range []string{"Send invoice", "for March", "-", "2025-01-20"} {
		require.False(t, state.step(text, today).done)
	}
	r := state.step(btnNo, today)
	require.True(t, r.done)
	assert.False(t, state.input.IsRecurring)
	assert.Equal(t, "for March", state.input.Description)
	assert.Empty(t, state.input.Project)
}

func TestConversationRepeatsInvalidStep(t *testing.T) {
	today := date.MustParse("2025-01-10")
	state := newConversation(nil)
	state.step("Renew contract", today)
	state.step(btnSkip, today)
	state.step(btnSkip, today)

	r := state.step("next week", today)
	assert.False(t, r.done)
	assert.Equal(t, stageDueDate, state.stage)

	state.step("2025-02-01", today)
	state.step(btnYes, today)

	r = state.step("hourly", today)
	assert.Contains(t, r.text, "Pick daily")
	assert.Equal(t, stagePattern, state.stage)

	state.step("monthly", today)
	r = state.step("0", today)
	assert.Contains(t, r.text, "from 1 to 365")
	assert.Equal(t, stageInterval, state.stage)

	state.step("1", today)
	state.step(btnEndDate, today)
	r = state.step("2025-01-15", today)
	assert.Contains(t, r.text, "before the due date")
	assert.Equal(t, stageEndDate, state.stage)

	state.step("2025-12-31", today)
	assert.Equal(t, stageWeekdays, state.stage)
	r = state.step("yes", today)
	require.True(t, r.done)
	assert.True(t, state.input.SkipWeekends)
	assert.Equal(t, "2025-12-31", state.input.EndDate.String())
}

func TestConversationWeekdayList(t *testing.T) {
	today := date.MustParse("2025-01-10")
	state := newConversation(nil)
	for _, text := range []string{"Stand-up notes", btnSkip, btnSkip, "2025-01-13", btnYes, "daily", "1", btnEndNever} {
		require.False(t, state.step(text, today).done, text)
	}
	require.Equal(t, stageWeekdays, state.stage)

	r := state.step("sometimes", today)
	assert.False(t, r.done)
	assert.Contains(t, r.text, "mon,wed,fri")

	r = state.step("mon, wed, fri", today)
	require.True(t, r.done)
	assert.Equal(t, model.NewWeekdaySet(time.Monday, time.Wednesday, time.Friday), state.input.Weekdays)
	assert.False(t, state.input.SkipWeekends)
}

func TestConversationPresets(t *testing.T) {
	// 2025-01-10 is a Friday.
	today := date.MustParse("2025-01-10")
	start := func() *conversationState {
		state := newConversation(nil)
		for _, text := range []string{"Check inbox", btnSkip, btnSkip, "2025-01-11", btnYes} {
			state.step(text, today)
		}
		require.Equal(t, stagePattern, state.stage)
		return state
	}

	state := start()
	r := state.step(btnPresetMondays, today)
	assert.Equal(t, stageEndType, state.stage)
	assert.Contains(t, r.text, "2025-01-13")
	r = state.step(btnEndNever, today)
	require.True(t, r.done, "presets skip the weekday question")
	assert.Equal(t, model.PatternWeekly, state.input.Pattern)
	assert.Equal(t, 1, state.input.Interval)
	assert.Equal(t, "2025-01-13", state.input.DueDate.String())
	assert.Equal(t, model.NewWeekdaySet(time.Monday), state.input.Weekdays)

	state = start()
	state.step(btnPresetWorkdays, today)
	state.step(btnEndAfter, today)
	r = state.step("20", today)
	require.True(t, r.done)
	assert.Equal(t, model.PatternDaily, state.input.Pattern)
	assert.Equal(t, model.WorkWeek, state.input.Weekdays)
	assert.Equal(t, "2025-01-13", state.input.DueDate.String())
	assert.Equal(t, 20, state.input.EndAfter)

	state = start()
	state.step(btnPresetMonthly, today)
	require.True(t, state.step(btnEndNever, today).done)
	assert.Equal(t, model.PatternMonthly, state.input.Pattern)
	assert.True(t, state.input.Weekdays.IsEmpty())
	assert.Equal(t, "2025-01-11", state.input.DueDate.String())
}
