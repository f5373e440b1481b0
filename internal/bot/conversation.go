package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"crm-planner/internal/date"
	"crm-planner/internal/model"
	"crm-planner/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageProject
	stageDueDate
	stageRecurring
	stagePattern
	stageInterval
	stageEndType
	stageEndDate
	stageEndAfter
	stageWeekdays
)

const maxInterval = 365

type conversationState struct {
	stage    conversationStage
	input    service.TaskInput
	projects []string
	// preset is set when a preset filled pattern, interval and weekdays.
	preset bool
}

// reply is what the bot answers to one step of the conversation.
type reply struct {
	text   string
	markup any
	done   bool
}

func newConversation(projects []string) *conversationState {
	return &conversationState{stage: stageTitle, projects: projects}
}

func (s *conversationState) start() reply {
	return reply{text: "🆕 Creating a new task.\n<b>Step 1:</b> what should it be called?", markup: cancelKeyboard()}
}

// step consumes one user message. Invalid input keeps the stage and asks
// again.
func (s *conversationState) step(text string, today date.Date) reply {
	text = strings.TrimSpace(text)
	switch s.stage {
	case stageTitle:
		if text == "" {
			return reply{text: "The title cannot be empty.", markup: cancelKeyboard()}
		}
		s.input.Title = text
		s.stage = stageDescription
		return reply{text: "✏️ Add a short description (or press «Skip»).", markup: skipKeyboard()}

	case stageDescription:
		if !isSkipInput(text) {
			s.input.Description = text
		}
		s.stage = stageProject
		return reply{text: "📂 Which project does it belong to? Pick one or type a new name (or «Skip»).", markup: projectKeyboard(s.projects)}

	case stageProject:
		if !isSkipInput(text) {
			s.input.Project = text
		}
		s.stage = stageDueDate
		return reply{text: "⏰ When is it due? Send <code>2025-11-30</code>, «today» or «tomorrow».", markup: dueKeyboard()}

	case stageDueDate:
		due, ok := parseDue(text, today)
		if !ok {
			return reply{text: "I can't read that date. Use <code>2025-11-30</code>, «today» or «tomorrow».", markup: dueKeyboard()}
		}
		s.input.DueDate = due
		s.stage = stageRecurring
		return reply{text: "🔁 Should the task repeat?", markup: yesNoKeyboard()}

	case stageRecurring:
		switch {
		case isYesInput(text):
			s.input.IsRecurring = true
			s.stage = stagePattern
			return reply{text: "📆 How often?", markup: patternKeyboard()}
		case isNoInput(text):
			s.input.IsRecurring = false
			return reply{done: true}
		}
		return reply{text: "Press «Yes» or «No».", markup: yesNoKeyboard()}

	case stagePattern:
		if r, ok := s.applyPreset(text); ok {
			return r
		}
		pattern, ok := parsePattern(text)
		if !ok {
			return reply{text: "Pick a preset or daily, weekly, monthly or yearly.", markup: patternKeyboard()}
		}
		s.input.Pattern = pattern
		s.stage = stageInterval
		return reply{text: "🔢 Every how many " + unitName(pattern) + "s? (1 means every " + unitName(pattern) + ")", markup: cancelKeyboard()}

	case stageInterval:
		n, err := strconv.Atoi(text)
		if err != nil || n < 1 || n > maxInterval {
			return reply{text: "The interval must be a number from 1 to 365.", markup: cancelKeyboard()}
		}
		s.input.Interval = n
		s.stage = stageEndType
		return reply{text: "🏁 When should the series end?", markup: endTypeKeyboard()}

	case stageEndType:
		switch strings.ToLower(text) {
		case strings.ToLower(btnEndNever), "never":
			s.input.EndType = model.EndNever
			return s.askWeekdays()
		case strings.ToLower(btnEndDate), "date":
			s.input.EndType = model.EndDate
			s.stage = stageEndDate
			return reply{text: "Last possible day, as <code>2025-12-31</code>?", markup: cancelKeyboard()}
		case strings.ToLower(btnEndAfter), "after":
			s.input.EndType = model.EndAfterCount
			s.stage = stageEndAfter
			return reply{text: "How many occurrences in total?", markup: cancelKeyboard()}
		}
		return reply{text: "Pick one of the options.", markup: endTypeKeyboard()}

	case stageEndDate:
		end, err := date.Parse(text)
		if err != nil {
			return reply{text: "Use the format <code>2025-12-31</code>.", markup: cancelKeyboard()}
		}
		if end.Before(s.input.DueDate) {
			return reply{text: "The end date cannot be before the due date.", markup: cancelKeyboard()}
		}
		s.input.EndDate = end
		return s.askWeekdays()

	case stageEndAfter:
		n, err := strconv.Atoi(text)
		if err != nil || n < 1 {
			return reply{text: "Send a positive number.", markup: cancelKeyboard()}
		}
		s.input.EndAfter = n
		return s.askWeekdays()

	case stageWeekdays:
		switch {
		case isYesInput(text):
			s.input.SkipWeekends = true
		case isNoInput(text):
			s.input.SkipWeekends = false
		default:
			set, err := model.ParseWeekdaySet(text)
			if err != nil {
				return reply{text: "Press «Yes» or «No», or list days like <code>mon,wed,fri</code>.", markup: yesNoKeyboard()}
			}
			s.input.Weekdays = set
		}
		return reply{done: true}
	}

	return reply{text: "The dialog was reset. Try /newtask again.", markup: tgbotapi.NewRemoveKeyboard(true)}
}

const weekdaysPrompt = "📅 Skip Saturdays and Sundays? You can also list the days to keep, like <code>mon,wed,fri</code>."

// askWeekdays moves on to the weekday question, which presets answer
// themselves.
func (s *conversationState) askWeekdays() reply {
	if s.preset {
		return reply{done: true}
	}
	s.stage = stageWeekdays
	return reply{text: weekdaysPrompt, markup: yesNoKeyboard()}
}

// applyPreset fills the rule from one of the preset buttons.
func (s *conversationState) applyPreset(text string) (reply, bool) {
	in := &s.input
	var note string
	switch normalizeInput(text) {
	case normalizeInput(btnPresetWorkdays), "workdays":
		in.Pattern, in.Weekdays = model.PatternDaily, model.WorkWeek
		for !in.Weekdays.Has(in.DueDate.Weekday()) {
			in.DueDate = in.DueDate.AddDays(1)
		}
	case normalizeInput(btnPresetMondays), "mondays":
		in.Pattern, in.Weekdays = model.PatternWeekly, model.NewWeekdaySet(time.Monday)
		for in.DueDate.Weekday() != time.Monday {
			in.DueDate = in.DueDate.AddDays(1)
		}
	case normalizeInput(btnPresetMonthly):
		in.Pattern, in.Weekdays = model.PatternMonthly, 0
	default:
		return reply{}, false
	}
	in.Interval = 1
	in.SkipWeekends = false
	s.preset = true
	s.stage = stageEndType
	if !in.Weekdays.IsEmpty() {
		note = fmt.Sprintf(" First occurrence: %s.", in.DueDate)
	}
	return reply{text: "🏁 When should the series end?" + note, markup: endTypeKeyboard()}, true
}

func parseDue(text string, today date.Date) (date.Date, bool) {
	switch strings.ToLower(text) {
	case strings.ToLower(btnToday), "today":
		return today, true
	case strings.ToLower(btnTomorrow), "tomorrow":
		return today.AddDays(1), true
	}
	d, err := date.Parse(text)
	if err != nil {
		return date.Date{}, false
	}
	return d, true
}

func parsePattern(text string) (model.RecurringPattern, bool) {
	switch model.RecurringPattern(strings.ToLower(strings.TrimSpace(text))) {
	case model.PatternDaily:
		return model.PatternDaily, true
	case model.PatternWeekly:
		return model.PatternWeekly, true
	case model.PatternMonthly:
		return model.PatternMonthly, true
	case model.PatternYearly:
		return model.PatternYearly, true
	}
	return "", false
}

func unitName(p model.RecurringPattern) string {
	switch p {
	case model.PatternDaily:
		return "day"
	case model.PatternWeekly:
		return "week"
	case model.PatternMonthly:
		return "month"
	default:
		return "year"
	}
}
