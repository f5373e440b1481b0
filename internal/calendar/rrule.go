package calendar

import (
	"time"

	"github.com/teambition/rrule-go"

	"crm-planner/internal/model"
	"crm-planner/internal/recurrence"
)

var byDay = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// weekdayFilter is the BYDAY list for set, or nil when every day is allowed.
func weekdayFilter(set model.WeekdaySet) []rrule.Weekday {
	if set == model.AllWeekdays {
		return nil
	}
	var out []rrule.Weekday
	for _, d := range set.Days() {
		out = append(out, byDay[d])
	}
	return out
}

// RuleOption builds the RFC 5545 equivalent of a recurring task. The
// occurrence limit of "after N" series is left out: it bounds instance
// creation, not the days a series fires on. ok is false for tasks that
// are not recurring, are misconfigured, or can never fire.
func RuleOption(task model.Task) (opt rrule.ROption, ok bool) {
	if !task.IsRecurring || recurrence.Validate(task) != nil {
		return rrule.ROption{}, false
	}
	anchor := task.DueDate
	allowed := task.Weekdays()

	opt = rrule.ROption{
		Interval: task.RecurringInterval,
		Dtstart:  anchor.Time(),
	}
	if task.RecurringEndType == model.EndDate {
		opt.Until = task.RecurringEndDate.Time()
	}

	switch task.RecurringPattern {
	case model.PatternDaily:
		opt.Freq = rrule.DAILY
		opt.Byweekday = weekdayFilter(allowed)
	case model.PatternWeekly:
		opt.Freq = rrule.WEEKLY
		if !allowed.Has(anchor.Weekday()) {
			return rrule.ROption{}, false
		}
	case model.PatternMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{anchor.Day}
		opt.Byweekday = weekdayFilter(allowed)
	case model.PatternYearly:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{int(anchor.Month)}
		opt.Bymonthday = []int{anchor.Day}
		opt.Byweekday = weekdayFilter(allowed)
	}
	return opt, true
}

// RuleFor renders the RRULE value of a recurring task. DTSTART is not
// part of the value; the series anchor is the task's DueDate, which Feed
// attaches as the PropRuleStart parameter.
func RuleFor(task model.Task) (string, bool) {
	opt, ok := RuleOption(task)
	if !ok {
		return "", false
	}
	return opt.RRuleString(), true
}

// Between lists the days in [from, to] the rule of task produces.
func Between(task model.Task, from, to time.Time) ([]time.Time, error) {
	opt, ok := RuleOption(task)
	if !ok {
		return nil, nil
	}
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, err
	}
	return rule.Between(from, to, true), nil
}
