package model

import (
	"fmt"
	"strings"
	"time"
)

// WeekdaySet is a set of weekdays kept as a bitmask, bit n standing for
// time.Weekday(n). The empty set means the task has no explicit selection.
type WeekdaySet uint8

const (
	AllWeekdays WeekdaySet = 1<<7 - 1
	WorkWeek    WeekdaySet = 1<<time.Monday | 1<<time.Tuesday | 1<<time.Wednesday | 1<<time.Thursday | 1<<time.Friday
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		s |= 1 << (d % 7)
	}
	return s
}

func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<d) != 0
}

func (s WeekdaySet) IsEmpty() bool {
	return s&AllWeekdays == 0
}

// Days lists the members from Monday to Sunday.
func (s WeekdaySet) Days() []time.Weekday {
	var out []time.Weekday
	for i := 1; i <= 7; i++ {
		d := time.Weekday(i % 7)
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// String renders the set as "Mon,Wed,Fri".
func (s WeekdaySet) String() string {
	names := make([]string, 0, 7)
	for _, d := range s.Days() {
		names = append(names, d.String()[:3])
	}
	return strings.Join(names, ",")
}

// ParseWeekdaySet reads a list of three-letter day names separated by
// commas or spaces. "weekdays" and "all" are accepted as shorthands.
func ParseWeekdaySet(text string) (WeekdaySet, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "weekdays", "workdays", "mon-fri":
		return WorkWeek, nil
	case "all", "any", "every day":
		return AllWeekdays, nil
	}

	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})
	var s WeekdaySet
	for _, f := range fields {
		if len(f) < 3 {
			return 0, fmt.Errorf("unknown weekday %q", f)
		}
		d, ok := weekdayNames[f[:3]]
		if !ok || !strings.HasPrefix(strings.ToLower(d.String()), f) {
			return 0, fmt.Errorf("unknown weekday %q", f)
		}
		s |= 1 << d
	}
	if s.IsEmpty() {
		return 0, fmt.Errorf("no weekdays in %q", text)
	}
	return s, nil
}
