// Package dateparse resolves casual deadline phrases ("by friday",
// "tomorrow", "in 3 days") to concrete dates. It is a best-effort rule
// table, not a natural-language date parser; anything it cannot match is
// reported as no date rather than guessed.
package dateparse

import (
	"regexp"
	"strings"
	"time"
)

// dueHour is the hour of day resolved dates land on.
const dueHour = 17

// offsetRule maps a keyword to a fixed day offset.
type offsetRule struct {
	pattern string
	days    int
}

// The multi-language entries mirror the languages seen in real traffic;
// they are matched as substrings after lowercasing.
var offsetRules = []offsetRule{
	{"day after tomorrow", 2},
	{"tomorrow", 1},
	{"mañana", 1},
	{"ngày mai", 1},
	{"demain", 1},
	{"end of day", 0},
	{"eod", 0},
	{"today", 0},
	{"tonight", 0},
	{"next week", 7},
}

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

var inDaysRe = regexp.MustCompile(`\bin (\d{1,2}) days?\b`)

// Resolve scans text for a deadline phrase and returns the resolved date,
// the phrase that matched, and whether anything matched at all. The first
// rule hit wins; offset keywords are checked before weekday names.
func Resolve(text string, now time.Time) (time.Time, string, bool) {
	lowered := strings.ToLower(text)

	for _, rule := range offsetRules {
		if strings.Contains(lowered, rule.pattern) {
			return atDueHour(now.AddDate(0, 0, rule.days)), rule.pattern, true
		}
	}

	if m := inDaysRe.FindStringSubmatch(lowered); m != nil {
		days := 0
		for _, ch := range m[1] {
			days = days*10 + int(ch-'0')
		}
		return atDueHour(now.AddDate(0, 0, days)), m[0], true
	}

	for name, weekday := range weekdays {
		if strings.Contains(lowered, name) {
			return atDueHour(upcoming(now, weekday)), name, true
		}
	}

	return time.Time{}, "", false
}

// upcoming returns the next occurrence of the weekday strictly after now's
// date, so "friday" said on a Friday means a week out.
func upcoming(now time.Time, weekday time.Weekday) time.Time {
	days := (int(weekday) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return now.AddDate(0, 0, days)
}

func atDueHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), dueHour, 0, 0, 0, t.Location())
}
