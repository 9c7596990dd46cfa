// Package recurrence expands RFC 5545 recurrence directives into concrete
// occurrence times.
//
// Rules are parsed by a small grammar covering FREQ, INTERVAL, COUNT, UNTIL
// and BYDAY. Iteration of a parsed rule is delegated to rrule-go.
package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/team-calendar/backend/internal/apperr"
)

// Frequency is the base repetition unit of a rule.
type Frequency int

const (
	Daily Frequency = iota + 1
	Weekly
	Monthly
	Yearly
)

var frequencyNames = map[string]Frequency{
	"DAILY":   Daily,
	"WEEKLY":  Weekly,
	"MONTHLY": Monthly,
	"YEARLY":  Yearly,
}

// String returns the RFC 5545 name of the frequency.
func (f Frequency) String() string {
	for name, v := range frequencyNames {
		if v == f {
			return name
		}
	}
	return fmt.Sprintf("Frequency(%d)", int(f))
}

var dayCodes = []struct {
	code string
	day  time.Weekday
	name string
}{
	{"MO", time.Monday, "Monday"},
	{"TU", time.Tuesday, "Tuesday"},
	{"WE", time.Wednesday, "Wednesday"},
	{"TH", time.Thursday, "Thursday"},
	{"FR", time.Friday, "Friday"},
	{"SA", time.Saturday, "Saturday"},
	{"SU", time.Sunday, "Sunday"},
}

func parseDayCode(code string) (time.Weekday, bool) {
	for _, d := range dayCodes {
		if d.code == code {
			return d.day, true
		}
	}
	return 0, false
}

func dayCode(day time.Weekday) string {
	for _, d := range dayCodes {
		if d.day == day {
			return d.code
		}
	}
	return ""
}

// Rule is a parsed RRULE.
type Rule struct {
	Freq     Frequency
	Interval int
	Count    int
	// Until is the inclusive end of the rule, zero when unbounded. A value
	// written without a trailing Z is floating and is pinned to the anchor's
	// location at expansion time.
	Until         time.Time
	UntilFloating bool
	ByDay         []time.Weekday
}

var (
	errEmptyRule     = errors.New("empty rule")
	errMissingFreq   = errors.New("FREQ is required")
	errCountAndUntil = errors.New("COUNT and UNTIL are mutually exclusive")
)

// ParseRule parses one rule line, with or without the RRULE: prefix.
// Errors wrap apperr.ErrInvalidRecurrence.
func ParseRule(line string) (Rule, error) {
	text := strings.TrimSpace(line)
	if len(text) >= 6 && strings.EqualFold(text[:6], "RRULE:") {
		text = text[6:]
	}
	if text == "" {
		return Rule{}, apperr.InvalidRecurrence(line, errEmptyRule)
	}

	r := Rule{Interval: 1}
	seen := make(map[string]bool)

	for _, part := range strings.Split(text, ";") {
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok || value == "" {
			return Rule{}, apperr.InvalidRecurrence(line, fmt.Errorf("malformed part %q", part))
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.ToUpper(strings.TrimSpace(value))
		if seen[key] {
			return Rule{}, apperr.InvalidRecurrence(line, fmt.Errorf("duplicate %s", key))
		}
		seen[key] = true

		if err := r.set(key, value); err != nil {
			return Rule{}, apperr.InvalidRecurrence(line, err)
		}
	}

	if r.Freq == 0 {
		return Rule{}, apperr.InvalidRecurrence(line, errMissingFreq)
	}
	if r.Count > 0 && !r.Until.IsZero() {
		return Rule{}, apperr.InvalidRecurrence(line, errCountAndUntil)
	}

	return r, nil
}

func (r *Rule) set(key, value string) error {
	switch key {
	case "FREQ":
		f, ok := frequencyNames[value]
		if !ok {
			return fmt.Errorf("unsupported FREQ %q", value)
		}
		r.Freq = f

	case "INTERVAL", "COUNT":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("%s must be a positive integer, got %q", key, value)
		}
		if key == "INTERVAL" {
			r.Interval = n
		} else {
			r.Count = n
		}

	case "UNTIL":
		t, floating, ok := parseCompactStamp(value, time.UTC)
		if !ok {
			return fmt.Errorf("invalid UNTIL %q", value)
		}
		r.Until, r.UntilFloating = t, floating

	case "BYDAY":
		for _, code := range strings.Split(value, ",") {
			day, ok := parseDayCode(strings.TrimSpace(code))
			if !ok {
				return fmt.Errorf("invalid BYDAY code %q", code)
			}
			r.ByDay = append(r.ByDay, day)
		}

	default:
		return fmt.Errorf("unsupported key %s", key)
	}
	return nil
}

// String renders the rule as canonical RRULE text without the prefix.
func (r Rule) String() string {
	parts := []string{"FREQ=" + r.Freq.String()}
	if r.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.Interval))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if !r.Until.IsZero() {
		if r.UntilFloating {
			parts = append(parts, "UNTIL="+r.Until.Format(stampLayout))
		} else {
			parts = append(parts, "UNTIL="+r.Until.UTC().Format(stampLayout)+"Z")
		}
	}
	if len(r.ByDay) > 0 {
		codes := make([]string, len(r.ByDay))
		for i, d := range r.ByDay {
			codes[i] = dayCode(d)
		}
		parts = append(parts, "BYDAY="+strings.Join(codes, ","))
	}
	return strings.Join(parts, ";")
}

var rruleFreq = map[Frequency]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

var rruleDay = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// iterator builds an rrule-go rule anchored at dtstart.
func (r Rule) iterator(dtstart time.Time) (*rrule.RRule, error) {
	opt := rrule.ROption{
		Freq:     rruleFreq[r.Freq],
		Interval: r.Interval,
		Count:    r.Count,
		Dtstart:  dtstart,
	}
	if !r.Until.IsZero() {
		until := r.Until
		if r.UntilFloating {
			until = time.Date(until.Year(), until.Month(), until.Day(),
				until.Hour(), until.Minute(), until.Second(), 0, dtstart.Location())
		}
		opt.Until = until
	}
	for _, d := range r.ByDay {
		opt.Byweekday = append(opt.Byweekday, rruleDay[d])
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, apperr.InvalidRecurrence(r.String(), err)
	}
	return rule, nil
}
