package recurrence

import (
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// DefaultMaxInstances caps raw rule hits when the caller passes no limit.
const DefaultMaxInstances = 1000

// edgeMargin widens the rule window so occurrences on the boundaries are
// not lost before RDATE and EXDATE are applied.
const edgeMargin = 24 * time.Hour

// Directives is a classified directive list.
type Directives struct {
	Rule    *Rule
	RDates  []time.Time
	ExDates []time.Time
}

// Parse classifies directive lines. EXDATE and RDATE values are read in
// the location of anchor unless the line carries a TZID. Every other
// non-blank line is a rule; when several are present the last wins.
func Parse(anchor time.Time, directives []string) (Directives, error) {
	var d Directives
	for _, raw := range directives {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "EXDATE") || strings.HasPrefix(upper, "RDATE") {
			name, tzid, value, ok := splitDirective(line)
			if ok && (name == "EXDATE" || name == "RDATE") {
				loc := anchor.Location()
				if tzid != "" {
					if l, err := time.LoadLocation(tzid); err == nil {
						loc = l
					}
				}
				dates := parseDateList(value, loc)
				if name == "EXDATE" {
					d.ExDates = append(d.ExDates, dates...)
				} else {
					d.RDates = append(d.RDates, dates...)
				}
				continue
			}
		}

		r, err := ParseRule(line)
		if err != nil {
			return Directives{}, err
		}
		d.Rule = &r
	}
	return d, nil
}

// Expand returns the occurrence start times of a recurring event that fall
// inside [windowStart, windowEnd], inclusive on both ends. The result is
// (rule hits ∪ RDATE) − EXDATE, sorted ascending with duplicate instants
// collapsed. With no directives the anchor itself is the only candidate.
//
// Rule hits are counted over the widened window and truncated at
// maxInstances; a non-positive maxInstances means DefaultMaxInstances.
// A malformed rule returns an error wrapping apperr.ErrInvalidRecurrence.
func Expand(anchor time.Time, directives []string, windowStart, windowEnd time.Time, maxInstances int) ([]time.Time, error) {
	if len(directives) == 0 {
		if inWindow(anchor, windowStart, windowEnd) {
			return []time.Time{anchor}, nil
		}
		return []time.Time{}, nil
	}
	if maxInstances <= 0 {
		maxInstances = DefaultMaxInstances
	}

	d, err := Parse(anchor, directives)
	if err != nil {
		return nil, err
	}

	var set rrule.Set
	if d.Rule != nil {
		hits, err := ruleHits(*d.Rule, anchor, windowStart.Add(-edgeMargin), windowEnd.Add(edgeMargin), maxInstances)
		if err != nil {
			return nil, err
		}
		for _, t := range hits {
			set.RDate(t)
		}
	}
	for _, t := range d.RDates {
		set.RDate(t)
	}
	for _, t := range d.ExDates {
		set.ExDate(t)
	}

	return collapse(set.Between(windowStart, windowEnd, true)), nil
}

// ruleHits iterates the rule from anchor and keeps at most limit hits
// inside [from, to].
func ruleHits(r Rule, anchor, from, to time.Time, limit int) ([]time.Time, error) {
	rule, err := r.iterator(anchor)
	if err != nil {
		return nil, err
	}

	var hits []time.Time
	next := rule.Iterator()
	for len(hits) < limit {
		t, ok := next()
		if !ok || t.After(to) {
			break
		}
		if t.Before(from) {
			continue
		}
		hits = append(hits, t)
	}
	return hits, nil
}

func collapse(times []time.Time) []time.Time {
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	out := make([]time.Time, 0, len(times))
	for _, t := range times {
		if n := len(out); n > 0 && out[n-1].Equal(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}
