package recurrence

import (
	"strings"
	"time"
)

const (
	dateLayout  = "20060102"
	stampLayout = "20060102T150405"
)

var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseCompactStamp parses YYYYMMDD or YYYYMMDDTHHMMSS[Z]. Values without a
// trailing Z are read in loc and reported as floating.
func parseCompactStamp(s string, loc *time.Location) (t time.Time, floating bool, ok bool) {
	utc := strings.HasSuffix(s, "Z")
	s = strings.TrimSuffix(s, "Z")

	layout := stampLayout
	if len(s) == len(dateLayout) {
		layout = dateLayout
	}
	if utc {
		loc = time.UTC
	}

	t, err := time.ParseInLocation(layout, s, loc)
	if err != nil {
		return time.Time{}, false, false
	}
	return t, !utc, true
}

// parseDateList parses the comma-separated value of an EXDATE or RDATE line.
// Bare and compact date-times are read in loc with any trailing Z dropped.
// Tokens that match no known layout are skipped.
func parseDateList(value string, loc *time.Location) []time.Time {
	var out []time.Time
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if t, ok := parseDateToken(tok, loc); ok {
			out = append(out, t)
		}
	}
	return out
}

func parseDateToken(tok string, loc *time.Location) (time.Time, bool) {
	compact := strings.TrimSuffix(tok, "Z")
	layout := stampLayout
	if len(compact) == len(dateLayout) {
		layout = dateLayout
	}
	if t, err := time.ParseInLocation(layout, compact, loc); err == nil {
		return t, true
	}

	for _, l := range fallbackLayouts {
		if t, err := time.ParseInLocation(l, tok, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// splitDirective separates "NAME;PARAMS:VALUE" into its name, TZID
// parameter and value. ok is false when the line has no ":".
func splitDirective(line string) (name, tzid, value string, ok bool) {
	head, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", "", false
	}
	params := strings.Split(head, ";")
	name = strings.ToUpper(params[0])
	for _, p := range params[1:] {
		if k, v, found := strings.Cut(p, "="); found && strings.EqualFold(k, "TZID") {
			tzid = v
		}
	}
	return name, tzid, value, true
}
