package recurrence

import (
	"strings"
)

const fallbackSummary = "Custom recurrence"

var summaryFreq = map[string]string{
	"DAILY":   "Daily",
	"WEEKLY":  "Weekly",
	"MONTHLY": "Monthly",
	"YEARLY":  "Yearly",
}

// FormatSummary describes a rule in English, e.g. "Weekly, on Tuesday,
// Friday, 10 times". It never fails: input it cannot describe yields
// "Custom recurrence".
func FormatSummary(rule string) string {
	params := make(map[string]string)
	for _, part := range strings.Split(strings.Replace(rule, "RRULE:", "", 1), ";") {
		if k, v, ok := strings.Cut(part, "="); ok {
			params[k] = v
		}
	}

	var parts []string
	if f, ok := summaryFreq[params["FREQ"]]; ok {
		parts = append(parts, f)
	}

	if interval := params["INTERVAL"]; interval != "" && interval != "1" {
		if len(parts) == 0 {
			return fallbackSummary
		}
		parts[0] = "Every " + interval + " " + strings.ToLower(parts[0])
	}

	if byday := params["BYDAY"]; byday != "" {
		var days []string
		for _, code := range strings.Split(byday, ",") {
			code = strings.TrimSpace(code)
			name := code
			for _, d := range dayCodes {
				if d.code == code {
					name = d.name
				}
			}
			days = append(days, name)
		}
		parts = append(parts, "on "+strings.Join(days, ", "))
	}

	if count := params["COUNT"]; count != "" {
		parts = append(parts, count+" times")
	} else if until := params["UNTIL"]; until != "" {
		parts = append(parts, "until "+until)
	}

	if len(parts) == 0 {
		return fallbackSummary
	}
	return strings.Join(parts, ", ")
}
