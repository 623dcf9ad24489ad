package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// dtgRe matches a date-time group with an optional two-digit year,
	// e.g. "041130Z MAY 22" or "041130Z MAY".
	dtgRe = regexp.MustCompile(`(\d{2})(\d{2})(\d{2})Z ([A-Z]{3})(?: (\d{2})\b)?`)

	// cancelDTGRe matches the DTG in the closing "CANCEL THIS MSG" paragraph.
	cancelDTGRe = regexp.MustCompile(`(?i)CANCEL THIS MSG (\d{6}Z [A-Z]{3}(?: \d{2}\b)?)`)
)

var months = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// parseDTG converts a "DDHHMMZ MON [YY]" token into a UTC time. A missing
// year is replaced by defaultYear. Returns nil for anything that does not
// name a real calendar instant.
func parseDTG(token string, defaultYear int) *time.Time {
	m := dtgRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(token)))
	if m == nil {
		return nil
	}

	day, _ := strconv.Atoi(m[1])
	hour, _ := strconv.Atoi(m[2])
	minute, _ := strconv.Atoi(m[3])
	month, ok := months[m[4]]
	if !ok {
		return nil
	}
	year := defaultYear
	if m[5] != "" {
		yy, _ := strconv.Atoi(m[5])
		year = 2000 + yy
	}
	if hour > 23 || minute > 59 || day < 1 {
		return nil
	}

	t := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	// time.Date normalizes overflow (31 APR -> 1 MAY); reject those.
	if t.Day() != day || t.Month() != month {
		return nil
	}
	return &t
}

// FormatDTG renders t in the broadcast "DDHHMMZ MON YY" form.
func FormatDTG(t time.Time) string {
	return strings.ToUpper(t.UTC().Format("021504Z Jan 06"))
}
