package lms

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Deadline phrases are only mined when anchored on a lead-in keyword, so bare
// numbers elsewhere in a description never turn into dates.
const leadIn = `(?i)(?:by|before|due on|due|deadline|submit by)[\s:]+`

var datePatterns = []*regexp.Regexp{
	// 15-10-2025 or 15/10/2025 (day first)
	regexp.MustCompile(leadIn + `(\d{1,2})[-/](\d{1,2})[-/](\d{4})`),
	// 2025-10-15 (year first, told apart by the 4-digit leading group)
	regexp.MustCompile(leadIn + `(\d{4})[-/](\d{1,2})[-/](\d{1,2})`),
	// 15th October 2025, 1 Jan 2026
	regexp.MustCompile(leadIn + `(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]+)\s+(\d{4})`),
}

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "jun": time.June, "jul": time.July,
	"aug": time.August, "sep": time.September, "oct": time.October,
	"nov": time.November, "dec": time.December,
}

// ExtractDates mines calendar dates out of free text. Source text carries no
// timezone, so every result is anchored at UTC midnight by convention. Matches
// that do not form a valid calendar date (month 13, day 32) are skipped, never
// fatal. Results follow the order the matches appear in the text, regardless
// of which pattern produced them; the caller picks.
func ExtractDates(text string) []time.Time {
	if text == "" {
		return nil
	}

	type hit struct {
		offset int
		date   time.Time
	}

	var hits []hit
	for _, pattern := range datePatterns {
		for _, m := range pattern.FindAllStringSubmatchIndex(text, -1) {
			d, ok := parseGroups(text[m[2]:m[3]], text[m[4]:m[5]], text[m[6]:m[7]])
			if ok {
				hits = append(hits, hit{offset: m[0], date: d})
			}
		}
	}
	if len(hits) == 0 {
		return nil
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].offset < hits[j].offset })

	dates := make([]time.Time, len(hits))
	for i, h := range hits {
		dates[i] = h.date
	}
	return dates
}

func parseGroups(first, second, third string) (time.Time, bool) {
	if month, ok := months[strings.ToLower(second)]; ok {
		day, err1 := strconv.Atoi(first)
		year, err2 := strconv.Atoi(third)
		if err1 != nil || err2 != nil {
			return time.Time{}, false
		}
		return makeDate(year, month, day)
	}

	a, err1 := strconv.Atoi(first)
	b, err2 := strconv.Atoi(second)
	c, err3 := strconv.Atoi(third)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}

	if len(first) == 4 {
		// year-month-day
		return makeDate(a, time.Month(b), c)
	}
	// day-month-year
	return makeDate(c, time.Month(b), a)
}

// makeDate builds a UTC-midnight date and rejects values time.Date would
// silently normalize (e.g. month 13 rolling into the next year).
func makeDate(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}
