package lms

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// ActivityID derives the stable identity of an activity from the fields that
// define it. The same (course, title, type) triple always hashes to the same
// id, so re-scraping an unchanged page resolves to existing rows instead of
// creating duplicates.
//
// Fields are joined with "_" without escaping; a title containing that exact
// separator adjacent to a field boundary can in theory collide with another
// triple. Known edge case, kept as-is.
func ActivityID(courseID, title, activityType string) string {
	return digest(fmt.Sprintf("%s_%s_%s", courseID, title, activityType))
}

// CalendarDeadlineID identifies a deadline imported from an iCalendar feed.
// The "cal_" tag keeps calendar ids disjoint from scraped ones even when the
// hash inputs happen to coincide.
func CalendarDeadlineID(site, startISO, title string) string {
	return "cal_" + digest(fmt.Sprintf("%s_%s_%s", site, startISO, title))
}

// ScrapedDeadlineID identifies a deadline mined out of activity text.
func ScrapedDeadlineID(activityID, dateISO string) string {
	return "scraped_" + digest(fmt.Sprintf("%s_%s", activityID, dateISO))
}

func digest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
