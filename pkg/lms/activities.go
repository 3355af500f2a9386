package lms

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	activityClassPattern = regexp.MustCompile(`activity|modtype`)
	descClassPattern     = regexp.MustCompile(`description|summary`)
	dueClassPattern      = regexp.MustCompile(`due|deadline`)
)

// ExtractActivities pulls activity descriptors out of a rendered course page.
// Items without a link are skipped: they cannot be deep-linked or identified,
// so they carry no value. Everything else is best-effort; a malformed item
// never aborts the rest of the page.
func ExtractActivities(html string, courseURL string) []Activity {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	origin := courseOrigin(courseURL)

	var activities []Activity
	doc.Find("li").Each(func(_ int, item *goquery.Selection) {
		if !activityClassPattern.MatchString(item.AttrOr("class", "")) {
			return
		}

		link := item.Find("a[href]").First()
		if link.Length() == 0 {
			return
		}

		href := link.AttrOr("href", "")
		if strings.HasPrefix(href, "/") {
			href = origin + href
		}

		activities = append(activities, Activity{
			Type:         activityType(item),
			Title:        cleanText(link.Text()),
			URL:          href,
			Description:  activityDescription(item),
			DeadlineText: activityDeadlineText(item),
		})
	})

	return activities
}

// activityType derives the type tag from the modtype_<x> class token Moodle
// puts on every module list item.
func activityType(item *goquery.Selection) string {
	for _, cls := range strings.Fields(item.AttrOr("class", "")) {
		if rest, ok := strings.CutPrefix(cls, "modtype_"); ok {
			return rest
		}
	}
	return "unknown"
}

func activityDescription(item *goquery.Selection) string {
	var desc string
	item.Find("div").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if descClassPattern.MatchString(el.AttrOr("class", "")) {
			desc = cleanText(el.Text())
			return false
		}
		return true
	})
	return desc
}

// activityDeadlineText returns the raw text of the first due/deadline-classed
// span. The text stays unparsed here; date mining happens downstream.
func activityDeadlineText(item *goquery.Selection) string {
	var deadline string
	item.Find("span").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if !dueClassPattern.MatchString(el.AttrOr("class", "")) {
			return true
		}
		if text := cleanText(el.Text()); text != "" {
			deadline = text
			return false
		}
		return true
	})
	return deadline
}

// courseOrigin strips the /course/... path so relative module links can be
// rebased onto the instance origin.
func courseOrigin(courseURL string) string {
	if idx := strings.Index(courseURL, "/course/"); idx >= 0 {
		return courseURL[:idx]
	}
	return strings.TrimSuffix(courseURL, "/")
}
