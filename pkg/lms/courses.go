package lms

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Moodle restructures its dashboard markup between releases without notice, so
// course discovery is a cascade of structural guesses rather than one selector.
// Resilience beats precision here: a course with an imperfect name is still
// worth tracking, a failed selector just falls through to the next heuristic.

var courseLinkPattern = regexp.MustCompile(`/course/view\.php\?id=(\d+)`)

var cardClassPatterns = []*regexp.Regexp{
	regexp.MustCompile(`coursebox|course-listitem|course-info-container|dashboard-card`),
	regexp.MustCompile(`^card-body$`),
	regexp.MustCompile(`card.*course`),
}

var courseNameClassPattern = regexp.MustCompile(`coursename|course-name|multiline`)

// Strings that show up inside course cards but are never course names.
var boilerplateNames = map[string]bool{
	"course image":      true,
	"view activities":   true,
	"open in moodle":    true,
	"course is starred": true,
	"star this course":  true,
}

// nameStrategies are tried in order against a card or anchor subtree; the
// first usable result wins. Each is pure: selection in, candidate name out.
var nameStrategies = []func(*goquery.Selection) string{
	nameFromDedicatedClass,
	nameFromHeading,
	nameFromTruncateSpan,
	nameFromFilteredText,
}

// ExtractCourses pulls candidate courses out of a rendered dashboard page.
// Candidates are deduplicated by course id within the call. Unparseable HTML
// or a page with no recognizable structure degrades to an empty result.
func ExtractCourses(html string, site Site) []Course {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var courses []Course

	for _, card := range findCourseCards(doc) {
		link := card.Find("a").FilterFunction(isCourseLink).First()
		if link.Length() == 0 {
			continue
		}
		c, ok := courseFromLink(link, site, seen)
		if !ok {
			continue
		}
		c.Name = pickName(card)
		if !usableName(c.Name) {
			continue
		}
		courses = append(courses, c)
	}

	if len(courses) > 0 {
		return courses
	}

	// No card produced a course: scan every course-view anchor directly.
	doc.Find("a").FilterFunction(isCourseLink).Each(func(_ int, link *goquery.Selection) {
		c, ok := courseFromLink(link, site, seen)
		if !ok {
			return
		}
		c.Name = pickName(link)
		if !usableName(c.Name) {
			// Anchors sometimes carry the name only as an attribute.
			c.Name = strings.TrimSpace(link.AttrOr("title", link.AttrOr("aria-label", "")))
		}
		if !usableName(c.Name) {
			return
		}
		courses = append(courses, c)
	})

	return courses
}

// findCourseCards locates structural course containers, trying each known
// class pattern in priority order and stopping at the first non-empty match.
func findCourseCards(doc *goquery.Document) []*goquery.Selection {
	for _, pattern := range cardClassPatterns {
		var cards []*goquery.Selection
		doc.Find("div").Each(func(_ int, s *goquery.Selection) {
			if classMatches(pattern, s.AttrOr("class", "")) {
				cards = append(cards, s)
			}
		})
		if len(cards) > 0 {
			return cards
		}
	}
	return nil
}

// classMatches tests a pattern against the whole class attribute and against
// each class token, so anchored patterns still hit elements carrying extra
// utility classes.
func classMatches(pattern *regexp.Regexp, attr string) bool {
	if pattern.MatchString(attr) {
		return true
	}
	for _, cls := range strings.Fields(attr) {
		if pattern.MatchString(cls) {
			return true
		}
	}
	return false
}

func isCourseLink(_ int, s *goquery.Selection) bool {
	return courseLinkPattern.MatchString(s.AttrOr("href", ""))
}

// courseFromLink builds the course skeleton (id, url) from a course-view
// anchor. Returns false for malformed hrefs and within-call duplicates.
func courseFromLink(link *goquery.Selection, site Site, seen map[string]bool) (Course, bool) {
	href := link.AttrOr("href", "")
	m := courseLinkPattern.FindStringSubmatch(href)
	if m == nil {
		return Course{}, false
	}

	id := site.Name + "_" + m[1]
	if seen[id] {
		return Course{}, false
	}
	seen[id] = true

	return Course{
		ID:   id,
		Site: site.Name,
		URL:  absoluteURL(site.BaseURL, href),
	}, true
}

func pickName(s *goquery.Selection) string {
	for _, strategy := range nameStrategies {
		if name := strategy(s); usableName(name) {
			return name
		}
	}
	return ""
}

func nameFromDedicatedClass(s *goquery.Selection) string {
	var name string
	s.Find("span,h3,div").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if courseNameClassPattern.MatchString(el.AttrOr("class", "")) {
			name = cleanText(el.Text())
			return false
		}
		return true
	})
	return name
}

func nameFromHeading(s *goquery.Selection) string {
	return cleanText(s.Find("h2,h3,h4,h5").First().Text())
}

func nameFromTruncateSpan(s *goquery.Selection) string {
	return cleanText(s.Find("span.text-truncate").First().Text())
}

// nameFromFilteredText falls back to the subtree's own text, dropping known
// boilerplate fragments like "Course image".
func nameFromFilteredText(s *goquery.Selection) string {
	text := cleanText(s.Text())
	for phrase := range boilerplateNames {
		idx := strings.Index(strings.ToLower(text), phrase)
		if idx >= 0 {
			text = cleanText(text[:idx] + text[idx+len(phrase):])
		}
	}
	if strings.HasPrefix(strings.ToLower(text), "last checked:") ||
		strings.HasPrefix(strings.ToLower(text), "added:") {
		return ""
	}
	return text
}

func usableName(name string) bool {
	return len([]rune(name)) >= 3 && !boilerplateNames[strings.ToLower(name)]
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func cleanText(s string) string {
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(s, " "))
}

// absoluteURL rebases site-relative hrefs onto the site origin.
func absoluteURL(base, href string) string {
	if strings.HasPrefix(href, "/") {
		return strings.TrimSuffix(base, "/") + href
	}
	return href
}
