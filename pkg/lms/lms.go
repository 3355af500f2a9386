package lms

// Site describes one LMS front-end being watched.
type Site struct {
	// Name is the short site tag, e.g. "ousl". It prefixes course ids and
	// labels everything extracted from this site.
	Name string

	// BaseURL is the origin of the Moodle instance, without trailing slash.
	BaseURL string

	// DashboardURL is the rendered page listing the user's courses.
	DashboardURL string

	// CalendarURL is the iCalendar export endpoint, empty if the site has none.
	CalendarURL string
}

// Course is a course discovered on a dashboard page.
type Course struct {
	// ID is the site-prefixed stable identifier, e.g. "ousl_142". The numeric
	// part is assigned by the remote system, not content-hashed.
	ID   string
	Site string
	Name string
	URL  string
}

// Activity is a single piece of course content discovered on a course page.
type Activity struct {
	Type         string
	Title        string
	URL          string
	Description  string
	DeadlineText string
}
