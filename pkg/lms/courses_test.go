package lms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSite = Site{
	Name:         "ousl",
	BaseURL:      "https://lms.example.edu",
	DashboardURL: "https://lms.example.edu/my/",
}

func TestExtractCoursesFromCards(t *testing.T) {
	html := `
	<html><body>
	<div class="coursebox">
		<img alt="Course image">
		<a href="/course/view.php?id=142">
			<span class="multiline">Software Engineering</span>
		</a>
	</div>
	<div class="coursebox">
		<a href="/course/view.php?id=157"><h3>Database Systems</h3></a>
	</div>
	</body></html>`

	courses := ExtractCourses(html, testSite)
	require.Len(t, courses, 2)

	assert.Equal(t, "ousl_142", courses[0].ID)
	assert.Equal(t, "ousl", courses[0].Site)
	assert.Equal(t, "Software Engineering", courses[0].Name)
	assert.Equal(t, "https://lms.example.edu/course/view.php?id=142", courses[0].URL)

	assert.Equal(t, "ousl_157", courses[1].ID)
	assert.Equal(t, "Database Systems", courses[1].Name)
}

func TestExtractCoursesAnchorFallback(t *testing.T) {
	// No card structure at all: course-view anchors are scanned directly.
	html := `
	<html><body>
	<nav><a href="/course/view.php?id=88">Operating Systems</a></nav>
	<a href="/course/view.php?id=99" title="Computer Networks"></a>
	</body></html>`

	courses := ExtractCourses(html, testSite)
	require.Len(t, courses, 2)
	assert.Equal(t, "Operating Systems", courses[0].Name)
	// Anchor with no text falls back to the title attribute.
	assert.Equal(t, "Computer Networks", courses[1].Name)
}

func TestExtractCoursesCardBodyWithUtilityClasses(t *testing.T) {
	// card-body usually arrives with extra utility classes attached.
	html := `
	<html><body>
	<div class="card-body p-3">
		<a href="/course/view.php?id=201"><h4>Human Computer Interaction</h4></a>
	</div>
	</body></html>`

	courses := ExtractCourses(html, testSite)
	require.Len(t, courses, 1)
	assert.Equal(t, "ousl_201", courses[0].ID)
	assert.Equal(t, "Human Computer Interaction", courses[0].Name)
}

func TestExtractCoursesDeduplicates(t *testing.T) {
	html := `
	<html><body>
	<div class="coursebox"><a href="/course/view.php?id=142"><h3>Software Engineering</h3></a></div>
	<div class="coursebox"><a href="/course/view.php?id=142"><h3>Software Engineering</h3></a></div>
	</body></html>`

	courses := ExtractCourses(html, testSite)
	require.Len(t, courses, 1)
	assert.Equal(t, "ousl_142", courses[0].ID)
}

func TestExtractCoursesSkipsBoilerplateNames(t *testing.T) {
	html := `
	<html><body>
	<div class="coursebox"><a href="/course/view.php?id=7"><h3>Course image</h3></a></div>
	</body></html>`

	assert.Empty(t, ExtractCourses(html, testSite))
}

func TestExtractCoursesIgnoresUnrelatedLinks(t *testing.T) {
	html := `
	<html><body>
	<a href="/mod/forum/view.php?id=5">Announcements</a>
	<a href="https://example.com">External</a>
	</body></html>`

	assert.Empty(t, ExtractCourses(html, testSite))
}

func TestExtractCoursesEmptyPage(t *testing.T) {
	assert.Empty(t, ExtractCourses("", testSite))
	assert.Empty(t, ExtractCourses("<html><body></body></html>", testSite))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Software Engineering", cleanText("  Software \n\t Engineering  "))
	assert.Equal(t, "", cleanText("   "))
}
