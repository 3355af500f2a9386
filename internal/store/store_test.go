package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedCourse(t *testing.T, st *SQLiteStore, id string) {
	t.Helper()
	require.NoError(t, st.UpsertCourse(context.Background(), &Course{
		CourseID: id,
		Site:     "ousl",
		Name:     "Software Engineering",
		URL:      "https://lms.example.edu/course/view.php?id=142",
	}))
}

func TestUpsertCourseRefreshes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	seedCourse(t, st, "ousl_142")

	require.NoError(t, st.UpsertCourse(ctx, &Course{
		CourseID: "ousl_142",
		Site:     "ousl",
		Name:     "Software Engineering (2026)",
		URL:      "https://lms.example.edu/course/view.php?id=142",
	}))

	courses, err := st.ListCourses(ctx, "ousl")
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "Software Engineering (2026)", courses[0].Name)
}

func TestEnsureCourseLeavesExistingUntouched(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnsureCourse(ctx, &Course{
		CourseID: "ousl_900", Site: "ousl", Name: "Forum-only course",
	}))

	courses, err := st.ListCourses(ctx, "ousl")
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, "Forum-only course", courses[0].Name)

	// An existing row keeps the name the scrape discovered.
	seedCourse(t, st, "ousl_142")
	require.NoError(t, st.EnsureCourse(ctx, &Course{
		CourseID: "ousl_142", Site: "ousl", Name: "se-forum",
	}))

	courses, err = st.ListCourses(ctx, "ousl")
	require.NoError(t, err)
	require.Len(t, courses, 2)
	for _, c := range courses {
		if c.CourseID == "ousl_142" {
			assert.Equal(t, "Software Engineering", c.Name)
		}
	}
}

func TestUpsertActivityLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, st, "ousl_142")

	a := &Activity{
		ActivityID:  "abc123",
		CourseID:    "ousl_142",
		Type:        "assign",
		Title:       "Assignment 1",
		Description: "v1",
	}

	isNew, err := st.UpsertActivity(ctx, a)
	require.NoError(t, err)
	assert.True(t, isNew)

	got, err := st.GetActivity(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, got.IsNew)
	firstSeen := got.FirstSeen

	// Re-observation: not new anymore, mutable fields refreshed,
	// first_seen untouched.
	a.Description = "v2"
	isNew, err = st.UpsertActivity(ctx, a)
	require.NoError(t, err)
	assert.False(t, isNew)

	got, err = st.GetActivity(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, got.IsNew)
	assert.Equal(t, "v2", got.Description)
	assert.True(t, got.FirstSeen.Equal(firstSeen))
}

func TestMarkActivitiesSeen(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, st, "ousl_142")

	for _, id := range []string{"a1", "a2"} {
		_, err := st.UpsertActivity(ctx, &Activity{
			ActivityID: id, CourseID: "ousl_142", Type: "assign", Title: id,
		})
		require.NoError(t, err)
	}

	fresh, err := st.ListNewActivities(ctx)
	require.NoError(t, err)
	require.Len(t, fresh, 2)

	ids := []string{fresh[0].ActivityID, fresh[1].ActivityID}
	require.NoError(t, st.MarkActivitiesSeen(ctx, ids, "email"))

	fresh, err = st.ListNewActivities(ctx)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	// Idempotent on the empty set.
	require.NoError(t, st.MarkActivitiesSeen(ctx, nil, "email"))
}

func TestUpsertDeadlineRefreshes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	d := &Deadline{
		DeadlineID:   "cal_1",
		Title:        "Final Exam",
		DeadlineDate: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		Site:         "ousl",
		Source:       SourceCalendar,
	}
	require.NoError(t, st.UpsertDeadline(ctx, d))

	d.DeadlineDate = time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpsertDeadline(ctx, d))

	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	deadlines, err := st.ListUpcomingDeadlines(ctx, now, 90*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, deadlines, 1)
	assert.True(t, deadlines[0].DeadlineDate.Equal(d.DeadlineDate))
}

func TestListUpcomingDeadlinesHorizon(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	for id, date := range map[string]time.Time{
		"past":    now.AddDate(0, 0, -5),
		"soon":    now.AddDate(0, 0, 7),
		"distant": now.AddDate(0, 0, 90),
	} {
		require.NoError(t, st.UpsertDeadline(ctx, &Deadline{
			DeadlineID: id, Title: id, DeadlineDate: date,
			Site: "ousl", Source: SourceScraped,
		}))
	}

	deadlines, err := st.ListUpcomingDeadlines(ctx, now, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, deadlines, 1)
	assert.Equal(t, "soon", deadlines[0].DeadlineID)
}

func TestPurgeCalendarDeadlinesLeavesScraped(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.UpsertDeadline(ctx, &Deadline{
		DeadlineID: "cal_x", Title: "From feed", DeadlineDate: date,
		Site: "ousl", Source: SourceCalendar,
	}))
	require.NoError(t, st.UpsertDeadline(ctx, &Deadline{
		DeadlineID: "scraped_x", Title: "From page", DeadlineDate: date,
		Site: "ousl", Source: SourceScraped,
	}))
	require.NoError(t, st.UpsertDeadline(ctx, &Deadline{
		DeadlineID: "cal_y", Title: "Other site", DeadlineDate: date,
		Site: "nodes", Source: SourceCalendar,
	}))

	require.NoError(t, st.PurgeCalendarDeadlines(ctx, "ousl"))

	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	deadlines, err := st.ListUpcomingDeadlines(ctx, now, 60*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, deadlines, 2)

	ids := []string{deadlines[0].DeadlineID, deadlines[1].DeadlineID}
	assert.Contains(t, ids, "scraped_x")
	assert.Contains(t, ids, "cal_y")
}

func TestScanRecordsAndStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	seedCourse(t, st, "ousl_142")

	_, err := st.UpsertActivity(ctx, &Activity{
		ActivityID: "a1", CourseID: "ousl_142", Type: "assign", Title: "Assignment 1",
	})
	require.NoError(t, err)

	require.NoError(t, st.AddScanRecord(ctx, &ScanRecord{
		Site: "ousl", CoursesFound: 1, ActivitiesFound: 1, NewActivities: 1,
		Status: ScanSuccess,
	}))
	require.NoError(t, st.AddScanRecord(ctx, &ScanRecord{
		Site: "nodes", Status: ScanFailed, ErrorMessage: "fetch dashboard: timeout",
	}))

	records, err := st.ListScanRecords(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	stats, err := st.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalCourses)
	assert.Equal(t, 1, stats.TotalActivities)
	assert.Equal(t, 1, stats.NewActivities)
	assert.Equal(t, 1, stats.ByType["assign"])
	assert.Equal(t, 1, stats.BySite["ousl"])
	require.NotNil(t, stats.LastScanTime)
}
