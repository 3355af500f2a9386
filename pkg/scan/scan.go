package scan

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kavindu/lmswatch/internal/store"
	"github.com/kavindu/lmswatch/pkg/fetch"
	"github.com/kavindu/lmswatch/pkg/lms"
)

// Engine runs one full scan over the configured sites: fetch dashboards,
// extract courses and activities, reconcile everything against the store.
//
// Failure isolation is the whole design: a site that cannot be scraped is
// recorded as a failed scan and never aborts the other site; a single bad
// course or activity is counted and skipped. The worst outcome of any error
// is a partial result for one site in one cycle.
type Engine struct {
	store   store.Store
	fetcher fetch.Fetcher
	sites   []lms.Site
	forums  *lms.ForumWatcher
}

// SiteReport summarizes the scan of one site.
type SiteReport struct {
	Site          string
	Courses       int
	Activities    int
	NewActivities int
	ItemErrors    []string
	Err           error
}

// Report aggregates one full scan.
type Report struct {
	Sites    []SiteReport
	TotalNew int
}

// New creates a scan engine. forums may be nil when no feeds are configured.
func New(st store.Store, f fetch.Fetcher, sites []lms.Site, forums *lms.ForumWatcher) *Engine {
	return &Engine{store: st, fetcher: f, sites: sites, forums: forums}
}

// Run scans every site sequentially (the rendering session is a shared
// resource) and appends one ScanRecord per site per attempt.
func (e *Engine) Run(ctx context.Context) *Report {
	report := &Report{}

	for _, site := range e.sites {
		sr := e.scanSite(ctx, site)
		report.Sites = append(report.Sites, sr)
		report.TotalNew += sr.NewActivities

		record := &store.ScanRecord{
			Site:            sr.Site,
			CoursesFound:    sr.Courses,
			ActivitiesFound: sr.Activities,
			NewActivities:   sr.NewActivities,
			Status:          store.ScanSuccess,
		}
		if sr.Err != nil {
			record.Status = store.ScanFailed
			record.ErrorMessage = sr.Err.Error()
		}
		if err := e.store.AddScanRecord(ctx, record); err != nil {
			slog.Error("record scan failed", "site", sr.Site, "error", err)
		}
	}

	if e.forums != nil {
		sr := e.collectForums(ctx)
		report.Sites = append(report.Sites, sr)
		report.TotalNew += sr.NewActivities
	}

	return report
}

func (e *Engine) scanSite(ctx context.Context, site lms.Site) SiteReport {
	sr := SiteReport{Site: site.Name}
	slog.Info("scanning site", "site", site.Name)

	html, err := e.fetcher.Fetch(ctx, site.DashboardURL)
	if err != nil {
		sr.Err = fmt.Errorf("fetch dashboard: %w", err)
		slog.Error("site scan failed", "site", site.Name, "error", sr.Err)
		return sr
	}

	courses := lms.ExtractCourses(html, site)
	sr.Courses = len(courses)
	slog.Info("found courses", "site", site.Name, "count", len(courses))

	for _, course := range courses {
		if err := e.scanCourse(ctx, course, &sr); err != nil {
			sr.ItemErrors = append(sr.ItemErrors, fmt.Sprintf("%s: %v", course.ID, err))
			slog.Warn("course scan failed", "course", course.ID, "error", err)
		}
	}

	return sr
}

func (e *Engine) scanCourse(ctx context.Context, course lms.Course, sr *SiteReport) error {
	c := &store.Course{
		CourseID: course.ID,
		Site:     course.Site,
		Name:     course.Name,
		URL:      course.URL,
	}
	if err := e.store.UpsertCourse(ctx, c); err != nil {
		return err
	}

	page, err := e.fetcher.Fetch(ctx, course.URL)
	if err != nil {
		return fmt.Errorf("fetch course page: %w", err)
	}

	for _, act := range lms.ExtractActivities(page, course.URL) {
		isNew, err := e.reconcile(ctx, course.ID, course.Site, act)
		if err != nil {
			sr.ItemErrors = append(sr.ItemErrors, fmt.Sprintf("%s/%s: %v", course.ID, act.Title, err))
			continue
		}
		sr.Activities++
		if isNew {
			sr.NewActivities++
			slog.Info("new activity", "course", course.ID, "type", act.Type, "title", act.Title)
		}
	}

	return nil
}

// reconcile upserts one activity and mines its deadline. Deadline mining is
// best-effort and never blocks the activity insert.
func (e *Engine) reconcile(ctx context.Context, courseID, site string, act lms.Activity) (bool, error) {
	id := lms.ActivityID(courseID, act.Title, act.Type)

	a := &store.Activity{
		ActivityID:   id,
		CourseID:     courseID,
		Type:         act.Type,
		Title:        act.Title,
		Description:  act.Description,
		URL:          act.URL,
		DeadlineText: act.DeadlineText,
	}
	isNew, err := e.store.UpsertActivity(ctx, a)
	if err != nil {
		return false, err
	}

	if err := e.mineDeadline(ctx, id, courseID, site, act); err != nil {
		slog.Warn("deadline mining failed", "activity", id, "error", err)
	}

	return isNew, nil
}

// mineDeadline runs the date miner over the activity's deadline text,
// description and title, and stores the earliest hit as a scraped deadline.
func (e *Engine) mineDeadline(ctx context.Context, activityID, courseID, site string, act lms.Activity) error {
	var dates []time.Time
	for _, text := range []string{act.DeadlineText, act.Description, act.Title} {
		dates = append(dates, lms.ExtractDates(text)...)
	}
	if len(dates) == 0 {
		return nil
	}

	earliest := dates[0]
	for _, d := range dates[1:] {
		if d.Before(earliest) {
			earliest = d
		}
	}

	d := &store.Deadline{
		DeadlineID:   lms.ScrapedDeadlineID(activityID, earliest.Format(time.RFC3339)),
		Title:        act.Title,
		Description:  act.DeadlineText,
		DeadlineDate: earliest,
		Site:         site,
		CourseID:     nullString(courseID),
		ActivityID:   nullString(activityID),
		Source:       store.SourceScraped,
	}
	return e.store.UpsertDeadline(ctx, d)
}

// collectForums folds configured forum RSS feeds through the same identity
// and reconciliation path as scraped activities. Each feed's course is
// upserted first: forum courses may never appear on a scraped dashboard, and
// without a courses row the activity joins would hide their posts from every
// read path.
func (e *Engine) collectForums(ctx context.Context) SiteReport {
	sr := SiteReport{Site: "forums"}

	for _, feed := range e.forums.Feeds() {
		c := &store.Course{
			CourseID: feed.CourseID,
			Site:     siteOf(feed.CourseID),
			Name:     feed.Name,
			URL:      feed.URL,
		}
		if err := e.store.EnsureCourse(ctx, c); err != nil {
			sr.ItemErrors = append(sr.ItemErrors, fmt.Sprintf("%s: %v", feed.CourseID, err))
			slog.Warn("forum course upsert failed", "course", feed.CourseID, "error", err)
		}
	}

	for _, post := range e.forums.Collect(ctx) {
		isNew, err := e.reconcile(ctx, post.CourseID, siteOf(post.CourseID), post.Activity)
		if err != nil {
			sr.ItemErrors = append(sr.ItemErrors, fmt.Sprintf("%s/%s: %v", post.CourseID, post.Activity.Title, err))
			continue
		}
		sr.Activities++
		if isNew {
			sr.NewActivities++
		}
	}

	record := &store.ScanRecord{
		Site:            sr.Site,
		ActivitiesFound: sr.Activities,
		NewActivities:   sr.NewActivities,
		Status:          store.ScanSuccess,
	}
	if err := e.store.AddScanRecord(ctx, record); err != nil {
		slog.Error("record forum scan failed", "error", err)
	}

	return sr
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// siteOf recovers the site tag from a prefixed course id like "ousl_142".
func siteOf(courseID string) string {
	for i, r := range courseID {
		if r == '_' {
			return courseID[:i]
		}
	}
	return courseID
}
