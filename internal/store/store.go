package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Deadline sources. The deadlines table is partitioned by this column:
// calendar rows may be purged and re-synced as a batch, scraped rows never.
const (
	SourceScraped  = "scraped"
	SourceCalendar = "calendar"
)

// Scan outcomes recorded in scan_history.
const (
	ScanSuccess = "success"
	ScanFailed  = "failed"
)

// Course is a tracked course. Created on first observation, refreshed on
// every later one, never deleted.
type Course struct {
	CourseID    string    `db:"course_id" json:"course_id"`
	Site        string    `db:"lms_name" json:"lms_name"`
	Name        string    `db:"course_name" json:"course_name"`
	URL         string    `db:"course_url" json:"course_url"`
	FirstSeen   time.Time `db:"first_seen" json:"first_seen"`
	LastChecked time.Time `db:"last_checked" json:"last_checked"`
}

// Activity is one row of the append-only activity ledger.
type Activity struct {
	ActivityID   string         `db:"activity_id" json:"activity_id"`
	CourseID     string         `db:"course_id" json:"course_id"`
	Type         string         `db:"activity_type" json:"activity_type"`
	Title        string         `db:"title" json:"title"`
	Description  string         `db:"description" json:"description"`
	URL          string         `db:"url" json:"url"`
	DeadlineText string         `db:"deadline_text" json:"deadline_text"`
	FirstSeen    time.Time      `db:"first_seen" json:"first_seen"`
	IsNew        bool           `db:"is_new" json:"is_new"`
	Metadata     map[string]any `db:"-" json:"metadata,omitempty"`
	MetadataJSON string         `db:"metadata" json:"-"`

	// Joined from courses on read paths that need display context.
	CourseName string `db:"course_name" json:"course_name,omitempty"`
	Site       string `db:"lms_name" json:"lms_name,omitempty"`
}

// Deadline is an upcoming due date, either mined from activity text or
// imported from a calendar feed.
type Deadline struct {
	DeadlineID   string         `db:"deadline_id" json:"deadline_id"`
	Title        string         `db:"title" json:"title"`
	Description  string         `db:"description" json:"description"`
	DeadlineDate time.Time      `db:"deadline_date" json:"deadline_date"`
	Site         string         `db:"lms_name" json:"lms_name"`
	CourseID     sql.NullString `db:"course_id" json:"-"`
	ActivityID   sql.NullString `db:"activity_id" json:"-"`
	Source       string         `db:"source" json:"source"`
	Location     string         `db:"location" json:"location"`
	FirstSeen    time.Time      `db:"first_seen" json:"first_seen"`
}

// ScanRecord is one audit row per site per scan attempt. Append-only.
type ScanRecord struct {
	ID              int64     `db:"id" json:"id"`
	Site            string    `db:"lms_name" json:"lms_name"`
	ScanTime        time.Time `db:"scan_time" json:"scan_time"`
	CoursesFound    int       `db:"courses_found" json:"courses_found"`
	ActivitiesFound int       `db:"activities_found" json:"activities_found"`
	NewActivities   int       `db:"new_activities" json:"new_activities"`
	Status          string    `db:"status" json:"status"`
	ErrorMessage    string    `db:"error_message" json:"error_message"`
}

// NotificationRecord logs one successful delivery per activity.
type NotificationRecord struct {
	ID         int64     `db:"id" json:"id"`
	ActivityID string    `db:"activity_id" json:"activity_id"`
	SentAt     time.Time `db:"sent_at" json:"sent_at"`
	Channel    string    `db:"channel" json:"channel"`
	Status     string    `db:"status" json:"status"`
}

// Stats summarizes the store for the dashboard.
type Stats struct {
	TotalCourses    int            `json:"total_courses"`
	TotalActivities int            `json:"total_activities"`
	NewActivities   int            `json:"new_activities"`
	ByType          map[string]int `json:"activities_by_type"`
	BySite          map[string]int `json:"courses_by_site"`
	LastScanTime    *time.Time     `json:"last_scan_time,omitempty"`
	LastScanSite    string         `json:"last_scan_site,omitempty"`
}

// Store is the persistence interface.
type Store interface {
	UpsertCourse(ctx context.Context, c *Course) error

	// EnsureCourse inserts the course if absent and leaves an existing row
	// untouched, so a secondary source can back its activities without
	// overwriting what a scrape discovered.
	EnsureCourse(ctx context.Context, c *Course) error
	ListCourses(ctx context.Context, site string) ([]Course, error)

	// UpsertActivity inserts a first-time activity with is_new=1 and reports
	// true; re-observing an existing id refreshes mutable fields, forces
	// is_new=0 and reports false. first_seen is never touched after insert.
	UpsertActivity(ctx context.Context, a *Activity) (bool, error)
	GetActivity(ctx context.Context, id string) (*Activity, error)
	ListActivitiesByCourse(ctx context.Context, courseID string) ([]Activity, error)
	ListRecentActivities(ctx context.Context, limit int) ([]Activity, error)
	ListNewActivities(ctx context.Context) ([]Activity, error)
	MarkActivitiesSeen(ctx context.Context, ids []string, channel string) error

	UpsertDeadline(ctx context.Context, d *Deadline) error
	ListUpcomingDeadlines(ctx context.Context, now time.Time, horizon time.Duration) ([]Deadline, error)
	PurgeCalendarDeadlines(ctx context.Context, site string) error

	AddScanRecord(ctx context.Context, r *ScanRecord) error
	ListScanRecords(ctx context.Context, limit int) ([]ScanRecord, error)

	GetStats(ctx context.Context) (*Stats, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertCourse(ctx context.Context, c *Course) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courses (course_id, lms_name, course_name, course_url, first_seen, last_checked)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(course_id) DO UPDATE SET
			course_name = excluded.course_name,
			course_url = excluded.course_url,
			last_checked = excluded.last_checked
	`, c.CourseID, c.Site, c.Name, c.URL, now, now)
	if err != nil {
		return fmt.Errorf("upsert course %s: %w", c.CourseID, err)
	}
	return nil
}

func (s *SQLiteStore) EnsureCourse(ctx context.Context, c *Course) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courses (course_id, lms_name, course_name, course_url, first_seen, last_checked)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(course_id) DO NOTHING
	`, c.CourseID, c.Site, c.Name, c.URL, now, now)
	if err != nil {
		return fmt.Errorf("ensure course %s: %w", c.CourseID, err)
	}
	return nil
}

func (s *SQLiteStore) ListCourses(ctx context.Context, site string) ([]Course, error) {
	query := "SELECT * FROM courses"
	var args []any
	if site != "" {
		query += " WHERE lms_name = ?"
		args = append(args, site)
	}
	query += " ORDER BY lms_name, course_name"

	var courses []Course
	if err := s.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

func (s *SQLiteStore) UpsertActivity(ctx context.Context, a *Activity) (bool, error) {
	metaJSON, _ := json.Marshal(a.Metadata)
	if a.Metadata == nil {
		metaJSON = []byte("{}")
	}

	var exists int
	err := s.db.GetContext(ctx, &exists,
		"SELECT 1 FROM activities WHERE activity_id = ?", a.ActivityID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("check activity %s: %w", a.ActivityID, err)
	}

	if err == nil {
		// Re-observation: refresh mutable fields only. Seen is terminal, so
		// this always clears is_new regardless of content changes.
		_, err = s.db.ExecContext(ctx, `
			UPDATE activities
			SET description = ?, url = ?, deadline_text = ?, metadata = ?, is_new = 0
			WHERE activity_id = ?
		`, a.Description, a.URL, a.DeadlineText, string(metaJSON), a.ActivityID)
		if err != nil {
			return false, fmt.Errorf("update activity %s: %w", a.ActivityID, err)
		}
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activities
			(activity_id, course_id, activity_type, title, description, url, deadline_text, first_seen, is_new, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
	`, a.ActivityID, a.CourseID, a.Type, a.Title, a.Description, a.URL,
		a.DeadlineText, time.Now().UTC(), string(metaJSON))
	if err != nil {
		return false, fmt.Errorf("insert activity %s: %w", a.ActivityID, err)
	}
	return true, nil
}

func (s *SQLiteStore) GetActivity(ctx context.Context, id string) (*Activity, error) {
	var a Activity
	err := s.db.GetContext(ctx, &a, `
		SELECT a.*, c.course_name, c.lms_name
		FROM activities a JOIN courses c ON a.course_id = c.course_id
		WHERE a.activity_id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get activity %s: %w", id, err)
	}
	json.Unmarshal([]byte(a.MetadataJSON), &a.Metadata)
	return &a, nil
}

func (s *SQLiteStore) ListActivitiesByCourse(ctx context.Context, courseID string) ([]Activity, error) {
	var activities []Activity
	err := s.db.SelectContext(ctx, &activities, `
		SELECT a.*, c.course_name, c.lms_name
		FROM activities a JOIN courses c ON a.course_id = c.course_id
		WHERE a.course_id = ?
		ORDER BY a.first_seen DESC
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list activities for %s: %w", courseID, err)
	}
	decodeMetadata(activities)
	return activities, nil
}

func (s *SQLiteStore) ListRecentActivities(ctx context.Context, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	var activities []Activity
	err := s.db.SelectContext(ctx, &activities, `
		SELECT a.*, c.course_name, c.lms_name
		FROM activities a JOIN courses c ON a.course_id = c.course_id
		ORDER BY a.first_seen DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent activities: %w", err)
	}
	decodeMetadata(activities)
	return activities, nil
}

func (s *SQLiteStore) ListNewActivities(ctx context.Context) ([]Activity, error) {
	var activities []Activity
	err := s.db.SelectContext(ctx, &activities, `
		SELECT a.*, c.course_name, c.lms_name
		FROM activities a JOIN courses c ON a.course_id = c.course_id
		WHERE a.is_new = 1
		ORDER BY a.first_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list new activities: %w", err)
	}
	decodeMetadata(activities)
	return activities, nil
}

func (s *SQLiteStore) MarkActivitiesSeen(ctx context.Context, ids []string, channel string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark seen: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sqlx.In("UPDATE activities SET is_new = 0 WHERE activity_id IN (?)", ids)
	if err != nil {
		return fmt.Errorf("build mark seen query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("mark activities seen: %w", err)
	}

	now := time.Now().UTC()
	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (activity_id, sent_at, channel, status)
			VALUES (?, ?, ?, 'sent')
		`, id, now, channel)
		if err != nil {
			return fmt.Errorf("record notification %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) UpsertDeadline(ctx context.Context, d *Deadline) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deadlines
			(deadline_id, title, description, deadline_date, lms_name, course_id, activity_id, source, location, first_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(deadline_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			deadline_date = excluded.deadline_date,
			location = excluded.location
	`, d.DeadlineID, d.Title, d.Description, d.DeadlineDate, d.Site,
		d.CourseID, d.ActivityID, d.Source, d.Location, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert deadline %s: %w", d.DeadlineID, err)
	}
	return nil
}

func (s *SQLiteStore) ListUpcomingDeadlines(ctx context.Context, now time.Time, horizon time.Duration) ([]Deadline, error) {
	var deadlines []Deadline
	err := s.db.SelectContext(ctx, &deadlines, `
		SELECT * FROM deadlines
		WHERE deadline_date >= ? AND deadline_date <= ?
		ORDER BY deadline_date ASC
	`, now, now.Add(horizon))
	if err != nil {
		return nil, fmt.Errorf("list upcoming deadlines: %w", err)
	}
	return deadlines, nil
}

// PurgeCalendarDeadlines deletes calendar-sourced rows so the next sync can
// rebuild them from the feed. Scraped rows are never touched: the calendar
// table is the only place where the remote feed, not the ledger, is the
// source of truth.
func (s *SQLiteStore) PurgeCalendarDeadlines(ctx context.Context, site string) error {
	query := "DELETE FROM deadlines WHERE source = ?"
	args := []any{SourceCalendar}
	if site != "" {
		query += " AND lms_name = ?"
		args = append(args, site)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("purge calendar deadlines: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddScanRecord(ctx context.Context, r *ScanRecord) error {
	if r.ScanTime.IsZero() {
		r.ScanTime = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_history (lms_name, scan_time, courses_found, activities_found, new_activities, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.Site, r.ScanTime, r.CoursesFound, r.ActivitiesFound, r.NewActivities, r.Status, r.ErrorMessage)
	if err != nil {
		return fmt.Errorf("add scan record %s: %w", r.Site, err)
	}
	r.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListScanRecords(ctx context.Context, limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []ScanRecord
	err := s.db.SelectContext(ctx, &records,
		"SELECT * FROM scan_history ORDER BY scan_time DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list scan records: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByType: make(map[string]int),
		BySite: make(map[string]int),
	}

	if err := s.db.GetContext(ctx, &stats.TotalCourses,
		"SELECT COUNT(*) FROM courses"); err != nil {
		return nil, fmt.Errorf("count courses: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.TotalActivities,
		"SELECT COUNT(*) FROM activities"); err != nil {
		return nil, fmt.Errorf("count activities: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.NewActivities,
		"SELECT COUNT(*) FROM activities WHERE is_new = 1"); err != nil {
		return nil, fmt.Errorf("count new activities: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx,
		"SELECT activity_type, COUNT(*) FROM activities GROUP BY activity_type")
	if err != nil {
		return nil, fmt.Errorf("count by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var cnt int
		if err := rows.Scan(&typ, &cnt); err != nil {
			return nil, err
		}
		stats.ByType[typ] = cnt
	}

	siteRows, err := s.db.QueryxContext(ctx,
		"SELECT lms_name, COUNT(*) FROM courses GROUP BY lms_name")
	if err != nil {
		return nil, fmt.Errorf("count by site: %w", err)
	}
	defer siteRows.Close()
	for siteRows.Next() {
		var site string
		var cnt int
		if err := siteRows.Scan(&site, &cnt); err != nil {
			return nil, err
		}
		stats.BySite[site] = cnt
	}

	var last ScanRecord
	err = s.db.GetContext(ctx, &last,
		"SELECT * FROM scan_history ORDER BY scan_time DESC LIMIT 1")
	if err == nil {
		stats.LastScanTime = &last.ScanTime
		stats.LastScanSite = last.Site
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("last scan: %w", err)
	}

	return stats, nil
}

func decodeMetadata(activities []Activity) {
	for i := range activities {
		json.Unmarshal([]byte(activities[i].MetadataJSON), &activities[i].Metadata)
	}
}
