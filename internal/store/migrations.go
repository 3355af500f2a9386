package store

const schema = `
CREATE TABLE IF NOT EXISTS courses (
    course_id    TEXT PRIMARY KEY,
    lms_name     TEXT NOT NULL,
    course_name  TEXT NOT NULL,
    course_url   TEXT NOT NULL DEFAULT '',
    first_seen   DATETIME NOT NULL,
    last_checked DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_courses_lms ON courses(lms_name);

CREATE TABLE IF NOT EXISTS activities (
    activity_id   TEXT PRIMARY KEY,
    course_id     TEXT NOT NULL REFERENCES courses(course_id),
    activity_type TEXT NOT NULL,
    title         TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    url           TEXT NOT NULL DEFAULT '',
    deadline_text TEXT NOT NULL DEFAULT '',
    first_seen    DATETIME NOT NULL,
    is_new        BOOLEAN NOT NULL DEFAULT 1,
    metadata      TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_activities_course ON activities(course_id);
CREATE INDEX IF NOT EXISTS idx_activities_new ON activities(is_new);
CREATE INDEX IF NOT EXISTS idx_activities_first_seen ON activities(first_seen);

CREATE TABLE IF NOT EXISTS deadlines (
    deadline_id   TEXT PRIMARY KEY,
    title         TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    deadline_date DATETIME NOT NULL,
    lms_name      TEXT NOT NULL,
    course_id     TEXT,
    activity_id   TEXT,
    source        TEXT NOT NULL,
    location      TEXT NOT NULL DEFAULT '',
    first_seen    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deadlines_date ON deadlines(deadline_date);
CREATE INDEX IF NOT EXISTS idx_deadlines_source ON deadlines(source);

CREATE TABLE IF NOT EXISTS scan_history (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    lms_name         TEXT NOT NULL,
    scan_time        DATETIME NOT NULL,
    courses_found    INTEGER NOT NULL DEFAULT 0,
    activities_found INTEGER NOT NULL DEFAULT 0,
    new_activities   INTEGER NOT NULL DEFAULT 0,
    status           TEXT NOT NULL,
    error_message    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_scan_history_time ON scan_history(scan_time);

CREATE TABLE IF NOT EXISTS notifications (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    activity_id TEXT NOT NULL REFERENCES activities(activity_id),
    sent_at     DATETIME NOT NULL,
    channel     TEXT NOT NULL,
    status      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_activity ON notifications(activity_id);
`
