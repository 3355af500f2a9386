package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavindu/lmswatch/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := New(st, nil, nil, nil, nil, 30*24*time.Hour, 0)
	return srv, st
}

func seed(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertCourse(ctx, &store.Course{
		CourseID: "ousl_142", Site: "ousl", Name: "Software Engineering",
	}))
	_, err := st.UpsertActivity(ctx, &store.Activity{
		ActivityID: "a1", CourseID: "ousl_142", Type: "assign", Title: "Assignment 1",
	})
	require.NoError(t, err)
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleStats(t *testing.T) {
	srv, st := newTestServer(t)
	seed(t, st)

	rec := httptest.NewRecorder()
	srv.handleStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats store.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalCourses)
	assert.Equal(t, 1, stats.NewActivities)
}

func TestHandleActivitiesNewFilter(t *testing.T) {
	srv, st := newTestServer(t)
	seed(t, st)

	rec := httptest.NewRecorder()
	srv.handleActivities(rec, httptest.NewRequest(http.MethodGet, "/api/v1/activities?new=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int              `json:"count"`
		Data  []store.Activity `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "a1", resp.Data[0].ActivityID)
	assert.Equal(t, "Software Engineering", resp.Data[0].CourseName)
}

func TestHandleCoursesRejectsPost(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleCourses(rec, httptest.NewRequest(http.MethodPost, "/api/v1/courses", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
