package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kavindu/lmswatch/internal/store"
	"github.com/kavindu/lmswatch/pkg/calendar"
	"github.com/kavindu/lmswatch/pkg/lms"
	"github.com/kavindu/lmswatch/pkg/notify"
	"github.com/kavindu/lmswatch/pkg/scan"
)

// Server provides the read-side dashboard API plus a manual scan trigger.
type Server struct {
	store   store.Store
	engine  *scan.Engine
	merger  *calendar.Merger
	gate    *notify.Gate
	sites   []lms.Site
	horizon time.Duration
	port    int
}

// New creates a new HTTP server.
func New(st store.Store, engine *scan.Engine, merger *calendar.Merger, gate *notify.Gate, sites []lms.Site, horizon time.Duration, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		store:   st,
		engine:  engine,
		merger:  merger,
		gate:    gate,
		sites:   sites,
		horizon: horizon,
		port:    port,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/stats", s.handleStats)
	mux.HandleFunc("/api/v1/courses", s.handleCourses)
	mux.HandleFunc("/api/v1/activities", s.handleActivities)
	mux.HandleFunc("/api/v1/deadlines", s.handleDeadlines)
	mux.HandleFunc("/api/v1/scans", s.handleScans)
	mux.HandleFunc("/api/v1/scan", s.handleScanTrigger)
	mux.HandleFunc("/api/v1/notify", s.handleNotifyTrigger)

	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("lmswatch server listening", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	courses, err := s.store.ListCourses(r.Context(), r.URL.Query().Get("site"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": courses, "count": len(courses)})
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var (
		activities []store.Activity
		err        error
	)
	switch {
	case r.URL.Query().Get("new") == "1":
		activities, err = s.store.ListNewActivities(r.Context())
	case r.URL.Query().Get("course") != "":
		activities, err = s.store.ListActivitiesByCourse(r.Context(), r.URL.Query().Get("course"))
	default:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		activities, err = s.store.ListRecentActivities(r.Context(), limit)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": activities, "count": len(activities)})
}

func (s *Server) handleDeadlines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	horizon := s.horizon
	if days, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && days > 0 {
		horizon = time.Duration(days) * 24 * time.Hour
	}

	deadlines, err := s.store.ListUpcomingDeadlines(r.Context(), time.Now().UTC(), horizon)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": deadlines, "count": len(deadlines)})
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.store.ListScanRecords(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": records, "count": len(records)})
}

// handleScanTrigger runs a full pipeline pass synchronously. Timed runs are
// single-flight by the scheduler's construction; triggering manually while a
// scheduled scan is in flight is on the operator.
func (s *Server) handleScanTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	report := s.engine.Run(r.Context())

	for _, site := range s.sites {
		if _, err := s.merger.Sync(r.Context(), site); err != nil {
			slog.Warn("calendar sync failed", "site", site.Name, "error", err)
		}
	}

	if err := s.gate.Run(r.Context(), s.horizon); err != nil {
		slog.Warn("notification gate failed", "error", err)
	}

	summary := make([]map[string]any, 0, len(report.Sites))
	for _, sr := range report.Sites {
		entry := map[string]any{
			"site":           sr.Site,
			"courses":        sr.Courses,
			"activities":     sr.Activities,
			"new_activities": sr.NewActivities,
		}
		if sr.Err != nil {
			entry["error"] = sr.Err.Error()
		}
		summary = append(summary, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": summary, "total_new": report.TotalNew})
}

// handleNotifyTrigger runs the notification gate outside the scan cycle, so
// channel configuration can be verified against whatever is currently pending.
func (s *Server) handleNotifyTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if err := s.gate.Run(r.Context(), s.horizon); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "notified"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
