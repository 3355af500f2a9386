package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/kavindu/lmswatch/internal/config"
	"github.com/kavindu/lmswatch/internal/scheduler"
	"github.com/kavindu/lmswatch/internal/store"
	"github.com/kavindu/lmswatch/pkg/calendar"
	"github.com/kavindu/lmswatch/pkg/fetch"
	"github.com/kavindu/lmswatch/pkg/lms"
	"github.com/kavindu/lmswatch/pkg/notify"
	"github.com/kavindu/lmswatch/pkg/scan"
	"github.com/kavindu/lmswatch/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (store.Store, error) {
	st, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func buildSites(cfg *config.Config, only []string) []lms.Site {
	want := make(map[string]bool, len(only))
	for _, name := range only {
		want[name] = true
	}

	var sites []lms.Site
	for _, sc := range cfg.Sites {
		if len(want) > 0 && !want[sc.Name] {
			continue
		}
		sites = append(sites, lms.Site{
			Name:         sc.Name,
			BaseURL:      sc.BaseURL,
			DashboardURL: sc.DashboardURL,
			CalendarURL:  sc.CalendarURL,
		})
	}
	return sites
}

func buildForums(cfg *config.Config) *lms.ForumWatcher {
	if len(cfg.Forums) == 0 {
		return nil
	}
	feeds := make([]lms.ForumFeed, len(cfg.Forums))
	for i, fc := range cfg.Forums {
		feeds[i] = lms.ForumFeed{Name: fc.Name, URL: fc.URL, CourseID: fc.CourseID}
	}
	return lms.NewForumWatcher(feeds)
}

func buildFetcher(cfg *config.Config) fetch.Fetcher {
	timeout := cfg.Fetcher.ParseTimeout()
	if cfg.Fetcher.RenderURL != "" {
		return fetch.NewRenderClient(cfg.Fetcher.RenderURL, timeout)
	}
	slog.Info("no render service configured, fetching pages statically")
	return fetch.NewStaticClient(timeout)
}

func buildManager(cfg *config.Config) *notify.Manager {
	var notifiers []notify.Notifier
	if e := cfg.Notify.Email; e.Enabled {
		notifiers = append(notifiers,
			notify.NewEmail(e.Host, e.Port, e.Sender, e.Password, e.Recipients))
	}
	if w := cfg.Notify.Webhook; w.Enabled {
		notifiers = append(notifiers, notify.NewWebhook(w.URL, w.Secret))
	}
	return notify.NewManager(notifiers)
}

func horizonOf(cfg *config.Config, overrideDays int) time.Duration {
	days := cfg.Notify.HorizonDays
	if overrideDays > 0 {
		days = overrideDays
	}
	return time.Duration(days) * 24 * time.Hour
}

func runScan(only []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sites := buildSites(cfg, only)
	if len(sites) == 0 {
		return fmt.Errorf("no sites configured")
	}

	engine := scan.New(st, buildFetcher(cfg), sites, buildForums(cfg))
	report := engine.Run(context.Background())

	for _, sr := range report.Sites {
		if sr.Err != nil {
			fmt.Printf("%s: FAILED (%v)\n", sr.Site, sr.Err)
			continue
		}
		fmt.Printf("%s: %d courses, %d activities, %d new\n",
			sr.Site, sr.Courses, sr.Activities, sr.NewActivities)
		for _, ie := range sr.ItemErrors {
			fmt.Printf("  skipped: %s\n", ie)
		}
	}
	fmt.Printf("total new activities: %d\n", report.TotalNew)
	return nil
}

func runCalendar(resync bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	merger := calendar.NewMerger(st)
	ctx := context.Background()

	for _, site := range buildSites(cfg, nil) {
		if site.CalendarURL == "" {
			continue
		}

		var count int
		if resync {
			count, err = merger.Resync(ctx, site)
		} else {
			count, err = merger.Sync(ctx, site)
		}
		if err != nil {
			slog.Error("calendar sync failed", "site", site.Name, "error", err)
			continue
		}
		fmt.Printf("%s: %d calendar deadlines synced\n", site.Name, count)
	}
	return nil
}

func runNotify(horizonDays int, testEmail bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if testEmail {
		e := cfg.Notify.Email
		if !e.Enabled {
			return fmt.Errorf("email notifier not configured")
		}
		if err := notify.NewEmail(e.Host, e.Port, e.Sender, e.Password, e.Recipients).SendTest(); err != nil {
			return err
		}
		fmt.Println("test email sent")
		return nil
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	gate := notify.NewGate(st, buildManager(cfg))
	return gate.Run(context.Background(), horizonOf(cfg, horizonDays))
}

func runCourses(site string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	courses, err := st.ListCourses(context.Background(), site)
	if err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(courses)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SITE\tID\tNAME\tLAST CHECKED")
	for _, c := range courses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			c.Site, c.CourseID, c.Name, c.LastChecked.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sites := buildSites(cfg, nil)
	engine := scan.New(st, buildFetcher(cfg), sites, buildForums(cfg))
	merger := calendar.NewMerger(st)
	gate := notify.NewGate(st, buildManager(cfg))

	srv := server.New(st, engine, merger, gate, sites, horizonOf(cfg, 0), port)
	return srv.ListenAndServe()
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sites := buildSites(cfg, nil)
	if len(sites) == 0 {
		return fmt.Errorf("no sites configured")
	}

	engine := scan.New(st, buildFetcher(cfg), sites, buildForums(cfg))
	merger := calendar.NewMerger(st)
	gate := notify.NewGate(st, buildManager(cfg))
	horizon := horizonOf(cfg, 0)

	cycle := func(ctx context.Context) {
		report := engine.Run(ctx)
		slog.Info("scan cycle finished", "sites", len(report.Sites), "new", report.TotalNew)

		for _, site := range sites {
			if _, err := merger.Sync(ctx, site); err != nil {
				slog.Warn("calendar sync failed", "site", site.Name, "error", err)
			}
		}

		if err := gate.Run(ctx, horizon); err != nil {
			slog.Error("notification gate failed", "error", err)
		}
	}

	sched, err := scheduler.New(cfg.Schedule.Times, cycle)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(st, engine, merger, gate, sites, horizon, port)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	// First cycle immediately on startup, then at the scheduled times.
	cycle(ctx)

	err = sched.Run(ctx)
	if errors.Is(err, context.Canceled) {
		slog.Info("daemon stopped")
		return nil
	}
	return err
}
