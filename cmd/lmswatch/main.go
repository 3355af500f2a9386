package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lmswatch",
		Short: "Track course activities and deadlines across LMS sites",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(scanCmd())
	root.AddCommand(calendarCmd())
	root.AddCommand(notifyCmd())
	root.AddCommand(coursesCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func scanCmd() *cobra.Command {
	var sites []string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan LMS sites for new activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(sites)
		},
	}

	cmd.Flags().StringSliceVar(&sites, "site", nil, "specific sites to scan (by name)")
	return cmd
}

func calendarCmd() *cobra.Command {
	var resync bool

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Sync iCalendar feeds into the deadline table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalendar(resync)
		},
	}

	cmd.Flags().BoolVar(&resync, "resync", false, "purge calendar-sourced deadlines before syncing")
	return cmd
}

func notifyCmd() *cobra.Command {
	var (
		horizonDays int
		testEmail   bool
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Announce new activities and upcoming deadlines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotify(horizonDays, testEmail)
		},
	}

	cmd.Flags().IntVar(&horizonDays, "horizon-days", 0, "deadline horizon in days (default: from config)")
	cmd.Flags().BoolVar(&testEmail, "test-email", false, "send a test email and exit")
	return cmd
}

func coursesCmd() *cobra.Command {
	var (
		site       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "courses",
		Short: "List tracked courses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCourses(site, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&site, "site", "", "filter by site name")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
