package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cam3ron2/github-standup/internal/activity"
	"github.com/cam3ron2/github-standup/internal/config"
	"github.com/cam3ron2/github-standup/internal/githubapi"
	"github.com/cam3ron2/github-standup/internal/metrics"
	"github.com/cam3ron2/github-standup/internal/report"
	"github.com/cam3ron2/github-standup/internal/server"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// loadConfig layers the config file, the dotenv file, the environment and
// explicitly set flags, later layers winning.
func loadConfig(opts *options, changed func(name string) bool, lookup func(string) (string, bool)) (*config.Config, error) {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	fileEnv, err := readEnvFile(opts.envFile, changed("env-file"))
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(func(key string) (string, bool) {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			return value, true
		}
		value, ok := fileEnv[key]
		return value, ok
	})
	applyFlags(cfg, opts, changed)
	return cfg, nil
}

// readEnvFile parses a dotenv file without touching the process environment.
// A missing file is only an error when it was asked for explicitly.
func readEnvFile(path string, explicit bool) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil, nil
		}
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return values, nil
}

func applyFlags(cfg *config.Config, opts *options, changed func(name string) bool) {
	if changed("user") {
		cfg.GitHub.User = strings.TrimSpace(opts.user)
	}
	if changed("token") {
		cfg.GitHub.Token = strings.TrimSpace(opts.token)
	}
	if changed("api-url") {
		cfg.GitHub.APIBaseURL = strings.TrimSpace(opts.apiURL)
	}
	if changed("log-level") {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(opts.logLevel))
	}
	if changed("since") {
		cfg.Report.Since = opts.since
	}
	if changed("until") {
		cfg.Report.Until = opts.until
	}
	if changed("format") {
		cfg.Report.Format = strings.ToLower(strings.TrimSpace(opts.format))
	}
	if changed("output") {
		cfg.Report.Output = strings.TrimSpace(opts.output)
	}
	if changed("include-issue-comments") {
		cfg.GitHub.IncludeIssueComments = opts.includeIssueComments
	}
	if changed("calendar") {
		cfg.Calendar.Enabled = opts.calendar
	}
	if changed("listen") {
		cfg.Server.ListenAddr = strings.TrimSpace(opts.listenAddr)
	}
}

func flagChanged(cmd *cobra.Command) func(string) bool {
	return func(name string) bool {
		flag := cmd.Flags().Lookup(name)
		return flag != nil && flag.Changed
	}
}

func runReport(cmd *cobra.Command, opts *options, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(opts, flagChanged(cmd), os.LookupEnv)
	if err != nil {
		return err
	}
	if err := cfg.Complete(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := buildLogger(cfg.Log, stderr)
	defer syncLogger(logger, stderr)

	shutdownTelemetry, err := setupTelemetry(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	collector, err := buildCollector(cmd.Context(), cfg, logger, nil)
	if err != nil {
		return err
	}

	req, err := reportRequest(cfg, time.Now())
	if err != nil {
		return err
	}

	var spinner *progressbar.ProgressBar
	if !opts.noProgress {
		spinner = newSpinner(stderr, "Reading activity for "+req.User)
	}
	result, err := collector.Collect(cmd.Context(), req)
	finishBar(spinner)
	if err != nil {
		return describeError(err)
	}

	return writeReportTo(stdout, cfg.Report.Output, result.Report, cfg.Report.Format)
}

func reportRequest(cfg *config.Config, now time.Time) (activity.Request, error) {
	since, err := config.ParseTime(cfg.Report.Since, now)
	if err != nil {
		return activity.Request{}, fmt.Errorf("invalid --since: %w", err)
	}
	until, err := config.ParseTime(cfg.Report.Until, now)
	if err != nil {
		return activity.Request{}, fmt.Errorf("invalid --until: %w", err)
	}
	if !until.IsZero() && !until.After(since) {
		return activity.Request{}, fmt.Errorf("--until %s must be after --since %s", until.Format(time.RFC3339), since.Format(time.RFC3339))
	}
	return activity.Request{
		User:                 cfg.GitHub.User,
		Since:                since,
		Until:                until,
		IncludeIssueComments: cfg.GitHub.IncludeIssueComments,
	}, nil
}

func writeReportTo(stdout io.Writer, path string, r report.Report, format string) (err error) {
	if path == "" {
		return writeReport(stdout, r, format)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close output file: %w", closeErr)
		}
	}()
	return writeReport(file, r, format)
}

func writeReport(w io.Writer, r report.Report, format string) error {
	var err error
	switch strings.ToLower(format) {
	case "json":
		err = r.WriteJSON(w)
	case "xlsx":
		err = r.WriteXLSX(w)
	default:
		err = r.WriteText(w)
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// describeError turns the common GitHub failures into actionable messages.
func describeError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return errors.New("interrupted")
	case isStatus(err, http.StatusUnauthorized):
		return fmt.Errorf("github rejected the credentials: %w", err)
	case isStatus(err, http.StatusNotFound):
		return fmt.Errorf("github user not found: %w", err)
	case githubapi.IsRateLimited(err):
		return fmt.Errorf("github rate limit reached, retry later: %w", err)
	default:
		return err
	}
}

func isStatus(err error, statusCode int) bool {
	var httpErr *githubapi.HTTPStatusError
	return errors.As(err, &httpErr) && httpErr.StatusCode == statusCode
}

func runServe(cmd *cobra.Command, opts *options, stderr io.Writer) error {
	cfg, err := loadConfig(opts, flagChanged(cmd), os.LookupEnv)
	if err != nil {
		return err
	}
	if err := cfg.Complete(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := buildLogger(cfg.Log, stderr)
	defer syncLogger(logger, stderr)

	shutdownTelemetry, err := setupTelemetry(cfg.Telemetry)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	registry := metrics.New()
	collector, err := buildCollector(cmd.Context(), cfg, logger, registry, activity.WithRecorder(registry))
	if err != nil {
		return err
	}

	handler := server.NewHandler(server.HandlerConfig{
		Collector: collector,
		Defaults: server.Defaults{
			User:                 cfg.GitHub.User,
			Since:                cfg.Report.Since,
			Until:                cfg.Report.Until,
			IncludeIssueComments: cfg.GitHub.IncludeIssueComments,
		},
		Health:         server.NewHealthTracker(cfg.Calendar.Enabled),
		MetricsHandler: registry.Handler(),
		ReportObserver: registry,
		Logger:         logger,
	})

	logger.Info("serving standup reports",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("default_user", cfg.GitHub.User),
		zap.Bool("calendar", cfg.Calendar.Enabled),
	)
	return server.Run(cmd.Context(), cfg.Server.ListenAddr, handler, cfg.Server.ShutdownTimeout, logger)
}

func runCalendars(cmd *cobra.Command, opts *options, stdout io.Writer) error {
	cfg, err := loadConfig(opts, flagChanged(cmd), os.LookupEnv)
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Calendar.AccessToken) == "" {
		return fmt.Errorf("calendar access token is required (%s)", config.EnvCalendarToken)
	}

	client, err := buildCalendar(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	calendars, err := client.Calendars(cmd.Context())
	if err != nil {
		return err
	}
	for _, info := range calendars {
		if _, err := fmt.Fprintf(stdout, "%s\t%s\n", info.ID, info.Summary); err != nil {
			return err
		}
	}
	return nil
}
