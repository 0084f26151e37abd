package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/cam3ron2/github-standup/internal/config"
	"github.com/cam3ron2/github-standup/internal/githubapi"
	"github.com/cam3ron2/github-standup/internal/report"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zapcore"
)

func TestLogLevel(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  zapcore.Level
	}{
		{name: "debug", input: "debug", want: zapcore.DebugLevel},
		{name: "warn", input: "warn", want: zapcore.WarnLevel},
		{name: "error", input: "ERROR", want: zapcore.ErrorLevel},
		{name: "default_info", input: "other", want: zapcore.InfoLevel},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := logLevel(tc.input)
			if got != tc.want {
				t.Fatalf("logLevel(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestShouldIgnoreLoggerSyncError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil_error", err: nil, want: false},
		{name: "einval_direct", err: syscall.EINVAL, want: true},
		{name: "enotty_direct", err: syscall.ENOTTY, want: true},
		{name: "wrapped_einval", err: fmt.Errorf("wrapped: %w", syscall.EINVAL), want: true},
		{name: "other_error", err: errors.New("boom"), want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := shouldIgnoreLoggerSyncError(tc.err)
			if got != tc.want {
				t.Fatalf("shouldIgnoreLoggerSyncError(%v) = %t, want %t", tc.err, got, tc.want)
			}
		})
	}
}

func TestBuildLoggerHonorsLevelAndFormat(t *testing.T) {
	t.Parallel()

	var sink bytes.Buffer
	logger := buildLogger(config.LogConfig{Level: "warn", Format: "json"}, &sink)
	logger.Info("hidden")
	logger.Warn("shown")
	_ = logger.Sync()

	out := sink.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("output = %q, want json warn entry", out)
	}
}

func TestLoadConfigLayersEnvAndFlags(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		config.EnvUser:        "env-user",
		config.EnvGitHubToken: "env-token",
	}
	lookup := func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}

	testCases := []struct {
		name      string
		opts      options
		changed   []string
		wantUser  string
		wantToken string
		wantSince string
		wantFmt   string
		wantIssue bool
	}{
		{
			name:      "env_only",
			wantUser:  "env-user",
			wantToken: "env-token",
			wantSince: "yesterday",
			wantFmt:   "text",
		},
		{
			name:      "flags_override_env",
			opts:      options{user: " flag-user ", since: "3d", format: "JSON", includeIssueComments: true},
			changed:   []string{"user", "since", "format", "include-issue-comments"},
			wantUser:  "flag-user",
			wantToken: "env-token",
			wantSince: "3d",
			wantFmt:   "json",
			wantIssue: true,
		},
		{
			name:      "unchanged_flags_are_ignored",
			opts:      options{user: "ignored", token: "ignored"},
			wantUser:  "env-user",
			wantToken: "env-token",
			wantSince: "yesterday",
			wantFmt:   "text",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			changed := func(name string) bool {
				for _, candidate := range tc.changed {
					if candidate == name {
						return true
					}
				}
				return false
			}
			opts := tc.opts
			cfg, err := loadConfig(&opts, changed, lookup)
			if err != nil {
				t.Fatalf("loadConfig() unexpected error: %v", err)
			}
			if cfg.GitHub.User != tc.wantUser || cfg.GitHub.Token != tc.wantToken {
				t.Fatalf("credentials = %q/%q, want %q/%q", cfg.GitHub.User, cfg.GitHub.Token, tc.wantUser, tc.wantToken)
			}
			if cfg.Report.Since != tc.wantSince || cfg.Report.Format != tc.wantFmt {
				t.Fatalf("report = %+v", cfg.Report)
			}
			if cfg.GitHub.IncludeIssueComments != tc.wantIssue {
				t.Fatalf("IncludeIssueComments = %t, want %t", cfg.GitHub.IncludeIssueComments, tc.wantIssue)
			}
			if err := cfg.Complete(); err != nil {
				t.Fatalf("Complete() unexpected error: %v", err)
			}
		})
	}
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	envPath := filepath.Join(dir, "standup.env")
	content := "STANDUP_USER=file-user\nSTANDUP_GITHUB_TOKEN=file-token\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	testCases := []struct {
		name      string
		envFile   string
		explicit  bool
		env       map[string]string
		wantUser  string
		wantToken string
		wantErr   bool
	}{
		{
			name:      "file_fills_missing_values",
			envFile:   envPath,
			explicit:  true,
			wantUser:  "file-user",
			wantToken: "file-token",
		},
		{
			name:      "environment_wins_over_file",
			envFile:   envPath,
			explicit:  true,
			env:       map[string]string{config.EnvUser: "env-user"},
			wantUser:  "env-user",
			wantToken: "file-token",
		},
		{
			name:    "default_file_may_be_missing",
			envFile: filepath.Join(dir, ".env"),
		},
		{
			name:     "explicit_file_must_exist",
			envFile:  filepath.Join(dir, "missing.env"),
			explicit: true,
			wantErr:  true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			lookup := func(key string) (string, bool) {
				value, ok := tc.env[key]
				return value, ok
			}
			changed := func(name string) bool {
				return tc.explicit && name == "env-file"
			}

			cfg, err := loadConfig(&options{envFile: tc.envFile}, changed, lookup)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("loadConfig() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("loadConfig() unexpected error: %v", err)
			}
			if cfg.GitHub.User != tc.wantUser || cfg.GitHub.Token != tc.wantToken {
				t.Fatalf("credentials = %q/%q, want %q/%q", cfg.GitHub.User, cfg.GitHub.Token, tc.wantUser, tc.wantToken)
			}
		})
	}
}

func TestReportRequest(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

	testCases := []struct {
		name      string
		since     string
		until     string
		wantSince time.Time
		wantUntil time.Time
		wantErr   string
	}{
		{
			name:      "default_window",
			since:     "yesterday",
			wantSince: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "bounded_window",
			since:     "2026-10-10",
			until:     "today",
			wantSince: time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC),
			wantUntil: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
		},
		{name: "bad_since", since: "someday", wantErr: "invalid --since"},
		{name: "bad_until", since: "yesterday", until: "later", wantErr: "invalid --until"},
		{name: "inverted_window", since: "today", until: "2026-10-01", wantErr: "must be after"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			cfg.GitHub.User = "octo"
			cfg.Report.Since = tc.since
			cfg.Report.Until = tc.until

			req, err := reportRequest(cfg, now)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("reportRequest() error = %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("reportRequest() unexpected error: %v", err)
			}
			if req.User != "octo" || !req.Since.Equal(tc.wantSince) || !req.Until.Equal(tc.wantUntil) {
				t.Fatalf("request = %+v", req)
			}
		})
	}
}

func TestDescribeError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want string
	}{
		{name: "canceled", err: fmt.Errorf("fetch events page 1: %w", context.Canceled), want: "interrupted"},
		{name: "unauthorized", err: &githubapi.HTTPStatusError{Op: "list user events", StatusCode: 401}, want: "github rejected the credentials"},
		{name: "missing_user", err: &githubapi.HTTPStatusError{Op: "list user events", StatusCode: 404}, want: "github user not found"},
		{name: "rate_limited", err: &githubapi.HTTPStatusError{Op: "list user events", StatusCode: 429}, want: "github rate limit reached"},
		{name: "passthrough", err: errors.New("boom"), want: "boom"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := describeError(tc.err).Error()
			if !strings.HasPrefix(got, tc.want) {
				t.Fatalf("describeError() = %q, want prefix %q", got, tc.want)
			}
		})
	}
}

const fixtureEvents = `[
  {
    "type": "PullRequestEvent",
    "repo": {"name": "octo/widgets"},
    "created_at": "2026-10-16T10:00:00Z",
    "payload": {
      "action": "opened",
      "pull_request": {"number": 4, "html_url": "https://github.com/octo/widgets/pull/4", "title": "Add gears", "user": {"login": "octo"}}
    }
  },
  {
    "type": "PushEvent",
    "repo": {"name": "octo/widgets"},
    "created_at": "2026-10-16T09:00:00Z",
    "payload": {"ref": "refs/heads/gears"}
  },
  {
    "type": "WatchEvent",
    "repo": {"name": "octo/other"},
    "created_at": "2026-10-16T08:00:00Z",
    "payload": {"action": "started"}
  }
]`

func newGitHubFixture(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/users/octo/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t0k" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(fixtureEvents))
	})
	mux.HandleFunc("/repos/octo/widgets", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"full_name":"octo/widgets","default_branch":"main","fork":false,"owner":{"login":"octo"}}`))
	})
	mux.HandleFunc("/repos/octo/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("head") != "octo:gears" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"number":4,"html_url":"https://github.com/octo/widgets/pull/4","title":"Add gears","user":{"login":"octo"}}]`))
	})
	mux.HandleFunc("/users/ghost/events", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestReportCommand(t *testing.T) {
	t.Parallel()

	server := newGitHubFixture(t)
	window := []string{"--since", "2026-10-16T00:00:00Z", "--until", "2026-10-17T00:00:00Z", "--no-progress", "--log-level", "error"}

	testCases := []struct {
		name       string
		args       []string
		wantStdout string
		wantErr    string
	}{
		{
			name:       "root_text",
			args:       append([]string{"--user", "octo", "--token", "t0k", "--api-url", server.URL}, window...),
			wantStdout: "- octo/widgets:\n  * [PR] (opened) Add gears https://github.com/octo/widgets/pull/4\n",
		},
		{
			name:       "report_subcommand_json",
			args:       append([]string{"report", "--user", "octo", "--token", "t0k", "--api-url", server.URL, "--format", "json"}, window...),
			wantStdout: `"octo/widgets": [`,
		},
		{
			name:    "bad_token",
			args:    append([]string{"--user", "octo", "--token", "nope", "--api-url", server.URL}, window...),
			wantErr: "github rejected the credentials",
		},
		{
			name:    "unknown_user",
			args:    append([]string{"--user", "ghost", "--token", "t0k", "--api-url", server.URL}, window...),
			wantErr: "github user not found",
		},
		{
			name:    "bad_format",
			args:    append([]string{"--user", "octo", "--token", "t0k", "--api-url", server.URL, "--format", "xml"}, window...),
			wantErr: "report.format must be one of text|json|xlsx",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			cmd := newRootCommand(&stdout, &stderr)
			cmd.SetArgs(tc.args)

			err := cmd.ExecuteContext(context.Background())
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("Execute() error = %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() unexpected error: %v (stderr %q)", err, stderr.String())
			}
			if !strings.Contains(stdout.String(), tc.wantStdout) {
				t.Fatalf("stdout = %q, want %q", stdout.String(), tc.wantStdout)
			}
		})
	}
}

func TestReportCommandWritesOutputFile(t *testing.T) {
	t.Parallel()

	server := newGitHubFixture(t)
	outPath := filepath.Join(t.TempDir(), "standup.xlsx")

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr)
	cmd.SetArgs([]string{
		"--user", "octo", "--token", "t0k", "--api-url", server.URL,
		"--since", "2026-10-16T00:00:00Z", "--until", "2026-10-17T00:00:00Z",
		"--format", "xlsx", "--output", outPath, "--no-progress", "--log-level", "error",
	})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() unexpected error: %v", err)
	}
	if stdout.Len() != 0 {
		t.Fatalf("stdout = %q, want empty when --output is set", stdout.String())
	}

	f, err := excelize.OpenFile(outPath)
	if err != nil {
		t.Fatalf("OpenFile() unexpected error: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(report.XLSXSheet)
	if err != nil {
		t.Fatalf("GetRows() unexpected error: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "octo/widgets" || rows[1][2] != "opened" {
		t.Fatalf("rows = %q", rows)
	}
}

func TestCalendarsCommandRequiresToken(t *testing.T) {
	t.Setenv(config.EnvCalendarToken, "")

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr)
	cmd.SetArgs([]string{"calendars"})
	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), config.EnvCalendarToken) {
		t.Fatalf("Execute() error = %v, want missing calendar token", err)
	}
}
