package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	validLogLevels    = []string{"debug", "info", "warn", "error"}
	validLogFormats   = []string{"console", "json"}
	validReportFormat = []string{"text", "json", "xlsx"}
	validTraceModes   = []string{"off", "errors", "sampled", "detailed"}
)

// Environment variables consulted by ApplyEnv.
const (
	EnvUser          = "STANDUP_USER"
	EnvGitHubToken   = "STANDUP_GITHUB_TOKEN"
	EnvCalendarToken = "STANDUP_CALENDAR_TOKEN"
	EnvOTLPEndpoint  = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

// Config is the root application configuration.
type Config struct {
	Log       LogConfig
	GitHub    GitHubConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Report    ReportConfig
	Calendar  CalendarConfig
	Server    ServerConfig
	Telemetry TelemetryConfig
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GitHubConfig configures GitHub API access and the user under report.
type GitHubConfig struct {
	User                 string
	Token                string
	APIBaseURL           string
	RequestTimeout       time.Duration
	RequestsPerSecond    float64
	IncludeIssueComments bool
	AppID                int64
	InstallationID       int64
	PrivateKeyPath       string
}

// UsesAppAuth reports whether GitHub App installation credentials are configured.
func (g GitHubConfig) UsesAppAuth() bool {
	return g.AppID > 0 || g.InstallationID > 0 || g.PrivateKeyPath != ""
}

// RateLimitConfig configures rate-limit controls.
type RateLimitConfig struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
}

// RetryConfig configures retries. MaxAttempts of 1 disables them.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// ReportConfig holds report window and output defaults.
type ReportConfig struct {
	// Since accepts yesterday, today, a date, an RFC 3339 time or a lookback such as 3d.
	Since  string
	Until  string
	Format string
	// Output is a file path; empty writes to stdout.
	Output string
}

// CalendarConfig configures the optional Google Calendar source.
type CalendarConfig struct {
	Enabled     bool
	ID          string
	AccessToken string
	BaseURL     string
	// RequestTimeout bounds each calendar API call independently of github.request_timeout.
	RequestTimeout time.Duration
}

// ServerConfig contains HTTP server settings for serve mode.
type ServerConfig struct {
	ListenAddr      string
	ShutdownTimeout time.Duration
}

// TelemetryConfig configures OpenTelemetry behavior.
type TelemetryConfig struct {
	OTELEnabled          bool
	OTELTraceMode        string
	OTELTraceSampleRatio float64
	OTLPEndpoint         string
	OTLPHeaders          string
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadFile reads the YAML file at path. An empty path yields Default().
func LoadFile(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = file.Close() }()
	return Load(file)
}

// Load reads configuration from YAML and validates the result.
func Load(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("config reader is nil")
	}

	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	var raw rawConfig
	if err := decoder.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg := raw.toConfig()
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides credentials from the environment. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		return
	}
	if value, ok := lookup(EnvUser); ok && strings.TrimSpace(value) != "" {
		c.GitHub.User = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvGitHubToken); ok && strings.TrimSpace(value) != "" {
		c.GitHub.Token = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvCalendarToken); ok && strings.TrimSpace(value) != "" {
		c.Calendar.AccessToken = strings.TrimSpace(value)
	}
	if value, ok := lookup(EnvOTLPEndpoint); ok && strings.TrimSpace(value) != "" {
		c.Telemetry.OTLPEndpoint = strings.TrimSpace(value)
	}
}

// Validate validates configuration values. Credentials are checked by Complete.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(validLogLevels, c.Log.Level) {
		errs = append(errs, "log.level must be one of debug|info|warn|error")
	}
	if !slices.Contains(validLogFormats, c.Log.Format) {
		errs = append(errs, "log.format must be console or json")
	}

	if parsed, err := url.Parse(c.GitHub.APIBaseURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, "github.api_base_url must be an absolute URL")
	}
	if c.GitHub.RequestTimeout <= 0 {
		errs = append(errs, "github.request_timeout must be > 0")
	}
	if c.GitHub.RequestsPerSecond < 0 {
		errs = append(errs, "github.requests_per_second must be >= 0")
	}
	if c.GitHub.UsesAppAuth() {
		if c.GitHub.AppID <= 0 {
			errs = append(errs, "github.app_id must be > 0 when app auth is configured")
		}
		if c.GitHub.InstallationID <= 0 {
			errs = append(errs, "github.installation_id must be > 0 when app auth is configured")
		}
		if c.GitHub.PrivateKeyPath == "" {
			errs = append(errs, "github.private_key_path is required when app auth is configured")
		}
	}

	if c.RateLimit.MinRemainingThreshold < 0 {
		errs = append(errs, "rate_limit.min_remaining_threshold must be >= 0")
	}
	if c.RateLimit.MinResetBuffer < 0 || c.RateLimit.SecondaryLimitBackoff < 0 {
		errs = append(errs, "rate_limit durations must be >= 0")
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}
	if c.Retry.InitialBackoff > c.Retry.MaxBackoff {
		errs = append(errs, "retry.initial_backoff must be <= retry.max_backoff")
	}

	if !slices.Contains(validReportFormat, c.Report.Format) {
		errs = append(errs, "report.format must be one of text|json|xlsx")
	}
	now := time.Now()
	if _, err := ParseTime(c.Report.Since, now); err != nil {
		errs = append(errs, "report.since: "+err.Error())
	}
	if _, err := ParseTime(c.Report.Until, now); err != nil {
		errs = append(errs, "report.until: "+err.Error())
	}

	if c.Calendar.Enabled && c.Calendar.ID == "" {
		errs = append(errs, "calendar.id is required when calendar.enabled=true")
	}
	if c.Calendar.RequestTimeout < 0 {
		errs = append(errs, "calendar.request_timeout must be >= 0")
	}

	if c.Server.ListenAddr == "" {
		errs = append(errs, "server.listen_addr is required")
	}

	if !slices.Contains(validTraceModes, c.Telemetry.OTELTraceMode) {
		errs = append(errs, "telemetry.otel_trace_mode must be one of off|errors|sampled|detailed")
	}
	if c.Telemetry.OTELTraceSampleRatio < 0 || c.Telemetry.OTELTraceSampleRatio > 1 {
		errs = append(errs, "telemetry.otel_trace_sample_ratio must be within [0, 1]")
	}
	if c.Telemetry.OTLPEndpoint != "" {
		if parsed, err := url.Parse(c.Telemetry.OTLPEndpoint); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, "telemetry.otlp_endpoint must be an absolute URL")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Complete checks the settings that usually arrive from env or flags rather than the file.
func (c *Config) Complete() error {
	var errs []string
	if strings.TrimSpace(c.GitHub.User) == "" {
		errs = append(errs, "github.user is required (flag --user or "+EnvUser+")")
	}
	if strings.TrimSpace(c.GitHub.Token) == "" && !c.GitHub.UsesAppAuth() {
		errs = append(errs, "github.token is required (flag --token or "+EnvGitHubToken+")")
	}
	if c.Calendar.Enabled && strings.TrimSpace(c.Calendar.AccessToken) == "" {
		errs = append(errs, "calendar.access_token is required when calendar.enabled=true ("+EnvCalendarToken+")")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return c.Validate()
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.GitHub.APIBaseURL == "" {
		cfg.GitHub.APIBaseURL = "https://api.github.com"
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = 30 * time.Second
	}
	if cfg.RateLimit.MinRemainingThreshold == 0 {
		cfg.RateLimit.MinRemainingThreshold = 10
	}
	if cfg.RateLimit.MinResetBuffer == 0 {
		cfg.RateLimit.MinResetBuffer = 5 * time.Second
	}
	if cfg.RateLimit.SecondaryLimitBackoff == 0 {
		cfg.RateLimit.SecondaryLimitBackoff = time.Minute
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry.InitialBackoff = time.Second
	}
	if cfg.Retry.MaxBackoff == 0 {
		cfg.Retry.MaxBackoff = 30 * time.Second
	}
	if cfg.Report.Since == "" {
		cfg.Report.Since = "yesterday"
	}
	if cfg.Report.Format == "" {
		cfg.Report.Format = "text"
	}
	if cfg.Calendar.ID == "" {
		cfg.Calendar.ID = "primary"
	}
	if cfg.Calendar.RequestTimeout == 0 {
		cfg.Calendar.RequestTimeout = 15 * time.Second
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Telemetry.OTELTraceMode == "" {
		cfg.Telemetry.OTELTraceMode = "off"
	}
}

// ParseTime resolves a report window bound relative to now. An empty value
// yields the zero time.
func ParseTime(raw string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch strings.ToLower(trimmed) {
	case "":
		return time.Time{}, nil
	case "now":
		return now, nil
	case "today":
		return startOfToday, nil
	case "yesterday":
		return startOfToday.AddDate(0, 0, -1), nil
	}

	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed, nil
	}
	if parsed, err := time.ParseInLocation(time.DateOnly, trimmed, now.Location()); err == nil {
		return parsed, nil
	}
	lookback, err := parseFlexibleDuration(trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: expected yesterday, today, now, YYYY-MM-DD, RFC 3339 or a lookback duration", raw)
	}
	if lookback <= 0 {
		return time.Time{}, fmt.Errorf("parse time %q: lookback must be positive", raw)
	}
	return now.Add(-lookback), nil
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 || strings.TrimSpace(value.Value) == "" {
		d.Duration = 0
		return nil
	}

	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}

	parsed, err := parseFlexibleDuration(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseFlexibleDuration(raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	if standard, err := time.ParseDuration(trimmed); err == nil {
		return standard, nil
	}

	if strings.HasSuffix(trimmed, "d") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "d"), 24)
	}
	if strings.HasSuffix(trimmed, "w") {
		return parseDurationWithMultiplier(strings.TrimSuffix(trimmed, "w"), 24*7)
	}

	return 0, fmt.Errorf("parse duration %q: invalid unit", raw)
}

func parseDurationWithMultiplier(numeric string, multiplierHours float64) (time.Duration, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(numeric), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration value %q: %w", numeric, err)
	}

	nanos := value * multiplierHours * float64(time.Hour)
	if nanos > math.MaxInt64 || nanos < math.MinInt64 {
		return 0, fmt.Errorf("parse duration value %q: out of range", numeric)
	}
	return time.Duration(nanos), nil
}

type rawConfig struct {
	Log       LogConfig    `yaml:"log"`
	GitHub    rawGitHub    `yaml:"github"`
	RateLimit rawRateLimit `yaml:"rate_limit"`
	Retry     rawRetry     `yaml:"retry"`
	Report    rawReport    `yaml:"report"`
	Calendar  rawCalendar  `yaml:"calendar"`
	Server    rawServer    `yaml:"server"`
	Telemetry rawTelemetry `yaml:"telemetry"`
}

type rawGitHub struct {
	User                 string   `yaml:"user"`
	Token                string   `yaml:"token"`
	APIBaseURL           string   `yaml:"api_base_url"`
	RequestTimeout       duration `yaml:"request_timeout"`
	RequestsPerSecond    float64  `yaml:"requests_per_second"`
	IncludeIssueComments bool     `yaml:"include_issue_comments"`
	AppID                int64    `yaml:"app_id"`
	InstallationID       int64    `yaml:"installation_id"`
	PrivateKeyPath       string   `yaml:"private_key_path"`
}

type rawRateLimit struct {
	MinRemainingThreshold int      `yaml:"min_remaining_threshold"`
	MinResetBuffer        duration `yaml:"min_reset_buffer"`
	SecondaryLimitBackoff duration `yaml:"secondary_limit_backoff"`
}

type rawRetry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff duration `yaml:"initial_backoff"`
	MaxBackoff     duration `yaml:"max_backoff"`
}

type rawReport struct {
	Since  string `yaml:"since"`
	Until  string `yaml:"until"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type rawCalendar struct {
	Enabled        bool     `yaml:"enabled"`
	ID             string   `yaml:"id"`
	AccessToken    string   `yaml:"access_token"`
	BaseURL        string   `yaml:"base_url"`
	RequestTimeout duration `yaml:"request_timeout"`
}

type rawServer struct {
	ListenAddr      string   `yaml:"listen_addr"`
	ShutdownTimeout duration `yaml:"shutdown_timeout"`
}

type rawTelemetry struct {
	OTELEnabled          bool    `yaml:"otel_enabled"`
	OTELTraceMode        string  `yaml:"otel_trace_mode"`
	OTELTraceSampleRatio float64 `yaml:"otel_trace_sample_ratio"`
	OTLPEndpoint         string  `yaml:"otlp_endpoint"`
	OTLPHeaders          string  `yaml:"otlp_headers"`
}

func (r rawConfig) toConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  strings.ToLower(strings.TrimSpace(r.Log.Level)),
			Format: strings.ToLower(strings.TrimSpace(r.Log.Format)),
		},
		GitHub: GitHubConfig{
			User:                 strings.TrimSpace(r.GitHub.User),
			Token:                strings.TrimSpace(r.GitHub.Token),
			APIBaseURL:           strings.TrimSpace(r.GitHub.APIBaseURL),
			RequestTimeout:       r.GitHub.RequestTimeout.Duration,
			RequestsPerSecond:    r.GitHub.RequestsPerSecond,
			IncludeIssueComments: r.GitHub.IncludeIssueComments,
			AppID:                r.GitHub.AppID,
			InstallationID:       r.GitHub.InstallationID,
			PrivateKeyPath:       strings.TrimSpace(r.GitHub.PrivateKeyPath),
		},
		RateLimit: RateLimitConfig{
			MinRemainingThreshold: r.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        r.RateLimit.MinResetBuffer.Duration,
			SecondaryLimitBackoff: r.RateLimit.SecondaryLimitBackoff.Duration,
		},
		Retry: RetryConfig{
			MaxAttempts:    r.Retry.MaxAttempts,
			InitialBackoff: r.Retry.InitialBackoff.Duration,
			MaxBackoff:     r.Retry.MaxBackoff.Duration,
		},
		Report: ReportConfig{
			Since:  strings.TrimSpace(r.Report.Since),
			Until:  strings.TrimSpace(r.Report.Until),
			Format: strings.ToLower(strings.TrimSpace(r.Report.Format)),
			Output: strings.TrimSpace(r.Report.Output),
		},
		Calendar: CalendarConfig{
			Enabled:        r.Calendar.Enabled,
			ID:             strings.TrimSpace(r.Calendar.ID),
			AccessToken:    strings.TrimSpace(r.Calendar.AccessToken),
			BaseURL:        strings.TrimSpace(r.Calendar.BaseURL),
			RequestTimeout: r.Calendar.RequestTimeout.Duration,
		},
		Server: ServerConfig{
			ListenAddr:      strings.TrimSpace(r.Server.ListenAddr),
			ShutdownTimeout: r.Server.ShutdownTimeout.Duration,
		},
		Telemetry: TelemetryConfig{
			OTELEnabled:          r.Telemetry.OTELEnabled,
			OTELTraceMode:        strings.ToLower(strings.TrimSpace(r.Telemetry.OTELTraceMode)),
			OTELTraceSampleRatio: r.Telemetry.OTELTraceSampleRatio,
			OTLPEndpoint:         strings.TrimSpace(r.Telemetry.OTLPEndpoint),
			OTLPHeaders:          strings.TrimSpace(r.Telemetry.OTLPHeaders),
		},
	}
}
