package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/cam3ron2/github-standup/internal/activity"
	"github.com/cam3ron2/github-standup/internal/calendar"
	"github.com/cam3ron2/github-standup/internal/config"
	"github.com/cam3ron2/github-standup/internal/githubapi"
	"github.com/cam3ron2/github-standup/internal/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func buildLogger(cfg config.LogConfig, sink io.Writer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(sink), zap.NewAtomicLevelAt(logLevel(cfg.Level)))
	return zap.New(core)
}

func syncLogger(logger *zap.Logger, stderr io.Writer) {
	if err := logger.Sync(); err != nil && !shouldIgnoreLoggerSyncError(err) {
		_, _ = fmt.Fprintf(stderr, "standup: sync logger: %v\n", err)
	}
}

// shouldIgnoreLoggerSyncError matches the errors Sync returns for terminals and pipes.
func shouldIgnoreLoggerSyncError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}

func logLevel(raw string) zapcore.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func setupTelemetry(cfg config.TelemetryConfig) (func(), error) {
	runtime, err := telemetry.Setup(telemetry.Config{
		Enabled:          cfg.OTELEnabled,
		ServiceName:      telemetry.DefaultServiceName,
		TraceMode:        cfg.OTELTraceMode,
		TraceSampleRatio: cfg.OTELTraceSampleRatio,
		OTLPEndpoint:     cfg.OTLPEndpoint,
		OTLPHeaders:      cfg.OTLPHeaders,
	})
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = runtime.Shutdown(shutdownCtx)
	}, nil
}

func githubHTTPClient(cfg config.GitHubConfig) (*http.Client, error) {
	if cfg.UsesAppAuth() {
		return githubapi.NewInstallationHTTPClient(githubapi.InstallationAuthConfig{
			AppID:          cfg.AppID,
			InstallationID: cfg.InstallationID,
			PrivateKeyPath: cfg.PrivateKeyPath,
			Timeout:        cfg.RequestTimeout,
		})
	}
	return githubapi.NewTokenHTTPClient(githubapi.TokenAuthConfig{
		Token:   cfg.Token,
		Timeout: cfg.RequestTimeout,
	})
}

// buildCollector wires the GitHub clients and the report pipeline. A nil
// observer leaves request metrics off.
func buildCollector(ctx context.Context, cfg *config.Config, logger *zap.Logger, observer githubapi.RequestObserver, opts ...activity.CollectorOption) (*activity.Collector, error) {
	httpClient, err := githubHTTPClient(cfg.GitHub)
	if err != nil {
		return nil, fmt.Errorf("build github http client: %w", err)
	}

	clientOpts := []githubapi.ClientOption{githubapi.WithRequestsPerSecond(cfg.GitHub.RequestsPerSecond)}
	if observer != nil {
		clientOpts = append(clientOpts, githubapi.WithObserver(observer))
	}
	requestClient := githubapi.NewClient(
		httpClient,
		githubapi.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		},
		githubapi.RateLimitPolicy{
			MinRemainingThreshold: cfg.RateLimit.MinRemainingThreshold,
			MinResetBuffer:        cfg.RateLimit.MinResetBuffer,
			SecondaryLimitBackoff: cfg.RateLimit.SecondaryLimitBackoff,
		},
		clientOpts...,
	)

	dataClient, err := githubapi.NewDataClient(cfg.GitHub.APIBaseURL, requestClient)
	if err != nil {
		return nil, fmt.Errorf("build events client: %w", err)
	}
	restClient, err := githubapi.NewGitHubRESTClient(requestClient.HTTPClient(), cfg.GitHub.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("build rest client: %w", err)
	}
	repoClient, err := githubapi.NewRepoClient(restClient)
	if err != nil {
		return nil, fmt.Errorf("build repository client: %w", err)
	}

	if cfg.Calendar.Enabled {
		calendarClient, calendarErr := buildCalendar(ctx, cfg)
		if calendarErr != nil {
			return nil, calendarErr
		}
		opts = append(opts, activity.WithMeetings(calendarClient))
	}

	return activity.NewCollector(
		activity.NewFetcher(dataClient, logger),
		activity.NewEnricher(repoClient, logger),
		logger,
		opts...,
	), nil
}

func buildCalendar(ctx context.Context, cfg *config.Config) (*calendar.GoogleClient, error) {
	client, err := calendar.NewGoogleClient(
		ctx,
		&http.Client{Timeout: cfg.Calendar.RequestTimeout},
		calendar.GoogleConfig{
			BaseURL:     cfg.Calendar.BaseURL,
			CalendarID:  cfg.Calendar.ID,
			AccessToken: cfg.Calendar.AccessToken,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("build calendar client: %w", err)
	}
	return client, nil
}
