package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "standup: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	envFile    string
	user       string
	token      string
	apiURL     string
	logLevel   string

	since                string
	until                string
	format               string
	output               string
	includeIssueComments bool
	calendar             bool
	noProgress           bool

	listenAddr string
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "standup",
		Short:         "Summarize your recent GitHub activity for a standup",
		Long:          `standup reads a user's GitHub activity feed and groups pull requests, reviews, issues and pushes by repository.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd, opts, stdout, stderr)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	persistent := rootCmd.PersistentFlags()
	persistent.StringVarP(&opts.configPath, "config", "c", "", "Path to YAML config file")
	persistent.StringVar(&opts.envFile, "env-file", ".env", "Dotenv file consulted for STANDUP_* variables missing from the environment")
	persistent.StringVarP(&opts.user, "user", "u", "", "GitHub login to report on (env STANDUP_USER)")
	persistent.StringVarP(&opts.token, "token", "t", "", "GitHub token (env STANDUP_GITHUB_TOKEN)")
	persistent.StringVar(&opts.apiURL, "api-url", "", "GitHub API base URL")
	persistent.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")

	addReportFlags(rootCmd, opts)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print the standup report (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd, opts, stdout, stderr)
		},
	}
	addReportFlags(reportCmd, opts)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve reports, metrics and health over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, stderr)
		},
	}
	serveCmd.Flags().StringVar(&opts.listenAddr, "listen", "", "Listen address (default :8080)")
	serveCmd.Flags().BoolVar(&opts.calendar, "calendar", false, "Include Google Calendar meetings")

	calendarsCmd := &cobra.Command{
		Use:   "calendars",
		Short: "List the Google calendars the access token can read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCalendars(cmd, opts, stdout)
		},
	}

	rootCmd.AddCommand(reportCmd, serveCmd, calendarsCmd)
	return rootCmd
}

func addReportFlags(cmd *cobra.Command, opts *options) {
	flags := cmd.Flags()
	flags.StringVarP(&opts.since, "since", "s", "", "Start of the window: yesterday, today, YYYY-MM-DD, RFC 3339 or a lookback such as 3d")
	flags.StringVar(&opts.until, "until", "", "End of the window, same formats as --since (default now)")
	flags.StringVarP(&opts.format, "format", "f", "", "Output format: text, json or xlsx")
	flags.StringVarP(&opts.output, "output", "o", "", "Write the report to this file instead of stdout")
	flags.BoolVar(&opts.includeIssueComments, "include-issue-comments", false, "Report issues you commented on")
	flags.BoolVar(&opts.calendar, "calendar", false, "Include Google Calendar meetings")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress spinner")
}
