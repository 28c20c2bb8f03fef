package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raysh454/a11yscan/internal/cli"
	"github.com/raysh454/a11yscan/internal/model"
	"github.com/raysh454/a11yscan/internal/poller"
	"github.com/raysh454/a11yscan/internal/webclient"
)

var scanOpts cli.ScanOptions

var noCache bool

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Scan a page through a running server",
	Long: `Start an accessibility report for <url> on the server at --endpoint and
poll it until it completes. A cached report is printed immediately unless
--no-cache is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts := scanOpts
		opts.Target = args[0]
		opts.UseCache = !noCache
		if opts.Endpoint == "" {
			opts.Endpoint = cfg.Poller.Endpoint
		}
		if opts.Interval == 0 {
			opts.Interval = cfg.Poller.Interval
		}
		if !cmd.Flags().Changed("save") {
			opts.Save = cfg.Poller.SaveOnComplete
		}
		if err := opts.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}

		logger := newLogger(cfg, "a11yscan-scan")
		wc, err := webclient.NewNetHTTPClient(cfg.WebClient, logger, nil)
		if err != nil {
			return err
		}
		defer wc.Close()

		client, err := poller.NewGraphQLClient(opts.Endpoint, wc, logger)
		if err != nil {
			return err
		}

		started, err := client.StartJob(ctx, opts.Target, opts.UseCache)
		if err != nil {
			return fmt.Errorf("starting report: %w", err)
		}
		if started.Cached() {
			return cli.WriteReport(cmd.OutOrStdout(), started.JobID, started.Result, opts.JSON)
		}

		type outcome struct {
			result *model.ReportResult
			err    error
		}
		done := make(chan outcome, 1)
		handler := poller.HandlerFuncs{
			Progress: func(id string, status model.JobStatus) {
				if !opts.JSON {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", id, status)
				}
			},
			Complete: func(_ string, r *model.ReportResult) { done <- outcome{result: r} },
			Failed: func(id string, reason string) {
				done <- outcome{err: fmt.Errorf("job %s failed: %s", id, reason)}
			},
			NotFound: func(id string) {
				done <- outcome{err: fmt.Errorf("job %s not found on server", id)}
			},
		}

		p, err := poller.New(client, poller.Config{
			Endpoint:       opts.Endpoint,
			Interval:       opts.Interval,
			SaveOnComplete: opts.Save,
		}, handler, logger)
		if err != nil {
			return err
		}
		cancel := p.Start(started.JobID)

		var res outcome
		select {
		case res = <-done:
		case <-ctx.Done():
			cancel()
			p.Close()
			return fmt.Errorf("waiting for job %s: %w", started.JobID, ctx.Err())
		}
		p.Close()
		if res.err != nil {
			return res.err
		}
		return cli.WriteReport(cmd.OutOrStdout(), started.JobID, res.result, opts.JSON)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanOpts.Endpoint, "endpoint", "e", "", "GraphQL endpoint of the server (default from config)")
	scanCmd.Flags().BoolVar(&noCache, "no-cache", false, "Always run a fresh scan")
	scanCmd.Flags().BoolVar(&scanOpts.Save, "save", false, "Save the finished report on the server")
	scanCmd.Flags().BoolVar(&scanOpts.JSON, "json", false, "Print the report as JSON")
	scanCmd.Flags().DurationVar(&scanOpts.Interval, "interval", 0, "Poll interval (default from config)")
	scanCmd.Flags().DurationVar(&scanOpts.Timeout, "timeout", 0, "Give up after this long (0 waits indefinitely)")
}
