// Package main - audit subcommand: gather artifacts and run the
// installability audit for one or more pages.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/garciaii/lighthouse/internal/audit"
	"github.com/garciaii/lighthouse/internal/config"
	"github.com/garciaii/lighthouse/internal/gather"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var noBrowser bool

var auditCmd = &cobra.Command{
	Use:   "audit [url...]",
	Short: "Audit pages for install eligibility",
	Long: `Loads each URL, gathers its manifest, service worker state, and
start_url cache probe, then reports which installability criteria are unmet.

With --no-browser the artifacts are gathered over plain HTTP: the manifest is
still discovered and parsed, but service worker state cannot be observed and
the start_url status reflects a live fetch.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().BoolVar(&noBrowser, "no-browser", false, "gather over HTTP instead of driving Chrome")
}

// pageReport pairs one page with its verdict.
type pageReport struct {
	URL      string        `json:"url"`
	FinalURL string        `json:"final_url,omitempty"`
	RunID    string        `json:"run_id,omitempty"`
	Result   audit.Result  `json:"result"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	source, shutdown, err := buildSource(ctx)
	if err != nil {
		return err
	}
	defer shutdown()

	auditor := audit.NewInstallableManifest(logger)

	reports := make([]pageReport, len(args))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.Gather.Parallelism)
	for i, pageURL := range args {
		i, pageURL := i, pageURL
		eg.Go(func() error {
			report := pageReport{URL: pageURL}
			run, err := source.Gather(gctx, pageURL)
			if err != nil {
				logger.Error("gather failed", zap.String("url", pageURL), zap.Error(err))
				report.Error = err.Error()
				reports[i] = report
				return nil
			}
			report.FinalURL = run.Artifacts.URL.FinalURL
			report.RunID = run.ID
			report.Duration = run.Duration
			report.Result = auditor.Run(gctx, run.Artifacts)
			reports[i] = report
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
	} else {
		for _, report := range reports {
			printReport(report)
		}
	}

	failed := 0
	for _, report := range reports {
		if report.Error != "" || !report.Result.Passed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pages are not installable", failed, len(reports))
	}
	return nil
}

// buildSource picks the artifact source from config and flags. The returned
// shutdown func is always safe to call.
func buildSource(ctx context.Context) (gather.Source, func(), error) {
	mode := cfg.Gather.Mode
	if noBrowser {
		mode = config.ModeHTTP
	}

	if mode == config.ModeHTTP {
		fetcher := gather.NewFetcher(time.Duration(cfg.Gather.HTTPTimeoutMs)*time.Millisecond, logger)
		return fetcher, func() {}, nil
	}

	gatherer := gather.New(gather.Config{
		DebuggerURL:         cfg.Browser.DebuggerURL,
		Launch:              cfg.Browser.Launch,
		Headless:            cfg.Browser.Headless,
		ViewportWidth:       cfg.Browser.ViewportWidth,
		ViewportHeight:      cfg.Browser.ViewportHeight,
		NavigationTimeoutMs: cfg.Browser.NavigationTimeoutMs,
	}, logger)
	if err := gatherer.Start(ctx); err != nil {
		return nil, func() {}, fmt.Errorf("start browser: %w", err)
	}
	shutdown := func() {
		if err := gatherer.Shutdown(context.Background()); err != nil {
			logger.Warn("browser shutdown", zap.Error(err))
		}
	}
	return gatherer, shutdown, nil
}

func printReport(report pageReport) {
	if report.Error != "" {
		fmt.Printf("✗ %s\n    gather error: %s\n", report.URL, report.Error)
		return
	}

	mark := "✓"
	if !report.Result.Passed {
		mark = "✗"
	}
	fmt.Printf("%s %s\n", mark, report.URL)
	if report.Result.Explanation != "" {
		fmt.Printf("    %s\n", report.Result.Explanation)
	}
	for _, item := range report.Result.Details.Items {
		for _, failure := range item.Failures {
			fmt.Printf("    - %s\n", failure)
		}
	}
	for _, warning := range report.Result.Warnings {
		fmt.Printf("    warning: %s\n", warning)
	}
}
