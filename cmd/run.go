package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/autoprocess"
	"github.com/sells-group/transcript-sync/internal/export"
	"github.com/sells-group/transcript-sync/internal/model"
)

var (
	runAccount      string
	runMaxItems     int
	runDryRun       bool
	runTitlePattern string
	runConcurrency  int
	runBatchSize    int
	runReport       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one auto-process pass",
	Long:  "Discovers first meetings, processes the top-ranked ones and prints the run summary as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mode := "run"
		if runDryRun {
			mode = "dry-run"
		}
		env, err := initPipeline(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Runner.RunAutoProcess(ctx, runParams())
		if err != nil {
			return eris.Wrap(err, "auto-process")
		}

		if runReport != "" {
			if err := deliverReport(ctx, runReport, summary); err != nil {
				return err
			}
		}

		return writeSummary(os.Stdout, summary)
	},
}

func runParams() autoprocess.Params {
	return autoprocess.Params{
		AccountFilter:        runAccount,
		MaxItems:             runMaxItems,
		DryRun:               runDryRun,
		TitlePatternOverride: runTitlePattern,
		Concurrency:          runConcurrency,
		BatchSize:            runBatchSize,
	}
}

// deliverReport saves the xlsx report and uploads it when FTP is configured.
func deliverReport(ctx context.Context, path string, summary model.RunSummary) error {
	if err := export.SaveReport(path, summary); err != nil {
		return err
	}
	zap.L().Info("report written", zap.String("path", path))

	uploader := export.NewFTPUploader(cfg.Export)
	if uploader == nil {
		return nil
	}
	if _, err := uploader.UploadFile(ctx, path); err != nil {
		return eris.Wrap(err, "upload report")
	}
	return nil
}

// writeSummary prints the summary without per-item detail.
func writeSummary(w io.Writer, summary model.RunSummary) error {
	summary.Outcomes = nil
	summary.SkipDetail = nil

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// defaultReportPath names a report in the configured export dir.
func defaultReportPath(summary model.RunSummary) string {
	dir := cfg.Export.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, export.ReportName(summary, time.Now()))
}

func init() {
	runCmd.Flags().StringVar(&runAccount, "account", "", "only consider meetings of this account")
	runCmd.Flags().IntVar(&runMaxItems, "max-items", 0, "maximum meetings to process (default from config)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "discover and rank without extracting or writing")
	runCmd.Flags().StringVar(&runTitlePattern, "title-pattern", "", "override the title pattern (regex with one capture group)")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "workers per batch (default from config)")
	runCmd.Flags().IntVar(&runBatchSize, "batch-size", 0, "items per batch (default from config)")
	runCmd.Flags().StringVar(&runReport, "report", "", "write an xlsx report to this path")
	rootCmd.AddCommand(runCmd)
}
