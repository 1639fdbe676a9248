package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/transcript-sync/internal/model"
	"github.com/sells-group/transcript-sync/internal/monitoring"
	"github.com/sells-group/transcript-sync/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect auto-process run history",
	Long:  "Commands for listing persisted runs and evaluating alert thresholds over them.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{Limit: limit}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics and the alerts they trigger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		since, _ := cmd.Flags().GetDuration("since")
		snap, err := monitoring.NewCollector(st).Collect(ctx, int(since.Hours()))
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		alerts := monitoring.NewAlerter(cfg.Monitoring).CheckAlerts(snap.Stats())
		formatRunStats(os.Stdout, snap, alerts)
		return nil
	},
}

func init() {
	runsListCmd.Flags().Duration("since", 7*24*time.Hour, "time window (e.g. 24h, 168h); 0 lists all")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.RunRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tRANKED\tPROCESSED\tERRORED\tSKIPPED\tCOST\tALERTS")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t---------\t-------\t-------\t----\t------")

	for _, r := range runs {
		s := r.Summary
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t$%.4f\t%d\n",
			truncateID(r.ID),
			r.CreatedAt.Format("2006-01-02 15:04"),
			s.Ranked,
			s.Processed,
			s.Errored,
			s.TotalSkipped(),
			r.CostUSD,
			len(s.Alerts),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats and triggered alerts to w.
func formatRunStats(out io.Writer, s *monitoring.Snapshot, alerts []model.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Runs:\t%d\n", s.Runs)
	_, _ = fmt.Fprintf(w, "Succeeded:\t%d\n", s.Succeeded)
	_, _ = fmt.Fprintf(w, "Errored:\t%d\n", s.Errored)
	_, _ = fmt.Fprintf(w, "Success rate:\t%.1f%%\n", s.SuccessRate*100)
	if s.AvgProcessingSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg processing:\t%.1fs\n", s.AvgProcessingSecs)
	}
	_, _ = fmt.Fprintf(w, "Cost:\t$%.2f\n", s.CostUSD)
	_, _ = fmt.Fprintf(w, "Daily cost:\t$%.2f\n", s.DailyCostUSD)
	for _, a := range alerts {
		_, _ = fmt.Fprintf(w, "Alert:\t[%s] %s\n", a.Severity, a.Message)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
