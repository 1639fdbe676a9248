package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/transcript-sync/internal/autoprocess"
	"github.com/sells-group/transcript-sync/internal/workflow"
)

var (
	scheduleAccount  string
	scheduleMaxItems int
	scheduleDryRun   bool
	scheduleCron     string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Create or update the Temporal cron schedule for auto-process",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scheduleCron != "" {
			cfg.Temporal.Cron = scheduleCron
		}
		if err := cfg.Validate("schedule"); err != nil {
			return err
		}

		c, err := dialTemporal()
		if err != nil {
			return err
		}
		defer c.Close()

		return workflow.EnsureSchedule(cmd.Context(), c.ScheduleClient(), cfg.Temporal, autoprocess.Params{
			AccountFilter: scheduleAccount,
			MaxItems:      scheduleMaxItems,
			DryRun:        scheduleDryRun,
		})
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleAccount, "account", "", "only consider meetings of this account")
	scheduleCmd.Flags().IntVar(&scheduleMaxItems, "max-items", 0, "maximum meetings per run (default from worker config)")
	scheduleCmd.Flags().BoolVar(&scheduleDryRun, "dry-run", false, "schedule dry runs only")
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "cron expression (default from config)")
	rootCmd.AddCommand(scheduleCmd)
}
