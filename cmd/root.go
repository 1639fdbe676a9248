package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "transcript-sync",
	Short: "Structures first-meeting transcripts and syncs them to the CRM",
	Long:  "Discovers unstructured first sales meetings, verifies the customer against Salesforce, extracts structured fields via sharded Claude calls and writes them back to the CRM record.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
