package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/model"
)

var importPath string

// readMeetings parses a JSON array of meetings.
func readMeetings(path string) ([]model.Meeting, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read meetings file")
	}
	var meetings []model.Meeting
	if err := json.Unmarshal(data, &meetings); err != nil {
		return nil, eris.Wrap(err, "parse meetings file")
	}
	for i, m := range meetings {
		if m.ID == "" {
			return nil, eris.Errorf("meeting %d has no id", i)
		}
	}
	return meetings, nil
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import meetings from a JSON file into the store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		meetings, err := readMeetings(importPath)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		n, err := st.UpsertMeetings(ctx, meetings)
		if err != nil {
			return eris.Wrap(err, "import meetings")
		}

		zap.L().Info("import complete",
			zap.Int64("upserted", n),
			zap.String("file", importPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importPath, "file", "", "path to a JSON array of meetings (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
