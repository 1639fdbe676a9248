// Package export renders run summaries as xlsx workbooks and drops them on
// an FTP server.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/transcript-sync/internal/model"
)

// Sheet names in report order.
const (
	SheetSummary  = "Summary"
	SheetOutcomes = "Outcomes"
	SheetSkips    = "Skips"
)

var outcomeHeader = []string{
	"item_id", "record_id", "status", "sync_status", "processing_time_ms",
	"tokens_used", "cost_usd", "updated_fields", "failed_shards", "error",
}

var skipHeader = []string{"id", "title", "reason", "message"}

// ReportName returns the file name for a run's report.
func ReportName(s model.RunSummary, now time.Time) string {
	if s.RunID != "" {
		return "autoprocess-" + s.RunID + ".xlsx"
	}
	return "autoprocess-" + now.UTC().Format("20060102-150405") + ".xlsx"
}

// BuildReport renders a run summary into a workbook.
func BuildReport(s model.RunSummary) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sum, err := f.AddSheet(SheetSummary)
	if err != nil {
		return nil, eris.Wrap(err, "export: add summary sheet")
	}
	writeSummary(sum, s)

	out, err := f.AddSheet(SheetOutcomes)
	if err != nil {
		return nil, eris.Wrap(err, "export: add outcomes sheet")
	}
	addStringRow(out, outcomeHeader)
	for _, o := range s.Outcomes {
		writeOutcome(out.AddRow(), o)
	}

	skips, err := f.AddSheet(SheetSkips)
	if err != nil {
		return nil, eris.Wrap(err, "export: add skips sheet")
	}
	addStringRow(skips, skipHeader)
	for _, sk := range s.SkipDetail {
		addStringRow(skips, []string{sk.ID, sk.Title, string(sk.Reason), sk.Message})
	}

	return f, nil
}

// WriteReport renders the summary and writes it to w.
func WriteReport(w io.Writer, s model.RunSummary) error {
	f, err := BuildReport(s)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

// SaveReport writes the report to path, creating parent directories.
func SaveReport(path string, s model.RunSummary) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "export: create dir %s", dir)
		}
	}
	f, err := BuildReport(s)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func writeSummary(sheet *xlsx.Sheet, s model.RunSummary) {
	kv := func(k string, set func(*xlsx.Cell)) {
		row := sheet.AddRow()
		row.AddCell().SetString(k)
		set(row.AddCell())
	}
	str := func(v string) func(*xlsx.Cell) { return func(c *xlsx.Cell) { c.SetString(v) } }
	num := func(v int) func(*xlsx.Cell) { return func(c *xlsx.Cell) { c.SetInt(v) } }
	flt := func(v float64) func(*xlsx.Cell) { return func(c *xlsx.Cell) { c.SetFloat(v) } }

	kv("run_id", str(s.RunID))
	kv("dry_run", str(fmt.Sprintf("%t", s.DryRun)))
	kv("started_at", str(s.StartedAt.UTC().Format(time.RFC3339)))
	kv("elapsed", str(s.Elapsed.String()))
	kv("discovered", num(s.Discovered))
	kv("ranked", num(s.Ranked))
	kv("deferred", num(s.Deferred))
	kv("processed", num(s.Processed))
	kv("errored", num(s.Errored))
	kv("success_rate", flt(s.SuccessRate))
	kv("processing_rate", flt(s.ProcessingRate))
	kv("avg_processing_secs", flt(s.AvgProcessingSecs))
	kv("tokens_used", num(s.TokensUsed))
	kv("cost_usd", flt(s.CostUSD))

	for _, r := range model.SkipReasons {
		kv("skipped."+string(r), num(s.Skipped[r]))
	}
	for _, st := range []model.SyncStatus{
		model.SyncSuccess, model.SyncFailed, model.SyncAuthError,
		model.SyncFieldMappingError, model.SyncError, model.SyncSkipped,
	} {
		if n, ok := s.SyncStatuses[st]; ok {
			kv("sync."+string(st), num(n))
		}
	}
	for _, a := range s.Alerts {
		kv("alert."+string(a.Type), str(fmt.Sprintf("[%s] %s", a.Severity, a.Message)))
	}
}

func writeOutcome(row *xlsx.Row, o model.ProcessingOutcome) {
	row.AddCell().SetString(o.ItemID)
	row.AddCell().SetString(o.RecordID)
	row.AddCell().SetString(string(o.Status))
	row.AddCell().SetString(string(o.SyncStatus))
	row.AddCell().SetInt64(o.ProcessingTimeMs)
	if o.TokensUsed != nil {
		row.AddCell().SetInt(*o.TokensUsed)
	} else {
		row.AddCell().SetString("")
	}
	row.AddCell().SetFloat(o.CostUSD)
	row.AddCell().SetInt(o.UpdatedFieldCount)
	row.AddCell().SetString(strings.Join(o.FailedShards, ","))
	row.AddCell().SetString(o.ErrorMessage)
}

func addStringRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, v := range cells {
		row.AddCell().SetString(v)
	}
}
