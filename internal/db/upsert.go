package db

import (
	"context"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a merge of staged rows into Table.
type UpsertConfig struct {
	Table        string   // may be schema-qualified
	Columns      []string // column order of each row
	ConflictKeys []string // unique constraint columns
	UpdateCols   []string // nil updates every non-key column
}

// mergePlan holds the statements for one BulkUpsert call.
type mergePlan struct {
	staging string
	create  string
	merge   string
}

func (cfg UpsertConfig) validate() error {
	if len(cfg.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

func (cfg UpsertConfig) updateColumns() []string {
	if cfg.UpdateCols != nil {
		return cfg.UpdateCols
	}
	var cols []string
	for _, c := range cfg.Columns {
		if !slices.Contains(cfg.ConflictKeys, c) {
			cols = append(cols, c)
		}
	}
	return cols
}

func (cfg UpsertConfig) plan() mergePlan {
	staging := "_tmp_upsert_" + strings.ReplaceAll(cfg.Table, ".", "_")
	target := sanitizeTable(cfg.Table)
	stagingID := pgx.Identifier{staging}.Sanitize()
	cols := quoteAndJoin(cfg.Columns)

	sets := make([]string, 0, len(cfg.Columns))
	for _, c := range cfg.updateColumns() {
		id := pgx.Identifier{c}.Sanitize()
		sets = append(sets, id+" = EXCLUDED."+id)
	}

	var merge strings.Builder
	merge.WriteString("INSERT INTO " + target + " (" + cols + ") SELECT " + cols + " FROM " + stagingID)
	merge.WriteString(" ON CONFLICT (" + quoteAndJoin(cfg.ConflictKeys) + ")")
	if len(sets) == 0 {
		merge.WriteString(" DO NOTHING")
	} else {
		merge.WriteString(" DO UPDATE SET " + strings.Join(sets, ", "))
	}

	return mergePlan{
		staging: staging,
		create:  "CREATE TEMP TABLE " + stagingID + " (LIKE " + target + " INCLUDING DEFAULTS) ON COMMIT DROP",
		merge:   merge.String(),
	}
}

// BulkUpsert stages rows with COPY into a temporary table and merges them
// into cfg.Table in a single transaction. It returns the number of rows the
// merge inserted or updated.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}
	p := cfg.plan()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, p.create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: stage %s", cfg.Table)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{p.staging}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: copy %d rows for %s", len(rows), cfg.Table)
	}
	tag, err := tx.Exec(ctx, p.merge)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// sanitizeTable quotes a table name, splitting an optional schema prefix.
func sanitizeTable(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
