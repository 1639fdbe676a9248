package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/transcript-sync/internal/db"
	"github.com/sells-group/transcript-sync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	meetingColumns = `id, title, account_id, text_content, structured, structured_data, structured_at, created_at`
	runColumns     = `id, summary, cost_usd, created_at`
	jobColumns     = `id, status, collected, stored, error, created_at, updated_at`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"get_meeting":         `SELECT ` + meetingColumns + ` FROM meetings WHERE id = $1`,
	"save_structured":     `UPDATE meetings SET structured = true, structured_data = $1, structured_at = $2 WHERE id = $3`,
	"insert_run":          `INSERT INTO runs (id, summary, cost_usd, dry_run, processed, errored, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"sum_cost_since":      `SELECT COALESCE(SUM(cost_usd), 0) FROM runs WHERE created_at >= $1`,
	"insert_job":          `INSERT INTO jobs (id, status, collected, stored, created_at, updated_at) VALUES ($1, $2, 0, 0, $3, $3)`,
	"update_job_progress": `UPDATE jobs SET collected = $1, stored = $2, updated_at = $3 WHERE id = $4`,
	"finish_job":          `UPDATE jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
	"get_job":             `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS meetings (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL DEFAULT '',
	account_id      TEXT NOT NULL DEFAULT '',
	text_content    TEXT NOT NULL DEFAULT '',
	structured      BOOLEAN NOT NULL DEFAULT false,
	structured_data JSONB,
	structured_at   TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_meetings_unstructured ON meetings(created_at DESC) WHERE NOT structured;
CREATE INDEX IF NOT EXISTS idx_meetings_account ON meetings(account_id, created_at DESC);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	summary    JSONB NOT NULL,
	cost_usd   DOUBLE PRECISION NOT NULL DEFAULT 0,
	dry_run    BOOLEAN NOT NULL DEFAULT false,
	processed  INTEGER NOT NULL DEFAULT 0,
	errored    INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);

CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status     TEXT NOT NULL DEFAULT 'running',
	collected  INTEGER NOT NULL DEFAULT 0,
	stored     INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListMeetings(ctx context.Context, q model.ListMeetingsQuery) (model.MeetingPage, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE true`
	args := []any{}
	argIdx := 1

	if q.AccountFilter != "" {
		query += fmt.Sprintf(` AND account_id = $%d`, argIdx)
		args = append(args, q.AccountFilter)
		argIdx++
	}
	if q.UnstructuredOnly {
		query += ` AND NOT structured`
	}

	limit, offset := pageBounds(q)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return model.MeetingPage{}, eris.Wrap(err, "postgres: list meetings")
	}
	defer rows.Close()

	var items []model.Meeting
	for rows.Next() {
		m, err := scanPgMeeting(rows)
		if err != nil {
			return model.MeetingPage{}, eris.Wrap(err, "postgres: scan meeting")
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return model.MeetingPage{}, eris.Wrap(err, "postgres: list meetings iterate")
	}
	return trimPage(items, q), nil
}

func (s *PostgresStore) GetMeeting(ctx context.Context, id string) (*model.Meeting, error) {
	m, err := scanPgMeeting(s.pool.QueryRow(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get meeting %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get meeting %s", id)
	}
	return m, nil
}

func (s *PostgresStore) SaveStructured(ctx context.Context, id string, data map[string]any) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal structured data")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE meetings SET structured = true, structured_data = $1, structured_at = $2 WHERE id = $3`,
		dataJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save structured %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: save structured %s", id)
	}
	return nil
}

func (s *PostgresStore) UpsertMeetings(ctx context.Context, meetings []model.Meeting) (int64, error) {
	meetings = dedupeMeetings(meetings)
	rows := make([][]any, 0, len(meetings))
	for _, m := range meetings {
		created := m.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		rows = append(rows, []any{m.ID, m.Title, m.AccountID, m.TextContent, created})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "meetings",
		Columns:      []string{"id", "title", "account_id", "text_content", "created_at"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"title", "account_id", "text_content"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert meetings")
}

func (s *PostgresStore) SaveRun(ctx context.Context, summary model.RunSummary) (*model.RunRecord, error) {
	rec := runRecord(uuid.New().String(), summary, time.Now().UTC())

	summaryJSON, err := json.Marshal(rec.Summary)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal summary")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, summary, cost_usd, dry_run, processed, errored, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, summaryJSON, rec.CostUSD, summary.DryRun, summary.Processed, summary.Errored, rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &rec, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var r model.RunRecord
		var summaryJSON []byte
		if err := rows.Scan(&r.ID, &summaryJSON, &r.CostUSD, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(summaryJSON, &r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SumCostSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM runs WHERE created_at >= $1`, since,
	).Scan(&total)
	return total, eris.Wrap(err, "postgres: sum cost")
}

func (s *PostgresStore) CreateJob(ctx context.Context) (*model.Job, error) {
	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.New().String(),
		Status:    model.JobStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, collected, stored, created_at, updated_at) VALUES ($1, $2, 0, 0, $3, $3)`,
		job.ID, string(job.Status), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return job, nil
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id string, p model.Progress) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET collected = $1, stored = $2, updated_at = $3 WHERE id = $4`,
		p.Collected, p.Stored, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job progress %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: job %s", id)
	}
	return nil
}

func (s *PostgresStore) FinishJob(ctx context.Context, id string, status model.JobStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish job %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: job %s", id)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &status, &j.Progress.Collected, &j.Progress.Stored, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	j.Status = model.JobStatus(status)
	return &j, nil
}

func scanPgMeeting(row pgx.Row) (*model.Meeting, error) {
	var m model.Meeting
	var dataJSON []byte
	err := row.Scan(&m.ID, &m.Title, &m.AccountID, &m.TextContent, &m.Structured, &dataJSON, &m.StructuredAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &m.StructuredData); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal structured data")
		}
	}
	return &m, nil
}
