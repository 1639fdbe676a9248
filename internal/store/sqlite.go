package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/transcript-sync/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS meetings (
	id              TEXT PRIMARY KEY,
	title           TEXT NOT NULL DEFAULT '',
	account_id      TEXT NOT NULL DEFAULT '',
	text_content    TEXT NOT NULL DEFAULT '',
	structured      INTEGER NOT NULL DEFAULT 0,
	structured_data TEXT,
	structured_at   DATETIME,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_meetings_structured ON meetings(structured, created_at);
CREATE INDEX IF NOT EXISTS idx_meetings_account ON meetings(account_id, created_at);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	summary    TEXT NOT NULL,
	cost_usd   REAL NOT NULL DEFAULT 0,
	dry_run    INTEGER NOT NULL DEFAULT 0,
	processed  INTEGER NOT NULL DEFAULT 0,
	errored    INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);

CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	collected  INTEGER NOT NULL DEFAULT 0,
	stored     INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListMeetings(ctx context.Context, q model.ListMeetingsQuery) (model.MeetingPage, error) {
	query := `SELECT ` + meetingColumns + ` FROM meetings WHERE 1=1`
	var args []any

	if q.AccountFilter != "" {
		query += ` AND account_id = ?`
		args = append(args, q.AccountFilter)
	}
	if q.UnstructuredOnly {
		query += ` AND structured = 0`
	}

	limit, offset := pageBounds(q)
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.MeetingPage{}, eris.Wrap(err, "sqlite: list meetings")
	}
	defer rows.Close()

	var items []model.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return model.MeetingPage{}, err
		}
		items = append(items, *m)
	}
	if err := rows.Err(); err != nil {
		return model.MeetingPage{}, eris.Wrap(err, "sqlite: list meetings iterate")
	}
	return trimPage(items, q), nil
}

func (s *SQLiteStore) GetMeeting(ctx context.Context, id string) (*model.Meeting, error) {
	m, err := scanMeeting(s.db.QueryRowContext(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get meeting %s", id)
	}
	return m, err
}

func (s *SQLiteStore) SaveStructured(ctx context.Context, id string, data map[string]any) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal structured data")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE meetings SET structured = 1, structured_data = ?, structured_at = ? WHERE id = ?`,
		string(dataJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save structured %s", id)
	}
	return checkRowsAffected(res, "meeting", id)
}

func (s *SQLiteStore) UpsertMeetings(ctx context.Context, meetings []model.Meeting) (int64, error) {
	meetings = dedupeMeetings(meetings)
	if len(meetings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO meetings (id, title, account_id, text_content, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, account_id = excluded.account_id, text_content = excluded.text_content`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	var n int64
	for _, m := range meetings {
		created := m.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, m.ID, m.Title, m.AccountID, m.TextContent, created.UTC()); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert meeting %s", m.ID)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return n, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, summary model.RunSummary) (*model.RunRecord, error) {
	rec := runRecord(uuid.New().String(), summary, time.Now().UTC())

	summaryJSON, err := json.Marshal(rec.Summary)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal summary")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, summary, cost_usd, dry_run, processed, errored, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(summaryJSON), rec.CostUSD, summary.DryRun, summary.Processed, summary.Errored, rec.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &rec, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var r model.RunRecord
		var summaryJSON string
		if err := rows.Scan(&r.ID, &summaryJSON, &r.CostUSD, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if err := json.Unmarshal([]byte(summaryJSON), &r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SumCostSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM runs WHERE created_at >= ?`, since.UTC(),
	).Scan(&total)
	return total, eris.Wrap(err, "sqlite: sum cost")
}

func (s *SQLiteStore) CreateJob(ctx context.Context) (*model.Job, error) {
	now := time.Now().UTC()
	job := &model.Job{
		ID:        uuid.New().String(),
		Status:    model.JobStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		job.ID, string(job.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return job, nil
}

func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, id string, p model.Progress) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET collected = ?, stored = ?, updated_at = ? WHERE id = ?`,
		p.Collected, p.Stored, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job progress %s", id)
	}
	return checkRowsAffected(res, "job", id)
}

func (s *SQLiteStore) FinishJob(ctx context.Context, id string, status model.JobStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish job %s", id)
	}
	return checkRowsAffected(res, "job", id)
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var j model.Job
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &status, &j.Progress.Collected, &j.Progress.Stored, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	j.Status = model.JobStatus(status)
	return &j, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanMeeting(row scannable) (*model.Meeting, error) {
	var m model.Meeting
	var dataJSON sql.NullString
	var structuredAt sql.NullTime

	err := row.Scan(&m.ID, &m.Title, &m.AccountID, &m.TextContent, &m.Structured, &dataJSON, &structuredAt, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan meeting")
	}

	if dataJSON.Valid && dataJSON.String != "" {
		if err := json.Unmarshal([]byte(dataJSON.String), &m.StructuredData); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal structured data")
		}
	}
	if structuredAt.Valid {
		t := structuredAt.Time
		m.StructuredAt = &t
	}
	return &m, nil
}
