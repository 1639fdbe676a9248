package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/transcript-sync/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var meetingCols = []string{"id", "title", "account_id", "text_content", "structured", "structured_data", "structured_at", "created_at"}

func TestPostgresStore_ListMeetings_HasNext(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(meetingCols).
		AddRow("m1", "初回面談_田中太郎", "acc", "", false, []byte(nil), (*time.Time)(nil), created).
		AddRow("m2", "初回面談_佐藤花子", "acc", "", false, []byte(nil), (*time.Time)(nil), created).
		AddRow("m3", "定例", "acc", "", false, []byte(nil), (*time.Time)(nil), created)

	mock.ExpectQuery(`FROM meetings WHERE true AND account_id = \$1 AND NOT structured ORDER BY created_at DESC, id LIMIT \$2 OFFSET \$3`).
		WithArgs("acc", 3, 2).
		WillReturnRows(rows)

	page, err := s.ListMeetings(context.Background(), model.ListMeetingsQuery{
		Page: 2, PageSize: 2, AccountFilter: "acc", UnstructuredOnly: true,
	})
	require.NoError(t, err)
	assert.True(t, page.HasNext)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "m1", page.Items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMeetings_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM meetings`).
		WithArgs(41, 0).
		WillReturnError(errors.New("connection refused"))

	_, err := s.ListMeetings(context.Background(), model.ListMeetingsQuery{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list meetings")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMeeting(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	structuredAt := created.Add(time.Hour)

	mock.ExpectQuery(`FROM meetings WHERE id = \$1`).
		WithArgs("m1").
		WillReturnRows(pgxmock.NewRows(meetingCols).
			AddRow("m1", "初回面談_田中太郎", "acc", "hello", true, []byte(`{"budget":"100"}`), &structuredAt, created))

	m, err := s.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "hello", m.TextContent)
	assert.True(t, m.Structured)
	assert.Equal(t, "100", m.StructuredData["budget"])
	require.NotNil(t, m.StructuredAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMeeting_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM meetings WHERE id = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetMeeting(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveStructured(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE meetings SET structured = true`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "m1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.SaveStructured(context.Background(), "m1", map[string]any{"k": "v"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveStructured_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE meetings SET structured = true`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SaveStructured(context.Background(), "gone", map[string]any{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertMeetings(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cols := []string{"id", "title", "account_id", "text_content", "created_at"}

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_meetings"}, cols).WillReturnResult(2)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertMeetings(context.Background(), []model.Meeting{
		{ID: "m1", Title: "a"},
		{ID: "m2", Title: "b"},
		{ID: "m1", Title: "a2"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), 0.42, false, 3, 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec, err := s.SaveRun(context.Background(), model.RunSummary{Processed: 3, Errored: 1, CostUSD: 0.42})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, rec.ID, rec.Summary.RunID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM runs WHERE true AND created_at >= \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(since, 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "summary", "cost_usd", "created_at"}).
			AddRow("r1", []byte(`{"processed":2,"success_rate":0.5}`), 0.1, since.Add(time.Hour)))

	runs, err := s.ListRuns(context.Background(), RunFilter{Since: since})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Summary.Processed)
	assert.InDelta(t, 0.5, runs[0].Summary.SuccessRate, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SumCostSince(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(cost_usd\), 0\) FROM runs`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(12.5))

	total, err := s.SumCostSince(context.Background(), since)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, total, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_JobLifecycle(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(pgxmock.AnyArg(), "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	job, err := s.CreateJob(ctx)
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE jobs SET collected`).
		WithArgs(2, 1, pgxmock.AnyArg(), job.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.UpdateJobProgress(ctx, job.ID, model.Progress{Collected: 2, Stored: 1}))

	mock.ExpectExec(`UPDATE jobs SET status`).
		WithArgs("success", "", pgxmock.AnyArg(), job.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, s.FinishJob(ctx, job.ID, model.JobStatusSuccess, ""))

	now := time.Now().UTC()
	mock.ExpectQuery(`FROM jobs WHERE id = \$1`).
		WithArgs(job.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "collected", "stored", "error", "created_at", "updated_at"}).
			AddRow(job.ID, "success", 2, 1, "", now, now))
	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusSuccess, got.Status)
	assert.Equal(t, 2, got.Progress.Collected)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET status`).
		WithArgs("failed", "boom", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishJob(context.Background(), "missing", model.JobStatusFailed, "boom")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
