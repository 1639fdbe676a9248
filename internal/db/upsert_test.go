package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var meetingCols = []string{"id", "title", "account_id", "text_content", "created_at"}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "meetings",
		Columns:      meetingCols,
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "meetings",
		ConflictKeys: []string{"id"},
	}, [][]any{{"m1", "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "meetings",
		Columns: meetingCols,
	}, [][]any{{"m1", "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_meetings"}, meetingCols).WillReturnResult(2)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{
		{"m1", "初回面談_田中太郎", "acc", "text", nil},
		{"m2", "初回面談_佐藤花子", "acc", "text", nil},
	}
	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "meetings",
		Columns:      meetingCols,
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"title", "account_id", "text_content"},
	}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_meetings"}, meetingCols).WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "meetings",
		Columns:      meetingCols,
		ConflictKeys: []string{"id"},
	}, [][]any{{"m1", "t", "a", "x", nil}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy 1 rows for meetings")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"meetings", `"meetings"`},
		{"public.meetings", `"public"."meetings"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "title", "account_id"`, quoteAndJoin([]string{"id", "title", "account_id"}))
}

func TestUpsertPlan_DefaultUpdateColumns(t *testing.T) {
	p := UpsertConfig{
		Table:        "public.meetings",
		Columns:      []string{"id", "title", "text_content"},
		ConflictKeys: []string{"id"},
	}.plan()

	assert.Equal(t, "_tmp_upsert_public_meetings", p.staging)
	assert.Equal(t, `CREATE TEMP TABLE "_tmp_upsert_public_meetings" (LIKE "public"."meetings" INCLUDING DEFAULTS) ON COMMIT DROP`, p.create)
	assert.Equal(t,
		`INSERT INTO "public"."meetings" ("id", "title", "text_content") SELECT "id", "title", "text_content" FROM "_tmp_upsert_public_meetings"`+
			` ON CONFLICT ("id") DO UPDATE SET "title" = EXCLUDED."title", "text_content" = EXCLUDED."text_content"`,
		p.merge)
}

func TestUpsertPlan_KeysOnlyDoesNothing(t *testing.T) {
	p := UpsertConfig{
		Table:        "meetings",
		Columns:      []string{"id"},
		ConflictKeys: []string{"id"},
	}.plan()
	assert.True(t, strings.HasSuffix(p.merge, `ON CONFLICT ("id") DO NOTHING`))
}
