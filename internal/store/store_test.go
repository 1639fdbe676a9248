package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/transcript-sync/internal/model"
)

func TestPageBounds(t *testing.T) {
	tests := []struct {
		name       string
		q          model.ListMeetingsQuery
		wantLimit  int
		wantOffset int
	}{
		{"defaults", model.ListMeetingsQuery{}, DefaultPageSize + 1, 0},
		{"first page", model.ListMeetingsQuery{Page: 1, PageSize: 10}, 11, 0},
		{"third page", model.ListMeetingsQuery{Page: 3, PageSize: 10}, 11, 20},
		{"negative page", model.ListMeetingsQuery{Page: -2, PageSize: 5}, 6, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, offset := pageBounds(tt.q)
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

func TestTrimPage(t *testing.T) {
	q := model.ListMeetingsQuery{PageSize: 2}

	full := trimPage([]model.Meeting{{ID: "a"}, {ID: "b"}, {ID: "c"}}, q)
	assert.True(t, full.HasNext)
	assert.Len(t, full.Items, 2)

	last := trimPage([]model.Meeting{{ID: "a"}}, q)
	assert.False(t, last.HasNext)
	assert.Len(t, last.Items, 1)
}

func TestDedupeMeetings(t *testing.T) {
	out := dedupeMeetings([]model.Meeting{
		{ID: "a", Title: "first"},
		{ID: "b", Title: "b"},
		{ID: "", Title: "no id"},
		{ID: "a", Title: "second"},
	})
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "second", out[0].Title)
	assert.Equal(t, "b", out[1].ID)
}

func TestRunRecord(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := runRecord("run-1", model.RunSummary{CostUSD: 1.5, Processed: 3}, now)
	assert.Equal(t, "run-1", rec.ID)
	assert.Equal(t, "run-1", rec.Summary.RunID)
	assert.Equal(t, 1.5, rec.CostUSD)
	assert.Equal(t, now, rec.CreatedAt)
}
