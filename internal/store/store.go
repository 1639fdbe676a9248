package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/transcript-sync/internal/model"
)

// ErrNotFound is returned (wrapped) when a lookup by id matches nothing.
var ErrNotFound = eris.New("store: not found")

// DefaultPageSize is used when a ListMeetingsQuery carries no page size.
const DefaultPageSize = 40

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Since time.Time `json:"since,omitempty"`
	Limit int       `json:"limit,omitempty"`
}

// Store defines persistence for meetings, run summaries and tracked jobs.
type Store interface {
	// Meetings
	ListMeetings(ctx context.Context, q model.ListMeetingsQuery) (model.MeetingPage, error)
	GetMeeting(ctx context.Context, id string) (*model.Meeting, error)
	SaveStructured(ctx context.Context, id string, data map[string]any) error
	UpsertMeetings(ctx context.Context, meetings []model.Meeting) (int64, error)

	// Runs
	SaveRun(ctx context.Context, summary model.RunSummary) (*model.RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunRecord, error)
	SumCostSince(ctx context.Context, since time.Time) (float64, error)

	// Jobs
	CreateJob(ctx context.Context) (*model.Job, error)
	UpdateJobProgress(ctx context.Context, id string, p model.Progress) error
	FinishJob(ctx context.Context, id string, status model.JobStatus, errMsg string) error
	GetJob(ctx context.Context, id string) (*model.Job, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// pageBounds normalizes a query into LIMIT/OFFSET values. One extra row is
// fetched to detect a following page.
func pageBounds(q model.ListMeetingsQuery) (limit, offset int) {
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	return size + 1, (page - 1) * size
}

// trimPage drops the look-ahead row and reports whether it existed.
func trimPage(items []model.Meeting, q model.ListMeetingsQuery) model.MeetingPage {
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if len(items) > size {
		return model.MeetingPage{Items: items[:size], HasNext: true}
	}
	return model.MeetingPage{Items: items}
}

// dedupeMeetings keeps the last occurrence of each id, preserving first-seen
// order. A bulk upsert cannot touch the same row twice.
func dedupeMeetings(meetings []model.Meeting) []model.Meeting {
	idx := make(map[string]int, len(meetings))
	out := make([]model.Meeting, 0, len(meetings))
	for _, m := range meetings {
		if m.ID == "" {
			continue
		}
		if i, ok := idx[m.ID]; ok {
			out[i] = m
			continue
		}
		idx[m.ID] = len(out)
		out = append(out, m)
	}
	return out
}

// runRecord builds the row persisted for a run summary. The summary's
// RunID is set to the new record id.
func runRecord(id string, summary model.RunSummary, now time.Time) model.RunRecord {
	summary.RunID = id
	return model.RunRecord{
		ID:        id,
		Summary:   summary,
		CostUSD:   summary.CostUSD,
		CreatedAt: now,
	}
}
