package jobs

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/model"
	"github.com/sells-group/transcript-sync/pkg/notion"
)

// Notion status names for job rows.
const (
	NotionStatusRunning = "Running"
	NotionStatusSuccess = "Success"
	NotionStatusFailed  = "Failed"
)

// NotionSink mirrors job progress into a Notion database, one page per job.
type NotionSink struct {
	client notion.Client
	dbID   string
	log    *zap.Logger

	mu    sync.Mutex
	pages map[string]string
}

// NewNotionSink writes job rows into database dbID.
func NewNotionSink(client notion.Client, dbID string) *NotionSink {
	return &NotionSink{
		client: client,
		dbID:   dbID,
		log:    zap.L().With(zap.String("component", "jobs.notion")),
		pages:  make(map[string]string),
	}
}

// MarkRunning implements ProgressSink.
func (n *NotionSink) MarkRunning(ctx context.Context, jobID string) {
	pageID, err := notion.CreateJobPage(ctx, n.client, n.dbID, jobID, NotionStatusRunning)
	if err != nil {
		n.log.Warn("create job page", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	n.mu.Lock()
	n.pages[jobID] = pageID
	n.mu.Unlock()
}

// Update implements ProgressSink.
func (n *NotionSink) Update(ctx context.Context, jobID string, p model.Progress) {
	n.update(ctx, jobID, notion.JobUpdate{Collected: &p.Collected, Stored: &p.Stored})
}

// MarkSuccess implements ProgressSink.
func (n *NotionSink) MarkSuccess(ctx context.Context, jobID string, s model.RunSummary) {
	collected := s.Processed + s.Errored
	stored := s.Processed
	n.update(ctx, jobID, notion.JobUpdate{
		Status:    NotionStatusSuccess,
		Collected: &collected,
		Stored:    &stored,
	})
}

// MarkFailed implements ProgressSink.
func (n *NotionSink) MarkFailed(ctx context.Context, jobID string, err error) {
	u := notion.JobUpdate{Status: NotionStatusFailed}
	if err != nil {
		u.Error = err.Error()
	}
	n.update(ctx, jobID, u)
}

func (n *NotionSink) update(ctx context.Context, jobID string, u notion.JobUpdate) {
	pageID, ok := n.pageFor(ctx, jobID)
	if !ok {
		return
	}
	if err := notion.UpdateJobPage(ctx, n.client, pageID, u); err != nil {
		n.log.Warn("update job page", zap.String("job_id", jobID), zap.Error(err))
	}
}

// pageFor returns the cached page for jobID, falling back to a database
// lookup for jobs started by another process.
func (n *NotionSink) pageFor(ctx context.Context, jobID string) (string, bool) {
	n.mu.Lock()
	pageID, ok := n.pages[jobID]
	n.mu.Unlock()
	if ok {
		return pageID, true
	}

	pageID, err := notion.FindJobPage(ctx, n.client, n.dbID, jobID)
	if err != nil {
		n.log.Warn("find job page", zap.String("job_id", jobID), zap.Error(err))
		return "", false
	}
	if pageID == "" {
		n.log.Debug("no job page", zap.String("job_id", jobID))
		return "", false
	}

	n.mu.Lock()
	n.pages[jobID] = pageID
	n.mu.Unlock()
	return pageID, true
}
