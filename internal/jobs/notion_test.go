package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/transcript-sync/internal/model"
	"github.com/sells-group/transcript-sync/pkg/notion"
	"github.com/sells-group/transcript-sync/pkg/notion/mocks"
)

func hasStatus(name string) any {
	return mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		st, ok := req.Properties[notion.PropStatus].(notionapi.StatusProperty)
		return ok && st.Status.Name == name
	})
}

func TestNotionSink_Lifecycle(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()

	mc.On("CreatePage", ctx, mock.Anything).Return(&notionapi.Page{ID: "page-1"}, nil).Once()
	mc.On("UpdatePage", ctx, "page-1", mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		c, ok := req.Properties[notion.PropCollected].(notionapi.NumberProperty)
		return ok && c.Number == 2
	})).Return(&notionapi.Page{ID: "page-1"}, nil).Once()
	mc.On("UpdatePage", ctx, "page-1", hasStatus(NotionStatusSuccess)).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	s := NewNotionSink(mc, "db-jobs")
	s.MarkRunning(ctx, "job-1")
	s.Update(ctx, "job-1", model.Progress{Collected: 2, Stored: 1})
	s.MarkSuccess(ctx, "job-1", model.RunSummary{Processed: 2})

	mc.AssertNotCalled(t, "QueryDatabase", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotionSink_LooksUpUnknownJob(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-jobs", mock.Anything).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "page-7"}},
	}, nil).Once()
	mc.On("UpdatePage", ctx, "page-7", hasStatus(NotionStatusFailed)).Return(&notionapi.Page{ID: "page-7"}, nil).Once()
	mc.On("UpdatePage", ctx, "page-7", mock.Anything).Return(&notionapi.Page{ID: "page-7"}, nil).Once()

	s := NewNotionSink(mc, "db-jobs")
	s.MarkFailed(ctx, "job-7", errors.New("discovery failed"))
	s.Update(ctx, "job-7", model.Progress{Collected: 1})
}

func TestNotionSink_MissingPageIsSkipped(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-jobs", mock.Anything).Return(&notionapi.DatabaseQueryResponse{}, nil).Once()

	s := NewNotionSink(mc, "db-jobs")
	s.Update(ctx, "ghost", model.Progress{Collected: 1})
	mc.AssertNotCalled(t, "UpdatePage", mock.Anything, mock.Anything, mock.Anything)
}

func TestNotionSink_ErrorsAreSwallowed(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()

	mc.On("CreatePage", ctx, mock.Anything).Return(nil, errors.New("rate limited")).Once()
	mc.On("QueryDatabase", ctx, "db-jobs", mock.Anything).Return(nil, errors.New("rate limited")).Once()

	s := NewNotionSink(mc, "db-jobs")
	assert.NotPanics(t, func() {
		s.MarkRunning(ctx, "job-1")
		s.Update(ctx, "job-1", model.Progress{})
	})
}
