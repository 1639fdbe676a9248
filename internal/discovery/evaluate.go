package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/matcher"
	"github.com/sells-group/transcript-sync/internal/model"
)

// Evaluate runs the filter chain for one meeting, cheapest checks first.
// The full transcript is only loaded once the CRM match is verified.
// Errors and panics become a skip with reason error.
func (e *Engine) Evaluate(ctx context.Context, m *matcher.Matcher, mt model.Meeting, now time.Time) (result model.DiscoveryResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("evaluate panicked", zap.String("meeting_id", mt.ID), zap.Any("panic", r))
			result = model.Reject(mt.ID, mt.Title, model.SkipError, fmt.Sprintf("panic: %v", r))
		}
	}()

	if e.opts.Keyword != "" && !strings.Contains(mt.Title, e.opts.Keyword) {
		return model.Reject(mt.ID, mt.Title, model.SkipNotFirst, "")
	}

	if mt.Structured {
		return model.Reject(mt.ID, mt.Title, model.SkipAlreadyStructured, "")
	}

	name, ok := m.ExtractName(mt.Title)
	if !ok {
		return model.Reject(mt.ID, mt.Title, model.SkipNoTitleMatch, "")
	}

	matches, err := e.crm.SearchByExactName(ctx, name, m.Variants(name), e.opts.SearchLimit)
	if err != nil {
		e.log.Warn("crm search failed", zap.String("meeting_id", mt.ID), zap.Error(err))
		return model.Reject(mt.ID, mt.Title, model.SkipError, err.Error())
	}
	if len(matches) == 0 {
		return model.Reject(mt.ID, mt.Title, model.SkipCRMNotExact, "no crm match")
	}

	var exact []model.ExternalMatch
	for _, c := range matches {
		if m.IsExactMatch(name, c.DisplayName, true) {
			exact = append(exact, c)
		}
	}
	if len(exact) != 1 {
		return model.Reject(mt.ID, mt.Title, model.SkipCRMNotExact,
			fmt.Sprintf("%d crm matches, %d exact", len(matches), len(exact)))
	}

	full, err := e.source.GetMeeting(ctx, mt.ID)
	if err != nil {
		e.log.Warn("load meeting failed", zap.String("meeting_id", mt.ID), zap.Error(err))
		return model.Reject(mt.ID, mt.Title, model.SkipError, err.Error())
	}
	text := strings.TrimSpace(full.TextContent)
	if text == "" {
		return model.Reject(mt.ID, mt.Title, model.SkipNoText, "")
	}

	created := full.CreatedAt
	if created.IsZero() {
		created = mt.CreatedAt
	}
	size := utf8.RuneCountInString(text)
	match := exact[0]

	return model.Accept(model.WorkItem{
		ID:            mt.ID,
		Title:         mt.Title,
		AccountID:     mt.AccountID,
		MatchedName:   name,
		ExternalMatch: &match,
		PriorityScore: e.Score(created, now, size, m.Occurrences(mt.Title, name)),
		PayloadSize:   size,
		CreatedAt:     created,
		Text:          text,
	})
}
