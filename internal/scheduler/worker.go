package scheduler

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/model"
)

// process runs extract, persist and CRM write for one item. It never
// panics and always returns a terminal outcome.
func (s *Scheduler) process(ctx context.Context, item model.WorkItem) (out model.ProcessingOutcome) {
	start := s.cfg.Now()
	log := s.log.With(zap.String("item_id", item.ID))

	out = model.ProcessingOutcome{ItemID: item.ID, SyncStatus: model.SyncSkipped}
	if item.ExternalMatch != nil {
		out.RecordID = item.ExternalMatch.RecordID
	}
	crmReached := false

	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panicked", zap.Any("panic", r))
			out.Status = model.OutcomeError
			out.ErrorMessage = fmt.Sprintf("panic: %v", r)
			if crmReached {
				out.SyncStatus = model.SyncError
			} else {
				out.SyncStatus = model.SyncSkipped
			}
		}
		out.ProcessingTimeMs = s.cfg.Now().Sub(start).Milliseconds()
	}()

	fail := func(err error) model.ProcessingOutcome {
		log.Warn("item failed", zap.Error(err))
		out.Status = model.OutcomeError
		out.ErrorMessage = err.Error()
		return out
	}

	if item.ExternalMatch == nil {
		return fail(eris.New("scheduler: item has no crm match"))
	}

	res := s.cfg.Extractor.Extract(ctx, item.Text)
	if tokens := res.Usage.Total(); tokens > 0 {
		out.TokensUsed = &tokens
	}
	out.CostUSD = s.cfg.Cost.Usage(s.cfg.Model, res.Usage)
	out.FailedShards = res.FailedShards
	if res.Empty() {
		return fail(eris.Errorf("scheduler: extraction produced no fields (%d shards failed)", len(res.FailedShards)))
	}

	if err := s.cfg.Store.SaveStructured(ctx, item.ID, res.Fields); err != nil {
		return fail(eris.Wrap(err, "scheduler: save structured"))
	}

	crmReached = true
	wctx, cancel := context.WithTimeout(ctx, s.cfg.CRMTimeout)
	defer cancel()
	wr, err := s.cfg.CRM.WriteStructuredFields(wctx, item.ExternalMatch.RecordID, res.Fields)
	if err != nil {
		out.SyncStatus = model.SyncError
		return fail(eris.Wrap(err, "scheduler: crm write"))
	}

	out.Status = model.OutcomeSuccess
	out.SyncStatus = wr.Status
	out.UpdatedFieldCount = wr.UpdatedFieldCount
	out.ErrorMessage = wr.Message
	log.Info("item processed",
		zap.String("sync_status", string(wr.Status)),
		zap.Int("updated_fields", wr.UpdatedFieldCount),
		zap.Strings("failed_shards", res.FailedShards),
	)
	return out
}
