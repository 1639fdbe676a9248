// Package discovery pages through unprocessed meetings, verifies their
// candidate names against the CRM, and ranks the ones worth extracting.
package discovery

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/config"
	"github.com/sells-group/transcript-sync/internal/matcher"
	"github.com/sells-group/transcript-sync/internal/model"
)

// WorkSource lists meetings and loads their full text.
type WorkSource interface {
	ListMeetings(ctx context.Context, q model.ListMeetingsQuery) (model.MeetingPage, error)
	GetMeeting(ctx context.Context, id string) (*model.Meeting, error)
}

// CRMSearcher finds CRM records by exact name.
type CRMSearcher interface {
	SearchByExactName(ctx context.Context, name string, variants []string, limit int) ([]model.ExternalMatch, error)
}

// Request parameterizes one discovery pass.
type Request struct {
	AccountFilter string
	MaxItems      int
	// TitlePattern overrides the configured name pattern when non-empty.
	TitlePattern string
}

// Result is the outcome of a discovery pass. Every visited meeting is either
// in Skips or was a candidate; Deferred counts candidates cut by MaxItems.
type Result struct {
	Ranked   []model.WorkItem   `json:"ranked"`
	Skips    []model.SkipRecord `json:"skips"`
	Visited  int                `json:"visited"`
	Deferred int                `json:"deferred"`
	Pages    int                `json:"pages"`
}

// Options holds engine settings.
type Options struct {
	Keyword          string
	TitlePattern     string
	PageSize         int
	SweetSpotMin     int
	SweetSpotMax     int
	SearchLimit      int
	UnstructuredOnly bool
	Now              func() time.Time
}

// OptionsFrom builds Options from the discovery config section.
func OptionsFrom(cfg config.DiscoveryConfig, searchLimit int) Options {
	return Options{
		Keyword:          cfg.Keyword,
		TitlePattern:     cfg.TitlePattern,
		PageSize:         cfg.PageSize,
		SweetSpotMin:     cfg.SweetSpotMin,
		SweetSpotMax:     cfg.SweetSpotMax,
		SearchLimit:      searchLimit,
		UnstructuredOnly: cfg.UnstructuredOnly,
	}
}

// Engine runs discovery passes.
type Engine struct {
	source WorkSource
	crm    CRMSearcher
	opts   Options
	log    *zap.Logger
}

// New returns an Engine with defaults applied to opts.
func New(source WorkSource, crm CRMSearcher, opts Options) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = 40
	}
	if opts.SweetSpotMin <= 0 {
		opts.SweetSpotMin = 2000
	}
	if opts.SweetSpotMax <= 0 {
		opts.SweetSpotMax = 20000
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		source: source,
		crm:    crm,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "discovery")),
	}
}

// PageBudget is the maximum number of pages scanned for maxItems.
func PageBudget(maxItems int) int {
	return min(50, max(10, maxItems*5))
}

// Discover scans the work source and returns ranked work items. A failure
// to list a page aborts the scan and is returned with the partial result;
// per-meeting failures become skips.
func (e *Engine) Discover(ctx context.Context, req Request) (Result, error) {
	var res Result
	if req.MaxItems <= 0 {
		return res, eris.New("discovery: max items must be positive")
	}

	pattern := e.opts.TitlePattern
	if req.TitlePattern != "" {
		pattern = req.TitlePattern
	}
	m, err := matcher.New(pattern)
	if err != nil {
		return res, eris.Wrap(err, "discovery: title pattern")
	}

	log := e.log.With(zap.String("account", req.AccountFilter), zap.Int("max_items", req.MaxItems))
	budget := PageBudget(req.MaxItems)
	target := 3 * req.MaxItems
	now := e.opts.Now()

	var candidates []model.WorkItem
	for page := 1; page <= budget; page++ {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "discovery: cancelled")
		}

		pg, err := e.source.ListMeetings(ctx, model.ListMeetingsQuery{
			Page:             page,
			PageSize:         e.opts.PageSize,
			AccountFilter:    req.AccountFilter,
			UnstructuredOnly: e.opts.UnstructuredOnly,
		})
		if err != nil {
			res.Ranked = rank(candidates, req.MaxItems, &res)
			return res, eris.Wrapf(err, "discovery: list page %d", page)
		}
		res.Pages++

		full := false
		for _, mt := range pg.Items {
			res.Visited++
			r := e.Evaluate(ctx, m, mt, now)
			switch r.Kind {
			case model.KindWorkItem:
				candidates = append(candidates, *r.Item)
			case model.KindSkip:
				res.Skips = append(res.Skips, *r.Skip)
			}
			if len(candidates) >= target {
				full = true
				break
			}
		}

		log.Debug("page scanned",
			zap.Int("page", page),
			zap.Int("items", len(pg.Items)),
			zap.Int("candidates", len(candidates)),
		)
		if full || !pg.HasNext {
			break
		}
	}

	res.Ranked = rank(candidates, req.MaxItems, &res)
	log.Info("discovery complete",
		zap.Int("visited", res.Visited),
		zap.Int("pages", res.Pages),
		zap.Int("ranked", len(res.Ranked)),
		zap.Int("deferred", res.Deferred),
		zap.Int("skipped", len(res.Skips)),
	)
	return res, nil
}

// rank orders candidates by descending score, keeping discovery order for
// ties, and cuts the list to maxItems.
func rank(candidates []model.WorkItem, maxItems int, res *Result) []model.WorkItem {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PriorityScore > candidates[j].PriorityScore
	})
	if len(candidates) > maxItems {
		res.Deferred = len(candidates) - maxItems
		candidates = candidates[:maxItems]
	}
	return candidates
}
