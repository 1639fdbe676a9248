package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/transcript-sync/internal/autoprocess"
	"github.com/sells-group/transcript-sync/internal/cost"
	"github.com/sells-group/transcript-sync/internal/crm"
	"github.com/sells-group/transcript-sync/internal/discovery"
	"github.com/sells-group/transcript-sync/internal/extract"
	"github.com/sells-group/transcript-sync/internal/jobs"
	"github.com/sells-group/transcript-sync/internal/model"
	"github.com/sells-group/transcript-sync/internal/monitoring"
	"github.com/sells-group/transcript-sync/internal/scheduler"
	"github.com/sells-group/transcript-sync/internal/store"
	anthropicpkg "github.com/sells-group/transcript-sync/pkg/anthropic"
	"github.com/sells-group/transcript-sync/pkg/notion"
	sfpkg "github.com/sells-group/transcript-sync/pkg/salesforce"
)

// pipelineEnv holds the store, the runner and the monitoring pieces needed
// by the run/serve/worker commands.
type pipelineEnv struct {
	Store     store.Store
	Runner    *autoprocess.Runner
	Alerter   *monitoring.Alerter
	Metrics   *monitoring.Metrics
	Collector *monitoring.Collector
	Registry  *prometheus.Registry
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens and migrates the store,
// connects Salesforce and builds the auto-process runner. Callers should
// defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	sfClient, err := initSalesforce()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	shards, err := extract.LoadShardSet(cfg.Extraction.ShardsPath)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "load shard set")
	}

	env, err := buildEnv(st, sfClient, anthropicpkg.NewClient(cfg.Anthropic.Key), shards)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return env, nil
}

// buildEnv wires the pipeline around already constructed clients.
func buildEnv(st store.Store, sf sfpkg.Client, llm anthropicpkg.Client, shards *extract.ShardSet) (*pipelineEnv, error) {
	if shards == nil {
		return nil, eris.New("shard set is required")
	}

	crmAdapter := crm.NewSalesforce(sf, crm.ConfigFrom(cfg.Salesforce), crm.NewBreaker(cfg.Batch))

	ex := extract.New(extract.NewAnthropicGenerator(llm, cfg.Anthropic.Model), extract.OptionsFrom(cfg.Extraction))
	schedCfg := scheduler.ConfigFrom(cfg.Batch)
	schedCfg.Extractor = scheduler.ExtractFunc(func(ctx context.Context, text string) model.ExtractionResult {
		return ex.ExtractAll(ctx, text, shards, true)
	})
	schedCfg.Store = st
	schedCfg.CRM = crmAdapter
	schedCfg.Cost = cost.FromConfig(cfg.Pricing)
	schedCfg.Model = cfg.Anthropic.Model

	engine := discovery.New(st, crmAdapter, discovery.OptionsFrom(cfg.Discovery, cfg.Salesforce.SearchLimit))

	sinks := []jobs.ProgressSink{jobs.NewLogSink(), jobs.NewStoreSink(st)}
	if cfg.Notion.Token != "" && cfg.Notion.JobDB != "" {
		sinks = append(sinks, jobs.NewNotionSink(notion.NewClient(cfg.Notion.Token), cfg.Notion.JobDB))
		zap.L().Info("notion job tracking enabled")
	} else {
		zap.L().Debug("TSYNC_NOTION_JOB_DB not set, notion job tracking disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(reg)
	alerter := monitoring.NewAlerter(cfg.Monitoring)

	runner := autoprocess.New(autoprocess.Deps{
		Discovery: engine,
		Scheduler: scheduler.New(schedCfg),
		Runs:      st,
		Sink:      jobs.NewMultiSink(sinks...),
		Alerter:   alerter,
		Metrics:   metrics,
		Defaults:  autoprocess.DefaultsFrom(cfg),
	})

	return &pipelineEnv{
		Store:     st,
		Runner:    runner,
		Alerter:   alerter,
		Metrics:   metrics,
		Collector: monitoring.NewCollector(st),
		Registry:  reg,
	}, nil
}
