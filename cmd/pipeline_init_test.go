//go:build !integration

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/transcript-sync/internal/autoprocess"
	"github.com/sells-group/transcript-sync/internal/extract"
	"github.com/sells-group/transcript-sync/internal/model"
	sfmocks "github.com/sells-group/transcript-sync/pkg/salesforce/mocks"
)

func TestPipelineEnv_Close_Nil(t *testing.T) {
	pe := &pipelineEnv{}
	assert.NotPanics(t, func() {
		pe.Close()
	})
}

func TestPipelineEnv_Close_WithStore(t *testing.T) {
	cfg = testConfig(t)

	st, err := initStore(context.Background())
	require.NoError(t, err)

	pe := &pipelineEnv{Store: st}
	assert.NotPanics(t, func() {
		pe.Close()
	})
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = testConfig(t)
	cfg.Store.Driver = "mysql"

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitSalesforce_MissingClientID(t *testing.T) {
	cfg = testConfig(t)

	_, err := initSalesforce()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client ID is required")
}

func TestInitPipeline_FailsOnValidation(t *testing.T) {
	cfg = testConfig(t)

	_, err := initPipeline(context.Background(), "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestBuildEnv_RequiresShards(t *testing.T) {
	cfg = testConfig(t)

	_, err := buildEnv(nil, sfmocks.NewMockClient(t), nil, nil)
	assert.Error(t, err)
}

func TestBuildEnv_DryRun(t *testing.T) {
	cfg = testConfig(t)
	ctx := context.Background()

	st, err := initStore(ctx)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	_, err = st.UpsertMeetings(ctx, []model.Meeting{
		{ID: "m1", Title: "定例会議", TextContent: "weekly sync"},
	})
	require.NoError(t, err)

	shards, err := extract.DefaultShardSet()
	require.NoError(t, err)

	env, err := buildEnv(st, sfmocks.NewMockClient(t), nil, shards)
	require.NoError(t, err)
	defer env.Close()

	summary, err := env.Runner.RunAutoProcess(ctx, autoprocess.Params{DryRun: true, MaxItems: 5})
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 1, summary.Skipped[model.SkipNotFirst])
	assert.Zero(t, summary.Ranked)

	spent, err := env.Store.SumCostSince(ctx, summary.StartedAt.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, spent)

	families, err := env.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
