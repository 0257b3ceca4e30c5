package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/BaSui01/kpreconcile/pipeline"
	"github.com/BaSui01/kpreconcile/sources"
	"github.com/BaSui01/kpreconcile/testutil"
	"github.com/BaSui01/kpreconcile/testutil/fixtures"
	"github.com/BaSui01/kpreconcile/testutil/mocks"
)

func TestDetermineSyncStatus(t *testing.T) {
	index := IndexActivities([]sources.Activity{
		fixtures.Started("sync_recipe_abc"),
		fixtures.Activity("sync_recipe_paused", fixtures.StringPtr("STOPPED")),
		fixtures.Activity("sync_recipe_null", nil),
		fixtures.Activity("sync_recipe_lower", fixtures.StringPtr("started")),
	})

	tests := []struct {
		key        string
		want       pipeline.SyncStatus
		wantReason string
	}{
		{key: "sync_recipe_abc", want: pipeline.SyncNormal, wantReason: ""},
		{key: "sync_recipe_missing", want: pipeline.SyncError, wantReason: ReasonRecipeNotFound},
		{key: "sync_recipe_null", want: pipeline.SyncError, wantReason: ReasonDesiredStateNull},
		{key: "sync_recipe_paused", want: pipeline.SyncError, wantReason: "unexpected_desired_state:STOPPED"},
		{key: "sync_recipe_lower", want: pipeline.SyncError, wantReason: "unexpected_desired_state:started"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, reason := DetermineSyncStatus(tt.key, index)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestIndexActivities_LastWins(t *testing.T) {
	index := IndexActivities([]sources.Activity{
		fixtures.Activity("r1", fixtures.StringPtr("STOPPED")),
		fixtures.Started("r2"),
		fixtures.Started("r1"),
	})
	require.Len(t, index, 2)
	assert.Equal(t, "STARTED", *index["r1"].DesiredState)
}

func TestSyncReconciler_MatchingRecipeIsNormal(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := pipeline.NewMemoryStore(fixtures.SyncTarget("p1", "abc", pipeline.EnvProduction, pipeline.SyncUnset))
	src := mocks.NewMockActivitySource(fixtures.Started("sync_recipe_abc"))

	r := NewSyncReconciler(store, src, pipeline.EnvProduction, WithLogger(zaptest.NewLogger(t)))
	summary, err := r.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Updated)
	testutil.AssertSyncState(t, testutil.MustGet(t, store, "p1"), pipeline.SyncNormal)
	assert.Equal(t, []pipeline.Environment{pipeline.EnvProduction}, src.Calls())
}

func TestSyncReconciler_MissingRecipeIsError(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := pipeline.NewMemoryStore(fixtures.SyncTarget("p1", "abc", pipeline.EnvProduction, pipeline.SyncNormal))
	src := mocks.NewMockActivitySource(fixtures.Started("sync_recipe_other"))
	metrics := newRecordingMetrics()

	summary, err := NewSyncReconciler(store, src, pipeline.EnvProduction, WithMetrics(metrics)).RunCycle(ctx)
	require.NoError(t, err)

	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, ReasonRecipeNotFound, summary.Outcomes[0].Reason)
	testutil.AssertSyncState(t, testutil.MustGet(t, store, "p1"), pipeline.SyncError)
	assert.Equal(t, []string{"sync_status:normal->error"}, metrics.transitions)
}

func TestSyncReconciler_WriteSuppression(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := pipeline.NewMemoryStore(fixtures.SyncTarget("p1", "abc", pipeline.EnvProduction, pipeline.SyncUnset))
	src := mocks.NewMockActivitySource(fixtures.Started("sync_recipe_abc"))
	r := NewSyncReconciler(store, src, pipeline.EnvProduction)

	first, err := r.RunCycle(ctx)
	require.NoError(t, err)
	second, err := r.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Writes())
	assert.Equal(t, 1, first.Updated)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 1, second.Unchanged)
}

func TestSyncReconciler_EnvironmentSelectsTargets(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := pipeline.NewMemoryStore(
		fixtures.SyncTarget("prod", "a", pipeline.EnvProduction, pipeline.SyncUnset),
		fixtures.SyncTarget("dev", "b", pipeline.EnvDevelopment, pipeline.SyncUnset),
	)
	src := mocks.NewMockActivitySource(fixtures.Started("sync_recipe_a"), fixtures.Started("sync_recipe_b"))

	r := NewSyncReconciler(store, src, pipeline.EnvDevelopment)
	assert.Equal(t, pipeline.EnvDevelopment, r.Environment())

	summary, err := r.RunCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Total)
	assert.Equal(t, "dev", summary.Outcomes[0].PipelineID)

	testutil.AssertSyncState(t, testutil.MustGet(t, store, "prod"), pipeline.SyncUnset)
	testutil.AssertSyncState(t, testutil.MustGet(t, store, "dev"), pipeline.SyncNormal)
}

func TestSyncReconciler_CustomRecipePrefix(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := pipeline.NewMemoryStore(fixtures.SyncTarget("p1", "abc", pipeline.EnvProduction, pipeline.SyncUnset))
	src := mocks.NewMockActivitySource(fixtures.Started("cdc_abc"))

	_, err := NewSyncReconciler(store, src, pipeline.EnvProduction, WithRecipePrefix("cdc_")).RunCycle(ctx)
	require.NoError(t, err)
	testutil.AssertSyncState(t, testutil.MustGet(t, store, "p1"), pipeline.SyncNormal)
}

func TestSyncReconciler_FetchFailureAbortsCycle(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := pipeline.NewMemoryStore(fixtures.SyncTarget("p1", "abc", pipeline.EnvProduction, pipeline.SyncNormal))
	src := mocks.NewMockActivitySource().WithError(errors.New("orchestrator unavailable"))

	summary, err := NewSyncReconciler(store, src, pipeline.EnvProduction).RunCycle(ctx)
	require.Error(t, err)
	testutil.AssertContains(t, err.Error(), "fetch continuous activities")
	require.NotNil(t, summary)
	assert.Equal(t, "failed", summary.CycleOutcome())
	assert.Equal(t, 0, store.Writes())
	testutil.AssertSyncState(t, testutil.MustGet(t, store, "p1"), pipeline.SyncNormal)
}

func TestSyncReconciler_WriteFailureIsPerItem(t *testing.T) {
	ctx := testutil.TestContext(t)
	store := pipeline.NewMemoryStore(
		fixtures.SyncTarget("p1", "a", pipeline.EnvProduction, pipeline.SyncUnset),
		fixtures.SyncTarget("p2", "b", pipeline.EnvProduction, pipeline.SyncUnset),
	)
	store.FailWrites("p1", errors.New("lock timeout"))
	src := mocks.NewMockActivitySource(fixtures.Started("sync_recipe_a"), fixtures.Started("sync_recipe_b"))

	summary, err := NewSyncReconciler(store, src, pipeline.EnvProduction).RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, ReasonWriteFailed, summary.Outcomes[0].Reason)
	testutil.AssertSyncState(t, testutil.MustGet(t, store, "p2"), pipeline.SyncNormal)
}

// 第二个周期在外部状态不变时不产生任何写入
func TestSyncReconciler_SecondCycleIsIdempotent(t *testing.T) {
	statuses := []pipeline.SyncStatus{pipeline.SyncUnset, pipeline.SyncNormal, pipeline.SyncError}
	desired := []string{"", "STARTED", "STOPPED", "missing"}

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(rt, "targets")
		var (
			records    []pipeline.Record
			activities []sources.Activity
		)
		for i := 0; i < n; i++ {
			index := fmt.Sprintf("idx%d", i)
			current := rapid.SampledFrom(statuses).Draw(rt, "current")
			records = append(records, fixtures.SyncTarget(fmt.Sprintf("p%d", i), index, pipeline.EnvProduction, current))

			switch state := rapid.SampledFrom(desired).Draw(rt, "desired"); state {
			case "missing":
			case "":
				activities = append(activities, fixtures.Activity("sync_recipe_"+index, nil))
			default:
				activities = append(activities, fixtures.Activity("sync_recipe_"+index, fixtures.StringPtr(state)))
			}
		}

		store := pipeline.NewMemoryStore(records...)
		r := NewSyncReconciler(store, mocks.NewMockActivitySource(activities...), pipeline.EnvProduction)

		first, err := r.RunCycle(context.Background())
		if err != nil {
			rt.Fatalf("first cycle: %v", err)
		}
		writes := store.Writes()
		if writes != first.Updated {
			rt.Fatalf("writes %d != updated %d", writes, first.Updated)
		}

		second, err := r.RunCycle(context.Background())
		if err != nil {
			rt.Fatalf("second cycle: %v", err)
		}
		if second.Updated != 0 || store.Writes() != writes {
			rt.Fatalf("second cycle wrote %d records", store.Writes()-writes)
		}
		if second.Unchanged != n {
			rt.Fatalf("unchanged %d, want %d", second.Unchanged, n)
		}
	})
}
