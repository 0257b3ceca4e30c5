package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/kpreconcile/testutil/fixtures"
)

func sampleSummary(name string, failures int) *Summary {
	s := &Summary{
		Reconciler: name,
		CycleID:    "cycle-1",
		StartedAt:  fixtures.BaseTime,
		FinishedAt: fixtures.BaseTime.Add(3 * time.Second),
	}
	s.Add(Outcome{PipelineID: "ok", Result: ResultUpdated})
	for i := 0; i < failures; i++ {
		s.Add(Outcome{PipelineID: fmt.Sprintf("f%d", i), Result: ResultFailed, Reason: ReasonQueryFailed, Err: fmt.Errorf("boom %d", i)})
	}
	return s
}

func TestSummary_Counts(t *testing.T) {
	s := sampleSummary("status", 2)
	s.Add(Outcome{PipelineID: "u", Result: ResultUnchanged})
	s.Add(Outcome{PipelineID: "s", Result: ResultSkipped})

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 1, s.Updated)
	assert.Equal(t, 1, s.Unchanged)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 3*time.Second, s.Duration())
	assert.Equal(t, "partial", s.CycleOutcome())
	assert.Equal(t, "boom 0", s.Outcomes[1].Error)
}

func TestSummary_Compact(t *testing.T) {
	s := sampleSummary("status", 5)
	c := s.Compact(3)

	assert.Len(t, c.Outcomes, 3)
	for _, o := range c.Outcomes {
		assert.Equal(t, ResultFailed, o.Result)
	}
	assert.Equal(t, 5, c.Failed)
	assert.Len(t, s.Outcomes, 6)
}

func TestMemorySummaryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySummaryStore()

	_, err := store.Latest(ctx, "status")
	assert.ErrorIs(t, err, ErrNoSummary)

	require.NoError(t, store.Save(ctx, sampleSummary("status", 1)))
	got, err := store.Latest(ctx, "status")
	require.NoError(t, err)
	assert.Equal(t, "cycle-1", got.CycleID)
	assert.Len(t, got.Outcomes, 1)
}

func TestRedisSummaryStore(t *testing.T) {
	mr, m := newTestCache(t)
	ctx := context.Background()
	store := NewRedisSummaryStore(m, time.Hour)

	_, err := store.Latest(ctx, "sync")
	assert.ErrorIs(t, err, ErrNoSummary)

	require.NoError(t, store.Save(ctx, sampleSummary("sync", 150)))
	assert.True(t, mr.Exists("test:summary:sync"))
	assert.Equal(t, time.Hour, mr.TTL("test:summary:sync"))

	got, err := store.Latest(ctx, "sync")
	require.NoError(t, err)
	assert.Equal(t, 150, got.Failed)
	assert.Len(t, got.Outcomes, summaryOutcomeLimit)
	assert.True(t, got.StartedAt.Equal(fixtures.BaseTime))
	assert.Equal(t, "boom 0", got.Outcomes[0].Error)
}
