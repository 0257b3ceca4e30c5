package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/kpreconcile/internal/cache"
	"github.com/BaSui01/kpreconcile/types"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, *cache.Manager) {
	mr := miniredis.RunT(t)
	m, err := cache.NewManager(cache.Config{Addr: mr.Addr(), KeyPrefix: "test:", DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return mr, m
}

func TestGuard_InProcessOverlap(t *testing.T) {
	g := NewGuard("status", nil, 0, nil, nil)

	release, err := g.TryEnter(context.Background())
	require.NoError(t, err)

	_, err = g.TryEnter(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)
	assert.Equal(t, types.ErrCycleInProgress, types.GetErrorCode(err))

	release()
	release2, err := g.TryEnter(context.Background())
	require.NoError(t, err)
	release2()
}

func TestGuard_RedisLeaseAcrossReplicas(t *testing.T) {
	mr, m := newTestCache(t)
	metrics := newRecordingMetrics()

	replicaA := NewGuard("sync", m, time.Minute, metrics, zap.NewNop())
	replicaB := NewGuard("sync", m, time.Minute, metrics, zap.NewNop())

	release, err := replicaA.TryEnter(context.Background())
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lease:sync"))

	_, err = replicaB.TryEnter(context.Background())
	assert.ErrorIs(t, err, ErrCycleInProgress)

	release()
	assert.False(t, mr.Exists("test:lease:sync"))

	releaseB, err := replicaB.TryEnter(context.Background())
	require.NoError(t, err)
	releaseB()

	assert.Equal(t, 2, metrics.leases["acquired"])
	assert.Equal(t, 1, metrics.leases["held"])
}

func TestGuard_ReleaseDoesNotStealForeignLease(t *testing.T) {
	mr, m := newTestCache(t)
	g := NewGuard("status", m, time.Minute, nil, nil)

	release, err := g.TryEnter(context.Background())
	require.NoError(t, err)

	// 租约过期后被其他副本抢占
	mr.FastForward(2 * time.Minute)
	require.NoError(t, mr.Set("test:lease:status", "other-replica"))

	release()
	v, err := mr.Get("test:lease:status")
	require.NoError(t, err)
	assert.Equal(t, "other-replica", v)
}

type failingLease struct{}

func (failingLease) AcquireLease(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func (failingLease) ReleaseLease(context.Context, string, string) (bool, error) {
	return false, nil
}

func TestGuard_LeaseErrorFailsClosed(t *testing.T) {
	metrics := newRecordingMetrics()
	g := NewGuard("status", failingLease{}, time.Minute, metrics, nil)

	_, err := g.TryEnter(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCycleInProgress)
	assert.Equal(t, 1, metrics.leases["error"])

	// 信号量已释放，下一次仍会尝试租约
	_, err = g.TryEnter(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, metrics.leases["error"])
}
