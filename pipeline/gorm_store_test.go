package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/kpreconcile/internal/database"
	"github.com/BaSui01/kpreconcile/types"
)

func setupTestStore(t *testing.T) (*GormStore, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// :memory: 每个连接独立，限制为单连接
	pool, err := database.NewPoolManager(db, database.PoolConfig{
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		MaxTxRetries: 2,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	require.NoError(t, db.AutoMigrate(&Record{}))
	return NewGormStore(pool, zaptest.NewLogger(t)), db
}

func seed(t *testing.T, db *gorm.DB, records ...Record) {
	t.Helper()
	for i := range records {
		require.NoError(t, db.Create(&records[i]).Error)
	}
}

func TestGormStore_FindRunning(t *testing.T) {
	store, db := setupTestStore(t)
	seed(t, db,
		Record{ID: "p2", IndexName: "idx2", LoadStatus: LoadRunning},
		Record{ID: "p1", IndexName: "idx1", LoadStatus: LoadRunning},
		Record{ID: "p3", IndexName: "idx3", LoadStatus: LoadComplete},
		Record{ID: "p4", IndexName: "idx4", LoadStatus: LoadError},
	)

	records, err := store.FindRunning(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "p1", records[0].ID)
	assert.Equal(t, "p2", records[1].ID)
}

func TestGormStore_FindSyncTargets(t *testing.T) {
	store, db := setupTestStore(t)
	seed(t, db,
		Record{ID: "both", LoadStatus: LoadComplete, ProdSyncTarget: true, DevSyncTarget: true},
		Record{ID: "prod", LoadStatus: LoadComplete, ProdSyncTarget: true},
		Record{ID: "dev", LoadStatus: LoadRunning, DevSyncTarget: true},
		Record{ID: "none", LoadStatus: LoadRunning},
	)

	ctx := context.Background()

	prod, err := store.FindSyncTargets(ctx, EnvProduction)
	require.NoError(t, err)
	assert.Equal(t, []string{"both", "prod"}, ids(prod))

	dev, err := store.FindSyncTargets(ctx, EnvDevelopment)
	require.NoError(t, err)
	assert.Equal(t, []string{"both", "dev"}, ids(dev))
}

func TestGormStore_UpdateLoad(t *testing.T) {
	store, db := setupTestStore(t)
	seed(t, db, Record{ID: "p1", IndexName: "idx", LoadStatus: LoadRunning, Progress: 40, SyncStatus: SyncNormal})

	ctx := context.Background()

	// 只更新状态，progress 保持不变
	require.NoError(t, store.UpdateLoad(ctx, "p1", LoadUpdate{Status: LoadError}))
	got, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, LoadError, got.LoadStatus)
	assert.Equal(t, 40.0, got.Progress)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, SyncNormal, got.SyncStatus)

	// complete 时写入 100 与完成时间
	progress := 100.0
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpdateLoad(ctx, "p1", LoadUpdate{
		Status:      LoadComplete,
		Progress:    &progress,
		CompletedAt: &now,
	}))
	got, err = store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, LoadComplete, got.LoadStatus)
	assert.Equal(t, 100.0, got.Progress)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, now.Equal(got.CompletedAt.UTC()))
}

func TestGormStore_UpdateSyncStatus(t *testing.T) {
	store, db := setupTestStore(t)
	seed(t, db, Record{ID: "p1", IndexName: "idx", LoadStatus: LoadComplete, Progress: 100})

	ctx := context.Background()
	require.NoError(t, store.UpdateSyncStatus(ctx, "p1", SyncError))

	got, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, SyncError, got.SyncStatus)
	assert.Equal(t, LoadComplete, got.LoadStatus)
	assert.Equal(t, 100.0, got.Progress)
}

func TestGormStore_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.UpdateSyncStatus(ctx, "missing", SyncNormal)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_WriteFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	pool, err := database.NewPoolManager(db, database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)
	store := NewGormStore(pool, zaptest.NewLogger(t))

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "knowledge_pipelines"`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.UpdateSyncStatus(context.Background(), "p1", SyncNormal)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrStoreWrite))
	assert.False(t, types.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ReadFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	pool, err := database.NewPoolManager(db, database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, zaptest.NewLogger(t))
	require.NoError(t, err)
	store := NewGormStore(pool, zaptest.NewLogger(t))

	mock.ExpectQuery(`SELECT \* FROM "knowledge_pipelines"`).WillReturnError(errors.New("connection refused"))

	_, err = store.FindRunning(context.Background())
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrStoreRead))
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
