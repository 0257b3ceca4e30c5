package pipeline

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore 内存实现，用于测试与本地演练
// 记录每次写入次数，便于验证写入抑制。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	writes  int

	// 可选的错误注入
	readErr  error
	writeErr map[string]error
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(records ...Record) *MemoryStore {
	s := &MemoryStore{
		records:  make(map[string]Record, len(records)),
		writeErr: make(map[string]error),
	}
	for _, r := range records {
		s.records[r.ID] = r
	}
	return s
}

// Put 写入或覆盖一条记录（不计入写入次数）
func (s *MemoryStore) Put(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = r
}

// FailReads 让后续读取返回 err，传 nil 恢复
func (s *MemoryStore) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// FailWrites 让指定记录的写入返回 err，传 nil 恢复
func (s *MemoryStore) FailWrites(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.writeErr, id)
		return
	}
	s.writeErr[id] = err
}

// Writes 返回成功写入次数
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// FindRunning 实现 Store
func (s *MemoryStore) FindRunning(ctx context.Context) ([]Record, error) {
	return s.filter(ctx, func(r Record) bool { return r.LoadStatus == LoadRunning })
}

// FindSyncTargets 实现 Store
func (s *MemoryStore) FindSyncTargets(ctx context.Context, env Environment) ([]Record, error) {
	return s.filter(ctx, func(r Record) bool { return r.IsSyncTarget(env) })
}

// UpdateLoad 实现 Store
func (s *MemoryStore) UpdateLoad(ctx context.Context, id string, update LoadUpdate) error {
	return s.mutate(ctx, id, func(r *Record) {
		r.LoadStatus = update.Status
		if update.Progress != nil {
			r.Progress = *update.Progress
		}
		if update.CompletedAt != nil {
			t := *update.CompletedAt
			r.CompletedAt = &t
		}
	})
}

// UpdateSyncStatus 实现 Store
func (s *MemoryStore) UpdateSyncStatus(ctx context.Context, id string, status SyncStatus) error {
	return s.mutate(ctx, id, func(r *Record) {
		r.SyncStatus = status
	})
}

// Get 实现 Store
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) filter(ctx context.Context, keep func(Record) bool) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.readErr != nil {
		return nil, s.readErr
	}

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) mutate(ctx context.Context, id string, fn func(*Record)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr[id]; err != nil {
		return err
	}
	r, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	fn(&r)
	s.records[id] = r
	s.writes++
	return nil
}
