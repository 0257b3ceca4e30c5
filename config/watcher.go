// 配置文件变更监听与运行时重载。
//
// 通过轮询文件修改时间检测变更，防抖后用 Loader 重新加载，
// 只把可在运行时安全生效的字段（目前是日志级别）交给回调。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// --- 监听器类型定义 ---

// Watcher 监听单个配置文件并在变更后重新加载
type Watcher struct {
	mu sync.RWMutex

	loader       *Loader
	path         string
	pollInterval time.Duration
	debounce     time.Duration

	running   bool
	stopCh    chan struct{}
	lastMod   time.Time
	callbacks []func(*Config)
	current   *Config

	logger *zap.Logger
}

// WatcherOption 监听器选项
type WatcherOption func(*Watcher)

// WithPollInterval 设置轮询间隔，非正值保留默认
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithDebounceDelay 设置防抖延迟，负值保留默认
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger 设置日志
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// NewWatcher 创建监听器；path 必须与 loader 使用的配置文件一致
func NewWatcher(loader *Loader, initial *Config, opts ...WatcherOption) (*Watcher, error) {
	if loader == nil || loader.configPath == "" {
		return nil, errors.New("watcher requires a loader with a config path")
	}
	w := &Watcher{
		loader:       loader,
		path:         loader.configPath,
		pollInterval: time.Second,
		debounce:     200 * time.Millisecond,
		stopCh:       make(chan struct{}),
		current:      initial,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"))

	if info, err := os.Stat(w.path); err == nil {
		w.lastMod = info.ModTime()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config %s: %w", w.path, err)
	}
	return w, nil
}

// OnReload 注册重载回调，回调在监听 goroutine 中同步执行
func (w *Watcher) OnReload(cb func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Current 返回最近一次成功加载的配置
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start 启动后台轮询
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	go w.loop(ctx)
	w.logger.Info("config watcher started",
		zap.String("path", w.path),
		zap.Duration("poll_interval", w.pollInterval))
	return nil
}

// Stop 停止监听
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopCh)
	w.running = false
}

// IsRunning 是否在运行
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.changed() {
				pending = time.After(w.debounce)
			}
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

// changed 比较修改时间；文件被删除时保留当前配置
func (w *Watcher) changed() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if info.ModTime().After(w.lastMod) {
		w.lastMod = info.ModTime()
		return true
	}
	return false
}

// reload 重新加载；失败时保留旧配置
func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config", zap.Error(err))
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn("reloaded config is invalid, keeping previous config", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()

	w.logger.Info("config reloaded", zap.String("path", w.path))
	for _, cb := range callbacks {
		cb(cfg)
	}
}

// --- 运行时可生效的字段 ---

// LogLevelReloader 返回把 log.level 应用到 AtomicLevel 的回调
func LogLevelReloader(level zap.AtomicLevel, logger *zap.Logger) func(*Config) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(cfg *Config) {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			logger.Warn("ignoring invalid log level", zap.String("level", cfg.Log.Level))
			return
		}
		if level.Level() == lvl {
			return
		}
		logger.Info("log level changed",
			zap.String("from", level.Level().String()),
			zap.String("to", lvl.String()))
		level.SetLevel(lvl)
	}
}
