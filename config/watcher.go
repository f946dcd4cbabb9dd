// 配置文件变更监听。
//
// 纯轮询实现: 引擎只有一份几 KB 的 yaml, 一秒 stat 一次足够了,
// 也绕开了编辑器原子保存 (写临时文件再 rename) 在各平台上
// 文件系统事件不一致的问题。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileOp 是检测到的文件操作类型.
type FileOp int

const (
	// FileOpCreate 文件出现 (含 rename 落盘)
	FileOpCreate FileOp = iota
	// FileOpWrite 文件内容更新
	FileOpWrite
	// FileOpRemove 文件被删除
	FileOpRemove
)

func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent 是一次配置文件变更.
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileWatcher 轮询单个配置文件并在变更后回调.
type FileWatcher struct {
	mu        sync.Mutex
	path      string
	interval  time.Duration
	debounce  time.Duration
	callbacks []func(FileEvent)
	logger    *zap.Logger

	running bool
	stop    chan struct{}

	// 轮询基线
	lastMod time.Time
	exists  bool
}

// WatcherOption 配置 FileWatcher.
type WatcherOption func(*FileWatcher)

// WithPollInterval 设置轮询间隔, 默认 1s.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithDebounceDelay 设置消抖窗口, 默认 100ms.
// 保存动作常是 truncate+write 两笔, 等一拍再通知避免读到半个文件.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithWatcherLogger 设置日志器.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewFileWatcher 创建监听器. 文件暂不存在不算错误, 等它出现.
func NewFileWatcher(path string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		path:     path,
		interval: time.Second,
		debounce: 100 * time.Millisecond,
		stop:     make(chan struct{}),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		w.logger.Warn("配置文件暂不存在, 等待创建", zap.String("path", path))
	}
	return w, nil
}

// OnChange 注册变更回调. 回调在监听 goroutine 里执行, 不要阻塞太久.
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 启动轮询. ctx 取消或 Stop 均可结束.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true

	// 基线: 启动时的文件状态
	if info, err := os.Stat(w.path); err == nil {
		w.lastMod = info.ModTime()
		w.exists = true
	}
	w.mu.Unlock()

	go w.loop(ctx)

	w.logger.Info("配置文件监听已启动",
		zap.String("path", w.path),
		zap.Duration("interval", w.interval))
	return nil
}

// Stop 结束轮询. 未启动时为空操作.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	close(w.stop)
	w.running = false
	w.logger.Info("配置文件监听已停止")
	return nil
}

// IsRunning 报告监听是否在运行.
func (w *FileWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Path 返回被监听的文件路径.
func (w *FileWatcher) Path() string { return w.path }

func (w *FileWatcher) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			event, ok := w.check()
			if !ok {
				continue
			}
			// 消抖: 等后续写入落定, 把窗口内的变更并成一次通知
			if w.debounce > 0 {
				time.Sleep(w.debounce)
				w.check()
			}
			w.dispatch(event)
		}
	}
}

// check 对比当前 stat 与基线, 返回检测到的变更并推进基线.
func (w *FileWatcher) check() (FileEvent, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) && w.exists {
			w.exists = false
			return FileEvent{Path: w.path, Op: FileOpRemove, Timestamp: time.Now()}, true
		}
		return FileEvent{}, false
	}

	switch {
	case !w.exists:
		w.exists = true
		w.lastMod = info.ModTime()
		return FileEvent{Path: w.path, Op: FileOpCreate, Timestamp: time.Now()}, true
	case info.ModTime().After(w.lastMod):
		w.lastMod = info.ModTime()
		return FileEvent{Path: w.path, Op: FileOpWrite, Timestamp: time.Now()}, true
	}
	return FileEvent{}, false
}

func (w *FileWatcher) dispatch(event FileEvent) {
	w.mu.Lock()
	callbacks := make([]func(FileEvent), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Debug("配置文件变更",
		zap.String("path", event.Path),
		zap.String("op", event.Op.String()))
	for _, cb := range callbacks {
		cb(event)
	}
}
