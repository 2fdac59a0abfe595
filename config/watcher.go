// 配置文件变更监听器。
//
// 基于 fsnotify 文件系统事件触发配置重载回调，带防抖合并。
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileOp 文件操作类型
type FileOp int

const (
	// FileOpCreate 文件被创建
	FileOpCreate FileOp = iota
	// FileOpWrite 文件内容被修改
	FileOpWrite
	// FileOpRemove 文件被删除
	FileOpRemove
	// FileOpRename 文件被重命名
	FileOpRename
	// FileOpChmod 文件权限被修改
	FileOpChmod
)

var fileOpNames = [...]string{"CREATE", "WRITE", "REMOVE", "RENAME", "CHMOD"}

func (op FileOp) String() string {
	if op < 0 || int(op) >= len(fileOpNames) {
		return "UNKNOWN"
	}
	return fileOpNames[op]
}

// translateOp 把 fsnotify 位掩码压成单个 FileOp。
// Create 优先于 Write，编辑器原子保存的 rename+create 才能按创建上报。
func translateOp(op fsnotify.Op) FileOp {
	switch {
	case op.Has(fsnotify.Create):
		return FileOpCreate
	case op.Has(fsnotify.Write):
		return FileOpWrite
	case op.Has(fsnotify.Remove):
		return FileOpRemove
	case op.Has(fsnotify.Rename):
		return FileOpRename
	default:
		return FileOpChmod
	}
}

// FileEvent 一次文件变更事件
type FileEvent struct {
	// Path 变更文件的绝对路径
	Path string `json:"path"`

	// Op 操作类型
	Op FileOp `json:"op"`

	// Timestamp 事件时间
	Timestamp time.Time `json:"timestamp"`

	// Error 检测过程中的错误
	Error error `json:"error,omitempty"`
}

// FileWatcher 监听一组配置文件的变更。
// fsnotify 挂载在文件的父目录上，比直接监听文件更可靠，
// 能捕获编辑器原子保存产生的 rename+create 序列。
type FileWatcher struct {
	mu sync.RWMutex

	paths         []string       // 绝对路径
	watchedDirs   map[string]int // 目录 -> 该目录下被监听的文件数
	debounceDelay time.Duration

	fsw       *fsnotify.Watcher
	callbacks []func(event FileEvent)

	running  bool
	stopChan chan struct{}

	logger *zap.Logger
}

// WatcherOption 配置 FileWatcher
type WatcherOption func(*FileWatcher)

// WithDebounceDelay 设置事件防抖间隔
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger 设置记录器
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		w.logger = logger
	}
}

// NewFileWatcher 创建监听器并登记初始路径。
// 路径指向的文件可以尚不存在，父目录必须存在。
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	w := &FileWatcher{
		watchedDirs:   make(map[string]int),
		debounceDelay: 100 * time.Millisecond,
		stopChan:      make(chan struct{}),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	w.fsw = fsw

	for _, path := range paths {
		if err := w.addPathLocked(path); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addPathLocked 归一化路径并确保其父目录被 fsnotify 覆盖。
// 调用方持有写锁，或处于构造期间。
func (w *FileWatcher) addPathLocked(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	if slices.Contains(w.paths, abs) {
		return nil
	}

	if _, err := os.Stat(abs); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat path %s: %w", abs, err)
		}
		w.logger.Warn("config file does not exist, will watch for creation",
			zap.String("path", abs))
	}

	dir := filepath.Dir(abs)
	if w.watchedDirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}
	w.watchedDirs[dir]++
	w.paths = append(w.paths, abs)
	return nil
}

// OnChange 注册变更回调
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 启动监听循环。
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("file watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	go w.run(ctx)

	w.logger.Info("file watcher started",
		zap.Strings("paths", w.Paths()),
		zap.Duration("debounce_delay", w.debounceDelay))
	return nil
}

// Stop 停止监听，重复调用无副作用。
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	close(w.stopChan)
	w.running = false

	if err := w.fsw.Close(); err != nil {
		w.logger.Warn("failed to close fsnotify watcher", zap.Error(err))
	}
	w.logger.Info("file watcher stopped")
	return nil
}

// run 消费 fsnotify 事件并按路径防抖合并后派发。
// 同一路径在防抖窗口内的多次事件只保留最后一次。
func (w *FileWatcher) run(ctx context.Context) {
	pending := make(map[string]FileEvent)
	debounce := time.NewTimer(w.debounceDelay)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !w.isWatched(abs) {
				continue
			}
			pending[abs] = FileEvent{
				Path:      abs,
				Op:        translateOp(event.Op),
				Timestamp: time.Now(),
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(w.debounceDelay)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))

		case <-debounce.C:
			if len(pending) == 0 {
				continue
			}
			batch := pending
			pending = make(map[string]FileEvent)
			w.deliver(batch)
		}
	}
}

// deliver 把一批合并后的事件派发给全部回调。
func (w *FileWatcher) deliver(batch map[string]FileEvent) {
	w.mu.RLock()
	callbacks := append(([]func(FileEvent))(nil), w.callbacks...)
	w.mu.RUnlock()

	for _, event := range batch {
		w.logger.Debug("dispatching file event",
			zap.String("path", event.Path),
			zap.String("op", event.Op.String()))
		for _, cb := range callbacks {
			cb(event)
		}
	}
}

func (w *FileWatcher) isWatched(abs string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Contains(w.paths, abs)
}

// AddPath 追加监听路径，重复路径被忽略。
func (w *FileWatcher) AddPath(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addPathLocked(path)
}

// RemovePath 取消监听路径。
// 目录下最后一个被监听的文件移除后，目录同时从 fsnotify 卸载。
func (w *FileWatcher) RemovePath(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	i := slices.Index(w.paths, abs)
	if i < 0 {
		return fmt.Errorf("path not found: %s", path)
	}

	w.paths = slices.Delete(w.paths, i, i+1)
	dir := filepath.Dir(abs)
	w.watchedDirs[dir]--
	if w.watchedDirs[dir] <= 0 {
		delete(w.watchedDirs, dir)
		if err := w.fsw.Remove(dir); err != nil {
			w.logger.Warn("failed to unwatch directory",
				zap.String("dir", dir), zap.Error(err))
		}
	}
	w.logger.Info("removed path from watcher", zap.String("path", abs))
	return nil
}

// Paths 返回监听中的绝对路径列表。
func (w *FileWatcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.paths)
}

// IsRunning 报告监听循环是否在运行。
func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
