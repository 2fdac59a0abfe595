// 配置热重载管理器。
//
// 字段级更新、文件触发重载、应用前校验、历史快照与回滚。
package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// defaultHistorySize 默认保留的配置快照数
	defaultHistorySize = 10

	// changeJournalCap 变更日志的最大条数
	changeJournalCap = 1000

	// reloadDebounce 文件变更到触发重载的去抖间隔
	reloadDebounce = 500 * time.Millisecond
)

// ChangeCallback 在单个字段变更后调用
type ChangeCallback func(change ConfigChange)

// ReloadCallback 在整份配置替换后调用
type ReloadCallback func(oldConfig, newConfig *Config)

// RollbackCallback 在配置回滚后调用
type RollbackCallback func(event RollbackEvent)

// ValidateFunc 在新配置落地前执行，返回 error 拒绝本次应用
type ValidateFunc func(newConfig *Config) error

// ConfigChange 一条字段变更记录
type ConfigChange struct {
	// 变更发生时间
	Timestamp time.Time `json:"timestamp"`

	// 变更来源：file、api、env、rollback
	Source string `json:"source"`

	// 字段路径，如 "Server.HTTPPort"
	Path string `json:"path"`

	// 变更前的值，敏感字段已脱敏
	OldValue any `json:"old_value,omitempty"`

	// 变更后的值，敏感字段已脱敏
	NewValue any `json:"new_value,omitempty"`

	// 是否需要重启才能生效
	RequiresRestart bool `json:"requires_restart"`

	// 是否已实际应用
	Applied bool `json:"applied"`

	// 失败原因，成功时为空
	Error string `json:"error,omitempty"`
}

// ConfigSnapshot 一份带版本号的配置快照
type ConfigSnapshot struct {
	Config    *Config   `json:"config"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   int       `json:"version"`
	Checksum  string    `json:"checksum"`
}

// RollbackEvent 记录一次自动回滚。
type RollbackEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	Reason         string    `json:"reason"`
	FailedConfig   *Config   `json:"failed_config"`   // 被退回的配置
	RestoredConfig *Config   `json:"restored_config"` // 回滚后重新生效的配置
	Version        int       `json:"version"`
	Error          error     `json:"error,omitempty"`
}

// --- 内部容器 ---

// changeJournal 保留最近 cap 条变更记录，超出后淘汰最旧条目。
type changeJournal struct {
	entries []ConfigChange
	cap     int
}

func newChangeJournal(capacity int) *changeJournal {
	return &changeJournal{cap: capacity}
}

func (j *changeJournal) record(changes ...ConfigChange) {
	j.entries = append(j.entries, changes...)
	if overflow := len(j.entries) - j.cap; overflow > 0 {
		j.entries = j.entries[overflow:]
	}
}

// recent 返回最近 limit 条记录的副本，按时间先后排列。
// limit 不在 (0, len] 范围内时返回全部。
func (j *changeJournal) recent(limit int) []ConfigChange {
	if limit <= 0 || limit > len(j.entries) {
		limit = len(j.entries)
	}
	out := make([]ConfigChange, limit)
	copy(out, j.entries[len(j.entries)-limit:])
	return out
}

// snapshotRing 固定容量的快照历史。
// 版本号由独立计数器分配，快照被淘汰后仍单调递增。
type snapshotRing struct {
	snaps   []ConfigSnapshot
	cap     int
	nextVer int
}

func newSnapshotRing(capacity int) *snapshotRing {
	return &snapshotRing{snaps: make([]ConfigSnapshot, 0, capacity), cap: capacity, nextVer: 1}
}

func (r *snapshotRing) push(cfg *Config, source string) {
	r.snaps = append(r.snaps, ConfigSnapshot{
		Config:    deepCopyConfig(cfg),
		Timestamp: time.Now(),
		Source:    source,
		Version:   r.nextVer,
		Checksum:  computeConfigChecksum(cfg),
	})
	r.nextVer++
	if len(r.snaps) > r.cap {
		r.snaps = r.snaps[len(r.snaps)-r.cap:]
	}
}

func (r *snapshotRing) byVersion(version int) (ConfigSnapshot, bool) {
	for _, snap := range r.snaps {
		if snap.Version == version {
			return snap, true
		}
	}
	return ConfigSnapshot{}, false
}

// versionByChecksum 找回校验和对应的版本号，未命中返回 0。
func (r *snapshotRing) versionByChecksum(sum string) int {
	for _, snap := range r.snaps {
		if snap.Checksum == sum {
			return snap.Version
		}
	}
	return 0
}

func (r *snapshotRing) currentVersion() int {
	if len(r.snaps) == 0 {
		return 0
	}
	return r.snaps[len(r.snaps)-1].Version
}

func (r *snapshotRing) list() []ConfigSnapshot {
	out := make([]ConfigSnapshot, len(r.snaps))
	copy(out, r.snaps)
	return out
}

// --- 管理器 ---

// HotReloadManager 持有当前配置并串行化所有变更入口。
type HotReloadManager struct {
	mu sync.RWMutex

	config     *Config
	configPath string

	previous       *Config // 上一次成功应用的配置，Rollback 的目标
	history        *snapshotRing
	journal        *changeJournal
	maxHistorySize int
	validateFunc   ValidateFunc

	watcher *FileWatcher

	onChange   []ChangeCallback
	onReload   []ReloadCallback
	onRollback []RollbackCallback

	logger *zap.Logger

	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// HotReloadOption 调整 HotReloadManager 的构造参数
type HotReloadOption func(*HotReloadManager)

// WithHotReloadLogger 注入日志记录器，默认丢弃日志
func WithHotReloadLogger(logger *zap.Logger) HotReloadOption {
	return func(m *HotReloadManager) {
		m.logger = logger
	}
}

// WithConfigPath 设置配置文件路径，设置后 Start 会挂载文件观察
func WithConfigPath(path string) HotReloadOption {
	return func(m *HotReloadManager) {
		m.configPath = path
	}
}

// WithMaxHistorySize 调整快照历史容量，非正值被忽略
func WithMaxHistorySize(size int) HotReloadOption {
	return func(m *HotReloadManager) {
		if size <= 0 {
			return
		}
		m.maxHistorySize = size
	}
}

// WithValidateFunc 设置应用前校验钩子
func WithValidateFunc(fn ValidateFunc) HotReloadOption {
	return func(m *HotReloadManager) {
		m.validateFunc = fn
	}
}

// NewHotReloadManager 创建管理器，初始配置入库为版本 1。
func NewHotReloadManager(config *Config, opts ...HotReloadOption) *HotReloadManager {
	m := &HotReloadManager{
		config:         config,
		maxHistorySize: defaultHistorySize,
		journal:        newChangeJournal(changeJournalCap),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.history = newSnapshotRing(m.maxHistorySize)
	m.history.push(config, "init")
	return m
}

// Start 启动管理器，有配置路径时同时启动文件观察。
func (m *HotReloadManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("hot reload manager already running")
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	if m.configPath != "" {
		watcher, err := NewFileWatcher(
			[]string{m.configPath},
			WithWatcherLogger(m.logger),
			WithDebounceDelay(reloadDebounce),
		)
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		watcher.OnChange(m.handleFileChange)
		if err := watcher.Start(m.ctx); err != nil {
			return fmt.Errorf("failed to start file watcher: %w", err)
		}
		m.watcher = watcher
	}

	m.running = true
	m.logger.Info("hot reload manager started", zap.String("config_path", m.configPath))
	return nil
}

// Stop 停止管理器，重复调用无副作用。
func (m *HotReloadManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	if m.watcher != nil {
		if err := m.watcher.Stop(); err != nil {
			m.logger.Error("failed to stop file watcher", zap.Error(err))
		}
	}
	m.running = false
	m.logger.Info("hot reload manager stopped")
	return nil
}

func (m *HotReloadManager) handleFileChange(event FileEvent) {
	if event.Op != FileOpWrite && event.Op != FileOpCreate {
		return
	}
	m.logger.Info("configuration file changed",
		zap.String("path", event.Path),
		zap.String("op", event.Op.String()))
	if err := m.ReloadFromFile(); err != nil {
		m.logger.Error("failed to reload configuration", zap.Error(err))
	}
}

// ReloadFromFile 重新读取配置文件并整份应用。
// 文件不可解析或校验失败时保留当前配置。
func (m *HotReloadManager) ReloadFromFile() error {
	if m.configPath == "" {
		return fmt.Errorf("no config path set")
	}

	newConfig, err := NewLoader().WithConfigPath(m.configPath).Load()
	if err != nil {
		m.logger.Error("failed to load config from file, keeping current config",
			zap.Error(err), zap.String("path", m.configPath))
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := newConfig.Validate(); err != nil {
		m.logger.Error("invalid config from file, keeping current config",
			zap.Error(err), zap.String("path", m.configPath))
		return fmt.Errorf("invalid config: %w", err)
	}

	// ApplyConfig 自带校验钩子与失败回滚
	return m.ApplyConfig(newConfig, "file")
}

// ApplyConfig 整份替换配置。
// 校验、落地、快照与日志在同一把锁内完成；回调在锁外触发，
// 回调失败且期间无并发变更时自动回滚。
func (m *HotReloadManager) ApplyConfig(newConfig *Config, source string) error {
	m.mu.Lock()

	oldConfig := m.config

	if m.validateFunc != nil {
		if err := m.validateFunc(newConfig); err != nil {
			m.journal.record(ConfigChange{
				Timestamp: time.Now(),
				Source:    source,
				Path:      "(validation_hook)",
				Applied:   false,
				Error:     fmt.Sprintf("validation hook failed: %v", err),
			})
			m.mu.Unlock()
			m.logger.Warn("config validation hook rejected new config",
				zap.Error(err), zap.String("source", source))
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	changes := diffConfigs(oldConfig, newConfig)
	requiresRestart := false
	for i := range changes {
		annotateChange(&changes[i], source)
		if changes[i].RequiresRestart {
			requiresRestart = true
		}
		m.logChange(changes[i])
	}

	m.previous = deepCopyConfig(oldConfig)
	m.config = newConfig
	m.history.push(newConfig, source)
	m.journal.record(changes...)

	onChange := append([]ChangeCallback(nil), m.onChange...)
	onReload := append([]ReloadCallback(nil), m.onReload...)
	m.mu.Unlock()

	if err := fireCallbacks(onChange, onReload, oldConfig, newConfig, changes); err != nil {
		m.mu.Lock()
		if m.config == newConfig {
			m.logger.Error("reload callback failed, rolling back", zap.Error(err))
			m.rollbackLocked(oldConfig, fmt.Sprintf("callback error: %v", err), err)
		} else {
			m.logger.Warn("reload callback failed but config changed concurrently, skip rollback",
				zap.Error(err))
		}
		m.mu.Unlock()
		return fmt.Errorf("config applied but callback failed: %w", err)
	}

	if requiresRestart {
		m.logger.Warn("some configuration changes require restart to take effect")
	}
	m.logger.Info("configuration reloaded",
		zap.String("source", source),
		zap.Int("changes", len(changes)),
		zap.Bool("requires_restart", requiresRestart))
	return nil
}

// UpdateField 更新注册表内的单个字段，来源记为 api。
func (m *HotReloadManager) UpdateField(path string, value any) error {
	m.mu.Lock()

	spec, known := hotReloadableFields[path]
	if !known {
		m.mu.Unlock()
		return fmt.Errorf("unknown configuration field: %s", path)
	}
	if spec.Validator != nil {
		if err := spec.Validator(value); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("validation failed for %s: %w", path, err)
		}
	}

	before := deepCopyConfig(m.config)

	oldValue, err := fieldValueAt(m.config, path)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to get old value: %w", err)
	}
	if err := setFieldAt(m.config, path, value); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to set value: %w", err)
	}

	change := ConfigChange{
		Timestamp:       time.Now(),
		Source:          "api",
		Path:            path,
		OldValue:        oldValue,
		NewValue:        value,
		RequiresRestart: spec.RequiresRestart,
		Applied:         true,
	}
	if spec.Sensitive {
		change.OldValue = "[REDACTED]"
		change.NewValue = "[REDACTED]"
	}

	m.logChange(change)
	m.journal.record(change)
	onChange := append([]ChangeCallback(nil), m.onChange...)
	// 锁内取快照，锁外回调读不到中间状态
	after := deepCopyConfig(m.config)
	m.mu.Unlock()

	if err := fireCallbacks(onChange, nil, before, after, []ConfigChange{change}); err != nil {
		m.mu.Lock()
		m.rollbackLocked(before, fmt.Sprintf("callback error: %v", err), err)
		m.mu.Unlock()
		return fmt.Errorf("field updated but callback failed, rolled back: %w", err)
	}
	return nil
}

// Rollback 恢复到上一次成功应用的配置。
func (m *HotReloadManager) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.previous == nil {
		return fmt.Errorf("no previous config available for rollback")
	}
	m.rollbackLocked(m.previous, "manual rollback", nil)
	return nil
}

// RollbackToVersion 恢复到历史中的指定版本。
func (m *HotReloadManager) RollbackToVersion(version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.history.byVersion(version)
	if !ok {
		return fmt.Errorf("config version %d not found in history", version)
	}
	m.rollbackLocked(snap.Config, fmt.Sprintf("rollback to version %d", version), nil)
	return nil
}

// rollbackLocked 恢复 target 配置，调用方必须持有写锁。
func (m *HotReloadManager) rollbackLocked(target *Config, reason string, cause error) {
	failed := m.config
	restored := deepCopyConfig(target)
	m.config = restored

	event := RollbackEvent{
		Timestamp:      time.Now(),
		Reason:         reason,
		FailedConfig:   failed,
		RestoredConfig: restored,
		Version:        m.history.versionByChecksum(computeConfigChecksum(target)),
		Error:          cause,
	}

	m.journal.record(ConfigChange{
		Timestamp: time.Now(),
		Source:    "rollback",
		Path:      "(rollback)",
		Applied:   true,
		Error:     reason,
	})

	for _, cb := range m.onRollback {
		notifyRollback(cb, event, m.logger)
	}

	m.logger.Warn("configuration rolled back",
		zap.String("reason", reason),
		zap.Int("restored_version", event.Version))
}

// OnChange 注册字段变更回调
func (m *HotReloadManager) OnChange(cb ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, cb)
}

// OnReload 注册整份替换回调
func (m *HotReloadManager) OnReload(cb ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReload = append(m.onReload, cb)
}

// OnRollback 注册回滚事件回调
func (m *HotReloadManager) OnRollback(cb RollbackCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRollback = append(m.onRollback, cb)
}

// GetConfig 返回当前配置的独立副本。
func (m *HotReloadManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return deepCopyConfig(m.config)
}

// GetConfigHistory 返回快照历史副本。
func (m *HotReloadManager) GetConfigHistory() []ConfigSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.list()
}

// GetCurrentVersion 返回最新快照的版本号。
func (m *HotReloadManager) GetCurrentVersion() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.currentVersion()
}

// GetChangeLog 返回最近 limit 条变更记录。
func (m *HotReloadManager) GetChangeLog(limit int) []ConfigChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.journal.recent(limit)
}

// SanitizedConfig 返回按 Go 字段名组织的配置树，敏感值已脱敏。
func (m *HotReloadManager) SanitizedConfig() map[string]any {
	m.mu.RLock()
	raw, err := json.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return nil
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil
	}
	redactTree(tree)
	return tree
}

// logChange 输出变更审计日志。敏感值在记录构造阶段已脱敏。
func (m *HotReloadManager) logChange(change ConfigChange) {
	m.logger.Info("configuration changed",
		zap.String("path", change.Path),
		zap.String("source", change.Source),
		zap.Bool("requires_restart", change.RequiresRestart),
		zap.Any("old_value", change.OldValue),
		zap.Any("new_value", change.NewValue))
}

// --- 变更检测与回调派发 ---

type diffFrame struct {
	prefix string
	oldVal reflect.Value
	newVal reflect.Value
}

// diffConfigs 比较两份配置的导出字段，返回取值不同的叶子路径。
// 嵌套结构体展开为 "Section.Field" 形式。
func diffConfigs(oldCfg, newCfg *Config) []ConfigChange {
	var changes []ConfigChange
	queue := []diffFrame{{oldVal: reflect.ValueOf(oldCfg).Elem(), newVal: reflect.ValueOf(newCfg).Elem()}}

	for len(queue) > 0 {
		frame := queue[0]
		queue = queue[1:]

		t := frame.oldVal.Type()
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if !sf.IsExported() {
				continue
			}
			path := sf.Name
			if frame.prefix != "" {
				path = frame.prefix + "." + sf.Name
			}

			ov := frame.oldVal.Field(i)
			nv := frame.newVal.Field(i)
			if ov.Kind() == reflect.Struct {
				queue = append(queue, diffFrame{prefix: path, oldVal: ov, newVal: nv})
				continue
			}
			if !reflect.DeepEqual(ov.Interface(), nv.Interface()) {
				changes = append(changes, ConfigChange{
					Path:     path,
					OldValue: ov.Interface(),
					NewValue: nv.Interface(),
				})
			}
		}
	}
	return changes
}

// annotateChange 套用注册表元数据并按需脱敏。
// 未登记的字段一律按需要重启处理。
func annotateChange(change *ConfigChange, source string) {
	change.Timestamp = time.Now()
	change.Source = source
	change.Applied = true

	spec, known := hotReloadableFields[change.Path]
	if !known {
		change.RequiresRestart = true
		return
	}
	change.RequiresRestart = spec.RequiresRestart
	if spec.Sensitive {
		change.OldValue = "[REDACTED]"
		change.NewValue = "[REDACTED]"
	}
}

// fireCallbacks 在锁外触发回调，panic 转为错误返回。
func fireCallbacks(onChange []ChangeCallback, onReload []ReloadCallback, oldCfg, newCfg *Config, changes []ConfigChange) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	for _, cb := range onChange {
		for _, change := range changes {
			cb(change)
		}
	}
	for _, cb := range onReload {
		cb(oldCfg, newCfg)
	}
	return nil
}

// notifyRollback 调用单个回滚回调并吸收 panic。
func notifyRollback(cb RollbackCallback, event RollbackEvent, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("rollback callback panicked", zap.Any("panic", r))
		}
	}()
	cb(event)
}

// deepCopyConfig 经 JSON 往返得到配置的独立副本。
// 序列化失败时退回原指针，调用方按只读使用。
func deepCopyConfig(cfg *Config) *Config {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	out := new(Config)
	if err := json.Unmarshal(raw, out); err != nil {
		return cfg
	}
	return out
}

// computeConfigChecksum 返回配置 JSON 形态的短校验和。
func computeConfigChecksum(cfg *Config) string {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}
