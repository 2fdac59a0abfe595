package handlers

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// readyCheckTimeout 限定一次就绪检查里所有依赖探活的总耗时。
const readyCheckTimeout = 5 * time.Second

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthCheck 是就绪检查探测的依赖项
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthHandler 汇总存活与就绪探针
type HealthHandler struct {
	logger *zap.Logger
	mu     sync.RWMutex
	checks []HealthCheck
}

// NewHealthHandler 创建不带任何依赖检查的处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{logger: logger}
}

// RegisterCheck 把依赖项纳入就绪检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// HealthStatus 是探针响应体
type HealthStatus struct {
	// Status 取 healthy、degraded 或 unhealthy
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 记录单项依赖的探活结果
type CheckResult struct {
	// Status 取 pass 或 fail
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// writeAlive 只报告进程存活，不触碰任何依赖。
func writeAlive(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, HealthStatus{Status: "healthy", Timestamp: time.Now()})
}

// HandleHealth 处理 /health 存活探测
// @Summary 健康检查
// @Description 进程存活探测，不检查依赖
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务正常"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeAlive(w)
}

// HandleHealthz 处理 /healthz，Kubernetes 风格的存活探针
// @Summary Kubernetes 活跃度探针
// @Description 与 /health 等价的 liveness 探针
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务处于活动状态"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeAlive(w)
}

// HandleReady 处理 /ready 就绪检查，逐项探测注册的依赖
// @Summary 准备情况检查
// @Description 检查服务是否准备好接受流量（Vault、审计数据库可达）
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务已准备就绪"
// @Failure 503 {object} HealthStatus "服务尚未准备好"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult),
	}

	httpStatus := http.StatusOK
	for _, check := range h.snapshotChecks() {
		result := h.runCheck(ctx, check)
		status.Checks[check.Name()] = result
		if result.Status == "fail" {
			status.Status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	WriteJSON(w, httpStatus, status)
}

func (h *HealthHandler) snapshotChecks() []HealthCheck {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.checks)
}

// runCheck 执行单项探活并记录耗时。
func (h *HealthHandler) runCheck(ctx context.Context, check HealthCheck) CheckResult {
	start := time.Now()
	err := check.Check(ctx)
	latency := time.Since(start)

	if err != nil {
		h.logger.Warn("health check failed",
			zap.String("check", check.Name()),
			zap.Error(err),
			zap.Duration("latency", latency),
		)
		return CheckResult{Status: "fail", Message: err.Error(), Latency: latency.String()}
	}
	return CheckResult{Status: "pass", Latency: latency.String()}
}

// HandleVersion 返回编译期注入的版本信息
// @Summary 版本信息
// @Description 返回版本号、构建时间与提交哈希
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// pingCheck 用探活回调充当 HealthCheck，内置检查都基于它。
type pingCheck struct {
	name string
	ping func(ctx context.Context) error
}

func (c pingCheck) Name() string                    { return c.name }
func (c pingCheck) Check(ctx context.Context) error { return c.ping(ctx) }

// VaultHealthCheck 探测上下文保险库后端连通性
type VaultHealthCheck struct{ pingCheck }

// NewVaultHealthCheck 用保险库的探活回调构造检查
func NewVaultHealthCheck(name string, ping func(ctx context.Context) error) *VaultHealthCheck {
	return &VaultHealthCheck{pingCheck{name: name, ping: ping}}
}

// DatabaseHealthCheck 探测审计数据库连通性
type DatabaseHealthCheck struct{ pingCheck }

// NewDatabaseHealthCheck 用数据库的探活回调构造检查
func NewDatabaseHealthCheck(name string, ping func(ctx context.Context) error) *DatabaseHealthCheck {
	return &DatabaseHealthCheck{pingCheck{name: name, ping: ping}}
}
