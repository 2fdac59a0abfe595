// 配置管理 HTTP 端点。
//
// 暴露配置查询、字段更新、重载触发与变更历史接口。
package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/BaSui01/agentrelay/api"
)

// defaultChangesLimit 变更历史查询的默认条数
const defaultChangesLimit = 50

// apiResponse is a type alias for api.Response, the canonical envelope.
type apiResponse = api.Response

// apiError is a type alias for api.ErrorInfo, the canonical error structure.
type apiError = api.ErrorInfo

// ConfigAPIHandler 处理配置 API 请求
type ConfigAPIHandler struct {
	manager       *HotReloadManager
	allowedOrigin string
}

// configData 配置 API 响应的 Data 载荷
type configData struct {
	// Message 附加说明
	Message string `json:"message,omitempty"`

	// Config 脱敏后的当前配置
	Config map[string]any `json:"config,omitempty"`

	// Fields 可热重载字段清单
	Fields map[string]FieldInfo `json:"fields,omitempty"`

	// Changes 变更历史
	Changes []ConfigChange `json:"changes,omitempty"`

	// RequiresRestart 本次变更是否需要重启
	RequiresRestart bool `json:"requires_restart,omitempty"`
}

// FieldInfo 单个可热重载字段的对外描述
type FieldInfo struct {
	// Path 字段路径
	Path string `json:"path"`

	// Description 字段说明
	Description string `json:"description"`

	// RequiresRestart 变更后是否需要重启
	RequiresRestart bool `json:"requires_restart"`

	// Sensitive 是否敏感字段
	Sensitive bool `json:"sensitive"`

	// CurrentValue 当前值，敏感字段不返回
	CurrentValue any `json:"current_value,omitempty"`
}

// ConfigUpdateRequest 配置更新请求体
type ConfigUpdateRequest struct {
	// Updates 字段路径到新值的映射
	Updates map[string]any `json:"updates"`
}

// NewConfigAPIHandler 创建配置 API 处理器。
// allowedOrigin 指定 CORS 允许的来源，为空时不设置 Access-Control-Allow-Origin。
func NewConfigAPIHandler(manager *HotReloadManager, allowedOrigin ...string) *ConfigAPIHandler {
	h := &ConfigAPIHandler{manager: manager}
	if len(allowedOrigin) > 0 {
		h.allowedOrigin = allowedOrigin[0]
	}
	return h
}

// RegisterRoutes 注册配置 API 路由
func (h *ConfigAPIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/config", h.HandleConfig)
	mux.HandleFunc("/api/v1/config/reload", h.HandleReload)
	mux.HandleFunc("/api/v1/config/fields", h.HandleFields)
	mux.HandleFunc("/api/v1/config/changes", h.HandleChanges)
}

// HandleConfig 处理配置的查询与更新（导出方法，供认证中间件包装）
func (h *ConfigAPIHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, map[string]http.HandlerFunc{
		http.MethodGet: h.getConfig,
		http.MethodPut: h.updateConfig,
	})
}

// HandleReload 处理配置热重载触发（导出方法）
func (h *ConfigAPIHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, map[string]http.HandlerFunc{
		http.MethodPost: h.reloadConfig,
	})
}

// HandleFields 返回可热重载字段清单（导出方法）
func (h *ConfigAPIHandler) HandleFields(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, map[string]http.HandlerFunc{
		http.MethodGet: h.getFields,
	})
}

// HandleChanges 返回配置变更历史（导出方法）
func (h *ConfigAPIHandler) HandleChanges(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, map[string]http.HandlerFunc{
		http.MethodGet: h.getChanges,
	})
}

// dispatch 统一处理 CORS 预检与方法白名单，命中后转交处理函数。
func (h *ConfigAPIHandler) dispatch(w http.ResponseWriter, r *http.Request, routes map[string]http.HandlerFunc) {
	if r.Method == http.MethodOptions {
		h.preflight(w)
		return
	}
	if next, ok := routes[r.Method]; ok {
		next(w, r)
		return
	}
	h.reject(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
		fmt.Sprintf("Method %s not allowed", r.Method))
}

// getConfig 返回脱敏后的当前配置
// @Summary 获取当前配置
// @Description 返回当前配置，敏感字段已脱敏
// @Tags config
// @Produce json
// @Success 200 {object} apiResponse "当前配置"
// @Router /api/v1/config [get]
func (h *ConfigAPIHandler) getConfig(w http.ResponseWriter, r *http.Request) {
	h.respond(w, configData{
		Message: "Configuration retrieved successfully",
		Config:  h.manager.SanitizedConfig(),
	})
}

// updateConfig 更新一个或多个配置字段
// @Summary 更新配置
// @Description 按字段路径更新配置，未登记的字段被拒绝
// @Tags config
// @Accept json
// @Produce json
// @Param request body ConfigUpdateRequest true "配置更新"
// @Success 200 {object} apiResponse "配置已更新"
// @Failure 400 {object} apiResponse "无效请求"
// @Router /api/v1/config [put]
func (h *ConfigAPIHandler) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.reject(w, http.StatusBadRequest, "INVALID_REQUEST",
			fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if len(req.Updates) == 0 {
		h.reject(w, http.StatusBadRequest, "INVALID_REQUEST", "No updates provided")
		return
	}

	// 路径排序，失败信息的顺序不随 map 遍历抖动
	paths := make([]string, 0, len(req.Updates))
	for path := range req.Updates {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var failures []string
	requiresRestart := false
	for _, path := range paths {
		spec, known := hotReloadableFields[path]
		if !known {
			failures = append(failures, fmt.Sprintf("Unknown field: %s", path))
			continue
		}
		if err := h.manager.UpdateField(path, req.Updates[path]); err != nil {
			failures = append(failures, fmt.Sprintf("Failed to update %s: %v", path, err))
			continue
		}
		if spec.RequiresRestart {
			requiresRestart = true
		}
	}

	if len(failures) > 0 {
		h.reject(w, http.StatusBadRequest, "INVALID_REQUEST",
			fmt.Sprintf("Some updates failed: %v", failures))
		return
	}

	h.respond(w, configData{
		Message:         "Configuration updated successfully",
		Config:          h.manager.SanitizedConfig(),
		RequiresRestart: requiresRestart,
	})
}

// reloadConfig 从配置文件重新加载
// @Summary 热重载配置文件
// @Description 重新读取配置文件并整份应用
// @Tags config
// @Produce json
// @Success 200 {object} apiResponse "配置已热重载"
// @Failure 500 {object} apiResponse "热重载失败"
// @Router /api/v1/config/reload [post]
func (h *ConfigAPIHandler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.ReloadFromFile(); err != nil {
		h.reject(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			fmt.Sprintf("Failed to reload configuration: %v", err))
		return
	}
	h.respond(w, configData{
		Message: "Configuration reloaded successfully",
		Config:  h.manager.SanitizedConfig(),
	})
}

// getFields 返回可热重载字段清单
// @Summary 获取可热重载字段
// @Description 返回支持运行时修改的字段及其当前值
// @Tags config
// @Produce json
// @Success 200 {object} apiResponse "可热重载字段"
// @Router /api/v1/config/fields [get]
func (h *ConfigAPIHandler) getFields(w http.ResponseWriter, r *http.Request) {
	cfg := h.manager.GetConfig()

	fields := make(map[string]FieldInfo, len(hotReloadableFields))
	for path, spec := range hotReloadableFields {
		info := FieldInfo{
			Path:            path,
			Description:     spec.Description,
			RequiresRestart: spec.RequiresRestart,
			Sensitive:       spec.Sensitive,
		}
		if !spec.Sensitive {
			if value, err := fieldValueAt(cfg, path); err == nil {
				info.CurrentValue = value
			}
		}
		fields[path] = info
	}

	h.respond(w, configData{
		Message: "Hot reloadable fields retrieved",
		Fields:  fields,
	})
}

// getChanges 返回配置变更历史
// @Summary 获取配置变更历史
// @Description 返回最近的配置变更记录
// @Tags config
// @Produce json
// @Param limit query int false "返回的最大条数" default(50)
// @Success 200 {object} apiResponse "配置变更"
// @Router /api/v1/config/changes [get]
func (h *ConfigAPIHandler) getChanges(w http.ResponseWriter, r *http.Request) {
	limit := defaultChangesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	changes := h.manager.GetChangeLog(limit)
	h.respond(w, configData{
		Message: fmt.Sprintf("Retrieved %d configuration changes", len(changes)),
		Changes: changes,
	})
}

// respond 输出成功信封
func (h *ConfigAPIHandler) respond(w http.ResponseWriter, payload configData) {
	writeEnvelope(w, http.StatusOK, apiResponse{
		Success:   true,
		Data:      payload,
		Timestamp: time.Now(),
	})
}

// reject 输出错误信封
func (h *ConfigAPIHandler) reject(w http.ResponseWriter, status int, code, message string) {
	writeEnvelope(w, status, apiResponse{
		Success:   false,
		Error:     &apiError{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}

// preflight 应答 CORS 预检。allowedOrigin 为空时不放行跨域来源。
func (h *ConfigAPIHandler) preflight(w http.ResponseWriter) {
	if h.allowedOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", h.allowedOrigin)
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// writeEnvelope 先序列化再写出，序列化失败时退回固定错误体。
// 与 handlers.WriteJSON 使用相同的 Content-Type 与安全头。
func writeEnvelope(w http.ResponseWriter, status int, body any) {
	buf, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		buf = []byte(`{"success":false,"error":{"code":"INTERNAL_ERROR","message":"failed to encode response"}}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(buf) //nolint:errcheck // 客户端断开时的写入错误可忽略
}
