// 可热重载字段注册表与嵌套字段路径访问。
package config

import (
	"fmt"
	"reflect"
	"strings"
)

// HotReloadableField 描述一个允许运行时调整的配置字段。
type HotReloadableField struct {
	// Path 字段路径，例如 "Log.Level"
	Path string

	// Description 字段用途说明
	Description string

	// RequiresRestart 变更后需要重启进程才生效
	RequiresRestart bool

	// Sensitive 值在日志与 API 响应中脱敏
	Sensitive bool

	// Validator 可选的取值校验函数
	Validator func(value any) error
}

// hotReloadableFields 登记所有允许通过 API 修改的配置字段。
// 不在表内的字段一律拒绝更新。
var hotReloadableFields = registerFields(
	// 运行中即可生效：日志经 zap AtomicLevel 应用，限流器支持 SetLimit/SetBurst
	liveField("Log.Level", "log level: debug, info, warn or error",
		oneOf("debug", "info", "warn", "error")),
	liveField("Log.Format", "log output format: json or console",
		oneOf("json", "console")),
	liveField("Server.RateLimitRPS", "request rate limit per second"),
	liveField("Server.RateLimitBurst", "rate limiter burst capacity"),

	// 交接管线参数在编排器构造时固化
	restartField("Handoff.WindowSize", "conversation window size per handoff snapshot"),
	restartField("Handoff.HistoryLimit", "retired handoff history capacity"),
	restartField("Handoff.TokenEncoding", "tiktoken encoding for window token stats"),

	// 遥测提供者在进程启动时建立
	restartField("Telemetry.Enabled", "enable trace export"),
	restartField("Telemetry.SampleRate", "trace sampling ratio"),

	// 监听端口与超时在 HTTP 服务器构造时固化
	restartField("Server.HTTPPort", "HTTP listen port"),
	restartField("Server.MetricsPort", "metrics listen port"),
	restartField("Server.ReadTimeout", "HTTP read timeout"),
	restartField("Server.WriteTimeout", "HTTP write timeout"),
	restartField("Server.CORSAllowedOrigins", "allowed CORS origins, empty denies cross-origin requests"),

	// 审计库连接在启动时建立
	restartField("Database.Host", "audit database host"),
	restartField("Database.Port", "audit database port"),
	secretField("Database.Password", "audit database password"),

	// 上下文保管库后端在启动时选定
	restartField("Vault.Backend", "context vault backend: memory, file, redis or mongo"),
	restartField("Vault.Redis.Host", "vault redis host"),
	secretField("Vault.Redis.Password", "vault redis password"),
	secretField("Vault.Mongo.URI", "vault mongo connection string"),

	secretField("Auth.JWTSecret", "JWT signing secret"),
)

// liveField 登记一个无需重启即生效的字段。
func liveField(path, desc string, validate ...func(any) error) HotReloadableField {
	f := HotReloadableField{Path: path, Description: desc}
	if len(validate) > 0 {
		f.Validator = validate[0]
	}
	return f
}

// restartField 登记一个需要重启才生效的字段。
func restartField(path, desc string) HotReloadableField {
	return HotReloadableField{Path: path, Description: desc, RequiresRestart: true}
}

// secretField 登记一个敏感字段，值在日志与 API 中脱敏。
func secretField(path, desc string) HotReloadableField {
	return HotReloadableField{Path: path, Description: desc, RequiresRestart: true, Sensitive: true}
}

func registerFields(fields ...HotReloadableField) map[string]HotReloadableField {
	m := make(map[string]HotReloadableField, len(fields))
	for _, f := range fields {
		m[f.Path] = f
	}
	return m
}

// oneOf 返回限定字符串取值集合的校验函数。
func oneOf(allowed ...string) func(any) error {
	return func(value any) error {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
		return fmt.Errorf("%q not one of %v", s, allowed)
	}
}

// GetHotReloadableFields 返回注册表副本。
func GetHotReloadableFields() map[string]HotReloadableField {
	out := make(map[string]HotReloadableField, len(hotReloadableFields))
	for path, spec := range hotReloadableFields {
		out[path] = spec
	}
	return out
}

// IsHotReloadable 报告字段是否登记且无需重启即可生效。
func IsHotReloadable(path string) bool {
	spec, known := hotReloadableFields[path]
	return known && !spec.RequiresRestart
}

// splitPath 按 "." 切分字段路径，空段被丢弃。
func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '.' })
}

// resolvePath 沿点分路径逐级定位结构体字段。
// 传入可寻址的根值时返回的字段同样可寻址，可用于写入。
func resolvePath(root reflect.Value, path string) (reflect.Value, error) {
	v := root
	for _, name := range splitPath(path) {
		for v.Kind() == reflect.Pointer {
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("%s is not a struct", name)
		}
		v = v.FieldByName(name)
		if !v.IsValid() {
			return reflect.Value{}, fmt.Errorf("field not found: %s", name)
		}
	}
	return v, nil
}

// fieldValueAt 读取配置中 path 指向的字段值。
func fieldValueAt(cfg *Config, path string) (any, error) {
	v, err := resolvePath(reflect.ValueOf(cfg).Elem(), path)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// setFieldAt 写入配置中 path 指向的字段。
// JSON 解码产生的 float64 等兼容类型会被转换到目标类型。
func setFieldAt(cfg *Config, path string, value any) error {
	v, err := resolvePath(reflect.ValueOf(cfg).Elem(), path)
	if err != nil {
		return err
	}
	if !v.CanSet() {
		return fmt.Errorf("cannot set field: %s", path)
	}
	nv := reflect.ValueOf(value)
	if !nv.Type().ConvertibleTo(v.Type()) {
		return fmt.Errorf("type mismatch: expected %s, got %s", v.Type(), nv.Type())
	}
	v.Set(nv.Convert(v.Type()))
	return nil
}

// sensitiveKeyMarkers 命中即脱敏的键名片段。
// 不含 "token"：Handoff.TokenEncoding 是公开的编码名。
var sensitiveKeyMarkers = []string{"password", "api_key", "apikey", "secret", "credential", "uri"}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, marker := range sensitiveKeyMarkers {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}

// redactTree 就地替换敏感键的非空字符串值，并深入嵌套映射。
func redactTree(node map[string]any) {
	for key, value := range node {
		switch typed := value.(type) {
		case string:
			if typed != "" && isSensitiveKey(key) {
				node[key] = "[REDACTED]"
			}
		case map[string]any:
			redactTree(typed)
		}
	}
}
