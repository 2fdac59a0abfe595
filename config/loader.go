// =============================================================================
// 📦 AgentRelay 配置加载器
// =============================================================================
// 默认值、YAML 文件与环境变量三层合并的配置入口
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTRELAY").
//	    Load()
//
// 后写覆盖先写: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 配置模型
// =============================================================================

// Config 是 AgentRelay 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Handoff 交接管线配置
	Handoff HandoffConfig `yaml:"handoff" env:"HANDOFF"`

	// Vault 上下文持久化后端配置
	Vault VaultConfig `yaml:"vault" env:"VAULT"`

	// Database 审计数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Audit 审计落库配置
	Audit AuditConfig `yaml:"audit" env:"AUDIT"`

	// Auth 接口鉴权配置
	Auth AuthConfig `yaml:"auth" env:"AUTH"`

	// Log 日志输出配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry OpenTelemetry 导出配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig HTTP 服务面配置
type ServerConfig struct {
	// 业务 API 监听端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Prometheus 指标监听端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 请求读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 响应写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅停机等待上限
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每秒请求数限流
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流桶突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// CORS 允许的来源，留空则拒绝跨域请求
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// HandoffConfig 交接管线配置
type HandoffConfig struct {
	// 会话窗口快照的消息条数
	WindowSize int `yaml:"window_size" env:"WINDOW_SIZE"`
	// 终态交接的内存历史上限
	HistoryLimit int `yaml:"history_limit" env:"HISTORY_LIMIT"`
	// Token 统计使用的 tiktoken 编码，留空则关闭 token 元数据
	TokenEncoding string `yaml:"token_encoding" env:"TOKEN_ENCODING"`
	// Agent 能力表 YAML 文件路径，留空则注册表为空
	AgentsFile string `yaml:"agents_file" env:"AGENTS_FILE"`
}

// VaultConfig 上下文持久化后端配置
type VaultConfig struct {
	// 后端类型: memory, file, redis, mongo
	Backend string `yaml:"backend" env:"BACKEND"`
	// 文件后端的根目录
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// Redis 后端配置
	Redis VaultRedisConfig `yaml:"redis" env:"REDIS"`
	// Mongo 后端配置
	Mongo VaultMongoConfig `yaml:"mongo" env:"MONGO"`
}

// VaultRedisConfig Redis 后端配置
type VaultRedisConfig struct {
	// Redis 主机名
	Host string `yaml:"host" env:"HOST"`
	// Redis 端口号
	Port int `yaml:"port" env:"PORT"`
	// 认证密码，留空免认证
	Password string `yaml:"password" env:"PASSWORD"`
	// 逻辑库编号
	DB int `yaml:"db" env:"DB"`
	// 客户端连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 所有键的公共前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 启用 TLS 连接
	TLS bool `yaml:"tls" env:"TLS"`
}

// VaultMongoConfig Mongo 后端配置
type VaultMongoConfig struct {
	// mongodb:// 连接字符串
	URI string `yaml:"uri" env:"URI"`
	// 目标数据库名
	Database string `yaml:"database" env:"DATABASE"`
	// 目标集合名
	Collection string `yaml:"collection" env:"COLLECTION"`
	// 初始连接超时
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// DatabaseConfig 审计数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 数据库主机名
	Host string `yaml:"host" env:"HOST"`
	// 数据库端口号
	Port int `yaml:"port" env:"PORT"`
	// 登录用户名
	User string `yaml:"user" env:"USER"`
	// 登录密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 驱动下为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// postgres 的 sslmode 取值
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 连接池最大打开连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 连接池最大空闲连接数
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 单个连接的最长存活时间
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// AuditConfig 审计落库配置
type AuditConfig struct {
	// 是否将终态交接写入审计数据库
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// AuthConfig 接口鉴权配置
type AuthConfig struct {
	// 是否启用 JWT Bearer 鉴权
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// HMAC 签名密钥
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// 期望的签发者，留空则不校验
	Issuer string `yaml:"issuer" env:"ISSUER"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 最低输出级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 编码格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出目标列表
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 记录调用位置
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// Error 级别附带堆栈
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否导出追踪
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP gRPC 接收端地址
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 上报的服务名
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 根 Span 采样比例
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 按默认值、文件、环境变量的顺序合并配置。
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建配置加载器，环境变量前缀默认 AGENTRELAY。
func NewLoader() *Loader {
	return &Loader{envPrefix: "AGENTRELAY"}
}

// WithConfigPath 指定 YAML 配置文件位置。
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 替换环境变量前缀。
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 追加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 执行合并并运行全部验证器。
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.mergeFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.mergeEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, validate := range l.validators {
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// mergeFile 把 YAML 文件内容并入 cfg，文件缺失时保持原值。
func (l *Loader) mergeFile(cfg *Config) error {
	raw, err := os.ReadFile(l.configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// envBinding 一个环境变量键到配置字段的绑定
type envBinding struct {
	key   string
	field reflect.Value
}

// mergeEnv 用环境变量覆盖 cfg 中已绑定的字段。
func (l *Loader) mergeEnv(cfg *Config) error {
	bindings := collectEnvBindings(reflect.ValueOf(cfg).Elem(), l.envPrefix, nil)
	for _, b := range bindings {
		raw := os.Getenv(b.key)
		if raw == "" {
			continue
		}
		if err := parseEnvInto(b.field, raw); err != nil {
			return fmt.Errorf("failed to set %s: %w", b.key, err)
		}
	}
	return nil
}

// collectEnvBindings 深度展开 env tag，产出叶子字段的全部绑定。
// 键名按 PREFIX_SECTION_FIELD 规则拼接。
func collectEnvBindings(v reflect.Value, prefix string, out []envBinding) []envBinding {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			out = collectEnvBindings(field, key, out)
			continue
		}
		out = append(out, envBinding{key: key, field: field})
	}
	return out
}

var durationType = reflect.TypeOf(time.Duration(0))

// parseEnvInto 把环境变量文本解析进配置字段。
// 支持字符串、整数、浮点、布尔、time.Duration 与逗号分隔的字符串切片。
func parseEnvInto(field reflect.Value, raw string) error {
	if !field.CanSet() {
		return nil
	}

	// Duration 按类型优先于整数 kind 处理
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element %s", field.Type().Elem())
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))

	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}

	return nil
}

// =============================================================================
// 🔍 辅助入口
// =============================================================================

// MustLoad 加载配置文件，失败时 panic。
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("config load %s: %v", path, err))
	}
	return cfg
}

// LoadFromEnv 跳过文件，仅用环境变量覆盖默认值。
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 检查配置的静态合法性。
// 所有问题合并成一个错误返回，不在首个问题处短路。
func (c *Config) Validate() error {
	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		bad("invalid HTTP port %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		bad("invalid metrics port %d", c.Server.MetricsPort)
	}

	if c.Handoff.WindowSize <= 0 {
		bad("handoff window_size must be positive, got %d", c.Handoff.WindowSize)
	}
	if c.Handoff.HistoryLimit <= 0 {
		bad("handoff history_limit must be positive, got %d", c.Handoff.HistoryLimit)
	}

	switch c.Vault.Backend {
	case "", "memory", "file", "redis", "mongo":
	default:
		bad("unknown vault backend %q", c.Vault.Backend)
	}

	// 驱动只在审计落库启用时才要求合法
	if c.Audit.Enabled {
		switch c.Database.Driver {
		case "sqlite", "postgres", "mysql":
		default:
			bad("unknown database driver %q", c.Database.Driver)
		}
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		bad("auth enabled but jwt_secret is empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DSN 返回驱动对应的连接字符串，未知驱动返回空串。
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name)
	case "sqlite":
		// sqlite 直接使用文件路径（或 :memory:）
		return d.Name
	}
	return ""
}
