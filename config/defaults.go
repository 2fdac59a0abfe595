// =============================================================================
// 📦 AgentRelay 默认配置
// =============================================================================
// 各配置段的出厂默认值。未显式配置的字段一律以这里为准，
// 测试与示例也建立在这组值之上。
// =============================================================================
package config

import "time"

// DefaultConfig 组合全部配置段的默认值
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Handoff:   DefaultHandoffConfig(),
		Vault:     DefaultVaultConfig(),
		Database:  DefaultDatabaseConfig(),
		Audit:     DefaultAuditConfig(),
		Auth:      DefaultAuthConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回监听端口、限流与超时的默认值
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultHandoffConfig 返回交接管线默认值
func DefaultHandoffConfig() HandoffConfig {
	return HandoffConfig{
		WindowSize:    20,
		HistoryLimit:  256,
		TokenEncoding: "cl100k_base",
	}
}

// DefaultVaultConfig 返回 vault 默认值，后端从内存起步
func DefaultVaultConfig() VaultConfig {
	return VaultConfig{
		Backend: "memory",
		BaseDir: "./data/vault",
		Redis: VaultRedisConfig{
			Host:      "localhost",
			Port:      6379,
			Password:  "",
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "agentrelay:",
		},
		Mongo: VaultMongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "agentrelay",
			Collection:     "bundles",
			ConnectTimeout: 10 * time.Second,
		},
	}
}

// DefaultDatabaseConfig 返回审计数据库默认值，驱动从 sqlite 起步
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "agentrelay",
		Password:        "",
		Name:            "./data/audit.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultAuditConfig 返回审计开关默认值，默认不落库
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled: false,
	}
}

// DefaultAuthConfig 返回鉴权默认值，默认不启用
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:   false,
		JWTSecret: "",
		Issuer:    "",
	}
}

// DefaultLogConfig 返回 JSON 结构化日志的默认输出参数
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		EnableCaller:     true,
		EnableStacktrace: false,
		OutputPaths:      []string{"stdout"},
	}
}

// DefaultTelemetryConfig 返回遥测默认值，导出默认关闭
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		ServiceName:  "agentrelay",
		OTLPEndpoint: "localhost:4317",
		SampleRate:   0.1, // 采样 10% 的 trace
	}
}
