// =============================================================================
// 📦 kpreconcile 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:         DefaultServerConfig(),
		JWT:            JWTConfig{},
		Redis:          DefaultRedisConfig(),
		Database:       DefaultDatabaseConfig(),
		Log:            DefaultLogConfig(),
		Telemetry:      DefaultTelemetryConfig(),
		StatusSource:   DefaultStatusSourceConfig(),
		ActivitySource: DefaultActivitySourceConfig(),
		Reconciler:     DefaultReconcilerConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    10,
		RateLimitBurst:  20,

		ConfigPollInterval: 5 * time.Second,
		ConfigDebounce:     500 * time.Millisecond,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		KeyPrefix:    "kpreconcile:",
		PoolSize:     5,
		MinIdleConns: 1,
		SummaryTTL:   24 * time.Hour,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "kpreconcile",
		Password:        "",
		Name:            "knowledge",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		MaxTxRetries:    3,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "kpreconcile",
		SampleRate:   0.1,
	}
}

// DefaultStatusSourceConfig 返回默认状态索引配置
func DefaultStatusSourceConfig() StatusSourceConfig {
	return StatusSourceConfig{
		URL:              "http://localhost:9200",
		Index:            "pipeline-status",
		PageSize:         1000,
		Timeout:          10 * time.Second,
		MaxRetries:       2,
		QPS:              20,
		Burst:            5,
		BreakerThreshold: 5,
		BreakerReset:     30 * time.Second,
	}
}

// DefaultActivitySourceConfig 返回默认编排器配置
func DefaultActivitySourceConfig() ActivitySourceConfig {
	return ActivitySourceConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 2,
	}
}

// DefaultReconcilerConfig 返回默认对账调度配置
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Environment:    "production",
		StatusEnabled:  true,
		StatusInterval: time.Minute,
		SyncEnabled:    false,
		SyncInterval:   5 * time.Minute,
		RunOnStart:     true,
		CycleTimeout:   10 * time.Minute,
		RecipePrefix:   "sync_recipe_",
	}
}
