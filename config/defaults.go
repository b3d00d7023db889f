// =============================================================================
// 📦 QueryFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Pipeline:   DefaultPipelineConfig(),
		Classifier: DefaultClassifierConfig(),
		Quality:    DefaultQualityConfig(),
		LLM:        DefaultLLMConfig(),
		Session:    DefaultSessionConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		APIKey:          "",
		AllowedOrigins:  []string{"*"},
	}
}

// DefaultPipelineConfig 返回默认流水线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		CatalogPath:       "",
		PlanTimeout:       10 * time.Minute,
		StepTimeout:       0,
		StepTimeoutFactor: 0,
		EventBuffer:       64,
	}
}

// DefaultClassifierConfig 返回默认分类器配置
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Model:       "gpt-4o-mini",
		Temperature: 0.1,
		MaxTokens:   512,
		Timeout:     20 * time.Second,
		CacheTTL:    10 * time.Minute,
	}
}

// DefaultQualityConfig 返回默认质量门控配置
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		DebateModel:       "gpt-4o-mini",
		DebateTemperature: 0.3,
		DebateMaxTokens:   768,
		DebateTimeout:     30 * time.Second,
		MinInsightRunes:   40,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		DefaultProvider: "openai",
		APIKey:          "",
		BaseURL:         "",
		Model:           "gpt-4o-mini",
		Timeout:         2 * time.Minute,
		MaxRetries:      3,
	}
}

// DefaultSessionConfig 返回默认会话存储配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		StoreType: "memory",
		FileDir:   "./data/sessions",
		TTL:       24 * time.Hour,
		KeyPrefix: "queryflow:session:",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认归档数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "queryflow",
		Password:        "",
		Name:            "queryflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
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
		ServiceName:  "queryflow",
		SampleRate:   0.1,
	}
}
