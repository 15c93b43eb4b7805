// =============================================================================
// 📦 cardflow 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Database:   DefaultDatabaseConfig(),
		Generation: DefaultGenerationConfig(),
		Scraper:    DefaultScraperConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           8080,
		MetricsPort:        9091,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       5 * time.Minute,
		ShutdownTimeout:    15 * time.Second,
		RateLimitRPS:       10,
		RateLimitBurst:     20,
		CORSAllowedOrigins: []string{"*"},
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "cardflow",
		Password:        "",
		Name:            "cardflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectRetries:  3,
	}
}

// DefaultGenerationConfig 返回默认生成编排配置
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		HTTPTimeout:         2 * time.Minute,
		PollInterval:        2 * time.Second,
		PollMaxAttempts:     60,
		OutlineAttempts:     2,
		QuickPromptAttempts: 2,
		ErrorBodyLimit:      200,
		MaxTokens:           4096,
		Temperature:         0.7,
		MaxSourceRunes:      12000,
		DefaultPageCount:    6,
		DefaultImageSize:    "1024x1024",
	}
}

// DefaultScraperConfig 返回默认抓取配置
func DefaultScraperConfig() ScraperConfig {
	return ScraperConfig{
		Timeout:      20 * time.Second,
		MaxBodyBytes: 4 << 20,
		UserAgent:    "Mozilla/5.0 (compatible; cardflow/1.0)",
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
		ServiceName:  "cardflow",
		SampleRate:   0.1,
	}
}
