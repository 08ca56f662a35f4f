package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Browser:   DefaultBrowserConfig(),
		Engine:    DefaultEngineConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig returns the default HTTP server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8000,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		AllowedOrigins:  []string{"*"},
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

// DefaultBrowserConfig returns the default browser attachment configuration.
// WSEndpoint has no sensible default and must be supplied.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BaseURL:            "https://claude.ai",
		NewChatPath:        "/new",
		NavigationTimeout:  60 * time.Second,
		LoadTimeout:        30 * time.Second,
		NetworkIdleTimeout: 10 * time.Second,
		SettleGrace:        2 * time.Second,
		TypingCadence:      false,
		TypingDelayMin:     20 * time.Millisecond,
		TypingDelayMax:     80 * time.Millisecond,
		MaxPages:           4,
	}
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Models: []string{
			"claude-3-opus-20240229",
			"claude-3-sonnet-20240229",
			"claude-3-haiku-20240307",
			"claude-3-5-sonnet-20240620",
			"claude-2.1",
			"claude-2.0",
		},
		DefaultModel:      "claude-3-5-sonnet-20240620",
		PollStrategy:      "sidechannel",
		PollInterval:      2 * time.Second,
		PollAttempts:      60,
		InputTimeout:      15 * time.Second,
		RetryAttempts:     3,
		RetryDelayMin:     1 * time.Second,
		RetryDelayMax:     3 * time.Second,
		RateLimitMargin:   90 * time.Minute,
		RateLimitFallback: time.Hour,
		ThrottleEvery:     30,
		ThrottleCooldown:  3 * time.Hour,
		StreamInterval:    100 * time.Millisecond,
	}
}

// DefaultDatabaseConfig returns the default archive configuration.
// The archive is off until a driver is configured.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "",
		Host:            "localhost",
		Port:            5432,
		User:            "uibridge",
		Name:            "uibridge",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "uibridge",
		SampleRate:   1.0,
	}
}
