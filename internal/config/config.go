package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 18790,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		Streams: StreamsConfig{
			Brokers:     []string{"localhost:9092"},
			TopicPrefix: "desk",
			ClientID:    "deskd",
		},
		Pipeline: PipelineConfig{
			Workers:             4,
			WindowHours:         24,
			SentimentWindow:     5,
			SentimentThreshold:  0.3,
			ConfidenceThreshold: 0.7,
			MaxRetries:          5,
			RetryBackoffSeconds: 1,
			AgentTimeoutSeconds: 180,
			RetentionDays:       7,
		},
		Responder: ResponderConfig{
			Provider: "mock",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
