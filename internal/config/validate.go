package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "required when bind: custom",
		})
	}

	validAuthModes := []string{"token", "password"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.auth.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode),
		})
	}

	if cfg.Gateway.TLS.Enabled {
		if cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "" {
			issues = append(issues, ValidationIssue{
				Path:    "gateway.tls",
				Message: "certPath and keyPath are required when TLS is enabled",
			})
		}
	}

	// Streams validation
	if len(cfg.Streams.Brokers) == 0 {
		issues = append(issues, ValidationIssue{
			Path:    "streams.brokers",
			Message: "at least one broker is required",
		})
	}
	for i, b := range cfg.Streams.Brokers {
		if b == "" {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("streams.brokers[%d]", i),
				Message: "broker address must not be empty",
			})
		}
	}
	if cfg.Streams.TopicPrefix == "" {
		issues = append(issues, ValidationIssue{
			Path:    "streams.topicPrefix",
			Message: "topic prefix is required",
		})
	}

	// Pipeline validation
	if cfg.Pipeline.Workers < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "pipeline.workers",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Pipeline.Workers),
		})
	}
	if cfg.Pipeline.WindowHours < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "pipeline.windowHours",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Pipeline.WindowHours),
		})
	}
	if cfg.Pipeline.SentimentWindow < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "pipeline.sentimentWindow",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Pipeline.SentimentWindow),
		})
	}
	if cfg.Pipeline.SentimentThreshold < 0 || cfg.Pipeline.SentimentThreshold > 1 {
		issues = append(issues, ValidationIssue{
			Path:    "pipeline.sentimentThreshold",
			Message: fmt.Sprintf("must be within [0, 1], got %g", cfg.Pipeline.SentimentThreshold),
		})
	}
	if cfg.Pipeline.ConfidenceThreshold < 0 || cfg.Pipeline.ConfidenceThreshold > 1 {
		issues = append(issues, ValidationIssue{
			Path:    "pipeline.confidenceThreshold",
			Message: fmt.Sprintf("must be within [0, 1], got %g", cfg.Pipeline.ConfidenceThreshold),
		})
	}
	if cfg.Pipeline.MaxRetries < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "pipeline.maxRetries",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Pipeline.MaxRetries),
		})
	}
	if cfg.Pipeline.RetentionDays < 1 {
		issues = append(issues, ValidationIssue{
			Path:    "pipeline.retentionDays",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Pipeline.RetentionDays),
		})
	}

	// Responder validation
	validProviders := []string{"mock", "openai", "http"}
	if cfg.Responder.Provider != "" && !slices.Contains(validProviders, cfg.Responder.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "responder.provider",
			Message: fmt.Sprintf("must be one of %v, got %q", validProviders, cfg.Responder.Provider),
		})
	}
	if cfg.Responder.Provider == "openai" && cfg.Responder.APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "responder.apiKey",
			Message: "required when provider: openai",
		})
	}
	if cfg.Responder.Provider == "http" && cfg.Responder.Endpoint == "" {
		issues = append(issues, ValidationIssue{
			Path:    "responder.endpoint",
			Message: "required when provider: http",
		})
	}
	for i, fb := range cfg.Responder.Fallbacks {
		if !slices.Contains(validProviders, fb.Provider) {
			issues = append(issues, ValidationIssue{
				Path:    fmt.Sprintf("responder.fallbacks[%d].provider", i),
				Message: fmt.Sprintf("must be one of %v, got %q", validProviders, fb.Provider),
			})
		}
	}

	// Email channel validation (only if configured)
	if cfg.Channels.Email != nil {
		email := cfg.Channels.Email
		validEmailModes := []string{"imap", "gmail"}
		if !slices.Contains(validEmailModes, email.Mode) {
			issues = append(issues, ValidationIssue{
				Path:    "channels.email.mode",
				Message: fmt.Sprintf("must be one of %v, got %q", validEmailModes, email.Mode),
			})
		}
		if email.Mode == "imap" {
			if email.IMAP.Server == "" {
				issues = append(issues, ValidationIssue{
					Path:    "channels.email.imap.server",
					Message: "server is required",
				})
			}
			if email.IMAP.Username == "" {
				issues = append(issues, ValidationIssue{
					Path:    "channels.email.imap.username",
					Message: "username is required",
				})
			}
		}
		// Gmail credential paths default under the credentials dir, so an
		// empty credentialsFile is not an error here.
	}

	// IRC notify validation (only if configured)
	if cfg.Notify.IRC != nil {
		irc := cfg.Notify.IRC
		if irc.Server == "" {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.server",
				Message: "server is required",
			})
		}
		if irc.Nick == "" {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.nick",
				Message: "nick is required",
			})
		}
		if irc.Channel == "" {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.channel",
				Message: "channel is required",
			})
		}
		if irc.Port < 0 || irc.Port > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.port",
				Message: fmt.Sprintf("port must be 0-65535, got %d", irc.Port),
			})
		}
		if irc.SASL && irc.Password == "" {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.sasl",
				Message: "SASL requires a password to be set",
			})
		}
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	return issues
}
