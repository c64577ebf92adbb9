package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so passwords and API keys can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	cfg.Responder.APIKey = expandEnvVars(cfg.Responder.APIKey)
	for i := range cfg.Responder.Fallbacks {
		cfg.Responder.Fallbacks[i].APIKey = expandEnvVars(cfg.Responder.Fallbacks[i].APIKey)
	}
	if cfg.Channels.Email != nil {
		cfg.Channels.Email.IMAP.Password = expandEnvVars(cfg.Channels.Email.IMAP.Password)
	}
	if cfg.Notify.IRC != nil {
		cfg.Notify.IRC.Password = expandEnvVars(cfg.Notify.IRC.Password)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18790
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "token"
	}
	if len(cfg.Streams.Brokers) == 0 {
		cfg.Streams.Brokers = []string{"localhost:9092"}
	}
	if cfg.Streams.TopicPrefix == "" {
		cfg.Streams.TopicPrefix = "desk"
	}
	if cfg.Streams.ClientID == "" {
		cfg.Streams.ClientID = "deskd"
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.WindowHours == 0 {
		cfg.Pipeline.WindowHours = 24
	}
	if cfg.Pipeline.SentimentWindow == 0 {
		cfg.Pipeline.SentimentWindow = 5
	}
	if cfg.Pipeline.SentimentThreshold == 0 {
		cfg.Pipeline.SentimentThreshold = 0.3
	}
	if cfg.Pipeline.ConfidenceThreshold == 0 {
		cfg.Pipeline.ConfidenceThreshold = 0.7
	}
	if cfg.Pipeline.MaxRetries == 0 {
		cfg.Pipeline.MaxRetries = 5
	}
	if cfg.Pipeline.RetryBackoffSeconds == 0 {
		cfg.Pipeline.RetryBackoffSeconds = 1
	}
	if cfg.Pipeline.AgentTimeoutSeconds == 0 {
		cfg.Pipeline.AgentTimeoutSeconds = 180
	}
	if cfg.Pipeline.RetentionDays == 0 {
		cfg.Pipeline.RetentionDays = 7
	}
	if cfg.Responder.Provider == "" {
		cfg.Responder.Provider = "mock"
	}
	if cfg.Channels.Email != nil && cfg.Channels.Email.PollSeconds == 0 {
		cfg.Channels.Email.PollSeconds = 60
	}
	if cfg.Channels.Email != nil && cfg.Channels.Email.IMAP.Mailbox == "" {
		cfg.Channels.Email.IMAP.Mailbox = "INBOX"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides reads DESKD_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DESKD_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("DESKD_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("DESKD_BROKERS"); v != "" {
		parts := strings.Split(v, ",")
		brokers := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				brokers = append(brokers, p)
			}
		}
		if len(brokers) > 0 {
			cfg.Streams.Brokers = brokers
		}
	}
	if v := os.Getenv("DESKD_TOPIC_PREFIX"); v != "" {
		cfg.Streams.TopicPrefix = v
	}
	if v := os.Getenv("DESKD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
