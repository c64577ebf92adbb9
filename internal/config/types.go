package config

// Config is the root configuration for deskd.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway,omitempty"`
	Streams   StreamsConfig   `yaml:"streams,omitempty"`
	Store     StoreConfig     `yaml:"store,omitempty"`
	Pipeline  PipelineConfig  `yaml:"pipeline,omitempty"`
	Responder ResponderConfig `yaml:"responder,omitempty"`
	Channels  ChannelsConfig  `yaml:"channels,omitempty"`
	Notify    NotifyConfig    `yaml:"notify,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket gateway.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// StreamsConfig points at the Kafka cluster carrying the event topics.
type StreamsConfig struct {
	Brokers     []string `yaml:"brokers,omitempty"`
	TopicPrefix string   `yaml:"topicPrefix,omitempty"`
	ClientID    string   `yaml:"clientId,omitempty"`
}

// StoreConfig locates the SQLite database. An empty path resolves to
// <data dir>/deskd.db.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// PipelineConfig tunes event processing.
type PipelineConfig struct {
	Workers             int     `yaml:"workers,omitempty"`
	WindowHours         int     `yaml:"windowHours,omitempty"`         // conversation inactivity window
	SentimentWindow     int     `yaml:"sentimentWindow,omitempty"`     // K scores averaged per conversation
	SentimentThreshold  float64 `yaml:"sentimentThreshold,omitempty"`  // escalate below this, two in a row
	ConfidenceThreshold float64 `yaml:"confidenceThreshold,omitempty"` // resolve at or above this
	MaxRetries          int     `yaml:"maxRetries,omitempty"`
	RetryBackoffSeconds int     `yaml:"retryBackoffSeconds,omitempty"`
	AgentTimeoutSeconds int     `yaml:"agentTimeoutSeconds,omitempty"`
	RetentionDays       int     `yaml:"retentionDays,omitempty"` // processed-event purge horizon
}

// ResponderConfig selects the draft provider.
type ResponderConfig struct {
	Provider    string          `yaml:"provider,omitempty"` // "openai" | "http" | "mock"
	Model       string          `yaml:"model,omitempty"`
	APIKey      string          `yaml:"apiKey,omitempty"`
	BaseURL     string          `yaml:"baseUrl,omitempty"`  // custom OpenAI-compatible endpoint
	Endpoint    string          `yaml:"endpoint,omitempty"` // sidecar URL when provider: http
	MaxTokens   int             `yaml:"maxTokens,omitempty"`
	Temperature *float64        `yaml:"temperature,omitempty"`
	Fallbacks   []FallbackEntry `yaml:"fallbacks,omitempty"`
}

// FallbackEntry defines one failover draft provider.
type FallbackEntry struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"apiKey,omitempty"`
	BaseURL  string `yaml:"baseUrl,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// ChannelsConfig defines channel intake adapters. Chat and webform are
// served by the gateway and need no configuration here.
type ChannelsConfig struct {
	Email *EmailConfig `yaml:"email,omitempty"`
}

// EmailConfig defines the email inbox poller.
type EmailConfig struct {
	Mode        string      `yaml:"mode"` // "imap" | "gmail"
	PollSeconds int         `yaml:"pollSeconds,omitempty"`
	IMAP        IMAPConfig  `yaml:"imap,omitempty"`
	Gmail       GmailConfig `yaml:"gmail,omitempty"`
}

// IMAPConfig holds IMAP connection settings.
type IMAPConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
	Mailbox  string `yaml:"mailbox,omitempty"`
}

// GmailConfig holds Gmail API settings.
type GmailConfig struct {
	CredentialsFile string `yaml:"credentialsFile,omitempty"` // defaults under the credentials dir
	TokenFile       string `yaml:"tokenFile,omitempty"`
	Query           string `yaml:"query,omitempty"`
}

// NotifyConfig defines operator alerting targets.
type NotifyConfig struct {
	IRC *IRCNotifyConfig `yaml:"irc,omitempty"`
}

// IRCNotifyConfig defines the IRC ops announcer.
type IRCNotifyConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port,omitempty"`
	Nick     string `yaml:"nick"`
	Password string `yaml:"password,omitempty"`
	Channel  string `yaml:"channel"`
	UseTLS   bool   `yaml:"useTLS,omitempty"`
	SASL     bool   `yaml:"sasl,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
}
