package config

import "time"

// EngineConfig is the root configuration for an engine instance.
type EngineConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Database   DatabaseConfig   `yaml:"database"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Retention  RetentionConfig  `yaml:"retention"`
	Notify     NotifyConfig     `yaml:"notify"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Server     ServerConfig     `yaml:"server"`
}

// InstanceConfig identifies this engine instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// DatabaseConfig holds the durable store connection. When Postgres.Host is
// empty the engine runs on the in-memory store (dev and tests).
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ThresholdsConfig holds alert rule thresholds. Percentages are positive
// magnitudes: a price_drop_pct of 10 fires on a 24h change below -10%.
type ThresholdsConfig struct {
	PriceDropPct        float64 `yaml:"price_drop_pct"`
	VolumeSpikePct      float64 `yaml:"volume_spike_pct"`
	ListingDepletionPct float64 `yaml:"listing_depletion_pct"`
	CooldownMinutes     int     `yaml:"cooldown_minutes"`
}

// Cooldown returns the per-(collection, alert type) suppression window.
func (t ThresholdsConfig) Cooldown() time.Duration {
	return time.Duration(t.CooldownMinutes) * time.Minute
}

// RetentionConfig holds retention sweep settings.
type RetentionConfig struct {
	Hours         int `yaml:"hours"`          // Rows older than now-hours are swept
	BatchSize     int `yaml:"batch_size"`     // Max rows deleted per batch
	WarnThreshold int `yaml:"warn_threshold"` // Per-table deletions above this log a warning
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
	Email   EmailConfig   `yaml:"email"`
	Workers int           `yaml:"workers"` // Dispatch worker count
}

// WebhookConfig holds webhook delivery settings. Disabled when URL is empty.
type WebhookConfig struct {
	URL        string        `yaml:"url"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
	Timeout    time.Duration `yaml:"timeout"`
}

// EmailConfig holds best-effort email delivery settings.
type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	To       string `yaml:"to"`
	From     string `yaml:"from"`
	SMTPAddr string `yaml:"smtp_addr"` // host:port
}

// JobsConfig holds scheduled job settings. The cleanup job runs offset from
// the refresh job so the two never contend for the same collections.
type JobsConfig struct {
	RefreshEnabled  bool          `yaml:"refresh_enabled"`
	CleanupEnabled  bool          `yaml:"cleanup_enabled"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	CleanupOffset   time.Duration `yaml:"cleanup_offset"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	AdminToken string `yaml:"admin_token"` // Bearer token for admin endpoints
}
