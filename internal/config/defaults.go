package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
	DefaultPriceDropPct        = 10.0
	DefaultVolumeSpikePct      = 50.0
	DefaultListingDepletionPct = 20.0
	DefaultCooldownMinutes     = 60
	DefaultRetentionHours      = 720 // 30 days
	DefaultCleanupBatchSize    = 1000
	DefaultCleanupWarn         = 10000
	DefaultWebhookRetries      = 3
	DefaultWebhookBackoff      = 1 * time.Second
	DefaultWebhookTimeout      = 10 * time.Second
	DefaultNotifyWorkers       = 4
	DefaultRefreshInterval     = 1 * time.Hour
	DefaultCleanupOffset       = 30 * time.Minute
	DefaultServerPort          = 8080
)

func (c *EngineConfig) applyDefaults() {
	// Database defaults (only when a host is configured)
	if c.Database.Postgres.Host != "" {
		applyDBDefaults(&c.Database.Postgres)
	}

	// Threshold defaults
	if c.Thresholds.PriceDropPct == 0 {
		c.Thresholds.PriceDropPct = DefaultPriceDropPct
	}
	if c.Thresholds.VolumeSpikePct == 0 {
		c.Thresholds.VolumeSpikePct = DefaultVolumeSpikePct
	}
	if c.Thresholds.ListingDepletionPct == 0 {
		c.Thresholds.ListingDepletionPct = DefaultListingDepletionPct
	}
	if c.Thresholds.CooldownMinutes == 0 {
		c.Thresholds.CooldownMinutes = DefaultCooldownMinutes
	}

	// Retention defaults
	if c.Retention.Hours == 0 {
		c.Retention.Hours = DefaultRetentionHours
	}
	if c.Retention.BatchSize == 0 {
		c.Retention.BatchSize = DefaultCleanupBatchSize
	}
	if c.Retention.WarnThreshold == 0 {
		c.Retention.WarnThreshold = DefaultCleanupWarn
	}

	// Notify defaults
	if c.Notify.Webhook.MaxRetries == 0 {
		c.Notify.Webhook.MaxRetries = DefaultWebhookRetries
	}
	if c.Notify.Webhook.Backoff == 0 {
		c.Notify.Webhook.Backoff = DefaultWebhookBackoff
	}
	if c.Notify.Webhook.Timeout == 0 {
		c.Notify.Webhook.Timeout = DefaultWebhookTimeout
	}
	if c.Notify.Workers == 0 {
		c.Notify.Workers = DefaultNotifyWorkers
	}

	// Jobs defaults
	if c.Jobs.RefreshInterval == 0 {
		c.Jobs.RefreshInterval = DefaultRefreshInterval
	}
	if c.Jobs.CleanupOffset == 0 {
		c.Jobs.CleanupOffset = DefaultCleanupOffset
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
