package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *EngineConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Database.Postgres.Host != "" {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	}

	if c.Thresholds.PriceDropPct <= 0 {
		return errors.New("thresholds.price_drop_pct must be > 0")
	}
	if c.Thresholds.VolumeSpikePct <= 0 {
		return errors.New("thresholds.volume_spike_pct must be > 0")
	}
	if c.Thresholds.ListingDepletionPct <= 0 {
		return errors.New("thresholds.listing_depletion_pct must be > 0")
	}
	if c.Thresholds.CooldownMinutes < 1 {
		return errors.New("thresholds.cooldown_minutes must be >= 1")
	}

	if c.Retention.Hours < 1 {
		return errors.New("retention.hours must be >= 1")
	}
	if c.Retention.BatchSize < 1 {
		return errors.New("retention.batch_size must be >= 1")
	}

	if c.Notify.Workers < 1 {
		return errors.New("notify.workers must be >= 1")
	}
	if c.Notify.Webhook.MaxRetries < 0 {
		return errors.New("notify.webhook.max_retries must be >= 0")
	}
	if c.Notify.Webhook.Backoff < 0 {
		return errors.New("notify.webhook.backoff must be >= 0")
	}
	if c.Notify.Email.Enabled {
		if c.Notify.Email.To == "" || c.Notify.Email.From == "" {
			return errors.New("notify.email.to and notify.email.from are required when email is enabled")
		}
		if c.Notify.Email.SMTPAddr == "" {
			return errors.New("notify.email.smtp_addr is required when email is enabled")
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
