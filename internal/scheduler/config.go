package scheduler

import (
	"time"

	"github.com/monstrox/monstro/internal/config"
)

// Config controls sweep batch sizes and the billing grace windows.
type Config struct {
	BatchSize  int
	MaxBatches int
	JobTimeout time.Duration
	LockTTL    time.Duration

	// RecoveryGrace is how long past period end a renewal may lag before the
	// sweep re-queues it.
	RecoveryGrace time.Duration
	// UncollectibleAfter is how long an invoice may stay overdue before it is
	// written off and its subscription canceled.
	UncollectibleAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:          50,
		MaxBatches:         20,
		JobTimeout:         2 * time.Minute,
		LockTTL:            5 * time.Minute,
		RecoveryGrace:      15 * time.Minute,
		UncollectibleAfter: 14 * 24 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	c := Config{RecoveryGrace: cfg.Subscription.RenewalGrace}
	if cfg.Subscription.UncollectibleDays > 0 {
		c.UncollectibleAfter = time.Duration(cfg.Subscription.UncollectibleDays) * 24 * time.Hour
	}
	return c.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = defaults.MaxBatches
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.RecoveryGrace <= 0 {
		c.RecoveryGrace = defaults.RecoveryGrace
	}
	if c.UncollectibleAfter <= 0 {
		c.UncollectibleAfter = defaults.UncollectibleAfter
	}
	return c
}
