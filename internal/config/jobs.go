package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

// JobsConfig describes queue retry policy and cron registrations for the worker.
type JobsConfig struct {
	Concurrency  int                    `mapstructure:"concurrency"`
	ReminderLead time.Duration          `mapstructure:"reminderLead"`
	Queues       map[string]QueuePolicy `mapstructure:"queues"`
	Cron         []CronEntry            `mapstructure:"cron"`
}

type QueuePolicy struct {
	Attempts  int           `mapstructure:"attempts"`
	Backoff   BackoffPolicy `mapstructure:"backoff"`
	Priority  int           `mapstructure:"priority"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Retention time.Duration `mapstructure:"retention"`
}

type BackoffPolicy struct {
	Type  string        `mapstructure:"type"`
	Delay time.Duration `mapstructure:"delay"`
	Max   time.Duration `mapstructure:"max"`
}

type CronEntry struct {
	Name    string `mapstructure:"name"`
	Spec    string `mapstructure:"spec"`
	Task    string `mapstructure:"task"`
	Enabled bool   `mapstructure:"enabled"`
}

func DefaultJobsConfig() JobsConfig {
	return JobsConfig{
		Concurrency:  10,
		ReminderLead: time.Hour,
		Queues: map[string]QueuePolicy{
			"email": {
				Attempts: 5,
				Backoff:  BackoffPolicy{Type: BackoffExponential, Delay: 10 * time.Second, Max: 30 * time.Minute},
				Priority: 6,
				Timeout:  30 * time.Second,
			},
			"invoice": {
				Attempts: 3,
				Backoff:  BackoffPolicy{Type: BackoffExponential, Delay: 30 * time.Second, Max: time.Hour},
				Priority: 3,
				Timeout:  2 * time.Minute,
			},
			"subscription_renewal": {
				Attempts:  5,
				Backoff:   BackoffPolicy{Type: BackoffExponential, Delay: time.Minute, Max: 6 * time.Hour},
				Priority:  5,
				Timeout:   2 * time.Minute,
				Retention: 7 * 24 * time.Hour,
			},
			"class_reminders": {
				Attempts: 3,
				Backoff:  BackoffPolicy{Type: BackoffFixed, Delay: 30 * time.Second},
				Priority: 2,
				Timeout:  30 * time.Second,
			},
		},
		Cron: []CronEntry{
			{Name: "subscription_recovery", Spec: "*/15 * * * *", Task: "subscription:recovery_sweep", Enabled: true},
			{Name: "invoice_overdue", Spec: "0 * * * *", Task: "invoice:overdue_sweep", Enabled: true},
		},
	}
}

// Policy returns the queue policy, falling back to a conservative default.
func (c JobsConfig) Policy(queue string) QueuePolicy {
	if policy, ok := c.Queues[queue]; ok {
		return policy
	}
	return QueuePolicy{
		Attempts: 3,
		Backoff:  BackoffPolicy{Type: BackoffExponential, Delay: 10 * time.Second, Max: 10 * time.Minute},
		Priority: 1,
	}
}

// RetryDelay computes the wait before the next attempt. retried is the number
// of retries already performed.
func (p QueuePolicy) RetryDelay(retried int) time.Duration {
	delay := p.Backoff.Delay
	if delay <= 0 {
		delay = time.Second
	}
	if strings.EqualFold(p.Backoff.Type, BackoffFixed) {
		return delay
	}
	if retried < 0 {
		retried = 0
	}
	for i := 0; i < retried; i++ {
		delay *= 2
		if p.Backoff.Max > 0 && delay >= p.Backoff.Max {
			return p.Backoff.Max
		}
	}
	if p.Backoff.Max > 0 && delay > p.Backoff.Max {
		return p.Backoff.Max
	}
	return delay
}

// MaxRetry converts total attempts into retries after the first run.
func (p QueuePolicy) MaxRetry() int {
	if p.Attempts <= 1 {
		return 0
	}
	return p.Attempts - 1
}

type JobsConfigHolder struct {
	current atomic.Value // holds JobsConfig
}

// NewJobsConfigHolderFrom wraps a fixed config.
func NewJobsConfigHolderFrom(cfg JobsConfig) *JobsConfigHolder {
	holder := &JobsConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewJobsConfigHolder() (*JobsConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("jobs")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/monstro")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MONSTRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		return NewJobsConfigHolderFrom(DefaultJobsConfig()), nil
	}

	cfg, err := decodeJobsConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewJobsConfigHolderFrom(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeJobsConfig(v)
		if err != nil {
			log.Printf("[jobs-config] reload ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[jobs-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// decodeJobsConfig reads the jobs key over the defaults. A queue listed in
// the file replaces its default entry wholesale when decoded, so every field
// it leaves unset is taken back from the default policy for that queue.
func decodeJobsConfig(v *viper.Viper) (JobsConfig, error) {
	cfg := DefaultJobsConfig()
	if err := v.UnmarshalKey("jobs", &cfg); err != nil {
		return JobsConfig{}, err
	}
	defaults := DefaultJobsConfig().Queues
	for name, policy := range cfg.Queues {
		if base, ok := defaults[name]; ok {
			cfg.Queues[name] = policy.withDefaults(base)
		}
	}
	if err := ValidateJobsConfig(cfg); err != nil {
		return JobsConfig{}, err
	}
	return cfg, nil
}

// withDefaults fills the zero fields of p from base.
func (p QueuePolicy) withDefaults(base QueuePolicy) QueuePolicy {
	if p.Attempts == 0 {
		p.Attempts = base.Attempts
	}
	if p.Backoff.Type == "" {
		p.Backoff.Type = base.Backoff.Type
	}
	if p.Backoff.Delay == 0 {
		p.Backoff.Delay = base.Backoff.Delay
	}
	if p.Backoff.Max == 0 {
		p.Backoff.Max = base.Backoff.Max
	}
	if p.Priority == 0 {
		p.Priority = base.Priority
	}
	if p.Timeout == 0 {
		p.Timeout = base.Timeout
	}
	if p.Retention == 0 {
		p.Retention = base.Retention
	}
	return p
}

func (h *JobsConfigHolder) Get() JobsConfig {
	if h == nil {
		return DefaultJobsConfig()
	}
	cfg, ok := h.current.Load().(JobsConfig)
	if !ok {
		return DefaultJobsConfig()
	}
	return cfg
}

func ValidateJobsConfig(cfg JobsConfig) error {
	if cfg.Concurrency <= 0 {
		return errors.New("jobs.concurrency must be positive")
	}
	for name, policy := range cfg.Queues {
		if policy.Attempts <= 0 {
			return fmt.Errorf("jobs.queues.%s.attempts must be positive", name)
		}
		switch strings.ToLower(policy.Backoff.Type) {
		case BackoffExponential, BackoffFixed:
		default:
			return fmt.Errorf("jobs.queues.%s.backoff.type %q is not supported", name, policy.Backoff.Type)
		}
	}
	for _, entry := range cfg.Cron {
		if strings.TrimSpace(entry.Task) == "" {
			return fmt.Errorf("jobs.cron.%s.task is required", entry.Name)
		}
		if _, err := cron.ParseStandard(entry.Spec); err != nil {
			return fmt.Errorf("jobs.cron.%s.spec: %w", entry.Name, err)
		}
	}
	return nil
}
