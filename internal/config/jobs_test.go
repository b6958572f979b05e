package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDelayExponential(t *testing.T) {
	policy := QueuePolicy{
		Attempts: 5,
		Backoff:  BackoffPolicy{Type: BackoffExponential, Delay: time.Second, Max: 10 * time.Second},
	}

	assert.Equal(t, time.Second, policy.RetryDelay(0))
	assert.Equal(t, 2*time.Second, policy.RetryDelay(1))
	assert.Equal(t, 8*time.Second, policy.RetryDelay(3))
	assert.Equal(t, 10*time.Second, policy.RetryDelay(4))
	assert.Equal(t, 10*time.Second, policy.RetryDelay(40))
}

func TestRetryDelayFixed(t *testing.T) {
	policy := QueuePolicy{Backoff: BackoffPolicy{Type: BackoffFixed, Delay: 30 * time.Second}}
	assert.Equal(t, 30*time.Second, policy.RetryDelay(0))
	assert.Equal(t, 30*time.Second, policy.RetryDelay(7))
}

func TestMaxRetryFromAttempts(t *testing.T) {
	assert.Equal(t, 0, QueuePolicy{Attempts: 1}.MaxRetry())
	assert.Equal(t, 4, QueuePolicy{Attempts: 5}.MaxRetry())
}

func TestValidateJobsConfig(t *testing.T) {
	require.NoError(t, ValidateJobsConfig(DefaultJobsConfig()))

	bad := DefaultJobsConfig()
	bad.Cron = append(bad.Cron, CronEntry{Name: "broken", Spec: "not a cron", Task: "x"})
	assert.Error(t, ValidateJobsConfig(bad))

	bad = DefaultJobsConfig()
	bad.Queues["email"] = QueuePolicy{Attempts: 3, Backoff: BackoffPolicy{Type: "linear"}}
	assert.Error(t, ValidateJobsConfig(bad))
}

func TestHolderFallsBackToDefaults(t *testing.T) {
	var holder *JobsConfigHolder
	assert.Equal(t, 10, holder.Get().Concurrency)

	custom := DefaultJobsConfig()
	custom.Concurrency = 3
	assert.Equal(t, 3, NewJobsConfigHolderFrom(custom).Get().Concurrency)
}

func TestPartialQueueOverrideKeepsDefaults(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
jobs:
  concurrency: 4
  queues:
    email:
      attempts: 2
    subscription_renewal:
      backoff:
        delay: 5m
    walk_ins:
      attempts: 2
      backoff:
        type: fixed
        delay: 1m
`)))

	cfg, err := decodeJobsConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Concurrency)

	email := cfg.Queues["email"]
	assert.Equal(t, 2, email.Attempts)
	assert.Equal(t, BackoffExponential, email.Backoff.Type)
	assert.Equal(t, 10*time.Second, email.Backoff.Delay)
	assert.Equal(t, 6, email.Priority)
	assert.Equal(t, 30*time.Second, email.Timeout)

	renewal := cfg.Queues["subscription_renewal"]
	assert.Equal(t, 5*time.Minute, renewal.Backoff.Delay)
	assert.Equal(t, 6*time.Hour, renewal.Backoff.Max)
	assert.Equal(t, 5, renewal.Attempts)
	assert.Equal(t, 7*24*time.Hour, renewal.Retention)

	assert.Equal(t, DefaultJobsConfig().Queues["invoice"], cfg.Queues["invoice"])
	assert.Equal(t, QueuePolicy{Attempts: 2, Backoff: BackoffPolicy{Type: BackoffFixed, Delay: time.Minute}}, cfg.Queues["walk_ins"])
}

func TestQueueOverrideWithoutAttemptsOrBackoffStillValidates(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yml")
	require.NoError(t, v.ReadConfig(strings.NewReader("jobs:\n  queues:\n    invoice:\n      priority: 9\n")))

	cfg, err := decodeJobsConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Queues["invoice"].Priority)
	assert.Equal(t, 3, cfg.Queues["invoice"].Attempts)
}
