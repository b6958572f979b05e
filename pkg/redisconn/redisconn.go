// Package redisconn owns the shared Redis client used for rate limits,
// locks, chatbot sessions and realtime pub/sub.
package redisconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/monstrox/monstro/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(New),
	fx.Provide(AsynqOpt),
)

func options(cfg config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:         strings.TrimSpace(cfg.Addr),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// New builds the client and pings it on start so a bad address fails boot.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(options(cfg.Redis))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping failed: %w", err)
			}
			log.Info("redis connected", zap.String("addr", cfg.Redis.Addr), zap.Bool("tls", cfg.Redis.TLS))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

// AsynqOpt reuses the Redis settings for the job queue connection.
func AsynqOpt(cfg config.Config) asynq.RedisClientOpt {
	opt := asynq.RedisClientOpt{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	if cfg.Redis.TLS {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opt
}
