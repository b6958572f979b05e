package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/achievement"
	"github.com/monstrox/monstro/internal/audit"
	"github.com/monstrox/monstro/internal/class"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/config"
	"github.com/monstrox/monstro/internal/email"
	"github.com/monstrox/monstro/internal/invoice"
	"github.com/monstrox/monstro/internal/location"
	"github.com/monstrox/monstro/internal/member"
	"github.com/monstrox/monstro/internal/migration"
	"github.com/monstrox/monstro/internal/notification"
	"github.com/monstrox/monstro/internal/observability"
	obsmetrics "github.com/monstrox/monstro/internal/observability/metrics"
	"github.com/monstrox/monstro/internal/payment"
	"github.com/monstrox/monstro/internal/plan"
	"github.com/monstrox/monstro/internal/providers"
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/internal/ratelimit"
	"github.com/monstrox/monstro/internal/realtime"
	"github.com/monstrox/monstro/internal/scheduler"
	"github.com/monstrox/monstro/internal/subscription"
	"github.com/monstrox/monstro/pkg/db"
	"github.com/monstrox/monstro/pkg/redisconn"
	"go.uber.org/fx"
)

// The worker applies migrations on start, then consumes the asynq queues and
// registers the cron entries. No HTTP server; metrics are pushed when
// METRICS_PUSH_EXPORTER is set.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		obsmetrics.PushModule,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisconn.Module,
		clock.Module,
		migration.Module,
		queue.Module,
		realtime.Module,
		ratelimit.Module,
		providers.Module,
		email.Module,
		notification.Module,

		audit.Module,
		location.Module,
		member.Module,
		plan.Module,
		subscription.Module,
		invoice.Module,
		payment.Module,
		class.Module,
		achievement.Module,

		queue.WorkerModule,
		scheduler.WorkerModule,
		email.WorkerModule,
		invoice.WorkerModule,
		subscription.WorkerModule,
		class.WorkerModule,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
