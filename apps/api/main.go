package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/achievement"
	"github.com/monstrox/monstro/internal/audit"
	"github.com/monstrox/monstro/internal/auth"
	"github.com/monstrox/monstro/internal/authorization"
	"github.com/monstrox/monstro/internal/class"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/config"
	"github.com/monstrox/monstro/internal/email"
	"github.com/monstrox/monstro/internal/invoice"
	"github.com/monstrox/monstro/internal/location"
	"github.com/monstrox/monstro/internal/member"
	"github.com/monstrox/monstro/internal/notification"
	"github.com/monstrox/monstro/internal/observability"
	"github.com/monstrox/monstro/internal/payment"
	"github.com/monstrox/monstro/internal/plan"
	"github.com/monstrox/monstro/internal/providers"
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/internal/ratelimit"
	"github.com/monstrox/monstro/internal/realtime"
	"github.com/monstrox/monstro/internal/server"
	"github.com/monstrox/monstro/internal/social"
	"github.com/monstrox/monstro/internal/subscription"
	"github.com/monstrox/monstro/internal/support"
	"github.com/monstrox/monstro/pkg/db"
	"github.com/monstrox/monstro/pkg/redisconn"
	"go.uber.org/fx"
)

// The API process serves HTTP and SSE. Schema migrations and background jobs
// run elsewhere.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisconn.Module,
		clock.Module,
		queue.Module,
		realtime.Module,
		realtime.RelayModule,
		ratelimit.Module,
		providers.Module,
		email.Module,
		notification.Module,

		auth.Module,
		authorization.Module,
		audit.Module,
		location.Module,
		member.Module,
		plan.Module,
		subscription.Module,
		invoice.Module,
		payment.Module,
		class.Module,
		achievement.Module,
		social.Module,
		support.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
