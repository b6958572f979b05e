// Command monstro runs the API, the realtime relay and the job worker in one
// process.
//
//	monstro                                 serve everything
//	monstro service-token [-ttl d] <subj>   print a service-role token
//	monstro seed [-email e] [-password p]   create the demo gym
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/achievement"
	"github.com/monstrox/monstro/internal/audit"
	"github.com/monstrox/monstro/internal/auth"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	"github.com/monstrox/monstro/internal/authorization"
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
	"github.com/monstrox/monstro/internal/payment"
	"github.com/monstrox/monstro/internal/plan"
	"github.com/monstrox/monstro/internal/providers"
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/internal/ratelimit"
	"github.com/monstrox/monstro/internal/realtime"
	"github.com/monstrox/monstro/internal/scheduler"
	"github.com/monstrox/monstro/internal/seed"
	"github.com/monstrox/monstro/internal/server"
	"github.com/monstrox/monstro/internal/social"
	"github.com/monstrox/monstro/internal/subscription"
	"github.com/monstrox/monstro/internal/support"
	"github.com/monstrox/monstro/pkg/db"
	"github.com/monstrox/monstro/pkg/redisconn"
	"go.uber.org/fx"
)

func main() {
	if len(os.Args) > 1 {
		var err error
		switch os.Args[1] {
		case "service-token":
			err = issueServiceToken(os.Args[2:])
		case "seed":
			err = seedDemo(os.Args[2:])
		default:
			err = fmt.Errorf("unknown command %q", os.Args[1])
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
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

		// Domains
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

		// Runtimes
		server.Module,
		realtime.RelayModule,
		queue.WorkerModule,
		scheduler.WorkerModule,
		email.WorkerModule,
		invoice.WorkerModule,
		subscription.WorkerModule,
		class.WorkerModule,
	)
	app.Run()
}

func issueServiceToken(args []string) error {
	fs := flag.NewFlagSet("service-token", flag.ContinueOnError)
	ttl := fs.Duration("ttl", 0, "token lifetime, defaults to AUTH_SERVICE_TOKEN_TTL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: monstro service-token [-ttl 720h] <subject>")
	}
	subject := fs.Arg(0)

	var authSvc authdomain.Service
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisconn.Module,
		clock.Module,
		queue.Module,
		providers.Module,
		email.Module,
		auth.Module,
		fx.Populate(&authSvc),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Stop(context.Background())

	tok, err := authSvc.IssueServiceToken(ctx, subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Printf("%s\nexpires_at=%s\n", tok.Token, tok.ExpiresAt.Format(time.RFC3339))
	return nil
}

func seedDemo(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	var opts seed.Options
	fs.StringVar(&opts.OwnerEmail, "email", "", "owner account email")
	fs.StringVar(&opts.OwnerPassword, "password", os.Getenv("SEED_OWNER_PASSWORD"), "owner account password")
	fs.StringVar(&opts.LocationName, "location", "", "demo location name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var seeder *seed.Seeder
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		redisconn.Module,
		clock.Module,
		migration.Module,
		queue.Module,
		providers.Module,
		email.Module,
		audit.Module,
		auth.Module,
		location.Module,
		member.Module,
		plan.Module,
		fx.Provide(seed.New),
		fx.Populate(&seeder),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer app.Stop(context.Background())

	result, err := seeder.EnsureDemo(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Printf("owner=%s location_id=%s slug=%s plans=%d\n",
		result.Owner.Email, result.Location.ID, result.Location.Slug, len(result.Plans))
	return nil
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
