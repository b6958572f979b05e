// Package testkit wires the domain services over one in-memory database for
// cross-package service tests.
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	achievementdomain "github.com/monstrox/monstro/internal/achievement/domain"
	achievementrepo "github.com/monstrox/monstro/internal/achievement/repository"
	achievementsvc "github.com/monstrox/monstro/internal/achievement/service"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	auditrepo "github.com/monstrox/monstro/internal/audit/repository"
	auditsvc "github.com/monstrox/monstro/internal/audit/service"
	classdomain "github.com/monstrox/monstro/internal/class/domain"
	classrepo "github.com/monstrox/monstro/internal/class/repository"
	classsvc "github.com/monstrox/monstro/internal/class/service"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/config"
	"github.com/monstrox/monstro/internal/email"
	invoicedomain "github.com/monstrox/monstro/internal/invoice/domain"
	invoicerepo "github.com/monstrox/monstro/internal/invoice/repository"
	invoicesvc "github.com/monstrox/monstro/internal/invoice/service"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	locationrepo "github.com/monstrox/monstro/internal/location/repository"
	locationsvc "github.com/monstrox/monstro/internal/location/service"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	memberrepo "github.com/monstrox/monstro/internal/member/repository"
	membersvc "github.com/monstrox/monstro/internal/member/service"
	plandomain "github.com/monstrox/monstro/internal/plan/domain"
	planrepo "github.com/monstrox/monstro/internal/plan/repository"
	plansvc "github.com/monstrox/monstro/internal/plan/service"
	"github.com/monstrox/monstro/internal/providers/pdf"
	"github.com/monstrox/monstro/internal/queue/queuetest"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
	subscriptionrepo "github.com/monstrox/monstro/internal/subscription/repository"
	subscriptionsvc "github.com/monstrox/monstro/internal/subscription/service"
	"github.com/monstrox/monstro/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// Epoch is the fake clock's starting instant.
var Epoch = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

// Env is a set of real services sharing one database, clock and queue recorder.
type Env struct {
	DB     *gorm.DB
	Clock  *clock.FakeClock
	GenID  *snowflake.Node
	Queue  *queuetest.Recorder
	Log    *zap.Logger
	Config config.Config

	Emails    email.Dispatcher
	Renderer  *email.Renderer
	Audit     auditdomain.Service
	Locations locationdomain.Service
	Members   memberdomain.Service
	Plans     plandomain.Service
	Invoices  invoicedomain.Service

	Notifications *Notifications
	Charger       *Charger
	Achievements  achievementdomain.Service
	Subscriptions subscriptiondomain.Service
	Classes       classdomain.Service
}

// Models lists every table the core services need.
func Models() []any {
	return []any{
		&authdomain.User{},
		&auditdomain.AuditLog{},
		&locationdomain.Location{}, &locationdomain.LocationStaff{},
		&memberdomain.Member{}, &memberdomain.MemberLocation{}, &memberdomain.PushToken{},
		&plandomain.Plan{},
		&invoicedomain.Invoice{}, &invoicedomain.InvoiceItem{},
		&achievementdomain.Achievement{}, &achievementdomain.MemberAchievement{},
		&subscriptiondomain.Subscription{},
		&classdomain.ClassSession{}, &classdomain.Reservation{},
	}
}

func New(t *testing.T, extraModels ...any) *Env {
	t.Helper()

	conn := dbtest.New(t, append(Models(), extraModels...)...)
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	renderer, err := email.NewRenderer()
	require.NoError(t, err)

	env := &Env{
		DB:    conn,
		Clock: clock.NewFakeClock(Epoch),
		GenID: node,
		Queue: queuetest.NewRecorder(),
		Log:   zaptest.NewLogger(t),
		Config: config.Config{
			AppURL: "https://app.test",
			Subscription: config.SubscriptionConfig{
				RenewalGrace:      15 * time.Minute,
				UncollectibleDays: 14,
				InvoiceDueDays:    3,
			},
			Class: config.ClassConfig{ReminderLead: time.Hour},
		},
		Renderer:      renderer,
		Notifications: &Notifications{},
		Charger:       &Charger{},
	}
	env.Emails = email.NewDispatcher(email.DispatcherParams{Queue: env.Queue, Renderer: renderer, Log: env.Log})
	env.Audit = auditsvc.NewService(auditsvc.Params{DB: conn, Log: env.Log, GenID: node, Clock: env.Clock, Repo: auditrepo.Provide()})
	env.Locations = locationsvc.New(locationsvc.Params{
		DB: conn, Log: env.Log, GenID: node, Clock: env.Clock, Repo: locationrepo.Provide(), AuditSvc: env.Audit,
	})
	env.Members = membersvc.New(membersvc.Params{
		DB: conn, Log: env.Log, GenID: node, Clock: env.Clock, Repo: memberrepo.Provide(), Locations: env.Locations,
	})
	env.Plans = plansvc.New(plansvc.Params{
		DB: conn, Log: env.Log, GenID: node, Clock: env.Clock, Repo: planrepo.Provide(), Locations: env.Locations, AuditSvc: env.Audit,
	})
	env.Invoices = invoicesvc.New(invoicesvc.Params{
		DB: conn, Log: env.Log, GenID: node, Clock: env.Clock, Config: env.Config, Repo: invoicerepo.Provide(),
		Locations: env.Locations, Members: env.Members, PDF: pdf.New(), Queue: env.Queue, AuditSvc: env.Audit,
	})
	env.Achievements = achievementsvc.New(achievementsvc.Params{
		DB: conn, Log: env.Log, GenID: node, Clock: env.Clock, Repo: achievementrepo.Provide(),
		Locations: env.Locations, Members: env.Members, Notifier: env.Notifications,
	})
	env.Subscriptions = subscriptionsvc.New(subscriptionsvc.Params{
		DB: conn, Log: env.Log, GenID: node, Clock: env.Clock, Repo: subscriptionrepo.Provide(),
		Locations: env.Locations, Members: env.Members, Plans: env.Plans, Invoices: env.Invoices,
		Queue: env.Queue, Emails: env.Emails, Charger: env.Charger, Achievements: env.Achievements, AuditSvc: env.Audit,
	})
	env.Classes = classsvc.New(classsvc.Params{
		DB: conn, Log: env.Log, GenID: node, Clock: env.Clock, Config: env.Config, Repo: classrepo.Provide(),
		Locations: env.Locations, Members: env.Members, Queue: env.Queue, Achievements: env.Achievements, AuditSvc: env.Audit,
	})
	return env
}

// Location creates an active location owned by user 1.
func (e *Env) Location(t *testing.T, name string) *locationdomain.Location {
	t.Helper()
	loc, err := e.Locations.Create(context.Background(), "1", locationdomain.CreateLocationRequest{Name: name, Email: "front@gym.test"})
	require.NoError(t, err)
	return loc
}

// Member creates a member with a login and joins them to loc.
func (e *Env) Member(t *testing.T, loc *locationdomain.Location, userID int64, firstName string) *memberdomain.Member {
	t.Helper()
	ctx := context.Background()
	member, err := e.Members.CreateForUser(ctx, authUser(userID, firstName))
	require.NoError(t, err)
	if loc != nil {
		_, err = e.Members.JoinLocation(ctx, member.ID.String(), loc.ID.String())
		require.NoError(t, err)
	}
	return member
}

// Plan creates a monthly plan at loc.
func (e *Env) Plan(t *testing.T, loc *locationdomain.Location, name string, price int64) *plandomain.Plan {
	t.Helper()
	plan, err := e.Plans.Create(context.Background(), loc.ID.String(), plandomain.CreatePlanRequest{Name: name, Price: price})
	require.NoError(t, err)
	return plan
}

// Session schedules a one-hour class starting `in` after the clock's now.
func (e *Env) Session(t *testing.T, loc *locationdomain.Location, name string, in time.Duration, capacity int) *classdomain.ClassSession {
	t.Helper()
	start := e.Clock.Now().Add(in)
	session, err := e.Classes.CreateSession(context.Background(), loc.ID.String(), classdomain.CreateSessionRequest{
		Name:       name,
		Instructor: "Coach Kim",
		StartsAt:   start,
		EndsAt:     start.Add(time.Hour),
		Capacity:   capacity,
	})
	require.NoError(t, err)
	return session
}
