// Package seed bootstraps a demo gym for local development: an owner
// account, one location and a starter plan catalog. Every step is
// idempotent so the command can run on each boot.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	locationdomain "github.com/monstrox/monstro/internal/location/domain"
	plandomain "github.com/monstrox/monstro/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultOwnerEmail    = "owner@monstro.local"
	defaultOwnerPassword = "monstro-demo"
	defaultLocationName  = "Monstro Demo Gym"
)

type Options struct {
	OwnerEmail    string
	OwnerPassword string
	LocationName  string
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.OwnerEmail) == "" {
		o.OwnerEmail = defaultOwnerEmail
	}
	if o.OwnerPassword == "" {
		o.OwnerPassword = defaultOwnerPassword
	}
	if strings.TrimSpace(o.LocationName) == "" {
		o.LocationName = defaultLocationName
	}
	return o
}

type Result struct {
	Owner    authdomain.User
	Location locationdomain.Location
	Plans    []plandomain.Plan
}

var starterPlans = []plandomain.CreatePlanRequest{
	{Name: "Monthly Unlimited", Description: "Unlimited classes, billed monthly", Price: 9900, Interval: plandomain.IntervalMonth, IntervalCount: 1},
	{Name: "Ten Class Month", Description: "Ten classes per billing period", Price: 6900, Interval: plandomain.IntervalMonth, IntervalCount: 1, ClassLimit: intPtr(10)},
	{Name: "Annual Unlimited", Description: "Unlimited classes, billed yearly", Price: 99000, Interval: plandomain.IntervalYear, IntervalCount: 1},
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Auth      authdomain.Service
	Locations locationdomain.Service
	Plans     plandomain.Service
}

type Seeder struct {
	log       *zap.Logger
	auth      authdomain.Service
	locations locationdomain.Service
	plans     plandomain.Service
}

func New(p Params) *Seeder {
	return &Seeder{
		log:       p.Log.Named("seed"),
		auth:      p.Auth,
		locations: p.Locations,
		plans:     p.Plans,
	}
}

// EnsureDemo creates whatever part of the demo gym is missing.
func (s *Seeder) EnsureDemo(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	owner, err := s.ensureOwner(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("seed owner: %w", err)
	}

	location, err := s.ensureLocation(ctx, owner.ID.String(), opts.LocationName)
	if err != nil {
		return nil, fmt.Errorf("seed location: %w", err)
	}

	plans, err := s.ensurePlans(ctx, location.ID.String())
	if err != nil {
		return nil, fmt.Errorf("seed plans: %w", err)
	}

	s.log.Info("demo gym ready",
		zap.String("owner_email", owner.Email),
		zap.String("location_id", location.ID.String()),
		zap.String("slug", location.Slug),
		zap.Int("plans", len(plans)),
	)
	return &Result{Owner: *owner, Location: *location, Plans: plans}, nil
}

func (s *Seeder) ensureOwner(ctx context.Context, opts Options) (*authdomain.User, error) {
	registered, err := s.auth.Register(ctx, authdomain.RegisterRequest{
		Email:     opts.OwnerEmail,
		Password:  opts.OwnerPassword,
		FirstName: "Demo",
		LastName:  "Owner",
	})
	if err == nil {
		return &registered.User, nil
	}
	if !errors.Is(err, authdomain.ErrEmailTaken) {
		return nil, err
	}

	existing, err := s.auth.Login(ctx, authdomain.LoginRequest{Email: opts.OwnerEmail, Password: opts.OwnerPassword})
	if err != nil {
		return nil, err
	}
	return &existing.User, nil
}

func (s *Seeder) ensureLocation(ctx context.Context, ownerID, name string) (*locationdomain.Location, error) {
	location, err := s.locations.GetBySlug(ctx, slug.Make(name))
	if err == nil {
		return location, nil
	}
	if !errors.Is(err, locationdomain.ErrNotFound) {
		return nil, err
	}
	return s.locations.Create(ctx, ownerID, locationdomain.CreateLocationRequest{
		Name:     name,
		Email:    "front-desk@monstro.local",
		Timezone: "America/New_York",
		Currency: "USD",
	})
}

func (s *Seeder) ensurePlans(ctx context.Context, locationID string) ([]plandomain.Plan, error) {
	existing, err := s.plans.List(ctx, locationID, "all")
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	created := make([]plandomain.Plan, 0, len(starterPlans))
	for _, req := range starterPlans {
		plan, err := s.plans.Create(ctx, locationID, req)
		if err != nil {
			return nil, err
		}
		created = append(created, *plan)
	}
	return created, nil
}

func intPtr(v int) *int { return &v }
