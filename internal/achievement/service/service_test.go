package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/achievement/domain"
	"github.com/monstrox/monstro/internal/achievement/repository"
	"github.com/monstrox/monstro/internal/achievement/service"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
	"github.com/monstrox/monstro/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreateValidates(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	ctx := context.Background()

	_, err := env.Achievements.Create(ctx, loc.ID.String(), domain.CreateAchievementRequest{Name: "x", Trigger: "steps", Requirement: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidTrigger)
	_, err = env.Achievements.Create(ctx, loc.ID.String(), domain.CreateAchievementRequest{Name: "x", Trigger: domain.TriggerPointsTotal})
	assert.ErrorIs(t, err, domain.ErrInvalidRequirement)
	_, err = env.Achievements.Create(ctx, loc.ID.String(), domain.CreateAchievementRequest{Trigger: domain.TriggerPointsTotal, Requirement: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	created, err := env.Achievements.Create(ctx, loc.ID.String(), domain.CreateAchievementRequest{
		Name: " Centurion ", Trigger: "CHECK_IN_COUNT", Requirement: 100, Points: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, "Centurion", created.Name)
	assert.Equal(t, domain.TriggerCheckInCount, created.Trigger)
}

func TestEvaluateCompletesOnceAndChainsPoints(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	member := env.Member(t, loc, 100, "Nina")
	plan := env.Plan(t, loc, "Monthly", 5000)
	ctx := context.Background()

	signup, err := env.Achievements.Create(ctx, loc.ID.String(), domain.CreateAchievementRequest{
		Name: "Signed up", Trigger: domain.TriggerPlanSignup, Requirement: 1, Points: 100,
	})
	require.NoError(t, err)
	hundred, err := env.Achievements.Create(ctx, loc.ID.String(), domain.CreateAchievementRequest{
		Name: "Hundred club", Trigger: domain.TriggerPointsTotal, Requirement: 100, Points: 25,
	})
	require.NoError(t, err)

	// creating the subscription runs the plan_signup evaluation itself
	_, err = env.Subscriptions.Create(ctx, loc.ID.String(), subscriptiondomain.CreateSubscriptionRequest{
		MemberID: member.ID.String(), PlanID: plan.ID.String(),
	})
	require.NoError(t, err)

	membership, err := env.Members.GetMembership(ctx, loc.ID, member.ID)
	require.NoError(t, err)
	// 100 for signing up, then 25 from the points_total pass it unlocked
	assert.Equal(t, int64(125), membership.Points)
	assert.Len(t, env.Notifications.Sent(), 2)

	// running it again awards nothing
	completed, err := env.Achievements.Evaluate(ctx, loc.ID, member.ID, domain.TriggerPlanSignup)
	require.NoError(t, err)
	assert.Empty(t, completed)
	membership, err = env.Members.GetMembership(ctx, loc.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(125), membership.Points)

	progress, err := env.Achievements.ListForMember(ctx, loc.ID.String(), member.ID.String())
	require.NoError(t, err)
	require.Len(t, progress, 2)
	byID := map[string]domain.MemberProgress{}
	for _, p := range progress {
		byID[p.ID.String()] = p
	}
	assert.NotNil(t, byID[signup.ID.String()].CompletedAt)
	assert.Equal(t, int64(100), byID[hundred.ID.String()].Progress)
}

func TestEvaluateTracksPartialProgress(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	member := env.Member(t, loc, 100, "Nina")
	ctx := context.Background()

	_, err := env.Achievements.Create(ctx, loc.ID.String(), domain.CreateAchievementRequest{
		Name: "Big spender", Trigger: domain.TriggerPointsTotal, Requirement: 300, Points: 10,
	})
	require.NoError(t, err)

	_, err = env.Members.AddPoints(ctx, loc.ID, member.ID, 120)
	require.NoError(t, err)
	completed, err := env.Achievements.Evaluate(ctx, loc.ID, member.ID, domain.TriggerPointsTotal)
	require.NoError(t, err)
	assert.Empty(t, completed)

	progress, err := env.Achievements.ListForMember(ctx, loc.ID.String(), member.ID.String())
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, int64(120), progress[0].Progress)
	assert.Nil(t, progress[0].CompletedAt)

	_, err = env.Members.AddPoints(ctx, loc.ID, member.ID, 500)
	require.NoError(t, err)
	completed, err = env.Achievements.Evaluate(ctx, loc.ID, member.ID, domain.TriggerPointsTotal)
	require.NoError(t, err)
	require.Len(t, completed, 1)

	progress, err = env.Achievements.ListForMember(ctx, loc.ID.String(), member.ID.String())
	require.NoError(t, err)
	// progress is capped at the requirement
	assert.Equal(t, int64(300), progress[0].Progress)
}

func TestArchiveHidesFromList(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	ctx := context.Background()

	a, err := env.Achievements.Create(ctx, loc.ID.String(), domain.CreateAchievementRequest{
		Name: "Regular", Trigger: domain.TriggerReservationCount, Requirement: 5,
	})
	require.NoError(t, err)
	_, err = env.Achievements.Archive(ctx, a.ID.String())
	require.NoError(t, err)

	active, err := env.Achievements.List(ctx, loc.ID.String(), "")
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := env.Achievements.List(ctx, loc.ID.String(), "all")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// failingCredit fails the first points credit after the completion row has
// been stamped in the same transaction.
type failingCredit struct {
	domain.Repository
	failures int
}

func (r *failingCredit) AwardPoints(ctx context.Context, db *gorm.DB, locationID, memberID snowflake.ID, points int64) (int64, error) {
	if r.failures > 0 {
		r.failures--
		return 0, errors.New("connection reset")
	}
	return r.Repository.AwardPoints(ctx, db, locationID, memberID, points)
}

func TestEvaluateRetriesPointsAfterFailedCredit(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	member := env.Member(t, loc, 100, "Nina")
	ctx := context.Background()

	_, err := env.Members.AddPoints(ctx, loc.ID, member.ID, 50)
	require.NoError(t, err)
	fifty, err := env.Achievements.Create(ctx, loc.ID.String(), domain.CreateAchievementRequest{
		Name: "Fifty", Trigger: domain.TriggerPointsTotal, Requirement: 50, Points: 10,
	})
	require.NoError(t, err)

	svc := service.New(service.Params{
		DB:        env.DB,
		Log:       env.Log,
		GenID:     env.GenID,
		Clock:     env.Clock,
		Repo:      &failingCredit{Repository: repository.Provide(), failures: 1},
		Locations: env.Locations,
		Members:   env.Members,
	})

	_, err = svc.Evaluate(ctx, loc.ID, member.ID, domain.TriggerPointsTotal)
	require.Error(t, err)

	membership, err := env.Members.GetMembership(ctx, loc.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), membership.Points)
	progress, err := svc.ListForMember(ctx, loc.ID.String(), member.ID.String())
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Nil(t, progress[0].CompletedAt, "completion rolls back with the failed credit")

	completed, err := svc.Evaluate(ctx, loc.ID, member.ID, domain.TriggerPointsTotal)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, fifty.ID, completed[0].ID)

	membership, err = env.Members.GetMembership(ctx, loc.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), membership.Points)
}
