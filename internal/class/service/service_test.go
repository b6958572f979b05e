package service_test

import (
	"context"
	"testing"
	"time"

	achievementdomain "github.com/monstrox/monstro/internal/achievement/domain"
	"github.com/monstrox/monstro/internal/class/domain"
	"github.com/monstrox/monstro/internal/class/service"
	"github.com/monstrox/monstro/internal/email"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/internal/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionValidates(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	ctx := context.Background()
	start := env.Clock.Now().Add(24 * time.Hour)

	_, err := env.Classes.CreateSession(ctx, loc.ID.String(), domain.CreateSessionRequest{Name: "Yoga", StartsAt: start, EndsAt: start, Capacity: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)
	_, err = env.Classes.CreateSession(ctx, loc.ID.String(), domain.CreateSessionRequest{Name: "Yoga", StartsAt: start, EndsAt: start.Add(time.Hour)})
	assert.ErrorIs(t, err, domain.ErrInvalidCapacity)
	_, err = env.Classes.CreateSession(ctx, loc.ID.String(), domain.CreateSessionRequest{StartsAt: start, EndsAt: start.Add(time.Hour), Capacity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestListUpcomingSkipsPastAndCanceled(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	ctx := context.Background()

	tomorrow := env.Session(t, loc, "Spin", 24*time.Hour, 10)
	later := env.Session(t, loc, "Boxing", 48*time.Hour, 10)
	dropped := env.Session(t, loc, "Pilates", 36*time.Hour, 10)
	_, err := env.Classes.CancelSession(ctx, dropped.ID.String())
	require.NoError(t, err)

	sessions, err := env.Classes.ListUpcoming(ctx, loc.ID.String(), domain.ListUpcomingRequest{})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, tomorrow.ID, sessions[0].ID)
	assert.Equal(t, later.ID, sessions[1].ID)

	env.Clock.Advance(30 * time.Hour)
	sessions, err = env.Classes.ListUpcoming(ctx, loc.ID.String(), domain.ListUpcomingRequest{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, later.ID, sessions[0].ID)
}

func TestReserveEnforcesCapacityAndDuplicates(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	nina := env.Member(t, loc, 100, "Nina")
	omar := env.Member(t, loc, 200, "Omar")
	session := env.Session(t, loc, "Spin", 24*time.Hour, 1)
	ctx := context.Background()

	reservation, err := env.Classes.Reserve(ctx, session.ID.String(), nina.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, reservation.Status)

	_, err = env.Classes.Reserve(ctx, session.ID.String(), nina.ID.String())
	assert.ErrorIs(t, err, domain.ErrAlreadyReserved)
	_, err = env.Classes.Reserve(ctx, session.ID.String(), omar.ID.String())
	assert.ErrorIs(t, err, domain.ErrSessionFull)

	// a cancellation frees the spot
	_, err = env.Classes.CancelReservation(ctx, reservation.ID.String())
	require.NoError(t, err)
	_, err = env.Classes.Reserve(ctx, session.ID.String(), omar.ID.String())
	require.NoError(t, err)

	got, err := env.Classes.GetSession(ctx, session.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, got.Reserved)
	assert.Equal(t, 0, got.SpotsLeft())
}

func TestReserveRequiresActiveMembership(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	outsider := env.Member(t, nil, 300, "Lee")
	session := env.Session(t, loc, "Spin", 24*time.Hour, 5)

	_, err := env.Classes.Reserve(context.Background(), session.ID.String(), outsider.ID.String())
	assert.ErrorIs(t, err, memberdomain.ErrNotMember)
}

func TestReserveRejectsStartedSession(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	member := env.Member(t, loc, 100, "Nina")
	session := env.Session(t, loc, "Spin", time.Hour, 5)

	env.Clock.Advance(2 * time.Hour)
	_, err := env.Classes.Reserve(context.Background(), session.ID.String(), member.ID.String())
	assert.ErrorIs(t, err, domain.ErrSessionStarted)
}

func TestReminderScheduledAndRemoved(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	member := env.Member(t, loc, 100, "Nina")
	session := env.Session(t, loc, "Spin", 24*time.Hour, 5)
	ctx := context.Background()

	reservation, err := env.Classes.Reserve(ctx, session.ID.String(), member.ID.String())
	require.NoError(t, err)

	reminders := env.Queue.Tasks(queue.TypeClassReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, queue.ReminderTaskID(reservation.ID.String()), reminders[0].ID)
	assert.WithinDuration(t, session.StartsAt.Add(-time.Hour), reminders[0].At, 0)

	_, err = env.Classes.CancelReservation(ctx, reservation.ID.String())
	require.NoError(t, err)
	assert.Empty(t, env.Queue.Tasks(queue.TypeClassReminder))
	assert.Equal(t, []string{reminders[0].ID}, env.Queue.Removed())

	_, err = env.Classes.CancelReservation(ctx, reservation.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotConfirmed)
}

func TestNoReminderInsideLeadTime(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	member := env.Member(t, loc, 100, "Nina")
	session := env.Session(t, loc, "Spin", 30*time.Minute, 5)

	_, err := env.Classes.Reserve(context.Background(), session.ID.String(), member.ID.String())
	require.NoError(t, err)
	assert.Empty(t, env.Queue.Tasks(queue.TypeClassReminder))
}

func TestCancelSessionCancelsReservations(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	session := env.Session(t, loc, "Spin", 24*time.Hour, 5)
	ctx := context.Background()

	for i, name := range []string{"Nina", "Omar"} {
		member := env.Member(t, loc, int64(100+i), name)
		_, err := env.Classes.Reserve(ctx, session.ID.String(), member.ID.String())
		require.NoError(t, err)
	}

	canceled, err := env.Classes.CancelSession(ctx, session.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCanceled, canceled.Status)
	assert.Equal(t, 0, canceled.Reserved)

	reservations, err := env.Classes.ListSessionReservations(ctx, session.ID.String())
	require.NoError(t, err)
	require.Len(t, reservations, 2)
	for _, r := range reservations {
		assert.Equal(t, domain.ReservationCanceled, r.Status)
	}
	assert.Len(t, env.Queue.Removed(), 2)
	assert.Empty(t, env.Queue.Tasks(queue.TypeClassReminder))
}

func TestCheckInEvaluatesAchievements(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	member := env.Member(t, loc, 100, "Nina")
	session := env.Session(t, loc, "Spin", 24*time.Hour, 5)
	ctx := context.Background()

	_, err := env.Achievements.Create(ctx, loc.ID.String(), achievementdomain.CreateAchievementRequest{
		Name: "First class", Trigger: achievementdomain.TriggerCheckInCount, Requirement: 1, Points: 10,
	})
	require.NoError(t, err)

	reservation, err := env.Classes.Reserve(ctx, session.ID.String(), member.ID.String())
	require.NoError(t, err)
	checkedIn, err := env.Classes.CheckIn(ctx, reservation.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationAttended, checkedIn.Status)
	require.NotNil(t, checkedIn.CheckedInAt)

	membership, err := env.Members.GetMembership(ctx, loc.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), membership.Points)

	_, err = env.Classes.CheckIn(ctx, reservation.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotConfirmed)

	schedule, err := env.Classes.ListMemberReservations(ctx, member.ID.String())
	require.NoError(t, err)
	require.Len(t, schedule, 1)
	assert.Equal(t, "Spin", schedule[0].Session.Name)
}

func TestReminderHandlerEmailsMember(t *testing.T) {
	env := testkit.New(t)
	loc := env.Location(t, "Gym")
	member := env.Member(t, loc, 100, "Nina")
	session := env.Session(t, loc, "Spin", 24*time.Hour, 5)
	ctx := context.Background()

	_, err := env.Classes.Reserve(ctx, session.ID.String(), member.ID.String())
	require.NoError(t, err)
	reminders := env.Queue.Tasks(queue.TypeClassReminder)
	require.Len(t, reminders, 1)

	handler := service.NewReminderHandler(service.ReminderHandlerParams{
		Classes:   env.Classes,
		Locations: env.Locations,
		Members:   env.Members,
		Emails:    env.Emails,
		Notifier:  env.Notifications,
		Log:       env.Log,
	})
	require.NoError(t, handler.Handler.ProcessTask(ctx, reminders[0].Asynq()))

	emails := env.Queue.Tasks(queue.TypeEmailSend)
	require.Len(t, emails, 1)
	var payload queue.EmailPayload
	require.NoError(t, emails[0].Decode(&payload))
	assert.Equal(t, email.TemplateClassReminder, payload.Template)
	assert.Equal(t, "Spin", payload.Data["class_name"])
	assert.Equal(t, "Coach Kim", payload.Data["instructor"])
	require.Len(t, env.Notifications.Sent(), 1)

	_, err = env.Renderer.Render(payload.Template, payload.Data)
	require.NoError(t, err)
}
