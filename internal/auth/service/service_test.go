package service

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/monstrox/monstro/internal/auth/domain"
	"github.com/monstrox/monstro/internal/auth/repository"
	"github.com/monstrox/monstro/internal/auth/token"
	"github.com/monstrox/monstro/internal/clock"
	"github.com/monstrox/monstro/internal/config"
	"github.com/monstrox/monstro/internal/email"
	"github.com/monstrox/monstro/internal/queue"
	"github.com/monstrox/monstro/internal/queue/queuetest"
	"github.com/monstrox/monstro/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type provisioner struct {
	users []domain.User
}

func (p *provisioner) ProvisionForUser(_ context.Context, _ *gorm.DB, user domain.User) error {
	p.users = append(p.users, user)
	return nil
}

type fixture struct {
	svc     domain.Service
	queue   *queuetest.Recorder
	members *provisioner
	clock   *clock.FakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	cfg := config.Config{
		AppURL: "https://app.test",
		Auth: config.AuthConfig{
			JWTSecret:       "secret",
			Issuer:          "monstro",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
			ResetTokenTTL:   time.Hour,
			ServiceTokenTTL: time.Hour,
		},
	}
	clk := clock.NewFakeClock(time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	tokens, err := token.NewManager(cfg, clk, log)
	require.NoError(t, err)
	renderer, err := email.NewRenderer()
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	rec := queuetest.NewRecorder()
	members := &provisioner{}
	svc := New(Params{
		DB:      dbtest.New(t, &domain.User{}),
		Log:     log,
		GenID:   node,
		Config:  cfg,
		Clock:   clk,
		Repo:    repository.Provide(),
		Tokens:  tokens,
		Emails:  email.NewDispatcher(email.DispatcherParams{Queue: rec, Renderer: renderer, Log: log}),
		Members: members,
	})
	return fixture{svc: svc, queue: rec, members: members, clock: clk}
}

func register(t *testing.T, f fixture, addr string) *domain.AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), domain.RegisterRequest{
		Email:     addr,
		Password:  "correct-horse",
		FirstName: "Alex",
		LastName:  "Rivera",
	})
	require.NoError(t, err)
	return res
}

func TestRegisterCreatesUserMemberAndWelcomeEmail(t *testing.T) {
	f := newFixture(t)
	res := register(t, f, "  Alex@Example.COM ")

	assert.Equal(t, "alex@example.com", res.User.Email)
	assert.Equal(t, domain.RoleUser, res.User.Role)
	assert.NotEmpty(t, res.Tokens.AccessToken)
	assert.True(t, strings.HasPrefix(res.User.PasswordHash, "$argon2id$v=19$"))

	require.Len(t, f.members.users, 1)
	assert.Equal(t, res.User.ID, f.members.users[0].ID)

	tasks := f.queue.Tasks(queue.TypeEmailSend)
	require.Len(t, tasks, 1)
	var payload queue.EmailPayload
	require.NoError(t, tasks[0].Decode(&payload))
	assert.Equal(t, email.TemplateWelcome, payload.Template)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	register(t, f, "taken@example.com")

	_, err := f.svc.Register(ctx, domain.RegisterRequest{Email: "taken@example.com", Password: "long-enough", FirstName: "A"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	_, err = f.svc.Register(ctx, domain.RegisterRequest{Email: "short@example.com", Password: "short", FirstName: "A"})
	assert.ErrorIs(t, err, domain.ErrWeakPassword)

	_, err = f.svc.Register(ctx, domain.RegisterRequest{Email: "not-an-email", Password: "long-enough", FirstName: "A"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
}

func TestLoginUsesOneErrorForUnknownAndWrongPassword(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice@example.com")
	ctx := context.Background()

	_, err := f.svc.Login(ctx, domain.LoginRequest{Email: "alice@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, domain.LoginRequest{Email: "ghost@example.com", Password: "whatever-pass"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	res, err := f.svc.Login(ctx, domain.LoginRequest{Email: "ALICE@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	claims, err := f.svc.Verify(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID.String(), claims.UserID)
}

func TestRefreshAcceptsOnlyRefreshTokens(t *testing.T) {
	f := newFixture(t)
	res := register(t, f, "bob@example.com")
	ctx := context.Background()

	_, err := f.svc.Refresh(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	f.clock.Advance(time.Minute)
	pair, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.Tokens.AccessToken, pair.AccessToken)
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newFixture(t)
	register(t, f, "carol@example.com")
	f.queue.Reset()
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, "nobody@example.com"))
	assert.Empty(t, f.queue.Tasks(queue.TypeEmailSend))

	require.NoError(t, f.svc.ForgotPassword(ctx, "carol@example.com"))
	tasks := f.queue.Tasks(queue.TypeEmailSend)
	require.Len(t, tasks, 1)

	var payload queue.EmailPayload
	require.NoError(t, tasks[0].Decode(&payload))
	assert.Equal(t, email.TemplatePasswordReset, payload.Template)
	assert.Equal(t, "1 hour", payload.Data["expires_in"])

	resetURL, err := url.Parse(payload.Data["reset_url"].(string))
	require.NoError(t, err)
	resetToken := resetURL.Query().Get("token")

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, resetToken, "short"), domain.ErrWeakPassword)
	require.NoError(t, f.svc.ResetPassword(ctx, resetToken, "brand-new-secret"))

	// the token is bound to the old hash
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, resetToken, "another-secret"), domain.ErrInvalidToken)

	_, err = f.svc.Login(ctx, domain.LoginRequest{Email: "carol@example.com", Password: "brand-new-secret"})
	assert.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	res := register(t, f, "dana@example.com")
	ctx := context.Background()

	phone := " +1 555 0100 "
	last := "Stone"
	user, err := f.svc.UpdateProfile(ctx, res.User.ID.String(), domain.UpdateProfileRequest{Phone: &phone, LastName: &last})
	require.NoError(t, err)
	require.NotNil(t, user.Phone)
	assert.Equal(t, "+1 555 0100", *user.Phone)
	assert.Equal(t, "Stone", user.LastName)

	empty := " "
	_, err = f.svc.UpdateProfile(ctx, res.User.ID.String(), domain.UpdateProfileRequest{FirstName: &empty})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = f.svc.Me(ctx, "999")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestIssueServiceToken(t *testing.T) {
	f := newFixture(t)
	tok, err := f.svc.IssueServiceToken(context.Background(), "billing-cron", 0)
	require.NoError(t, err)

	claims, err := f.svc.Verify(context.Background(), tok.Token)
	require.NoError(t, err)
	assert.True(t, claims.IsService())
}
