package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	"github.com/monstrox/monstro/internal/auth/token"
	"github.com/monstrox/monstro/internal/authorization"
	"github.com/monstrox/monstro/internal/config"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	memberToken  = "member-token"
	staffToken   = "staff-token"
	serviceToken = "service-token"
	refreshToken = "refresh-token"
)

type fakeAuthService struct {
	authdomain.Service
	tokens map[string]*token.Claims
}

func (f *fakeAuthService) Verify(ctx context.Context, raw string) (*token.Claims, error) {
	claims, ok := f.tokens[raw]
	if !ok {
		return nil, authdomain.ErrInvalidToken
	}
	return claims, nil
}

func newFakeAuthService() *fakeAuthService {
	return &fakeAuthService{tokens: map[string]*token.Claims{
		memberToken:  {UserID: "100", Role: authdomain.RoleUser, TokenType: token.TypeAccess},
		staffToken:   {UserID: "200", Role: authdomain.RoleStaff, TokenType: token.TypeAccess},
		serviceToken: {Role: token.RoleService, TokenType: token.TypeService},
		refreshToken: {UserID: "100", Role: authdomain.RoleUser, TokenType: token.TypeRefresh},
	}}
}

type fakeAuthorizer struct {
	authorization.Service
	allowed map[string]bool
	calls   []string
}

func (f *fakeAuthorizer) Authorize(ctx context.Context, actor, locationID, object, action string) error {
	key := actor + "|" + locationID + "|" + object + "|" + action
	f.calls = append(f.calls, key)
	if actor == authorization.ActorService || f.allowed[key] {
		return nil
	}
	return authorization.ErrForbidden
}

type fakeMemberService struct {
	memberdomain.Service
	byUser map[string]*memberdomain.Member
}

func (f *fakeMemberService) GetByUserID(ctx context.Context, userID string) (*memberdomain.Member, error) {
	if m, ok := f.byUser[userID]; ok {
		return m, nil
	}
	return nil, memberdomain.ErrNotFound
}

func newFakeMemberService() *fakeMemberService {
	userID := snowflake.ID(100)
	return &fakeMemberService{byUser: map[string]*memberdomain.Member{
		"100": {ID: snowflake.ID(500), UserID: &userID, FirstName: "Mia"},
	}}
}

// newTestServer wires routes onto a bare engine. Params left nil are
// services the test does not reach.
func newTestServer(t *testing.T, p ServerParams) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	p.Gin = engine
	p.Cfg = config.Config{Environment: "test", HTTPAddr: ":0"}
	p.Log = zaptest.NewLogger(t)
	if p.AuthSvc == nil {
		p.AuthSvc = newFakeAuthService()
	}
	if p.AuthzSvc == nil {
		p.AuthzSvc = &fakeAuthorizer{}
	}
	if p.MemberSvc == nil {
		p.MemberSvc = newFakeMemberService()
	}

	s := NewServer(p)
	s.heartbeat = time.Hour
	return s
}

func doRequest(t *testing.T, s *Server, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestAuthRequiredRejectsMissingAndInvalidTokens(t *testing.T) {
	s := newTestServer(t, ServerParams{})

	w := doRequest(t, s, http.MethodGet, "/api/protected/me/reservations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, s, http.MethodGet, "/api/protected/me/reservations", "nope", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, s, http.MethodGet, "/api/protected/me/reservations", refreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decodeError(t, w).Type)
}

func TestUserRoutesRejectServiceTokens(t *testing.T) {
	s := newTestServer(t, ServerParams{})

	w := doRequest(t, s, http.MethodGet, "/api/protected/me/reservations", serviceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminRoutesRequireStaffRole(t *testing.T) {
	s := newTestServer(t, ServerParams{})

	w := doRequest(t, s, http.MethodGet, "/api/admin/locations/42/audit-logs", memberToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminRoutesCheckLocationPermission(t *testing.T) {
	authz := &fakeAuthorizer{}
	s := newTestServer(t, ServerParams{AuthzSvc: authz})

	w := doRequest(t, s, http.MethodPost, "/api/admin/locations/42/plans", staffToken, map[string]any{"name": "Gold"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	require.Len(t, authz.calls, 1)
	assert.Equal(t, "user:200|42|plan|create", authz.calls[0])

	w = doRequest(t, s, http.MethodPost, "/api/admin/locations/not-a-number/plans", staffToken, map[string]any{"name": "Gold"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobsEndpointIsServiceOnly(t *testing.T) {
	s := newTestServer(t, ServerParams{})

	w := doRequest(t, s, http.MethodPost, "/api/admin/jobs/invoice-overdue-sweep", staffToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
