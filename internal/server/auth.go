package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/monstrox/monstro/internal/audit/domain"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	"go.uber.org/zap"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (s *Server) Register(c *gin.Context) {
	var req authdomain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.authSvc.Register(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) Login(c *gin.Context) {
	var req authdomain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.allowLogin(c, c.ClientIP()+"|"+email); err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.authSvc.Login(c.Request.Context(), req)
	if err != nil {
		if s.auditSvc != nil {
			_ = s.auditSvc.Record(c.Request.Context(), auditdomain.Entry{
				ActorType:  auditdomain.ActorTypeUser,
				Action:     "user.login_failed",
				TargetType: "user",
				Metadata:   map[string]any{"email": email, "ip": c.ClientIP()},
			})
		}
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		userID := result.User.ID.String()
		_ = s.auditSvc.Record(c.Request.Context(), auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeUser,
			ActorID:    userID,
			Action:     "user.login",
			TargetType: "user",
			TargetID:   userID,
			Metadata:   map[string]any{"email": email},
		})
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) allowLogin(c *gin.Context, key string) error {
	if s.limiter == nil {
		return nil
	}
	res, err := s.limiter.AllowLogin(c.Request.Context(), key)
	if err != nil {
		// Redis trouble should not lock everyone out.
		s.log.Warn("login rate limit check failed", zap.Error(err))
		return nil
	}
	if res.Allowed {
		return nil
	}
	if s.obsMetrics != nil {
		s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), "auth.login", "login_attempts")
	}
	return &retryAfterError{wait: res.RetryAfter}
}

func (s *Server) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	pair, err := s.authSvc.Refresh(c.Request.Context(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pair})
}

// ForgotPassword always answers 202 so callers cannot tell which emails have accounts.
func (s *Server) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authSvc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		if isValidationError(err) {
			AbortWithError(c, err)
			return
		}
		s.log.Warn("forgot password failed", zap.Error(err))
	}

	c.Status(http.StatusAccepted)
}

func (s *Server) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authSvc.ResetPassword(c.Request.Context(), strings.TrimSpace(req.Token), req.NewPassword); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
