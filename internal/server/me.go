package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	authdomain "github.com/monstrox/monstro/internal/auth/domain"
	memberdomain "github.com/monstrox/monstro/internal/member/domain"
)

type updateMeRequest struct {
	FirstName *string    `json:"first_name"`
	LastName  *string    `json:"last_name"`
	Phone     *string    `json:"phone"`
	AvatarURL *string    `json:"avatar_url"`
	Gender    *string    `json:"gender"`
	DOB       *time.Time `json:"dob"`
}

type meResponse struct {
	User   *authdomain.User     `json:"user"`
	Member *memberdomain.Member `json:"member,omitempty"`
}

// currentMember resolves the member record for the signed-in user.
func (s *Server) currentMember(c *gin.Context) (*memberdomain.Member, error) {
	userID := userIDFromContext(c)
	if userID == "" {
		return nil, ErrUnauthorized
	}
	return s.memberSvc.GetByUserID(c.Request.Context(), userID)
}

func (s *Server) Me(c *gin.Context) {
	user, err := s.authSvc.Me(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	member, err := s.currentMember(c)
	if err != nil && !errors.Is(err, memberdomain.ErrNotFound) {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": meResponse{User: user, Member: member}})
}

// UpdateMe writes the account profile and mirrors it onto the member record.
func (s *Server) UpdateMe(c *gin.Context) {
	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	user, err := s.authSvc.UpdateProfile(ctx, userIDFromContext(c), authdomain.UpdateProfileRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	member, err := s.currentMember(c)
	switch {
	case errors.Is(err, memberdomain.ErrNotFound):
		member = nil
	case err != nil:
		AbortWithError(c, err)
		return
	default:
		member, err = s.memberSvc.UpdateProfile(ctx, member.ID.String(), memberdomain.UpdateProfileRequest{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
			Gender:    req.Gender,
			DOB:       req.DOB,
			AvatarURL: req.AvatarURL,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": meResponse{User: user, Member: member}})
}

func (s *Server) RegisterPushToken(c *gin.Context) {
	var req memberdomain.RegisterPushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pushToken, err := s.memberSvc.RegisterPushToken(c.Request.Context(), userIDFromContext(c), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": pushToken})
}

func (s *Server) ListMyReservations(c *gin.Context) {
	member, err := s.currentMember(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reservations, err := s.classSvc.ListMemberReservations(c.Request.Context(), member.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reservations})
}
