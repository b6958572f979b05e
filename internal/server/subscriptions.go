package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/monstrox/monstro/internal/subscription/domain"
)

type subscribeRequest struct {
	PlanID string `json:"plan_id"`
}

func (s *Server) ListMySubscriptions(c *gin.Context) {
	locationID, ok := pathID(c, "locationId")
	if !ok {
		return
	}

	var req subscriptiondomain.ListSubscriptionRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.currentMember(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.MemberID = member.ID.String()

	resp, err := s.subscriptionSvc.ListByLocation(c.Request.Context(), locationID.String(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Subscriptions, "page_info": resp.PageInfo})
}

func (s *Server) Subscribe(c *gin.Context) {
	locationID, ok := pathID(c, "locationId")
	if !ok {
		return
	}

	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.currentMember(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), locationID.String(), subscriptiondomain.CreateSubscriptionRequest{
		MemberID: member.ID.String(),
		PlanID:   strings.TrimSpace(req.PlanID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) CancelMySubscription(c *gin.Context) {
	sub, ok := s.ownedSubscription(c)
	if !ok {
		return
	}

	var req subscriptiondomain.CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	canceled, err := s.subscriptionSvc.Cancel(c.Request.Context(), sub.ID.String(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": canceled})
}

func (s *Server) PauseMySubscription(c *gin.Context) {
	sub, ok := s.ownedSubscription(c)
	if !ok {
		return
	}

	paused, err := s.subscriptionSvc.Pause(c.Request.Context(), sub.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": paused})
}

func (s *Server) ResumeMySubscription(c *gin.Context) {
	sub, ok := s.ownedSubscription(c)
	if !ok {
		return
	}

	resumed, err := s.subscriptionSvc.Resume(c.Request.Context(), sub.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resumed})
}

// ownedSubscription loads the :id subscription and hides it unless the
// signed-in member holds it.
func (s *Server) ownedSubscription(c *gin.Context) (*subscriptiondomain.Subscription, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	member, err := s.currentMember(c)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	sub, err := s.subscriptionSvc.Get(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if sub.MemberID != member.ID {
		AbortWithError(c, subscriptiondomain.ErrNotFound)
		return nil, false
	}
	return sub, true
}

func (s *Server) AdminListSubscriptions(c *gin.Context) {
	var req subscriptiondomain.ListSubscriptionRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.ListByLocation(c.Request.Context(), c.Param("locationId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Subscriptions, "page_info": resp.PageInfo})
}

func (s *Server) AdminCreateSubscription(c *gin.Context) {
	var req subscriptiondomain.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), c.Param("locationId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// AdminRenewSubscription runs the pending renewal for the current period
// immediately instead of waiting for the scheduled task.
func (s *Server) AdminRenewSubscription(c *gin.Context) {
	sub, ok := s.locationSubscription(c)
	if !ok {
		return
	}

	result, err := s.subscriptionSvc.Renew(c.Request.Context(), sub.ID.String(), sub.CurrentPeriodEnd)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) AdminCancelSubscription(c *gin.Context) {
	sub, ok := s.locationSubscription(c)
	if !ok {
		return
	}

	var req subscriptiondomain.CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	canceled, err := s.subscriptionSvc.Cancel(c.Request.Context(), sub.ID.String(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": canceled})
}

func (s *Server) locationSubscription(c *gin.Context) (*subscriptiondomain.Subscription, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	sub, err := s.subscriptionSvc.Get(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if !inLocation(c, sub.LocationID) {
		AbortWithError(c, subscriptiondomain.ErrNotFound)
		return nil, false
	}
	return sub, true
}
