package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	classdomain "github.com/monstrox/monstro/internal/class/domain"
)

func (s *Server) ListClasses(c *gin.Context) {
	locationID, ok := pathID(c, "locationId")
	if !ok {
		return
	}

	var req classdomain.ListUpcomingRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sessions, err := s.classSvc.ListUpcoming(c.Request.Context(), locationID.String(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sessions})
}

func (s *Server) ReserveClass(c *gin.Context) {
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	member, err := s.currentMember(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reservation, err := s.classSvc.Reserve(c.Request.Context(), sessionID.String(), member.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": reservation})
}

func (s *Server) CancelMyReservation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	member, err := s.currentMember(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reservation, err := s.classSvc.GetReservation(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if reservation.MemberID != member.ID {
		AbortWithError(c, classdomain.ErrNotFound)
		return
	}

	canceled, err := s.classSvc.CancelReservation(c.Request.Context(), reservation.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": canceled})
}

func (s *Server) AdminCreateClass(c *gin.Context) {
	var req classdomain.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	session, err := s.classSvc.CreateSession(c.Request.Context(), c.Param("locationId"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": session})
}

func (s *Server) AdminCancelClass(c *gin.Context) {
	session, ok := s.locationSession(c)
	if !ok {
		return
	}

	canceled, err := s.classSvc.CancelSession(c.Request.Context(), session.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": canceled})
}

func (s *Server) AdminListReservations(c *gin.Context) {
	session, ok := s.locationSession(c)
	if !ok {
		return
	}

	reservations, err := s.classSvc.ListSessionReservations(c.Request.Context(), session.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reservations})
}

func (s *Server) AdminCheckIn(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	reservation, err := s.classSvc.GetReservation(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !inLocation(c, reservation.LocationID) {
		AbortWithError(c, classdomain.ErrNotFound)
		return
	}

	attended, err := s.classSvc.CheckIn(c.Request.Context(), reservation.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": attended})
}

func (s *Server) locationSession(c *gin.Context) (*classdomain.ClassSession, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	session, err := s.classSvc.GetSession(c.Request.Context(), id.String())
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if !inLocation(c, session.LocationID) {
		AbortWithError(c, classdomain.ErrSessionNotFound)
		return nil, false
	}
	return session, true
}
