package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type previewEmailRequest struct {
	Data map[string]any `json:"data"`
}

type sendTestEmailRequest struct {
	To   string         `json:"to"`
	Data map[string]any `json:"data"`
}

func (s *Server) ListEmailTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.emailSvc.ListTemplates()})
}

func (s *Server) PreviewEmailTemplate(c *gin.Context) {
	var req previewEmailRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	rendered, err := s.emailSvc.Preview(strings.TrimSpace(c.Param("name")), req.Data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rendered})
}

func (s *Server) SendTestEmail(c *gin.Context) {
	var req sendTestEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.emailSvc.SendTest(c.Request.Context(), strings.TrimSpace(c.Param("name")), strings.TrimSpace(req.To), req.Data); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}
