package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// HandleStripeWebhook verifies and applies a Stripe event. Replays and
// event types we do not handle still answer 200 so Stripe stops retrying.
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.webhookSvc.Ingest(c.Request.Context(), payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
