package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/monstrox/monstro/internal/queue"
)

// sweepJobs are the sweeps an operator may kick off outside their cron slot.
var sweepJobs = map[string]string{
	"invoice-overdue-sweep":       queue.TypeInvoiceOverdueSweep,
	"subscription-recovery-sweep": queue.TypeSubscriptionRecoverySweep,
}

func (s *Server) EnqueueJob(c *gin.Context) {
	job := strings.TrimSpace(c.Param("job"))
	taskType, ok := sweepJobs[job]
	if !ok {
		AbortWithError(c, newValidationError("job", "unknown_job", "unknown job"))
		return
	}

	triggeredBy := "service"
	if claims := claimsFromContext(c); claims != nil && claims.Subject != "" {
		triggeredBy = "service:" + claims.Subject
	}

	taskID, err := s.queue.Enqueue(c.Request.Context(), taskType, queue.SweepPayload{TriggeredBy: triggeredBy})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{"job": job, "task_id": taskID}})
}
