package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/interfaces"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
)

// SyncTrigger starts a run on demand.
type SyncTrigger interface {
	RunSync(ctx context.Context) (*models.RunSummary, error)
}

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status returns the most recent sync run.
func Status(runs interfaces.SyncRunRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := runs.GetLatest(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if run == nil {
			c.JSON(http.StatusOK, gin.H{"status": "no runs yet"})
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

// RecentRuns lists the latest sync runs, newest first.
func RecentRuns(runs interfaces.SyncRunRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query struct {
			Limit int `form:"limit,default=20" binding:"min=1,max=200"`
		}
		if err := c.ShouldBindQuery(&query); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		list, err := runs.List(c.Request.Context(), query.Limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// TriggerSync runs one sync and returns its summary.
func TriggerSync(trigger SyncTrigger) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := trigger.RunSync(c.Request.Context())
		switch {
		case errors.Is(err, mserrors.ErrRunInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case mserrors.IsConnectivity(err):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "summary": summary})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "summary": summary})
		default:
			c.JSON(http.StatusOK, summary)
		}
	}
}
