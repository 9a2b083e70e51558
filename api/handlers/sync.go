package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/repository"
	"github.com/customeros/mailvault/internal/tracing"
)

// TriggerSync starts a sync pass in the background and returns immediately.
// A pass already in flight yields 409; the in-flight pass keeps its own
// checkpoints, so nothing is lost by declining.
func TriggerSync(log logger.Logger, archiveService interfaces.ArchiveService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if archiveService.IsRunning() {
			c.JSON(http.StatusConflict, gin.H{"error": "sync already in progress"})
			return
		}

		go func() {
			defer tracing.RecoverAndLogToJaeger(log)
			// The request context dies with the response; the sync must not.
			summary, err := archiveService.SyncMailbox(context.Background())
			if err != nil {
				log.Errorf("Triggered sync failed: %v", err)
				return
			}
			log.Infof("Triggered sync done: %d synced, %d skipped, %d errors",
				summary.Synced, summary.Skipped, summary.Errors)
		}()

		c.JSON(http.StatusAccepted, gin.H{"status": "sync started"})
	}
}

// SyncProgress lists the per-folder checkpoints of the pass in flight. An
// empty list means every folder is either complete or untouched.
func SyncProgress(repos *repository.Repositories) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		progress, err := repos.FolderSyncProgressRepository.GetAll(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		out := make([]gin.H, 0, len(progress))
		for _, p := range progress {
			entry := gin.H{
				"folderId":        p.FolderID,
				"pendingPage":     p.PendingPage,
				"pendingPosition": p.PendingPosition,
				"processedCount":  p.ProcessedCount,
				"startedAt":       p.StartedAt,
				"checkpointedAt":  p.CheckpointedAt,
			}
			if p.PendingCursor != nil {
				entry["hasPendingCursor"] = true
			}
			out = append(out, entry)
		}
		c.JSON(http.StatusOK, gin.H{"folders": out})
	}
}

// ArchiveStats reports index-level counts.
func ArchiveStats(repos *repository.Repositories) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		total, err := repos.MessageRepository.Count(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		quarantined, err := repos.MessageRepository.CountQuarantined(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		folders, err := repos.FolderRepository.GetAll(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"messages":    total,
			"quarantined": quarantined,
			"folders":     len(folders),
		})
	}
}
