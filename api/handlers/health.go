package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailvault/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status reports whether a sync pass is currently in flight
func Status(archiveService interfaces.ArchiveService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"syncing": archiveService.IsRunning(),
		})
	}
}
