package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenBusSpoofer/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	status := s.lm.GetCurrentStatus()
	c.JSON(http.StatusOK, status)
}

// POST /api/v1/reload
func (s *Server) triggerReload(c *gin.Context) {
	if err := s.lm.TriggerReload(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse("RELOAD_422", "Reload failed, previous table kept", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Table reloaded",
		"table":   s.lm.GetCurrentStatus().Table,
	})
}

// GET /api/v1/system/reloads
func (s *Server) listReloads(c *gin.Context) {
	store := s.lm.Storage()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("STORAGE_503", "Database not enabled", nil))
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SYSTEM_400", "Invalid limit", c.Query("limit")))
		return
	}

	reloads, err := store.RecentReloads(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("STORAGE_500", "Failed to load reloads", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reloads": reloads,
		"count":   len(reloads),
	})
}
