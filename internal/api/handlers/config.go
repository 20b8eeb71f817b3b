package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keymonitor/backend/internal/config"
	"github.com/keymonitor/backend/internal/services"
)

type ConfigHandler struct {
	cfg       *config.Manager
	scheduler *services.Scheduler
}

func NewConfigHandler(cfg *config.Manager, scheduler *services.Scheduler) *ConfigHandler {
	return &ConfigHandler{
		cfg:       cfg,
		scheduler: scheduler,
	}
}

// GetConfig returns the current configuration with secrets redacted to their
// trailing-suffix masked form. The masked values are display-only; the update
// path rejects them if echoed back.
func (h *ConfigHandler) GetConfig(c *gin.Context) {
	cronStatus := "stopped"
	if h.scheduler.Running() {
		cronStatus = "running"
	}
	c.JSON(http.StatusOK, gin.H{
		"config":     h.cfg.Redacted(),
		"cronStatus": cronStatus,
	})
}

// UpdateConfig applies a partial configuration update. Independently valid
// fields are applied even when others are rejected; rejected fields come back
// by name so the dashboard can surface them.
func (h *ConfigHandler) UpdateConfig(c *gin.Context) {
	var patch config.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.cfg.Update(patch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"applied":  result.Applied,
		"rejected": result.Rejected,
	})
}
