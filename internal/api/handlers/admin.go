package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keymonitor/backend/internal/config"
	"github.com/keymonitor/backend/internal/database"
	"github.com/keymonitor/backend/internal/services"
	"github.com/keymonitor/backend/internal/store"
)

// AdminHandler backs the on-demand operations: manual collection, retention
// cleanup, notification triggers, and the database status panel.
type AdminHandler struct {
	store     *store.Store
	collector *services.Collector
	scheduler *services.Scheduler
	alerts    *services.AlertEngine
	analysis  *services.AnalysisService
	cfg       *config.Manager
}

func NewAdminHandler(st *store.Store, collector *services.Collector, scheduler *services.Scheduler,
	alerts *services.AlertEngine, analysis *services.AnalysisService, cfg *config.Manager) *AdminHandler {
	return &AdminHandler{
		store:     st,
		collector: collector,
		scheduler: scheduler,
		alerts:    alerts,
		analysis:  analysis,
		cfg:       cfg,
	}
}

// CollectAll runs a collection cycle over every tracked game right now.
func (h *AdminHandler) CollectAll(c *gin.Context) {
	if err := h.collector.CollectAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "warning": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CollectOne collects a single game on demand and returns the snapshot. An
// empty listing is a distinct reason, not an error.
func (h *AdminHandler) CollectOne(c *gin.Context) {
	rec, err := h.collector.Collect(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, store.ErrGameNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
	case errors.Is(err, services.ErrEmptyListing):
		c.JSON(http.StatusOK, gin.H{"success": false, "reason": "empty_listing"})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "reason": "collection_error", "error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "data": rec})
	}
}

// Cleanup purges records past the retention window on demand.
func (h *AdminHandler) Cleanup(c *gin.Context) {
	purged, err := h.scheduler.RunRetention()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.analysis.InvalidateAll()
	c.JSON(http.StatusOK, gin.H{"success": true, "purged": purged})
}

type notifyTestRequest struct {
	PushKeys []string `json:"pushKeys"`
}

// NotifyTest sends a test notification to the supplied or configured keys.
func (h *AdminHandler) NotifyTest(c *gin.Context) {
	var req notifyTestRequest
	_ = c.ShouldBindJSON(&req)

	outcome := h.alerts.SendTest(c.Request.Context(), req.PushKeys)
	c.JSON(http.StatusOK, gin.H{
		"success": outcome.Reason == services.OutcomeSent,
		"reason":  outcome.Reason,
		"result":  outcome.Result,
	})
}

// NotifyDailyReport triggers the daily report path immediately.
func (h *AdminHandler) NotifyDailyReport(c *gin.Context) {
	outcome, err := h.alerts.DailyReport(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": outcome.Reason == services.OutcomeSent,
		"reason":  outcome.Reason,
		"result":  outcome.Result,
	})
}

// DBStats returns record counts, the covered time range, and the database
// file size for the storage panel.
func (h *AdminHandler) DBStats(c *gin.Context) {
	stats, err := h.store.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	stats.FileSizeKB = database.FileSize() / 1024
	stats.DataRetentionDays = h.cfg.Current().DataRetentionDays
	c.JSON(http.StatusOK, stats)
}
