package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/keymonitor/backend/internal/models"
	"github.com/keymonitor/backend/internal/services"
	"github.com/keymonitor/backend/internal/store"
)

type PricesHandler struct {
	store    *store.Store
	analysis *services.AnalysisService
}

func NewPricesHandler(st *store.Store, analysis *services.AnalysisService) *PricesHandler {
	return &PricesHandler{
		store:    st,
		analysis: analysis,
	}
}

// GetPrices returns a game's raw snapshot rows for the requested period,
// oldest first.
func (h *PricesHandler) GetPrices(c *gin.Context) {
	cutoff := services.PeriodCutoff(c.Query("period"), time.Now())
	records, err := h.store.QuerySnapshots(c.Param("id"), cutoff)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []models.PriceRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// GetStats returns window statistics plus the latest snapshot. Both fields
// are null when the game has no data, which the dashboard renders as "no
// data" rather than zeros.
func (h *PricesHandler) GetStats(c *gin.Context) {
	gameID := c.Param("id")

	stats, err := h.analysis.Stats(gameID, c.Query("period"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	latest, err := h.analysis.Latest(gameID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.StatsResponse{Stats: stats, Latest: latest})
}

// GetAnalysis returns the rollups, price distribution, and volatility for a
// game.
func (h *PricesHandler) GetAnalysis(c *gin.Context) {
	resp, err := h.analysis.Analysis(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}
