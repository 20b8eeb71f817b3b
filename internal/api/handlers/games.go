package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keymonitor/backend/internal/services"
	"github.com/keymonitor/backend/internal/store"
)

type GamesHandler struct {
	store     *store.Store
	collector *services.Collector
	analysis  *services.AnalysisService
}

func NewGamesHandler(st *store.Store, collector *services.Collector, analysis *services.AnalysisService) *GamesHandler {
	return &GamesHandler{
		store:     st,
		collector: collector,
		analysis:  analysis,
	}
}

// ListGames returns all tracked games.
func (h *GamesHandler) ListGames(c *gin.Context) {
	games, err := h.store.ListGames()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, games)
}

type registerGameRequest struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	HistoryLowPrice *float64 `json:"history_low_price"`
}

// RegisterGame upserts a tracked game and kicks off a one-off collection in
// the background so the dashboard has a first data point quickly.
func (h *GamesHandler) RegisterGame(c *gin.Context) {
	var req registerGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "game id is required"})
		return
	}
	if req.Name == "" {
		req.Name = "Untitled"
	}

	game, err := h.store.RegisterGame(req.ID, req.Name, req.HistoryLowPrice)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	go h.collector.Collect(context.Background(), game.ID)

	c.JSON(http.StatusOK, gin.H{"success": true, "game": game})
}

// DeleteGame removes a game and all of its price history.
func (h *GamesHandler) DeleteGame(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteGame(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.analysis.InvalidateAll()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type historyLowRequest struct {
	HistoryLowPrice *float64 `json:"history_low_price"`
}

// UpdateHistoryLow sets or clears (null) a game's history-low reference price.
func (h *GamesHandler) UpdateHistoryLow(c *gin.Context) {
	var req historyLowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.store.SetHistoryLow(c.Param("id"), req.HistoryLowPrice)
	if errors.Is(err, store.ErrGameNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type pushSettingsRequest struct {
	PushEnabled *bool `json:"push_enabled"`
}

// UpdatePushSettings toggles alert notifications for a game.
func (h *GamesHandler) UpdatePushSettings(c *gin.Context) {
	var req pushSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PushEnabled == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "push_enabled is required"})
		return
	}

	err := h.store.SetPushEnabled(c.Param("id"), *req.PushEnabled)
	if errors.Is(err, store.ErrGameNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
