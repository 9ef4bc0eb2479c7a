package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sreekar-ss/devbytes-blog/middleware"
	"github.com/sreekar-ss/devbytes-blog/utils"
)

const (
	defaultSessionLimit  = 10
	defaultTopLimit      = 10
	defaultBotLimit      = 20
	defaultEndpointLimit = 50
)

func (h *AnalyticsHandlers) GetMyStats(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	limit, err := utils.ParseLimit(c.Query("limit"), defaultSessionLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.queryTimeout)
	defer cancel()

	stats, err := h.Sessions.UserStats(ctx, userID, limit)
	if err != nil {
		h.logger.Error("Error getting user reading stats", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve reading statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *AnalyticsHandlers) GetMyHistory(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	days, err := utils.ParseWindowDays(c.Query("days"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.queryTimeout)
	defer cancel()

	history, err := h.Sessions.UserHistory(ctx, userID, days)
	if err != nil {
		h.logger.Error("Error getting user reading history", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve reading history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"windowDays": days, "history": history})
}

func (h *AnalyticsHandlers) GetAdminStats(c *gin.Context) {
	days, limit, ok := windowParams(c, defaultTopLimit)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.queryTimeout)
	defer cancel()

	stats, err := h.Sessions.AdminStats(ctx, days, limit)
	if err != nil {
		h.logger.Error("Error getting admin stats", zap.Int("days", days), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve site statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *AnalyticsHandlers) GetBotTraffic(c *gin.Context) {
	days, limit, ok := windowParams(c, defaultBotLimit)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.queryTimeout)
	defer cancel()

	agents, err := h.Sessions.BotTraffic(ctx, days, limit)
	if err != nil {
		h.logger.Error("Error getting bot traffic", zap.Int("days", days), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve bot statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"windowDays": days, "userAgents": agents})
}

func (h *AnalyticsHandlers) GetEndpointUsage(c *gin.Context) {
	days, limit, ok := windowParams(c, defaultEndpointLimit)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.queryTimeout)
	defer cancel()

	usage, err := h.Events.EndpointUsage(ctx, days, limit)
	if err != nil {
		h.logger.Error("Error getting endpoint usage", zap.Int("days", days), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve endpoint statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"windowDays": days, "endpoints": usage})
}

// windowParams parses ?days and ?limit, writing a 400 itself on failure.
func windowParams(c *gin.Context, defaultLimit int) (days, limit int, ok bool) {
	days, err := utils.ParseWindowDays(c.Query("days"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, 0, false
	}
	limit, err = utils.ParseLimit(c.Query("limit"), defaultLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, 0, false
	}
	return days, limit, true
}
