package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/sreekar-ss/devbytes-blog/analytics"
	"github.com/sreekar-ss/devbytes-blog/config"
	"github.com/sreekar-ss/devbytes-blog/metrics"
	"github.com/sreekar-ss/devbytes-blog/middleware"
	"github.com/sreekar-ss/devbytes-blog/models"
	"github.com/sreekar-ss/devbytes-blog/store"
	"github.com/sreekar-ss/devbytes-blog/stream"
)

const (
	maxEventBatch    = 100
	unknownUserAgent = "unknown"
)

type SessionStore interface {
	Insert(ctx context.Context, rs *models.ReadingSession) error
	SyncSessions(ctx context.Context, sessionID, userID string) (int64, error)
	UserStats(ctx context.Context, userID string, limit int) (*models.UserReadingStats, error)
	UserHistory(ctx context.Context, userID string, days int) ([]models.DailyReading, error)
	AdminStats(ctx context.Context, days, limit int) (*models.AdminStats, error)
	BotTraffic(ctx context.Context, days, limit int) ([]models.BotUserAgent, error)
}

type PostLookup interface {
	GetPostByID(ctx context.Context, id string) (*models.Post, error)
}

type AnalyticsHandlers struct {
	Sessions  SessionStore
	Posts     PostLookup
	Events    store.EventStore
	Publisher stream.Publisher

	salt          string
	insertTimeout time.Duration
	queryTimeout  time.Duration
	logger        *zap.Logger
}

// NewAnalyticsHandlers wires the ingestion and reporting handlers. posts may
// be nil, in which case snapshots are accepted for any post id.
func NewAnalyticsHandlers(
	sessions SessionStore,
	posts PostLookup,
	events store.EventStore,
	publisher stream.Publisher,
	cfg config.AnalyticsConfig,
	logger *zap.Logger,
) *AnalyticsHandlers {
	if publisher == nil {
		publisher = stream.NoopPublisher{}
	}
	return &AnalyticsHandlers{
		Sessions:      sessions,
		Posts:         posts,
		Events:        events,
		Publisher:     publisher,
		salt:          cfg.IPHashSalt,
		insertTimeout: cfg.InsertTimeout,
		queryTimeout:  cfg.QueryTimeout,
		logger:        logger,
	}
}

// Track stores one reading-session snapshot.
func (h *AnalyticsHandlers) Track(c *gin.Context) {
	var req models.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.insertTimeout)
	defer cancel()

	if h.Posts != nil {
		if _, err := h.Posts.GetPostByID(ctx, req.PostID); err != nil {
			if errors.Is(err, store.ErrPostNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
				return
			}
			h.logger.Error("Post lookup failed", zap.String("post_id", req.PostID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record reading session"})
			return
		}
	}

	userAgent := c.GetHeader("User-Agent")
	signals := analytics.Signals{
		TimeSpent:     time.Duration(*req.TimeSpent) * time.Second,
		HasJavaScript: req.HasJavaScript,
	}
	scrollDepth := 0
	if req.ScrollDepth != nil {
		scrollDepth = models.ClampScrollDepth(*req.ScrollDepth)
		signals.ScrollDepth = &scrollDepth
	}
	verdict := analytics.Classify(userAgent, &signals)

	now := time.Now().UTC()
	startedAt := now
	if req.StartedAt != nil {
		startedAt = req.StartedAt.UTC()
	}

	rs := &models.ReadingSession{
		ID:          uuid.NewString(),
		UserID:      h.resolveUserID(c, req.UserID),
		PostID:      req.PostID,
		SessionID:   req.SessionID,
		StartedAt:   startedAt,
		EndedAt:     now,
		TimeSpent:   *req.TimeSpent,
		ScrollDepth: scrollDepth,
		IsBot:       verdict.IsBot,
		UserAgent:   storedUserAgent(userAgent),
		Referrer:    optionalHeader(c, "Referer"),
		IPHash:      analytics.HashedClientAddress(c.Request.Header, h.salt),
	}

	if err := h.Sessions.Insert(ctx, rs); err != nil {
		if errors.Is(err, store.ErrInvalidSession) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		h.logger.Error("Error storing reading session", zap.String("post_id", rs.PostID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record reading session"})
		return
	}
	metrics.SessionsIngested.WithLabelValues(metrics.Verdict(rs.IsBot)).Inc()

	if err := h.Publisher.Publish(ctx, rs.SessionID, rs); err != nil {
		metrics.PublishFailures.Inc()
		h.logger.Warn("Reading session not forwarded to stream", zap.String("id", rs.ID), zap.Error(err))
	}

	h.logger.Debug("Reading session tracked",
		zap.String("post_id", rs.PostID),
		zap.Bool("is_bot", verdict.IsBot),
		zap.String("reason", verdict.Reason),
	)

	c.JSON(http.StatusOK, models.TrackResponse{
		Success: true,
		IsBot:   verdict.IsBot,
		BotType: verdict.BotType(),
	})
}

// Sync attaches the caller's anonymous reading history to their account.
func (h *AnalyticsHandlers) Sync(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Session ID required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.insertTimeout)
	defer cancel()

	synced, err := h.Sessions.SyncSessions(ctx, req.SessionID, userID)
	if err != nil {
		h.logger.Error("Error syncing sessions", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sync sessions"})
		return
	}
	metrics.SessionsSynced.Add(float64(synced))

	c.JSON(http.StatusOK, models.SyncResponse{Success: true, Synced: synced})
}

// TrackEvents stores a batch of machine-endpoint hits forwarded by the site
// edge with the original client's headers.
func (h *AnalyticsHandlers) TrackEvents(c *gin.Context) {
	var incoming []models.EventRequest
	if err := c.ShouldBindJSON(&incoming); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if len(incoming) == 0 {
		c.JSON(http.StatusOK, gin.H{"success": true, "stored": 0})
		return
	}
	if len(incoming) > maxEventBatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many events in one batch"})
		return
	}

	userAgent := c.GetHeader("User-Agent")
	verdict := analytics.Classify(userAgent, nil)
	ipHash := analytics.HashedClientAddress(c.Request.Header, h.salt)
	referrer := optionalHeader(c, "Referer")
	var userID *string
	if id, ok := middleware.UserID(c); ok {
		userID = &id
	}
	now := time.Now().UTC()

	events := make([]models.AnalyticsEvent, 0, len(incoming))
	for _, e := range incoming {
		if !models.IsValidEventType(e.EventType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown event type: " + e.EventType})
			return
		}
		events = append(events, models.AnalyticsEvent{
			EventID:   ulid.Make().String(),
			EventType: e.EventType,
			Path:      e.Path,
			UserID:    userID,
			SessionID: e.SessionID,
			IsBot:     verdict.IsBot,
			UserAgent: storedUserAgent(userAgent),
			Referrer:  referrer,
			IPHash:    ipHash,
			Metadata:  e.Metadata,
			CreatedAt: now,
		})
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.insertTimeout)
	defer cancel()

	if err := h.Events.InsertEvents(ctx, events); err != nil {
		h.logger.Error("Error inserting analytics events", zap.Int("count", len(events)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record analytics events"})
		return
	}
	for _, e := range events {
		metrics.EventsIngested.WithLabelValues(e.EventType, metrics.Verdict(e.IsBot)).Inc()
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stored": len(events)})
}

// resolveUserID trusts only the authenticated identity. A body userId is
// accepted when it matches it and ignored otherwise.
func (h *AnalyticsHandlers) resolveUserID(c *gin.Context, claimed *string) *string {
	authed, ok := middleware.UserID(c)
	if claimed != nil && *claimed != "" && (!ok || *claimed != authed) {
		h.logger.Debug("Ignoring unauthenticated userId in snapshot")
	}
	if !ok {
		return nil
	}
	return &authed
}

func storedUserAgent(ua string) string {
	if ua == "" {
		return unknownUserAgent
	}
	return ua
}

func optionalHeader(c *gin.Context, name string) *string {
	if v := c.GetHeader(name); v != "" {
		return &v
	}
	return nil
}
