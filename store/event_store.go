package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sreekar-ss/devbytes-blog/database"
	"github.com/sreekar-ss/devbytes-blog/models"
	"github.com/sreekar-ss/devbytes-blog/utils"
)

// SQLEventStore keeps AnalyticsEvents in the primary database, for
// deployments without ClickHouse.
type SQLEventStore struct {
	db     *database.DB
	logger *zap.Logger
}

func NewSQLEventStore(db *database.DB, logger *zap.Logger) *SQLEventStore {
	return &SQLEventStore{db: db, logger: logger}
}

func (s *SQLEventStore) InsertEvents(ctx context.Context, events []models.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := s.db.Rebind(`
		INSERT INTO analytics_events (
			id, event_type, path, user_id, session_id, is_bot,
			user_agent, referrer, ip_hash, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	for _, event := range events {
		var metadata any
		if len(event.Metadata) > 0 {
			metadata = string(event.Metadata)
		}
		_, err := tx.ExecContext(ctx, query,
			event.EventID,
			event.EventType,
			event.Path,
			nullString(event.UserID),
			event.SessionID,
			event.IsBot,
			event.UserAgent,
			nullString(event.Referrer),
			event.IPHash,
			metadata,
			event.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert analytics event %s: %w", event.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit analytics events: %w", err)
	}

	s.logger.Debug("Analytics events inserted", zap.Int("count", len(events)))
	return nil
}

func (s *SQLEventStore) EndpointUsage(ctx context.Context, days, limit int) ([]models.EndpointUsage, error) {
	since := utils.WindowStart(time.Now(), days).UnixMilli()

	usage := []models.EndpointUsage{}
	err := s.db.SelectContext(ctx, &usage, s.db.Rebind(`
		SELECT event_type, path, is_bot, COUNT(*) AS count
		FROM analytics_events
		WHERE created_at >= ?
		GROUP BY event_type, path, is_bot
		ORDER BY count DESC, event_type, path
		LIMIT ?`), since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query endpoint usage: %w", err)
	}
	return usage, nil
}
