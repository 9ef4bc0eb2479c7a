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

// EventStore records machine-endpoint hits and reports their usage.
type EventStore interface {
	InsertEvents(ctx context.Context, events []models.AnalyticsEvent) error
	EndpointUsage(ctx context.Context, days, limit int) ([]models.EndpointUsage, error)
}

// ClickHouseEventStore keeps AnalyticsEvents in ClickHouse when it is configured.
type ClickHouseEventStore struct {
	DB     *database.ClickHouseClient
	logger *zap.Logger
}

func NewClickHouseEventStore(chClient *database.ClickHouseClient, logger *zap.Logger) *ClickHouseEventStore {
	return &ClickHouseEventStore{DB: chClient, logger: logger}
}

func (s *ClickHouseEventStore) InsertEvents(ctx context.Context, events []models.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO analytics_events (
			event_id, event_type, path, user_id, session_id, is_bot,
			user_agent, referrer, ip_hash, metadata, created_at
		)`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		err := batch.Append(
			event.EventID,
			event.EventType,
			event.Path,
			event.UserID,
			event.SessionID,
			event.IsBot,
			event.UserAgent,
			event.Referrer,
			event.IPHash,
			string(event.Metadata),
			event.CreatedAt,
		)
		if err != nil {
			// a batch is all or nothing, as in the SQL store
			if abortErr := batch.Abort(); abortErr != nil {
				s.logger.Warn("Error aborting event batch", zap.Error(abortErr))
			}
			return fmt.Errorf("failed to append event %s to batch: %w", event.EventID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	s.logger.Debug("Analytics events inserted", zap.Int("count", len(events)))
	return nil
}

func (s *ClickHouseEventStore) EndpointUsage(ctx context.Context, days, limit int) ([]models.EndpointUsage, error) {
	since := utils.WindowStart(time.Now(), days)

	rows, err := s.DB.Conn.Query(ctx, `
		SELECT event_type, path, is_bot, count() AS hits
		FROM analytics_events
		WHERE created_at >= ?
		GROUP BY event_type, path, is_bot
		ORDER BY hits DESC, event_type, path
		LIMIT ?`, since, uint64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query endpoint usage: %w", err)
	}
	defer rows.Close()

	results := []models.EndpointUsage{}
	for rows.Next() {
		var u models.EndpointUsage
		if err := rows.Scan(&u.EventType, &u.Path, &u.IsBot, &u.Count); err != nil {
			s.logger.Warn("Error scanning endpoint usage row", zap.Error(err))
			continue
		}
		results = append(results, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for endpoint usage: %w", err)
	}
	return results, nil
}
