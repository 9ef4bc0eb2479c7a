package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sreekar-ss/devbytes-blog/analytics"
	"github.com/sreekar-ss/devbytes-blog/database"
	"github.com/sreekar-ss/devbytes-blog/models"
	"github.com/sreekar-ss/devbytes-blog/utils"
)

// SessionStore persists reading-session snapshots and answers the dashboard
// rollups. Rows are only ever inserted, except for the user_id backfill done
// by SyncSessions.
type SessionStore struct {
	db     *database.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewSessionStore(db *database.DB, logger *zap.Logger) *SessionStore {
	return &SessionStore{db: db, logger: logger, now: time.Now}
}

type sessionRow struct {
	ID          string  `db:"id"`
	PostID      string  `db:"post_id"`
	PostTitle   *string `db:"title"`
	PostSlug    *string `db:"slug"`
	StartedAt   int64   `db:"started_at"`
	TimeSpent   int     `db:"time_spent"`
	ScrollDepth int     `db:"scroll_depth"`
}

func (s *SessionStore) Insert(ctx context.Context, rs *models.ReadingSession) error {
	if rs.ID == "" || rs.PostID == "" || rs.SessionID == "" || rs.TimeSpent < 0 ||
		rs.ScrollDepth < 0 || rs.ScrollDepth > 100 {
		return ErrInvalidSession
	}

	query := s.db.Rebind(`
		INSERT INTO reading_sessions (
			id, user_id, post_id, session_id, started_at, ended_at,
			time_spent, scroll_depth, is_bot, user_agent, referrer, ip_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		rs.ID,
		nullString(rs.UserID),
		rs.PostID,
		rs.SessionID,
		rs.StartedAt.UnixMilli(),
		rs.EndedAt.UnixMilli(),
		rs.TimeSpent,
		rs.ScrollDepth,
		rs.IsBot,
		rs.UserAgent,
		nullString(rs.Referrer),
		rs.IPHash,
	)
	if err != nil {
		s.logger.Error("Failed to insert reading session", zap.String("post_id", rs.PostID), zap.Error(err))
		return fmt.Errorf("failed to insert reading session: %w", err)
	}

	s.logger.Debug("Reading session stored",
		zap.String("id", rs.ID),
		zap.String("post_id", rs.PostID),
		zap.Int("time_spent", rs.TimeSpent),
		zap.Bool("is_bot", rs.IsBot),
	)
	return nil
}

// SyncSessions claims every unowned row of an anonymous token for userID and
// returns how many rows changed. Rows owned by anyone are left alone, so
// repeating the call, or racing another claim, is harmless.
func (s *SessionStore) SyncSessions(ctx context.Context, sessionID, userID string) (int64, error) {
	query := s.db.Rebind(`UPDATE reading_sessions SET user_id = ? WHERE session_id = ? AND user_id IS NULL`)

	result, err := s.db.ExecContext(ctx, query, userID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to sync sessions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info("Anonymous sessions synced", zap.String("user_id", userID), zap.Int64("rows", n))
	return n, nil
}

// UserStats summarises a user's human reading activity with their limit most
// recent snapshot rows.
func (s *SessionStore) UserStats(ctx context.Context, userID string, limit int) (*models.UserReadingStats, error) {
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT rs.id, rs.post_id, p.title, p.slug, rs.started_at, rs.time_spent, rs.scroll_depth
		FROM reading_sessions rs
		LEFT JOIN posts p ON p.id = rs.post_id
		WHERE rs.user_id = ? AND rs.is_bot = FALSE
		ORDER BY rs.started_at DESC
		LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reading history: %w", err)
	}

	var totals struct {
		TotalTime   int64 `db:"total_time"`
		UniquePosts int64 `db:"unique_posts"`
	}
	err = s.db.GetContext(ctx, &totals, s.db.Rebind(`
		SELECT COALESCE(SUM(time_spent), 0) AS total_time, COUNT(DISTINCT post_id) AS unique_posts
		FROM reading_sessions
		WHERE user_id = ? AND is_bot = FALSE`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reading totals: %w", err)
	}

	sessions := make([]models.SessionSummary, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, models.SessionSummary{
			ID:          r.ID,
			PostID:      r.PostID,
			PostTitle:   r.PostTitle,
			PostSlug:    r.PostSlug,
			StartedAt:   time.UnixMilli(r.StartedAt).UTC(),
			TimeSpent:   r.TimeSpent,
			ScrollDepth: r.ScrollDepth,
		})
	}

	return &models.UserReadingStats{
		Sessions:         sessions,
		TotalReadingTime: totals.TotalTime,
		UniquePostsRead:  totals.UniquePosts,
		TotalSessions:    len(sessions),
	}, nil
}

// UserHistory buckets a user's human reading time per UTC day.
func (s *SessionStore) UserHistory(ctx context.Context, userID string, days int) ([]models.DailyReading, error) {
	since := utils.WindowStart(s.now(), days).UnixMilli()
	day := s.db.Dialect.DayBucket("started_at")

	history := []models.DailyReading{}
	err := s.db.SelectContext(ctx, &history, s.db.Rebind(fmt.Sprintf(`
		SELECT %s AS day, COALESCE(SUM(time_spent), 0) AS time_spent, COUNT(*) AS session_count
		FROM reading_sessions
		WHERE user_id = ? AND is_bot = FALSE AND started_at >= ?
		GROUP BY day
		ORDER BY day`, day)), userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query reading history by day: %w", err)
	}
	return history, nil
}

// AdminStats runs the site-wide rollups for the trailing window concurrently.
func (s *SessionStore) AdminStats(ctx context.Context, days, limit int) (*models.AdminStats, error) {
	now := s.now()
	since := utils.WindowStart(now, days).UnixMilli()
	stats := &models.AdminStats{
		WindowDays:   days,
		GeneratedAt:  now.UTC(),
		TopPosts:     []models.TopPost{},
		DailyTraffic: []models.DailyTraffic{},
		TopReferrers: []models.ReferrerCount{},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var split struct {
			Total int64 `db:"total"`
			Bots  int64 `db:"bots"`
		}
		err := s.db.GetContext(gctx, &split, s.db.Rebind(`
			SELECT COUNT(*) AS total, COALESCE(SUM(CASE WHEN is_bot THEN 1 ELSE 0 END), 0) AS bots
			FROM reading_sessions
			WHERE started_at >= ?`), since)
		if err != nil {
			return fmt.Errorf("failed to query traffic split: %w", err)
		}
		stats.TotalViews = split.Total
		stats.BotViews = split.Bots
		stats.HumanViews = split.Total - split.Bots
		stats.BotPercentage = models.Percentage(split.Bots, split.Total)
		return nil
	})

	g.Go(func() error {
		err := s.db.GetContext(gctx, &stats.UniqueVisitors, s.db.Rebind(`
			SELECT COUNT(DISTINCT session_id)
			FROM reading_sessions
			WHERE started_at >= ? AND is_bot = FALSE`), since)
		if err != nil {
			return fmt.Errorf("failed to query unique visitors: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := s.db.SelectContext(gctx, &stats.TopPosts, s.db.Rebind(`
			SELECT rs.post_id, p.title, p.slug, COUNT(*) AS views, COALESCE(SUM(rs.time_spent), 0) AS total_time
			FROM reading_sessions rs
			LEFT JOIN posts p ON p.id = rs.post_id
			WHERE rs.started_at >= ? AND rs.is_bot = FALSE
			GROUP BY rs.post_id, p.title, p.slug
			ORDER BY views DESC, rs.post_id
			LIMIT ?`), since, limit)
		if err != nil {
			return fmt.Errorf("failed to query top posts: %w", err)
		}
		for i := range stats.TopPosts {
			p := &stats.TopPosts[i]
			if p.Views > 0 {
				p.AvgTimePerView = float64(p.TotalTime) / float64(p.Views)
			}
		}
		return nil
	})

	g.Go(func() error {
		err := s.db.SelectContext(gctx, &stats.DailyTraffic, s.db.Rebind(fmt.Sprintf(`
			SELECT %s AS day,
				SUM(CASE WHEN is_bot THEN 0 ELSE 1 END) AS human_views,
				SUM(CASE WHEN is_bot THEN 1 ELSE 0 END) AS bot_views
			FROM reading_sessions
			WHERE started_at >= ?
			GROUP BY day
			ORDER BY day`, s.db.Dialect.DayBucket("started_at"))), since)
		if err != nil {
			return fmt.Errorf("failed to query daily traffic: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := s.db.SelectContext(gctx, &stats.TopReferrers, s.db.Rebind(`
			SELECT referrer, COUNT(*) AS count
			FROM reading_sessions
			WHERE started_at >= ? AND is_bot = FALSE AND referrer IS NOT NULL AND referrer <> ''
			GROUP BY referrer
			ORDER BY count DESC, referrer
			LIMIT ?`), since, limit)
		if err != nil {
			return fmt.Errorf("failed to query top referrers: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// BotTraffic lists the most frequent user agents among bot-flagged rows.
func (s *SessionStore) BotTraffic(ctx context.Context, days, limit int) ([]models.BotUserAgent, error) {
	since := utils.WindowStart(s.now(), days).UnixMilli()

	agents := []models.BotUserAgent{}
	err := s.db.SelectContext(ctx, &agents, s.db.Rebind(`
		SELECT user_agent, COUNT(*) AS count
		FROM reading_sessions
		WHERE started_at >= ? AND is_bot = TRUE
		GROUP BY user_agent
		ORDER BY count DESC, user_agent
		LIMIT ?`), since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bot traffic: %w", err)
	}

	for i := range agents {
		// behavior-flagged rows carry ordinary browser agents
		agents[i].Vendor = analytics.BotVendor(agents[i].UserAgent)
		if agents[i].Vendor == "" {
			agents[i].Vendor = analytics.UnknownBotVendor
		}
	}
	return agents, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
