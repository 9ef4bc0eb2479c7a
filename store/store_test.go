package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sreekar-ss/devbytes-blog/config"
	"github.com/sreekar-ss/devbytes-blog/database"
	"github.com/sreekar-ss/devbytes-blog/models"
)

const (
	chromeUA    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:       database.DriverSQLite,
		URL:          filepath.Join(t.TempDir(), "analytics.db"),
		MaxIdleConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background(), true))

	posts := NewPostStore(db)
	for _, p := range []models.Post{
		{ID: "post-1", Slug: "intro-to-go", Title: "Intro to Go"},
		{ID: "post-2", Slug: "channels", Title: "Channels in Depth"},
		{ID: "post-3", Slug: "generics", Title: "Generics"},
	} {
		require.NoError(t, posts.CreatePost(context.Background(), &p))
	}
	return db
}

func strPtr(s string) *string { return &s }

type sessionOpt func(*models.ReadingSession)

func newSession(postID, sessionID string, opts ...sessionOpt) *models.ReadingSession {
	now := time.Now()
	rs := &models.ReadingSession{
		ID:          uuid.NewString(),
		PostID:      postID,
		SessionID:   sessionID,
		StartedAt:   now.Add(-time.Hour),
		EndedAt:     now.Add(-time.Hour).Add(time.Minute),
		TimeSpent:   60,
		ScrollDepth: 50,
		UserAgent:   chromeUA,
		IPHash:      "hash",
	}
	for _, o := range opts {
		o(rs)
	}
	return rs
}

func withUser(id string) sessionOpt    { return func(rs *models.ReadingSession) { rs.UserID = &id } }
func withTime(secs int) sessionOpt     { return func(rs *models.ReadingSession) { rs.TimeSpent = secs } }
func withReferrer(r string) sessionOpt { return func(rs *models.ReadingSession) { rs.Referrer = &r } }
func asBot(ua string) sessionOpt {
	return func(rs *models.ReadingSession) { rs.IsBot = true; rs.UserAgent = ua }
}
func startedAgo(d time.Duration) sessionOpt {
	return func(rs *models.ReadingSession) {
		rs.StartedAt = time.Now().Add(-d)
		rs.EndedAt = rs.StartedAt.Add(time.Minute)
	}
}

func insertAll(t *testing.T, s *SessionStore, sessions ...*models.ReadingSession) {
	t.Helper()
	for _, rs := range sessions {
		require.NoError(t, s.Insert(context.Background(), rs))
	}
}

func TestSessionStore_InsertRejectsInvalidRows(t *testing.T) {
	s := NewSessionStore(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	assert.ErrorIs(t, s.Insert(ctx, newSession("", "tok")), ErrInvalidSession)
	assert.ErrorIs(t, s.Insert(ctx, newSession("post-1", "")), ErrInvalidSession)
	assert.ErrorIs(t, s.Insert(ctx, newSession("post-1", "tok", withTime(-1))), ErrInvalidSession)
	assert.ErrorIs(t, s.Insert(ctx, newSession("post-1", "tok", func(rs *models.ReadingSession) { rs.ScrollDepth = 101 })), ErrInvalidSession)
}

func TestSessionStore_SyncClaimsOnlyUnownedRows(t *testing.T) {
	s := NewSessionStore(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	insertAll(t, s,
		newSession("post-1", "tok-a"),
		newSession("post-2", "tok-a"),
		newSession("post-3", "tok-a", withUser("bob")),
		newSession("post-1", "tok-b"),
	)

	n, err := s.SyncSessions(ctx, "tok-a", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// second call is a no-op
	n, err = s.SyncSessions(ctx, "tok-a", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// another user cannot take the rows over
	n, err = s.SyncSessions(ctx, "tok-a", "mallory")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	alice, err := s.UserStats(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, alice.TotalSessions)

	bob, err := s.UserStats(ctx, "bob", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, bob.TotalSessions)

	n, err = s.SyncSessions(ctx, "no-such-token", "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionStore_UserStats(t *testing.T) {
	s := NewSessionStore(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	insertAll(t, s,
		newSession("post-1", "tok", withUser("alice"), withTime(95), startedAgo(3*time.Hour)),
		newSession("post-1", "tok", withUser("alice"), withTime(120), startedAgo(2*time.Hour)),
		newSession("post-2", "tok", withUser("alice"), withTime(30), startedAgo(time.Hour)),
		newSession("post-3", "tok", withUser("alice"), withTime(999), asBot(googlebotUA)),
		newSession("unknown-post", "tok", withUser("alice"), withTime(5), startedAgo(4*time.Hour)),
	)

	stats, err := s.UserStats(ctx, "alice", 3)
	require.NoError(t, err)

	assert.Equal(t, int64(95+120+30+5), stats.TotalReadingTime)
	assert.Equal(t, int64(3), stats.UniquePostsRead)
	require.Len(t, stats.Sessions, 3)
	assert.Equal(t, 3, stats.TotalSessions)

	newest := stats.Sessions[0]
	assert.Equal(t, "post-2", newest.PostID)
	require.NotNil(t, newest.PostTitle)
	assert.Equal(t, "Channels in Depth", *newest.PostTitle)
	assert.Equal(t, "channels", *newest.PostSlug)

	all, err := s.UserStats(ctx, "alice", 10)
	require.NoError(t, err)
	last := all.Sessions[len(all.Sessions)-1]
	assert.Equal(t, "unknown-post", last.PostID)
	assert.Nil(t, last.PostTitle)

	empty, err := s.UserStats(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalReadingTime)
	assert.Empty(t, empty.Sessions)
}

func TestSessionStore_UserHistory(t *testing.T) {
	s := NewSessionStore(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	insertAll(t, s,
		newSession("post-1", "tok", withUser("alice"), withTime(10), startedAgo(49*time.Hour)),
		newSession("post-2", "tok", withUser("alice"), withTime(20), startedAgo(49*time.Hour)),
		newSession("post-1", "tok", withUser("alice"), withTime(40), startedAgo(time.Minute)),
		newSession("post-1", "tok", withUser("alice"), withTime(500), startedAgo(40*24*time.Hour)),
		newSession("post-1", "tok", withUser("alice"), withTime(7), asBot(googlebotUA)),
	)

	history, err := s.UserHistory(ctx, "alice", 30)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, time.Now().Add(-49*time.Hour).UTC().Format("2006-01-02"), history[0].Date)
	assert.Equal(t, int64(30), history[0].TimeSpent)
	assert.Equal(t, int64(2), history[0].SessionCount)
	assert.Equal(t, int64(40), history[1].TimeSpent)
}

func TestSessionStore_AdminStatsSplitsBots(t *testing.T) {
	s := NewSessionStore(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	var rows []*models.ReadingSession
	for i := 0; i < 80; i++ {
		post := "post-1"
		if i%4 == 0 {
			post = "post-2"
		}
		rows = append(rows, newSession(post, fmt.Sprintf("human-%d", i%40), withTime(60)))
	}
	for i := 0; i < 20; i++ {
		rows = append(rows, newSession("post-3", fmt.Sprintf("bot-%d", i), withTime(1), asBot(googlebotUA)))
	}
	insertAll(t, s, rows...)

	stats, err := s.AdminStats(ctx, 30, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(100), stats.TotalViews)
	assert.Equal(t, int64(80), stats.HumanViews)
	assert.Equal(t, int64(20), stats.BotViews)
	assert.Equal(t, 20.0, stats.BotPercentage)
	assert.Equal(t, int64(40), stats.UniqueVisitors)
	assert.Equal(t, 30, stats.WindowDays)

	require.Len(t, stats.TopPosts, 2, "bot-only posts are not ranked")
	assert.Equal(t, "post-1", stats.TopPosts[0].PostID)
	assert.Equal(t, int64(60), stats.TopPosts[0].Views)
	assert.Equal(t, 60.0, stats.TopPosts[0].AvgTimePerView)
	assert.Equal(t, "Intro to Go", *stats.TopPosts[0].PostTitle)
	assert.Equal(t, int64(20), stats.TopPosts[1].Views)

	var humans, bots int64
	for _, d := range stats.DailyTraffic {
		humans += d.HumanViews
		bots += d.BotViews
	}
	assert.Equal(t, int64(80), humans)
	assert.Equal(t, int64(20), bots)
}

func TestSessionStore_AdminStatsWindowAndReferrers(t *testing.T) {
	s := NewSessionStore(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	insertAll(t, s,
		newSession("post-1", "a", withReferrer("https://news.ycombinator.com")),
		newSession("post-1", "b", withReferrer("https://news.ycombinator.com")),
		newSession("post-2", "c", withReferrer("https://reddit.com")),
		newSession("post-2", "d", withReferrer("")),
		newSession("post-2", "e", withReferrer("https://spam.example"), asBot("curl/8.0")),
		newSession("post-3", "old", withReferrer("https://old.example"), startedAgo(10*24*time.Hour)),
	)

	stats, err := s.AdminStats(ctx, 7, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(5), stats.TotalViews)
	assert.Equal(t, 20.0, stats.BotPercentage)
	require.Len(t, stats.TopReferrers, 2)
	assert.Equal(t, models.ReferrerCount{Referrer: "https://news.ycombinator.com", Count: 2}, stats.TopReferrers[0])
	assert.Equal(t, "https://reddit.com", stats.TopReferrers[1].Referrer)

	wide, err := s.AdminStats(ctx, 30, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(6), wide.TotalViews)
	assert.Len(t, wide.TopPosts, 1)
	assert.Len(t, wide.TopReferrers, 1)
}

func TestSessionStore_AdminStatsEmpty(t *testing.T) {
	s := NewSessionStore(newTestDB(t), zap.NewNop())

	stats, err := s.AdminStats(context.Background(), 30, 10)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalViews)
	assert.Zero(t, stats.BotPercentage)
	assert.NotNil(t, stats.TopPosts)
	assert.NotNil(t, stats.DailyTraffic)
	assert.NotNil(t, stats.TopReferrers)
}

func TestSessionStore_BotTraffic(t *testing.T) {
	s := NewSessionStore(newTestDB(t), zap.NewNop())

	insertAll(t, s,
		newSession("post-1", "g1", asBot(googlebotUA)),
		newSession("post-1", "g2", asBot(googlebotUA)),
		newSession("post-1", "c1", asBot("Mozilla/5.0 (compatible; ClaudeBot/1.0; +claudebot@anthropic.com)")),
		newSession("post-1", "b1", asBot(chromeUA)),
		newSession("post-1", "h1"),
	)

	agents, err := s.BotTraffic(context.Background(), 30, 10)
	require.NoError(t, err)
	require.Len(t, agents, 3)

	assert.Equal(t, googlebotUA, agents[0].UserAgent)
	assert.Equal(t, int64(2), agents[0].Count)
	assert.Equal(t, "Google", agents[0].Vendor)

	vendors := map[string]string{}
	for _, a := range agents {
		vendors[a.UserAgent] = a.Vendor
	}
	assert.Equal(t, "Anthropic", vendors["Mozilla/5.0 (compatible; ClaudeBot/1.0; +claudebot@anthropic.com)"])
	assert.Equal(t, "Unknown Bot", vendors[chromeUA])
}

func TestPostStore_GetPostByID(t *testing.T) {
	posts := NewPostStore(newTestDB(t))

	post, err := posts.GetPostByID(context.Background(), "post-2")
	require.NoError(t, err)
	assert.Equal(t, "channels", post.Slug)

	_, err = posts.GetPostByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestSQLEventStore(t *testing.T) {
	events := NewSQLEventStore(newTestDB(t), zap.NewNop())
	ctx := context.Background()

	now := time.Now()
	batch := []models.AnalyticsEvent{
		{EventID: "e1", EventType: models.EventTypeLLMsTxt, Path: "/llms.txt", SessionID: "s1", IsBot: true, UserAgent: "GPTBot/1.0", IPHash: "h", CreatedAt: now},
		{EventID: "e2", EventType: models.EventTypeLLMsTxt, Path: "/llms.txt", SessionID: "s2", IsBot: true, UserAgent: "GPTBot/1.0", IPHash: "h", CreatedAt: now},
		{EventID: "e3", EventType: models.EventTypeRSSFeed, Path: "/feed.xml", SessionID: "s3", UserAgent: chromeUA, IPHash: "h",
			Metadata: json.RawMessage(`{"format":"rss"}`), CreatedAt: now},
		{EventID: "e4", EventType: models.EventTypeAPICall, Path: "/api/posts", SessionID: "s4", UserAgent: chromeUA, IPHash: "h",
			CreatedAt: now.Add(-60 * 24 * time.Hour)},
	}
	require.NoError(t, events.InsertEvents(ctx, batch))
	require.NoError(t, events.InsertEvents(ctx, nil))

	usage, err := events.EndpointUsage(ctx, 30, 10)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, models.EndpointUsage{EventType: models.EventTypeLLMsTxt, Path: "/llms.txt", IsBot: true, Count: 2}, usage[0])
	assert.Equal(t, models.EndpointUsage{EventType: models.EventTypeRSSFeed, Path: "/feed.xml", IsBot: false, Count: 1}, usage[1])

	// duplicate ids roll back the whole batch
	err = events.InsertEvents(ctx, []models.AnalyticsEvent{
		{EventID: "e5", EventType: models.EventTypePageView, Path: "/", SessionID: "s", UserAgent: chromeUA, IPHash: "h", CreatedAt: now},
		{EventID: "e1", EventType: models.EventTypePageView, Path: "/", SessionID: "s", UserAgent: chromeUA, IPHash: "h", CreatedAt: now},
	})
	assert.Error(t, err)

	usage, err = events.EndpointUsage(ctx, 30, 10)
	require.NoError(t, err)
	assert.Len(t, usage, 2)
}
