package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreekar-ss/devbytes-blog/models"
	"github.com/sreekar-ss/devbytes-blog/tracker"
	"github.com/sreekar-ss/devbytes-blog/utils"
)

// A signed-in reader spends 95 seconds on a post, scrolls to 80%, and the
// tracker flushes twice on its timer and once on unload.
func TestEndToEnd_ReadingVisit(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	token := env.token(t, "alice", utils.RoleAuthor)
	client := tracker.NewClient(srv.URL, tracker.WithToken(token), tracker.WithUserAgent(browserUA))
	ctx := context.Background()

	before := myStats(t, env, token)

	start := time.Now().Add(-2 * time.Minute)
	visit := tracker.NewVisit(tracker.Config{
		PostID:   "post-1",
		PostSlug: "intro-to-go",
		Store:    tracker.NewMemoryStore(),
		Cooldown: tracker.DefaultCooldown,
	}, start)

	var persisted int
	send := func(snap models.TrackRequest) {
		resp, err := client.Track(ctx, snap)
		require.NoError(t, err)
		assert.False(t, resp.IsBot)
		persisted += *snap.TimeSpent
	}

	visit.Scroll(35)
	visit.SettleScroll()
	snap, ok := visit.Flush(start.Add(30 * time.Second))
	require.True(t, ok)
	send(snap)

	visit.Scroll(80)
	visit.SettleScroll()
	snap, ok = visit.Flush(start.Add(60 * time.Second))
	require.True(t, ok)
	send(snap)

	// the periodic timer racing the unload is suppressed by the cool-down
	_, ok = visit.Flush(start.Add(95*time.Second - 300*time.Millisecond))
	assert.False(t, ok)

	snap, ok = visit.Terminate(start.Add(95 * time.Second))
	require.True(t, ok)
	assert.Equal(t, 95, *snap.TimeSpent)
	assert.Equal(t, 80, *snap.ScrollDepth)
	send(snap)

	after := myStats(t, env, token)
	assert.Equal(t, int64(30+60+95), int64(persisted))
	assert.Equal(t, before.TotalReadingTime+int64(persisted), after.TotalReadingTime)
	assert.Equal(t, int64(1), after.UniquePostsRead)
	assert.Len(t, after.Sessions, 3, "each flush is its own row")
}

// An anonymous reader signs in afterwards and claims the visit.
func TestEndToEnd_AnonymousThenSync(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	store := tracker.NewMemoryStore()
	sender := tracker.NewBeacon(tracker.NewClient(srv.URL, tracker.WithUserAgent(browserUA)), time.Second)

	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	tr := tracker.New(tracker.Config{
		PostID:   "post-2",
		PostSlug: "channels",
		Store:    store,
		Sender:   sender,
		Clock:    clock,
	})
	go tr.Run(context.Background())
	tr.Scroll(60)

	mu.Lock()
	now = now.Add(45 * time.Second)
	mu.Unlock()
	tr.Stop()
	sender.Wait()

	sessionID := tracker.GetOrCreateSessionID(store)
	rows := env.rows(t, sessionID)
	require.Len(t, rows, 1)
	assert.Equal(t, 45, rows[0].TimeSpent)
	assert.Equal(t, 60, rows[0].ScrollDepth)
	assert.Nil(t, rows[0].UserID)

	token := env.token(t, "carol", utils.RoleAuthor)
	synced, err := tracker.NewClient(srv.URL, tracker.WithToken(token)).Sync(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), synced.Synced)
	tracker.ClearSessionID(store)

	stats := myStats(t, env, token)
	require.Len(t, stats.Sessions, 1)
	assert.Equal(t, "post-2", stats.Sessions[0].PostID)
	assert.Equal(t, "Channels in Depth", *stats.Sessions[0].PostTitle)
	assert.NotEqual(t, sessionID, tracker.GetOrCreateSessionID(store))
}

func myStats(t *testing.T, env *testEnv, token string) models.UserReadingStats {
	t.Helper()
	w := env.do(http.MethodGet, "/api/analytics/me?limit=50", nil, withBearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	return decode[models.UserReadingStats](t, w)
}
