package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreekar-ss/devbytes-blog/models"
)

type recordingSender struct {
	mu    sync.Mutex
	snaps []models.TrackRequest
	err   error
}

func (s *recordingSender) Send(_ context.Context, snap models.TrackRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return s.err
}

func (s *recordingSender) all() []models.TrackRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TrackRequest(nil), s.snaps...)
}

func TestTracker_StopSendsFinalSnapshot(t *testing.T) {
	sender := &recordingSender{}
	store := NewMemoryStore()
	tr := New(Config{
		PostID:         "post-1",
		PostSlug:       "intro-to-go",
		Store:          store,
		Sender:         sender,
		FlushInterval:  time.Hour,
		ScrollDebounce: time.Hour,
	})

	go tr.Run(context.Background())
	tr.Scroll(40)
	tr.Scroll(75)
	tr.Scroll(20)
	tr.Stop()

	snaps := sender.all()
	require.Len(t, snaps, 1)
	assert.Equal(t, 75, *snaps[0].ScrollDepth)
	assert.Equal(t, "post-1", snaps[0].PostID)

	sessionID, _, _ := store.Get(SessionKey)
	assert.Equal(t, sessionID, snaps[0].SessionID)

	history := LocalHistory(store)
	require.Len(t, history, 1)
	assert.Equal(t, "intro-to-go", history[0].PostSlug)

	// events after termination are dropped without blocking
	tr.Scroll(100)
	tr.Hide()
}

func TestTracker_StopWithoutRun(t *testing.T) {
	sender := &recordingSender{}
	start := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	now := start
	tr := New(Config{
		PostID: "post-1",
		Store:  NewMemoryStore(),
		Sender: sender,
		Clock:  func() time.Time { return now },
	})

	tr.Scroll(55)
	now = start.Add(12 * time.Second)

	stopped := make(chan struct{})
	go func() {
		tr.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a running event loop")
	}

	snaps := sender.all()
	require.Len(t, snaps, 1)
	assert.Equal(t, 55, *snaps[0].ScrollDepth)
	assert.Equal(t, 12, *snaps[0].TimeSpent)

	assert.ErrorIs(t, tr.Run(context.Background()), ErrAlreadyStarted)
	<-tr.Done()
}

func TestTracker_PeriodicFlush(t *testing.T) {
	sender := &recordingSender{}
	tr := New(Config{
		PostID:         "post-1",
		Store:          NewMemoryStore(),
		Sender:         sender,
		FlushInterval:  10 * time.Millisecond,
		ScrollDebounce: time.Millisecond,
		Cooldown:       time.Millisecond,
	})

	go tr.Run(context.Background())
	tr.Scroll(50)

	require.Eventually(t, func() bool { return len(sender.all()) >= 2 }, time.Second, 5*time.Millisecond)
	tr.Stop()

	snaps := sender.all()
	last := snaps[len(snaps)-1]
	assert.Equal(t, 50, *last.ScrollDepth)
	for i := 1; i < len(snaps); i++ {
		assert.GreaterOrEqual(t, *snaps[i].ScrollDepth, *snaps[i-1].ScrollDepth)
		assert.GreaterOrEqual(t, *snaps[i].TimeSpent, *snaps[i-1].TimeSpent)
	}
}

func TestTracker_NoPeriodicFlushWhileHidden(t *testing.T) {
	sender := &recordingSender{}
	tr := New(Config{
		PostID:        "post-1",
		Store:         NewMemoryStore(),
		Sender:        sender,
		FlushInterval: 5 * time.Millisecond,
		StartHidden:   true,
	})

	go tr.Run(context.Background())
	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, sender.all())

	tr.Stop()
	assert.Len(t, sender.all(), 1)
}

func TestTracker_ContextCancelEndsVisit(t *testing.T) {
	sender := &recordingSender{err: errors.New("network down")}
	tr := New(Config{PostID: "post-1", Store: NewMemoryStore(), Sender: sender})

	ctx, cancel := context.WithCancel(context.Background())
	go tr.Run(ctx)
	cancel()

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("tracker did not stop")
	}
	assert.Len(t, sender.all(), 1, "send errors are swallowed")
}

func TestTracker_OptedOut(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, SetTrackingOptOut(store, true))
	sender := &recordingSender{}

	tr := New(Config{PostID: "post-1", Store: store, Sender: sender})
	require.NoError(t, tr.Run(context.Background()))

	tr.Scroll(50)
	tr.Stop()
	assert.Empty(t, sender.all())
}

type blockingSender struct {
	release chan struct{}
	sent    chan models.TrackRequest
}

func (s *blockingSender) Send(ctx context.Context, snap models.TrackRequest) error {
	<-s.release
	s.sent <- snap
	return errors.New("ignored")
}

func TestBeacon_DoesNotBlock(t *testing.T) {
	next := &blockingSender{release: make(chan struct{}), sent: make(chan models.TrackRequest, 1)}
	beacon := NewBeacon(next, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	assert.NoError(t, beacon.Send(ctx, models.TrackRequest{PostID: "post-1"}))
	cancel()

	close(next.release)
	beacon.Wait()
	assert.Equal(t, "post-1", (<-next.sent).PostID)
}

func TestClient_TrackAndSync(t *testing.T) {
	var gotAuth, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case trackPath:
			var req models.TrackRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PostID == "" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"Invalid request body"}`))
				return
			}
			w.Write([]byte(`{"success":true,"isBot":false,"botType":"unknown"}`))
		case syncPath:
			w.Write([]byte(`{"success":true,"synced":3}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", WithToken("tok"), WithUserAgent("Mozilla/5.0 test"))
	seconds := 12
	resp, err := client.Track(context.Background(), models.TrackRequest{PostID: "post-1", SessionID: "s", TimeSpent: &seconds})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "Mozilla/5.0 test", gotAgent)

	synced, err := client.Sync(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, int64(3), synced.Synced)

	err = client.Send(context.Background(), models.TrackRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid request body", apiErr.Message)
}
