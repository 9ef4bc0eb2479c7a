package tracker

import (
	"encoding/json"
	"time"
)

const maxLocalHistory = 50

// LocalReading is a finished visit remembered on the client so anonymous
// readers can see their own history without an account.
type LocalReading struct {
	PostSlug    string    `json:"postSlug"`
	StartedAt   time.Time `json:"startedAt"`
	TimeSpent   int       `json:"timeSpent"`
	ScrollDepth int       `json:"scrollDepth"`
}

// LocalHistory reads the remembered visits, oldest first. Unreadable or
// corrupt storage yields an empty history.
func LocalHistory(store TokenStore) []LocalReading {
	if store == nil {
		return nil
	}
	raw, ok, err := store.Get(LocalHistoryKey)
	if err != nil || !ok {
		return nil
	}
	var readings []LocalReading
	if err := json.Unmarshal([]byte(raw), &readings); err != nil {
		return nil
	}
	return readings
}

// AddLocalReading appends r, keeping only the most recent visits.
func AddLocalReading(store TokenStore, r LocalReading) error {
	if store == nil {
		return ErrStorageUnavailable
	}
	readings := append(LocalHistory(store), r)
	if len(readings) > maxLocalHistory {
		readings = readings[len(readings)-maxLocalHistory:]
	}
	raw, err := json.Marshal(readings)
	if err != nil {
		return err
	}
	return store.Set(LocalHistoryKey, string(raw))
}

func ClearLocalHistory(store TokenStore) {
	if store != nil {
		_ = store.Delete(LocalHistoryKey)
	}
}

// LocalTotals sums remembered reading time and counts distinct posts.
func LocalTotals(store TokenStore) (totalSeconds int, uniquePosts int) {
	seen := make(map[string]struct{})
	for _, r := range LocalHistory(store) {
		totalSeconds += r.TimeSpent
		seen[r.PostSlug] = struct{}{}
	}
	return totalSeconds, len(seen)
}
