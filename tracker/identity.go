package tracker

import (
	"errors"
	"sync"

	"github.com/sreekar-ss/devbytes-blog/utils"
)

// Keys under which the tracker keeps its client-side state.
const (
	SessionKey      = "devbytes_session_id"
	OptOutKey       = "devbytes_tracking_opt_out"
	LocalHistoryKey = "devbytes_reading_sessions"
)

var ErrStorageUnavailable = errors.New("client storage unavailable")

// TokenStore is the visitor's persistent key/value storage, the equivalent of
// browser localStorage.
type TokenStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// GetOrCreateSessionID returns the stored anonymous token, creating and
// persisting one if needed. When the store fails the caller still gets a
// fresh token, it just won't survive the visit.
func GetOrCreateSessionID(store TokenStore) string {
	if store == nil {
		return utils.GenerateSessionID()
	}
	id, ok, err := store.Get(SessionKey)
	if err != nil {
		return utils.GenerateSessionID()
	}
	if ok && id != "" {
		return id
	}

	id = utils.GenerateSessionID()
	_ = store.Set(SessionKey, id)
	return id
}

// ClearSessionID forgets the anonymous token once its rows have been synced.
func ClearSessionID(store TokenStore) {
	if store != nil {
		_ = store.Delete(SessionKey)
	}
}

// HasOptedOut reports false when the preference cannot be read.
func HasOptedOut(store TokenStore) bool {
	if store == nil {
		return false
	}
	v, ok, err := store.Get(OptOutKey)
	return err == nil && ok && v == "true"
}

func SetTrackingOptOut(store TokenStore, optOut bool) error {
	if store == nil {
		return ErrStorageUnavailable
	}
	if optOut {
		return store.Set(OptOutKey, "true")
	}
	return store.Delete(OptOutKey)
}
