package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MaxTimeSpent caps a snapshot's reported seconds at one day. Larger values
// would overflow the duration handed to the classifier and the INTEGER column.
const MaxTimeSpent = 86400

// ReadingSession is one flushed tracking snapshot. A single page visit
// usually produces several rows sharing a SessionID.
type ReadingSession struct {
	ID          string    `json:"id"`
	UserID      *string   `json:"userId"`
	PostID      string    `json:"postId"`
	SessionID   string    `json:"sessionId"`
	StartedAt   time.Time `json:"startedAt"`
	EndedAt     time.Time `json:"endedAt"`
	TimeSpent   int       `json:"timeSpent"`
	ScrollDepth int       `json:"scrollDepth"`
	IsBot       bool      `json:"isBot"`
	UserAgent   string    `json:"userAgent"`
	Referrer    *string   `json:"referrer"`
	IPHash      string    `json:"-"`
}

// TrackRequest is the snapshot body posted by the reading tracker.
// TimeSpent is in seconds; a pointer so an explicit 0 passes validation.
type TrackRequest struct {
	PostID        string     `json:"postId" binding:"required"`
	PostSlug      string     `json:"postSlug"`
	SessionID     string     `json:"sessionId" binding:"required"`
	UserID        *string    `json:"userId"`
	StartedAt     *Timestamp `json:"startedAt"`
	TimeSpent     *int       `json:"timeSpent" binding:"required,min=0,max=86400"`
	ScrollDepth   *int       `json:"scrollDepth"`
	HasJavaScript *bool      `json:"hasJavaScript"`
}

type TrackResponse struct {
	Success bool   `json:"success"`
	IsBot   bool   `json:"isBot"`
	BotType string `json:"botType"`
}

type SyncRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

type SyncResponse struct {
	Success bool  `json:"success"`
	Synced  int64 `json:"synced"`
}

// ClampScrollDepth bounds a reported scroll percentage to [0, 100].
func ClampScrollDepth(depth int) int {
	switch {
	case depth < 0:
		return 0
	case depth > 100:
		return 100
	default:
		return depth
	}
}

// Timestamp decodes either an RFC 3339 string or a number of unix
// milliseconds, the two forms browsers send for a Date. It encodes as RFC 3339.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var t time.Time
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
		ts.Time = t
		return nil
	}
	var millis int64
	if err := json.Unmarshal(data, &millis); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	ts.Time = time.UnixMilli(millis).UTC()
	return nil
}
