package models

import (
	"encoding/json"
	"time"
)

// Machine-endpoint event types.
const (
	EventTypePageView = "page_view"
	EventTypeAPICall  = "api_call"
	EventTypeLLMsTxt  = "llms_txt"
	EventTypeRSSFeed  = "rss_feed"
)

func IsValidEventType(eventType string) bool {
	switch eventType {
	case EventTypePageView, EventTypeAPICall, EventTypeLLMsTxt, EventTypeRSSFeed:
		return true
	default:
		return false
	}
}

// AnalyticsEvent records a hit on a machine-readable endpoint (llms.txt,
// feed.xml, the JSON API).
type AnalyticsEvent struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Path      string          `json:"path"`
	UserID    *string         `json:"userId,omitempty"`
	SessionID string          `json:"sessionId"`
	IsBot     bool            `json:"isBot"`
	UserAgent string          `json:"userAgent"`
	Referrer  *string         `json:"referrer,omitempty"`
	IPHash    string          `json:"-"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// EventRequest is one hit as reported by the site edge.
type EventRequest struct {
	EventType string          `json:"eventType" binding:"required"`
	Path      string          `json:"path" binding:"required"`
	SessionID string          `json:"sessionId"`
	Metadata  json.RawMessage `json:"metadata"`
}

type EndpointUsage struct {
	EventType string `json:"eventType" db:"event_type"`
	Path      string `json:"path" db:"path"`
	IsBot     bool   `json:"isBot" db:"is_bot"`
	Count     uint64 `json:"count" db:"count"`
}
