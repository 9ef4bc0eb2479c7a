package models

import "time"

// SessionSummary is a reading-history row joined with the post it belongs to.
type SessionSummary struct {
	ID          string    `json:"id"`
	PostID      string    `json:"postId"`
	PostTitle   *string   `json:"postTitle"`
	PostSlug    *string   `json:"postSlug"`
	StartedAt   time.Time `json:"startedAt"`
	TimeSpent   int       `json:"timeSpent"`
	ScrollDepth int       `json:"scrollDepth"`
}

// UserReadingStats only counts human rows. TotalReadingTime sums every
// snapshot row, so a visit flushed several times is counted several times.
type UserReadingStats struct {
	Sessions         []SessionSummary `json:"sessions"`
	TotalReadingTime int64            `json:"totalReadingTime"`
	UniquePostsRead  int64            `json:"uniquePostsRead"`
	TotalSessions    int              `json:"totalSessions"`
}

type DailyReading struct {
	Date         string `json:"date" db:"day"`
	TimeSpent    int64  `json:"timeSpent" db:"time_spent"`
	SessionCount int64  `json:"sessionCount" db:"session_count"`
}

type TopPost struct {
	PostID         string  `json:"postId" db:"post_id"`
	PostTitle      *string `json:"postTitle" db:"title"`
	PostSlug       *string `json:"postSlug" db:"slug"`
	Views          int64   `json:"views" db:"views"`
	TotalTime      int64   `json:"totalTime" db:"total_time"`
	AvgTimePerView float64 `json:"avgTimePerView" db:"-"`
}

type DailyTraffic struct {
	Date       string `json:"date" db:"day"`
	HumanViews int64  `json:"humanViews" db:"human_views"`
	BotViews   int64  `json:"botViews" db:"bot_views"`
}

type ReferrerCount struct {
	Referrer string `json:"referrer" db:"referrer"`
	Count    int64  `json:"count" db:"count"`
}

// AdminStats covers a trailing window of WindowDays ending at GeneratedAt.
// View counts are row counts.
type AdminStats struct {
	WindowDays     int             `json:"windowDays"`
	GeneratedAt    time.Time       `json:"generatedAt"`
	TotalViews     int64           `json:"totalViews"`
	HumanViews     int64           `json:"humanViews"`
	BotViews       int64           `json:"botViews"`
	BotPercentage  float64         `json:"botPercentage"`
	UniqueVisitors int64           `json:"uniqueVisitors"`
	TopPosts       []TopPost       `json:"topPosts"`
	DailyTraffic   []DailyTraffic  `json:"dailyTraffic"`
	TopReferrers   []ReferrerCount `json:"topReferrers"`
}

type BotUserAgent struct {
	UserAgent string `json:"userAgent" db:"user_agent"`
	Vendor    string `json:"vendor" db:"-"`
	Count     int64  `json:"count" db:"count"`
}

// Percentage returns part/total*100 rounded to one decimal, 0 when total is 0.
func Percentage(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(part) * 1000 / float64(total)
	return float64(int64(p+0.5)) / 10
}
