// Package analytics holds the request-independent pieces of the reading
// analytics pipeline: bot classification and client address hashing.
package analytics

import (
	"strings"
	"time"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Reasons identify the rule that produced a verdict.
const (
	ReasonUserAgent    = "user_agent"
	ReasonFastLoad     = "fast_load"
	ReasonNoScroll     = "no_scroll"
	ReasonNoJavaScript = "no_javascript"
	ReasonNone         = "none"
)

const (
	fastLoadThreshold = 100 * time.Millisecond
	noScrollThreshold = time.Second
)

// UnknownBotVendor labels user agents that only matched a generic pattern.
const UnknownBotVendor = "Unknown Bot"

// botPatterns are matched as lowercase substrings. The generic tail ("bot",
// "java", ...) deliberately casts a wide net.
var botPatterns = []string{
	// search engines
	"googlebot", "bingbot", "slurp", "duckduckbot", "baiduspider", "yandexbot", "sogou", "exabot",
	// AI crawlers
	"gptbot", "claudebot", "cohere-ai", "anthropic-ai", "perplexitybot", "youbot", "chatgpt",
	// social unfurlers
	"facebookexternalhit", "twitterbot", "linkedinbot", "slackbot", "discordbot", "telegrambot", "whatsapp",
	// SEO and monitoring
	"ahrefsbot", "semrushbot", "mj12bot", "dotbot", "rogerbot", "screaming frog", "sitebulb",
	// generic tooling
	"bot", "crawler", "spider", "scraper", "curl", "wget", "python-requests", "go-http-client",
	"java", "okhttp", "axios", "node-fetch", "headless", "phantom", "selenium", "puppeteer", "playwright",
}

var goodBotPatterns = []string{
	"googlebot", "bingbot", "slurp", "duckduckbot", "baiduspider", "yandexbot",
}

// botVendors is ordered; the first match names the vendor.
var botVendors = []struct {
	name    string
	pattern string
}{
	{"Google", "googlebot"},
	{"Bing", "bingbot"},
	{"Yahoo", "slurp"},
	{"DuckDuckGo", "duckduckbot"},
	{"Baidu", "baiduspider"},
	{"Yandex", "yandexbot"},
	{"OpenAI", "gptbot"},
	{"Anthropic", "claudebot"},
	{"Perplexity", "perplexitybot"},
	{"Facebook", "facebookexternalhit"},
	{"Twitter", "twitterbot"},
	{"LinkedIn", "linkedinbot"},
	{"Ahrefs", "ahrefsbot"},
	{"Semrush", "semrushbot"},
}

// Signals are client-reported behavioral measurements. Nil pointers mean the
// client did not report the value.
type Signals struct {
	TimeSpent     time.Duration
	ScrollDepth   *int
	HasJavaScript *bool
}

type Verdict struct {
	IsBot      bool       `json:"isBot"`
	IsGoodBot  bool       `json:"isGoodBot"`
	Confidence Confidence `json:"confidence"`
	Reason     string     `json:"reason"`
}

// BotType is the label returned to tracking clients.
func (v Verdict) BotType() string {
	if v.IsGoodBot {
		return "good"
	}
	return "unknown"
}

// Classify never fails: with no signal it returns a low-confidence human verdict.
func Classify(userAgent string, signals *Signals) Verdict {
	if IsBotUserAgent(userAgent) {
		return Verdict{
			IsBot:      true,
			IsGoodBot:  IsGoodBot(userAgent),
			Confidence: ConfidenceHigh,
			Reason:     ReasonUserAgent,
		}
	}

	if signals != nil {
		if reason := behaviorReason(*signals); reason != "" {
			return Verdict{IsBot: true, Confidence: ConfidenceMedium, Reason: reason}
		}
	}

	return Verdict{Confidence: ConfidenceLow, Reason: ReasonNone}
}

// IsBotUserAgent treats an empty user agent as a bot.
func IsBotUserAgent(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return true
	}
	return containsAny(strings.ToLower(userAgent), botPatterns)
}

func IsGoodBot(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	return containsAny(strings.ToLower(userAgent), goodBotPatterns)
}

// BotVendor returns "" for user agents that are not bots at all.
func BotVendor(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	ua := strings.ToLower(userAgent)
	for _, v := range botVendors {
		if strings.Contains(ua, v.pattern) {
			return v.name
		}
	}
	if containsAny(ua, botPatterns) {
		return UnknownBotVendor
	}
	return ""
}

func behaviorReason(s Signals) string {
	if s.TimeSpent < fastLoadThreshold {
		return ReasonFastLoad
	}
	if s.ScrollDepth != nil && *s.ScrollDepth == 0 && s.TimeSpent > noScrollThreshold {
		return ReasonNoScroll
	}
	if s.HasJavaScript != nil && !*s.HasJavaScript {
		return ReasonNoJavaScript
	}
	return ""
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
