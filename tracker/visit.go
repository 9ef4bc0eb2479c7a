package tracker

import (
	"time"

	"github.com/sreekar-ss/devbytes-blog/models"
)

type State int

const (
	StateInitializing State = iota
	StateActive
	StateBackgrounded
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateBackgrounded:
		return "backgrounded"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Visit is the measurement state of one page visit. It is not safe for
// concurrent use; Tracker confines it to its event loop.
type Visit struct {
	postID   string
	postSlug string
	userID   *string
	cooldown time.Duration

	state     State
	disabled  bool
	sessionID string

	startedAt   time.Time
	activeSince time.Time
	accumulated time.Duration

	maxScroll     int
	pendingScroll int

	lastSent time.Time
}

// NewVisit starts measuring at now. A visitor who opted out gets a visit that
// is already terminated and never produces a snapshot.
func NewVisit(cfg Config, now time.Time) *Visit {
	v := &Visit{
		postID:   cfg.PostID,
		postSlug: cfg.PostSlug,
		userID:   cfg.UserID,
		cooldown: cfg.Cooldown,
		state:    StateInitializing,
	}

	if HasOptedOut(cfg.Store) {
		v.disabled = true
		v.state = StateTerminated
		return v
	}

	v.sessionID = GetOrCreateSessionID(cfg.Store)
	v.startedAt = now
	if cfg.StartHidden {
		v.state = StateBackgrounded
	} else {
		v.state = StateActive
		v.activeSince = now
	}
	return v
}

func (v *Visit) State() State         { return v.state }
func (v *Visit) Enabled() bool        { return !v.disabled }
func (v *Visit) SessionID() string    { return v.sessionID }
func (v *Visit) MaxScroll() int       { return v.maxScroll }
func (v *Visit) StartedAt() time.Time { return v.startedAt }

// Scroll records a raw scroll position. It only takes effect once the
// debounce settles.
func (v *Visit) Scroll(depth int) {
	if v.state == StateTerminated {
		return
	}
	depth = models.ClampScrollDepth(depth)
	if depth > v.pendingScroll {
		v.pendingScroll = depth
	}
}

// SettleScroll folds the pending scroll position into the visit maximum.
func (v *Visit) SettleScroll() {
	if v.pendingScroll > v.maxScroll {
		v.maxScroll = v.pendingScroll
	}
}

// Hide stops the active-time clock.
func (v *Visit) Hide(now time.Time) {
	if v.state != StateActive {
		return
	}
	v.accumulated += nonNegative(now.Sub(v.activeSince))
	v.state = StateBackgrounded
}

// Show restarts the active-time clock from now.
func (v *Visit) Show(now time.Time) {
	if v.state != StateBackgrounded {
		return
	}
	v.activeSince = now
	v.state = StateActive
}

func (v *Visit) ActiveTime(now time.Time) time.Duration {
	total := v.accumulated
	if v.state == StateActive {
		total += nonNegative(now.Sub(v.activeSince))
	}
	return total
}

// Flush returns a periodic snapshot. It produces nothing unless the visit is
// active and the last send is older than the cool-down.
func (v *Visit) Flush(now time.Time) (models.TrackRequest, bool) {
	if v.state != StateActive {
		return models.TrackRequest{}, false
	}
	if !v.lastSent.IsZero() && now.Sub(v.lastSent) < v.cooldown {
		return models.TrackRequest{}, false
	}
	return v.snapshot(now), true
}

// Terminate ends the visit and returns the final snapshot regardless of the
// cool-down. Only the first call produces one.
func (v *Visit) Terminate(now time.Time) (models.TrackRequest, bool) {
	if v.state == StateTerminated {
		return models.TrackRequest{}, false
	}
	v.Hide(now)
	v.SettleScroll()
	snap := v.snapshot(now)
	v.state = StateTerminated
	return snap, true
}

func (v *Visit) snapshot(now time.Time) models.TrackRequest {
	v.lastSent = now

	seconds := min(int((v.ActiveTime(now)+time.Second/2)/time.Second), models.MaxTimeSpent)
	scroll := v.maxScroll
	hasJS := true
	startedAt := v.startedAt.UTC()

	return models.TrackRequest{
		PostID:        v.postID,
		PostSlug:      v.postSlug,
		SessionID:     v.sessionID,
		UserID:        v.userID,
		StartedAt:     models.NewTimestamp(startedAt),
		TimeSpent:     &seconds,
		ScrollDepth:   &scroll,
		HasJavaScript: &hasJS,
	}
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
