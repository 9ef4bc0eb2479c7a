package tracker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sreekar-ss/devbytes-blog/models"
)

// ErrAlreadyStarted is returned by Run when the tracker is already running or
// was stopped before Run was called.
var ErrAlreadyStarted = errors.New("tracker already started")

const (
	DefaultFlushInterval  = 30 * time.Second
	DefaultScrollDebounce = 2 * time.Second
	DefaultCooldown       = time.Second
)

type Config struct {
	PostID   string
	PostSlug string
	// UserID is sent along for signed-in readers; the server only honours it
	// when the request is authenticated as the same user.
	UserID *string

	Store  TokenStore
	Sender Sender

	FlushInterval  time.Duration
	ScrollDebounce time.Duration
	Cooldown       time.Duration
	StartHidden    bool

	// Clock defaults to time.Now.
	Clock  func() time.Time
	Logger *zap.Logger
}

func (c *Config) setDefaults() {
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.ScrollDebounce <= 0 {
		c.ScrollDebounce = DefaultScrollDebounce
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

type eventKind int

const (
	eventScroll eventKind = iota
	eventHide
	eventShow
	eventStop
)

type event struct {
	kind  eventKind
	depth int
}

// Tracker measures one page visit. Page events are posted to it from any
// goroutine; Run applies them one at a time.
type Tracker struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	visit  *Visit

	events  chan event
	done    chan struct{}
	started atomic.Bool
}

// New starts the visit clock immediately; Run only begins processing events.
func New(cfg Config) *Tracker {
	cfg.setDefaults()
	return &Tracker{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    cfg.Clock,
		visit:  NewVisit(cfg, cfg.Clock()),
		events: make(chan event, 16),
		done:   make(chan struct{}),
	}
}

func (t *Tracker) Scroll(depth int) { t.post(event{kind: eventScroll, depth: depth}) }
func (t *Tracker) Hide()            { t.post(event{kind: eventHide}) }
func (t *Tracker) Show()            { t.post(event{kind: eventShow}) }

// Stop terminates the visit and waits until the final snapshot has been
// handed to the sender. If Run was never called, Stop applies the queued page
// events and sends the final snapshot itself.
func (t *Tracker) Stop() {
	if t.started.CompareAndSwap(false, true) {
		defer close(t.done)
		t.drain()
		if t.visit.Enabled() {
			t.finish(context.Background(), t.visit)
		}
		return
	}
	t.post(event{kind: eventStop})
	<-t.done
}

func (t *Tracker) drain() {
	for {
		select {
		case ev := <-t.events:
			t.apply(ev)
		default:
			return
		}
	}
}

// apply handles the page events that need no timers.
func (t *Tracker) apply(ev event) {
	switch ev.kind {
	case eventScroll:
		t.visit.Scroll(ev.depth)
	case eventHide:
		t.visit.Hide(t.now())
	case eventShow:
		t.visit.Show(t.now())
	}
}

// Done is closed when Run returns.
func (t *Tracker) Done() <-chan struct{} { return t.done }

func (t *Tracker) post(ev event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

// Run drives the visit until Stop is called or ctx is cancelled. Both end the
// visit with a forced final snapshot.
func (t *Tracker) Run(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer close(t.done)

	visit := t.visit
	if !visit.Enabled() {
		t.logger.Debug("Tracking disabled by visitor opt-out", zap.String("post_id", t.cfg.PostID))
		return nil
	}
	sendCtx := context.WithoutCancel(ctx)

	flush := time.NewTicker(t.cfg.FlushInterval)
	defer flush.Stop()

	debounce := time.NewTimer(t.cfg.ScrollDebounce)
	debounce.Stop()
	defer debounce.Stop()
	var settle <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			t.finish(sendCtx, visit)
			return nil

		case ev := <-t.events:
			if ev.kind == eventStop {
				t.finish(sendCtx, visit)
				return nil
			}
			t.apply(ev)
			if ev.kind == eventScroll {
				debounce.Reset(t.cfg.ScrollDebounce)
				settle = debounce.C
			}

		case <-settle:
			settle = nil
			visit.SettleScroll()

		case <-flush.C:
			if snap, ok := visit.Flush(t.now()); ok {
				t.send(sendCtx, snap)
			}
		}
	}
}

func (t *Tracker) finish(ctx context.Context, visit *Visit) {
	snap, ok := visit.Terminate(t.now())
	if !ok {
		return
	}
	t.send(ctx, snap)

	if snap.UserID == nil {
		err := AddLocalReading(t.cfg.Store, LocalReading{
			PostSlug:    snap.PostSlug,
			StartedAt:   visit.StartedAt(),
			TimeSpent:   *snap.TimeSpent,
			ScrollDepth: *snap.ScrollDepth,
		})
		if err != nil {
			t.logger.Debug("Local reading history not saved", zap.Error(err))
		}
	}
}

func (t *Tracker) send(ctx context.Context, snap models.TrackRequest) {
	if err := t.cfg.Sender.Send(ctx, snap); err != nil {
		t.logger.Debug("Snapshot dropped", zap.String("post_id", snap.PostID), zap.Error(err))
	}
}
