package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sreekar-ss/devbytes-blog/models"
	"github.com/sreekar-ss/devbytes-blog/tracker"
)

const simulatedUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"

var simulateOpts struct {
	url       string
	postID    string
	postSlug  string
	duration  time.Duration
	scroll    int
	token     string
	userAgent string
	sync      bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay one page visit against a running API",
	Long: `Replays a visit of the given duration without waiting for it: the tracker
state is driven with a synthetic clock, flushing on the usual interval and
sending the final snapshot at the end. With --token the visit is attributed
to that reader; with --sync the anonymous visit is claimed afterwards.`,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simulateOpts.url, "url", "http://localhost:8080", "analytics API base URL")
	f.StringVar(&simulateOpts.postID, "post", "", "post id to read")
	f.StringVar(&simulateOpts.postSlug, "slug", "", "post slug")
	f.DurationVar(&simulateOpts.duration, "duration", 95*time.Second, "active reading time")
	f.IntVar(&simulateOpts.scroll, "scroll", 80, "maximum scroll depth in percent")
	f.StringVar(&simulateOpts.token, "token", "", "reader JWT")
	f.StringVar(&simulateOpts.userAgent, "user-agent", simulatedUserAgent, "User-Agent sent with each snapshot")
	f.BoolVar(&simulateOpts.sync, "sync", false, "claim the anonymous visit with --token after it ends")
	_ = simulateCmd.MarkFlagRequired("post")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	opts := simulateOpts
	if opts.sync && opts.token == "" {
		return fmt.Errorf("--sync requires --token")
	}

	clientOpts := []tracker.ClientOption{tracker.WithUserAgent(opts.userAgent)}
	if opts.token != "" && !opts.sync {
		clientOpts = append(clientOpts, tracker.WithToken(opts.token))
	}
	client := tracker.NewClient(opts.url, clientOpts...)
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store := tracker.NewMemoryStore()
	start := time.Now().Add(-opts.duration)
	visit := tracker.NewVisit(tracker.Config{
		PostID:   opts.postID,
		PostSlug: opts.postSlug,
		Store:    store,
		Cooldown: tracker.DefaultCooldown,
	}, start)

	send := func(kind string, snap models.TrackRequest) error {
		resp, err := client.Track(ctx, snap)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-5s timeSpent=%ds scroll=%d%% isBot=%t botType=%s\n",
			kind, *snap.TimeSpent, *snap.ScrollDepth, resp.IsBot, resp.BotType)
		return nil
	}

	// scroll grows linearly with reading time
	for at := tracker.DefaultFlushInterval; at < opts.duration; at += tracker.DefaultFlushInterval {
		visit.Scroll(opts.scroll * int(at) / int(opts.duration))
		visit.SettleScroll()
		if snap, ok := visit.Flush(start.Add(at)); ok {
			if err := send("flush", snap); err != nil {
				return err
			}
		}
	}

	visit.Scroll(opts.scroll)
	snap, ok := visit.Terminate(start.Add(opts.duration))
	if !ok {
		return fmt.Errorf("visit produced no final snapshot")
	}
	if err := send("final", snap); err != nil {
		return err
	}

	if opts.sync {
		synced, err := tracker.NewClient(opts.url, tracker.WithToken(opts.token)).Sync(ctx, visit.SessionID())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "sync  session=%s rows=%d\n", visit.SessionID(), synced.Synced)
		tracker.ClearSessionID(store)
	}
	return nil
}
