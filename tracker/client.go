package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sreekar-ss/devbytes-blog/models"
)

const (
	trackPath = "/api/analytics/track"
	syncPath  = "/api/analytics/sync"
)

// Sender delivers one snapshot to the ingestion endpoint.
type Sender interface {
	Send(ctx context.Context, snap models.TrackRequest) error
}

// Client talks to the analytics API synchronously.
type Client struct {
	baseURL   string
	http      *http.Client
	token     string
	userAgent string
}

type ClientOption func(*Client)

// WithToken authenticates requests as a signed-in reader.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithUserAgent overrides the Go default agent, which the server counts as a bot.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Send(ctx context.Context, snap models.TrackRequest) error {
	_, err := c.Track(ctx, snap)
	return err
}

// Track posts a snapshot and returns the server's verdict.
func (c *Client) Track(ctx context.Context, snap models.TrackRequest) (*models.TrackResponse, error) {
	var resp models.TrackResponse
	if err := c.post(ctx, trackPath, snap, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sync claims the anonymous token's history for the authenticated reader.
func (c *Client) Sync(ctx context.Context, sessionID string) (*models.SyncResponse, error) {
	var resp models.SyncResponse
	if err := c.post(ctx, syncPath, models.SyncRequest{SessionID: sessionID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&apiErr)
		return &APIError{StatusCode: res.StatusCode, Message: apiErr.Error}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("analytics api returned %d: %s", e.StatusCode, e.Message)
}

// Beacon hands snapshots to another Sender without waiting for them. Delivery
// is at most once: there is no retry and failures are discarded.
type Beacon struct {
	next    Sender
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewBeacon(next Sender, timeout time.Duration) *Beacon {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Beacon{next: next, timeout: timeout}
}

// Send always returns nil immediately.
func (b *Beacon) Send(ctx context.Context, snap models.TrackRequest) error {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
		defer cancel()
		_ = b.next.Send(sendCtx, snap)
	}()
	return nil
}

// Wait blocks until every in-flight send has finished.
func (b *Beacon) Wait() {
	b.wg.Wait()
}
