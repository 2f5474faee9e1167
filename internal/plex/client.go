package plex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// fetchTimeout bounds one schedule request end to end.
const fetchTimeout = 5 * time.Second

// scheduledPath is the Plex DVR scheduled-recordings endpoint.
const scheduledPath = "/media/subscriptions/scheduled"

// Source fetches the raw recording schedule.
type Source interface {
	FetchSchedule(ctx context.Context) (*RawSchedulePayload, error)
}

// Client fetches the recording schedule from a Plex server.
type Client struct {
	host  string
	token string
	http  *http.Client
}

// NewClient creates a schedule client for the given Plex base URL.
func NewClient(host, token string) *Client {
	return &Client{
		host:  host,
		token: token,
		http:  &http.Client{Timeout: fetchTimeout},
	}
}

// FetchSchedule requests the scheduled recordings and returns the validated
// payload.
func (c *Client) FetchSchedule(ctx context.Context) (*RawSchedulePayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+scheduledPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Plex-Token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrFetchFailed, err)
	}

	return ParsePayload(body)
}
