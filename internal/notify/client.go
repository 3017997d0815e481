package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Event is the webhook payload sent to the form/dashboard surface service.
type Event struct {
	Type       string    `json:"type"`
	RecordID   string    `json:"record_id"`
	UFID       string    `json:"ufid"`
	Name       string    `json:"name,omitempty"`
	Token      string    `json:"token,omitempty"`
	ResolvedBy string    `json:"resolved_by,omitempty"`
	At         time.Time `json:"at"`
}

// Client posts pending sign-out lifecycle events to an external webhook. The
// surface service renders the token link for the student from these events.
type Client struct {
	URL  string
	HTTP *http.Client
	Skip bool
}

// New creates a client. An empty URL or skip=true turns every Send into a
// no-op, so callers never need to nil-check.
func New(url string, skip bool) *Client {
	return &Client{
		URL:  url,
		Skip: skip || url == "",
		HTTP: &http.Client{Timeout: 5 * time.Second},
	}
}

// Send posts the event. Failures are returned for logging; the caller treats
// notification as best-effort.
func (c *Client) Send(ctx context.Context, evt Event) error {
	if c.Skip {
		return nil
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
