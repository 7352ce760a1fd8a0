package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stockalert/internal/ingest"
)

// Client fetches channel messages over HTTP. Fetches are rate limited to
// respect the upstream source's limits and paged until the window is
// exhausted.
type Client struct {
	host       string
	httpClient *http.Client
	limiter    *rate.Limiter
	pageLimit  int
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("source API error (%d): %s", e.Status, e.Body)
}

type Options struct {
	BaseURL    string
	PageLimit  int
	RatePerSec float64
	RateBurst  int
}

func NewClient(httpClient *http.Client, opts Options) *Client {
	pageLimit := opts.PageLimit
	if pageLimit <= 0 {
		pageLimit = 200
	}
	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	return &Client{
		host:       strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    limiter,
		pageLimit:  pageLimit,
	}
}

type messagePage struct {
	Messages []wireMessage `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

type wireMessage struct {
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Messages returns every message for channel with since <= timestamp <
// until, in source-delivery order.
func (c *Client) Messages(ctx context.Context, channel string, since, until time.Time) ([]ingest.Message, error) {
	var out []ingest.Message
	offset := 0
	for {
		page, err := c.fetchPage(ctx, channel, since, until, offset)
		if err != nil {
			return nil, err
		}
		for _, m := range page.Messages {
			out = append(out, ingest.Message{
				Channel:   channel,
				Timestamp: m.Timestamp,
				Text:      m.Text,
			})
		}
		if !page.HasMore || len(page.Messages) == 0 {
			return out, nil
		}
		offset += len(page.Messages)
	}
}

func (c *Client) fetchPage(ctx context.Context, channel string, since, until time.Time, offset int) (*messagePage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	query := url.Values{}
	query.Set("since", since.UTC().Format(time.RFC3339))
	query.Set("until", until.UTC().Format(time.RFC3339))
	query.Set("limit", strconv.Itoa(c.pageLimit))
	query.Set("offset", strconv.Itoa(offset))
	fullURL := fmt.Sprintf("%s/channels/%s/messages?%s", c.host, url.PathEscape(channel), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var page messagePage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode message page: %w", err)
	}
	return &page, nil
}
