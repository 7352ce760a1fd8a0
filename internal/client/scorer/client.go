package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"stockalert/internal/sentiment"
)

// Client calls the external sentiment inference endpoint. One call per
// message; failures surface to the aggregator, which degrades to "no
// sample".
type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("scorer API error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string) *Client {
	return &Client{
		host:       strings.TrimRight(host, "/"),
		httpClient: httpClient,
	}
}

type scoreRequest struct {
	Text string `json:"text"`
}

type scoreResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (c *Client) Score(ctx context.Context, text string) (sentiment.Result, error) {
	payload, err := json.Marshal(scoreRequest{Text: text})
	if err != nil {
		return sentiment.Result{}, fmt.Errorf("failed to encode score request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/score", bytes.NewReader(payload))
	if err != nil {
		return sentiment.Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return sentiment.Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return sentiment.Result{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return sentiment.Result{}, &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var sr scoreResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return sentiment.Result{}, fmt.Errorf("failed to decode score response: %w", err)
	}
	return sentiment.Result{Label: sr.Label, Confidence: sr.Confidence}, nil
}
