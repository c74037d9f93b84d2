package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"catalog-service/internal/summary"

	"go.uber.org/zap"
)

type reviewPayload struct {
	Author  string `json:"author"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type requestPayload struct {
	ProductID int64           `json:"productId"`
	Reviews   []reviewPayload `json:"reviews"`
}

type responsePayload struct {
	Summary string `json:"summary"`
}

// HTTPError is a non-2xx answer from the summarizer service.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("summarizer http %d: %s", e.StatusCode, e.Body)
}

// HTTPClient calls an external summarizer over HTTP:
// POST {url} {productId, reviews:[{author, rating, comment}]} -> 200 {summary}.
type HTTPClient struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient creates a summarizer client. timeout bounds each request on top
// of whatever deadline the caller's context carries.
func NewHTTPClient(url string, timeout time.Duration, logger *zap.Logger) (*HTTPClient, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("summarizer url required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Summarize implements summary.Summarizer
func (c *HTTPClient) Summarize(ctx context.Context, req summary.Request) (string, error) {
	payload := requestPayload{
		ProductID: req.ProductID,
		Reviews:   make([]reviewPayload, 0, len(req.Reviews)),
	}
	for _, r := range req.Reviews {
		payload.Reviews = append(payload.Reviews, reviewPayload{Author: r.Author, Rating: r.Rating, Comment: r.Comment})
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("failed to encode summarizer request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("summarizer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read summarizer response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out responsePayload
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode summarizer response: %w", err)
	}
	text := strings.TrimSpace(out.Summary)
	if text == "" {
		return "", fmt.Errorf("summarizer returned an empty summary")
	}

	c.logger.Debug("Summarizer responded",
		zap.Int64("product_id", req.ProductID),
		zap.Int("reviews", len(req.Reviews)),
		zap.Int("chars", len(text)))
	return text, nil
}
