package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/summary"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() summary.Request {
	return summary.Request{
		ProductID: 7,
		Reviews: []models.Review{
			{ID: 1, ProductID: 7, Author: "ann", Rating: 5, Comment: "love it"},
			{ID: 2, ProductID: 7, Author: "ben", Rating: 3, Comment: "ok"},
			{ID: 3, ProductID: 7, Author: "cy", Rating: 5, Comment: "great"},
		},
	}
}

func TestHTTPClientSummarize(t *testing.T) {
	var got requestPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"summary": "  Customers mostly love it.  "})
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, time.Second, nil)
	require.NoError(t, err)

	text, err := c.Summarize(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Customers mostly love it.", text)

	assert.Equal(t, int64(7), got.ProductID)
	require.Len(t, got.Reviews, 3)
	assert.Equal(t, reviewPayload{Author: "ben", Rating: 3, Comment: "ok"}, got.Reviews[1])
}

func TestHTTPClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, time.Second, nil)
	require.NoError(t, err)

	_, err = c.Summarize(context.Background(), sampleRequest())
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Equal(t, "model overloaded", httpErr.Body)
}

func TestHTTPClientEmptySummaryIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"summary": ""}`))
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, time.Second, nil)
	require.NoError(t, err)

	_, err = c.Summarize(context.Background(), sampleRequest())
	assert.Error(t, err)
}

func TestHTTPClientHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewHTTPClient(srv.URL, 10*time.Second, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Summarize(ctx, sampleRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewHTTPClientRequiresURL(t *testing.T) {
	_, err := NewHTTPClient("  ", time.Second, nil)
	assert.Error(t, err)
}

func TestLocalSummarize(t *testing.T) {
	text, err := Local{}.Summarize(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "3 reviews, average 4.3 out of 5. Most common rating: 5 (2 of 3).", text)

	one := summary.Request{ProductID: 1, Reviews: []models.Review{{Rating: 2}}}
	text, err = Local{}.Summarize(context.Background(), one)
	require.NoError(t, err)
	assert.Equal(t, "1 review, average 2.0 out of 5. Most common rating: 2 (1 of 1).", text)
}

func TestLocalRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Local{}.Summarize(ctx, sampleRequest())
	assert.ErrorIs(t, err, context.Canceled)
}
