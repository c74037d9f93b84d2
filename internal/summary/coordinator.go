package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-service/internal/apperr"
	"catalog-service/internal/models"
	"catalog-service/internal/reviews"
	"catalog-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// NoReviewsText is returned for a product with an empty review set.
const NoReviewsText = "No reviews yet."

// Request is what the external summarizer receives.
type Request struct {
	ProductID int64
	Reviews   []models.Review
}

// Summarizer turns a review set into text. Implementations must honour ctx.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (string, error)
}

// Entry is a cached summary and the review-set version it was generated from.
type Entry struct {
	Text    string `json:"text"`
	Version uint64 `json:"version"`
}

// Cache stores one entry per product. Put must not replace an entry with a
// higher version.
type Cache interface {
	Get(ctx context.Context, productID int64) (Entry, bool, error)
	Put(ctx context.Context, productID int64, entry Entry) error
}

// Source provides review snapshots.
type Source interface {
	Snapshot(productID int64) (*reviews.Set, error)
}

// Result is a summary matching one review-set version.
type Result struct {
	ProductID int64  `json:"productId"`
	Text      string `json:"summary"`
	Version   uint64 `json:"version"`
	Cached    bool   `json:"-"`
}

// Coordinator serves per-product summaries, regenerating them lazily when the
// review set has moved past the cached version.
type Coordinator struct {
	source     Source
	summarizer Summarizer
	cache      Cache
	timeout    time.Duration
	logger     *zap.Logger

	group singleflight.Group
}

// NewCoordinator creates a summary coordinator
func NewCoordinator(source Source, summarizer Summarizer, cache Cache, timeout time.Duration, logger *zap.Logger) *Coordinator {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		source:     source,
		summarizer: summarizer,
		cache:      cache,
		timeout:    timeout,
		logger:     logger,
	}
}

// GetSummary returns the summary for the product's current review set.
func (c *Coordinator) GetSummary(ctx context.Context, productID int64) (Result, error) {
	set, err := c.source.Snapshot(productID)
	if err != nil {
		return Result{}, err
	}
	return c.ForSet(ctx, set)
}

// ForSet returns the summary for exactly this snapshot, so it can be shown next
// to set.Reviews without being older than them.
func (c *Coordinator) ForSet(ctx context.Context, set *reviews.Set) (Result, error) {
	ctx, span := util.StartSpan(ctx, "SummaryCoordinator.ForSet")
	defer span.End()

	if len(set.Reviews) == 0 {
		return Result{ProductID: set.ProductID, Text: NoReviewsText, Version: set.Version}, nil
	}

	entry, ok, err := c.cache.Get(ctx, set.ProductID)
	if err != nil {
		c.logger.Warn("Summary cache read failed",
			zap.Int64("product_id", set.ProductID),
			zap.Error(err))
	} else if ok && entry.Version == set.Version {
		util.SummaryCacheHitsTotal.Inc()
		return Result{ProductID: set.ProductID, Text: entry.Text, Version: entry.Version, Cached: true}, nil
	}
	util.SummaryCacheMissesTotal.Inc()

	key := fmt.Sprintf("%d:%d", set.ProductID, set.Version)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.generate(context.WithoutCancel(ctx), set)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Result{}, apperr.SummaryUnavailable(set.ProductID, res.Err)
		}
		return Result{ProductID: set.ProductID, Text: res.Val.(string), Version: set.Version}, nil
	case <-ctx.Done():
		// the shared call keeps running and still fills the cache
		return Result{}, apperr.SummaryUnavailable(set.ProductID, ctx.Err())
	}
}

// Warm regenerates the product's summary if the cache is behind. Used by the
// background worker; failures are only logged.
func (c *Coordinator) Warm(ctx context.Context, productID int64) {
	res, err := c.GetSummary(ctx, productID)
	if err != nil {
		c.logger.Info("Summary warm-up skipped",
			zap.Int64("product_id", productID),
			zap.Error(err))
		return
	}
	c.logger.Debug("Summary warm",
		zap.Int64("product_id", productID),
		zap.Uint64("version", res.Version),
		zap.Bool("cached", res.Cached))
}

// generate runs detached from the caller's cancellation and bounded by the
// coordinator timeout. No lock is held while the summarizer runs.
func (c *Coordinator) generate(ctx context.Context, set *reviews.Set) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.summarizer.Summarize(ctx, Request{ProductID: set.ProductID, Reviews: set.Reviews})
	util.SummarizerLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		}
		util.SummarizerFailuresTotal.WithLabelValues(reason).Inc()
		c.logger.Warn("Summarizer failed",
			zap.Int64("product_id", set.ProductID),
			zap.Uint64("version", set.Version),
			zap.String("reason", reason),
			zap.Error(err))
		return "", err
	}

	putCtx, putCancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer putCancel()
	if err := c.cache.Put(putCtx, set.ProductID, Entry{Text: text, Version: set.Version}); err != nil {
		c.logger.Warn("Summary cache write failed",
			zap.Int64("product_id", set.ProductID),
			zap.Error(err))
	}

	c.logger.Info("Summary regenerated",
		zap.Int64("product_id", set.ProductID),
		zap.Uint64("version", set.Version),
		zap.Int("reviews", len(set.Reviews)))
	return text, nil
}
