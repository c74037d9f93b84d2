package worker

import (
	"context"
	"time"

	"catalog-service/internal/broker"
	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"go.uber.org/zap"
)

// Warmer refreshes a product's cached summary
type Warmer interface {
	Warm(ctx context.Context, productID int64)
}

// SummaryWarmer regenerates summaries in the background after review events,
// so the next reader usually finds a fresh cache entry.
type SummaryWarmer struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	warmer       Warmer
	timeout      time.Duration
	logger       *zap.Logger
}

// NewSummaryWarmer creates a new summary warmer
func NewSummaryWarmer(consumer *broker.Consumer, warmer Warmer, timeout time.Duration) *SummaryWarmer {
	w := &SummaryWarmer{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		warmer:       warmer,
		timeout:      timeout,
		logger:       util.Component("summary-warmer"),
	}
	w.eventHandler.OnReviewEvent(w.HandleReviewEvent)
	return w
}

// HandleReviewEvent warms the summary of the event's product
func (w *SummaryWarmer) HandleReviewEvent(ctx context.Context, event *models.ReviewEvent) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	w.logger.Debug("Warming summary",
		zap.String("event_type", event.EventType),
		zap.Int64("product_id", event.ProductID),
		zap.Uint64("version", event.Version))
	w.warmer.Warm(ctx, event.ProductID)
	return nil
}

// Start starts the worker
func (w *SummaryWarmer) Start(ctx context.Context) error {
	w.logger.Info("Starting summary warmer")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SummaryWarmer) Stop() error {
	w.logger.Info("Stopping summary warmer")
	return w.consumer.Close()
}
