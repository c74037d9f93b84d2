package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog-service/internal/apperr"
	"catalog-service/internal/catalog"
	"catalog-service/internal/models"
	"catalog-service/internal/reviews"
	"catalog-service/internal/summary"
	"catalog-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// EventPublisher publishes review events after a mutation commits
type EventPublisher interface {
	PublishReviewEvent(ctx context.Context, event *models.ReviewEvent) error
}

// CatalogService is the single entry point the HTTP layer uses. It composes the
// catalog index, review store and summary coordinator and holds no domain state
// of its own.
type CatalogService struct {
	index          *catalog.Index
	reviews        *reviews.Store
	summaries      *summary.Coordinator
	eventPublisher EventPublisher
	idempotency    IdempotencyStore
	logger         *zap.Logger
}

// NewCatalogService creates a new catalog service. eventPublisher and
// idempotency may be nil.
func NewCatalogService(
	index *catalog.Index,
	reviewStore *reviews.Store,
	summaries *summary.Coordinator,
	eventPublisher EventPublisher,
	idempotency IdempotencyStore,
) *CatalogService {
	return &CatalogService{
		index:          index,
		reviews:        reviewStore,
		summaries:      summaries,
		eventPublisher: eventPublisher,
		idempotency:    idempotency,
		logger:         util.Component("catalog-service"),
	}
}

// BrowseResult is one page of the catalog plus the categories of the full catalog
type BrowseResult struct {
	Items      []models.Product `json:"items"`
	TotalCount int              `json:"totalCount"`
	TotalPages int              `json:"totalPages"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	Categories []string         `json:"categories"`
}

// Browse returns a filtered page of products with their current ratings
func (s *CatalogService) Browse(ctx context.Context, filter catalog.Filter, page, pageSize int) (*BrowseResult, error) {
	_, span := util.StartSpan(ctx, "CatalogService.Browse")
	defer span.End()

	p, err := s.index.List(filter, page, pageSize)
	if err != nil {
		return nil, err
	}
	for i := range p.Items {
		s.decorate(&p.Items[i])
	}

	return &BrowseResult{
		Items:      p.Items,
		TotalCount: p.TotalCount,
		TotalPages: p.TotalPages,
		Page:       p.Page,
		PageSize:   p.PageSize,
		Categories: s.index.Categories(),
	}, nil
}

// Categories returns the distinct categories of the full catalog
func (s *CatalogService) Categories(ctx context.Context) []string {
	_, span := util.StartSpan(ctx, "CatalogService.Categories")
	defer span.End()

	return s.index.Categories()
}

// GetProduct returns one product with its current rating
func (s *CatalogService) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	_, span := util.StartSpan(ctx, "CatalogService.GetProduct")
	defer span.End()

	product, err := s.index.Get(productID)
	if err != nil {
		return nil, err
	}
	s.decorate(&product)
	return &product, nil
}

// GetProductDetail returns product, reviews and summary taken from a single
// review-set snapshot. A missing summary is reported through SummaryAvailable.
func (s *CatalogService) GetProductDetail(ctx context.Context, productID int64) (*models.ProductDetail, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProductDetail")
	defer span.End()

	product, err := s.index.Get(productID)
	if err != nil {
		return nil, err
	}
	set, err := s.reviews.Snapshot(productID)
	if err != nil {
		return nil, err
	}
	applySet(&product, set)

	detail := &models.ProductDetail{
		Product: product,
		Reviews: set.ReviewsCopy(),
		Version: set.Version,
	}

	res, err := s.summaries.ForSet(ctx, set)
	if err != nil {
		s.logger.Info("Summary left out of product detail",
			zap.Int64("product_id", productID),
			zap.Error(err))
		return detail, nil
	}
	detail.Summary = &res.Text
	detail.SummaryAvailable = true
	return detail, nil
}

// GetReviews returns a product's reviews oldest first
func (s *CatalogService) GetReviews(ctx context.Context, productID int64) ([]models.Review, error) {
	_, span := util.StartSpan(ctx, "CatalogService.GetReviews")
	defer span.End()

	return s.reviews.List(productID)
}

// SubmitReviewRequest represents a new review
type SubmitReviewRequest struct {
	ProductID      int64
	Author         string
	Rating         int
	Comment        string
	IdempotencyKey string
}

// SubmitReviewResponse is the created review. Replayed is set when the review
// was created earlier by a request with the same idempotency key; it then
// holds the review's current state.
type SubmitReviewResponse struct {
	Review   models.Review
	Replayed bool
}

// SubmitReview creates a review
func (s *CatalogService) SubmitReview(ctx context.Context, req *SubmitReviewRequest) (*SubmitReviewResponse, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.SubmitReview")
	defer span.End()

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" || s.idempotency == nil {
		review, err := s.createReview(ctx, req)
		if err != nil {
			return nil, err
		}
		return &SubmitReviewResponse{Review: review}, nil
	}

	prior, claimed, err := s.idempotency.Claim(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if !claimed {
		return s.replay(key, req.ProductID, prior)
	}

	review, err := s.createReview(ctx, req)
	if err != nil {
		if relErr := s.idempotency.Release(context.WithoutCancel(ctx), key); relErr != nil {
			s.logger.Warn("Failed to release idempotency key",
				zap.String("idempotency_key", key),
				zap.Error(relErr))
		}
		return nil, err
	}

	body, err := json.Marshal(review)
	if err == nil {
		err = s.idempotency.Complete(context.WithoutCancel(ctx), key, body)
	}
	if err != nil {
		s.logger.Warn("Failed to record idempotency result",
			zap.String("idempotency_key", key),
			zap.Int64("review_id", review.ID),
			zap.Error(err))
	}
	return &SubmitReviewResponse{Review: review}, nil
}

func (s *CatalogService) replay(key string, productID int64, prior []byte) (*SubmitReviewResponse, error) {
	if prior == nil {
		return nil, apperr.Conflict("idempotencyKey", "a request with this idempotency key is still in progress")
	}
	var created models.Review
	if err := json.Unmarshal(prior, &created); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency result: %w", err)
	}
	if created.ProductID != productID {
		return nil, apperr.Conflict("idempotencyKey", "idempotency key was already used for another product")
	}

	// the review may have been edited or deleted since it was created
	review, err := s.reviews.Get(productID, created.ID)
	if err != nil {
		return nil, err
	}

	util.ReviewsReplayedTotal.Inc()
	s.logger.Info("Duplicate review submission detected",
		zap.String("idempotency_key", key),
		zap.Int64("review_id", review.ID))
	return &SubmitReviewResponse{Review: review, Replayed: true}, nil
}

func (s *CatalogService) createReview(ctx context.Context, req *SubmitReviewRequest) (models.Review, error) {
	start := time.Now()
	change, err := s.reviews.Create(ctx, req.ProductID, req.Author, req.Rating, req.Comment)
	if err != nil {
		rejected(err)
		return models.Review{}, err
	}
	util.ReviewMutationLatency.WithLabelValues("create").Observe(time.Since(start).Seconds())
	util.ReviewsCreatedTotal.Inc()

	s.logger.Info("Review created",
		zap.Int64("product_id", req.ProductID),
		zap.Int64("review_id", change.Review.ID),
		zap.Int("rating", change.Review.Rating))

	s.publish(ctx, models.EventTypeReviewCreated, change)
	return change.Review, nil
}

// EditReviewRequest changes the rating and comment of a review
type EditReviewRequest struct {
	ProductID int64
	ReviewID  int64
	Rating    int
	Comment   string
}

// EditReview updates a review
func (s *CatalogService) EditReview(ctx context.Context, req *EditReviewRequest) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.EditReview")
	defer span.End()

	start := time.Now()
	change, err := s.reviews.Update(ctx, req.ProductID, req.ReviewID, req.Rating, req.Comment)
	if err != nil {
		rejected(err)
		return nil, err
	}
	util.ReviewMutationLatency.WithLabelValues("update").Observe(time.Since(start).Seconds())
	util.ReviewsUpdatedTotal.Inc()

	s.logger.Info("Review updated",
		zap.Int64("product_id", req.ProductID),
		zap.Int64("review_id", req.ReviewID))

	s.publish(ctx, models.EventTypeReviewUpdated, change)
	return &change.Review, nil
}

// RemoveReview deletes a review
func (s *CatalogService) RemoveReview(ctx context.Context, productID, reviewID int64) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.RemoveReview")
	defer span.End()

	start := time.Now()
	change, err := s.reviews.Delete(ctx, productID, reviewID)
	if err != nil {
		rejected(err)
		return err
	}
	util.ReviewMutationLatency.WithLabelValues("delete").Observe(time.Since(start).Seconds())
	util.ReviewsDeletedTotal.Inc()

	s.logger.Info("Review deleted",
		zap.Int64("product_id", productID),
		zap.Int64("review_id", reviewID))

	s.publish(ctx, models.EventTypeReviewDeleted, change)
	return nil
}

// GetSummary returns the summary of the product's current reviews
func (s *CatalogService) GetSummary(ctx context.Context, productID int64) (*summary.Result, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetSummary")
	defer span.End()

	res, err := s.summaries.GetSummary(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *CatalogService) decorate(product *models.Product) {
	agg, _ := s.reviews.Aggregate(product.ID)
	product.AverageRating = agg.AveragePtr()
	product.ReviewCount = agg.Count
}

func applySet(product *models.Product, set *reviews.Set) {
	product.AverageRating = set.Aggregate.AveragePtr()
	product.ReviewCount = set.Aggregate.Count
}

// publish never fails the mutation; the events only drive cache warming.
func (s *CatalogService) publish(ctx context.Context, eventType string, change reviews.Change) {
	if s.eventPublisher == nil {
		return
	}

	stats := change.Set.Stats()
	event := &models.ReviewEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		ProductID:     change.Review.ProductID,
		ReviewID:      change.Review.ID,
		Rating:        change.Review.Rating,
		Version:       stats.Version,
		AverageRating: stats.AverageRating,
		ReviewCount:   stats.ReviewCount,
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.eventPublisher.PublishReviewEvent(ctx, event); err != nil {
		util.EventsPublishFailedTotal.Inc()
		s.logger.Error("Failed to publish review event",
			zap.String("event_type", eventType),
			zap.Int64("product_id", event.ProductID),
			zap.Error(err))
	}
}

func rejected(err error) {
	reason := "error"
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		var e *apperr.Error
		if errors.As(err, &e) && e.Field != "" {
			reason = "invalid_" + e.Field
		} else {
			reason = "invalid"
		}
	case apperr.KindNotFound:
		reason = "not_found"
	}
	util.ReviewsRejectedTotal.WithLabelValues(reason).Inc()
}
