package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"catalog-service/internal/apperr"
	"catalog-service/internal/catalog"
	"catalog-service/internal/service"
	"catalog-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	catalogService  *service.CatalogService
	defaultPageSize int
	checks          map[string]ReadinessCheck
	logger          *zap.Logger
}

// NewHandler creates a new HTTP handler. checks are run by /ready.
func NewHandler(catalogService *service.CatalogService, defaultPageSize int, checks map[string]ReadinessCheck) *Handler {
	return &Handler{
		catalogService:  catalogService,
		defaultPageSize: defaultPageSize,
		checks:          checks,
		logger:          util.Component("http"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	products := router.Group("/api/products")
	{
		products.GET("", h.browse)
		products.GET("/categories", h.categories)
		products.GET("/:id", h.getProduct)
		products.GET("/:id/detail", h.getProductDetail)
		products.GET("/:id/reviews", h.getReviews)
		products.POST("/:id/reviews", h.submitReview)
		products.GET("/:id/reviews/summary", h.getSummary)
		products.PUT("/:id/reviews/:reviewId", h.editReview)
		products.DELETE("/:id/reviews/:reviewId", h.removeReview)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every configured dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// browse handles the product listing
func (h *Handler) browse(c *gin.Context) {
	page, err := intQuery(c, "page", 1)
	if err != nil {
		h.writeError(c, err)
		return
	}
	pageSize, err := intQuery(c, "pageSize", h.defaultPageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}

	name := c.Query("nameContains")
	if name == "" {
		name = c.Query("search")
	}
	filter := catalog.Filter{NameContains: name, Category: c.Query("category")}

	res, err := h.catalogService.Browse(c.Request.Context(), filter, page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) categories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"categories": h.catalogService.Categories(c.Request.Context()),
	})
}

func (h *Handler) getProduct(c *gin.Context) {
	productID, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	product, err := h.catalogService.GetProduct(c.Request.Context(), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) getProductDetail(c *gin.Context) {
	productID, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	detail, err := h.catalogService.GetProductDetail(c.Request.Context(), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) getReviews(c *gin.Context) {
	productID, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	reviews, err := h.catalogService.GetReviews(c.Request.Context(), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviews)
}

type submitReviewBody struct {
	Author         string `json:"author"`
	Rating         int    `json:"rating"`
	Comment        string `json:"comment"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// submitReview handles review creation
func (h *Handler) submitReview(c *gin.Context) {
	productID, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	var body submitReviewBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, bindError(err))
		return
	}

	if body.IdempotencyKey == "" {
		body.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.catalogService.SubmitReview(c.Request.Context(), &service.SubmitReviewRequest{
		ProductID:      productID,
		Author:         body.Author,
		Rating:         body.Rating,
		Comment:        body.Comment,
		IdempotencyKey: body.IdempotencyKey,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	if resp.Replayed {
		c.Header("Idempotent-Replayed", "true")
		c.JSON(http.StatusOK, resp.Review)
		return
	}
	c.JSON(http.StatusCreated, resp.Review)
}

type editReviewBody struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *Handler) editReview(c *gin.Context) {
	productID, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	reviewID, ok := h.idParam(c, "reviewId")
	if !ok {
		return
	}

	var body editReviewBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.writeError(c, bindError(err))
		return
	}

	review, err := h.catalogService.EditReview(c.Request.Context(), &service.EditReviewRequest{
		ProductID: productID,
		ReviewID:  reviewID,
		Rating:    body.Rating,
		Comment:   body.Comment,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h *Handler) removeReview(c *gin.Context) {
	productID, ok := h.idParam(c, "id")
	if !ok {
		return
	}
	reviewID, ok := h.idParam(c, "reviewId")
	if !ok {
		return
	}

	if err := h.catalogService.RemoveReview(c.Request.Context(), productID, reviewID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getSummary(c *gin.Context) {
	productID, ok := h.idParam(c, "id")
	if !ok {
		return
	}

	res, err := h.catalogService.GetSummary(c.Request.Context(), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": res.Text})
}

func (h *Handler) idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(c, apperr.Validation(name, "invalid "+name))
		return 0, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(name, name+" must be an integer")
	}
	return n, nil
}

// bindError turns a JSON decoding failure into a validation error. A
// non-integer rating fails here rather than in the review store.
func bindError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "rating" {
			return apperr.Validation("rating", "rating must be an integer between 1 and 5")
		}
		return apperr.Validation(field, field+" has the wrong type")
	}
	return apperr.Validation("body", "invalid request body")
}

// writeError renders err with the status matching its kind
func (h *Handler) writeError(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal",
			"message": "internal server error",
		})
		return
	}

	body := gin.H{
		"error":   string(e.Kind),
		"message": e.Message,
	}
	if e.Field != "" {
		body["field"] = e.Field
	}
	if e.ID != "" {
		body["id"] = e.ID
	}

	status := http.StatusInternalServerError
	switch e.Kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindSummaryUnavailable:
		status = http.StatusServiceUnavailable
		body["unavailable"] = true
		h.logger.Info("Summary unavailable", zap.Error(err))
	}
	c.JSON(status, body)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
