package reviews

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"catalog-service/internal/apperr"
	"catalog-service/internal/models"
	"catalog-service/internal/rating"

	"go.uber.org/zap"
)

// Set is an immutable snapshot of one product's reviews. Reviews, Aggregate and
// Version always describe the same state. Callers must not modify Reviews.
type Set struct {
	ProductID int64
	Reviews   []models.Review
	Aggregate rating.Aggregate
	Version   uint64
}

// Stats returns the derived fields persisted alongside the review set.
func (s *Set) Stats() models.ReviewStats {
	return models.ReviewStats{
		ProductID:     s.ProductID,
		AverageRating: s.Aggregate.AveragePtr(),
		ReviewCount:   s.Aggregate.Count,
		Version:       s.Version,
	}
}

// ReviewsCopy returns a copy of the set's reviews, never nil.
func (s *Set) ReviewsCopy() []models.Review {
	return copyReviews(s.Reviews)
}

// Change is the result of a committed mutation.
type Change struct {
	Review models.Review
	Set    *Set
}

// Catalog is the product existence check the store validates against.
type Catalog interface {
	Exists(productID int64) bool
}

// Repository persists review mutations. Each call must apply the review row and
// the product's derived stats in one transaction. A nil Repository keeps the
// store purely in memory.
type Repository interface {
	InsertReview(ctx context.Context, review *models.Review, stats models.ReviewStats) error
	UpdateReview(ctx context.Context, review *models.Review, stats models.ReviewStats) error
	DeleteReview(ctx context.Context, productID, reviewID int64, stats models.ReviewStats) error
	LoadReviews(ctx context.Context) ([]models.Review, map[int64]uint64, error)
}

type productState struct {
	mu  sync.Mutex // serializes writers for this product
	set atomic.Pointer[Set]
}

// Store owns every product's review set.
//
// Writers for the same product run one at a time under that product's mutex;
// the repository write, aggregate recomputation and version bump happen inside
// the critical section and become visible together through a single pointer
// swap. Readers load the pointer and never block.
type Store struct {
	catalog Catalog
	repo    Repository
	logger  *zap.Logger
	now     func() time.Time

	nextID atomic.Int64
	states sync.Map // int64 -> *productState
}

// NewStore creates a review store
func NewStore(catalog Catalog, repo Repository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		catalog: catalog,
		repo:    repo,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Store) state(productID int64) *productState {
	if st, ok := s.states.Load(productID); ok {
		return st.(*productState)
	}
	fresh := &productState{}
	fresh.set.Store(&Set{ProductID: productID})
	st, _ := s.states.LoadOrStore(productID, fresh)
	return st.(*productState)
}

// Snapshot returns the current review set of a product.
func (s *Store) Snapshot(productID int64) (*Set, error) {
	if !s.catalog.Exists(productID) {
		return nil, apperr.NotFound("product", productID)
	}
	if st, ok := s.states.Load(productID); ok {
		return st.(*productState).set.Load(), nil
	}
	return &Set{ProductID: productID}, nil
}

// List returns a product's reviews oldest first.
func (s *Store) List(productID int64) ([]models.Review, error) {
	set, err := s.Snapshot(productID)
	if err != nil {
		return nil, err
	}
	return copyReviews(set.Reviews), nil
}

// Get returns one review of a product as it is now.
func (s *Store) Get(productID, reviewID int64) (models.Review, error) {
	set, err := s.Snapshot(productID)
	if err != nil {
		return models.Review{}, err
	}
	i := indexOf(set.Reviews, reviewID)
	if i < 0 {
		return models.Review{}, apperr.NotFound("review", reviewID)
	}
	return set.Reviews[i], nil
}

// Aggregate returns the current rating aggregate of a product. Unknown products
// have an empty aggregate.
func (s *Store) Aggregate(productID int64) (rating.Aggregate, uint64) {
	if st, ok := s.states.Load(productID); ok {
		set := st.(*productState).set.Load()
		return set.Aggregate, set.Version
	}
	return rating.Aggregate{}, 0
}

// Create validates and appends a new review.
func (s *Store) Create(ctx context.Context, productID int64, author string, score int, comment string) (Change, error) {
	author = strings.TrimSpace(author)
	comment = strings.TrimSpace(comment)

	if author == "" {
		return Change{}, apperr.Validation("author", "author is required")
	}
	if err := validateBody(score, comment); err != nil {
		return Change{}, err
	}
	if !s.catalog.Exists(productID) {
		return Change{}, apperr.NotFound("product", productID)
	}

	st := s.state(productID)
	st.mu.Lock()
	defer st.mu.Unlock()

	cur := st.set.Load()
	review := models.Review{
		ProductID: productID,
		Author:    author,
		Rating:    score,
		Comment:   comment,
		Date:      s.now().UTC(),
	}

	reviews := make([]models.Review, len(cur.Reviews), len(cur.Reviews)+1)
	copy(reviews, cur.Reviews)
	next := s.nextSet(cur, append(reviews, review))

	if s.repo != nil {
		if err := s.repo.InsertReview(ctx, &review, next.Stats()); err != nil {
			return Change{}, fmt.Errorf("failed to persist review: %w", err)
		}
	} else {
		review.ID = s.nextID.Add(1)
	}
	next.Reviews[len(next.Reviews)-1] = review

	st.set.Store(next)

	s.logger.Debug("Review created",
		zap.Int64("product_id", productID),
		zap.Int64("review_id", review.ID),
		zap.Uint64("version", next.Version))

	return Change{Review: review, Set: next}, nil
}

// Update replaces the rating and comment of an existing review. Author and date
// never change.
func (s *Store) Update(ctx context.Context, productID, reviewID int64, score int, comment string) (Change, error) {
	comment = strings.TrimSpace(comment)
	if err := validateBody(score, comment); err != nil {
		return Change{}, err
	}
	if !s.catalog.Exists(productID) {
		return Change{}, apperr.NotFound("product", productID)
	}

	st := s.state(productID)
	st.mu.Lock()
	defer st.mu.Unlock()

	cur := st.set.Load()
	i := indexOf(cur.Reviews, reviewID)
	if i < 0 {
		return Change{}, apperr.NotFound("review", reviewID)
	}

	reviews := append([]models.Review(nil), cur.Reviews...)
	reviews[i].Rating = score
	reviews[i].Comment = comment
	next := s.nextSet(cur, reviews)

	if s.repo != nil {
		if err := s.repo.UpdateReview(ctx, &reviews[i], next.Stats()); err != nil {
			return Change{}, fmt.Errorf("failed to persist review update: %w", err)
		}
	}

	st.set.Store(next)

	s.logger.Debug("Review updated",
		zap.Int64("product_id", productID),
		zap.Int64("review_id", reviewID),
		zap.Uint64("version", next.Version))

	return Change{Review: reviews[i], Set: next}, nil
}

// Delete removes a review. Deleting an id that is not present, including one
// removed earlier, reports NotFound.
func (s *Store) Delete(ctx context.Context, productID, reviewID int64) (Change, error) {
	if !s.catalog.Exists(productID) {
		return Change{}, apperr.NotFound("product", productID)
	}

	st := s.state(productID)
	st.mu.Lock()
	defer st.mu.Unlock()

	cur := st.set.Load()
	i := indexOf(cur.Reviews, reviewID)
	if i < 0 {
		return Change{}, apperr.NotFound("review", reviewID)
	}

	removed := cur.Reviews[i]
	reviews := make([]models.Review, 0, len(cur.Reviews)-1)
	reviews = append(reviews, cur.Reviews[:i]...)
	reviews = append(reviews, cur.Reviews[i+1:]...)
	next := s.nextSet(cur, reviews)

	if s.repo != nil {
		if err := s.repo.DeleteReview(ctx, productID, reviewID, next.Stats()); err != nil {
			return Change{}, fmt.Errorf("failed to persist review delete: %w", err)
		}
	}

	st.set.Store(next)

	s.logger.Debug("Review deleted",
		zap.Int64("product_id", productID),
		zap.Int64("review_id", reviewID),
		zap.Uint64("version", next.Version))

	return Change{Review: removed, Set: next}, nil
}

// Load replaces in-memory state with the repository contents. Rows with an
// invalid rating or an unknown product are skipped.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, nil
	}

	rows, versions, err := s.repo.LoadReviews(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load reviews: %w", err)
	}

	byProduct := make(map[int64][]models.Review)
	var maxID int64
	loaded := 0
	for _, r := range rows {
		if r.ID > maxID {
			maxID = r.ID
		}
		if !s.catalog.Exists(r.ProductID) {
			s.logger.Warn("Skipping orphaned review",
				zap.Int64("review_id", r.ID),
				zap.Int64("product_id", r.ProductID))
			continue
		}
		if !rating.Valid(r.Rating) {
			s.logger.Warn("Skipping review with invalid rating",
				zap.Int64("review_id", r.ID),
				zap.Int("rating", r.Rating))
			continue
		}
		byProduct[r.ProductID] = append(byProduct[r.ProductID], r)
		loaded++
	}

	for productID, list := range byProduct {
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].Date.Equal(list[j].Date) {
				return list[i].Date.Before(list[j].Date)
			}
			return list[i].ID < list[j].ID
		})
		st := s.state(productID)
		st.mu.Lock()
		st.set.Store(&Set{
			ProductID: productID,
			Reviews:   list,
			Aggregate: rating.Compute(ratingsOf(list)),
			Version:   versions[productID],
		})
		st.mu.Unlock()
	}
	for productID, v := range versions {
		if _, ok := byProduct[productID]; ok || v == 0 {
			continue
		}
		st := s.state(productID)
		st.mu.Lock()
		st.set.Store(&Set{ProductID: productID, Version: v})
		st.mu.Unlock()
	}

	if maxID > s.nextID.Load() {
		s.nextID.Store(maxID)
	}

	return loaded, nil
}

func (s *Store) nextSet(cur *Set, reviews []models.Review) *Set {
	return &Set{
		ProductID: cur.ProductID,
		Reviews:   reviews,
		Aggregate: rating.Compute(ratingsOf(reviews)),
		Version:   cur.Version + 1,
	}
}

func validateBody(score int, comment string) error {
	if !rating.Valid(score) {
		return apperr.Validation("rating", fmt.Sprintf("rating must be an integer between %d and %d", rating.Min, rating.Max))
	}
	if comment == "" {
		return apperr.Validation("comment", "comment is required")
	}
	return nil
}

// copyReviews returns a fresh non-nil slice, so an empty set encodes as [].
func copyReviews(reviews []models.Review) []models.Review {
	out := make([]models.Review, len(reviews))
	copy(out, reviews)
	return out
}

func indexOf(reviews []models.Review, reviewID int64) int {
	for i := range reviews {
		if reviews[i].ID == reviewID {
			return i
		}
	}
	return -1
}

func ratingsOf(reviews []models.Review) []int {
	out := make([]int, len(reviews))
	for i := range reviews {
		out[i] = reviews[i].Rating
	}
	return out
}
