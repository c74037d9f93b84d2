package store

import (
	"context"
	"fmt"

	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"github.com/jmoiron/sqlx"
)

// InsertReview stores a review and the product's new stats in one transaction.
// review.ID is assigned from the database.
func (s *Store) InsertReview(ctx context.Context, review *models.Review, stats models.ReviewStats) error {
	ctx, span := util.StartSpan(ctx, "Store.InsertReview")
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO reviews (product_id, author, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err = tx.QueryRowxContext(ctx, query,
		review.ProductID, review.Author, review.Rating, review.Comment, review.Date,
	).Scan(&review.ID)
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}

	if err := updateStats(ctx, tx, stats); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateReview rewrites rating and comment of an existing review
func (s *Store) UpdateReview(ctx context.Context, review *models.Review, stats models.ReviewStats) error {
	ctx, span := util.StartSpan(ctx, "Store.UpdateReview")
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE reviews SET rating = $1, comment = $2 WHERE id = $3 AND product_id = $4",
		review.Rating, review.Comment, review.ID, review.ProductID)
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}
	if err := expectOneRow(res.RowsAffected()); err != nil {
		return fmt.Errorf("review %d: %w", review.ID, err)
	}

	if err := updateStats(ctx, tx, stats); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteReview removes a review row
func (s *Store) DeleteReview(ctx context.Context, productID, reviewID int64, stats models.ReviewStats) error {
	ctx, span := util.StartSpan(ctx, "Store.DeleteReview")
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM reviews WHERE id = $1 AND product_id = $2", reviewID, productID)
	if err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	if err := expectOneRow(res.RowsAffected()); err != nil {
		return fmt.Errorf("review %d: %w", reviewID, err)
	}

	if err := updateStats(ctx, tx, stats); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadReviews returns every stored review and the review version of each product
func (s *Store) LoadReviews(ctx context.Context) ([]models.Review, map[int64]uint64, error) {
	ctx, span := util.StartSpan(ctx, "Store.LoadReviews")
	defer span.End()

	var reviews []models.Review
	err := s.db.SelectContext(ctx, &reviews, `
		SELECT id, product_id, author, rating, comment, created_at
		FROM reviews ORDER BY product_id, created_at, id`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to select reviews: %w", err)
	}

	var stats []models.ReviewStats
	err = s.db.SelectContext(ctx, &stats, `
		SELECT id, average_rating, review_count, review_version FROM products`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to select review versions: %w", err)
	}

	versions := make(map[int64]uint64, len(stats))
	for _, st := range stats {
		versions[st.ProductID] = st.Version
	}
	return reviews, versions, nil
}

func updateStats(ctx context.Context, tx *sqlx.Tx, stats models.ReviewStats) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE products SET average_rating = $1, review_count = $2, review_version = $3 WHERE id = $4",
		stats.AverageRating, stats.ReviewCount, int64(stats.Version), stats.ProductID)
	if err != nil {
		return fmt.Errorf("failed to update product stats: %w", err)
	}
	if err := expectOneRow(res.RowsAffected()); err != nil {
		return fmt.Errorf("product %d: %w", stats.ProductID, err)
	}
	return nil
}

func expectOneRow(n int64, err error) error {
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("expected 1 affected row, got %d", n)
	}
	return nil
}
