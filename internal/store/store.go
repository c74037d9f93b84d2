package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks connectivity, used by the readiness probe
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// GetProducts retrieves all products in insertion order
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "Store.GetProducts")
	defer span.End()

	var products []models.Product
	err := s.db.SelectContext(ctx, &products, `
		SELECT id, name, description, category, price, date_added, average_rating, review_count
		FROM products ORDER BY id`)
	return products, err
}

// CreateProduct inserts a product and fills in its id. A zero DateAdded is
// set by the database.
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	var dateAdded interface{}
	if !product.DateAdded.IsZero() {
		dateAdded = product.DateAdded
	}

	query := `
		INSERT INTO products (name, description, category, price, date_added)
		VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, NOW()))
		RETURNING id, date_added`

	return s.db.QueryRowxContext(ctx, query,
		product.Name, product.Description, product.Category, product.Price, dateAdded,
	).Scan(&product.ID, &product.DateAdded)
}
