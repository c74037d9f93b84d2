package models

import "time"

// Product represents a product in the catalog
type Product struct {
	ID            int64     `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description"`
	Category      string    `db:"category" json:"category"`
	Price         float64   `db:"price" json:"price"`
	DateAdded     time.Time `db:"date_added" json:"dateAdded"`
	AverageRating *float64  `db:"average_rating" json:"averageRating"`
	ReviewCount   int       `db:"review_count" json:"reviewCount"`
}

// Review represents one customer review of a product
type Review struct {
	ID        int64     `db:"id" json:"id"`
	ProductID int64     `db:"product_id" json:"productId"`
	Author    string    `db:"author" json:"author"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   string    `db:"comment" json:"comment"`
	Date      time.Time `db:"created_at" json:"date"`
}

// ProductDetail is a product together with its reviews and summary, all taken
// from the same review-set version.
type ProductDetail struct {
	Product          Product  `json:"product"`
	Reviews          []Review `json:"reviews"`
	Summary          *string  `json:"summary"`
	SummaryAvailable bool     `json:"summaryAvailable"`
	Version          uint64   `json:"version"`
}

// ReviewStats is the derived state of one product's review set after a mutation.
type ReviewStats struct {
	ProductID     int64    `db:"id" json:"productId"`
	AverageRating *float64 `db:"average_rating" json:"averageRating"`
	ReviewCount   int      `db:"review_count" json:"reviewCount"`
	Version       uint64   `db:"review_version" json:"version"`
}
