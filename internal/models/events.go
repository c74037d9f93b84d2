package models

import "time"

// Event types
const (
	EventTypeReviewCreated = "REVIEW_CREATED"
	EventTypeReviewUpdated = "REVIEW_UPDATED"
	EventTypeReviewDeleted = "REVIEW_DELETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ReviewEvent is published after a review mutation commits. Version and the
// aggregate fields describe the product's review set right after the mutation.
type ReviewEvent struct {
	BaseEvent
	ProductID     int64    `json:"product_id"`
	ReviewID      int64    `json:"review_id"`
	Rating        int      `json:"rating,omitempty"`
	Version       uint64   `json:"version"`
	AverageRating *float64 `json:"average_rating"`
	ReviewCount   int      `json:"review_count"`
}
