package summarizer

import (
	"context"
	"fmt"
	"strings"

	"catalog-service/internal/rating"
	"catalog-service/internal/summary"
)

// Local is a deterministic in-process summarizer for deployments without an
// external service: review count, rounded average, and the most common score.
type Local struct{}

// Summarize implements summary.Summarizer
func (Local) Summarize(ctx context.Context, req summary.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(req.Reviews) == 0 {
		return summary.NoReviewsText, nil
	}

	scores := make([]int, len(req.Reviews))
	var counts [rating.Max + 1]int
	for i, r := range req.Reviews {
		scores[i] = r.Rating
		if rating.Valid(r.Rating) {
			counts[r.Rating]++
		}
	}
	avg, _ := rating.Compute(scores).Rounded()

	// ties go to the higher score
	mode := rating.Max
	for s := rating.Max; s >= rating.Min; s-- {
		if counts[s] > counts[mode] {
			mode = s
		}
	}

	var b strings.Builder
	noun := "reviews"
	if len(req.Reviews) == 1 {
		noun = "review"
	}
	fmt.Fprintf(&b, "%d %s, average %.1f out of %d.", len(req.Reviews), noun, avg, rating.Max)
	fmt.Fprintf(&b, " Most common rating: %d (%d of %d).", mode, counts[mode], len(req.Reviews))
	return b.String(), nil
}
