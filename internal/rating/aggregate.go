package rating

const (
	Min = 1
	Max = 5
)

// Aggregate is the mean of a set of ratings, held as an exact integer sum and count.
type Aggregate struct {
	Sum   int64 `json:"sum"`
	Count int   `json:"count"`
}

// Valid reports whether r is an accepted rating value.
func Valid(r int) bool {
	return r >= Min && r <= Max
}

// Compute aggregates ratings. Callers validate values before storing them.
func Compute(ratings []int) Aggregate {
	var agg Aggregate
	for _, r := range ratings {
		agg.Sum += int64(r)
	}
	agg.Count = len(ratings)
	return agg
}

// Average returns the arithmetic mean, or false when there are no ratings.
func (a Aggregate) Average() (float64, bool) {
	if a.Count == 0 {
		return 0, false
	}
	return float64(a.Sum) / float64(a.Count), true
}

// Rounded returns the mean rounded half-up to one decimal place.
// Rounding is done on integers so 4.45 never turns into 4.4 through float error.
func (a Aggregate) Rounded() (float64, bool) {
	if a.Count == 0 {
		return 0, false
	}
	n := int64(a.Count)
	tenths := (a.Sum*20 + n) / (2 * n)
	return float64(tenths) / 10, true
}

// AveragePtr is Average in the nullable form used by JSON payloads.
func (a Aggregate) AveragePtr() *float64 {
	avg, ok := a.Average()
	if !ok {
		return nil
	}
	return &avg
}
