package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"catalog-service/internal/apperr"
	"catalog-service/internal/catalog"
	"catalog-service/internal/models"
	"catalog-service/internal/reviews"
	"catalog-service/internal/summary"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSummarizer struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (s *stubSummarizer) Summarize(_ context.Context, req summary.Request) (string, error) {
	s.calls.Add(1)
	if s.fail.Load() {
		return "", errors.New("summarizer down")
	}
	return "people like it", nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.ReviewEvent
	err    error
}

func (p *recordingPublisher) PublishReviewEvent(_ context.Context, e *models.ReviewEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type fixture struct {
	svc       *CatalogService
	sum       *stubSummarizer
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	idx := catalog.NewIndex()
	added := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, idx.Add(
		models.Product{ID: 1, Name: "Blue Kettle", Category: "Kitchen", Price: 30, DateAdded: added},
		models.Product{ID: 2, Name: "Desk Lamp", Category: "Home", Price: 15, DateAdded: added},
		models.Product{ID: 3, Name: "Red Kettle", Category: "Kitchen", Price: 35, DateAdded: added},
	))

	store := reviews.NewStore(idx, nil, nil)
	sum := &stubSummarizer{}
	coord := summary.NewCoordinator(store, sum, summary.NewMemoryCache(), time.Second, nil)
	pub := &recordingPublisher{}

	return &fixture{
		svc:       NewCatalogService(idx, store, coord, pub, NewMemoryIdempotencyStore(time.Hour)),
		sum:       sum,
		publisher: pub,
	}
}

func (f *fixture) submit(t *testing.T, productID int64, score int) models.Review {
	t.Helper()
	res, err := f.svc.SubmitReview(context.Background(), &SubmitReviewRequest{
		ProductID: productID, Author: "ann", Rating: score, Comment: "ok",
	})
	require.NoError(t, err)
	return res.Review
}

func TestAverageFollowsMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.submit(t, 1, 5)
	three := f.submit(t, 1, 3)
	f.submit(t, 1, 4)

	p, err := f.svc.GetProduct(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p.AverageRating)
	assert.Equal(t, 4.0, *p.AverageRating)
	assert.Equal(t, 3, p.ReviewCount)

	require.NoError(t, f.svc.RemoveReview(ctx, 1, three.ID))
	p, err = f.svc.GetProduct(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p.AverageRating)
	assert.Equal(t, 4.5, *p.AverageRating)
	assert.Equal(t, 2, p.ReviewCount)

	list, err := f.svc.GetReviews(ctx, 1)
	require.NoError(t, err)
	for _, r := range list {
		require.NoError(t, f.svc.RemoveReview(ctx, 1, r.ID))
	}
	p, err = f.svc.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, p.AverageRating)
	assert.Equal(t, 0, p.ReviewCount)
}

func TestRemoveTwiceIsNotFound(t *testing.T) {
	f := newFixture(t)
	r := f.submit(t, 2, 4)

	require.NoError(t, f.svc.RemoveReview(context.Background(), 2, r.ID))
	err := f.svc.RemoveReview(context.Background(), 2, r.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestBrowseDecoratesAndPaginates(t *testing.T) {
	f := newFixture(t)
	f.submit(t, 3, 2)

	res, err := f.svc.Browse(context.Background(), catalog.Filter{NameContains: "kettle"}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalCount)
	assert.Equal(t, 2, res.TotalPages)
	require.Len(t, res.Items, 1)
	assert.Equal(t, int64(1), res.Items[0].ID)
	assert.Nil(t, res.Items[0].AverageRating)
	assert.Equal(t, []string{"Kitchen", "Home"}, res.Categories)

	res, err = f.svc.Browse(context.Background(), catalog.Filter{NameContains: "kettle"}, 2, 1)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.NotNil(t, res.Items[0].AverageRating)
	assert.Equal(t, 2.0, *res.Items[0].AverageRating)

	res, err = f.svc.Browse(context.Background(), catalog.Filter{}, 9, 6)
	require.NoError(t, err)
	assert.Empty(t, res.Items)
	assert.Equal(t, 3, res.TotalCount)

	_, err = f.svc.Browse(context.Background(), catalog.Filter{}, 1, 0)
	assert.True(t, apperr.IsValidation(err))
}

func TestSubmitReviewErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitReview(ctx, &SubmitReviewRequest{ProductID: 99, Author: "a", Rating: 3, Comment: "c"})
	assert.True(t, apperr.IsNotFound(err))

	_, err = f.svc.SubmitReview(ctx, &SubmitReviewRequest{ProductID: 1, Author: "a", Rating: 6, Comment: "c"})
	assert.True(t, apperr.IsValidation(err))

	assert.Empty(t, f.publisher.events)
}

func TestEditReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.submit(t, 1, 1)

	updated, err := f.svc.EditReview(ctx, &EditReviewRequest{ProductID: 1, ReviewID: r.ID, Rating: 5, Comment: "changed my mind"})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Rating)
	assert.Equal(t, "ann", updated.Author)
	assert.Equal(t, r.Date, updated.Date)

	_, err = f.svc.EditReview(ctx, &EditReviewRequest{ProductID: 2, ReviewID: r.ID, Rating: 5, Comment: "x"})
	assert.True(t, apperr.IsNotFound(err))
}

func TestMutationsPublishEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.submit(t, 1, 4)
	_, err := f.svc.EditReview(ctx, &EditReviewRequest{ProductID: 1, ReviewID: r.ID, Rating: 2, Comment: "meh"})
	require.NoError(t, err)
	require.NoError(t, f.svc.RemoveReview(ctx, 1, r.ID))

	require.Len(t, f.publisher.events, 3)
	types := []string{f.publisher.events[0].EventType, f.publisher.events[1].EventType, f.publisher.events[2].EventType}
	assert.Equal(t, []string{models.EventTypeReviewCreated, models.EventTypeReviewUpdated, models.EventTypeReviewDeleted}, types)

	created := f.publisher.events[0]
	assert.Equal(t, uint64(1), created.Version)
	require.NotNil(t, created.AverageRating)
	assert.Equal(t, 4.0, *created.AverageRating)
	assert.NotEmpty(t, created.EventID)

	deleted := f.publisher.events[2]
	assert.Equal(t, uint64(3), deleted.Version)
	assert.Nil(t, deleted.AverageRating)
	assert.Equal(t, 0, deleted.ReviewCount)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("kafka unavailable")

	r := f.submit(t, 1, 4)
	assert.NotZero(t, r.ID)
}

func TestSubmitReviewIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := &SubmitReviewRequest{ProductID: 1, Author: "ann", Rating: 5, Comment: "great", IdempotencyKey: "k-1"}

	first, err := f.svc.SubmitReview(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.svc.SubmitReview(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Review.ID, second.Review.ID)

	list, err := f.svc.GetReviews(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.SubmitReview(ctx, &SubmitReviewRequest{ProductID: 2, Author: "ann", Rating: 5, Comment: "great", IdempotencyKey: "k-1"})
	assert.True(t, apperr.IsConflict(err))
}

func TestReplayReturnsCurrentReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := &SubmitReviewRequest{ProductID: 1, Author: "ann", Rating: 5, Comment: "great", IdempotencyKey: "k-edit"}

	first, err := f.svc.SubmitReview(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.EditReview(ctx, &EditReviewRequest{ProductID: 1, ReviewID: first.Review.ID, Rating: 2, Comment: "broke"})
	require.NoError(t, err)

	again, err := f.svc.SubmitReview(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, 2, again.Review.Rating)
	assert.Equal(t, "broke", again.Review.Comment)

	require.NoError(t, f.svc.RemoveReview(ctx, 1, first.Review.ID))
	_, err = f.svc.SubmitReview(ctx, req)
	assert.True(t, apperr.IsNotFound(err))

	list, err := f.svc.GetReviews(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFailedSubmitReleasesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitReview(ctx, &SubmitReviewRequest{ProductID: 1, Author: "ann", Rating: 0, Comment: "c", IdempotencyKey: "k-2"})
	require.True(t, apperr.IsValidation(err))

	res, err := f.svc.SubmitReview(ctx, &SubmitReviewRequest{ProductID: 1, Author: "ann", Rating: 3, Comment: "c", IdempotencyKey: "k-2"})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
}

func TestSubmitWhileKeyInFlightConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, claimed, err := f.svc.idempotency.Claim(ctx, "k-3")
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = f.svc.SubmitReview(ctx, &SubmitReviewRequest{ProductID: 1, Author: "a", Rating: 3, Comment: "c", IdempotencyKey: "k-3"})
	assert.True(t, apperr.IsConflict(err))
}

func TestSummaryCachedUntilEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.submit(t, 1, 4)

	a, err := f.svc.GetSummary(ctx, 1)
	require.NoError(t, err)
	b, err := f.svc.GetSummary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, int32(1), f.sum.calls.Load())

	_, err = f.svc.EditReview(ctx, &EditReviewRequest{ProductID: 1, ReviewID: r.ID, Rating: 3, Comment: "less sure"})
	require.NoError(t, err)
	_, err = f.svc.GetSummary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.sum.calls.Load())
}

func TestProductDetailSoftSummaryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, 1, 4)
	f.submit(t, 1, 2)

	f.sum.fail.Store(true)
	detail, err := f.svc.GetProductDetail(ctx, 1)
	require.NoError(t, err)
	assert.False(t, detail.SummaryAvailable)
	assert.Nil(t, detail.Summary)
	assert.Len(t, detail.Reviews, 2)
	require.NotNil(t, detail.Product.AverageRating)
	assert.Equal(t, 3.0, *detail.Product.AverageRating)
	assert.Equal(t, uint64(2), detail.Version)

	_, err = f.svc.GetSummary(ctx, 1)
	assert.True(t, apperr.IsSummaryUnavailable(err))

	f.sum.fail.Store(false)
	detail, err = f.svc.GetProductDetail(ctx, 1)
	require.NoError(t, err)
	assert.True(t, detail.SummaryAvailable)
	require.NotNil(t, detail.Summary)
	assert.Equal(t, "people like it", *detail.Summary)
}

func TestProductDetailUnknownProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetProductDetail(context.Background(), 42)
	assert.True(t, apperr.IsNotFound(err))
}

func TestMemoryIdempotencyStoreExpires(t *testing.T) {
	m := NewMemoryIdempotencyStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, claimed, err := m.Claim(ctx, "k")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, m.Complete(ctx, "k", []byte(`{"id":1}`)))

	prior, claimed, err := m.Claim(ctx, "k")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.JSONEq(t, `{"id":1}`, string(prior))

	now = now.Add(2 * time.Minute)
	_, claimed, err = m.Claim(ctx, "k")
	require.NoError(t, err)
	assert.True(t, claimed)
}
