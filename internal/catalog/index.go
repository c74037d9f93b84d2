package catalog

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"catalog-service/internal/apperr"
	"catalog-service/internal/models"
)

// Filter selects products. Empty fields are not applied; set fields compose with AND.
type Filter struct {
	NameContains string
	Category     string
}

func (f Filter) match(p *models.Product, lowerName string) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if lowerName != "" && !strings.Contains(strings.ToLower(p.Name), lowerName) {
		return false
	}
	return true
}

// Page is one page of a filtered catalog view
type Page struct {
	Items      []models.Product `json:"items"`
	TotalCount int              `json:"totalCount"`
	TotalPages int              `json:"totalPages"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
}

type snapshot struct {
	products   []models.Product // insertion order
	byID       map[int64]int
	categories []string // first-seen order
}

// Index holds the product set. Reads work on an immutable snapshot and never
// take a lock; Add copies the snapshot and swaps it in.
type Index struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// NewIndex creates an empty catalog index
func NewIndex() *Index {
	idx := &Index{}
	idx.snap.Store(&snapshot{byID: map[int64]int{}})
	return idx
}

// Add appends products to the catalog in the given order.
func (idx *Index) Add(products ...models.Product) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur := idx.snap.Load()
	next := &snapshot{
		products:   make([]models.Product, len(cur.products), len(cur.products)+len(products)),
		byID:       make(map[int64]int, len(cur.byID)+len(products)),
		categories: append([]string(nil), cur.categories...),
	}
	copy(next.products, cur.products)
	for id, i := range cur.byID {
		next.byID[id] = i
	}

	seen := make(map[string]struct{}, len(next.categories))
	for _, c := range next.categories {
		seen[c] = struct{}{}
	}

	for _, p := range products {
		if _, dup := next.byID[p.ID]; dup {
			return fmt.Errorf("duplicate product id %d", p.ID)
		}
		if p.Price < 0 {
			return apperr.Validation("price", fmt.Sprintf("price must be non-negative, got %v", p.Price))
		}
		// averageRating belongs to the review store
		p.AverageRating = nil
		p.ReviewCount = 0

		next.byID[p.ID] = len(next.products)
		next.products = append(next.products, p)
		if _, ok := seen[p.Category]; !ok {
			seen[p.Category] = struct{}{}
			next.categories = append(next.categories, p.Category)
		}
	}

	idx.snap.Store(next)
	return nil
}

// Get returns the product with the given id
func (idx *Index) Get(id int64) (models.Product, error) {
	s := idx.snap.Load()
	i, ok := s.byID[id]
	if !ok {
		return models.Product{}, apperr.NotFound("product", id)
	}
	return s.products[i], nil
}

// Exists reports whether a product id is in the catalog
func (idx *Index) Exists(id int64) bool {
	_, ok := idx.snap.Load().byID[id]
	return ok
}

// Len returns the catalog size
func (idx *Index) Len() int {
	return len(idx.snap.Load().products)
}

// Categories returns the distinct categories of the full catalog in first-seen order.
func (idx *Index) Categories() []string {
	cats := idx.snap.Load().categories
	out := make([]string, len(cats))
	copy(out, cats)
	return out
}

// List returns one 1-indexed page of the filtered catalog in insertion order.
// A page outside [1, TotalPages] yields no items and no error.
func (idx *Index) List(filter Filter, page, pageSize int) (Page, error) {
	if pageSize <= 0 {
		return Page{}, apperr.Validation("pageSize", "pageSize must be a positive integer")
	}

	s := idx.snap.Load()
	lowerName := strings.ToLower(filter.NameContains)

	// no page past len/pageSize can hold an item; checking first keeps the
	// offset arithmetic below from overflowing
	inRange := page >= 1 && page-1 <= len(s.products)/pageSize
	start, end := 0, 0
	if inRange {
		start = (page - 1) * pageSize
		end = start + min(pageSize, len(s.products))
	}

	items := make([]models.Product, 0, min(pageSize, len(s.products)))
	total := 0
	for i := range s.products {
		p := &s.products[i]
		if !filter.match(p, lowerName) {
			continue
		}
		if inRange && total >= start && total < end {
			items = append(items, *p)
		}
		total++
	}

	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}

	return Page{
		Items:      items,
		TotalCount: total,
		TotalPages: totalPages,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}
