package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"catalog-service/internal/models"
)

// ReadSeedFile reads a JSON array of products. Products without a dateAdded get
// the load time.
func ReadSeedFile(path string) ([]models.Product, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var products []models.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	now := time.Now().UTC()
	for i := range products {
		if products[i].DateAdded.IsZero() {
			products[i].DateAdded = now
		}
	}
	return products, nil
}

// LoadSeedFile adds the products of a seed file to the index in file order.
func LoadSeedFile(idx *Index, path string) (int, error) {
	products, err := ReadSeedFile(path)
	if err != nil {
		return 0, err
	}
	if err := idx.Add(products...); err != nil {
		return 0, fmt.Errorf("failed to seed catalog: %w", err)
	}
	return len(products), nil
}
