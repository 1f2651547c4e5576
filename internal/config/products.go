package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"CPITracker/internal/domain"
)

// ErrNoProducts means the tracked-product file loaded but listed nothing.
var ErrNoProducts = errors.New("no products to track")

// LoadProducts reads the tracked-product list. Files ending in .yaml or .yml
// are YAML; anything else is decoded as JSON. Entry fields are validated by
// the collector.
func LoadProducts(path string) ([]domain.TrackedProduct, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read products file %s: %w", path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoProducts)
	}

	var products []domain.TrackedProduct
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &products)
	default:
		err = json.Unmarshal(raw, &products)
	}
	if err != nil {
		return nil, fmt.Errorf("parse products file %s: %w", path, err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoProducts)
	}
	return products, nil
}
