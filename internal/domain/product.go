package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrStorage marks faults of the underlying persistence (unreachable database,
// unreadable ledger file). Adapters wrap driver errors with it.
var ErrStorage = errors.New("storage fault")

// Product is a tracked item reconciled by its source URL.
type Product struct {
	ID        int64
	Key       uuid.UUID
	URL       string
	Name      string
	Category  string
	CreatedAt time.Time
}

// TrackedProduct is a single entry of the tracked-product list.
type TrackedProduct struct {
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"category" json:"category"`
	URL      string `yaml:"url" json:"url"`
	Locator  string `yaml:"price_selector" json:"price_selector"`
}

// Validate reports the fields missing from the entry.
func (t TrackedProduct) Validate() error {
	var missing []string
	if strings.TrimSpace(t.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(t.Category) == "" {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(t.URL) == "" {
		missing = append(missing, "url")
	}
	if strings.TrimSpace(t.Locator) == "" {
		missing = append(missing, "price_selector")
	}
	if len(missing) > 0 {
		return fmt.Errorf("tracked product missing fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
