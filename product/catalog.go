package product

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned by Catalog.Get for unknown keys.
var ErrNotFound = errors.New("product not found")

// Catalog is a read-only lookup of products by key.
type Catalog interface {
	Get(key string) (*Product, error)
}

// StaticCatalog is an immutable in-memory Catalog.
type StaticCatalog struct {
	products map[string]Product
}

var _ Catalog = (*StaticCatalog)(nil)

// NewCatalog builds a catalog from ps. Keys must be unique and non-empty
// and every product needs a positive cost and a known command.
func NewCatalog(ps ...Product) (*StaticCatalog, error) {
	c := &StaticCatalog{products: make(map[string]Product, len(ps))}
	for _, p := range ps {
		if p.Key == "" {
			return nil, errors.New("product: empty key")
		}
		if _, dup := c.products[p.Key]; dup {
			return nil, fmt.Errorf("product: duplicate key %q", p.Key)
		}
		if !p.Cost.IsPositive() {
			return nil, fmt.Errorf("product %q: cost must be positive, got %s", p.Key, p.Cost)
		}
		if !p.Command.IsValid() {
			return nil, fmt.Errorf("product %q: unknown command %q", p.Key, p.Command)
		}
		c.products[p.Key] = p
	}
	return c, nil
}

// Get returns a copy of the product registered under key.
func (c *StaticCatalog) Get(key string) (*Product, error) {
	p, ok := c.products[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return &p, nil
}

// Keys returns the sorted product keys.
func (c *StaticCatalog) Keys() []string {
	keys := make([]string, 0, len(c.products))
	for k := range c.products {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of products.
func (c *StaticCatalog) Len() int { return len(c.products) }
