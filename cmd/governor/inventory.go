package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cuisinezen/governor/internal/models"
	"github.com/google/uuid"
)

// demoInventory stands in for the managed document database during local
// development. The artificial latency makes the stampede guard visible: a
// burst of cold /api/products requests still produces one backend read.
type demoInventory struct {
	mu       sync.RWMutex
	products []models.Product
}

func newDemoInventory() *demoInventory {
	return &demoInventory{
		products: []models.Product{
			{ID: uuid.NewString(), Name: "Tomates pelées", Category: "épicerie", Quantity: 24},
			{ID: uuid.NewString(), Name: "Crème fraîche 35%", Category: "frais", Quantity: 12},
			{ID: uuid.NewString(), Name: "Filet de saumon", Category: "surgelé", Quantity: 8},
		},
	}
}

func (d *demoInventory) ListProducts(ctx context.Context) ([]models.Product, error) {
	select {
	case <-time.After(150 * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]models.Product, len(d.products))
	copy(out, d.products)
	return out, nil
}

func (d *demoInventory) SearchProducts(ctx context.Context, query string) ([]models.Product, error) {
	all, err := d.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	var matches []models.Product
	for _, p := range all {
		if strings.Contains(strings.ToLower(p.Name), query) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

func (d *demoInventory) SaveProduct(ctx context.Context, product models.Product) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	for i, existing := range d.products {
		if existing.ID == product.ID {
			d.products[i] = product
			return nil
		}
	}
	d.products = append(d.products, product)
	return nil
}
