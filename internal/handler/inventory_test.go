package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuisinezen/governor/internal/cache"
	"github.com/cuisinezen/governor/internal/models"
	"github.com/cuisinezen/governor/internal/storage"
	"github.com/gin-gonic/gin"
)

type fakeBackend struct {
	products  []models.Product
	listCalls int32
	saved     []models.Product
}

func (f *fakeBackend) ListProducts(ctx context.Context) ([]models.Product, error) {
	atomic.AddInt32(&f.listCalls, 1)
	return f.products, nil
}

func (f *fakeBackend) SearchProducts(ctx context.Context, query string) ([]models.Product, error) {
	var out []models.Product
	for _, p := range f.products {
		if p.Name == query {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBackend) SaveProduct(ctx context.Context, product models.Product) error {
	f.saved = append(f.saved, product)
	return nil
}

func newInventoryRouter(backend InventoryBackend) (*gin.Engine, *cache.DistributedCache) {
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryStore(nil)
	distCache := cache.NewDistributedCache(store, time.Minute)
	guard := cache.NewStampedeGuard(distCache, store, cache.GuardConfig{})

	h := NewInventoryHandler(backend, distCache, guard, time.Minute, 5*time.Second)

	router := gin.New()
	router.GET("/api/products", h.List)
	router.GET("/api/products/search", h.Search)
	router.POST("/api/products", h.Create)
	return router, distCache
}

func TestInventoryHandler_ListCachesBackendReads(t *testing.T) {
	backend := &fakeBackend{products: []models.Product{{ID: "1", Name: "tomates"}}}
	router, _ := newInventoryRouter(backend)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, w.Code)
		}

		var body struct {
			Products []models.Product `json:"products"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if len(body.Products) != 1 || body.Products[0].Name != "tomates" {
			t.Errorf("request %d: body %+v", i+1, body)
		}
	}

	if calls := atomic.LoadInt32(&backend.listCalls); calls != 1 {
		t.Errorf("backend read %d times across 3 requests, want 1", calls)
	}
}

func TestInventoryHandler_SearchRequiresQuery(t *testing.T) {
	router, _ := newInventoryRouter(&fakeBackend{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products/search", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", w.Code)
	}
}

func TestInventoryHandler_CreateInvalidatesProductViews(t *testing.T) {
	backend := &fakeBackend{products: []models.Product{{ID: "1", Name: "tomates"}}}
	router, _ := newInventoryRouter(backend)

	// Warm the list cache.
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/products", nil))

	payload, _ := json.Marshal(models.Product{Name: "saumon", Quantity: 8})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if len(backend.saved) != 1 || backend.saved[0].Name != "saumon" {
		t.Errorf("saved %+v", backend.saved)
	}

	// The next list read must go back to the backend.
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/products", nil))
	if calls := atomic.LoadInt32(&backend.listCalls); calls != 2 {
		t.Errorf("backend read %d times, want a recompute after the write", calls)
	}
}

func TestInventoryHandler_CreateRejectsBadJSON(t *testing.T) {
	router, _ := newInventoryRouter(&fakeBackend{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/products", bytes.NewReader([]byte("{oops")))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", w.Code)
	}
}
