package service

import (
	"context"

	"unibuy/internal/models"
)

// CatalogReader is the read side of the product catalog.
type CatalogReader interface {
	Catalog
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// CatalogService exposes product browsing. Read only; stock is mutated
// exclusively by the order-confirmation path.
type CatalogService struct {
	catalog CatalogReader
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(catalog CatalogReader) *CatalogService {
	return &CatalogService{catalog: catalog}
}

// GetProduct retrieves a single product.
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return s.catalog.GetProductByID(ctx, id)
}

// ListProducts retrieves the catalog, or just the given ids when ids is
// non-empty. Unknown ids are simply absent from the result.
func (s *CatalogService) ListProducts(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) > 0 {
		return s.catalog.GetProductsByIDs(ctx, ids)
	}
	return s.catalog.GetProducts(ctx)
}
