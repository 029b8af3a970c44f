package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/utafrali/roastery/internal/domain"
	"github.com/utafrali/roastery/internal/repository"
	apperrors "github.com/utafrali/roastery/pkg/errors"
	"github.com/utafrali/roastery/pkg/slug"
)

// CatalogService reads the active catalog.
type CatalogService struct {
	products repository.ProductRepository
}

// NewCatalogService creates a catalog service.
func NewCatalogService(products repository.ProductRepository) *CatalogService {
	return &CatalogService{products: products}
}

// List returns every active product, optionally only those carrying tag.
func (s *CatalogService) List(ctx context.Context, tag string) ([]domain.Product, error) {
	products, err := s.products.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return products, nil
	}
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		for _, t := range p.Tags {
			if t == tag {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

// Get looks a product up by UUID or by slug.
func (s *CatalogService) Get(ctx context.Context, ref string) (*domain.Product, error) {
	if _, err := uuid.Parse(ref); err == nil {
		return s.products.GetByID(ctx, ref)
	}
	normalized := slug.Generate(ref)
	if !slug.Valid(normalized) {
		return nil, apperrors.NotFound("product", ref)
	}
	return s.products.GetBySlug(ctx, normalized)
}
