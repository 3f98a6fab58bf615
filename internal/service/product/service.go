package product

import (
	"context"
	"errors"
	"strings"

	"storefront-panel/internal/domain"
	productrepo "storefront-panel/internal/repository/product"
)

type Service struct {
	repo productrepo.Repository
}

func New(repo productrepo.Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	return s.repo.List(ctx)
}

// Get resolves a product by id, falling back to its slug so landing pages can
// use readable URLs.
func (s *Service) Get(ctx context.Context, idOrSlug string) (*domain.Product, error) {
	idOrSlug = strings.TrimSpace(idOrSlug)
	if idOrSlug == "" {
		return nil, domain.ErrNotFound
	}
	p, err := s.repo.GetByID(ctx, idOrSlug)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return s.repo.GetBySlug(ctx, idOrSlug)
}
