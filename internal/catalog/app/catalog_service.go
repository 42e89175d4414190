package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/argsms/rangepool/internal/catalog/domain"
)

// CatalogService is the ingestion-facing side of the inventory. The CSV (or
// other) ingestion collaborator parses its input and calls these operations;
// parsing itself lives outside this module.
type CatalogService struct {
	repo   domain.CatalogRepository
	logger *slog.Logger
}

func NewCatalogService(repo domain.CatalogRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		repo:   repo,
		logger: logger.With("service", "catalog"),
	}
}

// UpsertRange creates or refreshes a range. The identifier is derived from
// the name, so repeated uploads of the same range converge on one row.
func (s *CatalogService) UpsertRange(ctx context.Context, name string) (*domain.Range, error) {
	if name == "" {
		return nil, fmt.Errorf("range name must not be empty")
	}
	rng, err := s.repo.UpsertRange(ctx, name)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "range upserted", "range_id", rng.ID, "name", rng.Name)
	return rng, nil
}

// UpsertNumber adds a number to a range, re-parenting an existing number
// unless it is permanently held (domain.ErrNumberPermanentlyHeld).
func (s *CatalogService) UpsertNumber(ctx context.Context, number, rangeID string) (*domain.PhoneNumber, error) {
	if number == "" {
		return nil, fmt.Errorf("number must not be empty")
	}
	exists, err := s.repo.Exists(ctx, rangeID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrRangeNotFound
	}
	return s.repo.UpsertNumber(ctx, number, rangeID)
}

// DeleteRange removes a range and cascades to its numbers and holds.
func (s *CatalogService) DeleteRange(ctx context.Context, rangeID string) error {
	if err := s.repo.DeleteRange(ctx, rangeID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "range deleted", "range_id", rangeID)
	return nil
}

// GetRange returns a range by id.
func (s *CatalogService) GetRange(ctx context.Context, rangeID string) (*domain.Range, error) {
	return s.repo.GetRange(ctx, rangeID)
}

// ListAvailable returns the unheld numbers of a range.
func (s *CatalogService) ListAvailable(ctx context.Context, rangeID string) ([]domain.PhoneNumber, error) {
	return s.repo.ListAvailable(ctx, rangeID)
}
