package data

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sheet-tracker/backend/internal/domain"
	"github.com/sheet-tracker/backend/internal/importer"
	"github.com/sheet-tracker/backend/internal/service"
)

//go:embed sample_catalog.json
var sampleCatalog []byte

// Seeder fills an empty catalog with the embedded starter sheets
type Seeder struct {
	catalog   *service.CatalogService
	validator *importer.Validator
	logger    *zap.Logger
}

// NewSeeder creates a new catalog seeder
func NewSeeder(catalog *service.CatalogService, validator *importer.Validator, logger *zap.Logger) *Seeder {
	return &Seeder{
		catalog:   catalog,
		validator: validator,
		logger:    logger,
	}
}

// SampleProblems returns the embedded starter problems after validation
func (s *Seeder) SampleProblems() (importer.Result, error) {
	result := s.validator.ParseJSON(bytes.NewReader(sampleCatalog))
	if !result.OK() {
		return result, domain.NewDomainError(domain.ErrImportRejected,
			"sample catalog rejected: "+strings.Join(result.Errors, "; "))
	}
	return result, nil
}

// SeedProblems bulk adds the starter problems, then ranks the catalog by topic
// so every topic is contiguous. A catalog that already has problems is left alone.
func (s *Seeder) SeedProblems(ctx context.Context) (int, error) {
	existing, err := s.catalog.FetchAll(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		s.logger.Info("Catalog already seeded, skipping", zap.Int("count", len(existing)))
		return 0, nil
	}

	result, err := s.SampleProblems()
	if err != nil {
		return 0, err
	}

	s.logger.Info("Seeding catalog", zap.Int("count", len(result.Data)))
	n, err := s.catalog.BulkAdd(ctx, result.Data)
	if err != nil {
		return 0, fmt.Errorf("seed catalog: %w", err)
	}
	if _, err := s.catalog.SortByTopic(ctx, domain.BatchStopOnError); err != nil {
		return n, fmt.Errorf("rank seeded catalog: %w", err)
	}

	s.logger.Info("Successfully seeded catalog", zap.Int("count", n))
	return n, nil
}
