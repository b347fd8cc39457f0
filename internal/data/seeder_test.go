package data

import (
	"context"
	"errors"
	"testing"

	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sheet-tracker/backend/internal/domain"
	"github.com/sheet-tracker/backend/internal/importer"
	"github.com/sheet-tracker/backend/internal/infrastructure"
	"github.com/sheet-tracker/backend/internal/repository"
	"github.com/sheet-tracker/backend/internal/service"
)

func newCatalog(t *testing.T) *service.CatalogService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard, TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := infrastructure.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	metrics, err := infrastructure.NewMetrics(metricnoop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	return service.NewCatalogService(repository.NewProblemRepository(db), importer.DefaultSheetTypes,
		tracenoop.NewTracerProvider().Tracer("test"), zap.NewNop(), metrics)
}

func TestSeeder_SeedsOnceInTopicOrder(t *testing.T) {
	catalog := newCatalog(t)
	seeder := NewSeeder(catalog, importer.NewValidator(importer.DefaultSheetTypes), zap.NewNop())
	ctx := context.Background()

	n, err := seeder.SeedProblems(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n == 0 {
		t.Fatalf("expected problems to be seeded")
	}

	problems, err := catalog.Problems(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(problems) != n {
		t.Fatalf("expected %d problems, got %d", n, len(problems))
	}
	// every topic is contiguous after seeding
	seen := map[string]bool{}
	for i, p := range problems {
		if i > 0 && problems[i-1].Topic != p.Topic && seen[p.Topic] {
			t.Fatalf("topic %q is split at position %d", p.Topic, i)
		}
		seen[p.Topic] = true
	}
	for i, p := range problems {
		if p.DisplayOrder != i+1 {
			t.Fatalf("expected dense order, %q has %d at position %d", p.Title, p.DisplayOrder, i)
		}
	}
	if problems[0].Topic != "Arrays & Hashing" {
		t.Fatalf("expected topics in collation order, got %q first", problems[0].Topic)
	}

	again, err := seeder.SeedProblems(ctx)
	if err != nil || again != 0 {
		t.Fatalf("second seed must be a no-op, got %d %v", again, err)
	}
}

func TestSeeder_RejectsSampleOutsideAllowList(t *testing.T) {
	seeder := NewSeeder(newCatalog(t), importer.NewValidator([]string{"DSA"}), zap.NewNop())

	_, err := seeder.SeedProblems(context.Background())
	if !errors.Is(err, domain.ErrImportRejected) {
		t.Fatalf("expected rejected sample, got %v", err)
	}
}
