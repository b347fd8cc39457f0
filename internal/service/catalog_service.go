package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sheet-tracker/backend/internal/catalog"
	"github.com/sheet-tracker/backend/internal/domain"
	"github.com/sheet-tracker/backend/internal/importer"
	"github.com/sheet-tracker/backend/internal/infrastructure"
	"github.com/sheet-tracker/backend/internal/progress"
)

// CatalogService owns the sorted in-memory catalog and every write to it.
// Writes are pessimistic: the store is updated first and the snapshot only
// after the store confirms. Writes are serialized so no two are in flight.
type CatalogService struct {
	repo          domain.ProblemRepository
	tracer        trace.Tracer
	logger        *zap.Logger
	metrics       *infrastructure.TelemetryMetrics
	defaultSheets []string

	writeMu sync.Mutex

	mu       sync.RWMutex
	problems []domain.Problem
	loaded   bool

	obsMu     sync.RWMutex
	observers []domain.CatalogObserver
}

// NewCatalogService creates a new catalog service. defaultSheets names the
// sections listed while the catalog is empty.
func NewCatalogService(
	repo domain.ProblemRepository,
	defaultSheets []string,
	tracer trace.Tracer,
	logger *zap.Logger,
	metrics *infrastructure.TelemetryMetrics,
) *CatalogService {
	return &CatalogService{
		repo:          repo,
		tracer:        tracer,
		logger:        logger,
		metrics:       metrics,
		defaultSheets: defaultSheets,
	}
}

// Subscribe registers an observer for committed catalog changes
func (s *CatalogService) Subscribe(observer domain.CatalogObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, observer)
}

func (s *CatalogService) notify(ctx context.Context, eventType domain.CatalogEventType, ids []string, count int) {
	event := domain.CatalogEvent{
		Type:       eventType,
		ProblemIDs: ids,
		Count:      count,
		At:         time.Now().UTC(),
	}
	s.obsMu.RLock()
	observers := slices.Clone(s.observers)
	s.obsMu.RUnlock()
	for _, o := range observers {
		o.OnCatalogEvent(ctx, event)
	}
}

// FetchAll reloads the catalog from the store and re-sorts it with the default comparator
func (s *CatalogService) FetchAll(ctx context.Context) ([]domain.Problem, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.FetchAll")
	defer span.End()

	problems, err := s.repo.FindAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		s.logger.Error("Failed to fetch catalog", zap.Error(err))
		return nil, err
	}
	catalog.SortDefault(problems)

	s.mu.Lock()
	s.problems = problems
	s.loaded = true
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("catalog.size", len(problems)))
	return slices.Clone(problems), nil
}

// Problems returns a copy of the sorted catalog, loading it on first use
func (s *CatalogService) Problems(ctx context.Context) ([]domain.Problem, error) {
	s.mu.RLock()
	if s.loaded {
		problems := slices.Clone(s.problems)
		s.mu.RUnlock()
		return problems, nil
	}
	s.mu.RUnlock()
	return s.FetchAll(ctx)
}

// GetProblem returns a single problem from the store
func (s *CatalogService) GetProblem(ctx context.Context, id string) (*domain.Problem, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.GetProblem")
	defer span.End()

	span.SetAttributes(attribute.String("problem.id", id))
	return s.repo.FindByID(ctx, id)
}

// Visible applies the filter criteria and the user's progress to the catalog
func (s *CatalogService) Visible(ctx context.Context, c catalog.Criteria, state progress.State) ([]domain.Problem, error) {
	problems, err := s.Problems(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Filter(problems, c, catalog.NewIDSet(state.Solved), catalog.NewIDSet(state.Starred)), nil
}

// Grouped returns the visible problems grouped by topic with progress counts
func (s *CatalogService) Grouped(ctx context.Context, c catalog.Criteria, state progress.State) ([]catalog.TopicGroup, error) {
	visible, err := s.Visible(ctx, c, state)
	if err != nil {
		return nil, err
	}
	return catalog.GroupByTopic(visible, catalog.NewIDSet(state.Solved)), nil
}

// Sections lists the navigable sections with the user's solved counts
func (s *CatalogService) Sections(ctx context.Context, solved []string) ([]catalog.Section, string, error) {
	problems, err := s.Problems(ctx)
	if err != nil {
		return nil, "", err
	}
	sections := catalog.Sections(problems, catalog.NewIDSet(solved), s.defaultSheets)
	active := catalog.DefaultSection(problems)
	if active == "" && len(sections) > 0 {
		active = sections[0].ID
	}
	return sections, active, nil
}

// Stats returns statistics about the catalog
func (s *CatalogService) Stats(ctx context.Context) (*domain.ProblemStats, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.Stats")
	defer span.End()

	problems, err := s.Problems(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.ProblemStats{
		Total:        len(problems),
		ByDifficulty: make(map[domain.Difficulty]int),
		ByTopic:      make(map[string]int),
		BySheetType:  make(map[string]int),
	}
	for _, p := range problems {
		stats.ByDifficulty[p.Difficulty]++
		stats.ByTopic[p.Topic]++
		stats.BySheetType[p.SheetType]++
	}
	return stats, nil
}

// Add creates a problem placed after the last problem of its topic, or at
// the end of the catalog for a new topic.
func (s *CatalogService) Add(ctx context.Context, input domain.ProblemInput) (*domain.Problem, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.Add")
	defer span.End()

	if !input.Difficulty.IsValid() {
		return nil, domain.ErrInvalidDifficulty
	}

	s.writeMu.Lock()
	current, err := s.Problems(ctx)
	if err != nil {
		s.writeMu.Unlock()
		return nil, err
	}

	problem := input.ToProblem(catalog.NextDisplayOrder(current, input.Topic))
	if err := s.repo.Create(ctx, &problem); err != nil {
		s.writeMu.Unlock()
		span.RecordError(err)
		s.logger.Error("Failed to add problem", zap.String("title", input.Title), zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	s.problems = append(s.problems, problem)
	catalog.SortDefault(s.problems)
	s.mu.Unlock()
	s.writeMu.Unlock()

	span.SetAttributes(
		attribute.String("problem.id", problem.ID),
		attribute.Int("problem.display_order", problem.DisplayOrder),
	)
	s.logger.Info("Problem added",
		zap.String("problem_id", problem.ID),
		zap.String("topic", problem.Topic),
		zap.Int("display_order", problem.DisplayOrder),
	)
	s.notify(ctx, domain.CatalogEventCreated, []string{problem.ID}, 1)
	return &problem, nil
}

// Update merges a partial edit into a problem
func (s *CatalogService) Update(ctx context.Context, id string, update domain.ProblemUpdate) (*domain.Problem, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.Update")
	defer span.End()

	span.SetAttributes(attribute.String("problem.id", id))

	if update.IsEmpty() {
		return nil, domain.ErrEmptyUpdate
	}
	if update.Difficulty != nil && !update.Difficulty.IsValid() {
		return nil, domain.ErrInvalidDifficulty
	}

	s.writeMu.Lock()
	if err := s.repo.Update(ctx, id, update.Fields()); err != nil {
		s.writeMu.Unlock()
		if !errors.Is(err, domain.ErrProblemNotFound) {
			span.RecordError(err)
			s.logger.Error("Failed to update problem", zap.String("problem_id", id), zap.Error(err))
		}
		return nil, err
	}

	var updated *domain.Problem
	s.mu.Lock()
	for i := range s.problems {
		if s.problems[i].ID == id {
			update.ApplyTo(&s.problems[i])
			p := s.problems[i]
			updated = &p
			catalog.SortDefault(s.problems)
			break
		}
	}
	s.mu.Unlock()
	s.writeMu.Unlock()

	if updated == nil {
		// snapshot was stale or not loaded yet
		p, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if _, err := s.FetchAll(ctx); err != nil {
			return nil, err
		}
		updated = p
	}

	s.logger.Info("Problem updated", zap.String("problem_id", id))
	s.notify(ctx, domain.CatalogEventUpdated, []string{id}, 1)
	return updated, nil
}

// Delete removes a problem from the catalog
func (s *CatalogService) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "CatalogService.Delete")
	defer span.End()

	span.SetAttributes(attribute.String("problem.id", id))

	s.writeMu.Lock()
	err := s.repo.Delete(ctx, id)
	if err == nil {
		s.removeFromSnapshot(id)
	}
	s.writeMu.Unlock()
	if err != nil {
		return err
	}

	s.logger.Info("Problem deleted", zap.String("problem_id", id))
	s.notify(ctx, domain.CatalogEventDeleted, []string{id}, 1)
	return nil
}

// DeleteMany removes problems one at a time. Already deleted problems stay
// deleted when a later one fails.
func (s *CatalogService) DeleteMany(ctx context.Context, ids []string, policy domain.BatchPolicy) (domain.BatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.DeleteMany")
	defer span.End()

	span.SetAttributes(attribute.Int("batch.size", len(ids)), attribute.String("batch.policy", string(policy)))

	var result domain.BatchResult
	var deleted []string

	s.writeMu.Lock()
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			for _, rest := range ids[i:] {
				result.Skip(rest)
			}
			break
		}
		err := s.repo.Delete(ctx, id)
		result.Record(id, err)
		if err == nil {
			s.removeFromSnapshot(id)
			deleted = append(deleted, id)
			continue
		}
		s.logger.Warn("Failed to delete problem in batch", zap.String("problem_id", id), zap.Error(err))
		if policy == domain.BatchStopOnError {
			for _, rest := range ids[i+1:] {
				result.Skip(rest)
			}
			break
		}
	}
	s.writeMu.Unlock()

	if len(deleted) > 0 {
		s.notify(ctx, domain.CatalogEventDeleted, deleted, len(deleted))
	}
	return result, result.Err()
}

func (s *CatalogService) removeFromSnapshot(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problems = slices.DeleteFunc(s.problems, func(p domain.Problem) bool {
		return p.ID == id
	})
}

// BulkAdd inserts problems without an explicit order, then reloads the catalog
func (s *CatalogService) BulkAdd(ctx context.Context, inputs []domain.ProblemInput) (int, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.BulkAdd")
	defer span.End()

	if len(inputs) == 0 {
		return 0, domain.ErrNothingToImport
	}
	span.SetAttributes(attribute.Int("import.size", len(inputs)))

	problems := make([]domain.Problem, len(inputs))
	for i, in := range inputs {
		problems[i] = in.ToProblem(0)
	}

	s.writeMu.Lock()
	err := s.repo.CreateBatch(ctx, problems)
	if err == nil {
		_, err = s.FetchAll(ctx)
	}
	s.writeMu.Unlock()
	if err != nil {
		span.RecordError(err)
		s.logger.Error("Failed to bulk add problems", zap.Int("count", len(inputs)), zap.Error(err))
		return 0, err
	}

	s.metrics.ProblemsImported.Add(ctx, int64(len(problems)))
	s.logger.Info("Problems imported", zap.Int("count", len(problems)))

	ids := make([]string, len(problems))
	for i := range problems {
		ids[i] = problems[i].ID
	}
	s.notify(ctx, domain.CatalogEventImported, ids, len(ids))
	return len(problems), nil
}

// Import commits a validated upload. Any row error rejects the whole upload.
func (s *CatalogService) Import(ctx context.Context, result importer.Result) (int, error) {
	if len(result.Errors) > 0 {
		return 0, domain.NewDomainError(domain.ErrImportRejected,
			fmt.Sprintf("import rejected: %d invalid rows", len(result.Errors)))
	}
	return s.BulkAdd(ctx, result.Data)
}

// SortByTopic renumbers the whole catalog by topic then title
func (s *CatalogService) SortByTopic(ctx context.Context, policy domain.BatchPolicy) (domain.BatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.SortByTopic")
	defer span.End()

	return s.resort(ctx, catalog.SortByTopic, policy)
}

// SortByDifficulty renumbers the whole catalog by severity, topic, then title
func (s *CatalogService) SortByDifficulty(ctx context.Context, policy domain.BatchPolicy) (domain.BatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.SortByDifficulty")
	defer span.End()

	return s.resort(ctx, catalog.SortByDifficulty, policy)
}

func (s *CatalogService) resort(ctx context.Context, order func([]domain.Problem) []domain.Problem, policy domain.BatchPolicy) (domain.BatchResult, error) {
	s.writeMu.Lock()
	current, err := s.Problems(ctx)
	if err != nil {
		s.writeMu.Unlock()
		return domain.BatchResult{}, err
	}
	result, err := s.writeOrder(ctx, current, order(current), policy)
	s.writeMu.Unlock()

	s.notify(ctx, domain.CatalogEventReordered, nil, result.Applied)
	if err != nil {
		return result, err
	}
	return result, result.Err()
}

// Reorder moves one problem before another (or to the end when targetID is
// empty) and renumbers the catalog. Unknown ids and moving onto itself change nothing.
func (s *CatalogService) Reorder(ctx context.Context, movingID, targetID string, policy domain.BatchPolicy) (domain.BatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "CatalogService.Reorder")
	defer span.End()

	span.SetAttributes(attribute.String("problem.id", movingID), attribute.String("target.id", targetID))

	s.writeMu.Lock()
	current, err := s.Problems(ctx)
	if err != nil {
		s.writeMu.Unlock()
		return domain.BatchResult{}, err
	}
	moved, ok := catalog.MoveBefore(current, movingID, targetID)
	if !ok {
		s.writeMu.Unlock()
		return domain.BatchResult{Items: []domain.BatchItemResult{}}, nil
	}
	result, err := s.writeOrder(ctx, current, moved, policy)
	s.writeMu.Unlock()

	s.notify(ctx, domain.CatalogEventReordered, []string{movingID}, result.Applied)
	if err != nil {
		return result, err
	}
	return result, result.Err()
}

// writeOrder persists the display order of every record whose rank changed,
// one awaited write at a time, then reloads the catalog. Callers hold writeMu.
func (s *CatalogService) writeOrder(ctx context.Context, current, ordered []domain.Problem, policy domain.BatchPolicy) (domain.BatchResult, error) {
	stored := make(map[string]int, len(current))
	for _, p := range current {
		stored[p.ID] = p.DisplayOrder
	}

	result := domain.BatchResult{Items: []domain.BatchItemResult{}}
	var pending []domain.Problem
	for _, p := range ordered {
		if stored[p.ID] != p.DisplayOrder {
			pending = append(pending, p)
		}
	}

	for i, p := range pending {
		err := s.repo.Update(ctx, p.ID, map[string]interface{}{"display_order": p.DisplayOrder})
		result.Record(p.ID, err)
		if err != nil {
			s.logger.Warn("Failed to write display order",
				zap.String("problem_id", p.ID),
				zap.Int("display_order", p.DisplayOrder),
				zap.Error(err),
			)
			if policy == domain.BatchStopOnError {
				for _, rest := range pending[i+1:] {
					result.Skip(rest.ID)
				}
				break
			}
		}
	}
	s.metrics.OrderWrites.Add(ctx, int64(result.Applied+result.Failed))

	s.logger.Info("Catalog order written",
		zap.Int("applied", result.Applied),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
	)

	if _, err := s.FetchAll(ctx); err != nil {
		return result, err
	}
	return result, nil
}
