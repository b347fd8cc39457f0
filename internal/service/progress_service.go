package service

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/sheet-tracker/backend/internal/domain"
	"github.com/sheet-tracker/backend/internal/infrastructure"
	"github.com/sheet-tracker/backend/internal/progress"
)

// CatalogReader is the read side of the catalog used to summarize progress
type CatalogReader interface {
	Problems(ctx context.Context) ([]domain.Problem, error)
}

// ProgressService holds each user's progress overlay and applies commands
// optimistically: the new state is visible at once and rolled back if the
// store rejects it.
type ProgressService struct {
	userRepo domain.UserRepository
	catalog  CatalogReader
	tracer   trace.Tracer
	logger   *zap.Logger
	metrics  *infrastructure.TelemetryMetrics

	mu      sync.Mutex
	entries map[string]*progressEntry
}

type progressEntry struct {
	// cmdMu serializes commands for one user across the store write
	cmdMu sync.Mutex

	mu     sync.RWMutex
	state  progress.State
	loaded bool
}

// NewProgressService creates a new progress service
func NewProgressService(
	userRepo domain.UserRepository,
	catalog CatalogReader,
	tracer trace.Tracer,
	logger *zap.Logger,
	metrics *infrastructure.TelemetryMetrics,
) *ProgressService {
	return &ProgressService{
		userRepo: userRepo,
		catalog:  catalog,
		tracer:   tracer,
		logger:   logger,
		metrics:  metrics,
		entries:  make(map[string]*progressEntry),
	}
}

func (s *ProgressService) entry(userID string) *progressEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		e = &progressEntry{}
		s.entries[userID] = e
	}
	return e
}

func (s *ProgressService) load(ctx context.Context, userID string, e *progressEntry) error {
	e.mu.RLock()
	loaded := e.loaded
	e.mu.RUnlock()
	if loaded {
		return nil
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		e.state = progress.State{
			Solved:  progress.Dedupe(user.SolvedProblems),
			Starred: progress.Dedupe(user.StarredProblems),
			Notes:   user.NoteMap(),
		}
		e.loaded = true
	}
	return nil
}

// State returns a copy of the user's current progress, including any
// optimistic change still being persisted.
func (s *ProgressService) State(ctx context.Context, userID string) (progress.State, error) {
	e := s.entry(userID)
	if err := s.load(ctx, userID, e); err != nil {
		return progress.State{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone(), nil
}

// Apply runs a progress command for the user. An unchanged state is not
// persisted. A failed store write restores the previous state and returns a
// Failed result carrying it.
func (s *ProgressService) Apply(ctx context.Context, userID string, cmd progress.Command) progress.Result {
	ctx, span := s.tracer.Start(ctx, "ProgressService.Apply")
	defer span.End()

	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("problem.id", cmd.ProblemID()),
		attribute.String("progress.field", string(cmd.Field())),
	)

	e := s.entry(userID)
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	if err := s.load(ctx, userID, e); err != nil {
		span.RecordError(err)
		return progress.Result{Status: progress.Failed, Err: err}
	}

	e.mu.Lock()
	previous := e.state.Clone()
	next, changed := cmd.Apply(previous)
	if !changed {
		e.mu.Unlock()
		return progress.Result{Status: progress.Applied, State: next, Previous: previous}
	}
	e.state = next
	e.mu.Unlock()

	if err := s.userRepo.Update(ctx, userID, progressFields(cmd.Field(), next)); err != nil {
		e.mu.Lock()
		e.state = previous
		e.mu.Unlock()

		span.RecordError(err)
		s.logger.Warn("Progress update rolled back",
			zap.String("user_id", userID),
			zap.String("problem_id", cmd.ProblemID()),
			zap.String("field", string(cmd.Field())),
			zap.Error(err),
		)
		return progress.Result{Status: progress.Failed, State: previous.Clone(), Previous: previous, Err: err}
	}

	if t, ok := cmd.(progress.Toggle); ok && t.Action == progress.ActionSolve {
		s.metrics.ProblemsSolved.Add(ctx, 1)
	}
	return progress.Result{Status: progress.Applied, Changed: true, State: next.Clone(), Previous: previous}
}

// Toggle applies a solve/unsolve/star/unstar action
func (s *ProgressService) Toggle(ctx context.Context, userID, problemID string, action progress.Action) progress.Result {
	return s.Apply(ctx, userID, progress.Toggle{Action: action, Problem: problemID})
}

// SetNote stores or, for a blank note, removes the user's note on a problem
func (s *ProgressService) SetNote(ctx context.Context, userID, problemID, text string) progress.Result {
	return s.Apply(ctx, userID, progress.SetNote{Problem: problemID, Text: text})
}

// Forget drops the cached progress of a user, e.g. after account deletion
func (s *ProgressService) Forget(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
}

// Summary computes the user's progress over the current catalog. Ids of
// problems no longer in the catalog are ignored.
func (s *ProgressService) Summary(ctx context.Context, userID string) (*domain.UserProgress, error) {
	ctx, span := s.tracer.Start(ctx, "ProgressService.Summary")
	defer span.End()

	state, err := s.State(ctx, userID)
	if err != nil {
		return nil, err
	}
	problems, err := s.catalog.Problems(ctx)
	if err != nil {
		return nil, err
	}

	solved := make(map[string]bool, len(state.Solved))
	for _, id := range state.Solved {
		solved[id] = true
	}

	summary := &domain.UserProgress{
		StarredCount:  len(state.Starred),
		NotesCount:    len(state.Notes),
		TopicProgress: make(map[string]domain.TopicStats),
		SheetProgress: make(map[string]domain.TopicStats),
	}
	for _, p := range problems {
		topic := summary.TopicProgress[p.Topic]
		sheet := summary.SheetProgress[p.SheetType]
		topic.Total++
		sheet.Total++
		if solved[p.ID] {
			topic.Solved++
			sheet.Solved++
			summary.TotalSolved++
			switch p.Difficulty {
			case domain.DifficultyEasy:
				summary.EasySolved++
			case domain.DifficultyMedium:
				summary.MediumSolved++
			case domain.DifficultyHard:
				summary.HardSolved++
			}
		}
		summary.TopicProgress[p.Topic] = topic
		summary.SheetProgress[p.SheetType] = sheet
	}
	return summary, nil
}

// progressFields maps a changed part of the state to the user columns it is stored in
func progressFields(field progress.Field, s progress.State) map[string]interface{} {
	switch field {
	case progress.FieldStarred:
		return map[string]interface{}{"starred_problems": domain.IDList(s.Starred)}
	case progress.FieldNotes:
		notes := make(datatypes.JSONMap, len(s.Notes))
		for id, text := range s.Notes {
			notes[id] = text
		}
		return map[string]interface{}{"notes": notes}
	default:
		return map[string]interface{}{"solved_problems": domain.IDList(s.Solved)}
	}
}
