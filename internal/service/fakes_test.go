package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"gorm.io/datatypes"

	"github.com/sheet-tracker/backend/internal/domain"
	"github.com/sheet-tracker/backend/internal/infrastructure"
)

func testTracer() trace.Tracer {
	return tracenoop.NewTracerProvider().Tracer("test")
}

func testMetrics(t *testing.T) *infrastructure.TelemetryMetrics {
	t.Helper()
	m, err := infrastructure.NewMetrics(metricnoop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	return m
}

// fakeProblemRepo is an in-memory store. The func fields inject failures;
// a nil hook means the call succeeds.
type fakeProblemRepo struct {
	mu       sync.Mutex
	problems map[string]domain.Problem
	writes   []string

	createErr func(p *domain.Problem) error
	updateErr func(id string, fields map[string]interface{}) error
	deleteErr func(id string) error
	findAllFn func() error
}

func newFakeProblemRepo(problems ...domain.Problem) *fakeProblemRepo {
	r := &fakeProblemRepo{problems: make(map[string]domain.Problem)}
	for _, p := range problems {
		r.problems[p.ID] = p
	}
	return r
}

func (r *fakeProblemRepo) Create(ctx context.Context, p *domain.Problem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		if err := r.createErr(p); err != nil {
			return err
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	r.problems[p.ID] = *p
	return nil
}

func (r *fakeProblemRepo) CreateBatch(ctx context.Context, problems []domain.Problem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range problems {
		if problems[i].ID == "" {
			problems[i].ID = uuid.NewString()
		}
		if problems[i].DisplayOrder == 0 {
			problems[i].DisplayOrder = domain.UnorderedDisplayOrder
		}
		r.problems[problems[i].ID] = problems[i]
	}
	return nil
}

func (r *fakeProblemRepo) FindByID(ctx context.Context, id string) (*domain.Problem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.problems[id]
	if !ok {
		return nil, domain.ErrProblemNotFound
	}
	return &p, nil
}

func (r *fakeProblemRepo) FindAll(ctx context.Context) ([]domain.Problem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findAllFn != nil {
		if err := r.findAllFn(); err != nil {
			return nil, err
		}
	}
	out := make([]domain.Problem, 0, len(r.problems))
	for _, p := range r.problems {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeProblemRepo) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		if err := r.updateErr(id, fields); err != nil {
			return err
		}
	}
	p, ok := r.problems[id]
	if !ok {
		return domain.ErrProblemNotFound
	}
	for k, v := range fields {
		switch k {
		case "title":
			p.Title = v.(string)
		case "link":
			p.Link = v.(string)
		case "topic":
			p.Topic = v.(string)
		case "sub_topic":
			p.SubTopic = v.(string)
		case "difficulty":
			p.Difficulty = v.(domain.Difficulty)
		case "display_order":
			p.DisplayOrder = v.(int)
		case "sheet_type":
			p.SheetType = v.(string)
		default:
			panic(fmt.Sprintf("unexpected field %q", k))
		}
	}
	r.problems[id] = p
	r.writes = append(r.writes, id)
	return nil
}

func (r *fakeProblemRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		if err := r.deleteErr(id); err != nil {
			return err
		}
	}
	if _, ok := r.problems[id]; !ok {
		return domain.ErrProblemNotFound
	}
	delete(r.problems, id)
	return nil
}

func (r *fakeProblemRepo) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.problems)), nil
}

// fakeUserRepo stores users by id and records every update
type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	updates []map[string]interface{}

	updateErr func(id string, fields map[string]interface{}) error
	findErr   func(id string) error
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return domain.ErrUserAlreadyExists
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		if err := r.findErr(id); err != nil {
			return nil, err
		}
	}
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *fakeUserRepo) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		if err := r.updateErr(id, fields); err != nil {
			return err
		}
	}
	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	r.updates = append(r.updates, fields)
	for k, v := range fields {
		switch k {
		case "solved_problems":
			u.SolvedProblems = v.(domain.IDList)
		case "starred_problems":
			u.StarredProblems = v.(domain.IDList)
		case "notes":
			u.Notes = v.(datatypes.JSONMap)
		case "name":
			u.Name = v.(string)
		case "display_name":
			u.DisplayName = v.(string)
		default:
			panic(fmt.Sprintf("unexpected field %q", k))
		}
	}
	return nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

// recordingObserver captures catalog events
type recordingObserver struct {
	mu     sync.Mutex
	events []domain.CatalogEvent
}

func (o *recordingObserver) OnCatalogEvent(ctx context.Context, event domain.CatalogEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) types() []domain.CatalogEventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.CatalogEventType, len(o.events))
	for i, e := range o.events {
		out[i] = e.Type
	}
	return out
}
