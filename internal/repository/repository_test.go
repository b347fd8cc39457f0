package repository

import (
	"context"
	"errors"
	"testing"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sheet-tracker/backend/internal/domain"
	"github.com/sheet-tracker/backend/internal/infrastructure"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := infrastructure.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func sampleProblem(title, topic string, order int) *domain.Problem {
	return &domain.Problem{
		Title:        title,
		Link:         "https://leetcode.com/problems/" + title,
		Topic:        topic,
		SubTopic:     "Basics",
		Difficulty:   domain.DifficultyEasy,
		SheetType:    "DSA",
		DisplayOrder: order,
	}
}

func TestProblemRepository_CreateAssignsID(t *testing.T) {
	repo := NewProblemRepository(newTestDB(t))
	ctx := context.Background()

	p := sampleProblem("two-sum", "Arrays", 1)
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == "" {
		t.Fatalf("expected generated id")
	}

	got, err := repo.FindByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Title != "two-sum" || got.DisplayOrder != 1 {
		t.Fatalf("unexpected problem: %+v", got)
	}
}

func TestProblemRepository_BatchWithoutOrderGetsSentinel(t *testing.T) {
	repo := NewProblemRepository(newTestDB(t))
	ctx := context.Background()

	batch := []domain.Problem{*sampleProblem("a", "Arrays", 0), *sampleProblem("b", "Arrays", 0)}
	if err := repo.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if err := repo.Create(ctx, sampleProblem("c", "Arrays", 5)); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 problems, got %d", len(all))
	}
	if all[0].Title != "c" {
		t.Fatalf("expected placed problem first, got %s", all[0].Title)
	}
	for _, p := range all[1:] {
		if p.DisplayOrder != domain.UnorderedDisplayOrder {
			t.Fatalf("expected sentinel order, got %d", p.DisplayOrder)
		}
	}
}

func TestProblemRepository_UpdateAndDelete(t *testing.T) {
	repo := NewProblemRepository(newTestDB(t))
	ctx := context.Background()

	p := sampleProblem("two-sum", "Arrays", 1)
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.Update(ctx, p.ID, map[string]interface{}{"display_order": 7, "sub_topic": "Hashing"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := repo.FindByID(ctx, p.ID)
	if got.DisplayOrder != 7 || got.SubTopic != "Hashing" || got.Title != "two-sum" {
		t.Fatalf("unexpected merge result: %+v", got)
	}

	if err := repo.Update(ctx, "missing", map[string]interface{}{"title": "x"}); !errors.Is(err, domain.ErrProblemNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, p.ID); !errors.Is(err, domain.ErrProblemNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if n, _ := repo.Count(ctx); n != 0 {
		t.Fatalf("expected empty catalog, got %d", n)
	}
}

func TestUserRepository_ProgressColumns(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()

	user := &domain.User{Email: "ada@example.com", Name: "Ada", PasswordHash: "x", Role: domain.RoleUser}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := repo.Update(ctx, user.ID, map[string]interface{}{
		"solved_problems": domain.IDList{"p1", "p2"},
		"notes":           datatypes.JSONMap{"p1": "two pointers"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.FindByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got.SolvedProblems) != 2 || got.SolvedProblems[1] != "p2" {
		t.Fatalf("unexpected solved: %v", got.SolvedProblems)
	}
	if got.NoteMap()["p1"] != "two pointers" {
		t.Fatalf("unexpected notes: %v", got.Notes)
	}
}

func TestUserRepository_Errors(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()

	if _, err := repo.FindByID(ctx, "nobody"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	first := &domain.User{Email: "dup@example.com", Name: "A", PasswordHash: "x", Role: domain.RoleUser}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := &domain.User{Email: "dup@example.com", Name: "B", PasswordHash: "x", Role: domain.RoleUser}
	if err := repo.Create(ctx, second); !errors.Is(err, domain.ErrUserAlreadyExists) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if err := repo.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, first.ID); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
