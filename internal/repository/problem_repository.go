package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sheet-tracker/backend/internal/domain"
)

// problemRepository implements domain.ProblemRepository using GORM
type problemRepository struct {
	db *gorm.DB
}

// NewProblemRepository creates a new problem repository
func NewProblemRepository(db *gorm.DB) domain.ProblemRepository {
	return &problemRepository{db: db}
}

// Create stores a problem, assigning its id
func (r *problemRepository) Create(ctx context.Context, problem *domain.Problem) error {
	if problem.ID == "" {
		problem.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(problem).Error
}

// CreateBatch stores problems in chunks. Problems without an order get the
// unordered sentinel so they sort after placed ones.
func (r *problemRepository) CreateBatch(ctx context.Context, problems []domain.Problem) error {
	if len(problems) == 0 {
		return nil
	}
	for i := range problems {
		if problems[i].ID == "" {
			problems[i].ID = uuid.NewString()
		}
		if problems[i].DisplayOrder == 0 {
			problems[i].DisplayOrder = domain.UnorderedDisplayOrder
		}
	}
	return r.db.WithContext(ctx).CreateInBatches(problems, 100).Error
}

// FindByID finds a problem by its ID
func (r *problemRepository) FindByID(ctx context.Context, id string) (*domain.Problem, error) {
	var problem domain.Problem
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&problem)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProblemNotFound
		}
		return nil, result.Error
	}
	return &problem, nil
}

// FindAll returns the whole catalog in stored order
func (r *problemRepository) FindAll(ctx context.Context) ([]domain.Problem, error) {
	problems := make([]domain.Problem, 0)
	result := r.db.WithContext(ctx).
		Order("display_order ASC").
		Order("topic ASC").
		Order("title ASC").
		Find(&problems)
	return problems, result.Error
}

// Update merges fields into the problem with the given id
func (r *problemRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&domain.Problem{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrProblemNotFound
	}
	return nil
}

// Delete deletes a problem by its ID
func (r *problemRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.Problem{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrProblemNotFound
	}
	return nil
}

// Count returns the total number of problems
func (r *problemRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&domain.Problem{}).Count(&count)
	return count, result.Error
}
