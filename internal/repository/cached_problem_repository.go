package repository

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sheet-tracker/backend/internal/domain"
)

// CatalogCacheKey holds the JSON-encoded catalog
const CatalogCacheKey = "catalog:problems"

// cachedProblemRepository serves FindAll from Redis and falls back to the wrapped
// repository on a miss. Every write drops the cached catalog.
type cachedProblemRepository struct {
	domain.ProblemRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

// NewCachedProblemRepository wraps next with a Redis read-through cache
func NewCachedProblemRepository(next domain.ProblemRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) domain.ProblemRepository {
	return &cachedProblemRepository{
		ProblemRepository: next,
		client:            client,
		ttl:               ttl,
		logger:            logger,
		rnd:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *cachedProblemRepository) FindAll(ctx context.Context) ([]domain.Problem, error) {
	if problems, ok := r.cached(ctx); ok {
		return problems, nil
	}

	result, err, _ := r.sf.Do(CatalogCacheKey, func() (interface{}, error) {
		// shared by every waiter, so one caller's cancellation must not fail the rest
		ctx := context.WithoutCancel(ctx)

		// another caller may have filled the cache while we waited
		if problems, ok := r.cached(ctx); ok {
			return problems, nil
		}

		problems, err := r.ProblemRepository.FindAll(ctx)
		if err != nil {
			return nil, err
		}

		payload, err := json.Marshal(problems)
		if err == nil {
			err = r.client.Set(ctx, CatalogCacheKey, payload, r.ttlWithJitter()).Err()
		}
		if err != nil {
			r.logger.Warn("Failed to cache catalog", zap.Error(err))
		}
		return problems, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Problem), nil
}

func (r *cachedProblemRepository) cached(ctx context.Context) ([]domain.Problem, bool) {
	data, err := r.client.Get(ctx, CatalogCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("Catalog cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var problems []domain.Problem
	if err := json.Unmarshal(data, &problems); err != nil {
		return nil, false
	}
	return problems, true
}

func (r *cachedProblemRepository) Create(ctx context.Context, problem *domain.Problem) error {
	defer r.invalidate(ctx)
	return r.ProblemRepository.Create(ctx, problem)
}

func (r *cachedProblemRepository) CreateBatch(ctx context.Context, problems []domain.Problem) error {
	defer r.invalidate(ctx)
	return r.ProblemRepository.CreateBatch(ctx, problems)
}

func (r *cachedProblemRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	defer r.invalidate(ctx)
	return r.ProblemRepository.Update(ctx, id, fields)
}

func (r *cachedProblemRepository) Delete(ctx context.Context, id string) error {
	defer r.invalidate(ctx)
	return r.ProblemRepository.Delete(ctx, id)
}

// invalidate runs even when the write failed: a partial batch may still have landed.
func (r *cachedProblemRepository) invalidate(ctx context.Context) {
	if err := r.client.Del(context.WithoutCancel(ctx), CatalogCacheKey).Err(); err != nil {
		r.logger.Warn("Failed to invalidate catalog cache", zap.Error(err))
	}
}

func (r *cachedProblemRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
