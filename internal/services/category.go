package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/unilib/apiserver/internal/cache"
	"github.com/unilib/apiserver/internal/log"
	"github.com/unilib/apiserver/internal/metrics"
	"github.com/unilib/apiserver/internal/store"
	"github.com/unilib/apiserver/types"
)

const categoriesCacheKey = "categories:all"

// CategoryRepository defines persistence operations for categories.
type CategoryRepository interface {
	List(ctx context.Context) ([]types.Category, error)
	Get(ctx context.Context, id int) (types.Category, error)
	Create(ctx context.Context, category types.Category) (types.Category, error)
	Update(ctx context.Context, category types.Category) (types.Category, error)
	Delete(ctx context.Context, id int) error
}

// CategoryService serves the category list from cache. Cache errors are
// logged and the database is used instead.
type CategoryService struct {
	repo   CategoryRepository
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCategoryService(repo CategoryRepository, c cache.Cache, ttl time.Duration) *CategoryService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CategoryService{repo: repo, cache: c, ttl: ttl, logger: log.WithComponent("categories")}
}

func (s *CategoryService) List(ctx context.Context) ([]types.Category, error) {
	var categories []types.Category
	err := cache.GetJSON(ctx, s.cache, categoriesCacheKey, &categories)
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues(categoriesCacheKey, "hit").Inc()
		return categories, nil
	case errors.Is(err, cache.ErrMiss):
		metrics.CacheLookups.WithLabelValues(categoriesCacheKey, "miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues(categoriesCacheKey, "error").Inc()
		s.logger.Warn().Err(err).Msg("category cache read failed")
	}

	categories, err = s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, s.cache, categoriesCacheKey, categories, s.ttl); err != nil {
		s.logger.Warn().Err(err).Msg("category cache write failed")
	}
	return categories, nil
}

func (s *CategoryService) Get(ctx context.Context, id int) (types.Category, error) {
	category, err := s.repo.Get(ctx, id)
	return category, missing(err, "category")
}

func (s *CategoryService) Create(ctx context.Context, category types.Category) (types.Category, error) {
	created, err := s.repo.Create(ctx, category)
	if err != nil {
		return types.Category{}, duplicateName(err)
	}
	s.invalidate(ctx)
	return created, nil
}

func (s *CategoryService) Update(ctx context.Context, category types.Category) (types.Category, error) {
	updated, err := s.repo.Update(ctx, category)
	if err != nil {
		return types.Category{}, duplicateName(missing(err, "category"))
	}
	s.invalidate(ctx)
	return updated, nil
}

func (s *CategoryService) Delete(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return missing(err, "category")
	}
	s.invalidate(ctx)
	return nil
}

func (s *CategoryService) invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, categoriesCacheKey); err != nil {
		s.logger.Warn().Err(err).Msg("category cache invalidation failed")
	}
}

func duplicateName(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return Conflict("a category with this name already exists")
	}
	return err
}
