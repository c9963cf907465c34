package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/catalog"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/cache"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/logger"
	"go.uber.org/zap"
)

// Cache is the JSON cache in front of the catalog. *cache.RedisClient
// satisfies it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type catalogUseCase struct {
	repo   catalog.Repository
	cache  Cache
	ttl    time.Duration
	logger logger.ZapLogger
}

// NewCatalogUseCase wraps the repository with a per-product cache. c may be
// nil to always read through.
func NewCatalogUseCase(repo catalog.Repository, c Cache, ttl time.Duration, log logger.ZapLogger) catalog.UseCase {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &catalogUseCase{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		logger: log,
	}
}

func cacheKey(productID string) string {
	return "fulfillment:sourcing:" + productID
}

func (uc *catalogUseCase) GetSourcing(ctx context.Context, productIDs []string) (map[string]model.ProductSourcing, error) {
	out := make(map[string]model.ProductSourcing, len(productIDs))
	missing := make([]string, 0, len(productIDs))
	seen := map[string]bool{}

	for _, id := range productIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		if uc.cache != nil {
			var p model.ProductSourcing
			err := uc.cache.GetJSON(ctx, cacheKey(id), &p)
			if err == nil {
				out[id] = p
				continue
			}
			if !errors.Is(err, cache.ErrCacheMiss) {
				uc.logger.Warn("Sourcing cache read failed", zap.String("product_id", id), zap.Error(err))
			}
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return out, nil
	}

	found, err := uc.repo.GetSourcing(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, p := range found {
		out[p.ProductID] = p
		if uc.cache != nil {
			if err := uc.cache.SetJSON(ctx, cacheKey(p.ProductID), p, uc.ttl); err != nil {
				uc.logger.Warn("Sourcing cache write failed", zap.String("product_id", p.ProductID), zap.Error(err))
			}
		}
	}
	return out, nil
}
