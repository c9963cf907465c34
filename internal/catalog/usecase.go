package catalog

import (
	"context"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

type UseCase interface {
	// GetSourcing returns sourcing keyed by product id. Unknown products are
	// missing from the map.
	GetSourcing(ctx context.Context, productIDs []string) (map[string]model.ProductSourcing, error)
}
