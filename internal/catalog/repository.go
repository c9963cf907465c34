package catalog

import (
	"context"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

// Repository reads sourcing columns from the product catalog. Products that
// do not exist are simply absent from the result.
type Repository interface {
	GetSourcing(ctx context.Context, productIDs []string) ([]model.ProductSourcing, error)
}
