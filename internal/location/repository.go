package location

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

type Repository interface {
	Create(ctx context.Context, node *model.LocationNode) error
	// BulkCreate inserts nodes in batches of batchSize rows per statement.
	BulkCreate(ctx context.Context, nodes []model.LocationNode, batchSize int) error

	// FindByID returns deleted nodes too; callers decide what a deleted node means.
	FindByID(ctx context.Context, id string) (*model.LocationNode, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.LocationNode, error)
	FindRootByName(ctx context.Context, name string) (*model.LocationNode, error)

	// ListByPathPrefix returns live nodes whose materialized path starts with prefix, ordered by path.
	ListByPathPrefix(ctx context.Context, prefix string) ([]model.LocationNode, error)
	ListByType(ctx context.Context, t model.LocationType) ([]model.LocationNode, error)
	CountByType(ctx context.Context, t model.LocationType) (int, error)

	// UpdateSubtree rewrites parent, path, zone and code of the given nodes in one transaction.
	UpdateSubtree(ctx context.Context, nodes []model.LocationNode) error
	SoftDelete(ctx context.Context, ids []string, at time.Time) error
}

// LotReferenceChecker reports how many lots still sit at the given locations.
type LotReferenceChecker interface {
	CountLotsAtLocations(ctx context.Context, locationIDs []string) (int, error)
}
