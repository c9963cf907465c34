package sweep

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/internal/sweep/dto"
)

type UseCase interface {
	AddDemand(ctx context.Context, input *dto.AddDemandInput) (*model.SweepItem, error)
	RemoveDemand(ctx context.Context, sweepItemID string, quantity int) (*model.SweepItem, error)
	// ReleaseDemand removes what AddDemand recorded under demandKey, at most once.
	ReleaseDemand(ctx context.Context, demandKey string) (*model.SweepItem, error)

	MarkPicked(ctx context.Context, sweepItemID string, pickedQuantity int, notes *string) (*model.SweepItem, error)
	MarkUnavailable(ctx context.Context, sweepItemID string, notes *string) (*model.SweepItem, error)
	Substitute(ctx context.Context, sweepItemID, substituteProductID string, notes *string) (*model.SweepItem, error)

	AssignDriver(ctx context.Context, sweepID, driverID string) (*model.Sweep, error)
	Start(ctx context.Context, sweepID string) (*model.Sweep, error)
	Complete(ctx context.Context, sweepID string) (*model.Sweep, error)
	Cancel(ctx context.Context, sweepID string) (*model.Sweep, error)
	Get(ctx context.Context, sweepID string) (*model.Sweep, error)

	// NextOpenDate is the first day on or after from whose sweep for the
	// store is absent or still scheduled.
	NextOpenDate(ctx context.Context, storeID string, from time.Time) (time.Time, error)
}
