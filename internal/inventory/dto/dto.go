package dto

import (
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
)

type MovementFilters struct {
	LotID        string
	ProductID    string
	MovementType model.MovementType
	StartDate    *time.Time
	EndDate      *time.Time
	Page         int
	PageSize     int
}
