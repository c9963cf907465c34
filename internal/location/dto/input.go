package dto

import "github.com/fekuna/omnipos-fulfillment-service/internal/model"

type CreateNodeInput struct {
	ParentID *string
	Name     string
	Type     model.LocationType
	ZoneCode model.ZoneCode // zones only; children inherit
	Number   *int           // aisle, bay, shelf or slot number
}
