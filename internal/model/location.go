package model

import (
	"strings"
	"time"
)

type LocationType string

const (
	LocationZone  LocationType = "zone"
	LocationAisle LocationType = "aisle"
	LocationBay   LocationType = "bay"
	LocationShelf LocationType = "shelf"
	LocationSlot  LocationType = "slot"
)

var locationLevels = []LocationType{LocationZone, LocationAisle, LocationBay, LocationShelf, LocationSlot}

// Depth is 0 for zones and 4 for slots, -1 for unknown types.
func (t LocationType) Depth() int {
	for i, lt := range locationLevels {
		if lt == t {
			return i
		}
	}
	return -1
}

func (t LocationType) Valid() bool {
	return t.Depth() >= 0
}

// ChildType returns the level directly below t.
func (t LocationType) ChildType() (LocationType, bool) {
	d := t.Depth()
	if d < 0 || d == len(locationLevels)-1 {
		return "", false
	}
	return locationLevels[d+1], true
}

type ZoneCode string

const (
	ZoneAmbient      ZoneCode = "ambient"
	ZoneRefrigerated ZoneCode = "refrigerated"
	ZoneFrozen       ZoneCode = "frozen"
)

// Rank orders zones along the pick path: cold goods are picked last.
func (z ZoneCode) Rank() int {
	switch z {
	case ZoneAmbient:
		return 0
	case ZoneRefrigerated:
		return 1
	case ZoneFrozen:
		return 2
	default:
		return 3
	}
}

func (z ZoneCode) Valid() bool {
	return z.Rank() < 3
}

type LocationNode struct {
	BaseModel
	Name             string       `db:"name" json:"name"`
	Type             LocationType `db:"type" json:"type"`
	ZoneCode         ZoneCode     `db:"zone_code" json:"zone_code"`
	AisleNumber      *int         `db:"aisle_number" json:"aisle_number,omitempty"`
	BayNumber        *int         `db:"bay_number" json:"bay_number,omitempty"`
	ShelfNumber      *int         `db:"shelf_number" json:"shelf_number,omitempty"`
	SlotNumber       *int         `db:"slot_number" json:"slot_number,omitempty"`
	LocationCode     string       `db:"location_code" json:"location_code"`
	ParentID         *string      `db:"parent_id" json:"parent_id,omitempty"`
	MaterializedPath string       `db:"materialized_path" json:"materialized_path"`
	DeletedAt        *time.Time   `db:"deleted_at" json:"deleted_at,omitempty"`
}

// PathSeparator joins ancestor ids in MaterializedPath.
const PathSeparator = "."

// Number returns the numeric coordinate populated at the node's own depth.
func (n *LocationNode) Number() *int {
	switch n.Type {
	case LocationAisle:
		return n.AisleNumber
	case LocationBay:
		return n.BayNumber
	case LocationShelf:
		return n.ShelfNumber
	case LocationSlot:
		return n.SlotNumber
	}
	return nil
}

// SetNumber stores num in the field matching the node's depth and clears the others.
func (n *LocationNode) SetNumber(num *int) {
	n.AisleNumber, n.BayNumber, n.ShelfNumber, n.SlotNumber = nil, nil, nil, nil
	switch n.Type {
	case LocationAisle:
		n.AisleNumber = num
	case LocationBay:
		n.BayNumber = num
	case LocationShelf:
		n.ShelfNumber = num
	case LocationSlot:
		n.SlotNumber = num
	}
}

// AncestorIDs returns the ids on the path, root first, the node itself last.
func (n *LocationNode) AncestorIDs() []string {
	if n.MaterializedPath == "" {
		return nil
	}
	return strings.Split(n.MaterializedPath, PathSeparator)
}

func (n *LocationNode) IsDeleted() bool {
	return n.DeletedAt != nil
}
