package location

import "github.com/fekuna/omnipos-fulfillment-service/internal/model"

// PickKey positions a slot on the warehouse walking path.
type PickKey struct {
	ZoneRank int
	Zone     string
	Aisle    int
	Bay      int
	Shelf    int
	Slot     int
}

// PickKeyFor builds the key from a resolved path (root first).
func PickKeyFor(path []model.LocationNode) PickKey {
	var k PickKey
	for i := range path {
		n := &path[i]
		switch n.Type {
		case model.LocationZone:
			k.ZoneRank = n.ZoneCode.Rank()
			k.Zone = n.LocationCode
		case model.LocationAisle:
			k.Aisle = deref(n.AisleNumber)
		case model.LocationBay:
			k.Bay = deref(n.BayNumber)
		case model.LocationShelf:
			k.Shelf = deref(n.ShelfNumber)
		case model.LocationSlot:
			k.Slot = deref(n.SlotNumber)
		}
	}
	return k
}

func (k PickKey) Less(o PickKey) bool {
	if k.ZoneRank != o.ZoneRank {
		return k.ZoneRank < o.ZoneRank
	}
	if k.Zone != o.Zone {
		return k.Zone < o.Zone
	}
	if k.Aisle != o.Aisle {
		return k.Aisle < o.Aisle
	}
	if k.Bay != o.Bay {
		return k.Bay < o.Bay
	}
	if k.Shelf != o.Shelf {
		return k.Shelf < o.Shelf
	}
	return k.Slot < o.Slot
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
