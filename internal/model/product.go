package model

// InventoryType says where a product's stock comes from.
type InventoryType string

const (
	InventoryWarehouse InventoryType = "Warehouse"
	InventorySweep     InventoryType = "Sweep"
)

// ProductSourcing is the slice of the product catalog the fulfillment engine reads.
type ProductSourcing struct {
	ProductID           string        `db:"id" json:"product_id"`
	InventoryType       InventoryType `db:"inventory_type" json:"inventory_type"`
	PreferredRetailerID *string       `db:"preferred_retailer_id" json:"preferred_retailer_id,omitempty"`
}
