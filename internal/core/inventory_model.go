package core

import (
	"fmt"
	"time"
)

// StockKey identifies one inventory row. A nil VariantID is a distinct key
// value, not a wildcard.
type StockKey struct {
	BranchID  int64
	DrugID    int64
	VariantID *int64
}

func (k StockKey) String() string {
	if k.VariantID == nil {
		return fmt.Sprintf("branch %d drug %d", k.BranchID, k.DrugID)
	}
	return fmt.Sprintf("branch %d drug %d variant %d", k.BranchID, k.DrugID, *k.VariantID)
}

// variantOrZero maps the nullable variant to the value used by the unique
// index on inventories.
func (k StockKey) variantOrZero() int64 {
	if k.VariantID == nil {
		return 0
	}
	return *k.VariantID
}

// Less orders keys by (drug, variant) with the null variant first. Scans lock
// inventory rows in this order.
func (k StockKey) Less(o StockKey) bool {
	if k.DrugID != o.DrugID {
		return k.DrugID < o.DrugID
	}
	return k.variantOrZero() < o.variantOrZero()
}

// StockLevel is a read view of an inventory row joined with drug and variant names.
type StockLevel struct {
	InventoryID  int64     `json:"inventory_id"`
	BranchID     int64     `json:"branch_id"`
	DrugID       int64     `json:"drug_id"`
	VariantID    *int64    `json:"drug_variant_id,omitempty"`
	DrugName     string    `json:"drug_name"`
	VariantName  string    `json:"variant_name,omitempty"`
	Quantity     int       `json:"quantity"`
	ReorderLevel int       `json:"reorder_level"`
	LowStock     bool      `json:"low_stock"` // quantity <= reorder_level
	UpdatedAt    time.Time `json:"updated_at"`
}

// MovementOrderConfirmed is the movement type written when a scan decrements stock.
const MovementOrderConfirmed = "ORDER_CONFIRMED"

// InventoryMovement records one change to an inventory row.
type InventoryMovement struct {
	ID            int64     `json:"id"`
	InventoryID   int64     `json:"inventory_id"`
	OrderID       *int64    `json:"order_id,omitempty"`
	MovementType  string    `json:"movement_type"`
	Quantity      int       `json:"quantity"` // negative for decrements
	QuantityAfter int       `json:"quantity_after"`
	CreatedAt     time.Time `json:"created_at"`
}
