package core

import (
	"context"
	"time"
)

// Store opens transactional sessions. Every engine operation runs its reads
// and writes inside exactly one WithinTx call.
type Store interface {
	// WithinTx runs fn in a transaction. A nil return commits; any error rolls
	// back every write made through tx and is returned unchanged unless the
	// commit itself fails.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes the repositories bound to one open transaction.
type Tx interface {
	Orders() OrderRepository
	Inventory() InventoryLedger
	Catalog() Catalog
}

// OrderRepository persists orders and their items.
type OrderRepository interface {
	// CreateOrder inserts the header and fills ID and CreatedAt.
	// A duplicate order number or barcode returns a KindConflict error.
	CreateOrder(ctx context.Context, o *Order) error
	// CreateItems inserts items for orderID and fills their ID and OrderID.
	CreateItems(ctx context.Context, orderID int64, items []OrderItem) error
	// GetByID loads an order with its items. lock holds the order row until
	// the transaction ends.
	GetByID(ctx context.Context, id int64, lock bool) (*Order, error)
	GetByCode(ctx context.Context, code string, lock bool) (*Order, error)
	// UpdateStatus moves o to status, stamping the matching timestamp with at,
	// and updates o in place.
	UpdateStatus(ctx context.Context, o *Order, status OrderStatus, at time.Time) error
	ListFiltered(ctx context.Context, f OrderFilter) ([]OrderSummary, error)
	ListByPharmacy(ctx context.Context, pharmacyID int64, f OrderFilter) ([]OrderSummary, error)
	// CodeExists reports whether code is taken as an order number or barcode.
	CodeExists(ctx context.Context, code string) (bool, error)
}

// InventoryLedger reads and decrements per-branch stock.
type InventoryLedger interface {
	// CheckAvailable is a non-binding read. A missing row reports zero stock.
	CheckAvailable(ctx context.Context, key StockKey, required int) (ok bool, current int, err error)
	// ReserveAndDecrement locks the row, and when quantity >= required
	// decrements it and records a movement for orderID. When stock is short it
	// returns ok=false with the current quantity and writes nothing. A missing
	// row returns a KindNotFound error.
	ReserveAndDecrement(ctx context.Context, key StockKey, required int, orderID int64) (ok bool, current int, err error)
	ListByBranch(ctx context.Context, branchID int64) ([]StockLevel, error)
}

// Catalog provides read-only lookups of branches, drugs and variants.
type Catalog interface {
	GetBranch(ctx context.Context, id int64) (*Branch, error)
	GetDrug(ctx context.Context, id int64) (*Drug, error)
	GetVariant(ctx context.Context, id int64) (*Variant, error)
}
