package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusCancelled:
		return true
	}
	return false
}

// Order is a customer order placed against a branch's stock.
// Status progresses through the state machine:
//
//	PENDING → CONFIRMED  (scan, decrements inventory)
//	PENDING → CANCELLED  (no inventory effect)
//
// CONFIRMED and CANCELLED are terminal. Orders are never deleted.
type Order struct {
	ID          int64           `json:"id"`
	OrderNumber string          `json:"order_number"`
	Barcode     string          `json:"barcode"` // same value as OrderNumber
	BranchID    int64           `json:"branch_id"`
	UserID      int64           `json:"user_id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
	Items       []OrderItem     `json:"items"`
}

// OrderItem is one line of an order. Price is a snapshot taken at creation
// and never changes afterwards.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	DrugID      int64           `json:"drug_id"`
	VariantID   *int64          `json:"drug_variant_id,omitempty"`
	DrugName    string          `json:"drug_name"`              // joined from drugs
	VariantName string          `json:"variant_name,omitempty"` // joined from drug_variants
	Quantity    int             `json:"qty"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// StockKey returns the inventory row this item draws from at the given branch.
func (it OrderItem) StockKey(branchID int64) StockKey {
	return StockKey{BranchID: branchID, DrugID: it.DrugID, VariantID: it.VariantID}
}

// OrderSummary is the list view of an order.
type OrderSummary struct {
	ID          int64           `json:"id"`
	OrderNumber string          `json:"order_number"`
	Barcode     string          `json:"barcode"`
	BranchID    int64           `json:"branch_id"`
	UserID      int64           `json:"user_id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemsCount  int             `json:"items_count"`
	CreatedAt   time.Time       `json:"created_at"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
}

// OrderFilter narrows order listings. Results are newest first.
type OrderFilter struct {
	Skip     int
	// Limit is 1..MaxListLimit; zero selects DefaultListLimit.
	Limit    int
	Status   *OrderStatus
	BranchID *int64
	UserID   *int64
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// OrderItemInput is one requested line of a new order.
type OrderItemInput struct {
	DrugID    int64  `json:"drug_id"`
	VariantID *int64 `json:"drug_variant_id,omitempty"`
	Quantity  int    `json:"qty"`
}

// CreateOrderRequest is the input to OrderService.CreateOrder.
type CreateOrderRequest struct {
	BranchID int64            `json:"branch_id"`
	Items    []OrderItemInput `json:"items"`
}

// ScanResult is returned by a successful confirmation.
type ScanResult struct {
	Order   *Order `json:"order"`
	Message string `json:"message"`
}
