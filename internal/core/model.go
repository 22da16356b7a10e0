package core

import (
	"github.com/shopspring/decimal"
)

// Role is the coarse permission group a principal belongs to.
type Role string

const (
	RoleUser          Role = "user"
	RoleCashier       Role = "cashier"
	RoleBranchAdmin   Role = "branch_admin"
	RolePharmacyAdmin Role = "pharmacy_admin"
	RoleOperator      Role = "operator"
	RoleSuperadmin    Role = "superadmin"
)

// Principal is the authenticated actor behind a request. Identity is owned by
// an external service; the engine only reads these attributes.
type Principal struct {
	ID         int64  `json:"id"`
	Role       Role   `json:"role"`
	BranchID   *int64 `json:"branch_id,omitempty"`
	PharmacyID *int64 `json:"pharmacy_id,omitempty"`
}

// Branch is a read-only view of a pharmacy branch.
type Branch struct {
	ID         int64  `json:"id"`
	PharmacyID int64  `json:"pharmacy_id"`
	Name       string `json:"name"`
}

// Drug is a read-only view of a catalog drug. Price applies when an order
// line names no variant.
type Drug struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	IsActive bool            `json:"is_active"`
}

// Variant is a packaging or strength variant of a Drug with its own price.
type Variant struct {
	ID       int64           `json:"id"`
	DrugID   int64           `json:"drug_id"`
	Name     string          `json:"name"`
	SKU      string          `json:"sku"`
	Price    decimal.Decimal `json:"price"`
	IsActive bool            `json:"is_active"`
}
