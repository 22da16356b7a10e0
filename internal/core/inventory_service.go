package core

import (
	"context"
)

// InventoryService exposes read access to branch stock.
type InventoryService interface {
	// BranchStock lists every inventory row of a branch with a low-stock flag.
	BranchStock(ctx context.Context, p Principal, branchID int64) ([]StockLevel, error)
}

type inventoryService struct {
	store  Store
	policy Policy
}

// NewInventoryService constructs an InventoryService over store.
func NewInventoryService(store Store) InventoryService {
	return &inventoryService{store: store}
}

func (s *inventoryService) BranchStock(ctx context.Context, p Principal, branchID int64) ([]StockLevel, error) {
	if err := s.policy.Require(p, ActionViewStock); err != nil {
		return nil, err
	}
	var levels []StockLevel
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		branch, err := tx.Catalog().GetBranch(ctx, branchID)
		if err != nil {
			return err
		}
		if err := s.policy.Authorize(p, ActionViewStock, Resource{BranchID: branch.ID, PharmacyID: branch.PharmacyID}); err != nil {
			return err
		}
		levels, err = tx.Inventory().ListByBranch(ctx, branch.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return levels, nil
}
