package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pharmacy-retail/internal/core"
)

type inventoryLedger struct {
	tx pgx.Tx
}

// keyPredicate matches one inventory row. IS NOT DISTINCT FROM makes a NULL
// variant match only the NULL-variant row.
const keyPredicate = "branch_id = $1 AND drug_id = $2 AND drug_variant_id IS NOT DISTINCT FROM $3"

func (l *inventoryLedger) CheckAvailable(ctx context.Context, key core.StockKey, required int) (bool, int, error) {
	var qty int
	err := l.tx.QueryRow(ctx,
		"SELECT quantity FROM inventories WHERE "+keyPredicate,
		key.BranchID, key.DrugID, key.VariantID,
	).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, storeErr("check stock", err)
	}
	return qty >= required, qty, nil
}

// ReserveAndDecrement holds the row lock until the caller's transaction ends,
// so no other scan can read the pre-decrement quantity.
func (l *inventoryLedger) ReserveAndDecrement(ctx context.Context, key core.StockKey, required int, orderID int64) (bool, int, error) {
	var invID int64
	var qty int
	err := l.tx.QueryRow(ctx,
		"SELECT id, quantity FROM inventories WHERE "+keyPredicate+" FOR UPDATE",
		key.BranchID, key.DrugID, key.VariantID,
	).Scan(&invID, &qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, 0, core.NotFound("inventory", key)
	}
	if err != nil {
		return false, 0, storeErr("lock inventory row", err)
	}

	if qty < required {
		return false, qty, nil
	}

	var after int
	err = l.tx.QueryRow(ctx, `
		UPDATE inventories
		SET quantity = quantity - $1, updated_at = NOW()
		WHERE id = $2 AND quantity >= $1
		RETURNING quantity
	`, required, invID).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, qty, nil
	}
	if err != nil {
		return false, 0, storeErr("decrement inventory", err)
	}

	_, err = l.tx.Exec(ctx, `
		INSERT INTO inventory_movements (inventory_id, order_id, movement_type, quantity, quantity_after)
		VALUES ($1, $2, $3, $4, $5)
	`, invID, orderID, core.MovementOrderConfirmed, -required, after)
	if err != nil {
		return false, 0, storeErr("record inventory movement", err)
	}
	return true, after, nil
}

func (l *inventoryLedger) ListByBranch(ctx context.Context, branchID int64) ([]core.StockLevel, error) {
	rows, err := l.tx.Query(ctx, `
		SELECT i.id, i.branch_id, i.drug_id, i.drug_variant_id, d.name, COALESCE(dv.name, ''),
		       i.quantity, i.reorder_level, i.updated_at
		FROM inventories i
		JOIN drugs d ON d.id = i.drug_id
		LEFT JOIN drug_variants dv ON dv.id = i.drug_variant_id
		WHERE i.branch_id = $1
		ORDER BY i.drug_id, COALESCE(i.drug_variant_id, 0)
	`, branchID)
	if err != nil {
		return nil, storeErr("list branch stock", err)
	}
	defer rows.Close()

	levels := []core.StockLevel{}
	for rows.Next() {
		var s core.StockLevel
		if err := rows.Scan(
			&s.InventoryID, &s.BranchID, &s.DrugID, &s.VariantID, &s.DrugName, &s.VariantName,
			&s.Quantity, &s.ReorderLevel, &s.UpdatedAt,
		); err != nil {
			return nil, storeErr("scan stock level", err)
		}
		s.LowStock = s.Quantity <= s.ReorderLevel
		levels = append(levels, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate stock levels", err)
	}
	return levels, nil
}
