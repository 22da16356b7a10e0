package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"pharmacy-retail/internal/core"
)

type orderRepo struct {
	tx pgx.Tx
}

const orderColumns = `o.id, o.order_number, o.barcode, o.branch_id, o.user_id, o.status,
	o.total_amount, o.created_at, o.confirmed_at, o.cancelled_at`

func (r *orderRepo) CreateOrder(ctx context.Context, o *core.Order) error {
	err := r.tx.QueryRow(ctx, `
		INSERT INTO orders (order_number, barcode, branch_id, user_id, status, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, o.OrderNumber, o.Barcode, o.BranchID, o.UserID, string(o.Status), o.TotalAmount).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return storeErr("insert order", err)
	}
	return nil
}

func (r *orderRepo) CreateItems(ctx context.Context, orderID int64, items []core.OrderItem) error {
	for i := range items {
		it := &items[i]
		err := r.tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, drug_id, drug_variant_id, quantity, price, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, orderID, it.DrugID, it.VariantID, it.Quantity, it.Price, it.Subtotal).Scan(&it.ID)
		if err != nil {
			return storeErr(fmt.Sprintf("insert order item %d", i+1), err)
		}
		it.OrderID = orderID
	}
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id int64, lock bool) (*core.Order, error) {
	return r.getOne(ctx, "o.id = $1", id, lock, func() error { return core.NotFound("order", id) })
}

func (r *orderRepo) GetByCode(ctx context.Context, code string, lock bool) (*core.Order, error) {
	return r.getOne(ctx, "(o.barcode = $1 OR o.order_number = $1)", code, lock, func() error { return core.NotFound("order", code) })
}

func (r *orderRepo) getOne(ctx context.Context, where string, arg any, lock bool, notFound func() error) (*core.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders o WHERE " + where
	if lock {
		query += " FOR UPDATE"
	}

	o, err := scanOrder(r.tx.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound()
	}
	if err != nil {
		return nil, storeErr("get order", err)
	}

	o.Items, err = r.items(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepo) items(ctx context.Context, orderID int64) ([]core.OrderItem, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT oi.id, oi.order_id, oi.drug_id, oi.drug_variant_id, d.name, COALESCE(dv.name, ''),
		       oi.quantity, oi.price, oi.subtotal
		FROM order_items oi
		JOIN drugs d ON d.id = oi.drug_id
		LEFT JOIN drug_variants dv ON dv.id = oi.drug_variant_id
		WHERE oi.order_id = $1
		ORDER BY oi.id
	`, orderID)
	if err != nil {
		return nil, storeErr("query order items", err)
	}
	defer rows.Close()

	var items []core.OrderItem
	for rows.Next() {
		var it core.OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.DrugID, &it.VariantID, &it.DrugName, &it.VariantName,
			&it.Quantity, &it.Price, &it.Subtotal,
		); err != nil {
			return nil, storeErr("scan order item", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate order items", err)
	}
	return items, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, o *core.Order, status core.OrderStatus, at time.Time) error {
	var column string
	switch status {
	case core.OrderStatusConfirmed:
		column = "confirmed_at"
	case core.OrderStatusCancelled:
		column = "cancelled_at"
	default:
		return core.Errorf(core.KindInvalidState, "cannot move order %d to %s", o.ID, status)
	}

	tag, err := r.tx.Exec(ctx,
		"UPDATE orders SET status = $1, "+column+" = $2 WHERE id = $3 AND status = 'PENDING'",
		string(status), at, o.ID)
	if err != nil {
		return storeErr("update order status", err)
	}
	if tag.RowsAffected() != 1 {
		return core.Errorf(core.KindInvalidState, "order %d is no longer PENDING", o.ID)
	}

	ts := at
	o.Status = status
	if status == core.OrderStatusConfirmed {
		o.ConfirmedAt = &ts
	} else {
		o.CancelledAt = &ts
	}
	return nil
}

func (r *orderRepo) ListFiltered(ctx context.Context, f core.OrderFilter) ([]core.OrderSummary, error) {
	return r.list(ctx, "", nil, f)
}

func (r *orderRepo) ListByPharmacy(ctx context.Context, pharmacyID int64, f core.OrderFilter) ([]core.OrderSummary, error) {
	return r.list(ctx, "JOIN branches b ON b.id = o.branch_id", []any{pharmacyID}, f)
}

// list builds the filtered listing. When join is set, args[0] is the
// pharmacy id matched against b.pharmacy_id.
func (r *orderRepo) list(ctx context.Context, join string, args []any, f core.OrderFilter) ([]core.OrderSummary, error) {
	query := "SELECT " + orderColumns + `,
		(SELECT COUNT(*) FROM order_items oi WHERE oi.order_id = o.id) AS items_count
		FROM orders o ` + join + " WHERE 1=1"
	if join != "" {
		query += " AND b.pharmacy_id = $1"
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		query += fmt.Sprintf(" AND o.status = $%d", len(args))
	}
	if f.BranchID != nil {
		args = append(args, *f.BranchID)
		query += fmt.Sprintf(" AND o.branch_id = $%d", len(args))
	}
	if f.UserID != nil {
		args = append(args, *f.UserID)
		query += fmt.Sprintf(" AND o.user_id = $%d", len(args))
	}
	args = append(args, f.Skip, f.Limit)
	query += fmt.Sprintf(" ORDER BY o.created_at DESC, o.id DESC OFFSET $%d LIMIT $%d", len(args)-1, len(args))

	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list orders", err)
	}
	defer rows.Close()

	out := []core.OrderSummary{}
	for rows.Next() {
		var s core.OrderSummary
		var status string
		if err := rows.Scan(
			&s.ID, &s.OrderNumber, &s.Barcode, &s.BranchID, &s.UserID, &status,
			&s.TotalAmount, &s.CreatedAt, &s.ConfirmedAt, &s.CancelledAt, &s.ItemsCount,
		); err != nil {
			return nil, storeErr("scan order summary", err)
		}
		s.Status = core.OrderStatus(status)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate orders", err)
	}
	return out, nil
}

func (r *orderRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1 OR barcode = $1)", code,
	).Scan(&exists)
	if err != nil {
		return false, storeErr("check order code", err)
	}
	return exists, nil
}

func scanOrder(row pgx.Row) (*core.Order, error) {
	var o core.Order
	var status string
	if err := row.Scan(
		&o.ID, &o.OrderNumber, &o.Barcode, &o.BranchID, &o.UserID, &status,
		&o.TotalAmount, &o.CreatedAt, &o.ConfirmedAt, &o.CancelledAt,
	); err != nil {
		return nil, err
	}
	o.Status = core.OrderStatus(status)
	return &o, nil
}
