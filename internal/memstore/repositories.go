package memstore

import (
	"context"
	"sort"
	"time"

	"pharmacy-retail/internal/core"
)

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) Orders() core.OrderRepository    { return orders{t} }
func (t *tx) Inventory() core.InventoryLedger { return ledger{t} }
func (t *tx) Catalog() core.Catalog           { return catalog{t} }

// ── Orders ──────────────────────────────────────────────────────────────────

type orders struct{ *tx }

func (r orders) CreateOrder(_ context.Context, o *core.Order) error {
	if _, taken := r.st.codes[o.OrderNumber]; taken {
		return core.Errorf(core.KindConflict, "order code %s already exists", o.OrderNumber)
	}
	if _, taken := r.st.codes[o.Barcode]; taken {
		return core.Errorf(core.KindConflict, "barcode %s already exists", o.Barcode)
	}
	o.ID = r.st.id()
	o.CreatedAt = r.now()
	stored := *o
	stored.Items = nil
	r.st.orders[o.ID] = stored
	r.st.codes[o.OrderNumber] = o.ID
	r.st.codes[o.Barcode] = o.ID
	return nil
}

func (r orders) CreateItems(_ context.Context, orderID int64, items []core.OrderItem) error {
	o, ok := r.st.orders[orderID]
	if !ok {
		return core.NotFound("order", orderID)
	}
	stored := make([]core.OrderItem, len(items))
	for i := range items {
		items[i].ID = r.st.id()
		items[i].OrderID = orderID
		stored[i] = items[i]
	}
	o.Items = stored
	r.st.orders[orderID] = o
	return nil
}

func (r orders) GetByID(_ context.Context, id int64, _ bool) (*core.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return nil, core.NotFound("order", id)
	}
	return copyOrder(o), nil
}

func (r orders) GetByCode(_ context.Context, code string, _ bool) (*core.Order, error) {
	id, ok := r.st.codes[code]
	if !ok {
		return nil, core.NotFound("order", code)
	}
	return copyOrder(r.st.orders[id]), nil
}

func (r orders) UpdateStatus(_ context.Context, o *core.Order, status core.OrderStatus, at time.Time) error {
	stored, ok := r.st.orders[o.ID]
	if !ok {
		return core.NotFound("order", o.ID)
	}
	ts := at
	stored.Status = status
	switch status {
	case core.OrderStatusConfirmed:
		stored.ConfirmedAt = &ts
	case core.OrderStatusCancelled:
		stored.CancelledAt = &ts
	}
	r.st.orders[o.ID] = stored
	o.Status = stored.Status
	o.ConfirmedAt = stored.ConfirmedAt
	o.CancelledAt = stored.CancelledAt
	return nil
}

func (r orders) ListFiltered(_ context.Context, f core.OrderFilter) ([]core.OrderSummary, error) {
	return r.list(f, func(core.Order) bool { return true }), nil
}

func (r orders) ListByPharmacy(_ context.Context, pharmacyID int64, f core.OrderFilter) ([]core.OrderSummary, error) {
	return r.list(f, func(o core.Order) bool {
		b, ok := r.st.branches[o.BranchID]
		return ok && b.PharmacyID == pharmacyID
	}), nil
}

func (r orders) list(f core.OrderFilter, keep func(core.Order) bool) []core.OrderSummary {
	matched := make([]core.Order, 0, len(r.st.orders))
	for _, o := range r.st.orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.BranchID != nil && o.BranchID != *f.BranchID {
			continue
		}
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if keep(o) {
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if f.Skip >= len(matched) {
		return []core.OrderSummary{}
	}
	matched = matched[f.Skip:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]core.OrderSummary, 0, len(matched))
	for _, o := range matched {
		out = append(out, core.OrderSummary{
			ID:          o.ID,
			OrderNumber: o.OrderNumber,
			Barcode:     o.Barcode,
			BranchID:    o.BranchID,
			UserID:      o.UserID,
			Status:      o.Status,
			TotalAmount: o.TotalAmount,
			ItemsCount:  len(o.Items),
			CreatedAt:   o.CreatedAt,
			ConfirmedAt: o.ConfirmedAt,
			CancelledAt: o.CancelledAt,
		})
	}
	return out
}

func (r orders) CodeExists(_ context.Context, code string) (bool, error) {
	_, ok := r.st.codes[code]
	return ok, nil
}

func copyOrder(o core.Order) *core.Order {
	o.Items = append([]core.OrderItem(nil), o.Items...)
	return &o
}

// ── Inventory ───────────────────────────────────────────────────────────────

type ledger struct{ *tx }

func (l ledger) CheckAvailable(_ context.Context, key core.StockKey, required int) (bool, int, error) {
	row, ok := l.st.inventory[keyOf(key)]
	if !ok {
		return false, 0, nil
	}
	return row.quantity >= required, row.quantity, nil
}

func (l ledger) ReserveAndDecrement(_ context.Context, key core.StockKey, required int, orderID int64) (bool, int, error) {
	k := keyOf(key)
	row, ok := l.st.inventory[k]
	if !ok {
		return false, 0, core.NotFound("inventory", key)
	}
	if row.quantity < required {
		return false, row.quantity, nil
	}
	now := l.now()
	row.quantity -= required
	row.updatedAt = now
	l.st.inventory[k] = row

	oid := orderID
	l.st.movements = append(l.st.movements, core.InventoryMovement{
		ID:            l.st.id(),
		InventoryID:   row.id,
		OrderID:       &oid,
		MovementType:  core.MovementOrderConfirmed,
		Quantity:      -required,
		QuantityAfter: row.quantity,
		CreatedAt:     now,
	})
	return true, row.quantity, nil
}

func (l ledger) ListByBranch(_ context.Context, branchID int64) ([]core.StockLevel, error) {
	var out []core.StockLevel
	for _, row := range l.st.inventory {
		if row.key.BranchID != branchID {
			continue
		}
		lvl := core.StockLevel{
			InventoryID:  row.id,
			BranchID:     row.key.BranchID,
			DrugID:       row.key.DrugID,
			VariantID:    row.key.VariantID,
			DrugName:     l.st.drugs[row.key.DrugID].Name,
			Quantity:     row.quantity,
			ReorderLevel: row.reorderLevel,
			LowStock:     row.quantity <= row.reorderLevel,
			UpdatedAt:    row.updatedAt,
		}
		if row.key.VariantID != nil {
			lvl.VariantName = l.st.variants[*row.key.VariantID].Name
		}
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		ki := core.StockKey{DrugID: out[i].DrugID, VariantID: out[i].VariantID}
		kj := core.StockKey{DrugID: out[j].DrugID, VariantID: out[j].VariantID}
		return ki.Less(kj)
	})
	return out, nil
}

// ── Catalog ─────────────────────────────────────────────────────────────────

type catalog struct{ *tx }

func (c catalog) GetBranch(_ context.Context, id int64) (*core.Branch, error) {
	b, ok := c.st.branches[id]
	if !ok {
		return nil, core.NotFound("branch", id)
	}
	return &b, nil
}

func (c catalog) GetDrug(_ context.Context, id int64) (*core.Drug, error) {
	d, ok := c.st.drugs[id]
	if !ok {
		return nil, core.NotFound("drug", id)
	}
	return &d, nil
}

func (c catalog) GetVariant(_ context.Context, id int64) (*core.Variant, error) {
	v, ok := c.st.variants[id]
	if !ok {
		return nil, core.NotFound("drug variant", id)
	}
	return &v, nil
}
