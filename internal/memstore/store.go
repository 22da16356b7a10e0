// Package memstore is an in-memory core.Store. A transaction holds a
// store-wide lock and works on a private copy of the data that replaces the
// shared copy only on commit, so a failed transaction leaves no trace.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pharmacy-retail/internal/core"
)

type invKey struct {
	branch, drug, variant int64 // variant 0 means no variant
}

func keyOf(k core.StockKey) invKey {
	v := int64(0)
	if k.VariantID != nil {
		v = *k.VariantID
	}
	return invKey{branch: k.BranchID, drug: k.DrugID, variant: v}
}

type inventoryRow struct {
	id           int64
	key          core.StockKey
	quantity     int
	reorderLevel int
	updatedAt    time.Time
}

type state struct {
	nextID    int64
	branches  map[int64]core.Branch
	drugs     map[int64]core.Drug
	variants  map[int64]core.Variant
	inventory map[invKey]inventoryRow
	orders    map[int64]core.Order
	codes     map[string]int64
	movements []core.InventoryMovement
}

func newState() *state {
	return &state{
		branches:  make(map[int64]core.Branch),
		drugs:     make(map[int64]core.Drug),
		variants:  make(map[int64]core.Variant),
		inventory: make(map[invKey]inventoryRow),
		orders:    make(map[int64]core.Order),
		codes:     make(map[string]int64),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *state) clone() *state {
	c := &state{
		nextID:    s.nextID,
		branches:  make(map[int64]core.Branch, len(s.branches)),
		drugs:     make(map[int64]core.Drug, len(s.drugs)),
		variants:  make(map[int64]core.Variant, len(s.variants)),
		inventory: make(map[invKey]inventoryRow, len(s.inventory)),
		orders:    make(map[int64]core.Order, len(s.orders)),
		codes:     make(map[string]int64, len(s.codes)),
		movements: append([]core.InventoryMovement(nil), s.movements...),
	}
	for k, v := range s.branches {
		c.branches[k] = v
	}
	for k, v := range s.drugs {
		c.drugs[k] = v
	}
	for k, v := range s.variants {
		c.variants[k] = v
	}
	for k, v := range s.inventory {
		c.inventory[k] = v
	}
	// Items are never mutated after insert, sharing the slices is safe.
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.codes {
		c.codes[k] = v
	}
	return c
}

// Store implements core.Store in memory.
type Store struct {
	mu    sync.Mutex
	data  *state
	clock func() time.Time
}

var _ core.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{data: newState(), clock: func() time.Time { return time.Now().UTC() }}
}

// WithinTx runs fn with exclusive access to a copy of the data.
// fn must not call WithinTx on the same store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, &tx{st: work, now: s.clock}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = work
	return nil
}

// ── Seeding ─────────────────────────────────────────────────────────────────
// Catalog and stock are owned by other services; these helpers stand in for
// them in tests and local runs.

// AddBranch registers a branch of pharmacyID.
func (s *Store) AddBranch(pharmacyID int64, name string) core.Branch {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := core.Branch{ID: s.data.id(), PharmacyID: pharmacyID, Name: name}
	s.data.branches[b.ID] = b
	return b
}

// AddDrug registers an active drug.
func (s *Store) AddDrug(name string, price decimal.Decimal) core.Drug {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := core.Drug{ID: s.data.id(), Name: name, Price: price, IsActive: true}
	s.data.drugs[d.ID] = d
	return d
}

// AddVariant registers an active variant of drugID.
func (s *Store) AddVariant(drugID int64, name, sku string, price decimal.Decimal) core.Variant {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := core.Variant{ID: s.data.id(), DrugID: drugID, Name: name, SKU: sku, Price: price, IsActive: true}
	s.data.variants[v.ID] = v
	return v
}

// SetDrugPrice changes a drug's catalog price.
func (s *Store) SetDrugPrice(drugID int64, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.data.drugs[drugID]; ok {
		d.Price = price
		s.data.drugs[drugID] = d
	}
}

// SetDrugActive toggles whether a drug can be ordered.
func (s *Store) SetDrugActive(drugID int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.data.drugs[drugID]; ok {
		d.IsActive = active
		s.data.drugs[drugID] = d
	}
}

// SetStock creates or overwrites the inventory row for key.
func (s *Store) SetStock(key core.StockKey, quantity, reorderLevel int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyOf(key)
	row, ok := s.data.inventory[k]
	if !ok {
		row = inventoryRow{id: s.data.id(), key: key}
	}
	row.quantity = quantity
	row.reorderLevel = reorderLevel
	row.updatedAt = s.clock()
	s.data.inventory[k] = row
}

// DeleteStock removes the inventory row for key.
func (s *Store) DeleteStock(key core.StockKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.inventory, keyOf(key))
}

// Stock returns the committed quantity for key.
func (s *Store) Stock(key core.StockKey) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.data.inventory[keyOf(key)]
	return row.quantity, ok
}

// Movements returns every committed inventory movement, oldest first.
func (s *Store) Movements() []core.InventoryMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.InventoryMovement(nil), s.data.movements...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
