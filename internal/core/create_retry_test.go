package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-retail/internal/core"
)

// collidingStore fails the first fails order inserts with kind, the way a
// unique-constraint or deadlock error surfaces from Postgres.
type collidingStore struct {
	core.Store
	kind    core.Kind
	fails   int
	inserts int
}

func (s *collidingStore) WithinTx(ctx context.Context, fn func(context.Context, core.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx core.Tx) error {
		return fn(ctx, collidingTx{Tx: tx, store: s})
	})
}

type collidingTx struct {
	core.Tx
	store *collidingStore
}

func (tx collidingTx) Orders() core.OrderRepository {
	return collidingOrders{OrderRepository: tx.Tx.Orders(), store: tx.store}
}

type collidingOrders struct {
	core.OrderRepository
	store *collidingStore
}

func (o collidingOrders) CreateOrder(ctx context.Context, order *core.Order) error {
	o.store.inserts++
	if o.store.inserts <= o.store.fails {
		return core.Errorf(o.store.kind, "duplicate key value violates unique constraint")
	}
	return o.OrderRepository.CreateOrder(ctx, order)
}

func TestCreateOrder_RetriesConflicts(t *testing.T) {
	tests := []struct {
		name        string
		kind        core.Kind
		fails       int
		wantInserts int
		wantErr     error
	}{
		{name: "first insert succeeds", kind: core.KindConflict, fails: 0, wantInserts: 1},
		{name: "two collisions then success", kind: core.KindConflict, fails: 2, wantInserts: 3},
		{name: "three collisions exhaust attempts", kind: core.KindConflict, fails: 3, wantInserts: 3, wantErr: core.ErrConflict},
		{name: "other failures are not retried", kind: core.KindInternal, fails: 1, wantInserts: 1, wantErr: core.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.SetStock(f.key(f.central, f.paracetamol, nil), 10, 0)
			store := &collidingStore{Store: f.store, kind: tt.kind, fails: tt.fails}
			svc := core.NewOrderService(store, core.NewCodeGenerator(0, 0), nil)

			o, err := svc.CreateOrder(context.Background(), f.customer, core.CreateOrderRequest{
				BranchID: f.central.ID,
				Items:    []core.OrderItemInput{line(f.paracetamol, 2)},
			})
			assert.Equal(t, tt.wantInserts, store.inserts)

			list, listErr := f.svc.ListOrders(context.Background(), f.operator, core.OrderFilter{})
			require.NoError(t, listErr)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, o)
				assert.Equal(t, tt.kind == core.KindConflict, core.IsRetryable(err))
				assert.Empty(t, list, "failed attempts must leave nothing behind")
				return
			}
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, o.ID, list[0].ID)
			assert.Equal(t, 1, list[0].ItemsCount)
		})
	}
}
