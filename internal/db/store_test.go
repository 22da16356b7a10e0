package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-retail/internal/core"
)

func TestStoreErr_Classification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      core.Kind
		retryable bool
	}{
		{"deadlock", &pgconn.PgError{Code: "40P01"}, core.KindConflict, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, core.KindConflict, true},
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, core.KindConflict, true},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "orders_barcode_key"}, core.KindConflict, true},
		{"wrapped deadlock", fmt.Errorf("update inventory: %w", &pgconn.PgError{Code: "40P01"}), core.KindConflict, true},
		{"numeric overflow", &pgconn.PgError{Code: "22003"}, core.KindInternal, false},
		{"check violation", &pgconn.PgError{Code: "23514"}, core.KindInternal, false},
		{"driver error", errors.New("conn closed"), core.KindInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storeErr("orders.create", tt.err)
			require.Error(t, err)

			var ce *core.Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.kind, ce.Kind)
			assert.Equal(t, "orders.create", ce.Op)
			assert.Equal(t, tt.retryable, core.IsRetryable(err))
			assert.ErrorIs(t, err, tt.err, "the driver error stays in the chain")
		})
	}
}

func TestStoreErr_UniqueViolationNamesConstraint(t *testing.T) {
	err := storeErr("orders.create", &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"})
	assert.ErrorIs(t, err, core.ErrConflict)
	assert.Contains(t, err.Error(), "orders_order_number_key")
}
