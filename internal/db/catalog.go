package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pharmacy-retail/internal/core"
)

// catalogRepo reads catalog tables owned by the catalog service.
type catalogRepo struct {
	tx pgx.Tx
}

func (c *catalogRepo) GetBranch(ctx context.Context, id int64) (*core.Branch, error) {
	var b core.Branch
	err := c.tx.QueryRow(ctx,
		"SELECT id, pharmacy_id, name FROM branches WHERE id = $1", id,
	).Scan(&b.ID, &b.PharmacyID, &b.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFound("branch", id)
	}
	if err != nil {
		return nil, storeErr("get branch", err)
	}
	return &b, nil
}

func (c *catalogRepo) GetDrug(ctx context.Context, id int64) (*core.Drug, error) {
	var d core.Drug
	err := c.tx.QueryRow(ctx,
		"SELECT id, name, price, is_active FROM drugs WHERE id = $1", id,
	).Scan(&d.ID, &d.Name, &d.Price, &d.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFound("drug", id)
	}
	if err != nil {
		return nil, storeErr("get drug", err)
	}
	return &d, nil
}

func (c *catalogRepo) GetVariant(ctx context.Context, id int64) (*core.Variant, error) {
	var v core.Variant
	err := c.tx.QueryRow(ctx,
		"SELECT id, drug_id, name, sku, price, is_active FROM drug_variants WHERE id = $1", id,
	).Scan(&v.ID, &v.DrugID, &v.Name, &v.SKU, &v.Price, &v.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFound("drug variant", id)
	}
	if err != nil {
		return nil, storeErr("get drug variant", err)
	}
	return &v, nil
}
