package repository

import (
	"context"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetSourcing(ctx context.Context, productIDs []string) ([]model.ProductSourcing, error) {
	if len(productIDs) == 0 {
		return []model.ProductSourcing{}, nil
	}

	query, args, err := sqlx.In(`
        SELECT id, inventory_type, preferred_retailer_id
        FROM products
        WHERE id IN (?) AND deleted_at IS NULL
    `, productIDs)
	if err != nil {
		return nil, err
	}

	items := []model.ProductSourcing{}
	err = r.DB.SelectContext(ctx, &items, r.DB.Rebind(query), args...)
	return items, err
}
