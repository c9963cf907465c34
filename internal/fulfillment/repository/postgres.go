package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/database/postgres"
	"github.com/jmoiron/sqlx"
)

const outcomeKey = "order_fulfillments_pkey"

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) Create(ctx context.Context, o *model.FulfillmentOutcome) error {
	_, err := r.DB.NamedExecContext(ctx, `
        INSERT INTO order_fulfillments (order_id, status, pick_list_id, lines, dispatched_at, updated_at, version)
        VALUES (:order_id, :status, :pick_list_id, :lines, :dispatched_at, :updated_at, :version)`, o)
	if postgres.IsUniqueViolation(err, outcomeKey) {
		return fmt.Errorf("%w: order %s", model.ErrAlreadyDispatched, o.OrderID)
	}
	return err
}

func (r *PGRepository) FindByOrderID(ctx context.Context, orderID string) (*model.FulfillmentOutcome, error) {
	var o model.FulfillmentOutcome
	err := r.DB.GetContext(ctx, &o, `SELECT * FROM order_fulfillments WHERE order_id = $1`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: fulfillment for order %s", model.ErrNotFound, orderID)
		}
		return nil, err
	}
	return &o, nil
}

func (r *PGRepository) Update(ctx context.Context, o *model.FulfillmentOutcome) error {
	res, err := r.DB.NamedExecContext(ctx, `
        UPDATE order_fulfillments
        SET status = :status, pick_list_id = :pick_list_id, lines = :lines, updated_at = :updated_at,
            version = version + 1
        WHERE order_id = :order_id AND version = :version`, o)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.FindByOrderID(ctx, o.OrderID); err != nil {
			return err
		}
		return fmt.Errorf("%w: fulfillment for order %s changed", model.ErrInvalidTransition, o.OrderID)
	}
	o.Version++
	return nil
}

func (r *PGRepository) Delete(ctx context.Context, orderID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM order_fulfillments WHERE order_id = $1`, orderID)
	return err
}
