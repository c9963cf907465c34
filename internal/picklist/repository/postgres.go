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

const orderConstraint = "pick_lists_order_active_key"

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) Create(ctx context.Context, list *model.PickList) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
        INSERT INTO pick_lists (
            id, order_id, picker_id, status, started_at, completed_at, priority, created_at, updated_at
        )
        VALUES (
            :id, :order_id, :picker_id, :status, :started_at, :completed_at, :priority, :created_at, :updated_at
        )`, list)
	if err != nil {
		if postgres.IsUniqueViolation(err, orderConstraint) {
			return fmt.Errorf("%w: pick list for order %s", model.ErrAlreadyDispatched, list.OrderID)
		}
		return fmt.Errorf("failed to insert pick list: %w", err)
	}

	if len(list.Items) > 0 {
		_, err = tx.NamedExecContext(ctx, `
            INSERT INTO pick_list_items (
                id, pick_list_id, order_item_id, product_id, lot_id, location_id, location_code,
                quantity, picked_quantity, status, sequence, notes, created_at, updated_at
            )
            VALUES (
                :id, :pick_list_id, :order_item_id, :product_id, :lot_id, :location_id, :location_code,
                :quantity, :picked_quantity, :status, :sequence, :notes, :created_at, :updated_at
            )`, list.Items)
		if err != nil {
			return fmt.Errorf("failed to insert pick list items: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.PickList, error) {
	var list model.PickList
	if err := r.DB.GetContext(ctx, &list, `SELECT * FROM pick_lists WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: pick list %s", model.ErrNotFound, id)
		}
		return nil, err
	}
	return &list, nil
}

func (r *PGRepository) FindByOrderID(ctx context.Context, orderID string) (*model.PickList, error) {
	var list model.PickList
	err := r.DB.GetContext(ctx, &list, `
        SELECT * FROM pick_lists
        WHERE order_id = $1
        ORDER BY status = 'cancelled', created_at DESC
        LIMIT 1`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: pick list for order %s", model.ErrNotFound, orderID)
		}
		return nil, err
	}
	return &list, nil
}

func (r *PGRepository) UpdateList(ctx context.Context, list *model.PickList, from model.PickListStatus) error {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE pick_lists
        SET picker_id = $3, status = $4, started_at = $5, completed_at = $6, updated_at = $7
        WHERE id = $1 AND status = $2`,
		list.ID, from, list.PickerID, list.Status, list.StartedAt, list.CompletedAt, list.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: pick list %s is missing or no longer %s", model.ErrInvalidTransition, list.ID, from)
	}
	return nil
}

func (r *PGRepository) FindItemByID(ctx context.Context, id string) (*model.PickListItem, error) {
	var item model.PickListItem
	if err := r.DB.GetContext(ctx, &item, `SELECT * FROM pick_list_items WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: pick list item %s", model.ErrNotFound, id)
		}
		return nil, err
	}
	return &item, nil
}

func (r *PGRepository) ListItems(ctx context.Context, pickListID string) ([]model.PickListItem, error) {
	items := []model.PickListItem{}
	err := r.DB.SelectContext(ctx, &items, `
        SELECT * FROM pick_list_items
        WHERE pick_list_id = $1
        ORDER BY sequence ASC NULLS LAST, created_at, id`, pickListID)
	return items, err
}

func (r *PGRepository) UpdateSequences(ctx context.Context, items []model.PickListItem) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range items {
		_, err := tx.ExecContext(ctx,
			`UPDATE pick_list_items SET sequence = $2, updated_at = $3 WHERE id = $1`,
			items[i].ID, items[i].Sequence, items[i].UpdatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PGRepository) ResolveItem(ctx context.Context, item *model.PickListItem) error {
	res, err := r.DB.NamedExecContext(ctx, `
        UPDATE pick_list_items
        SET picked_quantity = :picked_quantity, status = :status, notes = :notes, updated_at = :updated_at
        WHERE id = :id AND status = 'pending'`, item)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: pick list item %s is no longer pending", model.ErrInvalidTransition, item.ID)
	}
	return nil
}
