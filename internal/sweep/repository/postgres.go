package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/database/postgres"
	"github.com/jmoiron/sqlx"
)

const activeSweepConstraint = "sweeps_store_date_active_key"

// DateLayout is how sweep dates are bound to the DATE column.
const DateLayout = "2006-01-02"

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) CreateSweep(ctx context.Context, s *model.Sweep) error {
	_, err := r.DB.ExecContext(ctx, `
        INSERT INTO sweeps (
            id, store_id, sweep_date, scheduled_start_time, driver_id, status,
            total_items, total_load, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.StoreID, s.SweepDate.Format(DateLayout), s.ScheduledStartTime, s.DriverID, s.Status,
		s.TotalItems, s.TotalLoad, s.CreatedAt, s.UpdatedAt,
	)
	if postgres.IsUniqueViolation(err, activeSweepConstraint) {
		return fmt.Errorf("%w: store %s on %s", model.ErrDuplicateSweep, s.StoreID, s.SweepDate.Format(DateLayout))
	}
	return err
}

func (r *PGRepository) FindSweepByID(ctx context.Context, id string) (*model.Sweep, error) {
	var s model.Sweep
	if err := r.DB.GetContext(ctx, &s, `SELECT * FROM sweeps WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: sweep %s", model.ErrNotFound, id)
		}
		return nil, err
	}
	return &s, nil
}

func (r *PGRepository) FindActiveSweep(ctx context.Context, storeID string, date time.Time) (*model.Sweep, error) {
	var s model.Sweep
	err := r.DB.GetContext(ctx, &s, `
        SELECT * FROM sweeps
        WHERE store_id = $1 AND sweep_date = $2 AND status <> 'cancelled'`,
		storeID, date.Format(DateLayout))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no sweep for store %s on %s", model.ErrNotFound, storeID, date.Format(DateLayout))
		}
		return nil, err
	}
	return &s, nil
}

func (r *PGRepository) ListActiveSweeps(ctx context.Context, storeID string, from, to time.Time) ([]model.Sweep, error) {
	sweeps := []model.Sweep{}
	err := r.DB.SelectContext(ctx, &sweeps, `
        SELECT * FROM sweeps
        WHERE store_id = $1 AND sweep_date >= $2 AND sweep_date < $3 AND status <> 'cancelled'
        ORDER BY sweep_date`,
		storeID, from.Format(DateLayout), to.Format(DateLayout))
	return sweeps, err
}

func (r *PGRepository) UpdateSweep(ctx context.Context, s *model.Sweep) error {
	res, err := r.DB.NamedExecContext(ctx, `
        UPDATE sweeps
        SET driver_id = :driver_id, status = :status,
            actual_start_time = :actual_start_time, actual_end_time = :actual_end_time,
            updated_at = :updated_at
        WHERE id = :id`, s)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: sweep %s", model.ErrNotFound, s.ID)
	}
	return nil
}

// lockScheduled takes the sweep row lock, which orders demand changes against
// status transitions on the same sweep.
func lockScheduled(ctx context.Context, tx *sqlx.Tx, sweepID string, at time.Time) error {
	var status model.SweepStatus
	err := tx.GetContext(ctx, &status, `SELECT status FROM sweeps WHERE id = $1 FOR UPDATE`, sweepID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: sweep %s", model.ErrNotFound, sweepID)
		}
		return err
	}
	if status != model.SweepScheduled {
		return fmt.Errorf("%w: sweep %s is %s, demand can only change while scheduled",
			model.ErrInvalidTransition, sweepID, status)
	}
	_, err = tx.ExecContext(ctx, `UPDATE sweeps SET updated_at = $2 WHERE id = $1`, sweepID, at)
	return err
}

func refreshTotals(ctx context.Context, tx *sqlx.Tx, sweepID string) error {
	_, err := tx.ExecContext(ctx, `
        UPDATE sweeps SET
            total_items = (SELECT count(*) FROM sweep_items WHERE sweep_id = $1 AND quantity > 0),
            total_load  = (SELECT COALESCE(sum(quantity), 0) FROM sweep_items WHERE sweep_id = $1)
        WHERE id = $1`, sweepID)
	return err
}

func (r *PGRepository) AddItemQuantity(ctx context.Context, item *model.SweepItem, demandKey string) (*model.SweepItem, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := lockScheduled(ctx, tx, item.SweepID, item.UpdatedAt); err != nil {
		return nil, err
	}

	if demandKey != "" {
		var d model.SweepDemand
		err := tx.GetContext(ctx, &d, `SELECT * FROM sweep_demands WHERE demand_key = $1 FOR UPDATE`, demandKey)
		switch {
		case err == nil && d.RemovedAt == nil:
			var counted model.SweepItem
			if err := tx.GetContext(ctx, &counted, `SELECT * FROM sweep_items WHERE id = $1`, d.SweepItemID); err != nil {
				return nil, err
			}
			return &counted, tx.Commit()
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return nil, err
		}
	}

	stmt, err := tx.PrepareNamedContext(ctx, `
        INSERT INTO sweep_items (
            id, sweep_id, product_id, store_item_id, quantity, picked_quantity,
            status, substitute_product_id, notes, created_at, updated_at
        )
        VALUES (
            :id, :sweep_id, :product_id, :store_item_id, :quantity, :picked_quantity,
            :status, :substitute_product_id, :notes, :created_at, :updated_at
        )
        ON CONFLICT (sweep_id, product_id) DO UPDATE SET
            quantity = sweep_items.quantity + EXCLUDED.quantity,
            store_item_id = COALESCE(sweep_items.store_item_id, EXCLUDED.store_item_id),
            updated_at = EXCLUDED.updated_at
        RETURNING *`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var saved model.SweepItem
	if err := stmt.GetContext(ctx, &saved, item); err != nil {
		return nil, fmt.Errorf("failed to upsert sweep item: %w", err)
	}

	if demandKey != "" {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO sweep_demands (demand_key, sweep_item_id, quantity, created_at)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (demand_key) DO UPDATE SET
                sweep_item_id = EXCLUDED.sweep_item_id,
                quantity = EXCLUDED.quantity,
                removed_at = NULL`,
			demandKey, saved.ID, item.Quantity, item.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to record sweep demand: %w", err)
		}
	}

	if err := refreshTotals(ctx, tx, item.SweepID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *PGRepository) RemoveItemQuantity(ctx context.Context, itemID string, qty int) (*model.SweepItem, error) {
	item, err := r.FindItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	if err := lockScheduled(ctx, tx, item.SweepID, now); err != nil {
		return nil, err
	}

	var saved model.SweepItem
	err = tx.GetContext(ctx, &saved, `
        UPDATE sweep_items
        SET quantity = GREATEST(quantity - $2, 0), updated_at = $3
        WHERE id = $1
        RETURNING *`, itemID, qty, now)
	if err != nil {
		return nil, err
	}

	if err := refreshTotals(ctx, tx, item.SweepID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *PGRepository) ReleaseDemand(ctx context.Context, demandKey string, at time.Time) (*model.SweepItem, error) {
	var d model.SweepDemand
	if err := r.DB.GetContext(ctx, &d, `SELECT * FROM sweep_demands WHERE demand_key = $1`, demandKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: sweep demand %s", model.ErrNotFound, demandKey)
		}
		return nil, err
	}
	item, err := r.FindItemByID(ctx, d.SweepItemID)
	if err != nil {
		return nil, err
	}
	if d.RemovedAt != nil {
		return item, nil
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := lockScheduled(ctx, tx, item.SweepID, at); err != nil {
		return nil, err
	}
	if err := tx.GetContext(ctx, &d, `SELECT * FROM sweep_demands WHERE demand_key = $1 FOR UPDATE`, demandKey); err != nil {
		return nil, err
	}
	if d.RemovedAt != nil || d.SweepItemID != item.ID {
		// released or moved while we waited for the lock
		return r.FindItemByID(ctx, d.SweepItemID)
	}

	var saved model.SweepItem
	err = tx.GetContext(ctx, &saved, `
        UPDATE sweep_items
        SET quantity = GREATEST(quantity - $2, 0), updated_at = $3
        WHERE id = $1
        RETURNING *`, item.ID, d.Quantity, at)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sweep_demands SET removed_at = $2 WHERE demand_key = $1`, demandKey, at); err != nil {
		return nil, err
	}

	if err := refreshTotals(ctx, tx, item.SweepID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &saved, nil
}

func (r *PGRepository) FindItemByID(ctx context.Context, id string) (*model.SweepItem, error) {
	var item model.SweepItem
	if err := r.DB.GetContext(ctx, &item, `SELECT * FROM sweep_items WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: sweep item %s", model.ErrNotFound, id)
		}
		return nil, err
	}
	return &item, nil
}

func (r *PGRepository) ListItems(ctx context.Context, sweepID string) ([]model.SweepItem, error) {
	items := []model.SweepItem{}
	err := r.DB.SelectContext(ctx, &items, `
        SELECT * FROM sweep_items WHERE sweep_id = $1 ORDER BY created_at, id`, sweepID)
	return items, err
}

func (r *PGRepository) UpdateItem(ctx context.Context, item *model.SweepItem, from model.SweepItemStatus) error {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE sweep_items
        SET picked_quantity = $3, status = $4, substitute_product_id = $5, notes = $6, updated_at = $7
        WHERE id = $1 AND status = $2 AND picked_quantity <= $3`,
		item.ID, from, item.PickedQuantity, item.Status, item.SubstituteProductID, item.Notes, item.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: sweep item %s is missing or no longer %s", model.ErrInvalidTransition, item.ID, from)
	}
	return nil
}
