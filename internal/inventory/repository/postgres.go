package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-fulfillment-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-fulfillment-service/internal/model"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/database/postgres"
	"github.com/jmoiron/sqlx"
)

const receiptConstraint = "inventory_lots_receipt_key"

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

const insertMovement = `
    INSERT INTO lot_movements (
        id, lot_id, product_id, movement_type, quantity_change, reserved_change,
        quantity_after, reserved_after, reference_type, reference_id, notes, created_at
    )
    VALUES (
        :id, :lot_id, :product_id, :movement_type, :quantity_change, :reserved_change,
        :quantity_after, :reserved_after, :reference_type, :reference_id, :notes, :created_at
    )
`

// logMovement completes m from the before/after rows and inserts it.
func logMovement(ctx context.Context, tx *sqlx.Tx, m *model.LotMovement, before, after *model.InventoryLot) error {
	m.LotID = after.ID
	m.ProductID = after.ProductID
	m.QuantityChange = after.Quantity - before.Quantity
	m.ReservedChange = after.ReservedQuantity - before.ReservedQuantity
	m.QuantityAfter = after.Quantity
	m.ReservedAfter = after.ReservedQuantity

	if _, err := tx.NamedExecContext(ctx, insertMovement, m); err != nil {
		return fmt.Errorf("failed to log movement: %w", err)
	}
	return nil
}

func (r *PGRepository) Create(ctx context.Context, lot *model.InventoryLot, movement *model.LotMovement) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO inventory_lots (
            id, product_id, location_id, quantity, reserved_quantity, received_at,
            expiration_date, lot_number, source_sweep_id, receipt_key, unit_cost,
            is_available, created_at, updated_at
        )
        VALUES (
            :id, :product_id, :location_id, :quantity, :reserved_quantity, :received_at,
            :expiration_date, :lot_number, :source_sweep_id, :receipt_key, :unit_cost,
            :is_available, :created_at, :updated_at
        )
    `
	if _, err := tx.NamedExecContext(ctx, query, lot); err != nil {
		if postgres.IsUniqueViolation(err, receiptConstraint) {
			return fmt.Errorf("%w: receipt %s", model.ErrDuplicateReceipt, *lot.ReceiptKey)
		}
		return fmt.Errorf("failed to insert lot: %w", err)
	}

	empty := model.InventoryLot{}
	if err := logMovement(ctx, tx, movement, &empty, lot); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.InventoryLot, error) {
	var lot model.InventoryLot
	err := r.DB.GetContext(ctx, &lot, `SELECT * FROM inventory_lots WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: lot %s", model.ErrNotFound, id)
		}
		return nil, err
	}
	return &lot, nil
}

func (r *PGRepository) ListAllocatable(ctx context.Context, productID string, locationID *string) ([]model.InventoryLot, error) {
	query := `
        SELECT * FROM inventory_lots
        WHERE product_id = $1 AND is_available AND quantity - reserved_quantity > 0`
	args := []interface{}{productID}

	if locationID != nil && *locationID != "" {
		query += ` AND location_id = $2`
		args = append(args, *locationID)
	}
	query += ` ORDER BY expiration_date ASC NULLS LAST, received_at ASC, id ASC`

	lots := []model.InventoryLot{}
	err := r.DB.SelectContext(ctx, &lots, query, args...)
	return lots, err
}

func (r *PGRepository) Reserve(ctx context.Context, lotID string, qty int, movement *model.LotMovement) (*model.InventoryLot, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var after model.InventoryLot
	err = tx.GetContext(ctx, &after, `
        UPDATE inventory_lots
        SET reserved_quantity = reserved_quantity + $2, updated_at = $3
        WHERE id = $1 AND is_available AND quantity - reserved_quantity >= $2
        RETURNING *`, lotID, qty, movement.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: lot %s cannot take %d more units", model.ErrReservationConflict, lotID, qty)
		}
		return nil, err
	}

	before := after
	before.ReservedQuantity -= qty
	if err := logMovement(ctx, tx, movement, &before, &after); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &after, nil
}

// mutate locks the lot row, lets apply validate and compute the new values,
// writes them and records the movement.
func (r *PGRepository) mutate(ctx context.Context, lotID string, movement *model.LotMovement, apply func(lot *model.InventoryLot) error) (*model.InventoryLot, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var before model.InventoryLot
	if err := tx.GetContext(ctx, &before, `SELECT * FROM inventory_lots WHERE id = $1 FOR UPDATE`, lotID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: lot %s", model.ErrNotFound, lotID)
		}
		return nil, err
	}

	after := before
	if err := apply(&after); err != nil {
		return nil, err
	}
	if after.Quantity == before.Quantity &&
		after.ReservedQuantity == before.ReservedQuantity &&
		after.IsAvailable == before.IsAvailable {
		return &before, nil
	}
	after.UpdatedAt = movement.CreatedAt

	_, err = tx.NamedExecContext(ctx, `
        UPDATE inventory_lots
        SET quantity = :quantity, reserved_quantity = :reserved_quantity,
            is_available = :is_available, updated_at = :updated_at
        WHERE id = :id`, &after)
	if err != nil {
		return nil, fmt.Errorf("failed to update lot: %w", err)
	}

	if err := logMovement(ctx, tx, movement, &before, &after); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &after, nil
}

func (r *PGRepository) Release(ctx context.Context, lotID string, qty int, movement *model.LotMovement) (*model.InventoryLot, error) {
	return r.mutate(ctx, lotID, movement, func(lot *model.InventoryLot) error {
		ReleaseUnits(lot, qty)
		return nil
	})
}

func (r *PGRepository) Commit(ctx context.Context, lotID string, qty int, movement *model.LotMovement) (*model.InventoryLot, error) {
	return r.mutate(ctx, lotID, movement, func(lot *model.InventoryLot) error {
		return CommitUnits(lot, qty)
	})
}

func (r *PGRepository) Settle(ctx context.Context, lotID string, commitQty, releaseQty int, commit, release *model.LotMovement) (*model.InventoryLot, bool, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var before model.InventoryLot
	if err := tx.GetContext(ctx, &before, `SELECT * FROM inventory_lots WHERE id = $1 FOR UPDATE`, lotID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("%w: lot %s", model.ErrNotFound, lotID)
		}
		return nil, false, err
	}

	var settled bool
	err = tx.GetContext(ctx, &settled, `
        SELECT EXISTS (
            SELECT 1 FROM lot_movements
            WHERE lot_id = $1 AND reference_type = $2 AND reference_id = $3
              AND movement_type IN ('commit', 'release')
        )`, lotID, commit.ReferenceType, commit.ReferenceID)
	if err != nil {
		return nil, false, err
	}
	if settled {
		return &before, false, nil
	}

	steps := []struct {
		qty      int
		movement *model.LotMovement
		apply    func(lot *model.InventoryLot, qty int) error
	}{
		{commitQty, commit, CommitUnits},
		{releaseQty, release, func(lot *model.InventoryLot, qty int) error {
			ReleaseUnits(lot, qty)
			return nil
		}},
	}

	cur := before
	for _, st := range steps {
		if st.qty <= 0 {
			continue
		}
		next := cur
		if err := st.apply(&next, st.qty); err != nil {
			return nil, false, err
		}
		next.UpdatedAt = st.movement.CreatedAt
		if err := logMovement(ctx, tx, st.movement, &cur, &next); err != nil {
			return nil, false, err
		}
		cur = next
	}

	_, err = tx.NamedExecContext(ctx, `
        UPDATE inventory_lots
        SET quantity = :quantity, reserved_quantity = :reserved_quantity, updated_at = :updated_at
        WHERE id = :id`, &cur)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update lot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &cur, true, nil
}

func (r *PGRepository) Adjust(ctx context.Context, lotID string, newQuantity int, movement *model.LotMovement) (*model.InventoryLot, error) {
	return r.mutate(ctx, lotID, movement, func(lot *model.InventoryLot) error {
		return AdjustUnits(lot, newQuantity)
	})
}

func (r *PGRepository) SetAvailability(ctx context.Context, lotID string, available bool, movement *model.LotMovement) (*model.InventoryLot, error) {
	return r.mutate(ctx, lotID, movement, func(lot *model.InventoryLot) error {
		lot.IsAvailable = available
		return nil
	})
}

func (r *PGRepository) CountLotsAtLocations(ctx context.Context, locationIDs []string) (int, error) {
	if len(locationIDs) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`
        SELECT count(*) FROM inventory_lots
        WHERE location_id IN (?) AND quantity > 0
    `, locationIDs)
	if err != nil {
		return 0, err
	}

	var count int
	err = r.DB.GetContext(ctx, &count, r.DB.Rebind(query), args...)
	return count, err
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.LotMovement, int, error) {
	items := []model.LotMovement{}
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.LotID != "" {
		conditions = append(conditions, "lot_id = :lot_id")
		args["lot_id"] = f.LotID
	}
	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.MovementType != "" {
		conditions = append(conditions, "movement_type = :movement_type")
		args["movement_type"] = f.MovementType
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= :start_date")
		args["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at < :end_date")
		args["end_date"] = *f.EndDate
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countStmt, err := r.DB.PrepareNamedContext(ctx, "SELECT count(*) FROM lot_movements"+whereClause)
	if err != nil {
		return nil, 0, err
	}
	defer countStmt.Close()
	if err := countStmt.GetContext(ctx, &count, args); err != nil {
		return nil, 0, err
	}

	query := "SELECT * FROM lot_movements" + whereClause + " ORDER BY created_at DESC, id"
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &items, args)
	return items, count, err
}
