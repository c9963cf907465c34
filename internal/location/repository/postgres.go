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

const slotCodeConstraint = "locations_slot_code_key"

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

const insertLocation = `
    INSERT INTO locations (
        id, name, type, zone_code, aisle_number, bay_number, shelf_number, slot_number,
        location_code, parent_id, materialized_path, created_at, updated_at
    )
    VALUES (
        :id, :name, :type, :zone_code, :aisle_number, :bay_number, :shelf_number, :slot_number,
        :location_code, :parent_id, :materialized_path, :created_at, :updated_at
    )
`

func (r *PGRepository) Create(ctx context.Context, node *model.LocationNode) error {
	_, err := r.DB.NamedExecContext(ctx, insertLocation, node)
	return mapWriteError(err)
}

func (r *PGRepository) BulkCreate(ctx context.Context, nodes []model.LocationNode, batchSize int) error {
	if len(nodes) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for start := 0; start < len(nodes); start += batchSize {
		end := start + batchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		if _, err := tx.NamedExecContext(ctx, insertLocation, nodes[start:end]); err != nil {
			return fmt.Errorf("insert locations batch %d-%d: %w", start, end, mapWriteError(err))
		}
	}

	return tx.Commit()
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.LocationNode, error) {
	var node model.LocationNode
	err := r.DB.GetContext(ctx, &node, `SELECT * FROM locations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: location %s", model.ErrNotFound, id)
		}
		return nil, err
	}
	return &node, nil
}

func (r *PGRepository) FindByIDs(ctx context.Context, ids []string) ([]model.LocationNode, error) {
	if len(ids) == 0 {
		return []model.LocationNode{}, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM locations WHERE id IN (?) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	query = r.DB.Rebind(query)

	var nodes []model.LocationNode
	err = r.DB.SelectContext(ctx, &nodes, query, args...)
	return nodes, err
}

func (r *PGRepository) FindRootByName(ctx context.Context, name string) (*model.LocationNode, error) {
	var node model.LocationNode
	query := `SELECT * FROM locations WHERE parent_id IS NULL AND name = $1 AND deleted_at IS NULL LIMIT 1`
	err := r.DB.GetContext(ctx, &node, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: zone %s", model.ErrNotFound, name)
		}
		return nil, err
	}
	return &node, nil
}

func (r *PGRepository) ListByPathPrefix(ctx context.Context, prefix string) ([]model.LocationNode, error) {
	// Path segments are uuids and dots, so the prefix never contains LIKE wildcards.
	query := `
        SELECT * FROM locations
        WHERE materialized_path LIKE $1 || '%' AND deleted_at IS NULL
        ORDER BY materialized_path
    `
	var nodes []model.LocationNode
	err := r.DB.SelectContext(ctx, &nodes, query, prefix)
	return nodes, err
}

func (r *PGRepository) ListByType(ctx context.Context, t model.LocationType) ([]model.LocationNode, error) {
	query := `SELECT * FROM locations WHERE type = $1 AND deleted_at IS NULL ORDER BY materialized_path`
	var nodes []model.LocationNode
	err := r.DB.SelectContext(ctx, &nodes, query, t)
	return nodes, err
}

func (r *PGRepository) CountByType(ctx context.Context, t model.LocationType) (int, error) {
	var count int
	err := r.DB.GetContext(ctx, &count, `SELECT count(*) FROM locations WHERE type = $1 AND deleted_at IS NULL`, t)
	return count, err
}

func (r *PGRepository) UpdateSubtree(ctx context.Context, nodes []model.LocationNode) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        UPDATE locations
        SET parent_id = :parent_id,
            materialized_path = :materialized_path,
            zone_code = :zone_code,
            location_code = :location_code,
            updated_at = :updated_at
        WHERE id = :id
    `
	for i := range nodes {
		if _, err := tx.NamedExecContext(ctx, query, &nodes[i]); err != nil {
			return fmt.Errorf("update location %s: %w", nodes[i].ID, mapWriteError(err))
		}
	}

	return tx.Commit()
}

func (r *PGRepository) SoftDelete(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE locations SET deleted_at = ?, updated_at = ? WHERE id IN (?) AND deleted_at IS NULL`, at, at, ids)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, r.DB.Rebind(query), args...)
	return err
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if postgres.IsUniqueViolation(err, slotCodeConstraint) {
		return fmt.Errorf("%w: %v", model.ErrDuplicateLocationCode, err)
	}
	return err
}
