package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const branchColumns = `id, name, description, address, latitude, longitude, device_id, is_active, created_at, updated_at`

func scanBranch(row interface{ Scan(...interface{}) error }) (Branch, error) {
	var i Branch
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.Address,
		&i.Latitude,
		&i.Longitude,
		&i.DeviceID,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createBranch = `-- name: CreateBranch :one
INSERT INTO branches (name, description, address, latitude, longitude, device_id, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + branchColumns

type CreateBranchParams struct {
	Name        string        `json:"name"`
	Description pgtype.Text   `json:"description"`
	Address     pgtype.Text   `json:"address"`
	Latitude    pgtype.Float8 `json:"latitude"`
	Longitude   pgtype.Float8 `json:"longitude"`
	DeviceID    string        `json:"device_id"`
	IsActive    bool          `json:"is_active"`
}

func (q *Queries) CreateBranch(ctx context.Context, arg CreateBranchParams) (Branch, error) {
	row := q.db.QueryRow(ctx, createBranch,
		arg.Name,
		arg.Description,
		arg.Address,
		arg.Latitude,
		arg.Longitude,
		arg.DeviceID,
		arg.IsActive,
	)
	return scanBranch(row)
}

const getBranch = `-- name: GetBranch :one
SELECT ` + branchColumns + ` FROM branches
WHERE id = $1`

func (q *Queries) GetBranch(ctx context.Context, id uuid.UUID) (Branch, error) {
	row := q.db.QueryRow(ctx, getBranch, id)
	return scanBranch(row)
}

const getBranchByDeviceID = `-- name: GetBranchByDeviceID :one
SELECT ` + branchColumns + ` FROM branches
WHERE device_id = $1`

func (q *Queries) GetBranchByDeviceID(ctx context.Context, deviceID string) (Branch, error) {
	row := q.db.QueryRow(ctx, getBranchByDeviceID, deviceID)
	return scanBranch(row)
}

const updateBranch = `-- name: UpdateBranch :one
UPDATE branches
SET name = $2, description = $3, address = $4, latitude = $5, longitude = $6,
    device_id = $7, is_active = $8, updated_at = now()
WHERE id = $1
RETURNING ` + branchColumns

type UpdateBranchParams struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Description pgtype.Text   `json:"description"`
	Address     pgtype.Text   `json:"address"`
	Latitude    pgtype.Float8 `json:"latitude"`
	Longitude   pgtype.Float8 `json:"longitude"`
	DeviceID    string        `json:"device_id"`
	IsActive    bool          `json:"is_active"`
}

func (q *Queries) UpdateBranch(ctx context.Context, arg UpdateBranchParams) (Branch, error) {
	row := q.db.QueryRow(ctx, updateBranch,
		arg.ID,
		arg.Name,
		arg.Description,
		arg.Address,
		arg.Latitude,
		arg.Longitude,
		arg.DeviceID,
		arg.IsActive,
	)
	return scanBranch(row)
}

const setBranchActive = `-- name: SetBranchActive :one
UPDATE branches
SET is_active = $2, updated_at = now()
WHERE id = $1
RETURNING ` + branchColumns

type SetBranchActiveParams struct {
	ID       uuid.UUID `json:"id"`
	IsActive bool      `json:"is_active"`
}

func (q *Queries) SetBranchActive(ctx context.Context, arg SetBranchActiveParams) (Branch, error) {
	row := q.db.QueryRow(ctx, setBranchActive, arg.ID, arg.IsActive)
	return scanBranch(row)
}

const listActiveBranches = `-- name: ListActiveBranches :many
SELECT ` + branchColumns + ` FROM branches
WHERE is_active = true
  AND ($1::text IS NULL
       OR strpos(lower(name), lower($1::text)) > 0
       OR strpos(lower(description), lower($1::text)) > 0
       OR strpos(lower(address), lower($1::text)) > 0)
ORDER BY name ASC, id ASC`

func (q *Queries) ListActiveBranches(ctx context.Context, search pgtype.Text) ([]Branch, error) {
	rows, err := q.db.Query(ctx, listActiveBranches, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Branch{}
	for rows.Next() {
		i, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listBranchesWithCounts = `-- name: ListBranchesWithCounts :many
SELECT b.id, b.name, b.description, b.address, b.latitude, b.longitude, b.device_id,
       b.is_active, b.created_at, b.updated_at,
       (SELECT count(*) FROM orders o WHERE o.branch_id = b.id)     AS order_count,
       (SELECT count(*) FROM menu_items m WHERE m.branch_id = b.id) AS menu_item_count
FROM branches b
WHERE ($1::bool = false OR b.is_active = true)
  AND ($2::text IS NULL
       OR strpos(lower(b.name), lower($2::text)) > 0
       OR strpos(lower(b.description), lower($2::text)) > 0
       OR strpos(lower(b.address), lower($2::text)) > 0)
ORDER BY b.name ASC, b.id ASC`

type ListBranchesWithCountsParams struct {
	ActiveOnly bool        `json:"active_only"`
	Search     pgtype.Text `json:"search"`
}

type ListBranchesWithCountsRow struct {
	Branch        Branch `json:"branch"`
	OrderCount    int64  `json:"order_count"`
	MenuItemCount int64  `json:"menu_item_count"`
}

func (q *Queries) ListBranchesWithCounts(ctx context.Context, arg ListBranchesWithCountsParams) ([]ListBranchesWithCountsRow, error) {
	rows, err := q.db.Query(ctx, listBranchesWithCounts, arg.ActiveOnly, arg.Search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListBranchesWithCountsRow{}
	for rows.Next() {
		var i ListBranchesWithCountsRow
		if err := rows.Scan(
			&i.Branch.ID,
			&i.Branch.Name,
			&i.Branch.Description,
			&i.Branch.Address,
			&i.Branch.Latitude,
			&i.Branch.Longitude,
			&i.Branch.DeviceID,
			&i.Branch.IsActive,
			&i.Branch.CreatedAt,
			&i.Branch.UpdatedAt,
			&i.OrderCount,
			&i.MenuItemCount,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
