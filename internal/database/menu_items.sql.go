package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const menuItemColumns = `id, branch_id, name, description, price, category, image_url, is_available, created_at, updated_at`

func scanMenuItem(row interface{ Scan(...interface{}) error }) (MenuItem, error) {
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.BranchID,
		&i.Name,
		&i.Description,
		&i.Price,
		&i.Category,
		&i.ImageUrl,
		&i.IsAvailable,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createMenuItem = `-- name: CreateMenuItem :one
INSERT INTO menu_items (branch_id, name, description, price, category, image_url, is_available)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + menuItemColumns

type CreateMenuItemParams struct {
	BranchID    uuid.UUID      `json:"branch_id"`
	Name        string         `json:"name"`
	Description pgtype.Text    `json:"description"`
	Price       pgtype.Numeric `json:"price"`
	Category    string         `json:"category"`
	ImageUrl    pgtype.Text    `json:"image_url"`
	IsAvailable bool           `json:"is_available"`
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, createMenuItem,
		arg.BranchID,
		arg.Name,
		arg.Description,
		arg.Price,
		arg.Category,
		arg.ImageUrl,
		arg.IsAvailable,
	)
	return scanMenuItem(row)
}

const getMenuItem = `-- name: GetMenuItem :one
SELECT ` + menuItemColumns + ` FROM menu_items
WHERE id = $1 AND branch_id = $2`

type GetMenuItemParams struct {
	ID       uuid.UUID `json:"id"`
	BranchID uuid.UUID `json:"branch_id"`
}

func (q *Queries) GetMenuItem(ctx context.Context, arg GetMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, getMenuItem, arg.ID, arg.BranchID)
	return scanMenuItem(row)
}

const updateMenuItem = `-- name: UpdateMenuItem :one
UPDATE menu_items
SET name = $3, description = $4, price = $5, category = $6, image_url = $7,
    is_available = $8, updated_at = now()
WHERE id = $1 AND branch_id = $2
RETURNING ` + menuItemColumns

type UpdateMenuItemParams struct {
	ID          uuid.UUID      `json:"id"`
	BranchID    uuid.UUID      `json:"branch_id"`
	Name        string         `json:"name"`
	Description pgtype.Text    `json:"description"`
	Price       pgtype.Numeric `json:"price"`
	Category    string         `json:"category"`
	ImageUrl    pgtype.Text    `json:"image_url"`
	IsAvailable bool           `json:"is_available"`
}

func (q *Queries) UpdateMenuItem(ctx context.Context, arg UpdateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, updateMenuItem,
		arg.ID,
		arg.BranchID,
		arg.Name,
		arg.Description,
		arg.Price,
		arg.Category,
		arg.ImageUrl,
		arg.IsAvailable,
	)
	return scanMenuItem(row)
}

const setMenuItemAvailability = `-- name: SetMenuItemAvailability :one
UPDATE menu_items
SET is_available = $3, updated_at = now()
WHERE id = $1 AND branch_id = $2
RETURNING ` + menuItemColumns

type SetMenuItemAvailabilityParams struct {
	ID          uuid.UUID `json:"id"`
	BranchID    uuid.UUID `json:"branch_id"`
	IsAvailable bool      `json:"is_available"`
}

func (q *Queries) SetMenuItemAvailability(ctx context.Context, arg SetMenuItemAvailabilityParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, setMenuItemAvailability, arg.ID, arg.BranchID, arg.IsAvailable)
	return scanMenuItem(row)
}

const deleteMenuItem = `-- name: DeleteMenuItem :one
DELETE FROM menu_items
WHERE id = $1 AND branch_id = $2
RETURNING id`

type DeleteMenuItemParams struct {
	ID       uuid.UUID `json:"id"`
	BranchID uuid.UUID `json:"branch_id"`
}

func (q *Queries) DeleteMenuItem(ctx context.Context, arg DeleteMenuItemParams) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, deleteMenuItem, arg.ID, arg.BranchID)
	var id uuid.UUID
	err := row.Scan(&id)
	return id, err
}

const listMenuItemsByBranch = `-- name: ListMenuItemsByBranch :many
SELECT ` + menuItemColumns + ` FROM menu_items
WHERE branch_id = $1
  AND ($2::bool = false OR is_available = true)
ORDER BY category ASC, name ASC, id ASC`

type ListMenuItemsByBranchParams struct {
	BranchID      uuid.UUID `json:"branch_id"`
	AvailableOnly bool      `json:"available_only"`
}

func (q *Queries) ListMenuItemsByBranch(ctx context.Context, arg ListMenuItemsByBranchParams) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listMenuItemsByBranch, arg.BranchID, arg.AvailableOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []MenuItem{}
	for rows.Next() {
		i, err := scanMenuItem(rows)
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

const listMenuCategories = `-- name: ListMenuCategories :many
SELECT category,
       COUNT(*)::bigint AS item_count,
       COUNT(*) FILTER (WHERE is_available)::bigint AS available_count
FROM menu_items
WHERE branch_id = $1
GROUP BY category
ORDER BY category ASC`

type ListMenuCategoriesRow struct {
	Category       string `json:"category"`
	ItemCount      int64  `json:"item_count"`
	AvailableCount int64  `json:"available_count"`
}

func (q *Queries) ListMenuCategories(ctx context.Context, branchID uuid.UUID) ([]ListMenuCategoriesRow, error) {
	rows, err := q.db.Query(ctx, listMenuCategories, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListMenuCategoriesRow{}
	for rows.Next() {
		var i ListMenuCategoriesRow
		if err := rows.Scan(&i.Category, &i.ItemCount, &i.AvailableCount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const renameMenuCategory = `-- name: RenameMenuCategory :execrows
UPDATE menu_items
SET category = $3, updated_at = now()
WHERE branch_id = $1 AND category = $2`

type RenameMenuCategoryParams struct {
	BranchID    uuid.UUID `json:"branch_id"`
	Category    string    `json:"category"`
	NewCategory string    `json:"new_category"`
}

func (q *Queries) RenameMenuCategory(ctx context.Context, arg RenameMenuCategoryParams) (int64, error) {
	tag, err := q.db.Exec(ctx, renameMenuCategory, arg.BranchID, arg.Category, arg.NewCategory)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
