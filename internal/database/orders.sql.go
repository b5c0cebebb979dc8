package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, branch_id, order_number, customer_name, customer_phone, customer_email,
    total_amount, status, payment_method, delivery_method, delivery_address, notes, device_id,
    created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.BranchID,
		&i.OrderNumber,
		&i.CustomerName,
		&i.CustomerPhone,
		&i.CustomerEmail,
		&i.TotalAmount,
		&i.Status,
		&i.PaymentMethod,
		&i.DeliveryMethod,
		&i.DeliveryAddress,
		&i.Notes,
		&i.DeviceID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const lockOrderNumbers = `-- name: LockOrderNumbers :exec
SELECT pg_advisory_xact_lock($1)`

// LockOrderNumbers takes a transaction-scoped advisory lock. Released on commit or rollback.
func (q *Queries) LockOrderNumbers(ctx context.Context, key int64) error {
	_, err := q.db.Exec(ctx, lockOrderNumbers, key)
	return err
}

// Order numbers are fixed width, so text ordering is numeric ordering.
const getLastOrderNumber = `-- name: GetLastOrderNumber :one
SELECT order_number FROM orders
ORDER BY order_number DESC
LIMIT 1`

func (q *Queries) GetLastOrderNumber(ctx context.Context) (string, error) {
	row := q.db.QueryRow(ctx, getLastOrderNumber)
	var orderNumber string
	err := row.Scan(&orderNumber)
	return orderNumber, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
    branch_id, order_number, customer_name, customer_phone, customer_email, total_amount,
    status, payment_method, delivery_method, delivery_address, notes, device_id
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	BranchID        uuid.UUID      `json:"branch_id"`
	OrderNumber     string         `json:"order_number"`
	CustomerName    pgtype.Text    `json:"customer_name"`
	CustomerPhone   pgtype.Text    `json:"customer_phone"`
	CustomerEmail   pgtype.Text    `json:"customer_email"`
	TotalAmount     pgtype.Numeric `json:"total_amount"`
	Status          string         `json:"status"`
	PaymentMethod   pgtype.Text    `json:"payment_method"`
	DeliveryMethod  pgtype.Text    `json:"delivery_method"`
	DeliveryAddress pgtype.Text    `json:"delivery_address"`
	Notes           pgtype.Text    `json:"notes"`
	DeviceID        pgtype.Text    `json:"device_id"`
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.BranchID,
		arg.OrderNumber,
		arg.CustomerName,
		arg.CustomerPhone,
		arg.CustomerEmail,
		arg.TotalAmount,
		arg.Status,
		arg.PaymentMethod,
		arg.DeliveryMethod,
		arg.DeliveryAddress,
		arg.Notes,
		arg.DeviceID,
	)
	return scanOrder(row)
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (order_id, menu_item_id, quantity, price, note)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, menu_item_id, quantity, price, note`

type CreateOrderItemParams struct {
	OrderID    uuid.UUID      `json:"order_id"`
	MenuItemID uuid.UUID      `json:"menu_item_id"`
	Quantity   int32          `json:"quantity"`
	Price      pgtype.Numeric `json:"price"`
	Note       pgtype.Text    `json:"note"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.MenuItemID,
		arg.Quantity,
		arg.Price,
		arg.Note,
	)
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.MenuItemID,
		&i.Quantity,
		&i.Price,
		&i.Note,
	)
	return i, err
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, getOrder, id)
	return scanOrder(row)
}

const getOrderByNumber = `-- name: GetOrderByNumber :one
SELECT ` + orderColumns + ` FROM orders
WHERE order_number = $1`

func (q *Queries) GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error) {
	row := q.db.QueryRow(ctx, getOrderByNumber, orderNumber)
	return scanOrder(row)
}

const listOrderItemsByOrder = `-- name: ListOrderItemsByOrder :many
SELECT oi.id, oi.order_id, oi.menu_item_id, oi.quantity, oi.price, oi.note, m.name AS menu_item_name
FROM order_items oi
JOIN menu_items m ON m.id = oi.menu_item_id
WHERE oi.order_id = $1
ORDER BY m.name ASC, oi.id ASC`

type ListOrderItemsByOrderRow struct {
	ID           uuid.UUID      `json:"id"`
	OrderID      uuid.UUID      `json:"order_id"`
	MenuItemID   uuid.UUID      `json:"menu_item_id"`
	Quantity     int32          `json:"quantity"`
	Price        pgtype.Numeric `json:"price"`
	Note         pgtype.Text    `json:"note"`
	MenuItemName string         `json:"menu_item_name"`
}

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]ListOrderItemsByOrderRow, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListOrderItemsByOrderRow{}
	for rows.Next() {
		var i ListOrderItemsByOrderRow
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.MenuItemID,
			&i.Quantity,
			&i.Price,
			&i.Note,
			&i.MenuItemName,
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

const listOrdersByBranch = `-- name: ListOrdersByBranch :many
SELECT ` + orderColumns + ` FROM orders
WHERE branch_id = $1
  AND ($2::text IS NULL OR status = $2::text)
  AND ($3::timestamptz IS NULL OR created_at >= $3::timestamptz)
  AND ($4::timestamptz IS NULL OR created_at <= $4::timestamptz)
ORDER BY created_at DESC, order_number DESC
LIMIT $5 OFFSET $6`

type ListOrdersByBranchParams struct {
	BranchID uuid.UUID          `json:"branch_id"`
	Status   pgtype.Text        `json:"status"`
	From     pgtype.Timestamptz `json:"from"`
	To       pgtype.Timestamptz `json:"to"`
	Limit    int32              `json:"limit"`
	Offset   int32              `json:"offset"`
}

func (q *Queries) ListOrdersByBranch(ctx context.Context, arg ListOrdersByBranchParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByBranch,
		arg.BranchID,
		arg.Status,
		arg.From,
		arg.To,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		i, err := scanOrder(rows)
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

const getOrderStatsByBranch = `-- name: GetOrderStatsByBranch :many
SELECT status, count(*) AS order_count, COALESCE(sum(total_amount), 0)::numeric AS total_amount
FROM orders
WHERE branch_id = $1
  AND ($2::text IS NULL OR status = $2::text)
  AND ($3::timestamptz IS NULL OR created_at >= $3::timestamptz)
  AND ($4::timestamptz IS NULL OR created_at <= $4::timestamptz)
GROUP BY status`

type GetOrderStatsByBranchParams struct {
	BranchID uuid.UUID          `json:"branch_id"`
	Status   pgtype.Text        `json:"status"`
	From     pgtype.Timestamptz `json:"from"`
	To       pgtype.Timestamptz `json:"to"`
}

type GetOrderStatsByBranchRow struct {
	Status      string         `json:"status"`
	OrderCount  int64          `json:"order_count"`
	TotalAmount pgtype.Numeric `json:"total_amount"`
}

func (q *Queries) GetOrderStatsByBranch(ctx context.Context, arg GetOrderStatsByBranchParams) ([]GetOrderStatsByBranchRow, error) {
	rows, err := q.db.Query(ctx, getOrderStatsByBranch,
		arg.BranchID,
		arg.Status,
		arg.From,
		arg.To,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetOrderStatsByBranchRow{}
	for rows.Next() {
		var i GetOrderStatsByBranchRow
		if err := rows.Scan(&i.Status, &i.OrderCount, &i.TotalAmount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + orderColumns

// UpdateOrderStatusParams moves an order to Status only if it is still in Status_2.
type UpdateOrderStatusParams struct {
	ID       uuid.UUID `json:"id"`
	Status   string    `json:"status"`
	Status_2 string    `json:"status_2"`
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.Status_2)
	return scanOrder(row)
}

const patchOrder = `-- name: PatchOrder :one
UPDATE orders
SET notes            = COALESCE($2, notes),
    payment_method   = COALESCE($3, payment_method),
    delivery_method  = COALESCE($4, delivery_method),
    delivery_address = COALESCE($5, delivery_address),
    updated_at       = now()
WHERE id = $1
RETURNING ` + orderColumns

type PatchOrderParams struct {
	ID              uuid.UUID   `json:"id"`
	Notes           pgtype.Text `json:"notes"`
	PaymentMethod   pgtype.Text `json:"payment_method"`
	DeliveryMethod  pgtype.Text `json:"delivery_method"`
	DeliveryAddress pgtype.Text `json:"delivery_address"`
}

func (q *Queries) PatchOrder(ctx context.Context, arg PatchOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, patchOrder,
		arg.ID,
		arg.Notes,
		arg.PaymentMethod,
		arg.DeliveryMethod,
		arg.DeliveryAddress,
	)
	return scanOrder(row)
}

const getDailySales = `-- name: GetDailySales :many
SELECT (created_at AT TIME ZONE 'UTC')::date AS sale_date,
       count(*) AS order_count,
       COALESCE(sum(total_amount), 0)::numeric AS total_revenue
FROM orders
WHERE branch_id = $1
  AND status <> 'CANCELLED'
  AND created_at >= $2 AND created_at < $3
GROUP BY sale_date
ORDER BY sale_date ASC`

type GetDailySalesParams struct {
	BranchID    uuid.UUID `json:"branch_id"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedAt_2 time.Time `json:"created_at_2"`
}

type GetDailySalesRow struct {
	SaleDate     pgtype.Date    `json:"sale_date"`
	OrderCount   int64          `json:"order_count"`
	TotalRevenue pgtype.Numeric `json:"total_revenue"`
}

func (q *Queries) GetDailySales(ctx context.Context, arg GetDailySalesParams) ([]GetDailySalesRow, error) {
	rows, err := q.db.Query(ctx, getDailySales, arg.BranchID, arg.CreatedAt, arg.CreatedAt_2)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []GetDailySalesRow{}
	for rows.Next() {
		var i GetDailySalesRow
		if err := rows.Scan(&i.SaleDate, &i.OrderCount, &i.TotalRevenue); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
