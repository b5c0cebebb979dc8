package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type AppSetting struct {
	ID                 int16          `json:"id"`
	DefaultBranchID    pgtype.UUID    `json:"default_branch_id"`
	NotificationEmail  pgtype.Text    `json:"notification_email"`
	EnableOrderSound   bool           `json:"enable_order_sound"`
	MinimumOrderAmount pgtype.Numeric `json:"minimum_order_amount"`
	Currency           string         `json:"currency"`
	CompanyName        pgtype.Text    `json:"company_name"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

type Branch struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Description pgtype.Text   `json:"description"`
	Address     pgtype.Text   `json:"address"`
	Latitude    pgtype.Float8 `json:"latitude"`
	Longitude   pgtype.Float8 `json:"longitude"`
	DeviceID    string        `json:"device_id"`
	IsActive    bool          `json:"is_active"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type MenuItem struct {
	ID          uuid.UUID      `json:"id"`
	BranchID    uuid.UUID      `json:"branch_id"`
	Name        string         `json:"name"`
	Description pgtype.Text    `json:"description"`
	Price       pgtype.Numeric `json:"price"`
	Category    string         `json:"category"`
	ImageUrl    pgtype.Text    `json:"image_url"`
	IsAvailable bool           `json:"is_available"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type Order struct {
	ID              uuid.UUID      `json:"id"`
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
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type OrderItem struct {
	ID         uuid.UUID      `json:"id"`
	OrderID    uuid.UUID      `json:"order_id"`
	MenuItemID uuid.UUID      `json:"menu_item_id"`
	Quantity   int32          `json:"quantity"`
	Price      pgtype.Numeric `json:"price"`
	Note       pgtype.Text    `json:"note"`
}

type User struct {
	ID             uuid.UUID   `json:"id"`
	BranchID       pgtype.UUID `json:"branch_id"`
	Email          string      `json:"email"`
	HashedPassword string      `json:"hashed_password"`
	FullName       string      `json:"full_name"`
	Role           string      `json:"role"`
	IsActive       bool        `json:"is_active"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}
