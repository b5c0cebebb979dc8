package enum

// ── Order status (CHECK constrained in DB) ──

// OrderStatus is the closed set of states an order moves through.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderStatuses lists every status in workflow order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// ParseOrderStatus returns the status for s and false when s is not part of the enumeration.
// Matching is exact; "ready" is not READY.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusReady,
		OrderStatusCompleted, OrderStatusCancelled:
		return OrderStatus(s), true
	}
	return "", false
}

// IsTerminal reports whether no further transitions are allowed out of s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

func (s OrderStatus) String() string { return string(s) }

// ── Roles (CHECK constrained in DB) ──

const (
	UserRoleAdmin      = "ADMIN"
	UserRoleStaff      = "STAFF"
	UserRoleStorefront = "STOREFRONT"
)

// ── Configurable labels (no DB constraint) ──

// CategoryUncategorized is the bucket for menu items saved without a category.
const CategoryUncategorized = "Uncategorized"

// MaxCategoryLength bounds the free-text category, counted in runes.
const MaxCategoryLength = 100

const (
	PaymentMethodCash   = "CASH"
	PaymentMethodCard   = "CARD"
	PaymentMethodOnline = "ONLINE"
)

const (
	DeliveryMethodPickup   = "PICKUP"
	DeliveryMethodDelivery = "DELIVERY"
	DeliveryMethodDineIn   = "DINE_IN"
)
