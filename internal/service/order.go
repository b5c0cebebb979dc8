package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/apperr"
	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/enum"
	"github.com/branchline/api/internal/events"
)

const (
	maxOrderNumberRetries = 3
	orderNumberConstraint = "orders_order_number_key"

	DefaultOrderListLimit = 50
	MaxOrderListLimit     = 200

	// MaxItemQuantity caps a single order line.
	MaxItemQuantity = 1000
)

// maxOrderTotal is the largest amount a numeric(10,2) column holds.
var maxOrderTotal = decimal.RequireFromString("99999999.99")

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to create orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	SequenceStore
	GetBranch(ctx context.Context, id uuid.UUID) (database.Branch, error)
	GetMenuItem(ctx context.Context, arg database.GetMenuItemParams) (database.MenuItem, error)
	GetAppSettings(ctx context.Context) (database.AppSetting, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// OrderQueries defines the DB methods used outside the creation transaction.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderQueries interface {
	GetBranch(ctx context.Context, id uuid.UUID) (database.Branch, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.ListOrderItemsByOrderRow, error)
	ListOrdersByBranch(ctx context.Context, arg database.ListOrdersByBranchParams) ([]database.Order, error)
	GetOrderStatsByBranch(ctx context.Context, arg database.GetOrderStatsByBranchParams) ([]database.GetOrderStatsByBranchRow, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	PatchOrder(ctx context.Context, arg database.PatchOrderParams) (database.Order, error)
}

// EventPublisher receives committed order changes. Satisfied by *events.Bus.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event)
}

// CreateOrderRequest is the input for creating an order.
// TotalAmount is the client's total; when set it must match the computed total.
type CreateOrderRequest struct {
	BranchID        uuid.UUID
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	TotalAmount     string
	PaymentMethod   string
	DeliveryMethod  string
	DeliveryAddress string
	Notes           string
	DeviceID        string
	Items           []CreateOrderItemRequest
}

// CreateOrderItemRequest is a single line. Price is what the client displayed;
// the menu price at creation time is what gets stored.
type CreateOrderItemRequest struct {
	MenuItemID string
	Quantity   int32
	Price      string
	Note       string
}

// OrderLine is a stored line item with its menu item name.
type OrderLine struct {
	ID           uuid.UUID
	MenuItemID   uuid.UUID
	MenuItemName string
	Quantity     int32
	Price        decimal.Decimal
	Note         string
}

// OrderDetail is an order with its lines.
type OrderDetail struct {
	Order database.Order
	Items []OrderLine
}

type SetStatusRequest struct {
	OrderID  uuid.UUID
	BranchID uuid.UUID // optional scope; uuid.Nil matches any branch
	Status   string
}

// PatchOrderRequest updates order metadata. nil fields are left alone.
type PatchOrderRequest struct {
	OrderID         uuid.UUID
	BranchID        uuid.UUID // optional scope
	Notes           *string
	PaymentMethod   *string
	DeliveryMethod  *string
	DeliveryAddress *string
}

// ListOrdersFilter selects a branch's orders. From and To are inclusive bounds on created_at.
type ListOrdersFilter struct {
	BranchID uuid.UUID
	Status   string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// OrderStats aggregates every order matching the filter, not just the returned page.
type OrderStats struct {
	Total       int64
	ByStatus    map[enum.OrderStatus]int64
	TotalAmount decimal.Decimal
}

type OrderList struct {
	Orders []database.Order
	Stats  OrderStats
	Limit  int
	Offset int
}

// OrderService handles order business logic.
type OrderService struct {
	pool      TxBeginner
	newStore  NewOrderStore
	queries   OrderQueries
	policy    TransitionPolicy
	sequencer Sequencer
	events    EventPublisher
	log       *zap.Logger
}

// NewOrderService creates a new OrderService. publisher and log may be nil.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, queries OrderQueries, policy TransitionPolicy, publisher EventPublisher, log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{
		pool:      pool,
		newStore:  newStore,
		queries:   queries,
		policy:    policy,
		sequencer: NewSequencer(),
		events:    publisher,
		log:       log,
	}
}

// pricedItem holds a validated line ready for insertion.
type pricedItem struct {
	menuItem database.MenuItem
	quantity int32
	note     string
}

// CreateOrder validates, prices and creates an order with its lines atomically.
// Retries up to maxOrderNumberRetries times on order_number unique constraint
// violations.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderDetail, error) {
	menuIDs, err := validateCreateOrder(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req, menuIDs)
		if err == nil {
			s.log.Info("order created",
				zap.String("order_id", result.Order.ID.String()),
				zap.String("order_number", result.Order.OrderNumber),
				zap.String("branch_id", result.Order.BranchID.String()),
			)
			s.publish(ctx, events.OrderCreated, result, "")
			return result, nil
		}
		if isOrderNumberConflict(err) {
			s.log.Warn("order number collision, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
			lastErr = err
			continue
		}
		return nil, apperr.FromStore(err, "create order", "order not found")
	}
	return nil, apperr.Wrap(apperr.KindConflict, "could not allocate an order number; try again", lastErr)
}

// isOrderNumberConflict checks if the error is a unique constraint violation
// on the order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	return apperr.IsUniqueViolation(err, orderNumberConstraint)
}

// validateCreateOrder checks the request shape before any store access.
func validateCreateOrder(req CreateOrderRequest) ([]uuid.UUID, error) {
	fields := map[string]string{}
	if req.BranchID == uuid.Nil {
		fields["branch_id"] = "branch_id is required"
	}
	if len(req.Items) == 0 {
		fields["items"] = "at least one item is required"
	}
	ids := make([]uuid.UUID, len(req.Items))
	for i, item := range req.Items {
		id, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			fields[fmt.Sprintf("items[%d].menu_item_id", i)] = "invalid menu_item_id"
		}
		ids[i] = id
		if item.Quantity <= 0 {
			fields[fmt.Sprintf("items[%d].quantity", i)] = "quantity must be > 0"
		} else if item.Quantity > MaxItemQuantity {
			fields[fmt.Sprintf("items[%d].quantity", i)] = fmt.Sprintf("quantity must be at most %d", MaxItemQuantity)
		}
	}
	if req.TotalAmount != "" {
		if _, err := decimal.NewFromString(req.TotalAmount); err != nil {
			fields["total_amount"] = "total_amount must be a decimal number"
		}
	}
	if req.PaymentMethod != "" && !isValidPaymentMethod(req.PaymentMethod) {
		fields["payment_method"] = "invalid payment_method"
	}
	if req.DeliveryMethod != "" && !isValidDeliveryMethod(req.DeliveryMethod) {
		fields["delivery_method"] = "invalid delivery_method"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid order", fields)
	}
	return ids, nil
}

// createOrderTx executes the full order creation in a single transaction.
func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest, menuIDs []uuid.UUID) (*OrderDetail, error) {
	// --- Begin transaction ---
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Branch must exist and accept orders ---
	branch, err := store.GetBranch(ctx, req.BranchID)
	if err != nil {
		return nil, apperr.FromStore(err, "get branch", "branch not found")
	}
	if !branch.IsActive {
		return nil, apperr.Field("branch_id", "branch is not accepting orders")
	}

	// --- Price items from the menu ---
	total := decimal.Zero
	items := make([]pricedItem, len(req.Items))
	for i, item := range req.Items {
		menuItem, err := store.GetMenuItem(ctx, database.GetMenuItemParams{
			ID:       menuIDs[i],
			BranchID: branch.ID,
		})
		if err != nil {
			return nil, apperr.FromStore(err, "get menu item",
				fmt.Sprintf("menu item %s not found in branch", menuIDs[i]))
		}
		if !menuItem.IsAvailable {
			return nil, apperr.Field(fmt.Sprintf("items[%d].menu_item_id", i),
				fmt.Sprintf("%s is not available", menuItem.Name))
		}
		price := numericToDecimal(menuItem.Price)
		total = total.Add(price.Mul(decimal.NewFromInt32(item.Quantity)))
		items[i] = pricedItem{menuItem: menuItem, quantity: item.Quantity, note: strings.TrimSpace(item.Note)}
	}
	if total.GreaterThan(maxOrderTotal) {
		return nil, apperr.Field("total_amount",
			fmt.Sprintf("order total %s exceeds the maximum of %s", total.StringFixed(2), maxOrderTotal.StringFixed(2)))
	}

	// --- Client total must agree with the menu ---
	if req.TotalAmount != "" {
		claimed, _ := decimal.NewFromString(req.TotalAmount)
		if !claimed.Equal(total) {
			return nil, apperr.Field("total_amount",
				fmt.Sprintf("total_amount %s does not match the items total %s", claimed.StringFixed(2), total.StringFixed(2)))
		}
	}

	// --- Minimum order amount ---
	minimum, err := minimumOrderAmount(ctx, store)
	if err != nil {
		return nil, err
	}
	if total.LessThan(minimum) {
		return nil, apperr.Field("total_amount",
			fmt.Sprintf("order total %s is below the minimum of %s", total.StringFixed(2), minimum.StringFixed(2)))
	}

	// --- Generate order number ---
	orderNumber, err := s.sequencer.Next(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("next order number: %w", err)
	}

	// --- Insert order ---
	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		BranchID:        branch.ID,
		OrderNumber:     orderNumber,
		CustomerName:    optText(req.CustomerName),
		CustomerPhone:   optText(req.CustomerPhone),
		CustomerEmail:   optText(req.CustomerEmail),
		TotalAmount:     decimalToNumeric(total),
		Status:          string(enum.OrderStatusPending),
		PaymentMethod:   optText(req.PaymentMethod),
		DeliveryMethod:  optText(req.DeliveryMethod),
		DeliveryAddress: optText(req.DeliveryAddress),
		Notes:           optText(req.Notes),
		DeviceID:        optText(req.DeviceID),
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// --- Insert items ---
	lines := make([]OrderLine, 0, len(items))
	for _, pi := range items {
		row, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:    order.ID,
			MenuItemID: pi.menuItem.ID,
			Quantity:   pi.quantity,
			Price:      pi.menuItem.Price,
			Note:       optText(pi.note),
		})
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		lines = append(lines, OrderLine{
			ID:           row.ID,
			MenuItemID:   row.MenuItemID,
			MenuItemName: pi.menuItem.Name,
			Quantity:     row.Quantity,
			Price:        numericToDecimal(row.Price),
			Note:         pi.note,
		})
	}

	// --- Commit ---
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &OrderDetail{Order: order, Items: lines}, nil
}

func minimumOrderAmount(ctx context.Context, store OrderStore) (decimal.Decimal, error) {
	settings, err := store.GetAppSettings(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("get settings: %w", err)
	}
	return numericToDecimal(settings.MinimumOrderAmount), nil
}

// SetStatus moves an order to a new status. The value is checked against the
// enumeration before anything is read, and the write only applies if the order
// is still in the status it was read in.
func (s *OrderService) SetStatus(ctx context.Context, req SetStatusRequest) (*OrderDetail, error) {
	next, ok := enum.ParseOrderStatus(req.Status)
	if !ok {
		return nil, apperr.Field("status", fmt.Sprintf("invalid status %q", req.Status))
	}

	current, err := s.getScoped(ctx, req.BranchID, req.OrderID)
	if err != nil {
		return nil, err
	}
	previous := enum.OrderStatus(current.Status)
	if previous == next {
		return s.withItems(ctx, current)
	}
	if err := s.policy.Check(previous, next); err != nil {
		return nil, err
	}

	updated, err := s.queries.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:       current.ID,
		Status:   string(next),
		Status_2: string(previous),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.Conflict("order status was changed by another request; reload and try again")
		}
		return nil, apperr.FromStore(err, "update order status", "order not found")
	}

	detail, err := s.withItems(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.log.Info("order status changed",
		zap.String("order_id", updated.ID.String()),
		zap.String("from", string(previous)),
		zap.String("to", string(next)),
	)
	s.publish(ctx, events.OrderStatusChanged, detail, string(previous))
	return detail, nil
}

// PatchOrder updates notes and payment/delivery metadata. Closed orders only accept notes.
func (s *OrderService) PatchOrder(ctx context.Context, req PatchOrderRequest) (*OrderDetail, error) {
	if req.Notes == nil && req.PaymentMethod == nil && req.DeliveryMethod == nil && req.DeliveryAddress == nil {
		return nil, apperr.Validation("nothing to update", nil)
	}
	fields := map[string]string{}
	if req.PaymentMethod != nil && !isValidPaymentMethod(*req.PaymentMethod) {
		fields["payment_method"] = "invalid payment_method"
	}
	if req.DeliveryMethod != nil && !isValidDeliveryMethod(*req.DeliveryMethod) {
		fields["delivery_method"] = "invalid delivery_method"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid order patch", fields)
	}

	current, err := s.getScoped(ctx, req.BranchID, req.OrderID)
	if err != nil {
		return nil, err
	}
	if enum.OrderStatus(current.Status).IsTerminal() &&
		(req.PaymentMethod != nil || req.DeliveryMethod != nil || req.DeliveryAddress != nil) {
		return nil, apperr.Validation("order is closed; only notes can be changed", nil)
	}

	params := database.PatchOrderParams{ID: current.ID}
	if req.Notes != nil {
		params.Notes = pgtype.Text{String: strings.TrimSpace(*req.Notes), Valid: true}
	}
	if req.PaymentMethod != nil {
		params.PaymentMethod = pgtype.Text{String: *req.PaymentMethod, Valid: true}
	}
	if req.DeliveryMethod != nil {
		params.DeliveryMethod = pgtype.Text{String: *req.DeliveryMethod, Valid: true}
	}
	if req.DeliveryAddress != nil {
		params.DeliveryAddress = pgtype.Text{String: strings.TrimSpace(*req.DeliveryAddress), Valid: true}
	}

	updated, err := s.queries.PatchOrder(ctx, params)
	if err != nil {
		return nil, apperr.FromStore(err, "patch order", "order not found")
	}
	return s.withItems(ctx, updated)
}

// GetOrder returns an order with its lines. A non-nil branchID scopes the lookup.
func (s *OrderService) GetOrder(ctx context.Context, branchID, id uuid.UUID) (*OrderDetail, error) {
	order, err := s.getScoped(ctx, branchID, id)
	if err != nil {
		return nil, err
	}
	return s.withItems(ctx, order)
}

// GetOrderByNumber looks an order up by its ORD- number.
func (s *OrderService) GetOrderByNumber(ctx context.Context, number string) (*OrderDetail, error) {
	order, err := s.queries.GetOrderByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		return nil, apperr.FromStore(err, "get order by number", "order not found")
	}
	return s.withItems(ctx, order)
}

// ListByBranch returns a page of a branch's orders, newest first, plus stats over
// every order that matches the filter.
func (s *OrderService) ListByBranch(ctx context.Context, f ListOrdersFilter) (*OrderList, error) {
	fields := map[string]string{}
	status := pgtype.Text{}
	if f.Status != "" {
		st, ok := enum.ParseOrderStatus(f.Status)
		if !ok {
			fields["status"] = fmt.Sprintf("invalid status %q", f.Status)
		}
		status = pgtype.Text{String: string(st), Valid: true}
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		fields["from"] = "from must not be after to"
	}
	if f.Offset < 0 {
		fields["offset"] = "offset must not be negative"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("invalid order filter", fields)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultOrderListLimit
	}
	if limit > MaxOrderListLimit {
		limit = MaxOrderListLimit
	}

	if _, err := s.queries.GetBranch(ctx, f.BranchID); err != nil {
		return nil, apperr.FromStore(err, "get branch", "branch not found")
	}

	from, to := timestamptz(f.From), timestamptz(f.To)
	orders, err := s.queries.ListOrdersByBranch(ctx, database.ListOrdersByBranchParams{
		BranchID: f.BranchID,
		Status:   status,
		From:     from,
		To:       to,
		Limit:    int32(limit),
		Offset:   int32(f.Offset),
	})
	if err != nil {
		return nil, apperr.FromStore(err, "list orders", "branch not found")
	}

	rows, err := s.queries.GetOrderStatsByBranch(ctx, database.GetOrderStatsByBranchParams{
		BranchID: f.BranchID,
		Status:   status,
		From:     from,
		To:       to,
	})
	if err != nil {
		return nil, apperr.FromStore(err, "order stats", "branch not found")
	}

	return &OrderList{
		Orders: orders,
		Stats:  aggregateStats(rows),
		Limit:  limit,
		Offset: f.Offset,
	}, nil
}

func aggregateStats(rows []database.GetOrderStatsByBranchRow) OrderStats {
	stats := OrderStats{
		ByStatus:    make(map[enum.OrderStatus]int64, len(enum.OrderStatuses)),
		TotalAmount: decimal.Zero,
	}
	for _, st := range enum.OrderStatuses {
		stats.ByStatus[st] = 0
	}
	for _, row := range rows {
		stats.ByStatus[enum.OrderStatus(row.Status)] += row.OrderCount
		stats.Total += row.OrderCount
		stats.TotalAmount = stats.TotalAmount.Add(numericToDecimal(row.TotalAmount))
	}
	return stats
}

func (s *OrderService) getScoped(ctx context.Context, branchID, id uuid.UUID) (database.Order, error) {
	order, err := s.queries.GetOrder(ctx, id)
	if err != nil {
		return database.Order{}, apperr.FromStore(err, "get order", "order not found")
	}
	if branchID != uuid.Nil && order.BranchID != branchID {
		return database.Order{}, apperr.NotFound("order not found")
	}
	return order, nil
}

func (s *OrderService) withItems(ctx context.Context, order database.Order) (*OrderDetail, error) {
	rows, err := s.queries.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, apperr.FromStore(err, "list order items", "order not found")
	}
	lines := make([]OrderLine, len(rows))
	for i, row := range rows {
		lines[i] = OrderLine{
			ID:           row.ID,
			MenuItemID:   row.MenuItemID,
			MenuItemName: row.MenuItemName,
			Quantity:     row.Quantity,
			Price:        numericToDecimal(row.Price),
			Note:         row.Note.String,
		}
	}
	return &OrderDetail{Order: order, Items: lines}, nil
}

func (s *OrderService) publish(ctx context.Context, typ events.Type, d *OrderDetail, previous string) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, events.Event{
		Type:           typ,
		BranchID:       d.Order.BranchID,
		Order:          OrderPayload(d),
		PreviousStatus: previous,
	})
}

// OrderPayload builds the event snapshot of an order.
func OrderPayload(d *OrderDetail) *events.OrderPayload {
	return &events.OrderPayload{
		ID:           d.Order.ID,
		BranchID:     d.Order.BranchID,
		OrderNumber:  d.Order.OrderNumber,
		Status:       d.Order.Status,
		TotalAmount:  numericToDecimal(d.Order.TotalAmount).StringFixed(2),
		CustomerName: d.Order.CustomerName.String,
		DeviceID:     d.Order.DeviceID.String,
		ItemCount:    len(d.Items),
		CreatedAt:    d.Order.CreatedAt,
	}
}

// --- Helpers ---

func isValidPaymentMethod(s string) bool {
	switch s {
	case enum.PaymentMethodCash, enum.PaymentMethodCard, enum.PaymentMethodOnline:
		return true
	}
	return false
}

func isValidDeliveryMethod(s string) bool {
	switch s {
	case enum.DeliveryMethodPickup, enum.DeliveryMethodDelivery, enum.DeliveryMethodDineIn:
		return true
	}
	return false
}

func optText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func timestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// DecimalFromNumeric converts a stored amount; invalid or NULL values read as zero.
func DecimalFromNumeric(n pgtype.Numeric) decimal.Decimal {
	return numericToDecimal(n)
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
