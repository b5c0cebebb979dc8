package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/branchline/api/internal/database"
)

// fakeDB is an in-memory record store covering the queries the services use.
// seqLock stands in for the advisory lock and is held until the fake tx ends.
type fakeDB struct {
	mu       sync.Mutex
	seqLock  sync.Mutex
	branches map[uuid.UUID]database.Branch
	menu     map[uuid.UUID]database.MenuItem
	orders   map[uuid.UUID]database.Order
	items    []database.OrderItem
	settings *database.AppSetting
	clock    time.Time
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		branches: map[uuid.UUID]database.Branch{},
		menu:     map[uuid.UUID]database.MenuItem{},
		orders:   map[uuid.UUID]database.Order{},
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (db *fakeDB) tick() time.Time {
	db.clock = db.clock.Add(time.Second)
	return db.clock
}

// fakeTx ends the advisory lock on commit or rollback.
type fakeTx struct {
	*mockTx
	db     *fakeDB
	locked bool
}

func (t *fakeTx) Commit(ctx context.Context) error   { t.release(); return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.release(); return nil }

func (t *fakeTx) release() {
	if t.locked {
		t.locked = false
		t.db.seqLock.Unlock()
	}
}

type fakeBeginner struct{ db *fakeDB }

func (b *fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return &fakeTx{mockTx: &mockTx{}, db: b.db}, nil
}

// fakeQueries is a view of fakeDB, optionally bound to a transaction.
type fakeQueries struct {
	db *fakeDB
	tx *fakeTx
}

func (db *fakeDB) queries() *fakeQueries { return &fakeQueries{db: db} }

func (db *fakeDB) newStore(conn database.DBTX) OrderStore {
	tx, _ := conn.(*fakeTx)
	return &fakeQueries{db: db, tx: tx}
}

func newFakeOrderService(db *fakeDB, policy TransitionPolicy, pub EventPublisher) *OrderService {
	return NewOrderService(&fakeBeginner{db: db}, db.newStore, db.queries(), policy, pub, nil)
}

// --- Branches ---

func (q *fakeQueries) CreateBranch(ctx context.Context, arg database.CreateBranchParams) (database.Branch, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	for _, b := range q.db.branches {
		if b.DeviceID == arg.DeviceID {
			return database.Branch{}, &pgconn.PgError{Code: "23505", ConstraintName: "branches_device_id_key"}
		}
	}
	now := q.db.tick()
	b := database.Branch{
		ID:          uuid.New(),
		Name:        arg.Name,
		Description: arg.Description,
		Address:     arg.Address,
		Latitude:    arg.Latitude,
		Longitude:   arg.Longitude,
		DeviceID:    arg.DeviceID,
		IsActive:    arg.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.db.branches[b.ID] = b
	return b, nil
}

func (q *fakeQueries) GetBranch(ctx context.Context, id uuid.UUID) (database.Branch, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	b, ok := q.db.branches[id]
	if !ok {
		return database.Branch{}, pgx.ErrNoRows
	}
	return b, nil
}

func (q *fakeQueries) GetBranchByDeviceID(ctx context.Context, deviceID string) (database.Branch, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	for _, b := range q.db.branches {
		if b.DeviceID == deviceID {
			return b, nil
		}
	}
	return database.Branch{}, pgx.ErrNoRows
}

func (q *fakeQueries) UpdateBranch(ctx context.Context, arg database.UpdateBranchParams) (database.Branch, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	b, ok := q.db.branches[arg.ID]
	if !ok {
		return database.Branch{}, pgx.ErrNoRows
	}
	for _, other := range q.db.branches {
		if other.ID != arg.ID && other.DeviceID == arg.DeviceID {
			return database.Branch{}, &pgconn.PgError{Code: "23505", ConstraintName: "branches_device_id_key"}
		}
	}
	b.Name, b.Description, b.Address = arg.Name, arg.Description, arg.Address
	b.Latitude, b.Longitude = arg.Latitude, arg.Longitude
	b.DeviceID, b.IsActive = arg.DeviceID, arg.IsActive
	b.UpdatedAt = q.db.tick()
	q.db.branches[b.ID] = b
	return b, nil
}

func (q *fakeQueries) SetBranchActive(ctx context.Context, arg database.SetBranchActiveParams) (database.Branch, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	b, ok := q.db.branches[arg.ID]
	if !ok {
		return database.Branch{}, pgx.ErrNoRows
	}
	b.IsActive = arg.IsActive
	q.db.branches[b.ID] = b
	return b, nil
}

func matchesSearch(b database.Branch, search pgtype.Text) bool {
	if !search.Valid {
		return true
	}
	s := strings.ToLower(search.String)
	return strings.Contains(strings.ToLower(b.Name), s) ||
		strings.Contains(strings.ToLower(b.Description.String), s) ||
		strings.Contains(strings.ToLower(b.Address.String), s)
}

func (q *fakeQueries) ListActiveBranches(ctx context.Context, search pgtype.Text) ([]database.Branch, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	out := []database.Branch{}
	for _, b := range q.db.branches {
		if b.IsActive && matchesSearch(b, search) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (q *fakeQueries) ListBranchesWithCounts(ctx context.Context, arg database.ListBranchesWithCountsParams) ([]database.ListBranchesWithCountsRow, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	out := []database.ListBranchesWithCountsRow{}
	for _, b := range q.db.branches {
		if (arg.ActiveOnly && !b.IsActive) || !matchesSearch(b, arg.Search) {
			continue
		}
		row := database.ListBranchesWithCountsRow{Branch: b}
		for _, o := range q.db.orders {
			if o.BranchID == b.ID {
				row.OrderCount++
			}
		}
		for _, m := range q.db.menu {
			if m.BranchID == b.ID {
				row.MenuItemCount++
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Branch.Name < out[j].Branch.Name })
	return out, nil
}

// --- Menu ---

func (q *fakeQueries) addMenuItem(branchID uuid.UUID, name, price, category string, available bool) database.MenuItem {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	m := database.MenuItem{
		ID:          uuid.New(),
		BranchID:    branchID,
		Name:        name,
		Price:       makeNumeric(price),
		Category:    category,
		IsAvailable: available,
	}
	q.db.menu[m.ID] = m
	return m
}

func (q *fakeQueries) CreateMenuItem(ctx context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	if _, ok := q.db.branches[arg.BranchID]; !ok {
		return database.MenuItem{}, &pgconn.PgError{Code: "23503"}
	}
	now := q.db.tick()
	m := database.MenuItem{
		ID:          uuid.New(),
		BranchID:    arg.BranchID,
		Name:        arg.Name,
		Description: arg.Description,
		Price:       arg.Price,
		Category:    arg.Category,
		ImageUrl:    arg.ImageUrl,
		IsAvailable: arg.IsAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.db.menu[m.ID] = m
	return m, nil
}

func (q *fakeQueries) GetMenuItem(ctx context.Context, arg database.GetMenuItemParams) (database.MenuItem, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	m, ok := q.db.menu[arg.ID]
	if !ok || m.BranchID != arg.BranchID {
		return database.MenuItem{}, pgx.ErrNoRows
	}
	return m, nil
}

func (q *fakeQueries) UpdateMenuItem(ctx context.Context, arg database.UpdateMenuItemParams) (database.MenuItem, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	m, ok := q.db.menu[arg.ID]
	if !ok || m.BranchID != arg.BranchID {
		return database.MenuItem{}, pgx.ErrNoRows
	}
	m.Name, m.Description, m.Price = arg.Name, arg.Description, arg.Price
	m.Category, m.ImageUrl, m.IsAvailable = arg.Category, arg.ImageUrl, arg.IsAvailable
	q.db.menu[m.ID] = m
	return m, nil
}

func (q *fakeQueries) SetMenuItemAvailability(ctx context.Context, arg database.SetMenuItemAvailabilityParams) (database.MenuItem, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	m, ok := q.db.menu[arg.ID]
	if !ok || m.BranchID != arg.BranchID {
		return database.MenuItem{}, pgx.ErrNoRows
	}
	m.IsAvailable = arg.IsAvailable
	q.db.menu[m.ID] = m
	return m, nil
}

func (q *fakeQueries) DeleteMenuItem(ctx context.Context, arg database.DeleteMenuItemParams) (uuid.UUID, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	m, ok := q.db.menu[arg.ID]
	if !ok || m.BranchID != arg.BranchID {
		return uuid.Nil, pgx.ErrNoRows
	}
	for _, it := range q.db.items {
		if it.MenuItemID == m.ID {
			return uuid.Nil, &pgconn.PgError{Code: "23503"}
		}
	}
	delete(q.db.menu, m.ID)
	return m.ID, nil
}

func (q *fakeQueries) ListMenuItemsByBranch(ctx context.Context, arg database.ListMenuItemsByBranchParams) ([]database.MenuItem, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	out := []database.MenuItem{}
	for _, m := range q.db.menu {
		if m.BranchID == arg.BranchID && (!arg.AvailableOnly || m.IsAvailable) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// --- Settings ---

func (q *fakeQueries) EnsureAppSettings(ctx context.Context) error {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	if q.db.settings == nil {
		q.db.settings = &database.AppSetting{
			ID:                 1,
			EnableOrderSound:   true,
			MinimumOrderAmount: makeNumeric("0"),
			Currency:           "SAR",
		}
	}
	return nil
}

func (q *fakeQueries) GetAppSettings(ctx context.Context) (database.AppSetting, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	if q.db.settings == nil {
		return database.AppSetting{}, pgx.ErrNoRows
	}
	return *q.db.settings, nil
}

func (q *fakeQueries) UpdateAppSettings(ctx context.Context, arg database.UpdateAppSettingsParams) (database.AppSetting, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	if q.db.settings == nil {
		return database.AppSetting{}, pgx.ErrNoRows
	}
	s := q.db.settings
	s.DefaultBranchID = arg.DefaultBranchID
	s.NotificationEmail = arg.NotificationEmail
	s.EnableOrderSound = arg.EnableOrderSound
	s.MinimumOrderAmount = arg.MinimumOrderAmount
	s.Currency = arg.Currency
	s.CompanyName = arg.CompanyName
	return *s, nil
}

// --- Orders ---

func (q *fakeQueries) LockOrderNumbers(ctx context.Context, key int64) error {
	q.db.seqLock.Lock()
	if q.tx != nil {
		q.tx.locked = true
	}
	return nil
}

func (q *fakeQueries) GetLastOrderNumber(ctx context.Context) (string, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	last := ""
	for _, o := range q.db.orders {
		if o.OrderNumber > last {
			last = o.OrderNumber
		}
	}
	if last == "" {
		return "", pgx.ErrNoRows
	}
	return last, nil
}

func (q *fakeQueries) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	for _, o := range q.db.orders {
		if o.OrderNumber == arg.OrderNumber {
			return database.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}
		}
	}
	now := q.db.tick()
	o := database.Order{
		ID:              uuid.New(),
		BranchID:        arg.BranchID,
		OrderNumber:     arg.OrderNumber,
		CustomerName:    arg.CustomerName,
		CustomerPhone:   arg.CustomerPhone,
		CustomerEmail:   arg.CustomerEmail,
		TotalAmount:     arg.TotalAmount,
		Status:          arg.Status,
		PaymentMethod:   arg.PaymentMethod,
		DeliveryMethod:  arg.DeliveryMethod,
		DeliveryAddress: arg.DeliveryAddress,
		Notes:           arg.Notes,
		DeviceID:        arg.DeviceID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	q.db.orders[o.ID] = o
	return o, nil
}

func (q *fakeQueries) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	it := database.OrderItem{
		ID:         uuid.New(),
		OrderID:    arg.OrderID,
		MenuItemID: arg.MenuItemID,
		Quantity:   arg.Quantity,
		Price:      arg.Price,
		Note:       arg.Note,
	}
	q.db.items = append(q.db.items, it)
	return it, nil
}

func (q *fakeQueries) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	o, ok := q.db.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (q *fakeQueries) GetOrderByNumber(ctx context.Context, orderNumber string) (database.Order, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	for _, o := range q.db.orders {
		if o.OrderNumber == orderNumber {
			return o, nil
		}
	}
	return database.Order{}, pgx.ErrNoRows
}

func (q *fakeQueries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.ListOrderItemsByOrderRow, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	out := []database.ListOrderItemsByOrderRow{}
	for _, it := range q.db.items {
		if it.OrderID != orderID {
			continue
		}
		out = append(out, database.ListOrderItemsByOrderRow{
			ID:           it.ID,
			OrderID:      it.OrderID,
			MenuItemID:   it.MenuItemID,
			Quantity:     it.Quantity,
			Price:        it.Price,
			Note:         it.Note,
			MenuItemName: q.db.menu[it.MenuItemID].Name,
		})
	}
	return out, nil
}

func (q *fakeQueries) filterOrders(branchID uuid.UUID, status pgtype.Text, from, to pgtype.Timestamptz) []database.Order {
	out := []database.Order{}
	for _, o := range q.db.orders {
		if o.BranchID != branchID {
			continue
		}
		if status.Valid && o.Status != status.String {
			continue
		}
		if from.Valid && o.CreatedAt.Before(from.Time) {
			continue
		}
		if to.Valid && o.CreatedAt.After(to.Time) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (q *fakeQueries) ListOrdersByBranch(ctx context.Context, arg database.ListOrdersByBranchParams) ([]database.Order, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	all := q.filterOrders(arg.BranchID, arg.Status, arg.From, arg.To)
	start := int(arg.Offset)
	if start > len(all) {
		start = len(all)
	}
	end := start + int(arg.Limit)
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (q *fakeQueries) GetOrderStatsByBranch(ctx context.Context, arg database.GetOrderStatsByBranchParams) ([]database.GetOrderStatsByBranchRow, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	byStatus := map[string]*database.GetOrderStatsByBranchRow{}
	for _, o := range q.filterOrders(arg.BranchID, arg.Status, arg.From, arg.To) {
		row, ok := byStatus[o.Status]
		if !ok {
			row = &database.GetOrderStatsByBranchRow{Status: o.Status, TotalAmount: makeNumeric("0")}
			byStatus[o.Status] = row
		}
		row.OrderCount++
		row.TotalAmount = decimalToNumeric(numericToDecimal(row.TotalAmount).Add(numericToDecimal(o.TotalAmount)))
	}
	out := []database.GetOrderStatsByBranchRow{}
	for _, row := range byStatus {
		out = append(out, *row)
	}
	return out, nil
}

func (q *fakeQueries) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	o, ok := q.db.orders[arg.ID]
	if !ok || o.Status != arg.Status_2 {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	o.UpdatedAt = q.db.tick()
	q.db.orders[o.ID] = o
	return o, nil
}

func (q *fakeQueries) PatchOrder(ctx context.Context, arg database.PatchOrderParams) (database.Order, error) {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()
	o, ok := q.db.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	if arg.Notes.Valid {
		o.Notes = arg.Notes
	}
	if arg.PaymentMethod.Valid {
		o.PaymentMethod = arg.PaymentMethod
	}
	if arg.DeliveryMethod.Valid {
		o.DeliveryMethod = arg.DeliveryMethod
	}
	if arg.DeliveryAddress.Valid {
		o.DeliveryAddress = arg.DeliveryAddress
	}
	q.db.orders[o.ID] = o
	return o, nil
}
