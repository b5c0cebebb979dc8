package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/enum"
	"github.com/branchline/api/internal/middleware"
	"github.com/branchline/api/internal/report"
	"github.com/branchline/api/internal/service"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderDetail, error)
	SetStatus(ctx context.Context, req service.SetStatusRequest) (*service.OrderDetail, error)
	PatchOrder(ctx context.Context, req service.PatchOrderRequest) (*service.OrderDetail, error)
	GetOrder(ctx context.Context, branchID, id uuid.UUID) (*service.OrderDetail, error)
	GetOrderByNumber(ctx context.Context, number string) (*service.OrderDetail, error)
	ListByBranch(ctx context.Context, f service.ListOrdersFilter) (*service.OrderList, error)
}

// BranchGetter loads a single branch. Satisfied by *service.BranchService.
type BranchGetter interface {
	Get(ctx context.Context, id uuid.UUID) (database.Branch, error)
}

// OrderHandler handles the staff order endpoints.
type OrderHandler struct {
	svc      OrderServicer
	branches BranchGetter
	log      *zap.Logger
	now      func() time.Time
}

func NewOrderHandler(svc OrderServicer, branches BranchGetter, log *zap.Logger) *OrderHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderHandler{svc: svc, branches: branches, log: log, now: time.Now}
}

// RegisterBranchRoutes registers branch-scoped order endpoints.
// Expected to be mounted inside a branch-scoped subrouter: /branches/{bid}/orders
func (h *OrderHandler) RegisterBranchRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/export", h.Export)
}

// RegisterRoutes registers order endpoints addressed by order id.
// Expected to be mounted at /orders.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/status-badges", h.StatusBadges)
	r.Put("/status", h.UpdateStatusByBody)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Patch)
	r.Patch("/{id}/status", h.UpdateStatus)
}

// --- Request / Response types ---

type updateStatusRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type patchOrderRequest struct {
	Notes           *string `json:"notes"`
	PaymentMethod   *string `json:"payment_method"`
	DeliveryMethod  *string `json:"delivery_method"`
	DeliveryAddress *string `json:"delivery_address"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	BranchID        uuid.UUID           `json:"branch_id"`
	OrderNumber     string              `json:"order_number"`
	Status          string              `json:"status"`
	CustomerName    *string             `json:"customer_name"`
	CustomerPhone   *string             `json:"customer_phone"`
	CustomerEmail   *string             `json:"customer_email"`
	TotalAmount     string              `json:"total_amount"`
	PaymentMethod   *string             `json:"payment_method"`
	DeliveryMethod  *string             `json:"delivery_method"`
	DeliveryAddress *string             `json:"delivery_address"`
	Notes           *string             `json:"notes"`
	DeviceID        *string             `json:"device_id"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Items           []orderItemResponse `json:"order_items,omitempty"`
}

type orderItemResponse struct {
	ID           uuid.UUID `json:"id"`
	MenuItemID   uuid.UUID `json:"menu_item_id"`
	MenuItemName string    `json:"menu_item_name"`
	Quantity     int32     `json:"quantity"`
	Price        string    `json:"price"`
	Note         *string   `json:"note"`
}

type orderStatsResponse struct {
	Total       int64            `json:"total"`
	ByStatus    map[string]int64 `json:"by_status"`
	TotalAmount string           `json:"total_amount"`
}

// orderListResponse wraps a page of orders with stats over the whole filter.
type orderListResponse struct {
	Orders []orderResponse    `json:"orders"`
	Stats  orderStatsResponse `json:"stats"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

type statusBadgeResponse struct {
	Status string `json:"status"`
	service.Badge
}

func dbOrderToResponse(o database.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		BranchID:        o.BranchID,
		OrderNumber:     o.OrderNumber,
		Status:          o.Status,
		CustomerName:    textPtr(o.CustomerName),
		CustomerPhone:   textPtr(o.CustomerPhone),
		CustomerEmail:   textPtr(o.CustomerEmail),
		TotalAmount:     numericToString(o.TotalAmount),
		PaymentMethod:   textPtr(o.PaymentMethod),
		DeliveryMethod:  textPtr(o.DeliveryMethod),
		DeliveryAddress: textPtr(o.DeliveryAddress),
		Notes:           textPtr(o.Notes),
		DeviceID:        textPtr(o.DeviceID),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toOrderResponse(d *service.OrderDetail) orderResponse {
	resp := dbOrderToResponse(d.Order)
	resp.Items = make([]orderItemResponse, len(d.Items))
	for i, it := range d.Items {
		var note *string
		if it.Note != "" {
			n := it.Note
			note = &n
		}
		resp.Items[i] = orderItemResponse{
			ID:           it.ID,
			MenuItemID:   it.MenuItemID,
			MenuItemName: it.MenuItemName,
			Quantity:     it.Quantity,
			Price:        it.Price.StringFixed(2),
			Note:         note,
		}
	}
	return resp
}

func toOrderStatsResponse(s service.OrderStats) orderStatsResponse {
	byStatus := make(map[string]int64, len(s.ByStatus))
	for st, n := range s.ByStatus {
		byStatus[string(st)] = n
	}
	return orderStatsResponse{
		Total:       s.Total,
		ByStatus:    byStatus,
		TotalAmount: s.TotalAmount.StringFixed(2),
	}
}

// --- Handlers ---

// List handles GET /branches/{bid}/orders?status=&from=&to=&limit=&offset=.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	branchID, ok := uuidParam(w, r, "bid", "branch")
	if !ok {
		return
	}
	f, err := parseOrderFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	f.BranchID = branchID

	list, err := h.svc.ListByBranch(r.Context(), f)
	if err != nil {
		writeError(w, h.log, "list orders", err)
		return
	}

	resp := orderListResponse{
		Orders: make([]orderResponse, len(list.Orders)),
		Stats:  toOrderStatsResponse(list.Stats),
		Limit:  list.Limit,
		Offset: list.Offset,
	}
	for i, o := range list.Orders {
		resp.Orders[i] = dbOrderToResponse(o)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Export handles GET /branches/{bid}/orders/export. It accepts the List filters
// (without paging) and answers with an XLSX workbook.
func (h *OrderHandler) Export(w http.ResponseWriter, r *http.Request) {
	branchID, ok := uuidParam(w, r, "bid", "branch")
	if !ok {
		return
	}
	f, err := parseOrderFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	f.BranchID = branchID
	f.Limit = service.MaxOrderListLimit
	f.Offset = 0

	branch, err := h.branches.Get(r.Context(), branchID)
	if err != nil {
		writeError(w, h.log, "export orders", err)
		return
	}

	export := report.OrderExport{Branch: branch, GeneratedAt: h.now()}
	for {
		page, err := h.svc.ListByBranch(r.Context(), f)
		if err != nil {
			writeError(w, h.log, "export orders", err)
			return
		}
		export.Orders = append(export.Orders, page.Orders...)
		export.Stats = page.Stats
		if len(page.Orders) < page.Limit || int64(len(export.Orders)) >= page.Stats.Total {
			break
		}
		f.Offset += page.Limit
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName()))
	if err := report.WriteOrders(w, export); err != nil {
		h.log.Error("write order export", zap.String("branch_id", branchID.String()), zap.Error(err))
	}
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "order")
	if !ok {
		return
	}
	detail, err := h.svc.GetOrder(r.Context(), branchScope(r), id)
	if err != nil {
		writeError(w, h.log, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(detail))
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "order")
	if !ok {
		return
	}
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.setStatus(w, r, id, req.Status)
}

// UpdateStatusByBody handles PUT /orders/status with {id, status}.
func (h *OrderHandler) UpdateStatusByBody(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid order ID",
			Details: map[string]string{"id": "id must be an order UUID"},
		})
		return
	}
	h.setStatus(w, r, id, req.Status)
}

func (h *OrderHandler) setStatus(w http.ResponseWriter, r *http.Request, id uuid.UUID, status string) {
	if status == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "status is required",
			Details: map[string]string{"status": "status is required"},
		})
		return
	}
	detail, err := h.svc.SetStatus(r.Context(), service.SetStatusRequest{
		OrderID:  id,
		BranchID: branchScope(r),
		Status:   status,
	})
	if err != nil {
		writeError(w, h.log, "update order status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"order": toOrderResponse(detail)})
}

// Patch handles PATCH /orders/{id}.
func (h *OrderHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "order")
	if !ok {
		return
	}
	var req patchOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	detail, err := h.svc.PatchOrder(r.Context(), service.PatchOrderRequest{
		OrderID:         id,
		BranchID:        branchScope(r),
		Notes:           req.Notes,
		PaymentMethod:   req.PaymentMethod,
		DeliveryMethod:  req.DeliveryMethod,
		DeliveryAddress: req.DeliveryAddress,
	})
	if err != nil {
		writeError(w, h.log, "patch order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(detail))
}

// StatusBadges handles GET /orders/status-badges?lang=.
func (h *OrderHandler) StatusBadges(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	resp := make([]statusBadgeResponse, len(enum.OrderStatuses))
	for i, st := range enum.OrderStatuses {
		resp[i] = statusBadgeResponse{Status: string(st), Badge: service.LocalizedBadge(string(st), lang)}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

// branchScope limits order lookups to the caller's branch for branch-bound staff.
func branchScope(r *http.Request) uuid.UUID {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil || claims.Role == enum.UserRoleAdmin {
		return uuid.Nil
	}
	return claims.BranchID
}

// parseOrderFilter reads status, from, to, limit and offset. Dates are either
// YYYY-MM-DD (whole UTC day, inclusive) or RFC 3339 instants.
func parseOrderFilter(r *http.Request) (service.ListOrdersFilter, error) {
	q := r.URL.Query()
	f := service.ListOrdersFilter{Status: strings.TrimSpace(q.Get("status"))}

	if s := q.Get("from"); s != "" {
		t, err := parseBound(s, false)
		if err != nil {
			return f, fmt.Errorf("invalid from, use YYYY-MM-DD or RFC 3339")
		}
		f.From = &t
	}
	if s := q.Get("to"); s != "" {
		t, err := parseBound(s, true)
		if err != nil {
			return f, fmt.Errorf("invalid to, use YYYY-MM-DD or RFC 3339")
		}
		f.To = &t
	}

	var ok bool
	if f.Limit, ok = intQuery(r, "limit", 0); !ok {
		return f, fmt.Errorf("invalid limit")
	}
	if f.Offset, ok = intQuery(r, "offset", 0); !ok {
		return f, fmt.Errorf("invalid offset")
	}
	return f, nil
}

func parseBound(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}
