package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/enum"
	"github.com/branchline/api/internal/geo"
	"github.com/branchline/api/internal/middleware"
	"github.com/branchline/api/internal/service"
)

// StorefrontBranches defines the branch reads a storefront needs.
// Satisfied by *service.BranchService; narrow interface for testability.
type StorefrontBranches interface {
	ListRanked(ctx context.Context, search string, user *geo.Point) ([]geo.Ranked[database.Branch], error)
	GetWithMenu(ctx context.Context, id uuid.UUID) (*service.BranchMenu, error)
}

// StorefrontOrders defines the order operations a storefront needs.
// Satisfied by *service.OrderService.
type StorefrontOrders interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderDetail, error)
	GetOrderByNumber(ctx context.Context, number string) (*service.OrderDetail, error)
}

// StorefrontHandler serves the customer-facing endpoints.
type StorefrontHandler struct {
	branches StorefrontBranches
	orders   StorefrontOrders
	log      *zap.Logger
}

func NewStorefrontHandler(branches StorefrontBranches, orders StorefrontOrders, log *zap.Logger) *StorefrontHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StorefrontHandler{branches: branches, orders: orders, log: log}
}

// RegisterPublicRoutes registers the anonymous reads.
// Expected to be mounted at /storefront.
func (h *StorefrontHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/branches", h.ListBranches)
	r.Get("/branches/{bid}/menu", h.Menu)
}

// RegisterOrderRoutes registers order submission and status lookup.
// Expected to be mounted at /storefront behind Authenticate.
func (h *StorefrontHandler) RegisterOrderRoutes(r chi.Router) {
	r.Use(middleware.RequireRole(enum.UserRoleStorefront, enum.UserRoleStaff, enum.UserRoleAdmin))
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/{number}/status", h.OrderStatus)
}

// --- Request / Response types ---

type createOrderRequest struct {
	BranchID        string                   `json:"branch_id"`
	CustomerName    string                   `json:"customer_name"`
	CustomerPhone   string                   `json:"customer_phone"`
	CustomerEmail   string                   `json:"customer_email"`
	TotalAmount     amount                   `json:"total_amount"`
	Items           []createOrderItemRequest `json:"items"`
	Notes           string                   `json:"notes"`
	PaymentMethod   string                   `json:"payment_method"`
	DeliveryMethod  string                   `json:"delivery_method"`
	DeliveryAddress string                   `json:"delivery_address"`
	DeviceID        string                   `json:"device_id"`
}

type createOrderItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int32  `json:"quantity"`
	Price      amount `json:"price"`
	Note       string `json:"note"`
}

type rankedBranchResponse struct {
	branchResponse
	DistanceKm *float64 `json:"distance_km"`
}

type branchMenuResponse struct {
	Branch branchResponse                `json:"branch"`
	Menu   map[string][]menuItemResponse `json:"menu"`
}

type orderStatusResponse struct {
	OrderNumber string        `json:"order_number"`
	Status      string        `json:"status"`
	Badge       service.Badge `json:"badge"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// --- Handlers ---

// ListBranches handles GET /storefront/branches?search=&lat=&lon=.
// Branches come back nearest first when both coordinates are given.
func (h *StorefrontHandler) ListBranches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := optFloat(q.Get("lat"))
	lon, lonErr := optFloat(q.Get("lon"))
	if latErr != nil || lonErr != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lat and lon must be numbers"})
		return
	}
	if (lat == nil) != (lon == nil) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lat and lon must be given together"})
		return
	}

	ranked, err := h.branches.ListRanked(r.Context(), q.Get("search"), geo.NewPoint(lat, lon))
	if err != nil {
		writeError(w, h.log, "list storefront branches", err)
		return
	}

	resp := make([]rankedBranchResponse, len(ranked))
	for i, rb := range ranked {
		resp[i] = rankedBranchResponse{branchResponse: toBranchResponse(rb.Item), DistanceKm: rb.DistanceKm}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Menu handles GET /storefront/branches/{bid}/menu.
func (h *StorefrontHandler) Menu(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "bid", "branch")
	if !ok {
		return
	}
	menu, err := h.branches.GetWithMenu(r.Context(), id)
	if err != nil {
		writeError(w, h.log, "get branch menu", err)
		return
	}

	resp := branchMenuResponse{
		Branch: toBranchResponse(menu.Branch),
		Menu:   make(map[string][]menuItemResponse, len(menu.Categories)),
	}
	for _, c := range menu.Categories {
		items := make([]menuItemResponse, len(c.Items))
		for i, it := range c.Items {
			items[i] = toMenuItemResponse(it)
		}
		resp.Menu[c.Name] = items
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateOrder handles POST /storefront/orders.
func (h *StorefrontHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	branchID, err := uuid.Parse(strings.TrimSpace(req.BranchID))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "invalid branch ID",
			Details: map[string]string{"branch_id": "branch_id must be a branch UUID"},
		})
		return
	}

	items := make([]service.CreateOrderItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = service.CreateOrderItemRequest{
			MenuItemID: it.MenuItemID,
			Quantity:   it.Quantity,
			Price:      string(it.Price),
			Note:       it.Note,
		}
	}

	detail, err := h.orders.CreateOrder(r.Context(), service.CreateOrderRequest{
		BranchID:        branchID,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerEmail:   req.CustomerEmail,
		TotalAmount:     string(req.TotalAmount),
		PaymentMethod:   req.PaymentMethod,
		DeliveryMethod:  req.DeliveryMethod,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
		DeviceID:        req.DeviceID,
		Items:           items,
	})
	if err != nil {
		writeError(w, h.log, "create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"order": toOrderResponse(detail)})
}

// OrderStatus handles GET /storefront/orders/{number}/status.
func (h *StorefrontHandler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	detail, err := h.orders.GetOrderByNumber(r.Context(), number)
	if err != nil {
		writeError(w, h.log, "get order status", err)
		return
	}
	o := detail.Order
	writeJSON(w, http.StatusOK, orderStatusResponse{
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		Badge:       service.LocalizedBadge(o.Status, r.URL.Query().Get("lang")),
		UpdatedAt:   o.UpdatedAt,
	})
}

func optFloat(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
