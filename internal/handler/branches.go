package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/enum"
	"github.com/branchline/api/internal/middleware"
	"github.com/branchline/api/internal/service"
)

// BranchServicer defines the service methods needed by branch handlers.
// Satisfied by *service.BranchService; narrow interface for testability.
type BranchServicer interface {
	Create(ctx context.Context, req service.CreateBranchRequest) (database.Branch, error)
	Update(ctx context.Context, id uuid.UUID, req service.UpdateBranchRequest) (database.Branch, error)
	Deactivate(ctx context.Context, id uuid.UUID) (database.Branch, error)
	Activate(ctx context.Context, id uuid.UUID) (database.Branch, error)
	List(ctx context.Context, f service.ListBranchesFilter) ([]database.ListBranchesWithCountsRow, error)
	Get(ctx context.Context, id uuid.UUID) (database.Branch, error)
}

// BranchHandler handles the admin branch registry endpoints.
type BranchHandler struct {
	svc BranchServicer
	log *zap.Logger
}

func NewBranchHandler(svc BranchServicer, log *zap.Logger) *BranchHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BranchHandler{svc: svc, log: log}
}

// RegisterRoutes registers collection endpoints.
// Expected to be mounted at /branches.
func (h *BranchHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.With(middleware.RequireRole(enum.UserRoleAdmin)).Post("/", h.Create)
}

// RegisterBranchRoutes registers single-branch endpoints.
// Expected to be mounted inside the branch-scoped subrouter /branches/{bid}.
func (h *BranchHandler) RegisterBranchRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(enum.UserRoleAdmin))
		r.Put("/", h.Update)
		r.Delete("/", h.Deactivate)
		r.Post("/activate", h.Activate)
	})
}

// --- Request / Response types ---

type createBranchRequest struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Address     *string  `json:"address"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	DeviceID    string   `json:"device_id"`
	IsActive    *bool    `json:"is_active"`
}

type updateBranchRequest struct {
	Name          *string  `json:"name"`
	Description   *string  `json:"description"`
	Address       *string  `json:"address"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	ClearLocation bool     `json:"clear_location"`
	DeviceID      *string  `json:"device_id"`
	IsActive      *bool    `json:"is_active"`
}

type branchResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Address     *string   `json:"address"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	DeviceID    string    `json:"device_id"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type branchCountsResponse struct {
	branchResponse
	Counts branchCounts `json:"_count"`
}

type branchCounts struct {
	Orders    int64 `json:"orders"`
	MenuItems int64 `json:"menu_items"`
}

func toBranchResponse(b database.Branch) branchResponse {
	return branchResponse{
		ID:          b.ID,
		Name:        b.Name,
		Description: textPtr(b.Description),
		Address:     textPtr(b.Address),
		Latitude:    floatPtr(b.Latitude),
		Longitude:   floatPtr(b.Longitude),
		DeviceID:    b.DeviceID,
		IsActive:    b.IsActive,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

// --- Handlers ---

// List handles GET /branches?active_only=&search=.
func (h *BranchHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if s := r.URL.Query().Get("active_only"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid active_only, use true or false"})
			return
		}
		activeOnly = v
	}

	rows, err := h.svc.List(r.Context(), service.ListBranchesFilter{
		ActiveOnly: activeOnly,
		Search:     r.URL.Query().Get("search"),
	})
	if err != nil {
		writeError(w, h.log, "list branches", err)
		return
	}

	// Staff bound to one branch only see that branch.
	claims := middleware.ClaimsFromContext(r.Context())
	resp := make([]branchCountsResponse, 0, len(rows))
	for _, row := range rows {
		if claims != nil && !middleware.CanAccessBranch(claims, row.Branch.ID) {
			continue
		}
		resp = append(resp, branchCountsResponse{
			branchResponse: toBranchResponse(row.Branch),
			Counts:         branchCounts{Orders: row.OrderCount, MenuItems: row.MenuItemCount},
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /branches.
func (h *BranchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBranchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	branch, err := h.svc.Create(r.Context(), service.CreateBranchRequest{
		Name:        req.Name,
		Description: req.Description,
		Address:     req.Address,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		DeviceID:    req.DeviceID,
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeError(w, h.log, "create branch", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBranchResponse(branch))
}

// Get handles GET /branches/{bid}.
func (h *BranchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "bid", "branch")
	if !ok {
		return
	}
	branch, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.log, "get branch", err)
		return
	}
	writeJSON(w, http.StatusOK, toBranchResponse(branch))
}

// Update handles PUT /branches/{bid}. Fields left out keep their value.
func (h *BranchHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "bid", "branch")
	if !ok {
		return
	}
	var req updateBranchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	branch, err := h.svc.Update(r.Context(), id, service.UpdateBranchRequest{
		Name:          req.Name,
		Description:   req.Description,
		Address:       req.Address,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		ClearLocation: req.ClearLocation,
		DeviceID:      req.DeviceID,
		IsActive:      req.IsActive,
	})
	if err != nil {
		writeError(w, h.log, "update branch", err)
		return
	}
	writeJSON(w, http.StatusOK, toBranchResponse(branch))
}

// Deactivate handles DELETE /branches/{bid}. Branches are never removed.
func (h *BranchHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// Activate handles POST /branches/{bid}/activate.
func (h *BranchHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *BranchHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := uuidParam(w, r, "bid", "branch")
	if !ok {
		return
	}
	var (
		branch database.Branch
		err    error
	)
	if active {
		branch, err = h.svc.Activate(r.Context(), id)
	} else {
		branch, err = h.svc.Deactivate(r.Context(), id)
	}
	if err != nil {
		writeError(w, h.log, "set branch active", err)
		return
	}
	h.log.Info("branch active flag set", zap.String("branch_id", id.String()), zap.Bool("active", active))
	writeJSON(w, http.StatusOK, toBranchResponse(branch))
}
