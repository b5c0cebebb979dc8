package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/apperr"
	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/report"
	"github.com/branchline/api/internal/service"
)

// maxImportBytes caps an uploaded menu workbook.
const maxImportBytes = 10 << 20

// MenuServicer defines the service methods needed by menu handlers.
// Satisfied by *service.MenuService; narrow interface for testability.
type MenuServicer interface {
	Create(ctx context.Context, req service.CreateMenuItemRequest) (database.MenuItem, error)
	Update(ctx context.Context, req service.UpdateMenuItemRequest) (database.MenuItem, error)
	SetAvailability(ctx context.Context, branchID, id uuid.UUID, available bool) (database.MenuItem, error)
	Delete(ctx context.Context, branchID, id uuid.UUID) error
	ListByBranch(ctx context.Context, branchID uuid.UUID) ([]database.MenuItem, error)
}

// MenuHandler handles per-branch menu item endpoints.
type MenuHandler struct {
	svc MenuServicer
	log *zap.Logger
}

func NewMenuHandler(svc MenuServicer, log *zap.Logger) *MenuHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MenuHandler{svc: svc, log: log}
}

// RegisterRoutes registers menu item endpoints.
// Expected to be mounted inside a branch-scoped subrouter: /branches/{bid}/menu-items
func (h *MenuHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Post("/import", h.Import)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Patch("/{id}/availability", h.SetAvailability)
}

// --- Request / Response types ---

type createMenuItemRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Price       amount  `json:"price"`
	Category    string  `json:"category"`
	ImageURL    *string `json:"image_url"`
	IsAvailable *bool   `json:"is_available"`
}

type updateMenuItemRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *amount `json:"price"`
	Category    *string `json:"category"`
	ImageURL    *string `json:"image_url"`
	IsAvailable *bool   `json:"is_available"`
}

type availabilityRequest struct {
	IsAvailable *bool `json:"is_available"`
}

type menuItemResponse struct {
	ID          uuid.UUID `json:"id"`
	BranchID    uuid.UUID `json:"branch_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Price       string    `json:"price"`
	Category    string    `json:"category"`
	ImageURL    *string   `json:"image_url"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type importRowError struct {
	Line    int               `json:"line"`
	Name    string            `json:"name"`
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

type importResponse struct {
	Created []menuItemResponse `json:"created"`
	Failed  []importRowError   `json:"failed"`
}

func toMenuItemResponse(m database.MenuItem) menuItemResponse {
	return menuItemResponse{
		ID:          m.ID,
		BranchID:    m.BranchID,
		Name:        m.Name,
		Description: textPtr(m.Description),
		Price:       numericToString(m.Price),
		Category:    m.Category,
		ImageURL:    textPtr(m.ImageUrl),
		IsAvailable: m.IsAvailable,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// --- Handlers ---

// List handles GET /branches/{bid}/menu-items (unavailable items included).
func (h *MenuHandler) List(w http.ResponseWriter, r *http.Request) {
	branchID, ok := uuidParam(w, r, "bid", "branch")
	if !ok {
		return
	}
	items, err := h.svc.ListByBranch(r.Context(), branchID)
	if err != nil {
		writeError(w, h.log, "list menu items", err)
		return
	}
	resp := make([]menuItemResponse, len(items))
	for i, it := range items {
		resp[i] = toMenuItemResponse(it)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /branches/{bid}/menu-items.
func (h *MenuHandler) Create(w http.ResponseWriter, r *http.Request) {
	branchID, ok := uuidParam(w, r, "bid", "branch")
	if !ok {
		return
	}
	var req createMenuItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.svc.Create(r.Context(), service.CreateMenuItemRequest{
		BranchID:    branchID,
		Name:        req.Name,
		Description: req.Description,
		Price:       string(req.Price),
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		IsAvailable: req.IsAvailable,
	})
	if err != nil {
		writeError(w, h.log, "create menu item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMenuItemResponse(item))
}

// Update handles PUT /branches/{bid}/menu-items/{id}.
func (h *MenuHandler) Update(w http.ResponseWriter, r *http.Request) {
	branchID, ok := uuidParam(w, r, "bid", "branch")
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id", "menu item")
	if !ok {
		return
	}
	var req updateMenuItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var price *string
	if req.Price != nil {
		p := string(*req.Price)
		price = &p
	}

	item, err := h.svc.Update(r.Context(), service.UpdateMenuItemRequest{
		ID:          id,
		BranchID:    branchID,
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		IsAvailable: req.IsAvailable,
	})
	if err != nil {
		writeError(w, h.log, "update menu item", err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(item))
}

// SetAvailability handles PATCH /branches/{bid}/menu-items/{id}/availability.
func (h *MenuHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	branchID, ok := uuidParam(w, r, "bid", "branch")
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id", "menu item")
	if !ok {
		return
	}
	var req availabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsAvailable == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "is_available is required"})
		return
	}

	item, err := h.svc.SetAvailability(r.Context(), branchID, id, *req.IsAvailable)
	if err != nil {
		writeError(w, h.log, "set menu item availability", err)
		return
	}
	writeJSON(w, http.StatusOK, toMenuItemResponse(item))
}

// Delete handles DELETE /branches/{bid}/menu-items/{id}.
func (h *MenuHandler) Delete(w http.ResponseWriter, r *http.Request) {
	branchID, ok := uuidParam(w, r, "bid", "branch")
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id", "menu item")
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), branchID, id); err != nil {
		writeError(w, h.log, "delete menu item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Import handles POST /branches/{bid}/menu-items/import (multipart, field "file").
// Rows are created one by one; invalid rows are reported and skipped.
func (h *MenuHandler) Import(w http.ResponseWriter, r *http.Request) {
	branchID, ok := uuidParam(w, r, "bid", "branch")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file is required"})
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".xlsx") {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "only .xlsx files can be imported"})
		return
	}

	rows, err := report.ParseMenuSheet(file)
	if err != nil {
		if errors.Is(err, report.ErrEmptySheet) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "could not read spreadsheet"})
		return
	}

	resp := importResponse{Created: []menuItemResponse{}, Failed: []importRowError{}}
	for _, row := range rows {
		var description *string
		if row.Description != "" {
			description = &row.Description
		}
		item, err := h.svc.Create(r.Context(), service.CreateMenuItemRequest{
			BranchID:    branchID,
			Name:        row.Name,
			Description: description,
			Price:       row.Price,
			Category:    row.Category,
			IsAvailable: row.Available,
		})
		if err != nil {
			if apperr.KindOf(err) != apperr.KindValidation {
				writeError(w, h.log, "import menu item", err)
				return
			}
			resp.Failed = append(resp.Failed, importRowError{
				Line:    row.Line,
				Name:    row.Name,
				Error:   err.Error(),
				Details: apperr.FieldsOf(err),
			})
			continue
		}
		resp.Created = append(resp.Created, toMenuItemResponse(item))
	}

	h.log.Info("menu imported",
		zap.String("branch_id", branchID.String()),
		zap.Int("created", len(resp.Created)),
		zap.Int("failed", len(resp.Failed)),
	)
	status := http.StatusCreated
	if len(resp.Created) == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}
