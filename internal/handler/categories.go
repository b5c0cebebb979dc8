package handler

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/database"
)

// CategoryServicer defines the service methods needed by category handlers.
// Satisfied by *service.CategoryService; narrow interface for testability.
type CategoryServicer interface {
	List(ctx context.Context, branchID uuid.UUID) ([]database.ListMenuCategoriesRow, error)
	Rename(ctx context.Context, branchID uuid.UUID, from, to string) (string, int64, error)
}

type CategoryHandler struct {
	svc CategoryServicer
	log *zap.Logger
}

func NewCategoryHandler(svc CategoryServicer, log *zap.Logger) *CategoryHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CategoryHandler{svc: svc, log: log}
}

// RegisterRoutes registers category endpoints.
// Expected to be mounted inside the branch-scoped subrouter: /branches/{bid}/categories
func (h *CategoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Put("/{name}", h.Rename)
}

// --- Request / Response types ---

type renameCategoryRequest struct {
	Name string `json:"name"`
}

type categoryResponse struct {
	Name           string `json:"name"`
	ItemCount      int64  `json:"item_count"`
	AvailableCount int64  `json:"available_count"`
}

// --- Handlers ---

// List handles GET /branches/{bid}/categories.
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	branchID, ok := uuidParam(w, r, "bid", "branch")
	if !ok {
		return
	}
	rows, err := h.svc.List(r.Context(), branchID)
	if err != nil {
		writeError(w, h.log, "list categories", err)
		return
	}
	resp := make([]categoryResponse, len(rows))
	for i, row := range rows {
		resp[i] = categoryResponse{Name: row.Category, ItemCount: row.ItemCount, AvailableCount: row.AvailableCount}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Rename handles PUT /branches/{bid}/categories/{name}.
func (h *CategoryHandler) Rename(w http.ResponseWriter, r *http.Request) {
	branchID, ok := uuidParam(w, r, "bid", "branch")
	if !ok {
		return
	}
	from, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid category name"})
		return
	}
	var req renameCategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	name, moved, err := h.svc.Rename(r.Context(), branchID, from, req.Name)
	if err != nil {
		writeError(w, h.log, "rename category", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"name": name, "moved": moved})
}
