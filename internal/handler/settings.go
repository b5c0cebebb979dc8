package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/enum"
	"github.com/branchline/api/internal/middleware"
	"github.com/branchline/api/internal/service"
)

// SettingsServicer defines the service methods needed by settings handlers.
// Satisfied by *service.SettingsService; narrow interface for testability.
type SettingsServicer interface {
	Get(ctx context.Context) (service.Settings, error)
	Update(ctx context.Context, req service.UpdateSettingsRequest) (service.Settings, error)
}

// SettingsHandler handles the application settings endpoints.
type SettingsHandler struct {
	svc SettingsServicer
	log *zap.Logger
}

func NewSettingsHandler(svc SettingsServicer, log *zap.Logger) *SettingsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettingsHandler{svc: svc, log: log}
}

// RegisterRoutes registers settings endpoints. Expected to be mounted at /settings.
func (h *SettingsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.With(middleware.RequireRole(enum.UserRoleAdmin)).Put("/", h.Update)
}

// --- Request / Response types ---

type updateSettingsRequest struct {
	DefaultBranchID    *string `json:"default_branch_id"`
	NotificationEmail  *string `json:"notification_email"`
	EnableOrderSound   *bool   `json:"enable_order_sound"`
	MinimumOrderAmount *amount `json:"minimum_order_amount"`
	Currency           *string `json:"currency"`
	CompanyName        *string `json:"company_name"`
}

type settingsResponse struct {
	DefaultBranchID    *uuid.UUID `json:"default_branch_id"`
	NotificationEmail  string     `json:"notification_email"`
	EnableOrderSound   bool       `json:"enable_order_sound"`
	MinimumOrderAmount string     `json:"minimum_order_amount"`
	Currency           string     `json:"currency"`
	CompanyName        string     `json:"company_name"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toSettingsResponse(s service.Settings) settingsResponse {
	return settingsResponse{
		DefaultBranchID:    s.DefaultBranchID,
		NotificationEmail:  s.NotificationEmail,
		EnableOrderSound:   s.EnableOrderSound,
		MinimumOrderAmount: s.MinimumOrderAmount.StringFixed(2),
		Currency:           s.Currency,
		CompanyName:        s.CompanyName,
		UpdatedAt:          s.UpdatedAt,
	}
}

// --- Handlers ---

// Get handles GET /settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Get(r.Context())
	if err != nil {
		writeError(w, h.log, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(s))
}

// Update handles PUT /settings. Omitted fields keep their value.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var minimum *string
	if req.MinimumOrderAmount != nil {
		m := string(*req.MinimumOrderAmount)
		minimum = &m
	}

	s, err := h.svc.Update(r.Context(), service.UpdateSettingsRequest{
		DefaultBranchID:    req.DefaultBranchID,
		NotificationEmail:  req.NotificationEmail,
		EnableOrderSound:   req.EnableOrderSound,
		MinimumOrderAmount: minimum,
		Currency:           req.Currency,
		CompanyName:        req.CompanyName,
	})
	if err != nil {
		writeError(w, h.log, "update settings", err)
		return
	}
	h.log.Info("settings updated")
	writeJSON(w, http.StatusOK, toSettingsResponse(s))
}
