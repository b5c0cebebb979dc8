package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/branchline/api/internal/apperr"
	"github.com/branchline/api/internal/enum"
	"github.com/branchline/api/internal/handler"
	"github.com/branchline/api/internal/middleware"
	"github.com/branchline/api/internal/service"
)

type mockSettingsService struct {
	getFn    func(ctx context.Context) (service.Settings, error)
	updateFn func(ctx context.Context, req service.UpdateSettingsRequest) (service.Settings, error)
}

func (m *mockSettingsService) Get(ctx context.Context) (service.Settings, error) {
	return m.getFn(ctx)
}

func (m *mockSettingsService) Update(ctx context.Context, req service.UpdateSettingsRequest) (service.Settings, error) {
	return m.updateFn(ctx, req)
}

func settingsRouter(svc handler.SettingsServicer) http.Handler {
	h := handler.NewSettingsHandler(svc, nil)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testSecret))
	r.Route("/settings", h.RegisterRoutes)
	return r
}

func defaultSettings() service.Settings {
	return service.Settings{
		EnableOrderSound:   true,
		MinimumOrderAmount: decimal.Zero,
		Currency:           "SAR",
		UpdatedAt:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestGetSettings(t *testing.T) {
	svc := &mockSettingsService{
		getFn: func(context.Context) (service.Settings, error) { return defaultSettings(), nil },
	}
	rr := sendJSON(t, settingsRouter(svc), "GET", "/settings", nil, tokenFor(t, enum.UserRoleStaff, uuid.New()))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	if resp["currency"] != "SAR" || resp["minimum_order_amount"] != "0.00" || resp["default_branch_id"] != nil {
		t.Errorf("settings: %v", resp)
	}
}

func TestUpdateSettings(t *testing.T) {
	var got service.UpdateSettingsRequest
	svc := &mockSettingsService{
		updateFn: func(_ context.Context, req service.UpdateSettingsRequest) (service.Settings, error) {
			got = req
			s := defaultSettings()
			s.MinimumOrderAmount = decimal.RequireFromString(*req.MinimumOrderAmount)
			return s, nil
		},
	}

	rr := sendJSON(t, settingsRouter(svc), "PUT", "/settings", `{"minimum_order_amount": 25, "enable_order_sound": false}`,
		tokenFor(t, enum.UserRoleAdmin, uuid.Nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if got.MinimumOrderAmount == nil || *got.MinimumOrderAmount != "25" {
		t.Errorf("minimum: %v", got.MinimumOrderAmount)
	}
	if got.EnableOrderSound == nil || *got.EnableOrderSound || got.Currency != nil {
		t.Errorf("request: %+v", got)
	}
	if decodeResponse(t, rr)["minimum_order_amount"] != "25.00" {
		t.Error("expected minimum 25.00")
	}
}

func TestUpdateSettings_Rejections(t *testing.T) {
	svc := &mockSettingsService{
		updateFn: func(context.Context, service.UpdateSettingsRequest) (service.Settings, error) {
			return service.Settings{}, apperr.Validation("invalid settings", map[string]string{"currency": "currency must be a 3-letter code"})
		},
	}

	rr := sendJSON(t, settingsRouter(svc), "PUT", "/settings", map[string]string{"currency": "RIYAL"},
		tokenFor(t, enum.UserRoleStaff, uuid.Nil))
	if rr.Code != http.StatusForbidden {
		t.Errorf("staff: got %d, want 403", rr.Code)
	}

	rr = sendJSON(t, settingsRouter(svc), "PUT", "/settings", map[string]string{"currency": "RIYAL"},
		tokenFor(t, enum.UserRoleAdmin, uuid.Nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("admin: got %d, want 400", rr.Code)
	}
}
