package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/branchline/api/internal/apperr"
)

func TestSettingsGet_CreatesDefaults(t *testing.T) {
	db := newFakeDB()
	svc := NewSettingsService(db.queries())

	s, err := svc.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !s.EnableOrderSound || !s.MinimumOrderAmount.IsZero() || s.DefaultBranchID != nil || s.Currency != "SAR" {
		t.Errorf("defaults = %+v", s)
	}
	if db.settings == nil {
		t.Error("settings row not created")
	}
}

func TestSettingsUpdate(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	q := db.queries()
	branch, err := NewBranchService(q, nil).Create(ctx, CreateBranchRequest{Name: "Main", DeviceID: "d1"})
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	svc := NewSettingsService(q)

	id := branch.ID.String()
	s, err := svc.Update(ctx, UpdateSettingsRequest{
		DefaultBranchID:    &id,
		NotificationEmail:  strPtr(" orders@example.com "),
		EnableOrderSound:   boolPtr(false),
		MinimumOrderAmount: strPtr("25.50"),
		Currency:           strPtr("usd"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if s.DefaultBranchID == nil || *s.DefaultBranchID != branch.ID {
		t.Errorf("default branch = %v", s.DefaultBranchID)
	}
	if s.NotificationEmail != "orders@example.com" || s.EnableOrderSound || s.Currency != "USD" {
		t.Errorf("settings = %+v", s)
	}
	if !s.MinimumOrderAmount.Equal(decimal.RequireFromString("25.5")) {
		t.Errorf("minimum = %s", s.MinimumOrderAmount)
	}

	// Unset fields keep their values; an empty branch id clears it.
	empty := ""
	s, err = svc.Update(ctx, UpdateSettingsRequest{DefaultBranchID: &empty})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if s.DefaultBranchID != nil || s.Currency != "USD" || s.NotificationEmail != "orders@example.com" {
		t.Errorf("after clear = %+v", s)
	}
}

func TestSettingsUpdate_Validation(t *testing.T) {
	svc := NewSettingsService(newFakeDB().queries())
	unknown := uuid.NewString()
	bad := "not-a-uuid"

	tests := []struct {
		name  string
		req   UpdateSettingsRequest
		field string
	}{
		{"unknown branch", UpdateSettingsRequest{DefaultBranchID: &unknown}, "default_branch_id"},
		{"bad branch id", UpdateSettingsRequest{DefaultBranchID: &bad}, "default_branch_id"},
		{"bad email", UpdateSettingsRequest{NotificationEmail: strPtr("nope")}, "notification_email"},
		{"negative minimum", UpdateSettingsRequest{MinimumOrderAmount: strPtr("-1")}, "minimum_order_amount"},
		{"non-numeric minimum", UpdateSettingsRequest{MinimumOrderAmount: strPtr("ten")}, "minimum_order_amount"},
		{"bad currency", UpdateSettingsRequest{Currency: strPtr("RIYAL")}, "currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), tt.req)
			assertField(t, err, tt.field)
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("kind = %s", apperr.KindOf(err))
			}
		})
	}
}

func TestSettingsMinimumAppliesToOrders(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	q := db.queries()
	branch, _ := NewBranchService(q, nil).Create(ctx, CreateBranchRequest{Name: "Main", DeviceID: "d1"})
	item := q.addMenuItem(branch.ID, "Tea", "2.00", "Drinks", true)
	if _, err := NewSettingsService(q).Update(ctx, UpdateSettingsRequest{MinimumOrderAmount: strPtr("5")}); err != nil {
		t.Fatalf("settings: %v", err)
	}
	orders := newFakeOrderService(db, ForwardPolicy, nil)

	_, err := orders.CreateOrder(ctx, CreateOrderRequest{
		BranchID: branch.ID,
		Items:    []CreateOrderItemRequest{{MenuItemID: item.ID.String(), Quantity: 2}},
	})
	assertField(t, err, "total_amount")

	if _, err := orders.CreateOrder(ctx, CreateOrderRequest{
		BranchID: branch.ID,
		Items:    []CreateOrderItemRequest{{MenuItemID: item.ID.String(), Quantity: 3}},
	}); err != nil {
		t.Fatalf("order above minimum: %v", err)
	}
}
