package handler_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/branchline/api/internal/apperr"
	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/enum"
	"github.com/branchline/api/internal/handler"
	"github.com/branchline/api/internal/middleware"
	"github.com/branchline/api/internal/service"
)

// --- Mock MenuServicer ---

type mockMenuService struct {
	createFn       func(ctx context.Context, req service.CreateMenuItemRequest) (database.MenuItem, error)
	updateFn       func(ctx context.Context, req service.UpdateMenuItemRequest) (database.MenuItem, error)
	availabilityFn func(ctx context.Context, branchID, id uuid.UUID, available bool) (database.MenuItem, error)
	deleteFn       func(ctx context.Context, branchID, id uuid.UUID) error
	listFn         func(ctx context.Context, branchID uuid.UUID) ([]database.MenuItem, error)
}

func (m *mockMenuService) Create(ctx context.Context, req service.CreateMenuItemRequest) (database.MenuItem, error) {
	return m.createFn(ctx, req)
}

func (m *mockMenuService) Update(ctx context.Context, req service.UpdateMenuItemRequest) (database.MenuItem, error) {
	return m.updateFn(ctx, req)
}

func (m *mockMenuService) SetAvailability(ctx context.Context, branchID, id uuid.UUID, available bool) (database.MenuItem, error) {
	return m.availabilityFn(ctx, branchID, id, available)
}

func (m *mockMenuService) Delete(ctx context.Context, branchID, id uuid.UUID) error {
	return m.deleteFn(ctx, branchID, id)
}

func (m *mockMenuService) ListByBranch(ctx context.Context, branchID uuid.UUID) ([]database.MenuItem, error) {
	return m.listFn(ctx, branchID)
}

func menuRouter(svc handler.MenuServicer) http.Handler {
	h := handler.NewMenuHandler(svc, nil)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testSecret))
	r.Route("/branches/{bid}", func(r chi.Router) {
		r.Use(middleware.RequireBranch)
		r.Route("/menu-items", h.RegisterRoutes)
	})
	return r
}

// --- CRUD ---

func TestCreateMenuItem_NumericPrice(t *testing.T) {
	branchID := uuid.New()
	var got service.CreateMenuItemRequest
	svc := &mockMenuService{
		createFn: func(_ context.Context, req service.CreateMenuItemRequest) (database.MenuItem, error) {
			got = req
			return database.MenuItem{ID: uuid.New(), BranchID: req.BranchID, Name: req.Name,
				Category: req.Category, Price: numeric(t, req.Price), IsAvailable: true}, nil
		},
	}

	rr := sendJSON(t, menuRouter(svc), "POST", "/branches/"+branchID.String()+"/menu-items",
		`{"name": "Kabsa", "price": 42.5, "category": "Mains"}`, tokenFor(t, enum.UserRoleStaff, branchID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if got.BranchID != branchID || got.Price != "42.5" || got.IsAvailable != nil {
		t.Errorf("request: %+v", got)
	}
	if decodeResponse(t, rr)["price"] != "42.50" {
		t.Error("expected price 42.50")
	}
}

func TestCreateMenuItem_ValidationDetails(t *testing.T) {
	branchID := uuid.New()
	svc := &mockMenuService{
		createFn: func(context.Context, service.CreateMenuItemRequest) (database.MenuItem, error) {
			return database.MenuItem{}, apperr.Validation("invalid menu item", map[string]string{"price": "price must be greater than 0"})
		},
	}
	rr := sendJSON(t, menuRouter(svc), "POST", "/branches/"+branchID.String()+"/menu-items",
		map[string]string{"name": "Kabsa", "price": "0"}, tokenFor(t, enum.UserRoleStaff, branchID))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d", rr.Code)
	}
	details := decodeResponse(t, rr)["details"].(map[string]interface{})
	if details["price"] == nil {
		t.Errorf("details: %v", details)
	}
}

func TestListMenuItems_OtherBranchForbidden(t *testing.T) {
	svc := &mockMenuService{
		listFn: func(context.Context, uuid.UUID) ([]database.MenuItem, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	rr := sendJSON(t, menuRouter(svc), "GET", "/branches/"+uuid.NewString()+"/menu-items", nil,
		tokenFor(t, enum.UserRoleStaff, uuid.New()))
	if rr.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want 403", rr.Code)
	}
}

func TestUpdateMenuItem(t *testing.T) {
	branchID, itemID := uuid.New(), uuid.New()
	var got service.UpdateMenuItemRequest
	svc := &mockMenuService{
		updateFn: func(_ context.Context, req service.UpdateMenuItemRequest) (database.MenuItem, error) {
			got = req
			return database.MenuItem{ID: req.ID, BranchID: req.BranchID, Name: "Kabsa", Price: numeric(t, "45")}, nil
		},
	}
	rr := sendJSON(t, menuRouter(svc), "PUT", "/branches/"+branchID.String()+"/menu-items/"+itemID.String(),
		`{"price": "45"}`, tokenFor(t, enum.UserRoleAdmin, uuid.Nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if got.ID != itemID || got.BranchID != branchID || got.Price == nil || *got.Price != "45" || got.Name != nil {
		t.Errorf("request: %+v", got)
	}
}

func TestSetAvailability(t *testing.T) {
	branchID, itemID := uuid.New(), uuid.New()
	svc := &mockMenuService{
		availabilityFn: func(_ context.Context, bid, id uuid.UUID, available bool) (database.MenuItem, error) {
			if bid != branchID || id != itemID || available {
				t.Errorf("args: %v %v %v", bid, id, available)
			}
			return database.MenuItem{ID: id, BranchID: bid, Price: numeric(t, "1")}, nil
		},
	}
	path := "/branches/" + branchID.String() + "/menu-items/" + itemID.String() + "/availability"
	token := tokenFor(t, enum.UserRoleStaff, branchID)

	rr := sendJSON(t, menuRouter(svc), "PATCH", path, map[string]bool{"is_available": false}, token)
	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d", rr.Code)
	}

	rr = sendJSON(t, menuRouter(svc), "PATCH", path, map[string]string{}, token)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing flag: got %d, want 400", rr.Code)
	}
}

func TestDeleteMenuItem(t *testing.T) {
	branchID := uuid.New()
	svc := &mockMenuService{
		deleteFn: func(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
			if id == uuid.Nil {
				return apperr.NotFound("menu item not found")
			}
			return nil
		},
	}
	token := tokenFor(t, enum.UserRoleStaff, branchID)

	rr := sendJSON(t, menuRouter(svc), "DELETE", "/branches/"+branchID.String()+"/menu-items/"+uuid.NewString(), nil, token)
	if rr.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want 204", rr.Code)
	}
	rr = sendJSON(t, menuRouter(svc), "DELETE", "/branches/"+branchID.String()+"/menu-items/"+uuid.Nil.String(), nil, token)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- Import ---

func menuWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, path, filename string, content []byte, token string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestImportMenu_CreatesRowsAndReportsFailures(t *testing.T) {
	branchID := uuid.New()
	var created []service.CreateMenuItemRequest
	svc := &mockMenuService{
		createFn: func(_ context.Context, req service.CreateMenuItemRequest) (database.MenuItem, error) {
			if req.Price == "free" {
				return database.MenuItem{}, apperr.Validation("invalid menu item", map[string]string{"price": "price must be a decimal number"})
			}
			created = append(created, req)
			return database.MenuItem{ID: uuid.New(), BranchID: req.BranchID, Name: req.Name, Price: numeric(t, req.Price)}, nil
		},
	}
	wb := menuWorkbook(t, [][]interface{}{
		{"Name", "Price", "Category", "Description", "Available"},
		{"Kabsa", "42.5", "Mains", "Rice and lamb", "yes"},
		{"Water", "free", "Drinks", "", ""},
		{"Mint Tea", "8", "Drinks", "", "no"},
	})

	rr := httptest.NewRecorder()
	menuRouter(svc).ServeHTTP(rr, uploadRequest(t, "/branches/"+branchID.String()+"/menu-items/import", "menu.xlsx", wb,
		tokenFor(t, enum.UserRoleStaff, branchID)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}

	if len(created) != 2 {
		t.Fatalf("created: got %d", len(created))
	}
	if created[1].IsAvailable == nil || *created[1].IsAvailable {
		t.Errorf("Mint Tea should be unavailable: %+v", created[1])
	}
	resp := decodeResponse(t, rr)
	failed := resp["failed"].([]interface{})
	if len(failed) != 1 {
		t.Fatalf("failed: %v", failed)
	}
	row := failed[0].(map[string]interface{})
	if row["name"] != "Water" || row["line"] != float64(3) {
		t.Errorf("failed row: %v", row)
	}
}

func TestImportMenu_Rejections(t *testing.T) {
	branchID := uuid.New()
	svc := &mockMenuService{
		createFn: func(context.Context, service.CreateMenuItemRequest) (database.MenuItem, error) {
			t.Fatal("service should not be called")
			return database.MenuItem{}, nil
		},
	}
	path := "/branches/" + branchID.String() + "/menu-items/import"
	token := tokenFor(t, enum.UserRoleStaff, branchID)

	tests := []struct {
		name     string
		filename string
		content  []byte
	}{
		{"wrong extension", "menu.csv", []byte("name,price\nKabsa,10\n")},
		{"not a workbook", "menu.xlsx", []byte("plain text")},
		{"empty sheet", "menu.xlsx", menuWorkbook(t, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			menuRouter(svc).ServeHTTP(rr, uploadRequest(t, path, tt.filename, tt.content, token))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rr.Code)
			}
		})
	}
}
