//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/branchline/api/internal/auth"
	"github.com/branchline/api/internal/client"
	"github.com/branchline/api/internal/config"
	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/enum"
	"github.com/branchline/api/internal/events"
	"github.com/branchline/api/internal/router"
	"github.com/branchline/api/internal/ws"
)

const integrationSecret = "integration-test-secret"

// TestIntegrationFlow runs the storefront and staff flows against a real PostgreSQL database.
func TestIntegrationFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()
	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		JWTSecret:             integrationSecret,
		CORSAllowedOrigins:    []string{"*"},
		OrderTransitionPolicy: config.PolicyForward,
	}
	queries := database.New(pool)
	bus := events.NewBus(nil)
	hub := ws.NewHub(nil)
	go hub.Run(ctx)
	defer hub.Subscribe(bus)()

	var created []events.Event
	bus.Subscribe(events.OrderCreated, func(_ context.Context, e events.Event) { created = append(created, e) })

	r, err := router.New(cfg, queries, pool, hub, bus, zap.NewNop())
	if err != nil {
		t.Fatalf("build router: %v", err)
	}
	server := httptest.NewServer(r)
	defer server.Close()

	health := doRequest(t, server, "GET", "/health", "", nil)
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("health: got %d", health.StatusCode)
	}

	// --- 1. Bootstrap users ---
	createUser(t, ctx, queries, "admin@test.com", "password123", enum.UserRoleAdmin)
	storefrontUser := createUser(t, ctx, queries, "storefront@test.com", "unused-secret", enum.UserRoleStorefront)
	adminToken := login(t, server, "admin@test.com", "password123")
	storefrontToken, err := auth.GenerateToken(integrationSecret, storefrontUser.ID, uuid.Nil, enum.UserRoleStorefront)
	if err != nil {
		t.Fatalf("storefront token: %v", err)
	}

	// --- 2. Branches and menu ---
	nakheel := doJSON(t, server, "POST", "/branches", adminToken, map[string]any{
		"name": "النخيل", "device_id": "device_nakheel_main", "latitude": 24.77, "longitude": 46.74,
	}, http.StatusCreated)
	zait := doJSON(t, server, "POST", "/branches", adminToken, map[string]any{
		"name": "الزيت", "device_id": "device_zait_main", "latitude": 24.70, "longitude": 46.60,
	}, http.StatusCreated)
	doJSON(t, server, "POST", "/branches", adminToken, map[string]any{
		"name": "duplicate", "device_id": "device_zait_main",
	}, http.StatusConflict)

	nakheelID := uuid.MustParse(nakheel["id"].(string))
	wrap := doJSON(t, server, "POST", fmt.Sprintf("/branches/%s/menu-items", nakheelID), adminToken, map[string]any{
		"name": "Falafel Wrap", "price": "17.50", "category": "Wraps",
	}, http.StatusCreated)
	wrapID := uuid.MustParse(wrap["id"].(string))

	// --- 3. Storefront: rank, select, submit ---
	api := client.NewAPI(server.URL, client.WithToken(storefrontToken), client.WithHTTPClient(server.Client()))
	session, _ := client.NewSession(&client.MemoryStore{})
	if _, err := client.EnsureDeviceID(session, time.Now, bytes.NewReader([]byte("abcdefg"))); err != nil {
		t.Fatalf("device id: %v", err)
	}
	selector := client.NewSelector(api, client.StaticLocator{}, session, nil)
	ranked, err := selector.ResolveAndRank(ctx)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 active branches, got %d", len(ranked))
	}

	// Search is a literal substring match: LIKE wildcards match nothing here.
	for _, tc := range []struct {
		search string
		want   int
	}{{"نخ", 1}, {"%", 0}, {"_", 0}, {"ال_يت", 0}} {
		found, err := api.ListBranches(ctx, tc.search, nil)
		if err != nil {
			t.Fatalf("search %q: %v", tc.search, err)
		}
		if len(found) != tc.want {
			t.Errorf("storefront search %q: got %d branches, want %d", tc.search, len(found), tc.want)
		}
		admin := doJSONList(t, server, "/branches?search="+url.QueryEscape(tc.search), adminToken)
		if len(admin) != tc.want {
			t.Errorf("admin search %q: got %d branches, want %d", tc.search, len(admin), tc.want)
		}
	}

	if err := selector.Select(nakheelID); err != nil {
		t.Fatalf("select: %v", err)
	}

	menu, err := api.Menu(ctx, nakheelID)
	if err != nil {
		t.Fatalf("menu: %v", err)
	}
	item := menu.Items["Wraps"][0]
	if item.ID != wrapID {
		t.Fatalf("menu item: %+v", item)
	}

	routerClient := client.NewRouter(api, session, bus, nil)
	cart := client.Cart{Lines: []client.CartLine{{MenuItemID: item.ID, Quantity: 2, Price: item.Price, Note: "no onions"}}}
	conf, err := routerClient.SubmitOrder(ctx, cart, client.Customer{Name: "Sara", Phone: "0500000000"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if conf.OrderNumber != "ORD-000001" || conf.Status != string(enum.OrderStatusPending) || !conf.Total.Equal(decimal.NewFromInt(35)) {
		t.Fatalf("confirmation: %+v", conf)
	}
	if len(created) != 1 || created[0].Order.DeviceID != session.DeviceID() {
		t.Errorf("order.created events: %+v", created)
	}

	// Mismatched total is refused and nothing is stored.
	_, err = api.CreateOrder(ctx, client.OrderRequest{
		BranchID:    nakheelID,
		TotalAmount: decimal.NewFromInt(1),
		Items:       []client.OrderItemRequest{{MenuItemID: item.ID, Quantity: 1, Price: item.Price}},
	})
	if apiErr, ok := err.(*client.APIError); !ok || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("mismatched total: got %v", err)
	}

	// Menu item of another branch is refused.
	_, err = api.CreateOrder(ctx, client.OrderRequest{
		BranchID:    uuid.MustParse(zait["id"].(string)),
		TotalAmount: item.Price,
		Items:       []client.OrderItemRequest{{MenuItemID: item.ID, Quantity: 1, Price: item.Price}},
	})
	if err == nil {
		t.Fatal("expected cross-branch item to be rejected")
	}

	// --- 4. Staff: list, advance status, export, report ---
	staffAPI := client.NewAPI(server.URL, client.WithToken(adminToken), client.WithHTTPClient(server.Client()))
	page, err := staffAPI.ListOrders(ctx, nakheelID, client.OrderQuery{})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if page.Stats.Total != 1 || len(page.Orders) != 1 || page.Stats.ByStatus[string(enum.OrderStatusPending)] != 1 {
		t.Fatalf("orders page: %+v", page)
	}

	statusPath := fmt.Sprintf("/orders/%s/status", conf.OrderID)
	doJSON(t, server, "PATCH", statusPath, adminToken, map[string]string{"status": string(enum.OrderStatusPreparing)}, http.StatusOK)
	doJSON(t, server, "PATCH", statusPath, adminToken, map[string]string{"status": string(enum.OrderStatusPending)}, http.StatusBadRequest)

	st, err := api.OrderStatus(ctx, conf.OrderNumber, "en")
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if st.Status != string(enum.OrderStatusPreparing) {
		t.Errorf("status: got %s", st.Status)
	}

	req, _ := http.NewRequest("GET", server.URL+fmt.Sprintf("/branches/%s/orders/export", nakheelID), nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Disposition") == "" {
		t.Errorf("export: status %d, disposition %q", resp.StatusCode, resp.Header.Get("Content-Disposition"))
	}

	sales := doJSONList(t, server, fmt.Sprintf("/branches/%s/reports/daily-sales", nakheelID), adminToken)
	if len(sales) != 1 || sales[0]["order_count"] != float64(1) || sales[0]["total_revenue"] != "35.00" {
		t.Errorf("daily sales: %v", sales)
	}

	// --- 5. Deactivated branch disappears from the storefront ---
	doJSON(t, server, "DELETE", fmt.Sprintf("/branches/%s", nakheelID), adminToken, nil, http.StatusOK)
	if _, err := api.Menu(ctx, nakheelID); !client.IsNotFound(err) {
		t.Errorf("menu of inactive branch: got %v", err)
	}
	if _, err := routerClient.SubmitOrder(ctx, cart, client.Customer{}); err == nil {
		t.Error("expected submission to an inactive branch to fail")
	}
}

// --- Helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("branchline_test"),
		tcpostgres.WithUsername("branchline"),
		tcpostgres.WithPassword("branchline"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
	return connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// go test runs in the package directory.
	m, err := migrate.NewWithDatabaseInstance("file://../../migrations", "postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func createUser(t *testing.T, ctx context.Context, q *database.Queries, email, password, role string) database.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u, err := q.UpsertUser(ctx, database.UpsertUserParams{
		Email:          email,
		HashedPassword: string(hashed),
		FullName:       role + " user",
		Role:           role,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func login(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	resp := doJSON(t, server, "POST", "/auth/login", "", map[string]string{"email": email, "password": password}, http.StatusOK)
	token, _ := resp["access_token"].(string)
	if token == "" {
		t.Fatalf("login: no access token in %v", resp)
	}
	return token
}

func doRequest(t *testing.T, server *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(buf)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, server.URL+path, rd)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func doJSON(t *testing.T, server *httptest.Server, method, path, token string, body any, want int) map[string]any {
	t.Helper()
	resp := doRequest(t, server, method, path, token, body)
	defer resp.Body.Close()

	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d; body: %v", method, path, resp.StatusCode, want, out)
	}
	return out
}

func doJSONList(t *testing.T, server *httptest.Server, path, token string) []map[string]any {
	t.Helper()
	resp := doRequest(t, server, "GET", path, token, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	var out []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return out
}
