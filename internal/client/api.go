// Package client is the storefront side of order routing: it keeps the
// device session, picks and remembers a branch, and submits orders to it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/geo"
)

// DefaultHTTPTimeout bounds every API call that has no earlier context deadline.
const DefaultHTTPTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response is read for the error message.
const maxErrorBody = 64 << 10

// Branch is an active branch as the storefront sees it.
type Branch struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Address     *string   `json:"address"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
	DeviceID    string    `json:"device_id"`
	IsActive    bool      `json:"is_active"`
	DistanceKm  *float64  `json:"distance_km"`
}

// Location returns the branch coordinates, nil when either is missing.
func (b Branch) Location() *geo.Point {
	return geo.NewPoint(b.Latitude, b.Longitude)
}

type MenuItem struct {
	ID          uuid.UUID       `json:"id"`
	BranchID    uuid.UUID       `json:"branch_id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	ImageURL    *string         `json:"image_url"`
	IsAvailable bool            `json:"is_available"`
}

// Menu is a branch menu grouped by category.
type Menu struct {
	Branch Branch                `json:"branch"`
	Items  map[string][]MenuItem `json:"menu"`
}

type OrderItem struct {
	ID           uuid.UUID       `json:"id"`
	MenuItemID   uuid.UUID       `json:"menu_item_id"`
	MenuItemName string          `json:"menu_item_name"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Note         *string         `json:"note"`
}

type Order struct {
	ID           uuid.UUID       `json:"id"`
	BranchID     uuid.UUID       `json:"branch_id"`
	OrderNumber  string          `json:"order_number"`
	Status       string          `json:"status"`
	CustomerName *string         `json:"customer_name"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	DeviceID     *string         `json:"device_id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Items        []OrderItem     `json:"order_items"`
}

// OrderRequest is the body of POST /storefront/orders.
type OrderRequest struct {
	BranchID        uuid.UUID          `json:"branch_id"`
	DeviceID        string             `json:"device_id,omitempty"`
	CustomerName    string             `json:"customer_name,omitempty"`
	CustomerPhone   string             `json:"customer_phone,omitempty"`
	CustomerEmail   string             `json:"customer_email,omitempty"`
	TotalAmount     decimal.Decimal    `json:"total_amount"`
	Items           []OrderItemRequest `json:"items"`
	Notes           string             `json:"notes,omitempty"`
	PaymentMethod   string             `json:"payment_method,omitempty"`
	DeliveryMethod  string             `json:"delivery_method,omitempty"`
	DeliveryAddress string             `json:"delivery_address,omitempty"`
}

type OrderItemRequest struct {
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Note       string          `json:"note,omitempty"`
}

type Badge struct {
	Label string `json:"label"`
	Tone  string `json:"tone"`
}

type OrderStatus struct {
	OrderNumber string    `json:"order_number"`
	Status      string    `json:"status"`
	Badge       Badge     `json:"badge"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OrderQuery filters a branch order listing. Zero fields are omitted.
type OrderQuery struct {
	Status string
	From   string
	To     string
	Limit  int
	Offset int
}

type OrderStats struct {
	Total       int64            `json:"total"`
	ByStatus    map[string]int64 `json:"by_status"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
}

type OrderPage struct {
	Orders []Order    `json:"orders"`
	Stats  OrderStats `json:"stats"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// API talks to the branchline HTTP API.
type API struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

type Option func(*API)

// WithHTTPClient replaces the default client, e.g. with httptest's.
func WithHTTPClient(c *http.Client) Option {
	return func(a *API) { a.http = c }
}

func WithToken(token string) Option {
	return func(a *API) { a.token = token }
}

func WithLogger(log *zap.Logger) Option {
	return func(a *API) {
		if log != nil {
			a.log = log
		}
	}
}

func NewAPI(baseURL string, opts ...Option) *API {
	a := &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultHTTPTimeout},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ListBranches returns active branches. With a point the server ranks them by distance.
func (a *API) ListBranches(ctx context.Context, search string, at *geo.Point) ([]Branch, error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	if at != nil {
		q.Set("lat", strconv.FormatFloat(at.Lat, 'f', -1, 64))
		q.Set("lon", strconv.FormatFloat(at.Lon, 'f', -1, 64))
	}
	var out []Branch
	if err := a.do(ctx, http.MethodGet, "/storefront/branches", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *API) Menu(ctx context.Context, branchID uuid.UUID) (*Menu, error) {
	var out Menu
	if err := a.do(ctx, http.MethodGet, "/storefront/branches/"+branchID.String()+"/menu", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrder submits req. Non-2xx answers come back as *APIError.
func (a *API) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var out struct {
		Order Order `json:"order"`
	}
	if err := a.do(ctx, http.MethodPost, "/storefront/orders", nil, req, &out); err != nil {
		return nil, err
	}
	return &out.Order, nil
}

func (a *API) OrderStatus(ctx context.Context, orderNumber, lang string) (*OrderStatus, error) {
	q := url.Values{}
	if lang != "" {
		q.Set("lang", lang)
	}
	var out OrderStatus
	if err := a.do(ctx, http.MethodGet, "/storefront/orders/"+url.PathEscape(orderNumber)+"/status", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListOrders needs a staff or admin token.
func (a *API) ListOrders(ctx context.Context, branchID uuid.UUID, f OrderQuery) (*OrderPage, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.From != "" {
		q.Set("from", f.From)
	}
	if f.To != "" {
		q.Set("to", f.To)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	var out OrderPage
	if err := a.do(ctx, http.MethodGet, "/branches/"+branchID.String()+"/orders", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := a.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	start := time.Now()
	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	a.log.Debug("api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}

	var body struct {
		Error   string            `json:"error"`
		Details map[string]string `json:"details"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Fields = body.Details
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
