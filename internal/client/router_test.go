package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/branchline/api/internal/client"
	"github.com/branchline/api/internal/events"
)

type orderCreatorFunc func(ctx context.Context, req client.OrderRequest) (*client.Order, error)

func (f orderCreatorFunc) CreateOrder(ctx context.Context, req client.OrderRequest) (*client.Order, error) {
	return f(ctx, req)
}

func boundSession(t *testing.T) *client.Session {
	t.Helper()
	s, err := client.NewSession(&client.MemoryStore{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetBranch(uuid.New()); err != nil {
		t.Fatal(err)
	}
	if _, err := client.EnsureDeviceID(s, time.Now, fixedRand{}); err != nil {
		t.Fatal(err)
	}
	return s
}

type fixedRand struct{}

func (fixedRand) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(i)
	}
	return len(p), nil
}

func sampleCart() client.Cart {
	return client.Cart{
		Lines: []client.CartLine{
			{MenuItemID: uuid.New(), Name: "Falafel Wrap", Quantity: 2, Price: decimal.RequireFromString("17.50"), Note: "no onions"},
			{MenuItemID: uuid.New(), Name: "Tea", Quantity: 1, Price: decimal.RequireFromString("3.25")},
		},
		Notes: "ring twice",
	}
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func TestRouter_SubmitOverHTTP(t *testing.T) {
	session := boundSession(t)
	var got map[string]any
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		writeJSON(w, http.StatusCreated, map[string]any{"order": map[string]any{
			"id": uuid.NewString(), "order_number": "ORD-000042", "status": "PENDING", "total_amount": "38.25",
		}})
	})

	bus := events.NewBus(nil)
	rec := &recorder{}
	bus.SubscribeAll(rec.handle)

	cart := sampleCart()
	router := client.NewRouter(api, session, bus, nil)
	conf, err := router.SubmitOrder(context.Background(), cart, client.Customer{Name: "Sara", Phone: "0500000000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if conf.OrderNumber != "ORD-000042" || conf.Status != "PENDING" || !conf.Total.Equal(decimal.RequireFromString("38.25")) {
		t.Errorf("confirmation: %+v", conf)
	}
	if router.State() != client.StateConfirmed || router.LastConfirmation() != conf {
		t.Errorf("state: %v", router.State())
	}

	if got["branch_id"] != session.BranchID().String() || got["device_id"] != session.DeviceID() {
		t.Errorf("routing fields: %v / %v", got["branch_id"], got["device_id"])
	}
	if got["total_amount"] != "38.25" || got["customer_name"] != "Sara" || got["notes"] != "ring twice" {
		t.Errorf("body: %v", got)
	}
	items, _ := got["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("items: %v", got["items"])
	}
	first := items[0].(map[string]any)
	if first["quantity"] != float64(2) || first["price"] != "17.5" || first["note"] != "no onions" {
		t.Errorf("first item: %v", first)
	}

	if len(cart.Lines) != 2 || cart.Lines[0].Quantity != 2 || cart.Lines[0].Note != "no onions" {
		t.Errorf("cart was modified: %+v", cart)
	}

	types := rec.types()
	if len(types) != 2 || types[0] != events.OrderSubmitted || types[1] != events.OrderConfirmed {
		t.Errorf("events: %v", types)
	}
	if rec.events[1].Order == nil || rec.events[1].Order.ItemCount != 2 || rec.events[1].Order.TotalAmount != "38.25" {
		t.Errorf("confirmed payload: %+v", rec.events[1].Order)
	}
}

func TestRouter_NoBranch(t *testing.T) {
	session, _ := client.NewSession(&client.MemoryStore{})
	called := false
	router := client.NewRouter(orderCreatorFunc(func(context.Context, client.OrderRequest) (*client.Order, error) {
		called = true
		return nil, nil
	}), session, nil, nil)

	_, err := router.SubmitOrder(context.Background(), sampleCart(), client.Customer{})
	if !errors.Is(err, client.ErrNoBranchSelected) {
		t.Fatalf("expected ErrNoBranchSelected, got %v", err)
	}
	if called || router.State() != client.StateIdle {
		t.Errorf("nothing should be sent, state %v", router.State())
	}
}

func TestRouter_ClassifiesHTTPFailures(t *testing.T) {
	tests := []struct {
		status    int
		kind      client.SubmissionKind
		retryable bool
	}{
		{http.StatusBadRequest, client.KindValidation, false},
		{http.StatusNotFound, client.KindValidation, false},
		{http.StatusUnauthorized, client.KindRejected, false},
		{http.StatusForbidden, client.KindRejected, false},
		{http.StatusConflict, client.KindRejected, true},
		{http.StatusInternalServerError, client.KindServer, true},
		{http.StatusServiceUnavailable, client.KindServer, true},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, map[string]any{
					"error":   "nope",
					"details": map[string]string{"total_amount": "does not match items"},
				})
			})
			bus := events.NewBus(nil)
			rec := &recorder{}
			bus.Subscribe(events.OrderSubmissionFailed, rec.handle)

			router := client.NewRouter(api, boundSession(t), bus, nil)
			_, err := router.SubmitOrder(context.Background(), sampleCart(), client.Customer{})

			var subErr *client.SubmissionError
			if !errors.As(err, &subErr) {
				t.Fatalf("expected *SubmissionError, got %v", err)
			}
			if subErr.Kind != tc.kind || subErr.Retryable != tc.retryable || subErr.Status != tc.status {
				t.Errorf("error: %+v", subErr)
			}
			if subErr.Message != "nope" || subErr.Fields["total_amount"] == "" {
				t.Errorf("server message lost: %+v", subErr)
			}
			if router.State() != client.StateFailed {
				t.Errorf("state: %v", router.State())
			}
			if len(rec.types()) != 1 {
				t.Errorf("expected one failure event, got %v", rec.types())
			}
		})
	}
}

func TestRouter_Timeout(t *testing.T) {
	release := make(chan struct{})
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	router := client.NewRouter(api, boundSession(t), nil, nil, client.WithSubmitTimeout(50*time.Millisecond))
	_, err := router.SubmitOrder(context.Background(), sampleCart(), client.Customer{})

	var subErr *client.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected *SubmissionError, got %v", err)
	}
	if subErr.Kind != client.KindTimeout || !subErr.Retryable || subErr.Status != 0 {
		t.Errorf("error: %+v", subErr)
	}
}

func TestRouter_TransportFailure(t *testing.T) {
	api := client.NewAPI("http://127.0.0.1:1")
	router := client.NewRouter(api, boundSession(t), nil, nil)

	_, err := router.SubmitOrder(context.Background(), sampleCart(), client.Customer{})
	var subErr *client.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected *SubmissionError, got %v", err)
	}
	if subErr.Kind != client.KindTransport || !subErr.Retryable {
		t.Errorf("error: %+v", subErr)
	}
}

func TestRouter_RejectsConcurrentSubmit(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	router := client.NewRouter(orderCreatorFunc(func(ctx context.Context, req client.OrderRequest) (*client.Order, error) {
		close(entered)
		<-release
		return &client.Order{ID: uuid.New(), OrderNumber: "ORD-000001", Status: "PENDING", TotalAmount: req.TotalAmount}, nil
	}), boundSession(t), nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := router.SubmitOrder(context.Background(), sampleCart(), client.Customer{})
		done <- err
	}()
	<-entered

	if router.State() != client.StateSubmitting {
		t.Errorf("state: %v", router.State())
	}
	if _, err := router.SubmitOrder(context.Background(), sampleCart(), client.Customer{}); !errors.Is(err, client.ErrSubmissionInProgress) {
		t.Errorf("second submit: got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	router.Reset()
	if router.State() != client.StateIdle {
		t.Errorf("after reset: %v", router.State())
	}
}

func TestCart_Total(t *testing.T) {
	if got := sampleCart().Total(); !got.Equal(decimal.RequireFromString("38.25")) {
		t.Errorf("total: got %s", got)
	}
	if !(client.Cart{}).Total().IsZero() {
		t.Error("empty cart should total zero")
	}
}
