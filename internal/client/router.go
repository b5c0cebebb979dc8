package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/events"
)

// DefaultSubmitTimeout bounds one order submission.
const DefaultSubmitTimeout = 15 * time.Second

// ErrSubmissionInProgress is returned when SubmitOrder is called while another submission is in flight.
var ErrSubmissionInProgress = errors.New("an order submission is already in progress")

type RouterState int

const (
	StateIdle RouterState = iota
	StateSubmitting
	StateConfirmed
	StateFailed
)

func (s RouterState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("RouterState(%d)", int(s))
	}
}

type CartLine struct {
	MenuItemID uuid.UUID
	Name       string
	Quantity   int
	Price      decimal.Decimal
	Note       string
}

// Cart is what the customer is about to order. SubmitOrder never modifies it.
type Cart struct {
	Lines           []CartLine
	Notes           string
	PaymentMethod   string
	DeliveryMethod  string
	DeliveryAddress string
}

// Total is the sum of price times quantity over every line.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

type Customer struct {
	Name  string
	Phone string
	Email string
}

// Confirmation is the server's acknowledgement of a submitted order.
type Confirmation struct {
	OrderID     uuid.UUID
	OrderNumber string
	Status      string
	Total       decimal.Decimal
}

type SubmissionKind string

const (
	KindValidation SubmissionKind = "validation"
	KindRejected   SubmissionKind = "rejected"
	KindTransport  SubmissionKind = "transport"
	KindTimeout    SubmissionKind = "timeout"
	KindServer     SubmissionKind = "server"
)

// SubmissionError describes why an order did not reach a confirmed state.
// Status is the HTTP status, zero when no response arrived.
type SubmissionError struct {
	Kind      SubmissionKind
	Status    int
	Message   string
	Fields    map[string]string
	Retryable bool
	Err       error
}

func (e *SubmissionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("order submission %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("order submission %s: %s", e.Kind, e.Message)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// OrderCreator submits orders.
// Satisfied by *API; narrow interface for testability.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}

// Router sends carts to the branch bound in the session.
type Router struct {
	orders  OrderCreator
	session *Session
	bus     *events.Bus
	timeout time.Duration
	log     *zap.Logger

	mu    sync.Mutex
	state RouterState
	last  *Confirmation
}

type RouterOption func(*Router)

// WithSubmitTimeout overrides DefaultSubmitTimeout.
func WithSubmitTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRouter creates a router. bus may be nil.
func NewRouter(orders OrderCreator, session *Session, bus *events.Bus, log *zap.Logger, opts ...RouterOption) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		orders:  orders,
		session: session,
		bus:     bus,
		timeout: DefaultSubmitTimeout,
		log:     log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) State() RouterState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastConfirmation returns the most recent confirmation, nil before the first.
func (r *Router) LastConfirmation() *Confirmation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Reset returns the router to idle unless a submission is in flight.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateSubmitting {
		r.state = StateIdle
	}
}

// SubmitOrder sends cart to the bound branch. A failed submission may still
// have been stored server side; callers that retry can create a duplicate.
func (r *Router) SubmitOrder(ctx context.Context, cart Cart, customer Customer) (*Confirmation, error) {
	st := r.session.State()
	if st.BranchID == uuid.Nil {
		return nil, ErrNoBranchSelected
	}

	r.mu.Lock()
	if r.state == StateSubmitting {
		r.mu.Unlock()
		return nil, ErrSubmissionInProgress
	}
	r.state = StateSubmitting
	r.mu.Unlock()

	req := buildOrderRequest(st, cart, customer)
	r.publish(ctx, events.Event{
		Type:     events.OrderSubmitted,
		BranchID: st.BranchID,
		Message:  fmt.Sprintf("%d items, total %s", len(req.Items), req.TotalAmount.StringFixed(2)),
	})

	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	order, err := r.orders.CreateOrder(sctx, req)
	if err != nil {
		subErr := classify(err)
		r.finish(StateFailed, nil)
		r.log.Warn("order submission failed",
			zap.String("branch_id", st.BranchID.String()),
			zap.String("kind", string(subErr.Kind)),
			zap.Int("status", subErr.Status),
			zap.Error(err),
		)
		r.publish(ctx, events.Event{
			Type:     events.OrderSubmissionFailed,
			BranchID: st.BranchID,
			Message:  subErr.Error(),
		})
		return nil, subErr
	}

	conf := &Confirmation{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Total:       order.TotalAmount,
	}
	r.finish(StateConfirmed, conf)
	r.log.Info("order confirmed",
		zap.String("branch_id", st.BranchID.String()),
		zap.String("order_number", conf.OrderNumber),
	)
	r.publish(ctx, events.Event{
		Type:     events.OrderConfirmed,
		BranchID: st.BranchID,
		Order: &events.OrderPayload{
			ID:           order.ID,
			BranchID:     st.BranchID,
			OrderNumber:  order.OrderNumber,
			Status:       order.Status,
			TotalAmount:  order.TotalAmount.StringFixed(2),
			CustomerName: customer.Name,
			DeviceID:     st.DeviceID,
			ItemCount:    len(req.Items),
			CreatedAt:    order.CreatedAt,
		},
	})
	return conf, nil
}

func (r *Router) finish(state RouterState, conf *Confirmation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	if conf != nil {
		r.last = conf
	}
}

func (r *Router) publish(ctx context.Context, e events.Event) {
	if r.bus != nil {
		r.bus.Publish(ctx, e)
	}
}

func buildOrderRequest(st SessionState, cart Cart, customer Customer) OrderRequest {
	items := make([]OrderItemRequest, len(cart.Lines))
	for i, l := range cart.Lines {
		items[i] = OrderItemRequest{
			MenuItemID: l.MenuItemID,
			Quantity:   l.Quantity,
			Price:      l.Price,
			Note:       l.Note,
		}
	}
	return OrderRequest{
		BranchID:        st.BranchID,
		DeviceID:        st.DeviceID,
		CustomerName:    customer.Name,
		CustomerPhone:   customer.Phone,
		CustomerEmail:   customer.Email,
		TotalAmount:     cart.Total(),
		Items:           items,
		Notes:           cart.Notes,
		PaymentMethod:   cart.PaymentMethod,
		DeliveryMethod:  cart.DeliveryMethod,
		DeliveryAddress: cart.DeliveryAddress,
	}
}

// classify maps a CreateOrder failure onto a SubmissionError.
func classify(err error) *SubmissionError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		se := &SubmissionError{
			Status:  apiErr.Status,
			Message: apiErr.Message,
			Fields:  apiErr.Fields,
			Err:     err,
		}
		switch {
		case apiErr.Status == http.StatusBadRequest, apiErr.Status == http.StatusNotFound:
			se.Kind = KindValidation
		case apiErr.Status == http.StatusConflict:
			se.Kind = KindRejected
			se.Retryable = true
		case apiErr.Status == http.StatusUnauthorized, apiErr.Status == http.StatusForbidden:
			se.Kind = KindRejected
		case apiErr.Status >= 500:
			se.Kind = KindServer
			se.Retryable = true
		default:
			se.Kind = KindRejected
		}
		return se
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &SubmissionError{Kind: KindTimeout, Message: "the branch did not answer in time", Retryable: true, Err: err}
	}
	return &SubmissionError{Kind: KindTransport, Message: err.Error(), Retryable: !errors.Is(err, context.Canceled), Err: err}
}
