package client

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultPollInterval matches the dashboard refresh cadence.
const DefaultPollInterval = 30 * time.Second

// OrderLister lists a branch's orders.
// Satisfied by *API; narrow interface for testability.
type OrderLister interface {
	ListOrders(ctx context.Context, branchID uuid.UUID, q OrderQuery) (*OrderPage, error)
}

// Poller re-fetches a branch's orders on an interval and hands each page to OnUpdate.
type Poller struct {
	orders   OrderLister
	branchID uuid.UUID
	query    OrderQuery
	interval time.Duration
	log      *zap.Logger

	// OnUpdate receives every successful page, newest last. Called on the Run goroutine.
	OnUpdate func(*OrderPage)
	// OnError receives failed fetches. Optional.
	OnError func(error)
}

func NewPoller(orders OrderLister, branchID uuid.UUID, q OrderQuery, interval time.Duration, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		orders:   orders,
		branchID: branchID,
		query:    q,
		interval: interval,
		log:      log,
	}
}

// Run fetches immediately and then on every tick until ctx is done.
// Fetches never overlap, and each is bounded by the interval so a slow
// answer cannot hold back a newer one.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.fetch(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.fetch(ctx)
		}
	}
}

func (p *Poller) fetch(ctx context.Context) {
	fctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	page, err := p.orders.ListOrders(fctx, p.branchID, p.query)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Warn("poll orders", zap.String("branch_id", p.branchID.String()), zap.Error(err))
		if p.OnError != nil {
			p.OnError(err)
		}
		return
	}
	if p.OnUpdate != nil {
		p.OnUpdate(page)
	}
}
