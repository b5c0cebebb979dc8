package service

import (
	"fmt"

	"github.com/branchline/api/internal/apperr"
	"github.com/branchline/api/internal/config"
	"github.com/branchline/api/internal/enum"
)

// TransitionPolicy decides which status edges SetStatus accepts.
// Setting an order to its current status is always a no-op and never reaches the policy.
type TransitionPolicy struct {
	name string
	// edges maps a current status to the statuses it can move to. nil means any edge.
	edges map[enum.OrderStatus][]enum.OrderStatus
}

// strictTransitions only allows the next step, plus cancel before the order is ready.
var strictTransitions = map[enum.OrderStatus][]enum.OrderStatus{
	enum.OrderStatusPending:   {enum.OrderStatusPreparing, enum.OrderStatusCancelled},
	enum.OrderStatusPreparing: {enum.OrderStatusReady, enum.OrderStatusCancelled},
	enum.OrderStatusReady:     {enum.OrderStatusCompleted},
}

// forwardTransitions allows skipping ahead. Nothing moves backwards or out of a terminal state.
var forwardTransitions = map[enum.OrderStatus][]enum.OrderStatus{
	enum.OrderStatusPending: {
		enum.OrderStatusPreparing, enum.OrderStatusReady, enum.OrderStatusCompleted, enum.OrderStatusCancelled,
	},
	enum.OrderStatusPreparing: {enum.OrderStatusReady, enum.OrderStatusCompleted, enum.OrderStatusCancelled},
	enum.OrderStatusReady:     {enum.OrderStatusCompleted},
}

var (
	StrictPolicy     = TransitionPolicy{name: config.PolicyStrict, edges: strictTransitions}
	ForwardPolicy    = TransitionPolicy{name: config.PolicyForward, edges: forwardTransitions}
	PermissivePolicy = TransitionPolicy{name: config.PolicyPermissive}
)

// PolicyFor resolves an ORDER_TRANSITION_POLICY value.
func PolicyFor(name string) (TransitionPolicy, error) {
	switch name {
	case config.PolicyStrict:
		return StrictPolicy, nil
	case config.PolicyForward, "":
		return ForwardPolicy, nil
	case config.PolicyPermissive:
		return PermissivePolicy, nil
	}
	return TransitionPolicy{}, fmt.Errorf("unknown transition policy %q", name)
}

func (p TransitionPolicy) Name() string { return p.name }

// Check returns a validation error when current -> next is not a legal edge.
func (p TransitionPolicy) Check(current, next enum.OrderStatus) error {
	if p.edges == nil {
		return nil
	}
	allowed, ok := p.edges[current]
	if !ok {
		return apperr.Field("status", fmt.Sprintf("cannot transition from %s", current))
	}
	for _, s := range allowed {
		if s == next {
			return nil
		}
	}
	return apperr.Field("status", fmt.Sprintf("cannot transition from %s to %s", current, next))
}
