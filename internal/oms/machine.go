// Package oms is the order management system: an in-memory order registry
// driven by a finite-state machine, plus a reconciler that converges the
// local view on the venue's authoritative state.
//
// All mutation flows through the registry's operations; readers get value
// copies. The state machine rejects transitions the venue could never
// produce, which catches out-of-order WebSocket and REST updates racing
// over the same order.
package oms

import (
	"errors"
	"fmt"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/pkg/types"
)

var (
	// ErrInvalidTransition is returned when an update would move an order
	// backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid order state transition")

	// ErrAlreadyExists is returned by Add for a known order id.
	ErrAlreadyExists = errors.New("order already exists")
)

// validTransitions is the full lifecycle graph. Terminal statuses have no
// entry: nothing leaves FILLED, CANCELED, REJECTED, or EXPIRED.
var validTransitions = map[types.OrderStatus]map[types.OrderStatus]bool{
	types.OrderStatusPendingNew: {
		types.OrderStatusNew:      true,
		types.OrderStatusRejected: true,
	},
	types.OrderStatusNew: {
		types.OrderStatusPartiallyFilled: true,
		types.OrderStatusFilled:          true,
		types.OrderStatusPendingCancel:   true,
		types.OrderStatusCanceled:        true,
		types.OrderStatusExpired:         true,
	},
	types.OrderStatusPartiallyFilled: {
		types.OrderStatusFilled:        true,
		types.OrderStatusPendingCancel: true,
		types.OrderStatusCanceled:      true,
	},
	types.OrderStatusPendingCancel: {
		types.OrderStatusCanceled: true,
	},
}

// CanTransition reports whether from → to is a legal move. Self-transitions
// are always allowed; they reapply field values without a state change.
func CanTransition(from, to types.OrderStatus) bool {
	if from == to {
		return true
	}
	return validTransitions[from][to]
}

// ValidateTransition returns ErrInvalidTransition (with context) for an
// illegal move.
func ValidateTransition(from, to types.OrderStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
}
