// registry.go holds the live order book of the bot itself: every order we
// have submitted or learned about, indexed by venue order id and by client
// order id.
package oms

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/pkg/types"
)

// Callback observes order changes. Callbacks run synchronously on the
// updating goroutine, in registration order; a panic in one is logged and
// the remaining callbacks still run.
type Callback func(types.Order)

// Registry is the dual-index order store.
type Registry struct {
	mu         sync.RWMutex
	byOrderID  map[string]types.Order
	byClientID map[string]string // client order id -> order id
	callbacks  []Callback
	logger     *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byOrderID:  make(map[string]types.Order),
		byClientID: make(map[string]string),
		logger:     logger.With("component", "oms"),
	}
}

// OnUpdate registers a callback for every add and update.
func (r *Registry) OnUpdate(cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Add inserts a new order into both indices and notifies callbacks. It
// fails with ErrAlreadyExists when the order id is present.
func (r *Registry) Add(order types.Order) error {
	r.mu.Lock()
	if _, ok := r.byOrderID[order.OrderID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("order %s: %w", order.OrderID, ErrAlreadyExists)
	}
	r.insertLocked(order)
	r.mu.Unlock()

	r.notify(order)
	return nil
}

// Update applies an authoritative order record. Unknown orders are added;
// known ones must pass the state machine. Equal-status updates reapply
// field values without validation, which makes repeated deliveries of the
// same event idempotent.
func (r *Registry) Update(order types.Order) error {
	r.mu.Lock()
	current, known := r.byOrderID[order.OrderID]
	if !known {
		r.insertLocked(order)
		r.mu.Unlock()
		r.notify(order)
		return nil
	}

	if err := ValidateTransition(current.Status, order.Status); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("order %s: %w", order.OrderID, err)
	}
	r.insertLocked(order)
	r.mu.Unlock()

	r.notify(order)
	return nil
}

// insertLocked writes an order into both indices.
func (r *Registry) insertLocked(order types.Order) {
	r.byOrderID[order.OrderID] = order
	if order.ClientOrderID != "" {
		r.byClientID[order.ClientOrderID] = order.OrderID
	}
}

// Remove drops an order from both indices.
func (r *Registry) Remove(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order, ok := r.byOrderID[orderID]; ok {
		delete(r.byOrderID, orderID)
		delete(r.byClientID, order.ClientOrderID)
	}
}

// Get returns an order by venue order id.
func (r *Registry) Get(orderID string) (types.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.byOrderID[orderID]
	return order.Clone(), ok
}

// GetByClientID returns an order by client order id.
func (r *Registry) GetByClientID(clientID string) (types.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	orderID, ok := r.byClientID[clientID]
	if !ok {
		return types.Order{}, false
	}
	order, ok := r.byOrderID[orderID]
	return order.Clone(), ok
}

// OpenOrders returns orders resting on the book (NEW or PARTIALLY_FILLED),
// optionally filtered by symbol.
func (r *Registry) OpenOrders(symbol string) []types.Order {
	return r.collect(func(o types.Order) bool {
		return o.IsOpen() && (symbol == "" || o.Symbol == symbol)
	})
}

// AllOrders returns every tracked order, optionally filtered by symbol.
func (r *Registry) AllOrders(symbol string) []types.Order {
	return r.collect(func(o types.Order) bool {
		return symbol == "" || o.Symbol == symbol
	})
}

func (r *Registry) collect(keep func(types.Order) bool) []types.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var orders []types.Order
	for _, o := range r.byOrderID {
		if keep(o) {
			orders = append(orders, o.Clone())
		}
	}
	return orders
}

// ClearTerminal drops every terminal order and returns how many were removed.
func (r *Registry) ClearTerminal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, o := range r.byOrderID {
		if o.Status.IsTerminal() {
			delete(r.byOrderID, id)
			delete(r.byClientID, o.ClientOrderID)
			removed++
		}
	}
	return removed
}

// notify dispatches an order copy to every callback, containing panics so
// one bad subscriber cannot starve the rest.
func (r *Registry) notify(order types.Order) {
	r.mu.RLock()
	callbacks := make([]Callback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.RUnlock()

	for _, cb := range callbacks {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("order callback panicked",
						"order_id", order.OrderID,
						"panic", rec,
					)
				}
			}()
			cb(order.Clone())
		}()
	}
}
