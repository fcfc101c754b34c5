// reconciler.go defends against drift between the local registry and the
// venue: stray venue orders get inserted, locally-known orders missing on
// the venue get their authoritative status pulled over REST, and status
// mismatches are overwritten with the venue's record.
package oms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/pkg/types"
)

// OrderSource is the slice of the gateway the reconciler needs.
type OrderSource interface {
	GetOpenOrders(ctx context.Context, symbol string) ([]types.Order, error)
	GetOrderStatus(ctx context.Context, symbol, orderID, clientOrderID string) (types.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID, clientOrderID string) (types.Order, error)
}

// Report summarizes one reconciliation pass.
type Report struct {
	TotalExchangeOrders int
	TotalLocalOrders    int
	MissingLocally      int // on venue, unknown locally (strays)
	MissingOnExchange   int // known locally, absent on venue
	CommonOrders        int
	UpdatesApplied      int
}

// Reconciler syncs a registry against a gateway.
type Reconciler struct {
	source   OrderSource
	registry *Registry
	logger   *slog.Logger
}

// NewReconciler wires a reconciler to its order source and registry.
func NewReconciler(source OrderSource, registry *Registry, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		source:   source,
		registry: registry,
		logger:   logger.With("component", "reconciler"),
	}
}

// Reconcile converges the local registry on the venue's open-order view
// for one symbol, or for every symbol when symbol is empty.
func (r *Reconciler) Reconcile(ctx context.Context, symbol string) (Report, error) {
	exchangeOrders, err := r.source.GetOpenOrders(ctx, symbol)
	if err != nil {
		return Report{}, fmt.Errorf("reconcile: %w", err)
	}
	localOrders := r.registry.OpenOrders(symbol)

	exchangeByID := make(map[string]types.Order, len(exchangeOrders))
	for _, o := range exchangeOrders {
		exchangeByID[o.OrderID] = o
	}
	localByID := make(map[string]types.Order, len(localOrders))
	for _, o := range localOrders {
		localByID[o.OrderID] = o
	}

	report := Report{
		TotalExchangeOrders: len(exchangeOrders),
		TotalLocalOrders:    len(localOrders),
	}

	// Strays: on the venue but unknown locally.
	for id, venueOrder := range exchangeByID {
		if _, ok := localByID[id]; ok {
			continue
		}
		report.MissingLocally++
		if err := r.registry.Update(venueOrder); err != nil {
			r.logger.Warn("failed to insert stray order", "order_id", id, "error", err)
			continue
		}
		report.UpdatesApplied++
		r.logger.Info("inserted stray venue order", "order_id", id, "symbol", venueOrder.Symbol)
	}

	// Locally open but absent from the venue's open set: the order reached
	// a terminal state we never saw. Pull the authoritative record.
	for id, localOrder := range localByID {
		if _, ok := exchangeByID[id]; ok {
			continue
		}
		report.MissingOnExchange++
		venueOrder, err := r.source.GetOrderStatus(ctx, localOrder.Symbol, id, "")
		if err != nil {
			r.logger.Warn("failed to fetch missing order status", "order_id", id, "error", err)
			continue
		}
		if venueOrder.Status == localOrder.Status {
			continue
		}
		if err := r.registry.Update(venueOrder); err != nil {
			r.logger.Warn("failed to apply authoritative status", "order_id", id, "error", err)
			continue
		}
		report.UpdatesApplied++
		r.logger.Info("updated order from venue",
			"order_id", id,
			"old_status", localOrder.Status,
			"new_status", venueOrder.Status,
		)
	}

	// Present on both sides: overwrite local when the statuses differ.
	for id, venueOrder := range exchangeByID {
		localOrder, ok := localByID[id]
		if !ok {
			continue
		}
		report.CommonOrders++
		if localOrder.Status == venueOrder.Status {
			continue
		}
		if err := r.registry.Update(venueOrder); err != nil {
			r.logger.Warn("failed to overwrite mismatched order", "order_id", id, "error", err)
			continue
		}
		report.UpdatesApplied++
	}

	return report, nil
}

// SyncAll reconciles every symbol in one pass.
func (r *Reconciler) SyncAll(ctx context.Context) (Report, error) {
	return r.Reconcile(ctx, "")
}

// CancelStray cancels every venue order that is not tracked locally.
// confirm must be true; this is destructive and callers gate it behind an
// explicit operator decision.
func (r *Reconciler) CancelStray(ctx context.Context, symbol string, confirm bool) (int, error) {
	if !confirm {
		return 0, fmt.Errorf("cancel stray requires explicit confirmation")
	}

	exchangeOrders, err := r.source.GetOpenOrders(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("cancel stray: %w", err)
	}

	canceled := 0
	for _, venueOrder := range exchangeOrders {
		if _, ok := r.registry.Get(venueOrder.OrderID); ok {
			continue
		}
		if _, err := r.source.CancelOrder(ctx, venueOrder.Symbol, venueOrder.OrderID, ""); err != nil {
			r.logger.Warn("failed to cancel stray order", "order_id", venueOrder.OrderID, "error", err)
			continue
		}
		canceled++
		r.logger.Warn("canceled stray venue order", "order_id", venueOrder.OrderID, "symbol", venueOrder.Symbol)
	}
	return canceled, nil
}
