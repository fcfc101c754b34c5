package oms

import (
	"context"
	"fmt"
	"testing"

	"github.com/AlexanderTrenkenshu/adaptive-grid-trading-bot/pkg/types"
)

// fakeSource is an in-memory stand-in for the gateway's order surface.
type fakeSource struct {
	open     map[string]types.Order // venue's open orders by id
	statuses map[string]types.Order // answers for GetOrderStatus
	canceled []string
}

func (f *fakeSource) GetOpenOrders(_ context.Context, symbol string) ([]types.Order, error) {
	var orders []types.Order
	for _, o := range f.open {
		if symbol == "" || o.Symbol == symbol {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

func (f *fakeSource) GetOrderStatus(_ context.Context, _, orderID, _ string) (types.Order, error) {
	if o, ok := f.statuses[orderID]; ok {
		return o, nil
	}
	return types.Order{}, fmt.Errorf("order %s not found", orderID)
}

func (f *fakeSource) CancelOrder(_ context.Context, _, orderID, _ string) (types.Order, error) {
	f.canceled = append(f.canceled, orderID)
	o := f.open[orderID]
	o.Status = types.OrderStatusCanceled
	delete(f.open, orderID)
	return o, nil
}

func TestReconcileInsertsStray(t *testing.T) {
	t.Parallel()

	stray := newOrder("777", "c777", types.OrderStatusNew)
	stray.Symbol = "ETH/USDT"
	source := &fakeSource{open: map[string]types.Order{"777": stray}}
	registry := NewRegistry(testLogger())
	rec := NewReconciler(source, registry, testLogger())

	report, err := rec.Reconcile(context.Background(), "")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if report.MissingLocally != 1 {
		t.Errorf("MissingLocally = %d, want 1", report.MissingLocally)
	}
	if report.UpdatesApplied != 1 {
		t.Errorf("UpdatesApplied = %d, want 1", report.UpdatesApplied)
	}
	if _, ok := registry.Get("777"); !ok {
		t.Error("stray order must be inserted into the registry")
	}
}

func TestReconcileResolvesMissingOnExchange(t *testing.T) {
	t.Parallel()

	filled := newOrder("1", "c1", types.OrderStatusFilled)
	source := &fakeSource{
		open:     map[string]types.Order{},
		statuses: map[string]types.Order{"1": filled},
	}
	registry := NewRegistry(testLogger())
	_ = registry.Add(newOrder("1", "c1", types.OrderStatusNew))
	rec := NewReconciler(source, registry, testLogger())

	report, err := rec.Reconcile(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if report.MissingOnExchange != 1 || report.UpdatesApplied != 1 {
		t.Errorf("report = %+v", report)
	}
	got, _ := registry.Get("1")
	if got.Status != types.OrderStatusFilled {
		t.Errorf("Status = %s, want authoritative FILLED", got.Status)
	}
}

func TestReconcileQueryFailureLeavesOrder(t *testing.T) {
	t.Parallel()

	source := &fakeSource{open: map[string]types.Order{}, statuses: map[string]types.Order{}}
	registry := NewRegistry(testLogger())
	_ = registry.Add(newOrder("1", "c1", types.OrderStatusNew))
	rec := NewReconciler(source, registry, testLogger())

	report, err := rec.Reconcile(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if report.UpdatesApplied != 0 {
		t.Errorf("UpdatesApplied = %d, want 0 on status-query failure", report.UpdatesApplied)
	}
	if _, ok := registry.Get("1"); !ok {
		t.Error("order must stay in place when the venue query fails")
	}
}

func TestReconcileOverwritesMismatchedCommon(t *testing.T) {
	t.Parallel()

	venueSide := newOrder("1", "c1", types.OrderStatusPartiallyFilled)
	source := &fakeSource{open: map[string]types.Order{"1": venueSide}}
	registry := NewRegistry(testLogger())
	_ = registry.Add(newOrder("1", "c1", types.OrderStatusNew))
	rec := NewReconciler(source, registry, testLogger())

	report, err := rec.Reconcile(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if report.CommonOrders != 1 || report.UpdatesApplied != 1 {
		t.Errorf("report = %+v", report)
	}
	got, _ := registry.Get("1")
	if got.Status != types.OrderStatusPartiallyFilled {
		t.Errorf("Status = %s, want venue's PARTIALLY_FILLED", got.Status)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	t.Parallel()

	stray := newOrder("777", "c777", types.OrderStatusNew)
	source := &fakeSource{open: map[string]types.Order{"777": stray}}
	registry := NewRegistry(testLogger())
	rec := NewReconciler(source, registry, testLogger())

	if _, err := rec.Reconcile(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	second, err := rec.Reconcile(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if second.UpdatesApplied != 0 {
		t.Errorf("second pass applied %d updates, want 0", second.UpdatesApplied)
	}
}

func TestSyncAllCoversAllSymbols(t *testing.T) {
	t.Parallel()

	btc := newOrder("1", "c1", types.OrderStatusNew)
	eth := newOrder("2", "c2", types.OrderStatusNew)
	eth.Symbol = "ETH/USDT"
	source := &fakeSource{open: map[string]types.Order{"1": btc, "2": eth}}
	registry := NewRegistry(testLogger())
	rec := NewReconciler(source, registry, testLogger())

	report, err := rec.SyncAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.UpdatesApplied != 2 {
		t.Errorf("UpdatesApplied = %d, want 2", report.UpdatesApplied)
	}
}

func TestCancelStrayRequiresConfirmation(t *testing.T) {
	t.Parallel()

	stray := newOrder("666", "c666", types.OrderStatusNew)
	source := &fakeSource{open: map[string]types.Order{"666": stray}}
	registry := NewRegistry(testLogger())
	rec := NewReconciler(source, registry, testLogger())

	if _, err := rec.CancelStray(context.Background(), "", false); err == nil {
		t.Fatal("CancelStray without confirmation must fail")
	}
	if len(source.canceled) != 0 {
		t.Error("nothing may be canceled without confirmation")
	}

	n, err := rec.CancelStray(context.Background(), "", true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(source.canceled) != 1 || source.canceled[0] != "666" {
		t.Errorf("canceled = %v", source.canceled)
	}
}

func TestCancelStraySparesTrackedOrders(t *testing.T) {
	t.Parallel()

	tracked := newOrder("1", "c1", types.OrderStatusNew)
	source := &fakeSource{open: map[string]types.Order{"1": tracked}}
	registry := NewRegistry(testLogger())
	_ = registry.Add(tracked)
	rec := NewReconciler(source, registry, testLogger())

	n, err := rec.CancelStray(context.Background(), "", true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || len(source.canceled) != 0 {
		t.Errorf("tracked order was canceled: %v", source.canceled)
	}
}
