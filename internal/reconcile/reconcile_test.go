package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"rbn-storefront/internal/cache"
	"rbn-storefront/internal/model"
)

var syncTime = time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC)

type fakeLister struct {
	orders []model.Order
	err    error
	calls  int
}

func (f *fakeLister) List(ctx context.Context) ([]model.Order, error) {
	f.calls++
	return f.orders, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newSync(lister *fakeLister) (*Synchronizer, *cache.Orders) {
	orders := cache.NewOrders(cache.NewMemory(), quietLogger())
	return New(lister, orders, quietLogger(), func() time.Time { return syncTime }), orders
}

func localOrder(id string) *model.Order {
	return &model.Order{
		ID:       id,
		Customer: model.Customer{Name: "Jane", Email: "jane@x.com", Phone: "0800"},
		Items: []model.OrderItem{
			{ProductID: "1", Name: "Oversized Tee", Size: "M", Color: "Black", Price: 45000, Quantity: 2},
		},
		Subtotal: 90000,
		Total:    90000,
		Status:   model.StatusProcessing,
	}
}

func TestMergePrecedence(t *testing.T) {
	local := localOrder("ORD-1")
	remote := &model.Order{
		ID:       "ORD-1",
		Customer: model.Customer{Email: "jane@x.com"},
		Items:    nil, // remote omits items entirely
		Status:   model.StatusShipped,
	}

	merged, changed := MergeOrder(local, remote)

	if !changed {
		t.Error("status change should report changed")
	}
	if merged.Status != model.StatusShipped {
		t.Errorf("status = %q, want shipped (remote wins)", merged.Status)
	}
	if len(merged.Items) != 1 || merged.Items[0].Name != "Oversized Tee" {
		t.Errorf("items = %+v, want local items preserved (local wins)", merged.Items)
	}
	if merged.Subtotal != 90000 || merged.Total != 90000 {
		t.Errorf("totals overwritten: %d/%d", merged.Subtotal, merged.Total)
	}
}

func TestMergeTakesTrackingAndTimeline(t *testing.T) {
	local := localOrder("ORD-1")
	remote := &model.Order{
		ID:             "ORD-1",
		Status:         model.StatusShipped,
		TrackingNumber: "TRK-42",
		Timeline: []model.TimelineEntry{
			{Status: model.StatusPending, Timestamp: syncTime.Add(-2 * time.Hour), Description: "Order placed"},
			{Status: model.StatusShipped, Timestamp: syncTime.Add(-time.Hour), Description: "Dispatched"},
		},
		UpdatedAt: syncTime.Add(-time.Hour),
	}

	merged, _ := MergeOrder(local, remote)

	if merged.TrackingNumber != "TRK-42" {
		t.Errorf("tracking = %q, want TRK-42", merged.TrackingNumber)
	}
	if len(merged.Timeline) != 2 {
		t.Errorf("timeline entries = %d, want 2", len(merged.Timeline))
	}
	if !merged.UpdatedAt.Equal(remote.UpdatedAt) {
		t.Errorf("updatedAt = %v, want remote's", merged.UpdatedAt)
	}
}

func TestMergeIdempotent(t *testing.T) {
	local := localOrder("ORD-1")
	remote := &model.Order{
		ID:             "ORD-1",
		Status:         model.StatusShipped,
		TrackingNumber: "TRK-42",
		UpdatedAt:      syncTime,
	}

	once, _ := MergeOrder(local, remote)
	twice, changed := MergeOrder(once, remote)

	if changed {
		t.Error("second merge against the same remote state must report unchanged")
	}
	if twice.Status != once.Status || twice.TrackingNumber != once.TrackingNumber {
		t.Error("second merge mutated fulfillment state")
	}
}

func TestSyncAdoptsUnseenRemoteOrder(t *testing.T) {
	remote := model.Order{
		ID:       "ORD-777",
		Customer: model.Customer{Name: "Jane", Email: "jane@x.com", Phone: "0800"},
		Items: []model.OrderItem{
			{ProductID: "9", Name: "Bucket Hat", Size: "OS", Color: "Olive", Price: 15000, Quantity: 1},
		},
		Subtotal: 15000,
		Total:    15000,
		Status:   model.StatusPending,
	}
	s, orders := newSync(&fakeLister{orders: []model.Order{remote}})

	result := s.Sync(context.Background(), "jane@x.com")

	if result.Adopted != 1 {
		t.Fatalf("adopted = %d, want 1", result.Adopted)
	}
	got, ok := orders.Get("ORD-777")
	if !ok {
		t.Fatal("adopted order not in cache")
	}
	if got.Items[0].Name != "Bucket Hat" || got.Total != 15000 {
		t.Errorf("adopted order fields not copied verbatim: %+v", got)
	}
	if got.LastSyncedAt.IsZero() {
		t.Error("adopted order missing LastSyncedAt stamp")
	}
}

func TestSyncFiltersByEmailCaseInsensitively(t *testing.T) {
	s, orders := newSync(&fakeLister{orders: []model.Order{
		{ID: "ORD-1", Customer: model.Customer{Email: "JANE@X.COM"}, Status: model.StatusPending},
		{ID: "ORD-2", Customer: model.Customer{Email: "someone@else.com"}, Status: model.StatusPending},
	}})

	result := s.Sync(context.Background(), "jane@x.com")

	if result.Adopted != 1 {
		t.Fatalf("adopted = %d, want 1 (only the matching email)", result.Adopted)
	}
	if _, ok := orders.Get("ORD-2"); ok {
		t.Error("foreign customer's order must not be adopted")
	}
}

func TestSyncMergesExistingOrder(t *testing.T) {
	lister := &fakeLister{orders: []model.Order{
		{
			ID:       "ORD-1",
			Customer: model.Customer{Email: "jane@x.com"},
			Status:   model.StatusShipped,
		},
	}}
	s, orders := newSync(lister)
	orders.Save(localOrder("ORD-1"))

	result := s.Sync(context.Background(), "jane@x.com")

	if result.Updated != 1 {
		t.Fatalf("updated = %d, want 1", result.Updated)
	}
	got, _ := orders.Get("ORD-1")
	if got.Status != model.StatusShipped {
		t.Errorf("status = %q, want shipped", got.Status)
	}
	if len(got.Items) != 1 {
		t.Error("local items lost in merge")
	}
}

func TestSyncIdempotentAcrossRuns(t *testing.T) {
	lister := &fakeLister{orders: []model.Order{
		{ID: "ORD-1", Customer: model.Customer{Email: "jane@x.com"}, Status: model.StatusShipped, TrackingNumber: "TRK-1"},
	}}
	s, orders := newSync(lister)
	orders.Save(localOrder("ORD-1"))

	first := s.Sync(context.Background(), "jane@x.com")
	second := s.Sync(context.Background(), "jane@x.com")

	if first.Updated != 1 {
		t.Errorf("first run updated = %d, want 1", first.Updated)
	}
	if second.Updated != 0 || second.Unchanged != 1 {
		t.Errorf("second run = %+v, want unchanged only", second)
	}
}

func TestSyncFailureIsSwallowed(t *testing.T) {
	s, orders := newSync(&fakeLister{err: errors.New("backend down")})
	orders.Save(localOrder("ORD-1"))

	result := s.Sync(context.Background(), "jane@x.com")

	if result.Changed() {
		t.Errorf("result = %+v, want no changes on fetch failure", result)
	}
	if _, ok := orders.Get("ORD-1"); !ok {
		t.Error("local cache must survive a failed sync untouched")
	}
}

func TestSyncSkipsRemoteOrderWithoutID(t *testing.T) {
	s, orders := newSync(&fakeLister{orders: []model.Order{
		{Customer: model.Customer{Email: "jane@x.com"}, Status: model.StatusPending}, // no id
		{ID: "ORD-2", Customer: model.Customer{Email: "jane@x.com"}, Status: model.StatusPending},
	}})

	result := s.Sync(context.Background(), "jane@x.com")

	if result.Adopted != 1 {
		t.Errorf("adopted = %d, want 1 (id-less record skipped, batch continues)", result.Adopted)
	}
	if len(orders.All()) != 1 {
		t.Errorf("cached orders = %d, want 1", len(orders.All()))
	}
}

func TestSyncClearsLocalFlagOnMatchedOrder(t *testing.T) {
	lister := &fakeLister{orders: []model.Order{
		{ID: "LOCAL-abc", Customer: model.Customer{Email: "jane@x.com"}, Status: model.StatusProcessing},
	}}
	s, orders := newSync(lister)

	local := localOrder("LOCAL-abc")
	local.IsLocalOrder = true
	local.Status = model.StatusPending
	orders.Save(local)

	s.Sync(context.Background(), "jane@x.com")

	got, _ := orders.Get("LOCAL-abc")
	if got.IsLocalOrder {
		t.Error("an order the backend returned is no longer local-only")
	}
}
