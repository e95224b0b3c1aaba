package checkout

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"rbn-storefront/internal/cache"
	"rbn-storefront/internal/cart"
	"rbn-storefront/internal/gateway"
	"rbn-storefront/internal/model"
)

// fakeGateway scripts the backend's behavior for one flow run.
type fakeGateway struct {
	verifyOK  bool
	verifyErr error

	createOrder *model.Order
	createErr   error
	createCalls int

	emails chan gateway.EmailKind
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		verifyOK: true,
		emails:   make(chan gateway.EmailKind, 4),
	}
}

func (g *fakeGateway) VerifyPayment(ctx context.Context, reference string) (bool, error) {
	return g.verifyOK, g.verifyErr
}

func (g *fakeGateway) Create(ctx context.Context, order *model.Order) (*model.Order, error) {
	g.createCalls++
	if g.createErr != nil {
		return nil, g.createErr
	}
	created := *order
	if g.createOrder != nil {
		created.ID = g.createOrder.ID
		created.Status = g.createOrder.Status
	}
	return &created, nil
}

func (g *fakeGateway) SendOrderEmail(ctx context.Context, order *model.Order, kind gateway.EmailKind) error {
	g.emails <- kind
	return nil
}

// approvingWidget reports success with the charge's own reference.
type approvingWidget struct{}

func (approvingWidget) Open(ctx context.Context, charge Charge) (WidgetResult, error) {
	return WidgetResult{Completed: true, Reference: charge.Reference}, nil
}

// closingWidget simulates the customer closing the widget unpaid.
type closingWidget struct{}

func (closingWidget) Open(ctx context.Context, charge Charge) (WidgetResult, error) {
	return WidgetResult{Completed: false}, nil
}

func flowContext(gw Gateway, widget PaymentWidget) (*Context, *cache.Orders) {
	orders := cache.NewOrders(cache.NewMemory(), quietLogger())
	c := cart.New()
	c.Add(cart.LineItem{
		VariantKey: cart.VariantKey{ProductID: "1", Size: "M", Color: "Black"},
		Name:       "Oversized Tee",
		Price:      45000,
		Quantity:   2,
	})
	return &Context{
		Cart:        c,
		Form:        validForm(),
		Delivery:    model.DeliveryMethodPickup,
		Widget:      widget,
		Gateway:     gw,
		Cache:       orders,
		Logger:      quietLogger(),
		ResyncDelay: time.Hour, // tests drive ResyncPending directly
		Now:         func() time.Time { return buildTime },
	}, orders
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitEmail(t *testing.T, g *fakeGateway) gateway.EmailKind {
	t.Helper()
	select {
	case kind := <-g.emails:
		return kind
	case <-time.After(2 * time.Second):
		t.Fatal("no email request issued")
		return ""
	}
}

func TestFlowHappyPath(t *testing.T) {
	gw := newFakeGateway()
	gw.createOrder = &model.Order{ID: "ORD-555", Status: model.StatusProcessing}
	oc, orders := flowContext(gw, approvingWidget{})

	outcome, err := Run(context.Background(), oc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if outcome.State != StateComplete {
		t.Fatalf("state = %q, want complete", outcome.State)
	}
	got, ok := orders.Get("ORD-555")
	if !ok {
		t.Fatal("created order not cached")
	}
	if got.Status != model.StatusProcessing {
		t.Errorf("status = %q, want processing", got.Status)
	}
	if got.IsLocalOrder {
		t.Error("success-path order must not carry the local flag")
	}
	if got.Subtotal != 90000 || got.Total != 90000 {
		t.Errorf("totals = %d/%d, want 90000/90000", got.Subtotal, got.Total)
	}
	if !strings.HasPrefix(got.PaymentReference, "RBN-") {
		t.Errorf("payment reference = %q", got.PaymentReference)
	}
	if oc.Cart.Len() != 0 {
		t.Error("cart not cleared after successful checkout")
	}
	if kind := waitEmail(t, gw); kind != gateway.EmailNewOrder {
		t.Errorf("email kind = %q, want new", kind)
	}
}

func TestFlowValidationFailureNeverOpensWidget(t *testing.T) {
	gw := newFakeGateway()
	oc, orders := flowContext(gw, closingWidget{})
	oc.Form = Form{} // nothing filled in

	_, err := Run(context.Background(), oc)
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("error %v should match ErrValidation", err)
	}
	if gw.createCalls != 0 {
		t.Error("create must not run on validation failure")
	}
	if len(orders.All()) != 0 {
		t.Error("no order artifact should exist")
	}
	if oc.Cart.Len() == 0 {
		t.Error("cart must survive a validation failure")
	}
}

func TestFlowWidgetClosedAborts(t *testing.T) {
	gw := newFakeGateway()
	oc, orders := flowContext(gw, closingWidget{})

	outcome, err := Run(context.Background(), oc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.State != StateAborted {
		t.Fatalf("state = %q, want aborted", outcome.State)
	}
	if len(orders.All()) != 0 {
		t.Error("abort must not create an order artifact")
	}
	if oc.Cart.Len() == 0 {
		t.Error("cart must survive an aborted payment")
	}
	if gw.createCalls != 0 {
		t.Error("create must not run after abort")
	}
}

func TestFlowVerificationTimeoutDegrades(t *testing.T) {
	gw := newFakeGateway()
	gw.verifyErr = model.ErrVerificationTimeout
	oc, orders := flowContext(gw, approvingWidget{})

	outcome, err := Run(context.Background(), oc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.State != StateDegradedComplete {
		t.Fatalf("state = %q, want degraded_complete", outcome.State)
	}

	pending := orders.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending orders = %d, want 1", len(pending))
	}
	o := pending[0]
	if o.Status != model.StatusPending {
		t.Errorf("status = %q, want pending", o.Status)
	}
	if !o.IsLocalOrder {
		t.Error("degraded order must carry the local flag")
	}
	if !strings.HasPrefix(o.ID, model.LocalIDPrefix) {
		t.Errorf("id = %q, want %s prefix", o.ID, model.LocalIDPrefix)
	}
	if o.PaymentReference == "" {
		t.Error("degraded order must keep the payment reference")
	}
	if oc.Cart.Len() != 0 {
		t.Error("cart must be cleared - the payment succeeded")
	}
	// Message is reassuring, never failure-flavored.
	if strings.Contains(strings.ToLower(outcome.Message), "fail") {
		t.Errorf("degraded message reads as failure: %q", outcome.Message)
	}
	if kind := waitEmail(t, gw); kind != gateway.EmailDelayedOrder {
		t.Errorf("email kind = %q, want delayed", kind)
	}
}

func TestFlowVerificationNegativeStillDegrades(t *testing.T) {
	// The widget said paid; a definitive "not settled" from verification is
	// still not reported as payment failure.
	gw := newFakeGateway()
	gw.verifyOK = false
	oc, _ := flowContext(gw, approvingWidget{})

	outcome, err := Run(context.Background(), oc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.State != StateDegradedComplete {
		t.Errorf("state = %q, want degraded_complete", outcome.State)
	}
	if gw.createCalls != 0 {
		t.Error("create must not run for an unverified payment")
	}
}

func TestFlowCreateFailureDegrades(t *testing.T) {
	gw := newFakeGateway()
	gw.createErr = model.NewCreateFailure(3, errors.New("timeout"))
	oc, orders := flowContext(gw, approvingWidget{})

	outcome, err := Run(context.Background(), oc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.State != StateDegradedComplete {
		t.Fatalf("state = %q, want degraded_complete", outcome.State)
	}
	if len(orders.Pending()) != 1 {
		t.Error("fallback order not cached as pending")
	}
	if oc.Cart.Len() != 0 {
		t.Error("cart must be cleared even when creation failed")
	}
}

func TestResyncPendingPromotesOrder(t *testing.T) {
	gw := newFakeGateway()
	gw.createOrder = &model.Order{ID: "ORD-900", Status: model.StatusProcessing}
	orders := cache.NewOrders(cache.NewMemory(), quietLogger())

	local := &model.Order{
		ID:               "LOCAL-abc",
		Customer:         model.Customer{Name: "Jane", Email: "jane@x.com", Phone: "0800"},
		Status:           model.StatusPending,
		IsLocalOrder:     true,
		PaymentReference: "RBN-169-abc",
	}
	if err := orders.SavePending(local); err != nil {
		t.Fatalf("SavePending: %v", err)
	}

	ResyncPending(context.Background(), gw, orders, local, quietLogger())

	if len(orders.Pending()) != 0 {
		t.Error("pending entry should be gone after promote")
	}
	got, ok := orders.Get("ORD-900")
	if !ok {
		t.Fatal("committed order missing after resync")
	}
	if got.IsLocalOrder {
		t.Error("promoted order must drop the local flag")
	}
}

func TestResyncPendingLeavesOrderOnFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.createErr = model.NewCreateFailure(3, errors.New("still down"))
	orders := cache.NewOrders(cache.NewMemory(), quietLogger())

	local := &model.Order{ID: "LOCAL-abc", Status: model.StatusPending, IsLocalOrder: true}
	orders.SavePending(local)

	ResyncPending(context.Background(), gw, orders, local, quietLogger())

	if len(orders.Pending()) != 1 {
		t.Error("pending order must survive a failed resync")
	}
}

func TestCallbackWidgetSuccess(t *testing.T) {
	w := CallbackWidget{
		Invoke: func(charge Charge, onSuccess func(string), onClose func()) {
			onSuccess(charge.Reference)
		},
	}
	res, err := w.Open(context.Background(), Charge{Reference: "RBN-1"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !res.Completed || res.Reference != "RBN-1" {
		t.Errorf("result = %+v", res)
	}
}

func TestCallbackWidgetClose(t *testing.T) {
	w := CallbackWidget{
		Invoke: func(charge Charge, onSuccess func(string), onClose func()) {
			onClose()
		},
	}
	res, err := w.Open(context.Background(), Charge{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if res.Completed {
		t.Error("close must not read as completion")
	}
}

func TestCallbackWidgetFirstCallbackWins(t *testing.T) {
	w := CallbackWidget{
		Invoke: func(charge Charge, onSuccess func(string), onClose func()) {
			onSuccess("RBN-first")
			onClose() // late close after success must be ignored
		},
	}
	res, err := w.Open(context.Background(), Charge{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !res.Completed || res.Reference != "RBN-first" {
		t.Errorf("result = %+v, want first callback to win", res)
	}
}
