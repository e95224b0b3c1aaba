package checkout

import (
	"context"
	"log/slog"
	"time"

	"rbn-storefront/internal/cache"
	"rbn-storefront/internal/cart"
	"rbn-storefront/internal/gateway"
	"rbn-storefront/internal/model"
)

// State is the position of one checkout attempt in the confirmation flow.
//
// Within a single attempt states execute strictly sequentially; no two
// states are ever active at once for the same order.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingWidget       State = "awaiting_widget"
	StateAwaitingVerification State = "awaiting_verification"
	StateCreatingOrder        State = "creating_order"
	StateComplete             State = "complete"
	StateAborted              State = "aborted"
	StateDegradedComplete     State = "degraded_complete"
)

// Gateway is the slice of the backend client the flow needs.
type Gateway interface {
	VerifyPayment(ctx context.Context, reference string) (bool, error)
	Create(ctx context.Context, order *model.Order) (*model.Order, error)
	SendOrderEmail(ctx context.Context, order *model.Order, kind gateway.EmailKind) error
}

// Context carries everything one checkout attempt needs, passed explicitly
// rather than read from ambient state so the flow is testable in isolation.
type Context struct {
	Cart     *cart.Store
	Form     Form
	Delivery model.DeliveryMethod

	Widget  PaymentWidget
	Gateway Gateway
	Cache   *cache.Orders
	Logger  *slog.Logger

	// Currency for the widget charge. Defaults to NGN.
	Currency string

	// ResyncDelay is the wait before the single-shot background attempt
	// to push a local fallback order to the backend. Defaults to 30s.
	ResyncDelay time.Duration

	// Now overrides the clock in tests.
	Now func() time.Time
}

func (oc *Context) now() time.Time {
	if oc.Now != nil {
		return oc.Now()
	}
	return time.Now().UTC()
}

func (oc *Context) logger() *slog.Logger {
	if oc.Logger != nil {
		return oc.Logger
	}
	return slog.Default()
}

// Outcome is the terminal result of one checkout attempt.
type Outcome struct {
	State   State
	Order   *model.Order
	Message string // user-facing; never an error once the widget succeeded
}

// User-facing copy. The degraded message must read as success: by the time
// it shows, the customer has paid.
const (
	msgComplete = "Order confirmed! A confirmation email is on its way."
	msgAborted  = "Payment cancelled. You have not been charged."
	msgDegraded = "Your payment was received and your order is being processed. " +
		"A confirmation email will follow shortly."
)

// Run executes one checkout attempt end to end:
//
//	Idle → AwaitingWidget → AwaitingVerification → CreatingOrder → Complete
//
// with Aborted reachable from AwaitingWidget and DegradedComplete from
// AwaitingVerification or CreatingOrder.
//
// An error is returned only for validation failures, before any payment
// activity. Past the widget's success report every failure degrades to a
// locally cached pending order: telling a paying customer "your order
// failed" because the verification channel hiccuped is judged worse than a
// slightly stale order record.
func Run(ctx context.Context, oc *Context) (*Outcome, error) {
	log := oc.logger()

	// Idle: validate and assemble. Failures here return to the form.
	order, err := BuildOrder(oc.Cart.Items(), oc.Form, oc.Delivery, oc.now())
	if err != nil {
		return nil, err
	}

	// AwaitingWidget: one payment reference per attempt, minted before the
	// widget opens so it can serve as the create idempotency key.
	reference := NewPaymentReference(oc.now())
	charge := Charge{
		Amount:    order.Total, // already in the smallest currency unit
		Currency:  oc.currency(),
		Email:     order.Customer.Email,
		Reference: reference,
	}

	log.Info("opening payment widget",
		slog.String("reference", reference),
		slog.Int64("amount", charge.Amount),
		slog.String("email", charge.Email),
	)

	result, err := oc.Widget.Open(ctx, charge)
	if err != nil || !result.Completed {
		if err != nil {
			log.Warn("payment widget closed without result", slog.String("error", err.Error()))
		}
		return &Outcome{State: StateAborted, Message: msgAborted}, nil
	}
	if result.Reference != "" {
		reference = result.Reference
	}

	order.PaymentReference = reference
	order.PaymentStatus = "paid"
	order.PaymentMethod = "paystack"

	// AwaitingVerification: confirm the reference with the backend. A
	// timeout - or any other verification failure - is a failure of the
	// verification channel, not of the payment, so it degrades instead of
	// erroring.
	verified, err := oc.Gateway.VerifyPayment(ctx, reference)
	if err != nil {
		log.Warn("payment verification unavailable, degrading",
			slog.String("reference", reference),
			slog.String("error", err.Error()),
		)
		return oc.degrade(ctx, order), nil
	}
	if !verified {
		// The widget said paid, the backend says not yet settled. Keep
		// the customer's order and let the email/resync path sort it out.
		log.Error("verification disagrees with widget, degrading",
			slog.String("reference", reference),
		)
		return oc.degrade(ctx, order), nil
	}

	// CreatingOrder: submit with retries (inside the gateway).
	created, err := oc.Gateway.Create(ctx, order)
	if err != nil {
		log.Warn("order creation exhausted retries, degrading",
			slog.String("reference", reference),
			slog.String("error", err.Error()),
		)
		return oc.degrade(ctx, order), nil
	}
	if created.ID == "" {
		created.ID = newLocalOrderID()
	}
	if created.Status == "" {
		created.Status = model.StatusProcessing
	}

	if err := oc.Cache.Save(created); err != nil {
		// The order exists server-side; a cache write failure only costs
		// the local copy until the next sync.
		log.Warn("caching created order failed", slog.String("order_id", created.ID), slog.String("error", err.Error()))
	}
	oc.Cart.Clear()

	oc.sendEmail(created, gateway.EmailNewOrder)

	log.Info("checkout complete",
		slog.String("order_id", created.ID),
		slog.String("reference", reference),
	)
	return &Outcome{State: StateComplete, Order: created, Message: msgComplete}, nil
}

// degrade commits the order locally after a post-payment failure: pending
// status, LOCAL- id, IsLocalOrder flag, pending_order_ cache key. The cart
// is cleared regardless - the payment already succeeded, so the cart must
// not imply the purchase didn't happen. A delayed single-shot resync is
// scheduled to push the order to the backend later.
func (oc *Context) degrade(ctx context.Context, order *model.Order) *Outcome {
	log := oc.logger()

	order.ID = newLocalOrderID()
	order.Status = model.StatusPending
	order.IsLocalOrder = true
	order.AppendTimeline(model.StatusPending, oc.now(), "Order recorded; confirmation to follow by email")

	if err := oc.Cache.SavePending(order); err != nil {
		log.Error("caching fallback order failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
	oc.Cart.Clear()

	oc.scheduleResync(order)
	oc.sendEmail(order, gateway.EmailDelayedOrder)

	log.Info("checkout degraded to local order",
		slog.String("order_id", order.ID),
		slog.String("reference", order.PaymentReference),
	)
	return &Outcome{State: StateDegradedComplete, Order: order, Message: msgDegraded}
}

// scheduleResync arranges a delayed, single-shot background attempt to push
// a local fallback order to the backend.
func (oc *Context) scheduleResync(order *model.Order) *time.Timer {
	delay := oc.ResyncDelay
	if delay <= 0 {
		delay = 30 * time.Second
	}
	pending := *order
	return time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		ResyncPending(ctx, oc.Gateway, oc.Cache, &pending, oc.logger())
	})
}

// ResyncPending pushes one local fallback order to the backend. On success
// the pending cache entry is promoted to a committed one under the
// server-assigned id. Failures are logged and left for the next sync; the
// payment reference keeps the eventual create idempotent.
func ResyncPending(ctx context.Context, gw Gateway, orders *cache.Orders, order *model.Order, log *slog.Logger) {
	created, err := gw.Create(ctx, order)
	if err != nil {
		log.Warn("background resync failed, order stays local",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if created.ID == "" {
		created.ID = order.ID
	}
	created.IsLocalOrder = false
	if created.Status == "" {
		created.Status = model.StatusProcessing
	}

	if err := orders.Promote(order.ID, created); err != nil {
		log.Warn("promoting resynced order failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	log.Info("local order pushed to backend",
		slog.String("local_id", order.ID),
		slog.String("order_id", created.ID),
	)
}

// sendEmail issues the confirmation email request fire-and-forget.
func (oc *Context) sendEmail(order *model.Order, kind gateway.EmailKind) {
	log := oc.logger()
	o := *order
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := oc.Gateway.SendOrderEmail(ctx, &o, kind); err != nil {
			log.Warn("order email failed",
				slog.String("order_id", o.ID),
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (oc *Context) currency() string {
	if oc.Currency != "" {
		return oc.Currency
	}
	return "NGN"
}
