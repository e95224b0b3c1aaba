package checkout

import "context"

// Charge is the configuration handed to the payment widget. Amount is in
// the smallest currency unit (kobo), which is what Paystack's inline widget
// expects.
type Charge struct {
	Amount    int64
	Currency  string
	Email     string
	Reference string
}

// WidgetResult is the single outcome of one widget invocation.
// Completed=false means the customer closed the widget without paying -
// a cancellation, not an error.
type WidgetResult struct {
	Completed bool
	Reference string
}

// PaymentWidget is the flow's one true external suspension point: the call
// blocks until the widget reports success or close (or ctx ends). The flow
// only consumes the outcome; it never inspects the widget itself.
type PaymentWidget interface {
	Open(ctx context.Context, charge Charge) (WidgetResult, error)
}

// CallbackWidget adapts a callback-style widget (success/close handler
// pair, the shape Paystack's inline JS exposes) into the awaitable
// PaymentWidget contract. Whichever callback fires first decides the
// result; later invocations are ignored.
type CallbackWidget struct {
	// Invoke opens the underlying widget. It must eventually call exactly
	// one of onSuccess (with the confirmed payment reference) or onClose.
	Invoke func(charge Charge, onSuccess func(reference string), onClose func())
}

func (w CallbackWidget) Open(ctx context.Context, charge Charge) (WidgetResult, error) {
	done := make(chan WidgetResult, 1)

	w.Invoke(charge,
		func(reference string) {
			select {
			case done <- WidgetResult{Completed: true, Reference: reference}:
			default:
			}
		},
		func() {
			select {
			case done <- WidgetResult{Completed: false}:
			default:
			}
		},
	)

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return WidgetResult{}, ctx.Err()
	}
}
