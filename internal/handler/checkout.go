package handler

import (
	"context"
	"log/slog"
	"net/http"

	"rbn-storefront/internal/cart"
	"rbn-storefront/internal/checkout"
	"rbn-storefront/internal/model"
)

// ConfirmCheckoutRequest is what the storefront posts once the browser-side
// payment widget has finished (successfully or not). The service drives the
// rest of the confirmation flow: verification, creation with retries, local
// caching, degraded fallbacks.
type ConfirmCheckoutRequest struct {
	Items          []ItemInput    `json:"items"`
	Customer       checkout.Form  `json:"customer"`
	DeliveryMethod string         `json:"deliveryMethod"`
	Payment        PaymentOutcome `json:"payment"`
}

// ItemInput is one cart line as the storefront holds it. Price is a decimal
// string in major units ("450.00"); it is converted to minor units exactly
// once, here at the boundary.
type ItemInput struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
}

// PaymentOutcome is the widget result as reported by the browser.
// Completed=false means the customer closed the widget.
type PaymentOutcome struct {
	Reference string `json:"reference"`
	Completed bool   `json:"completed"`
}

// ConfirmCheckoutResponse is the flow outcome handed back to the storefront.
type ConfirmCheckoutResponse struct {
	State   checkout.State `json:"state"`
	Message string         `json:"message"`
	Order   *model.Order   `json:"order,omitempty"`
}

// handleConfirmCheckout drives one checkout attempt.
// POST /checkout/confirm
func (h *Handler) handleConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ConfirmCheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "confirming checkout",
		slog.Int("items", len(req.Items)),
		slog.String("email", req.Customer.Email),
		slog.Bool("widget_completed", req.Payment.Completed),
	)

	store := cart.New()
	for _, item := range req.Items {
		store.Add(cart.LineItem{
			VariantKey: cart.VariantKey{ProductID: item.ProductID, Size: item.Size, Color: item.Color},
			Name:       item.Name,
			Image:      item.Image,
			Price:      model.ParseCents(item.Price),
			Quantity:   item.Quantity,
		})
	}

	oc := &checkout.Context{
		Cart:     store,
		Form:     req.Customer,
		Delivery: model.DeliveryMethod(req.DeliveryMethod),
		Widget:   reportedWidget{outcome: req.Payment},
		Gateway:  h.gateway,
		Cache:    h.orders,
		Logger:   h.logger,
	}

	outcome, err := checkout.Run(ctx, oc)
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if outcome.State == checkout.StateComplete {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, ConfirmCheckoutResponse{
		State:   outcome.State,
		Message: outcome.Message,
		Order:   outcome.Order,
	})
}

// reportedWidget replays a widget outcome the browser already observed.
// The real widget ran client-side; this adapter slots its result into the
// flow's widget boundary so the state machine stays intact.
type reportedWidget struct {
	outcome PaymentOutcome
}

func (w reportedWidget) Open(ctx context.Context, charge checkout.Charge) (checkout.WidgetResult, error) {
	return checkout.WidgetResult{
		Completed: w.outcome.Completed,
		Reference: w.outcome.Reference,
	}, nil
}
