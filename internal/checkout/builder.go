// Package checkout assembles orders from cart contents and drives the
// payment confirmation flow for a single checkout attempt.
package checkout

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"rbn-storefront/internal/cart"
	"rbn-storefront/internal/model"
)

// deliveryFee is the current shipping policy: no charge is applied at order
// time. Shipping estimates shown during checkout are display-only and are
// never added to the actual total.
const deliveryFee int64 = 0

// Form holds the checkout contact and address fields as submitted.
type Form struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
}

// BuildOrder turns cart lines plus the checkout form into an order payload,
// independent of payment outcome. The order is not yet submitted anywhere.
//
// Totals invariant: Subtotal = Σ(price × quantity), Total = Subtotal +
// deliveryFee, all in minor units. The backend does not re-check this.
//
// Missing required fields (name, email, phone, and address+state when the
// delivery method is "delivery") fail with a validation error listing every
// missing field; the flow must not reach the payment widget in that case.
func BuildOrder(items []cart.LineItem, form Form, method model.DeliveryMethod, now time.Time) (*model.Order, error) {
	if len(items) == 0 {
		return nil, model.NewValidationError("cart", "cart is empty")
	}
	if method != model.DeliveryMethodDelivery && method != model.DeliveryMethodPickup {
		return nil, model.NewValidationError("deliveryMethod", fmt.Sprintf("unknown method %q", method))
	}
	if missing := missingFields(form, method); len(missing) > 0 {
		return nil, model.NewMissingFieldsError(missing)
	}

	order := &model.Order{
		Customer: model.Customer{
			Name:  strings.TrimSpace(form.Name),
			Email: strings.TrimSpace(form.Email),
			Phone: strings.TrimSpace(form.Phone),
		},
		Items:          make([]model.OrderItem, 0, len(items)),
		DeliveryFee:    deliveryFee,
		Status:         model.StatusPending,
		DeliveryMethod: method,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if method == model.DeliveryMethodDelivery {
		order.ShippingAddress = &model.ShippingAddress{
			Address: strings.TrimSpace(form.Address),
			City:    strings.TrimSpace(form.City),
			State:   strings.TrimSpace(form.State),
		}
	}

	var subtotal int64
	for _, line := range items {
		// Denormalized snapshot: the order records what was bought at
		// the price it was bought for, regardless of later catalog edits.
		order.Items = append(order.Items, model.OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Image:     line.Image,
			Size:      line.Size,
			Color:     line.Color,
			Price:     line.Price,
			Quantity:  line.Quantity,
		})
		subtotal += line.Price * int64(line.Quantity)
	}
	order.Subtotal = subtotal
	order.Total = subtotal + order.DeliveryFee

	order.AppendTimeline(model.StatusPending, now, "Order placed")
	return order, nil
}

// missingFields returns the names of required form fields that are empty.
func missingFields(form Form, method model.DeliveryMethod) []string {
	var missing []string
	if strings.TrimSpace(form.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(form.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(form.Phone) == "" {
		missing = append(missing, "phone")
	}
	if method == model.DeliveryMethodDelivery {
		if strings.TrimSpace(form.Address) == "" {
			missing = append(missing, "address")
		}
		if strings.TrimSpace(form.State) == "" {
			missing = append(missing, "state")
		}
	}
	return missing
}

// NewPaymentReference generates a client-side payment reference for one
// checkout attempt. The reference doubles as the create idempotency key, so
// it must be minted exactly once per purchase, before the widget opens.
func NewPaymentReference(now time.Time) string {
	return fmt.Sprintf("RBN-%d-%s", now.Unix(), uuid.NewString()[:8])
}

// newLocalOrderID generates the id for an order that exists only in the
// local cache. The prefix distinguishes it from server-assigned ids.
func newLocalOrderID() string {
	return model.LocalIDPrefix + uuid.NewString()[:13]
}
