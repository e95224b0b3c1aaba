// Package model defines the core order domain types shared by the cart,
// checkout, gateway, cache, and reconcile packages.
package model

import "time"

// DeliveryMethod selects how an order is fulfilled.
type DeliveryMethod string

const (
	DeliveryMethodDelivery DeliveryMethod = "delivery"
	DeliveryMethodPickup   DeliveryMethod = "pickup"
)

// Customer identifies the buyer on an order.
// Email is the sole correlation key for "my orders" lookups: there is no
// authentication in this system, so anyone who knows an email can view the
// orders associated with it. Deliberate simplification carried over from the
// storefront; do not treat Email as a verified identity.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// ShippingAddress is present only when DeliveryMethod is "delivery".
type ShippingAddress struct {
	Address string `json:"address"`
	City    string `json:"city,omitempty"`
	State   string `json:"state"`
}

// OrderItem is a denormalized line item copied from the cart at order time.
// It is a snapshot, not a live reference to a catalog product: later catalog
// edits never change what an existing order says was bought.
type OrderItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Price     int64  `json:"price"` // minor currency units (kobo)
	Quantity  int    `json:"quantity"`
}

// TimelineEntry is one step in an order's human-readable audit trail.
// The timeline is append-only but not guaranteed complete: some transitions
// (notably server-side admin updates between syncs) do not append.
type TimelineEntry struct {
	Status      OrderStatus `json:"status"`
	Timestamp   time.Time   `json:"timestamp"`
	Description string      `json:"description"`
}

// Order is the central entity of the subsystem.
//
// All money fields are in minor currency units. Total must equal
// Subtotal + DeliveryFee at creation time; the builder enforces this, the
// backend does not.
type Order struct {
	// ID is server-assigned on a successful create, or client-generated
	// with the "LOCAL-" prefix when the order exists only in the local
	// cache (offline / timeout fallback).
	ID string `json:"id"`

	Customer        Customer         `json:"customer"`
	Items           []OrderItem      `json:"items"`
	Subtotal        int64            `json:"subtotal"`
	DeliveryFee     int64            `json:"deliveryFee"`
	Total           int64            `json:"total"`
	Status          OrderStatus      `json:"status"`
	DeliveryMethod  DeliveryMethod   `json:"deliveryMethod"`
	ShippingAddress *ShippingAddress `json:"shippingAddress,omitempty"`

	// Payment fields are set once, after the payment widget reports
	// success. PaymentStatus reflects the widget's view, not a settled
	// ledger entry.
	PaymentReference string `json:"paymentReference,omitempty"`
	PaymentStatus    string `json:"paymentStatus,omitempty"`
	PaymentMethod    string `json:"paymentMethod,omitempty"`

	// TrackingNumber is set at most once, by admin action, after creation.
	TrackingNumber string `json:"trackingNumber,omitempty"`

	Timeline []TimelineEntry `json:"timeline,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Local-only bookkeeping. Never sent to the backend as authoritative
	// state; the reconciler stamps LastSyncedAt after each merge, and
	// IsLocalOrder marks an order whose create call failed or timed out
	// and which therefore exists only in the local cache.
	LastSyncedAt time.Time `json:"lastSyncedAt,omitempty"`
	IsLocalOrder bool      `json:"isLocalOrder,omitempty"`
}

// AppendTimeline adds an entry to the order's audit trail.
// Entries are never removed or reordered.
func (o *Order) AppendTimeline(status OrderStatus, at time.Time, description string) {
	o.Timeline = append(o.Timeline, TimelineEntry{
		Status:      status,
		Timestamp:   at,
		Description: description,
	})
}

// LocalIDPrefix marks client-generated IDs for orders that were committed
// locally because the backend create call failed or timed out.
const LocalIDPrefix = "LOCAL-"
