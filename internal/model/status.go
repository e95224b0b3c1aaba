package model

// OrderStatus is the fulfillment state of an order.
//
// The backend enforces no transition table: any status can follow any other.
// This matches the storefront's behavior and is kept deliberately permissive
// here - the backend is the sole authority for fulfillment state, and
// rejecting a transition client-side would only desynchronize the two views.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

// ValidStatus reports whether s is one of the known order statuses.
// Used when parsing admin input and remote records; unknown statuses from
// the backend are passed through untouched during sync (the backend wins),
// but are rejected on the admin update path where we originate the value.
func ValidStatus(s OrderStatus) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further fulfillment activity is expected.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}
