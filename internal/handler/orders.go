package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"rbn-storefront/internal/checkout"
	"rbn-storefront/internal/model"
	"rbn-storefront/internal/reconcile"
)

// handleListOrders returns the local view of a customer's orders, refreshed
// against the backend first. Identity is an unverified email - anyone who
// knows the address sees the orders, exactly like the storefront it backs.
// GET /orders?email=jane@x.com
func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := r.URL.Query().Get("email")
	if email == "" {
		h.writeError(w, model.NewValidationError("email", "email query parameter required"))
		return
	}

	// Best effort: a failed sync leaves the cached view intact and is
	// reported as no changes.
	h.sync.Sync(ctx, email)

	orders := h.orders.FindByEmail(email)
	if orders == nil {
		orders = []model.Order{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// SyncOrdersRequest triggers a manual refresh for a customer email.
type SyncOrdersRequest struct {
	Email string `json:"email"`
}

// SyncOrdersResponse reports what the refresh changed.
type SyncOrdersResponse struct {
	Result reconcile.Result `json:"result"`
	Orders []model.Order    `json:"orders"`
}

// handleSyncOrders is the user-facing refresh action: pull the backend's
// view, merge it in, and push any of the customer's local fallback orders
// that are still awaiting a create.
// POST /orders/sync
func (h *Handler) handleSyncOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SyncOrdersRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Email == "" {
		h.writeError(w, model.NewValidationError("email", "email required"))
		return
	}

	result := h.sync.Sync(ctx, req.Email)

	// Retry stranded fallback orders while we're here. The payment
	// reference doubles as the idempotency key, so a fallback whose
	// original create actually landed server-side dedupes instead of
	// minting a duplicate.
	for _, pending := range h.orders.Pending() {
		pending := pending
		if !strings.EqualFold(pending.Customer.Email, req.Email) {
			continue
		}
		checkout.ResyncPending(ctx, h.gateway, h.orders, &pending, h.logger)
	}

	orders := h.orders.FindByEmail(req.Email)
	if orders == nil {
		orders = []model.Order{}
	}
	h.writeJSON(w, http.StatusOK, SyncOrdersResponse{Result: result, Orders: orders})
}

// AdminUpdateOrderRequest sets fulfillment state on an order.
type AdminUpdateOrderRequest struct {
	Status         model.OrderStatus `json:"status"`
	TrackingNumber string            `json:"trackingNumber,omitempty"`
}

// handleAdminUpdateOrder forwards a status/tracking update to the backend
// and folds the result into the local cache so the change is visible
// without waiting for the next sync.
// PUT /admin/orders/{id}
func (h *Handler) handleAdminUpdateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, model.NewValidationError("id", "order ID required"))
		return
	}

	var req AdminUpdateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "updating order status",
		slog.String("order_id", id),
		slog.String("status", string(req.Status)),
		slog.Bool("has_tracking", req.TrackingNumber != ""),
	)

	updated, err := h.gateway.UpdateStatus(ctx, id, req.Status, req.TrackingNumber)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if local, ok := h.orders.Get(id); ok {
		merged, _ := reconcile.MergeOrder(local, updated)
		if err := h.orders.Save(merged); err != nil {
			h.logger.Warn("caching updated order failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		}
		updated = merged
	}

	h.writeJSON(w, http.StatusOK, updated)
}
