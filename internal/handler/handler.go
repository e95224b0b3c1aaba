// Package handler provides the HTTP and MCP surface for the storefront
// order service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"rbn-storefront/internal/cache"
	"rbn-storefront/internal/gateway"
	"rbn-storefront/internal/model"
	"rbn-storefront/internal/reconcile"
)

// Gateway is the backend client surface the handlers need. Satisfied by
// *gateway.Client; faked in tests.
type Gateway interface {
	VerifyPayment(ctx context.Context, reference string) (bool, error)
	Create(ctx context.Context, order *model.Order) (*model.Order, error)
	SendOrderEmail(ctx context.Context, order *model.Order, kind gateway.EmailKind) error
	List(ctx context.Context) ([]model.Order, error)
	UpdateStatus(ctx context.Context, id string, status model.OrderStatus, trackingNumber string) (*model.Order, error)
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	gateway Gateway
	orders  *cache.Orders
	sync    *reconcile.Synchronizer
	logger  *slog.Logger
}

// New creates a Handler.
func New(gw Gateway, orders *cache.Orders, sync *reconcile.Synchronizer, logger *slog.Logger) *Handler {
	return &Handler{
		gateway: gw,
		orders:  orders,
		sync:    sync,
		logger:  logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /checkout/confirm", h.handleConfirmCheckout)

	mux.HandleFunc("GET /orders", h.handleListOrders)
	mux.HandleFunc("POST /orders/sync", h.handleSyncOrders)

	// Admin surface. Note: no auth anywhere in this system - the bearer
	// key on the backend side is public and shared. Matches the
	// storefront this service backs; do not mistake it for protection.
	mux.HandleFunc("PUT /admin/orders/{id}", h.handleAdminUpdateOrder)

	// MCP transport - JSON-RPC endpoint for agent-driven checkout
	mux.Handle("/mcp", h.NewMCPHandler())

	mux.HandleFunc("GET /healthz", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// === Response helpers ===

// MaxRequestBodySize limits JSON request bodies to 1MB.
const MaxRequestBodySize = 1 << 20

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from the
// APIError chain when present.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewInternalError(err)
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{Code: apiErr.Code, Message: apiErr.Message},
	})
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeJSON reads the request body into v, bounded by MaxRequestBodySize.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
