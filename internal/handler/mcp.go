// MCP transport handler using the official MCP Go SDK. Exposes the
// checkout and order operations as tools so an agent can drive a
// purchase end to end.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"rbn-storefront/internal/cart"
	"rbn-storefront/internal/checkout"
	"rbn-storefront/internal/model"
)

// === MCP Tool Input/Output Types ===

// ConfirmCheckoutToolInput is the input schema for the confirm_checkout tool.
// Mirrors the REST body: the payment block reports what the widget did.
type ConfirmCheckoutToolInput struct {
	Items          []ItemInput    `json:"items" jsonschema:"cart line items,required"`
	Customer       checkout.Form  `json:"customer" jsonschema:"customer contact and shipping details,required"`
	DeliveryMethod string         `json:"deliveryMethod" jsonschema:"delivery or pickup,required"`
	Payment        PaymentOutcome `json:"payment" jsonschema:"payment widget outcome,required"`
}

// ListOrdersToolInput is the input schema for the list_orders tool.
type ListOrdersToolInput struct {
	Email string `json:"email" jsonschema:"customer email,required"`
}

// ListOrdersToolOutput wraps the order list.
type ListOrdersToolOutput struct {
	Orders []model.Order `json:"orders"`
}

// SyncOrdersToolInput is the input schema for the sync_orders tool.
type SyncOrdersToolInput struct {
	Email string `json:"email" jsonschema:"customer email,required"`
}

// NewMCPServer creates an MCP server with the storefront tools registered.
// The server exposes the same operations as the REST API but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "rbn-storefront",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "RBN storefront order operations. " +
				"Use confirm_checkout after the payment widget finishes, " +
				"list_orders to read a customer's orders, and sync_orders to refresh them.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name: "confirm_checkout",
		Description: "Confirm a checkout after the payment widget has finished. " +
			"Verifies the payment and creates the order, falling back to a local record when the backend is unreachable.",
	}, h.mcpConfirmCheckout)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_orders",
		Description: "List a customer's orders, refreshed against the backend.",
	}, h.mcpListOrders)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_orders",
		Description: "Reconcile a customer's cached orders with the backend and retry any stranded local orders.",
	}, h.mcpSyncOrders)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpConfirmCheckout(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ConfirmCheckoutToolInput,
) (*mcp.CallToolResult, *ConfirmCheckoutResponse, error) {
	store := cart.New()
	for _, item := range input.Items {
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
		Form:     input.Customer,
		Delivery: model.DeliveryMethod(input.DeliveryMethod),
		Widget:   reportedWidget{outcome: input.Payment},
		Gateway:  h.gateway,
		Cache:    h.orders,
		Logger:   h.logger,
	}

	outcome, err := checkout.Run(ctx, oc)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	return nil, &ConfirmCheckoutResponse{
		State:   outcome.State,
		Message: outcome.Message,
		Order:   outcome.Order,
	}, nil
}

func (h *Handler) mcpListOrders(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListOrdersToolInput,
) (*mcp.CallToolResult, *ListOrdersToolOutput, error) {
	if input.Email == "" {
		return nil, nil, fmt.Errorf("email is required")
	}

	h.sync.Sync(ctx, input.Email)

	orders := h.orders.FindByEmail(input.Email)
	if orders == nil {
		orders = []model.Order{}
	}
	return nil, &ListOrdersToolOutput{Orders: orders}, nil
}

func (h *Handler) mcpSyncOrders(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SyncOrdersToolInput,
) (*mcp.CallToolResult, *SyncOrdersResponse, error) {
	if input.Email == "" {
		return nil, nil, fmt.Errorf("email is required")
	}

	result := h.sync.Sync(ctx, input.Email)

	for _, pending := range h.orders.Pending() {
		pending := pending
		if !strings.EqualFold(pending.Customer.Email, input.Email) {
			continue
		}
		checkout.ResyncPending(ctx, h.gateway, h.orders, &pending, h.logger)
	}

	orders := h.orders.FindByEmail(input.Email)
	if orders == nil {
		orders = []model.Order{}
	}
	return nil, &SyncOrdersResponse{Result: result, Orders: orders}, nil
}

// mcpError converts errors to MCP-friendly errors without leaking internals.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
