// Package gateway is a thin HTTP client over the order backend's endpoints:
// order create/update/list, Paystack payment verification, and notification
// email dispatch.
//
// Every call carries a static bearer credential - a public anonymous API
// key, not a secret and not per-user auth. The backend cannot distinguish
// callers beyond what the request body says.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dunglas/httpsfv"
	"github.com/google/uuid"

	"rbn-storefront/internal/model"
)

// Defaults per the storefront's retry policy. Tests shrink these through
// Config; production uses them as-is.
const (
	DefaultCreateAttempts = 3
	DefaultCreateTimeout  = 4 * time.Second
	DefaultBackoffUnit    = 1 * time.Second
	DefaultListTimeout    = 15 * time.Second
	DefaultVerifyTimeout  = 8 * time.Second
)

// Config holds gateway settings.
type Config struct {
	BaseURL string
	APIKey  string // public anonymous bearer key

	// Retry/timeout policy. Zero values take the defaults above.
	CreateAttempts int
	CreateTimeout  time.Duration
	BackoffUnit    time.Duration
	ListTimeout    time.Duration
	VerifyTimeout  time.Duration

	// MinAPIVersion, when set, is compared (semver) against the backend's
	// X-Api-Version response header; an older backend logs a warning once.
	MinAPIVersion string

	// Transport overrides the HTTP transport (tests, or the browser-TLS
	// transport for the CDN-fronted deployment).
	Transport http.RoundTripper
}

// Client is the remote order gateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	createAttempts int
	createTimeout  time.Duration
	backoffUnit    time.Duration
	listTimeout    time.Duration
	verifyTimeout  time.Duration

	minAPIVersion string
	versionWarn   sync.Once

	logger *slog.Logger
}

// New creates a gateway client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		httpClient:     &http.Client{Transport: cfg.Transport},
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		createAttempts: cfg.CreateAttempts,
		createTimeout:  cfg.CreateTimeout,
		backoffUnit:    cfg.BackoffUnit,
		listTimeout:    cfg.ListTimeout,
		verifyTimeout:  cfg.VerifyTimeout,
		minAPIVersion:  cfg.MinAPIVersion,
		logger:         logger,
	}
	if c.createAttempts <= 0 {
		c.createAttempts = DefaultCreateAttempts
	}
	if c.createTimeout <= 0 {
		c.createTimeout = DefaultCreateTimeout
	}
	if c.backoffUnit <= 0 {
		c.backoffUnit = DefaultBackoffUnit
	}
	if c.listTimeout <= 0 {
		c.listTimeout = DefaultListTimeout
	}
	if c.verifyTimeout <= 0 {
		c.verifyTimeout = DefaultVerifyTimeout
	}
	return c, nil
}

// === Orders ===

type orderEnvelope struct {
	Order *model.Order `json:"order"`
}

type ordersEnvelope struct {
	Orders []model.Order `json:"orders"`
}

// Create submits an order to POST /orders. Retried up to the configured
// attempt count with linearly increasing backoff (attempt × backoff unit)
// on any failure, each attempt bounded by its own deadline.
//
// The Idempotency-Key header carries the order's payment reference as an
// RFC 8941 item, so a create that actually landed server-side after a
// client timeout can be recognized as a duplicate by the backend instead
// of minting a second order for the same purchase.
//
// Exhausting retries returns a typed failure matching model.ErrCreateFailed;
// the checkout flow consumes it and degrades rather than surfacing it.
func (c *Client) Create(ctx context.Context, order *model.Order) (*model.Order, error) {
	idemKey, err := idempotencyKey(order)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.createAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * c.backoffUnit
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, model.NewCreateFailure(attempt-1, ctx.Err())
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.createTimeout)
		created, err := c.createOnce(attemptCtx, order, idemKey)
		cancel()
		if err == nil {
			return created, nil
		}
		lastErr = err
		c.logger.Warn("order create attempt failed",
			slog.Int("attempt", attempt),
			slog.String("payment_reference", order.PaymentReference),
			slog.String("error", err.Error()),
		)
	}
	return nil, model.NewCreateFailure(c.createAttempts, lastErr)
}

func (c *Client) createOnce(ctx context.Context, order *model.Order, idemKey string) (*model.Order, error) {
	// The backend assigns the id; never send a client-side one on create.
	payload := *order
	payload.ID = ""

	var env orderEnvelope
	headers := map[string]string{"Idempotency-Key": idemKey}
	if err := c.do(ctx, http.MethodPost, "/orders", payload, headers, &env); err != nil {
		return nil, err
	}
	if env.Order == nil {
		return nil, fmt.Errorf("create response missing order")
	}
	return env.Order, nil
}

// UpdateStatus sets an order's status (and optionally its tracking number)
// via PUT /orders/{id}. Single attempt - this is an admin action with a
// human behind it, not a checkout-critical path.
func (c *Client) UpdateStatus(ctx context.Context, id string, status model.OrderStatus, trackingNumber string) (*model.Order, error) {
	if !model.ValidStatus(status) {
		return nil, model.NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}

	body := struct {
		Status         model.OrderStatus `json:"status"`
		TrackingNumber string            `json:"trackingNumber,omitempty"`
	}{Status: status, TrackingNumber: trackingNumber}

	var updated model.Order
	if err := c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(id), body, nil, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// List fetches every order from GET /orders. The backend does no server-side
// filtering; callers filter by email locally. Single attempt with the list
// timeout.
func (c *Client) List(ctx context.Context) ([]model.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	var env ordersEnvelope
	if err := c.do(ctx, http.MethodGet, "/orders", nil, nil, &env); err != nil {
		return nil, err
	}
	return env.Orders, nil
}

// ListOrEmpty is List for non-critical call sites: any failure, timeout
// included, is logged and reported as no results so the surface can still
// render.
func (c *Client) ListOrEmpty(ctx context.Context) []model.Order {
	orders, err := c.List(ctx)
	if err != nil {
		c.logger.Warn("order list unavailable, treating as empty",
			slog.String("error", err.Error()),
		)
		return nil
	}
	return orders
}

// === Payments ===

// VerifyPayment asks the backend to confirm a payment reference with
// Paystack. Hard deadline: past the verify timeout the call fails with a
// typed timeout error, which the checkout flow treats as "verification
// channel failed", never as "payment failed".
func (c *Client) VerifyPayment(ctx context.Context, reference string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.verifyTimeout)
	defer cancel()

	var resp struct {
		Success bool `json:"success"`
	}
	err := c.do(ctx, http.MethodPost, "/paystack/verify/"+url.PathEscape(reference), nil, nil, &resp)
	if err != nil {
		if isTimeout(err) {
			return false, fmt.Errorf("%w: %v", model.ErrVerificationTimeout, err)
		}
		return false, err
	}
	return resp.Success, nil
}

// FetchPublicKey retrieves the Paystack public key used to configure the
// payment widget.
func (c *Client) FetchPublicKey(ctx context.Context) (string, error) {
	var resp struct {
		PublicKey string `json:"publicKey"`
	}
	if err := c.do(ctx, http.MethodGet, "/paystack/public-key", nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.PublicKey, nil
}

// === Notifications ===

// EmailKind selects the confirmation email template.
type EmailKind string

const (
	EmailNewOrder     EmailKind = "new"     // order created on the success path
	EmailDelayedOrder EmailKind = "delayed" // degraded order, confirmation to follow
)

// SendOrderEmail requests a confirmation email for the order. Callers treat
// this as best-effort: the checkout flow invokes it fire-and-forget and only
// logs failures, never surfaces them.
func (c *Client) SendOrderEmail(ctx context.Context, order *model.Order, kind EmailKind) error {
	body := map[string]any{"order": order}
	switch kind {
	case EmailDelayedOrder:
		body["isDelayedOrder"] = true
	default:
		body["isNewOrder"] = true
	}
	return c.do(ctx, http.MethodPost, "/notifications/send-order-email", body, nil, nil)
}

// === Plumbing ===

// do executes one JSON round trip. Non-2xx responses become upstream errors
// carrying the backend's error message when it sent one.
func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.checkAPIVersion(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.NewUpstreamError(method+" "+path, c.readErrorBody(resp))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// readErrorBody extracts the backend's {error, details} payload when present.
func (c *Client) readErrorBody(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	var body struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		if body.Details != "" {
			return fmt.Errorf("status %d: %s (%s)", resp.StatusCode, body.Error, body.Details)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, body.Error)
	}
	return fmt.Errorf("status %d", resp.StatusCode)
}

// idempotencyKey builds the Idempotency-Key header value for an order
// create. The key is the payment reference - one purchase, one reference,
// one key, stable across retries and the delayed background resync.
// Serialized as an RFC 8941 structured field item.
func idempotencyKey(order *model.Order) (string, error) {
	key := order.PaymentReference
	if key == "" {
		// No payment reference (shouldn't happen after the widget ran);
		// fall back to a random key so retries of this call still dedupe.
		key = uuid.NewString()
	}
	item := httpsfv.NewItem(key)
	v, err := httpsfv.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("building idempotency key: %w", err)
	}
	return v, nil
}

// isTimeout reports whether err is a deadline/timeout failure rather than a
// definitive backend answer.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
