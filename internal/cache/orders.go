package cache

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"rbn-storefront/internal/model"
)

// Key prefixes. Committed orders (created server-side or adopted from a
// sync) live under rbn_order_; local fallback orders awaiting a background
// push live under pending_order_.
const (
	CommittedPrefix = "rbn_order_"
	PendingPrefix   = "pending_order_"
)

// Orders wraps a Store with order-shaped accessors. There is no index
// beyond the key prefixes: lookups by email scan every record, which is
// acceptable for a single customer's history.
type Orders struct {
	store  Store
	logger *slog.Logger
}

// NewOrders creates an order cache on top of the given store.
func NewOrders(store Store, logger *slog.Logger) *Orders {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orders{store: store, logger: logger}
}

// Save writes a committed order under rbn_order_<id>, replacing any
// previous copy. Orders are never deleted by the client, only overwritten.
func (c *Orders) Save(o *model.Order) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.store.Set(CommittedPrefix+o.ID, raw)
}

// SavePending writes a local fallback order under pending_order_<id>.
// These are orders whose backend create failed or timed out after payment
// already succeeded; a delayed resync tries to push them later.
func (c *Orders) SavePending(o *model.Order) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.store.Set(PendingPrefix+o.ID, raw)
}

// Promote replaces a pending local order with its committed server copy.
// Called when a background resync finally lands the create: the LOCAL- id
// gives way to the server-assigned one.
func (c *Orders) Promote(localID string, committed *model.Order) error {
	if err := c.Save(committed); err != nil {
		return err
	}
	return c.store.Delete(PendingPrefix + localID)
}

// Get returns the cached order with the given id, checking committed
// records first and pending fallbacks second.
func (c *Orders) Get(id string) (*model.Order, bool) {
	for _, key := range []string{CommittedPrefix + id, PendingPrefix + id} {
		raw, ok := c.store.Get(key)
		if !ok {
			continue
		}
		var o model.Order
		if err := json.Unmarshal(raw, &o); err != nil {
			c.logger.Warn("skipping malformed cached order",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		return &o, true
	}
	return nil, false
}

// All returns every cached order, committed and pending, newest first.
// Malformed records are skipped with a warning; one bad entry never hides
// the rest.
func (c *Orders) All() []model.Order {
	var orders []model.Order
	for _, key := range c.store.Keys() {
		if !strings.HasPrefix(key, CommittedPrefix) && !strings.HasPrefix(key, PendingPrefix) {
			continue
		}
		raw, ok := c.store.Get(key)
		if !ok {
			continue
		}
		var o model.Order
		if err := json.Unmarshal(raw, &o); err != nil {
			c.logger.Warn("skipping malformed cached order",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders
}

// Pending returns the local fallback orders still awaiting a server push.
func (c *Orders) Pending() []model.Order {
	var orders []model.Order
	for _, key := range c.store.Keys() {
		if !strings.HasPrefix(key, PendingPrefix) {
			continue
		}
		raw, ok := c.store.Get(key)
		if !ok {
			continue
		}
		var o model.Order
		if err := json.Unmarshal(raw, &o); err != nil {
			c.logger.Warn("skipping malformed pending order",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		orders = append(orders, o)
	}
	return orders
}

// FindByEmail returns every cached order whose customer email matches,
// case-insensitively. Full scan; see package comment for the scale
// assumption.
func (c *Orders) FindByEmail(email string) []model.Order {
	want := strings.ToLower(strings.TrimSpace(email))
	var out []model.Order
	for _, o := range c.All() {
		if strings.ToLower(o.Customer.Email) == want {
			out = append(out, o)
		}
	}
	return out
}
