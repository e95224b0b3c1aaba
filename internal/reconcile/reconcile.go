// Package reconcile merges the backend's view of a customer's orders into
// the local order cache.
//
// The merge policy is asymmetric: the backend is the sole
// authority for fulfillment state (status, tracking, timeline), while the
// client is the sole authority for what was actually ordered (items,
// totals, customer, addresses). Remote wins for the former, local wins for
// everything else.
package reconcile

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"rbn-storefront/internal/cache"
	"rbn-storefront/internal/model"
)

// Lister is the slice of the gateway the synchronizer needs.
type Lister interface {
	List(ctx context.Context) ([]model.Order, error)
}

// Result summarizes one sync pass. A failed fetch comes back as the zero
// Result: sync is a best-effort enhancement over the cache, so the caller
// only ever sees "nothing changed".
type Result struct {
	Adopted   int // remote orders not previously cached
	Updated   int // cached orders that took remote fulfillment state
	Unchanged int // matched orders with no differences
}

// Changed reports whether the pass touched anything.
func (r Result) Changed() bool {
	return r.Adopted > 0 || r.Updated > 0
}

// Synchronizer pulls remote orders and reconciles them into the cache.
type Synchronizer struct {
	gateway Lister
	orders  *cache.Orders
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a synchronizer. The now func is overridable for tests; nil
// means time.Now.
func New(gw Lister, orders *cache.Orders, logger *slog.Logger, now func() time.Time) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Synchronizer{gateway: gw, orders: orders, logger: logger, now: now}
}

// Sync reconciles the backend's orders for the given customer email into
// the local cache:
//
//  1. Fetch the full order list (the backend has no server-side filter).
//  2. Keep orders whose customer email matches, case-insensitively.
//  3. Merge matches into cached copies; adopt unseen orders wholesale.
//  4. Stamp every touched record with a fresh LastSyncedAt.
//
// Never returns an error: a failed fetch is logged and reported as an
// empty Result, and a single malformed record is skipped without aborting
// the batch. The cache stays usable either way.
func (s *Synchronizer) Sync(ctx context.Context, email string) Result {
	var result Result

	remote, err := s.gateway.List(ctx)
	if err != nil {
		s.logger.Warn("order sync fetch failed, keeping local view",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return result
	}

	want := strings.ToLower(strings.TrimSpace(email))
	now := s.now()

	for i := range remote {
		ro := remote[i]
		if strings.ToLower(ro.Customer.Email) != want {
			continue
		}
		if ro.ID == "" {
			// Unusable without an identity to merge on.
			s.logger.Warn("skipping remote order without id",
				slog.String("email", email),
			)
			continue
		}

		local, ok := s.orders.Get(ro.ID)
		if !ok {
			// Placed on another device or created by an admin: adopt the
			// remote record verbatim.
			adopted := ro
			adopted.IsLocalOrder = false
			adopted.LastSyncedAt = now
			if err := s.orders.Save(&adopted); err != nil {
				s.logger.Warn("adopting remote order failed",
					slog.String("order_id", ro.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			result.Adopted++
			continue
		}

		merged, changed := MergeOrder(local, &ro)
		merged.LastSyncedAt = now
		if err := s.orders.Save(merged); err != nil {
			s.logger.Warn("saving merged order failed",
				slog.String("order_id", ro.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if changed {
			result.Updated++
		} else {
			result.Unchanged++
		}
	}

	s.logger.Info("order sync finished",
		slog.String("email", email),
		slog.Int("adopted", result.Adopted),
		slog.Int("updated", result.Updated),
		slog.Int("unchanged", result.Unchanged),
	)
	return result
}

// MergeOrder applies the field-level merge policy: the local record is the
// base, and only fulfillment state - Status, TrackingNumber, Timeline,
// UpdatedAt - is taken from the remote record. Items, totals, customer and
// payment fields are immutable local truth once created; a remote record
// with empty items never empties the local copy.
//
// Merging is idempotent: applying the same remote state twice changes
// nothing on the second pass.
func MergeOrder(local, remote *model.Order) (*model.Order, bool) {
	merged := *local
	changed := false

	if remote.Status != "" && remote.Status != local.Status {
		merged.Status = remote.Status
		changed = true
	}
	if remote.TrackingNumber != "" && remote.TrackingNumber != local.TrackingNumber {
		merged.TrackingNumber = remote.TrackingNumber
		changed = true
	}
	if len(remote.Timeline) > 0 && !timelinesEqual(local.Timeline, remote.Timeline) {
		// The backend's trail supersedes the local one wholesale; the
		// local copy only ever had the entries the client itself wrote.
		merged.Timeline = append([]model.TimelineEntry(nil), remote.Timeline...)
		changed = true
	}
	if !remote.UpdatedAt.IsZero() && !remote.UpdatedAt.Equal(local.UpdatedAt) {
		merged.UpdatedAt = remote.UpdatedAt
		changed = true
	}

	// A record the backend knows about is no longer local-only, whatever
	// path originally created it.
	if merged.IsLocalOrder {
		merged.IsLocalOrder = false
		changed = true
	}

	return &merged, changed
}

func timelinesEqual(a, b []model.TimelineEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Status != b[i].Status ||
			a[i].Description != b[i].Description ||
			!a[i].Timestamp.Equal(b[i].Timestamp) {
			return false
		}
	}
	return true
}
