// Package cart implements the session-lived shopping cart.
//
// The cart is memory-only and lost when the process (or browser session it
// backs) goes away. That is intentional: persistence starts at order time,
// not cart time.
package cart

import "sync"

// VariantKey is the identity of a cart line. Two additions with the same
// key merge into one line with summed quantity; the same product in a
// different size or color is a distinct line.
type VariantKey struct {
	ProductID string
	Size      string
	Color     string
}

// LineItem is one line in the cart.
type LineItem struct {
	VariantKey
	Name     string
	Image    string
	Price    int64 // minor currency units
	Quantity int
}

// Store holds the cart contents. Safe for concurrent use; the HTTP surface
// may touch a cart from overlapping requests.
type Store struct {
	mu    sync.Mutex
	lines []LineItem
}

// New returns an empty cart.
func New() *Store {
	return &Store{}
}

// Add puts an item in the cart. If a line with the same variant key exists,
// its quantity is incremented by item.Quantity; otherwise the item appends
// as a new line. Existing line order is preserved.
func (s *Store) Add(item LineItem) {
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.lines {
		if s.lines[i].VariantKey == item.VariantKey {
			s.lines[i].Quantity += item.Quantity
			return
		}
	}
	s.lines = append(s.lines, item)
}

// Remove deletes the line with the given variant key, if present.
// Removal is variant-precise: removing the Black/M line leaves the
// Black/L line of the same product untouched.
func (s *Store) Remove(key VariantKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
}

func (s *Store) removeLocked(key VariantKey) {
	for i := range s.lines {
		if s.lines[i].VariantKey == key {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
			return
		}
	}
}

// SetQuantity sets the quantity of an existing line. A quantity of zero or
// less removes the line entirely. Setting quantity on an absent key is a
// no-op rather than an implicit add.
func (s *Store) SetQuantity(key VariantKey, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty <= 0 {
		s.removeLocked(key)
		return
	}
	for i := range s.lines {
		if s.lines[i].VariantKey == key {
			s.lines[i].Quantity = qty
			return
		}
	}
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
}

// Items returns a copy of the cart lines in insertion order.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LineItem, len(s.lines))
	copy(out, s.lines)
	return out
}

// Subtotal returns Σ(price × quantity) across all lines, in minor units.
func (s *Store) Subtotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum int64
	for _, l := range s.lines {
		sum += l.Price * int64(l.Quantity)
	}
	return sum
}

// Len returns the number of distinct lines.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}
