// Package cart holds the in-memory shopping cart of a scan session.
package cart

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vbonduro/shopscan/internal/domain"
)

var (
	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be a positive integer", domain.ErrValidation)
	ErrIndexOutOfRange  = fmt.Errorf("%w: cart index out of range", domain.ErrNotFound)
	errMissingItem      = fmt.Errorf("%w: item is required", domain.ErrValidation)
	errNegativeItemCost = fmt.Errorf("%w: item cost must not be negative", domain.ErrValidation)
)

// Entry is a snapshot of an item at the time it was added, plus a quantity.
type Entry struct {
	ItemID   string          `json:"item_id"`
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	Cost     decimal.Decimal `json:"cost"`
	Quantity int             `json:"quantity"`
}

// Subtotal returns Cost * Quantity without rounding.
func (e Entry) Subtotal() decimal.Decimal {
	return e.Cost.Mul(decimal.NewFromInt(int64(e.Quantity)))
}

// Cart is a multiset of items keyed by item ID. Entries keep insertion
// order; adding an item already present increases its quantity.
type Cart struct {
	mu      sync.Mutex
	entries []Entry
}

func New() *Cart {
	return &Cart{}
}

// Add merges qty units of item into the cart and returns the resulting entry.
func (c *Cart) Add(item *domain.Item, qty int) (Entry, error) {
	if item == nil {
		return Entry{}, errMissingItem
	}
	if qty <= 0 {
		return Entry{}, ErrInvalidQuantity
	}
	if item.Cost.IsNegative() {
		return Entry{}, errNegativeItemCost
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		if c.entries[i].ItemID == item.ID {
			c.entries[i].Quantity += qty
			return c.entries[i], nil
		}
	}

	e := Entry{
		ItemID:   item.ID,
		Code:     item.Code,
		Name:     item.Name,
		Cost:     item.Cost,
		Quantity: qty,
	}
	c.entries = append(c.entries, e)
	return e, nil
}

// Remove deletes the entry at index. Later entries shift down by one.
func (c *Cart) Remove(index int) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.entries) {
		return Entry{}, ErrIndexOutOfRange
	}
	removed := c.entries[index]
	c.entries = append(c.entries[:index], c.entries[index+1:]...)
	return removed, nil
}

func (c *Cart) Clear() {
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entries returns a copy of the cart contents in insertion order.
func (c *Cart) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Total is the exact sum of all subtotals.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return total(c.entries)
}

func total(entries []Entry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Subtotal())
	}
	return sum
}
