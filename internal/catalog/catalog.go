package catalog

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenRotoCore/internal/molding"
)

var (
	ErrMoldNotFound         = errors.New("mold not found")
	ErrInsufficientQuantity = errors.New("insufficient mold quantity")
	ErrInvalidQuantity      = errors.New("invalid mold quantity")
)

// Catalog is the in-memory mold inventory. Each mold has a stock (the units the shop
// owns, as listed on the sheet) and a reserved count (units taken out, e.g. mounted on
// arms). AvailableQuantity of every returned mold is stock minus reserved, never
// below zero. Arms only ever receive copies of its entries.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

type entry struct {
	mold     molding.Mold
	stock    int
	reserved int
}

func (e *entry) sync() {
	e.mold.AvailableQuantity = max(0, e.stock-e.reserved)
}

func New() *Catalog {
	return &Catalog{
		entries: make(map[string]*entry),
	}
}

// Put inserts or replaces a mold, taking m.AvailableQuantity as its stock. Units
// already reserved stay reserved, so replacing a mold with a new sheet count leaves
// count minus reserved available. Replacing keeps the original listing position.
func (c *Catalog) Put(m molding.Mold) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[m.MoldID]
	if !exists {
		e = &entry{}
		c.entries[m.MoldID] = e
		c.order = append(c.order, m.MoldID)
	}
	e.mold = m
	e.stock = max(0, m.AvailableQuantity)
	e.sync()
}

func (c *Catalog) Get(moldID string) (molding.Mold, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[moldID]
	if !ok {
		return molding.Mold{}, false
	}
	return e.mold, true
}

// Stock returns the listed stock of moldID and how many of its units are reserved.
func (c *Catalog) Stock(moldID string) (stock, reserved int, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[moldID]
	if !ok {
		return 0, 0, false
	}
	return e.stock, e.reserved, true
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// All returns every mold in insertion order.
func (c *Catalog) All() []molding.Mold {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]molding.Mold, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id].mold)
	}
	return out
}

// ByType matches moldType as a case-insensitive substring of each mold's type.
func (c *Catalog) ByType(moldType string) []molding.Mold {
	needle := strings.ToUpper(moldType)

	out := make([]molding.Mold, 0)
	for _, m := range c.All() {
		if strings.Contains(strings.ToUpper(m.MoldType), needle) {
			out = append(out, m)
		}
	}
	return out
}

// Compatible lists molds that ref accepts at tolerance for both temperature and time.
// ref itself is excluded by id.
func (c *Catalog) Compatible(ref molding.Mold, tolerance float64) []molding.Mold {
	out := make([]molding.Mold, 0)
	for _, m := range c.All() {
		if m.MoldID == ref.MoldID {
			continue
		}
		if ref.CheckCompatibilityWithin(m, tolerance, tolerance) {
			out = append(out, m)
		}
	}
	return out
}

// UpdateAvailability takes quantityUsed units of moldID out of the available stock.
func (c *Catalog) UpdateAvailability(moldID string, quantityUsed int) error {
	_, err := c.Reserve(moldID, quantityUsed)
	return err
}

// Reserve takes quantity units of moldID out of stock and returns the updated entry.
func (c *Catalog) Reserve(moldID string, quantity int) (molding.Mold, error) {
	if quantity < 0 {
		return molding.Mold{}, fmt.Errorf("%w: cannot reserve %d of %s", ErrInvalidQuantity, quantity, moldID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[moldID]
	if !ok {
		return molding.Mold{}, fmt.Errorf("%w: %s", ErrMoldNotFound, moldID)
	}
	if e.mold.AvailableQuantity-quantity < 0 {
		return molding.Mold{}, fmt.Errorf("%w: %s has %d, need %d",
			ErrInsufficientQuantity, moldID, e.mold.AvailableQuantity, quantity)
	}

	e.reserved += quantity
	e.sync()
	return e.mold, nil
}

// Release returns quantity reserved units of moldID to stock. Only reserved units
// can come back.
func (c *Catalog) Release(moldID string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("%w: cannot release %d of %s", ErrInvalidQuantity, quantity, moldID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[moldID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMoldNotFound, moldID)
	}
	if quantity > e.reserved {
		return fmt.Errorf("%w: %s has %d reserved, cannot release %d",
			ErrInvalidQuantity, moldID, e.reserved, quantity)
	}

	e.reserved -= quantity
	e.sync()
	return nil
}
