// Package cache holds the in-memory authoritative state for instruments,
// orders, positions and accounts. It has a single logical writer (the OMS)
// and any number of concurrent readers; every mutator is atomic with
// respect to readers, so reads never observe a partially-updated aggregate.
package cache

import (
	"errors"
	"sort"
	"sync"

	"main/internal/schema"
)

var (
	ErrUnknownOrder      = errors.New("cache: order not found")
	ErrUnknownInstrument = errors.New("cache: instrument not found")
	ErrUnknownAccount    = errors.New("cache: account not found")
)

// Order is the cache's view of one order. The OMS owns the lifecycle; the
// cache stores the current record and the append-only fill history.
type Order struct {
	Intent      schema.OrderIntent
	Status      schema.OrderStatusCode
	Reason      schema.StatusReason
	FilledQty   schema.Quantity
	Fills       []schema.Fill
	LastSeq     uint64
	AckDeadline int64
	CancelSent  bool
	CreatedAt   int64
	UpdatedAt   int64
}

// Position is the per-(account, instrument) aggregate folded from fills.
type Position struct {
	AccountID    schema.AccountID
	InstrumentID schema.InstrumentID
	NetQty       schema.Quantity
	AvgPrice     schema.Price
	RealizedPnL  schema.Notional
}

// AccountBalance is the mutable balance and margin state per account.
type AccountBalance struct {
	AccountID   schema.AccountID
	VenueID     schema.VenueID
	Balance     schema.Notional
	MarginUsed  schema.Notional
	RealizedPnL schema.Notional
}

type positionKey struct {
	account    schema.AccountID
	instrument schema.InstrumentID
}

// Cache is safe for concurrent reads. Mutators are invoked exclusively by
// the OMS; on the single-threaded backtest path the lock is uncontended.
type Cache struct {
	mu        sync.RWMutex
	registry  *schema.Registry
	orders    map[uint64]*Order
	positions map[positionKey]Position
	accounts  map[schema.AccountID]AccountBalance
}

// New creates a cache seeded with the registry's accounts.
func New(registry *schema.Registry) *Cache {
	c := &Cache{
		registry:  registry,
		orders:    make(map[uint64]*Order),
		positions: make(map[positionKey]Position),
		accounts:  make(map[schema.AccountID]AccountBalance),
	}
	for i := 0; i < registry.AccountCount(); i++ {
		account, ok := registry.AccountAt(i)
		if !ok {
			continue
		}
		c.accounts[account.ID] = AccountBalance{
			AccountID: account.ID,
			VenueID:   account.VenueID,
			Balance:   account.InitialBalance,
		}
	}
	return c
}

// Registry returns the immutable instrument catalog.
func (c *Cache) Registry() *schema.Registry {
	return c.registry
}

// Instrument returns the instrument definition by ID.
func (c *Cache) Instrument(id schema.InstrumentID) (schema.Instrument, bool) {
	return c.registry.Instrument(id)
}

// Order returns a copy of the order record.
func (c *Cache) Order(id uint64) (Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[id]
	if !ok {
		return Order{}, false
	}
	return copyOrder(o), true
}

// Position returns the aggregate for an (account, instrument) pair. A pair
// with no fills yet reads as a zero position.
func (c *Cache) Position(account schema.AccountID, instrument schema.InstrumentID) Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos, ok := c.positions[positionKey{account, instrument}]
	if !ok {
		return Position{AccountID: account, InstrumentID: instrument}
	}
	return pos
}

// Account returns the balance state for an account.
func (c *Cache) Account(id schema.AccountID) (AccountBalance, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	acc, ok := c.accounts[id]
	return acc, ok
}

// AccountNotional returns the aggregate absolute open notional for an
// account across all instruments, used by the risk engine's exposure check.
func (c *Cache) AccountNotional(id schema.AccountID) schema.Notional {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total schema.Notional
	for key, pos := range c.positions {
		if key.account != id {
			continue
		}
		notional := int64(pos.NetQty) * int64(pos.AvgPrice)
		if notional < 0 {
			notional = -notional
		}
		total += schema.Notional(notional)
	}
	return total
}

// OpenOrders returns copies of all non-terminal orders sorted by order ID.
// The sort keeps timeout and expiry scans deterministic in backtests.
func (c *Cache) OpenOrders() []Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Order, 0, len(c.orders))
	for _, o := range c.orders {
		if isTerminal(o.Status) {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Intent.OrderID < out[j].Intent.OrderID
	})
	return out
}

// TerminalOrders returns copies of all terminal orders sorted by order ID.
func (c *Cache) TerminalOrders() []Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Order, 0, len(c.orders))
	for _, o := range c.orders {
		if !isTerminal(o.Status) {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Intent.OrderID < out[j].Intent.OrderID
	})
	return out
}

// UpsertOrder stores the order record. OMS only.
func (c *Cache) UpsertOrder(o Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := copyOrder(&o)
	c.orders[o.Intent.OrderID] = &stored
}

// DeleteOrder removes an archived order. OMS only, terminal orders only.
func (c *Cache) DeleteOrder(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, id)
}

func copyOrder(o *Order) Order {
	cp := *o
	if len(o.Fills) > 0 {
		cp.Fills = make([]schema.Fill, len(o.Fills))
		copy(cp.Fills, o.Fills)
	}
	return cp
}

func isTerminal(status schema.OrderStatusCode) bool {
	switch status {
	case schema.OrderStatusFilled, schema.OrderStatusCanceled,
		schema.OrderStatusRejected, schema.OrderStatusExpired:
		return true
	default:
		return false
	}
}
