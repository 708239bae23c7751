package cache

import (
	"sort"

	"main/internal/schema"
)

// Snapshot is a point-in-time copy of the cache aggregates, serializable by
// the store layer. Entries are sorted so two snapshots of identical state
// are byte-identical once encoded.
type Snapshot struct {
	Timestamp int64           `json:"timestamp"`
	LastSeq   uint64          `json:"lastSeq"`
	Positions []PositionEntry `json:"positions"`
	Accounts  []AccountEntry  `json:"accounts"`
	Orders    []OrderEntry    `json:"orders"`
}

// PositionEntry is one position row in a snapshot.
type PositionEntry struct {
	AccountID    schema.AccountID    `json:"accountId"`
	InstrumentID schema.InstrumentID `json:"instrumentId"`
	NetQty       schema.Quantity     `json:"netQty"`
	AvgPrice     schema.Price        `json:"avgPrice"`
	RealizedPnL  schema.Notional     `json:"realizedPnl"`
}

// AccountEntry is one account row in a snapshot.
type AccountEntry struct {
	AccountID   schema.AccountID `json:"accountId"`
	VenueID     schema.VenueID   `json:"venueId"`
	Balance     schema.Notional  `json:"balance"`
	MarginUsed  schema.Notional  `json:"marginUsed"`
	RealizedPnL schema.Notional  `json:"realizedPnl"`
}

// OrderEntry is one open-order row in a snapshot. Terminal orders are not
// snapshotted; they are archived by the store before deletion.
type OrderEntry struct {
	Intent    schema.OrderIntent     `json:"intent"`
	Status    schema.OrderStatusCode `json:"status"`
	Reason    schema.StatusReason    `json:"reason"`
	FilledQty schema.Quantity        `json:"filledQty"`
	Fills     []schema.Fill          `json:"fills,omitempty"`
	LastSeq   uint64                 `json:"lastSeq"`
	CreatedAt int64                  `json:"createdAt"`
	UpdatedAt int64                  `json:"updatedAt"`
}

// Snapshot captures the current aggregates with event metadata.
func (c *Cache) Snapshot(timestamp int64, lastSeq uint64) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{Timestamp: timestamp, LastSeq: lastSeq}

	snap.Positions = make([]PositionEntry, 0, len(c.positions))
	for _, pos := range c.positions {
		snap.Positions = append(snap.Positions, PositionEntry{
			AccountID:    pos.AccountID,
			InstrumentID: pos.InstrumentID,
			NetQty:       pos.NetQty,
			AvgPrice:     pos.AvgPrice,
			RealizedPnL:  pos.RealizedPnL,
		})
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		a, b := snap.Positions[i], snap.Positions[j]
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		return a.InstrumentID < b.InstrumentID
	})

	snap.Accounts = make([]AccountEntry, 0, len(c.accounts))
	for _, acc := range c.accounts {
		snap.Accounts = append(snap.Accounts, AccountEntry{
			AccountID:   acc.AccountID,
			VenueID:     acc.VenueID,
			Balance:     acc.Balance,
			MarginUsed:  acc.MarginUsed,
			RealizedPnL: acc.RealizedPnL,
		})
	}
	sort.Slice(snap.Accounts, func(i, j int) bool {
		return snap.Accounts[i].AccountID < snap.Accounts[j].AccountID
	})

	snap.Orders = make([]OrderEntry, 0, len(c.orders))
	for _, o := range c.orders {
		if isTerminal(o.Status) {
			continue
		}
		entry := OrderEntry{
			Intent:    o.Intent,
			Status:    o.Status,
			Reason:    o.Reason,
			FilledQty: o.FilledQty,
			LastSeq:   o.LastSeq,
			CreatedAt: o.CreatedAt,
			UpdatedAt: o.UpdatedAt,
		}
		if len(o.Fills) > 0 {
			entry.Fills = make([]schema.Fill, len(o.Fills))
			copy(entry.Fills, o.Fills)
		}
		snap.Orders = append(snap.Orders, entry)
	}
	sort.Slice(snap.Orders, func(i, j int) bool {
		return snap.Orders[i].Intent.OrderID < snap.Orders[j].Intent.OrderID
	})

	return snap
}

// Restore replaces the cache aggregates with snapshot contents. Used on
// startup before any event flows; not safe to call mid-session.
func (c *Cache) Restore(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.positions = make(map[positionKey]Position, len(snap.Positions))
	for _, entry := range snap.Positions {
		c.positions[positionKey{entry.AccountID, entry.InstrumentID}] = Position{
			AccountID:    entry.AccountID,
			InstrumentID: entry.InstrumentID,
			NetQty:       entry.NetQty,
			AvgPrice:     entry.AvgPrice,
			RealizedPnL:  entry.RealizedPnL,
		}
	}

	for _, entry := range snap.Accounts {
		c.accounts[entry.AccountID] = AccountBalance{
			AccountID:   entry.AccountID,
			VenueID:     entry.VenueID,
			Balance:     entry.Balance,
			MarginUsed:  entry.MarginUsed,
			RealizedPnL: entry.RealizedPnL,
		}
	}

	c.orders = make(map[uint64]*Order, len(snap.Orders))
	for _, entry := range snap.Orders {
		o := &Order{
			Intent:    entry.Intent,
			Status:    entry.Status,
			Reason:    entry.Reason,
			FilledQty: entry.FilledQty,
			LastSeq:   entry.LastSeq,
			CreatedAt: entry.CreatedAt,
			UpdatedAt: entry.UpdatedAt,
		}
		if len(entry.Fills) > 0 {
			o.Fills = make([]schema.Fill, len(entry.Fills))
			copy(o.Fills, entry.Fills)
		}
		c.orders[entry.Intent.OrderID] = o
	}
}
