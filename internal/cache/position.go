package cache

import "main/internal/schema"

// ApplyFill folds one fill into the order's fill history, the position
// aggregate and the account balance, in arrival order. It returns the new
// position and account states for republication. OMS only.
//
// The fold is deterministic: position quantity equals the signed sum of all
// fills for the pair since last flat, and the average entry price is the
// weighted average of the opening fills.
func (c *Cache) ApplyFill(fill schema.Fill) (schema.PositionChanged, schema.AccountState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.orders[fill.OrderID]
	if !ok {
		return schema.PositionChanged{}, schema.AccountState{}, ErrUnknownOrder
	}
	// The owning order is authoritative for the account; live venue fills
	// arrive without one.
	account := o.Intent.AccountID
	if account == 0 {
		account = fill.AccountID
	}
	fill.AccountID = account
	o.Fills = append(o.Fills, fill)
	o.FilledQty += fill.Qty

	key := positionKey{account, fill.InstrumentID}
	pos, ok := c.positions[key]
	if !ok {
		pos = Position{AccountID: account, InstrumentID: fill.InstrumentID}
	}
	realized := foldFill(&pos, fill)
	c.positions[key] = pos

	acc := c.accounts[account]
	acc.AccountID = account
	acc.Balance += realized - schema.Notional(fill.Fee)
	acc.RealizedPnL += realized
	acc.MarginUsed = c.marginUsedLocked(account)
	c.accounts[account] = acc

	return schema.PositionChanged{
			AccountID:    pos.AccountID,
			InstrumentID: pos.InstrumentID,
			NetQty:       pos.NetQty,
			AvgPrice:     pos.AvgPrice,
		}, schema.AccountState{
			AccountID:   acc.AccountID,
			VenueID:     acc.VenueID,
			Balance:     acc.Balance,
			MarginUsed:  acc.MarginUsed,
			RealizedPnL: acc.RealizedPnL,
		}, nil
}

// foldFill mutates the position with one fill and returns the realized PnL
// delta in notional units.
func foldFill(pos *Position, fill schema.Fill) schema.Notional {
	signed := int64(fill.Qty)
	if fill.Side == schema.OrderSideSell {
		signed = -signed
	}

	current := int64(pos.NetQty)
	next := current + signed

	var realized int64
	switch {
	case current == 0 || sameSign(current, signed):
		// Opening or increasing: weighted average entry price.
		total := abs(current) + abs(signed)
		if total > 0 {
			pos.AvgPrice = schema.Price((int64(pos.AvgPrice)*abs(current) + int64(fill.Price)*abs(signed)) / total)
		}
	case abs(signed) <= abs(current):
		// Reducing: realize PnL on the closed quantity, entry price holds.
		closed := abs(signed)
		realized = (int64(fill.Price) - int64(pos.AvgPrice)) * closed * sign(current)
		if next == 0 {
			pos.AvgPrice = 0
		}
	default:
		// Flipping through flat: close the whole position, reopen the
		// remainder at the fill price.
		closed := abs(current)
		realized = (int64(fill.Price) - int64(pos.AvgPrice)) * closed * sign(current)
		pos.AvgPrice = fill.Price
	}

	pos.NetQty = schema.Quantity(next)
	pos.RealizedPnL += schema.Notional(realized)
	return schema.Notional(realized)
}

// marginUsedLocked recomputes the account's margin requirement from its open
// positions using each instrument's initial margin parameter.
func (c *Cache) marginUsedLocked(account schema.AccountID) schema.Notional {
	var total int64
	for key, pos := range c.positions {
		if key.account != account || pos.NetQty == 0 {
			continue
		}
		inst, ok := c.registry.Instrument(pos.InstrumentID)
		if !ok || inst.InitMarginBps <= 0 {
			continue
		}
		notional := abs(int64(pos.NetQty)) * int64(pos.AvgPrice)
		total += notional * inst.InitMarginBps / 10_000
	}
	return schema.Notional(total)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int64) int64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
