package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	venueID, err := reg.AddVenue("SIM")
	require.NoError(t, err)
	_, err = reg.AddInstrument(schema.Instrument{
		VenueID:       venueID,
		Symbol:        "BTC-USD",
		Class:         schema.AssetClassSpot,
		Scale:         schema.ScaleSpec{PriceScale: 2, QuantityScale: 2, NotionalScale: 2, FeeScale: 2},
		TickSize:      1,
		LotSize:       1,
		InitMarginBps: 1000,
	})
	require.NoError(t, err)
	_, err = reg.AddAccount("alpha", venueID, 1_000_000)
	require.NoError(t, err)
	return reg
}

func seedOrder(c *Cache, orderID uint64, side schema.OrderSide, qty schema.Quantity) {
	c.UpsertOrder(Order{
		Intent: schema.OrderIntent{
			OrderID:      orderID,
			AccountID:    1,
			InstrumentID: 1,
			Side:         side,
			Type:         schema.OrderTypeLimit,
			Qty:          qty,
		},
		Status: schema.OrderStatusAccepted,
	})
}

func fill(orderID uint64, side schema.OrderSide, price schema.Price, qty schema.Quantity) schema.Fill {
	return schema.Fill{
		OrderID:      orderID,
		InstrumentID: 1,
		AccountID:    1,
		Side:         side,
		Price:        price,
		Qty:          qty,
	}
}

func TestApplyFillUnknownOrder(t *testing.T) {
	c := New(testRegistry(t))
	_, _, err := c.ApplyFill(fill(99, schema.OrderSideBuy, 100, 10))
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestApplyFillWithoutAccountUsesOwningOrder(t *testing.T) {
	c := New(testRegistry(t))
	seedOrder(c, 1, schema.OrderSideBuy, 10)

	f := fill(1, schema.OrderSideBuy, 100, 10)
	f.AccountID = 0
	posEv, accEv, err := c.ApplyFill(f)
	require.NoError(t, err)

	assert.Equal(t, schema.AccountID(1), posEv.AccountID)
	assert.Equal(t, schema.AccountID(1), accEv.AccountID)
	assert.Equal(t, schema.Quantity(10), c.Position(1, 1).NetQty)
	assert.Equal(t, schema.Quantity(0), c.Position(0, 1).NetQty)

	acc, ok := c.Account(1)
	require.True(t, ok)
	assert.Equal(t, schema.Notional(100), acc.MarginUsed)
	_, ok = c.Account(0)
	assert.False(t, ok)

	o, ok := c.Order(1)
	require.True(t, ok)
	require.Len(t, o.Fills, 1)
	assert.Equal(t, schema.AccountID(1), o.Fills[0].AccountID)
}

func TestPositionWeightedAverageEntry(t *testing.T) {
	c := New(testRegistry(t))
	seedOrder(c, 1, schema.OrderSideBuy, 10)
	seedOrder(c, 2, schema.OrderSideBuy, 10)

	_, _, err := c.ApplyFill(fill(1, schema.OrderSideBuy, 100, 10))
	require.NoError(t, err)
	_, _, err = c.ApplyFill(fill(2, schema.OrderSideBuy, 110, 10))
	require.NoError(t, err)

	pos := c.Position(1, 1)
	assert.Equal(t, schema.Quantity(20), pos.NetQty)
	assert.Equal(t, schema.Price(105), pos.AvgPrice)
	assert.Equal(t, schema.Notional(0), pos.RealizedPnL)
}

func TestPositionRealizesOnReduce(t *testing.T) {
	c := New(testRegistry(t))
	seedOrder(c, 1, schema.OrderSideBuy, 20)
	seedOrder(c, 2, schema.OrderSideSell, 5)

	_, _, err := c.ApplyFill(fill(1, schema.OrderSideBuy, 100, 20))
	require.NoError(t, err)
	posEv, accEv, err := c.ApplyFill(fill(2, schema.OrderSideSell, 110, 5))
	require.NoError(t, err)

	assert.Equal(t, schema.Quantity(15), posEv.NetQty)
	assert.Equal(t, schema.Price(100), posEv.AvgPrice)
	pos := c.Position(1, 1)
	assert.Equal(t, schema.Notional(50), pos.RealizedPnL)
	assert.Equal(t, schema.Notional(50), accEv.RealizedPnL)
	assert.Equal(t, schema.Notional(1_000_050), accEv.Balance)
}

func TestPositionFlatResetsAvgPrice(t *testing.T) {
	c := New(testRegistry(t))
	seedOrder(c, 1, schema.OrderSideBuy, 10)
	seedOrder(c, 2, schema.OrderSideSell, 10)

	_, _, err := c.ApplyFill(fill(1, schema.OrderSideBuy, 100, 10))
	require.NoError(t, err)
	_, _, err = c.ApplyFill(fill(2, schema.OrderSideSell, 90, 10))
	require.NoError(t, err)

	pos := c.Position(1, 1)
	assert.Equal(t, schema.Quantity(0), pos.NetQty)
	assert.Equal(t, schema.Price(0), pos.AvgPrice)
	assert.Equal(t, schema.Notional(-100), pos.RealizedPnL)
}

func TestPositionFlipThroughFlat(t *testing.T) {
	c := New(testRegistry(t))
	seedOrder(c, 1, schema.OrderSideBuy, 10)
	seedOrder(c, 2, schema.OrderSideSell, 25)

	_, _, err := c.ApplyFill(fill(1, schema.OrderSideBuy, 100, 10))
	require.NoError(t, err)
	_, _, err = c.ApplyFill(fill(2, schema.OrderSideSell, 120, 25))
	require.NoError(t, err)

	pos := c.Position(1, 1)
	assert.Equal(t, schema.Quantity(-15), pos.NetQty)
	assert.Equal(t, schema.Price(120), pos.AvgPrice)
	assert.Equal(t, schema.Notional(200), pos.RealizedPnL)
}

func TestAccountNotionalAndMargin(t *testing.T) {
	c := New(testRegistry(t))
	seedOrder(c, 1, schema.OrderSideBuy, 10)

	_, accEv, err := c.ApplyFill(fill(1, schema.OrderSideBuy, 100, 10))
	require.NoError(t, err)

	assert.Equal(t, schema.Notional(1000), c.AccountNotional(1))
	// 10% initial margin on 1000 notional.
	assert.Equal(t, schema.Notional(100), accEv.MarginUsed)
}

func TestFeeDebitsBalance(t *testing.T) {
	c := New(testRegistry(t))
	seedOrder(c, 1, schema.OrderSideBuy, 10)

	f := fill(1, schema.OrderSideBuy, 100, 10)
	f.Fee = 7
	_, accEv, err := c.ApplyFill(f)
	require.NoError(t, err)
	assert.Equal(t, schema.Notional(999_993), accEv.Balance)
}

func TestOpenOrdersSortedAndTerminalSplit(t *testing.T) {
	c := New(testRegistry(t))
	seedOrder(c, 3, schema.OrderSideBuy, 1)
	seedOrder(c, 1, schema.OrderSideBuy, 1)
	c.UpsertOrder(Order{
		Intent: schema.OrderIntent{OrderID: 2, AccountID: 1, InstrumentID: 1},
		Status: schema.OrderStatusFilled,
	})

	open := c.OpenOrders()
	require.Len(t, open, 2)
	assert.Equal(t, uint64(1), open[0].Intent.OrderID)
	assert.Equal(t, uint64(3), open[1].Intent.OrderID)

	terminal := c.TerminalOrders()
	require.Len(t, terminal, 1)
	assert.Equal(t, uint64(2), terminal[0].Intent.OrderID)
}

func TestOrderReturnsCopy(t *testing.T) {
	c := New(testRegistry(t))
	seedOrder(c, 1, schema.OrderSideBuy, 10)
	_, _, err := c.ApplyFill(fill(1, schema.OrderSideBuy, 100, 4))
	require.NoError(t, err)

	o, ok := c.Order(1)
	require.True(t, ok)
	require.Len(t, o.Fills, 1)
	o.Fills[0].Qty = 9999
	o.FilledQty = 9999

	again, ok := c.Order(1)
	require.True(t, ok)
	assert.Equal(t, schema.Quantity(4), again.Fills[0].Qty)
	assert.Equal(t, schema.Quantity(4), again.FilledQty)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	c := New(testRegistry(t))
	seedOrder(c, 1, schema.OrderSideBuy, 10)
	_, _, err := c.ApplyFill(fill(1, schema.OrderSideBuy, 100, 10))
	require.NoError(t, err)

	snap := c.Snapshot(42, 7)
	assert.Equal(t, int64(42), snap.Timestamp)
	assert.Equal(t, uint64(7), snap.LastSeq)
	require.Len(t, snap.Positions, 1)
	require.Len(t, snap.Orders, 1)

	restored := New(testRegistry(t))
	restored.Restore(snap)
	assert.Equal(t, c.Position(1, 1), restored.Position(1, 1))
	acc, ok := restored.Account(1)
	require.True(t, ok)
	orig, _ := c.Account(1)
	assert.Equal(t, orig, acc)

	// Fill history survives the round trip alongside the filled quantity.
	o, ok := restored.Order(1)
	require.True(t, ok)
	assert.Equal(t, schema.Quantity(10), o.FilledQty)
	require.Len(t, o.Fills, 1)
	assert.Equal(t, schema.Quantity(10), o.Fills[0].Qty)

	again := restored.Snapshot(42, 7)
	assert.Equal(t, snap, again)
}

func TestSnapshotExcludesTerminalOrders(t *testing.T) {
	c := New(testRegistry(t))
	seedOrder(c, 1, schema.OrderSideBuy, 10)
	c.UpsertOrder(Order{
		Intent: schema.OrderIntent{OrderID: 2, AccountID: 1, InstrumentID: 1},
		Status: schema.OrderStatusCanceled,
	})

	snap := c.Snapshot(0, 0)
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, uint64(1), snap.Orders[0].Intent.OrderID)
}
