package oms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/cache"
	"main/internal/schema"
)

func testManager(t *testing.T) (*Manager, *cache.Cache) {
	t.Helper()
	reg := schema.NewRegistry()
	venueID, err := reg.AddVenue("SIM")
	require.NoError(t, err)
	_, err = reg.AddInstrument(schema.Instrument{
		VenueID:  venueID,
		Symbol:   "BTC-USD",
		Class:    schema.AssetClassSpot,
		TickSize: 1,
		LotSize:  1,
	})
	require.NoError(t, err)
	_, err = reg.AddAccount("alpha", venueID, 1_000_000)
	require.NoError(t, err)

	c := cache.New(reg)
	return NewManager(Config{AckTimeout: 5 * time.Second}, c), c
}

func limitIntent(orderID uint64, side schema.OrderSide, price schema.Price, qty schema.Quantity) schema.OrderIntent {
	return schema.OrderIntent{
		OrderID:      orderID,
		AccountID:    1,
		InstrumentID: 1,
		Side:         side,
		Type:         schema.OrderTypeLimit,
		TimeInForce:  schema.TimeInForceGTC,
		Price:        price,
		Qty:          qty,
	}
}

func accept(t *testing.T, m *Manager, orderID, seq uint64, now int64) {
	t.Helper()
	fx := m.OnOrderStatus(schema.OrderStatus{
		OrderID:      orderID,
		InstrumentID: 1,
		Status:       schema.OrderStatusAccepted,
	}, seq, now)
	require.Empty(t, fx.Anomalies)
	require.Len(t, fx.Statuses, 1)
	require.Equal(t, schema.OrderStatusAccepted, fx.Statuses[0].Status)
}

func submit(t *testing.T, m *Manager, intent schema.OrderIntent, now int64) {
	t.Helper()
	require.NoError(t, m.Create(intent, now))
	_, err := m.MarkSubmitted(intent.OrderID, now)
	require.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	m, _ := testManager(t)

	assert.ErrorIs(t, m.Create(schema.OrderIntent{Qty: 1}, 0), ErrInvalidIntent)
	assert.ErrorIs(t, m.Create(limitIntent(1, schema.OrderSideBuy, 100, 0), 0), ErrInvalidIntent)
	assert.Error(t, m.Create(limitIntent(1, schema.OrderSideBuy, 0, 10), 0))

	require.NoError(t, m.Create(limitIntent(1, schema.OrderSideBuy, 100, 10), 0))
	assert.ErrorIs(t, m.Create(limitIntent(1, schema.OrderSideBuy, 100, 10), 0), ErrDuplicateOrder)
}

func TestLifecycleHappyPath(t *testing.T) {
	m, c := testManager(t)
	submit(t, m, limitIntent(1, schema.OrderSideBuy, 100, 10), 1000)
	accept(t, m, 1, 1, 2000)

	fx := m.OnFill(schema.Fill{
		OrderID: 1, InstrumentID: 1, AccountID: 1,
		Side: schema.OrderSideBuy, Price: 100, Qty: 10,
	}, 2, 3000)
	require.Empty(t, fx.Anomalies)
	require.Len(t, fx.Statuses, 1)
	assert.Equal(t, schema.OrderStatusFilled, fx.Statuses[0].Status)
	assert.Equal(t, schema.Quantity(0), fx.Statuses[0].LeavesQty)
	require.Len(t, fx.Positions, 1)
	assert.Equal(t, schema.Quantity(10), fx.Positions[0].NetQty)

	o, ok := c.Order(1)
	require.True(t, ok)
	assert.Equal(t, schema.OrderStatusFilled, o.Status)
}

func TestPartialFillsAggregate(t *testing.T) {
	m, c := testManager(t)
	submit(t, m, limitIntent(1, schema.OrderSideBuy, 100, 10), 0)
	accept(t, m, 1, 1, 0)

	fx := m.OnFill(schema.Fill{
		OrderID: 1, InstrumentID: 1, AccountID: 1,
		Side: schema.OrderSideBuy, Price: 100, Qty: 4,
	}, 2, 0)
	require.Len(t, fx.Statuses, 1)
	assert.Equal(t, schema.OrderStatusPartiallyFilled, fx.Statuses[0].Status)
	assert.Equal(t, schema.Quantity(6), fx.Statuses[0].LeavesQty)

	fx = m.OnFill(schema.Fill{
		OrderID: 1, InstrumentID: 1, AccountID: 1,
		Side: schema.OrderSideBuy, Price: 100, Qty: 6,
	}, 3, 0)
	require.Len(t, fx.Statuses, 1)
	assert.Equal(t, schema.OrderStatusFilled, fx.Statuses[0].Status)
	assert.Equal(t, schema.Quantity(0), fx.Statuses[0].LeavesQty)

	o, _ := c.Order(1)
	assert.Equal(t, schema.Quantity(10), o.FilledQty)
	require.Len(t, o.Fills, 2)
	pos := c.Position(1, 1)
	assert.Equal(t, schema.Quantity(10), pos.NetQty)
	assert.Equal(t, schema.Price(100), pos.AvgPrice)
}

func TestDuplicateVenueSeqIgnored(t *testing.T) {
	m, c := testManager(t)
	submit(t, m, limitIntent(1, schema.OrderSideBuy, 100, 10), 0)
	accept(t, m, 1, 5, 0)

	f := schema.Fill{
		OrderID: 1, InstrumentID: 1, AccountID: 1,
		Side: schema.OrderSideBuy, Price: 100, Qty: 4,
	}
	fx := m.OnFill(f, 6, 0)
	require.Empty(t, fx.Anomalies)

	// Same venue sequence again: no state change, one anomaly.
	fx = m.OnFill(f, 6, 0)
	require.Len(t, fx.Anomalies, 1)
	assert.Equal(t, schema.AnomalyDuplicateEvent, fx.Anomalies[0].Kind)
	assert.Empty(t, fx.Positions)

	o, _ := c.Order(1)
	assert.Equal(t, schema.Quantity(4), o.FilledQty)
}

func TestFillOverflowRejected(t *testing.T) {
	m, c := testManager(t)
	submit(t, m, limitIntent(1, schema.OrderSideBuy, 100, 10), 0)
	accept(t, m, 1, 1, 0)

	fx := m.OnFill(schema.Fill{
		OrderID: 1, InstrumentID: 1, AccountID: 1,
		Side: schema.OrderSideBuy, Price: 100, Qty: 11,
	}, 2, 0)
	require.Len(t, fx.Anomalies, 1)
	assert.Equal(t, schema.AnomalyQuantityOverflow, fx.Anomalies[0].Kind)

	o, _ := c.Order(1)
	assert.Equal(t, schema.Quantity(0), o.FilledQty)
	assert.Equal(t, schema.OrderStatusAccepted, o.Status)
}

func TestFillBeforeAcceptIsOutOfSequence(t *testing.T) {
	m, _ := testManager(t)
	submit(t, m, limitIntent(1, schema.OrderSideBuy, 100, 10), 0)

	fx := m.OnFill(schema.Fill{
		OrderID: 1, InstrumentID: 1, AccountID: 1,
		Side: schema.OrderSideBuy, Price: 100, Qty: 5,
	}, 1, 0)
	require.Len(t, fx.Anomalies, 1)
	assert.Equal(t, schema.AnomalyOutOfSequence, fx.Anomalies[0].Kind)
}

func TestUnknownOrderEvents(t *testing.T) {
	m, _ := testManager(t)

	fx := m.OnOrderStatus(schema.OrderStatus{OrderID: 77, Status: schema.OrderStatusAccepted}, 1, 0)
	require.Len(t, fx.Anomalies, 1)
	assert.Equal(t, schema.AnomalyUnknownOrder, fx.Anomalies[0].Kind)

	fx = m.OnFill(schema.Fill{OrderID: 77, Qty: 1}, 2, 0)
	require.Len(t, fx.Anomalies, 1)
	assert.Equal(t, schema.AnomalyUnknownOrder, fx.Anomalies[0].Kind)
}

func TestTerminalOrderEventIgnored(t *testing.T) {
	m, _ := testManager(t)
	submit(t, m, limitIntent(1, schema.OrderSideBuy, 100, 10), 0)
	accept(t, m, 1, 1, 0)
	m.OnFill(schema.Fill{
		OrderID: 1, InstrumentID: 1, AccountID: 1,
		Side: schema.OrderSideBuy, Price: 100, Qty: 10,
	}, 2, 0)

	fx := m.OnOrderStatus(schema.OrderStatus{
		OrderID: 1, InstrumentID: 1, Status: schema.OrderStatusCanceled,
	}, 3, 0)
	require.Len(t, fx.Anomalies, 1)
	assert.Equal(t, schema.AnomalyTerminalOrderEvent, fx.Anomalies[0].Kind)
	assert.Empty(t, fx.Statuses)
}

func TestCancelBeforeSendIsLocal(t *testing.T) {
	m, c := testManager(t)
	require.NoError(t, m.Create(limitIntent(1, schema.OrderSideBuy, 100, 10), 0))

	fx, sent, err := m.RequestCancel(1, 0)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, fx.Cancels)
	require.Len(t, fx.Statuses, 1)
	assert.Equal(t, schema.OrderStatusCanceled, fx.Statuses[0].Status)

	o, _ := c.Order(1)
	assert.Equal(t, schema.OrderStatusCanceled, o.Status)
}

func TestCancelIsIdempotent(t *testing.T) {
	m, _ := testManager(t)
	submit(t, m, limitIntent(1, schema.OrderSideBuy, 100, 10), 0)
	accept(t, m, 1, 1, 0)

	fx, sent, err := m.RequestCancel(1, 0)
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, fx.Cancels, 1)

	fx, sent, err = m.RequestCancel(1, 0)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, fx.Cancels)
	assert.Empty(t, fx.Statuses)
}

func TestFillBeatsCancel(t *testing.T) {
	m, c := testManager(t)
	submit(t, m, limitIntent(1, schema.OrderSideBuy, 100, 10), 0)
	accept(t, m, 1, 1, 0)

	_, sent, err := m.RequestCancel(1, 0)
	require.NoError(t, err)
	require.True(t, sent)

	// Partial fill arrives while the cancel is in flight: progress is
	// recorded, the order stays pending cancel.
	fx := m.OnFill(schema.Fill{
		OrderID: 1, InstrumentID: 1, AccountID: 1,
		Side: schema.OrderSideBuy, Price: 100, Qty: 4,
	}, 2, 0)
	require.Empty(t, fx.Anomalies)
	assert.Empty(t, fx.Statuses)
	require.Len(t, fx.Positions, 1)

	o, _ := c.Order(1)
	assert.Equal(t, schema.OrderStatusPendingCancel, o.Status)
	assert.Equal(t, schema.Quantity(4), o.FilledQty)

	// Venue confirms the cancel for the remainder.
	fx = m.OnOrderStatus(schema.OrderStatus{
		OrderID: 1, InstrumentID: 1, Status: schema.OrderStatusCanceled,
	}, 3, 0)
	require.Len(t, fx.Statuses, 1)
	assert.Equal(t, schema.OrderStatusCanceled, fx.Statuses[0].Status)
	assert.Equal(t, schema.Quantity(6), fx.Statuses[0].LeavesQty)
}

func TestAckTimeoutRejectsWithOneDefensiveCancel(t *testing.T) {
	m, c := testManager(t)
	submit(t, m, limitIntent(1, schema.OrderSideBuy, 100, 10), 1000)

	deadline := int64(1000) + int64(5*time.Second)
	fx := m.OnTime(deadline - 1)
	assert.Empty(t, fx.Statuses)

	fx = m.OnTime(deadline)
	require.Len(t, fx.Statuses, 1)
	assert.Equal(t, schema.OrderStatusRejected, fx.Statuses[0].Status)
	assert.Equal(t, schema.StatusReasonTimeout, fx.Statuses[0].Reason)
	require.Len(t, fx.Cancels, 1)
	assert.Equal(t, uint64(1), fx.Cancels[0].OrderID)

	// Later ticks must not produce a second cancel.
	fx = m.OnTime(deadline + 1)
	assert.Empty(t, fx.Cancels)
	assert.Empty(t, fx.Statuses)

	o, _ := c.Order(1)
	assert.Equal(t, schema.OrderStatusRejected, o.Status)
	assert.True(t, o.CancelSent)
}

func TestMarkTimedOutSendsOneDefensiveCancel(t *testing.T) {
	m, c := testManager(t)
	submit(t, m, limitIntent(1, schema.OrderSideBuy, 100, 10), 1000)

	fx := m.MarkTimedOut(1, 2000)
	require.Len(t, fx.Statuses, 1)
	assert.Equal(t, schema.OrderStatusRejected, fx.Statuses[0].Status)
	assert.Equal(t, schema.StatusReasonTimeout, fx.Statuses[0].Reason)
	require.Len(t, fx.Cancels, 1)
	assert.Equal(t, uint64(1), fx.Cancels[0].OrderID)

	// The order is terminal now; a second timeout changes nothing and must
	// not emit another cancel.
	fx = m.MarkTimedOut(1, 3000)
	assert.Empty(t, fx.Statuses)
	assert.Empty(t, fx.Cancels)

	o, _ := c.Order(1)
	assert.Equal(t, schema.OrderStatusRejected, o.Status)
	assert.True(t, o.CancelSent)
}

func TestFillWithoutAccountCreditsOwningAccount(t *testing.T) {
	m, c := testManager(t)
	submit(t, m, limitIntent(1, schema.OrderSideBuy, 100, 10), 0)
	accept(t, m, 1, 1, 0)

	// Live venue fills carry no account; the owning order resolves it.
	fx := m.OnFill(schema.Fill{
		OrderID: 1, InstrumentID: 1,
		Side: schema.OrderSideBuy, Price: 100, Qty: 10,
	}, 2, 0)
	require.Empty(t, fx.Anomalies)
	require.Len(t, fx.Positions, 1)
	assert.Equal(t, schema.AccountID(1), fx.Positions[0].AccountID)
	require.Len(t, fx.Accounts, 1)
	assert.Equal(t, schema.AccountID(1), fx.Accounts[0].AccountID)

	assert.Equal(t, schema.Quantity(10), c.Position(1, 1).NetQty)
	assert.Equal(t, schema.Quantity(0), c.Position(0, 1).NetQty)
	_, ok := c.Account(0)
	assert.False(t, ok)
}

func TestAcceptDisarmsAckDeadline(t *testing.T) {
	m, _ := testManager(t)
	submit(t, m, limitIntent(1, schema.OrderSideBuy, 100, 10), 1000)
	accept(t, m, 1, 1, 2000)

	fx := m.OnTime(int64(1000) + int64(time.Hour))
	assert.Empty(t, fx.Statuses)
	assert.Empty(t, fx.Cancels)
}

func TestExpiryByTimeInForce(t *testing.T) {
	m, _ := testManager(t)
	intent := limitIntent(1, schema.OrderSideBuy, 100, 10)
	intent.TimeInForce = schema.TimeInForceDay
	intent.ExpiresAt = 5000
	submit(t, m, intent, 1000)
	accept(t, m, 1, 1, 2000)

	fx := m.OnTime(5000)
	require.Len(t, fx.Statuses, 1)
	assert.Equal(t, schema.OrderStatusExpired, fx.Statuses[0].Status)
	assert.Equal(t, schema.StatusReasonTimeInForce, fx.Statuses[0].Reason)
}

func TestMarkRejectedOnRiskDenial(t *testing.T) {
	m, c := testManager(t)
	require.NoError(t, m.Create(limitIntent(1, schema.OrderSideBuy, 100, 10), 0))

	fx := m.MarkRejected(1, schema.StatusReasonRiskReject, 0)
	require.Len(t, fx.Statuses, 1)
	assert.Equal(t, schema.OrderStatusRejected, fx.Statuses[0].Status)
	assert.Equal(t, schema.StatusReasonRiskReject, fx.Statuses[0].Reason)

	o, _ := c.Order(1)
	assert.Equal(t, schema.OrderStatusRejected, o.Status)
}

func TestArchiveTerminal(t *testing.T) {
	m, c := testManager(t)
	require.NoError(t, m.Create(limitIntent(1, schema.OrderSideBuy, 100, 10), 0))
	m.MarkRejected(1, schema.StatusReasonRiskReject, 100)
	submit(t, m, limitIntent(2, schema.OrderSideBuy, 100, 10), 200)

	archived := m.ArchiveTerminal(150)
	assert.Equal(t, []uint64{1}, archived)
	_, ok := c.Order(1)
	assert.False(t, ok)
	_, ok = c.Order(2)
	assert.True(t, ok)
}

func TestTransitionTable(t *testing.T) {
	legal := []struct{ from, to schema.OrderStatusCode }{
		{schema.OrderStatusInitialized, schema.OrderStatusSubmitted},
		{schema.OrderStatusSubmitted, schema.OrderStatusAccepted},
		{schema.OrderStatusAccepted, schema.OrderStatusPartiallyFilled},
		{schema.OrderStatusPartiallyFilled, schema.OrderStatusFilled},
		{schema.OrderStatusPartiallyFilled, schema.OrderStatusAccepted},
		{schema.OrderStatusAccepted, schema.OrderStatusPendingCancel},
		{schema.OrderStatusPendingCancel, schema.OrderStatusCanceled},
		{schema.OrderStatusPendingCancel, schema.OrderStatusFilled},
		{schema.OrderStatusSubmitted, schema.OrderStatusRejected},
		{schema.OrderStatusInitialized, schema.OrderStatusCanceled},
	}
	for _, tc := range legal {
		assert.Truef(t, CanTransition(tc.from, tc.to), "%d -> %d should be legal", tc.from, tc.to)
	}

	illegal := []struct{ from, to schema.OrderStatusCode }{
		{schema.OrderStatusFilled, schema.OrderStatusCanceled},
		{schema.OrderStatusRejected, schema.OrderStatusSubmitted},
		{schema.OrderStatusInitialized, schema.OrderStatusAccepted},
		{schema.OrderStatusAccepted, schema.OrderStatusSubmitted},
		{schema.OrderStatusCanceled, schema.OrderStatusFilled},
	}
	for _, tc := range illegal {
		assert.Falsef(t, CanTransition(tc.from, tc.to), "%d -> %d should be illegal", tc.from, tc.to)
	}
}
