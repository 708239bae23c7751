// Package strategy defines the strategy programming model. A strategy sees
// the world only through its Context: the same callbacks fire in the same
// order whether the events come from a WAL replay or a live venue, so a
// strategy cannot tell which mode it runs in.
package strategy

import (
	"main/internal/cache"
	"main/internal/schema"
)

// OrderRequest is a strategy's ask to open an order. The engine assigns the
// order ID and stamps the strategy identity.
type OrderRequest struct {
	AccountID    schema.AccountID
	InstrumentID schema.InstrumentID
	Side         schema.OrderSide
	Type         schema.OrderType
	TimeInForce  schema.TimeInForce
	Price        schema.Price
	Qty          schema.Quantity
	ExpiresAt    int64
}

// Context is the strategy's window into the engine. All methods are safe to
// call from inside callbacks; Submit and Cancel take effect before the next
// callback fires.
type Context interface {
	// Now returns the current session time in nanoseconds. In a backtest
	// this is simulated time.
	Now() int64

	// Registry returns the instrument catalog.
	Registry() *schema.Registry

	// Position returns the current aggregate for an (account, instrument).
	Position(account schema.AccountID, instrument schema.InstrumentID) cache.Position

	// Account returns the balance state for an account.
	Account(id schema.AccountID) (cache.AccountBalance, bool)

	// Order returns the current record of one order.
	Order(id uint64) (cache.Order, bool)

	// Submit runs the order through the risk gate and, if allowed, sends it
	// to the venue. The returned ID identifies the order in later callbacks
	// even when the order is rejected.
	Submit(req OrderRequest) (uint64, error)

	// Cancel requests cancellation of an open order. Calling it repeatedly
	// for the same order is harmless.
	Cancel(orderID uint64) error
}

// Strategy receives the normalized event stream. Callbacks run on the
// engine's dispatch goroutine and must not block.
type Strategy interface {
	Name() string
	OnStart(ctx Context)
	OnMarketData(ctx Context, md schema.MarketData)
	OnOrderStatus(ctx Context, status schema.OrderStatus)
	OnFill(ctx Context, fill schema.Fill)
	OnTime(ctx Context, now int64)
	OnStop(ctx Context)
}

// Base is a no-op Strategy implementation to embed when only some callbacks
// matter.
type Base struct{}

func (Base) OnStart(Context)                           {}
func (Base) OnMarketData(Context, schema.MarketData)   {}
func (Base) OnOrderStatus(Context, schema.OrderStatus) {}
func (Base) OnFill(Context, schema.Fill)               {}
func (Base) OnTime(Context, int64)                     {}
func (Base) OnStop(Context)                            {}
