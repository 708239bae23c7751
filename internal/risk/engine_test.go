package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"main/internal/schema"
)

func buyIntent(price schema.Price, qty schema.Quantity) schema.OrderIntent {
	return schema.OrderIntent{
		OrderID:      1,
		InstrumentID: 1,
		Side:         schema.OrderSideBuy,
		Type:         schema.OrderTypeLimit,
		Price:        price,
		Qty:          qty,
	}
}

func TestEvaluateAllowWithinLimits(t *testing.T) {
	e := NewEngine(Config{
		MaxOrderQty:      1000,
		MaxOrderNotional: 1_000_000,
		MaxPosition:      5000,
	})
	decision := e.Evaluate(buyIntent(100, 10), StateView{Now: 1})
	assert.Equal(t, schema.RiskActionAllow, decision.Action)
	assert.Equal(t, schema.RiskReasonNone, decision.Reason)
	assert.Equal(t, schema.Quantity(10), decision.ProposedQty)
}

func TestKillSwitchDeniesEverything(t *testing.T) {
	e := NewEngine(Config{KillSwitch: true})
	decision := e.Evaluate(buyIntent(100, 1), StateView{Now: 1})
	assert.Equal(t, schema.RiskActionDeny, decision.Action)
	assert.Equal(t, schema.RiskReasonKillSwitch, decision.Reason)
}

func TestMaxOrderQty(t *testing.T) {
	e := NewEngine(Config{MaxOrderQty: 100})
	decision := e.Evaluate(buyIntent(100, 101), StateView{Now: 1})
	assert.Equal(t, schema.RiskReasonMaxQty, decision.Reason)
}

func TestMaxOrderNotional(t *testing.T) {
	e := NewEngine(Config{MaxOrderNotional: 999})
	decision := e.Evaluate(buyIntent(100, 10), StateView{Now: 1})
	assert.Equal(t, schema.RiskReasonMaxNotional, decision.Reason)

	decision = e.Evaluate(buyIntent(99, 10), StateView{Now: 1})
	assert.Equal(t, schema.RiskActionAllow, decision.Action)
}

func TestMarketOrderNotionalUsesReferencePrice(t *testing.T) {
	e := NewEngine(Config{MaxOrderNotional: 999})
	intent := buyIntent(0, 10)
	intent.Type = schema.OrderTypeMarket
	decision := e.Evaluate(intent, StateView{ReferencePrice: 100, Now: 1})
	assert.Equal(t, schema.RiskReasonMaxNotional, decision.Reason)
}

func TestNotionalOverflowDenies(t *testing.T) {
	e := NewEngine(Config{MaxOrderNotional: 1})
	decision := e.Evaluate(buyIntent(schema.Price(maxInt64/2), schema.Quantity(4)), StateView{Now: 1})
	assert.Equal(t, schema.RiskActionDeny, decision.Action)
	assert.Equal(t, schema.RiskReasonMaxNotional, decision.Reason)
}

func TestAccountExposureLimit(t *testing.T) {
	e := NewEngine(Config{MaxAccountNotional: 10_000})
	decision := e.Evaluate(buyIntent(100, 10), StateView{AccountNotional: 9500, Now: 1})
	assert.Equal(t, schema.RiskReasonAccountExposure, decision.Reason)

	decision = e.Evaluate(buyIntent(100, 5), StateView{AccountNotional: 9500, Now: 1})
	assert.Equal(t, schema.RiskActionAllow, decision.Action)
}

func TestPositionLimitIsDirectionAware(t *testing.T) {
	e := NewEngine(Config{MaxPosition: 100})

	decision := e.Evaluate(buyIntent(100, 50), StateView{Position: 60, Now: 1})
	assert.Equal(t, schema.RiskReasonPositionLimit, decision.Reason)

	// A sell from the same position reduces exposure and passes.
	sell := buyIntent(100, 50)
	sell.Side = schema.OrderSideSell
	decision = e.Evaluate(sell, StateView{Position: 60, Now: 1})
	assert.Equal(t, schema.RiskActionAllow, decision.Action)

	// Short side is limited symmetrically.
	decision = e.Evaluate(sell, StateView{Position: -60, Now: 1})
	assert.Equal(t, schema.RiskReasonPositionLimit, decision.Reason)
}

func TestPriceBand(t *testing.T) {
	e := NewEngine(Config{MaxPriceDeviationBps: 100})

	decision := e.Evaluate(buyIntent(10_100, 1), StateView{ReferencePrice: 10_000, Now: 1})
	assert.Equal(t, schema.RiskActionAllow, decision.Action)

	decision = e.Evaluate(buyIntent(10_101, 1), StateView{ReferencePrice: 10_000, Now: 1})
	assert.Equal(t, schema.RiskReasonPriceBand, decision.Reason)

	// No reference price yet: the band cannot be applied.
	decision = e.Evaluate(buyIntent(10_101, 1), StateView{Now: 1})
	assert.Equal(t, schema.RiskActionAllow, decision.Action)
}

func TestOrderRateLimitWindow(t *testing.T) {
	e := NewEngine(Config{OrderRateLimit: 2, OrderRateWindow: time.Second})
	base := int64(1_000_000_000_000)

	assert.Equal(t, schema.RiskActionAllow, e.Evaluate(buyIntent(100, 1), StateView{Now: base}).Action)
	assert.Equal(t, schema.RiskActionAllow, e.Evaluate(buyIntent(100, 1), StateView{Now: base + 1}).Action)
	decision := e.Evaluate(buyIntent(100, 1), StateView{Now: base + 2})
	assert.Equal(t, schema.RiskReasonRateLimit, decision.Reason)

	// A fresh window resets the counter.
	decision = e.Evaluate(buyIntent(100, 1), StateView{Now: base + int64(time.Second)})
	assert.Equal(t, schema.RiskActionAllow, decision.Action)
}

func TestDecisionCarriesContext(t *testing.T) {
	e := NewEngine(Config{MaxPosition: 500, MaxOrderNotional: 10_000})
	decision := e.Evaluate(buyIntent(100, 10), StateView{Position: -42, Now: 1})
	assert.Equal(t, schema.Quantity(-42), decision.CurrentPos)
	assert.Equal(t, schema.Quantity(500), decision.MaxPos)
	assert.Equal(t, schema.Notional(10_000), decision.MaxNotional)
}
