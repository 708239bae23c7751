// Package risk validates proposed orders against configured limits before
// any network call is issued. Evaluation reads only the supplied state
// view; a denial is returned synchronously to the caller and never reaches
// the venue.
package risk

import (
	"time"

	"main/internal/schema"
)

const maxInt64 = int64(^uint64(0) >> 1)

// Config defines the configurable limit policies. Zero values disable the
// corresponding check.
type Config struct {
	KillSwitch           bool            `yaml:"killSwitch"`
	MaxOrderQty          schema.Quantity `yaml:"maxOrderQty"`
	MaxOrderNotional     schema.Notional `yaml:"maxOrderNotional"`
	MaxPosition          schema.Quantity `yaml:"maxPosition"`
	MaxAccountNotional   schema.Notional `yaml:"maxAccountNotional"`
	OrderRateLimit       int             `yaml:"orderRateLimit"`
	OrderRateWindow      time.Duration   `yaml:"orderRateWindow"`
	MaxPriceDeviationBps int64           `yaml:"maxPriceDeviationBps"`
}

// StateView is the slice of cache state a decision depends on.
type StateView struct {
	Position        schema.Quantity
	AccountNotional schema.Notional
	ReferencePrice  schema.Price
	Now             int64
}

// Engine evaluates risk decisions. The submission rate window is the only
// internal state; everything else is a pure function of config and view.
type Engine struct {
	cfg             Config
	rateWindowStart int64
	rateCount       int
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate checks an order intent against every configured limit and
// returns the full decision record for publication.
func (e *Engine) Evaluate(intent schema.OrderIntent, state StateView) schema.RiskDecision {
	decision := schema.RiskDecision{
		OrderID:       intent.OrderID,
		StrategyID:    intent.StrategyID,
		InstrumentID:  intent.InstrumentID,
		Action:        schema.RiskActionAllow,
		Reason:        schema.RiskReasonNone,
		ProposedQty:   intent.Qty,
		ProposedPrice: intent.Price,
		CurrentPos:    state.Position,
		MaxPos:        e.cfg.MaxPosition,
		MaxNotional:   e.cfg.MaxOrderNotional,
	}

	now := state.Now
	if now == 0 {
		now = time.Now().UTC().UnixNano()
	}

	if e.cfg.KillSwitch {
		return deny(decision, schema.RiskReasonKillSwitch)
	}

	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		window := int64(e.cfg.OrderRateWindow)
		if e.rateWindowStart == 0 || now-e.rateWindowStart >= window {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.cfg.OrderRateLimit {
			return deny(decision, schema.RiskReasonRateLimit)
		}
	}

	if e.cfg.MaxOrderQty > 0 && intent.Qty > e.cfg.MaxOrderQty {
		return deny(decision, schema.RiskReasonMaxQty)
	}

	if e.cfg.MaxPriceDeviationBps > 0 && intent.Type == schema.OrderTypeLimit && intent.Price > 0 {
		ref := int64(state.ReferencePrice)
		if ref > 0 {
			diff := absInt64(int64(intent.Price) - ref)
			if exceedsDeviation(diff, ref, e.cfg.MaxPriceDeviationBps) {
				return deny(decision, schema.RiskReasonPriceBand)
			}
		}
	}

	price := intent.Price
	if price == 0 {
		price = state.ReferencePrice
	}
	notional, overflow := mulNotional(price, intent.Qty)
	if overflow {
		return deny(decision, schema.RiskReasonMaxNotional)
	}
	if e.cfg.MaxOrderNotional > 0 && notional > e.cfg.MaxOrderNotional {
		return deny(decision, schema.RiskReasonMaxNotional)
	}

	if e.cfg.MaxAccountNotional > 0 {
		next := int64(state.AccountNotional) + int64(notional)
		if next < 0 || schema.Notional(next) > e.cfg.MaxAccountNotional {
			return deny(decision, schema.RiskReasonAccountExposure)
		}
	}

	nextPos := applySide(state.Position, intent.Side, intent.Qty)
	if e.cfg.MaxPosition > 0 && absQuantity(nextPos) > e.cfg.MaxPosition {
		return deny(decision, schema.RiskReasonPositionLimit)
	}

	return decision
}

func deny(decision schema.RiskDecision, reason schema.RiskReason) schema.RiskDecision {
	decision.Action = schema.RiskActionDeny
	decision.Reason = reason
	return decision
}

func mulNotional(price schema.Price, qty schema.Quantity) (schema.Notional, bool) {
	p := int64(price)
	q := int64(qty)
	if p == 0 || q == 0 {
		return 0, false
	}
	if p < 0 {
		p = -p
	}
	if q < 0 {
		q = -q
	}
	if p > maxInt64/q {
		return 0, true
	}
	return schema.Notional(p * q), false
}

func applySide(pos schema.Quantity, side schema.OrderSide, qty schema.Quantity) schema.Quantity {
	switch side {
	case schema.OrderSideBuy:
		return schema.Quantity(int64(pos) + int64(qty))
	case schema.OrderSideSell:
		return schema.Quantity(int64(pos) - int64(qty))
	default:
		return pos
	}
}

func absQuantity(q schema.Quantity) schema.Quantity {
	if q < 0 {
		return -q
	}
	return q
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func exceedsDeviation(diff, ref, bps int64) bool {
	if diff <= 0 || ref <= 0 || bps <= 0 {
		return false
	}
	if diff > maxInt64/10_000 {
		return true
	}
	if ref > maxInt64/bps {
		return true
	}
	return diff*10_000 > ref*bps
}
