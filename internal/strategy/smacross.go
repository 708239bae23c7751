package strategy

import (
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// SMACrossConfig parameterizes the moving average cross strategy.
type SMACrossConfig struct {
	AccountID    schema.AccountID    `yaml:"-"`
	InstrumentID schema.InstrumentID `yaml:"-"`
	ShortWindow  int                 `yaml:"shortWindow"`
	LongWindow   int                 `yaml:"longWindow"`
	Qty          schema.Quantity     `yaml:"qty"`
}

// Validate checks window and size parameters.
func (c SMACrossConfig) Validate() error {
	if c.ShortWindow <= 0 || c.LongWindow <= 0 {
		return errors.New("windows must be > 0")
	}
	if c.ShortWindow >= c.LongWindow {
		return errors.New("shortWindow must be < longWindow")
	}
	if c.Qty <= 0 {
		return errors.New("qty must be > 0")
	}
	return nil
}

// SMACross trades a single instrument on short/long moving average crosses
// of trade prices. It keeps at most one working order; a cross while an
// order is open cancels it first and re-enters on the next cross.
type SMACross struct {
	Base
	cfg      SMACrossConfig
	prices   []schema.Price
	wasAbove bool
	primed   bool
	openID   uint64
}

// NewSMACross creates the strategy.
func NewSMACross(cfg SMACrossConfig) (*SMACross, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SMACross{cfg: cfg}, nil
}

// Name identifies the strategy in logs.
func (s *SMACross) Name() string {
	return "sma-cross"
}

// OnMarketData folds trade prices into the windows and trades the crosses.
func (s *SMACross) OnMarketData(ctx Context, md schema.MarketData) {
	if md.InstrumentID != s.cfg.InstrumentID || md.Kind != schema.MarketDataTrade {
		return
	}
	s.prices = append(s.prices, md.Price)
	if len(s.prices) > s.cfg.LongWindow {
		s.prices = s.prices[1:]
	}
	if len(s.prices) < s.cfg.LongWindow {
		return
	}

	above := s.sma(s.cfg.ShortWindow) > s.sma(s.cfg.LongWindow)
	if !s.primed {
		// The first complete window only records which side we are on.
		s.primed = true
		s.wasAbove = above
		return
	}
	if above == s.wasAbove {
		return
	}
	s.wasAbove = above

	if s.openID != 0 {
		if err := ctx.Cancel(s.openID); err != nil {
			logs.Warnf("cancel working order %d: %+v", s.openID, err)
		}
		s.openID = 0
	}

	side := schema.OrderSideSell
	if above {
		side = schema.OrderSideBuy
	}
	qty := s.entryQty(ctx, side)
	if qty <= 0 {
		return
	}
	id, err := ctx.Submit(OrderRequest{
		AccountID:    s.cfg.AccountID,
		InstrumentID: s.cfg.InstrumentID,
		Side:         side,
		Type:         schema.OrderTypeLimit,
		TimeInForce:  schema.TimeInForceGTC,
		Price:        md.Price,
		Qty:          qty,
	})
	if err != nil {
		logs.Warnf("submit on cross: %+v", err)
		return
	}
	s.openID = id
}

// OnOrderStatus clears the working order on any terminal state.
func (s *SMACross) OnOrderStatus(ctx Context, status schema.OrderStatus) {
	if status.OrderID != s.openID {
		return
	}
	switch status.Status {
	case schema.OrderStatusFilled, schema.OrderStatusCanceled,
		schema.OrderStatusRejected, schema.OrderStatusExpired:
		s.openID = 0
	}
}

func (s *SMACross) sma(window int) schema.Price {
	var sum int64
	for _, p := range s.prices[len(s.prices)-window:] {
		sum += int64(p)
	}
	return schema.Price(sum / int64(window))
}

// entryQty sizes the order so the position flips to the target side rather
// than stacking on top of it.
func (s *SMACross) entryQty(ctx Context, side schema.OrderSide) schema.Quantity {
	pos := ctx.Position(s.cfg.AccountID, s.cfg.InstrumentID)
	target := int64(s.cfg.Qty)
	if side == schema.OrderSideSell {
		target = -target
	}
	delta := target - int64(pos.NetQty)
	if side == schema.OrderSideSell {
		delta = -delta
	}
	if delta <= 0 {
		return 0
	}
	return schema.Quantity(delta)
}
