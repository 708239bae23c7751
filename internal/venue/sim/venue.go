// Package sim is the simulated venue used by backtests and paper trading.
// Given the same market data and order flow it produces byte-identical
// acknowledgments and fills: all state is derived from inputs, all iteration
// is ordered, and the only randomness is the seeded fault injector.
package sim

import (
	"sort"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/codec"
	"main/internal/schema"
	"main/internal/venue"
)

const maxInt64 = int64(^uint64(0) >> 1)

// Config controls simulated venue behavior.
type Config struct {
	VenueID     schema.VenueID `yaml:"-"`
	MakerFeeBps int64          `yaml:"makerFeeBps"`
	TakerFeeBps int64          `yaml:"takerFeeBps"`
	AckLatency  time.Duration  `yaml:"ackLatency"`
	Fault       FaultConfig    `yaml:"fault"`
}

// Validate checks fee and latency ranges.
func (c Config) Validate() error {
	if c.MakerFeeBps < 0 || c.TakerFeeBps < 0 {
		return errors.New("fee bps must be >= 0")
	}
	if c.AckLatency < 0 {
		return errors.New("ackLatency must be >= 0")
	}
	return c.Fault.Validate()
}

type book struct {
	lastTrade schema.Price
	bidPrice  schema.Price
	bidSize   schema.Quantity
	askPrice  schema.Price
	askSize   schema.Quantity
}

type restingOrder struct {
	intent schema.OrderIntent
	leaves schema.Quantity
}

// Venue matches orders against the market data stream. It is synchronous
// and single-threaded: every input returns the complete list of resulting
// venue events in emission order.
type Venue struct {
	cfg      Config
	registry *schema.Registry
	seq      uint64
	books    map[schema.InstrumentID]*book
	resting  map[uint64]*restingOrder
	faults   *injector
}

// New creates a simulated venue over the given instrument catalog.
func New(cfg Config, registry *schema.Registry) (*Venue, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	faults, err := newInjector(cfg.Fault)
	if err != nil {
		return nil, err
	}
	return &Venue{
		cfg:      cfg,
		registry: registry,
		books:    make(map[schema.InstrumentID]*book),
		resting:  make(map[uint64]*restingOrder),
		faults:   faults,
	}, nil
}

// Submit processes a new order: acknowledgment, immediate matching against
// the current book, and resting of any remainder for GTC limit orders.
func (v *Venue) Submit(intent schema.OrderIntent, now int64) []venue.Inbound {
	var out []venue.Inbound
	if _, ok := v.registry.Instrument(intent.InstrumentID); !ok {
		return v.emit(out, v.status(intent, schema.OrderStatusRejected, schema.StatusReasonVenueReject, intent.Qty, now))
	}
	if intent.Type == schema.OrderTypeLimit && !v.tickAligned(intent.InstrumentID, intent.Price) {
		return v.emit(out, v.status(intent, schema.OrderStatusRejected, schema.StatusReasonInvalidPrice, intent.Qty, now))
	}
	b := v.book(intent.InstrumentID)
	if intent.Type == schema.OrderTypeMarket && v.referencePrice(b, intent.Side) == 0 {
		// No book yet, a market order has nothing to cross.
		return v.emit(out, v.status(intent, schema.OrderStatusRejected, schema.StatusReasonInvalidPrice, intent.Qty, now))
	}

	fillPrice, available := v.crossable(b, intent)
	if intent.TimeInForce == schema.TimeInForceFOK && available < intent.Qty {
		out = v.emit(out, v.status(intent, schema.OrderStatusAccepted, schema.StatusReasonNone, intent.Qty, now))
		return v.emit(out, v.status(intent, schema.OrderStatusExpired, schema.StatusReasonTimeInForce, intent.Qty, now))
	}

	out = v.emit(out, v.status(intent, schema.OrderStatusAccepted, schema.StatusReasonNone, intent.Qty, now))

	leaves := intent.Qty
	if available > 0 {
		qty := leaves
		if available < qty {
			qty = available
		}
		out = v.emit(out, v.fill(intent, fillPrice, qty, schema.LiquidityTaker, now))
		leaves -= qty
	}
	if leaves == 0 {
		return out
	}

	switch {
	case intent.TimeInForce == schema.TimeInForceIOC:
		out = v.emit(out, v.status(intent, schema.OrderStatusExpired, schema.StatusReasonTimeInForce, leaves, now))
	case intent.Type == schema.OrderTypeMarket:
		// Market remainder never rests.
		out = v.emit(out, v.status(intent, schema.OrderStatusExpired, schema.StatusReasonTimeInForce, leaves, now))
	default:
		v.resting[intent.OrderID] = &restingOrder{intent: intent, leaves: leaves}
	}
	return out
}

// Cancel removes a resting order. A cancel for an order that is no longer
// resting produces no event: the race resolved in favor of the fill.
func (v *Venue) Cancel(cancel schema.CancelIntent, now int64) []venue.Inbound {
	o, ok := v.resting[cancel.OrderID]
	if !ok {
		return nil
	}
	delete(v.resting, cancel.OrderID)
	return v.emit(nil, v.status(o.intent, schema.OrderStatusCanceled, schema.StatusReasonUserCancel, o.leaves, now))
}

// OnMarketData updates the book and matches resting orders against the new
// liquidity. Matching walks orders by ascending order ID so replays are
// stable regardless of map layout.
func (v *Venue) OnMarketData(md schema.MarketData, now int64) []venue.Inbound {
	b := v.book(md.InstrumentID)
	switch md.Kind {
	case schema.MarketDataTrade:
		b.lastTrade = md.Price
	case schema.MarketDataQuote:
		b.bidPrice, b.bidSize = md.BidPrice, md.BidSize
		b.askPrice, b.askSize = md.AskPrice, md.AskSize
	default:
		return nil
	}

	ids := make([]uint64, 0, len(v.resting))
	for id, o := range v.resting {
		if o.intent.InstrumentID == md.InstrumentID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []venue.Inbound
	liquidity := v.eventLiquidity(md)
	for _, id := range ids {
		if liquidity <= 0 {
			break
		}
		o := v.resting[id]
		price, ok := v.restingCross(md, o.intent)
		if !ok {
			continue
		}
		qty := o.leaves
		if liquidity < qty {
			qty = liquidity
		}
		out = v.emit(out, v.fill(o.intent, price, qty, schema.LiquidityMaker, now))
		liquidity -= qty
		o.leaves -= qty
		if o.leaves == 0 {
			delete(v.resting, id)
		}
	}
	return out
}

// Flush drains any events held back by the fault injector's reorder window.
func (v *Venue) Flush() []venue.Inbound {
	return v.faults.flush()
}

func (v *Venue) book(id schema.InstrumentID) *book {
	b, ok := v.books[id]
	if !ok {
		b = &book{}
		v.books[id] = b
	}
	return b
}

func (v *Venue) tickAligned(id schema.InstrumentID, price schema.Price) bool {
	inst, ok := v.registry.Instrument(id)
	if !ok || inst.TickSize <= 0 {
		return price > 0
	}
	return price > 0 && price%inst.TickSize == 0
}

func (v *Venue) referencePrice(b *book, side schema.OrderSide) schema.Price {
	if side == schema.OrderSideBuy && b.askPrice > 0 {
		return b.askPrice
	}
	if side == schema.OrderSideSell && b.bidPrice > 0 {
		return b.bidPrice
	}
	return b.lastTrade
}

// crossable returns the immediate fill price and available quantity for a
// newly submitted order against the current book.
func (v *Venue) crossable(b *book, intent schema.OrderIntent) (schema.Price, schema.Quantity) {
	switch intent.Side {
	case schema.OrderSideBuy:
		if b.askPrice > 0 && (intent.Type == schema.OrderTypeMarket || intent.Price >= b.askPrice) {
			return b.askPrice, b.askSize
		}
	case schema.OrderSideSell:
		if b.bidPrice > 0 && (intent.Type == schema.OrderTypeMarket || intent.Price <= b.bidPrice) {
			return b.bidPrice, b.bidSize
		}
	}
	return 0, 0
}

// restingCross reports whether new market data crosses a resting limit
// order, and at which price the fill prints.
func (v *Venue) restingCross(md schema.MarketData, intent schema.OrderIntent) (schema.Price, bool) {
	switch md.Kind {
	case schema.MarketDataTrade:
		if intent.Side == schema.OrderSideBuy && md.Price <= intent.Price {
			return md.Price, true
		}
		if intent.Side == schema.OrderSideSell && md.Price >= intent.Price {
			return md.Price, true
		}
	case schema.MarketDataQuote:
		if intent.Side == schema.OrderSideBuy && md.AskPrice > 0 && md.AskPrice <= intent.Price {
			return md.AskPrice, true
		}
		if intent.Side == schema.OrderSideSell && md.BidPrice > 0 && md.BidPrice >= intent.Price {
			return md.BidPrice, true
		}
	}
	return 0, false
}

func (v *Venue) eventLiquidity(md schema.MarketData) schema.Quantity {
	if md.Kind == schema.MarketDataTrade {
		return md.Size
	}
	size := md.BidSize
	if md.AskSize > size {
		size = md.AskSize
	}
	return size
}

func (v *Venue) status(intent schema.OrderIntent, code schema.OrderStatusCode, reason schema.StatusReason, leaves schema.Quantity, now int64) venue.Inbound {
	payload := codec.EncodeOrderStatus(nil, schema.OrderStatus{
		OrderID:      intent.OrderID,
		InstrumentID: intent.InstrumentID,
		Status:       code,
		Reason:       reason,
		Price:        intent.Price,
		Qty:          intent.Qty,
		LeavesQty:    leaves,
	})
	return venue.Inbound{Header: v.header(schema.EventOrderStatus, now), Payload: payload}
}

func (v *Venue) fill(intent schema.OrderIntent, price schema.Price, qty schema.Quantity, liquidity schema.LiquidityFlag, now int64) venue.Inbound {
	bps := v.cfg.TakerFeeBps
	if liquidity == schema.LiquidityMaker {
		bps = v.cfg.MakerFeeBps
	}
	payload := codec.EncodeFill(nil, schema.Fill{
		OrderID:      intent.OrderID,
		InstrumentID: intent.InstrumentID,
		AccountID:    intent.AccountID,
		Side:         intent.Side,
		Liquidity:    liquidity,
		Price:        price,
		Qty:          qty,
		Fee:          fee(price, qty, bps),
	})
	return venue.Inbound{Header: v.header(schema.EventFill, now), Payload: payload}
}

func (v *Venue) header(eventType schema.EventType, now int64) schema.EventHeader {
	v.seq++
	ts := now + int64(v.cfg.AckLatency)
	return schema.NewHeader(eventType, uint16(v.cfg.VenueID), v.seq, ts, ts)
}

func (v *Venue) emit(out []venue.Inbound, ev venue.Inbound) []venue.Inbound {
	return append(out, v.faults.process(ev)...)
}

// fee computes bps of the fill notional, saturating instead of overflowing.
func fee(price schema.Price, qty schema.Quantity, bps int64) schema.Fee {
	if bps <= 0 || price <= 0 || qty <= 0 {
		return 0
	}
	p, q := int64(price), int64(qty)
	if p > maxInt64/q {
		return schema.Fee(maxInt64 / 10_000 * bps)
	}
	return schema.Fee(p * q / 10_000 * bps)
}
