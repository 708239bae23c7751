// Package mdg generates synthetic market data for backtest fixtures and
// load tests. The walk is seeded, so a fixture can be regenerated
// byte-identically from its parameters.
package mdg

import (
	"math/rand"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Config controls the synthetic walk.
type Config struct {
	Kind      schema.MarketDataKind
	Source    uint16
	Seed      int64
	BasePrice int64
	BaseSize  int64
	Spread    int64
	MaxStep   int64
}

// Generator produces a random walk across all instruments in the registry,
// round-robin.
type Generator struct {
	cfg         Config
	instruments []schema.Instrument
	prices      []int64
	rng         *rand.Rand
	index       int
	seq         uint64
}

// NewGenerator creates a generator for all instruments in the registry.
func NewGenerator(reg *schema.Registry, cfg Config) (*Generator, error) {
	if reg == nil || reg.InstrumentCount() == 0 {
		return nil, errors.New("registry has no instruments")
	}
	if cfg.BasePrice <= 0 {
		return nil, errors.New("base price must be > 0")
	}
	if cfg.BaseSize <= 0 {
		cfg.BaseSize = 1
	}
	if cfg.Spread < 0 {
		cfg.Spread = 0
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	if cfg.Kind == schema.MarketDataUnknown {
		cfg.Kind = schema.MarketDataQuote
	}

	instruments := make([]schema.Instrument, 0, reg.InstrumentCount())
	prices := make([]int64, 0, reg.InstrumentCount())
	for i := 0; i < reg.InstrumentCount(); i++ {
		inst, ok := reg.InstrumentAt(i)
		if !ok {
			continue
		}
		instruments = append(instruments, inst)
		prices = append(prices, cfg.BasePrice)
	}
	return &Generator{
		cfg:         cfg,
		instruments: instruments,
		prices:      prices,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Next creates the next tick in sequence at the given timestamp.
func (g *Generator) Next(now int64) (schema.EventHeader, schema.MarketData) {
	inst := g.instruments[g.index]
	price := g.step(g.index, inst.TickSize)
	g.index = (g.index + 1) % len(g.instruments)
	g.seq++

	header := schema.NewHeader(schema.EventMarketData, g.cfg.Source, g.seq, now, now)
	md := schema.MarketData{
		InstrumentID: inst.ID,
		Kind:         g.cfg.Kind,
	}
	switch g.cfg.Kind {
	case schema.MarketDataTrade:
		md.Price = schema.Price(price)
		md.Size = schema.Quantity(g.cfg.BaseSize)
	default:
		md.BidPrice = schema.Price(price - g.cfg.Spread)
		md.BidSize = schema.Quantity(g.cfg.BaseSize)
		md.AskPrice = schema.Price(price + g.cfg.Spread)
		md.AskSize = schema.Quantity(g.cfg.BaseSize)
	}
	return header, md
}

// step moves one instrument's price by a tick-aligned random amount,
// flooring at one tick so the walk never goes non-positive.
func (g *Generator) step(index int, tick schema.Price) int64 {
	if tick <= 0 {
		tick = 1
	}
	steps := g.rng.Int63n(2*g.cfg.MaxStep+1) - g.cfg.MaxStep
	next := g.prices[index] + steps*int64(tick)
	if next < int64(tick) {
		next = int64(tick)
	}
	g.prices[index] = next
	return next
}
