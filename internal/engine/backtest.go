package engine

import (
	"context"
	"io"

	"github.com/yanun0323/errors"

	"main/internal/clock"
	"main/internal/codec"
	"main/internal/recorder"
	"main/internal/schema"
	"main/internal/venue"
	"main/internal/venue/sim"
)

// BacktestConfig controls one replay session.
type BacktestConfig struct {
	Engine Config     `yaml:"engine"`
	Venue  sim.Config `yaml:"venue"`

	// Sources are replayed WAL directories in priority order: when two
	// events carry the same timestamp, the earlier-listed source wins.
	Sources []BacktestSource `yaml:"sources"`
}

// BacktestSource is one recorded event directory.
type BacktestSource struct {
	Dir        string `yaml:"dir"`
	FilePrefix string `yaml:"filePrefix"`
}

// Backtest replays recorded events through the engine against the simulated
// venue. Identical inputs produce byte-identical outputs: the merge order is
// a pure function of (timestamp, source priority, insertion order), the
// clock is virtual and the venue is deterministic.
type Backtest struct {
	engine  *Engine
	clk     *clock.Virtual
	venue   *sim.Venue
	sources []*replaySource
	derived []venue.Inbound
}

type replaySource struct {
	iter     *recorder.Iterator
	priority int
	head     venue.Inbound
	ok       bool
}

// simExecution routes engine order flow into the simulated venue and holds
// the resulting events until the merge loop reaches their timestamps.
type simExecution struct {
	bt *Backtest
}

func (x *simExecution) Submit(_ context.Context, intent schema.OrderIntent) error {
	x.bt.enqueueDerived(x.bt.venue.Submit(intent, x.bt.clk.Now()))
	return nil
}

func (x *simExecution) Cancel(_ context.Context, cancel schema.CancelIntent) error {
	x.bt.enqueueDerived(x.bt.venue.Cancel(cancel, x.bt.clk.Now()))
	return nil
}

// NewBacktest wires an engine, a simulated venue and the replay sources.
// Remaining Options fields (bus, registry, risk, metrics, WAL) configure the
// shared engine; Options.Exec and Options.Clock are owned by the backtest.
func NewBacktest(cfg BacktestConfig, opts Options) (*Backtest, error) {
	if len(cfg.Sources) == 0 {
		return nil, errors.New("backtest: no sources")
	}
	bt := &Backtest{}
	simVenue, err := sim.New(cfg.Venue, opts.Registry)
	if err != nil {
		return nil, err
	}
	bt.venue = simVenue
	bt.clk = clock.NewVirtual(0)

	opts.Config = cfg.Engine
	opts.Clock = bt.clk
	opts.Exec = &simExecution{bt: bt}
	eng, err := New(opts)
	if err != nil {
		return nil, err
	}
	bt.engine = eng

	for i, src := range cfg.Sources {
		iter, err := recorder.OpenIterator(src.Dir, src.FilePrefix)
		if err != nil {
			return nil, errors.Wrap(err, "open backtest source").With("dir", src.Dir)
		}
		bt.sources = append(bt.sources, &replaySource{iter: iter, priority: i})
	}
	return bt, nil
}

// Engine returns the underlying engine, e.g. to attach strategies.
func (bt *Backtest) Engine() *Engine {
	return bt.engine
}

// Run replays all sources to exhaustion. The context only bounds the loop;
// cancellation aborts between events, never mid-event.
func (bt *Backtest) Run(ctx context.Context) error {
	defer func() {
		for _, src := range bt.sources {
			_ = src.iter.Close()
		}
	}()

	for _, src := range bt.sources {
		if err := bt.advanceSource(src); err != nil {
			return err
		}
	}

	bt.engine.Start(ctx)
	defer bt.engine.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		src, derived, ok := bt.next()
		if !ok {
			break
		}
		if derived {
			ev := bt.derived[0]
			bt.derived = bt.derived[1:]
			bt.step(ev)
			continue
		}
		ev := src.head
		if err := bt.advanceSource(src); err != nil {
			return err
		}
		bt.step(ev)
	}

	// The fault injector may still hold reordered events.
	bt.enqueueDerived(bt.venue.Flush())
	for len(bt.derived) > 0 {
		ev := bt.derived[0]
		bt.derived = bt.derived[1:]
		bt.step(ev)
	}
	return nil
}

// step advances the clock to the event time, fires timers, feeds market
// data to the simulated venue and dispatches the event.
func (bt *Backtest) step(ev venue.Inbound) {
	ts := ev.Header.TsEvent
	if ts > bt.clk.Now() {
		bt.clk.AdvanceTo(ts)
		bt.engine.Tick(ts)
	}
	if ev.Header.Type == schema.EventMarketData {
		// The venue sees the print before our strategies can react to it.
		if md, ok := codec.DecodeMarketData(ev.Payload); ok {
			bt.enqueueDerived(bt.venue.OnMarketData(md, ts))
		}
	}
	bt.engine.Dispatch(ev)
}

// next picks the earliest pending event: sources first on timestamp ties,
// then the derived queue in insertion order.
func (bt *Backtest) next() (*replaySource, bool, bool) {
	var (
		best   *replaySource
		found  bool
		bestTs int64
	)
	for _, src := range bt.sources {
		if !src.ok {
			continue
		}
		ts := src.head.Header.TsEvent
		if !found || ts < bestTs || (ts == bestTs && src.priority < best.priority) {
			best, bestTs, found = src, ts, true
		}
	}
	if len(bt.derived) > 0 {
		ts := bt.derived[0].Header.TsEvent
		if !found || ts < bestTs {
			return nil, true, true
		}
	}
	if !found {
		return nil, false, false
	}
	return best, false, true
}

func (bt *Backtest) advanceSource(src *replaySource) error {
	record, err := src.iter.Next()
	if err == io.EOF {
		src.ok = false
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read backtest source")
	}
	src.head = venue.Inbound{Header: record.Header, Payload: record.Payload}
	src.ok = true
	return nil
}

func (bt *Backtest) enqueueDerived(events []venue.Inbound) {
	bt.derived = append(bt.derived, events...)
}
