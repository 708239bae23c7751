package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/codec"
	"main/internal/recorder"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/strategy"
	"main/internal/venue/sim"
)

func writeQuoteWAL(t *testing.T, dir string, count int) {
	t.Helper()
	w, err := recorder.NewWriter(recorder.DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	for i := 1; i <= count; i++ {
		ts := int64(i) * 1_000
		md := schema.MarketData{
			InstrumentID: 1,
			Kind:         schema.MarketDataQuote,
			BidPrice:     995,
			BidSize:      100,
			AskPrice:     1005,
			AskSize:      100,
		}
		header := schema.NewHeader(schema.EventMarketData, 1, uint64(i), ts, ts)
		require.NoError(t, w.TryAppend(header, codec.EncodeMarketData(nil, md)))
	}
	require.NoError(t, w.Close())
}

// buyOnce lifts the ask with a single limit order on the first quote it sees.
type buyOnce struct {
	strategy.Base
	submitted bool
	orderID   uint64
	fills     []schema.Fill
}

func (s *buyOnce) Name() string { return "buy-once" }

func (s *buyOnce) OnMarketData(ctx strategy.Context, md schema.MarketData) {
	if s.submitted || md.AskPrice == 0 {
		return
	}
	id, err := ctx.Submit(strategy.OrderRequest{
		AccountID:    1,
		InstrumentID: md.InstrumentID,
		Side:         schema.OrderSideBuy,
		Type:         schema.OrderTypeLimit,
		TimeInForce:  schema.TimeInForceGTC,
		Price:        md.AskPrice,
		Qty:          5,
	})
	if err == nil {
		s.submitted = true
		s.orderID = id
	}
}

func (s *buyOnce) OnFill(_ strategy.Context, fill schema.Fill) {
	s.fills = append(s.fills, fill)
}

func runBacktest(t *testing.T, dir string) (*Backtest, *buyOnce, []capturedEvent) {
	t.Helper()
	eventBus := bus.New()
	t.Cleanup(eventBus.Close)
	events := capture(t, eventBus)

	bt, err := NewBacktest(BacktestConfig{
		Engine: Config{TraceSeed: 1},
		Venue: sim.Config{
			VenueID:     1,
			TakerFeeBps: 10,
			AckLatency:  100 * time.Nanosecond,
		},
		Sources: []BacktestSource{{Dir: dir}},
	}, Options{
		Bus:      eventBus,
		Registry: testRegistry(t),
		Risk:     risk.Config{},
	})
	require.NoError(t, err)

	strat := &buyOnce{}
	bt.Engine().AddStrategy(strat)
	require.NoError(t, bt.Run(context.Background()))
	return bt, strat, *events
}

func TestBacktestFillFlow(t *testing.T) {
	dir := t.TempDir()
	writeQuoteWAL(t, dir, 3)

	bt, strat, events := runBacktest(t, dir)

	require.True(t, strat.submitted)
	require.Len(t, strat.fills, 1)
	assert.Equal(t, schema.Price(1005), strat.fills[0].Price)
	assert.Equal(t, schema.Quantity(5), strat.fills[0].Qty)

	pos := bt.Engine().Position(1, 1)
	assert.Equal(t, schema.Quantity(5), pos.NetQty)
	assert.Equal(t, schema.Price(1005), pos.AvgPrice)

	o, ok := bt.Engine().Order(strat.orderID)
	require.True(t, ok)
	assert.Equal(t, schema.OrderStatusFilled, o.Status)

	// The venue ack lands one latency step after the quote that triggered it.
	var accepted *capturedEvent
	for i := range events {
		if events[i].Header.Type != schema.EventOrderStatus {
			continue
		}
		status, ok := codec.DecodeOrderStatus(events[i].Payload)
		require.True(t, ok)
		if status.Status == schema.OrderStatusAccepted {
			accepted = &events[i]
			break
		}
	}
	require.NotNil(t, accepted)
	assert.Equal(t, int64(1_000+100), accepted.Header.TsEvent)
}

func TestBacktestDeterminism(t *testing.T) {
	dir := t.TempDir()
	writeQuoteWAL(t, dir, 5)

	_, _, first := runBacktest(t, dir)
	_, _, second := runBacktest(t, dir)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Topic, second[i].Topic, "event %d", i)
		assert.Equal(t, first[i].Header, second[i].Header, "event %d", i)
		assert.Equal(t, first[i].Payload, second[i].Payload, "event %d", i)
	}
}

func TestBacktestDeterminismWithFaults(t *testing.T) {
	dir := t.TempDir()
	writeQuoteWAL(t, dir, 5)

	run := func() []capturedEvent {
		eventBus := bus.New()
		t.Cleanup(eventBus.Close)
		events := capture(t, eventBus)
		bt, err := NewBacktest(BacktestConfig{
			Engine: Config{TraceSeed: 7},
			Venue: sim.Config{
				VenueID:    1,
				AckLatency: 100 * time.Nanosecond,
				Fault: sim.FaultConfig{
					Seed:          7,
					DuplicateRate: 0.2,
				},
			},
			Sources: []BacktestSource{{Dir: dir}},
		}, Options{
			Bus:      eventBus,
			Registry: testRegistry(t),
			Risk:     risk.Config{},
		})
		require.NoError(t, err)
		strat := &buyOnce{}
		bt.Engine().AddStrategy(strat)
		require.NoError(t, bt.Run(context.Background()))
		return *events
	}

	first := run()
	second := run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Header, second[i].Header, "event %d", i)
		assert.Equal(t, first[i].Payload, second[i].Payload, "event %d", i)
	}
}

func TestBacktestRequiresSources(t *testing.T) {
	_, err := NewBacktest(BacktestConfig{}, Options{
		Bus:      bus.New(),
		Registry: testRegistry(t),
	})
	assert.Error(t, err)
}
