package mdg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func twoInstrumentRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	venueID, err := reg.AddVenue("SIM")
	require.NoError(t, err)
	for _, symbol := range []string{"BTC-USD", "ETH-USD"} {
		_, err := reg.AddInstrument(schema.Instrument{
			VenueID:  venueID,
			Symbol:   symbol,
			Class:    schema.AssetClassSpot,
			TickSize: 5,
			LotSize:  1,
		})
		require.NoError(t, err)
	}
	return reg
}

func TestNewGeneratorValidation(t *testing.T) {
	reg := twoInstrumentRegistry(t)

	_, err := NewGenerator(nil, Config{BasePrice: 100})
	assert.Error(t, err)
	_, err = NewGenerator(schema.NewRegistry(), Config{BasePrice: 100})
	assert.Error(t, err)
	_, err = NewGenerator(reg, Config{BasePrice: 0})
	assert.Error(t, err)

	_, err = NewGenerator(reg, Config{BasePrice: 100})
	assert.NoError(t, err)
}

func TestGeneratorRoundRobinAndSeq(t *testing.T) {
	g, err := NewGenerator(twoInstrumentRegistry(t), Config{BasePrice: 1_000, Source: 3})
	require.NoError(t, err)

	h1, md1 := g.Next(10)
	h2, md2 := g.Next(20)
	h3, md3 := g.Next(30)

	assert.Equal(t, schema.InstrumentID(1), md1.InstrumentID)
	assert.Equal(t, schema.InstrumentID(2), md2.InstrumentID)
	assert.Equal(t, schema.InstrumentID(1), md3.InstrumentID)

	assert.Equal(t, uint64(1), h1.Seq)
	assert.Equal(t, uint64(2), h2.Seq)
	assert.Equal(t, uint64(3), h3.Seq)
	assert.Equal(t, uint16(3), h1.Source)
	assert.Equal(t, int64(10), h1.TsEvent)
	assert.Equal(t, schema.EventMarketData, h1.Type)
}

func TestGeneratorPricesTickAlignedAndPositive(t *testing.T) {
	g, err := NewGenerator(twoInstrumentRegistry(t), Config{
		Kind:      schema.MarketDataTrade,
		Seed:      7,
		BasePrice: 20, // a few steps above zero, the floor must hold
		MaxStep:   3,
	})
	require.NoError(t, err)

	for i := 0; i < 1_000; i++ {
		_, md := g.Next(int64(i))
		require.Greater(t, md.Price, schema.Price(0))
		require.Zero(t, int64(md.Price)%5, "price %d not tick aligned", md.Price)
	}
}

func TestGeneratorQuoteSpread(t *testing.T) {
	g, err := NewGenerator(twoInstrumentRegistry(t), Config{
		BasePrice: 1_000,
		BaseSize:  50,
		Spread:    10,
	})
	require.NoError(t, err)

	_, md := g.Next(1)
	assert.Equal(t, schema.MarketDataQuote, md.Kind)
	assert.Equal(t, schema.Price(20), md.AskPrice-md.BidPrice)
	assert.Equal(t, schema.Quantity(50), md.BidSize)
	assert.Equal(t, schema.Quantity(50), md.AskSize)
}

func TestGeneratorDeterministicForSeed(t *testing.T) {
	build := func() *Generator {
		g, err := NewGenerator(twoInstrumentRegistry(t), Config{
			Kind:      schema.MarketDataTrade,
			Seed:      42,
			BasePrice: 10_000,
			MaxStep:   4,
		})
		require.NoError(t, err)
		return g
	}

	a, b := build(), build()
	for i := 0; i < 500; i++ {
		ha, mda := a.Next(int64(i))
		hb, mdb := b.Next(int64(i))
		require.Equal(t, ha, hb)
		require.Equal(t, mda, mdb)
	}
}
