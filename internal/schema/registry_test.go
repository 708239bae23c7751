package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func builtRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	venueID, err := reg.AddVenue("BINANCE")
	require.NoError(t, err)
	_, err = reg.AddInstrument(Instrument{
		VenueID:  venueID,
		Symbol:   "BTCUSDT",
		Class:    AssetClassSpot,
		TickSize: 1,
		LotSize:  1,
	})
	require.NoError(t, err)
	_, err = reg.AddAccount("main", venueID, 1_000_000)
	require.NoError(t, err)
	return reg
}

func TestRegistryLookups(t *testing.T) {
	reg := builtRegistry(t)

	venueID, ok := reg.VenueIDByName("BINANCE")
	require.True(t, ok)
	assert.Equal(t, VenueID(1), venueID)

	instID, ok := reg.InstrumentIDBySymbol("BTCUSDT")
	require.True(t, ok)
	inst, ok := reg.Instrument(instID)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", inst.Symbol)
	assert.Equal(t, venueID, inst.VenueID)

	accID, ok := reg.AccountIDByName("main")
	require.True(t, ok)
	acc, ok := reg.Account(accID)
	require.True(t, ok)
	assert.Equal(t, Notional(1_000_000), acc.InitialBalance)

	_, ok = reg.Instrument(0)
	assert.False(t, ok)
	_, ok = reg.Instrument(99)
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicatesAndInvalid(t *testing.T) {
	reg := builtRegistry(t)

	_, err := reg.AddVenue("BINANCE")
	assert.Error(t, err)
	_, err = reg.AddInstrument(Instrument{VenueID: 1, Symbol: "BTCUSDT", TickSize: 1, LotSize: 1})
	assert.Error(t, err)
	_, err = reg.AddInstrument(Instrument{VenueID: 9, Symbol: "ETHUSDT", TickSize: 1, LotSize: 1})
	assert.Error(t, err)
	_, err = reg.AddInstrument(Instrument{VenueID: 1, Symbol: "ETHUSDT", TickSize: 0, LotSize: 1})
	assert.Error(t, err)
	_, err = reg.AddAccount("main", 1, 0)
	assert.Error(t, err)
}

func TestTopicFor(t *testing.T) {
	reg := builtRegistry(t)

	assert.Equal(t, "md.BTCUSDT.BINANCE", reg.TopicFor(EventMarketData, 1, 0))
	assert.Equal(t, "orders.BTCUSDT.BINANCE", reg.TopicFor(EventOrderStatus, 1, 0))
	assert.Equal(t, "fills.BTCUSDT.BINANCE", reg.TopicFor(EventFill, 1, 0))
	assert.Equal(t, "positions.BTCUSDT.BINANCE", reg.TopicFor(EventPositionChanged, 1, 0))
	assert.Equal(t, "accounts.BINANCE", reg.TopicFor(EventAccountState, 0, 1))
	assert.Equal(t, "accounts", reg.TopicFor(EventAccountState, 0, 99))
	assert.Equal(t, "risk", reg.TopicFor(EventRiskDecision, 1, 0))
	assert.Equal(t, "anomalies", reg.TopicFor(EventAnomaly, 1, 0))
	assert.Equal(t, "time", reg.TopicFor(EventTime, 0, 0))
	// Unknown instrument falls back to the root.
	assert.Equal(t, "md", reg.TopicFor(EventMarketData, 42, 0))
}

func TestNewHeaderCarriesSchemaVersion(t *testing.T) {
	header := NewHeader(EventFill, 2, 10, 100, 105)
	assert.Equal(t, SchemaVersion, header.Version)
	assert.Equal(t, EventFill, header.Type)
	assert.Equal(t, uint16(2), header.Source)
	assert.Equal(t, uint64(10), header.Seq)
}
