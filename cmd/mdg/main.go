package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"main/internal/codec"
	"main/internal/mdg"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/recorder"
	"main/internal/schema"
)

func main() {
	walDir := flag.String("wal-dir", "testdata/wal", "WAL directory for market data")
	configPath := flag.String("config", "", "Path to YAML config")
	ticks := flag.Int("ticks", 1000, "Number of ticks to generate")
	startTs := flag.Int64("start-ts", 0, "First tick timestamp in nanoseconds (0=now)")
	tickInterval := flag.Duration("tick-interval", time.Millisecond, "Event time between ticks")
	seed := flag.Int64("seed", 1, "Random walk seed")
	basePrice := flag.Int64("base-price", 100_000, "Base price (scaled)")
	baseSize := flag.Int64("base-size", 100, "Base size (scaled)")
	spread := flag.Int64("spread", 10, "Half bid/ask spread (scaled)")
	maxStep := flag.Int64("max-step", 5, "Max walk step in ticks")
	source := flag.Uint("source", 1, "Source ID")
	kind := flag.String("kind", "quote", "Market data kind: quote|trade")
	flag.Parse()

	if *ticks <= 0 {
		log.Fatalf("ticks must be > 0")
	}
	registry, err := loadRegistry(*configPath)
	if err != nil {
		log.Fatalf("registry load failed: %v", err)
	}
	mdKind, err := parseKind(*kind)
	if err != nil {
		log.Fatalf("invalid kind: %v", err)
	}

	generator, err := mdg.NewGenerator(registry, mdg.Config{
		Kind:      mdKind,
		Source:    uint16(*source),
		Seed:      *seed,
		BasePrice: *basePrice,
		BaseSize:  *baseSize,
		Spread:    *spread,
		MaxStep:   *maxStep,
	})
	if err != nil {
		log.Fatalf("generator init failed: %v", err)
	}

	ctx := context.Background()
	cfg := recorder.DefaultConfig(*walDir)
	writer, err := recorder.NewWriter(cfg)
	if err != nil {
		log.Fatalf("wal init failed: %v", err)
	}
	if err := writer.Start(ctx); err != nil {
		log.Fatalf("wal start failed: %v", err)
	}

	metrics := obs.NewMetrics()
	ts := *startTs
	if ts == 0 {
		ts = time.Now().UTC().UnixNano()
	}
	for i := 0; i < *ticks; i++ {
		header, md := generator.Next(ts)
		payload := codec.EncodeMarketData(nil, md)
		if err := writer.TryAppend(header, payload); err != nil {
			metrics.IncWALDrop()
			log.Fatalf("wal append failed: %v", err)
		}
		metrics.ObserveEvent(header)
		ts += int64(*tickInterval)
	}

	if err := writer.Close(); err != nil {
		log.Fatalf("wal close failed: %v", err)
	}
	snap := metrics.Snapshot()
	log.Printf("generated %d ticks: events=%v wal_drops=%d", *ticks, snap.EventCounts, snap.WALDrops)
}

func loadRegistry(path string) (*schema.Registry, error) {
	if path == "" {
		return defaultRegistry()
	}
	loaded, err := ops.Load(path)
	if err != nil {
		return nil, err
	}
	return loaded.Registry, nil
}

func defaultRegistry() (*schema.Registry, error) {
	reg := schema.NewRegistry()
	venueID, err := reg.AddVenue("SIM")
	if err != nil {
		return nil, err
	}
	if _, err := reg.AddInstrument(schema.Instrument{
		VenueID: venueID,
		Symbol:  "TEST-USD",
		Class:   schema.AssetClassSpot,
		Scale: schema.ScaleSpec{
			PriceScale:    8,
			QuantityScale: 8,
			NotionalScale: 8,
			FeeScale:      8,
		},
		TickSize: 1,
		LotSize:  1,
	}); err != nil {
		return nil, err
	}
	return reg, nil
}

func parseKind(kind string) (schema.MarketDataKind, error) {
	switch kind {
	case "quote":
		return schema.MarketDataQuote, nil
	case "trade":
		return schema.MarketDataTrade, nil
	default:
		return schema.MarketDataUnknown, fmt.Errorf("unsupported kind: %s", kind)
	}
}
