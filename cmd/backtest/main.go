package main

import (
	"context"
	"flag"
	"log"
	"time"

	"main/internal/bus"
	"main/internal/engine"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/recorder"
	"main/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	snapshotPath := flag.String("snapshot", "", "Write final cache snapshot to this path")
	flag.Parse()

	if *configPath == "" {
		log.Fatalf("config is required")
	}
	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	metrics := obs.NewMetrics()
	eventBus := bus.New()
	eventBus.SetOverflowFunc(func(subscriber string, _ bus.Event) {
		metrics.IncOverflowDrop()
	})
	defer eventBus.Close()

	var wal *recorder.Writer
	if loaded.WAL.Dir != "" {
		wal, err = recorder.NewWriter(loaded.WAL)
		if err != nil {
			log.Fatalf("wal init failed: %v", err)
		}
		if err := wal.Start(ctx); err != nil {
			log.Fatalf("wal start failed: %v", err)
		}
	}

	bt, err := engine.NewBacktest(loaded.Backtest, engine.Options{
		Bus:      eventBus,
		Registry: loaded.Registry,
		Risk:     loaded.Risk,
		Metrics:  metrics,
		WAL:      wal,
	})
	if err != nil {
		log.Fatalf("backtest init failed: %v", err)
	}
	strat, err := loaded.BuildStrategy()
	if err != nil {
		log.Fatalf("strategy init failed: %v", err)
	}
	bt.Engine().AddStrategy(strat)

	started := time.Now()
	if err := bt.Run(ctx); err != nil {
		log.Fatalf("backtest failed: %v", err)
	}
	elapsed := time.Since(started)

	if wal != nil {
		if err := wal.Close(); err != nil {
			log.Fatalf("wal close failed: %v", err)
		}
	}

	snap := metrics.Snapshot()
	log.Printf("backtest completed in %s: events=%v risk_reasons=%v anomalies=%v wal_drops=%d dispatch=%+v risk_eval=%+v",
		elapsed, snap.EventCounts, snap.RiskReasonCounts, snap.AnomalyCounts, snap.WALDrops,
		snap.DispatchLatency, snap.RiskEvalLatency)

	if *snapshotPath != "" {
		fs, err := store.NewFileStore(*snapshotPath)
		if err != nil {
			log.Fatalf("snapshot init failed: %v", err)
		}
		cacheSnap := bt.Engine().Cache().Snapshot(time.Now().UTC().UnixNano(), bt.Engine().Seq())
		if err := fs.Save(ctx, cacheSnap); err != nil {
			log.Fatalf("snapshot write failed: %v", err)
		}
		log.Printf("snapshot written: %s positions=%d orders=%d", *snapshotPath, len(cacheSnap.Positions), len(cacheSnap.Orders))
	}
}
