package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/engine"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/recorder"
	"main/internal/venue"
	"main/internal/venue/stream"
)

type emptyLogger struct{}

func (emptyLogger) Infof(string, ...interface{})  {}
func (emptyLogger) Debugf(string, ...interface{}) {}
func (emptyLogger) Errorf(string, ...interface{}) {}

func main() {
	configPath := flag.String("config", "", "Path to YAML config")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty disables profiling)")
	flag.Parse()

	if *configPath == "" {
		log.Fatalf("config is required")
	}
	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trader",
			ServerAddress:   *pyroscopeAddr,
			Tags: map[string]string{
				"env": "live",
			},
			Logger: emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	metrics := obs.NewMetrics()
	eventBus := bus.New()
	eventBus.SetOverflowFunc(func(subscriber string, _ bus.Event) {
		metrics.IncOverflowDrop()
		logs.Warnf("subscriber %s dropped an event", subscriber)
	})
	if err := eventBus.SubscribeQueued("anomaly-log", "anomalies", 256, func(ev bus.Event) {
		logs.Warnf("anomaly seq=%d trace=%d", ev.Header.Seq, ev.Header.TraceID)
	}); err != nil {
		log.Fatalf("bus subscribe failed: %v", err)
	}
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

	data := make([]venue.DataClient, 0, len(loaded.LiveData))
	for _, dc := range loaded.LiveData {
		client, err := stream.NewDataStream(ctx, dc, loaded.Registry)
		if err != nil {
			log.Fatalf("data client %s init failed: %v", dc.VenueName, err)
		}
		data = append(data, client)
	}
	exec, err := stream.NewExecStream(ctx, loaded.LiveExec, loaded.Registry)
	if err != nil {
		log.Fatalf("execution client init failed: %v", err)
	}
	snaps, err := loaded.OpenSnapshotStore()
	if err != nil {
		log.Fatalf("snapshot store init failed: %v", err)
	}
	if snaps != nil {
		defer func() {
			_ = snaps.Close()
		}()
	}

	live, err := engine.NewLive(loaded.Live, engine.Options{
		Bus:      eventBus,
		Registry: loaded.Registry,
		Risk:     loaded.Risk,
		Metrics:  metrics,
		WAL:      wal,
	}, data, exec, snaps)
	if err != nil {
		log.Fatalf("live session init failed: %v", err)
	}
	strat, err := loaded.BuildStrategy()
	if err != nil {
		log.Fatalf("strategy init failed: %v", err)
	}
	live.Engine().AddStrategy(strat)

	logs.Infof("trader starting: strategy=%s", strat.Name())
	runErr := live.Run(ctx)

	if wal != nil {
		if err := wal.Close(); err != nil {
			log.Fatalf("wal close failed: %v", err)
		}
	}
	if runErr != nil {
		log.Fatalf("live session failed: %v", runErr)
	}

	snap := metrics.Snapshot()
	logs.Infof("trader stopped: events=%v risk_reasons=%v anomalies=%v overflow_drops=%d wal_drops=%d dispatch=%+v",
		snap.EventCounts, snap.RiskReasonCounts, snap.AnomalyCounts, snap.OverflowDrops, snap.WALDrops,
		snap.DispatchLatency)
}
