package engine

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/clock"
	"main/internal/codec"
	"main/internal/schema"
	"main/internal/store"
	"main/internal/venue"
)

// LiveConfig controls the live session loop.
type LiveConfig struct {
	Engine Config `yaml:"engine"`

	// TimeTick is the interval between timer events; it bounds how late an
	// ack timeout or order expiry can fire.
	TimeTick time.Duration `yaml:"timeTick"`

	// SnapshotInterval is how often cache state is persisted. Zero
	// disables snapshots.
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`

	// ArchiveAfter is how long terminal orders stay in the cache after
	// their last update. Zero keeps them for the whole session.
	ArchiveAfter time.Duration `yaml:"archiveAfter"`

	// InboxDepth bounds the staging queue between adapter goroutines and
	// the dispatch goroutine.
	InboxDepth int `yaml:"inboxDepth"`

	// ReconnectBackoff is the initial delay before restarting an adapter
	// whose stream ended; each attempt doubles it up to
	// ReconnectMaxBackoff.
	ReconnectBackoff    time.Duration `yaml:"reconnectBackoff"`
	ReconnectMaxBackoff time.Duration `yaml:"reconnectMaxBackoff"`
}

func (c LiveConfig) withDefaults() LiveConfig {
	if c.TimeTick == 0 {
		c.TimeTick = 100 * time.Millisecond
	}
	if c.InboxDepth == 0 {
		c.InboxDepth = 8192
	}
	if c.ReconnectBackoff == 0 {
		c.ReconnectBackoff = 500 * time.Millisecond
	}
	if c.ReconnectMaxBackoff == 0 {
		c.ReconnectMaxBackoff = 30 * time.Second
	}
	return c
}

// Live runs the engine against real adapters. Adapter goroutines forward
// into one inbox; the dispatch goroutine is the only caller of the engine,
// so live mode preserves the same total event order guarantees as a
// backtest.
type Live struct {
	cfg    LiveConfig
	engine *Engine
	clk    *clock.Wall
	data   []venue.DataClient
	exec   venue.ExecutionClient
	snaps  store.SnapshotStore
	inbox  chan venue.Inbound
}

// NewLive wires the live session. Options.Clock and Options.Exec are owned
// by the runner; snaps may be nil to disable persistence.
func NewLive(cfg LiveConfig, opts Options, data []venue.DataClient, exec venue.ExecutionClient, snaps store.SnapshotStore) (*Live, error) {
	if len(data) == 0 {
		return nil, errors.New("live: no data clients")
	}
	if exec == nil {
		return nil, errors.New("live: no execution client")
	}
	cfg = cfg.withDefaults()
	l := &Live{
		cfg:   cfg,
		clk:   clock.NewWall(),
		data:  data,
		exec:  exec,
		snaps: snaps,
		inbox: make(chan venue.Inbound, cfg.InboxDepth),
	}
	opts.Config = cfg.Engine
	opts.Clock = l.clk
	opts.Exec = exec
	eng, err := New(opts)
	if err != nil {
		return nil, err
	}
	l.engine = eng
	return l, nil
}

// Engine returns the underlying engine, e.g. to attach strategies.
func (l *Live) Engine() *Engine {
	return l.engine
}

// Run starts adapters and dispatches until the context ends or shutdown is
// requested. On exit it drains staged events, takes a final snapshot and
// closes the adapters.
func (l *Live) Run(ctx context.Context) error {
	if err := l.restore(ctx); err != nil {
		return err
	}

	forwardCtx, stopForward := context.WithCancel(ctx)
	defer stopForward()

	if err := l.exec.Start(ctx); err != nil {
		return errors.Wrap(err, "start execution client")
	}
	go l.supervise(forwardCtx, l.exec)
	for _, client := range l.data {
		if err := client.Start(ctx); err != nil {
			return errors.Wrap(err, "start data client").With("client", client.Name())
		}
		go l.supervise(forwardCtx, client)
	}

	l.engine.Start(ctx)
	defer l.engine.Stop()

	ticker := time.NewTicker(l.cfg.TimeTick)
	defer ticker.Stop()

	var snapC <-chan time.Time
	if l.snaps != nil && l.cfg.SnapshotInterval > 0 {
		snapTicker := time.NewTicker(l.cfg.SnapshotInterval)
		defer snapTicker.Stop()
		snapC = snapTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return l.shutdown()
		case <-sys.Shutdown():
			return l.shutdown()
		case ev := <-l.inbox:
			l.engine.Dispatch(ev)
		case <-ticker.C:
			l.engine.Tick(l.clk.Now())
		case <-snapC:
			l.snapshot()
		}
	}
}

// supervise keeps one adapter's stream flowing for the whole session. A
// stream that ends mid-session is reported as an anomaly and the adapter is
// restarted with capped exponential backoff.
func (l *Live) supervise(ctx context.Context, client venue.DataClient) {
	backoff := l.cfg.ReconnectBackoff
	for {
		if done := l.forward(ctx, client.Events()); done {
			return
		}
		logs.Warnf("adapter %s stream ended, reconnecting", client.Name())
		l.reportInterrupted(client.Name())
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < l.cfg.ReconnectMaxBackoff {
			backoff *= 2
		}
		if err := client.Start(ctx); err != nil {
			logs.Errorf("restart adapter %s: %+v", client.Name(), err)
			continue
		}
		logs.Infof("adapter %s reconnected", client.Name())
		backoff = l.cfg.ReconnectBackoff
	}
}

// forward moves one adapter's events into the shared inbox until the stream
// ends. Blocking here applies backpressure to the adapter's own queue,
// whose overflow policy decides what gets dropped. Returns true when the
// session context ended, false when the adapter's channel closed.
func (l *Live) forward(ctx context.Context, events <-chan venue.Inbound) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case ev, ok := <-events:
			if !ok {
				return false
			}
			select {
			case l.inbox <- ev:
			case <-ctx.Done():
				return true
			}
		}
	}
}

// reportInterrupted stages a degraded-stream anomaly so subscribers and
// metrics observe the interruption through the normal dispatch path.
func (l *Live) reportInterrupted(name string) {
	now := l.clk.Now()
	payload := codec.EncodeAnomaly(nil, schema.Anomaly{Kind: schema.AnomalyStreamInterrupted})
	select {
	case l.inbox <- venue.Inbound{
		Header:  schema.NewHeader(schema.EventAnomaly, engineSource, 0, now, now),
		Payload: payload,
	}:
	default:
		logs.Warnf("inbox full, dropped interruption report for %s", name)
	}
}

func (l *Live) restore(ctx context.Context) error {
	if l.snaps == nil {
		return nil
	}
	snap, err := l.snaps.Load(ctx)
	if err == store.ErrNoSnapshot {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load snapshot")
	}
	l.engine.Cache().Restore(snap)
	logs.Infof("restored snapshot ts=%d last_seq=%d", snap.Timestamp, snap.LastSeq)
	return nil
}

func (l *Live) snapshot() {
	now := l.clk.Now()
	snap := l.engine.Cache().Snapshot(now, l.engine.Seq())
	if err := l.snaps.Save(context.Background(), snap); err != nil {
		logs.Errorf("save snapshot: %+v", err)
		return
	}
	if l.cfg.ArchiveAfter > 0 {
		archived := l.engine.ArchiveTerminal(now - int64(l.cfg.ArchiveAfter))
		if len(archived) > 0 {
			logs.Infof("archived %d terminal orders", len(archived))
		}
	}
}

// shutdown drains whatever is already staged, persists a final snapshot and
// closes the adapters.
func (l *Live) shutdown() error {
	for {
		select {
		case ev := <-l.inbox:
			l.engine.Dispatch(ev)
		default:
			if l.snaps != nil {
				l.snapshot()
			}
			var firstErr error
			for _, client := range l.data {
				if err := client.Close(); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			if err := l.exec.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			return firstErr
		}
	}
}
