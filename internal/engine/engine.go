// Package engine is the serialization point of the system. Every inbound
// event, strategy request and timer tick funnels through one Engine on one
// goroutine; the bus, cache, OMS and risk gate all observe the same total
// order of events. The backtest and live runners differ only in where that
// order comes from.
package engine

import (
	"context"
	stderrors "errors"
	"net"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/cache"
	"main/internal/clock"
	"main/internal/codec"
	"main/internal/obs"
	"main/internal/oms"
	"main/internal/recorder"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/strategy"
	"main/internal/venue"
)

var (
	ErrUnknownInstrument = errors.New("engine: unknown instrument")
	ErrUnknownAccount    = errors.New("engine: unknown account")
)

// engineSource marks events derived inside the engine rather than received
// from a venue.
const engineSource uint16 = 0xFFFF

// Execution is the outbound side of the engine: the simulated venue in
// backtests, a live adapter otherwise.
type Execution interface {
	Submit(ctx context.Context, intent schema.OrderIntent) error
	Cancel(ctx context.Context, cancel schema.CancelIntent) error
}

// Config controls shared engine behavior.
type Config struct {
	// AckTimeout bounds how long a submitted order may wait for the venue
	// acknowledgment.
	AckTimeout time.Duration `yaml:"ackTimeout"`

	// FirstOrderID seeds engine-assigned order IDs.
	FirstOrderID uint64 `yaml:"firstOrderId"`

	// TraceSeed seeds the trace ID generator; backtests set it for
	// reproducible traces.
	TraceSeed uint64 `yaml:"traceSeed"`
}

func (c Config) withDefaults() Config {
	if c.AckTimeout == 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.FirstOrderID == 0 {
		c.FirstOrderID = 1
	}
	return c
}

// Engine owns the dispatch path. Not safe for concurrent use: the runners
// guarantee all calls happen on one goroutine.
type Engine struct {
	cfg      Config
	eventBus *bus.Bus
	clk      clock.Clock
	registry *schema.Registry
	cache    *cache.Cache
	orders   *oms.Manager
	risk     *risk.Engine
	metrics  *obs.Metrics
	traces   *obs.TraceGenerator
	wal      *recorder.Writer
	exec     Execution
	strats   []strategy.Strategy

	ctx         context.Context
	seq         uint64
	nextOrderID uint64
	refPrices   map[schema.InstrumentID]schema.Price
	traceByID   map[uint64]uint64
}

// Options bundle the engine's collaborators. Bus, registry, clock and risk
// config are required; WAL writer and metrics are optional.
type Options struct {
	Config   Config
	Bus      *bus.Bus
	Clock    clock.Clock
	Registry *schema.Registry
	Cache    *cache.Cache
	Risk     risk.Config
	Metrics  *obs.Metrics
	WAL      *recorder.Writer
	Exec     Execution
}

// New creates an engine. Strategies attach afterwards with AddStrategy.
func New(opts Options) (*Engine, error) {
	if opts.Bus == nil || opts.Clock == nil || opts.Registry == nil {
		return nil, errors.New("engine: bus, clock and registry are required")
	}
	if opts.Exec == nil {
		return nil, errors.New("engine: execution client is required")
	}
	cfg := opts.Config.withDefaults()
	c := opts.Cache
	if c == nil {
		c = cache.New(opts.Registry)
	}
	return &Engine{
		cfg:         cfg,
		eventBus:    opts.Bus,
		clk:         opts.Clock,
		registry:    opts.Registry,
		cache:       c,
		orders:      oms.NewManager(oms.Config{AckTimeout: cfg.AckTimeout}, c),
		risk:        risk.NewEngine(opts.Risk),
		metrics:     opts.Metrics,
		traces:      obs.NewTraceGenerator(cfg.TraceSeed),
		wal:         opts.WAL,
		exec:        opts.Exec,
		ctx:         context.Background(),
		seq:         0,
		nextOrderID: cfg.FirstOrderID,
		refPrices:   make(map[schema.InstrumentID]schema.Price),
		traceByID:   make(map[uint64]uint64),
	}, nil
}

// AddStrategy attaches a strategy. Must happen before the first event.
func (e *Engine) AddStrategy(s strategy.Strategy) {
	e.strats = append(e.strats, s)
}

// Cache exposes the state cache for runners and read-only consumers.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

// Seq returns the last assigned engine sequence number.
func (e *Engine) Seq() uint64 {
	return e.seq
}

// Start fires OnStart callbacks with the given context used for outbound
// venue calls.
func (e *Engine) Start(ctx context.Context) {
	e.ctx = ctx
	for _, s := range e.strats {
		s.OnStart(e)
	}
}

// Stop fires OnStop callbacks.
func (e *Engine) Stop() {
	for _, s := range e.strats {
		s.OnStop(e)
	}
}

// Dispatch applies one inbound venue event. This is the single entry point
// for externally produced events.
func (e *Engine) Dispatch(ev venue.Inbound) {
	start := time.Now()
	e.metrics.ObserveEvent(ev.Header)
	switch ev.Header.Type {
	case schema.EventMarketData:
		if md, ok := codec.DecodeMarketData(ev.Payload); ok {
			e.onMarketData(ev.Header, md)
		} else {
			e.onMalformed(ev.Header)
		}
	case schema.EventOrderStatus:
		if status, ok := codec.DecodeOrderStatus(ev.Payload); ok {
			e.onOrderStatus(ev.Header, status)
		} else {
			e.onMalformed(ev.Header)
		}
	case schema.EventFill:
		if fill, ok := codec.DecodeFill(ev.Payload); ok {
			e.onFill(ev.Header, fill)
		} else {
			e.onMalformed(ev.Header)
		}
	case schema.EventAnomaly:
		if anomaly, ok := codec.DecodeAnomaly(ev.Payload); ok {
			e.onAnomaly(ev.Header, anomaly)
		} else {
			e.onMalformed(ev.Header)
		}
	case schema.EventTime:
		e.Tick(ev.Header.TsEvent)
	default:
		logs.Warnf("dispatch: unhandled inbound event %s", ev.Header.Type)
	}
	e.metrics.ObserveDispatch(time.Since(start))
}

// Tick advances order lifecycle timers and notifies strategies. The runners
// call it whenever session time moves.
func (e *Engine) Tick(now int64) {
	e.publish(schema.EventTime, 0, 0, nil, now, 0)
	fx := e.orders.OnTime(now)
	e.publishEffects(fx, now, 0)
	for _, s := range e.strats {
		s.OnTime(e, now)
	}
}

func (e *Engine) onMarketData(header schema.EventHeader, md schema.MarketData) {
	if md.Kind == schema.MarketDataTrade && md.Price > 0 {
		e.refPrices[md.InstrumentID] = md.Price
	} else if md.Kind == schema.MarketDataQuote && md.BidPrice > 0 && md.AskPrice > 0 {
		e.refPrices[md.InstrumentID] = schema.Price((int64(md.BidPrice) + int64(md.AskPrice)) / 2)
	}
	e.republish(header, schema.EventMarketData, md.InstrumentID, 0, codec.EncodeMarketData(nil, md))
	for _, s := range e.strats {
		s.OnMarketData(e, md)
	}
}

// onAnomaly republishes an adapter-reported anomaly, e.g. a degraded data
// stream, so subscribers see it in the engine's total order.
func (e *Engine) onAnomaly(header schema.EventHeader, anomaly schema.Anomaly) {
	e.metrics.IncAnomaly(anomaly.Kind)
	e.republish(header, schema.EventAnomaly, anomaly.InstrumentID, 0, codec.EncodeAnomaly(nil, anomaly))
}

// onMalformed replaces an undecodable inbound event with an anomaly. Both
// runners observe the failure on the bus instead of a silent drop.
func (e *Engine) onMalformed(header schema.EventHeader) {
	logs.Warnf("dispatch: malformed %s payload source=%d seq=%d", header.Type, header.Source, header.Seq)
	anomaly := schema.Anomaly{Kind: schema.AnomalyMalformedEvent, Seq: header.Seq}
	e.metrics.IncAnomaly(anomaly.Kind)
	e.publish(schema.EventAnomaly, 0, 0, codec.EncodeAnomaly(nil, anomaly), header.TsEvent, header.TraceID)
}

func (e *Engine) onOrderStatus(header schema.EventHeader, status schema.OrderStatus) {
	now := e.clk.Now()
	fx := e.orders.OnOrderStatus(status, header.Seq, now)
	e.publishEffects(fx, now, e.traceByID[status.OrderID])
}

func (e *Engine) onFill(header schema.EventHeader, fill schema.Fill) {
	now := e.clk.Now()
	trace := e.traceByID[fill.OrderID]
	fx := e.orders.OnFill(fill, header.Seq, now)
	if len(fx.Positions) > 0 {
		// The fill was accepted; republish it and let strategies see it.
		if fill.AccountID == 0 {
			if o, ok := e.cache.Order(fill.OrderID); ok {
				fill.AccountID = o.Intent.AccountID
			}
		}
		e.publish(schema.EventFill, fill.InstrumentID, fill.AccountID, codec.EncodeFill(nil, fill), header.TsEvent, trace)
		e.publishEffects(fx, now, trace)
		for _, s := range e.strats {
			s.OnFill(e, fill)
		}
		return
	}
	e.publishEffects(fx, now, trace)
}

// Submit implements strategy.Context. The order runs through the risk gate
// synchronously; a denial never reaches the venue and surfaces as a
// REJECTED status before Submit returns.
func (e *Engine) Submit(req strategy.OrderRequest) (uint64, error) {
	if _, ok := e.registry.Instrument(req.InstrumentID); !ok {
		return 0, ErrUnknownInstrument
	}
	if _, ok := e.registry.Account(req.AccountID); !ok {
		return 0, ErrUnknownAccount
	}

	now := e.clk.Now()
	orderID := e.nextOrderID
	e.nextOrderID++
	trace := e.traces.Next()
	e.traceByID[orderID] = trace

	intent := schema.OrderIntent{
		OrderID:      orderID,
		AccountID:    req.AccountID,
		InstrumentID: req.InstrumentID,
		Side:         req.Side,
		Type:         req.Type,
		TimeInForce:  req.TimeInForce,
		Price:        req.Price,
		Qty:          req.Qty,
		ExpiresAt:    req.ExpiresAt,
	}
	e.publish(schema.EventOrderIntent, intent.InstrumentID, intent.AccountID, codec.EncodeOrderIntent(nil, intent), now, trace)

	evalStart := time.Now()
	pos := e.cache.Position(req.AccountID, req.InstrumentID)
	decision := e.risk.Evaluate(intent, risk.StateView{
		Position:        pos.NetQty,
		AccountNotional: e.cache.AccountNotional(req.AccountID),
		ReferencePrice:  e.refPrices[req.InstrumentID],
		Now:             now,
	})
	e.metrics.ObserveRiskEval(time.Since(evalStart))
	e.metrics.IncRiskReason(decision.Reason)
	e.publish(schema.EventRiskDecision, intent.InstrumentID, intent.AccountID, codec.EncodeRiskDecision(nil, decision), now, trace)

	if err := e.orders.Create(intent, now); err != nil {
		return 0, err
	}
	if decision.Action != schema.RiskActionAllow {
		fx := e.orders.MarkRejected(orderID, schema.StatusReasonRiskReject, now)
		e.publishEffects(fx, now, trace)
		return orderID, nil
	}

	if err := e.exec.Submit(e.ctx, intent); err != nil {
		logs.Errorf("submit order %d: %+v", orderID, err)
		if isTimeout(err) {
			// The deadline expired with the request possibly in flight;
			// the outcome is unknown, so time the order out defensively.
			fx := e.orders.MarkTimedOut(orderID, now)
			e.publishEffects(fx, now, trace)
			return orderID, nil
		}
		fx := e.orders.MarkRejected(orderID, schema.StatusReasonVenueReject, now)
		e.publishEffects(fx, now, trace)
		return orderID, nil
	}
	fx, err := e.orders.MarkSubmitted(orderID, now)
	if err != nil {
		logs.Errorf("mark submitted order %d: %+v", orderID, err)
	}
	e.publishEffects(fx, now, trace)
	return orderID, nil
}

// Cancel implements strategy.Context.
func (e *Engine) Cancel(orderID uint64) error {
	now := e.clk.Now()
	fx, _, err := e.orders.RequestCancel(orderID, now)
	e.publishEffects(fx, now, e.traceByID[orderID])
	return err
}

// Now implements strategy.Context.
func (e *Engine) Now() int64 {
	return e.clk.Now()
}

// Registry implements strategy.Context.
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// Position implements strategy.Context.
func (e *Engine) Position(account schema.AccountID, instrument schema.InstrumentID) cache.Position {
	return e.cache.Position(account, instrument)
}

// Account implements strategy.Context.
func (e *Engine) Account(id schema.AccountID) (cache.AccountBalance, bool) {
	return e.cache.Account(id)
}

// Order implements strategy.Context.
func (e *Engine) Order(id uint64) (cache.Order, bool) {
	return e.cache.Order(id)
}

// ArchiveTerminal drops terminal orders older than the cutoff from the
// cache. Runners call it after a snapshot has persisted that history.
func (e *Engine) ArchiveTerminal(before int64) []uint64 {
	archived := e.orders.ArchiveTerminal(before)
	for _, id := range archived {
		delete(e.traceByID, id)
	}
	return archived
}

// publishEffects pushes OMS-derived events out in deterministic field
// order and forwards cancel requests to the venue.
func (e *Engine) publishEffects(fx oms.Effects, now int64, trace uint64) {
	for _, status := range fx.Statuses {
		o, _ := e.cache.Order(status.OrderID)
		e.publish(schema.EventOrderStatus, status.InstrumentID, o.Intent.AccountID, codec.EncodeOrderStatus(nil, status), now, trace)
		for _, s := range e.strats {
			s.OnOrderStatus(e, status)
		}
	}
	for _, pos := range fx.Positions {
		e.publish(schema.EventPositionChanged, pos.InstrumentID, pos.AccountID, codec.EncodePositionChanged(nil, pos), now, trace)
	}
	for _, acc := range fx.Accounts {
		e.publish(schema.EventAccountState, 0, acc.AccountID, codec.EncodeAccountState(nil, acc), now, trace)
	}
	for _, anomaly := range fx.Anomalies {
		e.metrics.IncAnomaly(anomaly.Kind)
		e.publish(schema.EventAnomaly, anomaly.InstrumentID, 0, codec.EncodeAnomaly(nil, anomaly), now, trace)
	}
	for _, cancel := range fx.Cancels {
		e.publish(schema.EventCancelIntent, cancel.InstrumentID, 0, codec.EncodeCancelIntent(nil, cancel), now, trace)
		if err := e.exec.Cancel(e.ctx, cancel); err != nil {
			logs.Errorf("cancel order %d: %+v", cancel.OrderID, err)
		}
	}
}

// isTimeout reports whether an outbound venue call failed without a
// definitive answer: the request may or may not have reached the venue.
func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

// publish emits one engine-derived event to the bus and the WAL.
func (e *Engine) publish(eventType schema.EventType, instrument schema.InstrumentID, account schema.AccountID, payload []byte, tsEvent int64, trace uint64) {
	e.seq++
	header := schema.NewHeader(eventType, engineSource, e.seq, tsEvent, e.clk.Now())
	header.TraceID = trace
	e.emit(header, eventType, instrument, account, payload)
}

// republish forwards an inbound event under a fresh engine sequence while
// keeping its source, timestamps and trace.
func (e *Engine) republish(header schema.EventHeader, eventType schema.EventType, instrument schema.InstrumentID, account schema.AccountID, payload []byte) {
	e.seq++
	header.Seq = e.seq
	e.emit(header, eventType, instrument, account, payload)
}

func (e *Engine) emit(header schema.EventHeader, eventType schema.EventType, instrument schema.InstrumentID, account schema.AccountID, payload []byte) {
	topic := e.registry.TopicFor(eventType, instrument, account)
	e.eventBus.Publish(bus.Event{Topic: topic, Header: header, Payload: payload})
	if e.wal != nil {
		if err := e.wal.TryAppend(header, payload); err != nil {
			e.metrics.IncWALDrop()
		}
	}
}
