// Package oms owns the order lifecycle state machine. It consumes
// normalized venue events, mutates the cache (it is the cache's single
// writer) and returns the derived events for the engine to republish.
// Keeping the manager free of bus and network dependencies makes the state
// machine directly testable and identical across backtest and live paths.
package oms

import (
	"time"

	"github.com/yanun0323/errors"

	"main/internal/cache"
	"main/internal/schema"
)

var (
	ErrDuplicateOrder = errors.New("oms: order already exists")
	ErrUnknownOrder   = errors.New("oms: order not found")
	ErrInvalidIntent  = errors.New("oms: invalid order intent")
)

// Config controls timeout handling.
type Config struct {
	// AckTimeout is how long a SUBMITTED order may wait for the venue
	// acknowledgment before it is treated as REJECTED with reason timeout.
	AckTimeout time.Duration
}

// Effects are the events derived from applying one input to the state
// machine. The engine publishes them on the bus in field order and forwards
// Cancels to the execution client.
type Effects struct {
	Statuses  []schema.OrderStatus
	Positions []schema.PositionChanged
	Accounts  []schema.AccountState
	Anomalies []schema.Anomaly
	Cancels   []schema.CancelIntent
}

func (e *Effects) merge(other Effects) {
	e.Statuses = append(e.Statuses, other.Statuses...)
	e.Positions = append(e.Positions, other.Positions...)
	e.Accounts = append(e.Accounts, other.Accounts...)
	e.Anomalies = append(e.Anomalies, other.Anomalies...)
	e.Cancels = append(e.Cancels, other.Cancels...)
}

// Manager applies lifecycle transitions. Not safe for concurrent use; the
// engine serializes all calls through its dispatch point.
type Manager struct {
	cfg   Config
	cache *cache.Cache
}

// NewManager creates a manager writing through the given cache.
func NewManager(cfg Config, c *cache.Cache) *Manager {
	return &Manager{cfg: cfg, cache: c}
}

// Create registers a new order in INITIALIZED state. Called after the risk
// gate approves and before the execution client sends.
func (m *Manager) Create(intent schema.OrderIntent, now int64) error {
	if intent.OrderID == 0 || intent.Qty <= 0 {
		return ErrInvalidIntent
	}
	if intent.Type == schema.OrderTypeLimit && intent.Price <= 0 {
		return errors.Wrap(ErrInvalidIntent, "limit order without price")
	}
	if _, ok := m.cache.Order(intent.OrderID); ok {
		return ErrDuplicateOrder
	}
	m.cache.UpsertOrder(cache.Order{
		Intent:    intent,
		Status:    schema.OrderStatusInitialized,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return nil
}

// MarkSubmitted transitions INITIALIZED → SUBMITTED once the execution
// client acknowledges the outbound request was sent (not yet venue-accepted)
// and arms the acknowledgment deadline.
func (m *Manager) MarkSubmitted(orderID uint64, now int64) (Effects, error) {
	o, ok := m.cache.Order(orderID)
	if !ok {
		return Effects{}, ErrUnknownOrder
	}
	var fx Effects
	if !m.transition(&o, schema.OrderStatusSubmitted, schema.StatusReasonNone, now, &fx) {
		return fx, errors.Errorf("oms: cannot submit order %d in state %d", orderID, o.Status)
	}
	if m.cfg.AckTimeout > 0 {
		o.AckDeadline = now + int64(m.cfg.AckTimeout)
		m.cache.UpsertOrder(o)
	}
	return fx, nil
}

// MarkRejected terminates an order locally, e.g. on a risk denial or a
// failed outbound send. No venue round trip is involved.
func (m *Manager) MarkRejected(orderID uint64, reason schema.StatusReason, now int64) Effects {
	var fx Effects
	o, ok := m.cache.Order(orderID)
	if !ok {
		return fx
	}
	m.transition(&o, schema.OrderStatusRejected, reason, now, &fx)
	return fx
}

// MarkTimedOut terminates an order whose outbound send expired before any
// venue answer. The outcome is unknown, so the order becomes REJECTED with
// reason timeout and exactly one defensive cancel is emitted in case the
// request actually landed at the venue.
func (m *Manager) MarkTimedOut(orderID uint64, now int64) Effects {
	var fx Effects
	o, ok := m.cache.Order(orderID)
	if !ok {
		return fx
	}
	if m.transition(&o, schema.OrderStatusRejected, schema.StatusReasonTimeout, now, &fx) {
		if !o.CancelSent {
			fx.Cancels = append(fx.Cancels, schema.CancelIntent{
				OrderID:      o.Intent.OrderID,
				InstrumentID: o.Intent.InstrumentID,
			})
			o, _ = m.cache.Order(orderID)
			o.CancelSent = true
			m.cache.UpsertOrder(o)
		}
	}
	return fx
}

// RequestCancel moves an order toward cancellation. The returned flag tells
// the engine whether a cancel request must go to the venue; repeated cancels
// of the same order are idempotent and produce no duplicate venue request.
func (m *Manager) RequestCancel(orderID uint64, now int64) (Effects, bool, error) {
	var fx Effects
	o, ok := m.cache.Order(orderID)
	if !ok {
		return fx, false, ErrUnknownOrder
	}
	if IsTerminal(o.Status) || o.Status == schema.OrderStatusPendingCancel {
		return fx, false, nil
	}
	if o.Status == schema.OrderStatusInitialized {
		// Nothing was sent yet; cancel locally.
		m.transition(&o, schema.OrderStatusCanceled, schema.StatusReasonUserCancel, now, &fx)
		return fx, false, nil
	}
	if !m.transition(&o, schema.OrderStatusPendingCancel, schema.StatusReasonUserCancel, now, &fx) {
		return fx, false, nil
	}
	o, _ = m.cache.Order(orderID)
	o.CancelSent = true
	m.cache.UpsertOrder(o)
	fx.Cancels = append(fx.Cancels, schema.CancelIntent{
		OrderID:      orderID,
		InstrumentID: o.Intent.InstrumentID,
	})
	return fx, true, nil
}

// OnOrderStatus applies a venue order status event. Duplicate sequence
// numbers and illegal transitions are reported as anomalies and leave state
// unchanged; venue event duplication and reordering is expected.
func (m *Manager) OnOrderStatus(status schema.OrderStatus, seq uint64, now int64) Effects {
	var fx Effects
	o, ok := m.cache.Order(status.OrderID)
	if !ok {
		fx.Anomalies = append(fx.Anomalies, schema.Anomaly{
			Kind:         schema.AnomalyUnknownOrder,
			InstrumentID: status.InstrumentID,
			OrderID:      status.OrderID,
			Seq:          seq,
		})
		return fx
	}
	if seq != 0 && seq <= o.LastSeq {
		fx.Anomalies = append(fx.Anomalies, schema.Anomaly{
			Kind:         schema.AnomalyDuplicateEvent,
			InstrumentID: o.Intent.InstrumentID,
			OrderID:      status.OrderID,
			Seq:          seq,
		})
		return fx
	}

	target := status.Status
	reason := status.Reason
	switch target {
	case schema.OrderStatusCanceled:
		if reason == schema.StatusReasonNone {
			reason = schema.StatusReasonUserCancel
		}
	case schema.OrderStatusExpired:
		if reason == schema.StatusReasonNone {
			reason = schema.StatusReasonTimeInForce
		}
	}

	if IsTerminal(o.Status) {
		fx.Anomalies = append(fx.Anomalies, schema.Anomaly{
			Kind:         schema.AnomalyTerminalOrderEvent,
			InstrumentID: o.Intent.InstrumentID,
			OrderID:      status.OrderID,
			Seq:          seq,
		})
		return fx
	}
	if !m.transitionSeq(&o, target, reason, seq, now, &fx) {
		fx.Anomalies = append(fx.Anomalies, schema.Anomaly{
			Kind:         schema.AnomalyOutOfSequence,
			InstrumentID: o.Intent.InstrumentID,
			OrderID:      status.OrderID,
			Seq:          seq,
		})
	}
	return fx
}

// OnFill applies a venue fill event: order record, position aggregate and
// account state move together through the cache. A cancel racing with a
// fill resolves in favor of the fill, since the fill's sequence number
// precedes the cancel acknowledgment.
func (m *Manager) OnFill(fill schema.Fill, seq uint64, now int64) Effects {
	var fx Effects
	o, ok := m.cache.Order(fill.OrderID)
	if !ok {
		fx.Anomalies = append(fx.Anomalies, schema.Anomaly{
			Kind:         schema.AnomalyUnknownOrder,
			InstrumentID: fill.InstrumentID,
			OrderID:      fill.OrderID,
			Seq:          seq,
		})
		return fx
	}
	if seq != 0 && seq <= o.LastSeq {
		fx.Anomalies = append(fx.Anomalies, schema.Anomaly{
			Kind:         schema.AnomalyDuplicateEvent,
			InstrumentID: o.Intent.InstrumentID,
			OrderID:      fill.OrderID,
			Seq:          seq,
		})
		return fx
	}
	if IsTerminal(o.Status) {
		fx.Anomalies = append(fx.Anomalies, schema.Anomaly{
			Kind:         schema.AnomalyTerminalOrderEvent,
			InstrumentID: o.Intent.InstrumentID,
			OrderID:      fill.OrderID,
			Seq:          seq,
		})
		return fx
	}
	if o.Status == schema.OrderStatusInitialized || o.Status == schema.OrderStatusSubmitted {
		// A fill before the venue acknowledgment is a protocol reorder.
		fx.Anomalies = append(fx.Anomalies, schema.Anomaly{
			Kind:         schema.AnomalyOutOfSequence,
			InstrumentID: o.Intent.InstrumentID,
			OrderID:      fill.OrderID,
			Seq:          seq,
		})
		return fx
	}
	if fill.Qty <= 0 || o.FilledQty+fill.Qty > o.Intent.Qty {
		// Fill quantities may never exceed the requested quantity.
		fx.Anomalies = append(fx.Anomalies, schema.Anomaly{
			Kind:         schema.AnomalyQuantityOverflow,
			InstrumentID: o.Intent.InstrumentID,
			OrderID:      fill.OrderID,
			Seq:          seq,
		})
		return fx
	}

	position, account, err := m.cache.ApplyFill(fill)
	if err != nil {
		fx.Anomalies = append(fx.Anomalies, schema.Anomaly{
			Kind:         schema.AnomalyUnknownOrder,
			InstrumentID: fill.InstrumentID,
			OrderID:      fill.OrderID,
			Seq:          seq,
		})
		return fx
	}
	fx.Positions = append(fx.Positions, position)
	fx.Accounts = append(fx.Accounts, account)

	o, _ = m.cache.Order(fill.OrderID)
	filled := o.FilledQty == o.Intent.Qty
	switch {
	case filled:
		m.transitionSeq(&o, schema.OrderStatusFilled, schema.StatusReasonNone, seq, now, &fx)
	case o.Status == schema.OrderStatusPendingCancel:
		// Partial fill while a cancel is in flight: stay PENDING_CANCEL,
		// only record progress.
		o.LastSeq = seq
		o.UpdatedAt = now
		m.cache.UpsertOrder(o)
	default:
		m.transitionSeq(&o, schema.OrderStatusPartiallyFilled, schema.StatusReasonNone, seq, now, &fx)
	}
	return fx
}

// OnTime drives time-based transitions: venue acknowledgment timeouts and
// time-in-force expiry. An order whose ack deadline passed becomes REJECTED
// with reason timeout and exactly one defensive cancel is sent in case the
// order actually landed at the venue.
func (m *Manager) OnTime(now int64) Effects {
	var fx Effects
	for _, o := range m.cache.OpenOrders() {
		switch {
		case o.Status == schema.OrderStatusSubmitted && o.AckDeadline > 0 && now >= o.AckDeadline:
			var one Effects
			if m.transition(&o, schema.OrderStatusRejected, schema.StatusReasonTimeout, now, &one) {
				if !o.CancelSent {
					one.Cancels = append(one.Cancels, schema.CancelIntent{
						OrderID:      o.Intent.OrderID,
						InstrumentID: o.Intent.InstrumentID,
					})
					o, _ = m.cache.Order(o.Intent.OrderID)
					o.CancelSent = true
					m.cache.UpsertOrder(o)
				}
			}
			fx.merge(one)

		case o.Intent.TimeInForce != schema.TimeInForceGTC &&
			o.Intent.ExpiresAt > 0 && now >= o.Intent.ExpiresAt &&
			(o.Status == schema.OrderStatusSubmitted || o.Status == schema.OrderStatusAccepted ||
				o.Status == schema.OrderStatusPartiallyFilled):
			var one Effects
			m.transition(&o, schema.OrderStatusExpired, schema.StatusReasonTimeInForce, now, &one)
			fx.merge(one)
		}
	}
	return fx
}

// ArchiveTerminal removes terminal orders last touched before the given
// timestamp and returns their IDs so the store can archive them first.
func (m *Manager) ArchiveTerminal(before int64) []uint64 {
	var archived []uint64
	for _, o := range m.cache.TerminalOrders() {
		if o.UpdatedAt >= before {
			continue
		}
		m.cache.DeleteOrder(o.Intent.OrderID)
		archived = append(archived, o.Intent.OrderID)
	}
	return archived
}

func (m *Manager) transition(o *cache.Order, to schema.OrderStatusCode, reason schema.StatusReason, now int64, fx *Effects) bool {
	return m.transitionSeq(o, to, reason, 0, now, fx)
}

// transitionSeq applies one legal transition, persists the order and
// records the resulting status event. Returns false without mutating when
// the transition is illegal.
func (m *Manager) transitionSeq(o *cache.Order, to schema.OrderStatusCode, reason schema.StatusReason, seq uint64, now int64, fx *Effects) bool {
	if !CanTransition(o.Status, to) {
		return false
	}
	o.Status = to
	o.Reason = reason
	o.UpdatedAt = now
	if seq > o.LastSeq {
		o.LastSeq = seq
	}
	if to == schema.OrderStatusAccepted {
		o.AckDeadline = 0
	}
	m.cache.UpsertOrder(*o)

	fx.Statuses = append(fx.Statuses, schema.OrderStatus{
		OrderID:      o.Intent.OrderID,
		InstrumentID: o.Intent.InstrumentID,
		Status:       to,
		Reason:       reason,
		Price:        o.Intent.Price,
		Qty:          o.Intent.Qty,
		LeavesQty:    o.Intent.Qty - o.FilledQty,
	})
	return true
}
