package schema

// Price is a scaled integer. The scale is defined per instrument.
type Price int64

// Quantity is a scaled integer. The scale is defined per instrument.
type Quantity int64

// Notional is a scaled integer. The scale is defined per instrument.
type Notional int64

// Fee is a scaled integer. The scale is defined per instrument.
type Fee int64

// MarketDataKind describes the meaning of the market data payload.
type MarketDataKind uint16

const (
	MarketDataUnknown MarketDataKind = iota
	MarketDataTrade
	MarketDataQuote
)

// MarketData is the payload for EventMarketData.
type MarketData struct {
	InstrumentID InstrumentID
	Kind         MarketDataKind
	Flags        uint16
	Price        Price
	Size         Quantity
	BidPrice     Price
	BidSize      Quantity
	AskPrice     Price
	AskSize      Quantity
}

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
	OrderTypeStop
)

// TimeInForce describes how long an order remains active.
type TimeInForce uint16

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceGTC
	TimeInForceIOC
	TimeInForceFOK
	TimeInForceDay
)

// OrderIntent is the payload for EventOrderIntent, a strategy's request to
// submit a new order. ExpiresAt is the absolute expiry timestamp for
// non-GTC orders; zero means no expiry.
type OrderIntent struct {
	OrderID      uint64
	StrategyID   uint32
	AccountID    AccountID
	InstrumentID InstrumentID
	Side         OrderSide
	Type         OrderType
	TimeInForce  TimeInForce
	Flags        uint16
	Price        Price
	Qty          Quantity
	ExpiresAt    int64
}

// CancelIntent is the payload for EventCancelIntent, a request to cancel an
// open order.
type CancelIntent struct {
	OrderID      uint64
	InstrumentID InstrumentID
	Flags        uint16
	Reserved     uint16
}

// OrderStatusCode mirrors the order lifecycle states on the wire.
// Initialized never leaves the process; it exists between a strategy's
// request and the outbound send.
type OrderStatusCode uint16

const (
	OrderStatusUnknown OrderStatusCode = iota
	OrderStatusInitialized
	OrderStatusSubmitted
	OrderStatusAccepted
	OrderStatusRejected
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusPendingCancel
	OrderStatusCanceled
	OrderStatusExpired
)

// StatusReason is a coarse reason code attached to order status events.
type StatusReason uint16

const (
	StatusReasonNone StatusReason = iota
	StatusReasonVenueReject
	StatusReasonRiskReject
	StatusReasonTimeout
	StatusReasonInvalidPrice
	StatusReasonInsufficientMargin
	StatusReasonUserCancel
	StatusReasonTimeInForce
	StatusReasonRetriesExhausted
)

// OrderStatus is the payload for EventOrderStatus.
type OrderStatus struct {
	OrderID      uint64
	InstrumentID InstrumentID
	Status       OrderStatusCode
	Reason       StatusReason
	Flags        uint16
	Reserved     uint16
	Price        Price
	Qty          Quantity
	LeavesQty    Quantity
}

// LiquidityFlag marks whether a fill added or removed liquidity.
type LiquidityFlag uint16

const (
	LiquidityUnknown LiquidityFlag = iota
	LiquidityMaker
	LiquidityTaker
)

// Fill is the payload for EventFill. Fills are immutable once published.
type Fill struct {
	OrderID      uint64
	InstrumentID InstrumentID
	AccountID    AccountID
	Side         OrderSide
	Liquidity    LiquidityFlag
	Price        Price
	Qty          Quantity
	Fee          Fee
}

// PositionChanged is the payload for EventPositionChanged. NetQty is the
// signed sum of fills for the (account, instrument) pair since last flat;
// AvgPrice is the average entry price of the open quantity.
type PositionChanged struct {
	AccountID    AccountID
	InstrumentID InstrumentID
	Flags        uint16
	Reserved     uint16
	NetQty       Quantity
	AvgPrice     Price
}

// AccountState is the payload for EventAccountState.
type AccountState struct {
	AccountID     AccountID
	VenueID       VenueID
	Balance       Notional
	MarginUsed    Notional
	RealizedPnL   Notional
	UnrealizedPnL Notional
}

// RiskAction is the outcome of a risk decision.
type RiskAction uint16

const (
	RiskActionUnknown RiskAction = iota
	RiskActionAllow
	RiskActionDeny
)

// RiskReason is a coarse reason code for risk decisions.
type RiskReason uint16

const (
	RiskReasonNone RiskReason = iota
	RiskReasonKillSwitch
	RiskReasonMaxQty
	RiskReasonMaxNotional
	RiskReasonAccountExposure
	RiskReasonRateLimit
	RiskReasonPriceBand
	RiskReasonPositionLimit
)

// RiskDecision is the payload for EventRiskDecision.
type RiskDecision struct {
	OrderID       uint64
	StrategyID    uint32
	InstrumentID  InstrumentID
	Action        RiskAction
	Reason        RiskReason
	Flags         uint16
	Reserved      uint16
	ProposedQty   Quantity
	ProposedPrice Price
	CurrentPos    Quantity
	MaxPos        Quantity
	MaxNotional   Notional
}

// AnomalyKind classifies protocol anomalies and degraded conditions. All of
// these are recoverable; they are published so any subscriber observes them
// identically in backtest and live runs.
type AnomalyKind uint16

const (
	AnomalyUnknown AnomalyKind = iota
	AnomalyDuplicateEvent
	AnomalyUnknownOrder
	AnomalyTerminalOrderEvent
	AnomalyQuantityOverflow
	AnomalySubscriberOverflow
	AnomalyOutOfSequence
	AnomalyMalformedEvent
	AnomalyStreamInterrupted
)

// Anomaly is the payload for EventAnomaly.
type Anomaly struct {
	Kind         AnomalyKind
	Reserved     uint16
	InstrumentID InstrumentID
	OrderID      uint64
	Seq          uint64
}

// String returns a short name for the anomaly kind.
func (k AnomalyKind) String() string {
	switch k {
	case AnomalyDuplicateEvent:
		return "duplicate_event"
	case AnomalyUnknownOrder:
		return "unknown_order"
	case AnomalyTerminalOrderEvent:
		return "terminal_order_event"
	case AnomalyQuantityOverflow:
		return "quantity_overflow"
	case AnomalySubscriberOverflow:
		return "subscriber_overflow"
	case AnomalyOutOfSequence:
		return "out_of_sequence"
	case AnomalyMalformedEvent:
		return "malformed_event"
	case AnomalyStreamInterrupted:
		return "stream_interrupted"
	default:
		return "unknown"
	}
}
