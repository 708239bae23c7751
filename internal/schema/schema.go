package schema

// SchemaVersion is the current event schema version.
const SchemaVersion uint16 = 2

// EventType is the tag of the event union carried on the bus and in the WAL.
type EventType uint16

const (
	EventUnknown EventType = iota
	EventMarketData
	EventOrderIntent
	EventCancelIntent
	EventOrderStatus
	EventFill
	EventPositionChanged
	EventAccountState
	EventTime
	EventRiskDecision
	EventAnomaly
)

// EventHeader is the common metadata attached to every event.
//
// Seq is assigned at the engine's serialization point and is strictly
// monotonic within a session. TsEvent is venue time in live mode and
// simulated time in backtests; TsRecv is local receive time.
type EventHeader struct {
	Type    EventType
	Version uint16
	Source  uint16
	Flags   uint16
	Seq     uint64
	TsEvent int64
	TsRecv  int64
	TraceID uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(eventType EventType, source uint16, seq uint64, tsEvent, tsRecv int64) EventHeader {
	return EventHeader{
		Type:    eventType,
		Version: SchemaVersion,
		Source:  source,
		Seq:     seq,
		TsEvent: tsEvent,
		TsRecv:  tsRecv,
	}
}

// String returns the event type name for logs and tooling.
func (t EventType) String() string {
	switch t {
	case EventMarketData:
		return "MarketData"
	case EventOrderIntent:
		return "OrderIntent"
	case EventCancelIntent:
		return "CancelIntent"
	case EventOrderStatus:
		return "OrderStatus"
	case EventFill:
		return "Fill"
	case EventPositionChanged:
		return "PositionChanged"
	case EventAccountState:
		return "AccountState"
	case EventTime:
		return "Time"
	case EventRiskDecision:
		return "RiskDecision"
	case EventAnomaly:
		return "Anomaly"
	default:
		return "Unknown"
	}
}
