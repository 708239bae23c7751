package schema

import "fmt"

// Topic roots. Topics are hierarchical dot-separated strings, e.g.
// "orders.BTCUSDT.BINANCE". Subscribers may use "*" to match one segment
// or a trailing ">" to match the rest.
const (
	TopicRootMarketData = "md"
	TopicRootOrders     = "orders"
	TopicRootFills      = "fills"
	TopicRootPositions  = "positions"
	TopicRootAccounts   = "accounts"
	TopicRootRisk       = "risk"
	TopicRootAnomalies  = "anomalies"
	TopicTime           = "time"
)

// TopicFor builds the publish topic for an event. Instrument-scoped events
// use "<root>.<symbol>.<venue>"; account events use "accounts.<venue>";
// risk, anomaly and time events use flat topics.
func (r *Registry) TopicFor(eventType EventType, instrumentID InstrumentID, accountID AccountID) string {
	switch eventType {
	case EventMarketData:
		return r.instrumentTopic(TopicRootMarketData, instrumentID)
	case EventOrderIntent, EventCancelIntent, EventOrderStatus:
		return r.instrumentTopic(TopicRootOrders, instrumentID)
	case EventFill:
		return r.instrumentTopic(TopicRootFills, instrumentID)
	case EventPositionChanged:
		return r.instrumentTopic(TopicRootPositions, instrumentID)
	case EventAccountState:
		if account, ok := r.Account(accountID); ok {
			if venue, ok := r.Venue(account.VenueID); ok {
				return TopicRootAccounts + "." + venue.Name
			}
		}
		return TopicRootAccounts
	case EventRiskDecision:
		return TopicRootRisk
	case EventAnomaly:
		return TopicRootAnomalies
	case EventTime:
		return TopicTime
	default:
		return fmt.Sprintf("unknown.%d", eventType)
	}
}

func (r *Registry) instrumentTopic(root string, id InstrumentID) string {
	inst, ok := r.Instrument(id)
	if !ok {
		return root
	}
	venue, ok := r.Venue(inst.VenueID)
	if !ok {
		return root + "." + inst.Symbol
	}
	return root + "." + inst.Symbol + "." + venue.Name
}
