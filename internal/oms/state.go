package oms

import "main/internal/schema"

// The order lifecycle:
//
//	INITIALIZED → SUBMITTED → ACCEPTED ⇄ PARTIALLY_FILLED → FILLED
//
// REJECTED, CANCELED and EXPIRED are terminal and reachable from any
// non-terminal state. PENDING_CANCEL sits between ACCEPTED/PARTIALLY_FILLED
// and CANCELED while a cancel awaits venue confirmation.

// IsTerminal reports whether the state admits no further transitions.
func IsTerminal(state schema.OrderStatusCode) bool {
	switch state {
	case schema.OrderStatusFilled, schema.OrderStatusCanceled,
		schema.OrderStatusRejected, schema.OrderStatusExpired:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from → to is a legal lifecycle transition.
func CanTransition(from, to schema.OrderStatusCode) bool {
	if IsTerminal(from) {
		return false
	}
	switch to {
	case schema.OrderStatusRejected, schema.OrderStatusCanceled, schema.OrderStatusExpired:
		return true
	case schema.OrderStatusSubmitted:
		return from == schema.OrderStatusInitialized
	case schema.OrderStatusAccepted:
		return from == schema.OrderStatusSubmitted || from == schema.OrderStatusPartiallyFilled
	case schema.OrderStatusPartiallyFilled:
		return from == schema.OrderStatusAccepted ||
			from == schema.OrderStatusPartiallyFilled ||
			from == schema.OrderStatusPendingCancel
	case schema.OrderStatusFilled:
		return from == schema.OrderStatusAccepted ||
			from == schema.OrderStatusPartiallyFilled ||
			from == schema.OrderStatusPendingCancel
	case schema.OrderStatusPendingCancel:
		return from == schema.OrderStatusSubmitted ||
			from == schema.OrderStatusAccepted ||
			from == schema.OrderStatusPartiallyFilled
	default:
		return false
	}
}
