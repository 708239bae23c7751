// Package venue defines the adapter boundary between the engine and the
// outside world. Adapters normalize venue-native feeds into schema events;
// everything inside the boundary is venue-agnostic.
package venue

import (
	"context"
	"errors"

	"main/internal/schema"
)

var (
	ErrNotConnected = errors.New("venue: not connected")
	ErrUnknownVenue = errors.New("venue: unknown venue")
)

// Inbound is one normalized event produced by an adapter. The header Source
// identifies the venue; Seq is the venue's per-connection sequence, not the
// engine sequence. Payload is encoded with the codec package.
type Inbound struct {
	Header  schema.EventHeader
	Payload []byte
}

// DataClient streams normalized market data into the engine. Events must be
// delivered in venue order on the returned channel; the channel closes when
// the client stops.
type DataClient interface {
	Name() string
	Start(ctx context.Context) error
	Events() <-chan Inbound
	Close() error
}

// ExecutionClient carries order flow to one venue and streams execution
// reports back. Submit and Cancel return an error only when the request
// could not be handed to the transport; the outcome arrives as events.
type ExecutionClient interface {
	Name() string
	Start(ctx context.Context) error
	Submit(ctx context.Context, intent schema.OrderIntent) error
	Cancel(ctx context.Context, cancel schema.CancelIntent) error
	Events() <-chan Inbound
	Close() error
}
