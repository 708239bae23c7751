// Package stream holds the live venue adapters. They speak the venue's
// websocket protocol on the outside and emit normalized schema events on
// the inside; nothing beyond this package sees venue-native formats.
package stream

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/codec"
	"main/internal/schema"
	"main/internal/venue"
)

// DataConfig controls one market data connection.
type DataConfig struct {
	VenueName string   `yaml:"venue"`
	URL       string   `yaml:"url"`
	Symbols   []string `yaml:"symbols"`
	QueueSize int      `yaml:"queueSize"`
}

// Validate checks the connection parameters.
func (c DataConfig) Validate() error {
	if c.VenueName == "" {
		return errors.New("venue name is empty")
	}
	if c.URL == "" {
		return errors.New("url is empty")
	}
	if len(c.Symbols) == 0 {
		return errors.New("no symbols to subscribe")
	}
	return nil
}

func (c DataConfig) withDefaults() DataConfig {
	if c.QueueSize == 0 {
		c.QueueSize = 4096
	}
	return c
}

// DataStream is a live market data adapter over one websocket connection.
type DataStream struct {
	cfg      DataConfig
	venueID  schema.VenueID
	registry *schema.Registry
	wss      *ws.WebSocket
	events   chan venue.Inbound
	seq      uint64
	dropped  atomic.Uint64
}

// NewDataStream creates a market data adapter. Symbols must exist in the
// registry; venue-native casing is resolved through it.
func NewDataStream(ctx context.Context, cfg DataConfig, registry *schema.Registry) (*DataStream, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	venueID, ok := registry.VenueIDByName(cfg.VenueName)
	if !ok {
		return nil, errors.Wrap(venue.ErrUnknownVenue, cfg.VenueName)
	}
	for _, symbol := range cfg.Symbols {
		if _, ok := registry.InstrumentIDBySymbol(symbol); !ok {
			return nil, errors.Errorf("stream: symbol not in registry: %s", symbol)
		}
	}
	return &DataStream{
		cfg:      cfg,
		venueID:  venueID,
		registry: registry,
		wss:      ws.New(ctx, cfg.URL),
		events:   make(chan venue.Inbound, cfg.QueueSize),
	}, nil
}

// Name identifies the adapter in logs and health reports.
func (s *DataStream) Name() string {
	return "md-" + s.cfg.VenueName
}

// Events returns the normalized event channel.
func (s *DataStream) Events() <-chan venue.Inbound {
	return s.events
}

// Dropped returns how many frames were discarded on queue overflow.
func (s *DataStream) Dropped() uint64 {
	return s.dropped.Load()
}

// Close tears down the connection and closes the event channel.
func (s *DataStream) Close() error {
	s.wss.Close()
	return nil
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type subscribeResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

type tradeMessage struct {
	EventType string          `json:"e"`
	EventTime int64           `json:"E"`
	Symbol    string          `json:"s"`
	Price     decimal.Decimal `json:"p"`
	Qty       decimal.Decimal `json:"q"`
}

type quoteMessage struct {
	Symbol   string          `json:"s"`
	BidPrice decimal.Decimal `json:"b"`
	BidQty   decimal.Decimal `json:"B"`
	AskPrice decimal.Decimal `json:"a"`
	AskQty   decimal.Decimal `json:"A"`
}

// Start connects, subscribes the configured symbols and spawns the reader.
// It may be called again after the previous stream ended; each start hands
// out a fresh event channel.
func (s *DataStream) Start(ctx context.Context) error {
	s.events = make(chan venue.Inbound, s.cfg.QueueSize)
	if err := s.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	if err := s.subscribe(ctx); err != nil {
		return err
	}
	go s.observe(ctx)
	return nil
}

func (s *DataStream) subscribe(ctx context.Context) error {
	params := make([]string, 0, len(s.cfg.Symbols)*2)
	for _, symbol := range s.cfg.Symbols {
		lower := strings.ToLower(symbol)
		params = append(params,
			fmt.Sprintf("%s@trade", lower),
			fmt.Sprintf("%s@bookTicker", lower),
		)
	}
	const reqID = 1
	if err := s.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			payload := subscribeRequest{Method: "SUBSCRIBE", Params: params, ID: reqID}
			if err := client.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[subscribeResponse](m)
			if !ok || resp.ID != reqID {
				return false, nil
			}
			if resp.Result != nil {
				return false, errors.Errorf("subscribe rejected: %+v", resp.Result)
			}
			return true, nil
		},
	}, true); err != nil {
		return errors.Wrap(err, "send and wait")
	}
	return nil
}

func (s *DataStream) observe(ctx context.Context) {
	ch, cancel := s.wss.Subscribe()
	defer cancel()
	defer close(s.events)
	for {
		select {
		case <-sys.Shutdown():
			return
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			s.handleMessage(m)
		}
	}
}

func (s *DataStream) handleMessage(m ws.Message) {
	if trade, ok := ws.ReadMessage[tradeMessage](m); ok && trade.EventType == "trade" {
		s.emitTrade(trade)
		return
	}
	if quote, ok := ws.ReadMessage[quoteMessage](m); ok && quote.Symbol != "" {
		s.emitQuote(quote)
	}
}

func (s *DataStream) emitTrade(msg tradeMessage) {
	inst, ok := s.instrument(msg.Symbol)
	if !ok {
		return
	}
	price, err := scaledFromDecimal(msg.Price, inst.Scale.PriceScale)
	if err != nil {
		logs.Errorf("normalize trade price, err: %+v", err)
		return
	}
	qty, err := scaledFromDecimal(msg.Qty, inst.Scale.QuantityScale)
	if err != nil {
		logs.Errorf("normalize trade qty, err: %+v", err)
		return
	}
	s.push(schema.MarketData{
		InstrumentID: inst.ID,
		Kind:         schema.MarketDataTrade,
		Price:        schema.Price(price),
		Size:         schema.Quantity(qty),
	}, msg.EventTime*int64(time.Millisecond))
}

func (s *DataStream) emitQuote(msg quoteMessage) {
	inst, ok := s.instrument(msg.Symbol)
	if !ok {
		return
	}
	bidPrice, err1 := scaledFromDecimal(msg.BidPrice, inst.Scale.PriceScale)
	bidQty, err2 := scaledFromDecimal(msg.BidQty, inst.Scale.QuantityScale)
	askPrice, err3 := scaledFromDecimal(msg.AskPrice, inst.Scale.PriceScale)
	askQty, err4 := scaledFromDecimal(msg.AskQty, inst.Scale.QuantityScale)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		logs.Errorf("normalize quote for %s failed", msg.Symbol)
		return
	}
	s.push(schema.MarketData{
		InstrumentID: inst.ID,
		Kind:         schema.MarketDataQuote,
		BidPrice:     schema.Price(bidPrice),
		BidSize:      schema.Quantity(bidQty),
		AskPrice:     schema.Price(askPrice),
		AskSize:      schema.Quantity(askQty),
	}, 0)
}

func (s *DataStream) instrument(symbol string) (schema.Instrument, bool) {
	id, ok := s.registry.InstrumentIDBySymbol(symbol)
	if !ok {
		return schema.Instrument{}, false
	}
	return s.registry.Instrument(id)
}

func (s *DataStream) push(md schema.MarketData, tsEvent int64) {
	now := time.Now().UTC().UnixNano()
	if tsEvent == 0 {
		tsEvent = now
	}
	s.seq++
	header := schema.NewHeader(schema.EventMarketData, uint16(s.venueID), s.seq, tsEvent, now)
	ev := venue.Inbound{Header: header, Payload: codec.EncodeMarketData(nil, md)}
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}
