package stream

import (
	"context"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
	"golang.org/x/time/rate"

	"main/internal/codec"
	"main/internal/schema"
	"main/internal/venue"
)

// ExecConfig controls one order entry connection.
type ExecConfig struct {
	VenueName   string  `yaml:"venue"`
	Account     string  `yaml:"account"`
	URL         string  `yaml:"url"`
	APIKey      string  `yaml:"apiKey"`
	QueueSize   int     `yaml:"queueSize"`
	SubmitRate  float64 `yaml:"submitRate"`
	SubmitBurst int     `yaml:"submitBurst"`

	// MaxRetries bounds resends of one outbound request on transient
	// transport errors. Venue rejections are never retried.
	MaxRetries int `yaml:"maxRetries"`
}

// Validate checks the connection parameters.
func (c ExecConfig) Validate() error {
	if c.VenueName == "" {
		return errors.New("venue name is empty")
	}
	if c.URL == "" {
		return errors.New("url is empty")
	}
	if c.SubmitRate < 0 {
		return errors.New("submitRate must be >= 0")
	}
	return nil
}

func (c ExecConfig) withDefaults() ExecConfig {
	if c.QueueSize == 0 {
		c.QueueSize = 1024
	}
	if c.SubmitRate == 0 {
		c.SubmitRate = 10
	}
	if c.SubmitBurst == 0 {
		c.SubmitBurst = 5
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	return c
}

// ExecStream is a live execution adapter. Outbound requests go through a
// token bucket so the venue's request limits are never tripped; execution
// reports come back on the event channel.
type ExecStream struct {
	cfg       ExecConfig
	venueID   schema.VenueID
	accountID schema.AccountID
	registry  *schema.Registry
	wss       *ws.WebSocket
	limiter   *rate.Limiter
	events    chan venue.Inbound
	seq       uint64
	reqID     int64
}

// NewExecStream creates an execution adapter for one venue.
func NewExecStream(ctx context.Context, cfg ExecConfig, registry *schema.Registry) (*ExecStream, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	venueID, ok := registry.VenueIDByName(cfg.VenueName)
	if !ok {
		return nil, errors.Wrap(venue.ErrUnknownVenue, cfg.VenueName)
	}
	var accountID schema.AccountID
	if cfg.Account != "" {
		accountID, ok = registry.AccountIDByName(cfg.Account)
		if !ok {
			return nil, errors.Errorf("exec: unknown account %q", cfg.Account)
		}
	}
	return &ExecStream{
		cfg:       cfg,
		venueID:   venueID,
		accountID: accountID,
		registry:  registry,
		wss:       ws.New(ctx, cfg.URL),
		limiter:   rate.NewLimiter(rate.Limit(cfg.SubmitRate), cfg.SubmitBurst),
		events:    make(chan venue.Inbound, cfg.QueueSize),
	}, nil
}

// Name identifies the adapter in logs and health reports.
func (s *ExecStream) Name() string {
	return "exec-" + s.cfg.VenueName
}

// Events returns the execution report channel.
func (s *ExecStream) Events() <-chan venue.Inbound {
	return s.events
}

// Close tears down the connection.
func (s *ExecStream) Close() error {
	s.wss.Close()
	return nil
}

// Start connects, authenticates and spawns the execution report reader. It
// may be called again after the previous stream ended; each start hands out
// a fresh event channel.
func (s *ExecStream) Start(ctx context.Context) error {
	s.events = make(chan venue.Inbound, s.cfg.QueueSize)
	if err := s.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	if s.cfg.APIKey != "" {
		if err := s.authenticate(ctx); err != nil {
			return err
		}
	}
	go s.observe(ctx)
	return nil
}

type execRequest struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

type execResponse struct {
	ID    int64 `json:"id"`
	Error any   `json:"error"`
}

func (s *ExecStream) authenticate(ctx context.Context) error {
	return s.sendAndWait(ctx, "session.logon", map[string]any{
		"apiKey": s.cfg.APIKey,
	})
}

// Submit sends a new order request. An error means the request never left
// the process; a venue-side rejection arrives as an order status event.
func (s *ExecStream) Submit(ctx context.Context, intent schema.OrderIntent) error {
	inst, ok := s.registry.Instrument(intent.InstrumentID)
	if !ok {
		return errors.Errorf("exec: unknown instrument %d", intent.InstrumentID)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "submit rate wait")
	}
	params := map[string]any{
		"symbol":           inst.Symbol,
		"side":             sideString(intent.Side),
		"type":             typeString(intent.Type),
		"timeInForce":      tifString(intent.TimeInForce),
		"quantity":         decimalFromScaled(int64(intent.Qty), inst.Scale.QuantityScale),
		"newClientOrderId": intent.OrderID,
	}
	if intent.Type == schema.OrderTypeLimit {
		params["price"] = decimalFromScaled(int64(intent.Price), inst.Scale.PriceScale)
	}
	return s.sendAndWait(ctx, "order.place", params)
}

// Cancel sends a cancel request for an open order.
func (s *ExecStream) Cancel(ctx context.Context, cancel schema.CancelIntent) error {
	inst, ok := s.registry.Instrument(cancel.InstrumentID)
	if !ok {
		return errors.Errorf("exec: unknown instrument %d", cancel.InstrumentID)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "cancel rate wait")
	}
	return s.sendAndWait(ctx, "order.cancel", map[string]any{
		"symbol":            inst.Symbol,
		"origClientOrderId": cancel.OrderID,
	})
}

const (
	retryBaseBackoff = 50 * time.Millisecond
	retryMaxBackoff  = time.Second
)

// retryOutbound runs one outbound request up to maxRetries+1 times with
// bounded exponential backoff. attempt reports whether its failure is
// final; a confirmed venue rejection must never be resent, and context
// expiry aborts because the outcome of the in-flight request is unknown.
func retryOutbound(ctx context.Context, maxRetries int, attempt func() (bool, error)) error {
	backoff := retryBaseBackoff
	for try := 0; ; try++ {
		final, err := attempt()
		if err == nil {
			return nil
		}
		if final || try >= maxRetries || ctx.Err() != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		if backoff < retryMaxBackoff {
			backoff *= 2
		}
	}
}

func (s *ExecStream) sendAndWait(ctx context.Context, method string, params map[string]any) error {
	return retryOutbound(ctx, s.cfg.MaxRetries, func() (bool, error) {
		final, err := s.sendOnce(ctx, method, params)
		if err != nil && !final {
			logs.Warnf("%s failed, retrying: %+v", method, err)
		}
		return final, err
	})
}

// sendOnce performs one request and waits for the matching response. The
// returned flag is true when the venue answered with a rejection, which is
// a final outcome rather than a transport failure.
func (s *ExecStream) sendOnce(ctx context.Context, method string, params map[string]any) (bool, error) {
	s.reqID++
	reqID := s.reqID
	rejected := false
	if err := s.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			payload := execRequest{ID: reqID, Method: method, Params: params}
			if err := client.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write request").With("method", method)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			resp, ok := ws.ReadMessage[execResponse](m)
			if !ok || resp.ID != reqID {
				return false, nil
			}
			if resp.Error != nil {
				rejected = true
				return false, errors.Errorf("%s rejected: %+v", method, resp.Error)
			}
			return true, nil
		},
	}, true); err != nil {
		return rejected, errors.Wrap(err, "send and wait")
	}
	return false, nil
}

type execReport struct {
	EventType     string          `json:"e"`
	EventTime     int64           `json:"E"`
	Symbol        string          `json:"s"`
	ClientOrderID uint64          `json:"c"`
	Side          string          `json:"S"`
	Status        string          `json:"X"`
	Reason        string          `json:"r"`
	Price         decimal.Decimal `json:"p"`
	Qty           decimal.Decimal `json:"q"`
	LastFillQty   decimal.Decimal `json:"l"`
	LastFillPrice decimal.Decimal `json:"L"`
	Fee           decimal.Decimal `json:"n"`
	Maker         bool            `json:"m"`
	VenueSeq      uint64          `json:"g"`
}

func (s *ExecStream) observe(ctx context.Context) {
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
			report, ok := ws.ReadMessage[execReport](m)
			if !ok || report.EventType != "executionReport" {
				continue
			}
			s.handleReport(report)
		}
	}
}

func (s *ExecStream) handleReport(report execReport) {
	id, ok := s.registry.InstrumentIDBySymbol(report.Symbol)
	if !ok {
		logs.Warnf("execution report for unknown symbol %s", report.Symbol)
		return
	}
	inst, _ := s.registry.Instrument(id)
	tsEvent := report.EventTime * int64(time.Millisecond)

	if lastQty, err := scaledFromDecimal(report.LastFillQty, inst.Scale.QuantityScale); err == nil && lastQty > 0 {
		s.emitFill(report, inst, lastQty, tsEvent)
	}

	code := statusCode(report.Status)
	if code == schema.OrderStatusUnknown || code == schema.OrderStatusFilled || code == schema.OrderStatusPartiallyFilled {
		// Fill progress is derived from the fill events themselves.
		return
	}
	price, _ := scaledFromDecimal(report.Price, inst.Scale.PriceScale)
	qty, _ := scaledFromDecimal(report.Qty, inst.Scale.QuantityScale)
	payload := codec.EncodeOrderStatus(nil, schema.OrderStatus{
		OrderID:      report.ClientOrderID,
		InstrumentID: inst.ID,
		Status:       code,
		Reason:       statusReason(report.Reason),
		Price:        schema.Price(price),
		Qty:          schema.Quantity(qty),
	})
	s.push(schema.EventOrderStatus, report.VenueSeq, tsEvent, payload)
}

func (s *ExecStream) emitFill(report execReport, inst schema.Instrument, lastQty int64, tsEvent int64) {
	price, err := scaledFromDecimal(report.LastFillPrice, inst.Scale.PriceScale)
	if err != nil || price <= 0 {
		logs.Errorf("normalize fill price for order %d failed", report.ClientOrderID)
		return
	}
	fee, _ := scaledFromDecimal(report.Fee, inst.Scale.FeeScale)
	liquidity := schema.LiquidityTaker
	if report.Maker {
		liquidity = schema.LiquidityMaker
	}
	payload := codec.EncodeFill(nil, schema.Fill{
		OrderID:      report.ClientOrderID,
		AccountID:    s.accountID,
		InstrumentID: inst.ID,
		Side:         side(report.Side),
		Liquidity:    liquidity,
		Price:        schema.Price(price),
		Qty:          schema.Quantity(lastQty),
		Fee:          schema.Fee(fee),
	})
	s.push(schema.EventFill, report.VenueSeq, tsEvent, payload)
}

func (s *ExecStream) push(eventType schema.EventType, venueSeq uint64, tsEvent int64, payload []byte) {
	now := time.Now().UTC().UnixNano()
	if tsEvent == 0 {
		tsEvent = now
	}
	s.seq++
	seq := venueSeq
	if seq == 0 {
		seq = s.seq
	}
	header := schema.NewHeader(eventType, uint16(s.venueID), seq, tsEvent, now)
	select {
	case s.events <- venue.Inbound{Header: header, Payload: payload}:
	default:
		logs.Warnf("execution report queue full, dropping %s", eventType)
	}
}

func sideString(side schema.OrderSide) string {
	if side == schema.OrderSideSell {
		return "SELL"
	}
	return "BUY"
}

func typeString(orderType schema.OrderType) string {
	switch orderType {
	case schema.OrderTypeMarket:
		return "MARKET"
	case schema.OrderTypeStop:
		return "STOP_LOSS"
	default:
		return "LIMIT"
	}
}

func tifString(tif schema.TimeInForce) string {
	switch tif {
	case schema.TimeInForceIOC:
		return "IOC"
	case schema.TimeInForceFOK:
		return "FOK"
	default:
		return "GTC"
	}
}

func side(s string) schema.OrderSide {
	if s == "SELL" {
		return schema.OrderSideSell
	}
	return schema.OrderSideBuy
}

func statusCode(s string) schema.OrderStatusCode {
	switch s {
	case "NEW":
		return schema.OrderStatusAccepted
	case "PARTIALLY_FILLED":
		return schema.OrderStatusPartiallyFilled
	case "FILLED":
		return schema.OrderStatusFilled
	case "CANCELED":
		return schema.OrderStatusCanceled
	case "REJECTED":
		return schema.OrderStatusRejected
	case "EXPIRED":
		return schema.OrderStatusExpired
	default:
		return schema.OrderStatusUnknown
	}
}

func statusReason(r string) schema.StatusReason {
	switch r {
	case "INSUFFICIENT_BALANCE", "INSUFFICIENT_MARGIN":
		return schema.StatusReasonInsufficientMargin
	case "PRICE_FILTER", "PERCENT_PRICE":
		return schema.StatusReasonInvalidPrice
	case "CANCELED_BY_USER":
		return schema.StatusReasonUserCancel
	case "":
		return schema.StatusReasonNone
	default:
		return schema.StatusReasonVenueReject
	}
}
