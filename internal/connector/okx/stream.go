package okx

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/Altanb21/TideBitEx-sub000/internal/connector"
	"github.com/Altanb21/TideBitEx-sub000/pkg/config"
	"github.com/Altanb21/TideBitEx-sub000/pkg/errors"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

// subscribed public channels per market
var streamChannels = []string{"books", "trades", "tickers", "candle1m"}

const (
	streamEventBuffer  = 1024
	streamPingInterval = 15 * time.Second
	streamReadTimeout  = 30 * time.Second
)

// StreamClient pumps OKX public market data into a StreamEvent channel. It
// reconnects with exponential backoff and replays active subscriptions after
// every reconnect.
type StreamClient struct {
	cfg      config.OKXConfig
	validate *validator.Validate
	logger   logger.Interface

	events chan connector.StreamEvent

	mu   sync.Mutex
	subs map[string]struct{}
	conn *websocket.Conn

	// writeMu serializes writers on the connection
	writeMu sync.Mutex
}

// NewStreamClient creates a public stream client.
func NewStreamClient(cfg config.OKXConfig, log logger.Interface) *StreamClient {
	return &StreamClient{
		cfg:      cfg,
		validate: validator.New(),
		logger:   log,
		events:   make(chan connector.StreamEvent, streamEventBuffer),
		subs:     make(map[string]struct{}),
	}
}

// Events returns the stream event channel. Closed when Run returns.
func (s *StreamClient) Events() <-chan connector.StreamEvent {
	return s.events
}

// Run connects and pumps events until ctx is done.
func (s *StreamClient) Run(ctx context.Context) error {
	defer close(s.events)

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := s.runConn(ctx); err != nil && ctx.Err() == nil {
			delay := retryBackoff(attempt)
			s.logger.WarnContext(ctx, "OKX stream disconnected, reconnecting",
				logger.Field{Key: "delay", Value: delay.String()},
				logger.Field{Key: "error", Value: err.Error()},
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		// clean session, reset the backoff
		attempt = -1
	}
}

func (s *StreamClient) runConn(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.PublicWSURL, nil)
	if err != nil {
		return errors.TracerFromError(err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	markets := make([]string, 0, len(s.subs))
	for m := range s.subs {
		markets = append(markets, m)
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	for _, m := range markets {
		if err := s.sendOp(conn, "subscribe", m); err != nil {
			return err
		}
	}

	go pingLoop(ctx, conn, &s.writeMu)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(streamReadTimeout)); err != nil {
			return errors.TracerFromError(err)
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.TracerFromError(err)
		}
		if string(raw) == "pong" {
			continue
		}
		s.handleMessage(ctx, raw)
	}
}

// pingLoop keeps one websocket session alive with OKX's textual ping and
// closes the connection when ctx ends.
func pingLoop(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex) {
	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Subscribe attaches the public channels of a market.
func (s *StreamClient) Subscribe(ctx context.Context, marketID string) error {
	s.mu.Lock()
	_, already := s.subs[marketID]
	s.subs[marketID] = struct{}{}
	conn := s.conn
	s.mu.Unlock()

	if already || conn == nil {
		return nil
	}
	return s.sendOp(conn, "subscribe", marketID)
}

// Unsubscribe detaches the public channels of a market.
func (s *StreamClient) Unsubscribe(ctx context.Context, marketID string) error {
	s.mu.Lock()
	_, subscribed := s.subs[marketID]
	delete(s.subs, marketID)
	conn := s.conn
	s.mu.Unlock()

	if !subscribed || conn == nil {
		return nil
	}
	return s.sendOp(conn, "unsubscribe", marketID)
}

type wsOp struct {
	Op   string  `json:"op"`
	Args []wsArg `json:"args"`
}

type wsArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

func (s *StreamClient) sendOp(conn *websocket.Conn, op, marketID string) error {
	args := make([]wsArg, 0, len(streamChannels))
	for _, ch := range streamChannels {
		args = append(args, wsArg{Channel: ch, InstID: marketID})
	}

	msg, err := json.Marshal(wsOp{Op: op, Args: args})
	if err != nil {
		return errors.TracerFromError(err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return errors.TracerFromError(err)
	}
	return nil
}

type wsMessage struct {
	Event string `json:"event"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel" validate:"required"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Action string            `json:"action"`
	Data   []json.RawMessage `json:"data"`
}

func (s *StreamClient) handleMessage(ctx context.Context, raw []byte) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.WarnContext(ctx, "Unparseable stream message",
			logger.Field{Key: "error", Value: err.Error()},
		)
		return
	}

	if msg.Event != "" {
		if msg.Event == "error" {
			s.logger.WarnContext(ctx, "Stream error event",
				logger.Field{Key: "msg", Value: msg.Msg},
			)
		}
		return
	}
	if err := s.validate.Struct(&msg); err != nil || len(msg.Data) == 0 {
		return
	}

	switch msg.Arg.Channel {
	case "books":
		s.handleBooks(ctx, msg)
	case "trades":
		s.handleTrades(ctx, msg)
	case "tickers":
		s.handleTickers(ctx, msg)
	case "candle1m":
		s.handleCandles(ctx, msg)
	}
}

type bookPayload struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
	TS   string     `json:"ts"`
}

func (s *StreamClient) handleBooks(ctx context.Context, msg wsMessage) {
	for _, raw := range msg.Data {
		var p bookPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			s.warnPayload(ctx, "books", err)
			continue
		}

		levels := make([]connector.BookLevel, 0, len(p.Asks)+len(p.Bids))
		ok := true
		for _, side := range []struct {
			name string
			rows [][]string
		}{{"ask", p.Asks}, {"bid", p.Bids}} {
			for _, row := range side.rows {
				if len(row) < 2 {
					ok = false
					continue
				}
				price, err1 := decimal.NewFromString(row[0])
				size, err2 := decimal.NewFromString(row[1])
				if err1 != nil || err2 != nil {
					ok = false
					continue
				}
				levels = append(levels, connector.BookLevel{Side: side.name, Price: price, Size: size})
			}
		}
		if !ok {
			s.warnPayload(ctx, "books", errors.NewTracer("malformed depth row"))
		}

		s.emit(connector.StreamEvent{
			Type:         connector.StreamEventBook,
			MarketID:     msg.Arg.InstID,
			BookSnapshot: msg.Action == "snapshot",
			Levels:       levels,
			Timestamp:    parseMillis(p.TS),
		})
	}
}

type tradePayload struct {
	TradeID string `json:"tradeId" validate:"required"`
	Px      string `json:"px" validate:"required,numeric"`
	Sz      string `json:"sz" validate:"required,numeric"`
	Side    string `json:"side" validate:"required,oneof=buy sell"`
	TS      string `json:"ts" validate:"required,numeric"`
}

func (s *StreamClient) handleTrades(ctx context.Context, msg wsMessage) {
	for _, raw := range msg.Data {
		var p tradePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			s.warnPayload(ctx, "trades", err)
			continue
		}
		if err := s.validate.Struct(&p); err != nil {
			s.warnPayload(ctx, "trades", err)
			continue
		}

		price, _ := decimal.NewFromString(p.Px)
		size, _ := decimal.NewFromString(p.Sz)

		s.emit(connector.StreamEvent{
			Type:      connector.StreamEventTrade,
			MarketID:  msg.Arg.InstID,
			TradeID:   p.TradeID,
			Price:     price,
			Size:      size,
			Side:      p.Side,
			Timestamp: parseMillis(p.TS),
		})
	}
}

type tickerPayload struct {
	InstID  string `json:"instId" validate:"required"`
	Last    string `json:"last" validate:"required,numeric"`
	Open24h string `json:"open24h"`
	High24h string `json:"high24h"`
	Low24h  string `json:"low24h"`
	Vol24h  string `json:"vol24h"`
	TS      string `json:"ts"`
}

func (s *StreamClient) handleTickers(ctx context.Context, msg wsMessage) {
	for _, raw := range msg.Data {
		var p tickerPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			s.warnPayload(ctx, "tickers", err)
			continue
		}
		if err := s.validate.Struct(&p); err != nil {
			s.warnPayload(ctx, "tickers", err)
			continue
		}

		last, _ := decimal.NewFromString(p.Last)
		s.emit(connector.StreamEvent{
			Type:      connector.StreamEventTicker,
			MarketID:  p.InstID,
			Last:      last,
			Open24h:   parseDecimal(p.Open24h),
			High24h:   parseDecimal(p.High24h),
			Low24h:    parseDecimal(p.Low24h),
			Volume24h: parseDecimal(p.Vol24h),
			Timestamp: parseMillis(p.TS),
		})
	}
}

func (s *StreamClient) handleCandles(ctx context.Context, msg wsMessage) {
	for _, raw := range msg.Data {
		var row []string
		if err := json.Unmarshal(raw, &row); err != nil || len(row) < 6 {
			s.warnPayload(ctx, "candle1m", err)
			continue
		}

		s.emit(connector.StreamEvent{
			Type:       connector.StreamEventCandle,
			MarketID:   msg.Arg.InstID,
			CandleBar:  "1m",
			CandleOpen: parseDecimal(row[1]),
			CandleHigh: parseDecimal(row[2]),
			CandleLow:  parseDecimal(row[3]),
			Last:       parseDecimal(row[4]),
			CandleVol:  parseDecimal(row[5]),
			Timestamp:  parseMillis(row[0]),
		})
	}
}

// emit drops the event when the consumer fell behind; the caches resync on
// the next snapshot.
func (s *StreamClient) emit(evt connector.StreamEvent) {
	select {
	case s.events <- evt:
	default:
		s.logger.Warn("Dropped stream event",
			logger.Field{Key: "marketID", Value: evt.MarketID},
		)
	}
}

func (s *StreamClient) warnPayload(ctx context.Context, channel string, err error) {
	field := logger.Field{Key: "channel", Value: channel}
	if err != nil {
		s.logger.WarnContext(ctx, "Malformed stream payload", field,
			logger.Field{Key: "error", Value: err.Error()},
		)
		return
	}
	s.logger.WarnContext(ctx, "Malformed stream payload", field)
}

func parseDecimal(v string) decimal.Decimal {
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
