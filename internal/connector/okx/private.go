package okx

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/Altanb21/TideBitEx-sub000/internal/connector"
	"github.com/Altanb21/TideBitEx-sub000/pkg/config"
	"github.com/Altanb21/TideBitEx-sub000/pkg/errors"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

const privateEventBuffer = 256

// loginSignPath is the fixed pre-sign request path of the websocket login.
const loginSignPath = "/users/self/verify"

// PrivateStreamClient pumps the account's own order acks from OKX's
// authenticated websocket into a PrivateEvent channel. It reconnects with
// the same backoff as the public stream; every session logs in before
// attaching the orders channel.
type PrivateStreamClient struct {
	cfg      config.OKXConfig
	signer   *signer
	validate *validator.Validate
	logger   logger.Interface

	events chan connector.PrivateEvent

	// writeMu serializes writers on the connection
	writeMu sync.Mutex
}

// NewPrivateStreamClient creates a private stream client for one account.
func NewPrivateStreamClient(cfg config.OKXConfig, log logger.Interface) *PrivateStreamClient {
	return &PrivateStreamClient{
		cfg:      cfg,
		signer:   newSigner(cfg.APIKey, cfg.SecretKey, cfg.Passphrase),
		validate: validator.New(),
		logger:   log,
		events:   make(chan connector.PrivateEvent, privateEventBuffer),
	}
}

// Events returns the ack channel. Closed when Run returns.
func (s *PrivateStreamClient) Events() <-chan connector.PrivateEvent {
	return s.events
}

// Run connects and pumps acks until ctx is done.
func (s *PrivateStreamClient) Run(ctx context.Context) error {
	defer close(s.events)

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := s.runConn(ctx); err != nil && ctx.Err() == nil {
			delay := retryBackoff(attempt)
			s.logger.WarnContext(ctx, "OKX private stream disconnected, reconnecting",
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

		attempt = -1
	}
}

func (s *PrivateStreamClient) runConn(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.PrivateWSURL, nil)
	if err != nil {
		return errors.TracerFromError(err)
	}
	defer conn.Close()

	if err := s.sendLogin(conn); err != nil {
		return err
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
		if err := s.handleMessage(ctx, conn, raw); err != nil {
			return err
		}
	}
}

type wsLoginArg struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

// loginArgs builds the login payload. The pre-sign string is the unix
// timestamp in seconds + "GET" + the fixed verify path.
func (s *PrivateStreamClient) loginArgs(at time.Time) []wsLoginArg {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	return []wsLoginArg{{
		APIKey:     s.cfg.APIKey,
		Passphrase: s.cfg.Passphrase,
		Timestamp:  timestamp,
		Sign:       s.signer.sign(timestamp + "GET" + loginSignPath),
	}}
}

func (s *PrivateStreamClient) sendLogin(conn *websocket.Conn) error {
	msg, err := json.Marshal(struct {
		Op   string       `json:"op"`
		Args []wsLoginArg `json:"args"`
	}{
		Op:   "login",
		Args: s.loginArgs(time.Now()),
	})
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

type wsPrivateArg struct {
	Channel  string `json:"channel"`
	InstType string `json:"instType"`
}

func (s *PrivateStreamClient) sendSubscribe(conn *websocket.Conn) error {
	msg, err := json.Marshal(struct {
		Op   string         `json:"op"`
		Args []wsPrivateArg `json:"args"`
	}{
		Op:   "subscribe",
		Args: []wsPrivateArg{{Channel: "orders", InstType: "SPOT"}},
	})
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

// handleMessage dispatches one session message. A failed login tears the
// session down so the reconnect loop retries with a fresh signature.
func (s *PrivateStreamClient) handleMessage(ctx context.Context, conn *websocket.Conn, raw []byte) error {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.WarnContext(ctx, "Unparseable private stream message",
			logger.Field{Key: "error", Value: err.Error()},
		)
		return nil
	}

	switch msg.Event {
	case "login":
		return s.sendSubscribe(conn)
	case "error":
		return errors.NewTracer("private stream error event: " + msg.Msg)
	}
	if msg.Event != "" {
		return nil
	}

	if msg.Arg.Channel != "orders" || len(msg.Data) == 0 {
		return nil
	}
	s.handleOrderAcks(ctx, msg)
	return nil
}

type orderAckPayload struct {
	OrdID   string `json:"ordId" validate:"required"`
	ClOrdID string `json:"clOrdId"`
	InstID  string `json:"instId" validate:"required"`
	State   string `json:"state" validate:"required"`
	FillPx  string `json:"fillPx"`
	FillSz  string `json:"fillSz"`
	TradeID string `json:"tradeId"`
	UTime   string `json:"uTime"`
}

func (s *PrivateStreamClient) handleOrderAcks(ctx context.Context, msg wsMessage) {
	for _, raw := range msg.Data {
		var p orderAckPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			s.warnAck(ctx, err)
			continue
		}
		if err := s.validate.Struct(&p); err != nil {
			s.warnAck(ctx, err)
			continue
		}

		s.emit(connector.PrivateEvent{
			OrderID:   p.OrdID,
			ClOrdID:   p.ClOrdID,
			InstID:    p.InstID,
			State:     p.State,
			FillID:    p.TradeID,
			FillPrice: parseDecimal(p.FillPx),
			FillSize:  parseDecimal(p.FillSz),
			Timestamp: parseMillis(p.UTime),
		})
	}
}

// emit drops the ack when the consumer fell behind; the periodic
// reconciliation cycle covers anything lost.
func (s *PrivateStreamClient) emit(evt connector.PrivateEvent) {
	select {
	case s.events <- evt:
	default:
		s.logger.Warn("Dropped private stream ack",
			logger.Field{Key: "ordId", Value: evt.OrderID},
		)
	}
}

func (s *PrivateStreamClient) warnAck(ctx context.Context, err error) {
	s.logger.WarnContext(ctx, "Malformed order ack payload",
		logger.Field{Key: "error", Value: err.Error()},
	)
}
