// Package okx implements the OKX v5 exchange connector: the signed REST
// surface used by order placement and reconciliation, and the public
// websocket stream feeding the market-data caches.
package okx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/Altanb21/TideBitEx-sub000/internal/connector"
	"github.com/Altanb21/TideBitEx-sub000/pkg/config"
	"github.com/Altanb21/TideBitEx-sub000/pkg/errors"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

// Name is the exchange code of this connector.
const Name = "okx"

const (
	pathFillsHistory = "/api/v5/trade/fills-history"
	pathOrder        = "/api/v5/trade/order"
	pathCancelOrder  = "/api/v5/trade/cancel-order"
)

// Client is the signed REST client of one OKX account.
type Client struct {
	cfg      config.OKXConfig
	http     *http.Client
	signer   *signer
	validate *validator.Validate
	logger   logger.Interface
}

// NewClient creates an OKX REST client.
func NewClient(cfg config.OKXConfig, log logger.Interface) *Client {
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		signer:   newSigner(cfg.APIKey, cfg.SecretKey, cfg.Passphrase),
		validate: validator.New(),
		logger:   log,
	}
}

// Name returns the exchange code.
func (c *Client) Name() string {
	return Name
}

// envelope is the common OKX v5 response wrapper.
type envelope struct {
	Code string            `json:"code"`
	Msg  string            `json:"msg"`
	Data []json.RawMessage `json:"data"`
}

type fillPayload struct {
	TradeID    string `json:"tradeId" validate:"required"`
	OrdID      string `json:"ordId" validate:"required"`
	ClOrdID    string `json:"clOrdId"`
	InstID     string `json:"instId" validate:"required"`
	Side       string `json:"side" validate:"required,oneof=buy sell"`
	FillPx     string `json:"fillPx" validate:"required,numeric"`
	FillSz     string `json:"fillSz" validate:"required,numeric"`
	FillFee    string `json:"fillFee"`
	FillFeeCcy string `json:"fillFeeCcy"`
	TS         string `json:"ts" validate:"required,numeric"`
}

// FillsHistory returns the account's spot executions since the given time,
// oldest first.
func (c *Client) FillsHistory(ctx context.Context, since time.Time) ([]connector.Fill, error) {
	query := url.Values{}
	query.Set("instType", "SPOT")
	if !since.IsZero() {
		query.Set("begin", strconv.FormatInt(since.UnixMilli(), 10))
	}

	env, err := c.do(ctx, http.MethodGet, pathFillsHistory+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	fills := make([]connector.Fill, 0, len(env.Data))
	for _, raw := range env.Data {
		var p fillPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errors.TracerFromError(err)
		}
		if err := c.validate.Struct(&p); err != nil {
			return nil, errors.NewErrorDetails(
				fmt.Sprintf("malformed fill payload: %v", err),
				string(errors.ConnectorResponseError),
				"fills",
			)
		}

		fill, err := p.toFill(raw)
		if err != nil {
			return nil, err
		}
		fills = append(fills, fill)
	}

	sort.SliceStable(fills, func(i, j int) bool {
		return fills[i].Timestamp.Before(fills[j].Timestamp)
	})

	return fills, nil
}

func (p fillPayload) toFill(raw json.RawMessage) (connector.Fill, error) {
	price, err := decimal.NewFromString(p.FillPx)
	if err != nil {
		return connector.Fill{}, errors.TracerFromError(err)
	}
	size, err := decimal.NewFromString(p.FillSz)
	if err != nil {
		return connector.Fill{}, errors.TracerFromError(err)
	}

	fee := decimal.Zero
	if p.FillFee != "" {
		if fee, err = decimal.NewFromString(p.FillFee); err != nil {
			return connector.Fill{}, errors.TracerFromError(err)
		}
	}

	ms, err := strconv.ParseInt(p.TS, 10, 64)
	if err != nil {
		return connector.Fill{}, errors.TracerFromError(err)
	}

	return connector.Fill{
		TradeID:     p.TradeID,
		OrderID:     p.OrdID,
		ClOrdID:     p.ClOrdID,
		InstID:      p.InstID,
		Side:        p.Side,
		Price:       price,
		Size:        size,
		Fee:         fee,
		FeeCurrency: p.FillFeeCcy,
		Timestamp:   time.UnixMilli(ms).UTC(),
		Raw:         append([]byte(nil), raw...),
	}, nil
}

type orderPayload struct {
	OrdID     string `json:"ordId" validate:"required"`
	ClOrdID   string `json:"clOrdId"`
	InstID    string `json:"instId" validate:"required"`
	State     string `json:"state" validate:"required"`
	AccFillSz string `json:"accFillSz"`
	AvgPx     string `json:"avgPx"`
}

// OrderState fetches the live state of one order.
func (c *Client) OrderState(ctx context.Context, instID, orderID, clOrdID string) (*connector.OrderState, error) {
	query := url.Values{}
	query.Set("instId", instID)
	if orderID != "" {
		query.Set("ordId", orderID)
	} else {
		query.Set("clOrdId", clOrdID)
	}

	env, err := c.do(ctx, http.MethodGet, pathOrder+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, errors.NewErrorDetails(
			"order not found on exchange",
			string(errors.ConnectorResponseError),
			"ordId",
		)
	}

	var p orderPayload
	if err := json.Unmarshal(env.Data[0], &p); err != nil {
		return nil, errors.TracerFromError(err)
	}
	if err := c.validate.Struct(&p); err != nil {
		return nil, errors.NewErrorDetails(
			fmt.Sprintf("malformed order payload: %v", err),
			string(errors.ConnectorResponseError),
			"order",
		)
	}

	state := &connector.OrderState{
		OrderID: p.OrdID,
		ClOrdID: p.ClOrdID,
		InstID:  p.InstID,
		State:   p.State,
	}
	if p.AccFillSz != "" {
		if state.FilledSize, err = decimal.NewFromString(p.AccFillSz); err != nil {
			return nil, errors.TracerFromError(err)
		}
	}
	if p.AvgPx != "" {
		if state.AvgPrice, err = decimal.NewFromString(p.AvgPx); err != nil {
			return nil, errors.TracerFromError(err)
		}
	}

	return state, nil
}

// PlaceOrder places a spot order and returns the exchange order id.
func (c *Client) PlaceOrder(ctx context.Context, req connector.PlaceOrderRequest) (string, error) {
	body := map[string]string{
		"instId":  req.InstID,
		"clOrdId": req.ClOrdID,
		"tdMode":  "cash",
		"side":    req.Side,
		"ordType": req.Type,
		"sz":      req.Size.String(),
	}
	if req.Type == "limit" {
		body["px"] = req.Price.String()
	}

	env, err := c.do(ctx, http.MethodPost, pathOrder, body)
	if err != nil {
		return "", err
	}
	if len(env.Data) == 0 {
		return "", errors.NewErrorDetails(
			"empty place order response",
			string(errors.ConnectorResponseError),
			"order",
		)
	}

	var resp struct {
		OrdID string `json:"ordId"`
		SCode string `json:"sCode"`
		SMsg  string `json:"sMsg"`
	}
	if err := json.Unmarshal(env.Data[0], &resp); err != nil {
		return "", errors.TracerFromError(err)
	}
	if resp.SCode != "" && resp.SCode != "0" {
		return "", errors.NewErrorDetails(
			fmt.Sprintf("order rejected: %s", resp.SMsg),
			string(errors.ConnectorResponseError),
			"order",
		)
	}

	return resp.OrdID, nil
}

// CancelOrder cancels a resting order.
func (c *Client) CancelOrder(ctx context.Context, instID, orderID string) error {
	body := map[string]string{
		"instId": instID,
		"ordId":  orderID,
	}

	_, err := c.do(ctx, http.MethodPost, pathCancelOrder, body)
	return err
}

// do performs one signed request, retrying transient failures with
// exponential backoff.
func (c *Client) do(ctx context.Context, method, requestPath string, body any) (*envelope, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, errors.TracerFromError(err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.TracerFromError(ctx.Err())
			case <-time.After(retryBackoff(attempt - 1)):
			}
		}

		env, retryable, err := c.doOnce(ctx, method, requestPath, payload)
		if err == nil {
			return env, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}

		c.logger.WarnContext(ctx, "OKX request failed, retrying",
			logger.Field{Key: "path", Value: requestPath},
			logger.Field{Key: "attempt", Value: attempt},
			logger.Field{Key: "error", Value: err.Error()},
		)
	}

	return nil, errors.NewErrorDetailsWithObject(
		"OKX unreachable after retries",
		string(errors.ConnectorUnavailableError),
		requestPath,
		lastErr.Error(),
	).WithSeverity(errors.SeverityHigh)
}

func (c *Client) doOnce(ctx context.Context, method, requestPath string, payload []byte) (*envelope, bool, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.RestURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return nil, false, errors.TracerFromError(err)
	}
	for k, v := range c.signer.headers(method, requestPath, string(payload), time.Now()) {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, errors.TracerFromError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errors.TracerFromError(err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, true, errors.NewErrorDetails(
			fmt.Sprintf("OKX returned %d", resp.StatusCode),
			string(errors.ConnectorUnavailableError),
			requestPath,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, errors.NewErrorDetails(
			fmt.Sprintf("OKX returned %d: %s", resp.StatusCode, raw),
			string(errors.ConnectorResponseError),
			requestPath,
		)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, errors.TracerFromError(err)
	}
	if env.Code != "0" {
		return nil, false, errors.NewErrorDetails(
			fmt.Sprintf("OKX error %s: %s", env.Code, env.Msg),
			string(errors.ConnectorResponseError),
			requestPath,
		)
	}

	return &env, false, nil
}

const (
	retryBaseDelay = time.Second
	retryMaxDelay  = 30 * time.Second
)

// retryBackoff returns baseDelay * 2^attempt capped at retryMaxDelay.
func retryBackoff(attempt int) time.Duration {
	if attempt < 0 {
		return retryBaseDelay
	}
	if attempt > 20 {
		return retryMaxDelay
	}
	d := retryBaseDelay * time.Duration(1<<attempt)
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}
