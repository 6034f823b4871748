package okx

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Altanb21/TideBitEx-sub000/internal/connector"
	"github.com/Altanb21/TideBitEx-sub000/pkg/config"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

func newTestPrivateStream() *PrivateStreamClient {
	return NewPrivateStreamClient(config.OKXConfig{
		APIKey:     "api-key",
		SecretKey:  "secret",
		Passphrase: "passphrase",
	}, logger.NewNop())
}

func collectAcks(s *PrivateStreamClient) []connector.PrivateEvent {
	var acks []connector.PrivateEvent
	for {
		select {
		case evt := <-s.events:
			acks = append(acks, evt)
		default:
			return acks
		}
	}
}

func TestLoginArgsSignature(t *testing.T) {
	s := newTestPrivateStream()
	at := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)

	args := s.loginArgs(at)
	require.Len(t, args, 1)

	assert.Equal(t, "api-key", args[0].APIKey)
	assert.Equal(t, "passphrase", args[0].Passphrase)
	assert.Equal(t, strconv.FormatInt(at.Unix(), 10), args[0].Timestamp)

	// the signature covers the unix timestamp and the fixed verify path
	expected := s.signer.sign(args[0].Timestamp + "GET" + loginSignPath)
	assert.Equal(t, expected, args[0].Sign)
}

func TestHandleOrderAcks(t *testing.T) {
	s := newTestPrivateStream()

	err := s.handleMessage(context.Background(), nil, []byte(`{
		"arg":{"channel":"orders","instType":"SPOT"},
		"data":[{
			"ordId":"812","clOrdId":"brk0000000000000m501o77","instId":"BTC-USDT",
			"state":"partially_filled","fillPx":"20000","fillSz":"0.01",
			"tradeId":"t1","uTime":"1767225600000"
		}]
	}`))
	require.NoError(t, err)

	acks := collectAcks(s)
	require.Len(t, acks, 1)

	ack := acks[0]
	assert.Equal(t, "812", ack.OrderID)
	assert.Equal(t, "brk0000000000000m501o77", ack.ClOrdID)
	assert.Equal(t, "BTC-USDT", ack.InstID)
	assert.Equal(t, connector.OrderStatePartiallyFilled, ack.State)
	assert.Equal(t, "t1", ack.FillID)
	assert.Equal(t, "20000", ack.FillPrice.String())
	assert.Equal(t, "0.01", ack.FillSize.String())
	assert.Equal(t, time.UnixMilli(1767225600000).UTC(), ack.Timestamp)
}

func TestHandleMessageErrorEventEndsSession(t *testing.T) {
	s := newTestPrivateStream()

	err := s.handleMessage(context.Background(), nil, []byte(`{"event":"error","msg":"Invalid sign"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid sign")
}

func TestHandleMessageIgnoresAcksAndMalformedPayloads(t *testing.T) {
	s := newTestPrivateStream()
	ctx := context.Background()

	require.NoError(t, s.handleMessage(ctx, nil, []byte(`{"event":"subscribe","arg":{"channel":"orders"}}`)))
	require.NoError(t, s.handleMessage(ctx, nil, []byte(`not json`)))
	// a required field missing drops the ack, not the session
	require.NoError(t, s.handleMessage(ctx, nil, []byte(`{
		"arg":{"channel":"orders","instType":"SPOT"},
		"data":[{"ordId":"","instId":"BTC-USDT","state":"live"}]
	}`)))

	assert.Empty(t, collectAcks(s))
}
