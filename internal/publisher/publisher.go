// Package publisher pushes reconciled trades onto the downstream kafka feed.
// Publishing happens after the ledger transaction committed; a feed failure
// is logged and never rolls a trade back.
package publisher

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/Altanb21/TideBitEx-sub000/internal/domain/trade"
	"github.com/Altanb21/TideBitEx-sub000/pkg/config"
	"github.com/Altanb21/TideBitEx-sub000/pkg/errors"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
)

// TradeFeed publishes committed trades to a kafka topic.
type TradeFeed struct {
	kafkaWriter *kafka.Writer
	logger      logger.Interface
}

// tradeMessage is the wire format of one feed entry.
type tradeMessage struct {
	Market    string `json:"market"`
	Price     string `json:"price"`
	Volume    string `json:"volume"`
	Funds     string `json:"funds"`
	Trend     string `json:"trend"`
	TradeFK   string `json:"tradeFk"`
	CreatedAt int64  `json:"createdAt"`
}

// NewTradeFeed creates a kafka publisher for reconciled trades.
func NewTradeFeed(cfg config.TradeFeedConfig, log logger.Interface) *TradeFeed {
	kafkaWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
	})

	return &TradeFeed{
		kafkaWriter: kafkaWriter,
		logger:      log,
	}
}

// PublishTrade writes one trade to the feed topic, keyed by market so a
// market's trades stay ordered within a partition.
func (p *TradeFeed) PublishTrade(ctx context.Context, t *trade.Trade) error {
	value, err := json.Marshal(tradeMessage{
		Market:    t.MarketID,
		Price:     t.Price.String(),
		Volume:    t.Volume.String(),
		Funds:     t.Funds.String(),
		Trend:     t.Trend,
		TradeFK:   t.TradeFK,
		CreatedAt: t.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return errors.TracerFromError(err)
	}

	msg := kafka.Message{
		Key:   []byte(t.MarketID),
		Value: value,
	}

	if err := p.kafkaWriter.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(err,
			logger.Field{Key: "market", Value: t.MarketID},
			logger.Field{Key: "tradeFK", Value: t.TradeFK},
		)
		return errors.NewTracer("failed to publish trade")
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *TradeFeed) Close() error {
	return p.kafkaWriter.Close()
}

// NopTradeFeed drops every trade. Used when the feed is disabled.
type NopTradeFeed struct{}

// PublishTrade discards the trade.
func (NopTradeFeed) PublishTrade(context.Context, *trade.Trade) error { return nil }
