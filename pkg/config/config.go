package config

import (
	"fmt"
	"time"

	"github.com/Altanb21/TideBitEx-sub000/pkg/postgresql"
	"github.com/Altanb21/TideBitEx-sub000/pkg/redis"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config represents the application configuration.
type Config struct {
	App            AppConfig            `envPrefix:"APP_"`
	Postgres       postgresql.Config    `envPrefix:"POSTGRES_"`
	Redis          redis.Config         `envPrefix:"REDIS_"`
	OKX            OKXConfig            `envPrefix:"OKX_"`
	Hub            HubConfig            `envPrefix:"HUB_"`
	TradeFeed      TradeFeedConfig      `envPrefix:"TRADE_FEED_"`
	Reconciliation ReconciliationConfig `envPrefix:"RECONCILIATION_"`
}

// AppConfig represents the application configuration.
type AppConfig struct {
	Name        string `env:"NAME" envDefault:"exchange-gateway"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// OKXConfig represents the external exchange connector configuration.
type OKXConfig struct {
	RestURL      string `env:"REST_URL" envDefault:"https://www.okx.com"`
	PublicWSURL  string `env:"PUBLIC_WS_URL" envDefault:"wss://ws.okx.com:8443/ws/v5/public"`
	PrivateWSURL string `env:"PRIVATE_WS_URL" envDefault:"wss://ws.okx.com:8443/ws/v5/private"`
	APIKey       string `env:"API_KEY"`
	SecretKey    string `env:"SECRET_KEY"`
	Passphrase   string `env:"PASSPHRASE"`
	BrokerID     string `env:"BROKER_ID"`
	// Markets are subscribed at startup and kept warm without hub listeners.
	Markets []string `env:"MARKETS" envSeparator:"," envDefault:"BTC-USDT,ETH-USDT"`

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"3"`
}

// HubConfig represents the WebSocket distribution hub configuration.
type HubConfig struct {
	Port           int           `env:"PORT" envDefault:"8080"`
	SendBufferSize int           `env:"SEND_BUFFER_SIZE" envDefault:"256"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	PongTimeout    time.Duration `env:"PONG_TIMEOUT" envDefault:"60s"`
}

// TradeFeedConfig represents the Kafka trade feed publisher configuration.
type TradeFeedConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"false"`
	Brokers []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"reconciled-trades"`
}

// ReconciliationConfig represents the external-trade reconciliation configuration.
type ReconciliationConfig struct {
	Interval            time.Duration `env:"INTERVAL" envDefault:"10m"`
	InitialLookbackDays int           `env:"INITIAL_LOOKBACK_DAYS" envDefault:"180"`
	OverlapDays         int           `env:"OVERLAP_DAYS" envDefault:"1"`
	RetentionDays       int           `env:"RETENTION_DAYS" envDefault:"180"`
}

// Load loads the configuration from the environment.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}
