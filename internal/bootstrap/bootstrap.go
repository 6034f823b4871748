// Package bootstrap wires the gateway: configuration, logging, storage,
// the exchange connector and the user-facing hub.
package bootstrap

import (
	"context"

	"github.com/Altanb21/TideBitEx-sub000/internal/cache"
	"github.com/Altanb21/TideBitEx-sub000/internal/connector"
	"github.com/Altanb21/TideBitEx-sub000/internal/connector/okx"
	"github.com/Altanb21/TideBitEx-sub000/internal/event"
	"github.com/Altanb21/TideBitEx-sub000/internal/hub"
	accountrepo "github.com/Altanb21/TideBitEx-sub000/internal/infrastructure/postgresql/account"
	marketrepo "github.com/Altanb21/TideBitEx-sub000/internal/infrastructure/postgresql/market"
	memberrepo "github.com/Altanb21/TideBitEx-sub000/internal/infrastructure/postgresql/member"
	orderrepo "github.com/Altanb21/TideBitEx-sub000/internal/infrastructure/postgresql/order"
	outertraderepo "github.com/Altanb21/TideBitEx-sub000/internal/infrastructure/postgresql/outertrade"
	traderepo "github.com/Altanb21/TideBitEx-sub000/internal/infrastructure/postgresql/trade"
	voucherrepo "github.com/Altanb21/TideBitEx-sub000/internal/infrastructure/postgresql/voucher"
	"github.com/Altanb21/TideBitEx-sub000/internal/publisher"
	"github.com/Altanb21/TideBitEx-sub000/internal/session"
	"github.com/Altanb21/TideBitEx-sub000/internal/usecase/marketdata"
	"github.com/Altanb21/TideBitEx-sub000/internal/usecase/reconciliation"
	"github.com/Altanb21/TideBitEx-sub000/pkg/config"
	"github.com/Altanb21/TideBitEx-sub000/pkg/logger"
	"github.com/Altanb21/TideBitEx-sub000/pkg/postgresql"
	"github.com/Altanb21/TideBitEx-sub000/pkg/redis"
)

// App holds every long-running component of the gateway.
type App struct {
	Config *config.Config
	Logger logger.Interface

	DB    postgresql.PostgreSQLClient
	Redis redis.Client

	Stream connector.Stream
	// Private is nil when the account has no API credentials configured.
	Private    connector.PrivateStream
	MarketData *marketdata.Service
	Engine     *reconciliation.Engine
	Hub        *hub.Hub
	Server     *hub.Server
	TradeFeed  reconciliation.TradePublisher
}

// New builds the full dependency graph from configuration.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := logger.NewLogger(
		logger.WithLoggingLevel(logger.Level(cfg.App.LogLevel)),
	)
	if err != nil {
		return nil, err
	}

	db, err := postgresql.NewClient(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(log, &cfg.Redis)
	if err := redisClient.Connect(ctx); err != nil {
		return nil, err
	}

	accounts := accountrepo.NewRepository(db, log)
	orders := orderrepo.NewRepository(db, log)
	trades := traderepo.NewRepository(db, log)
	vouchers := voucherrepo.NewRepository(db, log)
	outerTrades := outertraderepo.NewRepository(db, log)
	members := memberrepo.NewRepository(db, log)
	markets := marketrepo.NewRepository(db, log)

	bus := event.NewBus(log)
	store := cache.NewStore(log)

	okxClient := okx.NewClient(cfg.OKX, log)
	registry := connector.NewRegistry(okxClient)
	stream := okx.NewStreamClient(cfg.OKX, log)

	var private connector.PrivateStream
	if cfg.OKX.APIKey != "" {
		private = okx.NewPrivateStreamClient(cfg.OKX, log)
	}

	var feed reconciliation.TradePublisher = publisher.NopTradeFeed{}
	if cfg.TradeFeed.Enabled {
		feed = publisher.NewTradeFeed(cfg.TradeFeed, log)
	}

	engine := reconciliation.NewEngine(
		cfg.Reconciliation,
		cfg.OKX.BrokerID,
		db,
		registry,
		outerTrades,
		orders,
		trades,
		vouchers,
		accounts,
		members,
		markets,
		bus,
		feed,
		log,
	)

	md := marketdata.NewService(stream, bus, store, markets, orders, accounts, cfg.OKX.Markets, log)

	sessions := session.NewResolver(redisClient, log)
	h := hub.NewHub(store, bus, sessions, md, md, log)
	srv := hub.NewServer(h, cfg.Hub, log)

	return &App{
		Config:     cfg,
		Logger:     log,
		DB:         db,
		Redis:      redisClient,
		Stream:     stream,
		Private:    private,
		MarketData: md,
		Engine:     engine,
		Hub:        h,
		Server:     srv,
		TradeFeed:  feed,
	}, nil
}

// Run starts every component and blocks until ctx is done or one of them
// fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 8)
	start := func(name string, run func(context.Context) error) {
		go func() {
			if err := run(ctx); err != nil && ctx.Err() == nil {
				a.Logger.Error(err, logger.Field{Key: "component", Value: name})
				errCh <- err
			}
		}()
	}

	start("stream", a.Stream.Run)
	start("marketdata", a.MarketData.Run)
	start("reconciliation", a.Engine.Run)
	start("hub", a.Hub.Run)
	start("server", a.Server.Run)
	if a.Private != nil {
		start("private-stream", a.Private.Run)
		start("ack-watch", func(ctx context.Context) error {
			return a.Engine.WatchAcks(ctx, a.Private.Events())
		})
	}

	a.Logger.Info("gateway started",
		logger.Field{Key: "app", Value: a.Config.App.Name},
		logger.Field{Key: "environment", Value: a.Config.App.Environment},
	)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases external resources.
func (a *App) Close() {
	if closer, ok := a.TradeFeed.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Error(err)
		}
	}
	if err := a.Redis.Disconnect(); err != nil {
		a.Logger.Error(err)
	}
	a.DB.Close()
	_ = a.Logger.Sync()
}
