package trade

import "context"

// Repository is the store for trades.
type Repository interface {
	// Insert stores the trade and returns its id. When a trade with the same
	// TradeFK already exists the insert is skipped and (0, nil) is returned.
	Insert(ctx context.Context, t *Trade) (int64, error)
	ExistsByTradeFK(ctx context.Context, tradeFK string) (bool, error)
	// ListRecentByMarket returns the newest trades of a market, newest first.
	ListRecentByMarket(ctx context.Context, marketID string, limit int) ([]*Trade, error)
}
