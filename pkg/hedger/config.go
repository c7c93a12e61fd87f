package hedger

import "time"

// LimitOrderPlacementStrategy is the per-leg limit-price strategy.
type LimitOrderPlacementStrategy string

const (
	// BestAskBid quotes verbatim at the best ask (buys) / best bid (sells).
	BestAskBid LimitOrderPlacementStrategy = "BestAskBid"

	// OneTickInside quotes one tick inside the book: best_ask - tick for
	// buys (clamped at >= tick), best_bid + tick for sells.
	OneTickInside LimitOrderPlacementStrategy = "OneTickInside"
)

// Config holds the per-process runtime knobs the engine reads at task
// construction. Values not present at construction time keep their zero
// value (ws_stale_price_ratio and ws_max_value_imbalance_ratio are both
// optional, so they're pointers here).
type Config struct {
	QuoteCurrency string `mapstructure:"quote_currency" env:"QUOTE_CURRENCY"`

	WsLimitOrderPlacementStrategy LimitOrderPlacementStrategy `mapstructure:"ws_limit_order_placement_strategy" env:"WS_LIMIT_ORDER_PLACEMENT_STRATEGY"`

	// WsAutoChunkTargetCount is the planner's chunk-count hint k0.
	WsAutoChunkTargetCount uint32 `mapstructure:"ws_auto_chunk_target_count" env:"WS_AUTO_CHUNK_TARGET_COUNT"`

	// WsStalePriceRatio drives the staleness check; nil or <=0 disables
	// staleness-triggered replacement entirely.
	WsStalePriceRatio *float64 `mapstructure:"ws_stale_price_ratio" env:"WS_STALE_PRICE_RATIO"`

	// WsMaxValueImbalanceRatio drives the value-imbalance guard; nil
	// disables it.
	WsMaxValueImbalanceRatio *float64 `mapstructure:"ws_max_value_imbalance_ratio" env:"WS_MAX_VALUE_IMBALANCE_RATIO"`

	// MarketDataFreshness bounds how old a MarketUpdate may be before it's
	// ignored for staleness checks.
	MarketDataFreshness time.Duration `mapstructure:"market_data_freshness" env:"MARKET_DATA_FRESHNESS"`

	// CancelConfirmationTimeout bounds how long the engine waits for a
	// cancel confirmation during external cancellation.
	CancelConfirmationTimeout time.Duration `mapstructure:"cancel_confirmation_timeout" env:"CANCEL_CONFIRMATION_TIMEOUT"`

	// ReconciliationSettleDelay is the brief sleep before persisting
	// terminal disposition.
	ReconciliationSettleDelay time.Duration `mapstructure:"reconciliation_settle_delay" env:"RECONCILIATION_SETTLE_DELAY"`
}

// DefaultConfig returns sensible operational defaults: one-tick-inside
// quoting, a 5-second market-data freshness window, and a 2-second
// reconciliation settle delay.
func DefaultConfig() Config {
	return Config{
		QuoteCurrency:                 "USDT",
		WsLimitOrderPlacementStrategy: OneTickInside,
		WsAutoChunkTargetCount:        10,
		MarketDataFreshness:           5 * time.Second,
		CancelConfirmationTimeout:     10 * time.Second,
		ReconciliationSettleDelay:     2 * time.Second,
	}
}
