// Package exchange declares the capability set the hedging engine needs
// from a venue: instrument metadata, balances, prices, and order
// placement/cancellation on both the spot and linear-futures markets. The
// concrete REST/WebSocket clients are external collaborators — this
// package defines the interface only, dynamic-dispatch over exchanges:
// one implementation per supported venue, selected at wiring time.
package exchange

import (
	"context"

	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
	"github.com/thedr-lul/hedgehog/pkg/types"
)

// Balance is a base-asset balance split into its free (withdrawable/orderable)
// and locked (held by open orders) portions.
type Balance struct {
	Free   fixedpoint.Value
	Locked fixedpoint.Value
}

// Exchange is the REST collaborator's capability surface. All methods are
// synchronous request/async-response: retries and timeouts are the
// implementation's responsibility — the engine treats a returned error as
// final and authoritative.
type Exchange interface {
	GetSpotInstrumentInfo(ctx context.Context, base string) (types.Market, error)
	GetLinearInstrumentInfo(ctx context.Context, base string) (types.Market, error)

	GetBalance(ctx context.Context, base string) (Balance, error)

	GetSpotPrice(ctx context.Context, base string) (fixedpoint.Value, error)
	GetMarketPrice(ctx context.Context, symbol string, isSpot bool) (fixedpoint.Value, error)

	PlaceLimitOrder(ctx context.Context, symbol string, side types.Side, qty, price fixedpoint.Value) (types.Order, error)
	PlaceFuturesLimitOrder(ctx context.Context, symbol string, side types.Side, qty, price fixedpoint.Value) (types.Order, error)

	PlaceSpotMarketOrder(ctx context.Context, base string, side types.Side, qty fixedpoint.Value) (types.Order, error)
	PlaceFuturesMarketOrder(ctx context.Context, symbol string, side types.Side, qty fixedpoint.Value) (types.Order, error)

	CancelSpotOrder(ctx context.Context, symbol, orderID string) error
	CancelFuturesOrder(ctx context.Context, symbol, orderID string) error
}
