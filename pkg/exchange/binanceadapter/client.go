// Package binanceadapter is a reference implementation of the
// exchange.Exchange capability set against Binance spot and USDT-M
// futures. It is partial: enough of the wire format is covered to exercise
// every method the hedging engine calls, not a full venue client.
package binanceadapter

import (
	"context"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"

	"github.com/thedr-lul/hedgehog/pkg/exchange"
	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
	"github.com/thedr-lul/hedgehog/pkg/types"
)

// Client implements exchange.Exchange against a live Binance account. Spot
// and futures are separate API surfaces on the venue, so it holds one SDK
// client per market and dispatches each capability (instrument info,
// balances, order placement) to the matching sub-client.
type Client struct {
	Spot    *binance.Client
	Futures *futures.Client
}

// NewClient wires a Client from a single API key pair: one authenticated
// REST client per market session.
func NewClient(apiKey, apiSecret string) *Client {
	return &Client{
		Spot:    binance.NewClient(apiKey, apiSecret),
		Futures: futures.NewClient(apiKey, apiSecret),
	}
}

var _ exchange.Exchange = (*Client)(nil)

func (c *Client) GetSpotInstrumentInfo(ctx context.Context, base string) (types.Market, error) {
	symbol := spotSymbol(base)
	info, err := withRetryValue(ctx, "GetSpotInstrumentInfo", func() (*binance.ExchangeInfo, error) {
		return c.Spot.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return types.Market{}, errors.Wrapf(err, "get spot exchange info for %s", symbol)
	}
	if len(info.Symbols) == 0 {
		return types.Market{}, errors.Errorf("spot symbol %s not found", symbol)
	}
	s := info.Symbols[0]

	lot := s.LotSizeFilter()
	price := s.PriceFilter()
	if lot == nil || price == nil {
		return types.Market{}, errors.Errorf("spot symbol %s missing LOT_SIZE/PRICE_FILTER", symbol)
	}

	minNotional := ""
	if mn := s.NotionalFilter(); mn != nil {
		minNotional = mn.MinNotional
	}

	return types.ParseMarket(symbol, price.TickSize, lot.StepSize, lot.MinQuantity, minNotional)
}

func (c *Client) GetLinearInstrumentInfo(ctx context.Context, base string) (types.Market, error) {
	symbol := futuresSymbol(base)
	info, err := withRetryValue(ctx, "GetLinearInstrumentInfo", func() (*futures.ExchangeInfo, error) {
		return c.Futures.NewExchangeInfoService().Do(ctx)
	})
	if err != nil {
		return types.Market{}, errors.Wrapf(err, "get futures exchange info for %s", symbol)
	}
	var sym *futures.Symbol
	for i := range info.Symbols {
		if info.Symbols[i].Symbol == symbol {
			sym = &info.Symbols[i]
			break
		}
	}
	if sym == nil {
		return types.Market{}, errors.Errorf("futures symbol %s not found", symbol)
	}

	lot := sym.LotSizeFilter()
	price := sym.PriceFilter()
	if lot == nil || price == nil {
		return types.Market{}, errors.Errorf("futures symbol %s missing LOT_SIZE/PRICE_FILTER", symbol)
	}

	minNotional := ""
	if mn := sym.MinNotionalFilter(); mn != nil {
		minNotional = mn.Notional
	}

	return types.ParseMarket(symbol, price.TickSize, lot.StepSize, lot.MinQuantity, minNotional)
}

func (c *Client) GetBalance(ctx context.Context, base string) (exchange.Balance, error) {
	account, err := withRetryValue(ctx, "GetBalance", func() (*binance.Account, error) {
		return c.Spot.NewGetAccountService().Do(ctx)
	})
	if err != nil {
		return exchange.Balance{}, errors.Wrap(err, "get spot account")
	}
	asset := strings.ToUpper(base)
	for _, b := range account.Balances {
		if strings.ToUpper(b.Asset) != asset {
			continue
		}
		free, err := fixedpoint.NewFromString(b.Free)
		if err != nil {
			return exchange.Balance{}, errors.Wrapf(err, "parse free balance for %s", asset)
		}
		locked, err := fixedpoint.NewFromString(b.Locked)
		if err != nil {
			return exchange.Balance{}, errors.Wrapf(err, "parse locked balance for %s", asset)
		}
		return exchange.Balance{Free: free, Locked: locked}, nil
	}
	return exchange.Balance{Free: fixedpoint.Zero, Locked: fixedpoint.Zero}, nil
}

func (c *Client) GetSpotPrice(ctx context.Context, base string) (fixedpoint.Value, error) {
	symbol := spotSymbol(base)
	prices, err := withRetryValue(ctx, "GetSpotPrice", func() ([]*binance.SymbolPrice, error) {
		return c.Spot.NewListPricesService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return fixedpoint.Zero, errors.Wrapf(err, "get spot price for %s", symbol)
	}
	if len(prices) == 0 {
		return fixedpoint.Zero, errors.Errorf("no spot price returned for %s", symbol)
	}
	return fixedpoint.NewFromString(prices[0].Price)
}

func (c *Client) GetMarketPrice(ctx context.Context, symbol string, isSpot bool) (fixedpoint.Value, error) {
	if isSpot {
		prices, err := withRetryValue(ctx, "GetMarketPrice(spot)", func() ([]*binance.SymbolPrice, error) {
			return c.Spot.NewListPricesService().Symbol(symbol).Do(ctx)
		})
		if err != nil {
			return fixedpoint.Zero, errors.Wrapf(err, "get spot market price for %s", symbol)
		}
		if len(prices) == 0 {
			return fixedpoint.Zero, errors.Errorf("no spot price returned for %s", symbol)
		}
		return fixedpoint.NewFromString(prices[0].Price)
	}

	premium, err := withRetryValue(ctx, "GetMarketPrice(futures)", func() ([]*futures.PremiumIndex, error) {
		return c.Futures.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return fixedpoint.Zero, errors.Wrapf(err, "get futures mark price for %s", symbol)
	}
	if len(premium) == 0 {
		return fixedpoint.Zero, errors.Errorf("no mark price returned for %s", symbol)
	}
	return fixedpoint.NewFromString(premium[0].MarkPrice)
}

func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, side types.Side, qty, price fixedpoint.Value) (types.Order, error) {
	resp, err := c.Spot.NewCreateOrderService().
		Symbol(symbol).
		Side(toBinanceSide(side)).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(qty.String()).
		Price(price.String()).
		NewClientOrderID(newClientOrderID()).
		Do(ctx)
	if err != nil {
		return types.Order{}, errors.Wrapf(err, "place spot limit order %s %s", symbol, side)
	}
	p := price
	return types.Order{ID: formatOrderID(resp.OrderID), Side: side, Quantity: qty, Price: &p}, nil
}

func (c *Client) PlaceFuturesLimitOrder(ctx context.Context, symbol string, side types.Side, qty, price fixedpoint.Value) (types.Order, error) {
	resp, err := c.Futures.NewCreateOrderService().
		Symbol(symbol).
		Side(toFuturesSide(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(qty.String()).
		Price(price.String()).
		NewClientOrderID(newClientOrderID()).
		Do(ctx)
	if err != nil {
		return types.Order{}, errors.Wrapf(err, "place futures limit order %s %s", symbol, side)
	}
	p := price
	return types.Order{ID: formatOrderID(resp.OrderID), Side: side, Quantity: qty, Price: &p}, nil
}

func (c *Client) PlaceSpotMarketOrder(ctx context.Context, base string, side types.Side, qty fixedpoint.Value) (types.Order, error) {
	symbol := spotSymbol(base)
	resp, err := c.Spot.NewCreateOrderService().
		Symbol(symbol).
		Side(toBinanceSide(side)).
		Type(binance.OrderTypeMarket).
		Quantity(qty.String()).
		NewClientOrderID(newClientOrderID()).
		Do(ctx)
	if err != nil {
		return types.Order{}, errors.Wrapf(err, "place spot market order %s %s", symbol, side)
	}
	return types.Order{ID: formatOrderID(resp.OrderID), Side: side, Quantity: qty}, nil
}

func (c *Client) PlaceFuturesMarketOrder(ctx context.Context, symbol string, side types.Side, qty fixedpoint.Value) (types.Order, error) {
	resp, err := c.Futures.NewCreateOrderService().
		Symbol(symbol).
		Side(toFuturesSide(side)).
		Type(futures.OrderTypeMarket).
		Quantity(qty.String()).
		NewClientOrderID(newClientOrderID()).
		Do(ctx)
	if err != nil {
		return types.Order{}, errors.Wrapf(err, "place futures market order %s %s", symbol, side)
	}
	return types.Order{ID: formatOrderID(resp.OrderID), Side: side, Quantity: qty}, nil
}

func (c *Client) CancelSpotOrder(ctx context.Context, symbol, orderID string) error {
	id, err := parseOrderID(orderID)
	if err != nil {
		return err
	}
	err = withRetry(ctx, "CancelSpotOrder", func() error {
		_, err := c.Spot.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
		return err
	})
	return errors.Wrapf(err, "cancel spot order %s on %s", orderID, symbol)
}

func (c *Client) CancelFuturesOrder(ctx context.Context, symbol, orderID string) error {
	id, err := parseOrderID(orderID)
	if err != nil {
		return err
	}
	err = withRetry(ctx, "CancelFuturesOrder", func() error {
		_, err := c.Futures.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(ctx)
		return err
	})
	return errors.Wrapf(err, "cancel futures order %s on %s", orderID, symbol)
}

// StartListenKeys requests one user-data listen key per market, the
// prerequisite for subscribing a Stream to order-update events.
func (c *Client) StartListenKeys(ctx context.Context) (spotListenKey, futuresListenKey string, err error) {
	spotListenKey, err = withRetryValue(ctx, "StartListenKeys(spot)", func() (string, error) {
		return c.Spot.NewStartUserStreamService().Do(ctx)
	})
	if err != nil {
		return "", "", errors.Wrap(err, "start spot user stream")
	}
	futuresListenKey, err = withRetryValue(ctx, "StartListenKeys(futures)", func() (string, error) {
		return c.Futures.NewStartUserStreamService().Do(ctx)
	})
	if err != nil {
		return "", "", errors.Wrap(err, "start futures user stream")
	}
	return spotListenKey, futuresListenKey, nil
}
