package binanceadapter

import (
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/thedr-lul/hedgehog/pkg/types"
)

// defaultQuoteCurrency mirrors Config.QuoteCurrency's default (USDT);
// callers needing a different quote should construct symbols themselves and
// call GetMarketPrice/PlaceLimitOrder directly rather than the base-only
// helpers, which always assume the default quote.
const defaultQuoteCurrency = "USDT"

func spotSymbol(base string) string    { return strings.ToUpper(base) + defaultQuoteCurrency }
func futuresSymbol(base string) string { return strings.ToUpper(base) + defaultQuoteCurrency }

func toBinanceSide(side types.Side) binance.SideType {
	if side == types.SideBuy {
		return binance.SideTypeBuy
	}
	return binance.SideTypeSell
}

func toFuturesSide(side types.Side) futures.SideType {
	if side == types.SideBuy {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

func formatOrderID(id int64) string { return strconv.FormatInt(id, 10) }

// newClientOrderID tags every placement with a unique client order id so a
// venue-side duplicate (e.g. a replayed request) is detectable in the
// account's order history.
func newClientOrderID() string { return "hdg-" + uuid.NewString() }

func parseOrderID(orderID string) (int64, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse order id %q", orderID)
	}
	return id, nil
}

// toOrderStatus maps Binance's order status vocabulary onto the engine's.
// Binance's upper-snake statuses are mapped explicitly; PENDING_CANCEL is
// treated as PartiallyFilledCancelled, EXPIRED as Rejected, and
// NEW_INSURANCE/NEW_ADL as Triggered. Anything else is passed to
// types.ParseOrderStatus unchanged.
func toOrderStatus(raw string) types.OrderStatus {
	switch raw {
	case "NEW":
		return types.OrderStatusNew
	case "PARTIALLY_FILLED":
		return types.OrderStatusPartiallyFilled
	case "FILLED":
		return types.OrderStatusFilled
	case "CANCELED", "CANCELLED":
		return types.OrderStatusCancelled
	case "PENDING_CANCEL":
		return types.OrderStatusPartiallyFilledCancelled
	case "REJECTED", "EXPIRED":
		return types.OrderStatusRejected
	case "NEW_INSURANCE", "NEW_ADL":
		return types.OrderStatusTriggered
	default:
		return types.ParseOrderStatus(raw)
	}
}
