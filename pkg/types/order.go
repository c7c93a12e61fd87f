package types

import "github.com/thedr-lul/hedgehog/pkg/fixedpoint"

// OrderStatus is the exchange-reported textual order state. Both "Cancelled"
// and "Canceled" spellings are recognized and normalized to Cancelled;
// anything else not in this vocabulary becomes Unknown(raw).
type OrderStatus struct {
	text string
}

var (
	OrderStatusNew                      = OrderStatus{"New"}
	OrderStatusPartiallyFilled          = OrderStatus{"PartiallyFilled"}
	OrderStatusFilled                   = OrderStatus{"Filled"}
	OrderStatusCancelled                = OrderStatus{"Cancelled"}
	OrderStatusPartiallyFilledCancelled = OrderStatus{"PartiallyFilledCancelled"}
	OrderStatusRejected                 = OrderStatus{"Rejected"}
	OrderStatusUntriggered               = OrderStatus{"Untriggered"}
	OrderStatusTriggered                 = OrderStatus{"Triggered"}
)

// ParseOrderStatus maps a raw exchange status string onto the known
// vocabulary, falling back to Unknown(raw) for anything unrecognized.
func ParseOrderStatus(raw string) OrderStatus {
	switch raw {
	case "New":
		return OrderStatusNew
	case "PartiallyFilled":
		return OrderStatusPartiallyFilled
	case "Filled":
		return OrderStatusFilled
	case "Cancelled", "Canceled":
		return OrderStatusCancelled
	case "PartiallyFilledCancelled", "PartiallyFilledCanceled":
		return OrderStatusPartiallyFilledCancelled
	case "Rejected":
		return OrderStatusRejected
	case "Untriggered":
		return OrderStatusUntriggered
	case "Triggered":
		return OrderStatusTriggered
	default:
		return OrderStatus{"Unknown(" + raw + ")"}
	}
}

func (s OrderStatus) String() string { return s.text }

func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusPartiallyFilledCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

func (s OrderStatus) IsActive() bool {
	return s == OrderStatusNew || s == OrderStatusPartiallyFilled
}

// Order is the exchange's response to a placement request.
type Order struct {
	ID        string
	Side      Side
	Quantity  fixedpoint.Value
	Price     *fixedpoint.Value // nil for market orders
	CreatedAt int64
}

// DetailedOrderStatus is the per-order-update payload the WebSocket
// collaborator delivers: cumulative fill state plus whichever fill-price
// fields the venue reports.
type DetailedOrderStatus struct {
	OrderID                 string
	FilledQuantity          fixedpoint.Value
	RemainingQuantity       fixedpoint.Value
	CumulativeExecutedValue fixedpoint.Value
	AveragePrice            fixedpoint.Value
	LastFilledPrice         *fixedpoint.Value
	Status                  OrderStatus
}

// OrderbookLevel is a single priced level of the order book.
type OrderbookLevel struct {
	Price    fixedpoint.Value
	Quantity fixedpoint.Value
}
