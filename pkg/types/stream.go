package types

import "github.com/thedr-lul/hedgehog/pkg/fixedpoint"

// MarketUpdate is the per-leg best-bid/ask snapshot the event loop keeps.
// Fields are pointers because a book can be one-sided or not yet populated.
type MarketUpdate struct {
	BestBidPrice     *fixedpoint.Value
	BestBidQuantity  *fixedpoint.Value
	BestAskPrice     *fixedpoint.Value
	BestAskQuantity  *fixedpoint.Value
	LastUpdateTimeMs int64 // 0 means never updated
}

// MidPrice returns the mid of bid/ask, falling back to whichever side is
// available, or false if neither side has a quote yet.
func (m MarketUpdate) MidPrice() (fixedpoint.Value, bool) {
	switch {
	case m.BestBidPrice != nil && m.BestAskPrice != nil:
		return m.BestBidPrice.Add(*m.BestAskPrice).Div(fixedpoint.Two), true
	case m.BestBidPrice != nil:
		return *m.BestBidPrice, true
	case m.BestAskPrice != nil:
		return *m.BestAskPrice, true
	default:
		return fixedpoint.Zero, false
	}
}

// MessageKind discriminates the inbound WebSocket message sum type. Go has
// no tagged-union enum, so WebSocketMessage carries a Kind plus the payload
// fields relevant to that kind — the fields not used by Kind are zero.
type MessageKind int

const (
	MessageOrderUpdate MessageKind = iota
	MessageOrderBookL2
	MessagePublicTrade
	MessageConnected
	MessageAuthenticated
	MessageSubscriptionResponse
	MessagePong
	MessageError
	MessageDisconnected
)

// WebSocketMessage is one message from the market-data/order-update feed.
type WebSocketMessage struct {
	Kind MessageKind

	// MessageOrderUpdate
	OrderUpdate DetailedOrderStatus

	// MessageOrderBookL2
	Symbol     string
	Bids       []OrderbookLevel
	Asks       []OrderbookLevel
	IsSnapshot bool

	// MessagePublicTrade
	TradePrice     fixedpoint.Value
	TradeQuantity  fixedpoint.Value
	TradeSide      Side
	TradeTimestamp int64

	// MessageAuthenticated
	AuthSuccess bool

	// MessageSubscriptionResponse
	SubscriptionTopic   string
	SubscriptionSuccess bool

	// MessageError
	ErrorMessage string
}
