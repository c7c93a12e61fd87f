package binanceadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thedr-lul/hedgehog/pkg/fixedpoint"
	"github.com/thedr-lul/hedgehog/pkg/hedger"
	"github.com/thedr-lul/hedgehog/pkg/types"
)

const (
	spotStreamBase    = "wss://stream.binance.com:9443/stream"
	futuresStreamBase = "wss://fstream.binance.com/stream"
)

// Stream is a minimal combined-stream WebSocket client for Binance spot and
// futures market data plus user-data order updates, feeding hedger.Task's
// inbound channel directly. It is a manual dispatch-by-envelope reader
// rather than go-binance/v2's own Ws*Serve helpers, so the engine's
// MessageKind mapping stays explicit and venue-agnostic at the call site.
type Stream struct {
	SpotSymbol        string
	FuturesSymbol     string
	SpotListenKey     string
	FuturesListenKey  string

	conn *websocket.Conn
	out  chan hedger.IncomingMessage
}

// Connect dials the spot combined stream carrying depth + user-data updates
// for one operation's two symbols and starts the read loop. The caller is
// responsible for calling Close when the task ends.
func (s *Stream) Connect(ctx context.Context) (<-chan hedger.IncomingMessage, error) {
	streams := []string{
		strings.ToLower(s.SpotSymbol) + "@depth20@100ms",
		strings.ToLower(s.FuturesSymbol) + "@depth20@100ms",
	}
	if s.SpotListenKey != "" {
		streams = append(streams, s.SpotListenKey)
	}
	if s.FuturesListenKey != "" {
		streams = append(streams, s.FuturesListenKey)
	}
	url := fmt.Sprintf("%s?streams=%s", spotStreamBase, strings.Join(streams, "/"))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "dial binance combined stream")
	}
	s.conn = conn
	s.out = make(chan hedger.IncomingMessage, 64)

	go s.readLoop()
	return s.out, nil
}

func (s *Stream) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Stream) readLoop() {
	defer close(s.out)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.out <- hedger.IncomingMessage{Err: errors.Wrap(err, "websocket read")}
			return
		}
		msg, err := s.parseEnvelope(raw)
		if err != nil {
			logrus.WithError(err).Warn("dropping unparseable binance stream frame")
			continue
		}
		if msg == nil {
			continue
		}
		s.out <- hedger.IncomingMessage{Message: *msg}
	}
}

type combinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// parseEnvelope dispatches one combined-stream frame onto the engine's
// message vocabulary. Depth frames become OrderBookL2, order execution
// reports become OrderUpdate; everything else unrecognized is silently
// dropped rather than surfaced as an error, since the task treats unknown
// messages leniently (only a true connection drop is terminal).
func (s *Stream) parseEnvelope(raw []byte) (*types.WebSocketMessage, error) {
	var env combinedEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, "unmarshal combined stream envelope")
	}

	switch {
	case strings.Contains(env.Stream, "@depth"):
		return s.parseDepth(env.Stream, env.Data)
	case strings.HasSuffix(env.Stream, s.SpotListenKey) && s.SpotListenKey != "":
		return s.parseUserData(env.Data, true)
	case strings.HasSuffix(env.Stream, s.FuturesListenKey) && s.FuturesListenKey != "":
		return s.parseUserData(env.Data, false)
	default:
		return nil, nil
	}
}

type depthPayload struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

func (s *Stream) parseDepth(streamName string, data json.RawMessage) (*types.WebSocketMessage, error) {
	var payload depthPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.Wrap(err, "unmarshal depth payload")
	}

	symbol := s.SpotSymbol
	if strings.HasPrefix(streamName, strings.ToLower(s.FuturesSymbol)) {
		symbol = s.FuturesSymbol
	}

	bids, err := levelsFromPairs(payload.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := levelsFromPairs(payload.Asks)
	if err != nil {
		return nil, err
	}

	return &types.WebSocketMessage{
		Kind:       types.MessageOrderBookL2,
		Symbol:     symbol,
		Bids:       bids,
		Asks:       asks,
		IsSnapshot: true,
	}, nil
}

func levelsFromPairs(pairs [][2]string) ([]types.OrderbookLevel, error) {
	levels := make([]types.OrderbookLevel, 0, len(pairs))
	for _, p := range pairs {
		price, err := fixedpoint.NewFromString(p[0])
		if err != nil {
			return nil, errors.Wrap(err, "parse level price")
		}
		qty, err := fixedpoint.NewFromString(p[1])
		if err != nil {
			return nil, errors.Wrap(err, "parse level quantity")
		}
		levels = append(levels, types.OrderbookLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

// spotExecutionReport is Binance's spot user-data "executionReport" event
// (https://binance-docs.github.io user data streams); fields are the
// venue's single-letter wire keys.
type spotExecutionReport struct {
	EventType       string `json:"e"`
	OrderID         int64  `json:"i"`
	Status          string `json:"X"`
	FilledQty       string `json:"z"`
	CumulativeQuote string `json:"Z"`
	LastFilledPrice string `json:"L"`
}

// futuresOrderTradeUpdate is Binance futures' "ORDER_TRADE_UPDATE" event,
// wrapping the order payload under "o".
type futuresOrderTradeUpdate struct {
	EventType string `json:"e"`
	Order     struct {
		OrderID         int64  `json:"i"`
		Status          string `json:"X"`
		FilledQty       string `json:"z"`
		AveragePrice    string `json:"ap"`
		LastFilledPrice string `json:"L"`
	} `json:"o"`
}

func (s *Stream) parseUserData(data json.RawMessage, isSpot bool) (*types.WebSocketMessage, error) {
	if isSpot {
		var evt spotExecutionReport
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, errors.Wrap(err, "unmarshal spot execution report")
		}
		if evt.EventType != "executionReport" {
			return nil, nil
		}
		return executionToMessage(
			formatOrderID(evt.OrderID), evt.Status, evt.FilledQty, evt.CumulativeQuote, evt.LastFilledPrice,
		)
	}

	var evt futuresOrderTradeUpdate
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, errors.Wrap(err, "unmarshal futures order trade update")
	}
	if evt.EventType != "ORDER_TRADE_UPDATE" {
		return nil, nil
	}
	filled, err := fixedpoint.NewFromString(orDefault(evt.Order.FilledQty, "0"))
	if err != nil {
		return nil, errors.Wrap(err, "parse futures filled qty")
	}
	avgPrice, err := fixedpoint.NewFromString(orDefault(evt.Order.AveragePrice, "0"))
	if err != nil {
		return nil, errors.Wrap(err, "parse futures average price")
	}
	lastPrice, err := fixedpoint.NewFromString(orDefault(evt.Order.LastFilledPrice, "0"))
	if err != nil {
		return nil, errors.Wrap(err, "parse futures last filled price")
	}
	return &types.WebSocketMessage{
		Kind: types.MessageOrderUpdate,
		OrderUpdate: types.DetailedOrderStatus{
			OrderID:                 formatOrderID(evt.Order.OrderID),
			FilledQuantity:          filled,
			CumulativeExecutedValue: filled.Mul(avgPrice),
			AveragePrice:            avgPrice,
			LastFilledPrice:         &lastPrice,
			Status:                  toOrderStatus(evt.Order.Status),
		},
	}, nil
}

func executionToMessage(orderID, status, filledQtyStr, cumulativeQuoteStr, lastPriceStr string) (*types.WebSocketMessage, error) {
	filled, err := fixedpoint.NewFromString(orDefault(filledQtyStr, "0"))
	if err != nil {
		return nil, errors.Wrap(err, "parse spot filled qty")
	}
	cumQuote, err := fixedpoint.NewFromString(orDefault(cumulativeQuoteStr, "0"))
	if err != nil {
		return nil, errors.Wrap(err, "parse spot cumulative quote")
	}
	lastPrice, err := fixedpoint.NewFromString(orDefault(lastPriceStr, "0"))
	if err != nil {
		return nil, errors.Wrap(err, "parse spot last filled price")
	}
	avgPrice := fixedpoint.Zero
	if filled.IsPositive() {
		avgPrice = cumQuote.Div(filled)
	}
	return &types.WebSocketMessage{
		Kind: types.MessageOrderUpdate,
		OrderUpdate: types.DetailedOrderStatus{
			OrderID:                 orderID,
			FilledQuantity:          filled,
			CumulativeExecutedValue: cumQuote,
			AveragePrice:            avgPrice,
			LastFilledPrice:         &lastPrice,
			Status:                  toOrderStatus(status),
		},
	}, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// KeepaliveListenKeys renews both listen keys every 30 minutes until ctx is
// cancelled, as Binance user-data streams expire listen keys that aren't
// refreshed on that interval.
func (c *Client) KeepaliveListenKeys(ctx context.Context, spotListenKey, futuresListenKey string) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Spot.NewKeepaliveUserStreamService().ListenKey(spotListenKey).Do(ctx); err != nil {
				logrus.WithError(err).Warn("failed to renew spot listen key")
			}
			if err := c.Futures.NewKeepaliveUserStreamService().ListenKey(futuresListenKey).Do(ctx); err != nil {
				logrus.WithError(err).Warn("failed to renew futures listen key")
			}
		}
	}
}
