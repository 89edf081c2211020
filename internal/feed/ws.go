// Package feed ingests normalized market data from the market-data
// collaborator over WebSocket and keeps the quote and orderbook caches
// current. The engine itself never talks to venue-native feeds; it
// consumes the collaborator's normalized stream.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/predarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// QuoteHandler is called for each normalized quote event.
type QuoteHandler func(ctx context.Context, q domain.MarketQuote)

// BookHandler is called for each normalized depth snapshot event.
type BookHandler func(ctx context.Context, snap domain.OrderBookSnapshot)

// subscribeCommand is the subscription request sent after connecting.
type subscribeCommand struct {
	Type    string   `json:"type"`
	Markets []string `json:"markets"`
}

// WSFeed connects to the collaborator's normalized event stream,
// subscribes to the configured markets, and invokes the registered
// handlers on each event. It reconnects with exponential backoff on
// disconnect.
type WSFeed struct {
	url     string
	markets []string
	onQuote QuoteHandler
	onBook  BookHandler
	logger  *slog.Logger
}

// NewWSFeed creates a feed for the given stream URL and market IDs.
func NewWSFeed(url string, markets []string, onQuote QuoteHandler, onBook BookHandler, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:     url,
		markets: markets,
		onQuote: onQuote,
		onBook:  onBook,
		logger:  logger.With(slog.String("component", "ws_feed")),
	}
}

// Run connects and consumes events until ctx is cancelled. Disconnects
// trigger reconnection with exponential backoff; the backoff resets after
// a successful subscribe.
func (f *WSFeed) Run(ctx context.Context) error {
	if len(f.markets) == 0 {
		f.logger.InfoContext(ctx, "no markets to subscribe, feed idle")
		<-ctx.Done()
		return ctx.Err()
	}

	delay := reconnectDelay
	for {
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.WarnContext(ctx, "feed disconnected, reconnecting",
			slog.Any("error", err),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// runConnection dials, subscribes, and reads events until the connection
// drops or ctx is cancelled.
func (f *WSFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}

	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("feed: connect %s: %w", f.url, err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := f.subscribe(conn); err != nil {
		return err
	}
	f.logger.InfoContext(ctx, "feed subscribed", slog.Int("markets", len(f.markets)))

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-done:
		}
	}()

	go f.pingLoop(conn, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		f.dispatch(ctx, raw)
	}
}

func (f *WSFeed) subscribe(conn *websocket.Conn) error {
	cmd := subscribeCommand{Type: "subscribe", Markets: f.markets}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("feed: marshal subscribe: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	return nil
}

func (f *WSFeed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch decodes one raw event and routes it to the matching handler.
// Unparseable or unknown events are dropped; a noisy upstream must not
// take the feed down.
func (f *WSFeed) dispatch(ctx context.Context, raw []byte) {
	quote, book, err := decodeEvent(raw)
	if err != nil {
		f.logger.DebugContext(ctx, "dropping malformed event",
			slog.Any("error", err),
			slog.Int("payload_len", len(raw)))
		return
	}

	switch {
	case quote != nil && f.onQuote != nil:
		f.onQuote(ctx, *quote)
	case book != nil && f.onBook != nil:
		f.onBook(ctx, *book)
	}
}

// eventEnvelope is the outer shape of every stream message.
type eventEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// quoteEvent is the normalized quote payload.
type quoteEvent struct {
	Venue     string    `json:"venue"`
	MarketID  string    `json:"market_id"`
	YesPrice  float64   `json:"yes_price"`
	NoPrice   float64   `json:"no_price"`
	BestBid   float64   `json:"best_bid"`
	BestAsk   float64   `json:"best_ask"`
	Timestamp time.Time `json:"ts"`
}

// bookEvent is the normalized depth snapshot payload.
type bookEvent struct {
	Venue     string      `json:"venue"`
	MarketID  string      `json:"market_id"`
	Bids      [][2]float64 `json:"bids"` // [price, size] best first
	Asks      [][2]float64 `json:"asks"`
	Timestamp time.Time   `json:"ts"`
}

// decodeEvent parses a raw stream message into exactly one of a quote or a
// book snapshot. Events with an unknown type return an error.
func decodeEvent(raw []byte) (*domain.MarketQuote, *domain.OrderBookSnapshot, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case "quote":
		var ev quoteEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, nil, fmt.Errorf("decode quote: %w", err)
		}
		if ev.MarketID == "" {
			return nil, nil, fmt.Errorf("quote event missing market_id")
		}
		q := domain.MarketQuote{
			Venue:     domain.Venue(ev.Venue),
			MarketID:  ev.MarketID,
			YesPrice:  ev.YesPrice,
			NoPrice:   ev.NoPrice,
			BestBid:   ev.BestBid,
			BestAsk:   ev.BestAsk,
			Timestamp: ev.Timestamp,
		}
		return &q, nil, nil

	case "book":
		var ev bookEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, nil, fmt.Errorf("decode book: %w", err)
		}
		if ev.MarketID == "" {
			return nil, nil, fmt.Errorf("book event missing market_id")
		}
		snap := domain.OrderBookSnapshot{
			Venue:     domain.Venue(ev.Venue),
			MarketID:  ev.MarketID,
			Timestamp: ev.Timestamp,
		}
		for _, lvl := range ev.Bids {
			snap.Bids = append(snap.Bids, domain.PriceLevel{Price: lvl[0], Size: lvl[1]})
		}
		for _, lvl := range ev.Asks {
			snap.Asks = append(snap.Asks, domain.PriceLevel{Price: lvl[0], Size: lvl[1]})
		}
		if len(snap.Bids) > 0 {
			snap.BestBid = snap.Bids[0].Price
		}
		if len(snap.Asks) > 0 {
			snap.BestAsk = snap.Asks[0].Price
		}
		return nil, &snap, nil

	default:
		return nil, nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}
