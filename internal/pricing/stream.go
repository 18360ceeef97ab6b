package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// StreamConfig configures WebSocket stream behavior.
type StreamConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is the maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
	// Staleness is how long a streamed price stays usable before the
	// fallback feed is consulted instead.
	Staleness time.Duration
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		Staleness:         15 * time.Second,
	}
}

// StreamFeed keeps a last-price cache fed by a WebSocket ticker stream
// and satisfies PriceFeed by reading the cache, delegating stale or
// missing symbols to a fallback feed.
type StreamFeed struct {
	endpoint string
	config   StreamConfig
	fallback PriceFeed

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	last   map[string]*PricePoint
	lastMu sync.RWMutex

	// symbols currently subscribed, kept for resubscription after a
	// reconnect
	symbols   map[string]struct{}
	symbolsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewStreamFeed connects to endpoint and starts the read and ping
// loops. fallback handles symbols the stream has not priced yet.
func NewStreamFeed(ctx context.Context, endpoint string, fallback PriceFeed, config *StreamConfig) (*StreamFeed, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}

	f := &StreamFeed{
		endpoint: endpoint,
		config:   cfg,
		fallback: fallback,
		last:     make(map[string]*PricePoint),
		symbols:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	f.wg.Add(2)
	go f.readLoop()
	go f.pingLoop()

	return f, nil
}

var _ PriceFeed = (*StreamFeed)(nil)

// connect establishes the WebSocket connection.
func (f *StreamFeed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	f.conn = conn
	return nil
}

// subscribeMsg is the outbound subscription frame.
type subscribeMsg struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// tickerMsg is one inbound price update.
type tickerMsg struct {
	Symbol   string `json:"symbol"`
	PriceUSD string `json:"priceUsd"`
	At       int64  `json:"at"`
}

// Subscribe registers symbols with the stream.
func (f *StreamFeed) Subscribe(symbols ...string) error {
	if f.closed.Load() {
		return fmt.Errorf("stream closed")
	}

	f.symbolsMu.Lock()
	for _, s := range symbols {
		f.symbols[s] = struct{}{}
	}
	f.symbolsMu.Unlock()

	return f.writeSubscribe(symbols)
}

func (f *StreamFeed) writeSubscribe(symbols []string) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	return f.conn.WriteJSON(subscribeMsg{Op: "subscribe", Symbols: symbols})
}

// GetPrice reads the streamed price for symbol, falling back when the
// entry is missing or stale.
func (f *StreamFeed) GetPrice(ctx context.Context, symbol string) (*PricePoint, error) {
	if p := f.fresh(symbol); p != nil {
		return p, nil
	}
	if f.fallback == nil {
		return nil, ErrUnknownToken
	}
	return f.fallback.GetPrice(ctx, symbol)
}

// GetPrices serves streamed prices and batches the rest to the
// fallback.
func (f *StreamFeed) GetPrices(ctx context.Context, symbols []string) (map[string]*PricePoint, error) {
	out := make(map[string]*PricePoint, len(symbols))
	var missing []string
	for _, s := range symbols {
		if p := f.fresh(s); p != nil {
			out[s] = p
		} else {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 && f.fallback != nil {
		rest, err := f.fallback.GetPrices(ctx, missing)
		if err != nil {
			if len(out) == 0 {
				return nil, err
			}
			return out, nil
		}
		for s, p := range rest {
			out[s] = p
		}
	}
	return out, nil
}

// fresh returns the cached point if within the staleness window.
func (f *StreamFeed) fresh(symbol string) *PricePoint {
	f.lastMu.RLock()
	p, ok := f.last[symbol]
	f.lastMu.RUnlock()
	if !ok {
		return nil
	}
	if time.Since(p.At) > f.config.Staleness {
		return nil
	}
	return p
}

// Close shuts down the stream.
func (f *StreamFeed) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	return nil
}

// readLoop reads ticker frames and updates the last-price cache.
func (f *StreamFeed) readLoop() {
	defer f.wg.Done()

	reconnectDelay := f.config.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			// A failed reconnect leaves no connection; schedule another
			// attempt with the same backoff as a read error.
			if !f.reconnecting.Swap(true) {
				go f.reconnect(reconnectDelay)
				reconnectDelay *= 2
				if reconnectDelay > f.config.MaxReconnectDelay {
					reconnectDelay = f.config.MaxReconnectDelay
				}
			}
			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}

			if !f.reconnecting.Swap(true) {
				go f.reconnect(reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > f.config.MaxReconnectDelay {
				reconnectDelay = f.config.MaxReconnectDelay
			}

			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = f.config.ReconnectDelay

		var tick tickerMsg
		if err := json.Unmarshal(message, &tick); err != nil || tick.Symbol == "" {
			continue
		}
		price, err := decimal.NewFromString(tick.PriceUSD)
		if err != nil {
			continue
		}
		at := time.UnixMilli(tick.At)
		if tick.At == 0 {
			at = time.Now()
		}

		f.lastMu.Lock()
		f.last[tick.Symbol] = &PricePoint{Symbol: tick.Symbol, PriceUSD: price, At: at}
		f.lastMu.Unlock()
	}
}

// reconnect attempts to reconnect and resubscribe.
func (f *StreamFeed) reconnect(delay time.Duration) {
	defer f.reconnecting.Store(false)

	if f.closed.Load() {
		return
	}

	select {
	case <-f.done:
		return
	case <-time.After(delay):
	}

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.connect(ctx); err != nil {
		// The read loop schedules the next attempt while no
		// connection is open.
		return
	}

	f.symbolsMu.Lock()
	symbols := make([]string, 0, len(f.symbols))
	for s := range f.symbols {
		symbols = append(symbols, s)
	}
	f.symbolsMu.Unlock()

	if len(symbols) > 0 {
		f.writeSubscribe(symbols)
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (f *StreamFeed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				f.conn.WriteMessage(websocket.PingMessage, nil)
			}
			f.connMu.Unlock()
		}
	}
}
