package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultWSURL       = "wss://ws.okx.com:8443/ws/v5/public"
	wsPingInterval     = 25 * time.Second
	wsMaxBackoff       = 60 * time.Second
	wsInitialBackoff   = time.Second
	wsHandshakeTimeout = 10 * time.Second
)

// PriceSink receives last-price updates.
type PriceSink interface {
	Set(symbol string, price float64)
}

// TickerFeed streams the public tickers channel into a PriceSink.
type TickerFeed struct {
	url          string
	symbols      []string
	sink         PriceSink
	dialer       *websocket.Dialer
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewTickerFeed creates a feed for symbols. An empty url uses the production endpoint.
func NewTickerFeed(wsURL string, symbols []string, sink PriceSink, logger *zap.Logger) *TickerFeed {
	if wsURL == "" {
		wsURL = defaultWSURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TickerFeed{
		url:          wsURL,
		symbols:      symbols,
		sink:         sink,
		dialer:       &websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout},
		pingInterval: wsPingInterval,
		logger:       logger.Named("ticker_feed"),
	}
}

type wsRequest struct {
	Op   string              `json:"op"`
	Args []map[string]string `json:"args"`
}

type wsPush struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data []Ticker `json:"data"`
}

// Run keeps the feed connected until ctx ends, reconnecting with exponential backoff.
func (f *TickerFeed) Run(ctx context.Context) {
	backoff := wsInitialBackoff
	for {
		connected, err := f.session(ctx)
		if ctx.Err() != nil {
			f.logger.Info("Ticker feed stopped.")
			return
		}
		if connected {
			backoff = wsInitialBackoff
		}
		f.logger.Warn("Ticker feed disconnected", zap.Error(err), zap.Duration("retryIn", backoff))

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff *= 2
		if backoff > wsMaxBackoff {
			backoff = wsMaxBackoff
		}
	}
}

func (f *TickerFeed) session(ctx context.Context) (bool, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.Close()
	f.logger.Info("Ticker feed connected", zap.String("url", f.url), zap.Int("symbols", len(f.symbols)))

	args := make([]map[string]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		args = append(args, map[string]string{"channel": "tickers", "instId": s})
	}
	if err := conn.WriteJSON(wsRequest{Op: "subscribe", Args: args}); err != nil {
		return true, fmt.Errorf("subscribe: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(f.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					f.logger.Warn("Ticker feed ping failed", zap.Error(err))
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		if string(msg) == "pong" {
			continue
		}
		f.handle(msg)
	}
}

func (f *TickerFeed) handle(msg []byte) {
	var push wsPush
	if err := json.Unmarshal(msg, &push); err != nil {
		f.logger.Debug("Unparsable ticker message", zap.ByteString("msg", msg), zap.Error(err))
		return
	}
	if push.Event == "error" {
		f.logger.Error("Ticker feed error event", zap.String("code", push.Code), zap.String("msg", push.Msg))
		return
	}
	for _, t := range push.Data {
		p, err := strconv.ParseFloat(t.Last, 64)
		if err != nil || t.InstID == "" {
			continue
		}
		f.sink.Set(t.InstID, p)
	}
}
