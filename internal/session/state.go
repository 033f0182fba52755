// Package session runs trading iterations: it wires the exchange client,
// reconciler, scan loop and keepalive for the active tenant and tears them
// down on stop.
package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/config"
	"github.com/your-org/signal-trader/internal/position"
	"github.com/your-org/signal-trader/internal/signal"
)

// PriceCache holds the latest known price per instrument. It is seeded from
// the bulk tickers call and refreshed by the WebSocket feed.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewPriceCache creates an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]float64)}
}

// Set stores the price of symbol. Non-positive prices are ignored.
func (c *PriceCache) Set(symbol string, price float64) {
	if price <= 0 {
		return
	}
	c.mu.Lock()
	c.prices[symbol] = price
	c.mu.Unlock()
}

// Load merges a bulk snapshot into the cache.
func (c *PriceCache) Load(snapshot map[string]float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for s, p := range snapshot {
		if p > 0 {
			c.prices[s] = p
		}
	}
}

// Price returns the cached price of symbol.
func (c *PriceCache) Price(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[symbol]
	return p, ok
}

// Len returns the number of cached symbols.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}

// Reset empties the cache.
func (c *PriceCache) Reset() {
	c.mu.Lock()
	c.prices = make(map[string]float64)
	c.mu.Unlock()
}

// State is the shared state of the trading process. The position table and
// price cache are reset at the end of every iteration; the message window
// and dedup set outlive iterations so a restart does not replay signals.
type State struct {
	Config *config.Config
	Store  *config.Store
	Table  *position.Table
	Dedup  *signal.Deduper
	Window *signal.MessageWindow
	Prices *PriceCache
	Logger *zap.Logger
}

// NewState creates the process state for cfg.
func NewState(cfg *config.Config, store *config.Store, logger *zap.Logger) *State {
	return &State{
		Config: cfg,
		Store:  store,
		Table:  position.NewTable(),
		Dedup:  signal.NewDeduper(),
		Window: signal.NewMessageWindow(cfg.Signal.WindowSize),
		Prices: NewPriceCache(),
		Logger: logger,
	}
}

// reset clears per-iteration state.
func (s *State) reset() {
	s.Table.Reset()
	s.Prices.Reset()
}
