package session

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/signal-trader/internal/alert"
	"github.com/your-org/signal-trader/internal/config"
	"github.com/your-org/signal-trader/internal/exchange/okx"
)

const btcSignal = "$BTCUSDT #soft\nЛонг\nВход: 62 500,5\nСтоп - 61000\nТейк: 64000\nПлечо: х10"

type okxStub struct {
	*httptest.Server
	mu    sync.Mutex
	hits  map[string]int
	order map[string]bool
}

func newOKXStub(t *testing.T) *okxStub {
	t.Helper()
	s := &okxStub{hits: make(map[string]int)}
	reply := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			s.mu.Lock()
			s.hits[r.URL.Path]++
			s.mu.Unlock()
			io.WriteString(w, body)
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v5/public/instruments", reply(`{"code":"0","msg":"","data":[{"instId":"BTC-USDT-SWAP","instType":"SWAP","ctVal":"0.01","lotSz":"0.01","tickSz":"0.1","lever":"100"}]}`))
	mux.HandleFunc("/api/v5/market/tickers", reply(`{"code":"0","msg":"","data":[{"instId":"BTC-USDT-SWAP","last":"62400"}]}`))
	mux.HandleFunc("/api/v5/account/set-position-mode", reply(`{"code":"0","msg":"","data":[{"posMode":"long_short_mode"}]}`))
	mux.HandleFunc("/api/v5/account/positions", reply(`{"code":"0","msg":"","data":[]}`))
	mux.HandleFunc("/api/v5/account/set-leverage", reply(`{"code":"0","msg":"","data":[{}]}`))
	mux.HandleFunc("/api/v5/trade/order", reply(`{"code":"0","msg":"","data":[{"ordId":"42","sCode":"0","sMsg":"","ts":"1700000000000"}]}`))
	mux.HandleFunc("/api/v5/trade/cancel-order", reply(`{"code":"0","msg":"","data":[{"ordId":"42","sCode":"0","sMsg":""}]}`))
	mux.HandleFunc("/api/v5/public/time", reply(`{"code":"0","msg":"","data":[{"ts":"1700000000000"}]}`))
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *okxStub) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func testConfig() *config.Config {
	return &config.Config{
		Signal: config.SignalConfig{WindowSize: 20, ProcessingLimit: 10, VolumeRate: 100},
		Timing: config.TimingConfig{
			PositionsUpdateInterval: 10 * time.Millisecond,
			MainCycleInterval:       10 * time.Millisecond,
			PingInterval:            20 * time.Millisecond,
			WatchdogPollInterval:    10 * time.Millisecond,
		},
		PnL: config.PnLConfig{Strategy: "ledger", SlippagePct: 0.09},
	}
}

func testTenant() config.Tenant {
	return config.Tenant{
		ID: "1", MarginSize: 100, MarginMode: config.MarginIsolated, OrderTimeoutSeconds: 60,
		Credentials: config.Credentials{APIKey: "k", APISecret: "s", Passphrase: "p"},
	}
}

func factory(url string) ExchangeFactory {
	return func(c config.Credentials) Exchange {
		return okx.NewClient(okx.Config{
			BaseURL:     url,
			Credentials: okx.Credentials{APIKey: c.APIKey, SecretKey: c.APISecret, Passphrase: c.Passphrase},
			Retry:       okx.RetryPolicy{Backoff: 5 * time.Millisecond},
		}, zap.NewNop())
	}
}

func TestPriceCache(t *testing.T) {
	c := NewPriceCache()
	c.Set("BTC-USDT-SWAP", 0)
	_, ok := c.Price("BTC-USDT-SWAP")
	assert.False(t, ok)

	c.Load(map[string]float64{"BTC-USDT-SWAP": 100, "ETH-USDT-SWAP": -1})
	c.Set("SOL-USDT-SWAP", 20)
	p, ok := c.Price("BTC-USDT-SWAP")
	assert.True(t, ok)
	assert.Equal(t, 100.0, p)
	assert.Equal(t, 2, c.Len())

	c.Reset()
	assert.Zero(t, c.Len())
}

func TestControl(t *testing.T) {
	c := NewControl()
	assert.False(t, c.Stop(), "nothing to stop while idle")
	assert.True(t, c.Start())
	assert.True(t, c.Start(), "start requests coalesce")

	c.setRunning(true)
	assert.False(t, c.Start())
	assert.True(t, c.Stop())
	assert.True(t, c.Running())
}

func TestIterate_MissingCredentials(t *testing.T) {
	tenant := testTenant()
	tenant.Credentials.Passphrase = ""
	state := NewState(testConfig(), config.NewStore([]config.Tenant{tenant}), zap.NewNop())
	r := NewRunner(state, NewControl(), alert.NoOpSink{}, factory("http://127.0.0.1:0"), nil)

	err := r.Iterate(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestIterate_NoTenant(t *testing.T) {
	state := NewState(testConfig(), config.NewStore(nil), zap.NewNop())
	r := NewRunner(state, NewControl(), alert.NoOpSink{}, factory("http://127.0.0.1:0"), nil)
	assert.ErrorIs(t, r.Iterate(context.Background()), ErrNoTenant)
}

func TestIterate_ExecutesSignalAndTearsDown(t *testing.T) {
	stub := newOKXStub(t)
	state := NewState(testConfig(), config.NewStore([]config.Tenant{testTenant()}), zap.NewNop())
	require.True(t, state.Window.Append(btcSignal, time.Now().UnixMilli()))
	history := alert.NewHistory(20)

	var feedSymbols []string
	var feedMu sync.Mutex
	feed := func(ctx context.Context, symbols []string, sink okx.PriceSink) {
		feedMu.Lock()
		feedSymbols = symbols
		feedMu.Unlock()
		sink.Set("BTC-USDT-SWAP", 62450)
		<-ctx.Done()
	}

	r := NewRunner(state, NewControl(), history, factory(stub.URL), feed)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Iterate(ctx) }()

	require.Eventually(t, func() bool {
		return len(history.OfKind(alert.KindOrderSent)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, stub.count("/api/v5/account/set-position-mode"))
	assert.GreaterOrEqual(t, stub.count("/api/v5/account/positions"), 1)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 1, stub.count("/api/v5/trade/order"), "the signal is executed once")
	assert.Equal(t, 1, stub.count("/api/v5/trade/cancel-order"), "the open order is cancelled on stop")
	assert.Empty(t, state.Table.Keys(), "position table is reset")
	assert.Zero(t, state.Prices.Len())

	feedMu.Lock()
	assert.Equal(t, []string{"BTC-USDT-SWAP"}, feedSymbols)
	feedMu.Unlock()

	sent := history.OfKind(alert.KindOrderSent)[0].Payload.(*alert.OrderSentPayload)
	assert.Equal(t, "1.6", sent.Contracts)
	assert.Equal(t, "62500.5", sent.Price)
}

func TestRun_SoftStopAndRestart(t *testing.T) {
	stub := newOKXStub(t)
	state := NewState(testConfig(), config.NewStore([]config.Tenant{testTenant()}), zap.NewNop())
	control := NewControl()
	r := NewRunner(state, control, alert.NoOpSink{}, factory(stub.URL), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.True(t, control.Start())
	require.Eventually(t, control.Running, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return stub.count("/api/v5/public/instruments") == 1 }, time.Second, 5*time.Millisecond)

	require.True(t, control.Stop())
	require.Eventually(t, func() bool { return !control.Running() }, time.Second, 5*time.Millisecond)

	require.True(t, control.Start())
	require.Eventually(t, func() bool { return stub.count("/api/v5/public/instruments") == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, control.Running())
}
