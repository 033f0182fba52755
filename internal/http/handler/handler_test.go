package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/signal-trader/internal/alert"
	"github.com/your-org/signal-trader/internal/position"
)

type staticPositions []position.Position

func (s staticPositions) Snapshot() []position.Position { return s }

type fakeControl struct {
	running bool
	starts  int
	stops   int
}

func (f *fakeControl) Start() bool {
	f.starts++
	if f.running {
		return false
	}
	f.running = true
	return true
}

func (f *fakeControl) Stop() bool {
	f.stops++
	if !f.running {
		return false
	}
	f.running = false
	return true
}

func (f *fakeControl) Running() bool { return f.running }

func newTestServer(t *testing.T) (*httptest.Server, *alert.History, *fakeControl) {
	t.Helper()
	positions := staticPositions{
		{Symbol: "BTC-USDT-SWAP", Side: "LONG", InPosition: true, AssetVol: 0.016},
		{Symbol: "ETH-USDT-SWAP", Side: "SHORT", PendingOpen: true, OrderID: "42"},
	}
	history := alert.NewHistory(10)
	control := &fakeControl{}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})
	srv := httptest.NewServer(NewRouter(NewStatusHandler(positions, history, control), metrics))
	t.Cleanup(srv.Close)
	return srv, history, control
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheckHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusHandler_Positions(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var got []position.Position
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/positions", &got))
	require.Len(t, got, 2)
	assert.Equal(t, "BTC-USDT-SWAP", got[0].Symbol)
	assert.Equal(t, "42", got[1].OrderID)

	var status statusResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/status", &status))
	assert.Equal(t, statusResponse{Running: false, OpenPositions: 1, Pending: 1}, status)
}

func TestStatusHandler_Events(t *testing.T) {
	srv, history, _ := newTestServer(t)
	history.Publish("1", alert.KindSignal, &alert.SignalPayload{Subject: alert.Subject{Symbol: "BTC-USDT-SWAP", Side: "LONG"}})
	history.Publish("1", alert.KindOrderFailed, &alert.OrderFailedPayload{Subject: alert.Subject{Symbol: "BTC-USDT-SWAP", Side: "LONG"}, Reason: "x"})
	history.Publish("1", alert.KindSignal, &alert.SignalPayload{Subject: alert.Subject{Symbol: "ETH-USDT-SWAP", Side: "SHORT"}})

	var all []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/events", &all))
	assert.Len(t, all, 3)

	var signals []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/events?kind=signal&limit=1", &signals))
	require.Len(t, signals, 1)
	payload := signals[0]["payload"].(map[string]any)
	assert.Equal(t, "ETH-USDT-SWAP", payload["symbol"])

	var none []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/events?kind=pnl-report", &none))
	assert.Empty(t, none)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/events?limit=abc", nil))
}

func TestStatusHandler_StartStop(t *testing.T) {
	srv, _, control := newTestServer(t)

	post := func(path string) controlResponse {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		var out controlResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	assert.Equal(t, controlResponse{Running: true, Changed: true}, post("/start"))
	assert.Equal(t, controlResponse{Running: true, Changed: false}, post("/start"))
	assert.Equal(t, controlResponse{Running: false, Changed: true}, post("/stop"))
	assert.Equal(t, 2, control.starts)
	assert.Equal(t, 1, control.stops)
}
