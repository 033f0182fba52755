package okx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 5, 7, 8, 9, 123_000_000, time.UTC) }

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	return NewClient(Config{
		BaseURL:     url,
		Credentials: Credentials{APIKey: "key", SecretKey: "secret", Passphrase: "pass"},
		Retry:       RetryPolicy{Backoff: 5 * time.Millisecond},
		Now:         fixedNow,
	}, zap.NewNop())
}

func expectedSign(ts, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(ts + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestSigner_TimestampAndSignature(t *testing.T) {
	s := NewSigner(Credentials{SecretKey: "secret"}, fixedNow)
	assert.Equal(t, "2024-03-05T07:08:09.123Z", s.Timestamp())
	assert.Equal(t,
		expectedSign("2024-03-05T07:08:09.123Z", "GET", "/api/v5/account/positions?instType=SWAP", ""),
		s.Sign("2024-03-05T07:08:09.123Z", "GET", "/api/v5/account/positions?instType=SWAP", ""))
}

func TestPlaceOrder_SignedBodyAndHeaders(t *testing.T) {
	var capturedBody string
	var capturedHeaders http.Header
	var capturedPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		capturedBody = string(b)
		capturedHeaders = r.Header
		capturedPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"code":"0","msg":"","data":[{"ordId":"777","clOrdId":"abc","sCode":"0","sMsg":"","ts":"1700000000000"}]}`)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	res, err := c.PlaceOrder(context.Background(), OrderRequest{
		InstID: "BTC-USDT-SWAP", TdMode: "cross", Side: "buy", OrdType: "limit", Sz: "2", PosSide: "long",
		Px: "50000", TpTriggerPx: "52000", TpOrdPx: "-1", TpTriggerPxType: "last",
		SlTriggerPx: "49000", SlOrdPx: "-1", SlTriggerPxType: "last", ClOrdID: "abc",
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted())
	assert.Equal(t, "777", res.OrdID)

	assert.Equal(t, "/api/v5/trade/order", capturedPath)
	var sent map[string]string
	require.NoError(t, json.Unmarshal([]byte(capturedBody), &sent))
	assert.Equal(t, "false", sent["reduceOnly"])
	assert.Equal(t, "50000", sent["px"])
	assert.Equal(t, "-1", sent["slOrdPx"])
	assert.NotContains(t, capturedBody, " ", "body must be compact JSON")

	ts := "2024-03-05T07:08:09.123Z"
	assert.Equal(t, "key", capturedHeaders.Get("OK-ACCESS-KEY"))
	assert.Equal(t, "pass", capturedHeaders.Get("OK-ACCESS-PASSPHRASE"))
	assert.Equal(t, ts, capturedHeaders.Get("OK-ACCESS-TIMESTAMP"))
	assert.Equal(t, expectedSign(ts, "POST", "/api/v5/trade/order", capturedBody), capturedHeaders.Get("OK-ACCESS-SIGN"))
	assert.Equal(t, "application/json", capturedHeaders.Get("Content-Type"))
}

func TestPositions_QueryIsSigned(t *testing.T) {
	var sign, rawQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sign = r.Header.Get("OK-ACCESS-SIGN")
		rawQuery = r.URL.RawQuery
		io.WriteString(w, `{"code":"0","data":[{"instId":"ETH-USDT-SWAP","posSide":"short","pos":"-3","avgPx":"3000","lever":"5","cTime":"1700000000000"}]}`)
	}))
	defer server.Close()

	rows, err := newTestClient(t, server.URL).Positions(context.Background(), PositionsFilter{InstID: "ETH-USDT-SWAP"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "SHORT", rows[0].Side())
	assert.Equal(t, "instId=ETH-USDT-SWAP&instType=SWAP", rawQuery)
	assert.Equal(t, expectedSign("2024-03-05T07:08:09.123Z", "GET", "/api/v5/account/positions?"+rawQuery, ""), sign)
}

func TestPublicCalls_AreUnsigned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("OK-ACCESS-SIGN"))
		switch r.URL.Path {
		case "/api/v5/market/tickers":
			io.WriteString(w, `{"code":"0","data":[{"instId":"BTC-USDT-SWAP","last":"50000.5"},{"instId":"BAD","last":"x"}]}`)
		case "/api/v5/market/ticker":
			io.WriteString(w, `{"code":"0","data":[{"instId":"BTC-USDT-SWAP","last":"50001"}]}`)
		case "/api/v5/public/instruments":
			io.WriteString(w, `{"code":"0","data":[{"instId":"BTC-USDT-SWAP","ctVal":"0.01","lotSz":"0.1","tickSz":"0.1","lever":"100"}]}`)
		case "/api/v5/public/time":
			io.WriteString(w, `{"code":"0","data":[{"ts":"1700000000123"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	c := newTestClient(t, server.URL)
	ctx := context.Background()

	prices, err := c.Tickers(ctx, "SWAP")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"BTC-USDT-SWAP": 50000.5}, prices)

	p, ok, err := c.Ticker(ctx, "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 50001.0, p)

	inst, err := c.Instruments(ctx, "SWAP")
	require.NoError(t, err)
	require.Len(t, inst, 1)
	assert.Equal(t, 100, inst[0].MaxLever())

	ts, err := c.ServerTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), ts)
}

func TestAPIError_NotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":"1","msg":"All operations failed","data":[{"ordId":"","sCode":"51008","sMsg":"Insufficient margin"}]}`)
	}))
	defer server.Close()

	res, err := newTestClient(t, server.URL).PlaceOrder(context.Background(), OrderRequest{
		InstID: "BTC-USDT-SWAP", OrdType: "market", Sz: "1",
	})
	require.Error(t, err)
	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "1", apiErr.Code)
	require.NotNil(t, res)
	assert.False(t, res.Accepted())
	assert.Equal(t, "Insufficient margin", res.SMsg)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestMalformedResponse_IsAnError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "<html>bad gateway</html>")
	}))
	defer server.Close()

	rows, err := newTestClient(t, server.URL).Positions(context.Background(), PositionsFilter{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Nil(t, rows)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a reply that reached the server is not resent")
}

func TestPositions_MissingDataIsAnError(t *testing.T) {
	for name, body := range map[string]string{
		"no data field": `{"code":"0","msg":""}`,
		"null data":     `{"code":"0","msg":"","data":null}`,
		"wrong shape":   `{"code":"0","msg":"","data":{"instId":"BTC-USDT-SWAP"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL).Positions(context.Background(), PositionsFilter{})
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":"0","msg":"","data":[]}`)
	}))
	defer server.Close()
	rows, err := newTestClient(t, server.URL).Positions(context.Background(), PositionsFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestOrderByClientID(t *testing.T) {
	var method, rawQuery string
	var reply atomic.Value
	reply.Store(`{"code":"0","msg":"","data":[{"instId":"BTC-USDT-SWAP","ordId":"777","clOrdId":"abc","state":"live","sz":"2","accFillSz":"0","cTime":"1700000000000"}]}`)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, rawQuery = r.Method, r.URL.RawQuery
		assert.NotEmpty(t, r.Header.Get("OK-ACCESS-SIGN"))
		io.WriteString(w, reply.Load().(string))
	}))
	defer server.Close()
	c := newTestClient(t, server.URL)

	d, err := c.OrderByClientID(context.Background(), "BTC-USDT-SWAP", "abc")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, method)
	assert.Equal(t, "clOrdId=abc&instId=BTC-USDT-SWAP", rawQuery)
	assert.Equal(t, "777", d.OrdID)
	assert.True(t, d.Active())

	reply.Store(`{"code":"0","msg":"","data":[]}`)
	_, err = c.OrderByClientID(context.Background(), "BTC-USDT-SWAP", "abc")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = c.OrderByClientID(context.Background(), "BTC-USDT-SWAP", "")
	assert.Error(t, err)

	assert.False(t, (&OrderDetail{OrdID: "1", State: OrderStateCanceled}).Active())
	assert.True(t, (&OrderDetail{OrdID: "1", State: OrderStateFilled}).Active())
}

type flakyTransport struct {
	failures int32
	calls    int32
	next     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return nil, errors.New("connection reset by peer")
	}
	return f.next.RoundTrip(r)
}

func TestTransientErrors_AreRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":"0","data":[]}`)
	}))
	defer server.Close()

	ft := &flakyTransport{failures: 3, next: http.DefaultTransport}
	c := NewClient(Config{
		BaseURL:    server.URL,
		HTTPClient: &http.Client{Transport: ft},
		Retry:      RetryPolicy{Backoff: time.Millisecond},
	}, zap.NewNop())

	require.NoError(t, c.SetPositionMode(context.Background(), PosModeLongShort))
	assert.Equal(t, int32(4), atomic.LoadInt32(&ft.calls))
}

func TestTransientErrors_StopOnCancel(t *testing.T) {
	ft := &flakyTransport{failures: 1 << 30, next: http.DefaultTransport}
	c := NewClient(Config{
		BaseURL:    "http://okx.invalid",
		HTTPClient: &http.Client{Transport: ft},
		Retry:      RetryPolicy{Backoff: 10 * time.Millisecond},
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Positions(ctx, PositionsFilter{})
	assert.ErrorIs(t, err, ErrStopped)
	assert.Greater(t, atomic.LoadInt32(&ft.calls), int32(1))
}

func TestRetryPolicy(t *testing.T) {
	fixed := DefaultRetryPolicy()
	assert.Equal(t, time.Second, fixed.Delay(1))
	assert.Equal(t, time.Second, fixed.Delay(10))
	assert.False(t, fixed.Exhausted(1_000_000))

	exp := RetryPolicy{Backoff: time.Second, Multiplier: 2, MaxBackoff: 5 * time.Second, MaxAttempts: 3}
	assert.Equal(t, time.Second, exp.Delay(1))
	assert.Equal(t, 2*time.Second, exp.Delay(2))
	assert.Equal(t, 4*time.Second, exp.Delay(3))
	assert.Equal(t, 5*time.Second, exp.Delay(4))
	assert.True(t, exp.Exhausted(3))
}

func TestSetLeverage_Body(t *testing.T) {
	var body map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		io.WriteString(w, `{"code":"0","data":[]}`)
	}))
	defer server.Close()

	err := newTestClient(t, server.URL).SetLeverage(context.Background(), LeverageRequest{Lever: "10", InstID: "BTC-USDT-SWAP", MgnMode: "cross", PosSide: "long"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"lever": "10", "instId": "BTC-USDT-SWAP", "mgnMode": "cross", "posSide": "long"}, body)

	assert.Error(t, newTestClient(t, server.URL).SetLeverage(context.Background(), LeverageRequest{}))
}
