package exchange

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signaltrader/pkg/crypto"
	"signaltrader/pkg/utils"
)

func newTestOKX(t *testing.T, handler http.HandlerFunc, sandbox bool) *OKX {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewOKX(OKXConfig{
		APIKey:     "key",
		SecretKey:  "secret",
		Passphrase: "pass",
		BaseURL:    srv.URL,
		Sandbox:    sandbox,
		HTTP:       DefaultHTTPClientConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	client.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	client.readCfg.InitialDelay = time.Millisecond
	client.readCfg.MaxDelay = time.Millisecond
	return client
}

func TestOKXSignsPrivateRequests(t *testing.T) {
	client := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		ts := r.Header.Get("OK-ACCESS-TIMESTAMP")
		assert.Equal(t, "2024-03-01T12:00:00.000Z", ts)
		assert.Equal(t, "key", r.Header.Get("OK-ACCESS-KEY"))
		assert.Equal(t, "pass", r.Header.Get("OK-ACCESS-PASSPHRASE"))
		assert.Equal(t, "1", r.Header.Get("x-simulated-trading"))

		want := crypto.SignOKX("secret", ts, http.MethodGet, r.URL.RequestURI(), "")
		assert.Equal(t, want, r.Header.Get("OK-ACCESS-SIGN"))

		io.WriteString(w, `{"code":"0","msg":"","data":[{"totalEq":"1234.5","uTime":"1709294400000",
			"details":[{"ccy":"USDT","eq":"1000","availBal":"900","frozenBal":"100"}]}]}`)
	}, true)

	bal, err := client.GetBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.TotalEquity.Equal(decimal.RequireFromString("1234.5")))
	require.Len(t, bal.Details, 1)
	assert.Equal(t, "USDT", bal.Details[0].Currency)
	assert.True(t, bal.Details[0].Available.Equal(decimal.NewFromInt(900)))
}

func TestOKXLiveModeOmitsSimulatedHeader(t *testing.T) {
	client := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("x-simulated-trading"))
		// публичный эндпоинт не подписывается
		assert.Empty(t, r.Header.Get("OK-ACCESS-SIGN"))
		io.WriteString(w, `{"code":"0","data":[{"ts":"1709294400000"}]}`)
	}, false)

	ts, err := client.ServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1709294400000), ts.UnixMilli())
}

func TestOKXPositionsSides(t *testing.T) {
	client := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/account/positions", r.URL.Path)
		assert.Equal(t, "SWAP", r.URL.Query().Get("instType"))
		assert.Equal(t, "BTC-USDT-SWAP", r.URL.Query().Get("instId"))
		io.WriteString(w, `{"code":"0","data":[
			{"instId":"BTC-USDT-SWAP","pos":"-0.5","posSide":"net","avgPx":"60000","lever":"5","mgnMode":"cross"},
			{"instId":"BTC-USDT-SWAP","pos":"0.2","posSide":"long","avgPx":"61000","lever":"10"},
			{"instId":"BTC-USDT-SWAP","pos":"0","posSide":"net"}
		]}`)
	}, true)

	positions, err := client.GetPositions(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, SideShort, positions[0].Side)
	assert.Equal(t, "net", positions[0].PosSide)
	assert.True(t, positions[0].Size.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, SideBuy, positions[0].CloseSide())
	assert.Equal(t, 5, positions[0].Leverage)

	assert.Equal(t, SideLong, positions[1].Side)
	assert.Equal(t, SideSell, positions[1].CloseSide())
}

func TestOKXPlaceOrderBody(t *testing.T) {
	client := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)

		var got okxOrderBody
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "ETH-USDT-SWAP", got.InstID)
		assert.Equal(t, "cross", got.TdMode)
		assert.Equal(t, "buy", got.Side)
		assert.Equal(t, "market", got.OrdType)
		assert.Equal(t, "0.01", got.Sz)
		assert.Empty(t, got.Px)
		assert.Empty(t, got.PosSide)

		ts := r.Header.Get("OK-ACCESS-TIMESTAMP")
		assert.Equal(t, crypto.SignOKX("secret", ts, "POST", "/api/v5/trade/order", string(body)), r.Header.Get("OK-ACCESS-SIGN"))

		io.WriteString(w, `{"code":"0","data":[{"ordId":"312269865356374016","clOrdId":"abc","sCode":"0","sMsg":""}]}`)
	}, true)

	order, err := client.PlaceOrder(context.Background(), OrderRequest{
		InstID:        "ETH-USDT-SWAP",
		Side:          SideBuy,
		PosSide:       "net",
		Size:          decimal.RequireFromString("0.01"),
		ClientOrderID: "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "312269865356374016", order.ID)
	assert.Equal(t, "abc", order.ClientOrderID)
	assert.False(t, order.Simulated)
}

func TestOKXOrderRejectedBySCode(t *testing.T) {
	client := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":"1","msg":"All operations failed","data":[{"ordId":"","sCode":"51008","sMsg":"Insufficient balance"}]}`)
	}, true)

	_, err := client.PlaceOrder(context.Background(), OrderRequest{
		InstID: "BTC-USDT-SWAP",
		Side:   SideSell,
		Size:   decimal.NewFromInt(1),
	})
	require.Error(t, err)
	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, "51008", exErr.Code)
	assert.Contains(t, err.Error(), "Insufficient balance")
}

func TestOKXAlgoOrderStopLoss(t *testing.T) {
	client := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/trade/order-algo", r.URL.Path)
		body, _ := io.ReadAll(r.Body)

		var got okxAlgoBody
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "conditional", got.OrdType)
		assert.Equal(t, "59000", got.SlTriggerPx)
		assert.Equal(t, "-1", got.SlOrdPx)
		assert.Empty(t, got.TpTriggerPx)
		assert.True(t, got.ReduceOnly)

		io.WriteString(w, `{"code":"0","data":[{"algoId":"681096944655273984","sCode":"0"}]}`)
	}, true)

	order, err := client.PlaceAlgoOrder(context.Background(), AlgoOrderRequest{
		InstID:       "BTC-USDT-SWAP",
		Side:         SideSell,
		Kind:         AlgoKindStopLoss,
		Size:         decimal.RequireFromString("0.1"),
		TriggerPrice: decimal.NewFromInt(59000),
		ReduceOnly:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "681096944655273984", order.ID)
	assert.Equal(t, "conditional", order.Type)
}

func TestOKXRetriesTemporaryReadErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			io.WriteString(w, "bad gateway")
			return
		}
		io.WriteString(w, `{"code":"0","data":[{"instId":"BTC-USDT-SWAP","last":"65000.1","bidPx":"65000","askPx":"65000.2","ts":"1709294400000"}]}`)
	}, true)

	ticker, err := client.GetTicker(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, ticker.LastPrice.Equal(decimal.RequireFromString("65000.1")))
}

func TestOKXDoesNotRetryBusinessErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, `{"code":"50113","msg":"Invalid Sign","data":[]}`)
	}, true)

	_, err := client.GetBalance(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	var exErr *ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, "50113", exErr.Code)
}

func TestOKXWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, `{"code":"50013","msg":"System busy","data":[]}`)
	}, true)

	err := client.SetLeverage(context.Background(), "BTC-USDT-SWAP", 5, MarginModeCross)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.True(t, exErr.Temporary)
}

func TestParseHelpers(t *testing.T) {
	assert.True(t, parseDecimal("").IsZero())
	assert.True(t, parseDecimal("abc").IsZero())
	assert.True(t, parseMillis("").IsZero())
	assert.Equal(t, "2024-03-01", parseMillis("1709294400000").Format(utils.DateLayout))
}
