package connectors

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalmirror/src/model"
)

func newTestFactory(t *testing.T, decrypt func(string) (string, error)) *GatewayFactory {
	t.Helper()
	nullLogger, _ := logrustest.NewNullLogger()
	cfg := Config{
		BinanceFuturesBaseURL:    "https://fapi.example/",
		BinanceSpotBaseURL:       "https://api.example",
		BinanceRecvWindow:        5000,
		BinanceRequestsPerSecond: 5,
	}
	return NewGatewayFactory(cfg, &memoryRecorder{}, decrypt, logrus.NewEntry(nullLogger))
}

func plainDecrypt(s string) (string, error) { return strings.TrimPrefix(s, "enc:"), nil }

func TestGatewayFactoryOpen(t *testing.T) {
	factory := newTestFactory(t, plainDecrypt)

	gw, err := factory.Open(&model.TradingAccount{ID: 3, Exchange: "", APIKey: "enc:key", SecretKey: "enc:secret"}, 10)
	require.NoError(t, err)

	client, ok := gw.(*BinanceClient)
	require.True(t, ok)
	assert.Equal(t, "key", client.apiKey)
	assert.Equal(t, "secret", client.apiSecret)
	assert.Equal(t, "https://fapi.example", client.futuresURL)
	assert.Equal(t, uint(3), client.accountID)
	require.NotNil(t, client.signalID)
	assert.Equal(t, uint(10), *client.signalID)

	again, err := factory.Open(&model.TradingAccount{ID: 3, Exchange: "BINANCE", APIKey: "enc:key", SecretKey: "enc:secret"}, 11)
	require.NoError(t, err)
	assert.Same(t, client.limiter, again.(*BinanceClient).limiter, "accounts share one throttle across gateways")

	other, err := factory.Open(&model.TradingAccount{ID: 4, APIKey: "enc:k", SecretKey: "enc:s"}, 10)
	require.NoError(t, err)
	assert.NotSame(t, client.limiter, other.(*BinanceClient).limiter)
}

func TestGatewayFactoryRejectsUnsupportedExchange(t *testing.T) {
	factory := newTestFactory(t, plainDecrypt)

	_, err := factory.Open(&model.TradingAccount{ID: 1, Exchange: "Bybit"}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedExchange)
	assert.Contains(t, err.Error(), "unsupported exchange: bybit")
}

func TestGatewayFactoryDecryptFailure(t *testing.T) {
	boom := errors.New("bad key")
	factory := newTestFactory(t, func(string) (string, error) { return "", boom })

	_, err := factory.Open(&model.TradingAccount{ID: 1}, 1)
	assert.ErrorIs(t, err, boom)
}

func TestExchangeOf(t *testing.T) {
	assert.Equal(t, "binance", ExchangeOf(""))
	assert.Equal(t, "binance", ExchangeOf("  Binance "))
	assert.Equal(t, "bybit", ExchangeOf("BYBIT"))
}

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"BTC/USDT":  "BTCUSDT",
		"eth-usdt":  "ETHUSDT",
		" solusdt ": "SOLUSDT",
		"":          DefaultSymbol,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeSymbol(in), in)
	}
}

func TestSplitSymbol(t *testing.T) {
	base, quote := SplitSymbol("ETHUSDT")
	assert.Equal(t, "ETH", base)
	assert.Equal(t, "USDT", quote)

	assert.Equal(t, "BTC", BaseAsset("BTCFDUSD"))
	assert.Equal(t, "SOL", BaseAsset("SOLUSDC"))

	base, quote = SplitSymbol("USDT")
	assert.Equal(t, "USDT", base)
	assert.Empty(t, quote)
}

func TestOrderResponseFillPrice(t *testing.T) {
	fallback := decimal.NewFromInt(100)

	var nilResp *OrderResponse
	assert.True(t, nilResp.FillPrice(fallback).Equal(fallback))
	assert.Error(t, nilResp.Err())

	resp := &OrderResponse{Successful: true, Price: decimal.NewFromInt(101)}
	assert.True(t, resp.FillPrice(fallback).Equal(decimal.NewFromInt(101)))
	assert.NoError(t, resp.Err())

	resp.AvgPrice = decimal.RequireFromString("101.5")
	assert.True(t, resp.FillPrice(fallback).Equal(decimal.RequireFromString("101.5")))

	resp = &OrderResponse{Successful: true}
	assert.True(t, resp.FillPrice(fallback).Equal(fallback))
}

func TestGoexReferencePricer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/ticker/24hr"):
			if r.URL.Query().Get("symbol") != "BTCUSDT" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, `{"symbol":"BTCUSDT","lastPrice":"25000.5","bidPrice":"25000.4","askPrice":"25000.6","highPrice":"25500","lowPrice":"24500","volume":"100","closeTime":1700000000000}`)
		case strings.HasSuffix(r.URL.Path, "/time"):
			_, _ = io.WriteString(w, `{"serverTime":1700000000000}`)
		default:
			_, _ = io.WriteString(w, `{}`)
		}
	}))
	defer server.Close()

	pricer := NewGoexReferencePricer(server.URL, server.Client())

	price, err := pricer.Price(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("25000.5")), price.String())

	_, err = pricer.Price(context.Background(), "BTCEUR")
	assert.Error(t, err)
}
