package connectors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
)

const quoteAsset = "USDT"

// Balance fetches the futures and spot USDT balances in parallel. A failing
// leg is reported on the Balance; only both legs failing is an error.
func (c *BinanceClient) Balance(ctx context.Context) (Balance, error) {
	var (
		out Balance
		wg  conc.WaitGroup
	)

	wg.Go(func() {
		out.Futures, out.Available, out.FuturesErr = c.futuresBalance(ctx)
	})
	wg.Go(func() {
		out.Spot, out.SpotErr = c.spotFree(ctx, quoteAsset)
	})
	wg.Wait()

	if out.FuturesErr != nil {
		c.log.WithError(out.FuturesErr).Warn("Futures balance unavailable")
	}
	if out.SpotErr != nil {
		c.log.WithError(out.SpotErr).Warn("Spot balance unavailable")
	}
	if out.FuturesErr != nil && out.SpotErr != nil {
		return Balance{}, fmt.Errorf("fetch balance: %w", errors.Join(out.FuturesErr, out.SpotErr))
	}
	return out, nil
}

// AssetBalance is the free spot amount of asset.
func (c *BinanceClient) AssetBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return c.spotFree(ctx, strings.ToUpper(strings.TrimSpace(asset)))
}

func (c *BinanceClient) futuresBalance(ctx context.Context) (balance, available decimal.Decimal, err error) {
	resp, err := c.signedRequest(ctx, http.MethodGet, true, "/fapi/v2/balance", url.Values{})
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("binance GET /fapi/v2/balance: %w", err)
	}
	if !resp.IsSuccess() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("/fapi/v2/balance HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var assets []struct {
		Asset            string `json:"asset"`
		Balance          string `json:"balance"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(resp.Body(), &assets); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("decode futures balance: %w", err)
	}
	for _, a := range assets {
		if a.Asset == quoteAsset {
			return parseDecimal(a.Balance), parseDecimal(a.AvailableBalance), nil
		}
	}
	return decimal.Zero, decimal.Zero, nil
}

func (c *BinanceClient) spotFree(ctx context.Context, asset string) (decimal.Decimal, error) {
	resp, err := c.signedRequest(ctx, http.MethodGet, false, "/api/v3/account", url.Values{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance GET /api/v3/account: %w", err)
	}
	if !resp.IsSuccess() {
		return decimal.Zero, fmt.Errorf("/api/v3/account HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var account struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(resp.Body(), &account); err != nil {
		return decimal.Zero, fmt.Errorf("decode spot account: %w", err)
	}
	for _, b := range account.Balances {
		if b.Asset == asset {
			return parseDecimal(b.Free), nil
		}
	}

	c.log.WithField("asset", asset).Warn("Asset not found in spot account")
	return decimal.Zero, nil
}

// SetLeverage sets the futures leverage of symbol.
func (c *BinanceClient) SetLeverage(ctx context.Context, symbol string, leverage int) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))
	return c.call(ctx, http.MethodPost, true, "/fapi/v1/leverage", "/fapi/v1/leverage", params)
}

func orderPath(futures bool) string {
	if futures {
		return "/fapi/v1/order"
	}
	return "/api/v3/order"
}

// clientOrderID is prefix, the epoch millis and a random suffix; the stop
// loss and take profit of one entry are placed within the same millisecond.
// Binance caps the id at 36 characters.
func (c *BinanceClient) clientOrderID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return prefix + strconv.FormatInt(c.now().UnixMilli(), 10) + "_" + suffix
}

// PlaceMarketOrder submits a MARKET order.
func (c *BinanceClient) PlaceMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal, futures bool) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", qty.String())
	params.Set("newClientOrderId", c.clientOrderID("df_"))

	path := orderPath(futures)
	return c.call(ctx, http.MethodPost, futures, path, path, params)
}

// ClosePosition submits a MARKET exit, reduce-only on futures. A successful
// futures close also clears the conditional orders left on the symbol.
func (c *BinanceClient) ClosePosition(ctx context.Context, symbol, side string, qty decimal.Decimal, futures bool) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", qty.String())
	params.Set("newClientOrderId", c.clientOrderID("df_exit_"))
	if futures {
		params.Set("reduceOnly", "true")
	}

	path := orderPath(futures)
	resp, err := c.call(ctx, http.MethodPost, futures, path, path+"/exit", params)
	if err != nil {
		return nil, err
	}

	if futures && resp.Successful {
		if _, err := c.cancelAlgoOpenOrders(ctx, symbol); err != nil {
			c.log.WithError(err).WithField("symbol", symbol).Warn("Failed to cancel conditional orders after close")
		}
	}
	return resp, nil
}

// PlaceStopMarketOrder places a reduce-only conditional STOP_MARKET order.
func (c *BinanceClient) PlaceStopMarketOrder(ctx context.Context, symbol, side string, stopPrice, qty decimal.Decimal) (*OrderResponse, error) {
	return c.placeAlgoOrder(ctx, "STOP_MARKET", symbol, side, stopPrice, qty)
}

// PlaceTakeProfitMarketOrder places a reduce-only conditional TAKE_PROFIT_MARKET order.
func (c *BinanceClient) PlaceTakeProfitMarketOrder(ctx context.Context, symbol, side string, targetPrice, qty decimal.Decimal) (*OrderResponse, error) {
	return c.placeAlgoOrder(ctx, "TAKE_PROFIT_MARKET", symbol, side, targetPrice, qty)
}

func (c *BinanceClient) placeAlgoOrder(ctx context.Context, orderType, symbol, side string, triggerPrice, qty decimal.Decimal) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("algoType", "CONDITIONAL")
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", orderType)
	params.Set("triggerPrice", triggerPrice.StringFixed(2))
	params.Set("quantity", qty.StringFixed(3))
	params.Set("workingType", "MARK_PRICE")
	params.Set("reduceOnly", "true")
	params.Set("newClientOrderId", c.clientOrderID("df_algo_"))

	return c.call(ctx, http.MethodPost, true, "/fapi/v1/algoOrder", "/fapi/v1/algoOrder/"+orderType, params)
}

// CancelAllSymbolOrders cancels the open orders of symbol. On futures the
// conditional orders are cancelled as well.
func (c *BinanceClient) CancelAllSymbolOrders(ctx context.Context, symbol string, futures bool) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	if !futures {
		return c.call(ctx, http.MethodDelete, false, "/api/v3/openOrders", "/api/v3/openOrders", params)
	}

	resp, err := c.call(ctx, http.MethodDelete, true, "/fapi/v1/allOpenOrders", "/fapi/v1/allOpenOrders", params)
	if err != nil {
		return nil, err
	}
	if _, err := c.cancelAlgoOpenOrders(ctx, symbol); err != nil {
		c.log.WithError(err).WithField("symbol", symbol).Warn("Failed to cancel conditional orders")
	}
	return resp, nil
}

func (c *BinanceClient) cancelAlgoOpenOrders(ctx context.Context, symbol string) (*OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	return c.call(ctx, http.MethodDelete, true, "/fapi/v1/algoOpenOrders", "/fapi/v1/algoOpenOrders", params)
}
