package connectors

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"signalmirror/src/model"
)

// ErrUnsupportedExchange is returned by the factory for venues without a gateway.
var ErrUnsupportedExchange = errors.New("unsupported exchange")

const ExchangeBinance = "binance"

// Gateway is the authenticated venue API the execution engine drives.
// Implementations are bound to one account and one signal for auditing.
type Gateway interface {
	Balance(ctx context.Context) (Balance, error)
	AssetBalance(ctx context.Context, asset string) (decimal.Decimal, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) (*OrderResponse, error)
	PlaceMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal, futures bool) (*OrderResponse, error)
	ClosePosition(ctx context.Context, symbol, side string, qty decimal.Decimal, futures bool) (*OrderResponse, error)
	PlaceStopMarketOrder(ctx context.Context, symbol, side string, stopPrice, qty decimal.Decimal) (*OrderResponse, error)
	PlaceTakeProfitMarketOrder(ctx context.Context, symbol, side string, targetPrice, qty decimal.Decimal) (*OrderResponse, error)
	CancelAllSymbolOrders(ctx context.Context, symbol string, futures bool) (*OrderResponse, error)
}

// GatewayOpener resolves the gateway of an account.
type GatewayOpener interface {
	Open(account *model.TradingAccount, signalID uint) (Gateway, error)
}

// Balance is the quote asset (USDT) position of an account. A leg that
// could not be fetched is zero and carries its error.
type Balance struct {
	Futures   decimal.Decimal // futures wallet balance
	Available decimal.Decimal // futures balance free for new positions
	Spot      decimal.Decimal // free spot balance

	FuturesErr error
	SpotErr    error
}

// OrderResponse is the venue answer to a mutating call.
type OrderResponse struct {
	Successful    bool
	StatusCode    int
	Endpoint      string
	ClientOrderID string
	OrderID       int64
	AvgPrice      decimal.Decimal
	Price         decimal.Decimal
	ExecutedQty   decimal.Decimal
	Raw           string
}

// FillPrice is the average fill price, else the order price, else fallback.
func (r *OrderResponse) FillPrice(fallback decimal.Decimal) decimal.Decimal {
	if r == nil {
		return fallback
	}
	if r.AvgPrice.IsPositive() {
		return r.AvgPrice
	}
	if r.Price.IsPositive() {
		return r.Price
	}
	return fallback
}

// Err describes an unsuccessful response; nil when the call succeeded.
func (r *OrderResponse) Err() error {
	if r == nil {
		return errors.New("empty venue response")
	}
	if r.Successful {
		return nil
	}
	return fmt.Errorf("%s rejected (HTTP %d): %s", r.Endpoint, r.StatusCode, r.Raw)
}
