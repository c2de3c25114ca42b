package connectors

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
)

// ReferencePricer quotes the last public price of a symbol.
type ReferencePricer interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// GoexReferencePricer reads the Binance spot ticker through goex.
type GoexReferencePricer struct {
	endpoint string
	client   *http.Client

	once sync.Once
	api  goex.API
}

func NewGoexReferencePricer(endpoint string, client *http.Client) *GoexReferencePricer {
	if endpoint == "" {
		endpoint = binance.GLOBAL_API_BASE_URL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &GoexReferencePricer{endpoint: endpoint, client: client}
}

func (p *GoexReferencePricer) exchange() goex.API {
	// the goex constructor syncs the server time, so build it on first use
	p.once.Do(func() {
		p.api = binance.NewWithConfig(&goex.APIConfig{
			HttpClient: p.client,
			Endpoint:   p.endpoint,
		})
	})
	return p.api
}

func (p *GoexReferencePricer) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	base, quote := SplitSymbol(symbol)
	if quote == "" {
		return decimal.Zero, fmt.Errorf("unknown quote asset in %s", symbol)
	}
	pair := goex.NewCurrencyPair(goex.Currency{Symbol: base}, goex.Currency{Symbol: quote})

	ticker, err := p.exchange().GetTicker(pair)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker %s: %w", symbol, err)
	}
	if ticker == nil || ticker.Last <= 0 {
		return decimal.Zero, fmt.Errorf("ticker %s: no last price", symbol)
	}
	return decimal.NewFromFloat(ticker.Last), nil
}
