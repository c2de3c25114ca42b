package connectors

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"signalmirror/src/model"
)

// GatewayFactory builds account-bound gateways. The HTTP client, the server
// clock cache and the per-account rate limiters are shared between them.
type GatewayFactory struct {
	cfg      Config
	http     *resty.Client
	clock    *serverClock
	recorder TradeLogRecorder
	decrypt  func(string) (string, error)
	log      *logrus.Entry
	now      func() time.Time

	mu       sync.Mutex
	limiters map[uint]*rate.Limiter
}

// NewGatewayFactory wires a factory. decrypt turns the stored credentials
// into plain API keys.
func NewGatewayFactory(
	cfg Config,
	recorder TradeLogRecorder,
	decrypt func(string) (string, error),
	log *logrus.Entry,
) *GatewayFactory {
	client := newRestyClient(cfg.BinanceTimeout)
	return &GatewayFactory{
		cfg:      cfg,
		http:     client,
		clock:    newServerClock(client, cfg.BinanceTimeOffsetTTL),
		recorder: recorder,
		decrypt:  decrypt,
		log:      log,
		now:      time.Now,
		limiters: make(map[uint]*rate.Limiter),
	}
}

// ExchangeOf is the lower-cased venue name, binance when unset.
func ExchangeOf(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ExchangeBinance
	}
	return name
}

// Open returns the gateway of account, bound to signalID for trade logs.
func (f *GatewayFactory) Open(account *model.TradingAccount, signalID uint) (Gateway, error) {
	exchange := ExchangeOf(account.Exchange)
	if exchange != ExchangeBinance {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExchange, exchange)
	}

	apiKey, err := f.decrypt(account.APIKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt api key of account %d: %w", account.ID, err)
	}
	apiSecret, err := f.decrypt(account.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret key of account %d: %w", account.ID, err)
	}

	sid := signalID
	return &BinanceClient{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		futuresURL: strings.TrimRight(f.cfg.BinanceFuturesBaseURL, "/"),
		spotURL:    strings.TrimRight(f.cfg.BinanceSpotBaseURL, "/"),
		recvWindow: f.cfg.BinanceRecvWindow,
		http:       f.http,
		clock:      f.clock,
		limiter:    f.limiter(account.ID),
		recorder:   f.recorder,
		accountID:  account.ID,
		signalID:   &sid,
		log: f.log.WithFields(logrus.Fields{
			"exchange":   exchange,
			"account_id": account.ID,
			"signal_id":  signalID,
		}),
		now: f.now,
	}, nil
}

func (f *GatewayFactory) limiter(accountID uint) *rate.Limiter {
	if f.cfg.BinanceRequestsPerSecond <= 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[accountID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(f.cfg.BinanceRequestsPerSecond), 1)
		f.limiters[accountID] = l
	}
	return l
}
