package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"signalmirror/src/model"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second

	serverTimeTimeout = 2 * time.Second
)

// TradeLogRecorder persists the audit row of a venue call.
type TradeLogRecorder interface {
	Create(ctx context.Context, entry *model.TradeLog) error
}

// BinanceClient is a Gateway bound to one account and one signal.
type BinanceClient struct {
	apiKey     string
	apiSecret  string
	futuresURL string
	spotURL    string
	recvWindow int
	http       *resty.Client
	clock      *serverClock
	limiter    *rate.Limiter
	recorder   TradeLogRecorder
	accountID  uint
	signalID   *uint
	log        *logrus.Entry
	now        func() time.Time
}

// isRetryableResp retries reads and cancellations on transport errors, 5xx
// and 408. Order placement is only retried on 429, which Binance answers
// before processing the request, so an order is never sent twice.
func isRetryableResp(r *resty.Response, err error) bool {
	if r != nil && r.StatusCode() == http.StatusTooManyRequests {
		return true
	}
	if !isIdempotent(r) {
		return false
	}
	if err != nil {
		return true
	}

	code := r.StatusCode()
	if code >= 500 && code <= 599 {
		return true
	}
	return code == http.StatusRequestTimeout
}

func isIdempotent(r *resty.Response) bool {
	if r == nil || r.Request == nil {
		return false
	}
	switch r.Request.Method {
	case http.MethodGet, http.MethodDelete:
		return true
	}
	return false
}

func newRestyClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)
}

// signRequest is the hex HMAC-SHA256 of the query string.
func signRequest(query, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *BinanceClient) baseURL(futures bool) string {
	if futures {
		return c.futuresURL
	}
	return c.spotURL
}

func (c *BinanceClient) signedRequest(
	ctx context.Context,
	method string,
	futures bool,
	path string,
	params url.Values,
) (*resty.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	timestamp := c.now().UnixMilli() + c.clock.offset(ctx, c.baseURL(futures), futures)
	query.Set("timestamp", strconv.FormatInt(timestamp, 10))
	query.Set("recvWindow", strconv.Itoa(c.recvWindow))

	encoded := query.Encode()
	fullURL := c.baseURL(futures) + path + "?" + encoded + "&signature=" + signRequest(encoded, c.apiSecret)

	c.log.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"params": params.Encode(),
	}).Debug("Binance HTTP request")

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", c.apiKey).
		Execute(method, fullURL)
	if err != nil {
		return resp, transportError(err)
	}
	return resp, nil
}

// transportError drops the request URL from err; it carries the signature.
func transportError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

// call performs a mutating request, writes its trade log and parses the answer.
// logEndpoint is the endpoint name stored in the trade log.
func (c *BinanceClient) call(
	ctx context.Context,
	method string,
	futures bool,
	path, logEndpoint string,
	params url.Values,
) (*OrderResponse, error) {
	resp, err := c.signedRequest(ctx, method, futures, path, params)
	c.recordTrade(ctx, logEndpoint, params, resp, err)
	if err != nil {
		return nil, fmt.Errorf("binance %s %s: %w", method, path, err)
	}
	return parseOrderResponse(resp, logEndpoint, params.Get("newClientOrderId")), nil
}

func (c *BinanceClient) recordTrade(ctx context.Context, endpoint string, params url.Values, resp *resty.Response, callErr error) {
	if c.recorder == nil {
		return
	}

	payload := make(map[string]string, len(params))
	for k := range params {
		payload[k] = params.Get(k)
	}
	rawPayload, _ := json.Marshal(payload)

	entry := &model.TradeLog{
		SignalID:      c.signalID,
		AccountID:     c.accountID,
		Exchange:      ExchangeBinance,
		Symbol:        params.Get("symbol"),
		Endpoint:      endpoint,
		Payload:       string(rawPayload),
		ClientOrderID: params.Get("newClientOrderId"),
	}
	if resp != nil {
		entry.Response = string(resp.Body())
		entry.StatusCode = resp.StatusCode()
	}
	if callErr != nil && entry.Response == "" {
		entry.Response = callErr.Error()
	}

	if err := c.recorder.Create(context.WithoutCancel(ctx), entry); err != nil {
		c.log.WithError(err).WithField("endpoint", endpoint).Error("Trade logging failed")
	}
}

type binanceOrderBody struct {
	OrderID     int64  `json:"orderId"`
	AvgPrice    string `json:"avgPrice"`
	Price       string `json:"price"`
	ExecutedQty string `json:"executedQty"`
	// spot orders report the quote amount instead of an average price
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
}

func parseOrderResponse(resp *resty.Response, endpoint, clientOrderID string) *OrderResponse {
	out := &OrderResponse{
		Successful:    resp.IsSuccess(),
		StatusCode:    resp.StatusCode(),
		Endpoint:      endpoint,
		ClientOrderID: clientOrderID,
		Raw:           string(resp.Body()),
	}
	if !out.Successful {
		return out
	}

	var body binanceOrderBody
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		// leverage and cancel endpoints may answer with other shapes
		return out
	}
	out.OrderID = body.OrderID
	out.AvgPrice = parseDecimal(body.AvgPrice)
	out.Price = parseDecimal(body.Price)
	out.ExecutedQty = parseDecimal(body.ExecutedQty)

	if !out.AvgPrice.IsPositive() && out.ExecutedQty.IsPositive() {
		if quote := parseDecimal(body.CummulativeQuoteQty); quote.IsPositive() {
			out.AvgPrice = quote.Div(out.ExecutedQty)
		}
	}
	return out
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// serverClock caches the offset between the venue clock and ours per base URL.
type serverClock struct {
	mu      sync.Mutex
	http    *resty.Client
	ttl     time.Duration
	now     func() time.Time
	entries map[string]clockEntry
}

type clockEntry struct {
	offsetMillis int64
	expires      time.Time
}

func newServerClock(client *resty.Client, ttl time.Duration) *serverClock {
	return &serverClock{
		http:    client,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]clockEntry),
	}
}

// offset returns the cached offset in milliseconds, refreshing it when stale.
// A failed lookup yields (and caches) 0 so signing falls back to the local clock.
func (s *serverClock) offset(ctx context.Context, baseURL string, futures bool) int64 {
	if s == nil {
		return 0
	}

	s.mu.Lock()
	entry, ok := s.entries[baseURL]
	s.mu.Unlock()
	if ok && s.now().Before(entry.expires) {
		return entry.offsetMillis
	}

	path := "/api/v3/time"
	if futures {
		path = "/fapi/v1/time"
	}

	var offset int64
	if serverTime, err := s.fetch(ctx, baseURL+path); err != nil {
		logrus.WithError(err).WithField("url", baseURL+path).Warn("Failed to fetch Binance server time")
	} else {
		offset = serverTime - s.now().UnixMilli()
	}

	s.mu.Lock()
	s.entries[baseURL] = clockEntry{offsetMillis: offset, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()

	return offset
}

func (s *serverClock) fetch(ctx context.Context, endpoint string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, serverTimeTimeout)
	defer cancel()

	resp, err := s.http.R().SetContext(ctx).Get(endpoint)
	if err != nil {
		return 0, err
	}
	if !resp.IsSuccess() {
		return 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var body struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return 0, err
	}
	return body.ServerTime, nil
}
