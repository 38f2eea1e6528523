// Package upbit adapts the Upbit REST API to the engine's provider interfaces.
package upbit

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/market"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
)

const baseURL = "https://api.upbit.com/v1"

// Provider implements market.Provider against Upbit. KRW markets only: the
// engine monitors KRW-quoted spot positions.
type Provider struct {
	client    *resty.Client
	accessKey string
	secretKey string
}

func NewProvider(accessKey, secretKey string, timeout time.Duration) *Provider {
	return &Provider{
		client:    resty.New().SetBaseURL(baseURL).SetTimeout(timeout),
		accessKey: accessKey,
		secretKey: secretKey,
	}
}

type dayCandle struct {
	DateTimeUTC  string          `json:"candle_date_time_utc"`
	OpeningPrice decimal.Decimal `json:"opening_price"`
	HighPrice    decimal.Decimal `json:"high_price"`
	LowPrice     decimal.Decimal `json:"low_price"`
	TradePrice   decimal.Decimal `json:"trade_price"`
}

// GetCandles returns up to count daily candles, oldest first. Upbit responds
// newest first; the slice is reversed before returning.
func (p *Provider) GetCandles(ctx context.Context, symbol string, count int) ([]models.Candle, error) {
	var raw []dayCandle
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"market": symbol,
			"count":  fmt.Sprintf("%d", count),
		}).
		SetResult(&raw).
		Get("/candles/days")
	if err := classifyFetch(resp, err); err != nil {
		return nil, errors.Wrapf(err, "candles for %s", symbol)
	}

	candles := make([]models.Candle, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		c := raw[i]
		ts, _ := time.Parse("2006-01-02T15:04:05", c.DateTimeUTC)
		candles = append(candles, models.Candle{
			Time:  ts,
			Open:  c.OpeningPrice,
			High:  c.HighPrice,
			Low:   c.LowPrice,
			Close: c.TradePrice,
		})
	}
	return candles, nil
}

func (p *Provider) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var raw []struct {
		TradePrice decimal.Decimal `json:"trade_price"`
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetQueryParam("markets", symbol).
		SetResult(&raw).
		Get("/ticker")
	if err := classifyFetch(resp, err); err != nil {
		return decimal.Zero, errors.Wrapf(err, "ticker for %s", symbol)
	}
	if len(raw) == 0 {
		return decimal.Zero, errors.Wrapf(market.ErrDataProvider, "no ticker returned for %s", symbol)
	}
	return raw[0].TradePrice, nil
}

func (p *Provider) ListBalances(ctx context.Context) ([]models.Balance, error) {
	var raw []struct {
		Currency string          `json:"currency"`
		Balance  decimal.Decimal `json:"balance"`
		Locked   decimal.Decimal `json:"locked"`
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Authorization", p.authToken(nil)).
		SetResult(&raw).
		Get("/accounts")
	if err := classifyFetch(resp, err); err != nil {
		return nil, errors.Wrap(err, "list balances")
	}

	balances := make([]models.Balance, 0, len(raw))
	for _, b := range raw {
		bal := models.Balance{
			Currency: b.Currency,
			Quantity: b.Balance,
			Locked:   b.Locked,
		}
		if b.Currency != "KRW" {
			bal.Symbol = "KRW-" + b.Currency
		}
		balances = append(balances, bal)
	}
	return balances, nil
}

type orderResponse struct {
	UUID            string          `json:"uuid"`
	Market          string          `json:"market"`
	State           string          `json:"state"`
	Volume          decimal.Decimal `json:"volume"`
	RemainingVolume decimal.Decimal `json:"remaining_volume"`
	CreatedAt       time.Time       `json:"created_at"`
	Trades          []struct {
		Price  decimal.Decimal `json:"price"`
		Volume decimal.Decimal `json:"volume"`
		Funds  decimal.Decimal `json:"funds"`
	} `json:"trades"`
}

func (r orderResponse) toOrder() *market.Order {
	o := &market.Order{
		ID:        r.UUID,
		Symbol:    r.Market,
		State:     market.OrderState(r.State),
		Volume:    r.Volume,
		Remaining: r.RemainingVolume,
		CreatedAt: r.CreatedAt,
	}
	// Volume-weighted fill price from the trade legs.
	funds, vol := decimal.Zero, decimal.Zero
	for _, t := range r.Trades {
		funds = funds.Add(t.Funds)
		vol = vol.Add(t.Volume)
	}
	if vol.IsPositive() {
		o.AvgFillPrice = funds.Div(vol)
	}
	return o
}

// SubmitMarketExit places a market sell (side=ask, ord_type=market). identifier
// is forwarded so Upbit deduplicates a replayed submission.
func (p *Provider) SubmitMarketExit(ctx context.Context, symbol string, qty decimal.Decimal, identifier string) (*market.Order, error) {
	body := map[string]string{
		"market":     symbol,
		"side":       "ask",
		"volume":     qty.String(),
		"ord_type":   "market",
		"identifier": identifier,
	}

	var raw orderResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Authorization", p.authToken(body)).
		SetBody(body).
		SetResult(&raw).
		Post("/orders")
	if err != nil {
		if isTimeout(err) {
			// The request may have reached Upbit before the timeout: the order
			// could exist. Never blind-retry this.
			return nil, errors.Wrapf(market.ErrResultAmbiguous, "submit %s: %v", symbol, err)
		}
		return nil, errors.Wrapf(market.ErrSubmissionFailed, "submit %s: %v", symbol, err)
	}
	if resp.IsError() {
		return nil, errors.Wrapf(market.ErrSubmissionFailed, "submit %s: http %d: %s",
			symbol, resp.StatusCode(), resp.String())
	}
	return raw.toOrder(), nil
}

func (p *Provider) GetOrder(ctx context.Context, orderID string) (*market.Order, error) {
	params := map[string]string{"uuid": orderID}

	var raw orderResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Authorization", p.authToken(params)).
		SetQueryParams(params).
		SetResult(&raw).
		Get("/order")
	if err := classifyFetch(resp, err); err != nil {
		return nil, errors.Wrapf(err, "order %s", orderID)
	}
	return raw.toOrder(), nil
}

// authToken builds the Upbit JWT: access key + uuid nonce, plus a SHA512 hash
// of the query string when the request carries parameters.
func (p *Provider) authToken(params map[string]string) string {
	claims := jwt.MapClaims{
		"access_key": p.accessKey,
		"nonce":      uuid.NewString(),
	}
	if len(params) > 0 {
		claims["query_hash"] = queryHash(params)
		claims["query_hash_alg"] = "SHA512"
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.secretKey))
	if err != nil {
		// HS256 over a map claims set only fails on a broken key; the venue
		// rejects the bad header and the caller sees an auth error.
		return ""
	}
	return "Bearer " + token
}

func queryHash(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := url.Values{}
	for _, k := range keys {
		q.Set(k, params[k])
	}
	sum := sha512.Sum512([]byte(q.Encode()))
	return hex.EncodeToString(sum[:])
}

// classifyFetch folds transport and HTTP failures into ErrDataProvider.
func classifyFetch(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrapf(market.ErrDataProvider, "%v", err)
	}
	if resp.IsError() {
		return errors.Wrapf(market.ErrDataProvider, "http %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
