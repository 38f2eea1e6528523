// Package alpaca adapts the Alpaca brokerage to the engine's provider
// interfaces, selectable with EXCHANGE=alpaca for US-equity accounts.
package alpaca

import (
	"context"
	"net"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/mycho0012/ec2-mrha-live-220525/internal/market"
	"github.com/mycho0012/ec2-mrha-live-220525/internal/models"
)

// Provider implements market.Provider on the Alpaca trading and data APIs.
// Credentials come from the APCA_* environment variables, which the SDK
// clients read themselves.
type Provider struct {
	mdClient    *marketdata.Client
	tradeClient *alpaca.Client
}

func NewProvider() *Provider {
	return &Provider{
		mdClient:    marketdata.NewClient(marketdata.ClientOpts{}),
		tradeClient: alpaca.NewClient(alpaca.ClientOpts{}),
	}
}

func (p *Provider) GetCandles(ctx context.Context, symbol string, count int) ([]models.Candle, error) {
	// Daily bars; fetch a generous calendar window so weekends and holidays
	// still leave count trading days.
	start := time.Now().AddDate(0, 0, -(count*2 + 10))
	bars, err := p.mdClient.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      start,
		TotalLimit: count,
	})
	if err != nil {
		return nil, errors.Wrapf(market.ErrDataProvider, "bars for %s: %v", symbol, err)
	}

	candles := make([]models.Candle, 0, len(bars))
	for _, b := range bars {
		candles = append(candles, models.Candle{
			Time:  b.Timestamp,
			Open:  decimal.NewFromFloat(b.Open),
			High:  decimal.NewFromFloat(b.High),
			Low:   decimal.NewFromFloat(b.Low),
			Close: decimal.NewFromFloat(b.Close),
		})
	}
	return candles, nil
}

func (p *Provider) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	trade, err := p.mdClient.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
	if err != nil {
		return decimal.Zero, errors.Wrapf(market.ErrDataProvider, "latest trade for %s: %v", symbol, err)
	}
	if trade == nil {
		return decimal.Zero, errors.Wrapf(market.ErrDataProvider, "no trade returned for %s", symbol)
	}
	return decimal.NewFromFloat(trade.Price), nil
}

func (p *Provider) ListBalances(ctx context.Context) ([]models.Balance, error) {
	positions, err := p.tradeClient.GetPositions()
	if err != nil {
		return nil, errors.Wrapf(market.ErrDataProvider, "list positions: %v", err)
	}

	var balances []models.Balance
	for _, pos := range positions {
		available := pos.QtyAvailable
		balances = append(balances, models.Balance{
			Currency: pos.Symbol,
			Symbol:   pos.Symbol,
			Quantity: available,
			Locked:   pos.Qty.Sub(available),
		})
	}

	// Cash row: no symbol, counts toward portfolio value only.
	if acct, err := p.tradeClient.GetAccount(); err == nil {
		balances = append(balances, models.Balance{Currency: "USD", Quantity: acct.Cash})
	}
	return balances, nil
}

func (p *Provider) SubmitMarketExit(ctx context.Context, symbol string, qty decimal.Decimal, identifier string) (*market.Order, error) {
	order, err := p.tradeClient.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &qty,
		Side:          alpaca.Sell,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: identifier,
	})
	if err != nil {
		if isTimeout(err) {
			return nil, errors.Wrapf(market.ErrResultAmbiguous, "submit %s: %v", symbol, err)
		}
		return nil, errors.Wrapf(market.ErrSubmissionFailed, "submit %s: %v", symbol, err)
	}
	return toOrder(order), nil
}

func (p *Provider) GetOrder(ctx context.Context, orderID string) (*market.Order, error) {
	order, err := p.tradeClient.GetOrder(orderID)
	if err != nil {
		return nil, errors.Wrapf(market.ErrDataProvider, "order %s: %v", orderID, err)
	}
	return toOrder(order), nil
}

func toOrder(o *alpaca.Order) *market.Order {
	out := &market.Order{
		ID:        o.ID,
		Symbol:    o.Symbol,
		State:     mapState(o.Status),
		CreatedAt: o.CreatedAt,
	}
	if o.Qty != nil {
		out.Volume = *o.Qty
		out.Remaining = o.Qty.Sub(o.FilledQty)
	}
	if o.FilledAvgPrice != nil {
		out.AvgFillPrice = *o.FilledAvgPrice
	}
	return out
}

func mapState(status string) market.OrderState {
	switch status {
	case "filled":
		return market.OrderDone
	case "canceled", "rejected", "expired":
		return market.OrderCancel
	default:
		return market.OrderWait
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
