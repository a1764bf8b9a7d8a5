package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"tradedesk/internal/market"
	"tradedesk/internal/portfolio"
)

const (
	AlpacaPaperURL = "https://paper-api.alpaca.markets"
	AlpacaLiveURL  = "https://api.alpaca.markets"
)

// Alpaca forwards desk fills as market orders. Credentials map APIKey to the
// key id and Password to the secret; DEMO selects the paper endpoint.
type Alpaca struct {
	// BaseURL overrides the environment default when set.
	BaseURL string
	Timeout time.Duration
	// Symbols maps desk symbols to Alpaca tickers, e.g. BTC -> BTC/USD.
	Symbols map[string]string

	mu     sync.RWMutex
	client *alpaca.Client
}

func NewAlpaca(baseURL string, timeout time.Duration, symbols map[string]string) *Alpaca {
	return &Alpaca{BaseURL: baseURL, Timeout: timeout, Symbols: symbols}
}

func (a *Alpaca) Name() string {
	return "alpaca"
}

func (a *Alpaca) Connect(ctx context.Context, creds Credentials) error {
	if creds.APIKey == "" || creds.Password == "" {
		return fmt.Errorf("%w: alpaca needs api key and secret", ErrMissingCredentials)
	}

	baseURL := a.BaseURL
	if baseURL == "" {
		baseURL = AlpacaPaperURL
		if creds.Environment == Live {
			baseURL = AlpacaLiveURL
		}
	}
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    creds.APIKey,
		APISecret: creds.Password,
		BaseURL:   baseURL,
	})

	ctx, cancel := a.bound(ctx)
	defer cancel()
	acct, err := call(ctx, client.GetAccount)
	if err != nil {
		slog.Error("fetch account failed", "error", err)
		return fmt.Errorf("alpaca connect: %w", err)
	}
	if acct.TradingBlocked || acct.AccountBlocked {
		return fmt.Errorf("alpaca connect: account %s is blocked", acct.AccountNumber)
	}

	equity, _ := acct.Equity.Float64()
	buyingPower, _ := acct.BuyingPower.Float64()
	slog.Info("account fetched", "equity", equity, "buying_power", buyingPower, "environment", creds.Environment)

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()
	return nil
}

func (a *Alpaca) Submit(ctx context.Context, order Order) error {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	if client == nil {
		return ErrNotConnected
	}

	qty := decimal.NewFromFloat(order.Size)
	side := alpaca.Buy
	if order.Side == portfolio.Sell {
		side = alpaca.Sell
	}
	tif := alpaca.Day
	if order.Class == market.ClassCrypto {
		tif = alpaca.GTC
	}
	symbol := order.Symbol
	if mapped, ok := a.Symbols[order.Symbol]; ok {
		symbol = mapped
	}

	req := alpaca.PlaceOrderRequest{
		Symbol:        symbol,
		Qty:           &qty,
		Side:          side,
		Type:          alpaca.Market,
		TimeInForce:   tif,
		ClientOrderID: order.ClientOrderID,
	}

	ctx, cancel := a.bound(ctx)
	defer cancel()
	placed, err := call(ctx, func() (*alpaca.Order, error) { return client.PlaceOrder(req) })
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			slog.Warn("order outcome unknown, reconcile by client order id",
				"client_order_id", order.ClientOrderID, "side", side, "symbol", symbol, "qty", order.Size, "error", err)
			return fmt.Errorf("%w: %w: client order id %s", ErrRejected, ErrUnconfirmed, order.ClientOrderID)
		}
		slog.Error("place order failed", "side", side, "symbol", symbol, "qty", order.Size, "error", err)
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%w: %d %s", ErrRejected, apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}

	slog.Info("place order success", "order_id", placed.ID, "side", side, "symbol", symbol, "qty", order.Size, "status", placed.Status)
	return nil
}

func (a *Alpaca) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.client = nil
}

func (a *Alpaca) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client != nil
}

func (a *Alpaca) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.Timeout > 0 {
		return context.WithTimeout(ctx, a.Timeout)
	}
	return context.WithCancel(ctx)
}

// call runs a blocking SDK call and gives up when ctx is done. The SDK call
// itself keeps running in the background until it returns.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.value, r.err
	}
}
