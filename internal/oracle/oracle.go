// Package oracle resolves underlying closing prices and live option quotes
// from the Alpaca market-data API. Every upstream call goes through the
// shared rate limiter.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"optrack/internal/domain"
	"optrack/internal/ratelimit"
)

// PriceOracle answers the two price questions the lifecycle needs.
type PriceOracle interface {
	// ClosingPrice returns the exchange closing price for ticker on date,
	// rounded to cents. Returns domain.ErrNoData when no trading data exists
	// for that date.
	ClosingPrice(ctx context.Context, ticker string, date civil.Date) (float64, error)

	// CurrentOptionQuote returns the last traded price of the option
	// contract matching the given expiration, strike, and side. Returns
	// domain.ErrQuoteNotFound when the chain has no such contract.
	CurrentOptionQuote(ctx context.Context, ticker string, expiration civil.Date, strike float64, isCall bool) (float64, error)
}

// marketDataClient is the subset of *marketdata.Client the oracle uses,
// extracted so tests can substitute a fake.
type marketDataClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetOptionChain(underlyingSymbol string, req marketdata.GetOptionChainRequest) (map[string]marketdata.OptionSnapshot, error)
}

// Compile-time interface checks.
var _ PriceOracle = (*AlpacaOracle)(nil)
var _ marketDataClient = (*marketdata.Client)(nil)

// Config holds Alpaca credentials and the per-call HTTP timeout.
type Config struct {
	APIKey    string
	APISecret string
	DataURL   string
	Timeout   time.Duration
}

// AlpacaOracle implements PriceOracle against the Alpaca market-data API.
type AlpacaOracle struct {
	client  marketDataClient
	limiter *ratelimit.Executor
	log     *slog.Logger

	// Resolved ticker handles, keyed by normalized symbol. Process-wide and
	// never evicted; the set of tickers is expected to stay small.
	mu      sync.Mutex
	handles map[string]*security
}

// NewAlpacaOracle creates an AlpacaOracle using the given credentials. The
// HTTP client timeout bounds every upstream call; a timed-out call surfaces
// as ErrNoData/ErrQuoteNotFound like any other missing answer.
func NewAlpacaOracle(cfg Config, limiter *ratelimit.Executor) *AlpacaOracle {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		opts.BaseURL = cfg.DataURL
	}
	if cfg.Timeout > 0 {
		opts.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &AlpacaOracle{
		client:  marketdata.NewClient(opts),
		limiter: limiter,
		log:     slog.Default().With("component", "oracle"),
		handles: make(map[string]*security),
	}
}

// security is a cached per-ticker handle holding the normalized symbol used
// for every upstream request about that underlying.
type security struct {
	symbol string
}

// security returns the cached handle for ticker, creating it on first use.
func (o *AlpacaOracle) security(ticker string) *security {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.handles[symbol]
	if !ok {
		h = &security{symbol: symbol}
		o.handles[symbol] = h
	}
	return h
}

// ClosingPrice fetches the daily bar for the given date and returns its
// close, rounded to cents because the upstream feed carries floating-point
// noise.
func (o *AlpacaOracle) ClosingPrice(ctx context.Context, ticker string, date civil.Date) (float64, error) {
	sec := o.security(ticker)
	if err := o.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	// Daily bars are returned for [start, end); one day covers the request.
	start := date.In(time.UTC)
	bars, err := o.client.GetBars(sec.symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       start.Add(24 * time.Hour),
		Feed:      "sip",
	})
	if err != nil {
		return 0, fmt.Errorf("%w: bars for %s on %s: %v", domain.ErrNoData, sec.symbol, date, err)
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("%w: %s on %s", domain.ErrNoData, sec.symbol, date)
	}

	price := roundCents(bars[0].Close)
	o.log.Debug("closing price resolved", "symbol", sec.symbol, "date", date.String(), "price", price)
	return price, nil
}

// CurrentOptionQuote fetches the option chain for the expiration, narrowed
// to the requested strike and side, and returns the last traded price of the
// matching contract.
func (o *AlpacaOracle) CurrentOptionQuote(ctx context.Context, ticker string, expiration civil.Date, strike float64, isCall bool) (float64, error) {
	sec := o.security(ticker)
	if err := o.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	side := marketdata.Put
	if isCall {
		side = marketdata.Call
	}
	chain, err := o.client.GetOptionChain(sec.symbol, marketdata.GetOptionChainRequest{
		Type:           side,
		StrikePriceGte: strike,
		StrikePriceLte: strike,
		ExpirationDate: expiration,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: chain for %s %s: %v", domain.ErrQuoteNotFound, sec.symbol, expiration, err)
	}

	for _, snap := range chain {
		if snap.LatestTrade == nil {
			continue
		}
		return snap.LatestTrade.Price, nil
	}
	return 0, fmt.Errorf("%w: %s %s %s strike %.2f", domain.ErrQuoteNotFound, sec.symbol, side, expiration, strike)
}

func roundCents(p float64) float64 {
	return math.Round(p*100) / 100
}
