package oracle

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"optrack/internal/domain"
	"optrack/internal/ratelimit"
)

type fakeMarketData struct {
	bars     []marketdata.Bar
	barsErr  error
	chain    map[string]marketdata.OptionSnapshot
	chainErr error

	barCalls   int
	chainCalls int
	lastSymbol string
}

func (f *fakeMarketData) GetBars(symbol string, _ marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.barCalls++
	f.lastSymbol = symbol
	return f.bars, f.barsErr
}

func (f *fakeMarketData) GetOptionChain(symbol string, _ marketdata.GetOptionChainRequest) (map[string]marketdata.OptionSnapshot, error) {
	f.chainCalls++
	f.lastSymbol = symbol
	return f.chain, f.chainErr
}

func newTestOracle(f *fakeMarketData) *AlpacaOracle {
	return &AlpacaOracle{
		client:  f,
		limiter: ratelimit.New(100, time.Second),
		log:     slog.Default(),
		handles: make(map[string]*security),
	}
}

func TestClosingPrice(t *testing.T) {
	fake := &fakeMarketData{
		bars: []marketdata.Bar{{Close: 141.94999999}},
	}
	o := newTestOracle(fake)

	price, err := o.ClosingPrice(context.Background(), "nvda", civil.Date{Year: 2024, Month: 11, Day: 22})
	if err != nil {
		t.Fatalf("ClosingPrice: %v", err)
	}
	// Upstream float noise is rounded to cents.
	if price != 141.95 {
		t.Errorf("price = %v, want 141.95", price)
	}
	if fake.lastSymbol != "NVDA" {
		t.Errorf("symbol sent upstream = %q, want normalized NVDA", fake.lastSymbol)
	}
}

func TestClosingPriceNoData(t *testing.T) {
	o := newTestOracle(&fakeMarketData{}) // no bars: holiday or bad ticker

	_, err := o.ClosingPrice(context.Background(), "AAPL", civil.Date{Year: 2024, Month: 12, Day: 25})
	if !errors.Is(err, domain.ErrNoData) {
		t.Errorf("error = %v, want ErrNoData", err)
	}
}

func TestClosingPriceUpstreamError(t *testing.T) {
	o := newTestOracle(&fakeMarketData{barsErr: errors.New("timeout")})

	_, err := o.ClosingPrice(context.Background(), "AAPL", civil.Date{Year: 2024, Month: 6, Day: 3})
	if !errors.Is(err, domain.ErrNoData) {
		t.Errorf("upstream failure should surface as ErrNoData, got %v", err)
	}
}

func TestCurrentOptionQuote(t *testing.T) {
	fake := &fakeMarketData{
		chain: map[string]marketdata.OptionSnapshot{
			"AAPL250117C00100000": {
				LatestTrade: &marketdata.OptionTrade{Price: 12.35},
			},
		},
	}
	o := newTestOracle(fake)

	price, err := o.CurrentOptionQuote(context.Background(), "aapl",
		civil.Date{Year: 2025, Month: 1, Day: 17}, 100, true)
	if err != nil {
		t.Fatalf("CurrentOptionQuote: %v", err)
	}
	if price != 12.35 {
		t.Errorf("price = %v, want 12.35", price)
	}
}

func TestCurrentOptionQuoteNotFound(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeMarketData
	}{
		{"empty chain", &fakeMarketData{chain: map[string]marketdata.OptionSnapshot{}}},
		{"no trades on contract", &fakeMarketData{chain: map[string]marketdata.OptionSnapshot{
			"AAPL250117C00100000": {},
		}}},
		{"upstream error", &fakeMarketData{chainErr: errors.New("timeout")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOracle(tt.fake)
			_, err := o.CurrentOptionQuote(context.Background(), "AAPL",
				civil.Date{Year: 2025, Month: 1, Day: 17}, 100, true)
			if !errors.Is(err, domain.ErrQuoteNotFound) {
				t.Errorf("error = %v, want ErrQuoteNotFound", err)
			}
		})
	}
}

func TestSecurityHandleCached(t *testing.T) {
	o := newTestOracle(&fakeMarketData{})

	h1 := o.security("aapl")
	h2 := o.security("AAPL")
	if h1 != h2 {
		t.Error("handles for the same ticker should be cached, got distinct values")
	}
	if h1.symbol != "AAPL" {
		t.Errorf("handle symbol = %q, want AAPL", h1.symbol)
	}
	if len(o.handles) != 1 {
		t.Errorf("handle cache size = %d, want 1", len(o.handles))
	}
}

func TestOracleRateLimited(t *testing.T) {
	fake := &fakeMarketData{bars: []marketdata.Bar{{Close: 10}}}
	o := newTestOracle(fake)
	o.limiter = ratelimit.New(1, 80*time.Millisecond)

	date := civil.Date{Year: 2024, Month: 6, Day: 3}
	start := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := o.ClosingPrice(context.Background(), "AAPL", date); err != nil {
			t.Fatalf("ClosingPrice: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("two calls with budget 1 finished in %v, want >= 80ms", elapsed)
	}
	if fake.barCalls != 2 {
		t.Errorf("upstream calls = %d, want 2", fake.barCalls)
	}
}
